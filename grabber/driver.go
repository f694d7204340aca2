/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package grabber

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// TickerSource resolves the set of tradable symbols from the upstream's
// ticker endpoint. Implemented by upstream.Client.
type TickerSource interface {
	Ticker(ctx context.Context) (map[string]struct{}, error)
}

// SymbolSpec describes where Row/Ring should source their symbol list
// from. Exactly one field should be set; Explicit wins if more than one
// is populated.
type SymbolSpec struct {
	Explicit   []string
	FromDB     bool
	FromTicker bool
	Regex      string
}

// ResolveSymbols turns a SymbolSpec into a concrete, sorted symbol list.
func ResolveSymbols(ctx context.Context, spec SymbolSpec, arc Archive, tick TickerSource) ([]string, error) {
	switch {
	case len(spec.Explicit) > 0:
		out := append([]string(nil), spec.Explicit...)
		sort.Strings(out)
		return out, nil
	case spec.FromDB:
		syms, err := arc.ListSeries(ctx)
		if err != nil {
			return nil, err
		}
		sort.Strings(syms)
		return syms, nil
	case spec.FromTicker:
		set, err := tick.Ticker(ctx)
		if err != nil {
			return nil, err
		}
		return sortedKeys(set), nil
	case spec.Regex != "":
		re, err := regexp.Compile(spec.Regex)
		if err != nil {
			return nil, fmt.Errorf("grabber: invalid symbol regex: %w", err)
		}
		set, err := tick.Ticker(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]string, 0, len(set))
		for s := range set {
			if re.MatchString(s) {
				out = append(out, s)
			}
		}
		sort.Strings(out)
		return out, nil
	default:
		return nil, fmt.Errorf("grabber: symbol spec is empty")
	}
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Row sequentially reconciles every symbol in the list against [from,to].
// One error slot per symbol is returned (nil where the symbol succeeded or
// was not reached), in the same order as symbols, so a MissingAnchor or
// BadRange on one symbol never aborts the rest of the row - only
// ErrConsistencyBroken is treated as fatal to the whole row, matching the
// CLI's exit-code policy.
func (e *Engine) Row(ctx context.Context, symbols []string, from, to Bound, drop bool) []error {
	errs := make([]error, len(symbols))
	for i, sym := range symbols {
		errs[i] = e.One(ctx, sym, from, to, drop)
		if errs[i] != nil {
			e.Logger.Warn("row_symbol_failed", zap.String("symbol", sym), zap.Error(errs[i]))
		}
		if errors.Is(errs[i], ErrConsistencyBroken) {
			return errs
		}
		if ctx.Err() != nil {
			return errs
		}
	}
	return errs
}

// RowConcurrent is an additive, bounded-parallel variant of Row. Each
// symbol is still serialized against itself via a per-symbol mutex - two
// concurrent grabs on the same symbol would violate the anchor invariant;
// concurrency only overlaps distinct symbols.
func (e *Engine) RowConcurrent(ctx context.Context, symbols []string, concurrency int, from, to Bound, drop bool) []error {
	if concurrency < 1 {
		concurrency = 1
	}
	errs := make([]error, len(symbols))
	sem := make(chan struct{}, concurrency)
	var km keyedMutex

	g, gctx := errgroup.WithContext(ctx)
	for i, sym := range symbols {
		i, sym := i, sym
		sem <- struct{}{}
		g.Go(func() error {
			defer func() { <-sem }()
			unlock := km.lock(sym)
			defer unlock()
			errs[i] = e.One(gctx, sym, from, to, drop)
			return nil // per-symbol failures are collected, not fatal to the group
		})
	}
	_ = g.Wait()
	return errs
}

// keyedMutex hands out a per-key lock, creating it lazily. It exists so
// RowConcurrent can serialize Grab calls per symbol without a single
// global lock serializing unrelated symbols.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// Ring repeats Row against [from, now], taking a fresh "now" for every
// pass, pausing period between passes. iterations <= 0 means unbounded - Ring only stops
// on context cancellation or, if positive, once iterations passes.
func (e *Engine) Ring(ctx context.Context, symbols []string, from Bound, period time.Duration, iterations int) error {
	done := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		errs := e.Row(ctx, symbols, from, EpochBound(nowUnixFn()), false)
		for i, err := range errs {
			if err != nil {
				e.Logger.Warn("ring_symbol_failed", zap.String("symbol", symbols[i]), zap.Error(err))
			}
		}
		done++
		if iterations > 0 && done >= iterations {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(period):
		}
	}
}

// nowUnixFn is a var, not a direct timeutil.NowUnix call, so tests can
// stub "now" without sleeping real wall-clock time across iterations.
var nowUnixFn = func() int64 {
	return time.Now().UTC().Unix()
}
