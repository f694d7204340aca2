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
	"testing"
	"time"
)

type fakeTicker struct {
	symbols map[string]struct{}
}

func (f fakeTicker) Ticker(ctx context.Context) (map[string]struct{}, error) {
	return f.symbols, nil
}

// TestRow_ProcessesEverySymbolIndependently verifies that one symbol's
// failure doesn't stop the rest of the row from being attempted, and that
// the per-symbol error slots line up with the input order.
func TestRow_ProcessesEverySymbolIndependently(t *testing.T) {
	arc := newFakeArchive()
	rowsA := seededSeries(10, 1, 1000)
	up := &fakeUpstream{rows: rowsA}
	e := NewEngine(up, arc, nil)

	errs := e.Row(context.Background(), []string{"A", "B"}, EpochBound(1000), EpochBound(1009), false)
	if len(errs) != 2 {
		t.Fatalf("expected 2 error slots, got %d", len(errs))
	}
	for i, err := range errs {
		if err != nil {
			t.Errorf("symbol %d: unexpected error %v", i, err)
		}
	}

	for _, sym := range []string{"A", "B"} {
		ok, err := arc.IsNonEmpty(context.Background(), sym)
		if err != nil || !ok {
			t.Errorf("expected symbol %s to be archived, nonEmpty=%v err=%v", sym, ok, err)
		}
	}
}

// TestRowConcurrent_MatchesSequentialResult verifies the bounded-parallel
// driver reconciles the same symbols as the sequential one.
func TestRowConcurrent_MatchesSequentialResult(t *testing.T) {
	arc := newFakeArchive()
	up := &fakeUpstream{rows: seededSeries(20, 1, 1000)}
	e := NewEngine(up, arc, nil)

	symbols := []string{"A", "B", "C", "D"}
	errs := e.RowConcurrent(context.Background(), symbols, 2, EpochBound(1000), EpochBound(1019), false)
	for i, err := range errs {
		if err != nil {
			t.Errorf("symbol %s: unexpected error %v", symbols[i], err)
		}
	}

	for _, sym := range symbols {
		info, err := arc.Bounds(context.Background(), sym)
		if err != nil {
			t.Fatalf("symbol %s: %v", sym, err)
		}
		if info.Count != 20 {
			t.Errorf("symbol %s: expected 20 rows, got %d", sym, info.Count)
		}
	}
}

// TestResolveSymbols_Explicit verifies the explicit symbol list is sorted
// and returned as-is.
func TestResolveSymbols_Explicit(t *testing.T) {
	spec := SymbolSpec{Explicit: []string{"ETH_BTC", "BTC_USD"}}
	out, err := ResolveSymbols(context.Background(), spec, newFakeArchive(), fakeTicker{})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 || out[0] != "BTC_USD" || out[1] != "ETH_BTC" {
		t.Errorf("expected sorted [BTC_USD ETH_BTC], got %v", out)
	}
}

// TestResolveSymbols_FromDB verifies symbols are pulled from the archive's
// known series when FromDB is set.
func TestResolveSymbols_FromDB(t *testing.T) {
	arc := newFakeArchive()
	ctx := context.Background()
	_ = arc.CreateSeries(ctx, "Z_PAIR")
	_ = arc.CreateSeries(ctx, "A_PAIR")

	out, err := ResolveSymbols(ctx, SymbolSpec{FromDB: true}, arc, fakeTicker{})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 || out[0] != "A_PAIR" || out[1] != "Z_PAIR" {
		t.Errorf("expected sorted [A_PAIR Z_PAIR], got %v", out)
	}
}

// TestResolveSymbols_Regex verifies the ticker symbol set is filtered by
// the given regex.
func TestResolveSymbols_Regex(t *testing.T) {
	tick := fakeTicker{symbols: map[string]struct{}{
		"BTC_ETH": {}, "BTC_XMR": {}, "USDT_BTC": {},
	}}
	out, err := ResolveSymbols(context.Background(), SymbolSpec{Regex: "^BTC_"}, newFakeArchive(), tick)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 matches, got %v", out)
	}
}

// TestRing_StopsAfterIterations verifies the ring driver honors a positive
// iteration cap instead of running forever.
func TestRing_StopsAfterIterations(t *testing.T) {
	arc := newFakeArchive()
	up := &fakeUpstream{rows: seededSeries(5, 1, 1000)}
	e := NewEngine(up, arc, nil)

	restore := nowUnixFn
	nowUnixFn = func() int64 { return 1010 }
	defer func() { nowUnixFn = restore }()

	err := e.Ring(context.Background(), []string{"A"}, EpochBound(1000), time.Millisecond, 2)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

// TestRing_StopsOnContextCancellation verifies Ring exits promptly once its
// context is cancelled, even with iterations left.
func TestRing_StopsOnContextCancellation(t *testing.T) {
	arc := newFakeArchive()
	up := &fakeUpstream{rows: seededSeries(5, 1, 1000)}
	e := NewEngine(up, arc, nil)

	restore := nowUnixFn
	nowUnixFn = func() int64 { return 1010 }
	defer func() { nowUnixFn = restore }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := e.Ring(ctx, []string{"A"}, EpochBound(1000), time.Millisecond, 0)
	if err == nil {
		t.Error("expected context cancellation error")
	}
}
