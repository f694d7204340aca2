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
	"sort"
	"sync"
)

// fakeArchive is an in-memory Archive used across this package's tests. It
// mimics the density/verify semantics of the real SQLite-backed archive
// without touching a database. Guarded by a mutex so RowConcurrent's
// overlapping per-symbol calls don't race on the map.
type fakeArchive struct {
	mu     sync.Mutex
	series map[string]Chunk
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{series: make(map[string]Chunk)}
}

func (a *fakeArchive) CreateSeries(ctx context.Context, symbol string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.series[symbol]; !ok {
		a.series[symbol] = Chunk{}
	}
	return nil
}

func (a *fakeArchive) DropSeries(ctx context.Context, symbol string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.series, symbol)
	return nil
}

func (a *fakeArchive) IsNonEmpty(ctx context.Context, symbol string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.series[symbol]) > 0, nil
}

func (a *fakeArchive) Bounds(ctx context.Context, symbol string) (Info, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	rows := a.series[symbol]
	if len(rows) == 0 {
		return Info{}, ErrEmptySeries
	}
	return rows.Info(), nil
}

func (a *fakeArchive) InsertMany(ctx context.Context, symbol string, chunk Chunk) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	existing := a.series[symbol]
	seen := make(map[int64]struct{}, len(existing))
	for _, r := range existing {
		seen[r.ID] = struct{}{}
	}
	for _, r := range chunk {
		if _, dup := seen[r.ID]; dup {
			return ErrDuplicate
		}
	}
	a.series[symbol] = append(existing, chunk...)
	sort.Slice(a.series[symbol], func(i, j int) bool {
		return a.series[symbol][i].ID < a.series[symbol][j].ID
	})
	return nil
}

func (a *fakeArchive) UpsertMany(ctx context.Context, symbol string, chunk Chunk) (int, int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	existing := a.series[symbol]
	seen := make(map[int64]struct{}, len(existing))
	for _, r := range existing {
		seen[r.ID] = struct{}{}
	}
	inserted := 0
	for _, r := range chunk {
		if _, dup := seen[r.ID]; dup {
			continue
		}
		a.series[symbol] = append(a.series[symbol], r)
		seen[r.ID] = struct{}{}
		inserted++
	}
	sort.Slice(a.series[symbol], func(i, j int) bool {
		return a.series[symbol][i].ID < a.series[symbol][j].ID
	})
	return 0, inserted, nil
}

func (a *fakeArchive) Verify(ctx context.Context, symbol string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	rows := a.series[symbol]
	if len(rows) == 0 {
		return true, nil
	}
	return rows.Verify(), nil
}

func (a *fakeArchive) ListSeries(ctx context.Context) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.series))
	for s := range a.series {
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}

// fakeUpstream serves Chunk windows out of a pre-seeded, fully dense
// series, slicing by [fromTS, toTS] and capping at maxPerFetch - the same
// shape constraint the real upstream imposes at N=50,000.
type fakeUpstream struct {
	mu          sync.Mutex
	rows        Chunk // the full, ground-truth series, ordered by id ascending
	maxPerFetch int
	fetchLog    [][2]int64
	failNextN   int // if > 0, Fetch returns an error this many more times
	failErr     error
}

func (u *fakeUpstream) Fetch(ctx context.Context, symbol string, fromTS, toTS int64) (Chunk, error) {
	u.mu.Lock()
	u.fetchLog = append(u.fetchLog, [2]int64{fromTS, toTS})
	if u.failNextN > 0 {
		u.failNextN--
		u.mu.Unlock()
		return nil, u.failErr
	}
	u.mu.Unlock()

	var matched Chunk
	for _, r := range u.rows {
		if r.TS >= fromTS && r.TS <= toTS {
			matched = append(matched, r)
		}
	}
	// Upstream returns only the most recent N records of the window.
	if u.maxPerFetch > 0 && len(matched) > u.maxPerFetch {
		matched = matched[len(matched)-u.maxPerFetch:]
	}
	out := make(Chunk, len(matched))
	copy(out, matched)
	return out, nil
}

// fakeUpstreamFunc adapts a plain function to the Upstream interface, for
// tests that need full control over what a specific window returns
// (missing-anchor and consistency-broken edge cases).
type fakeUpstreamFunc func(ctx context.Context, symbol string, fromTS, toTS int64) (Chunk, error)

func (f fakeUpstreamFunc) Fetch(ctx context.Context, symbol string, fromTS, toTS int64) (Chunk, error) {
	return f(ctx, symbol, fromTS, toTS)
}
