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

// Package grabber implements the chunked, anchor-synchronized backfill
// engine: the state machine that walks a requested time range backwards
// against a size-capped upstream, synchronizing adjacent windowed fetches
// by trade id and committing verified runs to the archive.
//
// HOT PATH: Chunk is the per-fetch unit the engine operates on. One Chunk
// is built per upstream.Fetch call and is discarded once it has either been
// committed to the archive or rejected.
package grabber

// Row is a single trade record as decoded from one upstream fetch. Amount,
// Rate and Total stay as decimal strings end to end - the engine never
// parses them as floats, only Id and Ts participate in window arithmetic.
type Row struct {
	ID       int64
	TS       int64 // unix seconds, UTC
	GlobalID int64
	Amount   string
	Rate     string
	Total    string
	Type     string // "buy" | "sell"
	Valid    bool   // false if any field failed to decode
}

// Chunk is an ordered in-memory batch returned by a single upstream fetch.
// The order the upstream returns rows in is not guaranteed (spec: "Order
// within the response is not guaranteed"); callers that care about
// oldest/newest must use Info, which resolves orientation by comparing
// ids rather than assuming ascending or descending order.
type Chunk []Row

// Info is the derived snapshot of a Chunk (or, via Archive.Bounds, of a
// whole persisted series) used for bound arithmetic and verification.
type Info struct {
	FromTS int64 // timestamp of the oldest row
	FromID int64 // id of the oldest row
	ToTS   int64 // timestamp of the newest row
	ToID   int64 // id of the newest row
	Count  int
}

// Info computes the derived snapshot of the chunk by scanning once for the
// min/max id, rather than assuming any particular order. Returns the zero
// Info for an empty chunk.
func (c Chunk) Info() Info {
	if len(c) == 0 {
		return Info{}
	}
	min, max := c[0], c[0]
	for _, r := range c[1:] {
		if r.ID < min.ID {
			min = r
		}
		if r.ID > max.ID {
			max = r
		}
	}
	return Info{
		FromTS: min.TS,
		FromID: min.ID,
		ToTS:   max.TS,
		ToID:   max.ID,
		Count:  len(c),
	}
}

// Verify reports whether the chunk is dense: count == to_id - from_id + 1.
// Used as a pre-commit gate - a chunk that fails Verify is never inserted.
func (c Chunk) Verify() bool {
	if len(c) == 0 {
		return true
	}
	info := c.Info()
	return int64(info.Count) == info.ToID-info.FromID+1
}

// Contains reports whether id appears anywhere in the chunk.
func (c Chunk) Contains(id int64) bool {
	for _, r := range c {
		if r.ID == id {
			return true
		}
	}
	return false
}

// AnyIDLE reports whether any row has id <= the given bound.
func (c Chunk) AnyIDLE(id int64) bool {
	for _, r := range c {
		if r.ID <= id {
			return true
		}
	}
	return false
}

// AnyIDGE reports whether any row has id >= the given bound.
func (c Chunk) AnyIDGE(id int64) bool {
	for _, r := range c {
		if r.ID >= id {
			return true
		}
	}
	return false
}

// AnyTSLE reports whether any row has ts <= the given bound.
func (c Chunk) AnyTSLE(ts int64) bool {
	for _, r := range c {
		if r.TS <= ts {
			return true
		}
	}
	return false
}

// FilterLT returns the sub-chunk of rows with id < bound, preserving order.
func (c Chunk) FilterLT(id int64) Chunk {
	return c.filter(func(r Row) bool { return r.ID < id })
}

// FilterGT returns the sub-chunk of rows with id > bound, preserving order.
func (c Chunk) FilterGT(id int64) Chunk {
	return c.filter(func(r Row) bool { return r.ID > id })
}

// FilterLEByTS returns the sub-chunk of rows with ts <= bound.
func (c Chunk) FilterLEByTS(ts int64) Chunk {
	return c.filter(func(r Row) bool { return r.TS <= ts })
}

// FilterGEByTS returns the sub-chunk of rows with ts >= bound.
func (c Chunk) FilterGEByTS(ts int64) Chunk {
	return c.filter(func(r Row) bool { return r.TS >= ts })
}

func (c Chunk) filter(keep func(Row) bool) Chunk {
	out := make(Chunk, 0, len(c))
	for _, r := range c {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// DropNullAndDuplicates discards rows that failed to decode, then discards
// rows sharing an id with an earlier row in the chunk. Order is preserved
// for the rows that survive.
func (c Chunk) DropNullAndDuplicates() Chunk {
	seen := make(map[int64]struct{}, len(c))
	out := make(Chunk, 0, len(c))
	for _, r := range c {
		if !r.Valid {
			continue
		}
		if _, dup := seen[r.ID]; dup {
			continue
		}
		seen[r.ID] = struct{}{}
		out = append(out, r)
	}
	return out
}
