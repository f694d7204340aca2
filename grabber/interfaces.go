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

import "context"

// Upstream is the windowed fetch gateway the engine pulls chunks from.
// Implemented by upstream.Client; the engine depends only on this
// interface so it can be driven by a fake in tests.
type Upstream interface {
	// Fetch returns at most N=50,000 of the most recent trades within
	// [fromTS, toTS]. An empty, nil-error Chunk is a legitimate result
	// (no trades, suspended trading, or a swallowed transient failure).
	Fetch(ctx context.Context, symbol string, fromTS, toTS int64) (Chunk, error)
}

// Archive is the persistent per-symbol trade store the engine commits
// verified chunks to. Implemented by archive.Store.
type Archive interface {
	IsNonEmpty(ctx context.Context, symbol string) (bool, error)
	CreateSeries(ctx context.Context, symbol string) error
	DropSeries(ctx context.Context, symbol string) error
	Bounds(ctx context.Context, symbol string) (Info, error)
	InsertMany(ctx context.Context, symbol string, chunk Chunk) error
	UpsertMany(ctx context.Context, symbol string, chunk Chunk) (modified, inserted int, err error)
	Verify(ctx context.Context, symbol string) (bool, error)
	ListSeries(ctx context.Context) ([]string, error)
}
