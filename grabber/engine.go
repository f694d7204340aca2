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

	"go.uber.org/zap"

	"tradegrab/timeutil"
)

// GrabOptions are the bounds of one Grab call. Start is inclusive by
// timestamp and exclusive by id; end is inclusive by timestamp and
// exclusive by id. A nil FromTS defaults to 0, a nil ToTS defaults to
// now. FromID/ToID, when set, take priority over the timestamp bounds.
type GrabOptions struct {
	FromTS *int64
	FromID *int64
	ToTS   *int64
	ToID   *int64
}

// Engine is the chunked backfill state machine. It is the only component
// that combines the upstream and archive gateways; everything else in
// this package is pure range arithmetic over the results.
type Engine struct {
	Upstream Upstream
	Archive  Archive
	Logger   *zap.Logger
}

// NewEngine builds an Engine. logger may be zap.NewNop() in tests.
func NewEngine(up Upstream, arc Archive, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{Upstream: up, Archive: arc, Logger: logger}
}

// Grab reconciles the target interval given by opts (see GrabOptions for
// which bounds are inclusive) on a single symbol against the upstream, walking backwards window by window
// and committing each verified chunk as soon as it is synchronized with
// the one before it.
//
// Rationale for walking backwards: the upstream returns only the newest N
// records within any requested window, never a cursor. Walking forward
// would require guessing a window small enough that its newest records
// are also the oldest not yet fetched - impossible without prior density
// knowledge. Walking backwards, the newest records of each window are
// bounded by the previous chunk's oldest id, so a simple id intersection
// (the "anchor") guarantees contiguity.
func (e *Engine) Grab(ctx context.Context, symbol string, opts GrabOptions) error {
	fromTS := int64(0)
	if opts.FromTS != nil {
		fromTS = *opts.FromTS
	}
	toTS := timeutil.NowUnix()
	if opts.ToTS != nil {
		toTS = *opts.ToTS
	}
	if toTS <= fromTS {
		return ErrBadRange
	}
	if opts.FromID != nil && opts.ToID != nil && *opts.ToID <= *opts.FromID {
		return ErrBadRange
	}

	if err := e.Archive.CreateSeries(ctx, symbol); err != nil {
		return err
	}

	windowToTS := toTS
	windowFromTS := timeutil.WindowFrom(toTS, fromTS)
	var anchorID *int64
	recording := opts.ToID == nil
	anythingRecorded := false

	e.Logger.Debug("grab_started",
		zap.String("symbol", symbol),
		zap.Int64("from_ts", fromTS),
		zap.Int64("to_ts", toTS),
	)

	var pendingErr error

loop:
	for {
		select {
		case <-ctx.Done():
			pendingErr = ctx.Err()
			break loop
		default:
		}

		e.Logger.Debug("fetch_started",
			zap.String("symbol", symbol),
			zap.Int64("window_from_ts", windowFromTS),
			zap.Int64("window_to_ts", windowToTS),
		)

		chunk, err := e.Upstream.Fetch(ctx, symbol, windowFromTS, windowToTS)
		if err != nil {
			pendingErr = err
			break loop
		}

		if len(chunk) == 0 {
			if anythingRecorded || windowFromTS == fromTS {
				e.Logger.Debug("bounds_reached", zap.String("symbol", symbol))
				break loop
			}
			windowToTS = windowFromTS
			windowFromTS = timeutil.WindowFrom(windowToTS, fromTS)
			continue
		}

		if !recording {
			if opts.ToID != nil && chunk.Contains(*opts.ToID) {
				recording = true
				chunk = chunk.FilterLT(*opts.ToID)
				if len(chunk) == 0 {
					break loop
				}
				// fall through to the recording path below with this
				// same, now-filtered chunk.
			} else {
				if opts.FromID != nil && chunk.AnyIDLE(*opts.FromID) {
					break loop
				}
				if chunk.AnyTSLE(fromTS) {
					break loop
				}
				info := chunk.Info()
				windowToTS = info.FromTS
				windowFromTS = timeutil.WindowFrom(info.FromTS, fromTS)
				continue
			}
		}

		if anchorID != nil {
			if chunk.AnyIDGE(*anchorID) {
				chunk = chunk.FilterLT(*anchorID)
				if len(chunk) == 0 {
					break loop
				}
			} else {
				e.Logger.Warn("anchor_missing",
					zap.String("symbol", symbol),
					zap.Int64("anchor_id", *anchorID),
				)
				pendingErr = ErrMissingAnchor
				break loop
			}
		}

		if opts.FromID != nil && chunk.AnyIDLE(*opts.FromID) {
			chunk = chunk.FilterGT(*opts.FromID)
			if len(chunk) > 0 && chunk.Verify() {
				if err := e.commit(ctx, symbol, chunk); err != nil {
					pendingErr = err
				} else {
					anythingRecorded = true
				}
			}
			break loop
		}
		if chunk.AnyTSLE(fromTS) {
			chunk = chunk.FilterGEByTS(fromTS)
			if len(chunk) > 0 && chunk.Verify() {
				if err := e.commit(ctx, symbol, chunk); err != nil {
					pendingErr = err
				} else {
					anythingRecorded = true
				}
			}
			break loop
		}

		chunk = chunk.DropNullAndDuplicates()
		if len(chunk) == 0 {
			break loop
		}
		if !chunk.Verify() {
			e.Logger.Warn("verify_failed", zap.String("symbol", symbol))
			break loop
		}
		if err := e.commit(ctx, symbol, chunk); err != nil {
			pendingErr = err
			break loop
		}
		anythingRecorded = true

		info := chunk.Info()
		windowToTS = info.FromTS
		windowFromTS = timeutil.WindowFrom(info.FromTS, fromTS)
		fromID := info.FromID
		anchorID = &fromID
	}

	if anythingRecorded {
		ok, err := e.Archive.Verify(ctx, symbol)
		if err != nil {
			return err
		}
		if !ok {
			return ErrConsistencyBroken
		}
	}
	return pendingErr
}

func (e *Engine) commit(ctx context.Context, symbol string, chunk Chunk) error {
	if err := e.Archive.InsertMany(ctx, symbol, chunk); err != nil {
		return err
	}
	info := chunk.Info()
	e.Logger.Debug("chunk_committed",
		zap.String("symbol", symbol),
		zap.Int64("from_id", info.FromID),
		zap.Int64("to_id", info.ToID),
		zap.Int("count", info.Count),
	)
	return nil
}
