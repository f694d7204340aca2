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

	"tradegrab/timeutil"
)

// BoundKind identifies how a Bound should be resolved against a series'
// stored bounds. The source this engine is modeled on accepted from_ts as
// either a number or the literal strings "oldest"/"newest"; Bound replaces
// that with an explicit sum type resolved once, before Grab ever sees a
// plain epoch-seconds value.
type BoundKind int

const (
	BoundEpoch BoundKind = iota
	BoundOldest
	BoundNewest
	BoundUnbounded
)

// Bound is an unresolved range endpoint as accepted from a caller (CLI
// flag, API request) before the planner pins it to a concrete epoch
// second value.
type Bound struct {
	Kind  BoundKind
	Epoch int64
}

// EpochBound wraps a concrete timestamp.
func EpochBound(sec int64) Bound { return Bound{Kind: BoundEpoch, Epoch: sec} }

// Unbounded defers to the planner's own default (0 for a start bound, now
// for an end bound).
func Unbounded() Bound { return Bound{Kind: BoundUnbounded} }

// resolve pins a Bound to an epoch-second value. info is the archive's
// current bounds for the symbol (the zero Info if the series is empty);
// isStart selects the planner's default when Kind is BoundUnbounded.
func resolve(b Bound, info Info, isStart bool) int64 {
	switch b.Kind {
	case BoundOldest:
		return info.FromTS
	case BoundNewest:
		return info.ToTS
	case BoundUnbounded:
		if isStart {
			return 0
		}
		return timeutil.NowUnix()
	default:
		return b.Epoch
	}
}

// One reconciles a requested [from,to] interval against whatever is
// already archived for symbol, issuing zero, one, or two Grab calls:
//
//   - drop set: the series is dropped first, then a full Grab covers the
//     whole requested interval.
//   - series empty: one full Grab.
//   - from before the archived tail: a "tail" Grab, bounded above by the
//     archive's oldest record (exclusive).
//   - to after the archived head: a "head" Grab, bounded below by the
//     archive's newest record (exclusive).
//   - interval already covered: no-op.
func (e *Engine) One(ctx context.Context, symbol string, from, to Bound, drop bool) error {
	if drop {
		if err := e.Archive.DropSeries(ctx, symbol); err != nil {
			return err
		}
	}

	nonEmpty, err := e.Archive.IsNonEmpty(ctx, symbol)
	if err != nil {
		return err
	}

	var info Info
	if nonEmpty {
		info, err = e.Archive.Bounds(ctx, symbol)
		if err != nil {
			return err
		}
	}

	fromTS := resolve(from, info, true)
	toTS := resolve(to, info, false)
	if fromTS >= toTS {
		return ErrBadRange
	}

	if !nonEmpty {
		return e.Grab(ctx, symbol, GrabOptions{FromTS: &fromTS, ToTS: &toTS})
	}

	if fromTS < info.FromTS {
		toID := info.FromID
		if err := e.Grab(ctx, symbol, GrabOptions{
			FromTS: &fromTS,
			ToTS:   &info.FromTS,
			ToID:   &toID,
		}); err != nil {
			return err
		}
	}
	if toTS > info.ToTS {
		fromID := info.ToID
		if err := e.Grab(ctx, symbol, GrabOptions{
			FromTS: &info.ToTS,
			ToTS:   &toTS,
			FromID: &fromID,
		}); err != nil {
			return err
		}
	}
	return nil
}
