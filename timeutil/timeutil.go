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

// Package timeutil provides the pure timestamp and window arithmetic shared
// by the backfill engine and its drivers. Nothing here holds state or
// performs I/O.
package timeutil

import (
	"time"

	"github.com/dustin/go-humanize"
)

// MaxWindow is the largest span ever passed to the upstream gateway in a
// single windowed fetch. The upstream caps any single response at N=50,000
// records; MaxWindow is chosen so that a single fetch is non-saturating for
// all but the busiest symbols, while still making steady progress on sparse
// ones.
const MaxWindow = 30 * 24 * time.Hour

// FromUnix converts epoch seconds to a UTC instant.
func FromUnix(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

// ToUnix converts a UTC instant to epoch seconds.
func ToUnix(t time.Time) int64 {
	return t.Unix()
}

// NowUnix is the engine's view of "now" - epoch seconds, UTC.
func NowUnix() int64 {
	return time.Now().UTC().Unix()
}

// ClampFloor returns the larger of candidate and floor. Used to keep a
// rolling window from walking past the caller-supplied start bound:
// window.from_ts = ClampFloor(window.to_ts - MaxWindow, from_ts).
func ClampFloor(candidate, floor int64) int64 {
	if candidate < floor {
		return floor
	}
	return candidate
}

// WindowFrom computes the oldest timestamp of a rolling window ending at
// toTS, clamped so it never passes floor.
func WindowFrom(toTS, floor int64) int64 {
	return ClampFloor(toTS-int64(MaxWindow/time.Second), floor)
}

// Since returns how long ago ts (epoch seconds, UTC) was, relative to now.
func Since(ts int64) time.Duration {
	return time.Since(FromUnix(ts))
}

// FormatDuration renders a duration the way operator-facing logs want it:
// coarse, no sub-second noise. Cosmetic only - never consulted by engine
// control flow.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	return d.Round(time.Second).String()
}

// FormatBytes renders a byte count for log/CLI display. Cosmetic only.
func FormatBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}

// FormatUnix renders an epoch-seconds timestamp for logs.
func FormatUnix(sec int64) string {
	return FromUnix(sec).Format("Mon 02/01/2006 15:04:05 MST")
}
