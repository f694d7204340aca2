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

import "errors"

// Sentinel errors surfaced by the engine and planner. Compare with
// errors.Is, never string matching.
var (
	// ErrBadRange is returned when a requested interval is empty or
	// inverted: to_ts <= from_ts, or both ids given with to_id <= from_id.
	ErrBadRange = errors.New("grabber: bad range")

	// ErrMissingAnchor means the next older chunk did not overlap the
	// previously committed chunk's oldest id. The current Grab ends early;
	// the series stays internally consistent but incomplete.
	ErrMissingAnchor = errors.New("grabber: missing anchor")

	// ErrConsistencyBroken is returned when the whole-series verify fails
	// after a Grab that committed at least one chunk. Fatal to the
	// symbol's run.
	ErrConsistencyBroken = errors.New("grabber: consistency broken")

	// ErrDuplicate surfaces an archive insert collision on an id the
	// engine believed was disjoint from the stored series - a bug in
	// bound arithmetic, not a normal termination path.
	ErrDuplicate = errors.New("grabber: duplicate id")

	// ErrEmptySeries is returned by Bounds when the series has no rows.
	ErrEmptySeries = errors.New("grabber: empty series")

	// ErrArchiveUnavailable means the store could not be reached at all.
	ErrArchiveUnavailable = errors.New("grabber: archive unavailable")
)
