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

package archive

import (
	"context"
	"fmt"
)

// Candle is an OHLC bucket derived from a symbol's stored trades. It never
// touches a new table - it is computed on read from the same trades_<symbol>
// table Store already maintains, bucketed by a caller-supplied width.
type Candle struct {
	BucketTS int64
	Open     string
	High     string
	Low      string
	Close    string
	Volume   string
}

// Candles buckets the symbol's trades into width-second windows between
// fromTS and toTS inclusive. Open/Close are picked by id ordering within
// each bucket, so those two never get parsed into a lossy float for
// comparison - only the bucket timestamp and the id used to pick the
// first/last row are touched as integers. High/Low/Volume are aggregates
// with no comparable id-ordering trick, so they go through SQLite's
// CAST(...AS REAL) and come back as a float reformatted with %g, which is
// lossy for rates with more significant digits than a float64 preserves.
func (s *Store) Candles(ctx context.Context, symbol string, fromTS, toTS, width int64) ([]Candle, error) {
	if width <= 0 {
		return nil, fmt.Errorf("archive: candle width must be positive")
	}
	table, err := tableName(symbol)
	if err != nil {
		return nil, err
	}

	q := fmt.Sprintf(`
SELECT
	(ts / ?) * ? AS bucket_ts,
	(SELECT rate FROM %[1]s t2 WHERE (t2.ts / ?) * ? = bucket_ts AND t2.ts >= ? AND t2.ts <= ? ORDER BY t2.id ASC LIMIT 1) AS open,
	(SELECT rate FROM %[1]s t3 WHERE (t3.ts / ?) * ? = bucket_ts AND t3.ts >= ? AND t3.ts <= ? ORDER BY t3.id DESC LIMIT 1) AS close,
	MAX(CAST(rate AS REAL)) AS high,
	MIN(CAST(rate AS REAL)) AS low,
	SUM(CAST(amount AS REAL)) AS volume
FROM %[1]s
WHERE ts >= ? AND ts <= ?
GROUP BY bucket_ts
ORDER BY bucket_ts ASC`, table)

	rows, err := s.db.QueryContext(ctx, q,
		width, width,
		width, width, fromTS, toTS,
		width, width, fromTS, toTS,
		fromTS, toTS,
	)
	if err != nil {
		return nil, fmt.Errorf("archive: candles %s: %w", table, err)
	}
	defer rows.Close()

	var out []Candle
	for rows.Next() {
		var c Candle
		var high, low, volume float64
		if err := rows.Scan(&c.BucketTS, &c.Open, &c.Close, &high, &low, &volume); err != nil {
			return nil, err
		}
		c.High = fmt.Sprintf("%g", high)
		c.Low = fmt.Sprintf("%g", low)
		c.Volume = fmt.Sprintf("%g", volume)
		out = append(out, c)
	}
	return out, rows.Err()
}
