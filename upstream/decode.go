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

package upstream

import (
	"encoding/json"
	"fmt"
	"time"

	"tradegrab/grabber"
)

// wireTrade mirrors one element of the trade-history endpoint's JSON array.
// date and the three decimal fields are read as strings (the wire format),
// tradeID/globalTradeID as JSON numbers.
type wireTrade struct {
	Date          string `json:"date"`
	Amount        string `json:"amount"`
	Rate          string `json:"rate"`
	Total         string `json:"total"`
	Type          string `json:"type"`
	TradeID       int64  `json:"tradeID"`
	GlobalTradeID int64  `json:"globalTradeID"`
}

const wireDateLayout = "2006-01-02 15:04:05"

// decodeChunk turns a raw trade-history response body into a grabber.Chunk.
// A malformed top-level JSON document, or a trade whose tradeID/
// globalTradeID/date fields don't decode, is ErrSchema - everything else
// (an empty array, a well-formed-but-stale response) is a normal Chunk.
func decodeChunk(body []byte) (grabber.Chunk, error) {
	var raw []wireTrade
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}

	chunk := make(grabber.Chunk, 0, len(raw))
	for _, w := range raw {
		if w.TradeID == 0 || w.GlobalTradeID == 0 {
			return nil, fmt.Errorf("%w: trade missing id fields", ErrSchema)
		}
		ts, err := parseWireDate(w.Date)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSchema, err)
		}
		chunk = append(chunk, grabber.Row{
			ID:       w.TradeID,
			TS:       ts,
			GlobalID: w.GlobalTradeID,
			Amount:   w.Amount,
			Rate:     w.Rate,
			Total:    w.Total,
			Type:     w.Type,
			Valid:    true,
		})
	}
	return chunk, nil
}

func parseWireDate(s string) (int64, error) {
	t, err := time.ParseInLocation(wireDateLayout, s, time.UTC)
	if err != nil {
		return 0, fmt.Errorf("parse trade date %q: %w", s, err)
	}
	return t.Unix(), nil
}
