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
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// testClient builds a Client pointed at srv with retry/backoff knobs tuned
// down so a transient-failure test doesn't sit around for real wall-clock
// seconds.
func testClient(srv *httptest.Server) *Client {
	return NewClient(Config{
		BaseURL:           srv.URL,
		RequestsPerSecond: 1000,
		Burst:             1000,
		MaxRetries:        1,
		RetryWaitMin:      time.Millisecond,
		RetryWaitMax:      2 * time.Millisecond,
	}, nil)
}

func TestFetch_DecodesValidResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("command"); got != "returnTradeHistory" {
			t.Errorf("expected command=returnTradeHistory, got %q", got)
		}
		if got := r.URL.Query().Get("currencyPair"); got != "BTC_ETH" {
			t.Errorf("expected currencyPair=BTC_ETH, got %q", got)
		}
		w.Write([]byte(`[{"date":"2023-11-14 22:13:20","amount":"1","rate":"2","total":"2","type":"buy","tradeID":1,"globalTradeID":1}]`))
	}))
	defer srv.Close()

	c := testClient(srv)
	chunk, err := c.Fetch(context.Background(), "BTC_ETH", 0, 2000000000)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(chunk) != 1 || chunk[0].ID != 1 {
		t.Errorf("unexpected chunk: %+v", chunk)
	}
}

// TestFetch_TransientFailureReturnsEmptyChunk verifies a server that never
// recovers gets swallowed into an empty, error-free Chunk once retries are
// exhausted - a transient outage must look identical to "no trades".
func TestFetch_TransientFailureReturnsEmptyChunk(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := testClient(srv)
	chunk, err := c.Fetch(context.Background(), "BTC_ETH", 0, 100)
	if err != nil {
		t.Fatalf("expected no error for exhausted transient retries, got %v", err)
	}
	if len(chunk) != 0 {
		t.Errorf("expected empty chunk, got %+v", chunk)
	}
	if atomic.LoadInt32(&calls) == 0 {
		t.Error("expected the server to have been called at least once")
	}
}

// TestFetch_SchemaViolationSurfacesError verifies a malformed body is never
// swallowed, unlike a transient failure.
func TestFetch_SchemaViolationSurfacesError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	c := testClient(srv)
	_, err := c.Fetch(context.Background(), "BTC_ETH", 0, 100)
	if !errors.Is(err, ErrSchema) {
		t.Errorf("expected ErrSchema, got %v", err)
	}
}

func TestFetch_SendsAPIKeyHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Key"); got != "secret-key" {
			t.Errorf("expected Key header secret-key, got %q", got)
		}
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewClient(Config{
		BaseURL:           srv.URL,
		APIKey:            "secret-key",
		RequestsPerSecond: 1000,
		Burst:             1000,
		MaxRetries:        1,
		RetryWaitMin:      time.Millisecond,
		RetryWaitMax:      2 * time.Millisecond,
	}, nil)
	if _, err := c.Fetch(context.Background(), "BTC_ETH", 0, 100); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
}

func TestTicker_ReturnsSymbolSet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("command"); got != "returnTicker" {
			t.Errorf("expected command=returnTicker, got %q", got)
		}
		w.Write([]byte(`{"BTC_ETH":{"last":"1"},"BTC_XMR":{"last":"2"}}`))
	}))
	defer srv.Close()

	c := testClient(srv)
	symbols, err := c.Ticker(context.Background())
	if err != nil {
		t.Fatalf("Ticker failed: %v", err)
	}
	if _, ok := symbols["BTC_ETH"]; !ok {
		t.Error("expected BTC_ETH in ticker set")
	}
	if _, ok := symbols["BTC_XMR"]; !ok {
		t.Error("expected BTC_XMR in ticker set")
	}
	if len(symbols) != 2 {
		t.Errorf("expected 2 symbols, got %d", len(symbols))
	}
}

func TestTicker_MalformedBodySurfacesErrSchema(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	c := testClient(srv)
	_, err := c.Ticker(context.Background())
	if !errors.Is(err, ErrSchema) {
		t.Errorf("expected ErrSchema, got %v", err)
	}
}
