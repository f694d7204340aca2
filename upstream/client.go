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

// Package upstream is the rate-limited, retrying HTTP gateway to the
// windowed trade-history endpoint. It is the only package in this module
// that speaks HTTP; grabber.Engine depends on it only through the
// grabber.Upstream interface.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"tradegrab/grabber"
)

// Config controls how Client reaches the upstream trade-history endpoint.
type Config struct {
	BaseURL string // e.g. "https://poloniex.com/public"
	APIKey  string // optional; sent as a header when non-empty

	// RequestsPerSecond bounds the client's own call rate - this is the
	// "upstream client enforces its own limit" mechanism, there is no
	// separate global limiter anywhere else in this module.
	RequestsPerSecond float64
	Burst             int

	MaxRetries  int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration

	// MaxTransientBackoff caps the jittered delay applied between whole
	// Fetch retries after a transient failure exhausts retryablehttp's own
	// per-request retries. Zero disables the extra backoff (one attempt).
	MaxTransientBackoff time.Duration

	HTTPClient *http.Client
}

// Client is a grabber.Upstream implementation.
type Client struct {
	cfg     Config
	http    *retryablehttp.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewClient builds a Client from cfg. logger may be nil (defaults to a
// no-op logger, same convention as grabber.NewEngine).
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 6
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.RetryWaitMin <= 0 {
		cfg.RetryWaitMin = 500 * time.Millisecond
	}
	if cfg.RetryWaitMax <= 0 {
		cfg.RetryWaitMax = 30 * time.Second
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.MaxRetries
	rc.RetryWaitMin = cfg.RetryWaitMin
	rc.RetryWaitMax = cfg.RetryWaitMax
	rc.Logger = nil // structured logging goes through zap below, not retryablehttp's own logger
	if cfg.HTTPClient != nil {
		rc.HTTPClient = cfg.HTTPClient
	}

	return &Client{
		cfg:     cfg,
		http:    rc,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		logger:  logger,
	}
}

// Fetch returns at most 50,000 of the most recent trades in [fromTS, toTS]
// for symbol. Transient failures left over after retryablehttp's own
// retries are retried with an additional jittered backoff when
// Config.MaxTransientBackoff is positive (at zero there is no further
// attempt) and, on final exhaustion, surfaced as an empty Chunk rather
// than an error - per the
// engine's contract, a transient upstream outage looks identical to "no
// trades in this window" and the engine's own bound logic handles both.
// A schema violation is never swallowed; it is returned as ErrSchema.
func (c *Client) Fetch(ctx context.Context, symbol string, fromTS, toTS int64) (grabber.Chunk, error) {
	var chunk grabber.Chunk

	op := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		body, err := c.doFetch(ctx, symbol, fromTS, toTS)
		if err != nil {
			if errors.Is(err, ErrSchema) {
				return backoff.Permanent(err)
			}
			c.logger.Warn("upstream_transient",
				zap.String("symbol", symbol), zap.Error(err))
			return err
		}

		decoded, err := decodeChunk(body)
		if err != nil {
			return backoff.Permanent(err)
		}
		chunk = decoded
		return nil
	}

	bo := backoff.WithContext(c.transientBackoff(), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		if errors.Is(err, ErrSchema) {
			return nil, err
		}
		c.logger.Warn("upstream_exhausted",
			zap.String("symbol", symbol), zap.Error(err))
		return grabber.Chunk{}, nil
	}
	return chunk, nil
}

func (c *Client) transientBackoff() backoff.BackOff {
	if c.cfg.MaxTransientBackoff <= 0 {
		return &backoff.StopBackOff{}
	}
	eb := backoff.NewExponentialBackOff()
	eb.MaxElapsedTime = c.cfg.MaxTransientBackoff
	return eb
}

func (c *Client) doFetch(ctx context.Context, symbol string, fromTS, toTS int64) ([]byte, error) {
	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("upstream: invalid base url: %w", err)
	}
	q := u.Query()
	q.Set("command", "returnTradeHistory")
	q.Set("currencyPair", symbol)
	q.Set("start", strconv.FormatInt(fromTS, 10))
	q.Set("end", strconv.FormatInt(toTS, 10))
	u.RawQuery = q.Encode()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("upstream: build request: %w", err)
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Key", c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("upstream: read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("upstream: status %d", resp.StatusCode)
	}
	return body, nil
}
