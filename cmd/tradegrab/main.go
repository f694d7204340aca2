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

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"tradegrab/archive"
	"tradegrab/grabber"
	"tradegrab/upstream"
)

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	app := &cli.App{
		Name:  "tradegrab",
		Usage: "chunked, anchor-synchronized trade history backfill",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "db",
				EnvVars: []string{"TRADEGRAB_DB_PATH"},
				Value:   "tradegrab.db",
				Usage:   "path to the SQLite archive",
			},
			&cli.StringFlag{
				Name:    "base-url",
				EnvVars: []string{"TRADEGRAB_UPSTREAM_BASE_URL"},
				Value:   "https://poloniex.com/public",
				Usage:   "upstream trade-history API base URL",
			},
			&cli.StringFlag{
				Name:    "api-key",
				EnvVars: []string{"TRADEGRAB_API_KEY"},
				Usage:   "optional upstream API key",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "enable debug-level logging",
			},
		},
		Commands: []*cli.Command{
			backfillCommand(),
			ringCommand(),
			shellCommand(),
		},
	}

	if err := app.Run(args); err != nil {
		fmt.Fprintln(os.Stderr, "tradegrab:", err)
		return exitCodeFor(err)
	}
	return 0
}

func exitCodeFor(err error) int {
	switch {
	case errors.Is(err, grabber.ErrBadRange):
		return 2
	case errors.Is(err, grabber.ErrConsistencyBroken):
		return 3
	default:
		return 1
	}
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func openArchive(c *cli.Context) (*archive.Store, error) {
	return archive.Open(c.String("db"))
}

func newUpstreamClient(c *cli.Context, logger *zap.Logger) *upstream.Client {
	return upstream.NewClient(upstream.Config{
		BaseURL: c.String("base-url"),
		APIKey:  c.String("api-key"),
	}, logger)
}

func rootContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func backfillCommand() *cli.Command {
	return &cli.Command{
		Name:  "backfill",
		Usage: "reconcile one time range against the archive for a set of symbols",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "symbols", Required: true, Usage: `"db" | "ticker" | "regex:<pattern>" | comma-separated list`},
			&cli.StringFlag{Name: "from", Value: "0", Usage: `epoch seconds, "oldest", or "newest"`},
			&cli.StringFlag{Name: "to", Value: "now", Usage: `epoch seconds, "now", or "newest"`},
			&cli.BoolFlag{Name: "drop", Usage: "drop each symbol's series before backfilling"},
			&cli.IntFlag{Name: "concurrency", Value: 1, Usage: "number of symbols to backfill in parallel"},
		},
		Action: func(c *cli.Context) error {
			logger, err := newLogger(c.Bool("verbose"))
			if err != nil {
				return err
			}
			defer logger.Sync()

			arc, err := openArchive(c)
			if err != nil {
				return err
			}
			defer arc.Close()

			up := newUpstreamClient(c, logger)
			engine := grabber.NewEngine(up, arc, logger)

			ctx, cancel := rootContext()
			defer cancel()

			spec, err := parseSymbolSpec(c.String("symbols"))
			if err != nil {
				return err
			}
			symbols, err := grabber.ResolveSymbols(ctx, spec, arc, up)
			if err != nil {
				return fmt.Errorf("resolve symbols: %w", err)
			}
			if len(symbols) == 0 {
				return fmt.Errorf("no symbols matched")
			}

			from, err := parseBound(c.String("from"), true)
			if err != nil {
				return err
			}
			to, err := parseBound(c.String("to"), false)
			if err != nil {
				return err
			}

			concurrency := c.Int("concurrency")
			var errs []error
			if concurrency > 1 {
				errs = engine.RowConcurrent(ctx, symbols, concurrency, from, to, c.Bool("drop"))
			} else {
				errs = engine.Row(ctx, symbols, from, to, c.Bool("drop"))
			}

			return firstSignificant(symbols, errs)
		},
	}
}

func ringCommand() *cli.Command {
	return &cli.Command{
		Name:  "ring",
		Usage: "repeat a backfill pass against [--from, now] until interrupted or --iterations passes",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "symbols", Required: true, Usage: `"db" | "ticker" | "regex:<pattern>" | comma-separated list`},
			&cli.StringFlag{Name: "from", Value: "0", Usage: `epoch seconds, "oldest", or "newest"`},
			&cli.DurationFlag{Name: "every", Value: time.Minute, Usage: "pause between passes"},
			&cli.IntFlag{Name: "iterations", Value: 0, Usage: "stop after N passes (0 = unbounded)"},
		},
		Action: func(c *cli.Context) error {
			logger, err := newLogger(c.Bool("verbose"))
			if err != nil {
				return err
			}
			defer logger.Sync()

			arc, err := openArchive(c)
			if err != nil {
				return err
			}
			defer arc.Close()

			up := newUpstreamClient(c, logger)
			engine := grabber.NewEngine(up, arc, logger)

			ctx, cancel := rootContext()
			defer cancel()

			spec, err := parseSymbolSpec(c.String("symbols"))
			if err != nil {
				return err
			}
			symbols, err := grabber.ResolveSymbols(ctx, spec, arc, up)
			if err != nil {
				return fmt.Errorf("resolve symbols: %w", err)
			}
			if len(symbols) == 0 {
				return fmt.Errorf("no symbols matched")
			}

			from, err := parseBound(c.String("from"), true)
			if err != nil {
				return err
			}

			err = engine.Ring(ctx, symbols, from, c.Duration("every"), c.Int("iterations"))
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

func shellCommand() *cli.Command {
	return &cli.Command{
		Name:  "shell",
		Usage: "interactive operator console for archive inspection",
		Action: func(c *cli.Context) error {
			logger, err := newLogger(c.Bool("verbose"))
			if err != nil {
				return err
			}
			defer logger.Sync()

			arc, err := openArchive(c)
			if err != nil {
				return err
			}
			defer arc.Close()

			return runShell(arc)
		},
	}
}

func parseSymbolSpec(raw string) (grabber.SymbolSpec, error) {
	switch {
	case raw == "db":
		return grabber.SymbolSpec{FromDB: true}, nil
	case raw == "ticker":
		return grabber.SymbolSpec{FromTicker: true}, nil
	case len(raw) > 6 && raw[:6] == "regex:":
		pattern := raw[6:]
		if _, err := regexp.Compile(pattern); err != nil {
			return grabber.SymbolSpec{}, fmt.Errorf("invalid --symbols regex: %w", err)
		}
		return grabber.SymbolSpec{Regex: pattern}, nil
	default:
		return grabber.SymbolSpec{Explicit: splitCSV(raw)}, nil
	}
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func parseBound(raw string, isStart bool) (grabber.Bound, error) {
	switch raw {
	case "oldest":
		return grabber.Bound{Kind: grabber.BoundOldest}, nil
	case "newest":
		return grabber.Bound{Kind: grabber.BoundNewest}, nil
	case "now", "":
		// "now" means wall-clock time, not the archive's stored newest
		// record - that's "newest" above. Both resolve through Unbounded,
		// which pins to timeutil.NowUnix() for an end bound.
		return grabber.Unbounded(), nil
	default:
		var sec int64
		if _, err := fmt.Sscanf(raw, "%d", &sec); err != nil {
			return grabber.Bound{}, fmt.Errorf("invalid bound %q: %w", raw, err)
		}
		return grabber.EpochBound(sec), nil
	}
}

// firstSignificant returns nil if every symbol succeeded, the first
// ErrConsistencyBroken across the row if any occurred (fatal per the CLI's
// exit-code policy), otherwise the first non-nil error.
func firstSignificant(symbols []string, errs []error) error {
	var first error
	for i, err := range errs {
		if err == nil {
			continue
		}
		if errors.Is(err, grabber.ErrConsistencyBroken) {
			return fmt.Errorf("%s: %w", symbols[i], err)
		}
		if first == nil {
			first = fmt.Errorf("%s: %w", symbols[i], err)
		}
	}
	return first
}
