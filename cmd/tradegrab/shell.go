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
	"fmt"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"tradegrab/archive"
	"tradegrab/timeutil"
)

// runShell is the interactive operator console, adapted from the FIX
// client's readline REPL into archive-inspection commands: bounds, verify,
// range, candles, list.
func runShell(arc *archive.Store) error {
	completer := readline.NewPrefixCompleter(
		readline.PcItem("bounds"),
		readline.PcItem("verify"),
		readline.PcItem("range"),
		readline.PcItem("candles"),
		readline.PcItem("list"),
		readline.PcItem("help"),
		readline.PcItem("exit"),
	)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "tradegrab> ",
		HistoryFile:     "/tmp/tradegrab_history",
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("shell: %w", err)
	}
	defer rl.Close()

	ctx := context.Background()

	for {
		line, err := rl.Readline()
		if err != nil {
			return nil
		}

		parts := strings.Fields(strings.TrimSpace(line))
		if len(parts) == 0 {
			continue
		}

		switch strings.ToLower(parts[0]) {
		case "bounds":
			handleBounds(ctx, arc, parts)
		case "verify":
			handleVerify(ctx, arc, parts)
		case "range":
			handleRange(ctx, arc, parts)
		case "candles":
			handleCandles(ctx, arc, parts)
		case "list":
			handleList(ctx, arc)
		case "help":
			displayShellHelp()
		case "exit", "quit":
			return nil
		default:
			fmt.Println("Unknown command. Type 'help' for available commands.")
		}
	}
}

func displayShellHelp() {
	fmt.Print(`Commands:
  bounds <symbol>                        - show stored from/to ts and id for a symbol
  verify <symbol>                        - check the stored series is dense (no gaps)
  range <symbol> <from_ts> <to_ts>       - list stored trades in [from_ts, to_ts]
  candles <symbol> <from> <to> <width>   - OHLCV buckets of width seconds
  list                                    - list every symbol in the archive
  help                                    - show this message
  exit                                    - leave the shell
`)
}

func handleBounds(ctx context.Context, arc *archive.Store, parts []string) {
	if len(parts) < 2 {
		fmt.Println("Usage: bounds <symbol>")
		return
	}
	info, err := arc.Bounds(ctx, parts[1])
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	fmt.Printf("from %s (id %d) to %s (id %d), %d rows\n",
		timeutil.FormatUnix(info.FromTS), info.FromID,
		timeutil.FormatUnix(info.ToTS), info.ToID,
		info.Count,
	)
}

func handleVerify(ctx context.Context, arc *archive.Store, parts []string) {
	if len(parts) < 2 {
		fmt.Println("Usage: verify <symbol>")
		return
	}
	ok, err := arc.Verify(ctx, parts[1])
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	if ok {
		fmt.Println("series is dense")
	} else {
		fmt.Println("series has gaps or duplicates")
	}
}

func handleRange(ctx context.Context, arc *archive.Store, parts []string) {
	if len(parts) < 4 {
		fmt.Println("Usage: range <symbol> <from_ts> <to_ts>")
		return
	}
	from, err1 := strconv.ParseInt(parts[2], 10, 64)
	to, err2 := strconv.ParseInt(parts[3], 10, 64)
	if err1 != nil || err2 != nil {
		fmt.Println("Error: from_ts/to_ts must be epoch seconds")
		return
	}
	rows, err := arc.Range(ctx, parts[1], from, to)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	for _, r := range rows {
		fmt.Printf("%-10d %-20s %-4s %-12s %-12s %-12s\n",
			r.ID, timeutil.FormatUnix(r.TS), r.Type, r.Amount, r.Rate, r.Total)
	}
	fmt.Printf("%d rows\n", len(rows))
}

func handleCandles(ctx context.Context, arc *archive.Store, parts []string) {
	if len(parts) < 5 {
		fmt.Println("Usage: candles <symbol> <from_ts> <to_ts> <width_seconds>")
		return
	}
	from, err1 := strconv.ParseInt(parts[2], 10, 64)
	to, err2 := strconv.ParseInt(parts[3], 10, 64)
	width, err3 := strconv.ParseInt(parts[4], 10, 64)
	if err1 != nil || err2 != nil || err3 != nil {
		fmt.Println("Error: from_ts/to_ts/width must be integers")
		return
	}
	candles, err := arc.Candles(ctx, parts[1], from, to, width)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	for _, c := range candles {
		fmt.Printf("%-20s O:%-10s H:%-10s L:%-10s C:%-10s V:%-10s\n",
			timeutil.FormatUnix(c.BucketTS), c.Open, c.High, c.Low, c.Close, c.Volume)
	}
}

func handleList(ctx context.Context, arc *archive.Store) {
	symbols, err := arc.ListSeries(ctx)
	if err != nil {
		fmt.Println("Error:", err)
		return
	}
	if len(symbols) == 0 {
		fmt.Println("archive is empty")
		return
	}
	for _, s := range symbols {
		fmt.Println(s)
	}
}
