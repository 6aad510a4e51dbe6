// Copyright 2017 Fortio Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// beesd is a small demo binary for the bees benchmark runtime: it parses a
// single cURL command line into a RequestTemplate, runs one benchmark to
// completion against runner.Registry, and prints every Frame the sampler
// produces as a JSON line to stdout until the terminal sentinel -- a
// CLI-shaped stand-in for the HTTP start/stream surface an embedding server
// would provide.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fortio.org/cli"
	"fortio.org/duration"
	"fortio.org/log"

	"github.com/fortio/bees/eventlog"
	"github.com/fortio/bees/runner"
)

var (
	usersFlag    = flag.Int("users", 10, "Number of virtual users (closed-loop concurrency)")
	durationFlag = flag.String("duration", "10s", "Total benchmark duration (accepts day/week units, e.g. 1d)")
	intervalFlag = flag.String("interval", "2s", "Sampler tick interval")
	timeoutFlag  = flag.String("timeout", "0s", "Per-request timeout override, 0 to use the template's -m or none")
)

func parseDurationFlag(name, value string) time.Duration {
	d, err := duration.Parse(value)
	if err != nil {
		log.Fatalf("invalid -%s value %q: %v", name, value, err)
	}
	return d
}

func main() {
	cli.ProgramName = "Bees"
	cli.ArgsHelp = "'curl ...'  (a single shell-quoted cURL command line, the load template)"
	cli.MinArgs = 1
	cli.MaxArgs = 1
	cli.Main()
	log.Infof("beesd %s", longVersion)

	code := flag.Arg(0)
	cfg := runner.Config{
		Users:    *usersFlag,
		Duration: parseDurationFlag("duration", *durationFlag),
		Interval: parseDurationFlag("interval", *intervalFlag),
	}
	if to := parseDurationFlag("timeout", *timeoutFlag); to > 0 {
		cfg.TimeoutOverride = &to
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := runner.NewRegistry()
	h, err := reg.Start(ctx, code, cfg)
	if err != nil {
		log.Fatalf("invalid template: %v", err)
	}
	log.Infof("started run %s: %d users for %v, sampling every %v", h.ID, cfg.Users, cfg.Duration, cfg.Interval)

	streamFrames(ctx, h.EventLog)
	// the sentinel has been printed (or we were interrupted): no reason to
	// sit out the registry's grace window, that's for late subscribers.
	log.Infof("run %s complete", h.ID)
}

// streamFrames prints every Frame appended to log as a JSON line, starting
// from the beginning, until the terminal sentinel or ctx is cancelled.
func streamFrames(ctx context.Context, elog *eventlog.EventLog) {
	cursor := 0
	enc := json.NewEncoder(os.Stdout)
	for {
		frames, next, err := elog.WaitForMore(ctx, cursor)
		if err != nil {
			return
		}
		cursor = next
		for _, f := range frames {
			if f.Close {
				return
			}
			if encErr := enc.Encode(f); encErr != nil {
				fmt.Fprintln(os.Stderr, "beesd: encode error:", encErr)
			}
		}
	}
}
