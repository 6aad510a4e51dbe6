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

// Package runner implements the run controller (cold-start staggering,
// duration loop, pause/resume/stop, grace-window cleanup) and the registry
// that tracks every run started against a process.
package runner

import (
	"time"

	"fortio.org/dflag"

	"github.com/fortio/bees/cpuload"
)

// maxColdStartTime caps the ramp-up window regardless of Duration.
const maxColdStartTime = 20 * time.Second

// defaultUsers is used when Config.Users is left at zero.
const defaultUsers = 10

// defaultCollectorInterval is the sampler tick when Config.Interval is zero.
const defaultCollectorInterval = 2 * time.Second

// GraceWindow is how long a finished/stopped run's state (Registry,
// EventLog) stays queryable before the controller removes it, so late
// subscribers can still replay the full frame stream. A live-tunable flag
// rather than a constant, so an embedding server can shorten it (e.g. in
// tests) without a restart.
var GraceWindow = dflag.Flag("bees.grace-window", dflag.New(1800*time.Second,
	"How long a finished run's data stays available before being cleaned up"))

// Config holds the per-run knobs the controller reads: number of virtual
// users, total run duration, and the sampler's tick interval.
type Config struct {
	Users           int
	Duration        time.Duration
	Interval        time.Duration
	TimeoutOverride *time.Duration
	// CPU feeds the sampler's "system" table; nil means no CPU reading
	// (reported as 0).
	CPU cpuload.ProcessSampler
}

func (c *Config) normalize() {
	if c.Users <= 0 {
		c.Users = defaultUsers
	}
	if c.Interval <= 0 {
		c.Interval = defaultCollectorInterval
	}
}

func coldStartTime(duration time.Duration) time.Duration {
	third := duration / 3
	if third < maxColdStartTime {
		return third
	}
	return maxColdStartTime
}
