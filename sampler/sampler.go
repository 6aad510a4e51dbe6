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

// Package sampler implements the periodic tick that turns a metrics.Registry
// into the chart Frames an eventlog.EventLog exposes to readers: two
// throughput traces, three latency traces, one system table and one error
// table per interval. On noticing a pause it resets the Registry, so the
// next reading (and the charts) restart from zero rather than the stale
// totals.
package sampler

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/fortio/bees/cpuload"
	"github.com/fortio/bees/eventlog"
	"github.com/fortio/bees/latch"
	"github.com/fortio/bees/metrics"
)

// XYSeries is the shape of one throughput/latency Frame's Data: a single
// new (x, y) point to extend the existing trace with.
type XYSeries struct {
	X [][]float64 `json:"x"`
	Y [][]float64 `json:"y"`
}

// Sampler periodically snapshots a Registry into Frames appended to an
// EventLog.
type Sampler struct {
	Interval time.Duration
	Registry *metrics.Registry
	EventLog *eventlog.EventLog
	Running  *latch.Latch
	Stopping *latch.Latch
	CPU      cpuload.ProcessSampler

	lastTotal  int64
	lastErrors int64
}

// status derives the display label: stopping beats running beats paused.
func (s *Sampler) status() string {
	switch {
	case s.Stopping.IsSet():
		return "stopped"
	case s.Running.IsSet():
		return "running"
	default:
		return "paused"
	}
}

// Run ticks every s.Interval until Stopping is set or ctx is done, appending
// an eventlog.CloseFrame as its very last act either way. A panic inside the
// loop is reported as a terminal error frame before the close.
func (s *Sampler) Run(ctx context.Context) {
	if s.CPU == nil {
		s.CPU = cpuload.NoopSampler{}
	}
	start := time.Now()
	defer s.EventLog.Append(eventlog.CloseFrame)
	defer func() {
		if r := recover(); r != nil {
			s.EventLog.Append(eventlog.Frame{
				Plot: "error",
				Data: [][]any{
					{fmt.Sprintf("Bees internal error: %T", r)},
					{fmt.Sprint(r)},
					{1},
				},
				Trace:     0,
				Operation: "replace",
			})
		}
	}()

	for {
		if !s.Running.IsSet() && !s.Stopping.IsSet() {
			s.Registry.Reset()
			s.lastTotal = 0
			s.lastErrors = 0
		}

		// elapsed run time, truncated to centiseconds for stable x values
		now := math.Trunc(time.Since(start).Seconds()*100) / 100
		s.appendThroughput(now)
		s.appendLatency(now)
		s.appendSystem(now)
		s.appendErrors()

		if s.Stopping.IsSet() {
			return
		}
		if !s.Running.IsSet() {
			if err := latch.WaitEither(ctx, s.Running, s.Stopping); err != nil {
				return
			}
			continue
		}
		select {
		case <-time.After(s.Interval):
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sampler) appendThroughput(now float64) {
	total := s.Registry.Count(metrics.RequestTotal)
	rate := float64(total-s.lastTotal) / s.Interval.Seconds()
	s.EventLog.Append(eventlog.Frame{
		Plot:      "throughput",
		Data:      XYSeries{X: [][]float64{{now}}, Y: [][]float64{{rate}}},
		Trace:     0,
		Operation: "extend",
	})
	s.lastTotal = total

	errTotal := s.Registry.Count(metrics.RequestError)
	errRate := float64(errTotal-s.lastErrors) / s.Interval.Seconds()
	s.EventLog.Append(eventlog.Frame{
		Plot:      "throughput",
		Data:      XYSeries{X: [][]float64{{now}}, Y: [][]float64{{errRate}}},
		Trace:     1,
		Operation: "extend",
	})
	s.lastErrors = errTotal
}

func (s *Sampler) appendLatency(now float64) {
	if s.Registry.Count(metrics.RequestTotal) == 0 {
		return
	}
	snap := s.Registry.Snapshot()
	for trace, y := range []float64{snap.Max, snap.P99, snap.Median} {
		s.EventLog.Append(eventlog.Frame{
			Plot:      "latency",
			Data:      XYSeries{X: [][]float64{{now}}, Y: [][]float64{{y}}},
			Trace:     trace,
			Operation: "extend",
		})
	}
}

func (s *Sampler) appendSystem(_ float64) {
	snap := s.Registry.Snapshot()
	s.EventLog.Append(eventlog.Frame{
		Plot: "system",
		Data: [][]any{
			{s.status()},
			{s.Registry.Count(metrics.User)},
			{s.Registry.Count(metrics.RequestTotal)},
			{s.Registry.Count(metrics.RequestError)},
			{snap.Mean},
			{fmt.Sprintf("%.1f%%", s.CPU.CPUPercent())},
		},
		Trace:     0,
		Operation: "replace",
	})
}

type errorInfo struct {
	kind     string
	abstract string
	count    int64
}

func (s *Sampler) appendErrors() {
	counters := s.Registry.Enumerate(metrics.ErrorPrefix)
	infos := make([]errorInfo, 0, len(counters))
	for _, c := range counters {
		rest := strings.TrimPrefix(c.Name, metrics.ErrorPrefix)
		kind, abstract, _ := strings.Cut(rest, ".")
		infos = append(infos, errorInfo{kind: kind, abstract: abstract, count: c.Count})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].count > infos[j].count })

	kinds := make([]string, len(infos))
	abstracts := make([]string, len(infos))
	counts := make([]int64, len(infos))
	for i, info := range infos {
		kinds[i] = info.kind
		abstracts[i] = info.abstract
		counts[i] = info.count
	}
	s.EventLog.Append(eventlog.Frame{
		Plot:      "error",
		Data:      [][]any{toAnySlice(kinds), toAnySlice(abstracts), toAnySlice(counts)},
		Trace:     0,
		Operation: "replace",
	})
}

func toAnySlice[T any](in []T) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}
