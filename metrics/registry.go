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

// Package metrics implements the per-run metric registry (counters and a
// latency histogram) used to drive the Bees benchmark chart stream.
//
// It is an adaptation of fortio.org/fortio/stats (Counter/Histogram,
// bucket table and percentile interpolation) generalized from "one
// histogram per goroutine, merged once at the end of a run" to "one shared
// registry, written to concurrently by many virtual users for the whole
// run". See histogram.go for the bucketing/percentile code and DESIGN.md
// for the full grounding note.
package metrics

import (
	"strings"
	"sync"
	"sync/atomic"
)

// Fixed counter names every run starts with.
const (
	User          = "user"
	RequestTotal  = "request.total"
	RequestError  = "request.error"
	RequestActive = "request.active"

	// Latency is the name of the (sole) histogram.
	Latency = "response.latency"

	// ErrorPrefix namespaces dynamically created error.<Kind>.<abstract> counters.
	ErrorPrefix = "error."
)

type counterMap = map[string]*atomic.Int64

// Registry is a fixed set of named, signed counters plus one latency
// histogram, scoped to a single benchmark run. It is safe for concurrent
// use by many virtual users and one sampler.
//
// Reset doesn't replace the Registry object (a RunHandle keeps a single,
// long-lived pointer to it); it swaps the internal counters map and clears
// the histogram in place, so a virtual user that already holds a reference
// to a counter obtained just before Reset either increments the detached
// (about to be garbage collected) old counter -- a tolerated off-by-one --
// or, on its next call, the fresh one.
type Registry struct {
	mu       sync.Mutex // guards counter-creation and Reset swaps
	counters atomic.Pointer[counterMap]
	hist     *histogram
}

// New creates a Registry with the fixed counters pre-created at zero.
func New() *Registry {
	r := &Registry{hist: newHistogram()}
	m := freshCounters()
	r.counters.Store(&m)
	return r
}

func freshCounters() counterMap {
	return counterMap{
		User:          new(atomic.Int64),
		RequestTotal:  new(atomic.Int64),
		RequestError:  new(atomic.Int64),
		RequestActive: new(atomic.Int64),
	}
}

// counter returns the atomic counter for name, creating it if this is the
// first time it's been referenced (e.g. a new error.<Kind>.<abstract> bucket).
func (r *Registry) counter(name string) *atomic.Int64 {
	m := r.counters.Load()
	if c, ok := (*m)[name]; ok {
		return c
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m = r.counters.Load()
	if c, ok := (*m)[name]; ok {
		return c
	}
	nm := make(counterMap, len(*m)+1)
	for k, v := range *m {
		nm[k] = v
	}
	c := new(atomic.Int64)
	nm[name] = c
	r.counters.Store(&nm)
	return c
}

// Inc increments the named counter (creating it on demand) and returns its
// new value.
func (r *Registry) Inc(name string) int64 {
	return r.counter(name).Add(1)
}

// Dec decrements the named counter (user and request.active are the only
// ones expected to go down).
func (r *Registry) Dec(name string) int64 {
	return r.counter(name).Add(-1)
}

// Count returns the current value of the named counter without creating it.
func (r *Registry) Count(name string) int64 {
	m := r.counters.Load()
	if c, ok := (*m)[name]; ok {
		return c.Load()
	}
	return 0
}

// Observe records a latency sample into the run's single histogram.
func (r *Registry) Observe(value float64) {
	r.hist.observe(value)
}

// Snapshot returns count/mean/max/median/p99 of the latency histogram.
func (r *Registry) Snapshot() Snapshot {
	return r.hist.snapshot()
}

// NamedCount is one (name, count) pair as returned by Enumerate.
type NamedCount struct {
	Name  string
	Count int64
}

// Enumerate returns every counter whose name starts with prefix. Order is
// unspecified; callers that need a stable order (the sampler's error table)
// sort the result themselves.
func (r *Registry) Enumerate(prefix string) []NamedCount {
	m := r.counters.Load()
	res := make([]NamedCount, 0, len(*m))
	for k, v := range *m {
		if strings.HasPrefix(k, prefix) {
			res = append(res, NamedCount{Name: k, Count: v.Load()})
		}
	}
	return res
}

// Reset replaces the registry's live state with a freshly initialised one,
// in place (see the Registry doc comment for why this isn't a pointer swap
// of the Registry itself).
func (r *Registry) Reset() {
	r.mu.Lock()
	m := freshCounters()
	r.counters.Store(&m)
	r.mu.Unlock()
	r.hist.reset()
}
