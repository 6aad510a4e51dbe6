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

package runner

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"fortio.org/log"
	"fortio.org/sets"

	"github.com/fortio/bees/curltemplate"
	"github.com/fortio/bees/eventlog"
	"github.com/fortio/bees/latch"
	"github.com/fortio/bees/metrics"
)

// Registry tracks every run started against this process, keyed by run ID
// (a v4 UUID string): one small map behind one mutex, same shape as
// rapi.StatusMap in fortio.
type Registry struct {
	mu   sync.Mutex
	runs map[string]*RunHandle
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{runs: make(map[string]*RunHandle)}
}

// Start mints a fresh run ID and starts a run with it. See StartWithID.
func (r *Registry) Start(ctx context.Context, code string, cfg Config) (*RunHandle, error) {
	h, _, err := r.StartWithID(ctx, uuid.NewString(), code, cfg)
	return h, err
}

// StartWithID parses code as a cURL command, creates a new RunHandle under
// the given id and spawns its controller goroutine (collector + virtual
// users + duration/grace lifecycle), then returns the handle. The run
// begins in the "running" state immediately. If id is already tracked the
// existing handle is returned with started=false and nothing else happens.
func (r *Registry) StartWithID(ctx context.Context, id, code string, cfg Config) (*RunHandle, bool, error) {
	r.mu.Lock()
	if h, ok := r.runs[id]; ok {
		r.mu.Unlock()
		return h, false, nil
	}
	r.mu.Unlock()

	tmpl, err := curltemplate.Parse(code)
	if err != nil {
		return nil, false, err
	}
	cfg.normalize()

	runCtx, cancel := context.WithCancel(ctx)
	h := &RunHandle{
		ID:        id,
		Config:    cfg,
		Template:  tmpl,
		Registry:  metrics.New(),
		EventLog:  eventlog.New(),
		Running:   latch.New(false),
		Stopping:  latch.New(false),
		Tasks:     sets.New[string](),
		StartedAt: time.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	r.mu.Lock()
	if prev, ok := r.runs[id]; ok {
		// lost a start race on the same id
		r.mu.Unlock()
		cancel()
		return prev, false, nil
	}
	r.runs[id] = h
	r.mu.Unlock()

	go func() {
		runController(runCtx, h)
		log.Infof("run %s finished its grace window, removing", id)
		r.remove(id)
	}()
	// return only once the controller has set Running (or Stopping), so a
	// Pause issued right after Start can't be overridden by it.
	_ = latch.WaitEither(runCtx, h.Running, h.Stopping)

	return h, true, nil
}

func (r *Registry) remove(id string) {
	r.mu.Lock()
	h, ok := r.runs[id]
	delete(r.runs, id)
	r.mu.Unlock()
	if ok {
		h.cancel()
	}
}

// Get returns the handle for id, or false if no such run exists (or it has
// already been cleaned up past its grace window).
func (r *Registry) Get(id string) (*RunHandle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.runs[id]
	return h, ok
}

// List returns a snapshot of every tracked RunHandle.
func (r *Registry) List() []*RunHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*RunHandle, 0, len(r.runs))
	for _, h := range r.runs {
		out = append(out, h)
	}
	return out
}

// Stop sets the run's Stopping latch and reports the resulting state.
// Stopping works while paused too: every task waits on both latches. An
// unknown (or already cleaned up) id is a no-op reported as "stopped".
func (r *Registry) Stop(id string) string {
	h, ok := r.Get(id)
	if !ok {
		return "stopped"
	}
	h.Stopping.Set()
	return "stopped"
}

// Pause clears the run's Running latch and reports the resulting state.
// Pausing a stopped or unknown run is a no-op reported as "stopped".
func (r *Registry) Pause(id string) string {
	h, ok := r.Get(id)
	if !ok || h.Stopping.IsSet() {
		return "stopped"
	}
	h.Running.Clear()
	return "paused"
}

// Resume sets the run's Running latch and reports the resulting state.
// Resuming a stopped or unknown run is a no-op reported as "stopped".
func (r *Registry) Resume(id string) string {
	h, ok := r.Get(id)
	if !ok || h.Stopping.IsSet() {
		return "stopped"
	}
	h.Running.Set()
	return "running"
}
