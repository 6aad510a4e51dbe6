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
	"fmt"
	"sync"
	"time"

	"fortio.org/log"

	"github.com/fortio/bees/latch"
	"github.com/fortio/bees/sampler"
	"github.com/fortio/bees/vuser"
)

// runController is spawned once per run by Registry.Start: spawn the
// collector and the virtual users, run the duration countdown (itself
// pausable), set Stopping once the duration elapses normally, wait for
// every task to wind down, sleep the grace window, then signal Done().
func runController(ctx context.Context, h *RunHandle) {
	defer close(h.done)

	cold := coldStartTime(h.Config.Duration)
	n := h.Config.Users

	var wg sync.WaitGroup
	wg.Add(1 + n)

	h.Tasks.Add(fmt.Sprintf("collector-%s", h.ID))
	go func() {
		defer wg.Done()
		s := &sampler.Sampler{
			Interval: h.Config.Interval,
			Registry: h.Registry,
			EventLog: h.EventLog,
			Running:  h.Running,
			Stopping: h.Stopping,
			CPU:      h.Config.CPU,
		}
		s.Run(ctx)
	}()

	for i := 0; i < n; i++ {
		delay := time.Duration(0)
		if n > 0 {
			delay = cold / time.Duration(n) * time.Duration(i)
		}
		h.Tasks.Add(fmt.Sprintf("user-%s-%d", h.ID, i))
		t := &vuser.Task{
			ID:              i,
			Template:        h.Template,
			Registry:        h.Registry,
			Running:         h.Running,
			Stopping:        h.Stopping,
			StartDelay:      delay,
			TimeoutOverride: h.Config.TimeoutOverride,
		}
		go func() {
			defer wg.Done()
			t.Run(ctx)
		}()
	}

	if h.Config.Duration <= 0 {
		// a zero-duration run stops before any virtual user can slip a
		// request in: tasks check Stopping first, and a pause-wait woken by
		// Running below re-checks Stopping before resuming.
		h.Stopping.Set()
	}
	h.Running.Set()

	remaining := h.Config.Duration
	ranOut := true
	for remaining > 0 {
		if h.Stopping.IsSet() {
			ranOut = false
			break
		}
		if !h.Running.IsSet() {
			if err := latch.WaitEither(ctx, h.Running, h.Stopping); err != nil {
				ranOut = false
				break
			}
			continue
		}
		select {
		case <-time.After(time.Second):
			remaining -= time.Second
		case <-ctx.Done():
			ranOut = false
		}
		if ctx.Err() != nil {
			ranOut = false
			break
		}
	}
	if ranOut {
		h.Stopping.Set()
	}

	joinDeadline := h.Config.TimeoutOverride
	timeout := 10*time.Second + time.Second
	if joinDeadline != nil {
		timeout = *joinDeadline + time.Second
	} else if h.Template.TimeoutSeconds != nil {
		timeout = time.Duration(*h.Template.TimeoutSeconds)*time.Second + time.Second
	}

	joined := make(chan struct{})
	go func() {
		wg.Wait()
		close(joined)
	}()
	select {
	case <-joined:
	case <-time.After(timeout):
		log.Warnf("runner %s: tasks did not join within %v", h.ID, timeout)
	}

	select {
	case <-time.After(GraceWindow.Get()):
	case <-ctx.Done():
	}
}
