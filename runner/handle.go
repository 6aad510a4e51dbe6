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
	"time"

	"fortio.org/sets"

	"github.com/fortio/bees/curltemplate"
	"github.com/fortio/bees/eventlog"
	"github.com/fortio/bees/latch"
	"github.com/fortio/bees/metrics"
)

// RunHandle is everything the registry tracks about one benchmark run.
// Fields are safe for concurrent reads; mutation happens only through the
// controller goroutine and the Latch/Registry/EventLog's own
// synchronization.
type RunHandle struct {
	ID       string
	Config   Config
	Template *curltemplate.RequestTemplate

	Registry *metrics.Registry
	EventLog *eventlog.EventLog

	Running  *latch.Latch
	Stopping *latch.Latch

	// Tasks names every goroutine the controller has spawned for this run
	// (the collector plus one per virtual user).
	Tasks sets.Set[string]

	StartedAt time.Time
	cancel    func()
	done      chan struct{}
}

// State reports "running", "paused" or "stopped": stopping is terminal and
// beats running, which beats paused.
func (h *RunHandle) State() string {
	switch {
	case h.Stopping.IsSet():
		return "stopped"
	case h.Running.IsSet():
		return "running"
	default:
		return "paused"
	}
}

// Done returns a channel closed once the controller goroutine has finished
// its grace-window wait and the run is eligible for removal from the
// Registry.
func (h *RunHandle) Done() <-chan struct{} {
	return h.done
}
