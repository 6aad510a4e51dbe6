// Copyright 2023 Fortio Authors
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

// Package promexport provides a minimal Prometheus-text exporter for a
// runner.Registry, the same shape as fortio's own metrics.Exporter
// (fd count, goroutine count, current/total run gauges) generalized from
// fortio's single global run map to an arbitrary *runner.Registry.
package promexport

import (
	"io"
	"net/http"
	"runtime"
	"strconv"

	"fortio.org/log"
	"fortio.org/scli"

	"github.com/fortio/bees/runner"
)

// Handler builds an http.HandlerFunc that exports process and registry-wide
// gauges for reg in Prometheus text format.
func Handler(reg *runner.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log.LogRequest(r, "metrics")
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, `# HELP bees_num_fd Number of open file descriptors
# TYPE bees_num_fd gauge
bees_num_fd `)
		_, _ = io.WriteString(w, strconv.Itoa(scli.NumFD()))

		runs := reg.List()
		var running int
		for _, h := range runs {
			if h.State() == "running" {
				running++
			}
		}
		_, _ = io.WriteString(w, `
# HELP bees_runs_active Number of currently tracked benchmark runs
# TYPE bees_runs_active gauge
bees_runs_active `)
		_, _ = io.WriteString(w, strconv.Itoa(len(runs)))
		_, _ = io.WriteString(w, `
# HELP bees_runs_running Number of runs currently in the running state
# TYPE bees_runs_running gauge
bees_runs_running `)
		_, _ = io.WriteString(w, strconv.Itoa(running))
		_, _ = io.WriteString(w, `
# HELP bees_goroutines Current number of goroutines
# TYPE bees_goroutines gauge
bees_goroutines `)
		_, _ = io.WriteString(w, strconv.Itoa(runtime.NumGoroutine()))
		_, _ = io.WriteString(w, "\n")
	}
}
