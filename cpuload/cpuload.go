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

// Package cpuload defines the seam the sampler uses to read the current
// process's CPU usage for the "system" plot. Real sampling is OS specific
// and left to the embedder: implement ProcessSampler with whatever
// mechanism is available and pass it to the sampler.
package cpuload

// ProcessSampler reports the current process's CPU utilization as a
// percentage of one core (100.0 means one core fully saturated).
type ProcessSampler interface {
	CPUPercent() float64
}

// NoopSampler always reports zero. It's the default used when a sampler
// isn't given a real ProcessSampler, which keeps the "system" plot frame
// well-formed without pulling in a platform-specific dependency here.
type NoopSampler struct{}

func (NoopSampler) CPUPercent() float64 { return 0 }
