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

package main

import "fortio.org/version"

// longVersion is burned in from build info the same way fortio's own
// version package does it, just scoped to this module's path.
var longVersion = computeLongVersion()

func computeLongVersion() string {
	_, long, _ := version.FromBuildInfoPath("github.com/fortio/bees")
	return long
}
