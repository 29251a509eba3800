// Copyright 2024 Harald Albrecht.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not
// use this file except in compliance with the License. You may obtain a copy
// of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
// License for the specific language governing permissions and limitations
// under the License.

package cputopo

import (
	"runtime"

	"golang.org/x/sys/windows"
)

// FlatProcessorCount returns the number of active logical processors across
// all processor groups. [runtime.NumCPU] only covers a single processor
// group of up to 64 logical processors, so it merely serves as fallback.
func FlatProcessorCount() int {
	if n := windows.GetActiveProcessorCount(windows.ALL_PROCESSOR_GROUPS); n != 0 {
		return int(n)
	}
	return runtime.NumCPU()
}
