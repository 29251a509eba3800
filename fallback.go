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

// Constraints restrict the logical processors a scheduler may use.
type Constraints struct {
	CoreType          CoreType // All for any core type
	MaxThreadsPerCore int      // 0 for no limit
}

// Arena is the scheduling layer's view on available concurrency, such as a
// task arena. [Topology] implements it.
type Arena interface {
	// CoreTypes returns the distinct core types, from least to most
	// performant.
	CoreTypes() []CoreType
	// DefaultConcurrency returns the concurrency available under the
	// constraints.
	DefaultConcurrency(Constraints) int
}

// CoreCount returns a coarse number of physical cores when no compiled
// topology is wanted or available. It counts the core records from src (the
// platform source if nil). If bigCoresOnly is set and the arena knows more
// than one core type, it instead asks the arena for the concurrency of the
// most performant core type with one thread per core. If the topology
// cannot be queried, it returns [FlatProcessorCount].
func CoreCount(src RecordSource, bigCoresOnly bool, arena Arena) int {
	if src == nil {
		src = PlatformSource()
	}
	records, err := src.Records(CoreBoundary)
	if err != nil || len(records) == 0 {
		return FlatProcessorCount()
	}
	cores := len(records)
	if bigCoresOnly && arena != nil {
		if types := arena.CoreTypes(); len(types) > 1 {
			cores = arena.DefaultConcurrency(Constraints{
				CoreType:          types[len(types)-1],
				MaxThreadsPerCore: 1,
			})
		}
	}
	return cores
}
