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

import "fmt"

// CoreType classifies a logical processor. It also indexes the columns of a
// [ProcTypeRow].
type CoreType int

const (
	// Unclassified marks a CPU mapping row whose type has not been resolved
	// (yet). It never shows up in a finished [Topology].
	Unclassified CoreType = -1
	// All is the virtual aggregate column of the processor type table; it
	// is never assigned to a logical processor.
	All CoreType = iota - 1
	// MainPerformance is a performance core, or the main thread of a
	// hyperthreaded performance core.
	MainPerformance
	// Efficient is a core belonging to an efficient core cluster sharing a
	// single L2 cache slice.
	Efficient
	// HyperthreadSibling is the second logical processor of a hyperthreaded
	// physical core.
	HyperthreadSibling
)

// NumProcTypeColumns is the width of a [ProcTypeRow].
const NumProcTypeColumns = int(HyperthreadSibling) + 1

// String returns the name of the core type.
func (t CoreType) String() string {
	switch t {
	case Unclassified:
		return "unclassified"
	case All:
		return "all"
	case MainPerformance:
		return "performance"
	case Efficient:
		return "efficient"
	case HyperthreadSibling:
		return "hyperthread"
	}
	return fmt.Sprintf("CoreType(%d)", int(t))
}

// ProcTypeRow counts logical processors per [CoreType], with the [All]
// column holding the total.
type ProcTypeRow [NumProcTypeColumns]int

// add returns the element-wise sum of both rows.
func (r ProcTypeRow) add(other ProcTypeRow) ProcTypeRow {
	for col := range r {
		r[col] += other[col]
	}
	return r
}

// CPUMappingRow describes a single logical processor.
//
// ProcessorID numbers the logical processors in the order their records
// enumerate them. On Windows this matches the group-relative processor
// numbering; on Linux it generally differs from the kernel CPU numbers, as
// hyperthread siblings get consecutive ids. [SysfsSource.CPUNumbers] maps
// processor ids back to kernel CPU numbers.
type CPUMappingRow struct {
	ProcessorID int // global, 0-based, in discovery order
	SocketID    int
	CoreID      int // physical core, in discovery order
	CoreType    CoreType
	GroupID     int // scheduling group; -1 while unclassified
}
