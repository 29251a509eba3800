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
	"fmt"

	"github.com/klauspost/cpuid/v2"
)

// CPUIDSource synthesizes topology records from the CPUID instruction on
// platforms lacking an operating system topology query. It only describes
// uniform single-package systems: on hybrid CPUs CPUID cannot tell which
// core type a particular logical processor belongs to, so the topology is
// reported as unavailable instead.
type CPUIDSource struct{}

var _ RecordSource = CPUIDSource{}

// Records returns the topology records matching the filter.
func (CPUIDSource) Records(filter Relationship) ([]Record, error) {
	if cpuid.CPU.Supports(cpuid.HYBRID_CPU) {
		return nil, fmt.Errorf("%w: CPUID cannot locate the core types of hybrid %s",
			ErrTopologyUnavailable, cpuid.CPU.BrandName)
	}
	records, err := uniformRecords(cpuid.CPU.PhysicalCores, cpuid.CPU.ThreadsPerCore, cpuid.CPU.LogicalCores)
	if err != nil {
		return nil, err
	}
	return filterRecords(records, filter), nil
}

// uniformRecords returns the records of a single package with the specified
// number of identical cores, split into processor groups of 64 logical
// processors. Counts that do not multiply up report the topology as
// unavailable.
func uniformRecords(physical, threadsPerCore, logical int) ([]Record, error) {
	if physical <= 0 || threadsPerCore <= 0 || threadsPerCore > bitsperword ||
		physical*threadsPerCore != logical {
		return nil, fmt.Errorf("%w: inconsistent CPUID counts: %d cores, %d threads per core, %d logical processors",
			ErrTopologyUnavailable, physical, threadsPerCore, logical)
	}
	threads := uint(threadsPerCore)
	var pkgmask Set
	var cores []Record
	var group uint16
	var bit uint
	for range physical {
		if bit+threads > bitsperword {
			group++
			bit = 0
		}
		cores = append(cores, Record{
			Relationship: CoreBoundary,
			Group:        group,
			Mask:         Set{}.AddRange(bit, bit+threads-1),
		})
		from := uint(group)*bitsperword + bit
		pkgmask = pkgmask.AddRange(from, from+threads-1)
		bit += threads
	}
	return append([]Record{{Relationship: PackageBoundary, Mask: pkgmask}}, cores...), nil
}
