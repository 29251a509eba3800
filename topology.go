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

import "slices"

// Topology is the compiled processor topology of a host. It is an immutable
// snapshot: all accessors return copies, so a Topology can be shared between
// goroutines without locking.
type Topology struct {
	processors int
	sockets    int
	cores      int
	procTypes  []ProcTypeRow
	mapping    []CPUMappingRow
}

var _ Arena = (*Topology)(nil)

// Processors returns the total number of logical processors.
func (t *Topology) Processors() int { return t.processors }

// Sockets returns the number of sockets (packages).
func (t *Topology) Sockets() int { return t.sockets }

// Cores returns the number of physical cores.
func (t *Topology) Cores() int { return t.cores }

// ProcTypeTable returns the processor type table. Row 0 is the total over
// all sockets; on multi-socket hosts the per-socket rows follow in socket
// order.
func (t *Topology) ProcTypeTable() []ProcTypeRow {
	return slices.Clone(t.procTypes)
}

// Totals returns the processor type counts over all sockets.
func (t *Topology) Totals() ProcTypeRow {
	return t.procTypes[0]
}

// CPUMapping returns the CPU mapping table, ordered by processor id.
func (t *Topology) CPUMapping() []CPUMappingRow {
	return slices.Clone(t.mapping)
}

// IsHybrid reports whether the host has both performance and efficient
// cores.
func (t *Topology) IsHybrid() bool {
	totals := t.Totals()
	return totals[MainPerformance] > 0 && totals[Efficient] > 0
}

// CoreTypes returns the core types present, from least to most performant:
// [Efficient] before [MainPerformance]. Hyperthread siblings belong to their
// performance cores and thus are no core type of their own.
func (t *Topology) CoreTypes() []CoreType {
	totals := t.Totals()
	var types []CoreType
	for _, ct := range []CoreType{Efficient, MainPerformance} {
		if totals[ct] > 0 {
			types = append(types, ct)
		}
	}
	return types
}

// DefaultConcurrency returns the number of logical processors available
// under the constraints: only cores of the constrained core type (any type
// for [All]), and at most MaxThreadsPerCore logical processors per physical
// core (no limit if zero or negative).
func (t *Topology) DefaultConcurrency(c Constraints) int {
	perCore := map[int]int{}
	n := 0
	for _, row := range t.mapping {
		coreType := row.CoreType
		if coreType == HyperthreadSibling {
			coreType = MainPerformance
		}
		if c.CoreType != All && coreType != c.CoreType {
			continue
		}
		if c.MaxThreadsPerCore > 0 && perCore[row.CoreID] >= c.MaxThreadsPerCore {
			continue
		}
		perCore[row.CoreID]++
		n++
	}
	return n
}
