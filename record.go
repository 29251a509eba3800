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

// Relationship is the kind of a topology [Record]. The values match the
// LOGICAL_PROCESSOR_RELATIONSHIP of the Windows topology API.
type Relationship uint32

const (
	CoreBoundary    Relationship = 0 // a physical core
	NUMANode        Relationship = 1
	CacheBoundary   Relationship = 2 // logical processors sharing a cache
	PackageBoundary Relationship = 3 // a socket
	GroupRelation   Relationship = 4

	// AllRelationships is only a query filter and never a record kind.
	AllRelationships Relationship = 0xffff
)

func (r Relationship) String() string {
	switch r {
	case CoreBoundary:
		return "core"
	case NUMANode:
		return "numa"
	case CacheBoundary:
		return "cache"
	case PackageBoundary:
		return "package"
	case GroupRelation:
		return "group"
	case AllRelationships:
		return "all"
	}
	return fmt.Sprintf("Relationship(%d)", uint32(r))
}

// Matches reports whether a record of this kind passes the query filter.
func (r Relationship) Matches(filter Relationship) bool {
	return filter == AllRelationships || filter == r
}

// Record is a single topology record. Mask holds logical processor indices
// relative to the current package's numbering.
type Record struct {
	Relationship    Relationship
	CacheLevel      uint8 // only for CacheBoundary
	EfficiencyClass uint8 // only for CoreBoundary and PackageBoundary
	Group           uint16
	Mask            Set
}

func (r Record) String() string {
	if r.Relationship == CacheBoundary {
		return fmt.Sprintf("cache L%d [%s]", r.CacheLevel, r.Mask)
	}
	return fmt.Sprintf("%s [%s]", r.Relationship, r.Mask)
}
