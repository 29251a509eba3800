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
	"math/bits"
	"slices"
)

// Set is a logical processor bit string, such as the affinity masks found in
// topology records or returned by [sched_getaffinity(2)]. Bit n of word n/64
// represents logical processor n.
//
// [sched_getaffinity(2)]: https://man7.org/linux/man-pages/man2/sched_getaffinity.2.html
type Set []uint64

const bitsperword = 64

func setBitIndex(cpu uint) int {
	return int(cpu / bitsperword)
}

func setBitMask(cpu uint) uint64 {
	return uint64(1) << (cpu % bitsperword)
}

// IsSet reports whether cpu is in this set.
func (s Set) IsSet(cpu uint) bool {
	if cpu >= uint(len(s))*bitsperword {
		return false
	}
	return s[setBitIndex(cpu)]&setBitMask(cpu) != 0
}

// AddRange adds the logical processors from the specified range, returning
// an updated Set. This updated Set may or may not be the original Set.
func (s Set) AddRange(from, to uint) Set {
	if from > to {
		panic(fmt.Sprintf("invalid range %d-%d", from, to))
	}
	if to >= uint(len(s))*bitsperword {
		s = slices.Grow(s, setBitIndex(to)-len(s)+1)
		s = s[:setBitIndex(to)+1]
	}
	for cpu := from; cpu <= to; cpu++ {
		s[setBitIndex(cpu)] |= setBitMask(cpu)
	}
	return s
}

// Count returns the number of logical processors in this set.
func (s Set) Count() int {
	n := 0
	for _, word := range s {
		n += bits.OnesCount64(word)
	}
	return n
}

// Indices returns the positions of all set bits in ascending order.
//
// Instead of testing bit by bit, it repeatedly strips off the lowest set bit
// of each word, so sparse and all-zero words cost next to nothing.
func (s Set) Indices() []int {
	indices := make([]int, 0, s.Count())
	for wordidx, word := range s {
		for word != 0 {
			indices = append(indices, wordidx*bitsperword+bits.TrailingZeros64(word))
			word &= word - 1
		}
	}
	return indices
}

// List returns the list of ranges corresponding with this Set.
func (s Set) List() List {
	l := List{}
	for _, cpu := range s.Indices() {
		if n := len(l); n > 0 && l[n-1][1]+1 == uint(cpu) {
			l[n-1][1] = uint(cpu)
			continue
		}
		l = append(l, [2]uint{uint(cpu), uint(cpu)})
	}
	return l
}

// String returns the logical processors in this set in textual list format,
// such as “0-3,8”.
func (s Set) String() string {
	return s.List().String()
}
