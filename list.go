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
	"errors"
	"strconv"
	"strings"

	"github.com/thediveo/faf"
)

// List is a list of logical processor [from...to] ranges, in the format used
// by the Linux kernel in sysfs and procfs, such as “0-3,8,10-11”.
type List [][2]uint

// String returns the list in textual format, with the individual ranges
// “x-y” separated by “,” and single processor ranges collapsed into “x”.
func (l List) String() string {
	var b strings.Builder
	for idx, cpurange := range l {
		if idx > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatUint(uint64(cpurange[0]), 10))
		if cpurange[0] != cpurange[1] {
			b.WriteByte('-')
			b.WriteString(strconv.FormatUint(uint64(cpurange[1]), 10))
		}
	}
	return b.String()
}

// NewList returns a new List for the given textual list format. A trailing
// newline, as found in sysfs attribute files, is accepted. If the text is
// malformed then an error is returned instead.
func NewList(b []byte) (List, error) {
	bs := faf.NewBytestring(trimNewline(b))
	l := List{}
	for !bs.EOL() {
		from, ok := bs.Uint64()
		if !ok {
			return nil, errors.New("expected unsigned integer number")
		}
		to := from
		ranged := false
		ch, ok := bs.Next()
		if ok && ch == '-' {
			ranged = true
			if to, ok = bs.Uint64(); !ok {
				return nil, errors.New("expected unsigned integer number")
			}
			if to < from {
				return nil, errors.New("invalid descending range")
			}
			ch, ok = bs.Next()
		}
		l = append(l, [2]uint{uint(from), uint(to)})
		if !ok {
			break
		}
		if ch != ',' {
			if ranged {
				return nil, errors.New("expected ','")
			}
			return nil, errors.New("expected '-' or ','")
		}
	}
	return l, nil
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}

// Set returns the [Set] corresponding with this list.
func (l List) Set() Set {
	if len(l) == 0 {
		return Set{}
	}
	// Do last range first to allocate only once.
	var s Set
	for i := range l {
		r := l[len(l)-i-1]
		s = s.AddRange(r[0], r[1])
	}
	return s
}

// CPUs returns the individual logical processor numbers in this list, in
// ascending order for a canonical list.
func (l List) CPUs() []uint {
	var cpus []uint
	for _, r := range l {
		for cpu := r[0]; cpu <= r[1]; cpu++ {
			cpus = append(cpus, cpu)
		}
	}
	return cpus
}
