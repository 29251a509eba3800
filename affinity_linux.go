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
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// setsize caches the kernel's affinity mask size in uint64 words; it only
// ever grows. This usually is smaller than the fixed-size [unix.CPUSet] used
// by [unix.SchedGetaffinity].
var setsize atomic.Uint64

var wordbytesize = uint64(unsafe.Sizeof(Set{0}[0]))

func init() {
	setsize.Store(1)
}

// Affinity returns the affinity Set of the task with the passed TID. If tid
// is zero, the affinity of the calling thread is returned.
//
// The mask size is discovered dynamically by doubling it as long as the
// kernel rejects it with EINVAL.
func Affinity(tid int) (Set, error) {
	setlenStart := setsize.Load()
	setlen := setlenStart
	for {
		set := make(Set, setlen)
		// SYS_SCHED_GETAFFINITY does not block, so RawSyscall is fine.
		_, _, e := unix.RawSyscall(unix.SYS_SCHED_GETAFFINITY,
			uintptr(tid), uintptr(setlen*wordbytesize), uintptr(unsafe.Pointer(&set[0])))
		if e != 0 {
			if e == unix.EINVAL {
				setlen *= 2
				continue
			}
			return nil, e
		}
		for !setsize.CompareAndSwap(setlenStart, setlen) {
			setlenStart = setsize.Load()
			if setlenStart >= setlen {
				break
			}
		}
		return set, nil
	}
}

// FlatProcessorCount returns the number of logical processors the calling
// task may run on, falling back to [runtime.NumCPU].
func FlatProcessorCount() int {
	set, err := Affinity(0)
	if err != nil {
		return runtime.NumCPU()
	}
	if n := set.Count(); n > 0 {
		return n
	}
	return runtime.NumCPU()
}
