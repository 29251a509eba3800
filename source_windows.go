//go:build windows && (amd64 || arm64)

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
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	modkernel32 = windows.NewLazySystemDLL("kernel32.dll")

	procGetLogicalProcessorInformationEx = modkernel32.NewProc("GetLogicalProcessorInformationEx")
)

// PlatformSource returns the topology record source of this host, querying
// GetLogicalProcessorInformationEx.
func PlatformSource() RecordSource {
	return NewBufferSource(queryLogicalProcessorInformationEx)
}

func queryLogicalProcessorInformationEx(filter Relationship, buf []byte) (int, error) {
	if err := procGetLogicalProcessorInformationEx.Find(); err != nil {
		return 0, err
	}
	length := uint32(len(buf))
	var bufptr uintptr
	if len(buf) > 0 {
		bufptr = uintptr(unsafe.Pointer(&buf[0]))
	}
	ok, _, err := procGetLogicalProcessorInformationEx.Call(
		uintptr(filter), bufptr, uintptr(unsafe.Pointer(&length)))
	if ok != 0 {
		return int(length), nil
	}
	if errors.Is(err, windows.ERROR_INSUFFICIENT_BUFFER) {
		return int(length), fmt.Errorf("%w: %w", ErrInsufficientBuffer, err)
	}
	return 0, err
}
