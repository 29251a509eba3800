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
	"bytes"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	. "github.com/thediveo/success"
)

var _ = Describe("task affinities", func() {

	It("gets this process's affinity, consistent with /proc/self/status data", func() {
		Expect(wordbytesize).To(Equal(uint64(64 /* bits in uint64 */ / 8 /* bits/byte*/)))
		cpulist := Successful(Affinity(os.Getpid())).List()
		Expect(cpulist).NotTo(BeEmpty())
		Expect(setsize.Load()).NotTo(BeZero())

		var prefix = []byte("Cpus_allowed_list:\t")
		var allowedList List
		for _, line := range bytes.Split(Successful(os.ReadFile("/proc/self/status")), []byte("\n")) {
			if !bytes.HasPrefix(line, prefix) {
				continue
			}
			allowedList = Successful(NewList(line[len(prefix):]))
		}
		Expect(cpulist).To(Equal(allowedList))
	})

	It("counts the logical processors available", func() {
		Expect(FlatProcessorCount()).To(Equal(Successful(Affinity(0)).Count()))
	})

	It("decodes this host's topology consistently", func() {
		topo, err := Discover()
		if err != nil {
			Skip("no topology information: " + err.Error())
		}
		expectConsistent(topo)
		Expect(topo.Processors()).To(BeNumerically(">=", FlatProcessorCount()))
	})

})
