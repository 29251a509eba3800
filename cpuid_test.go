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
	. "github.com/onsi/ginkgo/v2/dsl/core"
	. "github.com/onsi/ginkgo/v2/dsl/table"
	. "github.com/onsi/gomega"
	. "github.com/thediveo/success"
)

var _ = Describe("CPUID record source", func() {

	It("synthesizes a uniform hyperthreaded package", func() {
		records := Successful(uniformRecords(4, 2, 8))
		Expect(records).To(Equal([]Record{
			{Relationship: PackageBoundary, Mask: maskOf(0, 1, 2, 3, 4, 5, 6, 7)},
			coreRec(0, 1), coreRec(2, 3), coreRec(4, 5), coreRec(6, 7),
		}))
		topo := Successful(Compile(records))
		expectConsistent(topo)
		Expect(topo.Totals()).To(Equal(
			ProcTypeRow{All: 8, MainPerformance: 4, HyperthreadSibling: 4}))
		Expect(topo.IsHybrid()).To(BeFalse())
	})

	It("synthesizes single-threaded cores", func() {
		topo := Successful(Compile(Successful(uniformRecords(6, 1, 6))))
		expectConsistent(topo)
		Expect(topo.Totals()).To(Equal(ProcTypeRow{All: 6, MainPerformance: 6}))
	})

	It("splits many cores into processor groups surviving a dump", func() {
		records := Successful(uniformRecords(40, 2, 80))
		Expect(records[0].Mask).To(Equal(Set{^uint64(0), 0xffff}))
		Expect(records[33]).To(Equal(Record{
			Relationship: CoreBoundary, Group: 1, Mask: maskOf(0, 1),
		}))
		topo := Successful(Compile(Successful(DecodeRecords(Successful(EncodeRecords(records))))))
		expectConsistent(topo)
		Expect(topo.Processors()).To(Equal(80))
		Expect(topo.Cores()).To(Equal(40))
	})

	DescribeTable("reporting inconsistent counts as unavailable",
		func(physical, threads, logical int) {
			Expect(uniformRecords(physical, threads, logical)).Error().To(
				MatchError(ErrTopologyUnavailable))
		},
		Entry("nothing detected", 0, 0, 0),
		Entry("counts not multiplying up", 4, 2, 6),
		Entry("negative threads", 4, -1, -4),
		Entry("more threads than fit a group", 1, 65, 65),
	)

	It("either reports or refuses the host topology", func() {
		records, err := CPUIDSource{}.Records(CoreBoundary)
		if err != nil {
			Expect(err).To(MatchError(ErrTopologyUnavailable))
			return
		}
		for _, rec := range records {
			Expect(rec.Relationship).To(Equal(CoreBoundary))
		}
	})

})
