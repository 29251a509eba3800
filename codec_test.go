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
	"encoding/binary"

	. "github.com/onsi/ginkgo/v2/dsl/core"
	. "github.com/onsi/ginkgo/v2/dsl/table"
	. "github.com/onsi/gomega"
	. "github.com/thediveo/success"
)

// rawRecord returns a raw record of the specified kind and size with a
// single group mask.
func rawRecord(rel Relationship, size int) []byte {
	raw := make([]byte, size)
	binary.LittleEndian.PutUint32(raw, uint32(rel))
	binary.LittleEndian.PutUint32(raw[4:], uint32(size))
	return raw
}

var _ = Describe("raw topology records", func() {

	It("decodes what it encodes", func() {
		records := []Record{
			{Relationship: PackageBoundary, Mask: Set{0xff}},
			{Relationship: CoreBoundary, EfficiencyClass: 1, Mask: Set{0x3}},
			{Relationship: CacheBoundary, CacheLevel: 2, Mask: Set{0x3}},
			{Relationship: NUMANode, Group: 1, Mask: Set{0xff}},
		}
		buf := Successful(EncodeRecords(records))
		Expect(buf).To(HaveLen(48 + 48 + 56 + 48))
		Expect(DecodeRecords(buf)).To(Equal(records))
	})

	It("decodes the Windows layout", func() {
		core := rawRecord(CoreBoundary, 48)
		core[processorEfficiencyOffset] = 1
		binary.LittleEndian.PutUint16(core[30:], 1)
		binary.LittleEndian.PutUint64(core[32:], 0xc)

		cache := rawRecord(CacheBoundary, 56)
		cache[8] = 2
		binary.LittleEndian.PutUint16(cache[38:], 1)
		binary.LittleEndian.PutUint64(cache[40:], 0xf0)
		binary.LittleEndian.PutUint16(cache[48:], 1)

		Expect(DecodeRecords(append(core, cache...))).To(Equal([]Record{
			{Relationship: CoreBoundary, EfficiencyClass: 1, Mask: Set{0xc}},
			{Relationship: CacheBoundary, CacheLevel: 2, Group: 1, Mask: Set{0xf0}},
		}))
	})

	It("accepts packages spanning multiple processor groups", func() {
		pkg := rawRecord(PackageBoundary, 32+2*16)
		binary.LittleEndian.PutUint16(pkg[30:], 2)
		binary.LittleEndian.PutUint64(pkg[32:], 0xff)
		binary.LittleEndian.PutUint64(pkg[48:], 0xf)
		binary.LittleEndian.PutUint16(pkg[56:], 1)
		Expect(DecodeRecords(pkg)).To(Equal([]Record{
			{Relationship: PackageBoundary, Mask: Set{0xff, 0xf}},
		}))
	})

	It("skips records of unknown kinds", func() {
		buf := append(rawRecord(GroupRelation, 24), Successful(EncodeRecords([]Record{
			{Relationship: CoreBoundary, Mask: Set{0x1}},
		}))...)
		Expect(DecodeRecords(buf)).To(Equal([]Record{
			{Relationship: CoreBoundary, Mask: Set{0x1}},
		}))
	})

	It("decodes nothing from nothing", func() {
		Expect(DecodeRecords(nil)).To(BeEmpty())
	})

	DescribeTable("rejecting malformed buffers",
		func(buf []byte) {
			Expect(DecodeRecords(buf)).Error().To(MatchError(ErrMalformedRecordStream))
		},
		Entry("truncated header", []byte{0, 0, 0, 0}),
		Entry("zero size", make([]byte, 8)),
		Entry("size past end", func() []byte {
			raw := rawRecord(CoreBoundary, 48)
			binary.LittleEndian.PutUint32(raw[4:], 64)
			return raw
		}()),
		Entry("core record too short", rawRecord(CoreBoundary, 40)),
		Entry("cache record too short", rawRecord(CacheBoundary, 48)),
		Entry("group masks past record end", func() []byte {
			raw := rawRecord(PackageBoundary, 48)
			binary.LittleEndian.PutUint16(raw[30:], 2)
			return raw
		}()),
		Entry("trailing garbage", append(Successful(EncodeRecords([]Record{
			{Relationship: CoreBoundary, Mask: Set{0x1}},
		})), 1, 2, 3)),
	)

	It("encodes packages spanning multiple processor groups", func() {
		records := []Record{
			{Relationship: PackageBoundary, Mask: Set{^uint64(0), 0, 0xffff}},
			{Relationship: NUMANode, Mask: Set{0xff, 0xff}},
			{Relationship: CoreBoundary, Group: 2, Mask: Set{0x3}},
		}
		buf := Successful(EncodeRecords(records))
		Expect(buf).To(HaveLen((32 + 2*16) + (32 + 2*16) + 48))
		Expect(binary.LittleEndian.Uint16(buf[30:])).To(Equal(uint16(2)))
		Expect(binary.LittleEndian.Uint16(buf[32+16+8:])).To(Equal(uint16(2)))
		Expect(DecodeRecords(buf)).To(Equal(records))
	})

	DescribeTable("refusing group-relative masks wider than a group",
		func(rec Record) {
			Expect(EncodeRecords([]Record{rec})).Error().To(MatchError(ErrMaskExceedsGroup))
		},
		Entry("core", Record{Relationship: CoreBoundary, Mask: Set{0x1, 0x1}}),
		Entry("cache", Record{Relationship: CacheBoundary, CacheLevel: 2, Mask: Set{0, 0x3}}),
	)

	It("ignores zero words beyond the first group", func() {
		buf := Successful(EncodeRecords([]Record{
			{Relationship: CoreBoundary, Group: 1, Mask: Set{0x1, 0}},
		}))
		Expect(DecodeRecords(buf)).To(Equal([]Record{
			{Relationship: CoreBoundary, Group: 1, Mask: Set{0x1}},
		}))
	})

})
