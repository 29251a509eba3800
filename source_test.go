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

	. "github.com/onsi/ginkgo/v2/dsl/core"
	. "github.com/onsi/gomega"
	. "github.com/thediveo/success"
)

// fakeQuery serves a raw record buffer following the two-call sizing
// convention, counting its calls.
type fakeQuery struct {
	buf      []byte
	sizeErr  error
	fetchErr error
	calls    int
}

func (q *fakeQuery) query(filter Relationship, buf []byte) (int, error) {
	q.calls++
	if buf == nil {
		if q.sizeErr != nil {
			return 0, q.sizeErr
		}
		return len(q.buf), ErrInsufficientBuffer
	}
	if q.fetchErr != nil {
		return 0, q.fetchErr
	}
	return copy(buf, q.buf), nil
}

var _ = Describe("record sources", func() {

	When("querying buffers", func() {

		It("fetches in two phases", func() {
			q := &fakeQuery{buf: Successful(EncodeRecords(hybrid()))}
			src := NewBufferSource(q.query)
			Expect(src.Records(AllRelationships)).To(HaveLen(len(hybrid())))
			Expect(q.calls).To(Equal(2))
		})

		It("filters records", func() {
			q := &fakeQuery{buf: Successful(EncodeRecords(hybrid()))}
			records := Successful(NewBufferSource(q.query).Records(CoreBoundary))
			Expect(records).To(HaveLen(6))
			for _, rec := range records {
				Expect(rec.Relationship).To(Equal(CoreBoundary))
			}
		})

		It("reports a failing sizing call as unavailable", func() {
			q := &fakeQuery{sizeErr: errors.New("access denied")}
			Expect(NewBufferSource(q.query).Records(AllRelationships)).Error().To(SatisfyAll(
				MatchError(ErrTopologyUnavailable),
				MatchError(ContainSubstring("access denied"))))
			Expect(q.calls).To(Equal(1))
		})

		It("reports a succeeding sizing call as unavailable", func() {
			src := NewBufferSource(func(Relationship, []byte) (int, error) { return 0, nil })
			Expect(src.Records(AllRelationships)).Error().To(MatchError(ErrTopologyUnavailable))
		})

		It("reports an empty sizing result as unavailable", func() {
			q := &fakeQuery{}
			Expect(NewBufferSource(q.query).Records(AllRelationships)).Error().To(
				MatchError(ErrTopologyUnavailable))
			Expect(q.calls).To(Equal(1))
		})

		It("reports a failing fetch call as unavailable", func() {
			q := &fakeQuery{buf: Successful(EncodeRecords(hybrid())), fetchErr: ErrInsufficientBuffer}
			Expect(NewBufferSource(q.query).Records(AllRelationships)).Error().To(
				MatchError(ErrTopologyUnavailable))
			Expect(q.calls).To(Equal(2))
		})

		It("rejects inconsistent buffer lengths", func() {
			src := NewBufferSource(func(_ Relationship, buf []byte) (int, error) {
				if buf == nil {
					return 8, ErrInsufficientBuffer
				}
				return 16, nil
			})
			Expect(src.Records(AllRelationships)).Error().To(MatchError(ErrMalformedRecordStream))
		})

		It("passes on malformed buffers", func() {
			q := &fakeQuery{buf: []byte{1, 2, 3}}
			Expect(NewBufferSource(q.query).Records(AllRelationships)).Error().To(
				MatchError(ErrMalformedRecordStream))
		})

	})

	When("serving static records", func() {

		It("filters records", func() {
			src := StaticSource(hybrid())
			Expect(src.Records(AllRelationships)).To(HaveLen(len(hybrid())))
			Expect(src.Records(PackageBoundary)).To(ConsistOf(pkgRec()))
		})

		It("reports no records as unavailable", func() {
			Expect(StaticSource(nil).Records(AllRelationships)).Error().To(
				MatchError(ErrTopologyUnavailable))
		})

	})

	It("matches relationship filters", func() {
		Expect(CoreBoundary.Matches(AllRelationships)).To(BeTrue())
		Expect(CoreBoundary.Matches(CoreBoundary)).To(BeTrue())
		Expect(CacheBoundary.Matches(CoreBoundary)).To(BeFalse())
	})

	It("names records", func() {
		Expect(coreRec(0, 1).String()).To(Equal("core [0-1]"))
		Expect(cacheRec(2, 4, 5, 6, 7).String()).To(Equal("cache L2 [4-7]"))
		Expect(Relationship(42).String()).To(Equal("Relationship(42)"))
	})

})
