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
)

var (
	// ErrTopologyUnavailable indicates that the OS declined or failed the
	// topology query. Callers should fall back to [FlatProcessorCount] or
	// [CoreCount].
	ErrTopologyUnavailable = errors.New("processor topology unavailable")

	// ErrInsufficientBuffer is returned by a [QueryFunc] when the buffer
	// passed in is too small to hold all records.
	ErrInsufficientBuffer = errors.New("insufficient buffer")
)

// RecordSource delivers the topology records of this host, restricted to the
// records matching the relationship filter.
type RecordSource interface {
	Records(filter Relationship) ([]Record, error)
}

// QueryFunc is a topology query primitive with a two-call sizing convention.
// It fills buf with raw topology records matching the relationship filter
// and returns the number of bytes used. If buf is too small (including nil),
// it returns the required size together with [ErrInsufficientBuffer].
type QueryFunc func(filter Relationship, buf []byte) (int, error)

// BufferSource is a [RecordSource] on top of a raw [QueryFunc], decoding the
// buffer with [DecodeRecords].
type BufferSource struct {
	query QueryFunc
}

var _ RecordSource = (*BufferSource)(nil)

// NewBufferSource returns a [RecordSource] using the specified query.
func NewBufferSource(query QueryFunc) *BufferSource {
	return &BufferSource{query: query}
}

// Records first asks the query for the required buffer size, then fetches
// the records into a buffer of exactly that size. A first call that does not
// report an insufficient buffer, or a second call that fails in any way,
// makes the topology unavailable. There is no retry loop.
func (s *BufferSource) Records(filter Relationship) ([]Record, error) {
	size, err := s.query(filter, nil)
	if err == nil {
		return nil, fmt.Errorf("%w: sizing query unexpectedly succeeded", ErrTopologyUnavailable)
	}
	if !errors.Is(err, ErrInsufficientBuffer) {
		return nil, fmt.Errorf("%w: %w", ErrTopologyUnavailable, err)
	}
	if size <= 0 {
		return nil, fmt.Errorf("%w: sizing query reported %d bytes", ErrTopologyUnavailable, size)
	}
	buf := make([]byte, size)
	n, err := s.query(filter, buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTopologyUnavailable, err)
	}
	if n > len(buf) {
		return nil, fmt.Errorf("%w: query reports %d bytes for a %d byte buffer",
			ErrMalformedRecordStream, n, len(buf))
	}
	records, err := DecodeRecords(buf[:n])
	if err != nil {
		return nil, err
	}
	return filterRecords(records, filter), nil
}

// filterRecords drops records not passing the filter, in place.
func filterRecords(records []Record, filter Relationship) []Record {
	if filter == AllRelationships {
		return records
	}
	kept := records[:0]
	for _, rec := range records {
		if rec.Relationship.Matches(filter) {
			kept = append(kept, rec)
		}
	}
	return kept
}

// StaticSource serves a fixed list of records, such as decoded from a
// topology dump.
type StaticSource []Record

var _ RecordSource = StaticSource(nil)

// Records returns copies of the records passing the filter.
func (s StaticSource) Records(filter Relationship) ([]Record, error) {
	if len(s) == 0 {
		return nil, fmt.Errorf("%w: no records", ErrTopologyUnavailable)
	}
	records := make([]Record, 0, len(s))
	for _, rec := range s {
		if rec.Relationship.Matches(filter) {
			records = append(records, rec)
		}
	}
	return records, nil
}
