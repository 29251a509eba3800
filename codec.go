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
	"errors"
	"fmt"
)

// ErrMalformedRecordStream indicates that a record source violated its
// contract, such as a record length running past the end of the buffer.
var ErrMalformedRecordStream = errors.New("malformed topology record stream")

// ErrMaskExceedsGroup indicates a core or cache record whose mask does not
// fit into a single processor group of 64 logical processors.
var ErrMaskExceedsGroup = errors.New("record mask exceeds its processor group")

// Layout of SYSTEM_LOGICAL_PROCESSOR_INFORMATION_EX on 64-bit platforms. The
// union starts right after the relationship and size header; every record
// kind of interest ends in a GroupCount field followed by GROUP_AFFINITY
// entries of 16 bytes (KAFFINITY mask, group number, 3 reserved words).
const (
	recordHeaderSize = 8

	processorEfficiencyOffset = 9
	processorGroupCountOffset = 30
	processorGroupMaskOffset  = 32

	cacheLevelOffset      = 8
	cacheGroupCountOffset = 38
	cacheGroupMaskOffset  = 40

	numaGroupCountOffset = 30
	numaGroupMaskOffset  = 32

	groupAffinitySize = 16
)

// DecodeRecords decodes a buffer filled by the topology query into its
// records. Records of unknown kinds are skipped using their size field.
func DecodeRecords(buf []byte) ([]Record, error) {
	var records []Record
	for offset := 0; offset < len(buf); {
		if len(buf)-offset < recordHeaderSize {
			return nil, fmt.Errorf("%w: truncated record header at offset %d",
				ErrMalformedRecordStream, offset)
		}
		rel := Relationship(binary.LittleEndian.Uint32(buf[offset:]))
		size := int(binary.LittleEndian.Uint32(buf[offset+4:]))
		if size < recordHeaderSize || size > len(buf)-offset {
			return nil, fmt.Errorf("%w: record at offset %d claims %d bytes, %d left",
				ErrMalformedRecordStream, offset, size, len(buf)-offset)
		}
		raw := buf[offset : offset+size]
		offset += size

		rec := Record{Relationship: rel}
		var countOffset, maskOffset int
		switch rel {
		case CoreBoundary, PackageBoundary:
			rec.EfficiencyClass = raw[processorEfficiencyOffset]
			countOffset, maskOffset = processorGroupCountOffset, processorGroupMaskOffset
		case CacheBoundary:
			rec.CacheLevel = raw[cacheLevelOffset]
			countOffset, maskOffset = cacheGroupCountOffset, cacheGroupMaskOffset
		case NUMANode:
			countOffset, maskOffset = numaGroupCountOffset, numaGroupMaskOffset
		default:
			continue
		}
		groups, err := needGroupMasks(raw, countOffset, maskOffset)
		if err != nil {
			return nil, err
		}
		if groups == 1 {
			rec.Mask = Set{binary.LittleEndian.Uint64(raw[maskOffset:])}
			rec.Group = binary.LittleEndian.Uint16(raw[maskOffset+8:])
		} else {
			// Multiple group affinities are joined into a single mask, with
			// the processors of group n in word n.
			for idx := range groups {
				entry := raw[maskOffset+idx*groupAffinitySize:]
				group := int(binary.LittleEndian.Uint16(entry[8:]))
				for len(rec.Mask) <= group {
					rec.Mask = append(rec.Mask, 0)
				}
				rec.Mask[group] |= binary.LittleEndian.Uint64(entry)
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// needGroupMasks checks that the record is large enough to hold all its
// GROUP_AFFINITY entries and returns their number. A GroupCount of zero means
// the single GroupMask field of older layouts, which still occupies the same
// space.
func needGroupMasks(raw []byte, countOffset, maskOffset int) (int, error) {
	if len(raw) < maskOffset+groupAffinitySize {
		return 0, fmt.Errorf("%w: %s record of %d bytes too short",
			ErrMalformedRecordStream, Relationship(binary.LittleEndian.Uint32(raw)), len(raw))
	}
	groups := max(int(binary.LittleEndian.Uint16(raw[countOffset:])), 1)
	if len(raw) < maskOffset+groups*groupAffinitySize {
		return 0, fmt.Errorf("%w: record with %d group masks only %d bytes long",
			ErrMalformedRecordStream, groups, len(raw))
	}
	return groups, nil
}

// EncodeRecords encodes records in the same layout [DecodeRecords] accepts,
// such as for dumping a topology for later offline analysis.
//
// Core and cache record masks are relative to the record's group and thus
// must fit into a single word; otherwise, EncodeRecords fails with
// [ErrMaskExceedsGroup]. Package and NUMA node masks spanning multiple words
// get one group affinity entry per non-zero word, with word n becoming group
// n.
func EncodeRecords(records []Record) ([]byte, error) {
	var buf []byte
	for idx, rec := range records {
		var countOffset, maskOffset int
		switch rec.Relationship {
		case CoreBoundary, PackageBoundary:
			countOffset, maskOffset = processorGroupCountOffset, processorGroupMaskOffset
		case CacheBoundary:
			countOffset, maskOffset = cacheGroupCountOffset, cacheGroupMaskOffset
		case NUMANode:
			countOffset, maskOffset = numaGroupCountOffset, numaGroupMaskOffset
		default:
			continue
		}

		type affinity struct {
			mask  uint64
			group uint16
		}
		var affinities []affinity
		if wide(rec.Mask) {
			if rec.Relationship == CoreBoundary || rec.Relationship == CacheBoundary {
				return nil, fmt.Errorf("%w: record #%d %s", ErrMaskExceedsGroup, idx, rec)
			}
			for word, mask := range rec.Mask {
				if mask != 0 {
					affinities = append(affinities, affinity{mask: mask, group: uint16(word)})
				}
			}
		} else {
			a := affinity{group: rec.Group}
			if len(rec.Mask) > 0 {
				a.mask = rec.Mask[0]
			}
			affinities = []affinity{a}
		}

		raw := make([]byte, maskOffset+len(affinities)*groupAffinitySize)
		binary.LittleEndian.PutUint32(raw, uint32(rec.Relationship))
		binary.LittleEndian.PutUint32(raw[4:], uint32(len(raw)))
		switch rec.Relationship {
		case CoreBoundary, PackageBoundary:
			raw[processorEfficiencyOffset] = rec.EfficiencyClass
		case CacheBoundary:
			raw[cacheLevelOffset] = rec.CacheLevel
		}
		binary.LittleEndian.PutUint16(raw[countOffset:], uint16(len(affinities)))
		for n, a := range affinities {
			entry := raw[maskOffset+n*groupAffinitySize:]
			binary.LittleEndian.PutUint64(entry, a.mask)
			binary.LittleEndian.PutUint16(entry[8:], a.group)
		}
		buf = append(buf, raw...)
	}
	return buf, nil
}

// wide reports whether any processor beyond the first 64 is set.
func wide(s Set) bool {
	for _, word := range s[min(len(s), 1):] {
		if word != 0 {
			return true
		}
	}
	return false
}
