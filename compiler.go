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
	"slices"

	"github.com/rs/zerolog"
)

// Compiler compiles a stream of topology records into a [Topology] in a
// single pass. A Compiler is not safe for concurrent use and cannot be
// reused after [Compiler.Finish].
type Compiler struct {
	log zerolog.Logger

	processors int // logical processors seen so far
	sockets    int // current socket, -1 before the first package record
	cores      int // physical cores seen so far
	base       int // global id of the current package's relative index 0
	group      int // next scheduling group id

	closed  []ProcTypeRow // completed sockets
	current ProcTypeRow   // socket under construction

	mapping []CPUMappingRow
	byID    map[int]int // processor id -> mapping row index

	// classifications from cache records for logical processors whose core
	// records have not been seen yet, by global processor id.
	pending map[int]classification

	finished bool
}

type classification struct {
	coreType CoreType
	group    int
}

// NewCompiler returns a new Compiler in its initial state.
func NewCompiler(opts ...Option) *Compiler {
	o := &options{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(o)
	}
	return &Compiler{
		log:     o.log,
		sockets: -1,
		byID:    map[int]int{},
		pending: map[int]classification{},
	}
}

// Compile compiles the records into a [Topology]. On error, no topology is
// returned at all.
func Compile(records []Record, opts ...Option) (*Topology, error) {
	c := NewCompiler(opts...)
	for _, rec := range records {
		if err := c.Feed(rec); err != nil {
			return nil, err
		}
	}
	return c.Finish()
}

// Feed processes the next record. Records other than package, core, and L2
// cache records carry no classification signal and are ignored.
func (c *Compiler) Feed(rec Record) error {
	if c.finished {
		return errors.New("topology compiler already finished")
	}
	switch rec.Relationship {
	case PackageBoundary:
		c.pkg()
	case CoreBoundary:
		return c.core(rec)
	case CacheBoundary:
		if rec.CacheLevel == 2 {
			return c.l2cache(rec)
		}
	}
	return nil
}

// pkg starts a new socket, archiving the counts of the previous one.
func (c *Compiler) pkg() {
	c.sockets++
	if c.sockets > 0 {
		c.closed = append(c.closed, c.current)
		c.current = ProcTypeRow{}
	}
	c.base = c.processors
	if len(c.pending) > 0 {
		c.log.Debug().Int("socket", c.sockets-1).Int("count", len(c.pending)).
			Msg("dropping classifications for processors never enumerated")
		clear(c.pending)
	}
	c.log.Debug().Int("socket", c.sockets).Int("base", c.base).Msg("package")
}

// core emits the mapping rows of a physical core. A hyperthreaded pair is
// classified right away; all other cores stay unclassified until a cache
// record resolves them, unless a cache record already did.
func (c *Compiler) core(rec Record) error {
	if c.sockets < 0 {
		return fmt.Errorf("%w: core record before any package record", ErrMalformedRecordStream)
	}
	indices := rec.Mask.Indices()
	if len(indices) == 0 {
		return fmt.Errorf("%w: core record without logical processors", ErrMalformedRecordStream)
	}
	if indices[0] == 0 {
		c.base = c.processors
	}
	if len(indices) == 2 {
		if err := c.emit(indices[0], classification{HyperthreadSibling, c.group}); err != nil {
			return err
		}
		if err := c.emit(indices[1], classification{MainPerformance, c.group}); err != nil {
			return err
		}
		c.group++
	} else {
		for _, idx := range indices {
			class, ok := c.pending[idx+c.base]
			if ok {
				delete(c.pending, idx+c.base)
			} else {
				class = classification{Unclassified, -1}
			}
			if err := c.emit(idx, class); err != nil {
				return err
			}
		}
	}
	c.current[All] += len(indices)
	c.processors += len(indices)
	c.cores++
	return nil
}

// emit appends the mapping row for the package-relative index, counting it
// unless it is unclassified.
func (c *Compiler) emit(idx int, class classification) error {
	id := idx + c.base
	if _, ok := c.byID[id]; ok {
		return fmt.Errorf("%w: logical processor %d enumerated twice", ErrMalformedRecordStream, id)
	}
	c.byID[id] = len(c.mapping)
	c.mapping = append(c.mapping, CPUMappingRow{
		ProcessorID: id,
		SocketID:    c.sockets,
		CoreID:      c.cores,
		CoreType:    class.coreType,
		GroupID:     class.group,
	})
	if class.coreType != Unclassified {
		c.current[class.coreType]++
	}
	return nil
}

// l2cache handles an L2 cache record: four logical processors sharing an L2
// form an efficient core cluster, a single one is a performance core with a
// private L2. Processors already enumerated are reclassified on the spot,
// the others when their core records arrive.
func (c *Compiler) l2cache(rec Record) error {
	if c.sockets < 0 {
		return fmt.Errorf("%w: cache record before any package record", ErrMalformedRecordStream)
	}
	indices := rec.Mask.Indices()
	var coreType CoreType
	switch len(indices) {
	case 4:
		coreType = Efficient
	case 1:
		coreType = MainPerformance
	default:
		return nil
	}
	class := classification{coreType, c.group}
	for _, idx := range indices {
		id := idx + c.base
		if rowidx, ok := c.byID[id]; ok {
			c.classify(rowidx, class)
			continue
		}
		c.pending[id] = class
	}
	c.log.Debug().Stringer("type", coreType).Int("group", c.group).
		Stringer("mask", rec.Mask).Int("base", c.base).Msg("L2 cluster")
	c.group++
	return nil
}

// classify (re)classifies an existing mapping row, moving its count to the
// new type column of the socket it belongs to.
func (c *Compiler) classify(rowidx int, class classification) {
	row := &c.mapping[rowidx]
	counts := c.socketRow(row.SocketID)
	if row.CoreType != Unclassified {
		counts[row.CoreType]--
	}
	counts[class.coreType]++
	row.CoreType = class.coreType
	row.GroupID = class.group
}

func (c *Compiler) socketRow(socket int) *ProcTypeRow {
	if socket < len(c.closed) {
		return &c.closed[socket]
	}
	return &c.current
}

// Finish completes the compilation and returns the topology. Logical
// processors that no record classified become performance cores, each in
// its own scheduling group.
func (c *Compiler) Finish() (*Topology, error) {
	if c.finished {
		return nil, errors.New("topology compiler already finished")
	}
	c.finished = true
	if c.sockets < 0 {
		return nil, fmt.Errorf("%w: no package record", ErrMalformedRecordStream)
	}
	c.closed = append(c.closed, c.current)
	c.current = ProcTypeRow{}

	for idx := range c.mapping {
		if c.mapping[idx].CoreType != Unclassified {
			continue
		}
		c.log.Debug().Int("processor", c.mapping[idx].ProcessorID).
			Msg("no cache signal, assuming performance core")
		c.classify(idx, classification{MainPerformance, c.group})
		c.group++
	}

	for id := range c.processors {
		if _, ok := c.byID[id]; !ok {
			return nil, fmt.Errorf("%w: logical processor %d missing", ErrMalformedRecordStream, id)
		}
	}
	slices.SortFunc(c.mapping, func(a, b CPUMappingRow) int {
		return a.ProcessorID - b.ProcessorID
	})

	var procTypes []ProcTypeRow
	if len(c.closed) == 1 {
		procTypes = []ProcTypeRow{c.closed[0]}
	} else {
		var total ProcTypeRow
		for _, socket := range c.closed {
			total = total.add(socket)
		}
		procTypes = append([]ProcTypeRow{total}, c.closed...)
	}

	t := &Topology{
		processors: c.processors,
		sockets:    c.sockets + 1,
		cores:      c.cores,
		procTypes:  procTypes,
		mapping:    c.mapping,
	}
	c.log.Debug().Int("processors", t.processors).Int("sockets", t.sockets).
		Int("cores", t.cores).Msg("topology compiled")
	return t, nil
}
