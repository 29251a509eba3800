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
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
)

// DefaultSysfsRoot is where Linux exposes the CPU topology.
const DefaultSysfsRoot = "/sys/devices/system/cpu"

// SysfsSource synthesizes topology records from the Linux sysfs CPU
// topology, in the same order GetLogicalProcessorInformationEx emits them:
// each package record is followed by its core records, and each core record
// by the L2 cache record of its cache domain if that domain has not been
// seen before.
//
// Logical processors are numbered per package in enumeration order: all
// threads of the first core, then all threads of the second core, and so
// on. Like Windows, the numbers are split into processor groups of up to 64
// logical processors, and core and cache record masks are relative to their
// group; a core never straddles two groups, and a new L2 domain starts a new
// group if it would not fit into the current one. Package record masks span
// all groups of the package, with group n in word n of the mask.
//
// The processor ids of a [Topology] compiled from these records thus are
// enumeration ordinals, not kernel CPU numbers; use [SysfsSource.CPUNumbers]
// to map them back.
type SysfsSource struct {
	root string
}

var _ RecordSource = (*SysfsSource)(nil)

// NewSysfsSource returns a source reading the CPU topology below root, which
// usually is [DefaultSysfsRoot].
func NewSysfsSource(root string) *SysfsSource {
	return &SysfsSource{root: root}
}

type sysfsCPU struct {
	cpu      uint
	pkg      int
	siblings List
	l2       List // nil if no L2 cache information
}

// groupPosition locates a logical processor within its processor group.
type groupPosition struct {
	group uint16
	bit   uint
}

type sysfsPackage struct {
	id    int
	cpus  []*sysfsCPU
	cores [][]*sysfsCPU
	pos   map[uint]groupPosition
	order []uint // kernel CPU numbers in enumeration order
}

// Records returns the topology records matching the filter.
func (s *SysfsSource) Records(filter Relationship) ([]Record, error) {
	packages, err := s.scan()
	if err != nil {
		return nil, err
	}
	var records []Record
	for _, pkg := range packages {
		records = append(records, pkg.records()...)
	}
	return filterRecords(records, filter), nil
}

// CPUNumbers returns the kernel CPU numbers indexed by the processor ids of
// the [Topology] compiled from this source's records.
func (s *SysfsSource) CPUNumbers() ([]uint, error) {
	packages, err := s.scan()
	if err != nil {
		return nil, err
	}
	var cpus []uint
	for _, pkg := range packages {
		cpus = append(cpus, pkg.order...)
	}
	return cpus, nil
}

// scan reads the online CPUs and returns their enumerated packages in
// package id order.
func (s *SysfsSource) scan() ([]*sysfsPackage, error) {
	online, err := readList(filepath.Join(s.root, "online"))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTopologyUnavailable, err)
	}
	onlineSet := online.Set()

	packages := map[int]*sysfsPackage{}
	for _, cpu := range online.CPUs() {
		info, err := s.readCPU(cpu)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrTopologyUnavailable, err)
		}
		pkg := packages[info.pkg]
		if pkg == nil {
			pkg = &sysfsPackage{id: info.pkg, pos: map[uint]groupPosition{}}
			packages[info.pkg] = pkg
		}
		pkg.cpus = append(pkg.cpus, info)
	}
	if len(packages) == 0 {
		return nil, fmt.Errorf("%w: no online CPUs", ErrTopologyUnavailable)
	}

	pkgids := make([]int, 0, len(packages))
	for id := range packages {
		pkgids = append(pkgids, id)
	}
	slices.Sort(pkgids)
	sorted := make([]*sysfsPackage, 0, len(pkgids))
	for _, id := range pkgids {
		pkg := packages[id]
		pkg.enumerate(onlineSet)
		sorted = append(sorted, pkg)
	}
	return sorted, nil
}

// enumerate groups the package's CPUs into physical cores and assigns their
// processor group positions. A CPU always is part of its own core, even if
// its siblings list forgets to mention it.
func (p *sysfsPackage) enumerate(online Set) {
	byCPU := map[uint]*sysfsCPU{}
	for _, c := range p.cpus {
		byCPU[c.cpu] = c
	}
	domainSize := func(l2 List) uint {
		n := uint(0)
		for _, cpu := range l2.CPUs() {
			if _, ok := byCPU[cpu]; ok && online.IsSet(cpu) {
				n++
			}
		}
		return n
	}

	seenL2 := map[string]bool{}
	var group uint16
	var bit uint
	for _, c := range p.cpus {
		if _, done := p.pos[c.cpu]; done {
			continue
		}
		core := []*sysfsCPU{c}
		for _, sibling := range c.siblings.CPUs() {
			if sibling == c.cpu {
				continue
			}
			sc, ok := byCPU[sibling]
			if !ok || !online.IsSet(sibling) {
				continue
			}
			if _, done := p.pos[sibling]; done {
				continue
			}
			core = append(core, sc)
		}

		need := uint(len(core))
		if c.l2 != nil && !seenL2[c.l2.String()] {
			seenL2[c.l2.String()] = true
			need = max(need, min(domainSize(c.l2), bitsperword))
		}
		if bit > 0 && bit+need > bitsperword {
			group++
			bit = 0
		}
		for _, sc := range core {
			p.pos[sc.cpu] = groupPosition{group: group, bit: bit}
			p.order = append(p.order, sc.cpu)
			bit++
		}
		p.cores = append(p.cores, core)
	}
}

func (p *sysfsPackage) records() []Record {
	var pkgmask Set
	for _, pos := range p.pos {
		cpu := uint(pos.group)*bitsperword + pos.bit
		pkgmask = pkgmask.AddRange(cpu, cpu)
	}
	records := []Record{{Relationship: PackageBoundary, Mask: pkgmask}}

	seenL2 := map[string]bool{}
	for _, core := range p.cores {
		group := p.pos[core[0].cpu].group
		var mask Set
		for _, c := range core {
			mask = mask.AddRange(p.pos[c.cpu].bit, p.pos[c.cpu].bit)
		}
		records = append(records, Record{Relationship: CoreBoundary, Group: group, Mask: mask})
		for _, c := range core {
			if c.l2 == nil {
				continue
			}
			key := c.l2.String()
			if seenL2[key] {
				continue
			}
			seenL2[key] = true
			var l2mask Set
			for _, cpu := range c.l2.CPUs() {
				if pos, ok := p.pos[cpu]; ok && pos.group == group {
					l2mask = l2mask.AddRange(pos.bit, pos.bit)
				}
			}
			records = append(records, Record{
				Relationship: CacheBoundary,
				CacheLevel:   2,
				Group:        group,
				Mask:         l2mask,
			})
		}
	}
	return records
}

func (s *SysfsSource) readCPU(cpu uint) (*sysfsCPU, error) {
	dir := filepath.Join(s.root, "cpu"+strconv.FormatUint(uint64(cpu), 10))
	pkg, err := readInt(filepath.Join(dir, "topology", "physical_package_id"))
	if err != nil {
		return nil, err
	}
	siblings, err := readList(filepath.Join(dir, "topology", "core_cpus_list"))
	if errors.Is(err, fs.ErrNotExist) {
		// kernels before 5.7
		siblings, err = readList(filepath.Join(dir, "topology", "thread_siblings_list"))
	}
	if err != nil {
		return nil, err
	}
	l2, err := readL2(dir)
	if err != nil {
		return nil, err
	}
	return &sysfsCPU{
		cpu:      cpu,
		pkg:      pkg,
		siblings: siblings,
		l2:       l2,
	}, nil
}

// readL2 returns the list of CPUs sharing the unified or data L2 cache of
// the CPU with the specified sysfs directory, or nil if the kernel does not
// tell.
func readL2(cpudir string) (List, error) {
	indices, err := filepath.Glob(filepath.Join(cpudir, "cache", "index*"))
	if err != nil {
		return nil, err
	}
	for _, index := range indices {
		level, err := readInt(filepath.Join(index, "level"))
		if err != nil || level != 2 {
			continue
		}
		if typ, err := os.ReadFile(filepath.Join(index, "type")); err == nil &&
			string(bytes.TrimSpace(typ)) == "Instruction" {
			continue
		}
		return readList(filepath.Join(index, "shared_cpu_list"))
	}
	return nil, nil
}

func readList(path string) (List, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	l, err := NewList(b)
	if err != nil {
		return nil, fmt.Errorf("invalid CPU list in %s: %w", path, err)
	}
	return l, nil
}

func readInt(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(string(bytes.TrimSpace(b)))
}
