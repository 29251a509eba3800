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

// cputopo shows the processor topology of this host as a CPU mapping table
// and a processor type table.
//
// Configuration comes from CPUTOPO_SYSFS_ROOT, CPUTOPO_LOG_LEVEL, and
// CPUTOPO_BIG_CORES_ONLY, or a .env file. A topology can be dumped into its
// raw record format using -dump and later be shown from such a dump using
// -replay, such as when analyzing hosts of other platforms.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/thediveo/cputopo"
)

var (
	bold   = color.New(color.Bold)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed)
)

func main() {
	dump := flag.String("dump", "", "write the raw topology records to `file`")
	replay := flag.String("replay", "", "read the raw topology records from `file` instead of this host")
	records := flag.Bool("records", false, "list the individual topology records")
	flag.Parse()

	if err := run(os.Stdout, *dump, *replay, *records); err != nil {
		_, _ = red.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(w io.Writer, dump, replay string, listRecords bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}

	src := cfg.source()
	if replay != "" {
		raw, err := os.ReadFile(replay)
		if err != nil {
			return err
		}
		recs, err := cputopo.DecodeRecords(raw)
		if err != nil {
			return fmt.Errorf("cannot replay %s: %w", replay, err)
		}
		log.Info().Str("file", replay).Int("records", len(recs)).Msg("replaying topology dump")
		src = cputopo.StaticSource(recs)
	}

	recs, err := src.Records(cputopo.AllRelationships)
	if err == nil && dump != "" {
		raw, err := cputopo.EncodeRecords(recs)
		if err != nil {
			return fmt.Errorf("cannot dump topology: %w", err)
		}
		if err := os.WriteFile(dump, raw, 0o644); err != nil {
			return err
		}
		log.Info().Str("file", dump).Int("records", len(recs)).Msg("topology dumped")
	}
	if err == nil && listRecords {
		renderRecords(w, recs)
	}

	topo, err := cputopo.Discover(cputopo.WithSource(src), cputopo.WithLogger(log))
	if err != nil {
		if !errors.Is(err, cputopo.ErrTopologyUnavailable) {
			return err
		}
		log.Warn().Err(err).Msg("falling back to flat processor count")
		_, _ = yellow.Fprintf(w, "topology unavailable, %d cores\n",
			cputopo.CoreCount(src, cfg.BigCoresOnly, nil))
		return nil
	}
	var cpus []uint
	if numbered, ok := src.(cpuNumberer); ok {
		if cpus, err = numbered.CPUNumbers(); err != nil {
			log.Warn().Err(err).Msg("cannot map processors to kernel CPU numbers")
			cpus = nil
		}
	}
	render(w, topo, cputopo.CoreCount(src, cfg.BigCoresOnly, topo), cpus)
	return nil
}

// cpuNumberer is implemented by record sources whose processor ids differ
// from the operating system's CPU numbers.
type cpuNumberer interface {
	CPUNumbers() ([]uint, error)
}

func renderRecords(w io.Writer, recs []cputopo.Record) {
	_, _ = bold.Fprintln(w, "TOPOLOGY RECORDS")
	table := tablewriter.NewWriter(w)
	table.Header("#", "Relationship", "Level", "Efficiency", "Group", "Mask")
	for idx, rec := range recs {
		_ = table.Append(recordRow(idx, rec))
	}
	_ = table.Render()
}

func recordRow(idx int, rec cputopo.Record) []string {
	level, efficiency := "", ""
	switch rec.Relationship {
	case cputopo.CacheBoundary:
		level = "L" + strconv.Itoa(int(rec.CacheLevel))
	case cputopo.CoreBoundary, cputopo.PackageBoundary:
		efficiency = strconv.Itoa(int(rec.EfficiencyClass))
	}
	return []string{
		strconv.Itoa(idx),
		rec.Relationship.String(),
		level,
		efficiency,
		strconv.Itoa(int(rec.Group)),
		rec.Mask.String(),
	}
}

// render prints the topology summary and tables. If cpus is non-nil, it maps
// processor ids to kernel CPU numbers.
func render(w io.Writer, topo *cputopo.Topology, cores int, cpus []uint) {
	_, _ = bold.Fprintf(w, "%d logical processors, %d physical cores, %d sockets",
		topo.Processors(), topo.Cores(), topo.Sockets())
	if topo.IsHybrid() {
		_, _ = yellow.Fprint(w, " (hybrid)")
	}
	_, _ = fmt.Fprintf(w, "\ncore count: %d\n\n", cores)

	_, _ = bold.Fprintln(w, "PROCESSOR TYPES")
	types := tablewriter.NewWriter(w)
	types.Header("Row", "All", "Performance", "Efficient", "Hyperthread")
	for idx, row := range topo.ProcTypeTable() {
		name := "total"
		if idx > 0 {
			name = "socket " + strconv.Itoa(idx-1)
		}
		_ = types.Append(
			name,
			strconv.Itoa(row[cputopo.All]),
			strconv.Itoa(row[cputopo.MainPerformance]),
			strconv.Itoa(row[cputopo.Efficient]),
			strconv.Itoa(row[cputopo.HyperthreadSibling]),
		)
	}
	if err := types.Render(); err != nil {
		_, _ = red.Fprintln(w, "cannot render processor type table")
	}

	_, _ = bold.Fprintln(w, "\nCPU MAPPING")
	mapping := tablewriter.NewWriter(w)
	mapping.Header("Processor", "CPU", "Socket", "Core", "Type", "Group")
	for _, row := range topo.CPUMapping() {
		cpu := ""
		if row.ProcessorID < len(cpus) {
			cpu = strconv.FormatUint(uint64(cpus[row.ProcessorID]), 10)
		}
		_ = mapping.Append(
			strconv.Itoa(row.ProcessorID),
			cpu,
			strconv.Itoa(row.SocketID),
			strconv.Itoa(row.CoreID),
			row.CoreType.String(),
			strconv.Itoa(row.GroupID),
		)
	}
	if err := mapping.Render(); err != nil {
		_, _ = red.Fprintln(w, "cannot render CPU mapping table")
	}
}
