/*
Package cputopo discovers the physical processor topology of a host and
compiles it into two compact tables for core-type aware thread placement.

A [RecordSource] delivers an ordered stream of topology [Record]s: package
boundaries, physical core boundaries, and cache sharing boundaries, each with
a [Set] of package-relative logical processor indices. On Windows the records
come straight from GetLogicalProcessorInformationEx; on Linux they are
synthesized from the CPU topology in sysfs.

The [Compiler] walks the records once and builds:

  - the CPU mapping table, one [CPUMappingRow] per logical processor with its
    socket, physical core, [CoreType], and scheduling group;
  - the processor type table, [ProcTypeRow]s counting logical processors per
    [CoreType]. Row 0 always is the grand total; on multi-socket systems the
    per-socket rows follow.

Efficient cores cannot be told apart from their core records alone, so the
compiler tentatively emits rows and later reclassifies them when the L2
cache records reveal four-wide efficient clusters or private performance
core caches.

[Discover] bundles fetching and compiling; [CoreCount] is the coarse fallback
when no topology is available.
*/
package cputopo
