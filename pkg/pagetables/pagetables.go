// Copyright 2025 The Bootmap Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package pagetables builds boot-time page tables.
//
// The tables are constructed by a single goroutine before the MMU ever
// reads them, so entries are plain words and mapping operations never
// block. Existing leaves are never overwritten, merged or split: a
// request that collides with an installed entry fails and the caller
// decides what the collision means. All physical memory for interior
// tables and data frames comes from an Allocator, which also defines
// how table memory is addressed while paging is still off.
package pagetables

import (
	"fmt"

	"bootmap.dev/bootmap/pkg/memarch"
)

// MapOpts are x86 mapping options.
type MapOpts struct {
	// AccessType defines permissions. Every mapping must be readable;
	// the hardware has no write-only or execute-only encoding.
	AccessType memarch.AccessType

	// User marks the mapping accessible from user mode.
	User bool

	// Global marks the mapping as surviving address space switches.
	Global bool

	// MemoryType is the caching behavior of the mapping.
	MemoryType memarch.MemoryType
}

// Features describes the processor capabilities the mapper may rely
// on. The caller asserts them; nothing here probes CPUID.
type Features struct {
	// NoExecute permits the execute disable bit (EFER.NXE).
	NoExecute bool

	// GlobalPages permits the global bit (CR4.PGE).
	GlobalPages bool

	// Page1GB permits 1 GiB leaves (CPUID page1gb).
	Page1GB bool
}

// HugePolicy bounds the leaf sizes Map may choose for a suitably
// aligned range. Installed leaves are never split afterwards.
type HugePolicy uint8

const (
	// HugeNever maps everything with 4 KiB leaves.
	HugeNever HugePolicy = iota

	// Huge2MB additionally installs 2 MiB leaves.
	Huge2MB

	// Huge1GB additionally installs 1 GiB leaves.
	Huge1GB
)

// String implements fmt.Stringer.String.
func (p HugePolicy) String() string {
	switch p {
	case HugeNever:
		return "never"
	case Huge2MB:
		return "2MB"
	case Huge1GB:
		return "1GB"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(p))
	}
}

// ParseHugePolicy parses the textual form used in configuration. The
// empty string parses as HugeNever.
func ParseHugePolicy(s string) (HugePolicy, error) {
	switch s {
	case "", "never":
		return HugeNever, nil
	case "2MB", "2mb":
		return Huge2MB, nil
	case "1GB", "1gb":
		return Huge1GB, nil
	}
	return HugeNever, fmt.Errorf("unknown huge page policy %q", s)
}

// Config carries construction options for a set of page tables.
type Config struct {
	// Features are the capabilities of the target processor.
	Features Features

	// HugePolicy bounds the leaf sizes Map may choose.
	HugePolicy HugePolicy
}

// Stats counts the work performed on a set of page tables.
type Stats struct {
	// PagesMapped counts installed leaves in 4 KiB units.
	PagesMapped uint64

	// HugePagesMapped counts the installed leaves larger than 4 KiB.
	HugePagesMapped uint64

	// TablesAllocated counts live tables, the root included.
	TablesAllocated uint64

	// FramesAllocated counts data frames handed out by AllocateAndMap,
	// in 4 KiB units.
	FramesAllocated uint64
}

// PageTables is a set of page tables under construction.
type PageTables struct {
	// Allocator provides table and frame storage.
	Allocator Allocator

	// root is the top level table; rootPhysical is the value loaded
	// into CR3 when the tables go live.
	root         *PTEs
	rootPhysical uintptr

	cfg   Config
	stats Stats
}

// New returns a set of page tables with an allocated, zeroed root
// table. It fails if the configuration asks for leaf sizes the
// features cannot back, or if the allocator cannot provide the root.
func New(a Allocator, cfg Config) (*PageTables, error) {
	if cfg.HugePolicy > Huge1GB {
		return nil, &UnsupportedAttributesError{Reason: fmt.Sprintf("unknown huge page policy %d", cfg.HugePolicy)}
	}
	if cfg.HugePolicy == Huge1GB && !cfg.Features.Page1GB {
		return nil, &UnsupportedAttributesError{Reason: "1 GiB leaves need the Page1GB feature"}
	}
	root, err := a.NewPTEs()
	if err != nil {
		return nil, fmt.Errorf("allocating root table: %w", err)
	}
	p := &PageTables{
		Allocator:    a,
		root:         root,
		rootPhysical: a.PhysicalFor(root),
		cfg:          cfg,
	}
	p.stats.TablesAllocated++
	return p, nil
}

// RootPhysical returns the physical address of the root table, the
// value to load into CR3.
func (p *PageTables) RootPhysical() uintptr {
	return p.rootPhysical
}

// Stats returns the construction counters.
func (p *PageTables) Stats() Stats {
	return p.stats
}

// allocTable obtains a zeroed interior table, counting it. start is
// the first address the table will cover, reported on exhaustion.
func (p *PageTables) allocTable(start uintptr) (*PTEs, error) {
	ptes, err := p.Allocator.NewPTEs()
	if err != nil {
		return nil, fmt.Errorf("no frame for page table covering %#x: %w", start, err)
	}
	p.stats.TablesAllocated++
	return ptes, nil
}

// freeTable returns an interior table to the allocator.
func (p *PageTables) freeTable(ptes *PTEs) {
	p.Allocator.FreePTEs(ptes)
	p.stats.TablesAllocated--
}

// checkOpts rejects attribute combinations the configured features
// cannot encode.
func (p *PageTables) checkOpts(opts MapOpts) error {
	if !opts.AccessType.Read {
		return &UnsupportedAttributesError{Opts: opts, Reason: "mappings must be readable"}
	}
	if !opts.AccessType.Execute && !p.cfg.Features.NoExecute {
		return &UnsupportedAttributesError{Opts: opts, Reason: "no-execute needs the NoExecute feature"}
	}
	if opts.Global && !p.cfg.Features.GlobalPages {
		return &UnsupportedAttributesError{Opts: opts, Reason: "global pages need the GlobalPages feature"}
	}
	switch opts.MemoryType {
	case memarch.MemoryTypeWriteBack, memarch.MemoryTypeWriteThrough, memarch.MemoryTypeUncached:
	case memarch.MemoryTypeWriteCombine:
		return &UnsupportedAttributesError{Opts: opts, Reason: "write-combining needs PAT programming"}
	default:
		return &UnsupportedAttributesError{Opts: opts, Reason: fmt.Sprintf("unknown memory type %d", opts.MemoryType)}
	}
	return nil
}

// mapVisitor installs leaves over its range. A valid entry anywhere in
// the range is a conflict and stops the walk.
type mapVisitor struct {
	// target is the first virtual address of the walk and physical the
	// frame it maps to; later addresses map at a fixed offset.
	target   uintptr
	physical uintptr
	opts     MapOpts

	// pages counts installed leaves in 4 KiB units, huge the installed
	// leaves larger than 4 KiB.
	pages uint64
	huge  uint64
}

// visit implements visitor.visit.
func (v *mapVisitor) visit(start uintptr, pte *PTE, align uintptr) error {
	if pte.Valid() {
		return &OverlapError{Addr: start, Entry: *pte, Level: levelName(align + 1)}
	}
	p := v.physical + (start - v.target)
	if p&align != 0 {
		// The physical side is not aligned to this leaf size. Leaving
		// the entry clear makes the walker descend a level.
		return nil
	}
	pte.Set(p, v.opts)
	v.pages += uint64((align + 1) >> pteShift)
	if align != pteSize-1 {
		v.huge++
	}
	return nil
}

// requiresAlloc implements visitor.requiresAlloc.
func (*mapVisitor) requiresAlloc() bool { return true }

// Map installs a mapping of [addr, addr+length) to physical frames
// starting at physical. addr and physical are truncated to page
// boundaries and length is rounded up to whole pages from the
// truncated base. A valid leaf already inside the span fails the whole
// call with an OverlapError; pages installed before the conflict stay
// installed, and a frame shortage fails with an error wrapping
// ErrAllocationExhausted that names the first unmapped address.
//
// Leaves larger than 4 KiB are used when the policy admits the size
// and both the virtual and the physical side are aligned to it.
//
// Precondition: the span must lie in one canonical half and must not
// wrap the address space.
func (p *PageTables) Map(addr memarch.Addr, length uintptr, opts MapOpts, physical uintptr) error {
	if err := p.checkOpts(opts); err != nil {
		return err
	}
	if length == 0 {
		return nil
	}
	pages := memarch.PageCount(uint64(length))
	end, ok := addr.RoundDown().AddLength(pages << memarch.PageShift)
	if !ok {
		panic("mapping wraps the address space")
	}
	physical &^= pteSize - 1

	v := mapVisitor{
		target:   uintptr(addr.RoundDown()),
		physical: physical,
		opts:     opts,
	}
	w := walker{pageTables: p, visitor: &v}
	err := w.iterateRange(uintptr(addr.RoundDown()), uintptr(end))
	p.stats.PagesMapped += v.pages
	p.stats.HugePagesMapped += v.huge
	return err
}

// Translate resolves addr through the tables, descending from the root
// until a leaf or a hole. It never allocates and never modifies the
// tables. The physical result includes the offset of addr within the
// covering leaf. Addresses in the canonical hole and addresses no leaf
// covers resolve to ok == false.
func (p *PageTables) Translate(addr memarch.Addr) (physical uintptr, opts MapOpts, ok bool) {
	a := uintptr(addr)
	if a >= lowerTop && a < upperBottom {
		return 0, MapOpts{}, false
	}

	pgdEntry := &p.root[(a&pgdMask)>>pgdShift]
	if !pgdEntry.Valid() {
		return 0, MapOpts{}, false
	}
	pudEntries := p.Allocator.LookupPTEs(pgdEntry.Address())
	pudEntry := &pudEntries[(a&pudMask)>>pudShift]
	switch {
	case !pudEntry.Valid():
		return 0, MapOpts{}, false
	case pudEntry.IsSuper():
		return pudEntry.Address() + (a & (pudSize - 1)), pudEntry.Opts(), true
	}
	pmdEntries := p.Allocator.LookupPTEs(pudEntry.Address())
	pmdEntry := &pmdEntries[(a&pmdMask)>>pmdShift]
	switch {
	case !pmdEntry.Valid():
		return 0, MapOpts{}, false
	case pmdEntry.IsSuper():
		return pmdEntry.Address() + (a & (pmdSize - 1)), pmdEntry.Opts(), true
	}
	pteEntries := p.Allocator.LookupPTEs(pmdEntry.Address())
	pteEntry := &pteEntries[(a&pteMask)>>pteShift]
	if !pteEntry.Valid() {
		return 0, MapOpts{}, false
	}
	return pteEntry.Address() + (a & (pteSize - 1)), pteEntry.Opts(), true
}

// AllocateAndMap obtains contiguous zeroed frames from the allocator
// and maps them at addr, for length rounded up to whole pages. It
// returns the physical address of the first frame. If mapping fails
// before any page is installed the frames are returned to the
// allocator; once part of the range is live the frames stay reserved
// and the error names the first unmapped address.
func (p *PageTables) AllocateAndMap(addr memarch.Addr, length uintptr, opts MapOpts) (uintptr, error) {
	if err := p.checkOpts(opts); err != nil {
		return 0, err
	}
	pages := memarch.PageCount(uint64(length))
	if pages == 0 {
		return 0, nil
	}
	physical, err := p.Allocator.AllocFrames(int(pages))
	if err != nil {
		return 0, fmt.Errorf("no frames backing %d pages at %#x: %w", pages, uintptr(addr), err)
	}
	before := p.stats.PagesMapped
	if err := p.Map(addr, length, opts, physical); err != nil {
		if p.stats.PagesMapped == before {
			p.Allocator.FreeFrames(physical, int(pages))
		}
		return 0, err
	}
	p.stats.FramesAllocated += pages
	return physical, nil
}

// Mapping is one mapped extent reported by Walk.
type Mapping struct {
	// Addr is the first virtual address of the leaf.
	Addr uintptr

	// Size is the leaf size in bytes.
	Size uintptr

	// Physical is the frame the leaf maps.
	Physical uintptr

	// Opts are the decoded attributes.
	Opts MapOpts
}

// walkVisitor reports installed leaves to a callback.
type walkVisitor struct {
	fn func(Mapping)
}

// visit implements visitor.visit.
func (v *walkVisitor) visit(start uintptr, pte *PTE, align uintptr) error {
	if !pte.Valid() {
		return nil
	}
	v.fn(Mapping{
		Addr:     start,
		Size:     align + 1,
		Physical: pte.Address(),
		Opts:     pte.Opts(),
	})
	return nil
}

// requiresAlloc implements visitor.requiresAlloc.
func (*walkVisitor) requiresAlloc() bool { return false }

// Walk reports every installed leaf intersecting [addr, addr+length)
// to fn, in ascending address order. Leaves larger than 4 KiB are
// reported whole even when the range covers only part of them. fn must
// not modify the tables.
func (p *PageTables) Walk(addr memarch.Addr, length uintptr, fn func(Mapping)) {
	if length == 0 {
		return
	}
	last, ok := addr.AddLength(uint64(length))
	if !ok {
		panic("walk range wraps the address space")
	}
	end := last.MustRoundUp()
	w := walker{pageTables: p, visitor: &walkVisitor{fn: fn}}
	if err := w.iterateRange(uintptr(addr.RoundDown()), uintptr(end)); err != nil {
		// Read-only walks have no failure paths.
		panic(err)
	}
}

// WalkAll reports every installed leaf in ascending virtual address
// order, covering both canonical halves. The topmost page is excluded;
// Map cannot install it.
func (p *PageTables) WalkAll(fn func(Mapping)) {
	p.Walk(0, lowerTop, fn)
	p.Walk(upperBottom, ^uintptr(0)-upperBottom-pteSize+1, fn)
}
