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

//go:build amd64
// +build amd64

package pagetables

import (
	"bootmap.dev/bootmap/pkg/memarch"
)

// Bit positions within an entry. The layout is identical at every
// level; super, the cache attribute bits and user are meaningful only
// on leaves.
const (
	present      = 0x001
	writable     = 0x002
	user         = 0x004
	writeThrough = 0x008
	cacheDisable = 0x010
	accessed     = 0x020
	dirty        = 0x040
	super        = 0x080
	global       = 0x100

	executeDisable = 1 << 63

	// addrMask selects the physical frame bits, 12 through 51.
	addrMask = 0x000ffffffffff000

	// signBit is the top physical address bit. Decoding replicates it
	// through signFill, bits 52 to 63.
	signBit  = 0x0008000000000000
	signFill = 0xfff0000000000000
)

// PTE is a page table entry. The boot tables are built by a single
// goroutine before the MMU ever reads them, so entries are plain words
// with no atomic access.
type PTE uint64

// PTEs is one complete page table: 4 KiB, page aligned.
type PTEs [entriesPerPage]PTE

// Clear resets this entry to the not-present state.
func (p *PTE) Clear() {
	*p = 0
}

// Valid returns true iff this entry is valid.
func (p *PTE) Valid() bool {
	return *p&present != 0
}

// IsSuper returns true iff this entry is a super page leaf.
func (p *PTE) IsSuper() bool {
	return *p&super != 0
}

// SetSuper marks this entry as a super page. The bit takes effect when
// Set installs the leaf.
func (p *PTE) SetSuper() {
	*p |= super
}

// Opts decodes the mapping options from this entry. Meaningful only
// when Valid returns true.
func (p *PTE) Opts() MapOpts {
	v := uint64(*p)
	var mt memarch.MemoryType
	switch {
	case v&cacheDisable != 0:
		mt = memarch.MemoryTypeUncached
	case v&writeThrough != 0:
		mt = memarch.MemoryTypeWriteThrough
	default:
		mt = memarch.MemoryTypeWriteBack
	}
	return MapOpts{
		AccessType: memarch.AccessType{
			Read:    v&present != 0,
			Write:   v&writable != 0,
			Execute: v&executeDisable == 0,
		},
		User:       v&user != 0,
		Global:     v&global != 0,
		MemoryType: mt,
	}
}

// Set installs this entry as a leaf mapping physical with the given
// options. The low twelve bits of physical are discarded. Accessed is
// set on every leaf and dirty on every writable leaf, so the live
// tables never take an update fault for either. An entry marked with
// SetSuper keeps the super bit.
//
// Set assumes the options were validated against the processor
// features; attributes the layout cannot hold are dropped silently.
func (p *PTE) Set(physical uintptr, opts MapOpts) {
	if !opts.AccessType.Any() {
		p.Clear()
		return
	}
	v := (uint64(physical) & addrMask) | present | accessed
	if opts.AccessType.Write {
		v |= writable | dirty
	}
	if !opts.AccessType.Execute {
		v |= executeDisable
	}
	if opts.User {
		v |= user
	}
	if opts.Global {
		v |= global
	}
	switch opts.MemoryType {
	case memarch.MemoryTypeWriteThrough:
		v |= writeThrough
	case memarch.MemoryTypeUncached:
		v |= cacheDisable | writeThrough
	}
	if p.IsSuper() {
		v |= super
	}
	*p = PTE(v)
}

// setPageTable installs this entry as a link to the given child table.
// Links carry exactly present and writable. User, no-execute and the
// cache attribute bits describe leaves, never interior entries.
func (p *PTE) setPageTable(pt *PageTables, ptes *PTEs) {
	addr := pt.Allocator.PhysicalFor(ptes)
	if uint64(addr)&^uint64(addrMask) != 0 {
		// The allocator produced an unaligned or out of range table.
		panic("unaligned page table address")
	}
	*p = PTE(uint64(addr) | present | writable)
}

// Address extracts the physical address from this entry. Bit 51, the
// top physical bit, is replicated through bits 52 to 63. Meaningful
// only when Valid returns true.
func (p *PTE) Address() uintptr {
	addr := uint64(*p) & addrMask
	if addr&signBit != 0 {
		addr |= signFill
	}
	return uintptr(addr)
}
