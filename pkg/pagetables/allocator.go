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

package pagetables

import (
	"fmt"
)

// Allocator provides the physical memory behind a set of page tables.
//
// The allocator also fixes how table memory is addressed while the
// tables are under construction: PhysicalFor and LookupPTEs convert
// between the pointers the walker follows and the physical addresses
// written into entries. An implementation picks the convention, the
// identity for tables built in place, a fixed offset for tables built
// in a relocated arena.
type Allocator interface {
	// NewPTEs returns a zeroed, page aligned table. It fails with an
	// error wrapping ErrAllocationExhausted when no frame is left.
	NewPTEs() (*PTEs, error)

	// PhysicalFor returns the physical address of the given table.
	//
	// Precondition: ptes was returned by NewPTEs.
	PhysicalFor(ptes *PTEs) uintptr

	// LookupPTEs returns the table at the given physical address.
	//
	// Precondition: physical was returned by PhysicalFor.
	LookupPTEs(physical uintptr) *PTEs

	// FreePTEs returns a table to the allocator.
	FreePTEs(ptes *PTEs)

	// AllocFrames reserves count contiguous, zeroed data frames and
	// returns the physical address of the first. It fails with an
	// error wrapping ErrAllocationExhausted when the request cannot be
	// satisfied.
	AllocFrames(count int) (uintptr, error)

	// FreeFrames releases count frames starting at physical, which
	// must be a value returned by AllocFrames.
	FreeFrames(physical uintptr, count int)
}

// HeapAllocator backs tables and data frames with Go heap memory and
// uses host addresses as physical addresses. It serves tests and any
// embedder whose tables live in the address space that built them.
type HeapAllocator struct {
	// used tracks live tables by physical address.
	used map[uintptr]*PTEs

	// avail holds freed tables for reuse.
	avail []*PTEs

	// frames tracks live AllocFrames regions. The value is the backing
	// slab; holding it here keeps the memory reachable.
	frames map[uintptr][]byte

	// limit, when non-negative, caps outstanding in 4 KiB units.
	limit       int
	outstanding int
}

// NewHeapAllocator returns an empty allocator with no frame limit.
func NewHeapAllocator() *HeapAllocator {
	return &HeapAllocator{
		used:   make(map[uintptr]*PTEs),
		frames: make(map[uintptr][]byte),
		limit:  -1,
	}
}

// SetLimit caps the number of outstanding 4 KiB frames, tables
// included. A negative limit removes the cap.
func (a *HeapAllocator) SetLimit(n int) {
	a.limit = n
}

func (a *HeapAllocator) reserve(n int) error {
	if a.limit >= 0 && a.outstanding+n > a.limit {
		return fmt.Errorf("%d frames outstanding, %d more requested, limit %d: %w",
			a.outstanding, n, a.limit, ErrAllocationExhausted)
	}
	a.outstanding += n
	return nil
}

// NewPTEs implements Allocator.NewPTEs.
func (a *HeapAllocator) NewPTEs() (*PTEs, error) {
	if err := a.reserve(1); err != nil {
		return nil, err
	}
	var ptes *PTEs
	if n := len(a.avail); n > 0 {
		ptes = a.avail[n-1]
		a.avail = a.avail[:n-1]
		*ptes = PTEs{}
	} else {
		ptes = newAlignedPTEs()
	}
	a.used[a.PhysicalFor(ptes)] = ptes
	return ptes, nil
}

// PhysicalFor implements Allocator.PhysicalFor.
func (a *HeapAllocator) PhysicalFor(ptes *PTEs) uintptr {
	return physicalFor(ptes)
}

// LookupPTEs implements Allocator.LookupPTEs.
func (a *HeapAllocator) LookupPTEs(physical uintptr) *PTEs {
	return a.used[physical]
}

// FreePTEs implements Allocator.FreePTEs.
func (a *HeapAllocator) FreePTEs(ptes *PTEs) {
	delete(a.used, a.PhysicalFor(ptes))
	a.avail = append(a.avail, ptes)
	a.outstanding--
}

// AllocFrames implements Allocator.AllocFrames.
func (a *HeapAllocator) AllocFrames(count int) (uintptr, error) {
	if count <= 0 {
		return 0, fmt.Errorf("invalid frame count %d", count)
	}
	if err := a.reserve(count); err != nil {
		return 0, err
	}
	base, slab := newAlignedFrames(count)
	a.frames[base] = slab
	return base, nil
}

// FreeFrames implements Allocator.FreeFrames.
func (a *HeapAllocator) FreeFrames(physical uintptr, count int) {
	if _, ok := a.frames[physical]; !ok {
		panic("freeing frames that were never allocated")
	}
	delete(a.frames, physical)
	a.outstanding -= count
}
