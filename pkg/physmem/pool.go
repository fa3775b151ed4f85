// Copyright 2026 The Bootmap Authors.
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

package physmem

import (
	"fmt"
	"math/bits"

	"bootmap.dev/bootmap/pkg/memarch"
	"bootmap.dev/bootmap/pkg/pagetables"
)

// Pool is a bitmap frame allocator over an arena, implementing
// pagetables.Allocator. Every frame starts reserved; the boot flow
// releases the ranges the firmware map calls usable and reserves back
// whatever it hands out or must not touch. Allocation is first fit and
// always returns zeroed frames.
type Pool struct {
	arena *Arena

	// bitmap holds one bit per frame; a set bit is reserved or
	// allocated.
	bitmap []uint64
	total  uint64
	avail  uint64

	// hint is the lowest index that might be free.
	hint uint64
}

var _ pagetables.Allocator = (*Pool)(nil)

// NewPool returns a pool over the arena with every frame reserved.
func NewPool(arena *Arena) *Pool {
	total := uint64(arena.Size() / memarch.PageSize)
	bm := make([]uint64, (total+63)/64)
	for i := range bm {
		bm[i] = ^uint64(0)
	}
	return &Pool{arena: arena, bitmap: bm, total: total}
}

// Total returns the number of frames the arena holds.
func (p *Pool) Total() uint64 {
	return p.total
}

// Available returns the number of free frames.
func (p *Pool) Available() uint64 {
	return p.avail
}

// index returns the frame index of a physical address known to be
// inside the arena.
func (p *Pool) index(physical uintptr) uint64 {
	return uint64((physical - p.arena.physBase) / memarch.PageSize)
}

func (p *Pool) isSet(idx uint64) bool {
	return p.bitmap[idx/64]&(1<<(idx%64)) != 0
}

func (p *Pool) setBit(idx uint64) {
	p.bitmap[idx/64] |= 1 << (idx % 64)
}

func (p *Pool) clearBit(idx uint64) {
	p.bitmap[idx/64] &^= 1 << (idx % 64)
}

// firstFree returns the index of the first free frame at or after
// start.
func (p *Pool) firstFree(start uint64) (uint64, bool) {
	if start >= p.total {
		return 0, false
	}
	i, nbit := int(start/64), start%64
	for ; i < len(p.bitmap); i++ {
		w := p.bitmap[i] | ((1 << nbit) - 1)
		if w != ^uint64(0) {
			r := uint64(i*64 + bits.TrailingZeros64(^w))
			if r >= p.total {
				return 0, false
			}
			return r, true
		}
		nbit = 0
	}
	return 0, false
}

// ReleaseRange marks the frames lying fully inside [physical,
// physical+length) as usable. Partial frames at either edge stay
// reserved. Releasing an already free frame is a no-op.
func (p *Pool) ReleaseRange(physical, length uintptr) error {
	if length == 0 {
		return nil
	}
	if !p.arena.Contains(physical, length) {
		return fmt.Errorf("released range [%#x, %#x) outside arena [%#x, %#x)",
			physical, physical+length, p.arena.PhysBase(), p.arena.End())
	}
	first := memarch.Addr(physical).MustRoundUp()
	last := memarch.Addr(physical + length).RoundDown()
	for addr := first; addr < last; addr += memarch.PageSize {
		if idx := p.index(uintptr(addr)); p.isSet(idx) {
			p.clearBit(idx)
			p.avail++
			if idx < p.hint {
				p.hint = idx
			}
		}
	}
	return nil
}

// ReserveRange marks every frame touched by [physical,
// physical+length) as reserved, rounding outward to whole frames.
// Reserving an already reserved frame is a no-op.
func (p *Pool) ReserveRange(physical, length uintptr) error {
	if length == 0 {
		return nil
	}
	first := memarch.Addr(physical).RoundDown()
	end, ok := memarch.Addr(physical).AddLength(uint64(length))
	if !ok {
		return fmt.Errorf("reserved range [%#x, +%#x) wraps the physical space", physical, length)
	}
	last, ok := end.RoundUp()
	if !ok || !p.arena.Contains(uintptr(first), uintptr(last-first)) {
		return fmt.Errorf("reserved range [%#x, %#x) outside arena [%#x, %#x)",
			physical, physical+length, p.arena.PhysBase(), p.arena.End())
	}
	for addr := first; addr < last; addr += memarch.PageSize {
		if idx := p.index(uintptr(addr)); !p.isSet(idx) {
			p.setBit(idx)
			p.avail--
		}
	}
	return nil
}

// AllocFrames implements pagetables.Allocator.AllocFrames. The
// returned frames are contiguous and zeroed.
func (p *Pool) AllocFrames(count int) (uintptr, error) {
	if count <= 0 {
		return 0, fmt.Errorf("invalid frame count %d", count)
	}
	n := uint64(count)
	for start := p.hint; ; {
		first, ok := p.firstFree(start)
		if !ok {
			return 0, fmt.Errorf("no run of %d contiguous frames (%d of %d free): %w",
				count, p.avail, p.total, pagetables.ErrAllocationExhausted)
		}
		run := uint64(1)
		for run < n && first+run < p.total && !p.isSet(first+run) {
			run++
		}
		if run < n {
			start = first + run
			continue
		}
		for i := uint64(0); i < n; i++ {
			p.setBit(first + i)
		}
		p.avail -= n
		if first == p.hint {
			p.hint = first + n
		}
		physical := p.arena.physBase + uintptr(first)*memarch.PageSize
		buf, err := p.arena.Slice(physical, uintptr(n)*memarch.PageSize)
		if err != nil {
			panic(err)
		}
		clear(buf)
		return physical, nil
	}
}

// FreeFrames implements pagetables.Allocator.FreeFrames.
func (p *Pool) FreeFrames(physical uintptr, count int) {
	if count <= 0 || physical%memarch.PageSize != 0 ||
		!p.arena.Contains(physical, uintptr(count)*memarch.PageSize) {
		panic(fmt.Sprintf("bad frame range freed: %#x +%d", physical, count))
	}
	idx := p.index(physical)
	for i := uint64(0); i < uint64(count); i++ {
		if !p.isSet(idx + i) {
			panic(fmt.Sprintf("double free of frame %#x", physical+uintptr(i)*memarch.PageSize))
		}
		p.clearBit(idx + i)
		p.avail++
	}
	if idx < p.hint {
		p.hint = idx
	}
}

// NewPTEs implements pagetables.Allocator.NewPTEs.
func (p *Pool) NewPTEs() (*pagetables.PTEs, error) {
	physical, err := p.AllocFrames(1)
	if err != nil {
		return nil, err
	}
	return p.arena.tableAt(physical - p.arena.physBase), nil
}

// PhysicalFor implements pagetables.Allocator.PhysicalFor.
func (p *Pool) PhysicalFor(ptes *pagetables.PTEs) uintptr {
	return p.arena.physicalFor(ptes)
}

// LookupPTEs implements pagetables.Allocator.LookupPTEs.
func (p *Pool) LookupPTEs(physical uintptr) *pagetables.PTEs {
	if physical%memarch.PageSize != 0 || !p.arena.Contains(physical, memarch.PageSize) {
		panic(fmt.Sprintf("page table lookup outside the arena: %#x", physical))
	}
	return p.arena.tableAt(physical - p.arena.physBase)
}

// FreePTEs implements pagetables.Allocator.FreePTEs.
func (p *Pool) FreePTEs(ptes *pagetables.PTEs) {
	p.FreeFrames(p.PhysicalFor(ptes), 1)
}
