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

// Package physmem manages the physical memory frames behind the boot
// page tables.
//
// An Arena is a contiguous block of host memory standing in for the
// machine's physical memory at a configurable physical base address. A
// Pool is a bitmap frame allocator over an arena implementing
// pagetables.Allocator, so interior tables, their lookup addressing
// and data frames all come out of the same modeled physical space.
package physmem

import (
	"fmt"

	"bootmap.dev/bootmap/pkg/memarch"
)

// Arena is a page aligned block of memory addressed by physical
// addresses starting at a fixed base.
type Arena struct {
	mem      []byte
	physBase uintptr
}

// NewArena maps a zeroed anonymous region of at least size bytes,
// rounded up to whole pages, modeling physical memory at physBase.
func NewArena(size, physBase uintptr) (*Arena, error) {
	if physBase%memarch.PageSize != 0 {
		return nil, fmt.Errorf("physical base %#x is not page aligned", physBase)
	}
	if size == 0 {
		return nil, fmt.Errorf("zero size arena")
	}
	rounded, ok := memarch.Addr(size).RoundUp()
	if !ok {
		return nil, fmt.Errorf("arena size %#x overflows", size)
	}
	if end := physBase + uintptr(rounded); end < physBase {
		return nil, fmt.Errorf("arena [%#x, %#x+%#x) wraps the physical space", physBase, physBase, uintptr(rounded))
	}
	mem, err := mapAnonymous(uintptr(rounded))
	if err != nil {
		return nil, fmt.Errorf("mapping %d byte arena: %w", uintptr(rounded), err)
	}
	return &Arena{mem: mem, physBase: physBase}, nil
}

// Size returns the arena size in bytes, a page multiple.
func (a *Arena) Size() uintptr {
	return uintptr(len(a.mem))
}

// PhysBase returns the physical address of the first byte.
func (a *Arena) PhysBase() uintptr {
	return a.physBase
}

// End returns the physical address one past the last byte.
func (a *Arena) End() uintptr {
	return a.physBase + a.Size()
}

// Contains reports whether the physical range [physical,
// physical+length) lies entirely inside the arena.
func (a *Arena) Contains(physical, length uintptr) bool {
	end := physical + length
	return physical >= a.physBase && end >= physical && end <= a.End()
}

// Slice returns the bytes backing the physical range [physical,
// physical+length).
func (a *Arena) Slice(physical, length uintptr) ([]byte, error) {
	if !a.Contains(physical, length) {
		return nil, fmt.Errorf("physical range [%#x, %#x) outside arena [%#x, %#x)",
			physical, physical+length, a.physBase, a.End())
	}
	off := physical - a.physBase
	return a.mem[off : off+length], nil
}

// Close releases the arena memory. The arena, and anything sliced out
// of it, must not be used afterwards.
func (a *Arena) Close() error {
	if a.mem == nil {
		return nil
	}
	err := unmapAnonymous(a.mem)
	a.mem = nil
	return err
}
