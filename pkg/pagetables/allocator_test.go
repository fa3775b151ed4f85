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
	"errors"
	"testing"

	"bootmap.dev/bootmap/pkg/memarch"
)

func TestHeapAllocatorAlignment(t *testing.T) {
	a := NewHeapAllocator()
	for i := 0; i < 64; i++ {
		ptes, err := a.NewPTEs()
		if err != nil {
			t.Fatalf("NewPTEs: %v", err)
		}
		phys := a.PhysicalFor(ptes)
		if phys&(pteSize-1) != 0 {
			t.Fatalf("table %d at %#x is not page aligned", i, phys)
		}
		if a.LookupPTEs(phys) != ptes {
			t.Fatalf("LookupPTEs(%#x) does not return the table", phys)
		}
	}
}

func TestHeapAllocatorRecycleZeroes(t *testing.T) {
	a := NewHeapAllocator()
	ptes, err := a.NewPTEs()
	if err != nil {
		t.Fatalf("NewPTEs: %v", err)
	}
	ptes[5].Set(0x1000, MapOpts{AccessType: memarch.Read})
	phys := a.PhysicalFor(ptes)
	a.FreePTEs(ptes)
	if a.LookupPTEs(phys) != nil {
		t.Error("freed table is still addressable")
	}
	again, err := a.NewPTEs()
	if err != nil {
		t.Fatalf("NewPTEs: %v", err)
	}
	for i := range again {
		if again[i] != 0 {
			t.Fatalf("recycled table is dirty at index %d", i)
		}
	}
}

func TestHeapAllocatorLimit(t *testing.T) {
	a := NewHeapAllocator()
	a.SetLimit(2)
	first, err := a.NewPTEs()
	if err != nil {
		t.Fatalf("NewPTEs: %v", err)
	}
	if _, err := a.NewPTEs(); err != nil {
		t.Fatalf("NewPTEs: %v", err)
	}
	if _, err := a.NewPTEs(); !errors.Is(err, ErrAllocationExhausted) {
		t.Fatalf("NewPTEs over the limit returned %v, want ErrAllocationExhausted", err)
	}
	// Freeing restores headroom.
	a.FreePTEs(first)
	if _, err := a.NewPTEs(); err != nil {
		t.Fatalf("NewPTEs after a free: %v", err)
	}
}

func TestAllocFrames(t *testing.T) {
	a := NewHeapAllocator()
	base, err := a.AllocFrames(4)
	if err != nil {
		t.Fatalf("AllocFrames: %v", err)
	}
	if base == 0 || base&(pteSize-1) != 0 {
		t.Errorf("frame base %#x is not page aligned", base)
	}
	for i, b := range a.frames[base] {
		if b != 0 {
			t.Fatalf("frame slab is dirty at offset %d", i)
		}
	}
	a.FreeFrames(base, 4)
	if _, ok := a.frames[base]; ok {
		t.Error("freed frames are still tracked")
	}
}

func TestAllocFramesCountsAgainstLimit(t *testing.T) {
	a := NewHeapAllocator()
	a.SetLimit(4)
	if _, err := a.AllocFrames(3); err != nil {
		t.Fatalf("AllocFrames: %v", err)
	}
	if _, err := a.AllocFrames(2); !errors.Is(err, ErrAllocationExhausted) {
		t.Fatalf("AllocFrames over the limit returned %v, want ErrAllocationExhausted", err)
	}
	if _, err := a.AllocFrames(1); err != nil {
		t.Fatalf("AllocFrames within the limit: %v", err)
	}
	if _, err := a.AllocFrames(0); err == nil {
		t.Error("AllocFrames(0) succeeded, want an error")
	}
}
