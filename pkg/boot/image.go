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

package boot

import (
	"fmt"

	"bootmap.dev/bootmap/pkg/memarch"
	"bootmap.dev/bootmap/pkg/pagetables"
)

// Entry is one range the loader installed, after page rounding.
type Entry struct {
	// Kind names the step that installed the range: "region", "mmio",
	// "framebuffer" or "segment".
	Kind string

	// Name is the segment or window name, or the region type.
	Name string

	// Virt is the first virtual address of the range.
	Virt uint64

	// Phys is the first physical address of the backing.
	Phys uint64

	// Size is the range length in bytes, a page multiple.
	Size uint64

	// Opts are the attributes the range was installed with.
	Opts pagetables.MapOpts
}

// Image is a constructed boot address space. When Load fails mid-way
// it still returns the image built so far, so diagnostics can say how
// far construction got; such an image is incomplete and must not be
// activated.
type Image struct {
	tables *pagetables.PageTables

	// RootPhysical is the physical address of the root table, the
	// value the CPU's table base register takes on activation.
	RootPhysical uintptr

	// Entries lists the installed ranges in installation order.
	Entries []Entry

	// Stats are the construction counters.
	Stats pagetables.Stats
}

// Translate resolves a virtual address through the image's tables.
func (i *Image) Translate(addr memarch.Addr) (uintptr, pagetables.MapOpts, bool) {
	return i.tables.Translate(addr)
}

// Walk reports every installed leaf in ascending virtual address
// order, both canonical halves.
func (i *Image) Walk(fn func(pagetables.Mapping)) {
	i.tables.WalkAll(fn)
}

// Halt formats the diagnostic for a fatal construction error: the
// failure itself, then how far construction got. Whether to stop or
// continue degraded is the caller's decision.
func (i *Image) Halt(err error) string {
	return fmt.Sprintf("boot halted: %v (after %d ranges, %d pages, %d tables)",
		err, len(i.Entries), i.Stats.PagesMapped, i.Stats.TablesAllocated)
}
