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

// Package bootinfo describes the machine a boot image is built for:
// the firmware memory map, the kernel segments to install, the
// framebuffer and any MMIO windows. The types double as the scenario
// file schema, so they carry toml and yaml struct tags.
package bootinfo

import (
	"fmt"
	"sort"
	"strings"

	"bootmap.dev/bootmap/pkg/memarch"
	"bootmap.dev/bootmap/pkg/pagetables"
)

// RegionType classifies a firmware memory map region.
type RegionType string

// The firmware region taxonomy.
const (
	RegionUsable                RegionType = "usable"
	RegionReserved              RegionType = "reserved"
	RegionACPIReclaimable       RegionType = "acpi-reclaimable"
	RegionACPINVS               RegionType = "acpi-nvs"
	RegionBadMemory             RegionType = "bad-memory"
	RegionBootloaderReclaimable RegionType = "bootloader-reclaimable"
	RegionKernelAndModules      RegionType = "kernel-and-modules"
	RegionFramebuffer           RegionType = "framebuffer"
)

// ParseRegionType converts a region type spelling to its canonical
// form, ignoring case.
func ParseRegionType(s string) (RegionType, error) {
	t := RegionType(strings.ToLower(s))
	switch t {
	case RegionUsable, RegionReserved, RegionACPIReclaimable, RegionACPINVS,
		RegionBadMemory, RegionBootloaderReclaimable, RegionKernelAndModules,
		RegionFramebuffer:
		return t, nil
	}
	return "", fmt.Errorf("unknown memory region type %q", s)
}

// Profile returns the mapping attributes a region of the given type is
// installed with, and whether it is mapped at all. Regions the kernel
// must not touch (reserved, ACPI NVS, bad memory) are not mappable.
func Profile(t RegionType) (pagetables.MapOpts, bool) {
	switch t {
	case RegionUsable, RegionBootloaderReclaimable, RegionKernelAndModules:
		return pagetables.MapOpts{
			AccessType: memarch.ReadWrite,
			MemoryType: memarch.MemoryTypeWriteBack,
		}, true
	case RegionACPIReclaimable:
		return pagetables.MapOpts{
			AccessType: memarch.Read,
			MemoryType: memarch.MemoryTypeWriteBack,
		}, true
	case RegionFramebuffer:
		return pagetables.MapOpts{
			AccessType: memarch.ReadWrite,
			MemoryType: memarch.MemoryTypeWriteThrough,
		}, true
	}
	return pagetables.MapOpts{}, false
}

// Descriptor is one firmware memory map region.
type Descriptor struct {
	// Base is the physical address of the first byte.
	Base Address `toml:"base" yaml:"base"`
	// PageCount is the region length in 4 KiB frames.
	PageCount uint64 `toml:"pages" yaml:"pages"`
	// Type is the firmware classification of the region.
	Type RegionType `toml:"type" yaml:"type"`
}

// Size returns the region length in bytes.
func (d Descriptor) Size() uint64 {
	return d.PageCount << memarch.PageShift
}

// End returns the physical address one past the last byte.
func (d Descriptor) End() uint64 {
	return uint64(d.Base) + d.Size()
}

// Overlaps reports whether two regions share any byte.
func (d Descriptor) Overlaps(other Descriptor) bool {
	return uint64(d.Base) < other.End() && uint64(other.Base) < d.End()
}

// MemoryMap is a firmware memory map.
type MemoryMap []Descriptor

// MaxPhysical returns the highest physical address any region reaches,
// the number of bytes an identity window must be able to cover.
func (m MemoryMap) MaxPhysical() uint64 {
	var max uint64
	for _, d := range m {
		if end := d.End(); end > max {
			max = end
		}
	}
	return max
}

// UsableBytes returns the total size of the usable regions.
func (m MemoryMap) UsableBytes() uint64 {
	var n uint64
	for _, d := range m {
		if d.Type == RegionUsable {
			n += d.Size()
		}
	}
	return n
}

// Validate checks the map before any of it is mapped or released:
// every region must have a known type, a nonzero length, an end that
// does not wrap, a page aligned base if it is mappable, and no two
// regions may overlap. Region type spellings are canonicalized in
// place.
func (m MemoryMap) Validate() error {
	if len(m) == 0 {
		return fmt.Errorf("memory map has no regions")
	}
	for i := range m {
		d := &m[i]
		t, err := ParseRegionType(string(d.Type))
		if err != nil {
			return fmt.Errorf("memory region %d: %w", i, err)
		}
		d.Type = t
		if d.PageCount == 0 {
			return fmt.Errorf("memory region %d (%s at %#x): zero pages", i, d.Type, d.Base)
		}
		if d.Size()>>memarch.PageShift != d.PageCount || d.End() < uint64(d.Base) {
			return fmt.Errorf("memory region %d (%s at %#x): %d pages wrap the physical space",
				i, d.Type, d.Base, d.PageCount)
		}
		if _, mappable := Profile(d.Type); mappable && uint64(d.Base)%memarch.PageSize != 0 {
			return fmt.Errorf("memory region %d (%s at %#x): mappable region is not page aligned",
				i, d.Type, d.Base)
		}
	}

	sorted := make([]Descriptor, len(m))
	copy(sorted, m)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Base < sorted[j].Base })
	for i := 1; i < len(sorted); i++ {
		if prev := sorted[i-1]; sorted[i].Overlaps(prev) {
			return fmt.Errorf("memory regions overlap: %s [%#x, %#x) and %s [%#x, %#x)",
				prev.Type, prev.Base, prev.End(),
				sorted[i].Type, sorted[i].Base, sorted[i].End())
		}
	}
	return nil
}
