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

package bootinfo

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"bootmap.dev/bootmap/pkg/memarch"
	"bootmap.dev/bootmap/pkg/pagetables"
)

func TestParseRegionType(t *testing.T) {
	for _, tc := range []struct {
		in      string
		want    RegionType
		wantErr bool
	}{
		{in: "usable", want: RegionUsable},
		{in: "Usable", want: RegionUsable},
		{in: "ACPI-Reclaimable", want: RegionACPIReclaimable},
		{in: "kernel-and-modules", want: RegionKernelAndModules},
		{in: "mmio", wantErr: true},
		{in: "", wantErr: true},
	} {
		got, err := ParseRegionType(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseRegionType(%q) error %v, wantErr %t", tc.in, err, tc.wantErr)
			continue
		}
		if err == nil && got != tc.want {
			t.Errorf("ParseRegionType(%q) got %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestProfile(t *testing.T) {
	rwWB := pagetables.MapOpts{AccessType: memarch.ReadWrite, MemoryType: memarch.MemoryTypeWriteBack}
	roWB := pagetables.MapOpts{AccessType: memarch.Read, MemoryType: memarch.MemoryTypeWriteBack}
	rwWT := pagetables.MapOpts{AccessType: memarch.ReadWrite, MemoryType: memarch.MemoryTypeWriteThrough}

	for _, tc := range []struct {
		t        RegionType
		want     pagetables.MapOpts
		mappable bool
	}{
		{t: RegionUsable, want: rwWB, mappable: true},
		{t: RegionBootloaderReclaimable, want: rwWB, mappable: true},
		{t: RegionKernelAndModules, want: rwWB, mappable: true},
		{t: RegionACPIReclaimable, want: roWB, mappable: true},
		{t: RegionFramebuffer, want: rwWT, mappable: true},
		{t: RegionReserved},
		{t: RegionACPINVS},
		{t: RegionBadMemory},
		{t: RegionType("bogus")},
	} {
		got, mappable := Profile(tc.t)
		if mappable != tc.mappable {
			t.Errorf("Profile(%q) mappable %t, want %t", tc.t, mappable, tc.mappable)
			continue
		}
		if diff := cmp.Diff(tc.want, got); diff != "" {
			t.Errorf("Profile(%q) opts mismatch (-want +got):\n%s", tc.t, diff)
		}
	}
}

func TestDescriptorGeometry(t *testing.T) {
	d := Descriptor{Base: 0x100000, PageCount: 16, Type: RegionUsable}
	if got, want := d.Size(), uint64(0x10000); got != want {
		t.Errorf("Size() got %#x, want %#x", got, want)
	}
	if got, want := d.End(), uint64(0x110000); got != want {
		t.Errorf("End() got %#x, want %#x", got, want)
	}
	for _, tc := range []struct {
		other Descriptor
		want  bool
	}{
		{Descriptor{Base: 0x110000, PageCount: 1}, false},
		{Descriptor{Base: 0x10f000, PageCount: 1}, true},
		{Descriptor{Base: 0xff000, PageCount: 1}, false},
		{Descriptor{Base: 0xff000, PageCount: 2}, true},
		{Descriptor{Base: 0x100000, PageCount: 16}, true},
	} {
		if got := d.Overlaps(tc.other); got != tc.want {
			t.Errorf("Overlaps(%+v) got %t, want %t", tc.other, got, tc.want)
		}
	}
}

func TestMemoryMapFolds(t *testing.T) {
	m := MemoryMap{
		{Base: 0x100000, PageCount: 256, Type: RegionUsable},
		{Base: 0xfd000000, PageCount: 16, Type: RegionFramebuffer},
		{Base: 0x1000, PageCount: 4, Type: RegionReserved},
		{Base: 0x200000, PageCount: 128, Type: RegionUsable},
	}
	if got, want := m.MaxPhysical(), uint64(0xfd010000); got != want {
		t.Errorf("MaxPhysical() got %#x, want %#x", got, want)
	}
	if got, want := m.UsableBytes(), uint64((256+128)*memarch.PageSize); got != want {
		t.Errorf("UsableBytes() got %#x, want %#x", got, want)
	}
	if got := MemoryMap(nil).MaxPhysical(); got != 0 {
		t.Errorf("empty MaxPhysical() got %#x, want 0", got)
	}
}

func TestMemoryMapValidate(t *testing.T) {
	good := MemoryMap{
		{Base: 0x100000, PageCount: 256, Type: "Usable"},
		{Base: 0x1000, PageCount: 4, Type: RegionReserved},
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("Validate got %v", err)
	}
	// Spellings come out canonical.
	if diff := cmp.Diff(RegionUsable, good[0].Type); diff != "" {
		t.Errorf("type not canonicalized (-want +got):\n%s", diff)
	}

	for _, tc := range []struct {
		name string
		m    MemoryMap
	}{
		{"unknown type", MemoryMap{{Base: 0, PageCount: 1, Type: "mmio"}}},
		{"zero pages", MemoryMap{{Base: 0x1000, PageCount: 0, Type: RegionUsable}}},
		{"wraps", MemoryMap{{Base: ^Address(0) &^ 0xfff, PageCount: 2, Type: RegionUsable}}},
		{"unaligned mappable", MemoryMap{{Base: 0x1800, PageCount: 1, Type: RegionUsable}}},
		{"overlap", MemoryMap{
			{Base: 0x100000, PageCount: 16, Type: RegionUsable},
			{Base: 0x10f000, PageCount: 16, Type: RegionReserved},
		}},
		{"empty", MemoryMap{}},
	} {
		if err := tc.m.Validate(); err == nil {
			t.Errorf("%s: Validate succeeded", tc.name)
		}
	}

	// Unaligned bases are fine for regions that are never mapped.
	tolerated := MemoryMap{{Base: 0x1800, PageCount: 1, Type: RegionReserved}}
	if err := tolerated.Validate(); err != nil {
		t.Errorf("unaligned reserved region: Validate got %v", err)
	}
}

func TestSegmentValidate(t *testing.T) {
	good := Segment{Name: "text", Virt: 0xffffffff80000000, Phys: 0x200000, Size: 0x5000, Access: "r-x"}
	if err := good.Validate(); err != nil {
		t.Fatalf("Validate got %v", err)
	}
	at, err := good.AccessType()
	if err != nil {
		t.Fatalf("AccessType got %v", err)
	}
	if want := memarch.ReadExecute; at != want {
		t.Errorf("AccessType got %v, want %v", at, want)
	}

	for _, tc := range []struct {
		name string
		s    Segment
	}{
		{"no name", Segment{Virt: 0x400000, Size: 0x1000, Access: "rw-"}},
		{"zero size", Segment{Name: "bss", Virt: 0x400000, Access: "rw-"}},
		{"bad access", Segment{Name: "bss", Virt: 0x400000, Size: 0x1000, Access: "rwz"}},
		{"unreadable", Segment{Name: "bss", Virt: 0x400000, Size: 0x1000, Access: "-w-"}},
		{"non-canonical", Segment{Name: "bss", Virt: 0x0000900000000000, Size: 0x1000, Access: "rw-"}},
		{"spans the hole", Segment{Name: "bss", Virt: 0x00007ffffffff000, Size: 0x2000, Access: "rw-"}},
	} {
		if err := tc.s.Validate(); err == nil {
			t.Errorf("%s: Validate succeeded", tc.name)
		}
	}
}

func TestMMIOWindowValidate(t *testing.T) {
	good := MMIOWindow{Name: "lapic", Base: 0xfee00000, Size: 0x1000}
	if err := good.Validate(); err != nil {
		t.Fatalf("Validate got %v", err)
	}
	for _, tc := range []struct {
		name string
		w    MMIOWindow
	}{
		{"zero size", MMIOWindow{Name: "lapic", Base: 0xfee00000}},
		{"unaligned", MMIOWindow{Name: "lapic", Base: 0xfee00800, Size: 0x1000}},
	} {
		if err := tc.w.Validate(); err == nil {
			t.Errorf("%s: Validate succeeded", tc.name)
		}
	}
}

func TestFramebuffer(t *testing.T) {
	fb := Framebuffer{Base: 0xfd000000, Width: 1024, Height: 768, Pitch: 4096, BitsPerPixel: 32, Model: "rgb"}
	if err := fb.Validate(); err != nil {
		t.Fatalf("Validate got %v", err)
	}
	if !fb.Supported() {
		t.Errorf("Supported() got false, want true")
	}
	if got, want := fb.Size(), uint64(4096*768); got != want {
		t.Errorf("Size() got %#x, want %#x", got, want)
	}

	caps := fb
	caps.Model = "RGB"
	if !caps.Supported() {
		t.Errorf("Supported() is case sensitive about the model")
	}

	bgr := fb
	bgr.Model = "bgr"
	if bgr.Supported() {
		t.Errorf("Supported() accepted model %q", bgr.Model)
	}
	shallow := fb
	shallow.BitsPerPixel = 24
	if shallow.Supported() {
		t.Errorf("Supported() accepted %d bpp", shallow.BitsPerPixel)
	}

	for _, tc := range []struct {
		name string
		fb   Framebuffer
	}{
		{"zero geometry", Framebuffer{Base: 0xfd000000, Pitch: 4096, BitsPerPixel: 32}},
		{"pitch too small", Framebuffer{Base: 0xfd000000, Width: 1024, Height: 768, Pitch: 1024, BitsPerPixel: 32}},
		{"unaligned", Framebuffer{Base: 0xfd000800, Width: 1024, Height: 768, Pitch: 4096, BitsPerPixel: 32}},
	} {
		if err := tc.fb.Validate(); err == nil {
			t.Errorf("%s: Validate succeeded", tc.name)
		}
	}
}
