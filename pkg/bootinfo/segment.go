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
	"fmt"
	"strings"

	"bootmap.dev/bootmap/pkg/memarch"
	"bootmap.dev/bootmap/pkg/pagetables"
)

// Segment is one loadable kernel segment, the shape of an ELF program
// header after parsing.
type Segment struct {
	// Name identifies the segment in logs and reports.
	Name string `toml:"name" yaml:"name"`
	// Virt is the virtual base address.
	Virt Address `toml:"virt" yaml:"virt"`
	// Phys is the physical base of the backing. Zero means the
	// segment has no fixed backing and frames are allocated for it,
	// the .bss case.
	Phys Address `toml:"phys" yaml:"phys"`
	// Size is the segment length in bytes.
	Size uint64 `toml:"size" yaml:"size"`
	// Access spells the segment permissions the way program headers
	// do, e.g. "rw-" or "r-x".
	Access string `toml:"access" yaml:"access"`
}

// AccessType parses the segment's permission spelling.
func (s Segment) AccessType() (memarch.AccessType, error) {
	return memarch.ParseAccessType(s.Access)
}

// Validate checks the segment before it is mapped. The virtual range
// is checked after the page rounding the mapper will apply.
func (s Segment) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("segment at %#x: no name", s.Virt)
	}
	if s.Size == 0 {
		return fmt.Errorf("segment %q: zero size", s.Name)
	}
	at, err := s.AccessType()
	if err != nil {
		return fmt.Errorf("segment %q: %w", s.Name, err)
	}
	if !at.Read {
		return fmt.Errorf("segment %q: access %q is not readable", s.Name, s.Access)
	}
	base := memarch.Addr(s.Virt).RoundDown()
	length := uintptr(memarch.PageCount(s.Size)) << memarch.PageShift
	if !pagetables.IsCanonicalRange(base, length) {
		return fmt.Errorf("segment %q: virtual range [%#x, +%#x) is not canonical",
			s.Name, s.Virt, s.Size)
	}
	return nil
}

// MMIOWindow is a physical register window mapped uncached at its
// physical address.
type MMIOWindow struct {
	// Name identifies the window in logs and reports.
	Name string `toml:"name" yaml:"name"`
	// Base is the physical address of the window.
	Base Address `toml:"base" yaml:"base"`
	// Size is the window length in bytes.
	Size uint64 `toml:"size" yaml:"size"`
}

// Validate checks the window before it is mapped.
func (w MMIOWindow) Validate() error {
	if w.Size == 0 {
		return fmt.Errorf("mmio window %q at %#x: zero size", w.Name, w.Base)
	}
	if w.Base%memarch.PageSize != 0 {
		return fmt.Errorf("mmio window %q at %#x: not page aligned", w.Name, w.Base)
	}
	length := uintptr(memarch.PageCount(w.Size)) << memarch.PageShift
	if !pagetables.IsCanonicalRange(memarch.Addr(w.Base), length) {
		return fmt.Errorf("mmio window %q: range [%#x, +%#x) is not canonical",
			w.Name, w.Base, w.Size)
	}
	return nil
}

// Framebuffer describes a bootloader provided scanout buffer.
type Framebuffer struct {
	// Base is the physical address of the buffer.
	Base Address `toml:"base" yaml:"base"`
	// Width and Height are in pixels.
	Width  uint32 `toml:"width" yaml:"width"`
	Height uint32 `toml:"height" yaml:"height"`
	// Pitch is the scanline stride in bytes.
	Pitch uint64 `toml:"pitch" yaml:"pitch"`
	// BitsPerPixel is the pixel depth.
	BitsPerPixel uint16 `toml:"bpp" yaml:"bpp"`
	// Model names the pixel memory model. "rgb" is the linear model
	// with four 8 bit channels, the only one the drawing code
	// understands.
	Model string `toml:"model" yaml:"model"`
}

// Supported reports whether the drawing code can use this framebuffer:
// 32 bits per pixel in the rgb memory model. Anything else is skipped
// rather than mapped.
func (f Framebuffer) Supported() bool {
	return f.BitsPerPixel == 32 && strings.EqualFold(f.Model, "rgb")
}

// Size returns the buffer length in bytes, one pitch per scanline.
func (f Framebuffer) Size() uint64 {
	return f.Pitch * uint64(f.Height)
}

// Validate checks the framebuffer geometry before it is mapped.
// Supported is a separate question; an unsupported framebuffer is
// still a valid input.
func (f Framebuffer) Validate() error {
	if f.Width == 0 || f.Height == 0 || f.Pitch == 0 || f.BitsPerPixel == 0 {
		return fmt.Errorf("framebuffer at %#x: zero geometry %dx%d pitch %d bpp %d",
			f.Base, f.Width, f.Height, f.Pitch, f.BitsPerPixel)
	}
	if f.Pitch < uint64(f.Width)*uint64(f.BitsPerPixel)/8 {
		return fmt.Errorf("framebuffer at %#x: pitch %d cannot hold %d pixels of %d bits",
			f.Base, f.Pitch, f.Width, f.BitsPerPixel)
	}
	if f.Base%memarch.PageSize != 0 {
		return fmt.Errorf("framebuffer at %#x: not page aligned", f.Base)
	}
	if f.Size()/f.Pitch != uint64(f.Height) {
		return fmt.Errorf("framebuffer at %#x: %d scanlines of pitch %d wrap the physical space",
			f.Base, f.Height, f.Pitch)
	}
	length := uintptr(memarch.PageCount(f.Size())) << memarch.PageShift
	if !pagetables.IsCanonicalRange(memarch.Addr(f.Base), length) {
		return fmt.Errorf("framebuffer range [%#x, +%#x) is not canonical", f.Base, f.Size())
	}
	return nil
}
