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

// Package boot builds a boot-time address space from a machine
// description: identity windows over the firmware memory map, uncached
// MMIO windows, the framebuffer, and the kernel segments, all through
// one set of page tables.
package boot

import (
	"fmt"

	"bootmap.dev/bootmap/pkg/bootinfo"
	"bootmap.dev/bootmap/pkg/log"
	"bootmap.dev/bootmap/pkg/memarch"
	"bootmap.dev/bootmap/pkg/pagetables"
	"bootmap.dev/bootmap/pkg/physmem"
)

// FeatureFlags selects processor capabilities in a scenario file. Nil
// fields take the defaults of a current x86-64 processor: no-execute
// and global pages available, 1 GiB pages not.
type FeatureFlags struct {
	NoExecute   *bool `toml:"no_execute" yaml:"no_execute"`
	GlobalPages *bool `toml:"global_pages" yaml:"global_pages"`
	Page1GB     *bool `toml:"page_1gb" yaml:"page_1gb"`
}

func (f FeatureFlags) resolve() pagetables.Features {
	features := pagetables.Features{NoExecute: true, GlobalPages: true}
	if f.NoExecute != nil {
		features.NoExecute = *f.NoExecute
	}
	if f.GlobalPages != nil {
		features.GlobalPages = *f.GlobalPages
	}
	if f.Page1GB != nil {
		features.Page1GB = *f.Page1GB
	}
	return features
}

// Config is a boot scenario: the machine description plus mapping
// policy. Its struct tags define the scenario file schema for both
// supported formats.
type Config struct {
	// MemoryMap is the firmware memory map.
	MemoryMap bootinfo.MemoryMap `toml:"memory" yaml:"memory"`

	// Segments are the kernel segments to install.
	Segments []bootinfo.Segment `toml:"segment" yaml:"segment"`

	// Framebuffer is the bootloader framebuffer, if any.
	Framebuffer *bootinfo.Framebuffer `toml:"framebuffer" yaml:"framebuffer"`

	// MMIO lists register windows mapped uncached at their physical
	// addresses.
	MMIO []bootinfo.MMIOWindow `toml:"mmio" yaml:"mmio"`

	// HugePolicy bounds the leaf sizes: "never", "2MB" or "1GB". The
	// empty string means never.
	HugePolicy string `toml:"huge_policy" yaml:"huge_policy"`

	// Features are the target processor capabilities.
	Features FeatureFlags `toml:"features" yaml:"features"`

	// IdentityMapUsable installs an identity window over every
	// mappable memory map region, the way the original firmware
	// handoff leaves physical memory addressable.
	IdentityMapUsable bool `toml:"identity_map_usable" yaml:"identity_map_usable"`
}

// Validate checks the whole scenario before any of it is mapped.
func (c Config) Validate() error {
	if err := c.MemoryMap.Validate(); err != nil {
		return err
	}
	if c.IdentityMapUsable {
		for i, d := range c.MemoryMap {
			if d.Type == bootinfo.RegionFramebuffer {
				continue
			}
			if _, mappable := bootinfo.Profile(d.Type); !mappable {
				continue
			}
			length := uintptr(memarch.PageCount(d.Size())) << memarch.PageShift
			if !pagetables.IsCanonicalRange(memarch.Addr(d.Base), length) {
				return fmt.Errorf("memory region %d (%s at %#x): too high to identity map",
					i, d.Type, d.Base)
			}
		}
	}
	seen := make(map[string]bool, len(c.Segments))
	for _, s := range c.Segments {
		if err := s.Validate(); err != nil {
			return err
		}
		if seen[s.Name] {
			return fmt.Errorf("segment %q: duplicate name", s.Name)
		}
		seen[s.Name] = true
	}
	for _, w := range c.MMIO {
		if err := w.Validate(); err != nil {
			return err
		}
	}
	if c.Framebuffer != nil {
		if err := c.Framebuffer.Validate(); err != nil {
			return err
		}
	}
	if _, err := pagetables.ParseHugePolicy(c.HugePolicy); err != nil {
		return err
	}
	return nil
}

// NewPool models the physical memory a scenario needs: an arena from
// physical zero to the top of the highest region, with the usable
// ranges released for allocation. The caller closes the arena once
// done with everything built from it.
func NewPool(m bootinfo.MemoryMap) (*physmem.Pool, *physmem.Arena, error) {
	if err := m.Validate(); err != nil {
		return nil, nil, err
	}
	top, ok := memarch.Addr(m.MaxPhysical()).RoundUp()
	if !ok {
		return nil, nil, fmt.Errorf("memory map reaches %#x, too high to model", m.MaxPhysical())
	}
	arena, err := physmem.NewArena(uintptr(top), 0)
	if err != nil {
		return nil, nil, fmt.Errorf("modeling %#x bytes of physical memory: %w", uintptr(top), err)
	}
	pool := physmem.NewPool(arena)
	for _, d := range m {
		if d.Type != bootinfo.RegionUsable {
			continue
		}
		if err := pool.ReleaseRange(uintptr(d.Base), uintptr(d.Size())); err != nil {
			arena.Close()
			return nil, nil, err
		}
	}
	log.Debugf("physical pool: %d of %d frames usable", pool.Available(), pool.Total())
	return pool, arena, nil
}

// Load builds the address space the scenario describes, drawing page
// tables and anonymous segment frames from alloc. On a fatal mapping
// error the partial image is returned along with the error so the
// caller can report how far construction got.
func Load(cfg Config, alloc pagetables.Allocator) (*Image, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid boot configuration: %w", err)
	}
	policy, err := pagetables.ParseHugePolicy(cfg.HugePolicy)
	if err != nil {
		return nil, fmt.Errorf("invalid boot configuration: %w", err)
	}
	features := cfg.Features.resolve()

	pt, err := pagetables.New(alloc, pagetables.Config{Features: features, HugePolicy: policy})
	if err != nil {
		return nil, err
	}
	log.Infof("root table at %#x (nx=%t global=%t 1gb=%t huge=%v)",
		pt.RootPhysical(), features.NoExecute, features.GlobalPages, features.Page1GB, policy)

	l := &loader{
		cfg:    cfg,
		tables: pt,
		img:    &Image{tables: pt, RootPhysical: pt.RootPhysical()},
	}
	err = l.run()
	l.img.Stats = pt.Stats()
	if err != nil {
		return l.img, err
	}

	s := l.img.Stats
	log.Debugf("boot image built: %d ranges, %d pages (%d huge), %d tables, %d allocated frames",
		len(l.img.Entries), s.PagesMapped, s.HugePagesMapped, s.TablesAllocated, s.FramesAllocated)
	return l.img, nil
}

// loader carries the state of one Load call through its steps.
type loader struct {
	cfg    Config
	tables *pagetables.PageTables
	img    *Image
}

func (l *loader) run() error {
	for _, step := range []func() error{
		l.identityMapRegions,
		l.mapMMIO,
		l.mapFramebuffer,
		l.mapSegments,
	} {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

// install maps one range and records it. virt and physical are rounded
// the way the mapper rounds, so the recorded entry reflects what was
// installed.
func (l *loader) install(kind, name string, virt, size uint64, opts pagetables.MapOpts, physical uint64) error {
	base := memarch.Addr(virt).RoundDown()
	length := uintptr(memarch.PageCount(size)) << memarch.PageShift
	if err := l.tables.Map(base, length, opts, uintptr(physical)); err != nil {
		return fmt.Errorf("mapping %s %q [%#x, +%#x): %w", kind, name, virt, size, err)
	}
	physical &^= memarch.PageSize - 1
	l.img.Entries = append(l.img.Entries, Entry{
		Kind: kind,
		Name: name,
		Virt: uint64(base),
		Phys: physical,
		Size: uint64(length),
		Opts: opts,
	})
	log.Infof("mapped %s %q: %#x -> %#x size %#x [%v %s]",
		kind, name, uint64(base), physical, uint64(length), opts.AccessType, opts.MemoryType)
	return nil
}

// identityMapRegions installs an identity window over each mappable
// memory map region with the region type's attribute profile.
// Framebuffer regions are left to the framebuffer step, which knows
// the real geometry.
func (l *loader) identityMapRegions() error {
	if !l.cfg.IdentityMapUsable {
		return nil
	}
	for _, d := range l.cfg.MemoryMap {
		if d.Type == bootinfo.RegionFramebuffer {
			log.Debugf("region %s [%#x, %#x): left to the framebuffer mapping", d.Type, d.Base, d.End())
			continue
		}
		opts, mappable := bootinfo.Profile(d.Type)
		if !mappable {
			log.Debugf("region %s [%#x, %#x): not mapped", d.Type, d.Base, d.End())
			continue
		}
		if err := l.install("region", string(d.Type), uint64(d.Base), d.Size(), opts, uint64(d.Base)); err != nil {
			return err
		}
	}
	return nil
}

// mapMMIO installs each register window uncached at its physical
// address.
func (l *loader) mapMMIO() error {
	opts := pagetables.MapOpts{
		AccessType: memarch.ReadWrite,
		MemoryType: memarch.MemoryTypeUncached,
	}
	for _, w := range l.cfg.MMIO {
		if err := l.install("mmio", w.Name, uint64(w.Base), w.Size, opts, uint64(w.Base)); err != nil {
			return err
		}
	}
	return nil
}

// mapFramebuffer installs the framebuffer write-through at its
// physical address. Framebuffers the drawing code cannot use are
// skipped, not fatal.
func (l *loader) mapFramebuffer() error {
	fb := l.cfg.Framebuffer
	if fb == nil {
		return nil
	}
	if !fb.Supported() {
		log.Warningf("skipping framebuffer at %#x: %d bpp, model %q",
			fb.Base, fb.BitsPerPixel, fb.Model)
		return nil
	}
	opts, _ := bootinfo.Profile(bootinfo.RegionFramebuffer)
	return l.install("framebuffer", "framebuffer", uint64(fb.Base), fb.Size(), opts, uint64(fb.Base))
}

// mapSegments installs the kernel segments. A segment with a fixed
// physical base maps onto it; one without gets fresh frames, the .bss
// case.
func (l *loader) mapSegments() error {
	for _, s := range l.cfg.Segments {
		at, err := s.AccessType()
		if err != nil {
			return fmt.Errorf("segment %q: %w", s.Name, err)
		}
		opts := pagetables.MapOpts{AccessType: at, MemoryType: memarch.MemoryTypeWriteBack}
		if s.Phys != 0 {
			if err := l.install("segment", s.Name, uint64(s.Virt), s.Size, opts, uint64(s.Phys)); err != nil {
				return err
			}
			continue
		}
		base := memarch.Addr(s.Virt).RoundDown()
		length := uintptr(memarch.PageCount(s.Size)) << memarch.PageShift
		physical, err := l.tables.AllocateAndMap(base, length, opts)
		if err != nil {
			return fmt.Errorf("allocating segment %q [%#x, +%#x): %w", s.Name, s.Virt, s.Size, err)
		}
		l.img.Entries = append(l.img.Entries, Entry{
			Kind: "segment",
			Name: s.Name,
			Virt: uint64(base),
			Phys: uint64(physical),
			Size: uint64(length),
			Opts: opts,
		})
		log.Infof("mapped segment %q: %#x -> %#x size %#x [%v %s] from fresh frames",
			s.Name, uint64(base), physical, uint64(length), at, opts.MemoryType)
	}
	return nil
}
