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

// visitor is called by the walker for each leaf position in a range.
//
// visit receives the first virtual address covered by the entry and
// the alignment mask of the entry's leaf size (size - 1). The entry is
// either an installed leaf or clear. A visitor that requires
// allocation is expected to install clear entries; declining a super
// candidate by leaving it clear makes the walker build out the next
// smaller level instead.
type visitor interface {
	visit(start uintptr, pte *PTE, align uintptr) error
	requiresAlloc() bool
}

// walker walks page tables.
type walker struct {
	// pageTables are the tables to walk.
	pageTables *PageTables

	// visitor is called on each entry in range.
	visitor visitor
}

// addrEnd returns the end of the size-aligned region containing addr,
// clamped to end. size must be a power of two.
func addrEnd(addr, end, size uintptr) uintptr {
	next := (addr + size) &^ (size - 1)
	if next < addr || next > end {
		return end
	}
	return next
}

// tableEmpty reports whether no entry in the table has been written.
func tableEmpty(ptes *PTEs) bool {
	for i := range ptes {
		if ptes[i] != 0 {
			return false
		}
	}
	return true
}

// checkTableEntry validates an interior entry about to be descended
// through on an allocating walk. Interior entries written by this
// package carry exactly present and writable; anything with the user
// bit was built under different invariants and must not be extended.
func (w *walker) checkTableEntry(start uintptr, entry *PTE, size uintptr) error {
	if !w.visitor.requiresAlloc() {
		return nil
	}
	if entry.Opts().User {
		return &OverlapError{Addr: start, Entry: *entry, Level: levelName(size)}
	}
	return nil
}

// walkPTEs iterates over the 4 KiB entries in the given range.
func (w *walker) walkPTEs(entries *PTEs, start, end uintptr) error {
	for start < end {
		pteIndex := uint16((start & pteMask) >> pteShift)
		entry := &entries[pteIndex]
		if !entry.Valid() && !w.visitor.requiresAlloc() {
			start += pteSize
			continue
		}
		if err := w.visitor.visit(start&^(pteSize-1), entry, pteSize-1); err != nil {
			return err
		}
		start += pteSize
	}
	return nil
}

// walkPMDs iterates over the pmd entries in the given range,
// installing 2 MiB leaves where the configuration and alignment allow.
func (w *walker) walkPMDs(pmdEntries *PTEs, start, end uintptr) error {
	for start < end {
		var pteEntries *PTEs
		nextBoundary := addrEnd(start, end, pmdSize)
		pmdIndex := uint16((start & pmdMask) >> pmdShift)
		pmdEntry := &pmdEntries[pmdIndex]
		created := false
		if !pmdEntry.Valid() {
			if !w.visitor.requiresAlloc() {
				start = nextBoundary
				continue
			}

			if w.pageTables.cfg.allowsLeaf(pmdSize) && start&(pmdSize-1) == 0 && end-start >= pmdSize {
				pmdEntry.SetSuper()
				if err := w.visitor.visit(start&^(pmdSize-1), pmdEntry, pmdSize-1); err != nil {
					return err
				}
				if pmdEntry.Valid() {
					start = nextBoundary
					continue
				}
				// Declined; drop the super marker and build out the
				// next level.
				pmdEntry.Clear()
			}

			var err error
			pteEntries, err = w.pageTables.allocTable(start)
			if err != nil {
				return err
			}
			pmdEntry.setPageTable(w.pageTables, pteEntries)
			created = true
		} else if pmdEntry.IsSuper() {
			if err := w.visitor.visit(start&^(pmdSize-1), pmdEntry, pmdSize-1); err != nil {
				return err
			}
			start = nextBoundary
			continue
		} else {
			if err := w.checkTableEntry(start, pmdEntry, pmdSize); err != nil {
				return err
			}
			pteEntries = w.pageTables.Allocator.LookupPTEs(pmdEntry.Address())
		}

		err := w.walkPTEs(pteEntries, start, nextBoundary)
		if err != nil && created && tableEmpty(pteEntries) {
			// Nothing was installed under the table allocated for the
			// failing page. Unlink and return it.
			pmdEntry.Clear()
			w.pageTables.freeTable(pteEntries)
		}
		if err != nil {
			return err
		}

		start = nextBoundary
	}
	return nil
}

// walkPUDs iterates over the pud entries in the given range,
// installing 1 GiB leaves where the configuration and alignment allow.
func (w *walker) walkPUDs(pudEntries *PTEs, start, end uintptr) error {
	for start < end {
		var pmdEntries *PTEs
		nextBoundary := addrEnd(start, end, pudSize)
		pudIndex := uint16((start & pudMask) >> pudShift)
		pudEntry := &pudEntries[pudIndex]
		created := false
		if !pudEntry.Valid() {
			if !w.visitor.requiresAlloc() {
				start = nextBoundary
				continue
			}

			if w.pageTables.cfg.allowsLeaf(pudSize) && start&(pudSize-1) == 0 && end-start >= pudSize {
				pudEntry.SetSuper()
				if err := w.visitor.visit(start&^(pudSize-1), pudEntry, pudSize-1); err != nil {
					return err
				}
				if pudEntry.Valid() {
					start = nextBoundary
					continue
				}
				pudEntry.Clear()
			}

			var err error
			pmdEntries, err = w.pageTables.allocTable(start)
			if err != nil {
				return err
			}
			pudEntry.setPageTable(w.pageTables, pmdEntries)
			created = true
		} else if pudEntry.IsSuper() {
			if err := w.visitor.visit(start&^(pudSize-1), pudEntry, pudSize-1); err != nil {
				return err
			}
			start = nextBoundary
			continue
		} else {
			if err := w.checkTableEntry(start, pudEntry, pudSize); err != nil {
				return err
			}
			pmdEntries = w.pageTables.Allocator.LookupPTEs(pudEntry.Address())
		}

		err := w.walkPMDs(pmdEntries, start, nextBoundary)
		if err != nil && created && tableEmpty(pmdEntries) {
			pudEntry.Clear()
			w.pageTables.freeTable(pmdEntries)
		}
		if err != nil {
			return err
		}

		start = nextBoundary
	}
	return nil
}

// iterateRangeCanonical walks a range known to lie inside a single
// canonical half.
func (w *walker) iterateRangeCanonical(start, end uintptr) error {
	for start < end {
		var pudEntries *PTEs
		nextBoundary := addrEnd(start, end, pgdSize)
		pgdIndex := uint16((start & pgdMask) >> pgdShift)
		pgdEntry := &w.pageTables.root[pgdIndex]
		created := false
		if !pgdEntry.Valid() {
			if !w.visitor.requiresAlloc() {
				start = nextBoundary
				continue
			}

			var err error
			pudEntries, err = w.pageTables.allocTable(start)
			if err != nil {
				return err
			}
			pgdEntry.setPageTable(w.pageTables, pudEntries)
			created = true
		} else {
			if err := w.checkTableEntry(start, pgdEntry, pgdSize); err != nil {
				return err
			}
			pudEntries = w.pageTables.Allocator.LookupPTEs(pgdEntry.Address())
		}

		err := w.walkPUDs(pudEntries, start, nextBoundary)
		if err != nil && created && tableEmpty(pudEntries) {
			pgdEntry.Clear()
			w.pageTables.freeTable(pudEntries)
		}
		if err != nil {
			return err
		}

		start = nextBoundary
	}
	return nil
}

// iterateRange iterates over all appropriate levels of page tables for
// the given range.
//
// If the visitor requires allocation, then visit is called on every
// clear leaf position in range, with super page candidates offered
// before the next level is built out. Without allocation the walk
// skips holes and visits only installed leaves.
//
// Precondition: start must be page-aligned.
// Precondition: start must be less than or equal to end.
// Precondition: if the visitor requires allocation, the range must lie
// in a single canonical half.
func (w *walker) iterateRange(start, end uintptr) error {
	if start%pteSize != 0 {
		panic("unaligned start")
	}
	if end < start {
		panic("start > end")
	}
	switch {
	case end <= lowerTop || start >= upperBottom:
		return w.iterateRangeCanonical(start, end)
	case w.visitor.requiresAlloc():
		panic("alloc spans non-canonical range")
	case start < lowerTop && end <= upperBottom:
		return w.iterateRangeCanonical(start, lowerTop)
	case start < lowerTop:
		if err := w.iterateRangeCanonical(start, lowerTop); err != nil {
			return err
		}
		return w.iterateRangeCanonical(upperBottom, end)
	case end > upperBottom:
		return w.iterateRangeCanonical(upperBottom, end)
	default:
		// Entirely inside the canonical hole.
		return nil
	}
}
