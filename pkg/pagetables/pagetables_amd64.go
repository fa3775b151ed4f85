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

import "bootmap.dev/bootmap/pkg/memarch"

// The four paging levels, from the leaves up: pte, pmd, pud, pgd. Each
// table holds 512 eight-byte entries, so every level decodes nine bits
// of the virtual address.
const (
	entriesPerPage = 512

	pteShift = 12
	pmdShift = 21
	pudShift = 30
	pgdShift = 39

	pteSize = 1 << pteShift
	pmdSize = 1 << pmdShift
	pudSize = 1 << pudShift
	pgdSize = 1 << pgdShift

	pteMask = (entriesPerPage - 1) << pteShift
	pmdMask = (entriesPerPage - 1) << pmdShift
	pudMask = (entriesPerPage - 1) << pudShift
	pgdMask = (entriesPerPage - 1) << pgdShift
)

// Canonical address space bounds with four paging levels. lowerTop is
// the exclusive end of the lower half, upperBottom the inclusive start
// of the upper half. Everything in between is unmappable.
const (
	lowerTop    = 0x0000800000000000
	upperBottom = 0xffff800000000000
)

// IsCanonical reports whether addr is in canonical form.
func IsCanonical(addr memarch.Addr) bool {
	return uintptr(addr) < lowerTop || uintptr(addr) >= upperBottom
}

// IsCanonicalRange reports whether [addr, addr+length) lies entirely
// inside one canonical half of the address space, without wrapping.
// Map requires this of every nonempty range it is given, so callers
// taking ranges from external input can validate instead of panicking.
func IsCanonicalRange(addr memarch.Addr, length uintptr) bool {
	end, ok := addr.AddLength(uint64(length))
	if !ok {
		return false
	}
	return uintptr(end) <= lowerTop || uintptr(addr) >= upperBottom
}

// allowsLeaf reports whether the configuration permits installing a
// leaf of the given size.
func (c Config) allowsLeaf(size uintptr) bool {
	switch size {
	case pudSize:
		return c.HugePolicy >= Huge1GB
	case pmdSize:
		return c.HugePolicy >= Huge2MB
	}
	return size == pteSize
}

// levelName names the table level whose entries each cover size bytes.
func levelName(size uintptr) string {
	switch size {
	case pteSize:
		return "pte"
	case pmdSize:
		return "pmd"
	case pudSize:
		return "pud"
	case pgdSize:
		return "pgd"
	}
	return "?"
}
