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

package pagetables

import (
	"unsafe"

	"bootmap.dev/bootmap/pkg/memarch"
)

// newAlignedPTEs carves a page aligned table out of a fresh heap slab.
// The returned pointer is an interior pointer into the slab and keeps
// it reachable.
func newAlignedPTEs() *PTEs {
	slab := make([]byte, 2*memarch.PageSize)
	p := unsafe.Pointer(unsafe.SliceData(slab))
	off := (memarch.PageSize - uintptr(p)%memarch.PageSize) % memarch.PageSize
	return (*PTEs)(unsafe.Add(p, off))
}

// newAlignedFrames allocates count page aligned, zeroed frames,
// returning the base address and the backing slab. The caller must
// keep the slab reachable for as long as the frames are live.
func newAlignedFrames(count int) (uintptr, []byte) {
	slab := make([]byte, (count+1)*memarch.PageSize)
	p := unsafe.Pointer(unsafe.SliceData(slab))
	off := (memarch.PageSize - uintptr(p)%memarch.PageSize) % memarch.PageSize
	return uintptr(p) + off, slab
}

// physicalFor is the identity translation used by HeapAllocator: a
// table's host address doubles as its physical address.
func physicalFor(ptes *PTEs) uintptr {
	return uintptr(unsafe.Pointer(ptes))
}
