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

package physmem

import (
	"unsafe"

	"golang.org/x/sys/unix"

	"bootmap.dev/bootmap/pkg/pagetables"
)

// mapAnonymous maps size bytes of zeroed, page aligned, private
// anonymous memory.
func mapAnonymous(size uintptr) ([]byte, error) {
	addr, _, errno := unix.RawSyscall6(
		unix.SYS_MMAP,
		0,
		size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS,
		^uintptr(0), // no file
		0)
	if errno != 0 {
		return nil, errno
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), int(size)), nil
}

// unmapAnonymous unmaps a mapping returned by mapAnonymous.
func unmapAnonymous(slice []byte) error {
	ptr := unsafe.SliceData(slice)
	_, _, errno := unix.RawSyscall(unix.SYS_MUNMAP, uintptr(unsafe.Pointer(ptr)), uintptr(cap(slice)), 0)
	if errno != 0 {
		return errno
	}
	return nil
}

// tableAt returns the page table stored at the given byte offset into
// the arena.
func (a *Arena) tableAt(off uintptr) *pagetables.PTEs {
	return (*pagetables.PTEs)(unsafe.Pointer(&a.mem[off]))
}

// physicalFor returns the physical address of a table handed out by
// tableAt.
func (a *Arena) physicalFor(ptes *pagetables.PTEs) uintptr {
	off := uintptr(unsafe.Pointer(ptes)) - uintptr(unsafe.Pointer(unsafe.SliceData(a.mem)))
	return a.physBase + off
}
