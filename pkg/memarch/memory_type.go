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

package memarch

import "fmt"

// MemoryType specifies CPU memory access behavior for a mapped range.
type MemoryType uint8

const (
	// MemoryTypeWriteBack is ordinary cacheable memory (x86 WB). This is
	// the right type for RAM and must be the zero value for MemoryType.
	MemoryTypeWriteBack MemoryType = iota

	// MemoryTypeWriteThrough is cacheable memory whose writes go to memory
	// immediately (x86 WT). Used for framebuffers, where written pixels
	// must reach the device without an eviction.
	MemoryTypeWriteThrough

	// MemoryTypeWriteCombine is uncached memory with write buffering
	// (x86 WC). Selecting it requires PAT programming, which boot-time
	// construction does not do; it exists here because firmware memory
	// maps name it.
	MemoryTypeWriteCombine

	// MemoryTypeUncached is strongly uncached memory (x86 UC), required
	// for MMIO register windows.
	MemoryTypeUncached

	// NumMemoryTypes is the number of memory types.
	NumMemoryTypes
)

// String implements fmt.Stringer.String.
func (mt MemoryType) String() string {
	switch mt {
	case MemoryTypeWriteBack:
		return "WriteBack"
	case MemoryTypeWriteThrough:
		return "WriteThrough"
	case MemoryTypeWriteCombine:
		return "WriteCombine"
	case MemoryTypeUncached:
		return "Uncached"
	default:
		return fmt.Sprintf("%d", mt)
	}
}

// ShortString returns a two-character string compactly representing the
// MemoryType.
func (mt MemoryType) ShortString() string {
	switch mt {
	case MemoryTypeWriteBack:
		return "WB"
	case MemoryTypeWriteThrough:
		return "WT"
	case MemoryTypeWriteCombine:
		return "WC"
	case MemoryTypeUncached:
		return "UC"
	default:
		return fmt.Sprintf("%02d", mt)
	}
}
