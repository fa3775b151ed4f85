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
	"errors"
	"fmt"
)

// ErrAllocationExhausted is wrapped into errors returned when the
// backing frame source cannot satisfy a table or data frame request.
// Callers may recover by mapping a smaller working set; everything
// installed before the failure stays installed, and tables allocated
// for the failing page have been returned.
var ErrAllocationExhausted = errors.New("physical frame allocator exhausted")

// OverlapError reports a mapping request that ran into an entry
// already in place, or into an interior entry whose flags no table
// built here can carry. Nothing is overwritten; the boot flow treats
// this as fatal.
type OverlapError struct {
	// Addr is the first virtual address covered by the conflicting
	// entry.
	Addr uintptr

	// Entry is the entry already in place.
	Entry PTE

	// Level names the table level holding the entry.
	Level string
}

// Error implements error.Error.
func (e *OverlapError) Error() string {
	opts := e.Entry.Opts()
	kind := "leaf"
	switch {
	case e.Entry.IsSuper():
		kind = "huge leaf"
	case e.Level != "pte":
		kind = "table link"
	}
	return fmt.Sprintf("mapping conflict at %#x: existing %s %s -> %#x [%v %s user=%t global=%t]",
		e.Addr, e.Level, kind, e.Entry.Address(),
		opts.AccessType, opts.MemoryType.ShortString(), opts.User, opts.Global)
}

// UnsupportedAttributesError reports a request for mapping attributes
// that the configured processor features cannot encode.
type UnsupportedAttributesError struct {
	// Opts is the rejected combination.
	Opts MapOpts

	// Reason names the attribute that was rejected.
	Reason string
}

// Error implements error.Error.
func (e *UnsupportedAttributesError) Error() string {
	return fmt.Sprintf("unsupported mapping attributes: %s", e.Reason)
}
