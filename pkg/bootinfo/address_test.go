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

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

func TestAddressForms(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want Address
	}{
		{"0", 0},
		{"1048576", 0x100000},
		{"0x100000", 0x100000},
		{"0xffffffff80000000", 0xffffffff80000000},
	} {
		var a Address
		if err := a.UnmarshalText([]byte(tc.in)); err != nil || a != tc.want {
			t.Errorf("UnmarshalText(%q) got (%#x, %v), want %#x", tc.in, uint64(a), err, uint64(tc.want))
		}
	}
	var a Address
	if err := a.UnmarshalText([]byte("lapic")); err == nil {
		t.Errorf("UnmarshalText accepted a word")
	}
}

// TOML integers are signed, so the schema takes addresses as strings
// too; both spellings must land on the same value.
func TestAddressTOML(t *testing.T) {
	var d Descriptor
	if _, err := toml.Decode("base = \"0xffff800000100000\"\npages = 1\ntype = \"usable\"\n", &d); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if d.Base != 0xffff800000100000 {
		t.Errorf("string base decoded to %#x", uint64(d.Base))
	}
	if _, err := toml.Decode("base = 0x100000\npages = 1\ntype = \"usable\"\n", &d); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if d.Base != 0x100000 {
		t.Errorf("integer base decoded to %#x", uint64(d.Base))
	}
}

func TestAddressYAML(t *testing.T) {
	var s Segment
	doc := "name: text\nvirt: 0xffffffff80000000\nphys: \"0x200000\"\nsize: 4096\naccess: r-x\n"
	if err := yaml.Unmarshal([]byte(doc), &s); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if s.Virt != 0xffffffff80000000 || s.Phys != 0x200000 {
		t.Errorf("decoded virt %#x phys %#x", uint64(s.Virt), uint64(s.Phys))
	}
	if err := s.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}
