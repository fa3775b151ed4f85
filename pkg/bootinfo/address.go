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
	"strconv"

	"gopkg.in/yaml.v3"
)

// Address is a physical or virtual address in a scenario file. It
// decodes from an integer or from a string in any base strconv
// accepts, "0x..." included. Addresses in the upper canonical half
// need the string form in TOML, whose integers are signed. No
// Stringer is defined so the usual numeric verbs apply.
type Address uint64

func (a *Address) parse(s string) error {
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return fmt.Errorf("bad address %q: %w", s, err)
	}
	*a = Address(v)
	return nil
}

// UnmarshalText implements encoding.TextUnmarshaler.UnmarshalText.
func (a *Address) UnmarshalText(text []byte) error {
	return a.parse(string(text))
}

// MarshalText implements encoding.TextMarshaler.MarshalText.
func (a Address) MarshalText() ([]byte, error) {
	return fmt.Appendf(nil, "%#x", uint64(a)), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.UnmarshalYAML. The node
// value carries the scalar as written, so integers, hex spellings and
// quoted strings all take the same path.
func (a *Address) UnmarshalYAML(value *yaml.Node) error {
	return a.parse(value.Value)
}

// MarshalYAML implements yaml.Marshaler.MarshalYAML.
func (a Address) MarshalYAML() (any, error) {
	return fmt.Sprintf("%#x", uint64(a)), nil
}
