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

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const tomlScenario = `identity_map_usable = true
huge_policy = "2MB"

[features]
no_execute = true
page_1gb = false

[[memory]]
base = 0x0
pages = 160
type = "reserved"

[[memory]]
base = 0x100000
pages = 3840
type = "usable"

[[segment]]
name = "text"
virt = "0xffffffff80000000"
phys = 0x200000
size = 0x3000
access = "r-x"

[[segment]]
name = "bss"
virt = "0xffffffff80003000"
size = 8192
access = "rw-"

[framebuffer]
base = 0xfd000000
width = 1024
height = 768
pitch = 4096
bpp = 32
model = "rgb"

[[mmio]]
name = "lapic"
base = 0xfee00000
size = 4096
`

const yamlScenario = `identity_map_usable: true
huge_policy: 2MB
features:
  no_execute: true
  page_1gb: false
memory:
  - base: 0x0
    pages: 160
    type: reserved
  - base: 0x100000
    pages: 3840
    type: usable
segment:
  - name: text
    virt: 0xffffffff80000000
    phys: 0x200000
    size: 0x3000
    access: r-x
  - name: bss
    virt: "0xffffffff80003000"
    size: 8192
    access: rw-
framebuffer:
  base: 0xfd000000
  width: 1024
  height: 768
  pitch: 4096
  bpp: 32
  model: rgb
mmio:
  - name: lapic
    base: 0xfee00000
    size: 4096
`

func writeScenario(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestScenarioFormatsAgree(t *testing.T) {
	fromTOML, err := loadScenario(writeScenario(t, "boot.toml", tomlScenario))
	if err != nil {
		t.Fatalf("toml: %v", err)
	}
	fromYAML, err := loadScenario(writeScenario(t, "boot.yaml", yamlScenario))
	if err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if diff := cmp.Diff(fromTOML, fromYAML); diff != "" {
		t.Errorf("formats disagree (-toml +yaml):\n%s", diff)
	}

	if err := fromTOML.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
	if got := fromTOML.Segments[0].Virt; got != 0xffffffff80000000 {
		t.Errorf("text virt decoded to %#x", uint64(got))
	}
	if fromTOML.Framebuffer == nil || !fromTOML.Framebuffer.Supported() {
		t.Errorf("framebuffer decoded to %+v", fromTOML.Framebuffer)
	}
	if fromTOML.Features.NoExecute == nil || !*fromTOML.Features.NoExecute {
		t.Errorf("no_execute did not decode to true")
	}
	if fromTOML.Features.GlobalPages != nil {
		t.Errorf("global_pages decoded to %v, want unset", *fromTOML.Features.GlobalPages)
	}
}

func TestScenarioRejects(t *testing.T) {
	if _, err := loadScenario(writeScenario(t, "boot.json", `{}`)); err == nil {
		t.Errorf("loadScenario accepted a .json path")
	}
	if _, err := loadScenario(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Errorf("loadScenario accepted a missing file")
	}
	if _, err := loadScenario(writeScenario(t, "bad.toml", "identity_map_usabel = true\n")); err == nil {
		t.Errorf("loadScenario accepted a misspelled toml key")
	}
	if _, err := loadScenario(writeScenario(t, "bad.yaml", "identity_map_usabel: true\n")); err == nil {
		t.Errorf("loadScenario accepted a misspelled yaml key")
	}
}

func TestBuildImageFromScenario(t *testing.T) {
	img, arena, err := buildImage(writeScenario(t, "boot.toml", tomlScenario))
	if err != nil {
		t.Fatalf("buildImage: %v", err)
	}
	defer arena.Close()

	phys, opts, ok := img.Translate(0xffffffff80000000)
	if !ok || phys != 0x200000 {
		t.Errorf("text translates to (%#x, %t), want (0x200000, true)", phys, ok)
	}
	if want := "r-x"; opts.AccessType.String() != want {
		t.Errorf("text access %q, want %q", opts.AccessType, want)
	}
	if img.Stats.HugePagesMapped == 0 {
		t.Errorf("2MB policy installed no huge leaves")
	}

	if _, _, err := buildImage(writeScenario(t, "hole.toml",
		"[[memory]]\nbase = 0x800\npages = 1\ntype = \"usable\"\n")); err == nil {
		t.Errorf("buildImage accepted an unaligned usable region")
	}
}
