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
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"bootmap.dev/bootmap/pkg/boot"
	"bootmap.dev/bootmap/pkg/physmem"
)

// loadScenario reads a boot scenario, decoding by file extension:
// ".toml", ".yaml" or ".yml". Unknown keys are errors in both formats.
func loadScenario(path string) (boot.Config, error) {
	var cfg boot.Config
	switch ext := filepath.Ext(path); ext {
	case ".toml":
		md, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return boot.Config{}, fmt.Errorf("decoding %q: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return boot.Config{}, fmt.Errorf("decoding %q: unknown keys %v", path, undecoded)
		}
	case ".yaml", ".yml":
		f, err := os.Open(path)
		if err != nil {
			return boot.Config{}, err
		}
		defer f.Close()
		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return boot.Config{}, fmt.Errorf("decoding %q: %w", path, err)
		}
	default:
		return boot.Config{}, fmt.Errorf("scenario %q: unsupported format %q", path, ext)
	}
	return cfg, nil
}

// buildImage runs a scenario end to end: decode, model the physical
// space, build the image. The caller closes the arena when done with
// the image.
func buildImage(path string) (*boot.Image, *physmem.Arena, error) {
	cfg, err := loadScenario(path)
	if err != nil {
		return nil, nil, err
	}
	pool, arena, err := boot.NewPool(cfg.MemoryMap)
	if err != nil {
		return nil, nil, err
	}
	img, err := boot.Load(cfg, pool)
	if err != nil {
		if img != nil {
			err = errors.New(img.Halt(err))
		}
		arena.Close()
		return nil, nil, err
	}
	return img, arena, nil
}
