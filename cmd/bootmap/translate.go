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
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/google/subcommands"

	"bootmap.dev/bootmap/pkg/memarch"
)

// Translate implements subcommands.Command for the "translate"
// command.
type Translate struct{}

// Name implements subcommands.Command.Name.
func (*Translate) Name() string {
	return "translate"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Translate) Synopsis() string {
	return "resolve virtual addresses through a scenario's page tables"
}

// Usage implements subcommands.Command.Usage.
func (*Translate) Usage() string {
	return `translate <scenario-file> <address>...

Builds the scenario and resolves each address the way the hardware
walker would, printing the physical address and attributes. Addresses
take any base strconv accepts, "0x..." included. Exits nonzero when an
address is not mapped.

`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Translate) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*Translate) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() < 2 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	img, arena, err := buildImage(f.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "bootmap: %v\n", err)
		return subcommands.ExitFailure
	}
	defer arena.Close()

	status := subcommands.ExitSuccess
	for _, arg := range f.Args()[1:] {
		addr, err := strconv.ParseUint(arg, 0, 64)
		if err != nil {
			fmt.Fprintf(os.Stderr, "bootmap: bad address %q: %v\n", arg, err)
			return subcommands.ExitUsageError
		}
		phys, opts, ok := img.Translate(memarch.Addr(addr))
		if !ok {
			fmt.Printf("%#x: not mapped\n", addr)
			status = subcommands.ExitFailure
			continue
		}
		fmt.Printf("%#x -> %#x [%v %s]\n", addr, phys, opts.AccessType, opts.MemoryType.ShortString())
	}
	return status
}
