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
	"text/tabwriter"

	"github.com/google/subcommands"
)

// Build implements subcommands.Command for the "build" command.
type Build struct{}

// Name implements subcommands.Command.Name.
func (*Build) Name() string {
	return "build"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Build) Synopsis() string {
	return "build the boot address space a scenario describes and print what was installed"
}

// Usage implements subcommands.Command.Usage.
func (*Build) Usage() string {
	return `build <scenario-file>

Where "<scenario-file>" is a machine description in TOML or YAML.
Exits nonzero when the scenario cannot be built, printing how far
construction got.

`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Build) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*Build) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	img, arena, err := buildImage(f.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "bootmap: %v\n", err)
		return subcommands.ExitFailure
	}
	defer arena.Close()

	fmt.Printf("root table: %#x\n", img.RootPhysical)
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "KIND\tNAME\tVIRT\tPHYS\tSIZE\tATTRS\n")
	for _, e := range img.Entries {
		fmt.Fprintf(tw, "%s\t%s\t%#x\t%#x\t%#x\t%v %s\n",
			e.Kind, e.Name, e.Virt, e.Phys, e.Size,
			e.Opts.AccessType, e.Opts.MemoryType.ShortString())
	}
	if err := tw.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "bootmap: %v\n", err)
		return subcommands.ExitFailure
	}
	s := img.Stats
	fmt.Printf("%d pages mapped (%d huge), %d tables, %d frames allocated\n",
		s.PagesMapped, s.HugePagesMapped, s.TablesAllocated, s.FramesAllocated)
	return subcommands.ExitSuccess
}
