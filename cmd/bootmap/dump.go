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

	"bootmap.dev/bootmap/pkg/pagetables"
)

// Dump implements subcommands.Command for the "dump" command.
type Dump struct{}

// Name implements subcommands.Command.Name.
func (*Dump) Name() string {
	return "dump"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Dump) Synopsis() string {
	return "list every leaf a scenario's page tables install, in virtual address order"
}

// Usage implements subcommands.Command.Usage.
func (*Dump) Usage() string {
	return `dump <scenario-file>

Builds the scenario and lists the installed leaves the way a hardware
walk would find them, one line per leaf, both canonical halves.

`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Dump) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*Dump) Execute(_ context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
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

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "VIRT\tPHYS\tSIZE\tATTRS\n")
	var leaves int
	img.Walk(func(m pagetables.Mapping) {
		leaves++
		fmt.Fprintf(tw, "%#x\t%#x\t%#x\t%v %s\n",
			m.Addr, m.Physical, m.Size, m.Opts.AccessType, m.Opts.MemoryType.ShortString())
	})
	if err := tw.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "bootmap: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Printf("%d leaves, root table %#x\n", leaves, img.RootPhysical)
	return subcommands.ExitSuccess
}
