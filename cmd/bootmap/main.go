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

// Package main implements the bootmap command line, which builds the
// boot address space a scenario file describes and lets it be
// inspected without any hardware involved.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"

	"bootmap.dev/bootmap/pkg/log"
)

var (
	debug     = flag.Bool("debug", false, "enable debug logging.")
	logPath   = flag.String("log", "", `file path to log to. Empty or "-" means stderr.`)
	logFormat = flag.String("log-format", "text", `log format: "text" or "json".`)
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(new(Build), "")
	subcommands.Register(new(Dump), "")
	subcommands.Register(new(Translate), "")

	// All subcommands must be registered before flag parsing.
	flag.Parse()

	if *debug {
		log.SetLevel(log.Debug)
	}
	out := io.Writer(os.Stderr)
	if *logPath != "" && *logPath != "-" {
		f, err := os.OpenFile(*logPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
		if err != nil {
			fatalf("opening log file %q: %v", *logPath, err)
		}
		out = f
	}
	emitter, err := newEmitter(*logFormat, out)
	if err != nil {
		fatalf("%v", err)
	}
	log.SetTarget(emitter)

	os.Exit(int(subcommands.Execute(context.Background())))
}

func newEmitter(format string, w io.Writer) (log.Emitter, error) {
	switch format {
	case "text":
		return log.TextEmitter{Writer: &log.Writer{Next: w}, Component: "bootmap"}, nil
	case "json":
		return log.JSONEmitter{Writer: &log.Writer{Next: w}, Component: "bootmap"}, nil
	}
	return nil, fmt.Errorf("invalid log format %q, must be text or json", format)
}

// fatalf writes a message to stderr and exits with error code 1.
func fatalf(format string, v ...any) {
	fmt.Fprintf(os.Stderr, "bootmap: "+format+"\n", v...)
	os.Exit(1)
}
