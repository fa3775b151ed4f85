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

package log

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

type testWriter struct {
	lines []string
	fail  bool
}

func (w *testWriter) Write(bytes []byte) (int, error) {
	if w.fail {
		return 0, fmt.Errorf("simulated failure")
	}
	w.lines = append(w.lines, string(bytes))
	return len(bytes), nil
}

func TestDropMessages(t *testing.T) {
	tw := &testWriter{}
	w := Writer{Next: tw}
	if _, err := w.Write([]byte("line 1\n")); err != nil {
		t.Fatalf("Write failed, err: %v", err)
	}

	tw.fail = true
	if _, err := w.Write([]byte("error\n")); err == nil {
		t.Fatalf("Write should have failed")
	}
	if _, err := w.Write([]byte("error\n")); err == nil {
		t.Fatalf("Write should have failed")
	}

	tw.fail = false
	if _, err := w.Write([]byte("line 2\n")); err != nil {
		t.Fatalf("Write failed, err: %v", err)
	}

	if len(tw.lines) != 3 {
		t.Fatalf("got %d lines, want 3: %q", len(tw.lines), tw.lines)
	}
	if tw.lines[0] != "line 1\n" {
		t.Errorf("line 0 got %q, want %q", tw.lines[0], "line 1\n")
	}
	if !strings.Contains(tw.lines[1], "Dropped 2 log messages") {
		t.Errorf("line 1 got %q, want a dropped-messages note", tw.lines[1])
	}
	if tw.lines[2] != "line 2\n" {
		t.Errorf("line 2 got %q, want %q", tw.lines[2], "line 2\n")
	}
}

func TestLevels(t *testing.T) {
	tw := &testWriter{}
	l := &BasicLogger{Level: Info, Emitter: &Writer{Next: tw}}

	l.Debugf("dropped")
	l.Infof("kept: %d", 1)
	l.Warningf("kept: %d", 2)
	if len(tw.lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(tw.lines), tw.lines)
	}

	l.SetLevel(Debug)
	if !l.IsLogging(Debug) {
		t.Errorf("IsLogging(Debug) got false, want true after SetLevel(Debug)")
	}
	l.Debugf("kept: %d", 3)
	if len(tw.lines) != 3 {
		t.Fatalf("got %d lines, want 3: %q", len(tw.lines), tw.lines)
	}
	for i, want := range []string{"kept: 1", "kept: 2", "kept: 3"} {
		if tw.lines[i] != want {
			t.Errorf("line %d got %q, want %q", i, tw.lines[i], want)
		}
	}
}

func TestTextEmitter(t *testing.T) {
	tw := &testWriter{}
	e := TextEmitter{Writer: &Writer{Next: tw}, Component: "boot"}
	ts := time.Date(2026, 2, 3, 4, 5, 6, 789000, time.UTC)
	e.Emit(0, Info, ts, "mapped %d pages", 256)

	if len(tw.lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(tw.lines))
	}
	want := "[INFO] (boot) 04:05:06.000789 mapped 256 pages\n"
	if tw.lines[0] != want {
		t.Errorf("got %q, want %q", tw.lines[0], want)
	}
}

func TestTextEmitterNoComponent(t *testing.T) {
	tw := &testWriter{}
	e := TextEmitter{Writer: &Writer{Next: tw}}
	e.Emit(0, Warning, time.Now(), "bare")

	if len(tw.lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(tw.lines))
	}
	if !strings.HasPrefix(tw.lines[0], "[WARN] ") || strings.Contains(tw.lines[0], "(") {
		t.Errorf("got %q, want no component field", tw.lines[0])
	}
}

func TestMultiEmitter(t *testing.T) {
	tw1, tw2 := &testWriter{}, &testWriter{}
	m := MultiEmitter{&Writer{Next: tw1}, &Writer{Next: tw2}}
	m.Emit(0, Info, time.Now(), "both")
	if len(tw1.lines) != 1 || len(tw2.lines) != 1 {
		t.Errorf("got %d and %d lines, want 1 and 1", len(tw1.lines), len(tw2.lines))
	}
}

func TestRateLimitedLogger(t *testing.T) {
	tw := &testWriter{}
	base := &BasicLogger{Level: Info, Emitter: &Writer{Next: tw}}
	rl := RateLimitedLogger(base, time.Hour)

	rl.Infof("first")
	rl.Infof("suppressed")
	rl.Warningf("suppressed")
	if len(tw.lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(tw.lines), tw.lines)
	}
	if tw.lines[0] != "first" {
		t.Errorf("got %q, want %q", tw.lines[0], "first")
	}
	if !rl.IsLogging(Info) {
		t.Errorf("IsLogging should pass through to the wrapped logger")
	}
}
