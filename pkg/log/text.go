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
	"time"
)

// TextEmitter emits human-readable log lines of the form
//
//	[LEVEL] (component) hh:mm:ss.uuuuuu message
//
// the console format of the boot environment this package serves.
type TextEmitter struct {
	*Writer

	// Component names the emitting program or subsystem. When empty the
	// parenthesized field is omitted.
	Component string
}

func levelTag(level Level) string {
	switch level {
	case Warning:
		return "WARN"
	case Info:
		return "INFO"
	case Debug:
		return "DEBUG"
	default:
		return "?????"
	}
}

// Emit implements Emitter.Emit.
func (t TextEmitter) Emit(_ int, level Level, timestamp time.Time, format string, v ...any) {
	line := "[" + levelTag(level) + "] "
	if t.Component != "" {
		line += "(" + t.Component + ") "
	}
	line += timestamp.Format("15:04:05.000000") + " " + format + "\n"
	t.Writer.Emit(0, level, timestamp, line, v...)
}
