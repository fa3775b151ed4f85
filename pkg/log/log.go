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

// Package log implements leveled logging with pluggable emitters.
//
// The package-level functions log through a process-wide default logger,
// which programs configure once at startup with SetTarget and SetLevel.
// Components that want contextual logging hold a Logger value instead.
package log

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Level is the log level.
type Level uint32

// The levels are ordered so that a logger at a given level emits everything
// at that level and below.
const (
	// Warning indicates that output should always be emitted.
	Warning Level = iota

	// Info indicates that output should normally be emitted.
	Info

	// Debug indicates that output should not normally be emitted.
	Debug
)

// String implements fmt.Stringer.String.
func (l Level) String() string {
	switch l {
	case Warning:
		return "warning"
	case Info:
		return "info"
	case Debug:
		return "debug"
	default:
		return fmt.Sprintf("level(%d)", l)
	}
}

// Emitter is the final destination for logs.
type Emitter interface {
	// Emit emits the given log statement. depth is the number of calls
	// between the caller of the Logger method and Emit; emitters that
	// record call sites add their own hops on top of it.
	Emit(depth int, level Level, timestamp time.Time, format string, v ...any)
}

// Writer writes formatted log lines to an io.Writer, counting statements
// that could not be written and reporting the count on the next successful
// write. This keeps a flaky sink (a full pipe, a closed socket) from
// silently swallowing log lines without a trace.
type Writer struct {
	// Next is where output is written.
	Next io.Writer

	// mu protects the fields below.
	mu sync.Mutex

	// dropped is the number of log statements dropped since the last
	// successful write.
	dropped int
}

// Write implements io.Writer.Write.
func (l *Writer) Write(data []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.dropped > 0 {
		if _, err := fmt.Fprintf(l.Next, "\n*** Dropped %d log messages ***\n", l.dropped); err != nil {
			l.dropped++
			return 0, err
		}
		l.dropped = 0
	}
	n, err := l.Next.Write(data)
	if err != nil {
		l.dropped++
	}
	return n, err
}

// Emit implements Emitter.Emit, discarding all metadata.
func (l *Writer) Emit(_ int, _ Level, _ time.Time, format string, v ...any) {
	fmt.Fprintf(l, format, v...)
}

// MultiEmitter is an emitter that emits to multiple Emitters.
type MultiEmitter []Emitter

// Emit implements Emitter.Emit.
func (m *MultiEmitter) Emit(depth int, level Level, timestamp time.Time, format string, v ...any) {
	for _, e := range *m {
		e.Emit(1+depth, level, timestamp, format, v...)
	}
}

// TestLogger is implemented by testing.T and testing.B.
type TestLogger interface {
	Logf(format string, v ...any)
}

// TestEmitter routes logs to a test, so that package logging shows up in
// the output of the test that triggered it.
type TestEmitter struct {
	TestLogger
}

// Emit implements Emitter.Emit.
func (t TestEmitter) Emit(_ int, _ Level, _ time.Time, format string, v ...any) {
	t.Logf(format, v...)
}

// Logger is the high-level logging interface held by components that want
// contextual logging. BasicLogger satisfies it, as do the wrappers returned
// by RateLimitedLogger.
type Logger interface {
	// Debugf logs a debug statement.
	Debugf(format string, v ...any)

	// Infof logs at an info level.
	Infof(format string, v ...any)

	// Warningf logs at a warning level.
	Warningf(format string, v ...any)

	// IsLogging returns true iff this level is being logged. This may be
	// used to short-circuit expensive argument construction.
	IsLogging(level Level) bool
}

// BasicLogger is the default implementation of Logger.
type BasicLogger struct {
	Level
	Emitter
}

// Debugf implements Logger.Debugf.
func (l *BasicLogger) Debugf(format string, v ...any) {
	l.DebugfAtDepth(1, format, v...)
}

// Infof implements Logger.Infof.
func (l *BasicLogger) Infof(format string, v ...any) {
	l.InfofAtDepth(1, format, v...)
}

// Warningf implements Logger.Warningf.
func (l *BasicLogger) Warningf(format string, v ...any) {
	l.WarningfAtDepth(1, format, v...)
}

// DebugfAtDepth logs at a specific depth.
func (l *BasicLogger) DebugfAtDepth(depth int, format string, v ...any) {
	if l.IsLogging(Debug) {
		l.Emit(1+depth, Debug, time.Now(), format, v...)
	}
}

// InfofAtDepth logs at a specific depth.
func (l *BasicLogger) InfofAtDepth(depth int, format string, v ...any) {
	if l.IsLogging(Info) {
		l.Emit(1+depth, Info, time.Now(), format, v...)
	}
}

// WarningfAtDepth logs at a specific depth.
func (l *BasicLogger) WarningfAtDepth(depth int, format string, v ...any) {
	if l.IsLogging(Warning) {
		l.Emit(1+depth, Warning, time.Now(), format, v...)
	}
}

// IsLogging implements Logger.IsLogging.
func (l *BasicLogger) IsLogging(level Level) bool {
	return atomic.LoadUint32((*uint32)(&l.Level)) >= uint32(level)
}

// SetLevel sets the logging level.
func (l *BasicLogger) SetLevel(level Level) {
	atomic.StoreUint32((*uint32)(&l.Level), uint32(level))
}

var (
	// logMu protects updates to the default logger.
	logMu sync.Mutex

	// log is the default logger.
	log atomic.Pointer[BasicLogger]
)

func init() {
	log.Store(&BasicLogger{Level: Info, Emitter: TextEmitter{Writer: &Writer{Next: os.Stderr}}})
}

// Log retrieves the global logger.
func Log() *BasicLogger {
	return log.Load()
}

// SetTarget sets the log target for the global logger, preserving the
// current level.
func SetTarget(target Emitter) {
	logMu.Lock()
	defer logMu.Unlock()
	old := log.Load()
	log.Store(&BasicLogger{Level: old.Level, Emitter: target})
}

// SetLevel sets the log level for the global logger.
func SetLevel(newLevel Level) {
	log.Load().SetLevel(newLevel)
}

// Debugf logs to the global logger.
func Debugf(format string, v ...any) {
	Log().DebugfAtDepth(1, format, v...)
}

// Infof logs to the global logger.
func Infof(format string, v ...any) {
	Log().InfofAtDepth(1, format, v...)
}

// Warningf logs to the global logger.
func Warningf(format string, v ...any) {
	Log().WarningfAtDepth(1, format, v...)
}

// IsLogging returns whether the global logger is logging at the given level.
func IsLogging(level Level) bool {
	return Log().IsLogging(level)
}
