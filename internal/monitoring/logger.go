// Package monitoring is the process-wide diagnostic log. Packages log
// through Logf with a bracketed component tag such as "[loader]" or "[api]".
package monitoring

import (
	"fmt"
	"log"
	"strings"
	"sync"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but
// may be replaced by SetLogger.
var Logf func(format string, v ...any) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...any)) {
	if f == nil {
		Logf = func(string, ...any) {}
		return
	}
	Logf = f
}

// Recorder keeps formatted log lines in memory.
type Recorder struct {
	mu    sync.Mutex
	lines []string
}

// Logf formats and stores one line.
func (r *Recorder) Logf(format string, v ...any) {
	line := fmt.Sprintf(format, v...)
	r.mu.Lock()
	r.lines = append(r.lines, line)
	r.mu.Unlock()
}

// Lines returns a copy of the recorded lines.
func (r *Recorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

// Contains reports whether any recorded line contains substr.
func (r *Recorder) Contains(substr string) bool {
	for _, l := range r.Lines() {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}

// Record routes Logf into a new Recorder until restore is called. Tests
// using it must not run in parallel with other logging tests.
func Record() (rec *Recorder, restore func()) {
	prev := Logf
	rec = &Recorder{}
	Logf = rec.Logf
	return rec, func() { Logf = prev }
}
