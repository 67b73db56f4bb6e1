// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

// Package stack captures the call stack of one goroutine of the running
// program and classifies its frames.
package stack

import (
	"bytes"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
)

// ElidedFunction names the frame standing in for the frames the runtime
// leaves out of very deep stacks.
const ElidedFunction = "[elided frames]"

const (
	initialDumpSize = 64 << 10
	maxDumpSize     = 64 << 20
)

// ErrGoroutineID is returned when the goroutine id cannot be read from the stack header.
var ErrGoroutineID = errors.New("cannot determine goroutine id")

// Frame is one function activation.
type Frame struct {
	Function string
	File     string
	Line     int
}

// Elided reports whether f stands for frames omitted by the runtime.
func (f Frame) Elided() bool {
	return f.Function == ElidedFunction
}

// Trace is a captured stack, outermost frame first.
type Trace struct {
	Frames []Frame
	// State is the scheduler state, e.g. running, select, chan receive
	State string
	// Found is false when the goroutine no longer exists
	Found bool
}

// Reset empties t keeping its storage.
func (t *Trace) Reset() {
	t.Frames = t.Frames[:0]
	t.State = ""
	t.Found = false
}

// Waiting reports whether the goroutine was parked rather than executing.
func (t *Trace) Waiting() bool {
	return t.Found && !isActive(t.State)
}

func isActive(state string) bool {
	switch state {
	case "running", "runnable", "syscall":
		return true
	}
	return false
}

// Capturer fills a Trace with the current stack of the goroutine it observes.
type Capturer interface {
	Capture(*Trace) error
}

// CaptureFunc adapts a function to Capturer
type CaptureFunc func(*Trace) error

func (f CaptureFunc) Capture(t *Trace) error {
	return f(t)
}

// GoroutineCapturer captures a goroutine from a dump of all goroutines. The
// dump buffer is reused between captures and grows as needed.
type GoroutineCapturer struct {
	id uint64

	mu     sync.Mutex
	buf    []byte
	parser parser
}

var _ Capturer = (*GoroutineCapturer)(nil)

// NewGoroutineCapturer creates a capturer for goroutine id
func NewGoroutineCapturer(id uint64) *GoroutineCapturer {
	return &GoroutineCapturer{
		id:     id,
		buf:    make([]byte, initialDumpSize),
		parser: parser{names: map[string]string{}},
	}
}

// ID returns the observed goroutine id
func (c *GoroutineCapturer) ID() uint64 {
	return c.id
}

func (c *GoroutineCapturer) Capture(t *Trace) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		n := runtime.Stack(c.buf, true)
		if n < len(c.buf) || len(c.buf) >= maxDumpSize {
			c.parser.parse(c.buf[:n], c.id, t)
			return nil
		}
		c.buf = make([]byte, 2*len(c.buf))
	}
}

// CurrentGoroutineID returns the id of the calling goroutine.
func CurrentGoroutineID() (uint64, error) {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	id, _, ok := parseHeader(buf[:n])
	if !ok {
		return 0, ErrGoroutineID
	}
	return id, nil
}

// parseHeader parses "goroutine 42 [chan receive, 3 minutes]:"
func parseHeader(line []byte) (id uint64, state string, ok bool) {
	rest, found := bytes.CutPrefix(line, []byte("goroutine "))
	if !found {
		return 0, "", false
	}
	end := bytes.IndexByte(rest, ' ')
	if end < 0 {
		return 0, "", false
	}
	id, err := strconv.ParseUint(string(rest[:end]), 10, 64)
	if err != nil {
		return 0, "", false
	}

	open := bytes.IndexByte(rest, '[')
	if open < 0 {
		return id, "", true
	}
	st := rest[open+1:]
	if i := bytes.IndexAny(st, ",]"); i >= 0 {
		st = st[:i]
	}
	return id, string(st), true
}

func (f Frame) String() string {
	if f.File == "" {
		return f.Function
	}
	return fmt.Sprintf("%s %s:%d", f.Function, f.File, f.Line)
}
