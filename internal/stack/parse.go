// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

package stack

import (
	"bytes"
	"slices"
	"strconv"
)

var (
	createdByPrefix = []byte("created by ")
	elidedPrefix    = []byte("...")
)

// parser extracts one goroutine from a runtime.Stack dump. The runtime keeps
// the innermost and outermost frames of deep stacks around a "...N frames
// elided..." line; both sides are kept so the tree stays rooted at the
// goroutine entry.
type parser struct {
	// names interns function and file names across captures
	names map[string]string
}

func (p *parser) intern(b []byte) string {
	if p.names == nil {
		return string(b)
	}
	if s, ok := p.names[string(b)]; ok {
		return s
	}
	s := string(b)
	p.names[s] = s
	return s
}

// parse stores the frames of goroutine id outermost first. t.Found is false
// when the goroutine is absent.
func (p *parser) parse(dump []byte, id uint64, t *Trace) {
	t.Reset()

	inTarget := false
	// a file line belongs to the function line right above it
	expectFile := false
	for len(dump) > 0 {
		var line []byte
		line, dump, _ = bytes.Cut(dump, []byte{'\n'})

		if !inTarget {
			if gid, state, ok := parseHeader(line); ok && gid == id {
				inTarget = true
				t.Found = true
				t.State = state
			}
			continue
		}

		switch {
		case len(line) == 0:
			dump = nil
		case line[0] == '\t':
			if expectFile {
				file, lineNo := parseFileLine(line[1:])
				last := &t.Frames[len(t.Frames)-1]
				last.File = p.intern(file)
				last.Line = lineNo
			}
			expectFile = false
		case bytes.HasPrefix(line, createdByPrefix):
			expectFile = false
		case bytes.HasPrefix(line, elidedPrefix):
			t.Frames = append(t.Frames, Frame{Function: ElidedFunction})
			expectFile = false
		default:
			t.Frames = append(t.Frames, Frame{Function: p.intern(funcName(line))})
			expectFile = true
		}
	}

	slices.Reverse(t.Frames)
}

// funcName strips the argument list from "pkg.(*T).Method(0x1, {0x2, 0x3})"
func funcName(line []byte) []byte {
	line = bytes.TrimRight(line, " \r")
	if len(line) == 0 || line[len(line)-1] != ')' {
		return line
	}

	depth := 0
	for i := len(line) - 1; i >= 0; i-- {
		switch line[i] {
		case ')':
			depth++
		case '(':
			depth--
			if depth == 0 {
				return line[:i]
			}
		}
	}
	return line
}

// parseFileLine parses "/src/app/main.go:42 +0x1d"
func parseFileLine(line []byte) ([]byte, int) {
	if i := bytes.LastIndex(line, []byte(" +0x")); i >= 0 {
		line = line[:i]
	}
	line = bytes.TrimSpace(line)

	colon := bytes.LastIndexByte(line, ':')
	if colon < 0 {
		return line, 0
	}
	n, err := strconv.Atoi(string(line[colon+1:]))
	if err != nil {
		return line, 0
	}
	return line[:colon], n
}
