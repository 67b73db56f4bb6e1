// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

// Package renderer turns profiling sessions into reports.
package renderer

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/powerapi-ng/joulehunter/internal/processors"
	"github.com/powerapi-ng/joulehunter/internal/session"
	"github.com/powerapi-ng/joulehunter/internal/tree"
)

// Renderer names
const (
	Text       = "text"
	JSON       = "json"
	HTML       = "html"
	Speedscope = "speedscope"
	Pprof      = "pprof"
)

// ErrUnknownRenderer is returned by New for names it does not know
var ErrUnknownRenderer = errors.New("unknown renderer")

// Renderer writes a report of a session. The call tree is passed through
// Processors before rendering; the session itself is never modified.
type Renderer interface {
	Processors() []processors.Processor
	Render(w io.Writer, s *session.Session) error
}

// Names returns the renderers New accepts
func Names() []string {
	return []string{Text, JSON, HTML, Speedscope, Pprof}
}

// New creates the renderer called name
func New(name string, applyOpts ...OptionFn) (Renderer, error) {
	switch name {
	case Text:
		return NewText(applyOpts...), nil
	case JSON:
		return NewJSON(applyOpts...), nil
	case HTML:
		return NewHTML(applyOpts...), nil
	case Speedscope:
		return NewSpeedscope(applyOpts...), nil
	case Pprof:
		return NewPprof(applyOpts...), nil
	}
	return nil, fmt.Errorf("%w: %q, expected one of %s", ErrUnknownRenderer, name, strings.Join(Names(), ", "))
}

// Output renders s to a string
func Output(r Renderer, s *session.Session) (string, error) {
	sb := strings.Builder{}
	if err := r.Render(&sb, s); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// Extension returns the file extension reports of the named renderer use
func Extension(name string) string {
	switch name {
	case Text:
		return "txt"
	case Pprof:
		return "pb.gz"
	case Speedscope:
		return "speedscope.json"
	}
	return name
}

type Opts struct {
	processors       []processors.Processor
	customProcessors bool
	processorOptions processors.Options
	unicode          bool
	color            bool
}

// DefaultOpts returns the options shared by every renderer
func DefaultOpts() Opts {
	return Opts{
		processorOptions: processors.DefaultOptions(),
	}
}

// OptionFn is a function sets one more more options in Opts struct
type OptionFn func(*Opts)

// WithProcessors replaces the processors of the renderer; none disables processing
func WithProcessors(p ...processors.Processor) OptionFn {
	return func(o *Opts) {
		o.processors = p
		o.customProcessors = true
	}
}

// WithProcessorOptions sets the options handed to every processor
func WithProcessorOptions(opts processors.Options) OptionFn {
	return func(o *Opts) {
		o.processorOptions = opts
	}
}

// WithUnicode draws the text tree with box-drawing characters
func WithUnicode(enabled bool) OptionFn {
	return func(o *Opts) {
		o.unicode = enabled
	}
}

// WithColor colours the text output when the writer supports it
func WithColor(enabled bool) OptionFn {
	return func(o *Opts) {
		o.color = enabled
	}
}

// base holds what renderers share: the processors and their options
type base struct {
	opts       Opts
	processors []processors.Processor
}

func newBase(defaults []processors.Processor, applyOpts ...OptionFn) base {
	opts := DefaultOpts()
	for _, apply := range applyOpts {
		apply(&opts)
	}
	b := base{opts: opts, processors: defaults}
	if opts.customProcessors {
		b.processors = opts.processors
	}
	return b
}

func (b base) Processors() []processors.Processor {
	return b.processors
}

// preprocess returns the processed copy of the session tree, nil when the
// session has no samples
func (b base) preprocess(s *session.Session) *tree.Frame {
	return processors.Apply(s.RootFrame(), b.processors, b.opts.processorOptions)
}

// codePosition returns file:line of f, empty for synthetic frames
func codePosition(f *tree.Frame) string {
	if f.FilePathShort == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", f.FilePathShort, f.LineNo)
}

// truncate shortens s to at most n runes, marking the cut with an ellipsis
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
