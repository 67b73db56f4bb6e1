// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

// Package joulehunter attributes the energy measured by RAPL counters to the
// call stacks of a Go program.
//
//	p := joulehunter.New(joulehunter.WithComponent("core"))
//	s, err := p.Run(work)
//	if err != nil {
//		return err
//	}
//	r, _ := joulehunter.NewRenderer(joulehunter.RendererText)
//	return r.Render(os.Stdout, s)
package joulehunter

import (
	"io"
	"net/http"

	"github.com/powerapi-ng/joulehunter/internal/middleware"
	"github.com/powerapi-ng/joulehunter/internal/profiler"
	"github.com/powerapi-ng/joulehunter/internal/renderer"
	"github.com/powerapi-ng/joulehunter/internal/sampler"
	"github.com/powerapi-ng/joulehunter/internal/session"
)

type (
	Profiler         = profiler.Profiler
	Option           = profiler.OptionFn
	Session          = session.Session
	Renderer         = renderer.Renderer
	RendererOption   = renderer.OptionFn
	AsyncMode        = sampler.AsyncMode
	Middleware       = middleware.Profiler
	MiddlewareOption = middleware.OptionFn
)

const (
	AsyncDisabled = sampler.AsyncDisabled
	AsyncEnabled  = sampler.AsyncEnabled
	AsyncStrict   = sampler.AsyncStrict

	RendererText       = renderer.Text
	RendererJSON       = renderer.JSON
	RendererHTML       = renderer.HTML
	RendererSpeedscope = renderer.Speedscope
	RendererPprof      = renderer.Pprof
)

var (
	ErrSessionAlreadyActive = profiler.ErrSessionAlreadyActive
	ErrNoActiveSession      = profiler.ErrNoActiveSession
	ErrUnknownRenderer      = renderer.ErrUnknownRenderer
)

// Profiler options
var (
	WithLogger    = profiler.WithLogger
	WithPackage   = profiler.WithPackage
	WithComponent = profiler.WithComponent
	WithInterval  = profiler.WithInterval
	WithAsyncMode = profiler.WithAsyncMode
)

// Renderer options
var (
	WithUnicode = renderer.WithUnicode
	WithColor   = renderer.WithColor
)

// New creates a profiler measuring package 0 unless configured otherwise
func New(opts ...Option) *Profiler {
	return profiler.New(opts...)
}

// NewRenderer returns the renderer called name, one of RendererNames
func NewRenderer(name string, opts ...RendererOption) (Renderer, error) {
	return renderer.New(name, opts...)
}

func RendererNames() []string {
	return renderer.Names()
}

// LoadSession reads a session written by Session.Save
func LoadSession(r io.Reader) (*Session, error) {
	return session.Load(r)
}

// NewMiddleware profiles the requests to next that carry the profile query
// argument and answers them with an HTML report.
func NewMiddleware(next http.Handler, opts ...MiddlewareOption) *Middleware {
	return middleware.New(next, opts...)
}
