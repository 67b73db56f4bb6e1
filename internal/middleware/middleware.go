// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

// Package middleware profiles the energy consumed by HTTP requests.
package middleware

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"k8s.io/utils/clock"

	"github.com/powerapi-ng/joulehunter/internal/device"
	"github.com/powerapi-ng/joulehunter/internal/profiler"
	"github.com/powerapi-ng/joulehunter/internal/renderer"
	"github.com/powerapi-ng/joulehunter/internal/session"
)

const (
	// DefaultURLArgument is the query argument requesting a report in the response
	DefaultURLArgument = "profile"

	packageArgument   = "package"
	componentArgument = "component"
	maxPathLength     = 100
)

type Opts struct {
	logger       *slog.Logger
	urlArgument  string
	profileDir   string
	show         func(*http.Request) bool
	pkg          string
	component    string
	profilerOpts []profiler.OptionFn
	renderer     *renderer.HTMLRenderer
	clock        clock.PassiveClock
}

// DefaultOpts profiles requests carrying ?profile and answers them with an
// HTML report
func DefaultOpts() Opts {
	return Opts{
		logger:      slog.Default(),
		urlArgument: DefaultURLArgument,
		show:        func(*http.Request) bool { return true },
		renderer:    renderer.NewHTML(),
		clock:       clock.RealClock{},
	}
}

// OptionFn is a function sets one more more options in Opts struct
type OptionFn func(*Opts)

func WithLogger(logger *slog.Logger) OptionFn {
	return func(o *Opts) {
		o.logger = logger
	}
}

// WithURLArgument sets the query argument requesting a report in the response
func WithURLArgument(arg string) OptionFn {
	return func(o *Opts) {
		o.urlArgument = arg
	}
}

// WithProfileDir profiles every request and saves each report into dir
func WithProfileDir(dir string) OptionFn {
	return func(o *Opts) {
		o.profileDir = dir
	}
}

// WithShowCallback restricts which requests may ask for a report in the response
func WithShowCallback(show func(*http.Request) bool) OptionFn {
	return func(o *Opts) {
		o.show = show
	}
}

// WithDomain sets the package and component measured when the request does
// not select them
func WithDomain(pkg, component string) OptionFn {
	return func(o *Opts) {
		o.pkg = pkg
		o.component = component
	}
}

// WithProfilerOptions adds options to every profiler the middleware creates
func WithProfilerOptions(opts ...profiler.OptionFn) OptionFn {
	return func(o *Opts) {
		o.profilerOpts = append(o.profilerOpts, opts...)
	}
}

// WithRendererOptions configures the HTML renderer of the reports
func WithRendererOptions(opts ...renderer.OptionFn) OptionFn {
	return func(o *Opts) {
		o.renderer = renderer.NewHTML(opts...)
	}
}

// WithClock sets the clock timestamping saved reports
func WithClock(c clock.PassiveClock) OptionFn {
	return func(o *Opts) {
		o.clock = c
	}
}

// Profiler is an http.Handler measuring the energy consumed while the
// wrapped handler serves a request.
type Profiler struct {
	next   http.Handler
	logger *slog.Logger
	opts   Opts
}

var _ http.Handler = (*Profiler)(nil)

// New wraps next
func New(next http.Handler, applyOpts ...OptionFn) *Profiler {
	opts := DefaultOpts()
	for _, apply := range applyOpts {
		apply(&opts)
	}
	return &Profiler{
		next:   next,
		logger: opts.logger.With("service", "middleware"),
		opts:   opts,
	}
}

func (m *Profiler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	inResponse := query.Has(m.opts.urlArgument) && m.opts.show(r)
	if !inResponse && m.opts.profileDir == "" {
		m.next.ServeHTTP(w, r)
		return
	}

	pkg, component := m.opts.pkg, m.opts.component
	if query.Has(packageArgument) {
		pkg = query.Get(packageArgument)
	}
	if query.Has(componentArgument) {
		component = query.Get(componentArgument)
	}

	opts := append([]profiler.OptionFn{profiler.WithLogger(m.opts.logger)}, m.opts.profilerOpts...)
	p := profiler.New(append(opts, profiler.WithPackage(pkg), profiler.WithComponent(component))...)
	if err := p.Start(); err != nil {
		if inResponse {
			m.logger.Warn("Failed to profile request", "path", r.URL.Path, "error", err)
			http.Error(w, err.Error(), startErrorStatus(err))
			return
		}
		m.logger.Error("Serving request without profiling", "path", r.URL.Path, "error", err)
		m.next.ServeHTTP(w, r)
		return
	}

	m.serveProfiled(p, w, r, inResponse)

	s, err := p.Stop()
	if err != nil {
		m.logger.Error("Profiling request failed", "path", r.URL.Path, "error", err)
		if inResponse {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	report := bytes.Buffer{}
	if err := m.opts.renderer.Render(&report, s); err != nil {
		m.logger.Error("Rendering request profile failed", "path", r.URL.Path, "error", err)
		if inResponse {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	if m.opts.profileDir != "" {
		if err := m.save(r, s, report.Bytes()); err != nil {
			m.logger.Error("Saving request profile failed", "dir", m.opts.profileDir, "error", err)
		}
	}

	if inResponse {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(report.Bytes())
	}
}

// serveProfiled runs the wrapped handler while p samples. A panicking
// handler releases the session before the panic reaches net/http.
func (m *Profiler) serveProfiled(p *profiler.Profiler, w http.ResponseWriter, r *http.Request, inResponse bool) {
	returned := false
	defer func() {
		if !returned {
			if err := p.Close(); err != nil {
				m.logger.Warn("Failed to stop profiling after panic", "path", r.URL.Path, "error", err)
			}
		}
	}()

	if inResponse {
		m.next.ServeHTTP(&discardWriter{header: http.Header{}}, r)
	} else {
		m.next.ServeHTTP(w, r)
	}
	returned = true
}

func startErrorStatus(err error) int {
	switch {
	case errors.Is(err, device.ErrDomainNotFound):
		return http.StatusBadRequest
	case errors.Is(err, profiler.ErrSessionAlreadyActive):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// save writes the report into the profile directory as
// "<energy>J <request path> <unix time>.html"
func (m *Profiler) save(r *http.Request, s *session.Session, report []byte) error {
	path := strings.ReplaceAll(r.URL.RequestURI(), "/", "_")
	if len(path) > maxPathLength {
		path = path[:maxPathLength]
	}
	if runtime.GOOS == "windows" {
		path = strings.ReplaceAll(path, "?", "_qs_")
	}

	name := fmt.Sprintf("%.3fJ %s %d.html", s.TotalEnergy().Joules(), path, m.opts.clock.Now().Unix())
	if err := os.MkdirAll(m.opts.profileDir, 0o755); err != nil {
		return err
	}

	file := filepath.Join(m.opts.profileDir, name)
	if err := os.WriteFile(file, report, 0o644); err != nil {
		return err
	}
	m.logger.Info("Saved request profile", "file", file, "energy", s.TotalEnergy())
	return nil
}

// discardWriter swallows the response of a request answered with its report
type discardWriter struct {
	header http.Header
}

func (d *discardWriter) Header() http.Header {
	return d.header
}

func (d *discardWriter) Write(b []byte) (int, error) {
	return len(b), nil
}

func (d *discardWriter) WriteHeader(int) {}
