// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/powerapi-ng/joulehunter/internal/processors"
	"github.com/powerapi-ng/joulehunter/internal/renderer"
	"github.com/powerapi-ng/joulehunter/internal/service"
	"github.com/powerapi-ng/joulehunter/internal/session"
)

// maxSessionSize bounds the body of a render request
const maxSessionSize = 64 << 20

// Render turns a saved session posted to /render into a report
type Render struct {
	logger   *slog.Logger
	api      APIService
	defaults processors.Options
}

var _ service.Initializer = (*Render)(nil)

func NewRender(api APIService, defaults processors.Options, logger *slog.Logger) *Render {
	if logger == nil {
		logger = slog.Default()
	}
	return &Render{
		logger:   logger.With("service", "render"),
		api:      api,
		defaults: defaults,
	}
}

func (rs *Render) Name() string {
	return "render"
}

func (rs *Render) Init() error {
	return rs.api.Register("/render", "Render",
		"POST a saved session; ?renderer=text|json|html|speedscope|pprof",
		http.HandlerFunc(rs.handle))
}

func contentType(name string) string {
	switch name {
	case renderer.HTML:
		return "text/html; charset=utf-8"
	case renderer.JSON, renderer.Speedscope:
		return "application/json"
	case renderer.Pprof:
		return "application/octet-stream"
	}
	return "text/plain; charset=utf-8"
}

func (rs *Render) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	name := q.Get("renderer")
	if name == "" {
		name = renderer.HTML
	}

	opts, err := rs.options(q.Get)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	rdr, err := renderer.New(name, opts...)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s, err := session.Load(http.MaxBytesReader(w, r.Body, maxSessionSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	buf := bytes.Buffer{}
	if err := rdr.Render(&buf, s); err != nil {
		rs.logger.Error("Failed to render session", "renderer", name, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	rs.logger.Debug("Rendered session", "renderer", name, "samples", s.SampleCount, "bytes", buf.Len())
	w.Header().Set("Content-Type", contentType(name))
	_, _ = buf.WriteTo(w)
}

// options reads the renderer options from the query, falling back to the
// server defaults
func (rs *Render) options(get func(string) string) ([]renderer.OptionFn, error) {
	popts := rs.defaults
	if v := get("filter_threshold"); v != "" {
		threshold, err := strconv.ParseFloat(v, 64)
		if err != nil || threshold < 0 || threshold > 1 {
			return nil, errors.New("filter_threshold must be a number within [0, 1]")
		}
		popts.FilterThreshold = threshold
	}

	var err error
	if v := get("hide_regex"); v != "" {
		if popts.HideRegex, err = processors.CompilePathRegex(v); err != nil {
			return nil, err
		}
	}
	if v := get("show_regex"); v != "" {
		if popts.ShowRegex, err = processors.CompilePathRegex(v); err != nil {
			return nil, err
		}
	}

	opts := []renderer.OptionFn{renderer.WithProcessorOptions(popts)}
	if v, err := strconv.ParseBool(get("unicode")); err == nil {
		opts = append(opts, renderer.WithUnicode(v))
	}
	if v, err := strconv.ParseBool(get("color")); err == nil {
		opts = append(opts, renderer.WithColor(v))
	}
	return opts, nil
}
