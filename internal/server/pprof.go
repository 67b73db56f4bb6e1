// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"net/http"
	"net/http/pprof"

	"github.com/powerapi-ng/joulehunter/internal/service"
)

// pprofService exposes the Go runtime profiles of joulehunter itself, next to
// the energy profiles it serves
type pprofService struct {
	api APIService
}

var (
	_ service.Service     = (*pprofService)(nil)
	_ service.Initializer = (*pprofService)(nil)
)

func NewPprof(api APIService) *pprofService {
	return &pprofService{
		api: api,
	}
}

func (p *pprofService) Name() string {
	return "pprof"
}

func (p *pprofService) Init() error {
	return p.api.Register("/debug/pprof/", "pprof", "Go runtime profiles of this server", pprofHandlers())
}

func pprofHandlers() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	return mux
}
