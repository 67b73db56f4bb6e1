// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/powerapi-ng/joulehunter/internal/service"
)

// Probe serves /probe/livez and /probe/readyz from the services that
// implement service.LiveChecker and service.ReadyChecker
type Probe struct {
	logger   *slog.Logger
	api      APIService
	services []service.Service
}

// ServiceHealth is the health of a single service
type ServiceHealth struct {
	Name  string `json:"name"`
	Live  *bool  `json:"live,omitempty"`
	Ready *bool  `json:"ready,omitempty"`
}

// HealthStatus is the body of both probe endpoints
type HealthStatus struct {
	Status   string          `json:"status"` // "ok" or "unhealthy"
	Services []ServiceHealth `json:"services"`
}

var (
	_ service.Initializer = (*Probe)(nil)
	_ service.Runner      = (*Probe)(nil)
)

// NewProbe creates the probe service over services
func NewProbe(api APIService, services []service.Service, logger *slog.Logger) *Probe {
	if logger == nil {
		logger = slog.Default()
	}
	return &Probe{
		logger:   logger.With("service", "probe"),
		api:      api,
		services: services,
	}
}

func (p *Probe) Name() string {
	return "probe"
}

func (p *Probe) Init() error {
	if err := p.api.Register("/probe/livez", "Liveness Probe",
		"Returns 200 if all services are alive", http.HandlerFunc(p.livez)); err != nil {
		return err
	}
	return p.api.Register("/probe/readyz", "Readiness Probe",
		"Returns 200 if all services are ready", http.HandlerFunc(p.readyz))
}

// Run blocks until ctx is done; the probe only answers requests
func (p *Probe) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (p *Probe) livez(w http.ResponseWriter, r *http.Request) {
	p.check(w, r, func(svc service.Service) (ServiceHealth, bool) {
		lc, ok := svc.(service.LiveChecker)
		if !ok {
			return ServiceHealth{}, false
		}
		live := lc.IsLive()
		return ServiceHealth{Name: svc.Name(), Live: &live}, true
	})
}

func (p *Probe) readyz(w http.ResponseWriter, r *http.Request) {
	p.check(w, r, func(svc service.Service) (ServiceHealth, bool) {
		rc, ok := svc.(service.ReadyChecker)
		if !ok {
			return ServiceHealth{}, false
		}
		ready := rc.IsReady()
		return ServiceHealth{Name: svc.Name(), Ready: &ready}, true
	})
}

func (p *Probe) check(w http.ResponseWriter, r *http.Request, health func(service.Service) (ServiceHealth, bool)) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := HealthStatus{Status: "ok", Services: []ServiceHealth{}}
	healthy := true
	for _, svc := range p.services {
		h, ok := health(svc)
		if !ok {
			continue
		}
		status.Services = append(status.Services, h)
		if (h.Live != nil && !*h.Live) || (h.Ready != nil && !*h.Ready) {
			healthy = false
		}
	}

	code := http.StatusOK
	if !healthy {
		status.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	p.writeJSON(w, code, status)
}

func (p *Probe) writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		p.logger.Error("failed to encode JSON response", "error", err)
	}
}
