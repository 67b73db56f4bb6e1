// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/powerapi-ng/joulehunter/internal/device"
	"github.com/powerapi-ng/joulehunter/internal/service"
)

// DomainLister discovers the energy domains of the host; *device.Registry
// implements it
type DomainLister interface {
	Discover() ([]*device.Domain, error)
}

// Domains serves the energy domain hierarchy and is ready once it can be
// discovered
type Domains struct {
	logger *slog.Logger
	api    APIService
	lister DomainLister
}

var (
	_ service.Initializer  = (*Domains)(nil)
	_ service.ReadyChecker = (*Domains)(nil)
	_ service.LiveChecker  = (*Domains)(nil)
)

type domainJSON struct {
	Name       string       `json:"name"`
	Index      int          `json:"index"`
	Path       string       `json:"path"`
	MaxEnergy  float64      `json:"max_energy_joules"`
	Components []domainJSON `json:"components,omitempty"`
}

func NewDomains(api APIService, lister DomainLister, logger *slog.Logger) *Domains {
	if logger == nil {
		logger = slog.Default()
	}
	return &Domains{
		logger: logger.With("service", "domains"),
		api:    api,
		lister: lister,
	}
}

func (d *Domains) Name() string {
	return "domains"
}

func (d *Domains) Init() error {
	return d.api.Register("/domains", "Domains",
		"RAPL energy domains available for profiling; ?format=text for a plain listing",
		http.HandlerFunc(d.handle))
}

func (d *Domains) IsLive() bool {
	return true
}

func (d *Domains) IsReady() bool {
	domains, err := d.lister.Discover()
	if err != nil {
		d.logger.Warn("Energy domains not discoverable", "error", err)
		return false
	}
	return len(domains) > 0
}

func (d *Domains) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	domains, err := d.lister.Discover()
	if err != nil {
		d.logger.Error("Failed to discover energy domains", "error", err)
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(device.Stringify(domains)))
		return
	}

	out := make([]domainJSON, 0, len(domains))
	for _, p := range domains {
		pj := toDomainJSON(p)
		for _, c := range p.Components {
			pj.Components = append(pj.Components, toDomainJSON(c))
		}
		out = append(out, pj)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		d.logger.Error("failed to encode JSON response", "error", err)
	}
}

func toDomainJSON(d *device.Domain) domainJSON {
	return domainJSON{
		Name:      d.Name,
		Index:     d.Index,
		Path:      d.Path,
		MaxEnergy: d.MaxEnergy.Joules(),
	}
}
