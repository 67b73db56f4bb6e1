// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"log/slog"
	"strconv"
	"sync"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/powerapi-ng/joulehunter/internal/device"
)

// EnergyZoneCollector exposes the raw RAPL counters of the host
type EnergyZoneCollector struct {
	sync.Mutex

	logger *slog.Logger
	zones  device.ZoneLister

	energyDesc *prom.Desc
	maxDesc    *prom.Desc
}

var _ prom.Collector = (*EnergyZoneCollector)(nil)

// NewEnergyZoneCollector creates a collector reading zones on every scrape
func NewEnergyZoneCollector(zones device.ZoneLister, logger *slog.Logger) *EnergyZoneCollector {
	labels := []string{"zone", "index", "path"}
	return &EnergyZoneCollector{
		logger: logger.With("collector", "energy_zone"),
		zones:  zones,
		energyDesc: prom.NewDesc(
			prom.BuildFQName(namespace, "rapl_zone", "energy_joules"),
			"Energy counter of the RAPL zone in joules; it wraps at the zone max",
			labels,
			nil,
		),
		maxDesc: prom.NewDesc(
			prom.BuildFQName(namespace, "rapl_zone", "max_energy_joules"),
			"Value at which the energy counter of the RAPL zone wraps",
			labels,
			nil,
		),
	}
}

func (c *EnergyZoneCollector) Describe(ch chan<- *prom.Desc) {
	ch <- c.energyDesc
	ch <- c.maxDesc
}

func (c *EnergyZoneCollector) Collect(ch chan<- prom.Metric) {
	c.Lock()
	defer c.Unlock()

	zones, err := c.zones.Zones()
	if err != nil {
		c.logger.Warn("Failed to list RAPL zones", "error", err)
		return
	}

	for _, z := range zones {
		labels := []string{z.Name(), strconv.Itoa(z.Index()), z.Path()}

		ch <- prom.MustNewConstMetric(c.maxDesc, prom.GaugeValue, z.MaxEnergy().Joules(), labels...)

		energy, err := z.Energy()
		if err != nil {
			c.logger.Warn("Failed to read RAPL zone", "zone", z.Name(), "error", err)
			continue
		}
		// a wrapping counter is a gauge for prometheus
		ch <- prom.MustNewConstMetric(c.energyDesc, prom.GaugeValue, energy.Joules(), labels...)
	}
}
