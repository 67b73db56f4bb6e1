// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/powerapi-ng/joulehunter/internal/profiler"
)

// StatsSource provides a snapshot of the profiling activity
type StatsSource interface {
	Stats() profiler.RuntimeStats
}

// ProfilerCollector exposes the activity of a profiler runtime
type ProfilerCollector struct {
	source StatsSource

	active       *prom.Desc
	sessions     *prom.Desc
	ticks        *prom.Desc
	dropped      *prom.Desc
	energy       *prom.Desc
	awaitEnergy  *prom.Desc
	lastEnergy   *prom.Desc
	lastDuration *prom.Desc
	lastSamples  *prom.Desc
}

var _ prom.Collector = (*ProfilerCollector)(nil)

func NewProfilerCollector(source StatsSource) *ProfilerCollector {
	desc := func(subsystem, name, help string) *prom.Desc {
		return prom.NewDesc(prom.BuildFQName(namespace, subsystem, name), help, nil, nil)
	}
	return &ProfilerCollector{
		source:       source,
		active:       desc("profiler", "active", "1 while a profiling session is sampling"),
		sessions:     desc("profiler", "sessions_total", "Profiling sessions completed"),
		ticks:        desc("sampler", "ticks", "Samples taken by the current or last session"),
		dropped:      desc("sampler", "dropped_ticks", "Ticks dropped by the current or last session because the previous one was still running"),
		energy:       desc("sampler", "energy_joules", "Energy attributed by the current or last session"),
		awaitEnergy:  desc("sampler", "await_energy_joules", "Energy attributed while the profiled goroutine was parked"),
		lastEnergy:   desc("last_session", "energy_joules", "Energy measured by the last completed session"),
		lastDuration: desc("last_session", "duration_seconds", "Duration of the last completed session"),
		lastSamples:  desc("last_session", "samples", "Samples recorded by the last completed session"),
	}
}

func (c *ProfilerCollector) Describe(ch chan<- *prom.Desc) {
	ch <- c.active
	ch <- c.sessions
	ch <- c.ticks
	ch <- c.dropped
	ch <- c.energy
	ch <- c.awaitEnergy
	ch <- c.lastEnergy
	ch <- c.lastDuration
	ch <- c.lastSamples
}

func (c *ProfilerCollector) Collect(ch chan<- prom.Metric) {
	stats := c.source.Stats()

	active := 0.0
	if stats.Active {
		active = 1
	}
	ch <- prom.MustNewConstMetric(c.active, prom.GaugeValue, active)
	ch <- prom.MustNewConstMetric(c.sessions, prom.CounterValue, float64(stats.Sessions))
	ch <- prom.MustNewConstMetric(c.ticks, prom.GaugeValue, float64(stats.Sampler.Ticks))
	ch <- prom.MustNewConstMetric(c.dropped, prom.GaugeValue, float64(stats.Sampler.Dropped))
	ch <- prom.MustNewConstMetric(c.energy, prom.GaugeValue, stats.Sampler.Energy.Joules())
	ch <- prom.MustNewConstMetric(c.awaitEnergy, prom.GaugeValue, stats.Sampler.AwaitEnergy.Joules())

	if s := stats.LastSession; s != nil {
		ch <- prom.MustNewConstMetric(c.lastEnergy, prom.GaugeValue, s.TotalEnergy().Joules())
		ch <- prom.MustNewConstMetric(c.lastDuration, prom.GaugeValue, s.Duration.Seconds())
		ch <- prom.MustNewConstMetric(c.lastSamples, prom.GaugeValue, float64(s.SampleCount))
	}
}
