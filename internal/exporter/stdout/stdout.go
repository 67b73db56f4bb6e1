// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

// Package stdout periodically prints the power drawn by every RAPL zone of
// the host, and the state of the profiler, as a table.
package stdout

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"k8s.io/utils/clock"

	"github.com/powerapi-ng/joulehunter/internal/device"
	"github.com/powerapi-ng/joulehunter/internal/profiler"
	"github.com/powerapi-ng/joulehunter/internal/service"
)

type (
	Initializer = service.Initializer
	Runner      = service.Runner
	Shutdowner  = service.Shutdowner
)

// StatsSource reports the state of the profiler; *profiler.Runtime implements it
type StatsSource interface {
	Stats() profiler.RuntimeStats
}

// Exporter prints zone power to its output every interval
type Exporter struct {
	logger   *slog.Logger
	zones    device.ZoneLister
	stats    StatsSource
	out      io.WriteCloser
	clock    clock.WithTicker
	interval time.Duration

	meters   []*meter
	lastTime time.Time
}

// meter follows one zone between reports
type meter struct {
	name   string
	source *device.Source
	last   device.Energy
}

var (
	_ Initializer = (*Exporter)(nil)
	_ Runner      = (*Exporter)(nil)
	_ Shutdowner  = (*Exporter)(nil)
)

type Opts struct {
	logger   *slog.Logger
	out      io.WriteCloser
	interval time.Duration
	clock    clock.WithTicker
	stats    StatsSource
}

// DefaultOpts() returns a new Opts with defaults set
func DefaultOpts() Opts {
	return Opts{
		logger:   slog.Default(),
		out:      os.Stdout,
		interval: 2 * time.Second,
		clock:    clock.RealClock{},
	}
}

// OptionFn is a function sets one more more options in Opts struct
type OptionFn func(*Opts)

// WithLogger sets the logger for the Exporter
func WithLogger(logger *slog.Logger) OptionFn {
	return func(o *Opts) {
		o.logger = logger
	}
}

func WithOutput(out io.WriteCloser) OptionFn {
	return func(o *Opts) {
		o.out = out
	}
}

func WithInterval(interval time.Duration) OptionFn {
	return func(o *Opts) {
		o.interval = interval
	}
}

func WithClock(c clock.WithTicker) OptionFn {
	return func(o *Opts) {
		o.clock = c
	}
}

// WithStats adds a profiler summary line under every table
func WithStats(s StatsSource) OptionFn {
	return func(o *Opts) {
		o.stats = s
	}
}

func NewExporter(zones device.ZoneLister, applyOpts ...OptionFn) *Exporter {
	opts := DefaultOpts()
	for _, apply := range applyOpts {
		apply(&opts)
	}

	return &Exporter{
		logger:   opts.logger.With("service", "stdout"),
		zones:    zones,
		stats:    opts.stats,
		out:      opts.out,
		clock:    opts.clock,
		interval: opts.interval,
	}
}

// Init opens every zone and takes the baseline reading
func (e *Exporter) Init() error {
	zones, err := e.zones.Zones()
	if err != nil {
		return fmt.Errorf("failed to list energy zones: %w", err)
	}

	for _, z := range zones {
		src := device.NewSource(z, device.WithSourceLogger(e.logger))
		if _, err := src.Read(); err != nil {
			e.logger.Warn("Skipping unreadable zone", "zone", z.Name(), "path", z.Path(), "error", err)
			continue
		}
		e.meters = append(e.meters, &meter{name: zoneLabel(z), source: src})
	}
	if len(e.meters) == 0 {
		return fmt.Errorf("%w: no readable zone", device.ErrDomainsUnavailable)
	}
	sort.Slice(e.meters, func(i, j int) bool {
		return e.meters[i].name < e.meters[j].name
	})

	e.lastTime = e.clock.Now()
	return nil
}

// zoneLabel keeps package zones apart on multi-socket hosts
func zoneLabel(z device.EnergyZone) string {
	if z.Name() == "package" {
		return fmt.Sprintf("package-%d", z.Index())
	}
	return z.Name()
}

func (e *Exporter) Run(ctx context.Context) error {
	ticker := e.clock.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C():
			e.report(now)
		case <-ctx.Done():
			e.logger.Info("Exiting ticker")
			return nil
		}
	}
}

// report reads every zone and writes one table
func (e *Exporter) report(now time.Time) {
	elapsed := now.Sub(e.lastTime)
	e.lastTime = now

	rows := make([][]string, 0, len(e.meters))
	for _, m := range e.meters {
		total, err := m.source.Read()
		if err != nil {
			e.logger.Error("Failed to read zone", "zone", m.name, "error", err)
			rows = append(rows, []string{m.name, "-", "-"})
			continue
		}
		delta := total - m.last
		m.last = total
		rows = append(rows, []string{
			m.name,
			delta.Over(elapsed).String(),
			total.String(),
		})
	}

	writeTable(e.out, rows)
	if e.stats != nil {
		writeStats(e.out, e.stats.Stats())
	}
}

func writeTable(out io.Writer, rows [][]string) {
	table := tablewriter.NewWriter(out)
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Formatting.Alignment = tw.AlignRight
	})
	table.Header([]string{"Zone", "Power(W)", "Energy(J)"})
	_ = table.Bulk(rows)
	_ = table.Render()
}

func writeStats(out io.Writer, s profiler.RuntimeStats) {
	state := "idle"
	if s.Active {
		state = "profiling"
	}
	_, _ = fmt.Fprintf(out, "profiler: %s, %d sessions, %d ticks (%d dropped), %s attributed\n",
		state, s.Sessions, s.Sampler.Ticks, s.Sampler.Dropped, s.Sampler.Energy)
}

func (e *Exporter) Shutdown() error {
	for _, m := range e.meters {
		if err := m.source.Close(); err != nil {
			e.logger.Warn("Failed to close zone", "zone", m.name, "error", err)
		}
	}
	return e.out.Close()
}

// Name implements service.Name
func (e *Exporter) Name() string {
	return "stdout"
}
