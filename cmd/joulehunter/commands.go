// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"k8s.io/utils/ptr"

	"github.com/powerapi-ng/joulehunter/config"
	"github.com/powerapi-ng/joulehunter/internal/device"
	"github.com/powerapi-ng/joulehunter/internal/exporter/mcp"
	"github.com/powerapi-ng/joulehunter/internal/exporter/prometheus"
	"github.com/powerapi-ng/joulehunter/internal/exporter/stdout"
	"github.com/powerapi-ng/joulehunter/internal/profiler"
	"github.com/powerapi-ng/joulehunter/internal/renderer"
	"github.com/powerapi-ng/joulehunter/internal/sampler"
	"github.com/powerapi-ng/joulehunter/internal/server"
	"github.com/powerapi-ng/joulehunter/internal/service"
	"github.com/powerapi-ng/joulehunter/internal/session"
)

// energySources are the counters every command reads: profilers open
// sources from provider, exporters list zones and the domain endpoints list
// domains, all from the same backend
type energySources struct {
	provider device.Provider
	zones    device.ZoneLister
	domains  domainLister
}

type domainLister interface {
	Discover() ([]*device.Domain, error)
}

func newEnergySources(cfg *config.Config, logger *slog.Logger) (*energySources, error) {
	if ptr.Deref(cfg.Dev.FakeMeter.Enabled, false) {
		logger.Warn("Using fake energy meter; reported energy is synthetic")
		fake := device.NewFakeProvider(logger, device.WithFakeIncrement(device.Energy(cfg.Dev.FakeMeter.Increment)))
		return &energySources{provider: fake, zones: fake, domains: fake}, nil
	}

	zones, err := device.NewPowercapZones(cfg.Host.SysFS)
	if err != nil {
		return nil, err
	}
	registry := device.NewRegistry(cfg.Host.SysFS, device.WithRegistryLogger(logger))
	return &energySources{provider: registry, zones: zones, domains: registry}, nil
}

func createServices(logger *slog.Logger, cfg *config.Config) ([]service.Service, error) {
	logger.Debug("Creating all services")

	sources, err := newEnergySources(cfg, logger)
	if err != nil {
		return nil, err
	}
	defaults, err := cfg.ProcessorOptions()
	if err != nil {
		return nil, err
	}
	runtime := profiler.DefaultRuntime()

	apiServer := server.NewAPIServer(
		server.WithLogger(logger),
		server.WithListen(cfg.Web.ListenAddresses, cfg.Web.Config),
	)
	// shut down after every runner, closing a session the server left open
	services := []service.Service{profiler.NewRuntimeService(runtime, logger), apiServer}

	if ptr.Deref(cfg.Exporter.Prometheus.Enabled, false) {
		collectors, err := prometheus.CreateCollectors(sources.zones, runtime,
			prometheus.WithLogger(logger),
			prometheus.WithProcFSPath(cfg.Host.ProcFS),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create collectors: %w", err)
		}
		services = append(services, prometheus.NewExporter(apiServer,
			prometheus.WithLogger(logger),
			prometheus.WithCollectors(collectors),
			prometheus.WithDebugCollectors(cfg.Exporter.Prometheus.DebugCollectors),
		))
	}

	if ptr.Deref(cfg.Exporter.Stdout.Enabled, false) {
		services = append(services, stdout.NewExporter(sources.zones,
			stdout.WithLogger(logger),
			stdout.WithInterval(cfg.Exporter.Stdout.Interval),
			stdout.WithStats(runtime),
		))
	}

	services = append(services,
		server.NewDomains(apiServer, sources.domains, logger),
		server.NewRender(apiServer, defaults, logger),
	)

	if ptr.Deref(cfg.Exporter.MCP.Enabled, false) {
		services = append(services, mcp.NewServer(sources.domains, runtime,
			mcp.WithLogger(logger),
			mcp.WithProcessorOptions(defaults),
			mcp.WithHTTPTransport(apiServer, cfg.Exporter.MCP.Path),
		))
	}

	if ptr.Deref(cfg.Debug.Pprof.Enabled, false) {
		services = append(services, server.NewPprof(apiServer))
	}

	// the probe reports on everything registered before it
	probe := server.NewProbe(apiServer, append([]service.Service(nil), services...), logger)
	services = append(services, probe, service.NewSignalHandler(logger, shutdownSignals...))
	return services, nil
}

func serve(cfg *config.Config, logger *slog.Logger) error {
	services, err := createServices(logger, cfg)
	if err != nil {
		return err
	}
	if err := service.Init(logger, services); err != nil {
		return err
	}

	logger.Info("Starting joulehunter")
	if err := service.Run(context.Background(), logger, services); err != nil {
		return err
	}
	logger.Info("Graceful shutdown completed")
	return nil
}

// serveMCP serves the MCP tools over stdin and stdout until interrupted
func serveMCP(cfg *config.Config, logger *slog.Logger) error {
	defaults, err := cfg.ProcessorOptions()
	if err != nil {
		return err
	}
	sources, err := newEnergySources(cfg, logger)
	if err != nil {
		return err
	}
	runtime := profiler.DefaultRuntime()
	services := []service.Service{
		profiler.NewRuntimeService(runtime, logger),
		mcp.NewServer(sources.domains, runtime,
			mcp.WithLogger(logger),
			mcp.WithProcessorOptions(defaults),
			mcp.WithStdio(os.Stdin, os.Stdout),
		),
		service.NewSignalHandler(logger, shutdownSignals...),
	}
	if err := service.Init(logger, services); err != nil {
		return err
	}
	return service.Run(context.Background(), logger, services)
}

func listDomains(w io.Writer, cfg *config.Config, logger *slog.Logger) error {
	sources, err := newEnergySources(cfg, logger)
	if err != nil {
		return err
	}
	domains, err := sources.domains.Discover()
	if err != nil {
		return err
	}

	rows := [][]string{}
	for _, p := range domains {
		rows = append(rows, []string{p.Name, fmt.Sprint(p.Index), "", p.MaxEnergy.String(), p.Path})
		for _, c := range p.Components {
			rows = append(rows, []string{p.Name, fmt.Sprint(p.Index), c.Name, c.MaxEnergy.String(), c.Path})
		}
	}

	table := tablewriter.NewWriter(w)
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Formatting.Alignment = tw.AlignLeft
	})
	table.Header([]string{"Package", "Index", "Component", "Wraps at", "Path"})
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}

// newRenderer creates the configured renderer with the configured processors
func newRenderer(cfg *config.Config) (renderer.Renderer, error) {
	opts, err := cfg.ProcessorOptions()
	if err != nil {
		return nil, err
	}
	return renderer.New(cfg.Renderer.Name,
		renderer.WithProcessorOptions(opts),
		renderer.WithUnicode(ptr.Deref(cfg.Renderer.Unicode, false)),
		renderer.WithColor(ptr.Deref(cfg.Renderer.Color, false)),
	)
}

// writeReport renders s to path, or to stdout when path is empty
func writeReport(s *session.Session, path string, cfg *config.Config) (err error) {
	r, err := newRenderer(cfg)
	if err != nil {
		return err
	}

	var out io.Writer = os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := f.Close(); err == nil {
				err = cerr
			}
		}()
		out = f
	}
	return r.Render(out, s)
}

func renderFile(input, output string, cfg *config.Config) error {
	f, err := os.Open(input)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	s, err := session.Load(f)
	if err != nil {
		return fmt.Errorf("failed to load session %s: %w", input, err)
	}
	return writeReport(s, output, cfg)
}

func profileWorkload(args *cli, cfg *config.Config, logger *slog.Logger) error {
	duration, err := time.ParseDuration(args.profileDuration)
	if err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	asyncMode, err := sampler.ParseAsyncMode(cfg.Profiler.AsyncMode)
	if err != nil {
		return err
	}
	sources, err := newEnergySources(cfg, logger)
	if err != nil {
		return err
	}

	p := profiler.New(
		profiler.WithLogger(logger),
		profiler.WithProvider(sources.provider),
		profiler.WithPackage(cfg.Profiler.Package),
		profiler.WithComponent(cfg.Profiler.Component),
		profiler.WithInterval(cfg.Profiler.Interval),
		profiler.WithAsyncMode(asyncMode),
	)
	defer func() { _ = p.Close() }()

	s, err := p.Run(func() { workload(duration) })
	if err != nil {
		return err
	}

	if args.profileSave != "" {
		if err := saveSession(s, args.profileSave); err != nil {
			return err
		}
		logger.Info("Session saved", "path", args.profileSave)
	}
	return writeReport(s, args.profileOutput, cfg)
}

func saveSession(s *session.Session, path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return s.Save(f)
}

// workload alternates between hashing and sorting until d has elapsed
func workload(d time.Duration) {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		hashBlocks(2000)
		sortValues(20000)
	}
}

func hashBlocks(n int) [sha256.Size]byte {
	var sum [sha256.Size]byte
	for range n {
		sum = sha256.Sum256(sum[:])
	}
	return sum
}

func sortValues(n int) []int {
	values := make([]int, n)
	for i := range values {
		values[i] = (i * 7919) % n
	}
	sort.Ints(values)
	return values
}
