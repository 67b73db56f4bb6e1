// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

// Package profiler ties energy sources, stack capture and tree building
// into start/stop profiling sessions.
package profiler

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/powerapi-ng/joulehunter/internal/device"
	"github.com/powerapi-ng/joulehunter/internal/sampler"
	"github.com/powerapi-ng/joulehunter/internal/session"
	"github.com/powerapi-ng/joulehunter/internal/stack"
	"github.com/powerapi-ng/joulehunter/internal/tree"
)

// DefaultSysfsPath is where the default provider discovers RAPL domains
const DefaultSysfsPath = "/sys"

var (
	// ErrSessionAlreadyActive is returned by Start while another session of
	// the same runtime is sampling
	ErrSessionAlreadyActive = errors.New("a profiling session is already active")
	// ErrNoActiveSession is returned by Stop when Start was not called
	ErrNoActiveSession = errors.New("no active profiling session")
)

// Profiler measures the energy consumed by one goroutine between Start and Stop.
type Profiler struct {
	logger     *slog.Logger
	runtime    *Runtime
	provider   device.Provider
	capturer   stack.Capturer
	classifier *stack.Classifier
	clock      clock.WithTicker
	interval   time.Duration
	asyncMode  sampler.AsyncMode
	pkg        string
	component  string

	mu      sync.Mutex
	sampler *sampler.Sampler
	source  *device.Source
	builder *tree.Builder
	start   time.Time
	stats   sampler.Stats
	last    *session.Session
}

// New creates a Profiler; nothing is opened until Start
func New(applyOpts ...OptionFn) *Profiler {
	opts := DefaultOpts()
	for _, apply := range applyOpts {
		apply(&opts)
	}

	logger := opts.logger.With("service", "profiler")
	provider := opts.provider
	if provider == nil {
		provider = device.NewRegistry(DefaultSysfsPath, device.WithRegistryLogger(opts.logger))
	}
	classifier := opts.classifier
	if classifier == nil {
		classifier = stack.NewClassifier()
	}
	runtime := opts.runtime
	if runtime == nil {
		runtime = defaultRuntime
	}

	return &Profiler{
		logger:     logger,
		runtime:    runtime,
		provider:   provider,
		capturer:   opts.capturer,
		classifier: classifier,
		clock:      opts.clock,
		interval:   opts.interval,
		asyncMode:  opts.asyncMode,
		pkg:        opts.pkg,
		component:  opts.component,
	}
}

// Start opens the selected energy domain and starts sampling the goroutine
// calling it, unless a capturer was configured.
func (p *Profiler) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.runtime.acquire(p); err != nil {
		return err
	}
	started := false
	defer func() {
		if !started {
			p.runtime.release(p, false)
		}
	}()

	capturer := p.capturer
	if capturer == nil {
		id, err := stack.CurrentGoroutineID()
		if err != nil {
			return err
		}
		capturer = stack.NewGoroutineCapturer(id)
	}

	source, err := p.provider.Open(p.pkg, p.component)
	if err != nil {
		return fmt.Errorf("failed to open energy domain: %w", err)
	}

	builder := tree.NewBuilder(p.classifier)
	smp := sampler.New(capturer, source,
		sampler.WithLogger(p.logger),
		sampler.WithClock(p.clock),
		sampler.WithInterval(p.interval),
		sampler.WithAsyncMode(p.asyncMode),
	)
	observer := sampler.ObserverFunc(func(s sampler.Sample) {
		builder.Record(s.Frames, s.Delta)
	})
	if err := smp.Start(observer); err != nil {
		if cerr := source.Close(); cerr != nil {
			p.logger.Warn("Failed to close energy source", "error", cerr)
		}
		return err
	}

	p.sampler = smp
	p.source = source
	p.builder = builder
	p.start = p.clock.Now()
	started = true

	p.logger.Info("Profiling started",
		"domains", strings.Join(source.DomainNames(), "/"),
		"counter", source.Zone().Path(),
		"interval", p.interval)
	return nil
}

// Stop stops sampling and returns the finished session. When sampling
// ended early on a read failure the error is returned and the partial
// session stays available through LastSession.
func (p *Profiler) Stop() (*session.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sampler == nil {
		return nil, ErrNoActiveSession
	}

	_, sampleErr := p.sampler.Stop()
	duration := p.clock.Since(p.start)
	stats := p.sampler.Stats()

	closeErr := p.source.Close()
	if closeErr != nil {
		p.logger.Warn("Failed to close energy source", "error", closeErr)
	}

	root, samples := p.builder.Freeze()
	s := session.New(root, session.Session{
		StartTime:    p.start,
		Duration:     duration,
		SampleCount:  samples,
		DomainNames:  p.source.DomainNames(),
		Program:      strings.Join(os.Args, " "),
		Interval:     p.interval,
		AsyncMode:    string(p.asyncMode),
		DroppedTicks: stats.Dropped,
	})

	p.last = s
	p.stats = stats
	p.sampler = nil
	p.source = nil
	p.builder = nil
	p.runtime.release(p, true)

	p.logger.Info("Profiling stopped",
		"samples", samples,
		"frames", tree.Count(root),
		"energy", s.TotalEnergy(),
		"duration", duration)

	if sampleErr != nil {
		return nil, fmt.Errorf("sampling ended early: %w", sampleErr)
	}
	return s, nil
}

// Sampling reports whether a session is active
func (p *Profiler) Sampling() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sampler != nil
}

// LastSession returns the session of the last Stop, nil before that
func (p *Profiler) LastSession() *session.Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// Run profiles fn from the calling goroutine. If fn panics the session is
// discarded and the panic continues.
func (p *Profiler) Run(fn func()) (*session.Session, error) {
	if err := p.Start(); err != nil {
		return nil, err
	}
	returned := false
	defer func() {
		if !returned {
			if err := p.Close(); err != nil {
				p.logger.Warn("Failed to stop profiling after panic", "error", err)
			}
		}
	}()

	fn()
	returned = true
	return p.Stop()
}

// Close stops an active session, discarding its result. It is safe to call
// more than once.
func (p *Profiler) Close() error {
	if _, err := p.Stop(); err != nil && !errors.Is(err, ErrNoActiveSession) {
		return err
	}
	return nil
}

func (p *Profiler) samplerStats() sampler.Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sampler == nil {
		return p.stats
	}
	return p.sampler.Stats()
}
