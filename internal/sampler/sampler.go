// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

// Package sampler periodically captures a goroutine stack together with
// the energy consumed since the previous capture.
package sampler

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"k8s.io/utils/clock"

	"github.com/powerapi-ng/joulehunter/internal/device"
	"github.com/powerapi-ng/joulehunter/internal/stack"
)

const (
	awaitFunction        = "[await]"
	outOfContextFunction = "[out-of-context]"
)

// Sampler drives the capture loop. It is Idle until Start and returns to
// Idle on Stop.
type Sampler struct {
	logger    *slog.Logger
	clock     clock.WithTicker
	interval  time.Duration
	asyncMode AsyncMode

	capturer stack.Capturer
	source   EnergyReader

	mu       sync.Mutex
	observer Observer
	sampling bool
	stop     chan struct{}
	done     chan struct{}
	err      error

	// tick state, owned by whoever holds busy
	busy   atomic.Bool
	last   device.Energy
	trace  stack.Trace
	frames []stack.Frame

	ticks   atomic.Uint64
	dropped atomic.Uint64
	energy  atomic.Uint64
	await   atomic.Uint64
}

// New creates a Sampler capturing stacks with capturer and reading energy from source
func New(capturer stack.Capturer, source EnergyReader, applyOpts ...OptionFn) *Sampler {
	opts := DefaultOpts()
	for _, apply := range applyOpts {
		apply(&opts)
	}

	return &Sampler{
		logger:    opts.logger.With("service", "sampler"),
		clock:     opts.clock,
		interval:  opts.interval,
		asyncMode: opts.asyncMode,
		capturer:  capturer,
		source:    source,
	}
}

// Interval returns the time between two samples
func (s *Sampler) Interval() time.Duration {
	return s.interval
}

// AsyncMode returns the configured async mode
func (s *Sampler) AsyncMode() AsyncMode {
	return s.asyncMode
}

// Sampling reports whether the sampler is running
func (s *Sampler) Sampling() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sampling
}

// Start reads the energy baseline and starts sampling into observer.
func (s *Sampler) Start(observer Observer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sampling {
		return ErrAlreadySampling
	}
	if s.source == nil {
		return ErrNoEnergySource
	}

	baseline, err := s.source.Read()
	if err != nil {
		return fmt.Errorf("failed to read energy baseline: %w", err)
	}

	s.last = baseline
	s.observer = observer
	s.err = nil
	s.ticks.Store(0)
	s.dropped.Store(0)
	s.energy.Store(0)
	s.await.Store(0)
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.sampling = true

	go s.loop(s.clock.NewTicker(s.interval), s.stop, s.done)
	s.logger.Debug("Sampling started", "interval", s.interval, "async-mode", s.asyncMode)
	return nil
}

// Stop stops sampling and returns the number of samples taken. A capture or
// energy read failure that ended sampling early is returned as the error.
func (s *Sampler) Stop() (int, error) {
	s.mu.Lock()
	if !s.sampling {
		s.mu.Unlock()
		return 0, ErrNotSampling
	}
	close(s.stop)
	done := s.done
	s.mu.Unlock()

	<-done

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sampling = false
	s.observer = nil

	ticks := int(s.ticks.Load())
	s.logger.Debug("Sampling stopped", "ticks", ticks, "dropped", s.dropped.Load())
	return ticks, s.err
}

// Stats returns the counters of the current or last run
func (s *Sampler) Stats() Stats {
	return Stats{
		Ticks:       s.ticks.Load(),
		Dropped:     s.dropped.Load(),
		Energy:      device.Energy(s.energy.Load()),
		AwaitEnergy: device.Energy(s.await.Load()),
	}
}

func (s *Sampler) loop(ticker clock.Ticker, stop, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
			if err := s.Tick(); err != nil {
				s.logger.Error("Sampling aborted", "error", err)
				s.mu.Lock()
				s.err = err
				s.mu.Unlock()
				return
			}
		}
	}
}

// Tick takes one sample. A tick starting while another is in progress is
// dropped and counted.
func (s *Sampler) Tick() error {
	if !s.busy.CompareAndSwap(false, true) {
		s.dropped.Add(1)
		return nil
	}
	defer s.busy.Store(false)

	s.mu.Lock()
	observer := s.observer
	s.mu.Unlock()
	if observer == nil {
		return ErrNotSampling
	}

	if err := s.capturer.Capture(&s.trace); err != nil {
		return fmt.Errorf("failed to capture stack: %w", err)
	}

	current, err := s.source.Read()
	if err != nil {
		return err
	}

	var delta device.Energy
	if current > s.last {
		delta = current - s.last
	}
	s.last = max(s.last, current)

	sample := Sample{
		Time:  s.clock.Now(),
		Delta: delta,
	}
	sample.Frames, sample.Await = s.attribute(&s.trace)

	s.ticks.Add(1)
	s.energy.Add(uint64(delta))
	if sample.Await {
		s.await.Add(uint64(delta))
	}
	observer.Observe(sample)
	return nil
}

// attribute builds the stack a sample is recorded against
func (s *Sampler) attribute(t *stack.Trace) ([]stack.Frame, bool) {
	s.frames = s.frames[:0]

	switch {
	case !t.Found:
		s.frames = append(s.frames, stack.Frame{Function: outOfContextFunction})
		return s.frames, true

	case !t.Waiting() || s.asyncMode == AsyncDisabled:
		s.frames = append(s.frames, t.Frames...)
		return s.frames, false

	case s.asyncMode == AsyncStrict:
		if len(t.Frames) > 0 {
			s.frames = append(s.frames, t.Frames[0])
		}
		s.frames = append(s.frames, stack.Frame{Function: outOfContextFunction})
		return s.frames, true

	default:
		s.frames = append(s.frames, t.Frames...)
		s.frames = append(s.frames, stack.Frame{Function: awaitFunction})
		return s.frames, true
	}
}
