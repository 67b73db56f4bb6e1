// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

package sampler

import (
	"log/slog"
	"time"

	"k8s.io/utils/clock"
)

// DefaultInterval is the time between two samples
const DefaultInterval = time.Millisecond

type Opts struct {
	logger    *slog.Logger
	interval  time.Duration
	clock     clock.WithTicker
	asyncMode AsyncMode
}

// DefaultOpts returns the default Sampler options
func DefaultOpts() Opts {
	return Opts{
		logger:    slog.Default(),
		interval:  DefaultInterval,
		clock:     clock.RealClock{},
		asyncMode: AsyncEnabled,
	}
}

// OptionFn is a function sets one more more options in Opts struct
type OptionFn func(*Opts)

// WithInterval sets the sampling interval; non positive values keep the default
func WithInterval(d time.Duration) OptionFn {
	return func(o *Opts) {
		if d > 0 {
			o.interval = d
		}
	}
}

// WithLogger sets the logger for the Sampler
func WithLogger(logger *slog.Logger) OptionFn {
	return func(o *Opts) {
		o.logger = logger
	}
}

// WithClock sets the clock driving the Sampler
func WithClock(c clock.WithTicker) OptionFn {
	return func(o *Opts) {
		o.clock = c
	}
}

// WithAsyncMode sets how parked goroutines are attributed
func WithAsyncMode(m AsyncMode) OptionFn {
	return func(o *Opts) {
		o.asyncMode = m
	}
}
