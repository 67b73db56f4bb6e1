// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

package profiler

import (
	"log/slog"
	"time"

	"k8s.io/utils/clock"

	"github.com/powerapi-ng/joulehunter/internal/device"
	"github.com/powerapi-ng/joulehunter/internal/sampler"
	"github.com/powerapi-ng/joulehunter/internal/stack"
)

type Opts struct {
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
}

// DefaultOpts returns the options of a profiler measuring package 0 of the
// host through sysfs
func DefaultOpts() Opts {
	return Opts{
		logger:    slog.Default(),
		runtime:   defaultRuntime,
		clock:     clock.RealClock{},
		interval:  sampler.DefaultInterval,
		asyncMode: sampler.AsyncEnabled,
	}
}

// OptionFn is a function sets one more more options in Opts struct
type OptionFn func(*Opts)

// WithLogger sets the logger for the Profiler
func WithLogger(logger *slog.Logger) OptionFn {
	return func(o *Opts) {
		o.logger = logger
	}
}

// WithPackage selects the package domain by index or name; empty means package 0
func WithPackage(pkg string) OptionFn {
	return func(o *Opts) {
		o.pkg = pkg
	}
}

// WithComponent selects a component of the package by index or name; empty means none
func WithComponent(component string) OptionFn {
	return func(o *Opts) {
		o.component = component
	}
}

// WithInterval sets the sampling interval
func WithInterval(d time.Duration) OptionFn {
	return func(o *Opts) {
		o.interval = d
	}
}

// WithAsyncMode sets how parked goroutines are attributed
func WithAsyncMode(m sampler.AsyncMode) OptionFn {
	return func(o *Opts) {
		o.asyncMode = m
	}
}

// WithRuntime sets the runtime enforcing a single active session
func WithRuntime(r *Runtime) OptionFn {
	return func(o *Opts) {
		o.runtime = r
	}
}

// WithProvider sets where energy sources come from; the default reads sysfs
func WithProvider(p device.Provider) OptionFn {
	return func(o *Opts) {
		o.provider = p
	}
}

// WithCapturer sets the stack capturer; the default captures the goroutine calling Start
func WithCapturer(c stack.Capturer) OptionFn {
	return func(o *Opts) {
		o.capturer = c
	}
}

// WithClassifier sets what counts as application code
func WithClassifier(c *stack.Classifier) OptionFn {
	return func(o *Opts) {
		o.classifier = c
	}
}

// WithClock sets the clock driving sampling
func WithClock(c clock.WithTicker) OptionFn {
	return func(o *Opts) {
		o.clock = c
	}
}
