// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

package sampler

import (
	"errors"
	"fmt"
	"time"

	"github.com/powerapi-ng/joulehunter/internal/device"
	"github.com/powerapi-ng/joulehunter/internal/stack"
)

var (
	ErrAlreadySampling = errors.New("sampler is already sampling")
	ErrNotSampling     = errors.New("sampler is not sampling")
	ErrNoEnergySource  = errors.New("no energy source")
)

// AsyncMode decides where energy spent while the goroutine is parked goes.
type AsyncMode string

const (
	// AsyncDisabled attributes it to the parked stack, like any other sample
	AsyncDisabled AsyncMode = "disabled"
	// AsyncEnabled attributes it to an [await] frame under the parked stack
	AsyncEnabled AsyncMode = "enabled"
	// AsyncStrict attributes it to [out-of-context] under the outermost frame
	AsyncStrict AsyncMode = "strict"
)

// ParseAsyncMode parses disabled, enabled or strict
func ParseAsyncMode(s string) (AsyncMode, error) {
	switch m := AsyncMode(s); m {
	case AsyncDisabled, AsyncEnabled, AsyncStrict:
		return m, nil
	}
	return "", fmt.Errorf("invalid async mode %q: expected disabled, enabled or strict", s)
}

// EnergyReader returns a monotonic energy total; *device.Source implements it
type EnergyReader interface {
	Read() (device.Energy, error)
}

// Sample is one observation: the energy consumed since the previous sample
// and the stack it is attributed to, outermost frame first. Frames are only
// valid for the duration of Observe.
type Sample struct {
	Time   time.Time
	Frames []stack.Frame
	Delta  device.Energy
	// Await is true when the goroutine was parked and the mode moved the
	// energy into a synthetic frame
	Await bool
}

// Observer receives samples
type Observer interface {
	Observe(Sample)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(Sample)

func (f ObserverFunc) Observe(s Sample) {
	f(s)
}

// Stats are counters of the current or last sampling run
type Stats struct {
	Ticks       uint64
	Dropped     uint64
	Energy      device.Energy
	AwaitEnergy device.Energy
}
