// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"fmt"
	"log/slog"
	"math/rand"
	"path/filepath"
	"strconv"
	"sync"
)

// NOTE: fake zones are for tests and for hosts without RAPL; never for real measurements

const fakeRaplPath = "/sys/devices/virtual/powercap/intel-rapl"

// fakeComponents are listed under the fake package by Discover
var fakeComponents = []string{"core", "uncore", "dram"}

// FakeZone is an EnergyZone whose counter advances on every read. Scripted
// readings, when set, are returned first.
type FakeZone struct {
	name      string
	index     int
	path      string
	maxEnergy Energy

	mu           sync.Mutex
	energy       Energy
	increment    Energy
	randomFactor float64
	readings     []Energy
	err          error
	reads        int
	closed       bool
}

var _ EnergyZone = (*FakeZone)(nil)

// FakeOptFn configures a FakeZone
type FakeOptFn func(*FakeZone)

// WithFakeIncrement sets how much the counter advances per read
func WithFakeIncrement(e Energy) FakeOptFn {
	return func(z *FakeZone) {
		z.increment = e
	}
}

// WithFakeMaxEnergy sets the value at which the counter wraps
func WithFakeMaxEnergy(e Energy) FakeOptFn {
	return func(z *FakeZone) {
		z.maxEnergy = e
	}
}

// WithFakeRandomFactor adds up to factor*increment of noise to every step
func WithFakeRandomFactor(factor float64) FakeOptFn {
	return func(z *FakeZone) {
		z.randomFactor = factor
	}
}

// WithFakeReadings makes the zone return the given raw values, in order,
// before it starts incrementing from the last of them.
func WithFakeReadings(readings ...Energy) FakeOptFn {
	return func(z *FakeZone) {
		z.readings = readings
	}
}

// WithFakeIndex sets the zone index
func WithFakeIndex(index int) FakeOptFn {
	return func(z *FakeZone) {
		z.index = index
		z.path = filepath.Join(fakeRaplPath, raplPrefix+strconv.Itoa(index), energyFile)
	}
}

// NewFakeZone creates a FakeZone named name
func NewFakeZone(name string, opts ...FakeOptFn) *FakeZone {
	z := &FakeZone{
		name:      name,
		path:      filepath.Join(fakeRaplPath, raplPrefix+"0", energyFile),
		maxEnergy: 262143328850,
		increment: 100,
	}
	for _, opt := range opts {
		opt(z)
	}
	return z
}

func (z *FakeZone) Name() string {
	return z.name
}

func (z *FakeZone) Index() int {
	return z.index
}

func (z *FakeZone) Path() string {
	return z.path
}

func (z *FakeZone) MaxEnergy() Energy {
	return z.maxEnergy
}

// Energy returns the next counter value.
func (z *FakeZone) Energy() (Energy, error) {
	z.mu.Lock()
	defer z.mu.Unlock()

	if z.err != nil {
		return 0, z.err
	}

	defer func() { z.reads++ }()
	if z.reads < len(z.readings) {
		z.energy = z.readings[z.reads]
		return z.energy, nil
	}

	step := z.increment
	if z.randomFactor > 0 {
		step += Energy(rand.Float64() * float64(z.increment) * z.randomFactor)
	}
	z.energy += step
	if z.maxEnergy > 0 {
		z.energy %= z.maxEnergy
	}
	return z.energy, nil
}

// SetError makes every following read fail with err; nil restores reads.
func (z *FakeZone) SetError(err error) {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.err = err
}

// Reads returns the number of successful reads so far.
func (z *FakeZone) Reads() int {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.reads
}

func (z *FakeZone) Close() error {
	z.mu.Lock()
	defer z.mu.Unlock()
	z.closed = true
	return nil
}

// Closed reports whether Close was called.
func (z *FakeZone) Closed() bool {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.closed
}

// FakeProvider opens sources backed by FakeZones. Package selectors are
// accepted as indices or as package-N names.
type FakeProvider struct {
	logger *slog.Logger
	opts   []FakeOptFn

	mu    sync.Mutex
	zones []*FakeZone
	idle  *FakeZone
}

var (
	_ Provider   = (*FakeProvider)(nil)
	_ ZoneLister = (*FakeProvider)(nil)
)

// NewFakeProvider creates a FakeProvider; opts are applied to every zone it opens.
func NewFakeProvider(logger *slog.Logger, opts ...FakeOptFn) *FakeProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &FakeProvider{
		logger: logger.With("service", "fake-rapl"),
		opts:   opts,
	}
}

// Open returns a Source over a new FakeZone
func (p *FakeProvider) Open(pkg, component string) (*Source, error) {
	if pkg == "" {
		pkg = "0"
	}

	index, err := strconv.Atoi(pkg)
	if err != nil {
		if _, err := fmt.Sscanf(pkg, "package-%d", &index); err != nil {
			return nil, fmt.Errorf("package %q: %w", pkg, ErrDomainNotFound)
		}
	}

	names := []string{fmt.Sprintf("package-%d", index)}
	if component != "" {
		names = append(names, component)
	}

	zone := NewFakeZone(names[len(names)-1], append([]FakeOptFn{WithFakeIndex(index)}, p.opts...)...)
	p.mu.Lock()
	p.zones = append(p.zones, zone)
	p.mu.Unlock()

	p.logger.Debug("Opened fake energy counter", "domains", names)
	return NewSource(zone, WithDomainNames(names...), WithSourceLogger(p.logger)), nil
}

// Discover lists one fake package with the usual components. Open accepts
// other selectors as well.
func (p *FakeProvider) Discover() ([]*Domain, error) {
	maxEnergy := NewFakeZone("package-0", p.opts...).MaxEnergy()
	dir := filepath.Join(fakeRaplPath, raplPrefix+"0")
	pkg := &Domain{
		Path:      dir,
		DirName:   raplPrefix + "0",
		Name:      "package-0",
		MaxEnergy: maxEnergy,
	}
	for i, name := range fakeComponents {
		dirName := fmt.Sprintf("%s0:%d", raplPrefix, i)
		pkg.Components = append(pkg.Components, &Domain{
			Path:      filepath.Join(dir, dirName),
			DirName:   dirName,
			Name:      name,
			Index:     i,
			MaxEnergy: maxEnergy,
			Parent:    pkg,
		})
	}
	return []*Domain{pkg}, nil
}

// Zones returns the zones opened so far, or a single package zone when none was opened.
func (p *FakeProvider) Zones() ([]EnergyZone, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.zones) == 0 {
		if p.idle == nil {
			p.idle = NewFakeZone("package-0", p.opts...)
		}
		return []EnergyZone{p.idle}, nil
	}
	zones := make([]EnergyZone, 0, len(p.zones))
	for _, z := range p.zones {
		zones = append(zones, z)
	}
	return zones, nil
}

// Opened returns the zones handed out by Open.
func (p *FakeProvider) Opened() []*FakeZone {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*FakeZone(nil), p.zones...)
}
