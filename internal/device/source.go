// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Source turns the raw, wrapping counter of a zone into a monotonic energy
// total. It handles at most one wraparound between two reads.
type Source struct {
	logger *slog.Logger
	zone   EnergyZone
	names  []string

	mu      sync.Mutex
	started bool
	last    Energy
	total   Energy
	closed  bool
}

// SourceOptionFn configures a Source
type SourceOptionFn func(*Source)

// WithDomainNames sets the display names reported by the Source
func WithDomainNames(names ...string) SourceOptionFn {
	return func(s *Source) {
		s.names = names
	}
}

// WithSourceLogger sets the logger for the Source
func WithSourceLogger(logger *slog.Logger) SourceOptionFn {
	return func(s *Source) {
		s.logger = logger
	}
}

// NewSource creates a Source reading zone. The first Read establishes the baseline.
func NewSource(zone EnergyZone, opts ...SourceOptionFn) *Source {
	s := &Source{
		logger: slog.Default(),
		zone:   zone,
		names:  []string{zone.Name()},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DomainNames returns the package name, followed by the component name when
// a component is selected.
func (s *Source) DomainNames() []string {
	return s.names
}

// Zone returns the underlying zone.
func (s *Source) Zone() EnergyZone {
	return s.zone
}

// Read returns the energy consumed since the first Read. Totals never decrease.
func (s *Source) Read() (Energy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.zone.Energy()
	if err != nil {
		return 0, fmt.Errorf("failed to read energy of %s: %w", s.zone.Name(), err)
	}

	if !s.started {
		s.started = true
		s.last = cur
		return 0, nil
	}

	s.total += s.delta(cur)
	s.last = cur
	return s.total, nil
}

func (s *Source) delta(cur Energy) Energy {
	if cur >= s.last {
		return cur - s.last
	}

	limit := s.zone.MaxEnergy()
	if limit > 0 && s.last <= limit {
		return (limit - s.last) + cur
	}

	s.logger.Debug("Energy counter stepped backwards without a known range",
		"zone", s.zone.Name(), "last", s.last, "current", cur)
	return 0
}

// Close releases the zone when it holds an open handle.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if c, ok := s.zone.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
