// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

const (
	nameFile      = "name"
	energyFile    = "energy_uj"
	maxEnergyFile = "max_energy_range_uj"
)

// EnergyZone represents a readable energy counter of a RAPL domain.
type EnergyZone interface {
	// Name returns the domain name, e.g. package-0 or dram
	Name() string

	// Index returns the numeric suffix of the domain directory
	Index() int

	// Path returns the path from which the energy value is read
	Path() string

	// Energy returns the raw counter value.
	Energy() (Energy, error)

	// MaxEnergy returns the value at which Energy wraps back to zero, 0 if unknown.
	MaxEnergy() Energy
}

// CounterZone reads energy_uj of a single domain. The file is opened once and
// reread from offset zero on every call so sampling does not pay for an open.
type CounterZone struct {
	name      string
	index     int
	path      string
	maxEnergy Energy

	mu   sync.Mutex
	file *os.File
	buf  []byte
}

var (
	_ EnergyZone = (*CounterZone)(nil)
	_ io.Closer  = (*CounterZone)(nil)
)

// OpenCounterZone opens the energy counter of d.
func OpenCounterZone(d *Domain) (*CounterZone, error) {
	path := filepath.Join(d.Path, energyFile)
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s has no %s", ErrDomainNotFound, d.DirName, energyFile)
	} else if err != nil {
		return nil, fmt.Errorf("failed to open energy counter %s: %w", path, err)
	}

	return &CounterZone{
		name:      d.Name,
		index:     d.Index,
		path:      path,
		maxEnergy: d.MaxEnergy,
		file:      f,
		buf:       make([]byte, 32),
	}, nil
}

func (z *CounterZone) Name() string {
	return z.name
}

func (z *CounterZone) Index() int {
	return z.index
}

func (z *CounterZone) Path() string {
	return z.path
}

func (z *CounterZone) MaxEnergy() Energy {
	return z.maxEnergy
}

// Energy returns the current raw counter value in microjoules.
func (z *CounterZone) Energy() (Energy, error) {
	z.mu.Lock()
	defer z.mu.Unlock()

	if z.file == nil {
		return 0, fmt.Errorf("energy counter %s: %w", z.path, os.ErrClosed)
	}

	n, err := readCounter(z.file, z.buf)
	if err != nil {
		return 0, fmt.Errorf("failed to read energy counter %s: %w", z.path, err)
	}
	return parseMicroJoules(z.buf[:n])
}

// Close releases the counter handle; calling it more than once is a no-op.
func (z *CounterZone) Close() error {
	z.mu.Lock()
	defer z.mu.Unlock()

	if z.file == nil {
		return nil
	}
	err := z.file.Close()
	z.file = nil
	return err
}

func parseMicroJoules(b []byte) (Energy, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(string(b)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid energy value %q: %w", b, err)
	}
	return Energy(v), nil
}

func readMicroJoules(path string) (Energy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return parseMicroJoules(data)
}
