// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"fmt"

	"github.com/prometheus/procfs/sysfs"
)

// ZoneLister lists every RAPL zone of the host; used to export per-domain
// counters next to the profiler.
type ZoneLister interface {
	Zones() ([]EnergyZone, error)
}

// PowercapZones lists zones through the powercap class of a sysfs mount.
type PowercapZones struct {
	fs sysfs.FS
}

var _ ZoneLister = (*PowercapZones)(nil)

// NewPowercapZones creates a PowercapZones for the given sysfs path
func NewPowercapZones(sysfsPath string) (*PowercapZones, error) {
	fs, err := sysfs.NewFS(sysfsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create sysfs filesystem: %w", err)
	}
	return &PowercapZones{fs: fs}, nil
}

// Zones returns all RAPL zones found in the powercap class
func (p *PowercapZones) Zones() ([]EnergyZone, error) {
	raplZones, err := sysfs.GetRaplZones(p.fs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDomainsUnavailable, err)
	}

	zones := make([]EnergyZone, 0, len(raplZones))
	for _, z := range raplZones {
		zones = append(zones, powercapZone{z})
	}
	return zones, nil
}

// powercapZone adapts sysfs.RaplZone to EnergyZone
type powercapZone struct {
	zone sysfs.RaplZone
}

func (z powercapZone) Name() string {
	return z.zone.Name
}

func (z powercapZone) Index() int {
	return z.zone.Index
}

func (z powercapZone) Path() string {
	return z.zone.Path
}

func (z powercapZone) Energy() (Energy, error) {
	uj, err := z.zone.GetEnergyMicrojoules()
	return Energy(uj), err
}

func (z powercapZone) MaxEnergy() Energy {
	return Energy(z.zone.MaxMicrojoules)
}
