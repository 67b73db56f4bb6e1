// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/procfs"
)

// cpuInfoReader lists the logical CPUs of the host
type cpuInfoReader interface {
	CPUInfo() ([]procfs.CPUInfo, error)
}

// PackageInfoCollector describes the physical CPU packages behind the RAPL
// package domains: package-N measures the CPUs with physical id N.
type PackageInfoCollector struct {
	sync.Mutex

	logger *slog.Logger
	fs     cpuInfoReader
	desc   *prom.Desc
}

var _ prom.Collector = (*PackageInfoCollector)(nil)

// NewPackageInfoCollector reads cpuinfo under procPath
func NewPackageInfoCollector(procPath string, logger *slog.Logger) (*PackageInfoCollector, error) {
	fs, err := procfs.NewFS(procPath)
	if err != nil {
		return nil, fmt.Errorf("creating procfs failed: %w", err)
	}
	return newPackageInfoCollector(fs, logger), nil
}

func newPackageInfoCollector(fs cpuInfoReader, logger *slog.Logger) *PackageInfoCollector {
	return &PackageInfoCollector{
		logger: logger.With("collector", "package_info"),
		fs:     fs,
		desc: prom.NewDesc(
			prom.BuildFQName(namespace, "package", "info"),
			"CPU package measured by a RAPL package domain; the value is the number of logical CPUs",
			[]string{"package", "vendor_id", "model_name", "cores"},
			nil,
		),
	}
}

func (c *PackageInfoCollector) Describe(ch chan<- *prom.Desc) {
	ch <- c.desc
}

type cpuPackage struct {
	vendor, model string
	cores         map[string]bool
	cpus          int
}

func (c *PackageInfoCollector) Collect(ch chan<- prom.Metric) {
	c.Lock()
	defer c.Unlock()

	infos, err := c.fs.CPUInfo()
	if err != nil {
		c.logger.Warn("Failed to read cpuinfo", "error", err)
		return
	}

	packages := map[string]*cpuPackage{}
	for _, ci := range infos {
		p, ok := packages[ci.PhysicalID]
		if !ok {
			p = &cpuPackage{vendor: ci.VendorID, model: ci.ModelName, cores: map[string]bool{}}
			packages[ci.PhysicalID] = p
		}
		p.cores[ci.CoreID] = true
		p.cpus++
	}

	ids := make([]string, 0, len(packages))
	for id := range packages {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		p := packages[id]
		ch <- prom.MustNewConstMetric(
			c.desc,
			prom.GaugeValue,
			float64(p.cpus),
			"package-"+id,
			p.vendor,
			p.model,
			strconv.Itoa(len(p.cores)),
		)
	}
}
