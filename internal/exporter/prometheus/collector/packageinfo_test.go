// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"errors"
	"log/slog"
	"testing"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/procfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cpuInfoFunc func() ([]procfs.CPUInfo, error)

func (f cpuInfoFunc) CPUInfo() ([]procfs.CPUInfo, error) {
	return f()
}

func sampleCPUInfo() []procfs.CPUInfo {
	cpu := func(processor uint, physical, core string) procfs.CPUInfo {
		return procfs.CPUInfo{
			Processor:  processor,
			VendorID:   "GenuineIntel",
			ModelName:  "Intel(R) Xeon(R) Gold 6130 CPU @ 2.10GHz",
			PhysicalID: physical,
			CoreID:     core,
		}
	}
	return []procfs.CPUInfo{
		cpu(0, "0", "0"),
		cpu(1, "0", "1"),
		cpu(2, "1", "0"),
		cpu(3, "0", "0"),
		cpu(4, "0", "1"),
		cpu(5, "1", "0"),
	}
}

func TestNewPackageInfoCollector(t *testing.T) {
	c, err := NewPackageInfoCollector("/proc", slog.Default())
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestPackageInfoCollector_Collect(t *testing.T) {
	c := newPackageInfoCollector(cpuInfoFunc(func() ([]procfs.CPUInfo, error) {
		return sampleCPUInfo(), nil
	}), slog.Default())

	families := gather(t, c)
	info := families["joulehunter_package_info"]
	require.NotNil(t, info)
	require.Len(t, info.GetMetric(), 2)

	pkg0 := metricWithLabel(t, info, "package", "package-0")
	assert.Equal(t, 4.0, pkg0.GetGauge().GetValue())
	assert.Equal(t, "2", valueOfLabel(pkg0, "cores"))
	assert.Equal(t, "GenuineIntel", valueOfLabel(pkg0, "vendor_id"))

	pkg1 := metricWithLabel(t, info, "package", "package-1")
	assert.Equal(t, 2.0, pkg1.GetGauge().GetValue())
	assert.Equal(t, "1", valueOfLabel(pkg1, "cores"))
}

func TestPackageInfoCollector_Error(t *testing.T) {
	c := newPackageInfoCollector(cpuInfoFunc(func() ([]procfs.CPUInfo, error) {
		return nil, errors.New("no cpuinfo")
	}), slog.Default())

	ch := make(chan prom.Metric, 10)
	c.Collect(ch)
	close(ch)
	assert.Empty(t, ch)
}
