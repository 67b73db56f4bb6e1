// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	"testing"

	prom "github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

// gather registers c in a fresh registry and returns the families by name
func gather(t *testing.T, c prom.Collector) map[string]*dto.MetricFamily {
	t.Helper()
	registry := prom.NewPedanticRegistry()
	require.NoError(t, registry.Register(c))

	families, err := registry.Gather()
	require.NoError(t, err)

	byName := map[string]*dto.MetricFamily{}
	for _, mf := range families {
		byName[mf.GetName()] = mf
	}
	return byName
}

// valueOfLabel returns the value of the label with the given name
func valueOfLabel(metric *dto.Metric, name string) string {
	for _, label := range metric.GetLabel() {
		if label.GetName() == name {
			return label.GetValue()
		}
	}
	return ""
}

// metricWithLabel returns the metric of mf whose label name has value
func metricWithLabel(t *testing.T, mf *dto.MetricFamily, name, value string) *dto.Metric {
	t.Helper()
	require.NotNil(t, mf)
	for _, m := range mf.GetMetric() {
		if valueOfLabel(m, name) == value {
			return m
		}
	}
	require.Failf(t, "metric not found", "%s=%q in %s", name, value, mf.GetName())
	return nil
}
