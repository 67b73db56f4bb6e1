// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

package collector

import (
	prom "github.com/prometheus/client_golang/prometheus"
	versioncollector "github.com/prometheus/client_golang/prometheus/collectors/version"
	commonversion "github.com/prometheus/common/version"

	"github.com/powerapi-ng/joulehunter/internal/version"
)

const namespace = "joulehunter"

// BuildInfoCollector exposes joulehunter_build_info with the labels shared
// by Prometheus exporters: version, revision, branch, goversion, goos,
// goarch and tags
type BuildInfoCollector struct {
	prom.Collector
}

// NewBuildInfoCollector creates a new collector for build information
func NewBuildInfoCollector() *BuildInfoCollector {
	info := version.Info()
	commonversion.Version = info.Version
	commonversion.Revision = info.GitCommit
	commonversion.Branch = info.GitBranch
	commonversion.BuildDate = info.BuildTime

	return &BuildInfoCollector{
		Collector: versioncollector.NewCollector(namespace),
	}
}
