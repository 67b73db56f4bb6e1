// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"runtime"
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func setVersion(t *testing.T, ver, built, branch, commit string) {
	t.Helper()
	orig := [4]string{version, buildTime, gitBranch, gitCommit}
	version, buildTime, gitBranch, gitCommit = ver, built, branch, commit
	t.Cleanup(func() {
		version, buildTime, gitBranch, gitCommit = orig[0], orig[1], orig[2], orig[3]
	})
}

func withBuildInfo(t *testing.T, bi *debug.BuildInfo) {
	t.Helper()
	orig := readBuildInfo
	readBuildInfo = func() (*debug.BuildInfo, bool) { return bi, bi != nil }
	t.Cleanup(func() { readBuildInfo = orig })
}

func TestInfo(t *testing.T) {
	info := Info()

	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS, info.GoOS)
	assert.Equal(t, runtime.GOARCH, info.GoArch)
}

func TestVersionValues(t *testing.T) {
	tt := []struct {
		name   string
		ver    string
		time   string
		branch string
		commit string
	}{
		{"empty values", "", "", "", ""},
		{"typical values", "v1.2.3", "2025-04-01T12:00:00Z", "main", "abcdef123456"},
		{"dev values", "dev", "unknown", "feature-branch", "deadbeef"},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			withBuildInfo(t, nil)
			setVersion(t, tc.ver, tc.time, tc.branch, tc.commit)

			info := Info()
			assert.Equal(t, tc.ver, info.Version)
			assert.Equal(t, tc.time, info.BuildTime)
			assert.Equal(t, tc.branch, info.GitBranch)
			assert.Equal(t, tc.commit, info.GitCommit)
		})
	}
}

func TestBuildInfoFallback(t *testing.T) {
	bi := &debug.BuildInfo{
		Main: debug.Module{Path: "github.com/powerapi-ng/joulehunter", Version: "v0.3.0"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "cafebabe"},
			{Key: "vcs.time", Value: "2025-06-01T00:00:00Z"},
		},
	}

	t.Run("fills missing values", func(t *testing.T) {
		withBuildInfo(t, bi)
		setVersion(t, "", "", "", "")

		info := Info()
		assert.Equal(t, "v0.3.0", info.Version)
		assert.Equal(t, "cafebabe", info.GitCommit)
		assert.Equal(t, "2025-06-01T00:00:00Z", info.BuildTime)
		assert.Empty(t, info.GitBranch)
	})

	t.Run("link time values win", func(t *testing.T) {
		withBuildInfo(t, bi)
		setVersion(t, "v1.0.0", "", "main", "deadbeef")

		info := Info()
		assert.Equal(t, "v1.0.0", info.Version)
		assert.Equal(t, "deadbeef", info.GitCommit)
		assert.Equal(t, "2025-06-01T00:00:00Z", info.BuildTime)
	})

	t.Run("devel version ignored", func(t *testing.T) {
		withBuildInfo(t, &debug.BuildInfo{Main: debug.Module{Version: "(devel)"}})
		setVersion(t, "", "", "", "")

		assert.Empty(t, Info().Version)
	})
}

func TestString(t *testing.T) {
	v := VersionInfo{
		Version:   "v1.2.3",
		GitCommit: "abc",
		GitBranch: "main",
		GoVersion: "go1.24.0",
		GoOS:      "linux",
		GoArch:    "amd64",
	}
	assert.Equal(t, "joulehunter v1.2.3 (commit abc, branch main, built unknown) go1.24.0 linux/amd64", v.String())
	assert.Contains(t, VersionInfo{}.String(), "joulehunter unknown")
}
