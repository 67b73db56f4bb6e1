// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// set through -ldflags "-X github.com/powerapi-ng/joulehunter/internal/version.version=..."
var (
	version   string
	buildTime string
	gitBranch string
	gitCommit string
)

// readBuildInfo is replaced in tests
var readBuildInfo = debug.ReadBuildInfo

type VersionInfo struct {
	Version   string
	BuildTime string
	GitBranch string
	GitCommit string

	GoVersion string
	GoOS      string
	GoArch    string
}

// Info returns the version information. Values not set at link time are
// taken from the module build info when available.
func Info() VersionInfo {
	info := VersionInfo{
		Version:   version,
		BuildTime: buildTime,
		GitBranch: gitBranch,
		GitCommit: gitCommit,

		GoVersion: runtime.Version(),
		GoOS:      runtime.GOOS,
		GoArch:    runtime.GOARCH,
	}

	bi, ok := readBuildInfo()
	if !ok {
		return info
	}
	if info.Version == "" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch {
		case s.Key == "vcs.revision" && info.GitCommit == "":
			info.GitCommit = s.Value
		case s.Key == "vcs.time" && info.BuildTime == "":
			info.BuildTime = s.Value
		}
	}
	return info
}

func (v VersionInfo) String() string {
	ver := v.Version
	if ver == "" {
		ver = "unknown"
	}
	return fmt.Sprintf("joulehunter %s (commit %s, branch %s, built %s) %s %s/%s",
		ver, orUnknown(v.GitCommit), orUnknown(v.GitBranch), orUnknown(v.BuildTime),
		v.GoVersion, v.GoOS, v.GoArch)
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
