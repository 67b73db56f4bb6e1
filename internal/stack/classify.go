// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

package stack

import (
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
)

const (
	modCacheDir = "/pkg/mod/"
	vendorDir   = "/vendor/"
	goSrcDir    = "/src/"
	// trimpath builds name module files "example.com/mod@v1.2.3/file.go"
	moduleVersion = "@v"
)

// Classifier tells application code apart from the standard library and
// third-party modules, and shortens file paths for display.
type Classifier struct {
	appPackages []string
	cwd         string
}

// NewClassifier creates a Classifier. Functions of appPackages, of the main
// package and of the main module always count as application code.
func NewClassifier(appPackages ...string) *Classifier {
	c := &Classifier{appPackages: appPackages}
	if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Path != "" {
		c.appPackages = append(c.appPackages, bi.Main.Path)
	}
	if wd, err := os.Getwd(); err == nil {
		c.cwd = wd
	}
	return c
}

// PackagePath returns the import path of the package defining function,
// e.g. net/http for net/http.(*conn).serve.
func PackagePath(function string) string {
	slash := strings.LastIndexByte(function, '/')
	dot := strings.IndexByte(function[slash+1:], '.')
	if dot < 0 {
		return function
	}
	return function[:slash+1+dot]
}

// IsStdlib reports whether pkg looks like a standard library import path.
func IsStdlib(pkg string) bool {
	if pkg == "main" || pkg == "command-line-arguments" {
		return false
	}
	first, _, _ := strings.Cut(pkg, "/")
	return !strings.Contains(first, ".")
}

// IsApplicationCode reports whether f belongs to the profiled application.
// Synthetic frames never do.
func (c *Classifier) IsApplicationCode(f Frame) bool {
	if f.Function == "" || f.Function[0] == '[' {
		return false
	}

	pkg := PackagePath(f.Function)
	if c.isAppPackage(pkg) {
		return true
	}
	if isDependencyFile(f.File) {
		return false
	}
	return !IsStdlib(pkg)
}

func isDependencyFile(file string) bool {
	if strings.Contains(file, modCacheDir) || strings.Contains(file, vendorDir) {
		return true
	}
	for rest := file; ; {
		i := strings.Index(rest, moduleVersion)
		if i < 0 {
			return false
		}
		rest = rest[i+len(moduleVersion):]
		if rest != "" && rest[0] >= '0' && rest[0] <= '9' {
			return true
		}
	}
}

func (c *Classifier) isAppPackage(pkg string) bool {
	for _, p := range c.appPackages {
		if pkg == p || strings.HasPrefix(pkg, p+"/") {
			return true
		}
	}
	return false
}

// ShortPath shortens file for display: module cache files lose the cache
// prefix, files under the working directory become relative and standard
// library files are shown relative to GOROOT/src.
func (c *Classifier) ShortPath(file string) string {
	if file == "" {
		return ""
	}
	if i := strings.LastIndex(file, modCacheDir); i >= 0 {
		return file[i+len(modCacheDir):]
	}
	if c.cwd != "" {
		if rel, err := filepath.Rel(c.cwd, file); err == nil && !strings.HasPrefix(rel, "..") {
			return rel
		}
	}
	if i := strings.LastIndex(file, goSrcDir); i >= 0 {
		rest := file[i+len(goSrcDir):]
		if IsStdlib(filepath.Dir(rest)) {
			return rest
		}
	}
	return file
}
