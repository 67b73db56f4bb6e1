// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/sync/singleflight"
)

const (
	raplDir    = "devices/virtual/powercap/intel-rapl"
	raplPrefix = "intel-rapl:"
)

// Domain is a RAPL power domain. Packages are the top level; components
// (core, uncore, dram) hang off a package.
type Domain struct {
	Path      string
	DirName   string
	Name      string
	Index     int
	MaxEnergy Energy

	Parent     *Domain
	Components []*Domain
}

// Selection is the result of resolving a package and an optional component selector.
type Selection struct {
	Package   *Domain
	Component *Domain
}

// Target returns the domain whose counter is read: the component when one is
// selected, the package otherwise.
func (s Selection) Target() *Domain {
	if s.Component != nil {
		return s.Component
	}
	return s.Package
}

// Names returns the display names of the selection, package first.
func (s Selection) Names() []string {
	if s.Package == nil {
		return nil
	}
	if s.Component == nil {
		return []string{s.Package.Name}
	}
	return []string{s.Package.Name, s.Component.Name}
}

// Provider opens an energy source for a package and component selector.
type Provider interface {
	Open(pkg, component string) (*Source, error)
}

// Registry discovers RAPL domains under a sysfs mount point.
type Registry struct {
	logger *slog.Logger
	root   string
	group  singleflight.Group
}

var _ Provider = (*Registry)(nil)

// RegistryOptionFn configures a Registry
type RegistryOptionFn func(*Registry)

// WithRegistryLogger sets the logger for the Registry
func WithRegistryLogger(logger *slog.Logger) RegistryOptionFn {
	return func(r *Registry) {
		r.logger = logger.With("service", "rapl-registry")
	}
}

// NewRegistry creates a Registry for the powercap tree of the given sysfs path.
func NewRegistry(sysfsPath string, opts ...RegistryOptionFn) *Registry {
	r := &Registry{
		logger: slog.Default().With("service", "rapl-registry"),
		root:   filepath.Join(sysfsPath, raplDir),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Discover lists package domains ordered by index, each with its components.
// Concurrent callers share a single walk of the directory tree.
func (r *Registry) Discover() ([]*Domain, error) {
	v, err, shared := r.group.Do("discover", func() (any, error) {
		if _, err := os.Stat(r.root); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrDomainsUnavailable, r.root, err)
		}
		pkgs, err := readDomains(r.root, nil)
		if err != nil {
			return nil, err
		}
		for _, p := range pkgs {
			if p.Components, err = readDomains(p.Path, p); err != nil {
				return nil, err
			}
		}
		return pkgs, nil
	})
	if err != nil {
		return nil, err
	}

	domains := v.([]*Domain)
	r.logger.Debug("Discovered RAPL domains", "packages", len(domains), "shared", shared)
	return domains, nil
}

// Open discovers the domains, resolves the selectors and opens the counter
// of the selected domain.
func (r *Registry) Open(pkg, component string) (*Source, error) {
	domains, err := r.Discover()
	if err != nil {
		return nil, err
	}

	sel, err := Resolve(domains, pkg, component)
	if err != nil {
		return nil, err
	}

	zone, err := OpenCounterZone(sel.Target())
	if err != nil {
		return nil, err
	}
	r.logger.Info("Opened energy counter", "domains", sel.Names(), "path", zone.Path())
	return NewSource(zone, WithDomainNames(sel.Names()...), WithSourceLogger(r.logger)), nil
}

func readDomains(dir string, parent *Domain) ([]*Domain, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if parent == nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrDomainsUnavailable, dir, err)
		}
		return nil, fmt.Errorf("failed to list components of %s: %w", parent.DirName, err)
	}

	domains := []*Domain{}
	for _, e := range entries {
		index, ok := domainIndex(e.Name())
		if !ok {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if info, err := os.Stat(path); err != nil || !info.IsDir() {
			continue
		}

		name, err := os.ReadFile(filepath.Join(path, nameFile))
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s has no %s", ErrDomainNotFound, e.Name(), nameFile)
		} else if err != nil {
			return nil, fmt.Errorf("failed to read name of %s: %w", e.Name(), err)
		}

		// an unreadable range only disables wraparound correction
		maxEnergy, _ := readMicroJoules(filepath.Join(path, maxEnergyFile))

		domains = append(domains, &Domain{
			Path:      path,
			DirName:   e.Name(),
			Name:      strings.TrimSpace(string(name)),
			Index:     index,
			MaxEnergy: maxEnergy,
			Parent:    parent,
		})
	}

	slices.SortFunc(domains, func(a, b *Domain) int {
		return a.Index - b.Index
	})
	return domains, nil
}

// domainIndex returns N for intel-rapl:N and M for intel-rapl:N:M
func domainIndex(dirName string) (int, bool) {
	if !strings.HasPrefix(dirName, raplPrefix) {
		return 0, false
	}
	suffix := dirName[strings.LastIndex(dirName, ":")+1:]
	index, err := strconv.Atoi(suffix)
	if err != nil || index < 0 {
		return 0, false
	}
	return index, true
}

// Resolve selects a package and an optional component. Each selector is
// either a zero-based index or the exact display name of a domain; component
// names are resolved within the selected package. An empty package selector
// means package 0 and an empty component selector means none.
func Resolve(domains []*Domain, pkg, component string) (Selection, error) {
	if pkg == "" {
		pkg = "0"
	}

	p, err := find(domains, pkg)
	if err != nil {
		return Selection{}, fmt.Errorf("package %q: %w", pkg, err)
	}

	sel := Selection{Package: p}
	if component == "" {
		return sel, nil
	}

	c, err := find(p.Components, component)
	if err != nil {
		return Selection{}, fmt.Errorf("component %q of %s: %w", component, p.Name, err)
	}
	sel.Component = c
	return sel, nil
}

func find(domains []*Domain, selector string) (*Domain, error) {
	if index, err := strconv.Atoi(selector); err == nil {
		for _, d := range domains {
			if d.Index == index {
				return d, nil
			}
		}
		return nil, ErrDomainNotFound
	}

	for _, d := range domains {
		if d.Name == selector {
			return d, nil
		}
	}
	return nil, ErrDomainNotFound
}

// NameToIndex returns the index of the package named name.
func NameToIndex(domains []*Domain, name string) (int, error) {
	for _, d := range domains {
		if d.Name == name {
			return d.Index, nil
		}
	}
	return 0, fmt.Errorf("package %q: %w", name, ErrDomainNotFound)
}

// Stringify renders the domain hierarchy one domain per line, components
// indented under their package:
//
//	[0] package-0
//	  [0] core
//	[1] package-1
func Stringify(domains []*Domain) string {
	sb := strings.Builder{}
	for _, p := range domains {
		fmt.Fprintf(&sb, "[%d] %s\n", p.Index, p.Name)
		for _, c := range p.Components {
			fmt.Fprintf(&sb, "  [%d] %s\n", c.Index, c.Name)
		}
	}
	return sb.String()
}
