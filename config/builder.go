// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Builder layers YAML documents over a base configuration, later layers
// winning. A zero number or an empty string in a layer keeps the value
// below it; booleans apply whenever they are set, false included.
type Builder struct {
	base   *Config
	layers []layer
}

type layer struct {
	source string
	path   string
	data   []byte
}

// NewBuilder creates a Builder over DefaultConfig
func NewBuilder() *Builder {
	return &Builder{}
}

// Use sets the base configuration
func (b *Builder) Use(c *Config) *Builder {
	b.base = c
	return b
}

// Merge adds YAML documents as layers
func (b *Builder) Merge(yamls ...string) *Builder {
	for _, y := range yamls {
		b.layers = append(b.layers, layer{
			source: fmt.Sprintf("document %d", len(b.layers)+1),
			data:   []byte(y),
		})
	}
	return b
}

// MergeFiles adds configuration files as layers; they are read by Build
func (b *Builder) MergeFiles(paths ...string) *Builder {
	for _, p := range paths {
		b.layers = append(b.layers, layer{source: p, path: p})
	}
	return b
}

// Build merges every layer into the base configuration, then sanitizes and
// validates the result. All layer errors are reported together.
func (b *Builder) Build() (*Config, error) {
	cfg := b.base
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var errs error
	for _, l := range b.layers {
		data := l.data
		if l.path != "" {
			var err error
			if data, err = os.ReadFile(l.path); err != nil {
				errs = errors.Join(errs, fmt.Errorf("failed to read config file: %w", err))
				continue
			}
		}

		additional := &Config{}
		if err := yaml.Unmarshal(data, additional); err != nil {
			errs = errors.Join(errs, fmt.Errorf("failed to parse %s: %w", l.source, err))
			continue
		}
		if err := mergo.Merge(cfg, additional, mergo.WithOverride, mergo.WithTransformers(boolPtrTransformer{})); err != nil {
			errs = errors.Join(errs, fmt.Errorf("failed to merge %s: %w", l.source, err))
		}
	}
	if errs != nil {
		return nil, errs
	}

	cfg.sanitize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// boolPtrTransformer lets a layer set a *bool to false, which mergo would
// otherwise skip as empty
type boolPtrTransformer struct{}

func (boolPtrTransformer) Transformer(typ reflect.Type) func(dst, src reflect.Value) error {
	if typ != reflect.TypeOf((*bool)(nil)) {
		return nil
	}

	return func(dst, src reflect.Value) error {
		if !src.IsNil() && dst.CanSet() {
			dst.Set(src)
		}
		return nil
	}
}
