// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

package renderer

import (
	"fmt"
	"io"
	"slices"

	"github.com/google/pprof/profile"

	"github.com/powerapi-ng/joulehunter/internal/session"
	"github.com/powerapi-ng/joulehunter/internal/tree"
)

// PprofRenderer writes a gzipped pprof profile whose single sample value
// is energy in microjoules, readable by go tool pprof.
type PprofRenderer struct {
	base
}

var _ Renderer = (*PprofRenderer)(nil)

func NewPprof(applyOpts ...OptionFn) *PprofRenderer {
	return &PprofRenderer{base: newBase(nil, applyOpts...)}
}

func (r *PprofRenderer) Render(w io.Writer, s *session.Session) error {
	p, err := r.Profile(s)
	if err != nil {
		return err
	}
	if err := p.Write(w); err != nil {
		return fmt.Errorf("failed to write pprof profile: %w", err)
	}
	return nil
}

// Profile builds the pprof profile of s
func (r *PprofRenderer) Profile(s *session.Session) (*profile.Profile, error) {
	p := &profile.Profile{
		SampleType:        []*profile.ValueType{{Type: "energy", Unit: "microjoules"}},
		DefaultSampleType: "energy",
		PeriodType:        &profile.ValueType{Type: "cpu", Unit: "nanoseconds"},
		Period:            s.Interval.Nanoseconds(),
		TimeNanos:         s.StartTime.UnixNano(),
		DurationNanos:     s.Duration.Nanoseconds(),
	}
	if s.Program != "" {
		p.Comments = []string{s.Program}
	}

	type funcKey struct{ name, file string }
	functions := map[funcKey]*profile.Function{}
	locations := map[tree.Key]*profile.Location{}

	location := func(f *tree.Frame) *profile.Location {
		if loc, ok := locations[f.Key()]; ok {
			return loc
		}
		fk := funcKey{f.Function, f.FilePath}
		fn, ok := functions[fk]
		if !ok {
			fn = &profile.Function{
				ID:         uint64(len(p.Function) + 1),
				Name:       f.Function,
				SystemName: f.Function,
				Filename:   f.FilePath,
			}
			functions[fk] = fn
			p.Function = append(p.Function, fn)
		}
		loc := &profile.Location{
			ID:   uint64(len(p.Location) + 1),
			Line: []profile.Line{{Function: fn, Line: int64(f.LineNo)}},
		}
		locations[f.Key()] = loc
		p.Location = append(p.Location, loc)
		return loc
	}

	forEachStack(r.preprocess(s), location, func(stack []*profile.Location, e uint64) {
		// pprof orders locations leaf first
		slices.Reverse(stack)
		p.Sample = append(p.Sample, &profile.Sample{
			Location: stack,
			Value:    []int64{int64(e)},
		})
	})

	if err := p.CheckValid(); err != nil {
		return nil, fmt.Errorf("invalid pprof profile: %w", err)
	}
	return p, nil
}
