// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

package renderer

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/powerapi-ng/joulehunter/internal/session"
	"github.com/powerapi-ng/joulehunter/internal/tree"
)

const speedscopeSchema = "https://www.speedscope.app/file-format-schema.json"

type speedscopeFrame struct {
	Name string `json:"name"`
	File string `json:"file,omitempty"`
	Line int    `json:"line,omitempty"`
}

type speedscopeProfile struct {
	Type       string   `json:"type"`
	Name       string   `json:"name"`
	Unit       string   `json:"unit"`
	StartValue uint64   `json:"startValue"`
	EndValue   uint64   `json:"endValue"`
	Samples    [][]int  `json:"samples"`
	Weights    []uint64 `json:"weights"`
}

type speedscopeFile struct {
	Schema string `json:"$schema"`
	Shared struct {
		Frames []speedscopeFrame `json:"frames"`
	} `json:"shared"`
	Profiles           []speedscopeProfile `json:"profiles"`
	Name               string              `json:"name"`
	ActiveProfileIndex int                 `json:"activeProfileIndex"`
	Exporter           string              `json:"exporter"`
}

// SpeedscopeRenderer writes a sampled speedscope profile weighted by energy
// in microjoules. It works on the unprocessed tree by default.
type SpeedscopeRenderer struct {
	base
}

var _ Renderer = (*SpeedscopeRenderer)(nil)

func NewSpeedscope(applyOpts ...OptionFn) *SpeedscopeRenderer {
	return &SpeedscopeRenderer{base: newBase(nil, applyOpts...)}
}

func (r *SpeedscopeRenderer) Render(w io.Writer, s *session.Session) error {
	file := speedscopeFile{
		Schema:   speedscopeSchema,
		Name:     s.Program,
		Exporter: "joulehunter",
	}
	file.Shared.Frames = []speedscopeFrame{}

	prof := speedscopeProfile{
		Type:    "sampled",
		Name:    fmt.Sprintf("%s energy (µJ)", s.Package()),
		Unit:    "none",
		Samples: [][]int{},
		Weights: []uint64{},
	}

	index := map[tree.Key]int{}
	frameIndex := func(f *tree.Frame) int {
		k := f.Key()
		if i, ok := index[k]; ok {
			return i
		}
		i := len(file.Shared.Frames)
		index[k] = i
		file.Shared.Frames = append(file.Shared.Frames, speedscopeFrame{
			Name: f.Function,
			File: f.FilePath,
			Line: f.LineNo,
		})
		return i
	}

	forEachStack(r.preprocess(s), frameIndex, func(stack []int, e uint64) {
		prof.Samples = append(prof.Samples, stack)
		prof.Weights = append(prof.Weights, e)
		prof.EndValue += e
	})
	file.Profiles = []speedscopeProfile{prof}

	if err := json.NewEncoder(w).Encode(file); err != nil {
		return fmt.Errorf("failed to write speedscope profile: %w", err)
	}
	return nil
}

// forEachStack calls sample with the stack, outermost first, of every
// frame carrying energy of its own. [self] frames are folded into their
// parent's stack. id maps frames to stack entries.
func forEachStack[T any](root *tree.Frame, id func(*tree.Frame) T, sample func(stack []T, e uint64)) {
	var path []T
	tree.WalkDepth(root, func(f *tree.Frame, depth int) bool {
		path = path[:depth]
		if f.Kind != tree.Self {
			path = append(path, id(f))
		}
		if e := f.SelfEnergy(); e > 0 {
			sample(append([]T(nil), path...), e.MicroJoules())
		}
		return true
	})
}
