// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/powerapi-ng/joulehunter/internal/device"
	"github.com/powerapi-ng/joulehunter/internal/tree"
)

const formatVersion = 1

// frames are stored flat, parents first, so that neither saving nor
// loading depends on the depth of the tree
type savedFrame struct {
	Parent            int    `json:"parent"`
	Function          string `json:"function"`
	FilePath          string `json:"file_path,omitempty"`
	FilePathShort     string `json:"file_path_short,omitempty"`
	LineNo            int    `json:"line_no,omitempty"`
	SelfEnergy        uint64 `json:"self_energy_uj"`
	IsApplicationCode bool   `json:"is_application_code,omitempty"`
}

type savedSession struct {
	Version      int          `json:"version"`
	StartTime    float64      `json:"start_time"`
	Duration     float64      `json:"duration"`
	SampleCount  int          `json:"sample_count"`
	Program      string       `json:"program"`
	Domains      []string     `json:"domains"`
	Interval     float64      `json:"interval"`
	AsyncMode    string       `json:"async_mode"`
	DroppedTicks uint64       `json:"dropped_ticks"`
	Frames       []savedFrame `json:"frames"`
}

// Save writes s as JSON
func (s *Session) Save(w io.Writer) error {
	out := savedSession{
		Version:      formatVersion,
		StartTime:    float64(s.StartTime.UnixMicro()) / 1e6,
		Duration:     s.Duration.Seconds(),
		SampleCount:  s.SampleCount,
		Program:      s.Program,
		Domains:      s.DomainNames,
		Interval:     s.Interval.Seconds(),
		AsyncMode:    s.AsyncMode,
		DroppedTicks: s.DroppedTicks,
		Frames:       []savedFrame{},
	}

	ids := map[*tree.Frame]int{}
	tree.Walk(s.root, func(f *tree.Frame) bool {
		parent := -1
		if id, ok := ids[f.Parent]; ok {
			parent = id
		}
		ids[f] = len(out.Frames)
		out.Frames = append(out.Frames, savedFrame{
			Parent:            parent,
			Function:          f.Function,
			FilePath:          f.FilePath,
			FilePathShort:     f.FilePathShort,
			LineNo:            f.LineNo,
			SelfEnergy:        f.SelfEnergy().MicroJoules(),
			IsApplicationCode: f.IsApplicationCode,
		})
		return true
	})

	if err := json.NewEncoder(w).Encode(out); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Load reads a session written by Save
func Load(r io.Reader) (*Session, error) {
	var in savedSession
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if in.Version != formatVersion {
		return nil, fmt.Errorf("unsupported session format version %d", in.Version)
	}

	frames := make([]*tree.Frame, len(in.Frames))
	for i, sf := range in.Frames {
		f := tree.NewFrame(sf.Function, sf.FilePath, sf.LineNo)
		f.FilePathShort = sf.FilePathShort
		f.IsApplicationCode = sf.IsApplicationCode
		f.SetSelfEnergy(device.Energy(sf.SelfEnergy))
		frames[i] = f

		switch {
		case i == 0 && sf.Parent != -1:
			return nil, fmt.Errorf("invalid session: first frame has parent %d", sf.Parent)
		case i > 0 && (sf.Parent < 0 || sf.Parent >= i):
			return nil, fmt.Errorf("invalid session: frame %d has parent %d", i, sf.Parent)
		case i > 0:
			frames[sf.Parent].AddChild(f)
		}
	}

	var root *tree.Frame
	if len(frames) > 0 {
		root = frames[0]
	}

	return New(root, Session{
		StartTime:    time.UnixMicro(int64(in.StartTime * 1e6)),
		Duration:     time.Duration(in.Duration * float64(time.Second)),
		SampleCount:  in.SampleCount,
		DomainNames:  in.Domains,
		Program:      in.Program,
		Interval:     time.Duration(in.Interval * float64(time.Second)),
		AsyncMode:    in.AsyncMode,
		DroppedTicks: in.DroppedTicks,
	}), nil
}
