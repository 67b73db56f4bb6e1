// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

// Package session holds the immutable result of a profiling run.
package session

import (
	"time"

	"github.com/powerapi-ng/joulehunter/internal/device"
	"github.com/powerapi-ng/joulehunter/internal/tree"
)

// Session is a finished profiling run. It is never mutated after creation;
// RootFrame hands out copies of the call tree.
type Session struct {
	StartTime    time.Time
	Duration     time.Duration
	SampleCount  int
	DomainNames  []string
	Program      string
	Interval     time.Duration
	AsyncMode    string
	DroppedTicks uint64

	root *tree.Frame
}

// New creates a Session owning root, the synthetic root recorded by a
// tree.Builder; root is nil when no sample was taken.
func New(root *tree.Frame, s Session) *Session {
	s.root = root
	if root == nil {
		s.SampleCount = 0
		return &s
	}
	// settle the cached totals now; readers of a session never write to it
	root.TotalEnergy()
	return &s
}

// RootFrame returns a copy of the call tree, nil when there were no samples.
// A synthetic root with a single child is skipped and the own energy of
// frames that have children is moved into a trailing [self] child.
func (s *Session) RootFrame() *tree.Frame {
	if s.root == nil {
		return nil
	}
	root := tree.Unwrap(tree.Clone(s.root))
	tree.MaterializeSelf(root)
	return root
}

// TotalEnergy returns the energy attributed during the session
func (s *Session) TotalEnergy() device.Energy {
	if s.root == nil {
		return 0
	}
	return s.root.TotalEnergy()
}

// AwaitEnergy returns the energy spent while the profiled goroutine was parked
func (s *Session) AwaitEnergy() device.Energy {
	if s.root == nil {
		return 0
	}
	return s.root.AwaitEnergy()
}

// Package returns the name of the measured package domain
func (s *Session) Package() string {
	if len(s.DomainNames) == 0 {
		return ""
	}
	return s.DomainNames[0]
}

// Component returns the name of the measured component domain, if any
func (s *Session) Component() string {
	if len(s.DomainNames) < 2 {
		return ""
	}
	return s.DomainNames[1]
}

// AveragePower returns the mean power drawn over the session
func (s *Session) AveragePower() device.Power {
	return s.TotalEnergy().Over(s.Duration)
}
