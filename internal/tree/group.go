// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

package tree

import (
	"slices"
	"strconv"

	"github.com/google/uuid"
)

// groupNamespace scopes group ids derived from frame identities
var groupNamespace = uuid.MustParse("6f1c1c9e-4b0a-5d8e-9a57-0b8f3c1d2e4a")

// Group is a connected run of library frames collapsed for display.
type Group struct {
	ID     string
	Root   *Frame
	frames []*Frame
}

// NewGroup creates a group rooted at root. seq distinguishes groups with
// the same root identity within one tree; the id is stable for a given
// tree and traversal order.
func NewGroup(root *Frame, seq int) *Group {
	g := &Group{
		ID:   uuid.NewSHA1(groupNamespace, []byte(strconv.Itoa(seq)+"\x00"+root.Identifier())).String(),
		Root: root,
	}
	g.AddFrame(root)
	return g
}

// AddFrame makes f a member of g
func (g *Group) AddFrame(f *Frame) {
	if f.Group == g {
		return
	}
	f.Group = g
	g.frames = append(g.frames, f)
}

// RemoveFrame drops f from the members of g
func (g *Group) RemoveFrame(f *Frame) {
	if f.Group != g {
		return
	}
	f.Group = nil
	if i := slices.Index(g.frames, f); i >= 0 {
		g.frames = slices.Delete(g.frames, i, i+1)
	}
}

// Frames returns the members, root first
func (g *Group) Frames() []*Frame {
	return g.frames
}

// ExitFrames returns the members through which control leaves the group:
// those calling a frame outside of it and those calling nothing.
func (g *Group) ExitFrames() []*Frame {
	exits := []*Frame{}
	for _, f := range g.frames {
		if !f.HasChildren() {
			exits = append(exits, f)
			continue
		}
		if slices.ContainsFunc(f.children, func(c *Frame) bool { return c.Group != g }) {
			exits = append(exits, f)
		}
	}
	return exits
}

// Libraries returns the distinct package paths of the members in order of
// first appearance
func (g *Group) Libraries() []string {
	libs := []string{}
	seen := map[string]bool{}
	for _, f := range g.frames {
		lib := f.Library()
		if lib == "" || seen[lib] {
			continue
		}
		seen[lib] = true
		libs = append(libs, lib)
	}
	return libs
}

// IsExit reports whether f is one of the exit frames of g
func (g *Group) IsExit(f *Frame) bool {
	if f.Group != g {
		return false
	}
	if !f.HasChildren() {
		return true
	}
	return slices.ContainsFunc(f.children, func(c *Frame) bool { return c.Group != g })
}
