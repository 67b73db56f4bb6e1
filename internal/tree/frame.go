// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

// Package tree holds the call tree energy is attributed to.
package tree

import (
	"slices"
	"strconv"
	"strings"

	"github.com/powerapi-ng/joulehunter/internal/device"
	"github.com/powerapi-ng/joulehunter/internal/stack"
)

// Synthetic function names
const (
	RootFunction         = "[root]"
	SelfFunction         = "[self]"
	AwaitFunction        = "[await]"
	OutOfContextFunction = "[out-of-context]"
	ElidedFunction       = stack.ElidedFunction
)

// Kind distinguishes regular frames from the synthetic ones.
type Kind uint8

const (
	Regular Kind = iota
	Root
	Self
	Await
	OutOfContext
	Elided
)

// KindOf returns the kind of a frame calling function.
func KindOf(function string) Kind {
	switch function {
	case RootFunction:
		return Root
	case SelfFunction:
		return Self
	case AwaitFunction:
		return Await
	case OutOfContextFunction:
		return OutOfContext
	case ElidedFunction:
		return Elided
	}
	return Regular
}

// Synthetic reports whether k is not a real function
func (k Kind) Synthetic() bool {
	return k != Regular
}

// IsAwait reports whether energy in a frame of kind k was spent waiting
func (k Kind) IsAwait() bool {
	return k == Await || k == OutOfContext
}

// Frame is a node of the call tree. The energy of a frame is its own
// energy plus the energy of its children. Totals are cached and invalidated
// up the parent chain on every mutation.
type Frame struct {
	Function      string
	FilePath      string
	FilePathShort string
	LineNo        int

	IsApplicationCode bool
	Kind              Kind
	Group             *Group
	Parent            *Frame

	self     device.Energy
	children []*Frame

	// derived
	dirty bool
	total device.Energy
	await device.Energy

	// child lookup while recording samples
	index map[Key]*Frame
}

// Key identifies a frame among its siblings
type Key struct {
	Function string
	File     string
	Line     int
}

// NewFrame creates a detached frame
func NewFrame(function, file string, line int) *Frame {
	return &Frame{
		Function: function,
		FilePath: file,
		LineNo:   line,
		Kind:     KindOf(function),
		dirty:    true,
	}
}

// NewSelfFrame creates a [self] frame carrying energy e
func NewSelfFrame(e device.Energy) *Frame {
	f := NewFrame(SelfFunction, "", 0)
	f.self = e
	return f
}

// Identifier returns the identity of f among its siblings
func (f *Frame) Identifier() string {
	return f.Function + "\x00" + f.FilePath + "\x00" + strconv.Itoa(f.LineNo)
}

// Key returns the sibling identity of f
func (f *Frame) Key() Key {
	return Key{f.Function, f.FilePath, f.LineNo}
}

// SelfEnergy is the energy attributed to f itself
func (f *Frame) SelfEnergy() device.Energy {
	return f.self
}

// SetSelfEnergy replaces the energy attributed to f itself
func (f *Frame) SetSelfEnergy(e device.Energy) {
	f.self = e
	f.invalidate()
}

// AddSelfEnergy adds e to the energy attributed to f itself
func (f *Frame) AddSelfEnergy(e device.Energy) {
	f.self += e
	f.invalidate()
}

// Children returns the children of f. The slice must not be modified.
func (f *Frame) Children() []*Frame {
	return f.children
}

// HasChildren reports whether f has at least one child
func (f *Frame) HasChildren() bool {
	return len(f.children) > 0
}

// AddChild appends c, detaching it from a previous parent
func (f *Frame) AddChild(c *Frame) {
	if c.Parent != nil && c.Parent != f {
		c.RemoveFromParent()
	}
	c.Parent = f
	f.children = append(f.children, c)
	f.invalidate()
}

// SetChildren replaces the children of f
func (f *Frame) SetChildren(children []*Frame) {
	for _, c := range children {
		c.Parent = f
	}
	f.children = children
	f.index = nil
	f.invalidate()
}

// RemoveFromParent detaches f from its parent
func (f *Frame) RemoveFromParent() {
	p := f.Parent
	if p == nil {
		return
	}
	if i := slices.Index(p.children, f); i >= 0 {
		p.children = slices.Delete(p.children, i, i+1)
	}
	if p.index != nil {
		delete(p.index, f.Key())
	}
	f.Parent = nil
	p.invalidate()
}

// TotalEnergy returns the energy of f and its descendants
func (f *Frame) TotalEnergy() device.Energy {
	f.update()
	return f.total
}

// AwaitEnergy returns the part of TotalEnergy spent while the profiled
// goroutine was parked
func (f *Frame) AwaitEnergy() device.Energy {
	f.update()
	return f.await
}

func (f *Frame) invalidate() {
	for p := f; p != nil && !p.dirty; p = p.Parent {
		p.dirty = true
	}
}

// update recomputes the cached totals of the dirty part of the subtree of f.
// A clean frame has clean descendants, so clean subtrees are skipped.
func (f *Frame) update() {
	if !f.dirty {
		return
	}

	order := []*Frame{}
	pending := []*Frame{f}
	for len(pending) > 0 {
		n := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		order = append(order, n)
		for _, c := range n.children {
			if c.dirty {
				pending = append(pending, c)
			}
		}
	}

	for i := len(order) - 1; i >= 0; i-- {
		n := order[i]
		total, await := n.self, device.Energy(0)
		if n.Kind.IsAwait() {
			await = n.self
		}
		for _, c := range n.children {
			total += c.total
			await += c.await
		}
		n.total, n.await = total, await
		n.dirty = false
	}
}

// Library returns the package path of f, empty for synthetic frames
func (f *Frame) Library() string {
	if f.Kind.Synthetic() {
		return ""
	}
	return stack.PackagePath(f.Function)
}

// Proportion returns the share of total represented by e
func Proportion(e, total device.Energy) float64 {
	if total == 0 {
		return 0
	}
	return float64(e) / float64(total)
}

func (f *Frame) String() string {
	sb := strings.Builder{}
	sb.WriteString(f.Function)
	if f.FilePathShort != "" {
		sb.WriteByte(' ')
		sb.WriteString(f.FilePathShort)
		sb.WriteByte(':')
		sb.WriteString(strconv.Itoa(f.LineNo))
	}
	return sb.String()
}
