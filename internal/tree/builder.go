// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

package tree

import (
	"sync"

	"github.com/powerapi-ng/joulehunter/internal/device"
	"github.com/powerapi-ng/joulehunter/internal/stack"
)

// Builder accumulates samples into a call tree under a synthetic root.
type Builder struct {
	classifier *stack.Classifier

	mu      sync.Mutex
	root    *Frame
	samples int
}

// NewBuilder creates a Builder; classifier decides which frames are application code
func NewBuilder(classifier *stack.Classifier) *Builder {
	if classifier == nil {
		classifier = stack.NewClassifier()
	}
	return &Builder{
		classifier: classifier,
		root:       NewFrame(RootFunction, "", 0),
	}
}

// Record attributes delta to the leaf of frames, outermost frame first.
// Frames already in the tree are reused so each call costs O(len(frames)).
// An empty stack is recorded as out of context.
func (b *Builder) Record(frames []stack.Frame, delta device.Energy) {
	b.mu.Lock()
	defer b.mu.Unlock()

	node := b.root
	if len(frames) == 0 {
		node = b.child(node, stack.Frame{Function: OutOfContextFunction})
	}
	for _, f := range frames {
		node = b.child(node, f)
	}
	node.AddSelfEnergy(delta)
	b.samples++
}

func (b *Builder) child(parent *Frame, f stack.Frame) *Frame {
	key := Key{f.Function, f.File, f.Line}
	if c, ok := parent.index[key]; ok {
		return c
	}

	c := NewFrame(f.Function, f.File, f.Line)
	c.FilePathShort = b.classifier.ShortPath(f.File)
	c.IsApplicationCode = b.classifier.IsApplicationCode(f)
	if parent.index == nil {
		parent.index = map[Key]*Frame{}
	}
	parent.index[key] = c
	parent.AddChild(c)
	return c
}

// Samples returns the number of samples recorded so far
func (b *Builder) Samples() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.samples
}

// Freeze hands over the recorded tree and resets the builder. The returned
// root is the synthetic [root] frame, nil when nothing was recorded.
func (b *Builder) Freeze() (*Frame, int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	root, samples := b.root, b.samples
	b.root = NewFrame(RootFunction, "", 0)
	b.samples = 0
	if samples == 0 {
		return nil, 0
	}

	Walk(root, func(f *Frame) bool {
		f.index = nil
		return true
	})
	return root, samples
}
