// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

package tree

// Traversals use explicit stacks; call trees can be deeper than what
// recursion should be trusted with.

// Walk visits the subtree of root in pre-order, children in order. The
// children of a frame are skipped when visit returns false.
func Walk(root *Frame, visit func(*Frame) bool) {
	if root == nil {
		return
	}
	pending := []*Frame{root}
	for len(pending) > 0 {
		f := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		if !visit(f) {
			continue
		}
		for i := len(f.children) - 1; i >= 0; i-- {
			pending = append(pending, f.children[i])
		}
	}
}

// WalkDepth is Walk with the depth of every frame, root being 0.
func WalkDepth(root *Frame, visit func(f *Frame, depth int) bool) {
	if root == nil {
		return
	}
	type item struct {
		f     *Frame
		depth int
	}
	pending := []item{{root, 0}}
	for len(pending) > 0 {
		it := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		if !visit(it.f, it.depth) {
			continue
		}
		for i := len(it.f.children) - 1; i >= 0; i-- {
			pending = append(pending, item{it.f.children[i], it.depth + 1})
		}
	}
}

// PostOrder visits the subtree of root children first.
func PostOrder(root *Frame, visit func(*Frame)) {
	if root == nil {
		return
	}
	order := []*Frame{}
	Walk(root, func(f *Frame) bool {
		order = append(order, f)
		return true
	})
	for i := len(order) - 1; i >= 0; i-- {
		visit(order[i])
	}
}

// Count returns the number of frames in the subtree of root
func Count(root *Frame) int {
	n := 0
	Walk(root, func(*Frame) bool {
		n++
		return true
	})
	return n
}

// Depth returns the number of frames on the longest path from root
func Depth(root *Frame) int {
	deepest := 0
	WalkDepth(root, func(_ *Frame, d int) bool {
		deepest = max(deepest, d+1)
		return true
	})
	return deepest
}

// Clone returns a detached deep copy of root. Groups are not copied.
func Clone(root *Frame) *Frame {
	if root == nil {
		return nil
	}
	type item struct {
		src    *Frame
		parent *Frame
		slot   int
	}

	var out *Frame
	pending := []item{{root, nil, 0}}
	for len(pending) > 0 {
		it := pending[len(pending)-1]
		pending = pending[:len(pending)-1]

		c := &Frame{
			Function:          it.src.Function,
			FilePath:          it.src.FilePath,
			FilePathShort:     it.src.FilePathShort,
			LineNo:            it.src.LineNo,
			IsApplicationCode: it.src.IsApplicationCode,
			Kind:              it.src.Kind,
			self:              it.src.self,
			dirty:             true,
			Parent:            it.parent,
		}
		if n := len(it.src.children); n > 0 {
			c.children = make([]*Frame, n)
			for i, child := range it.src.children {
				pending = append(pending, item{child, c, i})
			}
		}

		if it.parent == nil {
			out = c
		} else {
			it.parent.children[it.slot] = c
		}
	}
	return out
}

// MaterializeSelf moves the own energy of every frame that has children into
// a trailing [self] child.
func MaterializeSelf(root *Frame) {
	Walk(root, func(f *Frame) bool {
		if f.self > 0 && len(f.children) > 0 && f.Kind != Self {
			e := f.self
			f.self = 0
			f.AddChild(NewSelfFrame(e))
		}
		return f.Kind != Self
	})
}

// Unwrap returns the single child of a synthetic root that holds no energy
// itself, detached; otherwise root.
func Unwrap(root *Frame) *Frame {
	if root == nil || root.Kind != Root || len(root.children) != 1 || root.self != 0 {
		return root
	}
	c := root.children[0]
	c.RemoveFromParent()
	return c
}
