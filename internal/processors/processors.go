// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

// Package processors transforms a raw call tree into the compact tree that
// is rendered. Processors mutate the tree they are given; Apply runs them on
// a copy.
package processors

import (
	"cmp"
	"fmt"
	"regexp"
	"slices"

	"github.com/powerapi-ng/joulehunter/internal/stack"
	"github.com/powerapi-ng/joulehunter/internal/tree"
)

// DefaultFilterThreshold is the share of the root energy below which a
// subtree is folded into its parent
const DefaultFilterThreshold = 0.002

// Options tune the processors
type Options struct {
	FilterThreshold float64
	// HideRegex hides frames whose file path matches, ShowRegex shows them;
	// ShowRegex wins when both match
	HideRegex *regexp.Regexp
	ShowRegex *regexp.Regexp
}

// DefaultOptions returns the options used when none are given
func DefaultOptions() Options {
	return Options{FilterThreshold: DefaultFilterThreshold}
}

// CompilePathRegex compiles expr anchored at the start of the file path
func CompilePathRegex(expr string) (*regexp.Regexp, error) {
	if expr == "" {
		return nil, nil
	}
	re, err := regexp.Compile("^(?:" + expr + ")")
	if err != nil {
		return nil, fmt.Errorf("invalid path regex %q: %w", expr, err)
	}
	return re, nil
}

// Processor transforms the tree rooted at root and returns the new root
type Processor func(root *tree.Frame, opts Options) *tree.Frame

// Default returns the processors applied before rendering, in order
func Default() []Processor {
	return []Processor{
		RemoveRuntimeInit,
		MergeConsecutiveSelfTime,
		AggregateRepeatedCalls,
		GroupLibraryFrames,
		RemoveUnnecessarySelfTimeNodes,
		RemoveIrrelevantNodes,
	}
}

// Apply runs processors on a copy of root; root itself is left untouched.
func Apply(root *tree.Frame, processors []Processor, opts Options) *tree.Frame {
	if root == nil {
		return nil
	}
	out := tree.Clone(root)
	for _, p := range processors {
		if out == nil {
			break
		}
		out = p(out, opts)
	}
	return out
}

// runtimeInit reports whether f is package initialization machinery
func runtimeInit(f *tree.Frame) bool {
	switch f.Function {
	case "runtime.doInit", "runtime.doInit1":
		return true
	}
	return f.Kind == tree.Regular && stack.PackagePath(f.Function) == "plugin"
}

// RemoveRuntimeInit removes the runtime frames that run package init
// functions and plugin loading. Their children take their place and their
// own energy goes to their parent.
func RemoveRuntimeInit(root *tree.Frame, _ Options) *tree.Frame {
	tree.Walk(root, func(f *tree.Frame) bool {
		if !slices.ContainsFunc(f.Children(), runtimeInit) {
			return true
		}

		kept := []*tree.Frame{}
		pending := slices.Clone(f.Children())
		slices.Reverse(pending)
		for len(pending) > 0 {
			c := pending[len(pending)-1]
			pending = pending[:len(pending)-1]
			if !runtimeInit(c) {
				kept = append(kept, c)
				continue
			}
			f.AddSelfEnergy(c.SelfEnergy())
			for i := len(c.Children()) - 1; i >= 0; i-- {
				pending = append(pending, c.Children()[i])
			}
		}
		f.SetChildren(kept)
		return true
	})
	return root
}

// MergeConsecutiveSelfTime merges adjacent [self] siblings into the first one
func MergeConsecutiveSelfTime(root *tree.Frame, _ Options) *tree.Frame {
	tree.Walk(root, func(f *tree.Frame) bool {
		children := f.Children()
		merged := false
		kept := make([]*tree.Frame, 0, len(children))
		for _, c := range children {
			if n := len(kept); n > 0 && c.Kind == tree.Self && kept[n-1].Kind == tree.Self {
				kept[n-1].AddSelfEnergy(c.SelfEnergy())
				merged = true
				continue
			}
			kept = append(kept, c)
		}
		if merged {
			f.SetChildren(kept)
		}
		return true
	})
	return root
}

// AggregateRepeatedCalls merges siblings with the same identity, summing
// their own energy and concatenating their children, then orders every
// frame's children by energy, largest first. Running it twice changes nothing.
func AggregateRepeatedCalls(root *tree.Frame, _ Options) *tree.Frame {
	tree.Walk(root, func(f *tree.Frame) bool {
		children := f.Children()
		if len(children) == 0 {
			return true
		}

		seen := make(map[tree.Key]*tree.Frame, len(children))
		kept := make([]*tree.Frame, 0, len(children))
		for _, c := range children {
			first, dup := seen[c.Key()]
			if !dup {
				seen[c.Key()] = c
				kept = append(kept, c)
				continue
			}
			first.AddSelfEnergy(c.SelfEnergy())
			if c.HasChildren() {
				first.SetChildren(append(slices.Clone(first.Children()), c.Children()...))
			}
		}

		slices.SortStableFunc(kept, func(a, b *tree.Frame) int {
			return cmp.Compare(b.TotalEnergy(), a.TotalEnergy())
		})
		f.SetChildren(kept)
		return true
	})
	return root
}

// GroupLibraryFrames collects connected runs of hidden frames into groups.
// A group starts at a hidden frame that has at least one hidden child.
func GroupLibraryFrames(root *tree.Frame, opts Options) *tree.Frame {
	hidden := func(f *tree.Frame) bool {
		if f.Kind.Synthetic() {
			return false
		}
		if opts.ShowRegex != nil && opts.ShowRegex.MatchString(f.FilePath) {
			return false
		}
		if opts.HideRegex != nil && opts.HideRegex.MatchString(f.FilePath) {
			return true
		}
		return !f.IsApplicationCode
	}

	seq := 0
	tree.Walk(root, func(f *tree.Frame) bool {
		for _, c := range f.Children() {
			if c.Group != nil || !hidden(c) || !slices.ContainsFunc(c.Children(), hidden) {
				continue
			}

			g := tree.NewGroup(c, seq)
			seq++
			pending := []*tree.Frame{c}
			for len(pending) > 0 {
				m := pending[len(pending)-1]
				pending = pending[:len(pending)-1]
				g.AddFrame(m)
				for i := len(m.Children()) - 1; i >= 0; i-- {
					if gc := m.Children()[i]; hidden(gc) {
						pending = append(pending, gc)
					}
				}
			}
		}
		return true
	})
	return root
}

// RemoveUnnecessarySelfTimeNodes folds a [self] frame that is the only
// child into its parent and drops [self] frames without energy.
func RemoveUnnecessarySelfTimeNodes(root *tree.Frame, _ Options) *tree.Frame {
	tree.Walk(root, func(f *tree.Frame) bool {
		children := f.Children()
		if len(children) == 1 && children[0].Kind == tree.Self {
			f.AddSelfEnergy(children[0].SelfEnergy())
			f.SetChildren(nil)
			return false
		}
		if slices.ContainsFunc(children, emptySelf) {
			f.SetChildren(slices.DeleteFunc(slices.Clone(children), emptySelf))
		}
		return true
	})
	return root
}

func emptySelf(f *tree.Frame) bool {
	return f.Kind == tree.Self && f.TotalEnergy() == 0
}

// RemoveIrrelevantNodes removes subtrees holding less than
// opts.FilterThreshold of the root energy; their energy becomes the own
// energy of their parent so totals up the tree are unchanged.
func RemoveIrrelevantNodes(root *tree.Frame, opts Options) *tree.Frame {
	total := root.TotalEnergy()
	tree.Walk(root, func(f *tree.Frame) bool {
		children := f.Children()
		kept := make([]*tree.Frame, 0, len(children))
		for _, c := range children {
			if tree.Proportion(c.TotalEnergy(), total) >= opts.FilterThreshold {
				kept = append(kept, c)
				continue
			}
			f.AddSelfEnergy(c.TotalEnergy())
			leaveGroups(c)
		}
		if len(kept) != len(children) {
			f.SetChildren(kept)
		}
		return true
	})
	return root
}

// leaveGroups removes the frames of a pruned subtree from their groups
func leaveGroups(root *tree.Frame) {
	tree.Walk(root, func(f *tree.Frame) bool {
		if f.Group != nil {
			f.Group.RemoveFrame(f)
		}
		return true
	})
}
