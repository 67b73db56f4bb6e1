// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

package renderer

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/powerapi-ng/joulehunter/internal/device"
	"github.com/powerapi-ng/joulehunter/internal/processors"
	"github.com/powerapi-ng/joulehunter/internal/session"
	"github.com/powerapi-ng/joulehunter/internal/tree"
)

const (
	// frames of a group stay visible when their own energy exceeds this
	// share of the root
	groupVisibleSelf = 0.2
	librariesWidth   = 40
)

// branch drawing for one level of the tree
type branches struct {
	tee, pipe, corner, blank string
}

var (
	asciiBranches   = branches{tee: "|- ", pipe: "|  ", corner: "`- ", blank: "   "}
	unicodeBranches = branches{tee: "├─ ", pipe: "│  ", corner: "└─ ", blank: "   "}
	groupBranches   = branches{tee: "      ", pipe: "      ", corner: "      ", blank: "      "}
	hiddenBranches  = branches{}
)

type paint func(...string) string

func plain(s ...string) string {
	return strings.Join(s, " ")
}

type palette struct {
	red, yellow, green, dim paint
	app, faint, header      paint
}

func newPalette(w io.Writer, color bool) palette {
	if !color {
		return palette{plain, plain, plain, plain, plain, plain, plain}
	}
	r := lipgloss.NewRenderer(w)
	return palette{
		red:    r.NewStyle().Foreground(lipgloss.Color("1")).Render,
		yellow: r.NewStyle().Foreground(lipgloss.Color("3")).Render,
		green:  r.NewStyle().Foreground(lipgloss.Color("2")).Render,
		dim:    r.NewStyle().Foreground(lipgloss.Color("10")).Faint(true).Render,
		app:    r.NewStyle().Background(lipgloss.Color("24")).Foreground(lipgloss.Color("15")).Render,
		faint:  r.NewStyle().Faint(true).Render,
		header: r.NewStyle().Foreground(lipgloss.Color("6")).Bold(true).Render,
	}
}

// TextRenderer draws the call tree for a console or a text file.
type TextRenderer struct {
	base
}

var _ Renderer = (*TextRenderer)(nil)

// NewText creates a TextRenderer; WithUnicode and WithColor tune its output
func NewText(applyOpts ...OptionFn) *TextRenderer {
	return &TextRenderer{base: newBase(processors.Default(), applyOpts...)}
}

func (r *TextRenderer) Render(w io.Writer, s *session.Session) error {
	out := bufio.NewWriter(w)
	p := newPalette(w, r.opts.color)

	r.preamble(out, p, s)

	root := r.preprocess(s)
	if root == nil {
		out.WriteString("No samples were recorded.\n\n")
		return out.Flush()
	}
	r.frames(out, p, root)
	out.WriteString("\n")
	return out.Flush()
}

func (r *TextRenderer) preamble(out *bufio.Writer, p palette, s *session.Session) {
	label := func(l string) string { return p.header(fmt.Sprintf("%-10s", l)) }

	fmt.Fprintf(out, "\n%s\n", p.header("joulehunter"))
	fmt.Fprintf(out, "%s %-16s %s %d\n", label("Duration:"), fmt.Sprintf("%.3fs", s.Duration.Seconds()),
		label("Samples:"), s.SampleCount)
	fmt.Fprintf(out, "%s %-16s %s %s\n", label("Energy:"), s.TotalEnergy(),
		label("Power:"), s.AveragePower())
	fmt.Fprintf(out, "%s %-16s", label("Package:"), s.Package())
	if c := s.Component(); c != "" {
		fmt.Fprintf(out, " %s %s", label("Component:"), c)
	}
	fmt.Fprintf(out, "\n%s %s\n\n", label("Program:"), s.Program)
}

type textItem struct {
	frame              *tree.Frame
	indent, childIndent string
}

func (r *TextRenderer) frames(out *bufio.Writer, p palette, root *tree.Frame) {
	total := root.TotalEnergy()
	drawn := asciiBranches
	if r.opts.unicode {
		drawn = unicodeBranches
	}

	pending := []textItem{{frame: root}}
	for len(pending) > 0 {
		it := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		f := it.frame

		b := hiddenBranches
		if visible(f, total) {
			b = drawn
			r.frameLine(out, p, f, it.indent, total)
			if g := f.Group; g != nil && g.Root == f {
				fmt.Fprintf(out, "%s   [%d frames hidden]  %s\n", it.childIndent, len(g.Frames()),
					p.faint(truncate(strings.Join(g.Libraries(), ", "), librariesWidth)))
				b = groupBranches
			}
		}

		children := f.Children()
		for i := len(children) - 1; i >= 0; i-- {
			next := textItem{frame: children[i]}
			if i == len(children)-1 {
				next.indent, next.childIndent = it.childIndent+b.corner, it.childIndent+b.blank
			} else {
				next.indent, next.childIndent = it.childIndent+b.tee, it.childIndent+b.pipe
			}
			pending = append(pending, next)
		}
	}
}

func (r *TextRenderer) frameLine(out *bufio.Writer, p palette, f *tree.Frame, indent string, total device.Energy) {
	energy := f.TotalEnergy()
	share := tree.Proportion(energy, total)

	value := fmt.Sprintf("%.3f J", energy.Joules())
	if total > 0 {
		value += fmt.Sprintf(" [%.1f%%]", share*100)
	}
	var colour paint
	switch {
	case share > 0.6:
		colour = p.red
	case share > 0.2:
		colour = p.yellow
	case share > 0.05:
		colour = p.green
	default:
		colour = p.dim
	}

	function := f.Function
	if f.IsApplicationCode {
		function = p.app(function)
	}
	fmt.Fprintf(out, "%s%s %s  %s\n", indent, colour(value), function, p.faint(codePosition(f)))
}

// visible reports whether f gets its own line: frames outside groups always
// do, grouped frames only when they root or leave the group or carry a
// significant share of the energy themselves
func visible(f *tree.Frame, total device.Energy) bool {
	g := f.Group
	if g == nil || g.Root == f || g.IsExit(f) {
		return true
	}
	return tree.Proportion(selfEnergy(f), total) > groupVisibleSelf
}

// selfEnergy sums the energy of f and of its [self] children
func selfEnergy(f *tree.Frame) device.Energy {
	e := f.SelfEnergy()
	for _, c := range f.Children() {
		if c.Kind == tree.Self {
			e += c.TotalEnergy()
		}
	}
	return e
}
