// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

package renderer

import (
	"bufio"
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"io"
	"strconv"

	"github.com/powerapi-ng/joulehunter/internal/processors"
	"github.com/powerapi-ng/joulehunter/internal/session"
	"github.com/powerapi-ng/joulehunter/internal/tree"
)

//go:embed html.tmpl
var pageTemplate string

var page = template.Must(template.New("page").Parse(pageTemplate))

// HTMLRenderer writes an interactive flame graph page embedding the
// session data.
type HTMLRenderer struct {
	base
}

var _ Renderer = (*HTMLRenderer)(nil)

func NewHTML(applyOpts ...OptionFn) *HTMLRenderer {
	return &HTMLRenderer{base: newBase(processors.Default(), applyOpts...)}
}

type pageData struct {
	Title   string
	Summary string
	Session template.JS
	Flame   template.JS
}

func (r *HTMLRenderer) Render(w io.Writer, s *session.Session) error {
	root := r.preprocess(s)

	sessionJSON := bytes.Buffer{}
	out := bufio.NewWriter(&sessionJSON)
	writeSessionJSON(out, s, root)
	if err := out.Flush(); err != nil {
		return err
	}

	flame := bytes.Buffer{}
	out = bufio.NewWriter(&flame)
	encodeTree(out, root, flameHead, flameTail)
	if err := out.Flush(); err != nil {
		return err
	}

	data := pageData{
		Title: "joulehunter " + s.Program,
		Summary: fmt.Sprintf("%s in %.3fs (%s), %d samples on %s",
			s.TotalEnergy(), s.Duration.Seconds(), s.AveragePower(), s.SampleCount, s.Package()),
		Session: template.JS(sessionJSON.String()),
		Flame:   template.JS(flame.String()),
	}
	if c := s.Component(); c != "" {
		data.Summary += "/" + c
	}

	buf := bufio.NewWriter(w)
	if err := page.Execute(buf, data); err != nil {
		return fmt.Errorf("failed to render html report: %w", err)
	}
	return buf.Flush()
}

// flame graph nodes carry their total energy in microjoules
func flameHead(out *bufio.Writer, f *tree.Frame) {
	out.WriteString(`{"name":`)
	writeString(out, f.String())
	out.WriteString(`,"value":`)
	out.WriteString(strconv.FormatUint(f.TotalEnergy().MicroJoules(), 10))
	if f.IsApplicationCode {
		out.WriteString(`,"app":true`)
	}
	out.WriteString(`,"children":[`)
}

func flameTail(out *bufio.Writer, _ *tree.Frame) {
	out.WriteString("]}")
}
