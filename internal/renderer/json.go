// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

package renderer

import (
	"bufio"
	"encoding/json"
	"io"
	"strconv"

	"github.com/powerapi-ng/joulehunter/internal/processors"
	"github.com/powerapi-ng/joulehunter/internal/session"
	"github.com/powerapi-ng/joulehunter/internal/tree"
)

// JSONRenderer writes the processed call tree as nested JSON objects.
type JSONRenderer struct {
	base
}

var _ Renderer = (*JSONRenderer)(nil)

func NewJSON(applyOpts ...OptionFn) *JSONRenderer {
	return &JSONRenderer{base: newBase(processors.Default(), applyOpts...)}
}

func (r *JSONRenderer) Render(w io.Writer, s *session.Session) error {
	out := bufio.NewWriter(w)
	writeSessionJSON(out, s, r.preprocess(s))
	out.WriteByte('\n')
	return out.Flush()
}

func writeSessionJSON(out *bufio.Writer, s *session.Session, root *tree.Frame) {
	out.WriteString(`{"start_time":`)
	writeFloat(out, float64(s.StartTime.UnixMicro())/1e6)
	out.WriteString(`,"duration":`)
	writeFloat(out, s.Duration.Seconds())
	out.WriteString(`,"sample_count":`)
	out.WriteString(strconv.Itoa(s.SampleCount))
	out.WriteString(`,"energy":`)
	writeFloat(out, s.TotalEnergy().Joules())
	out.WriteString(`,"program":`)
	writeString(out, s.Program)
	out.WriteString(`,"package":`)
	writeString(out, s.Package())
	out.WriteString(`,"component":`)
	if c := s.Component(); c != "" {
		writeString(out, c)
	} else {
		out.WriteString("null")
	}
	out.WriteString(`,"root_frame":`)
	encodeTree(out, root, jsonFrameHead, jsonFrameTail)
	out.WriteByte('}')
}

func jsonFrameHead(out *bufio.Writer, f *tree.Frame) {
	out.WriteString(`{"function":`)
	writeString(out, f.Function)
	out.WriteString(`,"file_path_short":`)
	writeString(out, f.FilePathShort)
	out.WriteString(`,"file_path":`)
	writeString(out, f.FilePath)
	out.WriteString(`,"line_no":`)
	out.WriteString(strconv.Itoa(f.LineNo))
	out.WriteString(`,"time":`)
	writeFloat(out, f.TotalEnergy().Joules())
	out.WriteString(`,"await_time":`)
	writeFloat(out, f.AwaitEnergy().Joules())
	out.WriteString(`,"is_application_code":`)
	out.WriteString(strconv.FormatBool(f.IsApplicationCode))
	out.WriteString(`,"children":[`)
}

func jsonFrameTail(out *bufio.Writer, f *tree.Frame) {
	out.WriteByte(']')
	if f.Group != nil {
		out.WriteString(`,"group_id":`)
		writeString(out, f.Group.ID)
	}
	out.WriteByte('}')
}

type encodeItem struct {
	frame *tree.Frame
	next  int
}

// encodeTree writes the subtree of root depth first without recursion:
// head opens a frame, its children follow separated by commas, tail
// closes it. A nil root is written as null.
func encodeTree(out *bufio.Writer, root *tree.Frame, head, tail func(*bufio.Writer, *tree.Frame)) {
	if root == nil {
		out.WriteString("null")
		return
	}

	head(out, root)
	pending := []encodeItem{{frame: root}}
	for len(pending) > 0 {
		top := &pending[len(pending)-1]
		children := top.frame.Children()
		if top.next == len(children) {
			tail(out, top.frame)
			pending = pending[:len(pending)-1]
			continue
		}

		c := children[top.next]
		if top.next > 0 {
			out.WriteByte(',')
		}
		top.next++
		head(out, c)
		pending = append(pending, encodeItem{frame: c})
	}
}

// writeString writes s as a JSON string, escaped for embedding in HTML
func writeString(out *bufio.Writer, s string) {
	b, _ := json.Marshal(s)
	out.Write(b)
}

func writeFloat(out *bufio.Writer, v float64) {
	out.WriteString(strconv.FormatFloat(v, 'f', 6, 64))
}
