// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

package renderer

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type jsonFrame struct {
	Function          string      `json:"function"`
	FilePathShort     string      `json:"file_path_short"`
	FilePath          string      `json:"file_path"`
	LineNo            int         `json:"line_no"`
	Time              float64     `json:"time"`
	AwaitTime         float64     `json:"await_time"`
	IsApplicationCode bool        `json:"is_application_code"`
	Children          []jsonFrame `json:"children"`
	GroupID           *string     `json:"group_id"`
}

type jsonSession struct {
	StartTime   float64    `json:"start_time"`
	Duration    float64    `json:"duration"`
	SampleCount int        `json:"sample_count"`
	Energy      float64    `json:"energy"`
	Program     string     `json:"program"`
	Package     string     `json:"package"`
	Component   *string    `json:"component"`
	RootFrame   *jsonFrame `json:"root_frame"`
}

func renderJSON(t *testing.T, out string) jsonSession {
	t.Helper()
	s := jsonSession{}
	require.NoError(t, json.Unmarshal([]byte(out), &s))
	return s
}

func TestJSONRenderer(t *testing.T) {
	out, err := Output(NewJSON(), simpleSession(t))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(out, "}\n"))

	s := renderJSON(t, out)
	assert.InDelta(t, 1700000000.0, s.StartTime, 1e-6)
	assert.InDelta(t, 2.0, s.Duration, 1e-9)
	assert.Equal(t, 2, s.SampleCount)
	assert.InDelta(t, 0.4, s.Energy, 1e-9)
	assert.Equal(t, "app --serve", s.Program)
	assert.Equal(t, "package-0", s.Package)
	assert.Nil(t, s.Component)

	root := s.RootFrame
	require.NotNil(t, root)
	assert.Equal(t, "example.com/app.main", root.Function)
	assert.Equal(t, "/src/app/main.go", root.FilePath)
	assert.Equal(t, 10, root.LineNo)
	assert.InDelta(t, 0.4, root.Time, 1e-9)
	assert.True(t, root.IsApplicationCode)
	assert.Nil(t, root.GroupID)

	require.Len(t, root.Children, 2)
	assert.Equal(t, "example.com/app.work", root.Children[0].Function)
	assert.InDelta(t, 0.3, root.Children[0].Time, 1e-9)
	assert.Equal(t, "example.com/app.idle", root.Children[1].Function)
	assert.Empty(t, root.Children[1].Children)
}

func TestJSONRenderer_Groups(t *testing.T) {
	out, err := Output(NewJSON(), librarySession(t))
	require.NoError(t, err)

	s := renderJSON(t, out)
	require.NotNil(t, s.Component)
	assert.Equal(t, "core", *s.Component)

	a := s.RootFrame.Children[0]
	require.NotNil(t, a.GroupID)
	b := a.Children[0]
	require.NotNil(t, b.GroupID)
	assert.Equal(t, *a.GroupID, *b.GroupID)
	assert.False(t, a.IsApplicationCode)
}

func TestJSONRenderer_NoSamples(t *testing.T) {
	out, err := Output(NewJSON(), emptySession(t))
	require.NoError(t, err)

	s := renderJSON(t, out)
	assert.Nil(t, s.RootFrame)
	assert.Zero(t, s.SampleCount)
}

func TestJSONRenderer_Escaping(t *testing.T) {
	s := simpleSession(t)
	s.Program = `app "quoted" <b>`

	out, err := Output(NewJSON(), s)
	require.NoError(t, err)
	assert.NotContains(t, out, "<b>")
	assert.Equal(t, `app "quoted" <b>`, renderJSON(t, out).Program)
}

func TestJSONRenderer_Deep(t *testing.T) {
	const depth = 20000
	out, err := Output(NewJSON(), deepSession(t, depth))
	require.NoError(t, err)

	// deeper than encoding/json accepts, so check the structure by counting
	assert.Equal(t, depth, strings.Count(out, `"function":"example.com/app.recurse"`))
	assert.Equal(t, depth, strings.Count(out, `"children":[`))
	assert.True(t, strings.HasSuffix(out, strings.Repeat("]}", depth)+"}\n"))
}
