// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

package renderer

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextRenderer(t *testing.T) {
	tt := []struct {
		name     string
		unicode  bool
		contains []string
	}{{
		name: "ascii",
		contains: []string{
			"0.400 J [100.0%] example.com/app.main",
			"|- 0.300 J [75.0%] example.com/app.work",
			"`- 0.100 J [25.0%] example.com/app.idle",
		},
	}, {
		name:    "unicode",
		unicode: true,
		contains: []string{
			"0.400 J [100.0%] example.com/app.main",
			"├─ 0.300 J [75.0%] example.com/app.work",
			"└─ 0.100 J [25.0%] example.com/app.idle",
		},
	}}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			out, err := Output(NewText(WithUnicode(tc.unicode)), simpleSession(t))
			require.NoError(t, err)
			for _, want := range tc.contains {
				assert.Contains(t, out, want)
			}
			assert.Contains(t, out, "main.go:20")
		})
	}
}

func TestTextRenderer_Preamble(t *testing.T) {
	out, err := Output(NewText(), librarySession(t))
	require.NoError(t, err)

	assert.Contains(t, out, "joulehunter")
	assert.Contains(t, out, "2.000s")
	assert.Contains(t, out, "0.500J")
	assert.Contains(t, out, "0.25W")
	assert.Contains(t, out, "package-0")
	assert.Contains(t, out, "Component:")
	assert.Contains(t, out, "core")
	assert.Contains(t, out, "app --serve")
}

func TestTextRenderer_Groups(t *testing.T) {
	out, err := Output(NewText(), librarySession(t))
	require.NoError(t, err)

	assert.Contains(t, out, "[3 frames hidden]")
	assert.Contains(t, out, "github.com/lib/a, github.com/lib/b")
	assert.Contains(t, out, "github.com/lib/a.Do", "group root is shown")
	assert.NotContains(t, out, "github.com/lib/b.Run", "inner group frame is hidden")
	assert.Contains(t, out, "github.com/lib/c.Call", "exit frame is shown")
	assert.Contains(t, out, "example.com/app.callback")
}

func TestTextRenderer_NoSamples(t *testing.T) {
	out, err := Output(NewText(), emptySession(t))
	require.NoError(t, err)
	assert.Contains(t, out, "No samples were recorded.")
}

func TestTextRenderer_Color(t *testing.T) {
	buf := bytes.Buffer{}
	require.NoError(t, NewText(WithColor(true)).Render(&buf, simpleSession(t)))
	assert.Contains(t, buf.String(), "example.com/app.work")
}

func TestTextRenderer_Deep(t *testing.T) {
	const depth = 2000
	out, err := Output(NewText(), deepSession(t, depth))
	require.NoError(t, err)
	assert.Equal(t, depth, strings.Count(out, "example.com/app.recurse"))
}
