// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

package renderer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTMLRenderer(t *testing.T) {
	out, err := Output(NewHTML(), simpleSession(t))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "<!DOCTYPE html>"))
	assert.Contains(t, out, "d3-flamegraph")
	assert.Contains(t, out, `var data = {"name":"example.com/app.main app/main.go:10","value":400000`)
	assert.Contains(t, out, `var session = {"start_time":`)
	assert.Contains(t, out, "0.400J in 2.000s (0.20W), 2 samples on package-0")
}

func TestHTMLRenderer_Escaping(t *testing.T) {
	s := simpleSession(t)
	s.Program = "</script><script>alert(1)</script>"

	out, err := Output(NewHTML(), s)
	require.NoError(t, err)

	assert.Equal(t, 3, strings.Count(out, "</script>"),
		"only the page's own script tags may close")
	assert.Contains(t, out, "&lt;/script&gt;")
}

func TestHTMLRenderer_NoSamples(t *testing.T) {
	out, err := Output(NewHTML(), emptySession(t))
	require.NoError(t, err)
	assert.Contains(t, out, "var data = null;")
}

func TestHTMLRenderer_Deep(t *testing.T) {
	const depth = 20000
	out, err := Output(NewHTML(), deepSession(t, depth))
	require.NoError(t, err)
	assert.Equal(t, 2*depth, strings.Count(out, "example.com/app.recurse"))
}
