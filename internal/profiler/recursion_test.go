// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

package profiler_test

import (
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/powerapi-ng/joulehunter/internal/device"
	"github.com/powerapi-ng/joulehunter/internal/profiler"
	"github.com/powerapi-ng/joulehunter/internal/renderer"
	"github.com/powerapi-ng/joulehunter/internal/sampler"
	"github.com/powerapi-ng/joulehunter/internal/tree"
)

const recursionDepth = 1000

//go:noinline
func recurseThenSleep(depth int, spin, sleep time.Duration) int {
	if depth > 0 {
		return recurseThenSleep(depth-1, spin, sleep) + 1
	}
	n := 0
	for until := time.Now().Add(spin); time.Now().Before(until); {
		n++
	}
	time.Sleep(sleep)
	return n
}

func TestProfiler_DeepRecursion(t *testing.T) {
	p := profiler.New(
		profiler.WithProvider(device.NewFakeProvider(slog.Default())),
		profiler.WithRuntime(profiler.NewRuntime()),
		profiler.WithInterval(time.Millisecond),
		profiler.WithAsyncMode(sampler.AsyncEnabled),
	)

	s, err := p.Run(func() {
		recurseThenSleep(recursionDepth, 30*time.Millisecond, 50*time.Millisecond)
	})
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Positive(t, s.SampleCount)
	assert.Positive(t, s.TotalEnergy())
	assert.Positive(t, s.AwaitEnergy(), "the sleep is attributed to an await frame")

	root := s.RootFrame()
	require.NotNil(t, root)
	recursive, elided := 0, false
	tree.Walk(root, func(f *tree.Frame) bool {
		if strings.HasSuffix(f.Function, ".recurseThenSleep") {
			recursive++
		}
		elided = elided || f.Kind == tree.Elided
		return true
	})
	assert.Greater(t, recursive, 50)
	assert.True(t, elided, "the runtime elides the middle of a deep stack")

	for _, name := range []string{renderer.Text, renderer.JSON, renderer.HTML} {
		t.Run(name, func(t *testing.T) {
			r, err := renderer.New(name)
			require.NoError(t, err)
			out, err := renderer.Output(r, s)
			require.NoError(t, err)
			assert.Contains(t, out, "recurseThenSleep")
		})
	}
}
