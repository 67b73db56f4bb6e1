// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

package profiler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/powerapi-ng/joulehunter/internal/service"
)

func TestRuntimeService_Shutdown(t *testing.T) {
	t.Run("idle runtime", func(t *testing.T) {
		f := newFixture()
		svc := NewRuntimeService(f.runtime, nil)
		assert.Equal(t, "profiler-runtime", svc.Name())
		assert.NoError(t, svc.Shutdown())
		assert.Empty(t, f.provider.Opened())
	})

	t.Run("active session", func(t *testing.T) {
		f := newFixture()
		p := f.profiler()
		require.NoError(t, p.Start())
		f.tick(t, p)

		svc := NewRuntimeService(f.runtime, nil)
		require.NoError(t, svc.Shutdown())
		assert.False(t, p.Sampling())
		assert.Nil(t, f.runtime.Active())
		require.Len(t, f.provider.Opened(), 1)
		assert.True(t, f.provider.Opened()[0].Closed())

		// a second shutdown finds nothing left to close
		assert.NoError(t, svc.Shutdown())
	})
}

func TestRuntimeService_ClosedByServiceRun(t *testing.T) {
	f := newFixture()
	p := f.profiler()
	require.NoError(t, p.Start())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := service.Run(ctx, nil, []service.Service{NewRuntimeService(f.runtime, nil)})
	assert.NoError(t, err)

	assert.False(t, p.Sampling(), "the group ending closes the active session")
	assert.True(t, f.provider.Opened()[0].Closed())
}
