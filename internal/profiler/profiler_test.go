// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

package profiler

import (
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/powerapi-ng/joulehunter/internal/device"
	"github.com/powerapi-ng/joulehunter/internal/sampler"
	"github.com/powerapi-ng/joulehunter/internal/stack"
	"github.com/powerapi-ng/joulehunter/internal/tree"
)

func fixedCapturer(frames ...stack.Frame) stack.Capturer {
	return stack.CaptureFunc(func(t *stack.Trace) error {
		t.Reset()
		t.Found = true
		t.State = "running"
		t.Frames = append(t.Frames, frames...)
		return nil
	})
}

func testFrames() []stack.Frame {
	return []stack.Frame{
		{Function: "main.main", File: "/app/main.go", Line: 10},
		{Function: "main.work", File: "/app/main.go", Line: 20},
	}
}

type fixture struct {
	provider *device.FakeProvider
	clock    *testingclock.FakeClock
	runtime  *Runtime
}

func newFixture(opts ...device.FakeOptFn) *fixture {
	return &fixture{
		provider: device.NewFakeProvider(slog.Default(), opts...),
		clock:    testingclock.NewFakeClock(time.Unix(1700000000, 0)),
		runtime:  NewRuntime(),
	}
}

func (f *fixture) profiler(extra ...OptionFn) *Profiler {
	opts := []OptionFn{
		WithProvider(f.provider),
		WithClock(f.clock),
		WithRuntime(f.runtime),
		WithCapturer(fixedCapturer(testFrames()...)),
		WithInterval(time.Millisecond),
	}
	return New(append(opts, extra...)...)
}

// tick advances the fake clock by one interval and waits for the sample
func (f *fixture) tick(t *testing.T, p *Profiler) {
	t.Helper()
	want := p.samplerStats().Ticks + 1
	require.Eventually(t, f.clock.HasWaiters, time.Second, time.Millisecond)
	f.clock.Step(time.Millisecond)
	require.Eventually(t, func() bool {
		return p.samplerStats().Ticks >= want
	}, time.Second, time.Millisecond)
}

func TestProfiler_StartStop(t *testing.T) {
	f := newFixture()
	p := f.profiler()

	require.NoError(t, p.Start())
	assert.True(t, p.Sampling())
	for range 3 {
		f.tick(t, p)
	}

	s, err := p.Stop()
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.False(t, p.Sampling())

	assert.Equal(t, 3, s.SampleCount)
	assert.Equal(t, device.Energy(300), s.TotalEnergy())
	assert.Equal(t, []string{"package-0"}, s.DomainNames)
	assert.Equal(t, time.Unix(1700000000, 0), s.StartTime)
	assert.Equal(t, 3*time.Millisecond, s.Duration)
	assert.Equal(t, time.Millisecond, s.Interval)
	assert.Equal(t, string(sampler.AsyncEnabled), s.AsyncMode)
	assert.Same(t, s, p.LastSession())

	root := s.RootFrame()
	require.NotNil(t, root)
	assert.Equal(t, "main.main", root.Function)
	require.Len(t, root.Children(), 1)
	assert.Equal(t, "main.work", root.Children()[0].Function)
	assert.Equal(t, device.Energy(300), root.Children()[0].SelfEnergy())

	opened := f.provider.Opened()
	require.Len(t, opened, 1)
	assert.True(t, opened[0].Closed(), "source must be closed on stop")
}

func TestProfiler_NoSamples(t *testing.T) {
	f := newFixture()
	p := f.profiler()

	require.NoError(t, p.Start())
	s, err := p.Stop()
	require.NoError(t, err)

	assert.Zero(t, s.SampleCount)
	assert.Nil(t, s.RootFrame())
	assert.Zero(t, s.TotalEnergy())
}

func TestProfiler_StopWithoutStart(t *testing.T) {
	p := newFixture().profiler()

	_, err := p.Stop()
	assert.ErrorIs(t, err, ErrNoActiveSession)

	require.NoError(t, p.Start())
	_, err = p.Stop()
	require.NoError(t, err)
	_, err = p.Stop()
	assert.ErrorIs(t, err, ErrNoActiveSession)
}

func TestRuntime_SingleActiveSession(t *testing.T) {
	f := newFixture()
	first := f.profiler()
	second := f.profiler()

	require.NoError(t, first.Start())
	assert.Same(t, first, f.runtime.Active())
	assert.ErrorIs(t, second.Start(), ErrSessionAlreadyActive)
	assert.ErrorIs(t, first.Start(), ErrSessionAlreadyActive)

	t.Run("independent runtimes", func(t *testing.T) {
		other := f.profiler(WithRuntime(NewRuntime()))
		require.NoError(t, other.Start())
		_, err := other.Stop()
		require.NoError(t, err)
	})

	_, err := first.Stop()
	require.NoError(t, err)
	assert.Nil(t, f.runtime.Active())

	require.NoError(t, second.Start())
	_, err = second.Stop()
	require.NoError(t, err)
}

func TestProfiler_StartErrors(t *testing.T) {
	tt := []struct {
		name string
		opts []OptionFn
		err  error
	}{
		{
			name: "unknown package",
			opts: []OptionFn{WithPackage("dram")},
			err:  device.ErrDomainNotFound,
		},
		{
			name: "missing sysfs",
			opts: []OptionFn{WithProvider(device.NewRegistry(t.TempDir()))},
			err:  device.ErrDomainsUnavailable,
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			p := f.profiler(tc.opts...)

			err := p.Start()
			assert.ErrorIs(t, err, tc.err)
			assert.False(t, p.Sampling())
			assert.Nil(t, f.runtime.Active(), "failed start must release the runtime")
		})
	}
}

func TestProfiler_BaselineFailure(t *testing.T) {
	f := newFixture()
	readErr := errors.New("counter unreadable")
	p := f.profiler(WithProvider(failingProvider{err: readErr}))

	err := p.Start()
	assert.ErrorIs(t, err, readErr)
	assert.Nil(t, f.runtime.Active())
}

type failingProvider struct {
	err error
}

func (p failingProvider) Open(string, string) (*device.Source, error) {
	zone := device.NewFakeZone("package-0")
	zone.SetError(p.err)
	return device.NewSource(zone, device.WithDomainNames("package-0")), nil
}

type countingZone struct {
	*device.FakeZone
	attempts atomic.Int32
}

func (z *countingZone) Energy() (device.Energy, error) {
	z.attempts.Add(1)
	return z.FakeZone.Energy()
}

type zoneProvider struct {
	zone device.EnergyZone
}

func (p zoneProvider) Open(string, string) (*device.Source, error) {
	return device.NewSource(p.zone, device.WithDomainNames(p.zone.Name())), nil
}

func TestProfiler_ReadFailureEndsSession(t *testing.T) {
	f := newFixture()
	zone := &countingZone{FakeZone: device.NewFakeZone("package-0")}
	p := f.profiler(WithProvider(zoneProvider{zone: zone}))

	require.NoError(t, p.Start())
	f.tick(t, p)

	readErr := errors.New("counter vanished")
	zone.SetError(readErr)
	f.clock.Step(time.Millisecond)
	// baseline, first tick, failing tick
	require.Eventually(t, func() bool { return zone.attempts.Load() >= 3 }, time.Second, time.Millisecond)

	s, err := p.Stop()
	assert.ErrorIs(t, err, readErr)
	assert.Nil(t, s)

	partial := p.LastSession()
	require.NotNil(t, partial)
	assert.Equal(t, 1, partial.SampleCount)
	assert.Nil(t, f.runtime.Active())
}

func TestProfiler_Close(t *testing.T) {
	f := newFixture()
	p := f.profiler()

	assert.NoError(t, p.Close())
	require.NoError(t, p.Start())
	assert.NoError(t, p.Close())
	assert.NoError(t, p.Close())
	assert.False(t, p.Sampling())
	assert.Nil(t, f.runtime.Active())
}

func TestRuntime_Stats(t *testing.T) {
	f := newFixture()
	p := f.profiler()

	stats := f.runtime.Stats()
	assert.False(t, stats.Active)
	assert.Zero(t, stats.Sessions)
	assert.Nil(t, stats.LastSession)

	require.NoError(t, p.Start())
	f.tick(t, p)
	f.tick(t, p)

	stats = f.runtime.Stats()
	assert.True(t, stats.Active)
	assert.Equal(t, uint64(2), stats.Sampler.Ticks)
	assert.Equal(t, device.Energy(200), stats.Sampler.Energy)

	_, err := p.Stop()
	require.NoError(t, err)

	stats = f.runtime.Stats()
	assert.False(t, stats.Active)
	assert.Equal(t, uint64(1), stats.Sessions)
	assert.Equal(t, uint64(2), stats.Sampler.Ticks)
	require.NotNil(t, stats.LastSession)
	assert.Equal(t, device.Energy(200), stats.LastSession.TotalEnergy())
}

func TestProfiler_AsyncAttribution(t *testing.T) {
	f := newFixture()
	parked := stack.CaptureFunc(func(t *stack.Trace) error {
		t.Reset()
		t.Found = true
		t.State = "chan receive"
		t.Frames = append(t.Frames, testFrames()...)
		return nil
	})
	p := f.profiler(WithCapturer(parked), WithAsyncMode(sampler.AsyncStrict))

	require.NoError(t, p.Start())
	f.tick(t, p)
	s, err := p.Stop()
	require.NoError(t, err)

	assert.Equal(t, s.TotalEnergy(), s.AwaitEnergy())
	root := s.RootFrame()
	require.NotNil(t, root)
	assert.Equal(t, "main.main", root.Function)
	require.Len(t, root.Children(), 1)
	assert.Equal(t, tree.OutOfContextFunction, root.Children()[0].Function)
}

//go:noinline
func spin(until time.Time) int {
	n := 0
	for time.Now().Before(until) {
		n++
	}
	return n
}

//go:noinline
func descend(depth int, until time.Time) int {
	if depth == 0 {
		return spin(until)
	}
	return descend(depth-1, until) + 1
}

func TestProfiler_Run(t *testing.T) {
	p := New(
		WithProvider(device.NewFakeProvider(slog.Default())),
		WithRuntime(NewRuntime()),
		WithInterval(time.Millisecond),
	)

	s, err := p.Run(func() {
		descend(50, time.Now().Add(50*time.Millisecond))
	})
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Positive(t, s.SampleCount)
	assert.Positive(t, s.TotalEnergy())

	found := false
	tree.Walk(s.RootFrame(), func(f *tree.Frame) bool {
		if strings.HasSuffix(f.Function, ".spin") {
			found = true
		}
		return !found
	})
	assert.True(t, found, "the spinning function should appear in the tree")
}

func TestProfiler_RunPanics(t *testing.T) {
	f := newFixture()
	p := f.profiler()

	assert.PanicsWithValue(t, "workload failed", func() {
		_, _ = p.Run(func() { panic("workload failed") })
	})
	assert.False(t, p.Sampling())
	assert.Nil(t, f.runtime.Active(), "the session slot is released")
	require.Len(t, f.provider.Opened(), 1)
	assert.True(t, f.provider.Opened()[0].Closed())

	next := f.profiler()
	require.NoError(t, next.Start())
	_, err := next.Stop()
	assert.NoError(t, err)
}
