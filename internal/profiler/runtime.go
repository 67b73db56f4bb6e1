// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

package profiler

import (
	"sync"

	"github.com/powerapi-ng/joulehunter/internal/sampler"
	"github.com/powerapi-ng/joulehunter/internal/session"
)

// defaultRuntime allows one active session per process
var defaultRuntime = NewRuntime()

// DefaultRuntime returns the process wide runtime
func DefaultRuntime() *Runtime {
	return defaultRuntime
}

// Runtime owns the single active session slot shared by the profilers
// created with it.
type Runtime struct {
	mu       sync.Mutex
	active   *Profiler
	last     *Profiler
	sessions uint64
}

// RuntimeStats describe the activity of a Runtime
type RuntimeStats struct {
	Active   bool
	Sessions uint64
	// Sampler holds the counters of the active run, or of the last one
	Sampler     sampler.Stats
	LastSession *session.Session
}

// NewRuntime creates an independent Runtime
func NewRuntime() *Runtime {
	return &Runtime{}
}

func (r *Runtime) acquire(p *Profiler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != nil {
		return ErrSessionAlreadyActive
	}
	r.active = p
	return nil
}

func (r *Runtime) release(p *Profiler, completed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != p {
		return
	}
	r.active = nil
	if completed {
		r.last = p
		r.sessions++
	}
}

// Active returns the profiler currently sampling, nil if none
func (r *Runtime) Active() *Profiler {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Stats returns a snapshot of the runtime activity
func (r *Runtime) Stats() RuntimeStats {
	r.mu.Lock()
	active, last, sessions := r.active, r.last, r.sessions
	r.mu.Unlock()

	stats := RuntimeStats{
		Active:   active != nil,
		Sessions: sessions,
	}
	switch {
	case active != nil:
		stats.Sampler = active.samplerStats()
	case last != nil:
		stats.Sampler = last.samplerStats()
	}
	if last != nil {
		stats.LastSession = last.LastSession()
	}
	return stats
}
