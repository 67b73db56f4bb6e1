// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

package profiler

import (
	"log/slog"

	"github.com/powerapi-ng/joulehunter/internal/service"
)

// RuntimeService closes the session still sampling on a Runtime when the
// process shuts down, releasing its energy counter.
type RuntimeService struct {
	logger  *slog.Logger
	runtime *Runtime
}

var _ service.Shutdowner = (*RuntimeService)(nil)

// NewRuntimeService creates the shutdown hook of r
func NewRuntimeService(r *Runtime, logger *slog.Logger) *RuntimeService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RuntimeService{
		logger:  logger.With("service", "profiler-runtime"),
		runtime: r,
	}
}

func (s *RuntimeService) Name() string {
	return "profiler-runtime"
}

func (s *RuntimeService) Shutdown() error {
	p := s.runtime.Active()
	if p == nil {
		s.logger.Debug("No active session", "sessions", s.runtime.Stats().Sessions)
		return nil
	}

	s.logger.Warn("Discarding the active profiling session")
	return p.Close()
}
