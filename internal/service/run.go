// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"log/slog"

	"github.com/oklog/run"
)

// Run runs every Runner in one group until the first of them returns or
// outer is done, and returns that error. A Runner that is also a Shutdowner
// is shut down as the group interrupts it. Shutdowners with nothing to run,
// such as the profiling runtime, are shut down after the group has ended,
// last registered first.
func Run(outer context.Context, logger *slog.Logger, services []Service) error {
	logger = orDefault(logger)

	ctx, cancel := context.WithCancel(outer)
	defer cancel()

	var (
		g    run.Group
		idle []Shutdowner
	)
	for _, s := range services {
		runner, ok := s.(Runner)
		if !ok {
			if sd, ok := s.(Shutdowner); ok {
				idle = append(idle, sd)
			}
			continue
		}

		g.Add(
			func() error {
				logger.Info("Running service", "service", runner.Name())
				return runner.Run(ctx)
			},
			func(err error) {
				cancel()
				if err != nil {
					logger.Warn("Service stopped", "service", runner.Name(), "reason", err)
				}
				shutdown(logger, runner)
			},
		)
	}

	logger.Info("Running services", "runners", len(services)-len(idle))
	err := g.Run()

	for i := len(idle) - 1; i >= 0; i-- {
		shutdown(logger, idle[i])
	}
	return err
}

// shutdown calls Shutdown when s implements it; failures are only logged
func shutdown(logger *slog.Logger, s Service) {
	sd, ok := s.(Shutdowner)
	if !ok {
		logger.Debug("Nothing to shut down", "service", s.Name())
		return
	}

	logger.Info("Shutting down", "service", s.Name())
	if err := sd.Shutdown(); err != nil {
		logger.Warn("Service shutdown failed", "service", s.Name(), "error", err)
	}
}
