// SPDX-FileCopyrightText: 2025 The Joulehunter Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"sync"
)

// journal records lifecycle calls in the order they happen
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(entry string) {
	if j == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

type fakeService struct {
	name string
}

func (f *fakeService) Name() string {
	return f.name
}

// fakeInitializer has no Shutdown
type fakeInitializer struct {
	fakeService
	initErr   error
	initCount int
}

func (f *fakeInitializer) Init() error {
	f.initCount++
	return f.initErr
}

// fakeStateful is initialized and shut down, like a counter holder
type fakeStateful struct {
	fakeService
	journal       *journal
	initErr       error
	shutdownErr   error
	initCount     int
	shutdownCount int
}

func (f *fakeStateful) Init() error {
	f.initCount++
	f.journal.add("init " + f.name)
	return f.initErr
}

func (f *fakeStateful) Shutdown() error {
	f.shutdownCount++
	f.journal.add("shutdown " + f.name)
	return f.shutdownErr
}

// fakeRunner runs without cleanup
type fakeRunner struct {
	fakeService
	run      func(ctx context.Context) error
	runCount int
}

func (f *fakeRunner) Run(ctx context.Context) error {
	f.runCount++
	if f.run == nil {
		return nil
	}
	return f.run(ctx)
}

// fakeServer runs and is shut down when interrupted
type fakeServer struct {
	fakeService
	journal       *journal
	run           func(ctx context.Context) error
	shutdownErr   error
	runCount      int
	shutdownCount int
}

func (f *fakeServer) Run(ctx context.Context) error {
	f.runCount++
	if f.run == nil {
		return nil
	}
	return f.run(ctx)
}

func (f *fakeServer) Shutdown() error {
	f.shutdownCount++
	f.journal.add("shutdown " + f.name)
	return f.shutdownErr
}

func untilDone(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}
