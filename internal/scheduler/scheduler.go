// Copyright 2025 Tobalt
// Licensed under the EUPL-1.2

// Package scheduler runs the periodic sweeps and the delayed
// notification batches as context-scoped goroutines.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Scheduler owns all background jobs. Jobs stop when the context passed
// to Start is cancelled; Stop waits for in-flight runs to finish.
type Scheduler struct {
	logger *slog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

func New(logger *slog.Logger) *Scheduler {
	return &Scheduler{logger: logger}
}

// Start makes the scheduler live. Jobs registered before Start are not
// supported; wire Start first.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started = true
}

// Every runs job on a fixed interval until the scheduler stops.
func (s *Scheduler) Every(name string, interval time.Duration, job func(ctx context.Context)) {
	ctx := s.jobContext()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.run(ctx, name, job)
			}
		}
	}()
}

// After runs job once after delay, unless the scheduler stops first.
func (s *Scheduler) After(name string, delay time.Duration, job func(ctx context.Context)) {
	ctx := s.jobContext()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
			s.run(ctx, name, job)
		}
	}()
}

// Wait blocks until every registered job has returned, without
// cancelling anything. One-shot CLI invocations use it to hold the
// process open until their delayed work has run.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Stop cancels all jobs and waits for running ones to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context, name string, job func(ctx context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled job panicked", "job", name, "panic", r)
		}
	}()
	job(ctx)
}

func (s *Scheduler) jobContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx != nil {
		return s.ctx
	}
	return context.Background()
}
