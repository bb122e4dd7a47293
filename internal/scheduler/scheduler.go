// Package scheduler runs periodic housekeeping jobs.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// Sweeper is the part of the cache the sweep job needs.
type Sweeper interface {
	Sweep() int
}

type Config struct {
	Env       string
	Enabled   bool
	SweepSpec string
}

// Scheduler owns a cron runner. Jobs are skipped in the dev environment
// unless explicitly enabled.
type Scheduler struct {
	cfg    Config
	cron   *cron.Cron
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	sweepID cron.EntryID
}

func New(cfg Config, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cfg:    cfg,
		cron:   cron.New(cron.WithChain(cron.Recover(cronLogger{logger}))),
		logger: logger,
	}
}

// Start registers the jobs and starts the runner. It reports whether the
// scheduler is running afterwards.
func (s *Scheduler) Start(sweeper Sweeper) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.logger.Warn("Scheduler already running, skipping start")
		return true, nil
	}

	if s.cfg.Env == "dev" && !s.cfg.Enabled {
		s.logger.Info("Development environment, scheduled jobs skipped")
		return false, nil
	}

	id, err := s.cron.AddFunc(s.cfg.SweepSpec, func() {
		if removed := sweeper.Sweep(); removed > 0 {
			s.logger.Info("Cache sweep finished", "removed", removed)
		}
	})
	if err != nil {
		return false, fmt.Errorf("failed to register cache-sweep job: %w", err)
	}
	s.sweepID = id

	s.cron.Start()
	s.running = true

	entries := s.cron.Entries()
	s.logger.Info("Scheduler started", "jobs", len(entries))
	for _, e := range entries {
		s.logger.Info("Scheduled job", "job", "cache-sweep", "next", e.Next)
	}
	return true, nil
}

// Stop halts the runner and waits for running jobs or ctx, whichever
// comes first.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	done := s.cron.Stop().Done()
	s.cron.Remove(s.sweepID)

	select {
	case <-done:
		s.logger.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
