// Package supervisor implements the Supervisor (§4.8): it starts components
// in dependency order, restarts core tasks with backoff if they die
// unexpectedly (sweeping open orders first), and drives graceful shutdown
// on cancellation.
package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"perp-mm/internal/archive"
	"perp-mm/internal/exchange"
)

const (
	initialBackoff = time.Second
	maxBackoff     = 60 * time.Second
)

// Task is one supervised component. Core tasks get the crash-recovery
// treatment (REST sweep + restart); non-core tasks are started once and
// simply logged if they exit.
type Task struct {
	Name string
	Core bool
	Run  func(ctx context.Context) error
}

// Config tunes shutdown behavior.
type Config struct {
	ShutdownGrace       time.Duration // default 5s
	ClientOrderIDPrefix string        // prefix used to sweep open orders on crash/shutdown
}

// Supervisor owns the lifecycle of a fixed list of tasks, started in the
// order they were added (dependency order is the caller's responsibility).
type Supervisor struct {
	cfg     Config
	client  *exchange.Client
	archive archive.Writer
	logger  *slog.Logger

	tasks []Task
	wg    sync.WaitGroup
}

func New(cfg Config, client *exchange.Client, arc archive.Writer, logger *slog.Logger) *Supervisor {
	if cfg.ShutdownGrace == 0 {
		cfg.ShutdownGrace = 5 * time.Second
	}
	return &Supervisor{cfg: cfg, client: client, archive: arc, logger: logger.With("component", "supervisor")}
}

// Add registers a task. Call in dependency order before Run.
func (s *Supervisor) Add(t Task) {
	s.tasks = append(s.tasks, t)
}

// Run starts every task and blocks until ctx is cancelled, then drives
// graceful shutdown: stop placing (tasks observe ctx themselves), wait up to
// ShutdownGrace for in-flight work, sweep open orders, flush archival
// writers, and return.
func (s *Supervisor) Run(ctx context.Context) error {
	for _, t := range s.tasks {
		s.wg.Add(1)
		go s.supervise(ctx, t)
	}

	<-ctx.Done()
	s.logger.Info("shutdown signal received, waiting for in-flight work", "grace", s.cfg.ShutdownGrace)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.cfg.ShutdownGrace):
		s.logger.Warn("shutdown grace period elapsed with tasks still running")
	}

	s.sweepOrders(context.Background())

	if s.archive != nil {
		if err := s.archive.Flush(); err != nil {
			s.logger.Error("archive flush failed during shutdown", "error", err)
		}
	}

	s.logger.Info("shutdown complete")
	return nil
}

// supervise runs one task, restarting core tasks with exponential backoff
// on unexpected termination. A non-core task that exits is just logged.
func (s *Supervisor) supervise(ctx context.Context, t Task) {
	defer s.wg.Done()
	backoff := initialBackoff

	for {
		err := t.Run(ctx)

		if ctx.Err() != nil {
			return // shutdown in progress, not a crash
		}
		if err == nil || errors.Is(err, context.Canceled) {
			s.logger.Info("task exited cleanly", "task", t.Name)
			return
		}

		s.logger.Error("task terminated unexpectedly", "task", t.Name, "error", err)
		if !t.Core {
			return
		}

		s.sweepOrders(ctx)

		s.logger.Info("restarting task", "task", t.Name, "backoff", backoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (s *Supervisor) sweepOrders(ctx context.Context) {
	if s.client == nil || s.cfg.ClientOrderIDPrefix == "" {
		return
	}
	sweepCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.client.CancelAllForPrefix(sweepCtx, s.cfg.ClientOrderIDPrefix); err != nil {
		s.logger.Error("order sweep failed", "error", err)
	}
}
