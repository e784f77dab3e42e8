// Package scheduler runs the periodic dispatch and follow-up ticks.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/garnizeh/outreach/internal/metrics"
)

// TickFunc is one periodic unit of work.
type TickFunc func(ctx context.Context) error

// Ticking adapts a Tick method that also reports what it did. The result is
// logged when the tick succeeds.
func Ticking[T any](logger *slog.Logger, name string, tick func(context.Context) (T, error)) TickFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context) error {
		res, err := tick(ctx)
		if err != nil {
			return err
		}
		logger.Debug("scheduler: tick done", slog.String("task", name), slog.Any("result", res))
		return nil
	}
}

// Scheduler wraps a cron instance. Runs of the same task never overlap: a tick
// that is still running when the next one is due makes cron skip it.
type Scheduler struct {
	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a scheduler. Each run gets a context bounded by timeout (or
// no deadline when timeout <= 0) that is canceled on Stop.
func New(timeout time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	// cron reports recovered panics at error level; skipped runs are info and
	// stay quiet.
	cronLog := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelError))
	c := cron.New(cron.WithChain(
		cron.Recover(cronLog),
		cron.SkipIfStillRunning(cronLog),
	))
	return &Scheduler{cron: c, ctx: ctx, cancel: cancel, timeout: timeout, logger: logger}
}

// Add registers fn to run every period. A negative period leaves the task
// disabled.
func (s *Scheduler) Add(name string, every time.Duration, fn TickFunc) error {
	if every < 0 {
		s.logger.Info("scheduler: task disabled", slog.String("task", name))
		return nil
	}
	if every == 0 {
		return fmt.Errorf("scheduler: task %s has no period", name)
	}

	_, err := s.cron.AddFunc("@every "+every.String(), func() { s.run(name, fn) })
	if err != nil {
		return fmt.Errorf("scheduler: add %s: %w", name, err)
	}
	s.logger.Info("scheduler: task added", slog.String("task", name), slog.Duration("every", every))
	return nil
}

func (s *Scheduler) run(name string, fn TickFunc) {
	ctx := s.ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	err := fn(ctx)
	metrics.ObserveTick(name, time.Since(start).Seconds())
	if err != nil {
		s.logger.Error("scheduler: tick failed", slog.String("task", name), slog.Any("err", err))
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running ticks and waits for them to return or for ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
