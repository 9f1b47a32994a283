// Package scheduler triggers crawl runs on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/JakeFAU/toolhub-crawler/internal/crawler"
)

// Runner starts a crawl over every registered target.
type Runner interface {
	RunAll(ctx context.Context) (crawler.RunSummary, error)
}

// Scheduler runs a Runner on a cron spec. Ticks that arrive while a run is
// still going are skipped.
type Scheduler struct {
	cron     *cron.Cron
	schedule cron.Schedule
	runner   Runner
	logger   *zap.Logger

	mu  sync.Mutex
	ctx context.Context
}

// New parses spec (five fields or a descriptor such as @hourly, in UTC) and
// builds a stopped Scheduler.
func New(spec string, runner Runner, logger *zap.Logger) (*Scheduler, error) {
	if runner == nil {
		return nil, errors.New("scheduler requires a runner")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	cl := cronLogger{logger.Sugar()}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		schedule: schedule,
		runner:   runner,
		logger:   logger,
		ctx:      context.Background(),
	}
	s.cron.Schedule(schedule, cron.FuncJob(func() { s.Trigger(s.runContext()) }))
	return s, nil
}

// Start begins firing. Runs use ctx; canceling it aborts an in-flight run
// but does not stop the schedule.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	s.cron.Start()
	s.logger.Info("crawl schedule started", zap.Time("next", s.Next(time.Now())))
}

// Stop halts the schedule and returns a context that is done once any
// running crawl returns.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// Next returns the first activation after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t.UTC())
}

// Trigger runs one crawl now and logs the outcome. A run already in
// progress is not an error.
func (s *Scheduler) Trigger(ctx context.Context) {
	summary, err := s.runner.RunAll(ctx)
	switch {
	case errors.Is(err, crawler.ErrRunInProgress):
		s.logger.Info("scheduled crawl skipped, run in progress")
	case err != nil:
		s.logger.Error("scheduled crawl failed", zap.Error(err))
	default:
		s.logger.Info("scheduled crawl finished",
			zap.String("run_id", summary.RunID),
			zap.Int("new_tools", summary.NewTools),
			zap.Int("updated_tools", summary.UpdatedTools),
			zap.Int("deleted_tools", summary.DeletedTools),
		)
	}
}

func (s *Scheduler) runContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
