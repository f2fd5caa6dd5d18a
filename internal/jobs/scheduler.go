// Package jobs runs periodic maintenance work on cron schedules.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is a named unit of periodic work.
type Job struct {
	Name string
	// Schedule is a standard five-field cron expression or a descriptor
	// such as "@every 1m".
	Schedule string
	// Log reports each run at info level; quiet jobs only log failures.
	Log bool
	Run func(ctx context.Context) error
}

// Scheduler runs jobs until stopped. A run that overlaps the previous one of
// the same job is skipped.
type Scheduler struct {
	cron *cron.Cron
	log  *slog.Logger
	ctx  context.Context
	stop context.CancelFunc
}

func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	cl := cronLogger{log: logger}
	ctx, stop := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(cron.WithLogger(cl), cron.WithChain(cron.SkipIfStillRunning(cl))),
		log:  logger,
		ctx:  ctx,
		stop: stop,
	}
}

// Add schedules j. It fails on an invalid schedule expression.
func (s *Scheduler) Add(j Job) error {
	if j.Run == nil {
		return fmt.Errorf("job %s has no action", j.Name)
	}
	if _, err := s.cron.AddFunc(j.Schedule, func() { s.run(s.ctx, j) }); err != nil {
		return fmt.Errorf("schedule job %s: %w", j.Name, err)
	}
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("job scheduler started", "jobs", len(s.cron.Entries()))
}

// Stop cancels running jobs and waits for them to return, at most until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.stop()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.log.Info("job scheduler stopped")
		return nil
	case <-ctx.Done():
		s.log.Warn("job scheduler shutdown timeout, some jobs still running")
		return ctx.Err()
	}
}

func (s *Scheduler) run(ctx context.Context, j Job) {
	start := time.Now()
	if err := runSafely(ctx, j.Run); err != nil {
		s.log.Error("job failed", "job", j.Name, "duration", time.Since(start), "error", err)
		return
	}
	if j.Log {
		s.log.Info("job finished", "job", j.Name, "duration", time.Since(start))
	}
}

func runSafely(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

// cronLogger routes the cron library's own messages to slog.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
