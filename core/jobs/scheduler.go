// Package jobs runs periodic maintenance on a cron schedule.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/membo/vtubot/core/logger"
)

// StaleResetter finds sessions idle inside a form since before and returns
// them to their home state one identity at a time.
type StaleResetter interface {
	Stale(ctx context.Context, before time.Time) ([]string, error)
	ResetStale(ctx context.Context, identity string, before time.Time) (bool, error)
}

// Locker serialises work on one identity with conversation turns.
type Locker interface {
	Lock(ctx context.Context, identity string) (unlock func(), err error)
}

// Scheduler owns the cron runner.
type Scheduler struct {
	cron *cron.Cron
	now  func() time.Time
}

// NewScheduler builds a scheduler whose specs include a seconds field.
func NewScheduler() *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(cronLogger{}))),
		now:  time.Now,
	}
}

// AddFormSweeper resets forms untouched for longer than ttl on every tick of spec.
// Each reset runs under the identity's lock so it never interleaves with a turn.
func (s *Scheduler) AddFormSweeper(spec string, sessions StaleResetter, locker Locker, ttl time.Duration) error {
	if _, err := s.cron.AddFunc(spec, func() { s.sweepForms(sessions, locker, ttl) }); err != nil {
		return fmt.Errorf("jobs: schedule form sweeper %q: %w", spec, err)
	}
	return nil
}

func (s *Scheduler) sweepForms(sessions StaleResetter, locker Locker, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	start := time.Now()
	before := s.now().Add(-ttl)
	n, err := sweep(ctx, sessions, locker, before)
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelError
	} else if n > 0 {
		level = slog.LevelInfo
	}
	logger.LogEvent(ctx, logger.Jobs, level, "sessions.sweep",
		slog.String("status", logger.Status(err)),
		slog.Int64("total", n),
		slog.Duration("duration", logger.Took(start)),
		slog.String("err", errString(err)),
	)
}

func sweep(ctx context.Context, sessions StaleResetter, locker Locker, before time.Time) (int64, error) {
	ids, err := sessions.Stale(ctx, before)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, id := range ids {
		unlock, err := locker.Lock(ctx, id)
		if err != nil {
			return n, fmt.Errorf("jobs: lock %s: %w", logger.MaskPhone(id), err)
		}
		// The row is re-checked under the lock; a turn may have moved it on.
		ok, err := sessions.ResetStale(ctx, id, before)
		unlock()
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

// Run starts the scheduler and blocks until ctx is done, then waits for running jobs.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	logger.Jobs.Info("scheduler started",
		slog.String("event", "jobs.start"),
		slog.Int("total", len(s.cron.Entries())),
	)
	<-ctx.Done()
	<-s.cron.Stop().Done()
	logger.Jobs.Info("scheduler stopped", slog.String("event", "jobs.stop"))
	return nil
}

type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	logger.Jobs.Debug(msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	logger.Jobs.Error(msg, append(keysAndValues, "err", err.Error())...)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
