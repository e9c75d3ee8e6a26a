// Package jobs runs the periodic connectivity probe and sync flush.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"nexuspos/backend/internal/logging"
)

type Prober interface {
	Probe(ctx context.Context) bool
}

type Flusher interface {
	Flush(ctx context.Context) (int, error)
}

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

type Scheduler struct {
	sched   *cron.Cron
	logger  *zap.Logger
	timeout time.Duration
}

func New(loc *time.Location, logger *zap.Logger) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		sched:   cron.New(cron.WithLocation(loc), cron.WithParser(cronParser)),
		logger:  logging.Named(logger, "jobs"),
		timeout: 30 * time.Second,
	}
}

func every(interval time.Duration) (string, error) {
	if interval < time.Second {
		return "", fmt.Errorf("interval %s is shorter than one second", interval)
	}
	return "@every " + interval.String(), nil
}

// AddProbe checks remote reachability every interval; the monitor fires its
// own transition handlers.
func (s *Scheduler) AddProbe(interval time.Duration, p Prober) error {
	expr, err := every(interval)
	if err != nil {
		return err
	}
	_, err = s.sched.AddFunc(expr, func() {
		defer s.recoverJob("probe")
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		p.Probe(ctx)
	})
	return err
}

// AddFlush replays the sync queue every interval.
func (s *Scheduler) AddFlush(interval time.Duration, f Flusher) error {
	expr, err := every(interval)
	if err != nil {
		return err
	}
	_, err = s.sched.AddFunc(expr, func() {
		defer s.recoverJob("flush")
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		n, err := f.Flush(ctx)
		if err != nil {
			s.logger.Warn("scheduled flush stopped", zap.Int("processed", n), zap.Error(err))
			return
		}
		if n > 0 {
			s.logger.Info("scheduled flush", zap.Int("processed", n))
		}
	})
	return err
}

func (s *Scheduler) Len() int {
	return len(s.sched.Entries())
}

func (s *Scheduler) Start() {
	s.sched.Start()
}

// Stop halts the schedule and waits for running jobs or ctx, whichever
// finishes first.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.sched.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

func (s *Scheduler) recoverJob(job string) {
	if r := recover(); r != nil {
		s.logger.Error("job panicked", zap.String("job", job), zap.Any("panic", r))
	}
}
