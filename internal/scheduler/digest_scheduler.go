package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/civiceye/civiceye/internal/notify"
	"github.com/civiceye/civiceye/internal/report"
	"github.com/civiceye/civiceye/internal/session"
	"github.com/robfig/cron/v3"
)

// Sessions is the part of session.Manager the scheduler needs.
type Sessions interface {
	Sessions() []*session.AppState
	Sweep(now time.Time) int
}

// DigestScheduler posts pending-report digests on a cron schedule and sweeps
// expired sessions.
type DigestScheduler struct {
	schedule      cron.Schedule
	expr          string
	sessions      Sessions
	notifier      notify.Notifier
	logger        *slog.Logger
	stopChan      chan struct{}
	stopOnce      sync.Once
	sweepInterval time.Duration
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// NewDigestScheduler parses expr, a 5-field cron expression or descriptor
// such as "@hourly". An empty expr disables the digest; sweeping still runs.
func NewDigestScheduler(expr string, sessions Sessions, notifier notify.Notifier, logger *slog.Logger) (*DigestScheduler, error) {
	s := &DigestScheduler{
		expr:          strings.TrimSpace(expr),
		sessions:      sessions,
		notifier:      notifier,
		logger:        logger,
		stopChan:      make(chan struct{}),
		sweepInterval: 1 * time.Minute,
	}
	if s.expr != "" {
		sched, err := parser.Parse(s.expr)
		if err != nil {
			return nil, fmt.Errorf("invalid digest schedule %q: %w", s.expr, err)
		}
		s.schedule = sched
	}
	return s, nil
}

// Start runs the scheduler loop until Stop is called or ctx is done.
func (s *DigestScheduler) Start(ctx context.Context) {
	s.logger.Info("Starting digest scheduler", "schedule", s.expr, "sweep_interval", s.sweepInterval)

	sweep := time.NewTicker(s.sweepInterval)
	defer sweep.Stop()

	var digest <-chan time.Time
	var timer *time.Timer
	arm := func() {
		if s.schedule == nil {
			return
		}
		now := time.Now()
		next := s.schedule.Next(now)
		s.logger.Debug("Next digest", "at", next.Format(time.RFC3339))
		if timer == nil {
			timer = time.NewTimer(next.Sub(now))
		} else {
			timer.Reset(next.Sub(now))
		}
		digest = timer.C
	}
	arm()
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-digest:
			if err := s.RunDigest(ctx); err != nil {
				s.logger.Error("Failed to post digest", "error", err)
			}
			arm()
		case now := <-sweep.C:
			s.sessions.Sweep(now)
		case <-s.stopChan:
			s.logger.Info("Digest scheduler stopped")
			return
		case <-ctx.Done():
			s.logger.Info("Digest scheduler stopping due to context cancellation")
			return
		}
	}
}

// Stop stops the scheduler. Later calls are no-ops.
func (s *DigestScheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

// RunDigest sweeps expired sessions, then posts one message per live session
// with its pending and critical counts.
func (s *DigestScheduler) RunDigest(ctx context.Context) error {
	s.sessions.Sweep(time.Now())

	var errs []error
	posted := 0
	for _, st := range s.sessions.Sessions() {
		stats := report.Summarize(st.Store.List())
		msg := notify.Message{
			Title: "CivicEye report digest",
			Body: fmt.Sprintf("Session %s (%s): %d pending, %d critical, %d total",
				shortID(st.ID), st.Operator, stats.Pending, stats.Critical, stats.Total),
		}
		if err := s.notifier.Notify(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", st.ID, err))
			continue
		}
		posted++
	}
	s.logger.Info("Digest posted", "sessions", posted, "failures", len(errs))
	return errors.Join(errs...)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
