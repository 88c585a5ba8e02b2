package review

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/civiceye/civiceye/internal/models"
	"github.com/civiceye/civiceye/internal/notify"
)

// Dispatcher carries out the remote side of a review action.
type Dispatcher interface {
	Dispatch(ctx context.Context, r models.CivicReport, action models.ReviewAction) error
}

// SimulatedDispatcher stands in for a municipal work-order system. It waits
// Delay and always succeeds unless ctx ends first.
type SimulatedDispatcher struct {
	Delay time.Duration
}

func (d SimulatedDispatcher) Dispatch(ctx context.Context, _ models.CivicReport, _ models.ReviewAction) error {
	if d.Delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d.Delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// NotifyingDispatcher announces the action to the responsible department
// after the underlying dispatcher succeeds. A failed announcement is logged
// and counted but never fails the dispatch, so the report still transitions.
type NotifyingDispatcher struct {
	next     Dispatcher
	notifier notify.Notifier
	recorder Recorder
	logger   *slog.Logger
}

func NewNotifyingDispatcher(next Dispatcher, notifier notify.Notifier, recorder Recorder, logger *slog.Logger) *NotifyingDispatcher {
	return &NotifyingDispatcher{next: next, notifier: notifier, recorder: recorder, logger: logger}
}

func (d *NotifyingDispatcher) Dispatch(ctx context.Context, r models.CivicReport, action models.ReviewAction) error {
	if d.next != nil {
		if err := d.next.Dispatch(ctx, r, action); err != nil {
			return err
		}
	}
	if err := d.notifier.Notify(ctx, ActionMessage(r, action)); err != nil {
		d.logger.Warn("department notification failed", "report_id", r.ID, "action", action, "error", err)
		if d.recorder != nil {
			d.recorder.ObserveReviewAction(string(action), "notify_failed")
		}
	}
	return nil
}

// ActionMessage describes a review action for humans.
func ActionMessage(r models.CivicReport, action models.ReviewAction) notify.Message {
	target, _ := action.Target()
	where := r.Location.Address
	if where == "" {
		where = fmt.Sprintf("%.6f, %.6f", r.Location.Latitude, r.Location.Longitude)
	}
	return notify.Message{
		Title: fmt.Sprintf("%s: %s report %s", target, r.IssueType, shortID(r.ID)),
		Body: fmt.Sprintf("*Severity:* %s\n*Location:* %s\n*Action:* %s\n*SLA:* %s\n%s",
			r.Severity, where, r.RecommendedAction, r.SLAEstimate, r.Description),
		Department: r.SuggestedDepartment,
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
