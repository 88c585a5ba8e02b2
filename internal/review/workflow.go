// Package review implements the authority triage workflow.
package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/civiceye/civiceye/internal/models"
	"github.com/civiceye/civiceye/internal/report"
	"github.com/civiceye/civiceye/internal/retry"
)

var (
	ErrNoSelection       = errors.New("no report selected")
	ErrUnknownAction     = errors.New("unknown review action")
	ErrInvalidTransition = errors.New("action not allowed from current status")
	ErrActionInFlight    = errors.New("another action is being processed")
	ErrDispatchFailed    = errors.New("dispatch failed")
)

// Recorder observes review outcomes. metrics.Pipeline implements it.
type Recorder interface {
	ObserveReviewAction(action, outcome string)
}

// State is what the dashboard needs to render the review panel.
type State struct {
	Selected       *models.CivicReport   `json:"selected,omitempty"`
	AllowedActions []models.ReviewAction `json:"allowed_actions"`
	Processing     bool                  `json:"processing"`
}

// Workflow holds the operator's current selection and serialises actions.
type Workflow struct {
	store      *report.Store
	dispatcher Dispatcher
	policy     retry.Policy
	recorder   Recorder
	logger     *slog.Logger

	mu       sync.Mutex
	selected string
	inFlight bool
}

// NewWorkflow creates a workflow over store. recorder may be nil.
func NewWorkflow(store *report.Store, dispatcher Dispatcher, policy retry.Policy, recorder Recorder, logger *slog.Logger) *Workflow {
	return &Workflow{
		store:      store,
		dispatcher: dispatcher,
		policy:     policy,
		recorder:   recorder,
		logger:     logger,
	}
}

// Select makes report id the target of the next action.
func (w *Workflow) Select(id string) (models.CivicReport, error) {
	r, err := w.store.Get(id)
	if err != nil {
		return models.CivicReport{}, err
	}
	w.mu.Lock()
	w.selected = id
	w.mu.Unlock()
	return r, nil
}

// Clear drops the selection.
func (w *Workflow) Clear() {
	w.mu.Lock()
	w.selected = ""
	w.mu.Unlock()
}

// State returns the current selection and whether an action is running.
func (w *Workflow) State() State {
	w.mu.Lock()
	id, processing := w.selected, w.inFlight
	w.mu.Unlock()

	st := State{Processing: processing, AllowedActions: []models.ReviewAction{}}
	if id == "" {
		return st
	}
	if r, err := w.store.Get(id); err == nil {
		st.Selected = &r
		st.AllowedActions = models.AllowedActions(r.Status)
	}
	return st
}

// Apply performs action on the selected report. The dispatch call runs
// without holding the lock; a second Apply while it runs fails with
// ErrActionInFlight. On success the status is updated and the selection
// cleared. On failure nothing changes.
func (w *Workflow) Apply(ctx context.Context, action models.ReviewAction) (models.CivicReport, error) {
	target, ok := action.Target()
	if !ok {
		return models.CivicReport{}, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}

	w.mu.Lock()
	if w.inFlight {
		w.mu.Unlock()
		return models.CivicReport{}, ErrActionInFlight
	}
	id := w.selected
	if id == "" {
		w.mu.Unlock()
		return models.CivicReport{}, ErrNoSelection
	}
	current, err := w.store.Get(id)
	if err != nil {
		w.mu.Unlock()
		return models.CivicReport{}, err
	}
	if !models.CanApply(current.Status, action) {
		w.mu.Unlock()
		w.observe(action, "rejected")
		return models.CivicReport{}, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, action, current.Status)
	}
	w.inFlight = true
	w.mu.Unlock()

	w.logger.Info("review action started", "report_id", id, "action", action, "from", current.Status)

	err = retry.Do(ctx, w.policy, func(ctx context.Context) error {
		return w.dispatcher.Dispatch(ctx, current, action)
	})

	w.mu.Lock()
	defer w.mu.Unlock()
	w.inFlight = false

	if err != nil {
		w.observe(action, "failed")
		w.logger.Warn("review action failed", "report_id", id, "action", action, "error", err)
		return models.CivicReport{}, fmt.Errorf("%w: %s report %s: %w", ErrDispatchFailed, action, id, err)
	}

	updated, err := w.store.UpdateStatus(id, target)
	if err != nil {
		w.observe(action, "failed")
		return models.CivicReport{}, err
	}
	if w.selected == id {
		w.selected = ""
	}
	w.observe(action, "success")
	w.logger.Info("review action applied", "report_id", id, "action", action, "status", target)
	return updated, nil
}

func (w *Workflow) observe(action models.ReviewAction, outcome string) {
	if w.recorder != nil {
		w.recorder.ObserveReviewAction(string(action), outcome)
	}
}
