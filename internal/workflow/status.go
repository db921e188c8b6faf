// Package workflow applies validated application status changes through the
// backend. The local record is only replaced by what the server returns.
package workflow

import (
	"context"
	"log/slog"
	"time"

	"jobportal/internal/model"
)

type Gateway interface {
	UpdateStatus(ctx context.Context, id string, status model.ApplicationStatus, interviewDate *time.Time) (model.ApplicationRecord, error)
}

type Options struct {
	Now    func() time.Time
	Logger *slog.Logger
	// OnUpdated receives the server's record after a successful change.
	OnUpdated func(model.ApplicationRecord)
}

type StatusWorkflow struct {
	gateway   Gateway
	now       func() time.Time
	logger    *slog.Logger
	onUpdated func(model.ApplicationRecord)
}

func NewStatusWorkflow(gw Gateway, opts Options) *StatusWorkflow {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &StatusWorkflow{gateway: gw, now: now, logger: logger, onUpdated: opts.OnUpdated}
}

type ChangeRequest struct {
	Target        model.ApplicationStatus
	InterviewDate *time.Time
	Note          string
}

// ChangeStatus validates the transition locally, then persists it. On any
// error rec is returned unchanged; a self-transition returns rec without a
// request.
func (w *StatusWorkflow) ChangeStatus(ctx context.Context, rec model.ApplicationRecord, req ChangeRequest) (model.ApplicationRecord, error) {
	next, err := model.RequestTransition(rec, req.Target, model.TransitionContext{
		InterviewDate: req.InterviewDate,
		Note:          req.Note,
		Now:           w.now,
	})
	if err != nil {
		w.logger.Debug("status change rejected", "application_id", rec.ID, "from", rec.Status, "to", req.Target, "err", err)
		return rec, err
	}
	if next.Status == rec.Status {
		return rec, nil
	}

	saved, err := w.gateway.UpdateStatus(ctx, rec.ID, next.Status, next.InterviewDate)
	if err != nil {
		return rec, err
	}
	if saved.ID == "" {
		saved.ID = rec.ID
	}
	// the backend does not echo client-side notes
	if len(saved.Notes) == 0 && len(next.Notes) > 0 {
		saved.Notes = next.Notes
	}
	w.logger.Debug("status changed", "application_id", saved.ID, "from", rec.Status, "to", saved.Status)
	if w.onUpdated != nil {
		w.onUpdated(saved.Clone())
	}
	return saved, nil
}
