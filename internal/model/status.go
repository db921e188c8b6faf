package model

import (
	"strings"
	"time"
)

type ApplicationStatus string

const (
	StatusApplied            ApplicationStatus = "Applied"
	StatusUnderReview        ApplicationStatus = "UnderReview"
	StatusShortlisted        ApplicationStatus = "Shortlisted"
	StatusInterviewScheduled ApplicationStatus = "InterviewScheduled"
	StatusRejected           ApplicationStatus = "Rejected"
)

// Rejected is terminal. Self-transitions are handled by CanTransition and
// are not listed here.
var allowedTransitions = map[ApplicationStatus]map[ApplicationStatus]bool{
	StatusApplied: {
		StatusUnderReview: true,
		StatusShortlisted: true,
		StatusRejected:    true,
	},
	StatusUnderReview: {
		StatusShortlisted: true,
		StatusRejected:    true,
	},
	StatusShortlisted: {
		StatusInterviewScheduled: true,
		StatusRejected:           true,
	},
	StatusInterviewScheduled: {
		StatusRejected: true,
	},
	StatusRejected: {},
}

var statusOrder = []ApplicationStatus{
	StatusApplied,
	StatusUnderReview,
	StatusShortlisted,
	StatusInterviewScheduled,
	StatusRejected,
}

func ApplicationStatuses() []ApplicationStatus {
	return append([]ApplicationStatus(nil), statusOrder...)
}

func IsKnownStatus(status ApplicationStatus) bool {
	_, ok := allowedTransitions[status]
	return ok
}

// ParseStatus accepts the canonical names case-insensitively, ignoring
// spaces, dashes and underscores ("under review", "under_review").
func ParseStatus(raw string) (ApplicationStatus, bool) {
	key := foldStatus(raw)
	if key == "" {
		return "", false
	}
	for _, s := range statusOrder {
		if foldStatus(string(s)) == key {
			return s, true
		}
	}
	return "", false
}

func foldStatus(v string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(v)) {
		switch r {
		case ' ', '_', '-':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func CanTransition(from, to ApplicationStatus) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	if from == to {
		return true
	}
	return next[to]
}

// NextStatuses lists the statuses reachable from one step, in display order.
func NextStatuses(from ApplicationStatus) []ApplicationStatus {
	next := allowedTransitions[from]
	out := make([]ApplicationStatus, 0, len(next))
	for _, s := range statusOrder {
		if next[s] {
			out = append(out, s)
		}
	}
	return out
}

type TransitionContext struct {
	InterviewDate *time.Time
	Note          string
	Now           func() time.Time
}

func (c TransitionContext) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// RequestTransition validates a status change and returns the updated copy of
// rec. It has no side effects: rec and its notes slice are never modified, and
// on error the returned record equals rec.
func RequestTransition(rec ApplicationRecord, to ApplicationStatus, tctx TransitionContext) (ApplicationRecord, error) {
	const op = "request transition"

	if !IsKnownStatus(to) {
		return rec, Errorf(KindValidation, op, "unknown application status %q", to)
	}
	if rec.Status == to {
		return rec, nil
	}
	if !CanTransition(rec.Status, to) {
		return rec, Errorf(KindInvalidTransition, op, "invalid application status transition: %q -> %q (application_id=%s)", rec.Status, to, rec.ID)
	}

	next := rec.Clone()
	if to == StatusInterviewScheduled {
		if tctx.InterviewDate == nil || tctx.InterviewDate.IsZero() {
			return rec, Errorf(KindValidation, op, "interview date is required for %s", to)
		}
		if !tctx.InterviewDate.After(tctx.now()) {
			return rec, Errorf(KindValidation, op, "interview date %s is not in the future", tctx.InterviewDate.UTC().Format(time.RFC3339))
		}
		when := *tctx.InterviewDate
		next.InterviewDate = &when
	}

	next.Status = to
	if note := strings.TrimSpace(tctx.Note); note != "" {
		next.Notes = append(next.Notes, note)
	}
	return next, nil
}
