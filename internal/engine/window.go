package engine

import (
	"context"
	"log/slog"

	"github.com/bridgeit/bridgeit/internal/db"
)

// isWindowClosed derives the submission window state from stored timestamps.
// The window never opened while first_completion_at is unset; once set, it
// closes when the configured grace period has fully elapsed (closed at exactly
// 48h0s, still open at 47h59m). This is the single source of truth for window
// state; no background timer exists.
func (e *Engine) isWindowClosed(sprint *db.Sprint) bool {
	if sprint.FirstCompletionAt == nil {
		return false
	}
	return e.now().Sub(*sprint.FirstCompletionAt) >= e.cfg.SubmissionWindow()
}

// syncWindow reconciles the stored submission_window_open flag with the
// derived state so that stale reads elsewhere cannot disagree.
func (e *Engine) syncWindow(sprint *db.Sprint) {
	if sprint.SubmissionWindowOpen && e.isWindowClosed(sprint) {
		if err := e.store.CloseSubmissionWindow(sprint.ID); err != nil {
			slog.Error("submission window flag not persisted", "sprint", sprint.ID, "error", err)
			return
		}
		sprint.SubmissionWindowOpen = false
	}
}

// IsSubmissionWindowClosed reports the derived window state for a lead's
// active sprint.
func (e *Engine) IsSubmissionWindowClosed(ctx context.Context, leadID string) (bool, error) {
	sprint, err := e.activeSprint(leadID)
	if err != nil {
		return false, err
	}
	e.syncWindow(sprint)
	return e.isWindowClosed(sprint), nil
}

// finalists returns the enrollments at full milestone completion.
func finalists(enrollments []*db.Enrollment, milestoneCount int) []*db.Enrollment {
	var out []*db.Enrollment
	for _, en := range enrollments {
		if en.CheckpointsCompleted >= milestoneCount {
			out = append(out, en)
		}
	}
	return out
}

// canFinalize evaluates finalization eligibility for a loaded sprint:
// at least one finalist, submission window closed, winner unset. A lone
// finalist is eligible but the scout still confirms explicitly; there is no
// auto-win.
func (e *Engine) canFinalize(sprint *db.Sprint, enrollments []*db.Enrollment, milestoneCount int) (bool, string) {
	if sprint.WinnerBuilderID != nil {
		return false, "winner already determined"
	}
	fin := finalists(enrollments, milestoneCount)
	if len(fin) == 0 {
		return false, "no builder has reached full completion"
	}
	if !e.isWindowClosed(sprint) {
		return false, "submission window is still open"
	}
	return true, ""
}

// CanFinalize reports whether the lead's active sprint is ready for winner
// determination, with a human-readable reason when it is not.
func (e *Engine) CanFinalize(ctx context.Context, leadID string) (bool, string, error) {
	sprint, err := e.activeSprint(leadID)
	if err != nil {
		return false, "", err
	}
	e.syncWindow(sprint)
	enrollments, err := e.store.ListEnrollments(sprint.ID)
	if err != nil {
		return false, "", err
	}
	milestones, err := e.store.GetMilestones(leadID)
	if err != nil {
		return false, "", err
	}
	ok, reason := e.canFinalize(sprint, enrollments, len(milestones))
	return ok, reason, nil
}
