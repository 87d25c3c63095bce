package engine

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/bridgeit/bridgeit/internal/db"
)

// Sprint duration and capacity bounds.
const (
	MinSlots         = 1
	MaxSlots         = 4
	MinDurationWeeks = 2
	MaxDurationWeeks = 4
)

// launchEligible lists the lead statuses from which a sprint may launch:
// approved, no active sprint.
var launchEligible = map[string]bool{
	db.LeadQualified: true,
	db.LeadReady:     true,
}

// LaunchSprint opens a sprint on a lead. The deadline is fixed at launch;
// pausing later does not stretch it. A non-empty milestones slice replaces the
// lead's plan, written only after the eligibility checks pass so a rejected
// relaunch cannot alter the plan a running sprint references.
func (e *Engine) LaunchSprint(ctx context.Context, leadID string, maxSlots, durationWeeks int, milestones []db.Milestone, actor string) (*db.Sprint, error) {
	if maxSlots < MinSlots || maxSlots > MaxSlots {
		return nil, errValidation("max slots must be between %d and %d, got %d", MinSlots, MaxSlots, maxSlots)
	}
	if durationWeeks < MinDurationWeeks || durationWeeks > MaxDurationWeeks {
		return nil, errValidation("duration must be between %d and %d weeks, got %d", MinDurationWeeks, MaxDurationWeeks, durationWeeks)
	}

	unlock := e.lockLead(leadID)
	defer unlock()

	lead, err := e.store.GetLead(leadID)
	if err == sql.ErrNoRows {
		return nil, errNotFound("lead %s not found", leadID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading lead: %w", err)
	}

	if _, err := e.store.GetActiveSprint(leadID); err == nil {
		return nil, errInvalidState("lead %s already has an active sprint", leadID)
	} else if err != sql.ErrNoRows {
		return nil, fmt.Errorf("checking active sprint: %w", err)
	}

	if !launchEligible[lead.Status] {
		return nil, errInvalidState("lead status %q does not allow launching a sprint", lead.Status)
	}

	if len(milestones) > 0 {
		if err := e.store.SetMilestones(leadID, milestones); err != nil {
			return nil, fmt.Errorf("storing milestones: %w", err)
		}
	}

	now := e.now()
	sprint, err := e.store.CreateSprint(db.CreateSprintInput{
		LeadID:        leadID,
		MaxSlots:      maxSlots,
		DurationWeeks: durationWeeks,
		StartedAt:     now,
		Deadline:      now.Add(time.Duration(durationWeeks) * 7 * 24 * time.Hour),
	})
	if err != nil {
		return nil, err
	}

	if err := e.store.UpdateLeadStatus(leadID, db.LeadSprinting); err != nil {
		return nil, fmt.Errorf("transitioning lead to sprinting: %w", err)
	}

	// Best-effort compliance audit. A failed audit never blocks the launch;
	// the lead's audit display stays pending/failed instead.
	if e.deep != nil {
		e.deep.Run(ctx, lead)
	}

	e.metrics.SprintLaunched()
	e.record("launch_sprint", actor, leadID, "", fmt.Sprintf("slots=%d weeks=%d", maxSlots, durationWeeks), nil)
	return sprint, nil
}

// PauseSprint toggles the pause flag. Pausing freezes progress display only;
// the wall-clock deadline keeps running. That is a preserved property of the
// product, not an oversight.
func (e *Engine) PauseSprint(ctx context.Context, leadID string, paused bool, actor string) (*db.Sprint, error) {
	unlock := e.lockLead(leadID)
	defer unlock()

	sprint, err := e.activeSprint(leadID)
	if err != nil {
		return nil, err
	}
	if err := e.store.SetSprintPaused(sprint.ID, paused); err != nil {
		return nil, err
	}

	action := "pause_sprint"
	if !paused {
		action = "resume_sprint"
	}
	e.record(action, actor, leadID, "", "", nil)
	return e.store.GetSprint(sprint.ID)
}

// ExtendDeadline adds days to the current deadline. There is no limit on how
// often a sprint may be extended.
func (e *Engine) ExtendDeadline(ctx context.Context, leadID string, days int, actor, reason string) (*db.Sprint, error) {
	if days <= 0 {
		return nil, errValidation("extension days must be positive, got %d", days)
	}

	unlock := e.lockLead(leadID)
	defer unlock()

	sprint, err := e.activeSprint(leadID)
	if err != nil {
		return nil, err
	}
	deadline := sprint.Deadline.Add(time.Duration(days) * 24 * time.Hour)
	if err := e.store.SetSprintDeadline(sprint.ID, deadline); err != nil {
		return nil, err
	}

	e.record("extend_deadline", actor, leadID, "", fmt.Sprintf("days=%d reason=%s", days, reason), nil)
	return e.store.GetSprint(sprint.ID)
}

// TerminateSprint force-ends a sprint with no winner, clears the roster and
// returns the lead to the ready status. Irreversible.
func (e *Engine) TerminateSprint(ctx context.Context, leadID, actor, reason string) error {
	unlock := e.lockLead(leadID)
	defer unlock()

	sprint, err := e.activeSprint(leadID)
	if err != nil {
		return err
	}
	if err := e.store.TerminateSprint(sprint.ID, e.now()); err != nil {
		return fmt.Errorf("terminating sprint: %w", err)
	}
	if err := e.store.UpdateLeadStatus(leadID, db.LeadReady); err != nil {
		slog.Error("lead status not reset after termination", "lead", leadID, "error", err)
	}

	e.metrics.SprintTerminated()
	e.record("terminate_sprint", actor, leadID, "", reason, nil)
	return nil
}

// EvictBuilder removes one builder from the roster, freeing the slot.
func (e *Engine) EvictBuilder(ctx context.Context, leadID, builderID, actor, reason string) error {
	unlock := e.lockLead(leadID)
	defer unlock()

	sprint, err := e.activeSprint(leadID)
	if err != nil {
		return err
	}
	enrollment, err := e.store.GetEnrollment(sprint.ID, builderID)
	if err == sql.ErrNoRows {
		return errNotFound("builder %s is not enrolled on lead %s", builderID, leadID)
	}
	if err != nil {
		return fmt.Errorf("loading enrollment: %w", err)
	}
	if err := e.store.EvictEnrollment(enrollment.ID, reason, e.now()); err != nil {
		return fmt.Errorf("evicting builder: %w", err)
	}

	e.metrics.BuilderEvicted()
	e.record("evict_builder", actor, leadID, builderID, reason, nil)
	return nil
}

// activeSprint loads the lead's active sprint or reports NotFound.
func (e *Engine) activeSprint(leadID string) (*db.Sprint, error) {
	sprint, err := e.store.GetActiveSprint(leadID)
	if err == sql.ErrNoRows {
		return nil, errNotFound("no active sprint for lead %s", leadID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading active sprint: %w", err)
	}
	return sprint, nil
}
