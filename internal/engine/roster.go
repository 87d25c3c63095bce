package engine

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bridgeit/bridgeit/internal/db"
)

// JoinSprint enrolls a builder into the lead's active sprint. The capacity
// check runs under the lead lock; the store's partial unique index backstops
// cross-lead builder uniqueness against races with other leads' joins.
func (e *Engine) JoinSprint(ctx context.Context, leadID, builderID, builderName string) (*db.Enrollment, error) {
	if builderID == "" {
		return nil, errValidation("builder id is required")
	}

	unlock := e.lockLead(leadID)
	defer unlock()

	sprint, err := e.activeSprint(leadID)
	if err != nil {
		return nil, err
	}

	count, err := e.store.CountActiveEnrollments(sprint.ID)
	if err != nil {
		return nil, fmt.Errorf("counting roster: %w", err)
	}
	if count >= sprint.MaxSlots {
		return nil, errCapacityExceeded("sprint is full: %d/%d slots taken", count, sprint.MaxSlots)
	}

	elsewhere, err := e.store.IsBuilderActiveElsewhere(builderID, sprint.ID)
	if err != nil {
		return nil, fmt.Errorf("checking builder activity: %w", err)
	}
	if elsewhere {
		return nil, errEnrolledElsewhere("builder %s is already active on another sprint", builderID)
	}

	milestones, err := e.store.GetMilestones(leadID)
	if err != nil {
		return nil, fmt.Errorf("loading milestones: %w", err)
	}

	enrollment, err := e.store.CreateEnrollment(sprint.ID, builderID, builderName, e.now(), len(milestones))
	if err != nil {
		// The unique index fires when the same builder is joining here and
		// elsewhere at once, or double-joining this sprint.
		if db.IsUniqueViolation(err) {
			return nil, errEnrolledElsewhere("builder %s is already active on a sprint", builderID)
		}
		return nil, fmt.Errorf("creating enrollment: %w", err)
	}

	e.metrics.BuilderJoined()
	e.record("join_sprint", builderID, leadID, builderID, "", nil)
	return enrollment, nil
}

// SubmitProof marks a checkpoint as submitted with its proof link. Completion
// count does not move until a scout verifies.
func (e *Engine) SubmitProof(ctx context.Context, leadID, builderID string, checkpointIndex int, proofLink string) error {
	unlock := e.lockLead(leadID)
	defer unlock()

	_, enrollment, cp, err := e.loadCheckpoint(leadID, builderID, checkpointIndex)
	if err != nil {
		return err
	}
	if cp.Status == db.CheckpointApproved {
		return errInvalidState("checkpoint %d is already approved", checkpointIndex)
	}
	if err := e.store.SubmitCheckpointProof(enrollment.ID, checkpointIndex, proofLink, e.now()); err != nil {
		return fmt.Errorf("submitting proof: %w", err)
	}

	e.record("submit_proof", builderID, leadID, builderID, fmt.Sprintf("checkpoint=%d", checkpointIndex), nil)
	return nil
}

// VerifyCheckpoint approves or rejects a submitted checkpoint. Approval is the
// sole authority that advances a builder's completion count; when it brings
// the builder to full completion first on the sprint, the submission window
// opens.
func (e *Engine) VerifyCheckpoint(ctx context.Context, leadID, builderID string, checkpointIndex int, approved bool, notes, actor string) error {
	unlock := e.lockLead(leadID)
	defer unlock()

	sprint, enrollment, cp, err := e.loadCheckpoint(leadID, builderID, checkpointIndex)
	if err != nil {
		return err
	}
	if cp.Status != db.CheckpointSubmitted {
		return errInvalidState("checkpoint %d is %s, only submitted checkpoints can be verified", checkpointIndex, cp.Status)
	}

	now := e.now()
	if !approved {
		if err := e.store.RejectCheckpoint(enrollment.ID, checkpointIndex, notes, now); err != nil {
			return fmt.Errorf("rejecting checkpoint: %w", err)
		}
		e.record("reject_checkpoint", actor, leadID, builderID, fmt.Sprintf("checkpoint=%d %s", checkpointIndex, notes), nil)
		return nil
	}

	if err := e.store.ApproveCheckpoint(enrollment.ID, checkpointIndex, notes, now); err != nil {
		return fmt.Errorf("approving checkpoint: %w", err)
	}
	e.metrics.CheckpointApproved()
	e.record("approve_checkpoint", actor, leadID, builderID, fmt.Sprintf("checkpoint=%d", checkpointIndex), nil)

	milestones, err := e.store.GetMilestones(leadID)
	if err != nil {
		return fmt.Errorf("loading milestones: %w", err)
	}
	if enrollment.CheckpointsCompleted+1 >= len(milestones) && sprint.FirstCompletionAt == nil {
		if err := e.store.OpenSubmissionWindow(sprint.ID, now); err != nil {
			return fmt.Errorf("opening submission window: %w", err)
		}
		e.record("submission_window_opened", actor, leadID, builderID, "", nil)
	}
	return nil
}

// NudgeBuilder stamps an operational reminder on the enrollment.
func (e *Engine) NudgeBuilder(ctx context.Context, leadID, builderID, actor string) error {
	unlock := e.lockLead(leadID)
	defer unlock()

	enrollment, err := e.enrollmentOn(leadID, builderID)
	if err != nil {
		return err
	}
	if err := e.store.SetNudged(enrollment.ID, e.now()); err != nil {
		return fmt.Errorf("nudging builder: %w", err)
	}
	e.record("nudge_builder", actor, leadID, builderID, "", nil)
	return nil
}

// FlagBuilder opens a time-boxed eviction warning on the enrollment. The flag
// auto-expires; expiry is derived at read time.
func (e *Engine) FlagBuilder(ctx context.Context, leadID, builderID, actor, reason string) error {
	unlock := e.lockLead(leadID)
	defer unlock()

	enrollment, err := e.enrollmentOn(leadID, builderID)
	if err != nil {
		return err
	}
	now := e.now()
	if err := e.store.SetFlagged(enrollment.ID, now, now.Add(e.cfg.FlagWindow())); err != nil {
		return fmt.Errorf("flagging builder: %w", err)
	}
	e.record("flag_builder", actor, leadID, builderID, reason, nil)
	return nil
}

// SubmitReview records the scout's quality assessment of a builder. Both
// scores are 0-100.
func (e *Engine) SubmitReview(ctx context.Context, leadID, builderID string, quality, review float64, notes, actor string) error {
	if quality < 0 || quality > 100 {
		return errValidation("quality score must be 0-100, got %g", quality)
	}
	if review < 0 || review > 100 {
		return errValidation("scout review score must be 0-100, got %g", review)
	}

	unlock := e.lockLead(leadID)
	defer unlock()

	enrollment, err := e.enrollmentOn(leadID, builderID)
	if err != nil {
		return err
	}
	if err := e.store.SetScoutReview(enrollment.ID, quality, review, notes, e.now()); err != nil {
		return fmt.Errorf("recording review: %w", err)
	}
	e.record("submit_review", actor, leadID, builderID, fmt.Sprintf("quality=%g review=%g", quality, review), nil)
	return nil
}

func (e *Engine) enrollmentOn(leadID, builderID string) (*db.Enrollment, error) {
	sprint, err := e.activeSprint(leadID)
	if err != nil {
		return nil, err
	}
	enrollment, err := e.store.GetEnrollment(sprint.ID, builderID)
	if err == sql.ErrNoRows {
		return nil, errNotFound("builder %s is not enrolled on lead %s", builderID, leadID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading enrollment: %w", err)
	}
	return enrollment, nil
}

func (e *Engine) loadCheckpoint(leadID, builderID string, idx int) (*db.Sprint, *db.Enrollment, *db.Checkpoint, error) {
	sprint, err := e.activeSprint(leadID)
	if err != nil {
		return nil, nil, nil, err
	}
	enrollment, err := e.store.GetEnrollment(sprint.ID, builderID)
	if err == sql.ErrNoRows {
		return nil, nil, nil, errNotFound("builder %s is not enrolled on lead %s", builderID, leadID)
	}
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading enrollment: %w", err)
	}
	cp, err := e.store.GetCheckpoint(enrollment.ID, idx)
	if err == sql.ErrNoRows {
		return nil, nil, nil, errNotFound("checkpoint %d does not exist", idx)
	}
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading checkpoint: %w", err)
	}
	return sprint, enrollment, cp, nil
}
