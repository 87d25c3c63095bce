package engine

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bridgeit/bridgeit/internal/db"
)

// BuilderStatus is the server-computed view of one enrollment. The dashboard
// renders these fields directly instead of re-deriving them client-side.
type BuilderStatus struct {
	Enrollment     *db.Enrollment   `json:"enrollment"`
	Checkpoints    []*db.Checkpoint `json:"checkpoints"`
	Pace           *float64         `json:"pace,omitempty"`
	Finalist       bool             `json:"finalist"`
	Stalled        bool             `json:"stalled"`
	RecentlyNudged bool             `json:"recently_nudged"`
	Flagged        bool             `json:"flagged"`
}

// Standings is the authoritative sprint snapshot served to the dashboard.
type Standings struct {
	Lead              *db.Lead        `json:"lead"`
	Sprint            *db.Sprint      `json:"sprint"`
	Milestones        []db.Milestone  `json:"milestones"`
	Builders          []BuilderStatus `json:"builders"`
	WindowClosed      bool            `json:"submission_window_closed"`
	CanFinalize       bool            `json:"can_finalize"`
	CanFinalizeReason string          `json:"can_finalize_reason,omitempty"`
	VoteCount         int             `json:"vote_count"`
	ScoringMode       string          `json:"scoring_mode"`
}

// Standings assembles the full derived state of a lead's active sprint.
func (e *Engine) Standings(ctx context.Context, leadID string) (*Standings, error) {
	lead, err := e.store.GetLead(leadID)
	if err == sql.ErrNoRows {
		return nil, errNotFound("lead %s not found", leadID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading lead: %w", err)
	}

	sprint, err := e.activeSprint(leadID)
	if err != nil {
		return nil, err
	}
	e.syncWindow(sprint)

	enrollments, err := e.store.ListEnrollments(sprint.ID)
	if err != nil {
		return nil, fmt.Errorf("loading roster: %w", err)
	}
	milestones, err := e.store.GetMilestones(leadID)
	if err != nil {
		return nil, fmt.Errorf("loading milestones: %w", err)
	}
	voteCount, err := e.store.CountVotes(sprint.ID)
	if err != nil {
		return nil, fmt.Errorf("counting votes: %w", err)
	}

	now := e.now()
	builders := make([]BuilderStatus, 0, len(enrollments))
	for _, en := range enrollments {
		cps, err := e.store.ListCheckpoints(en.ID)
		if err != nil {
			return nil, fmt.Errorf("loading checkpoints: %w", err)
		}
		status := BuilderStatus{
			Enrollment:  en,
			Checkpoints: cps,
			Finalist:    en.CheckpointsCompleted >= len(milestones),
			Stalled:     e.isStalled(en, len(milestones)),
		}
		if en.LastNudgedAt != nil && now.Sub(*en.LastNudgedAt) < e.cfg.NudgeRecent() {
			status.RecentlyNudged = true
		}
		if en.FlaggedExpiresAt != nil && now.Before(*en.FlaggedExpiresAt) {
			status.Flagged = true
		}
		if sprint.FirstCompletionAt != nil {
			pace := PaceScore(en.JoinedAt, en.CheckpointsCompleted, *sprint.FirstCompletionAt)
			status.Pace = &pace
		}
		builders = append(builders, status)
	}

	ok, reason := e.canFinalize(sprint, enrollments, len(milestones))
	return &Standings{
		Lead:              lead,
		Sprint:            sprint,
		Milestones:        milestones,
		Builders:          builders,
		WindowClosed:      e.isWindowClosed(sprint),
		CanFinalize:       ok,
		CanFinalizeReason: reason,
		VoteCount:         voteCount,
		ScoringMode:       e.strategy.Name(),
	}, nil
}

// isStalled applies the single staleness rule: below full completion with no
// checkpoint activity for the configured threshold. A builder who never
// touched a checkpoint is measured from the join time.
func (e *Engine) isStalled(en *db.Enrollment, milestoneCount int) bool {
	if en.CheckpointsCompleted >= milestoneCount {
		return false
	}
	last := en.JoinedAt
	if en.LastCheckpointUpdate != nil {
		last = *en.LastCheckpointUpdate
	}
	return e.now().Sub(last) >= e.cfg.StallAfter()
}
