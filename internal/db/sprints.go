package db

import (
	"database/sql"
	"fmt"
	"time"
)

// Sprint is the competitive build episode attached 1:1 to a lead while active.
type Sprint struct {
	ID                   string     `json:"id"`
	LeadID               string     `json:"lead_id"`
	Active               bool       `json:"active"`
	Paused               bool       `json:"paused"`
	MaxSlots             int        `json:"max_slots"`
	DurationWeeks        int        `json:"duration_weeks"`
	StartedAt            time.Time  `json:"started_at"`
	Deadline             time.Time  `json:"deadline"`
	SubmissionWindowOpen bool       `json:"submission_window_open"`
	FirstCompletionAt    *time.Time `json:"first_completion_at,omitempty"`
	VotingOpen           bool       `json:"voting_open"`
	WinnerBuilderID      *string    `json:"winner_builder_id,omitempty"`
	FinalizedAt          *time.Time `json:"finalized_at,omitempty"`
	TerminatedAt         *time.Time `json:"terminated_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
}

const sprintColumns = `id, lead_id, active, paused, max_slots, duration_weeks, started_at, deadline,
	submission_window_open, first_completion_at, voting_open, winner_builder_id,
	finalized_at, terminated_at, created_at`

type CreateSprintInput struct {
	LeadID        string
	MaxSlots      int
	DurationWeeks int
	StartedAt     time.Time
	Deadline      time.Time
}

// CreateSprint inserts an active sprint. The partial unique index on
// (lead_id) WHERE active=1 rejects a second active sprint for the same lead.
func (db *DB) CreateSprint(input CreateSprintInput) (*Sprint, error) {
	id := NewID()
	_, err := db.exec(`
		INSERT INTO sprints (id, lead_id, active, paused, max_slots, duration_weeks, started_at, deadline)
		VALUES (?, ?, 1, 0, ?, ?, ?, ?)`,
		id, input.LeadID, input.MaxSlots, input.DurationWeeks, input.StartedAt, input.Deadline)
	if err != nil {
		return nil, fmt.Errorf("creating sprint: %w", err)
	}
	return db.GetSprint(id)
}

func (db *DB) GetSprint(id string) (*Sprint, error) {
	return scanSprint(db.QueryRow(`SELECT `+sprintColumns+` FROM sprints WHERE id = ?`, id))
}

// GetActiveSprint returns the lead's active sprint, or sql.ErrNoRows.
func (db *DB) GetActiveSprint(leadID string) (*Sprint, error) {
	return scanSprint(db.QueryRow(`SELECT `+sprintColumns+` FROM sprints WHERE lead_id = ? AND active = 1`, leadID))
}

// GetLatestSprint returns the most recent sprint for a lead regardless of state.
func (db *DB) GetLatestSprint(leadID string) (*Sprint, error) {
	return scanSprint(db.QueryRow(`
		SELECT `+sprintColumns+` FROM sprints WHERE lead_id = ?
		ORDER BY created_at DESC LIMIT 1`, leadID))
}

func (db *DB) SetSprintPaused(id string, paused bool) error {
	_, err := db.exec(`UPDATE sprints SET paused = ? WHERE id = ?`, boolToInt(paused), id)
	return err
}

func (db *DB) SetSprintDeadline(id string, deadline time.Time) error {
	_, err := db.exec(`UPDATE sprints SET deadline = ? WHERE id = ?`, deadline, id)
	return err
}

// OpenSubmissionWindow stamps the first full completion and opens the
// latecomer window. No-op if the window was already opened.
func (db *DB) OpenSubmissionWindow(id string, at time.Time) error {
	_, err := db.exec(`
		UPDATE sprints SET submission_window_open = 1, first_completion_at = ?
		WHERE id = ? AND first_completion_at IS NULL`, at, id)
	return err
}

func (db *DB) CloseSubmissionWindow(id string) error {
	_, err := db.exec(`UPDATE sprints SET submission_window_open = 0 WHERE id = ?`, id)
	return err
}

func (db *DB) SetVotingOpen(id string, open bool) error {
	_, err := db.exec(`UPDATE sprints SET voting_open = ? WHERE id = ?`, boolToInt(open), id)
	return err
}

// SetWinner finalizes a sprint: records the winner, clears the active and
// voting flags. The WHERE guard makes the write idempotent-safe; a second
// attempt affects zero rows and the caller reports AlreadyFinalized.
func (db *DB) SetWinner(id, builderID string, at time.Time) (bool, error) {
	res, err := db.exec(`
		UPDATE sprints SET winner_builder_id = ?, finalized_at = ?, active = 0, voting_open = 0,
			submission_window_open = 0
		WHERE id = ? AND winner_builder_id IS NULL`, builderID, at, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// TerminateSprint force-ends a sprint without a winner and releases its roster.
func (db *DB) TerminateSprint(id string, at time.Time) error {
	_, err := db.exec(`
		UPDATE sprints SET active = 0, paused = 0, voting_open = 0, submission_window_open = 0, terminated_at = ?
		WHERE id = ?`, at, id)
	if err != nil {
		return err
	}
	_, err = db.exec(`UPDATE enrollments SET active = 0 WHERE sprint_id = ? AND active = 1`, id)
	return err
}

// ReleaseRoster deactivates all enrollments of a sprint, freeing the builders
// for other leads. Called on finalization.
func (db *DB) ReleaseRoster(sprintID string) error {
	_, err := db.exec(`UPDATE enrollments SET active = 0 WHERE sprint_id = ? AND active = 1`, sprintID)
	return err
}

func scanSprint(s interface{ Scan(...any) error }) (*Sprint, error) {
	sp := &Sprint{}
	var active, paused, windowOpen, votingOpen int
	var firstCompletion, finalizedAt, terminatedAt sql.NullTime
	var winner sql.NullString
	err := s.Scan(
		&sp.ID, &sp.LeadID, &active, &paused, &sp.MaxSlots, &sp.DurationWeeks,
		&sp.StartedAt, &sp.Deadline, &windowOpen, &firstCompletion, &votingOpen,
		&winner, &finalizedAt, &terminatedAt, &sp.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	sp.Active = active == 1
	sp.Paused = paused == 1
	sp.SubmissionWindowOpen = windowOpen == 1
	sp.VotingOpen = votingOpen == 1
	if firstCompletion.Valid {
		sp.FirstCompletionAt = &firstCompletion.Time
	}
	if winner.Valid {
		sp.WinnerBuilderID = &winner.String
	}
	if finalizedAt.Valid {
		sp.FinalizedAt = &finalizedAt.Time
	}
	if terminatedAt.Valid {
		sp.TerminatedAt = &terminatedAt.Time
	}
	return sp, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
