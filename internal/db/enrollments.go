package db

import (
	"database/sql"
	"strings"
	"time"
)

// Checkpoint statuses.
const (
	CheckpointPending   = "pending"
	CheckpointSubmitted = "submitted"
	CheckpointApproved  = "approved"
	CheckpointRejected  = "rejected"
)

// Enrollment is a builder's participation record within a sprint.
type Enrollment struct {
	ID                   string     `json:"id"`
	SprintID             string     `json:"sprint_id"`
	BuilderID            string     `json:"builder_id"`
	BuilderName          string     `json:"builder_name"`
	Active               bool       `json:"active"`
	JoinedAt             time.Time  `json:"joined_at"`
	CheckpointsCompleted int        `json:"checkpoints_completed"`
	LastNudgedAt         *time.Time `json:"last_nudged_at,omitempty"`
	LastCheckpointUpdate *time.Time `json:"last_checkpoint_update,omitempty"`
	FlaggedAt            *time.Time `json:"flagged_at,omitempty"`
	FlaggedExpiresAt     *time.Time `json:"flagged_expires_at,omitempty"`
	QualityScore         *float64   `json:"quality_score,omitempty"`
	ScoutReviewScore     *float64   `json:"scout_review_score,omitempty"`
	ReviewNotes          *string    `json:"review_notes,omitempty"`
	ReviewedAt           *time.Time `json:"reviewed_at,omitempty"`
	EvictedAt            *time.Time `json:"evicted_at,omitempty"`
	EvictReason          *string    `json:"evict_reason,omitempty"`
}

// Checkpoint is one deliverable unit in a builder's proof flow.
type Checkpoint struct {
	EnrollmentID string     `json:"enrollment_id"`
	Index        int        `json:"index"`
	Status       string     `json:"status"`
	ProofLink    string     `json:"proof_link"`
	Notes        string     `json:"notes"`
	SubmittedAt  *time.Time `json:"submitted_at,omitempty"`
	VerifiedAt   *time.Time `json:"verified_at,omitempty"`
}

const enrollmentColumns = `id, sprint_id, builder_id, builder_name, active, joined_at,
	checkpoints_completed, last_nudged_at, last_checkpoint_update, flagged_at, flagged_expires_at,
	quality_score, scout_review_score, review_notes, reviewed_at, evicted_at, evict_reason`

// CreateEnrollment enrolls a builder and seeds one pending checkpoint per
// milestone. The partial unique index on (builder_id) WHERE active=1 rejects a
// builder who already holds an active enrollment on any sprint.
func (db *DB) CreateEnrollment(sprintID, builderID, builderName string, joinedAt time.Time, milestoneCount int) (*Enrollment, error) {
	id := NewID()
	tx, err := db.Begin()
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		INSERT INTO enrollments (id, sprint_id, builder_id, builder_name, active, joined_at)
		VALUES (?, ?, ?, ?, 1, ?)`, id, sprintID, builderID, builderName, joinedAt)
	if err != nil {
		return nil, err
	}
	for i := 0; i < milestoneCount; i++ {
		if _, err := tx.Exec(`INSERT INTO checkpoints (enrollment_id, idx) VALUES (?, ?)`, id, i); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return db.GetEnrollmentByID(id)
}

// IsUniqueViolation reports whether err comes from a UNIQUE constraint.
func IsUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE")
}

func (db *DB) GetEnrollmentByID(id string) (*Enrollment, error) {
	return scanEnrollment(db.QueryRow(`SELECT `+enrollmentColumns+` FROM enrollments WHERE id = ?`, id))
}

// GetEnrollment returns a builder's active enrollment on a sprint.
func (db *DB) GetEnrollment(sprintID, builderID string) (*Enrollment, error) {
	return scanEnrollment(db.QueryRow(`
		SELECT `+enrollmentColumns+` FROM enrollments
		WHERE sprint_id = ? AND builder_id = ? AND active = 1`, sprintID, builderID))
}

// ListEnrollments returns the active roster of a sprint, earliest joiner first.
func (db *DB) ListEnrollments(sprintID string) ([]*Enrollment, error) {
	rows, err := db.Query(`
		SELECT `+enrollmentColumns+` FROM enrollments
		WHERE sprint_id = ? AND active = 1
		ORDER BY joined_at, id`, sprintID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var enrollments []*Enrollment
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, err
		}
		enrollments = append(enrollments, e)
	}
	return enrollments, rows.Err()
}

func (db *DB) CountActiveEnrollments(sprintID string) (int, error) {
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM enrollments WHERE sprint_id = ? AND active = 1`, sprintID).Scan(&count)
	return count, err
}

// IsBuilderActiveElsewhere reports whether the builder holds an active
// enrollment on a sprint other than sprintID.
func (db *DB) IsBuilderActiveElsewhere(builderID, sprintID string) (bool, error) {
	var count int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM enrollments
		WHERE builder_id = ? AND active = 1 AND sprint_id != ?`, builderID, sprintID).Scan(&count)
	return count > 0, err
}

// EvictEnrollment deactivates a builder's enrollment, freeing the slot.
func (db *DB) EvictEnrollment(id, reason string, at time.Time) error {
	_, err := db.exec(`
		UPDATE enrollments SET active = 0, evicted_at = ?, evict_reason = ?
		WHERE id = ?`, at, reason, id)
	return err
}

func (db *DB) SetNudged(id string, at time.Time) error {
	_, err := db.exec(`UPDATE enrollments SET last_nudged_at = ? WHERE id = ?`, at, id)
	return err
}

func (db *DB) SetFlagged(id string, at, expiresAt time.Time) error {
	_, err := db.exec(`UPDATE enrollments SET flagged_at = ?, flagged_expires_at = ? WHERE id = ?`, at, expiresAt, id)
	return err
}

// SetScoutReview records the scout's quality assessment of a finalist.
func (db *DB) SetScoutReview(id string, quality, review float64, notes string, at time.Time) error {
	_, err := db.exec(`
		UPDATE enrollments SET quality_score = ?, scout_review_score = ?, review_notes = ?, reviewed_at = ?
		WHERE id = ?`, quality, review, notes, at, id)
	return err
}

func (db *DB) GetCheckpoint(enrollmentID string, idx int) (*Checkpoint, error) {
	return scanCheckpoint(db.QueryRow(`
		SELECT enrollment_id, idx, status, proof_link, notes, submitted_at, verified_at
		FROM checkpoints WHERE enrollment_id = ? AND idx = ?`, enrollmentID, idx))
}

func (db *DB) ListCheckpoints(enrollmentID string) ([]*Checkpoint, error) {
	rows, err := db.Query(`
		SELECT enrollment_id, idx, status, proof_link, notes, submitted_at, verified_at
		FROM checkpoints WHERE enrollment_id = ? ORDER BY idx`, enrollmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cps []*Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		cps = append(cps, cp)
	}
	return cps, rows.Err()
}

// SubmitCheckpointProof marks a checkpoint submitted with its proof link.
// Completion count is untouched; only verification advances it.
func (db *DB) SubmitCheckpointProof(enrollmentID string, idx int, proofLink string, at time.Time) error {
	_, err := db.exec(`
		UPDATE checkpoints SET status = ?, proof_link = ?, submitted_at = ?
		WHERE enrollment_id = ? AND idx = ?`, CheckpointSubmitted, proofLink, at, enrollmentID, idx)
	if err != nil {
		return err
	}
	_, err = db.exec(`UPDATE enrollments SET last_checkpoint_update = ? WHERE id = ?`, at, enrollmentID)
	return err
}

// ApproveCheckpoint marks a checkpoint approved and increments the completion
// count. This is the only write that advances checkpoints_completed.
func (db *DB) ApproveCheckpoint(enrollmentID string, idx int, notes string, at time.Time) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		UPDATE checkpoints SET status = ?, notes = ?, verified_at = ?
		WHERE enrollment_id = ? AND idx = ?`, CheckpointApproved, notes, at, enrollmentID, idx); err != nil {
		return err
	}
	if _, err := tx.Exec(`
		UPDATE enrollments SET checkpoints_completed = checkpoints_completed + 1, last_checkpoint_update = ?
		WHERE id = ?`, at, enrollmentID); err != nil {
		return err
	}
	return tx.Commit()
}

// RejectCheckpoint sends a submitted checkpoint back with notes attached.
func (db *DB) RejectCheckpoint(enrollmentID string, idx int, notes string, at time.Time) error {
	_, err := db.exec(`
		UPDATE checkpoints SET status = ?, notes = ?
		WHERE enrollment_id = ? AND idx = ?`, CheckpointRejected, notes, enrollmentID, idx)
	if err != nil {
		return err
	}
	_, err = db.exec(`UPDATE enrollments SET last_checkpoint_update = ? WHERE id = ?`, at, enrollmentID)
	return err
}

func scanEnrollment(s interface{ Scan(...any) error }) (*Enrollment, error) {
	e := &Enrollment{}
	var active int
	var lastNudged, lastUpdate, flaggedAt, flaggedExpires, reviewedAt, evictedAt sql.NullTime
	var quality, review sql.NullFloat64
	var notes, evictReason sql.NullString
	err := s.Scan(
		&e.ID, &e.SprintID, &e.BuilderID, &e.BuilderName, &active, &e.JoinedAt,
		&e.CheckpointsCompleted, &lastNudged, &lastUpdate, &flaggedAt, &flaggedExpires,
		&quality, &review, &notes, &reviewedAt, &evictedAt, &evictReason,
	)
	if err != nil {
		return nil, err
	}
	e.Active = active == 1
	if lastNudged.Valid {
		e.LastNudgedAt = &lastNudged.Time
	}
	if lastUpdate.Valid {
		e.LastCheckpointUpdate = &lastUpdate.Time
	}
	if flaggedAt.Valid {
		e.FlaggedAt = &flaggedAt.Time
	}
	if flaggedExpires.Valid {
		e.FlaggedExpiresAt = &flaggedExpires.Time
	}
	if quality.Valid {
		e.QualityScore = &quality.Float64
	}
	if review.Valid {
		e.ScoutReviewScore = &review.Float64
	}
	if notes.Valid {
		e.ReviewNotes = &notes.String
	}
	if reviewedAt.Valid {
		e.ReviewedAt = &reviewedAt.Time
	}
	if evictedAt.Valid {
		e.EvictedAt = &evictedAt.Time
	}
	if evictReason.Valid {
		e.EvictReason = &evictReason.String
	}
	return e, nil
}

func scanCheckpoint(s interface{ Scan(...any) error }) (*Checkpoint, error) {
	cp := &Checkpoint{}
	var submittedAt, verifiedAt sql.NullTime
	err := s.Scan(&cp.EnrollmentID, &cp.Index, &cp.Status, &cp.ProofLink, &cp.Notes, &submittedAt, &verifiedAt)
	if err != nil {
		return nil, err
	}
	if submittedAt.Valid {
		cp.SubmittedAt = &submittedAt.Time
	}
	if verifiedAt.Valid {
		cp.VerifiedAt = &verifiedAt.Time
	}
	return cp, nil
}
