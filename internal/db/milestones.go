package db

import "fmt"

// Milestone is one ordered checkpoint definition for a lead's sprint.
// Immutable once a sprint references it.
type Milestone struct {
	LeadID      string  `json:"lead_id"`
	Index       int     `json:"index"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Weight      float64 `json:"weight"`
}

// DefaultMilestones is the four-checkpoint plan used when a lead specifies none.
func DefaultMilestones(leadID string) []Milestone {
	names := []string{"Architecture", "Core Logic", "API Integration", "Demo/Integration"}
	ms := make([]Milestone, len(names))
	for i, name := range names {
		ms[i] = Milestone{LeadID: leadID, Index: i, Name: name, Weight: 0.25}
	}
	return ms
}

// SetMilestones replaces the milestone plan for a lead. Callers must not use
// this after a sprint has started referencing the plan.
func (db *DB) SetMilestones(leadID string, milestones []Milestone) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM milestones WHERE lead_id = ?`, leadID); err != nil {
		return err
	}
	for _, m := range milestones {
		if _, err := tx.Exec(`
			INSERT INTO milestones (lead_id, idx, name, description, weight)
			VALUES (?, ?, ?, ?, ?)`, leadID, m.Index, m.Name, m.Description, m.Weight); err != nil {
			return fmt.Errorf("inserting milestone %d: %w", m.Index, err)
		}
	}
	return tx.Commit()
}

// GetMilestones returns the lead's milestone plan, falling back to the default
// four-checkpoint plan when none is stored.
func (db *DB) GetMilestones(leadID string) ([]Milestone, error) {
	rows, err := db.Query(`
		SELECT lead_id, idx, name, description, weight
		FROM milestones WHERE lead_id = ? ORDER BY idx`, leadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ms []Milestone
	for rows.Next() {
		var m Milestone
		if err := rows.Scan(&m.LeadID, &m.Index, &m.Name, &m.Description, &m.Weight); err != nil {
			return nil, err
		}
		ms = append(ms, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ms) == 0 {
		return DefaultMilestones(leadID), nil
	}
	return ms, nil
}
