package db

import "time"

// Vote is a fellow's 1-5 rating of a finalist. One vote per fellow per
// finalist; re-voting replaces the previous score.
type Vote struct {
	ID        string    `json:"id"`
	SprintID  string    `json:"sprint_id"`
	BuilderID string    `json:"builder_id"`
	FellowID  string    `json:"fellow_id"`
	Score     int       `json:"score"`
	CreatedAt time.Time `json:"created_at"`
}

// CastVote records or replaces a fellow's vote for a finalist. Votes are
// append-friendly: concurrent submissions need no lead lock.
func (db *DB) CastVote(sprintID, builderID, fellowID string, score int) error {
	_, err := db.exec(`
		INSERT INTO votes (id, sprint_id, builder_id, fellow_id, score)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(sprint_id, builder_id, fellow_id) DO UPDATE SET
			score = excluded.score, created_at = datetime('now')`,
		NewID(), sprintID, builderID, fellowID, score)
	return err
}

// CountVotes returns the total number of votes recorded on a sprint.
func (db *DB) CountVotes(sprintID string) (int, error) {
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM votes WHERE sprint_id = ?`, sprintID).Scan(&count)
	return count, err
}

// VoteAverages returns each builder's mean vote score for a sprint.
func (db *DB) VoteAverages(sprintID string) (map[string]float64, error) {
	rows, err := db.Query(`
		SELECT builder_id, AVG(score) FROM votes
		WHERE sprint_id = ? GROUP BY builder_id`, sprintID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	averages := make(map[string]float64)
	for rows.Next() {
		var builderID string
		var avg float64
		if err := rows.Scan(&builderID, &avg); err != nil {
			return nil, err
		}
		averages[builderID] = avg
	}
	return averages, rows.Err()
}
