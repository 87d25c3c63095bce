package engine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bridgeit/bridgeit/internal/db"
)

func TestPaceScore(t *testing.T) {
	t0 := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	// projected finish exactly on the first completion
	assert.Equal(t, 100.0, PaceScore(t0, 4, t0.Add(96*time.Hour)))

	// nine hours apart, either direction: 100 - 2*9 = 82
	assert.Equal(t, 82.0, PaceScore(t0, 4, t0.Add(87*time.Hour)))
	assert.Equal(t, 82.0, PaceScore(t0, 4, t0.Add(105*time.Hour)))

	// the floor holds for far-off projections
	assert.Equal(t, 4.0, PaceScore(t0, 0, t0.Add(96*time.Hour)))
}

func TestFinalizeQualityMode(t *testing.T) {
	e, store, clk := newTestEngine(t)
	ctx := context.Background()
	lead := launchOn(t, e, 2, 2)
	_, err := e.JoinSprint(ctx, lead.ID, "builder_1", "Kai")
	require.NoError(t, err)
	_, err = e.JoinSprint(ctx, lead.ID, "builder_2", "Noor")
	require.NoError(t, err)

	completeAll(t, e, lead.ID, "builder_1")
	completeAll(t, e, lead.ID, "builder_2")

	// missing scout reviews block finalization even after the window closes
	clk.Advance(48 * time.Hour)
	_, err = e.Finalize(ctx, lead.ID, "scout_amy")
	require.Equal(t, KindInvalidState, KindOf(err))

	require.NoError(t, e.SubmitReview(ctx, lead.ID, "builder_1", 90, 80, "", "scout_amy"))
	require.NoError(t, e.SubmitReview(ctx, lead.ID, "builder_2", 70, 60, "", "scout_amy"))

	result, err := e.Finalize(ctx, lead.ID, "scout_amy")
	require.NoError(t, err)
	assert.Equal(t, "builder_1", result.Winner)
	assert.Equal(t, "quality", result.Strategy)
	require.Len(t, result.Scores, 2)

	// totals follow the 30/50/20 blend exactly
	sprint, err := store.GetSprint(result.SprintID)
	require.NoError(t, err)
	for _, s := range result.Scores {
		en, err := store.GetEnrollmentByID(enrollmentID(t, store, sprint.ID, s.BuilderID))
		require.NoError(t, err)
		pace := PaceScore(en.JoinedAt, en.CheckpointsCompleted, *sprint.FirstCompletionAt)
		want := pace*0.3 + *en.QualityScore*0.5 + *en.ScoutReviewScore*0.2
		assert.InDelta(t, want, s.Total, 1e-9)
	}

	// the winner write is terminal
	got, err := store.GetLead(lead.ID)
	require.NoError(t, err)
	assert.Equal(t, db.LeadLive, got.Status)
	require.NotNil(t, sprint.WinnerBuilderID)
	assert.Equal(t, "builder_1", *sprint.WinnerBuilderID)
	assert.False(t, sprint.Active)

	_, err = e.Finalize(ctx, lead.ID, "scout_amy")
	assert.Equal(t, KindAlreadyFinalized, KindOf(err))

	// roster released: both builders are free again
	other := launchOn(t, e, 2, 2)
	_, err = e.JoinSprint(ctx, other.ID, "builder_2", "Noor")
	assert.NoError(t, err)
}

// enrollmentID resolves a builder's enrollment on a sprint, active or not.
func enrollmentID(t *testing.T, store *db.DB, sprintID, builderID string) string {
	t.Helper()
	var id string
	err := store.QueryRow(`
		SELECT id FROM enrollments WHERE sprint_id = ? AND builder_id = ?`, sprintID, builderID).Scan(&id)
	require.NoError(t, err)
	return id
}

func TestFinalizeBeforeWindowCloses(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()
	lead := launchOn(t, e, 2, 2)
	_, err := e.JoinSprint(ctx, lead.ID, "builder_1", "Kai")
	require.NoError(t, err)
	completeAll(t, e, lead.ID, "builder_1")
	require.NoError(t, e.SubmitReview(ctx, lead.ID, "builder_1", 90, 80, "", "scout_amy"))

	_, err = e.Finalize(ctx, lead.ID, "scout_amy")
	assert.Equal(t, KindInvalidState, KindOf(err))
}

// TestFinalizeTieBreak pins the deterministic tie rule: on equal totals the
// earliest joiner keeps the win.
func TestFinalizeTieBreak(t *testing.T) {
	e, _, clk := newTestEngine(t)
	ctx := context.Background()
	lead := launchOn(t, e, 2, 2)
	_, err := e.JoinSprint(ctx, lead.ID, "builder_late", "Noor")
	require.NoError(t, err)
	// relabel: the first join above happened first; join the second an hour later
	clk.Advance(time.Hour)
	_, err = e.JoinSprint(ctx, lead.ID, "builder_later", "Ravi")
	require.NoError(t, err)

	// push both projections far past the first completion so both paces sit on
	// the floor and the totals tie exactly
	clk.Advance(200 * time.Hour)
	completeAll(t, e, lead.ID, "builder_late")
	completeAll(t, e, lead.ID, "builder_later")
	require.NoError(t, e.SubmitReview(ctx, lead.ID, "builder_late", 80, 70, "", "scout_amy"))
	require.NoError(t, e.SubmitReview(ctx, lead.ID, "builder_later", 80, 70, "", "scout_amy"))

	clk.Advance(48 * time.Hour)
	result, err := e.Finalize(ctx, lead.ID, "scout_amy")
	require.NoError(t, err)
	assert.Equal(t, "builder_late", result.Winner)
	assert.Equal(t, result.Scores[0].Total, result.Scores[1].Total)
}

func TestVotingFlow(t *testing.T) {
	cfg := testConfig()
	cfg.ScoringMode = "voting"
	e, store, clk := newTestEngineCfg(t, cfg)
	ctx := context.Background()
	lead := launchOn(t, e, 2, 2)
	_, err := e.JoinSprint(ctx, lead.ID, "builder_1", "Kai")
	require.NoError(t, err)
	_, err = e.JoinSprint(ctx, lead.ID, "builder_2", "Noor")
	require.NoError(t, err)
	completeAll(t, e, lead.ID, "builder_1")
	completeAll(t, e, lead.ID, "builder_2")

	// voting cannot open while the submission window runs
	err = e.OpenVoting(ctx, lead.ID, "scout_amy")
	require.Equal(t, KindInvalidState, KindOf(err))

	clk.Advance(48 * time.Hour)

	// votes before the phase opens are rejected
	err = e.CastVote(ctx, lead.ID, "builder_1", "fellow_1", 5)
	require.Equal(t, KindInvalidState, KindOf(err))

	require.NoError(t, e.OpenVoting(ctx, lead.ID, "scout_amy"))
	err = e.OpenVoting(ctx, lead.ID, "scout_amy")
	assert.Equal(t, KindInvalidState, KindOf(err))

	// score bounds
	assert.Equal(t, KindValidation, KindOf(e.CastVote(ctx, lead.ID, "builder_1", "fellow_1", 0)))
	assert.Equal(t, KindValidation, KindOf(e.CastVote(ctx, lead.ID, "builder_1", "fellow_1", 6)))

	// only finalists can receive votes
	err = e.CastVote(ctx, lead.ID, "builder_9", "fellow_1", 4)
	assert.Equal(t, KindInvalidState, KindOf(err))

	// nine votes is one short of the floor
	for i := 0; i < 9; i++ {
		require.NoError(t, e.CastVote(ctx, lead.ID, "builder_1", fmt.Sprintf("fellow_%d", i), 5))
	}
	_, err = e.CloseVoting(ctx, lead.ID, "scout_amy")
	require.Equal(t, KindInsufficientVotes, KindOf(err))

	// a fellow re-voting replaces their score instead of adding a vote
	require.NoError(t, e.CastVote(ctx, lead.ID, "builder_1", "fellow_0", 4))
	sprint, err := store.GetActiveSprint(lead.ID)
	require.NoError(t, err)
	count, err := store.CountVotes(sprint.ID)
	require.NoError(t, err)
	assert.Equal(t, 9, count)

	// tenth vote clears the floor; builder_2 trails on average
	require.NoError(t, e.CastVote(ctx, lead.ID, "builder_2", "fellow_0", 3))

	result, err := e.CloseVoting(ctx, lead.ID, "scout_amy")
	require.NoError(t, err)
	assert.Equal(t, "builder_1", result.Winner)
	assert.Equal(t, "voting", result.Strategy)

	got, err := store.GetLead(lead.ID)
	require.NoError(t, err)
	assert.Equal(t, db.LeadLive, got.Status)

	// repeat closes and opens report the terminal state, not a missing sprint
	_, err = e.CloseVoting(ctx, lead.ID, "scout_amy")
	assert.Equal(t, KindAlreadyFinalized, KindOf(err))
	err = e.OpenVoting(ctx, lead.ID, "scout_amy")
	assert.Equal(t, KindAlreadyFinalized, KindOf(err))
}

func TestCloseVotingWithoutOpening(t *testing.T) {
	cfg := testConfig()
	cfg.ScoringMode = "voting"
	e, _, clk := newTestEngineCfg(t, cfg)
	ctx := context.Background()
	lead := launchOn(t, e, 2, 2)
	_, err := e.JoinSprint(ctx, lead.ID, "builder_1", "Kai")
	require.NoError(t, err)
	completeAll(t, e, lead.ID, "builder_1")
	clk.Advance(48 * time.Hour)

	_, err = e.CloseVoting(ctx, lead.ID, "scout_amy")
	assert.Equal(t, KindInvalidState, KindOf(err))
}
