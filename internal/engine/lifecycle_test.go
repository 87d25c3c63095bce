package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bridgeit/bridgeit/internal/db"
)

func TestLaunchSprint(t *testing.T) {
	e, store, clk := newTestEngine(t)
	ctx := context.Background()
	lead := createLead(t, store)

	sprint, err := e.LaunchSprint(ctx, lead.ID, 3, 2, nil, "scout_amy")
	require.NoError(t, err)
	assert.True(t, sprint.Active)
	assert.Equal(t, 3, sprint.MaxSlots)
	assert.Equal(t, 2, sprint.DurationWeeks)
	assert.True(t, sprint.Deadline.Equal(clk.Now().Add(2*7*24*time.Hour)))

	got, err := store.GetLead(lead.ID)
	require.NoError(t, err)
	assert.Equal(t, db.LeadSprinting, got.Status)
}

func TestLaunchSprintValidation(t *testing.T) {
	e, store, _ := newTestEngine(t)
	ctx := context.Background()
	lead := createLead(t, store)

	for _, tc := range []struct {
		name  string
		slots int
		weeks int
	}{
		{"zero slots", 0, 2},
		{"too many slots", 5, 2},
		{"too short", 2, 1},
		{"too long", 2, 5},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.LaunchSprint(ctx, lead.ID, tc.slots, tc.weeks, nil, "scout_amy")
			assert.Equal(t, KindValidation, KindOf(err))
		})
	}
}

func TestLaunchSprintUnknownLead(t *testing.T) {
	e, _, _ := newTestEngine(t)
	_, err := e.LaunchSprint(context.Background(), "no-such-lead", 2, 2, nil, "scout_amy")
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestLaunchSprintAlreadyActive(t *testing.T) {
	e, _, _ := newTestEngine(t)
	lead := launchOn(t, e, 2, 2)

	_, err := e.LaunchSprint(context.Background(), lead.ID, 2, 2, nil, "scout_amy")
	assert.Equal(t, KindInvalidState, KindOf(err))
}

func TestLaunchSprintRejectedKeepsMilestones(t *testing.T) {
	e, store, _ := newTestEngine(t)
	ctx := context.Background()
	lead := launchOn(t, e, 2, 2)

	_, err := e.JoinSprint(ctx, lead.ID, "builder_1", "Ada")
	require.NoError(t, err)
	for i := 0; i < 2; i++ {
		require.NoError(t, e.SubmitProof(ctx, lead.ID, "builder_1", i, "https://github.com/example/proof"))
		require.NoError(t, e.VerifyCheckpoint(ctx, lead.ID, "builder_1", i, true, "", "scout_amy"))
	}

	shorter := []db.Milestone{
		{LeadID: lead.ID, Index: 0, Name: "Build", Weight: 0.5},
		{LeadID: lead.ID, Index: 1, Name: "Ship", Weight: 0.5},
	}
	_, err = e.LaunchSprint(ctx, lead.ID, 2, 2, shorter, "scout_amy")
	assert.Equal(t, KindInvalidState, KindOf(err))

	// The running sprint still references the original four-checkpoint plan,
	// and a 2/4 builder has not become a finalist through the shorter plan.
	milestones, err := store.GetMilestones(lead.ID)
	require.NoError(t, err)
	assert.Len(t, milestones, 4)

	standings, err := e.Standings(ctx, lead.ID)
	require.NoError(t, err)
	require.Len(t, standings.Builders, 1)
	assert.False(t, standings.Builders[0].Finalist)
}

func TestLaunchSprintIneligibleStatus(t *testing.T) {
	e, store, _ := newTestEngine(t)
	ctx := context.Background()

	for _, status := range []string{db.LeadNurture, db.LeadEvaluating, db.LeadLive, db.LeadUnqualified} {
		lead := createLead(t, store)
		require.NoError(t, store.UpdateLeadStatus(lead.ID, status))
		_, err := e.LaunchSprint(ctx, lead.ID, 2, 2, nil, "scout_amy")
		assert.Equal(t, KindInvalidState, KindOf(err), "status %s", status)
	}

	// ready is eligible alongside the default qualified
	lead := createLead(t, store)
	require.NoError(t, store.UpdateLeadStatus(lead.ID, db.LeadReady))
	_, err := e.LaunchSprint(ctx, lead.ID, 2, 2, nil, "scout_amy")
	assert.NoError(t, err)
}

func TestPauseSprint(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()
	lead := launchOn(t, e, 2, 2)

	sprint, err := e.PauseSprint(ctx, lead.ID, true, "scout_amy")
	require.NoError(t, err)
	assert.True(t, sprint.Paused)

	before := sprint.Deadline
	sprint, err = e.PauseSprint(ctx, lead.ID, false, "scout_amy")
	require.NoError(t, err)
	assert.False(t, sprint.Paused)
	// pause never stretches the wall-clock deadline
	assert.True(t, sprint.Deadline.Equal(before))
}

func TestExtendDeadline(t *testing.T) {
	e, store, _ := newTestEngine(t)
	ctx := context.Background()
	lead := launchOn(t, e, 2, 2)

	sprint, err := store.GetActiveSprint(lead.ID)
	require.NoError(t, err)
	before := sprint.Deadline

	sprint, err = e.ExtendDeadline(ctx, lead.ID, 3, "scout_amy", "client review delay")
	require.NoError(t, err)
	assert.True(t, sprint.Deadline.Equal(before.Add(3*24*time.Hour)))

	// repeated extensions stack
	sprint, err = e.ExtendDeadline(ctx, lead.ID, 1, "scout_amy", "")
	require.NoError(t, err)
	assert.True(t, sprint.Deadline.Equal(before.Add(4*24*time.Hour)))

	_, err = e.ExtendDeadline(ctx, lead.ID, 0, "scout_amy", "")
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestTerminateSprint(t *testing.T) {
	e, store, _ := newTestEngine(t)
	ctx := context.Background()
	lead := launchOn(t, e, 2, 2)
	_, err := e.JoinSprint(ctx, lead.ID, "builder_1", "Kai")
	require.NoError(t, err)

	require.NoError(t, e.TerminateSprint(ctx, lead.ID, "scout_amy", "client went dark"))

	got, err := store.GetLead(lead.ID)
	require.NoError(t, err)
	assert.Equal(t, db.LeadReady, got.Status)

	// roster released: the builder is free to join elsewhere
	other := launchOn(t, e, 2, 2)
	_, err = e.JoinSprint(ctx, other.ID, "builder_1", "Kai")
	assert.NoError(t, err)

	// and the lead can host a fresh sprint
	_, err = e.LaunchSprint(ctx, lead.ID, 2, 2, nil, "scout_amy")
	assert.NoError(t, err)

	// terminating with nothing active reports NotFound
	idle := createLead(t, store)
	err = e.TerminateSprint(ctx, idle.ID, "scout_amy", "")
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestEvictBuilder(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()
	lead := launchOn(t, e, 1, 2)
	_, err := e.JoinSprint(ctx, lead.ID, "builder_1", "Kai")
	require.NoError(t, err)

	// sprint is full
	_, err = e.JoinSprint(ctx, lead.ID, "builder_2", "Noor")
	require.Equal(t, KindCapacityExceeded, KindOf(err))

	require.NoError(t, e.EvictBuilder(ctx, lead.ID, "builder_1", "scout_amy", "no activity"))

	// slot freed
	_, err = e.JoinSprint(ctx, lead.ID, "builder_2", "Noor")
	assert.NoError(t, err)

	err = e.EvictBuilder(ctx, lead.ID, "builder_1", "scout_amy", "")
	assert.Equal(t, KindNotFound, KindOf(err))
}
