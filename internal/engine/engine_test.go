package engine

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bridgeit/bridgeit/internal/config"
	"github.com/bridgeit/bridgeit/internal/db"
	"github.com/bridgeit/bridgeit/pkg/audit"
)

// fakeClock pins the engine clock so time-derived rules are testable.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testConfig() config.SprintConfig {
	return config.DefaultConfig().Sprint
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *db.DB, *fakeClock) {
	return newTestEngineCfg(t, testConfig(), opts...)
}

func newTestEngineCfg(t *testing.T, cfg config.SprintConfig, opts ...Option) (*Engine, *db.DB, *fakeClock) {
	t.Helper()
	store, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clk := newFakeClock()
	opts = append([]Option{WithClock(clk.Now)}, opts...)
	return New(store, audit.Nop{}, cfg, opts...), store, clk
}

func createLead(t *testing.T, store *db.DB) *db.Lead {
	t.Helper()
	lead, err := store.CreateLead(db.CreateLeadInput{
		BusinessName: "Corner Bakery",
		Category:     "bakery",
		Borough:      "Brooklyn",
		HFI:          74,
		FrictionType: "phone orders",
	})
	require.NoError(t, err)
	return lead
}

// launchOn creates a lead and opens a sprint on it.
func launchOn(t *testing.T, e *Engine, maxSlots, weeks int) *db.Lead {
	t.Helper()
	lead := createLead(t, e.Store())
	_, err := e.LaunchSprint(context.Background(), lead.ID, maxSlots, weeks, nil, "scout_amy")
	require.NoError(t, err)
	return lead
}

// completeAll walks one builder through every default checkpoint: submit
// proof, then approve. The last approval is the one that can open the
// submission window.
func completeAll(t *testing.T, e *Engine, leadID, builderID string) {
	t.Helper()
	ctx := context.Background()
	milestones, err := e.Store().GetMilestones(leadID)
	require.NoError(t, err)
	for i := range milestones {
		require.NoError(t, e.SubmitProof(ctx, leadID, builderID, i, "https://github.com/example/proof"))
		require.NoError(t, e.VerifyCheckpoint(ctx, leadID, builderID, i, true, "", "scout_amy"))
	}
}
