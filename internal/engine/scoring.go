package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/bridgeit/bridgeit/internal/db"
)

// Quality-mode weights: pace 30%, scout quality 50%, scout review 20%.
const (
	paceWeight    = 0.3
	qualityWeight = 0.5
	reviewWeight  = 0.2
)

// minVotesToClose is the hard floor of recorded votes before voting may close.
// A tunable candidate for config; held constant to match current product rules.
const minVotesToClose = 10

// PaceScore is the synthetic speed metric: max(4, 100 − 2×|hoursDifference|)
// where hoursDifference compares the builder's projected finish (joined plus
// one day per completed checkpoint) against the sprint's first completion.
// It approximates relative speed; it is not a real completion timestamp.
func PaceScore(joinedAt time.Time, checkpointsCompleted int, firstCompletionAt time.Time) float64 {
	projected := joinedAt.Add(time.Duration(checkpointsCompleted) * 24 * time.Hour)
	hours := projected.Sub(firstCompletionAt).Hours()
	return math.Max(4, 100-2*math.Abs(hours))
}

// FinalistScore is the per-finalist breakdown behind a winner determination.
type FinalistScore struct {
	BuilderID   string   `json:"builder_id"`
	BuilderName string   `json:"builder_name"`
	Pace        float64  `json:"pace"`
	Quality     *float64 `json:"quality,omitempty"`
	Review      *float64 `json:"review,omitempty"`
	VoteAverage *float64 `json:"vote_average,omitempty"`
	Total       float64  `json:"total"`
}

// WinnerStrategy determines a sprint's winner from its finalists. Finalists
// arrive ordered by join time, which doubles as the deterministic tie-break:
// the first finalist to have joined keeps the lead on equal totals.
type WinnerStrategy interface {
	Name() string
	Determine(sprint *db.Sprint, finalists []*db.Enrollment) (string, []FinalistScore, error)
}

// QualityStrategy scores finalists from scout-submitted quality and review
// values blended with the pace score.
type QualityStrategy struct{}

func (QualityStrategy) Name() string { return "quality" }

func (QualityStrategy) Determine(sprint *db.Sprint, fin []*db.Enrollment) (string, []FinalistScore, error) {
	if sprint.FirstCompletionAt == nil {
		return "", nil, errInvalidState("sprint has no recorded completion")
	}

	var winner string
	var best float64
	scores := make([]FinalistScore, 0, len(fin))
	for _, en := range fin {
		if en.QualityScore == nil || en.ScoutReviewScore == nil {
			return "", nil, errInvalidState("finalist %s has no scout review yet", en.BuilderID)
		}
		pace := PaceScore(en.JoinedAt, en.CheckpointsCompleted, *sprint.FirstCompletionAt)
		total := pace*paceWeight + *en.QualityScore*qualityWeight + *en.ScoutReviewScore*reviewWeight
		scores = append(scores, FinalistScore{
			BuilderID:   en.BuilderID,
			BuilderName: en.BuilderName,
			Pace:        pace,
			Quality:     en.QualityScore,
			Review:      en.ScoutReviewScore,
			Total:       total,
		})
		if winner == "" || total > best {
			winner = en.BuilderID
			best = total
		}
	}
	return winner, scores, nil
}

// VotingStrategy aggregates fellow votes (1-5) into mean scores, requiring a
// minimum number of recorded votes before a winner may be determined.
type VotingStrategy struct {
	store *db.DB
}

func (*VotingStrategy) Name() string { return "voting" }

func (s *VotingStrategy) Determine(sprint *db.Sprint, fin []*db.Enrollment) (string, []FinalistScore, error) {
	total, err := s.store.CountVotes(sprint.ID)
	if err != nil {
		return "", nil, fmt.Errorf("counting votes: %w", err)
	}
	if total < minVotesToClose {
		return "", nil, errInsufficientVotes("need at least %d votes to close voting, have %d", minVotesToClose, total)
	}
	averages, err := s.store.VoteAverages(sprint.ID)
	if err != nil {
		return "", nil, fmt.Errorf("aggregating votes: %w", err)
	}

	var winner string
	var best float64
	scores := make([]FinalistScore, 0, len(fin))
	for _, en := range fin {
		avg := averages[en.BuilderID]
		score := FinalistScore{
			BuilderID:   en.BuilderID,
			BuilderName: en.BuilderName,
			VoteAverage: &avg,
			Total:       avg,
		}
		if sprint.FirstCompletionAt != nil {
			score.Pace = PaceScore(en.JoinedAt, en.CheckpointsCompleted, *sprint.FirstCompletionAt)
		}
		scores = append(scores, score)
		if winner == "" || avg > best {
			winner = en.BuilderID
			best = avg
		}
	}
	return winner, scores, nil
}

// FinalizeResult reports a completed winner determination.
type FinalizeResult struct {
	LeadID   string          `json:"lead_id"`
	SprintID string          `json:"sprint_id"`
	Winner   string          `json:"winner_builder_id"`
	Strategy string          `json:"strategy"`
	Scores   []FinalistScore `json:"scores"`
}

// Finalize determines and locks in the winner using the deployment's
// configured strategy. The winner write is terminal: repeat attempts fail
// with AlreadyFinalized and the stored winner is untouched.
func (e *Engine) Finalize(ctx context.Context, leadID, actor string) (*FinalizeResult, error) {
	unlock := e.lockLead(leadID)
	defer unlock()
	return e.finalizeLocked(ctx, leadID, actor, e.strategy)
}

// OpenVoting opens the fellow-voting phase. Requires a closed submission
// window and at least one finalist.
func (e *Engine) OpenVoting(ctx context.Context, leadID, actor string) error {
	unlock := e.lockLead(leadID)
	defer unlock()

	sprint, enrollments, milestoneCount, err := e.loadForScoring(leadID)
	if err != nil {
		return err
	}
	if sprint.VotingOpen {
		return errInvalidState("voting is already open on lead %s", leadID)
	}
	if ok, reason := e.canFinalize(sprint, enrollments, milestoneCount); !ok {
		if sprint.WinnerBuilderID != nil {
			return errAlreadyFinalized("winner already determined for lead %s", leadID)
		}
		return errInvalidState("cannot open voting: %s", reason)
	}
	if err := e.store.SetVotingOpen(sprint.ID, true); err != nil {
		return fmt.Errorf("opening voting: %w", err)
	}
	e.record("open_voting", actor, leadID, "", "", nil)
	return nil
}

// CastVote records a fellow's 1-5 vote for a finalist. Votes are append-only;
// the voting_open flag is the fast precondition against votes after close.
func (e *Engine) CastVote(ctx context.Context, leadID, builderID, fellowID string, score int) error {
	if score < 1 || score > 5 {
		return errValidation("vote must be between 1 and 5, got %d", score)
	}

	sprint, enrollments, milestoneCount, err := e.loadForScoring(leadID)
	if err != nil {
		return err
	}
	if !sprint.VotingOpen {
		return errInvalidState("voting is not open on lead %s", leadID)
	}
	isFinalist := false
	for _, en := range finalists(enrollments, milestoneCount) {
		if en.BuilderID == builderID {
			isFinalist = true
			break
		}
	}
	if !isFinalist {
		return errInvalidState("builder %s is not a finalist", builderID)
	}
	if err := e.store.CastVote(sprint.ID, builderID, fellowID, score); err != nil {
		return fmt.Errorf("recording vote: %w", err)
	}
	e.metrics.VoteCast()
	return nil
}

// CloseVoting ends the voting phase and finalizes the winner from vote
// aggregates. Fails with InsufficientVotes below the vote floor and
// AlreadyFinalized if a winner is already locked in.
func (e *Engine) CloseVoting(ctx context.Context, leadID, actor string) (*FinalizeResult, error) {
	unlock := e.lockLead(leadID)
	defer unlock()

	sprint, err := e.scoringSprint(leadID)
	if err != nil {
		return nil, err
	}
	if !sprint.VotingOpen {
		if sprint.WinnerBuilderID != nil {
			return nil, errAlreadyFinalized("winner already determined for lead %s", leadID)
		}
		return nil, errInvalidState("voting is not open on lead %s", leadID)
	}
	return e.finalizeLocked(ctx, leadID, actor, &VotingStrategy{store: e.store})
}

// finalizeLocked runs winner determination under an already-held lead lock.
func (e *Engine) finalizeLocked(ctx context.Context, leadID, actor string, strategy WinnerStrategy) (*FinalizeResult, error) {
	sprint, enrollments, milestoneCount, err := e.loadForScoring(leadID)
	if err != nil {
		return nil, err
	}
	if sprint.WinnerBuilderID != nil {
		return nil, errAlreadyFinalized("winner already determined for lead %s", leadID)
	}
	if ok, reason := e.canFinalize(sprint, enrollments, milestoneCount); !ok {
		return nil, errInvalidState("cannot finalize: %s", reason)
	}

	fin := finalists(enrollments, milestoneCount)
	winner, scores, err := strategy.Determine(sprint, fin)
	if err != nil {
		return nil, err
	}

	ok, err := e.store.SetWinner(sprint.ID, winner, e.now())
	if err != nil {
		return nil, fmt.Errorf("recording winner: %w", err)
	}
	if !ok {
		return nil, errAlreadyFinalized("winner already determined for lead %s", leadID)
	}
	if err := e.store.ReleaseRoster(sprint.ID); err != nil {
		return nil, fmt.Errorf("releasing roster: %w", err)
	}
	if err := e.store.UpdateLeadStatus(leadID, db.LeadLive); err != nil {
		return nil, fmt.Errorf("transitioning lead to live: %w", err)
	}

	e.metrics.SprintFinalized()
	e.record("finalize_sprint", actor, leadID, winner, fmt.Sprintf("strategy=%s", strategy.Name()), nil)
	return &FinalizeResult{
		LeadID:   leadID,
		SprintID: sprint.ID,
		Winner:   winner,
		Strategy: strategy.Name(),
		Scores:   scores,
	}, nil
}

// scoringSprint resolves the sprint a scoring operation targets. When no
// sprint is active but the latest one was finalized, the caller gets
// AlreadyFinalized rather than NotFound, so repeat finalize/close calls
// report the correct condition.
func (e *Engine) scoringSprint(leadID string) (*db.Sprint, error) {
	sprint, err := e.activeSprint(leadID)
	if err == nil {
		return sprint, nil
	}
	if KindOf(err) != KindNotFound {
		return nil, err
	}
	latest, latestErr := e.store.GetLatestSprint(leadID)
	if latestErr == nil && latest.WinnerBuilderID != nil {
		return nil, errAlreadyFinalized("winner already determined for lead %s", leadID)
	}
	return nil, err
}

func (e *Engine) loadForScoring(leadID string) (*db.Sprint, []*db.Enrollment, int, error) {
	sprint, err := e.scoringSprint(leadID)
	if err != nil {
		return nil, nil, 0, err
	}
	e.syncWindow(sprint)
	enrollments, err := e.store.ListEnrollments(sprint.ID)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("loading roster: %w", err)
	}
	milestones, err := e.store.GetMilestones(leadID)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("loading milestones: %w", err)
	}
	return sprint, enrollments, len(milestones), nil
}
