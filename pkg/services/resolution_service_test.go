package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_HighestWeightWins(t *testing.T) {
	f := newFixture(t, testCatalog(t))
	ctx := context.Background()

	projectID := uuid.New()
	c1 := f.submit(t, projectID, "license", uuid.New(), "MIT")
	c2 := f.submit(t, projectID, "license", uuid.New(), "Apache-2.0")

	v1, v2 := uuid.New(), uuid.New()
	f.grant(t, v1, 100)
	f.grant(t, v2, 100)

	_, err := f.voteSvc.CastVote(ctx, v1, projectID, "license", c1.ID, 30)
	require.NoError(t, err)
	_, err = f.voteSvc.CastVote(ctx, v2, projectID, "license", c2.ID, 70)
	require.NoError(t, err)

	leader, err := f.resolution.Leader(ctx, projectID, "license")
	require.NoError(t, err)
	require.NotNil(t, leader)
	assert.Equal(t, c2.ID, leader.ID)
}

func TestResolve_TieGoesToEarliestSubmission(t *testing.T) {
	f := newFixture(t, testCatalog(t))
	ctx := context.Background()

	projectID := uuid.New()
	earlier := f.submit(t, projectID, "license", uuid.New(), "MIT")
	later := f.submit(t, projectID, "license", uuid.New(), "Apache-2.0")

	v1, v2 := uuid.New(), uuid.New()
	f.grant(t, v1, 100)
	f.grant(t, v2, 100)

	// The later submission gets its votes first; equal weight must still
	// fall to the earlier submission.
	_, err := f.voteSvc.CastVote(ctx, v2, projectID, "license", later.ID, 50)
	require.NoError(t, err)
	_, err = f.voteSvc.CastVote(ctx, v1, projectID, "license", earlier.ID, 50)
	require.NoError(t, err)

	leader, err := f.resolution.Leader(ctx, projectID, "license")
	require.NoError(t, err)
	require.NotNil(t, leader)
	assert.Equal(t, earlier.ID, leader.ID)
}

func TestResolve_LeadershipLogAppendsAndSupersedes(t *testing.T) {
	f := newFixture(t, testCatalog(t))
	ctx := context.Background()

	projectID := uuid.New()
	c1 := f.submit(t, projectID, "license", uuid.New(), "MIT")
	c2 := f.submit(t, projectID, "license", uuid.New(), "Apache-2.0")

	v1, v2 := uuid.New(), uuid.New()
	f.grant(t, v1, 100)
	f.grant(t, v2, 100)

	_, err := f.voteSvc.CastVote(ctx, v1, projectID, "license", c1.ID, 30)
	require.NoError(t, err)
	_, err = f.voteSvc.CastVote(ctx, v2, projectID, "license", c2.ID, 70)
	require.NoError(t, err)

	history, err := f.resolution.History(ctx, projectID, "license")
	require.NoError(t, err)
	require.Len(t, history, 2)

	// Newest first: the c2 takeover, then the c1 initial entry.
	assert.Equal(t, c2.ID, *history[0].CandidateID)
	assert.False(t, history[0].Superseded)
	assert.Equal(t, c1.ID, *history[1].CandidateID)
	assert.True(t, history[1].Superseded)
}

func TestResolve_NoEntryWhenLeaderUnchanged(t *testing.T) {
	f := newFixture(t, testCatalog(t))
	ctx := context.Background()

	projectID := uuid.New()
	c1 := f.submit(t, projectID, "license", uuid.New(), "MIT")

	v1, v2 := uuid.New(), uuid.New()
	f.grant(t, v1, 100)
	f.grant(t, v2, 100)

	_, err := f.voteSvc.CastVote(ctx, v1, projectID, "license", c1.ID, 30)
	require.NoError(t, err)

	history, err := f.resolution.History(ctx, projectID, "license")
	require.NoError(t, err)
	baseline := len(history)

	// license accepts on the first vote (quorum 1, min weight 1), so a
	// second reinforcing vote changes neither leader nor acceptance: no
	// new log entry.
	_, err = f.voteSvc.CastVote(ctx, v2, projectID, "license", c1.ID, 20)
	require.NoError(t, err)

	history, err = f.resolution.History(ctx, projectID, "license")
	require.NoError(t, err)
	assert.Len(t, history, baseline)
}

func TestResolve_AcceptanceRequiresQuorumAndWeight(t *testing.T) {
	f := newFixture(t, testCatalog(t))
	ctx := context.Background()

	projectID := uuid.New()
	candidate := f.submit(t, projectID, "name", uuid.New(), "Acme")

	v1, v2 := uuid.New(), uuid.New()
	f.grant(t, v1, 100)
	f.grant(t, v2, 100)

	// One voter with enough weight: quorum (2) not met.
	_, err := f.voteSvc.CastVote(ctx, v1, projectID, "name", candidate.ID, 80)
	require.NoError(t, err)

	state, err := f.projects.GetFieldState(ctx, projectID, "name")
	require.NoError(t, err)
	assert.False(t, state.Accepted)

	// Second voter tips the quorum while weight stays above 60.
	_, err = f.voteSvc.CastVote(ctx, v2, projectID, "name", candidate.ID, 10)
	require.NoError(t, err)

	state, err = f.projects.GetFieldState(ctx, projectID, "name")
	require.NoError(t, err)
	assert.True(t, state.Accepted)
	assert.Equal(t, int64(90), state.LeadingWeight)
	assert.Equal(t, 2, state.VoterCount)

	// The acceptance transition is recorded in the log even though the
	// leader did not change.
	latest, err := f.leadership.Latest(ctx, projectID, "name")
	require.NoError(t, err)
	assert.True(t, latest.Accepted)
	assert.Equal(t, candidate.ID, *latest.CandidateID)
}

func TestResolve_EssentialAcceptanceRewardsSubmitterOnce(t *testing.T) {
	f := newFixture(t, testCatalog(t))
	ctx := context.Background()

	projectID := uuid.New()
	submitter := uuid.New()
	candidate := f.submit(t, projectID, "name", submitter, "Acme")

	v1, v2 := uuid.New(), uuid.New()
	f.grant(t, v1, 200)
	f.grant(t, v2, 200)

	_, err := f.voteSvc.CastVote(ctx, v1, projectID, "name", candidate.ID, 80)
	require.NoError(t, err)

	account, err := f.weights.Account(ctx, submitter)
	require.NoError(t, err)
	assert.Zero(t, account.TotalWeight, "no reward before acceptance")

	_, err = f.voteSvc.CastVote(ctx, v2, projectID, "name", candidate.ID, 10)
	require.NoError(t, err)

	// coefficient 20 × weight unit 10 × 50% = 100.
	account, err = f.weights.Account(ctx, submitter)
	require.NoError(t, err)
	assert.Equal(t, int64(100), account.TotalWeight)

	// Acceptance is lost when v2 moves away, then regained when it comes
	// back. The submitter must not be paid again.
	rival := f.submit(t, projectID, "name", uuid.New(), "Acme Corp")
	_, err = f.voteSvc.SwitchVote(ctx, v2, projectID, "name", rival.ID)
	require.NoError(t, err)
	_, err = f.voteSvc.SwitchVote(ctx, v2, projectID, "name", candidate.ID)
	require.NoError(t, err)

	state, err := f.projects.GetFieldState(ctx, projectID, "name")
	require.NoError(t, err)
	require.True(t, state.Accepted)

	account, err = f.weights.Account(ctx, submitter)
	require.NoError(t, err)
	assert.Equal(t, int64(100), account.TotalWeight)
}

func TestResolve_NonEssentialAcceptancePaysNoReward(t *testing.T) {
	f := newFixture(t, testCatalog(t))
	ctx := context.Background()

	projectID := uuid.New()
	submitter := uuid.New()
	candidate := f.submit(t, projectID, "license", submitter, "MIT")

	voter := uuid.New()
	f.grant(t, voter, 100)

	_, err := f.voteSvc.CastVote(ctx, voter, projectID, "license", candidate.ID, 10)
	require.NoError(t, err)

	state, err := f.projects.GetFieldState(ctx, projectID, "license")
	require.NoError(t, err)
	require.True(t, state.Accepted)

	account, err := f.weights.Account(ctx, submitter)
	require.NoError(t, err)
	assert.Zero(t, account.TotalWeight)
}

func TestLeader_NilWhenNoVotes(t *testing.T) {
	f := newFixture(t, testCatalog(t))
	ctx := context.Background()

	projectID := uuid.New()
	f.submit(t, projectID, "license", uuid.New(), "MIT")

	leader, err := f.resolution.Leader(ctx, projectID, "license")
	require.NoError(t, err)
	assert.Nil(t, leader)
}
