package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencurate/curation-engine/pkg/models"
)

// buildVotedProject sets up a project with a contested "name" field and
// an accepted "license" field, all through the live path.
func buildVotedProject(t *testing.T, f *fixture) uuid.UUID {
	t.Helper()
	ctx := context.Background()

	projectID := uuid.New()
	nameA := f.submit(t, projectID, "name", uuid.New(), "Acme")
	nameB := f.submit(t, projectID, "name", uuid.New(), "Acme Inc")
	license := f.submit(t, projectID, "license", uuid.New(), "MIT")

	v1, v2, v3 := uuid.New(), uuid.New(), uuid.New()
	f.grant(t, v1, 100)
	f.grant(t, v2, 100)
	f.grant(t, v3, 100)

	_, err := f.voteSvc.CastVote(ctx, v1, projectID, "name", nameA.ID, 40)
	require.NoError(t, err)
	_, err = f.voteSvc.CastVote(ctx, v2, projectID, "name", nameB.ID, 50)
	require.NoError(t, err)
	_, err = f.voteSvc.CastVote(ctx, v3, projectID, "name", nameB.ID, 30)
	require.NoError(t, err)
	_, err = f.voteSvc.CastVote(ctx, v1, projectID, "license", license.ID, 10)
	require.NoError(t, err)

	return projectID
}

func TestRecomputeProject_ReproducesLiveState(t *testing.T) {
	f := newFixture(t, testCatalog(t))
	ctx := context.Background()

	projectID := buildVotedProject(t, f)

	liveStates, err := f.projects.ListFieldStates(ctx, projectID)
	require.NoError(t, err)
	liveRank, err := f.rankSvc.Get(ctx, projectID)
	require.NoError(t, err)

	// Corrupt the caches, then rebuild.
	for _, s := range liveStates {
		require.NoError(t, f.projects.UpsertFieldState(ctx, &models.FieldState{
			ProjectID: s.ProjectID,
			FieldKey:  s.FieldKey,
		}))
	}

	snapshot, err := f.recompute.RecomputeProject(ctx, projectID)
	require.NoError(t, err)
	assert.Equal(t, liveRank.PublishedGenesisWeight, snapshot.PublishedGenesisWeight)
	assert.Equal(t, liveRank.TransparencyPct, snapshot.TransparencyPct)

	rebuilt, err := f.projects.ListFieldStates(ctx, projectID)
	require.NoError(t, err)
	require.Len(t, rebuilt, len(liveStates))
	for i, s := range liveStates {
		assert.Equal(t, s.FieldKey, rebuilt[i].FieldKey)
		assert.Equal(t, s.LeadingCandidateID, rebuilt[i].LeadingCandidateID, s.FieldKey)
		assert.Equal(t, s.LeadingWeight, rebuilt[i].LeadingWeight, s.FieldKey)
		assert.Equal(t, s.VoterCount, rebuilt[i].VoterCount, s.FieldKey)
		assert.Equal(t, s.Accepted, rebuilt[i].Accepted, s.FieldKey)
	}
}

func TestRecomputeProject_Idempotent(t *testing.T) {
	f := newFixture(t, testCatalog(t))
	ctx := context.Background()

	projectID := buildVotedProject(t, f)

	first, err := f.recompute.RecomputeProject(ctx, projectID)
	require.NoError(t, err)
	statesAfterFirst, err := f.projects.ListFieldStates(ctx, projectID)
	require.NoError(t, err)

	second, err := f.recompute.RecomputeProject(ctx, projectID)
	require.NoError(t, err)
	statesAfterSecond, err := f.projects.ListFieldStates(ctx, projectID)
	require.NoError(t, err)

	assert.Equal(t, first.PublishedGenesisWeight, second.PublishedGenesisWeight)
	assert.Equal(t, first.TransparencyPct, second.TransparencyPct)
	require.Len(t, statesAfterSecond, len(statesAfterFirst))
	for i := range statesAfterFirst {
		assert.Equal(t, statesAfterFirst[i].LeadingCandidateID, statesAfterSecond[i].LeadingCandidateID)
		assert.Equal(t, statesAfterFirst[i].LeadingWeight, statesAfterSecond[i].LeadingWeight)
		assert.Equal(t, statesAfterFirst[i].Accepted, statesAfterSecond[i].Accepted)
	}
}

func TestRecomputeProject_DropsStaleFieldStates(t *testing.T) {
	f := newFixture(t, testCatalog(t))
	ctx := context.Background()

	projectID := buildVotedProject(t, f)

	// A cache row for a field with no candidates must not survive a
	// rebuild.
	require.NoError(t, f.projects.UpsertFieldState(ctx, &models.FieldState{
		ProjectID: projectID,
		FieldKey:  "website",
	}))

	_, err := f.recompute.RecomputeProject(ctx, projectID)
	require.NoError(t, err)

	_, err = f.projects.GetFieldState(ctx, projectID, "website")
	assert.Error(t, err)

	states, err := f.projects.ListFieldStates(ctx, projectID)
	require.NoError(t, err)
	assert.Len(t, states, 2)
}

func TestRecomputeAll_IsolatesFailures(t *testing.T) {
	f := newFixture(t, testCatalog(t))
	ctx := context.Background()

	healthy := buildVotedProject(t, f)
	broken := buildVotedProject(t, f)

	f.ranks.failFor = map[uuid.UUID]error{broken: errors.New("disk full")}

	rebuilt, err := f.recompute.RecomputeAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rebuilt)

	// The healthy project was still rebuilt.
	_, err = f.rankSvc.Get(ctx, healthy)
	assert.NoError(t, err)
}
