package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/opencurate/curation-engine/pkg/apperrors"
	"github.com/opencurate/curation-engine/pkg/catalog"
	"github.com/opencurate/curation-engine/pkg/metrics"
	"github.com/opencurate/curation-engine/pkg/models"
	"github.com/opencurate/curation-engine/pkg/repositories"
)

// fakeData is the shared in-memory store behind the fake repositories.
// Its clock is a monotonic counter so ordering-sensitive behavior (log
// recency, the earliest-submission tie-break) is deterministic.
type fakeData struct {
	mu         sync.Mutex
	candidates map[uuid.UUID]*models.Candidate
	votes      map[uuid.UUID]*models.VoteRecord
	log        []*models.LeadershipEntry
	weights    map[uuid.UUID]int64
	projects   map[uuid.UUID]*models.Project
	fields     map[string]*models.FieldState
	ranks      map[uuid.UUID]*models.RankSnapshot
	seq        int64
}

func newFakeData() *fakeData {
	return &fakeData{
		candidates: make(map[uuid.UUID]*models.Candidate),
		votes:      make(map[uuid.UUID]*models.VoteRecord),
		weights:    make(map[uuid.UUID]int64),
		projects:   make(map[uuid.UUID]*models.Project),
		fields:     make(map[string]*models.FieldState),
		ranks:      make(map[uuid.UUID]*models.RankSnapshot),
	}
}

func (d *fakeData) now() time.Time {
	d.seq++
	return time.Unix(0, d.seq)
}

func fieldStateKey(projectID uuid.UUID, fieldKey string) string {
	return projectID.String() + "/" + fieldKey
}

// passthroughTx satisfies database.TxRunner without a database.
type passthroughTx struct{}

func (passthroughTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeCandidateRepo struct{ d *fakeData }

func (r *fakeCandidateRepo) Create(_ context.Context, candidate *models.Candidate) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if candidate.ID == uuid.Nil {
		candidate.ID = uuid.New()
	}
	candidate.CreatedAt = r.d.now()
	c := *candidate
	r.d.candidates[c.ID] = &c
	return nil
}

func (r *fakeCandidateRepo) Get(_ context.Context, id uuid.UUID) (*models.Candidate, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	c, ok := r.d.candidates[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *fakeCandidateRepo) ListByField(_ context.Context, projectID uuid.UUID, fieldKey string) ([]*models.Candidate, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	var out []*models.Candidate
	for _, c := range r.d.candidates {
		if c.ProjectID == projectID && c.FieldKey == fieldKey {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *fakeCandidateRepo) DistinctFields(_ context.Context, projectID uuid.UUID) ([]string, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	seen := make(map[string]bool)
	for _, c := range r.d.candidates {
		if c.ProjectID == projectID {
			seen[c.FieldKey] = true
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

type fakeVoteRepo struct{ d *fakeData }

func (r *fakeVoteRepo) Create(_ context.Context, record *models.VoteRecord) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	record.CreatedAt = r.d.now()
	record.UpdatedAt = record.CreatedAt
	v := *record
	r.d.votes[v.ID] = &v
	return nil
}

func (r *fakeVoteRepo) GetForField(_ context.Context, voterID, projectID uuid.UUID, fieldKey string) (*models.VoteRecord, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	for _, v := range r.d.votes {
		if v.VoterID == voterID && v.ProjectID == projectID && v.FieldKey == fieldKey {
			vp := *v
			return &vp, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (r *fakeVoteRepo) Retarget(_ context.Context, id, candidateID uuid.UUID, weight int64) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	v, ok := r.d.votes[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	v.CandidateID = candidateID
	v.Weight = weight
	v.UpdatedAt = r.d.now()
	return nil
}

func (r *fakeVoteRepo) CommittedWeight(_ context.Context, voterID uuid.UUID) (int64, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	var total int64
	for _, v := range r.d.votes {
		if v.VoterID == voterID {
			total += v.Weight
		}
	}
	return total, nil
}

// AggregateByCandidate mirrors the SQL aggregation: weight descending,
// then candidate submission time ascending, then candidate id ascending.
func (r *fakeVoteRepo) AggregateByCandidate(_ context.Context, projectID uuid.UUID, fieldKey string) ([]models.CandidateTally, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()

	byCandidate := make(map[uuid.UUID]*models.CandidateTally)
	voters := make(map[uuid.UUID]map[uuid.UUID]bool)
	for _, v := range r.d.votes {
		if v.ProjectID != projectID || v.FieldKey != fieldKey {
			continue
		}
		t, ok := byCandidate[v.CandidateID]
		if !ok {
			c := r.d.candidates[v.CandidateID]
			t = &models.CandidateTally{CandidateID: v.CandidateID, SubmittedAt: c.CreatedAt}
			byCandidate[v.CandidateID] = t
			voters[v.CandidateID] = make(map[uuid.UUID]bool)
		}
		t.Weight += v.Weight
		voters[v.CandidateID][v.VoterID] = true
	}

	var tallies []models.CandidateTally
	for id, t := range byCandidate {
		t.Voters = len(voters[id])
		tallies = append(tallies, *t)
	}
	sort.Slice(tallies, func(i, j int) bool {
		if tallies[i].Weight != tallies[j].Weight {
			return tallies[i].Weight > tallies[j].Weight
		}
		if !tallies[i].SubmittedAt.Equal(tallies[j].SubmittedAt) {
			return tallies[i].SubmittedAt.Before(tallies[j].SubmittedAt)
		}
		return tallies[i].CandidateID.String() < tallies[j].CandidateID.String()
	})
	return tallies, nil
}

type fakeLeadershipRepo struct{ d *fakeData }

func (r *fakeLeadershipRepo) Append(_ context.Context, entry *models.LeadershipEntry) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	entry.CreatedAt = r.d.now()
	entry.Superseded = false
	for _, e := range r.d.log {
		if e.ProjectID == entry.ProjectID && e.FieldKey == entry.FieldKey {
			e.Superseded = true
		}
	}
	e := *entry
	r.d.log = append(r.d.log, &e)
	return nil
}

func (r *fakeLeadershipRepo) Latest(_ context.Context, projectID uuid.UUID, fieldKey string) (*models.LeadershipEntry, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	for i := len(r.d.log) - 1; i >= 0; i-- {
		e := r.d.log[i]
		if e.ProjectID == projectID && e.FieldKey == fieldKey {
			ep := *e
			return &ep, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (r *fakeLeadershipRepo) History(_ context.Context, projectID uuid.UUID, fieldKey string) ([]*models.LeadershipEntry, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	var out []*models.LeadershipEntry
	for i := len(r.d.log) - 1; i >= 0; i-- {
		e := r.d.log[i]
		if e.ProjectID == projectID && e.FieldKey == fieldKey {
			ep := *e
			out = append(out, &ep)
		}
	}
	return out, nil
}

func (r *fakeLeadershipRepo) HasAcceptedBySubmitter(_ context.Context, projectID uuid.UUID, fieldKey string, submitterID uuid.UUID) (bool, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	for _, e := range r.d.log {
		if e.ProjectID != projectID || e.FieldKey != fieldKey || !e.Accepted || e.CandidateID == nil {
			continue
		}
		if c, ok := r.d.candidates[*e.CandidateID]; ok && c.SubmitterID == submitterID {
			return true, nil
		}
	}
	return false, nil
}

type fakeWeightRepo struct{ d *fakeData }

func (r *fakeWeightRepo) Get(_ context.Context, userID uuid.UUID) (*models.WeightAccount, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	return &models.WeightAccount{UserID: userID, TotalWeight: r.d.weights[userID]}, nil
}

func (r *fakeWeightRepo) Lock(ctx context.Context, userID uuid.UUID) (*models.WeightAccount, error) {
	return r.Get(ctx, userID)
}

func (r *fakeWeightRepo) Credit(_ context.Context, userID uuid.UUID, amount int64) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	r.d.weights[userID] += amount
	return nil
}

type fakeProjectRepo struct{ d *fakeData }

func (r *fakeProjectRepo) Ensure(_ context.Context, id uuid.UUID) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	if _, ok := r.d.projects[id]; !ok {
		r.d.projects[id] = &models.Project{ID: id, CreatedAt: r.d.now()}
	}
	return nil
}

func (r *fakeProjectRepo) Get(_ context.Context, id uuid.UUID) (*models.Project, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	p, ok := r.d.projects[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	pp := *p
	return &pp, nil
}

func (r *fakeProjectRepo) SetPublished(_ context.Context, id uuid.UUID, published bool) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	p, ok := r.d.projects[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	p.Published = published
	return nil
}

func (r *fakeProjectRepo) ListIDs(_ context.Context) ([]uuid.UUID, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	var projects []*models.Project
	for _, p := range r.d.projects {
		projects = append(projects, p)
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].CreatedAt.Before(projects[j].CreatedAt) })
	ids := make([]uuid.UUID, len(projects))
	for i, p := range projects {
		ids[i] = p.ID
	}
	return ids, nil
}

func (r *fakeProjectRepo) EnsureFieldState(_ context.Context, projectID uuid.UUID, fieldKey string) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	// project_fields references projects, like the real schema.
	if _, ok := r.d.projects[projectID]; !ok {
		return fmt.Errorf("failed to ensure field state: project %s does not exist", projectID)
	}
	key := fieldStateKey(projectID, fieldKey)
	if _, ok := r.d.fields[key]; !ok {
		r.d.fields[key] = &models.FieldState{ProjectID: projectID, FieldKey: fieldKey, UpdatedAt: r.d.now()}
	}
	return nil
}

func (r *fakeProjectRepo) LockFieldState(ctx context.Context, projectID uuid.UUID, fieldKey string) (*models.FieldState, error) {
	if err := r.EnsureFieldState(ctx, projectID, fieldKey); err != nil {
		return nil, err
	}
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	s := *r.d.fields[fieldStateKey(projectID, fieldKey)]
	return &s, nil
}

func (r *fakeProjectRepo) UpsertFieldState(_ context.Context, state *models.FieldState) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	state.UpdatedAt = r.d.now()
	s := *state
	r.d.fields[fieldStateKey(state.ProjectID, state.FieldKey)] = &s
	return nil
}

func (r *fakeProjectRepo) GetFieldState(_ context.Context, projectID uuid.UUID, fieldKey string) (*models.FieldState, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	s, ok := r.d.fields[fieldStateKey(projectID, fieldKey)]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	sp := *s
	return &sp, nil
}

func (r *fakeProjectRepo) ListFieldStates(_ context.Context, projectID uuid.UUID) ([]*models.FieldState, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	var out []*models.FieldState
	for _, s := range r.d.fields {
		if s.ProjectID == projectID {
			sp := *s
			out = append(out, &sp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FieldKey < out[j].FieldKey })
	return out, nil
}

func (r *fakeProjectRepo) DeleteFieldStatesExcept(_ context.Context, projectID uuid.UUID, keep []string) error {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	keepSet := make(map[string]bool, len(keep))
	for _, k := range keep {
		keepSet[k] = true
	}
	for key, s := range r.d.fields {
		if s.ProjectID == projectID && !keepSet[s.FieldKey] {
			delete(r.d.fields, key)
		}
	}
	return nil
}

type fakeRankRepo struct {
	d *fakeData

	// failFor makes Upsert fail for specific projects, to exercise
	// partial-failure paths.
	failFor map[uuid.UUID]error
}

func (r *fakeRankRepo) Upsert(_ context.Context, snapshot *models.RankSnapshot) error {
	if err := r.failFor[snapshot.ProjectID]; err != nil {
		return err
	}
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	snapshot.UpdatedAt = r.d.now()
	s := *snapshot
	r.d.ranks[s.ProjectID] = &s
	return nil
}

func (r *fakeRankRepo) Get(_ context.Context, projectID uuid.UUID) (*models.RankSnapshot, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	s, ok := r.d.ranks[projectID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	sp := *s
	return &sp, nil
}

func (r *fakeRankRepo) ListTop(_ context.Context, limit int) ([]*models.RankSnapshot, error) {
	r.d.mu.Lock()
	defer r.d.mu.Unlock()
	var out []*models.RankSnapshot
	for _, s := range r.d.ranks {
		sp := *s
		out = append(out, &sp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TrustScore != out[j].TrustScore {
			return out[i].TrustScore > out[j].TrustScore
		}
		return out[i].PublishedGenesisWeight > out[j].PublishedGenesisWeight
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Interface compliance for the fakes.
var (
	_ repositories.CandidateRepository  = (*fakeCandidateRepo)(nil)
	_ repositories.VoteRepository       = (*fakeVoteRepo)(nil)
	_ repositories.LeadershipRepository = (*fakeLeadershipRepo)(nil)
	_ repositories.WeightRepository     = (*fakeWeightRepo)(nil)
	_ repositories.ProjectRepository    = (*fakeProjectRepo)(nil)
	_ repositories.RankRepository       = (*fakeRankRepo)(nil)
)

// fixture wires the full service graph over the in-memory store.
type fixture struct {
	data *fakeData
	cat  *catalog.Catalog

	candidates *fakeCandidateRepo
	votes      *fakeVoteRepo
	leadership *fakeLeadershipRepo
	weightRepo *fakeWeightRepo
	projects   *fakeProjectRepo
	ranks      *fakeRankRepo

	weights    WeightService
	proposals  ProposalService
	rewards    RewardService
	rankSvc    RankService
	resolution ResolutionService
	voteSvc    VoteService
	recompute  RecomputeService
}

// testCatalog holds "name" (essential, quorum 2, min weight 60, genesis
// 200) plus a low-bar non-essential "license" and essential "website".
// weight_unit 10 and reward_percent 50 make the "name" reward 100.
func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New([]catalog.FieldDescriptor{
		{Key: "name", Coefficient: 20, Essential: true, Quorum: 2, MinWeight: 60},
		{Key: "website", Coefficient: 15, Essential: true, Quorum: 1, MinWeight: 30},
		{Key: "license", Coefficient: 10},
	}, 10, 50)
	require.NoError(t, err)
	return cat
}

func newFixture(t *testing.T, cat *catalog.Catalog) *fixture {
	t.Helper()

	d := newFakeData()
	f := &fixture{
		data:       d,
		cat:        cat,
		candidates: &fakeCandidateRepo{d},
		votes:      &fakeVoteRepo{d},
		leadership: &fakeLeadershipRepo{d},
		weightRepo: &fakeWeightRepo{d},
		projects:   &fakeProjectRepo{d},
		ranks:      &fakeRankRepo{d: d},
	}

	logger := zap.NewNop()
	m := metrics.NewNop()
	tx := passthroughTx{}

	f.weights = NewWeightService(f.weightRepo, f.votes, logger)
	f.rewards = NewRewardService(f.candidates, f.leadership, f.weightRepo, cat, m, logger)
	f.rankSvc = NewRankService(f.projects, f.ranks, cat, logger)
	f.resolution = NewResolutionService(
		f.votes, f.candidates, f.leadership, f.projects,
		f.rewards, f.rankSvc, NewLogNotificationSink(logger), cat, m, logger)
	f.proposals = NewProposalService(tx, f.candidates, f.projects, cat, m, logger)
	f.voteSvc = NewVoteService(
		tx, f.votes, f.candidates, f.projects,
		f.weights, f.resolution, NewLogActivitySink(logger), m, logger)
	f.recompute = NewRecomputeService(
		tx, f.candidates, f.votes, f.leadership, f.projects,
		f.rankSvc, cat, m, logger)

	return f
}

func (f *fixture) submit(t *testing.T, projectID uuid.UUID, fieldKey string, submitterID uuid.UUID, value string) *models.Candidate {
	t.Helper()
	c, err := f.proposals.SubmitCandidate(context.Background(), SubmitCandidateRequest{
		ProjectID:   projectID,
		FieldKey:    fieldKey,
		Value:       models.ScalarValue(value),
		SubmitterID: submitterID,
	})
	require.NoError(t, err)
	return c
}

func (f *fixture) grant(t *testing.T, userID uuid.UUID, amount int64) {
	t.Helper()
	require.NoError(t, f.weights.Grant(context.Background(), userID, amount))
}
