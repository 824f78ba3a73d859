package handlers

import (
	"context"

	"github.com/google/uuid"

	"github.com/opencurate/curation-engine/pkg/models"
	"github.com/opencurate/curation-engine/pkg/services"
)

// mockProposalService lets each test plug in just the behavior it needs.
type mockProposalService struct {
	submitFunc func(ctx context.Context, req services.SubmitCandidateRequest) (*models.Candidate, error)
	getFunc    func(ctx context.Context, id uuid.UUID) (*models.Candidate, error)
	listFunc   func(ctx context.Context, projectID uuid.UUID, fieldKey string) ([]*models.Candidate, error)
}

func (m *mockProposalService) SubmitCandidate(ctx context.Context, req services.SubmitCandidateRequest) (*models.Candidate, error) {
	return m.submitFunc(ctx, req)
}

func (m *mockProposalService) GetCandidate(ctx context.Context, id uuid.UUID) (*models.Candidate, error) {
	return m.getFunc(ctx, id)
}

func (m *mockProposalService) ListCandidates(ctx context.Context, projectID uuid.UUID, fieldKey string) ([]*models.Candidate, error) {
	return m.listFunc(ctx, projectID, fieldKey)
}

type mockVoteService struct {
	castFunc   func(ctx context.Context, voterID, projectID uuid.UUID, fieldKey string, candidateID uuid.UUID, weight int64) (*models.VoteRecord, error)
	switchFunc func(ctx context.Context, voterID, projectID uuid.UUID, fieldKey string, newCandidateID uuid.UUID) (*models.VoteRecord, error)
}

func (m *mockVoteService) CastVote(ctx context.Context, voterID, projectID uuid.UUID, fieldKey string, candidateID uuid.UUID, weight int64) (*models.VoteRecord, error) {
	return m.castFunc(ctx, voterID, projectID, fieldKey, candidateID, weight)
}

func (m *mockVoteService) SwitchVote(ctx context.Context, voterID, projectID uuid.UUID, fieldKey string, newCandidateID uuid.UUID) (*models.VoteRecord, error) {
	return m.switchFunc(ctx, voterID, projectID, fieldKey, newCandidateID)
}

type mockResolutionService struct {
	resolveFunc func(ctx context.Context, projectID uuid.UUID, fieldKey string) (*models.FieldState, error)
	leaderFunc  func(ctx context.Context, projectID uuid.UUID, fieldKey string) (*models.Candidate, error)
	historyFunc func(ctx context.Context, projectID uuid.UUID, fieldKey string) ([]*models.LeadershipEntry, error)
}

func (m *mockResolutionService) Resolve(ctx context.Context, projectID uuid.UUID, fieldKey string) (*models.FieldState, error) {
	return m.resolveFunc(ctx, projectID, fieldKey)
}

func (m *mockResolutionService) Leader(ctx context.Context, projectID uuid.UUID, fieldKey string) (*models.Candidate, error) {
	return m.leaderFunc(ctx, projectID, fieldKey)
}

func (m *mockResolutionService) History(ctx context.Context, projectID uuid.UUID, fieldKey string) ([]*models.LeadershipEntry, error) {
	return m.historyFunc(ctx, projectID, fieldKey)
}

var (
	_ services.ProposalService   = (*mockProposalService)(nil)
	_ services.VoteService       = (*mockVoteService)(nil)
	_ services.ResolutionService = (*mockResolutionService)(nil)
)
