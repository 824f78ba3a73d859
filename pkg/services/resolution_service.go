package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opencurate/curation-engine/pkg/apperrors"
	"github.com/opencurate/curation-engine/pkg/catalog"
	"github.com/opencurate/curation-engine/pkg/metrics"
	"github.com/opencurate/curation-engine/pkg/models"
	"github.com/opencurate/curation-engine/pkg/repositories"
)

// ResolutionService is the leading-resolution engine. Resolve recomputes
// the leader of one (project, field) pair from the vote ledger, appends
// to the leadership log on a transition, refreshes the field-state
// cache, and triggers acceptance rewards and the rank aggregate.
//
// Resolve must run inside the same transaction as the vote write that
// triggered it, with the field-state row already locked, so the "latest
// log entry" comparison can never be stale.
type ResolutionService interface {
	Resolve(ctx context.Context, projectID uuid.UUID, fieldKey string) (*models.FieldState, error)

	// Leader returns the field's current leading candidate, or nil when
	// no candidate leads.
	Leader(ctx context.Context, projectID uuid.UUID, fieldKey string) (*models.Candidate, error)

	// History returns the field's leadership log, newest first.
	History(ctx context.Context, projectID uuid.UUID, fieldKey string) ([]*models.LeadershipEntry, error)
}

type resolutionService struct {
	votes      repositories.VoteRepository
	candidates repositories.CandidateRepository
	leadership repositories.LeadershipRepository
	projects   repositories.ProjectRepository
	rewards    RewardService
	ranks      RankService
	notify     NotificationSink
	catalog    *catalog.Catalog
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewResolutionService creates a new ResolutionService.
func NewResolutionService(
	votes repositories.VoteRepository,
	candidates repositories.CandidateRepository,
	leadership repositories.LeadershipRepository,
	projects repositories.ProjectRepository,
	rewards RewardService,
	ranks RankService,
	notify NotificationSink,
	cat *catalog.Catalog,
	m *metrics.Metrics,
	logger *zap.Logger,
) ResolutionService {
	return &resolutionService{
		votes:      votes,
		candidates: candidates,
		leadership: leadership,
		projects:   projects,
		rewards:    rewards,
		ranks:      ranks,
		notify:     notify,
		catalog:    cat,
		metrics:    m,
		logger:     logger.Named("resolution-service"),
	}
}

var _ ResolutionService = (*resolutionService)(nil)

func (s *resolutionService) Resolve(ctx context.Context, projectID uuid.UUID, fieldKey string) (*models.FieldState, error) {
	desc, err := s.catalog.Descriptor(fieldKey)
	if err != nil {
		return nil, err
	}

	tallies, err := s.votes.AggregateByCandidate(ctx, projectID, fieldKey)
	if err != nil {
		return nil, fmt.Errorf("aggregate votes: %w", err)
	}

	// The aggregation is ordered by weight descending, then candidate
	// submission time ascending: ties go to the earliest submission.
	var winner *models.CandidateTally
	var winnerID *uuid.UUID
	if len(tallies) > 0 {
		winner = &tallies[0]
		winnerID = &winner.CandidateID
	}

	latest, err := s.leadership.Latest(ctx, projectID, fieldKey)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("get latest leadership entry: %w", err)
	}

	changed := latest == nil || !latest.SameLeader(winnerID)

	accepted := winner != nil && winner.Voters >= desc.Quorum && winner.Weight >= desc.MinWeight
	newlyAccepted := accepted && (changed || !latest.Accepted)

	// The reward-idempotency check scans accepted history, so it must
	// precede the append of the new accepted entry.
	if newlyAccepted && desc.Essential {
		if err := s.rewards.RewardForAcceptance(ctx, projectID, fieldKey, winner.CandidateID); err != nil {
			return nil, fmt.Errorf("issue acceptance reward: %w", err)
		}
	}

	if changed || newlyAccepted {
		entry := &models.LeadershipEntry{
			ProjectID:   projectID,
			FieldKey:    fieldKey,
			CandidateID: winnerID,
			Accepted:    accepted,
		}
		if err := s.leadership.Append(ctx, entry); err != nil {
			return nil, fmt.Errorf("append leadership entry: %w", err)
		}
	}

	state := &models.FieldState{
		ProjectID:          projectID,
		FieldKey:           fieldKey,
		LeadingCandidateID: winnerID,
		Accepted:           accepted,
	}
	if winner != nil {
		state.LeadingWeight = winner.Weight
		state.VoterCount = winner.Voters
	}
	if err := s.projects.UpsertFieldState(ctx, state); err != nil {
		return nil, fmt.Errorf("update field state: %w", err)
	}

	if _, err := s.ranks.Recompute(ctx, projectID); err != nil {
		return nil, fmt.Errorf("refresh rank: %w", err)
	}

	if changed {
		s.metrics.LeadershipChanges.Inc()
		s.notify.LeaderChanged(ctx, projectID, fieldKey, winnerID)
		s.logger.Info("Field leadership changed",
			zap.String("project_id", projectID.String()),
			zap.String("field_key", fieldKey),
			zap.Int64("leading_weight", state.LeadingWeight))
	}
	if newlyAccepted {
		s.metrics.FieldsAccepted.Inc()
	}

	return state, nil
}

func (s *resolutionService) Leader(ctx context.Context, projectID uuid.UUID, fieldKey string) (*models.Candidate, error) {
	state, err := s.projects.GetFieldState(ctx, projectID, fieldKey)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get field state: %w", err)
	}
	if state.LeadingCandidateID == nil {
		return nil, nil
	}

	candidate, err := s.candidates.Get(ctx, *state.LeadingCandidateID)
	if err != nil {
		return nil, fmt.Errorf("get leading candidate: %w", err)
	}
	return candidate, nil
}

func (s *resolutionService) History(ctx context.Context, projectID uuid.UUID, fieldKey string) ([]*models.LeadershipEntry, error) {
	entries, err := s.leadership.History(ctx, projectID, fieldKey)
	if err != nil {
		return nil, fmt.Errorf("get leadership history: %w", err)
	}
	return entries, nil
}
