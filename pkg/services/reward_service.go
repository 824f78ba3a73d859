package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opencurate/curation-engine/pkg/catalog"
	"github.com/opencurate/curation-engine/pkg/metrics"
	"github.com/opencurate/curation-engine/pkg/repositories"
)

// RewardService pays submitters whose candidate becomes the accepted
// leader of an essential field. A submitter is paid at most once per
// (project, field); idempotency is decided by the leadership log, so a
// recompute or a re-acceptance after losing leadership never pays twice.
type RewardService interface {
	// AcceptanceReward returns the reward amount for the field:
	// coefficient × weight unit × reward percent.
	AcceptanceReward(fieldKey string) (int64, error)

	// RewardForAcceptance credits the candidate's submitter unless the
	// log already holds an accepted entry for one of their candidates on
	// this field. Must run before the new accepted entry is appended.
	RewardForAcceptance(ctx context.Context, projectID uuid.UUID, fieldKey string, candidateID uuid.UUID) error
}

type rewardService struct {
	candidates repositories.CandidateRepository
	leadership repositories.LeadershipRepository
	weights    repositories.WeightRepository
	catalog    *catalog.Catalog
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewRewardService creates a new RewardService.
func NewRewardService(
	candidates repositories.CandidateRepository,
	leadership repositories.LeadershipRepository,
	weights repositories.WeightRepository,
	cat *catalog.Catalog,
	m *metrics.Metrics,
	logger *zap.Logger,
) RewardService {
	return &rewardService{
		candidates: candidates,
		leadership: leadership,
		weights:    weights,
		catalog:    cat,
		metrics:    m,
		logger:     logger.Named("reward-service"),
	}
}

var _ RewardService = (*rewardService)(nil)

func (s *rewardService) AcceptanceReward(fieldKey string) (int64, error) {
	return s.catalog.AcceptanceReward(fieldKey)
}

func (s *rewardService) RewardForAcceptance(ctx context.Context, projectID uuid.UUID, fieldKey string, candidateID uuid.UUID) error {
	amount, err := s.catalog.AcceptanceReward(fieldKey)
	if err != nil {
		return err
	}

	candidate, err := s.candidates.Get(ctx, candidateID)
	if err != nil {
		return fmt.Errorf("get accepted candidate: %w", err)
	}

	rewarded, err := s.leadership.HasAcceptedBySubmitter(ctx, projectID, fieldKey, candidate.SubmitterID)
	if err != nil {
		return fmt.Errorf("check reward history: %w", err)
	}
	if rewarded {
		s.logger.Debug("Submitter already rewarded for field",
			zap.String("project_id", projectID.String()),
			zap.String("field_key", fieldKey),
			zap.String("submitter_id", candidate.SubmitterID.String()))
		return nil
	}

	if amount <= 0 {
		return nil
	}

	if err := s.weights.Credit(ctx, candidate.SubmitterID, amount); err != nil {
		return fmt.Errorf("credit reward: %w", err)
	}

	s.metrics.RewardsIssued.Inc()
	s.logger.Info("Acceptance reward issued",
		zap.String("project_id", projectID.String()),
		zap.String("field_key", fieldKey),
		zap.String("submitter_id", candidate.SubmitterID.String()),
		zap.Int64("amount", amount))

	return nil
}
