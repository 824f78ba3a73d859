package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opencurate/curation-engine/pkg/models"
	"github.com/opencurate/curation-engine/pkg/repositories"
)

// WeightService is the weight budget ledger. Total weight grows via
// rewards (or external grants); used weight is derived from active vote
// records, so there is no explicit debit anywhere.
type WeightService interface {
	// Account returns the user's account with used and available weight
	// filled in.
	Account(ctx context.Context, userID uuid.UUID) (*models.WeightAccount, error)

	// Available returns totalWeight − sum(active vote weights).
	Available(ctx context.Context, userID uuid.UUID) (int64, error)

	// AvailableForUpdate locks the user's account row before computing
	// availability, serializing concurrent budget checks for the same
	// voter. Must run inside a transaction; the lock holds until it ends.
	AvailableForUpdate(ctx context.Context, userID uuid.UUID) (int64, error)

	// Grant credits weight from outside the consensus loop (account
	// provisioning). Reward credits go through RewardService instead.
	Grant(ctx context.Context, userID uuid.UUID, amount int64) error
}

type weightService struct {
	weights repositories.WeightRepository
	votes   repositories.VoteRepository
	logger  *zap.Logger
}

// NewWeightService creates a new WeightService.
func NewWeightService(weights repositories.WeightRepository, votes repositories.VoteRepository, logger *zap.Logger) WeightService {
	return &weightService{
		weights: weights,
		votes:   votes,
		logger:  logger.Named("weight-service"),
	}
}

var _ WeightService = (*weightService)(nil)

func (s *weightService) Account(ctx context.Context, userID uuid.UUID) (*models.WeightAccount, error) {
	account, err := s.weights.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get weight account: %w", err)
	}

	used, err := s.votes.CommittedWeight(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("sum committed weight: %w", err)
	}

	account.UsedWeight = used
	return account, nil
}

func (s *weightService) Available(ctx context.Context, userID uuid.UUID) (int64, error) {
	account, err := s.Account(ctx, userID)
	if err != nil {
		return 0, err
	}
	return account.Available(), nil
}

func (s *weightService) AvailableForUpdate(ctx context.Context, userID uuid.UUID) (int64, error) {
	account, err := s.weights.Lock(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("lock weight account: %w", err)
	}

	used, err := s.votes.CommittedWeight(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("sum committed weight: %w", err)
	}

	account.UsedWeight = used
	return account.Available(), nil
}

func (s *weightService) Grant(ctx context.Context, userID uuid.UUID, amount int64) error {
	if err := s.weights.Credit(ctx, userID, amount); err != nil {
		s.logger.Error("Failed to grant weight",
			zap.String("user_id", userID.String()),
			zap.Int64("amount", amount),
			zap.Error(err))
		return fmt.Errorf("grant weight: %w", err)
	}

	s.logger.Info("Weight granted",
		zap.String("user_id", userID.String()),
		zap.Int64("amount", amount))
	return nil
}
