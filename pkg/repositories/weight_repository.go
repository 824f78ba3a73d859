package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/opencurate/curation-engine/pkg/database"
	"github.com/opencurate/curation-engine/pkg/models"
)

// WeightRepository defines data access for weight accounts. Total weight
// only ever increases; there is no debit operation because used weight
// is derived from active vote records.
type WeightRepository interface {
	// Get returns the account, or a zero-weight account when the user has
	// never been credited.
	Get(ctx context.Context, userID uuid.UUID) (*models.WeightAccount, error)
	// Lock loads the account FOR UPDATE, creating a zero-weight row first
	// when absent. Holding the row lock serializes the voter's budget
	// checks across transactions; field-state locks alone cannot do that
	// because one voter may write to many fields at once.
	Lock(ctx context.Context, userID uuid.UUID) (*models.WeightAccount, error)
	// Credit increases total weight, creating the account on first credit.
	Credit(ctx context.Context, userID uuid.UUID, amount int64) error
}

// weightRepository implements WeightRepository using PostgreSQL.
type weightRepository struct{}

// NewWeightRepository creates a new weight account repository.
func NewWeightRepository() WeightRepository {
	return &weightRepository{}
}

func (r *weightRepository) Get(ctx context.Context, userID uuid.UUID) (*models.WeightAccount, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `SELECT user_id, total_weight FROM weight_accounts WHERE user_id = $1`

	var account models.WeightAccount
	err := scope.Q.QueryRow(ctx, query, userID).Scan(&account.UserID, &account.TotalWeight)
	if err != nil {
		if err == pgx.ErrNoRows {
			return &models.WeightAccount{UserID: userID}, nil
		}
		return nil, fmt.Errorf("failed to get weight account: %w", err)
	}

	return &account, nil
}

func (r *weightRepository) Lock(ctx context.Context, userID uuid.UUID) (*models.WeightAccount, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	ensure := `
		INSERT INTO weight_accounts (user_id, total_weight)
		VALUES ($1, 0)
		ON CONFLICT (user_id) DO NOTHING`

	if _, err := scope.Q.Exec(ctx, ensure, userID); err != nil {
		return nil, fmt.Errorf("failed to ensure weight account: %w", err)
	}

	query := `SELECT user_id, total_weight FROM weight_accounts WHERE user_id = $1 FOR UPDATE`

	var account models.WeightAccount
	if err := scope.Q.QueryRow(ctx, query, userID).Scan(&account.UserID, &account.TotalWeight); err != nil {
		return nil, fmt.Errorf("failed to lock weight account: %w", err)
	}

	return &account, nil
}

func (r *weightRepository) Credit(ctx context.Context, userID uuid.UUID, amount int64) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	if amount <= 0 {
		return fmt.Errorf("credit amount must be positive, got %d", amount)
	}

	query := `
		INSERT INTO weight_accounts (user_id, total_weight)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET total_weight = weight_accounts.total_weight + EXCLUDED.total_weight`

	if _, err := scope.Q.Exec(ctx, query, userID, amount); err != nil {
		return fmt.Errorf("failed to credit weight account: %w", err)
	}

	return nil
}

// Ensure weightRepository implements WeightRepository at compile time.
var _ WeightRepository = (*weightRepository)(nil)
