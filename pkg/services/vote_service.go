package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opencurate/curation-engine/pkg/apperrors"
	"github.com/opencurate/curation-engine/pkg/database"
	"github.com/opencurate/curation-engine/pkg/metrics"
	"github.com/opencurate/curation-engine/pkg/models"
	"github.com/opencurate/curation-engine/pkg/repositories"
)

// VoteService is the vote ledger: casting commits part of the voter's
// weight budget to a candidate, switching retargets the commitment in
// place. Every mutation and the leadership resolution it triggers run in
// one transaction, so weight is never double-committed or orphaned.
type VoteService interface {
	// CastVote commits weight to a candidate. With an existing record on
	// the same field it becomes a switch, reusing the new weight; the
	// existing commitment on this field counts as free for the budget
	// check.
	CastVote(ctx context.Context, voterID, projectID uuid.UUID, fieldKey string, candidateID uuid.UUID, weight int64) (*models.VoteRecord, error)

	// SwitchVote retargets the voter's existing record on the field to a
	// new candidate, keeping its weight. Fails with ErrNoConflictingVote
	// when there is nothing to retarget.
	SwitchVote(ctx context.Context, voterID, projectID uuid.UUID, fieldKey string, newCandidateID uuid.UUID) (*models.VoteRecord, error)
}

type voteService struct {
	tx         database.TxRunner
	votes      repositories.VoteRepository
	candidates repositories.CandidateRepository
	projects   repositories.ProjectRepository
	weights    WeightService
	resolution ResolutionService
	activity   ActivitySink
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewVoteService creates a new VoteService.
func NewVoteService(
	tx database.TxRunner,
	votes repositories.VoteRepository,
	candidates repositories.CandidateRepository,
	projects repositories.ProjectRepository,
	weights WeightService,
	resolution ResolutionService,
	activity ActivitySink,
	m *metrics.Metrics,
	logger *zap.Logger,
) VoteService {
	return &voteService{
		tx:         tx,
		votes:      votes,
		candidates: candidates,
		projects:   projects,
		weights:    weights,
		resolution: resolution,
		activity:   activity,
		metrics:    m,
		logger:     logger.Named("vote-service"),
	}
}

var _ VoteService = (*voteService)(nil)

func (s *voteService) CastVote(ctx context.Context, voterID, projectID uuid.UUID, fieldKey string, candidateID uuid.UUID, weight int64) (*models.VoteRecord, error) {
	if weight <= 0 {
		return nil, apperrors.ErrInvalidWeight
	}

	var record *models.VoteRecord
	var action string

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		record, action, err = s.cast(ctx, voterID, projectID, fieldKey, candidateID, weight, false)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, action, record)
	return record, nil
}

func (s *voteService) SwitchVote(ctx context.Context, voterID, projectID uuid.UUID, fieldKey string, newCandidateID uuid.UUID) (*models.VoteRecord, error) {
	var record *models.VoteRecord
	var action string

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		// Weight 0 means "keep the existing record's weight"; cast
		// resolves it after loading the record.
		record, action, err = s.cast(ctx, voterID, projectID, fieldKey, newCandidateID, 0, true)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, action, record)
	return record, nil
}

// cast is the shared transactional body of CastVote and SwitchVote. It
// assumes it runs inside a transaction scope.
func (s *voteService) cast(ctx context.Context, voterID, projectID uuid.UUID, fieldKey string, candidateID uuid.UUID, weight int64, requireExisting bool) (*models.VoteRecord, string, error) {
	// Candidates are immutable, so the pair check can run before any
	// locking. It also guarantees the project row exists before the
	// field-state row is created against it.
	candidate, err := s.candidates.Get(ctx, candidateID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, "", apperrors.ErrCandidateNotFound
		}
		return nil, "", fmt.Errorf("get candidate: %w", err)
	}
	if candidate.ProjectID != projectID || candidate.FieldKey != fieldKey {
		return nil, "", apperrors.ErrCandidateNotFound
	}

	// Locking the field-state row serializes every writer on this
	// (project, field) pair for the rest of the transaction.
	if _, err := s.projects.LockFieldState(ctx, projectID, fieldKey); err != nil {
		return nil, "", err
	}

	existing, err := s.votes.GetForField(ctx, voterID, projectID, fieldKey)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, "", fmt.Errorf("get existing vote: %w", err)
	}
	if existing == nil && requireExisting {
		return nil, "", apperrors.ErrNoConflictingVote
	}
	if existing != nil && existing.CandidateID == candidateID {
		return nil, "", apperrors.ErrAlreadyVoted
	}
	if weight == 0 && existing != nil {
		weight = existing.Weight
	}

	// The account row lock serializes this voter's casts across fields;
	// two concurrent casts cannot both read the budget before either
	// commits. Lock order is always field state, then account.
	available, err := s.weights.AvailableForUpdate(ctx, voterID)
	if err != nil {
		return nil, "", fmt.Errorf("check available weight: %w", err)
	}
	// A switch frees the field's existing commitment in the same
	// transaction, so it counts toward the budget for the new target.
	if existing != nil {
		available += existing.Weight
	}
	if weight > available {
		return nil, "", apperrors.ErrInsufficientWeight
	}

	var record *models.VoteRecord
	action := ActivityVoteCreate
	if existing == nil {
		record = &models.VoteRecord{
			VoterID:     voterID,
			ProjectID:   projectID,
			FieldKey:    fieldKey,
			CandidateID: candidateID,
			Weight:      weight,
		}
		if err := s.votes.Create(ctx, record); err != nil {
			return nil, "", fmt.Errorf("create vote record: %w", err)
		}
	} else {
		if err := s.votes.Retarget(ctx, existing.ID, candidateID, weight); err != nil {
			return nil, "", fmt.Errorf("retarget vote record: %w", err)
		}
		existing.CandidateID = candidateID
		existing.Weight = weight
		record = existing
		action = ActivityVoteUpdate
	}

	if _, err := s.resolution.Resolve(ctx, projectID, fieldKey); err != nil {
		return nil, "", err
	}

	return record, action, nil
}

// emit reports the committed mutation to the activity sink and metrics.
func (s *voteService) emit(ctx context.Context, action string, record *models.VoteRecord) {
	switch action {
	case ActivityVoteCreate:
		s.metrics.VotesCast.Inc()
	case ActivityVoteUpdate:
		s.metrics.VoteSwitches.Inc()
	}

	s.activity.Record(ctx, ActivityEvent{
		Action:      action,
		VoterID:     record.VoterID,
		ProjectID:   record.ProjectID,
		FieldKey:    record.FieldKey,
		CandidateID: record.CandidateID,
		Weight:      record.Weight,
	})

	s.logger.Debug("Vote recorded",
		zap.String("action", action),
		zap.String("voter_id", record.VoterID.String()),
		zap.String("project_id", record.ProjectID.String()),
		zap.String("field_key", record.FieldKey),
		zap.Int64("weight", record.Weight))
}
