package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opencurate/curation-engine/pkg/apperrors"
	"github.com/opencurate/curation-engine/pkg/catalog"
	"github.com/opencurate/curation-engine/pkg/database"
	"github.com/opencurate/curation-engine/pkg/logging"
	"github.com/opencurate/curation-engine/pkg/metrics"
	"github.com/opencurate/curation-engine/pkg/models"
	"github.com/opencurate/curation-engine/pkg/repositories"
)

// SubmitCandidateRequest carries the inputs of a candidate submission.
type SubmitCandidateRequest struct {
	ProjectID   uuid.UUID
	FieldKey    string
	Value       models.FieldValue
	Ref         string
	Reason      string
	SubmitterID uuid.UUID
}

// ProposalService handles candidate submissions. Submitting a candidate
// creates the project and its field-state row on first contact; the
// candidate itself is immutable from then on.
type ProposalService interface {
	SubmitCandidate(ctx context.Context, req SubmitCandidateRequest) (*models.Candidate, error)
	GetCandidate(ctx context.Context, id uuid.UUID) (*models.Candidate, error)
	ListCandidates(ctx context.Context, projectID uuid.UUID, fieldKey string) ([]*models.Candidate, error)
}

type proposalService struct {
	tx         database.TxRunner
	candidates repositories.CandidateRepository
	projects   repositories.ProjectRepository
	catalog    *catalog.Catalog
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewProposalService creates a new ProposalService.
func NewProposalService(
	tx database.TxRunner,
	candidates repositories.CandidateRepository,
	projects repositories.ProjectRepository,
	cat *catalog.Catalog,
	m *metrics.Metrics,
	logger *zap.Logger,
) ProposalService {
	return &proposalService{
		tx:         tx,
		candidates: candidates,
		projects:   projects,
		catalog:    cat,
		metrics:    m,
		logger:     logger.Named("proposal-service"),
	}
}

var _ ProposalService = (*proposalService)(nil)

func (s *proposalService) SubmitCandidate(ctx context.Context, req SubmitCandidateRequest) (*models.Candidate, error) {
	if !s.catalog.Contains(req.FieldKey) {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrInvalidFieldKey, req.FieldKey)
	}
	if err := req.Value.Validate(); err != nil {
		return nil, err
	}

	candidate := &models.Candidate{
		ProjectID:   req.ProjectID,
		FieldKey:    req.FieldKey,
		Value:       req.Value,
		Ref:         req.Ref,
		Reason:      req.Reason,
		SubmitterID: req.SubmitterID,
	}

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.projects.Ensure(ctx, req.ProjectID); err != nil {
			return err
		}
		if err := s.candidates.Create(ctx, candidate); err != nil {
			return err
		}
		return s.projects.EnsureFieldState(ctx, req.ProjectID, req.FieldKey)
	})
	if err != nil {
		s.logger.Error("Failed to submit candidate",
			zap.String("project_id", req.ProjectID.String()),
			zap.String("field_key", req.FieldKey),
			zap.Error(err))
		return nil, fmt.Errorf("submit candidate: %w", err)
	}

	s.metrics.CandidatesProposed.Inc()
	s.logger.Info("Candidate submitted",
		zap.String("candidate_id", candidate.ID.String()),
		zap.String("project_id", req.ProjectID.String()),
		zap.String("field_key", req.FieldKey),
		zap.String("value", logging.SanitizeValue(req.Value.String())),
		zap.String("submitter_id", req.SubmitterID.String()))

	return candidate, nil
}

func (s *proposalService) GetCandidate(ctx context.Context, id uuid.UUID) (*models.Candidate, error) {
	candidate, err := s.candidates.Get(ctx, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ErrCandidateNotFound
		}
		return nil, fmt.Errorf("get candidate: %w", err)
	}
	return candidate, nil
}

func (s *proposalService) ListCandidates(ctx context.Context, projectID uuid.UUID, fieldKey string) ([]*models.Candidate, error) {
	if !s.catalog.Contains(fieldKey) {
		return nil, fmt.Errorf("%w: %q", apperrors.ErrInvalidFieldKey, fieldKey)
	}

	candidates, err := s.candidates.ListByField(ctx, projectID, fieldKey)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	return candidates, nil
}
