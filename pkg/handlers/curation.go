package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opencurate/curation-engine/pkg/apperrors"
	"github.com/opencurate/curation-engine/pkg/models"
	"github.com/opencurate/curation-engine/pkg/services"
)

// SubmitCandidateBody is the request body for candidate submission.
type SubmitCandidateBody struct {
	Value       models.FieldValue `json:"value"`
	Ref         string            `json:"ref,omitempty"`
	Reason      string            `json:"reason,omitempty"`
	SubmitterID uuid.UUID         `json:"submitter_id"`
}

// CastVoteBody is the request body for casting a vote.
type CastVoteBody struct {
	VoterID     uuid.UUID `json:"voter_id"`
	CandidateID uuid.UUID `json:"candidate_id"`
	Weight      int64     `json:"weight"`
}

// SwitchVoteBody is the request body for switching an existing vote.
type SwitchVoteBody struct {
	VoterID     uuid.UUID `json:"voter_id"`
	CandidateID uuid.UUID `json:"candidate_id"`
}

// LeaderResponse pairs the current leading candidate with its field state.
type LeaderResponse struct {
	Candidate *models.Candidate  `json:"candidate"`
	State     *models.FieldState `json:"state,omitempty"`
}

// CurationHandler exposes the candidate, vote and leadership endpoints.
type CurationHandler struct {
	proposals  services.ProposalService
	votes      services.VoteService
	resolution services.ResolutionService
	logger     *zap.Logger
}

// NewCurationHandler creates a new CurationHandler.
func NewCurationHandler(
	proposals services.ProposalService,
	votes services.VoteService,
	resolution services.ResolutionService,
	logger *zap.Logger,
) *CurationHandler {
	return &CurationHandler{
		proposals:  proposals,
		votes:      votes,
		resolution: resolution,
		logger:     logger,
	}
}

// RegisterRoutes registers the curation handler's routes on the given mux.
func (h *CurationHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/projects/{pid}/fields/{key}/candidates", h.SubmitCandidate)
	mux.HandleFunc("GET /api/projects/{pid}/fields/{key}/candidates", h.ListCandidates)
	mux.HandleFunc("GET /api/candidates/{cid}", h.GetCandidate)
	mux.HandleFunc("POST /api/projects/{pid}/fields/{key}/votes", h.CastVote)
	mux.HandleFunc("POST /api/projects/{pid}/fields/{key}/votes/switch", h.SwitchVote)
	mux.HandleFunc("GET /api/projects/{pid}/fields/{key}/leader", h.GetLeader)
	mux.HandleFunc("GET /api/projects/{pid}/fields/{key}/history", h.GetHistory)
}

// SubmitCandidate handles POST /api/projects/{pid}/fields/{key}/candidates
func (h *CurationHandler) SubmitCandidate(w http.ResponseWriter, r *http.Request) {
	projectID, fieldKey, ok := h.pathParams(w, r)
	if !ok {
		return
	}

	var body SubmitCandidateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_body", "Invalid request body")
		return
	}
	if body.SubmitterID == uuid.Nil {
		h.writeError(w, http.StatusBadRequest, "missing_submitter", "submitter_id is required")
		return
	}

	candidate, err := h.proposals.SubmitCandidate(r.Context(), services.SubmitCandidateRequest{
		ProjectID:   projectID,
		FieldKey:    fieldKey,
		Value:       body.Value,
		Ref:         body.Ref,
		Reason:      body.Reason,
		SubmitterID: body.SubmitterID,
	})
	if err != nil {
		h.writeServiceError(w, err, "Failed to submit candidate")
		return
	}

	if err := WriteJSON(w, http.StatusCreated, candidate); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// ListCandidates handles GET /api/projects/{pid}/fields/{key}/candidates
func (h *CurationHandler) ListCandidates(w http.ResponseWriter, r *http.Request) {
	projectID, fieldKey, ok := h.pathParams(w, r)
	if !ok {
		return
	}

	candidates, err := h.proposals.ListCandidates(r.Context(), projectID, fieldKey)
	if err != nil {
		h.writeServiceError(w, err, "Failed to list candidates")
		return
	}

	if err := WriteJSON(w, http.StatusOK, map[string]interface{}{"candidates": candidates}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// GetCandidate handles GET /api/candidates/{cid}
func (h *CurationHandler) GetCandidate(w http.ResponseWriter, r *http.Request) {
	candidateID, err := uuid.Parse(r.PathValue("cid"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_candidate_id", "Invalid candidate ID format")
		return
	}

	candidate, err := h.proposals.GetCandidate(r.Context(), candidateID)
	if err != nil {
		h.writeServiceError(w, err, "Failed to get candidate")
		return
	}

	if err := WriteJSON(w, http.StatusOK, candidate); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// CastVote handles POST /api/projects/{pid}/fields/{key}/votes
func (h *CurationHandler) CastVote(w http.ResponseWriter, r *http.Request) {
	projectID, fieldKey, ok := h.pathParams(w, r)
	if !ok {
		return
	}

	var body CastVoteBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_body", "Invalid request body")
		return
	}
	if body.VoterID == uuid.Nil || body.CandidateID == uuid.Nil {
		h.writeError(w, http.StatusBadRequest, "missing_ids", "voter_id and candidate_id are required")
		return
	}

	record, err := h.votes.CastVote(r.Context(), body.VoterID, projectID, fieldKey, body.CandidateID, body.Weight)
	if err != nil {
		h.writeServiceError(w, err, "Failed to cast vote")
		return
	}

	if err := WriteJSON(w, http.StatusCreated, record); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// SwitchVote handles POST /api/projects/{pid}/fields/{key}/votes/switch
func (h *CurationHandler) SwitchVote(w http.ResponseWriter, r *http.Request) {
	projectID, fieldKey, ok := h.pathParams(w, r)
	if !ok {
		return
	}

	var body SwitchVoteBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_body", "Invalid request body")
		return
	}
	if body.VoterID == uuid.Nil || body.CandidateID == uuid.Nil {
		h.writeError(w, http.StatusBadRequest, "missing_ids", "voter_id and candidate_id are required")
		return
	}

	record, err := h.votes.SwitchVote(r.Context(), body.VoterID, projectID, fieldKey, body.CandidateID)
	if err != nil {
		h.writeServiceError(w, err, "Failed to switch vote")
		return
	}

	if err := WriteJSON(w, http.StatusOK, record); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// GetLeader handles GET /api/projects/{pid}/fields/{key}/leader
func (h *CurationHandler) GetLeader(w http.ResponseWriter, r *http.Request) {
	projectID, fieldKey, ok := h.pathParams(w, r)
	if !ok {
		return
	}

	candidate, err := h.resolution.Leader(r.Context(), projectID, fieldKey)
	if err != nil {
		h.writeServiceError(w, err, "Failed to get leader")
		return
	}

	if err := WriteJSON(w, http.StatusOK, LeaderResponse{Candidate: candidate}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// GetHistory handles GET /api/projects/{pid}/fields/{key}/history
func (h *CurationHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	projectID, fieldKey, ok := h.pathParams(w, r)
	if !ok {
		return
	}

	entries, err := h.resolution.History(r.Context(), projectID, fieldKey)
	if err != nil {
		h.writeServiceError(w, err, "Failed to get leadership history")
		return
	}

	if err := WriteJSON(w, http.StatusOK, map[string]interface{}{"entries": entries}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *CurationHandler) pathParams(w http.ResponseWriter, r *http.Request) (uuid.UUID, string, bool) {
	projectID, err := uuid.Parse(r.PathValue("pid"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_project_id", "Invalid project ID format")
		return uuid.Nil, "", false
	}

	fieldKey := r.PathValue("key")
	if fieldKey == "" {
		h.writeError(w, http.StatusBadRequest, "missing_field_key", "Field key is required")
		return uuid.Nil, "", false
	}

	return projectID, fieldKey, true
}

func (h *CurationHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	if err := ErrorResponse(w, status, code, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}

// writeServiceError maps domain errors to HTTP status codes. Unmapped
// errors are logged and surfaced as 500s without internal detail.
func (h *CurationHandler) writeServiceError(w http.ResponseWriter, err error, logMsg string) {
	switch {
	case errors.Is(err, apperrors.ErrInvalidFieldKey), errors.Is(err, apperrors.ErrUnknownFieldKey):
		h.writeError(w, http.StatusBadRequest, "invalid_field_key", "Unknown field key")
	case errors.Is(err, apperrors.ErrEmptyValue):
		h.writeError(w, http.StatusBadRequest, "empty_value", "Candidate value must not be empty")
	case errors.Is(err, apperrors.ErrInvalidWeight):
		h.writeError(w, http.StatusBadRequest, "invalid_weight", "Vote weight must be positive")
	case errors.Is(err, apperrors.ErrCandidateNotFound):
		h.writeError(w, http.StatusNotFound, "candidate_not_found", "Candidate not found for this field")
	case errors.Is(err, apperrors.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "not_found", "Resource not found")
	case errors.Is(err, apperrors.ErrAlreadyVoted):
		h.writeError(w, http.StatusConflict, "already_voted", "Vote already targets this candidate")
	case errors.Is(err, apperrors.ErrNoConflictingVote):
		h.writeError(w, http.StatusConflict, "no_existing_vote", "No existing vote to switch")
	case errors.Is(err, apperrors.ErrInsufficientWeight):
		h.writeError(w, http.StatusUnprocessableEntity, "insufficient_weight", "Not enough available weight")
	case errors.Is(err, apperrors.ErrConcurrentUpdateConflict):
		h.writeError(w, http.StatusConflict, "concurrent_update", "Concurrent update, retry the request")
	default:
		h.logger.Error(logMsg, zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", logMsg)
	}
}
