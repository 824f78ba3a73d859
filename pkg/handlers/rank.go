package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opencurate/curation-engine/pkg/apperrors"
	"github.com/opencurate/curation-engine/pkg/services"
)

// RankHandler exposes rank snapshots and the recompute endpoints.
type RankHandler struct {
	ranks     services.RankService
	recompute services.RecomputeService
	logger    *zap.Logger
}

// NewRankHandler creates a new RankHandler.
func NewRankHandler(ranks services.RankService, recompute services.RecomputeService, logger *zap.Logger) *RankHandler {
	return &RankHandler{
		ranks:     ranks,
		recompute: recompute,
		logger:    logger,
	}
}

// RegisterRoutes registers the rank handler's routes on the given mux.
func (h *RankHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/projects/{pid}/rank", h.GetRank)
	mux.HandleFunc("POST /api/projects/{pid}/recompute", h.RecomputeProject)
	mux.HandleFunc("POST /api/recompute", h.RecomputeAll)
	mux.HandleFunc("GET /api/rankings", h.ListRankings)
}

// GetRank handles GET /api/projects/{pid}/rank
func (h *RankHandler) GetRank(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuid.Parse(r.PathValue("pid"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_project_id", "Invalid project ID format")
		return
	}

	snapshot, err := h.ranks.Get(r.Context(), projectID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "No rank snapshot for project")
			return
		}
		h.logger.Error("Failed to get rank snapshot", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to get rank snapshot")
		return
	}

	if err := WriteJSON(w, http.StatusOK, snapshot); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// RecomputeProject handles POST /api/projects/{pid}/recompute
func (h *RankHandler) RecomputeProject(w http.ResponseWriter, r *http.Request) {
	projectID, err := uuid.Parse(r.PathValue("pid"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_project_id", "Invalid project ID format")
		return
	}

	snapshot, err := h.recompute.RecomputeProject(r.Context(), projectID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "Project not found")
			return
		}
		h.logger.Error("Failed to recompute project",
			zap.String("project_id", projectID.String()),
			zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Recompute failed")
		return
	}

	if err := WriteJSON(w, http.StatusOK, snapshot); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// RecomputeAll handles POST /api/recompute
func (h *RankHandler) RecomputeAll(w http.ResponseWriter, r *http.Request) {
	rebuilt, err := h.recompute.RecomputeAll(r.Context())
	if err != nil {
		h.logger.Error("Failed to recompute projects", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Batch recompute failed")
		return
	}

	if err := WriteJSON(w, http.StatusOK, map[string]int{"rebuilt": rebuilt}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// ListRankings handles GET /api/rankings?limit=N
func (h *RankHandler) ListRankings(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			h.writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	snapshots, err := h.ranks.ListTop(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list rankings", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to list rankings")
		return
	}

	if err := WriteJSON(w, http.StatusOK, map[string]interface{}{"rankings": snapshots}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *RankHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	if err := ErrorResponse(w, status, code, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}
