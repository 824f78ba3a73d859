package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opencurate/curation-engine/pkg/services"
)

// GrantWeightBody is the request body for a weight grant.
type GrantWeightBody struct {
	Amount int64 `json:"amount"`
}

// WeightHandler exposes weight account lookups and grants.
type WeightHandler struct {
	weights services.WeightService
	logger  *zap.Logger
}

// NewWeightHandler creates a new WeightHandler.
func NewWeightHandler(weights services.WeightService, logger *zap.Logger) *WeightHandler {
	return &WeightHandler{weights: weights, logger: logger}
}

// RegisterRoutes registers the weight handler's routes on the given mux.
func (h *WeightHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/users/{uid}/weight", h.GetAccount)
	mux.HandleFunc("POST /api/users/{uid}/weight/grants", h.Grant)
}

// GetAccount handles GET /api/users/{uid}/weight
func (h *WeightHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.PathValue("uid"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_user_id", "Invalid user ID format")
		return
	}

	account, err := h.weights.Account(r.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to get weight account", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to get weight account")
		return
	}

	if err := WriteJSON(w, http.StatusOK, account); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Grant handles POST /api/users/{uid}/weight/grants
func (h *WeightHandler) Grant(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.PathValue("uid"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_user_id", "Invalid user ID format")
		return
	}

	var body GrantWeightBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_body", "Invalid request body")
		return
	}
	if body.Amount <= 0 {
		h.writeError(w, http.StatusBadRequest, "invalid_amount", "amount must be positive")
		return
	}

	if err := h.weights.Grant(r.Context(), userID, body.Amount); err != nil {
		h.logger.Error("Failed to grant weight", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to grant weight")
		return
	}

	account, err := h.weights.Account(r.Context(), userID)
	if err != nil {
		h.logger.Error("Failed to reload weight account", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to reload weight account")
		return
	}

	if err := WriteJSON(w, http.StatusOK, account); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *WeightHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	if err := ErrorResponse(w, status, code, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}
