package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/username/ledgerclear/backend/src/logger"
	"github.com/username/ledgerclear/backend/src/models"
	"github.com/username/ledgerclear/backend/src/services"
	"github.com/username/ledgerclear/backend/src/store"
	"github.com/username/ledgerclear/backend/src/utils"
)

type PendingHandler struct {
	ingestionService services.IngestionService
	store            *store.Store
}

func NewPendingHandler(ingestionService services.IngestionService, s *store.Store) *PendingHandler {
	return &PendingHandler{ingestionService: ingestionService, store: s}
}

// HandleListPending returns the authenticated user's review queue. Pass
// ?all=true to include resolved entries.
func (h *PendingHandler) HandleListPending(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	unresolvedOnly := r.URL.Query().Get("all") != "true"
	pending, err := h.store.ListPending(r.Context(), userID, unresolvedOnly)
	if err != nil {
		logger.L.Error("Error listing pending duplicates", "userID", userID, "error", err)
		utils.SendJSONError(w, "error listing pending duplicates", http.StatusInternalServerError)
		return
	}
	if pending == nil {
		pending = []models.PendingDuplicate{}
	}
	utils.SendJSON(w, pending, http.StatusOK)
}

type resolveRequest struct {
	PendingID string `json:"pendingId"`
	Decision  string `json:"decision"` // accept | reject
	Note      string `json:"note,omitempty"`
}

// HandleResolvePending applies a human adjudication to one pending entry.
func (h *PendingHandler) HandleResolvePending(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.SendJSONError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.PendingID == "" {
		utils.SendJSONError(w, "pendingId is required", http.StatusBadRequest)
		return
	}

	err := h.ingestionService.ResolvePending(r.Context(), userID, req.PendingID, req.Decision, req.Note)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			utils.SendJSONError(w, "pending duplicate not found or already resolved", http.StatusNotFound)
			return
		}
		logger.L.Error("Error resolving pending duplicate", "userID", userID,
			"pendingID", req.PendingID, "error", err)
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	utils.SendJSON(w, map[string]string{"status": "resolved"}, http.StatusOK)
}
