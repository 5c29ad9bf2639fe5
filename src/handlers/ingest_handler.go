package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/username/ledgerclear/backend/src/logger"
	"github.com/username/ledgerclear/backend/src/models"
	"github.com/username/ledgerclear/backend/src/services"
	"github.com/username/ledgerclear/backend/src/utils"
)

type IngestHandler struct {
	ingestionService services.IngestionService
}

func NewIngestHandler(ingestionService services.IngestionService) *IngestHandler {
	return &IngestHandler{ingestionService: ingestionService}
}

// HandleIngest accepts one importer batch for the authenticated user and
// returns the per-batch report. Per-record validation failures appear in
// the report's error list; only a storage failure produces a non-2xx.
func (h *IngestHandler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	var batch models.IngestBatch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		utils.SendJSONError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(batch.Records) == 0 {
		utils.SendJSONError(w, "batch contains no records", http.StatusBadRequest)
		return
	}

	report, err := h.ingestionService.ProcessBatch(r.Context(), userID, batch)
	if err != nil {
		logger.L.Error("Batch ingestion failed", "userID", userID, "error", err)
		utils.SendJSONError(w, "batch aborted: storage unavailable", http.StatusServiceUnavailable)
		return
	}
	utils.SendJSON(w, report, http.StatusOK)
}

// HandleSweep re-evaluates the authenticated user's pending queue.
func (h *IngestHandler) HandleSweep(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	report, err := h.ingestionService.SweepPending(r.Context(), userID)
	if err != nil {
		logger.L.Error("Pending sweep failed", "userID", userID, "error", err)
		utils.SendJSONError(w, "sweep failed", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, report, http.StatusOK)
}
