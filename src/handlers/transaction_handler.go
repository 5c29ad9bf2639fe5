package handlers

import (
	"net/http"

	"github.com/username/ledgerclear/backend/src/logger"
	"github.com/username/ledgerclear/backend/src/models"
	"github.com/username/ledgerclear/backend/src/services"
	"github.com/username/ledgerclear/backend/src/store"
	"github.com/username/ledgerclear/backend/src/utils"
)

type TransactionHandler struct {
	ingestionService services.IngestionService
	store            *store.Store
}

func NewTransactionHandler(ingestionService services.IngestionService, s *store.Store) *TransactionHandler {
	return &TransactionHandler{ingestionService: ingestionService, store: s}
}

// HandleListTransactions returns the authenticated user's canonical
// ledger, newest first. Secondary halves of cross-source links carry their
// status so callers can exclude them from totals.
func (h *TransactionHandler) HandleListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	transactions, err := h.store.ListTransactions(r.Context(), userID)
	if err != nil {
		logger.L.Error("Error listing transactions", "userID", userID, "error", err)
		utils.SendJSONError(w, "error listing transactions", http.StatusInternalServerError)
		return
	}
	if transactions == nil {
		transactions = []models.Transaction{}
	}
	utils.SendJSON(w, transactions, http.StatusOK)
}

// HandleListPrevented returns the append-only audit trail.
func (h *TransactionHandler) HandleListPrevented(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	prevented, err := h.store.ListPrevented(r.Context(), userID)
	if err != nil {
		logger.L.Error("Error listing prevented duplicates", "userID", userID, "error", err)
		utils.SendJSONError(w, "error listing prevented duplicates", http.StatusInternalServerError)
		return
	}
	if prevented == nil {
		prevented = []models.PreventedDuplicate{}
	}
	utils.SendJSON(w, prevented, http.StatusOK)
}

// HandleGetSummary returns the cached per-user ledger totals.
func (h *TransactionHandler) HandleGetSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	summary, err := h.ingestionService.GetLedgerSummary(r.Context(), userID)
	if err != nil {
		logger.L.Error("Error computing ledger summary", "userID", userID, "error", err)
		utils.SendJSONError(w, "error computing summary", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, summary, http.StatusOK)
}
