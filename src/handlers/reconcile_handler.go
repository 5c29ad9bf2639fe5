package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/username/ledgerclear/backend/src/logger"
	"github.com/username/ledgerclear/backend/src/services"
	"github.com/username/ledgerclear/backend/src/utils"
)

type ReconcileHandler struct {
	reconcileService services.ReconcileService
}

func NewReconcileHandler(reconcileService services.ReconcileService) *ReconcileHandler {
	return &ReconcileHandler{reconcileService: reconcileService}
}

// HandleRunReconciliation runs the bulk cross-source reconciler for the
// authenticated user. Safe to invoke repeatedly.
func (h *ReconcileHandler) HandleRunReconciliation(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	report, err := h.reconcileService.ReconcileAllForUser(r.Context(), userID)
	if err != nil {
		logger.L.Error("Bulk reconciliation failed", "userID", userID, "error", err)
		utils.SendJSONError(w, "reconciliation failed", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, report, http.StatusOK)
}

// HandleReconcileTransaction reconciles a single payment-platform
// transaction by id. Idempotent: an already-linked transaction returns its
// existing link.
func (h *ReconcileHandler) HandleReconcileTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required", http.StatusUnauthorized)
		return
	}

	txID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		utils.SendJSONError(w, "invalid transaction id", http.StatusBadRequest)
		return
	}

	result, err := h.reconcileService.Reconcile(r.Context(), userID, txID)
	if err != nil {
		if errors.Is(err, services.ErrAmbiguousMatch) {
			utils.SendJSONError(w, err.Error(), http.StatusConflict)
			return
		}
		logger.L.Error("Single reconciliation failed", "userID", userID, "txID", txID, "error", err)
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	utils.SendJSON(w, result, http.StatusOK)
}
