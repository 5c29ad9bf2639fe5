package services

import (
	"context"
	"errors"

	"github.com/username/ledgerclear/backend/src/models"
)

// ErrAmbiguousMatch is returned by on-demand reconciliation when more
// than one equally valid bank candidate exists. Never retried
// automatically; the transaction stays unreconciled and is surfaced for
// manual review. Bulk runs report these rows in the unreconciled list
// instead of failing.
var ErrAmbiguousMatch = errors.New("ambiguous cross-source match")

// Unreconciled reasons reported by the cross-source reconciler.
const (
	ReasonNoBankMatch = "no-bank-match"
	ReasonAmbiguous   = "ambiguous"
)

// LinkResult is the outcome of reconciling one payment-platform
// transaction against the bank ledger.
type LinkResult struct {
	Linked      bool   `json:"linked"`
	PrimaryID   int64  `json:"primaryId,omitempty"`
	SecondaryID int64  `json:"secondaryId,omitempty"`
	Reason      string `json:"reason,omitempty"` // set when not linked
}

// IngestionService is the external-facing entry point feed importers call.
// Batches for one user may arrive concurrently; the store's identity-key
// constraint keeps that safe.
type IngestionService interface {
	ProcessBatch(ctx context.Context, userID int64, batch models.IngestBatch) (*models.BatchReport, error)
	ResolvePending(ctx context.Context, userID int64, pendingID string, decision string, note string) error
	SweepPending(ctx context.Context, userID int64) (*models.SweepReport, error)
	GetLedgerSummary(ctx context.Context, userID int64) (*models.LedgerSummary, error)
}

// ReconcileService pairs payment-platform transactions with the bank
// ledger rows that actually moved the money.
type ReconcileService interface {
	Reconcile(ctx context.Context, userID, platformTxID int64) (*LinkResult, error)
	ReconcileAllForUser(ctx context.Context, userID int64) (*models.ReconcileReport, error)
}
