package services

import (
	"context"
	"fmt"

	"github.com/patrickmn/go-cache"

	"github.com/username/ledgerclear/backend/src/logger"
	"github.com/username/ledgerclear/backend/src/models"
	"github.com/username/ledgerclear/backend/src/store"
)

type reconcileServiceImpl struct {
	store        *store.Store
	windowDays   int
	chunkSize    int
	summaryCache *cache.Cache
}

func NewReconcileService(s *store.Store, windowDays, chunkSize int, summaryCache *cache.Cache) ReconcileService {
	return &reconcileServiceImpl{
		store:        s,
		windowDays:   windowDays,
		chunkSize:    chunkSize,
		summaryCache: summaryCache,
	}
}

// Reconcile pairs one payment-platform transaction with the bank row that
// moved the money. Already-linked input returns its existing link without
// re-querying candidates.
func (r *reconcileServiceImpl) Reconcile(ctx context.Context, userID, platformTxID int64) (*LinkResult, error) {
	platformTx, err := r.store.GetTransaction(ctx, userID, platformTxID)
	if err != nil {
		return nil, err
	}
	if platformTx.Source != models.SourcePaymentPlatform {
		return nil, fmt.Errorf("transaction %d is not a payment-platform record", platformTxID)
	}
	result, err := r.reconcileTx(ctx, platformTx)
	if err != nil {
		return nil, err
	}
	if !result.Linked && result.Reason == ReasonAmbiguous {
		return nil, fmt.Errorf("%w: transaction %d has multiple bank candidates", ErrAmbiguousMatch, platformTxID)
	}
	if result.Linked {
		r.invalidateSummary(userID)
	}
	return result, nil
}

func (r *reconcileServiceImpl) reconcileTx(ctx context.Context, platformTx *models.Transaction) (*LinkResult, error) {
	if platformTx.ReconciliationStatus != models.StatusNotReconciled {
		return existingLink(platformTx), nil
	}

	candidates, err := r.store.BankCandidates(ctx, platformTx.UserID, platformTx.AmountCents,
		platformTx.Currency, platformTx.ExecutionDate, r.windowDays)
	if err != nil {
		return nil, err
	}

	switch len(candidates) {
	case 0:
		// Possibly a platform balance top-up rather than a pass-through
		// purchase; the platform row stays visible and counted on its own.
		return &LinkResult{Linked: false, Reason: ReasonNoBankMatch}, nil
	case 1:
		primary := &candidates[0]
		if err := r.store.LinkPair(ctx, platformTx.UserID, primary.ID, platformTx.ID, platformTx.Description); err != nil {
			return nil, err
		}
		logger.L.Info("Cross-source link established", "userID", platformTx.UserID,
			"primaryID", primary.ID, "secondaryID", platformTx.ID)
		return &LinkResult{Linked: true, PrimaryID: primary.ID, SecondaryID: platformTx.ID}, nil
	default:
		// Auto-picking among same-amount same-window candidates risks
		// mislinking genuinely distinct payments.
		logger.L.Warn("Ambiguous cross-source match, leaving for manual review",
			"userID", platformTx.UserID, "platformTxID", platformTx.ID,
			"candidateCount", len(candidates))
		return &LinkResult{Linked: false, Reason: ReasonAmbiguous}, nil
	}
}

// existingLink reconstructs the link result of an already-reconciled
// transaction from its status fields.
func existingLink(tx *models.Transaction) *LinkResult {
	result := &LinkResult{Linked: true}
	switch tx.ReconciliationStatus {
	case models.StatusReconciledSecondary:
		result.SecondaryID = tx.ID
		if tx.ReconciledWithTransactID != nil {
			result.PrimaryID = *tx.ReconciledWithTransactID
		}
	case models.StatusReconciledPrimary:
		result.PrimaryID = tx.ID
		if tx.ReconciledWithTransactID != nil {
			result.SecondaryID = *tx.ReconciledWithTransactID
		}
	}
	return result
}

// ReconcileAllForUser runs the single-transaction algorithm over every
// not-yet-reconciled platform transaction for the user, in bounded chunks.
// The live per-event path and backfill jobs both land here, so historical
// and ongoing processing share one set of semantics.
func (r *reconcileServiceImpl) ReconcileAllForUser(ctx context.Context, userID int64) (*models.ReconcileReport, error) {
	report := &models.ReconcileReport{
		UnreconciledTransactions: []models.Transaction{},
	}

	afterID := int64(0)
	for {
		chunk, err := r.store.UnreconciledPlatform(ctx, userID, afterID, r.chunkSize)
		if err != nil {
			return report, err
		}
		if len(chunk) == 0 {
			break
		}
		for i := range chunk {
			tx := &chunk[i]
			result, err := r.reconcileTx(ctx, tx)
			if err != nil {
				return report, err
			}
			if result.Linked {
				report.ReconciledCount++
			} else {
				report.UnreconciledCount++
				report.UnreconciledTransactions = append(report.UnreconciledTransactions, *tx)
			}
		}
		afterID = chunk[len(chunk)-1].ID
		if len(chunk) < r.chunkSize {
			break
		}
	}

	if report.ReconciledCount > 0 {
		r.invalidateSummary(userID)
	}
	logger.L.Info("Bulk reconciliation complete", "userID", userID,
		"reconciled", report.ReconciledCount, "unreconciled", report.UnreconciledCount)
	return report, nil
}

func (r *reconcileServiceImpl) invalidateSummary(userID int64) {
	if r.summaryCache != nil {
		r.summaryCache.Delete(summaryCacheKey(userID))
	}
}
