package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/username/ledgerclear/backend/src/logger"
	"github.com/username/ledgerclear/backend/src/models"
	"github.com/username/ledgerclear/backend/src/store"
)

const (
	ckLedgerSummary = "summary_user_%d"

	DefaultCacheExpiration = 15 * time.Minute
	CacheCleanupInterval   = 30 * time.Minute
)

func summaryCacheKey(userID int64) string {
	return fmt.Sprintf(ckLedgerSummary, userID)
}

type ingestionServiceImpl struct {
	store        *store.Store
	classifier   *Classifier
	reconciler   ReconcileService
	summaryCache *cache.Cache
	cacheExpiry  time.Duration
	sweepChunk   int
}

func NewIngestionService(
	s *store.Store,
	classifier *Classifier,
	reconciler ReconcileService,
	summaryCache *cache.Cache,
	cacheExpiry time.Duration,
	sweepChunkSize int,
) IngestionService {
	return &ingestionServiceImpl{
		store:        s,
		classifier:   classifier,
		reconciler:   reconciler,
		summaryCache: summaryCache,
		cacheExpiry:  cacheExpiry,
		sweepChunk:   sweepChunkSize,
	}
}

// ProcessBatch feeds one importer batch through classification and the
// store. Records are processed sequentially so two records in the same
// batch that duplicate each other are detected against each other, not
// just against pre-existing ledger state. A malformed record is reported
// and skipped; a storage failure aborts the batch (safe to retry the whole
// batch thanks to the identity-key constraint).
func (s *ingestionServiceImpl) ProcessBatch(ctx context.Context, userID int64, batch models.IngestBatch) (*models.BatchReport, error) {
	startTime := time.Now()
	report := &models.BatchReport{
		BatchID: uuid.NewString(),
		Errors:  []models.RecordError{},
	}
	logger.L.Info("ProcessBatch START", "batchID", report.BatchID, "userID", userID,
		"source", batch.Source, "records", len(batch.Records))

	for i := range batch.Records {
		rec := batch.Records[i]
		if rec.AccountID == "" {
			rec.AccountID = batch.AccountID
		}
		if rec.Source == "" {
			rec.Source = batch.Source
		}

		candidate, err := rec.Validate(userID)
		if err != nil {
			report.Errors = append(report.Errors, models.RecordError{Index: i, Message: err.Error()})
			logger.L.Warn("Rejected malformed record", "batchID", report.BatchID, "index", i, "error", err)
			continue
		}

		if err := s.processRecord(ctx, candidate, report); err != nil {
			logger.L.Error("Batch aborted on storage failure",
				"batchID", report.BatchID, "userID", userID, "index", i, "error", err)
			s.invalidateSummary(userID)
			return report, err
		}
	}

	s.invalidateSummary(userID)
	logger.L.Info("ProcessBatch END", "batchID", report.BatchID, "userID", userID,
		"accepted", report.Accepted, "exactDuplicates", report.ExactDuplicates,
		"parked", report.ParkedForReview, "crossSourceLinked", report.CrossSourceLinked,
		"errors", len(report.Errors), "duration", time.Since(startTime))
	return report, nil
}

func (s *ingestionServiceImpl) processRecord(ctx context.Context, candidate *models.Transaction, report *models.BatchReport) error {
	cls, err := s.classifier.Classify(ctx, candidate)
	if err != nil {
		return err
	}

	switch cls.Outcome {
	case OutcomeNew:
		if err := s.commitCounted(ctx, candidate, report); err != nil {
			return err
		}

	case OutcomeExactDuplicate:
		report.ExactDuplicates++
		if !cls.ByIdentityKey {
			// Same payment under a different record shape: auditable, unlike
			// plain re-delivery of a known source reference.
			reason := fmt.Sprintf("similarity %d at or above auto-reject threshold", cls.Score)
			s.auditPrevented(ctx, candidate, cls.Existing, cls.Score, reason)
		}

	case OutcomeProbableDuplicate:
		_, created, err := s.store.ParkPending(ctx, candidate, cls.Existing, cls.Score)
		if err != nil {
			return err
		}
		if created {
			report.ParkedForReview++
		} else {
			// Re-delivery of an already-parked candidate is a no-op and
			// must not inflate the report.
			logger.L.Debug("Candidate already pending review", "batchID", report.BatchID,
				"userID", candidate.UserID, "sourceReference", candidate.SourceReference)
		}

	case OutcomeCrossSourceMatch:
		committed, err := s.commitRecord(ctx, candidate, report)
		if err != nil || committed == nil {
			return err
		}
		result, err := s.reconciler.Reconcile(ctx, candidate.UserID, committed.ID)
		if err != nil {
			if errors.Is(err, ErrAmbiguousMatch) {
				// Never guess between candidates; the row stays visible and
				// counted alone until someone reconciles it by hand.
				report.Accepted++
				return nil
			}
			return err
		}
		if result.Linked {
			report.CrossSourceLinked++
		} else {
			// Unreconciled platform rows stay visible and counted alone.
			report.Accepted++
		}
	}
	return nil
}

// commitRecord inserts the candidate, converting an identity-key race into
// an exact-duplicate outcome. Returns nil without error when the record
// turned out to be a re-delivery.
func (s *ingestionServiceImpl) commitRecord(ctx context.Context, candidate *models.Transaction, report *models.BatchReport) (*models.Transaction, error) {
	committed, err := s.store.CommitNew(ctx, candidate)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			// A concurrent batch won the insert race; reclassified as exact
			// re-delivery, dropped silently.
			report.ExactDuplicates++
			return nil, nil
		}
		return nil, err
	}
	return committed, nil
}

func (s *ingestionServiceImpl) commitCounted(ctx context.Context, candidate *models.Transaction, report *models.BatchReport) error {
	committed, err := s.commitRecord(ctx, candidate, report)
	if err != nil {
		return err
	}
	if committed != nil {
		report.Accepted++
	}
	return nil
}

// auditPrevented writes a best-effort audit row. Audit failures are logged
// and never fail the governing classification decision.
func (s *ingestionServiceImpl) auditPrevented(ctx context.Context, candidate, existing *models.Transaction, score int, reason string) {
	blocked, err := json.Marshal(candidate)
	if err != nil {
		logger.L.Error("Failed to encode blocked candidate for audit", "userID", candidate.UserID, "error", err)
		return
	}
	prevented := &models.PreventedDuplicate{
		UserID:                 candidate.UserID,
		BlockedTransactionData: string(blocked),
		Source:                 candidate.Source,
		SourceReference:        candidate.SourceReference,
		SimilarityScore:        score,
		Reason:                 reason,
	}
	if existing != nil {
		id := existing.ID
		prevented.ExistingTransactionID = &id
	}
	if _, err := s.store.RecordPrevented(ctx, prevented); err != nil {
		logger.L.Error("Audit write failed (non-fatal)", "userID", candidate.UserID, "error", err)
	}
}

// ResolvePending applies a human adjudication: accept commits the parked
// candidate as a new transaction, reject confirms it as a duplicate with
// nothing committed. Either way the entry reaches its terminal resolved
// state.
func (s *ingestionServiceImpl) ResolvePending(ctx context.Context, userID int64, pendingID, decision, note string) error {
	pending, err := s.store.GetPending(ctx, userID, pendingID)
	if err != nil {
		return err
	}
	if pending.Resolved {
		return fmt.Errorf("pending duplicate %s is already resolved", pendingID)
	}

	var candidate models.Transaction
	if err := json.Unmarshal([]byte(pending.NewTransactionData), &candidate); err != nil {
		return fmt.Errorf("error decoding parked candidate %s: %w", pendingID, err)
	}

	switch decision {
	case "accept":
		if _, err := s.store.CommitNew(ctx, &candidate); err != nil {
			if errors.Is(err, store.ErrConflict) {
				// The candidate's identity twin landed while it sat in the
				// queue; resolve it the way the sweep would have.
				if err := s.store.MarkPendingResolved(ctx, userID, pendingID, models.ResolutionSwept); err != nil {
					return err
				}
				s.auditPendingPrevented(ctx, pending, 100, store.SweepReason)
				s.invalidateSummary(userID)
				return nil
			}
			return err
		}
		if err := s.store.MarkPendingResolved(ctx, userID, pendingID, models.ResolutionAccepted); err != nil {
			return err
		}

	case "reject":
		if err := s.store.MarkPendingResolved(ctx, userID, pendingID, models.ResolutionRejected); err != nil {
			return err
		}
		reason := "confirmed duplicate by manual review"
		if note != "" {
			reason = reason + ": " + note
		}
		s.auditPendingPrevented(ctx, pending, pending.SimilarityScore, reason)

	default:
		return fmt.Errorf("%w: unknown decision %q", models.ErrValidation, decision)
	}

	s.invalidateSummary(userID)
	logger.L.Info("Pending duplicate resolved", "userID", userID, "pendingID", pendingID, "decision", decision)
	return nil
}

func (s *ingestionServiceImpl) auditPendingPrevented(ctx context.Context, pending *models.PendingDuplicate, score int, reason string) {
	prevented := &models.PreventedDuplicate{
		UserID:                 pending.UserID,
		ExistingTransactionID:  pending.ExistingTransactionID,
		BlockedTransactionData: pending.NewTransactionData,
		Source:                 pending.Source,
		SourceReference:        pending.SourceReference,
		SimilarityScore:        score,
		Reason:                 reason,
	}
	if _, err := s.store.RecordPrevented(ctx, prevented); err != nil {
		logger.L.Error("Audit write failed (non-fatal)", "userID", pending.UserID, "error", err)
	}
}

// SweepPending re-evaluates the user's review queue against the current
// ledger in bounded chunks.
func (s *ingestionServiceImpl) SweepPending(ctx context.Context, userID int64) (*models.SweepReport, error) {
	report, err := s.store.SweepPending(ctx, userID, s.sweepChunk)
	if err != nil {
		return report, err
	}
	if report.ResolvedCount > 0 {
		s.invalidateSummary(userID)
	}
	return report, nil
}

// GetLedgerSummary returns the user's totals, excluding secondary halves of
// cross-source links, through the per-user cache.
func (s *ingestionServiceImpl) GetLedgerSummary(ctx context.Context, userID int64) (*models.LedgerSummary, error) {
	cacheKey := summaryCacheKey(userID)
	if cached, found := s.summaryCache.Get(cacheKey); found {
		logger.L.Debug("Cache hit for ledger summary", "userID", userID)
		return cached.(*models.LedgerSummary), nil
	}

	summary, err := s.store.Summary(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.summaryCache.Set(cacheKey, summary, s.cacheExpiry)
	return summary, nil
}

func (s *ingestionServiceImpl) invalidateSummary(userID int64) {
	if s.summaryCache != nil {
		s.summaryCache.Delete(summaryCacheKey(userID))
	}
}
