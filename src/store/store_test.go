package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/username/ledgerclear/backend/src/database"
	"github.com/username/ledgerclear/backend/src/logger"
	"github.com/username/ledgerclear/backend/src/models"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	if logger.L == nil {
		logger.InitLogger("error")
	}
	database.InitDB(filepath.Join(t.TempDir(), "ledger.db"))
	t.Cleanup(func() { database.DB.Close() })
	return NewStore(database.DB)
}

func newTx(userID int64, source models.Source, ref, date string, cents int64) *models.Transaction {
	return &models.Transaction{
		UserID:          userID,
		AccountID:       "acc-1",
		Source:          source,
		SourceReference: ref,
		AmountCents:     cents,
		Currency:        "EUR",
		ExecutionDate:   date,
		Description:     "TEST TRANSACTION",
	}
}

func mustCommit(t *testing.T, s *Store, tx *models.Transaction) *models.Transaction {
	t.Helper()
	committed, err := s.CommitNew(context.Background(), tx)
	if err != nil {
		t.Fatalf("CommitNew: %v", err)
	}
	return committed
}

func TestCommitNewAndGet(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	committed := mustCommit(t, s, newTx(1, models.SourceBankFeed, "TX-1", "2025-01-10", -4500))
	if committed.ID == 0 {
		t.Fatalf("committed ID not assigned")
	}

	got, err := s.GetTransaction(ctx, 1, committed.ID)
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if got.SourceReference != "TX-1" || got.AmountCents != -4500 {
		t.Errorf("round-trip mismatch: %+v", got)
	}
	if got.ReconciliationStatus != models.StatusNotReconciled {
		t.Errorf("status = %q, want not_reconciled", got.ReconciliationStatus)
	}

	if _, err := s.GetTransaction(ctx, 2, committed.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("cross-user fetch error = %v, want ErrNotFound", err)
	}
}

func TestCommitNewIdentityConflict(t *testing.T) {
	s := testStore(t)

	mustCommit(t, s, newTx(1, models.SourceBankFeed, "TX-1", "2025-01-10", -4500))

	_, err := s.CommitNew(context.Background(), newTx(1, models.SourceBankFeed, "TX-1", "2025-01-10", -4500))
	if !errors.Is(err, ErrConflict) {
		t.Errorf("duplicate identity key error = %v, want ErrConflict", err)
	}

	// Same reference under a different source or user is a distinct key.
	mustCommit(t, s, newTx(1, models.SourceCardFeed, "TX-1", "2025-01-10", -4500))
	mustCommit(t, s, newTx(2, models.SourceBankFeed, "TX-1", "2025-01-10", -4500))
}

func TestCommitNewWithoutReferenceNeverConflicts(t *testing.T) {
	s := testStore(t)

	// SQLite treats NULLs as distinct, so reference-less rows coexist.
	mustCommit(t, s, newTx(1, models.SourceManual, "", "2025-01-10", -4500))
	mustCommit(t, s, newTx(1, models.SourceManual, "", "2025-01-10", -4500))
}

func TestFindByIdentity(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	committed := mustCommit(t, s, newTx(1, models.SourceBankFeed, "TX-1", "2025-01-10", -4500))

	got, err := s.FindByIdentity(ctx, 1, models.SourceBankFeed, "TX-1")
	if err != nil {
		t.Fatalf("FindByIdentity: %v", err)
	}
	if got == nil || got.ID != committed.ID {
		t.Errorf("FindByIdentity = %+v, want id %d", got, committed.ID)
	}

	got, err = s.FindByIdentity(ctx, 1, models.SourceBankFeed, "TX-2")
	if err != nil {
		t.Fatalf("FindByIdentity (absent): %v", err)
	}
	if got != nil {
		t.Errorf("unclaimed key returned %+v, want nil", got)
	}
}

func TestNeighborsWindow(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	mustCommit(t, s, newTx(1, models.SourceBankFeed, "A", "2025-01-07", -100))
	mustCommit(t, s, newTx(1, models.SourceBankFeed, "B", "2025-01-10", -200))
	mustCommit(t, s, newTx(1, models.SourceBankFeed, "C", "2025-01-13", -300))
	mustCommit(t, s, newTx(1, models.SourceBankFeed, "D", "2025-01-14", -400)) // one day past the window
	other := newTx(1, models.SourceBankFeed, "E", "2025-01-10", -500)
	other.AccountID = "acc-2"
	mustCommit(t, s, other)

	got, err := s.Neighbors(ctx, 1, "acc-1", "2025-01-10", 3)
	if err != nil {
		t.Fatalf("Neighbors: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Neighbors returned %d rows, want 3: %+v", len(got), got)
	}
	for _, tx := range got {
		if tx.SourceReference == "D" || tx.AccountID != "acc-1" {
			t.Errorf("unexpected neighbor %+v", tx)
		}
	}
}

func TestBankCandidates(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	bank := mustCommit(t, s, newTx(1, models.SourceBankFeed, "B-1", "2025-01-10", -4500))
	mustCommit(t, s, newTx(1, models.SourceCardFeed, "C-1", "2025-01-12", 4500))      // magnitude match, inside window
	mustCommit(t, s, newTx(1, models.SourceBankFeed, "B-2", "2025-01-10", -4600))     // wrong amount
	mustCommit(t, s, newTx(1, models.SourceBankFeed, "B-3", "2025-01-20", -4500))     // outside window
	mustCommit(t, s, newTx(1, models.SourcePaymentPlatform, "P-1", "2025-01-10", -4500)) // not ledger-of-record
	usd := newTx(1, models.SourceBankFeed, "B-4", "2025-01-10", -4500)
	usd.Currency = "USD"
	mustCommit(t, s, usd)

	got, err := s.BankCandidates(ctx, 1, -4500, "EUR", "2025-01-10", 3)
	if err != nil {
		t.Fatalf("BankCandidates: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("BankCandidates returned %d rows, want 2: %+v", len(got), got)
	}
	if got[0].ID != bank.ID {
		t.Errorf("first candidate id = %d, want %d", got[0].ID, bank.ID)
	}
}

func TestLinkPair(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	bank := mustCommit(t, s, newTx(1, models.SourceBankFeed, "B-1", "2025-01-10", -4500))
	platform := mustCommit(t, s, newTx(1, models.SourcePaymentPlatform, "P-1", "2025-01-11", -4500))

	if err := s.LinkPair(ctx, 1, bank.ID, platform.ID, "COFFEE MERCHANT"); err != nil {
		t.Fatalf("LinkPair: %v", err)
	}

	gotBank, _ := s.GetTransaction(ctx, 1, bank.ID)
	gotPlatform, _ := s.GetTransaction(ctx, 1, platform.ID)
	if gotBank.ReconciliationStatus != models.StatusReconciledPrimary {
		t.Errorf("primary status = %q", gotBank.ReconciliationStatus)
	}
	if gotPlatform.ReconciliationStatus != models.StatusReconciledSecondary {
		t.Errorf("secondary status = %q", gotPlatform.ReconciliationStatus)
	}
	if gotBank.ReconciledWithTransactID == nil || *gotBank.ReconciledWithTransactID != platform.ID {
		t.Errorf("primary link pointer = %v, want %d", gotBank.ReconciledWithTransactID, platform.ID)
	}
	if gotPlatform.ReconciledWithTransactID == nil || *gotPlatform.ReconciledWithTransactID != bank.ID {
		t.Errorf("secondary link pointer = %v, want %d", gotPlatform.ReconciledWithTransactID, bank.ID)
	}
	if gotBank.MerchantHint != "COFFEE MERCHANT" {
		t.Errorf("merchant hint = %q", gotBank.MerchantHint)
	}
	if gotBank.Description != "TEST TRANSACTION" {
		t.Errorf("primary description changed to %q", gotBank.Description)
	}
}

func TestLinkPairRefusesReconciledRows(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	bank := mustCommit(t, s, newTx(1, models.SourceBankFeed, "B-1", "2025-01-10", -4500))
	p1 := mustCommit(t, s, newTx(1, models.SourcePaymentPlatform, "P-1", "2025-01-11", -4500))
	p2 := mustCommit(t, s, newTx(1, models.SourcePaymentPlatform, "P-2", "2025-01-11", -4500))

	if err := s.LinkPair(ctx, 1, bank.ID, p1.ID, ""); err != nil {
		t.Fatalf("LinkPair: %v", err)
	}
	if err := s.LinkPair(ctx, 1, bank.ID, p2.ID, ""); !errors.Is(err, ErrConflict) {
		t.Errorf("re-link error = %v, want ErrConflict", err)
	}

	// The refused link must not have touched the second platform row.
	gotP2, _ := s.GetTransaction(ctx, 1, p2.ID)
	if gotP2.ReconciliationStatus != models.StatusNotReconciled {
		t.Errorf("p2 status = %q after refused link", gotP2.ReconciliationStatus)
	}
}

func TestSummaryExcludesSecondaries(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	bank := mustCommit(t, s, newTx(1, models.SourceBankFeed, "B-1", "2025-01-10", -4500))
	platform := mustCommit(t, s, newTx(1, models.SourcePaymentPlatform, "P-1", "2025-01-11", -4500))
	mustCommit(t, s, newTx(1, models.SourceBankFeed, "B-2", "2025-01-12", -1000))
	if err := s.LinkPair(ctx, 1, bank.ID, platform.ID, ""); err != nil {
		t.Fatalf("LinkPair: %v", err)
	}

	summary, err := s.Summary(ctx, 1)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if summary.TransactionCount != 3 {
		t.Errorf("TransactionCount = %d, want 3", summary.TransactionCount)
	}
	if summary.SecondaryExcluded != 1 {
		t.Errorf("SecondaryExcluded = %d, want 1", summary.SecondaryExcluded)
	}
	if summary.CountedTransactions != 2 {
		t.Errorf("CountedTransactions = %d, want 2", summary.CountedTransactions)
	}
	if got := summary.TotalsByCurrency["EUR"]; got != -5500 {
		t.Errorf("EUR total = %d, want -5500 (secondary excluded)", got)
	}
}

func TestParkPendingSuppressesRedelivery(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	existing := mustCommit(t, s, newTx(1, models.SourceBankFeed, "TX-1", "2025-01-10", -4500))
	candidate := newTx(1, models.SourceBankFeed, "TX-9", "2025-01-10", -4500)

	first, created, err := s.ParkPending(ctx, candidate, existing, 72)
	if err != nil {
		t.Fatalf("ParkPending: %v", err)
	}
	if !created {
		t.Fatalf("first park reported created=false")
	}
	if first.SimilarityScore != 72 || first.ExistingTransactionID == nil {
		t.Errorf("pending entry = %+v", first)
	}

	second, created, err := s.ParkPending(ctx, candidate, existing, 72)
	if err != nil {
		t.Fatalf("ParkPending (redelivery): %v", err)
	}
	if created || second.ID != first.ID {
		t.Errorf("redelivery created a new entry: created=%v id=%s want %s", created, second.ID, first.ID)
	}
}

func TestParkPendingWithoutReferenceAlwaysParks(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	candidate := newTx(1, models.SourceManual, "", "2025-01-10", -4500)
	a, created, err := s.ParkPending(ctx, candidate, nil, 65)
	if err != nil || !created {
		t.Fatalf("ParkPending: %v created=%v", err, created)
	}
	b, created, err := s.ParkPending(ctx, candidate, nil, 65)
	if err != nil || !created {
		t.Fatalf("ParkPending (second): %v created=%v", err, created)
	}
	if a.ID == b.ID {
		t.Errorf("reference-less candidates collapsed onto one pending entry")
	}
}

func TestMarkPendingResolvedGuards(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	candidate := newTx(1, models.SourceBankFeed, "TX-1", "2025-01-10", -4500)
	pending, _, err := s.ParkPending(ctx, candidate, nil, 70)
	if err != nil {
		t.Fatalf("ParkPending: %v", err)
	}

	if err := s.MarkPendingResolved(ctx, 1, pending.ID, models.ResolutionRejected); err != nil {
		t.Fatalf("MarkPendingResolved: %v", err)
	}
	// Terminal state: a second resolution attempt finds nothing unresolved.
	if err := s.MarkPendingResolved(ctx, 1, pending.ID, models.ResolutionAccepted); !errors.Is(err, ErrNotFound) {
		t.Errorf("re-resolve error = %v, want ErrNotFound", err)
	}

	got, err := s.GetPending(ctx, 1, pending.ID)
	if err != nil {
		t.Fatalf("GetPending: %v", err)
	}
	if !got.Resolved || got.Resolution == nil || *got.Resolution != models.ResolutionRejected {
		t.Errorf("resolved entry = %+v", got)
	}
	if got.ResolvedAt == "" {
		t.Errorf("ResolvedAt not set")
	}
}

func TestRecordPreventedGoneReference(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	missing := int64(99999)
	p, err := s.RecordPrevented(ctx, &models.PreventedDuplicate{
		UserID:                 1,
		ExistingTransactionID:  &missing,
		BlockedTransactionData: "{}",
		Source:                 models.SourceBankFeed,
		SourceReference:        "TX-1",
		SimilarityScore:        97,
		Reason:                 "similarity 97 at or above auto-reject threshold",
	})
	if err != nil {
		t.Fatalf("RecordPrevented: %v", err)
	}
	if p.ExistingTransactionID != nil {
		t.Errorf("dangling reference kept: %v", *p.ExistingTransactionID)
	}

	trail, err := s.ListPrevented(ctx, 1)
	if err != nil {
		t.Fatalf("ListPrevented: %v", err)
	}
	if len(trail) != 1 {
		t.Fatalf("audit trail has %d rows, want 1", len(trail))
	}
	if trail[0].Reason != "similarity 97 at or above auto-reject threshold (referenced transaction no longer present)" {
		t.Errorf("reason = %q, missing annotation", trail[0].Reason)
	}
}

func TestSweepResolvesLandedMatches(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	// Park a candidate whose real match has not arrived yet.
	candidate := newTx(1, models.SourceBankFeed, "TX-42", "2025-01-10", -4500)
	pending, _, err := s.ParkPending(ctx, candidate, nil, 70)
	if err != nil {
		t.Fatalf("ParkPending: %v", err)
	}
	// Park another that will stay unmatched.
	stale := newTx(1, models.SourceBankFeed, "TX-OTHER", "2025-01-10", -1000)
	if _, _, err := s.ParkPending(ctx, stale, nil, 65); err != nil {
		t.Fatalf("ParkPending: %v", err)
	}

	// The match lands later.
	landed := mustCommit(t, s, newTx(1, models.SourceBankFeed, "TX-42", "2025-01-10", -4500))

	report, err := s.SweepPending(ctx, 1, 10)
	if err != nil {
		t.Fatalf("SweepPending: %v", err)
	}
	if report.ResolvedCount != 1 || report.PreventedCount != 1 {
		t.Errorf("sweep report = %+v, want 1/1", report)
	}

	got, err := s.GetPending(ctx, 1, pending.ID)
	if err != nil {
		t.Fatalf("GetPending: %v", err)
	}
	if !got.Resolved || got.Resolution == nil || *got.Resolution != models.ResolutionSwept {
		t.Errorf("swept entry = %+v", got)
	}

	trail, err := s.ListPrevented(ctx, 1)
	if err != nil {
		t.Fatalf("ListPrevented: %v", err)
	}
	if len(trail) != 1 {
		t.Fatalf("audit trail has %d rows, want 1", len(trail))
	}
	if trail[0].Reason != SweepReason || trail[0].SimilarityScore != 100 {
		t.Errorf("audit row = %+v", trail[0])
	}
	if trail[0].ExistingTransactionID == nil || *trail[0].ExistingTransactionID != landed.ID {
		t.Errorf("audit row points at %v, want %d", trail[0].ExistingTransactionID, landed.ID)
	}

	// Re-running finds nothing left to sweep.
	report, err = s.SweepPending(ctx, 1, 10)
	if err != nil {
		t.Fatalf("SweepPending (rerun): %v", err)
	}
	if report.ResolvedCount != 0 {
		t.Errorf("rerun resolved %d entries, want 0", report.ResolvedCount)
	}

	// The unmatched entry is still queued.
	unresolved, err := s.ListPending(ctx, 1, true)
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(unresolved) != 1 || unresolved[0].SourceReference != "TX-OTHER" {
		t.Errorf("unresolved queue = %+v, want only TX-OTHER", unresolved)
	}
}
