package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/username/ledgerclear/backend/src/models"
)

// windowBounds turns an ISO date plus a day window into inclusive ISO
// bounds. ISO dates compare correctly as strings, which keeps the window
// queries on the (user_id, execution_date) index.
func windowBounds(executionDate string, windowDays int) (string, string, error) {
	day, err := time.Parse(models.DateFormat, executionDate)
	if err != nil {
		return "", "", fmt.Errorf("invalid execution date %q: %w", executionDate, err)
	}
	from := day.AddDate(0, 0, -windowDays).Format(models.DateFormat)
	to := day.AddDate(0, 0, windowDays).Format(models.DateFormat)
	return from, to, nil
}

func (s *Store) queryTransactions(ctx context.Context, query string, args ...any) ([]models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying transactions: %w", err)
	}
	defer rows.Close()

	var out []models.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning transaction row: %w", err)
		}
		out = append(out, *tx)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over transaction rows: %w", err)
	}
	return out, nil
}

// Neighbors returns the user's transactions on the same account whose
// execution date falls inside the similarity window around executionDate.
// This is the bounded lookback/lookahead feeding the classifier; it is
// never a full-ledger scan.
func (s *Store) Neighbors(ctx context.Context, userID int64, accountID, executionDate string, windowDays int) ([]models.Transaction, error) {
	from, to, err := windowBounds(executionDate, windowDays)
	if err != nil {
		return nil, err
	}
	return s.queryTransactions(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE user_id = ? AND account_id = ? AND execution_date BETWEEN ? AND ?
		 ORDER BY execution_date ASC, id ASC`,
		userID, accountID, from, to)
}

// BankCandidates returns unreconciled ledger-of-record transactions with
// the given amount magnitude inside the cross-source window. The reconciler
// links only when exactly one row comes back.
func (s *Store) BankCandidates(ctx context.Context, userID int64, amountCents int64, currency, executionDate string, windowDays int) ([]models.Transaction, error) {
	from, to, err := windowBounds(executionDate, windowDays)
	if err != nil {
		return nil, err
	}
	abs := amountCents
	if abs < 0 {
		abs = -abs
	}
	return s.queryTransactions(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE user_id = ? AND source IN (?, ?) AND reconciliation_status = ?
		   AND ABS(amount_cents) = ? AND currency = ?
		   AND execution_date BETWEEN ? AND ?
		 ORDER BY execution_date ASC, id ASC`,
		userID, models.SourceBankFeed, models.SourceCardFeed, models.StatusNotReconciled,
		abs, currency, from, to)
}

// UnreconciledPlatform pages through the user's payment-platform
// transactions still awaiting reconciliation, in id order. afterID carries
// the cursor between chunks.
func (s *Store) UnreconciledPlatform(ctx context.Context, userID, afterID int64, limit int) ([]models.Transaction, error) {
	return s.queryTransactions(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE user_id = ? AND source = ? AND reconciliation_status = ? AND id > ?
		 ORDER BY id ASC LIMIT ?`,
		userID, models.SourcePaymentPlatform, models.StatusNotReconciled, afterID, limit)
}

// ListTransactions returns the user's full ledger, newest first.
func (s *Store) ListTransactions(ctx context.Context, userID int64) ([]models.Transaction, error) {
	return s.queryTransactions(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE user_id = ? ORDER BY execution_date DESC, id DESC`, userID)
}

// LinkPair records a cross-source link inside one database transaction:
// the bank row becomes primary, the platform row secondary, each pointing
// at the other. The merchant hint from the platform record is copied onto
// the primary without touching its original description. Both rows must
// still be unreconciled or the link is refused, which keeps re-runs from
// re-linking or double-linking.
func (s *Store) LinkPair(ctx context.Context, userID, primaryID, secondaryID int64, merchantHint string) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error beginning link transaction: %w", err)
	}
	defer dbTx.Rollback()

	res, err := dbTx.ExecContext(ctx, `
		UPDATE transactions
		SET reconciliation_status = ?, reconciled_with_transaction_id = ?, merchant_hint = ?
		WHERE user_id = ? AND id = ? AND reconciliation_status = ?`,
		models.StatusReconciledPrimary, secondaryID, merchantHint,
		userID, primaryID, models.StatusNotReconciled)
	if err != nil {
		return fmt.Errorf("error updating primary transaction %d: %w", primaryID, err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return fmt.Errorf("%w: primary transaction %d not linkable", ErrConflict, primaryID)
	}

	res, err = dbTx.ExecContext(ctx, `
		UPDATE transactions
		SET reconciliation_status = ?, reconciled_with_transaction_id = ?
		WHERE user_id = ? AND id = ? AND reconciliation_status = ?`,
		models.StatusReconciledSecondary, primaryID,
		userID, secondaryID, models.StatusNotReconciled)
	if err != nil {
		return fmt.Errorf("error updating secondary transaction %d: %w", secondaryID, err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return fmt.Errorf("%w: secondary transaction %d not linkable", ErrConflict, secondaryID)
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("error committing link transaction: %w", err)
	}
	return nil
}

// Summary aggregates the user's ledger totals, excluding the secondary
// halves of cross-source links so linked payments are counted once.
func (s *Store) Summary(ctx context.Context, userID int64) (*models.LedgerSummary, error) {
	summary := &models.LedgerSummary{
		UserID:           userID,
		TotalsByCurrency: make(map[string]int64),
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT currency, reconciliation_status, COUNT(*), SUM(amount_cents)
		FROM transactions WHERE user_id = ?
		GROUP BY currency, reconciliation_status`, userID)
	if err != nil {
		return nil, fmt.Errorf("error querying summary for userID %d: %w", userID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var currency string
		var status models.ReconciliationStatus
		var count int
		var sum sql.NullInt64
		if err := rows.Scan(&currency, &status, &count, &sum); err != nil {
			return nil, fmt.Errorf("error scanning summary row: %w", err)
		}
		summary.TransactionCount += count
		if status == models.StatusReconciledSecondary {
			summary.SecondaryExcluded += count
			continue
		}
		summary.CountedTransactions += count
		summary.TotalsByCurrency[currency] += sum.Int64
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over summary rows: %w", err)
	}
	return summary, nil
}
