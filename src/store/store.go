// Package store owns the durable reconciliation ledger: canonical
// transactions, the pending-review queue and the prevented-duplicate audit
// trail, together with their uniqueness and resolution-state invariants.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/username/ledgerclear/backend/src/logger"
	"github.com/username/ledgerclear/backend/src/models"
)

var (
	// ErrConflict is returned when an insert loses the race on the
	// (user_id, source, source_reference) uniqueness constraint. It is an
	// expected outcome under concurrent ingestion: the caller re-classifies
	// the record as an exact duplicate instead of failing.
	ErrConflict = errors.New("identity key conflict")

	// ErrNotFound is returned when a referenced row does not exist.
	ErrNotFound = errors.New("not found")
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// isUniqueViolation matches the sqlite unique-constraint error text, the
// same way the driver surfaces it on duplicate uploads.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

const transactionColumns = `id, user_id, account_id, source, source_reference, amount_cents, currency,
	execution_date, description, merchant_hint, reconciliation_status,
	reconciled_with_transaction_id, raw_source_data, created_at`

func scanTransaction(row interface{ Scan(...any) error }) (*models.Transaction, error) {
	var tx models.Transaction
	var sourceRef, rawData, createdAt sql.NullString
	var reconciledWith sql.NullInt64
	err := row.Scan(&tx.ID, &tx.UserID, &tx.AccountID, &tx.Source, &sourceRef, &tx.AmountCents,
		&tx.Currency, &tx.ExecutionDate, &tx.Description, &tx.MerchantHint,
		&tx.ReconciliationStatus, &reconciledWith, &rawData, &createdAt)
	if err != nil {
		return nil, err
	}
	tx.SourceReference = sourceRef.String
	tx.RawSourceData = rawData.String
	tx.CreatedAt = createdAt.String
	if reconciledWith.Valid {
		id := reconciledWith.Int64
		tx.ReconciledWithTransactID = &id
	}
	return &tx, nil
}

// nullable maps the empty string to NULL so the uniqueness constraint only
// applies to records that actually carry a source reference.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// CommitNew inserts a candidate as a canonical ledger transaction. A
// uniqueness violation on the identity key is reported as ErrConflict; the
// caller must re-classify rather than retry blindly.
func (s *Store) CommitNew(ctx context.Context, tx *models.Transaction) (*models.Transaction, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (user_id, account_id, source, source_reference, amount_cents,
			currency, execution_date, description, merchant_hint, reconciliation_status, raw_source_data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.UserID, tx.AccountID, tx.Source, nullable(tx.SourceReference), tx.AmountCents,
		tx.Currency, tx.ExecutionDate, tx.Description, tx.MerchantHint,
		models.StatusNotReconciled, nullable(tx.RawSourceData))
	if err != nil {
		if isUniqueViolation(err) {
			logger.L.Debug("Identity key conflict on commit",
				"userID", tx.UserID, "source", tx.Source, "sourceReference", tx.SourceReference)
			return nil, fmt.Errorf("%w: (user %d, %s, %s)", ErrConflict, tx.UserID, tx.Source, tx.SourceReference)
		}
		return nil, fmt.Errorf("error inserting transaction for userID %d: %w", tx.UserID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("error reading inserted transaction id: %w", err)
	}
	committed := *tx
	committed.ID = id
	committed.ReconciliationStatus = models.StatusNotReconciled
	return &committed, nil
}

// GetTransaction fetches one transaction scoped to its owner.
func (s *Store) GetTransaction(ctx context.Context, userID, id int64) (*models.Transaction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE user_id = ? AND id = ?`, userID, id)
	tx, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: transaction %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("error fetching transaction %d: %w", id, err)
	}
	return tx, nil
}

// FindByIdentity looks up the canonical transaction holding a given
// identity key, or nil when the key is unclaimed. Callers must not pass an
// empty source reference; records without one have no identity key.
func (s *Store) FindByIdentity(ctx context.Context, userID int64, source models.Source, sourceReference string) (*models.Transaction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE user_id = ? AND source = ? AND source_reference = ?`,
		userID, source, sourceReference)
	tx, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error querying identity key for userID %d: %w", userID, err)
	}
	return tx, nil
}
