package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/username/ledgerclear/backend/src/logger"
	"github.com/username/ledgerclear/backend/src/models"
)

// ParkPending inserts a candidate into the review queue. Re-delivery of a
// candidate whose identity key already has an unresolved pending entry is a
// no-op; the existing entry is returned with created=false. Candidates
// without a source reference have no key to collide on and always park.
func (s *Store) ParkPending(ctx context.Context, candidate *models.Transaction, existing *models.Transaction, score int) (*models.PendingDuplicate, bool, error) {
	if candidate.SourceReference != "" {
		row := s.db.QueryRowContext(ctx, `
			SELECT `+pendingColumns+` FROM pending_duplicates
			WHERE user_id = ? AND source = ? AND source_reference = ? AND resolved = 0`,
			candidate.UserID, candidate.Source, candidate.SourceReference)
		if pending, err := scanPending(row); err == nil {
			logger.L.Debug("Duplicate pending entry suppressed",
				"userID", candidate.UserID, "source", candidate.Source,
				"sourceReference", candidate.SourceReference)
			return pending, false, nil
		} else if err != sql.ErrNoRows {
			return nil, false, fmt.Errorf("error checking pending queue: %w", err)
		}
	}

	candidateJSON, err := json.Marshal(candidate)
	if err != nil {
		return nil, false, fmt.Errorf("error encoding candidate snapshot: %w", err)
	}
	pending := &models.PendingDuplicate{
		ID:                 uuid.NewString(),
		UserID:             candidate.UserID,
		Source:             candidate.Source,
		SourceReference:    candidate.SourceReference,
		NewTransactionData: string(candidateJSON),
		SimilarityScore:    score,
	}
	if existing != nil {
		id := existing.ID
		pending.ExistingTransactionID = &id
		existingJSON, err := json.Marshal(existing)
		if err != nil {
			return nil, false, fmt.Errorf("error encoding existing snapshot: %w", err)
		}
		pending.ExistingTransactionData = string(existingJSON)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pending_duplicates (id, user_id, source, source_reference,
			new_transaction_data, existing_transaction_id, existing_transaction_data, similarity_score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		pending.ID, pending.UserID, pending.Source, nullable(pending.SourceReference),
		pending.NewTransactionData, pending.ExistingTransactionID,
		nullable(pending.ExistingTransactionData), pending.SimilarityScore)
	if err != nil {
		return nil, false, fmt.Errorf("error parking pending duplicate: %w", err)
	}
	return pending, true, nil
}

// RecordPrevented appends one audit row. If the referenced existing
// transaction has since been removed, the row is written with a null
// reference and an annotated reason instead of failing the governing
// operation.
func (s *Store) RecordPrevented(ctx context.Context, p *models.PreventedDuplicate) (*models.PreventedDuplicate, error) {
	if p.ExistingTransactionID != nil {
		var exists int
		err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM transactions WHERE user_id = ? AND id = ?`,
			p.UserID, *p.ExistingTransactionID).Scan(&exists)
		if err != nil {
			return nil, fmt.Errorf("error verifying existing transaction reference: %w", err)
		}
		if exists == 0 {
			p.Reason = p.Reason + " (referenced transaction no longer present)"
			p.ExistingTransactionID = nil
		}
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO prevented_duplicates (id, user_id, existing_transaction_id,
			blocked_transaction_data, source, source_reference, similarity_score, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.ExistingTransactionID, p.BlockedTransactionData,
		p.Source, nullable(p.SourceReference), p.SimilarityScore, p.Reason)
	if err != nil {
		return nil, fmt.Errorf("error recording prevented duplicate: %w", err)
	}
	return p, nil
}

const pendingColumns = `id, user_id, source, source_reference, new_transaction_data,
	existing_transaction_id, existing_transaction_data, similarity_score,
	resolved, resolution, created_at, resolved_at`

func scanPending(row interface{ Scan(...any) error }) (*models.PendingDuplicate, error) {
	var p models.PendingDuplicate
	var sourceRef, existingData, resolution, createdAt, resolvedAt sql.NullString
	var existingID sql.NullInt64
	var resolved int
	err := row.Scan(&p.ID, &p.UserID, &p.Source, &sourceRef, &p.NewTransactionData,
		&existingID, &existingData, &p.SimilarityScore, &resolved, &resolution,
		&createdAt, &resolvedAt)
	if err != nil {
		return nil, err
	}
	p.SourceReference = sourceRef.String
	p.ExistingTransactionData = existingData.String
	p.Resolved = resolved == 1
	p.CreatedAt = createdAt.String
	p.ResolvedAt = resolvedAt.String
	if existingID.Valid {
		id := existingID.Int64
		p.ExistingTransactionID = &id
	}
	if resolution.Valid {
		res := models.Resolution(resolution.String)
		p.Resolution = &res
	}
	return &p, nil
}

// GetPending fetches one pending duplicate scoped to its owner.
func (s *Store) GetPending(ctx context.Context, userID int64, pendingID string) (*models.PendingDuplicate, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+pendingColumns+` FROM pending_duplicates WHERE user_id = ? AND id = ?`,
		userID, pendingID)
	p, err := scanPending(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: pending duplicate %s", ErrNotFound, pendingID)
	}
	if err != nil {
		return nil, fmt.Errorf("error fetching pending duplicate %s: %w", pendingID, err)
	}
	return p, nil
}

// MarkPendingResolved moves an unresolved pending entry to its terminal
// state. Returns ErrNotFound when the entry is missing or already resolved;
// there is no path back to unresolved.
func (s *Store) MarkPendingResolved(ctx context.Context, userID int64, pendingID string, resolution models.Resolution) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pending_duplicates
		SET resolved = 1, resolution = ?, resolved_at = CURRENT_TIMESTAMP
		WHERE user_id = ? AND id = ? AND resolved = 0`,
		resolution, userID, pendingID)
	if err != nil {
		return fmt.Errorf("error resolving pending duplicate %s: %w", pendingID, err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return fmt.Errorf("%w: unresolved pending duplicate %s", ErrNotFound, pendingID)
	}
	return nil
}

// ListPending returns the user's pending duplicates, optionally restricted
// to the unresolved queue, newest first.
func (s *Store) ListPending(ctx context.Context, userID int64, unresolvedOnly bool) ([]models.PendingDuplicate, error) {
	query := `SELECT ` + pendingColumns + ` FROM pending_duplicates WHERE user_id = ?`
	if unresolvedOnly {
		query += ` AND resolved = 0`
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("error querying pending duplicates for userID %d: %w", userID, err)
	}
	defer rows.Close()

	var out []models.PendingDuplicate
	for rows.Next() {
		p, err := scanPending(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning pending duplicate row: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// ListPrevented returns the user's audit trail, newest first.
func (s *Store) ListPrevented(ctx context.Context, userID int64) ([]models.PreventedDuplicate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, existing_transaction_id, blocked_transaction_data,
			source, source_reference, similarity_score, reason, created_at
		FROM prevented_duplicates WHERE user_id = ?
		ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("error querying prevented duplicates for userID %d: %w", userID, err)
	}
	defer rows.Close()

	var out []models.PreventedDuplicate
	for rows.Next() {
		var p models.PreventedDuplicate
		var sourceRef, createdAt sql.NullString
		var existingID sql.NullInt64
		if err := rows.Scan(&p.ID, &p.UserID, &existingID, &p.BlockedTransactionData,
			&p.Source, &sourceRef, &p.SimilarityScore, &p.Reason, &createdAt); err != nil {
			return nil, fmt.Errorf("error scanning prevented duplicate row: %w", err)
		}
		p.SourceReference = sourceRef.String
		p.CreatedAt = createdAt.String
		if existingID.Valid {
			id := existingID.Int64
			p.ExistingTransactionID = &id
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
