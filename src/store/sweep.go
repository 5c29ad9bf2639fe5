package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/username/ledgerclear/backend/src/logger"
	"github.com/username/ledgerclear/backend/src/models"
)

// SweepReason is recorded on every audit row the sweep emits.
const SweepReason = "exact identity match - retroactive"

// SweepPending re-evaluates the unresolved pending queue against the
// current ledger. Any pending entry whose identity key now matches a
// canonical transaction is a proven false positive: the real match landed
// (or was normalized) after the entry was parked. Each such entry is marked
// resolved and a PreventedDuplicate audit row pointing at the real match is
// written, inside the same database transaction as its chunk, so an
// interrupted sweep never leaves a partial audit trail and loses at most
// one chunk of progress. Safe to re-run; resolved entries drop out of the
// scan.
func (s *Store) SweepPending(ctx context.Context, userID int64, chunkSize int) (*models.SweepReport, error) {
	if chunkSize <= 0 {
		chunkSize = 200
	}
	report := &models.SweepReport{}

	for {
		n, err := s.sweepChunk(ctx, userID, chunkSize, report)
		if err != nil {
			return report, err
		}
		if n < chunkSize {
			break
		}
	}

	logger.L.Info("Pending sweep complete", "userID", userID,
		"resolved", report.ResolvedCount, "prevented", report.PreventedCount)
	return report, nil
}

type sweepMatch struct {
	pendingID       string
	source          models.Source
	sourceReference string
	candidateData   string
	matchID         int64
}

func (s *Store) sweepChunk(ctx context.Context, userID int64, chunkSize int, report *models.SweepReport) (int, error) {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("error beginning sweep chunk: %w", err)
	}
	defer dbTx.Rollback()

	rows, err := dbTx.QueryContext(ctx, `
		SELECT p.id, p.source, p.source_reference, p.new_transaction_data, t.id
		FROM pending_duplicates p
		JOIN transactions t
		  ON t.user_id = p.user_id
		 AND t.source = p.source
		 AND t.source_reference = p.source_reference
		WHERE p.user_id = ? AND p.resolved = 0 AND p.source_reference IS NOT NULL
		ORDER BY p.created_at ASC, p.id ASC
		LIMIT ?`, userID, chunkSize)
	if err != nil {
		return 0, fmt.Errorf("error querying sweep candidates for userID %d: %w", userID, err)
	}

	var matches []sweepMatch
	for rows.Next() {
		var m sweepMatch
		if err := rows.Scan(&m.pendingID, &m.source, &m.sourceReference, &m.candidateData, &m.matchID); err != nil {
			rows.Close()
			return 0, fmt.Errorf("error scanning sweep candidate: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("error iterating sweep candidates: %w", err)
	}
	rows.Close()

	if len(matches) == 0 {
		return 0, nil
	}

	for _, m := range matches {
		res, err := dbTx.ExecContext(ctx, `
			UPDATE pending_duplicates
			SET resolved = 1, resolution = ?, resolved_at = CURRENT_TIMESTAMP
			WHERE id = ? AND resolved = 0`,
			models.ResolutionSwept, m.pendingID)
		if err != nil {
			return 0, fmt.Errorf("error resolving swept pending %s: %w", m.pendingID, err)
		}
		if n, _ := res.RowsAffected(); n != 1 {
			continue // raced with an adjudication; nothing to audit
		}

		_, err = dbTx.ExecContext(ctx, `
			INSERT INTO prevented_duplicates (id, user_id, existing_transaction_id,
				blocked_transaction_data, source, source_reference, similarity_score, reason)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), userID, m.matchID, m.candidateData,
			m.source, m.sourceReference, 100, SweepReason)
		if err != nil {
			return 0, fmt.Errorf("error writing sweep audit row for pending %s: %w", m.pendingID, err)
		}
		report.ResolvedCount++
		report.PreventedCount++
	}

	if err := dbTx.Commit(); err != nil {
		return 0, fmt.Errorf("error committing sweep chunk: %w", err)
	}
	return len(matches), nil
}
