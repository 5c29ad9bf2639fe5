// Package matching holds the pure identity and similarity functions the
// classifier and the sweep are built on. Nothing in here touches the
// database; everything is deterministic over its inputs.
package matching

import (
	"fmt"
	"strings"

	"github.com/username/ledgerclear/backend/src/models"
)

// NoKey is the sentinel returned for records that carry no stable source
// reference (manual entries, feeds without IDs). Such records can never be
// exact re-deliveries; they go through similarity classification only.
const NoKey = ""

// IdentityKey derives the natural re-delivery key for a transaction record.
// Two records with the same non-sentinel key describe the same source event.
func IdentityKey(userID int64, source models.Source, sourceReference string) string {
	ref := strings.TrimSpace(sourceReference)
	if ref == "" {
		return NoKey
	}
	return fmt.Sprintf("%d|%s|%s", userID, source, ref)
}

// TransactionKey is IdentityKey applied to a canonical or candidate
// transaction.
func TransactionKey(tx *models.Transaction) string {
	return IdentityKey(tx.UserID, tx.Source, tx.SourceReference)
}
