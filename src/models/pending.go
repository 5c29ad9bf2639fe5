package models

// Resolution records how a pending duplicate left the review queue.
type Resolution string

const (
	ResolutionAccepted Resolution = "accepted" // human: commit the candidate as a new transaction
	ResolutionRejected Resolution = "rejected" // human: confirmed duplicate, nothing committed
	ResolutionSwept    Resolution = "swept"    // automatic: exact identity match proved retroactively
)

// PendingDuplicate is an ambiguous candidate parked for adjudication. The
// candidate itself is not committed to the ledger while unresolved. Resolved
// rows are retained for audit; there is no path back to unresolved.
type PendingDuplicate struct {
	ID                      string      `json:"id"`
	UserID                  int64       `json:"userId"`
	Source                  Source      `json:"source"`
	SourceReference         string      `json:"sourceReference,omitempty"`
	NewTransactionData      string      `json:"newTransactionData"`
	ExistingTransactionID   *int64      `json:"existingTransactionId,omitempty"`
	ExistingTransactionData string      `json:"existingTransactionData,omitempty"`
	SimilarityScore         int         `json:"similarityScore"`
	Resolved                bool        `json:"resolved"`
	Resolution              *Resolution `json:"resolution,omitempty"`
	CreatedAt               string      `json:"createdAt"`
	ResolvedAt              string      `json:"resolvedAt,omitempty"`
}

// PreventedDuplicate is one append-only audit row: a candidate that was
// blocked from entering the ledger, with the rule that fired. Never mutated
// or deleted by the engine.
type PreventedDuplicate struct {
	ID                      string `json:"id"`
	UserID                  int64  `json:"userId"`
	ExistingTransactionID   *int64 `json:"existingTransactionId,omitempty"`
	BlockedTransactionData  string `json:"blockedTransactionData"`
	Source                  Source `json:"source"`
	SourceReference         string `json:"sourceReference,omitempty"`
	SimilarityScore         int    `json:"similarityScore"`
	Reason                  string `json:"reason"`
	CreatedAt               string `json:"createdAt"`
}
