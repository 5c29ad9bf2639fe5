package models

// RecordError describes one rejected record inside a batch. The index is the
// record's position in the submitted batch.
type RecordError struct {
	Index   int    `json:"index"`
	Message string `json:"message"`
}

// BatchReport is the per-batch outcome handed back to the feed importer.
type BatchReport struct {
	BatchID           string        `json:"batchId"`
	Accepted          int           `json:"accepted"`
	ExactDuplicates   int           `json:"exactDuplicates"`
	ParkedForReview   int           `json:"parkedForReview"`
	CrossSourceLinked int           `json:"crossSourceLinked"`
	Errors            []RecordError `json:"errors"`
}

// ReconcileReport aggregates a bulk cross-source reconciliation run.
type ReconcileReport struct {
	ReconciledCount          int           `json:"reconciledCount"`
	UnreconciledCount        int           `json:"unreconciledCount"`
	UnreconciledTransactions []Transaction `json:"unreconciledTransactions"`
}

// SweepReport aggregates one pending-queue sweep.
type SweepReport struct {
	ResolvedCount  int `json:"resolvedCount"`
	PreventedCount int `json:"preventedCount"`
}

// LedgerSummary is the per-user totals view. Secondary halves of
// cross-source links are excluded from the totals but counted separately.
type LedgerSummary struct {
	UserID              int64            `json:"userId"`
	TransactionCount    int              `json:"transactionCount"`
	CountedTransactions int              `json:"countedTransactions"`
	SecondaryExcluded   int              `json:"secondaryExcluded"`
	TotalsByCurrency    map[string]int64 `json:"totalsByCurrency"` // minor units
}
