package models

// Source identifies which kind of feed a transaction record came from.
type Source string

const (
	SourceManual          Source = "manual"
	SourceBankFeed        Source = "bank-feed"
	SourceCardFeed        Source = "card-feed"
	SourcePaymentPlatform Source = "payment-platform"
)

// IsValid checks whether the source is one of the known feed kinds.
func (s Source) IsValid() bool {
	switch s {
	case SourceManual, SourceBankFeed, SourceCardFeed, SourcePaymentPlatform:
		return true
	}
	return false
}

// IsLedgerOfRecord reports whether the source is a bank-level ledger feed.
// Only ledger-of-record rows are eligible as the primary side of a
// cross-source link; platform rows describe the merchant view of the
// same money movement.
func (s Source) IsLedgerOfRecord() bool {
	return s == SourceBankFeed || s == SourceCardFeed
}

// ReconciliationStatus tracks whether a transaction participates in a
// cross-source link and in which role.
type ReconciliationStatus string

const (
	StatusNotReconciled       ReconciliationStatus = "not_reconciled"
	StatusReconciledPrimary   ReconciliationStatus = "reconciled_as_primary"
	StatusReconciledSecondary ReconciliationStatus = "reconciled_as_secondary"
)

// Transaction is a canonical ledger entry. Amounts are stored in currency
// minor units (cents for two-decimal currencies) so equality checks never
// touch floating point.
type Transaction struct {
	ID                       int64                `json:"id"`
	UserID                   int64                `json:"userId"`
	AccountID                string               `json:"accountId"`
	Source                   Source               `json:"source"`
	SourceReference          string               `json:"sourceReference,omitempty"`
	AmountCents              int64                `json:"amountCents"`
	Currency                 string               `json:"currency"`
	ExecutionDate            string               `json:"executionDate"` // ISO 2006-01-02
	Description              string               `json:"description"`
	MerchantHint             string               `json:"merchantHint,omitempty"`
	ReconciliationStatus     ReconciliationStatus `json:"reconciliationStatus"`
	ReconciledWithTransactID *int64               `json:"reconciledWithTransactionId,omitempty"`
	RawSourceData            string               `json:"rawSourceData,omitempty"`
	CreatedAt                string               `json:"createdAt,omitempty"`
}

// CountsTowardTotals reports whether this transaction's amount should be
// included in user-facing totals. Secondary halves of a cross-source link
// are retained for provenance only.
func (t *Transaction) CountsTowardTotals() bool {
	return t.ReconciliationStatus != StatusReconciledSecondary
}
