package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateFormat is the wire and storage format for execution dates.
const DateFormat = "2006-01-02"

// ErrValidation marks a malformed incoming record. The offending record is
// rejected and reported; the rest of its batch continues.
var ErrValidation = errors.New("validation failed")

// IncomingRecord is a normalized transaction record as delivered by a feed
// importer. Amount arrives as a decimal string and is converted to currency
// minor units during validation; RawPayload is stored verbatim and never
// participates in matching.
type IncomingRecord struct {
	AccountID       string          `json:"accountId"`
	Source          Source          `json:"source"`
	SourceReference string          `json:"sourceReference,omitempty"`
	Amount          string          `json:"amount"`
	Currency        string          `json:"currency"`
	ExecutionDate   string          `json:"executionDate"`
	Description     string          `json:"description"`
	RawPayload      json.RawMessage `json:"rawPayload,omitempty"`
}

// IngestBatch is one importer sync run: an ordered set of records for a
// single user, account and source.
type IngestBatch struct {
	AccountID string           `json:"accountId"`
	Source    Source           `json:"source"`
	Records   []IncomingRecord `json:"records"`
}

// minorUnitExponents maps ISO currency codes to their minor-unit exponent.
// Codes not listed use the common two-decimal exponent.
var minorUnitExponents = map[string]int32{
	"BIF": 0, "CLP": 0, "DJF": 0, "GNF": 0, "ISK": 0, "JPY": 0,
	"KMF": 0, "KRW": 0, "PYG": 0, "RWF": 0, "UGX": 0, "VND": 0,
	"VUV": 0, "XAF": 0, "XOF": 0, "XPF": 0,
	"BHD": 3, "IQD": 3, "JOD": 3, "KWD": 3, "LYD": 3, "OMR": 3, "TND": 3,
}

func minorUnitExponent(currency string) int32 {
	if exp, ok := minorUnitExponents[currency]; ok {
		return exp
	}
	return 2
}

// ParseAmountMinorUnits converts a decimal amount string into signed minor
// units for the given currency. A non-numeric amount, or one carrying more
// precision than the currency's minor unit, is a validation error.
func ParseAmountMinorUnits(amount, currency string) (int64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return 0, fmt.Errorf("%w: non-numeric amount %q", ErrValidation, amount)
	}
	shifted := d.Shift(minorUnitExponent(currency))
	if !shifted.IsInteger() {
		return 0, fmt.Errorf("%w: amount %q has sub-minor-unit precision for %s", ErrValidation, amount, currency)
	}
	return shifted.IntPart(), nil
}

// FormatMinorUnits renders minor units back into the decimal string form
// used on the wire, e.g. -4500 EUR -> "-45.00".
func FormatMinorUnits(cents int64, currency string) string {
	return decimal.New(cents, -minorUnitExponent(currency)).StringFixed(minorUnitExponent(currency))
}

// Validate checks the record and returns the candidate Transaction it
// normalizes to. The candidate is not persisted here.
func (r *IncomingRecord) Validate(userID int64) (*Transaction, error) {
	if strings.TrimSpace(r.AccountID) == "" {
		return nil, fmt.Errorf("%w: accountId is required", ErrValidation)
	}
	if !r.Source.IsValid() {
		return nil, fmt.Errorf("%w: unknown source %q", ErrValidation, r.Source)
	}
	currency := strings.ToUpper(strings.TrimSpace(r.Currency))
	if len(currency) != 3 {
		return nil, fmt.Errorf("%w: invalid currency %q", ErrValidation, r.Currency)
	}
	if strings.TrimSpace(r.Amount) == "" {
		return nil, fmt.Errorf("%w: amount is required", ErrValidation)
	}
	cents, err := ParseAmountMinorUnits(r.Amount, currency)
	if err != nil {
		return nil, err
	}
	execDate, err := time.Parse(DateFormat, strings.TrimSpace(r.ExecutionDate))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid executionDate %q", ErrValidation, r.ExecutionDate)
	}

	return &Transaction{
		UserID:               userID,
		AccountID:            strings.TrimSpace(r.AccountID),
		Source:               r.Source,
		SourceReference:      strings.TrimSpace(r.SourceReference),
		AmountCents:          cents,
		Currency:             currency,
		ExecutionDate:        execDate.Format(DateFormat),
		Description:          strings.TrimSpace(r.Description),
		ReconciliationStatus: StatusNotReconciled,
		RawSourceData:        string(r.RawPayload),
	}, nil
}
