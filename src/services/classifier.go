package services

import (
	"context"
	"fmt"

	"github.com/username/ledgerclear/backend/src/matching"
	"github.com/username/ledgerclear/backend/src/models"
	"github.com/username/ledgerclear/backend/src/store"
)

// Outcome is the classifier's verdict for a candidate record.
type Outcome string

const (
	OutcomeNew               Outcome = "NEW"
	OutcomeExactDuplicate    Outcome = "EXACT_DUPLICATE"
	OutcomeProbableDuplicate Outcome = "PROBABLE_DUPLICATE"
	OutcomeCrossSourceMatch  Outcome = "CROSS_SOURCE_MATCH"
)

// Classification carries the verdict plus what it was based on.
// ByIdentityKey distinguishes exact re-delivery of the same source event
// (dropped silently, no audit) from a similarity-proven duplicate under a
// different record shape (dropped with an audit row).
type Classification struct {
	Outcome       Outcome
	Existing      *models.Transaction
	Score         int
	ByIdentityKey bool
}

// Classifier decides each candidate's fate. It only reads; writing the
// outcome is the orchestrator's responsibility.
type Classifier struct {
	store               *store.Store
	matchCfg            matching.Config
	autoRejectThreshold int
	reviewThreshold     int
}

func NewClassifier(s *store.Store, matchCfg matching.Config, autoRejectThreshold, reviewThreshold int) *Classifier {
	return &Classifier{
		store:               s,
		matchCfg:            matchCfg,
		autoRejectThreshold: autoRejectThreshold,
		reviewThreshold:     reviewThreshold,
	}
}

// Classify runs the candidate through the decision ladder: identity key
// first, then windowed similarity, then the cross-source escape hatch for
// payment-platform records.
func (c *Classifier) Classify(ctx context.Context, candidate *models.Transaction) (*Classification, error) {
	// Exact re-delivery of a known source event. Not a duplicate payment;
	// idempotent ingestion drops it without any pending or audit record.
	if matching.TransactionKey(candidate) != matching.NoKey {
		existing, err := c.store.FindByIdentity(ctx, candidate.UserID, candidate.Source, candidate.SourceReference)
		if err != nil {
			return nil, fmt.Errorf("classify: %w", err)
		}
		if existing != nil {
			return &Classification{
				Outcome:       OutcomeExactDuplicate,
				Existing:      existing,
				Score:         100,
				ByIdentityKey: true,
			}, nil
		}
	}

	neighbors, err := c.store.Neighbors(ctx, candidate.UserID, candidate.AccountID,
		candidate.ExecutionDate, c.matchCfg.DateWindowDays)
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}

	bestScore := 0
	var best *models.Transaction
	for i := range neighbors {
		score := matching.Score(candidate, &neighbors[i], c.matchCfg)
		if score > bestScore {
			bestScore = score
			best = &neighbors[i]
		}
	}

	switch {
	case best != nil && bestScore >= c.autoRejectThreshold:
		// Same payment under a different record shape, e.g. a feed that
		// re-sequenced its transaction IDs on resend.
		return &Classification{Outcome: OutcomeExactDuplicate, Existing: best, Score: bestScore}, nil
	case best != nil && bestScore >= c.reviewThreshold:
		return &Classification{Outcome: OutcomeProbableDuplicate, Existing: best, Score: bestScore}, nil
	case candidate.Source == models.SourcePaymentPlatform:
		// Platform records pair with bank rows through the cross-source
		// window rule, not the generic similarity score: the two sides of a
		// pass-through payment intentionally differ in description and ID.
		return &Classification{Outcome: OutcomeCrossSourceMatch, Score: bestScore}, nil
	default:
		return &Classification{Outcome: OutcomeNew, Score: bestScore}, nil
	}
}
