package matching

import (
	"strings"
	"time"

	"github.com/agnivade/levenshtein"

	"github.com/username/ledgerclear/backend/src/models"
)

// Config carries the similarity weights and decay window. Weights are score
// points and should sum to 100.
type Config struct {
	AmountWeight      int
	DateWeight        int
	DescriptionWeight int
	DateWindowDays    int
}

// DefaultConfig mirrors the shipped configuration defaults.
func DefaultConfig() Config {
	return Config{
		AmountWeight:      50,
		DateWeight:        30,
		DescriptionWeight: 20,
		DateWindowDays:    3,
	}
}

// Score computes a 0-100 similarity between two transaction records.
//
// Amount equality is exact at minor-unit precision and carries the largest
// weight: with the default weights, records with different amounts can never
// reach the review threshold. Date proximity decays linearly to zero outside
// the window. Description similarity is the best of normalized token overlap,
// substring containment, and Levenshtein similarity.
func Score(a, b *models.Transaction, cfg Config) int {
	score := 0
	if a.AmountCents == b.AmountCents && a.Currency == b.Currency {
		score += cfg.AmountWeight
	}
	score += int(dateProximity(a.ExecutionDate, b.ExecutionDate, cfg.DateWindowDays) * float64(cfg.DateWeight))
	score += int(descriptionSimilarity(a.Description, b.Description) * float64(cfg.DescriptionWeight))
	if score > 100 {
		score = 100
	}
	return score
}

// dateProximity returns 1.0 for identical dates, decaying linearly to 0
// outside the window. Unparseable dates score 0.
func dateProximity(a, b string, windowDays int) float64 {
	da, errA := time.Parse(models.DateFormat, a)
	db, errB := time.Parse(models.DateFormat, b)
	if errA != nil || errB != nil {
		return 0
	}
	days := DaysApart(da, db)
	if days > windowDays {
		return 0
	}
	return 1 - float64(days)/float64(windowDays+1)
}

// DaysApart returns the absolute whole-day distance between two dates.
func DaysApart(a, b time.Time) int {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return int(d.Hours() / 24)
}

// levenshteinFloor cuts off edit-distance noise: unrelated strings of
// similar length always land around 0.1-0.3, so anything below the floor
// carries no signal and counts as zero.
const levenshteinFloor = 0.5

// descriptionSimilarity returns a 0-1 measure over normalized descriptions.
// Unrelated descriptions score 0; only the token-overlap and containment
// paths can produce low non-zero values.
func descriptionSimilarity(a, b string) float64 {
	na, nb := normalize(a), normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return 1
	}
	overlap := tokenOverlap(na, nb)
	lev := levenshteinSimilarity(na, nb)
	if lev < levenshteinFloor {
		lev = 0
	}
	if overlap > lev {
		return overlap
	}
	return lev
}

// normalize upper-cases and collapses all whitespace runs to single spaces.
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToUpper(s)), " ")
}

// tokenOverlap is the Jaccard overlap between the two token sets.
func tokenOverlap(a, b string) float64 {
	ta := strings.Fields(a)
	tb := strings.Fields(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	set := make(map[string]bool, len(ta))
	for _, t := range ta {
		set[t] = true
	}
	union := len(set)
	shared := 0
	for _, t := range tb {
		if set[t] {
			shared++
			set[t] = false // count each shared token once
		} else {
			union++
		}
	}
	return float64(shared) / float64(union)
}

func levenshteinSimilarity(a, b string) float64 {
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 0
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(maxLen)
}
