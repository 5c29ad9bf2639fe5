package matching

import (
	"testing"
	"time"

	"github.com/username/ledgerclear/backend/src/models"
)

func tx(amountCents int64, date, desc string) *models.Transaction {
	return &models.Transaction{
		UserID:        1,
		AccountID:     "acc-1",
		Source:        models.SourceBankFeed,
		AmountCents:   amountCents,
		Currency:      "EUR",
		ExecutionDate: date,
		Description:   desc,
	}
}

// ---- Identity key ----

func TestIdentityKeyDeterministic(t *testing.T) {
	a := IdentityKey(1, models.SourceBankFeed, "TX1")
	b := IdentityKey(1, models.SourceBankFeed, "TX1")
	if a != b {
		t.Errorf("keys differ for identical input: %q vs %q", a, b)
	}
	if a == NoKey {
		t.Errorf("expected non-sentinel key, got sentinel")
	}
}

func TestIdentityKeySentinel(t *testing.T) {
	if got := IdentityKey(1, models.SourceManual, ""); got != NoKey {
		t.Errorf("IdentityKey with empty reference = %q, want sentinel", got)
	}
	if got := IdentityKey(1, models.SourceManual, "   "); got != NoKey {
		t.Errorf("IdentityKey with blank reference = %q, want sentinel", got)
	}
}

func TestIdentityKeyDistinguishesSourceAndUser(t *testing.T) {
	base := IdentityKey(1, models.SourceBankFeed, "TX1")
	if IdentityKey(2, models.SourceBankFeed, "TX1") == base {
		t.Errorf("keys collide across users")
	}
	if IdentityKey(1, models.SourceCardFeed, "TX1") == base {
		t.Errorf("keys collide across sources")
	}
}

// ---- Similarity score ----

func TestScoreIdenticalRecords(t *testing.T) {
	a := tx(-4500, "2025-01-10", "DEBIT CARD PURCHASE COFFEE")
	b := tx(-4500, "2025-01-10", "DEBIT CARD PURCHASE COFFEE")
	if got := Score(a, b, DefaultConfig()); got != 100 {
		t.Errorf("Score(identical) = %d, want 100", got)
	}
}

func TestScoreAmountMismatchStaysBelowReview(t *testing.T) {
	// Amount equality is required for a duplicate: with the default
	// weights a differing amount can never reach the review threshold.
	a := tx(-4500, "2025-01-10", "COFFEE SHOP")
	b := tx(-4600, "2025-01-10", "COFFEE SHOP")
	if got := Score(a, b, DefaultConfig()); got >= 60 {
		t.Errorf("Score(differing amounts) = %d, want < 60", got)
	}
}

func TestScoreCurrencyMismatchDropsAmountComponent(t *testing.T) {
	a := tx(-4500, "2025-01-10", "COFFEE SHOP")
	b := tx(-4500, "2025-01-10", "COFFEE SHOP")
	b.Currency = "USD"
	if got := Score(a, b, DefaultConfig()); got >= 60 {
		t.Errorf("Score(differing currency) = %d, want < 60", got)
	}
}

func TestScoreDateDecay(t *testing.T) {
	cfg := DefaultConfig()
	a := tx(-4500, "2025-01-10", "COFFEE SHOP")
	sameDay := Score(a, tx(-4500, "2025-01-10", "COFFEE SHOP"), cfg)
	twoDays := Score(a, tx(-4500, "2025-01-12", "COFFEE SHOP"), cfg)
	outside := Score(a, tx(-4500, "2025-01-20", "COFFEE SHOP"), cfg)

	if !(sameDay > twoDays && twoDays > outside) {
		t.Errorf("date decay not monotonic: same=%d two=%d outside=%d", sameDay, twoDays, outside)
	}
	if outside != cfg.AmountWeight+cfg.DescriptionWeight {
		t.Errorf("outside-window score = %d, want %d (no date component)",
			outside, cfg.AmountWeight+cfg.DescriptionWeight)
	}
}

func TestScoreDescriptionCaseAndWhitespaceInsensitive(t *testing.T) {
	a := tx(-4500, "2025-01-10", "coffee   shop")
	b := tx(-4500, "2025-01-10", "COFFEE SHOP")
	if got := Score(a, b, DefaultConfig()); got != 100 {
		t.Errorf("Score(case/whitespace variants) = %d, want 100", got)
	}
}

func TestScoreSubstringContainment(t *testing.T) {
	a := tx(-4500, "2025-01-10", "POS 1234 COFFEE SHOP AMSTERDAM")
	b := tx(-4500, "2025-01-10", "COFFEE SHOP")
	if got := Score(a, b, DefaultConfig()); got != 100 {
		t.Errorf("Score(containment) = %d, want 100", got)
	}
}

func TestScoreUnrelatedDescriptions(t *testing.T) {
	a := tx(-4500, "2025-01-10", "QQQQ WWWW")
	b := tx(-4500, "2025-01-10", "ZZZZ XXXX")
	cfg := DefaultConfig()
	got := Score(a, b, cfg)
	// Amount and date still match; disjoint descriptions contribute nothing.
	if got != cfg.AmountWeight+cfg.DateWeight {
		t.Errorf("Score(unrelated descriptions) = %d, want %d", got, cfg.AmountWeight+cfg.DateWeight)
	}
}

func TestScoreEditDistanceFloor(t *testing.T) {
	cfg := DefaultConfig()
	a := tx(-4500, "2025-01-10", "COFFEE SHOP")

	// A single-character feed typo keeps a strong edit-distance signal.
	typo := Score(a, tx(-4500, "2025-01-10", "COFFEE SHQP"), cfg)
	if typo < cfg.AmountWeight+cfg.DateWeight+cfg.DescriptionWeight/2 {
		t.Errorf("Score(typo variant) = %d, want most of the description weight", typo)
	}

	// Unrelated same-length strings sit in edit-distance noise territory
	// and must contribute nothing.
	noise := Score(a, tx(-4500, "2025-01-10", "ZZZZQQ XXWW"), cfg)
	if noise != cfg.AmountWeight+cfg.DateWeight {
		t.Errorf("Score(noise-level distance) = %d, want %d", noise, cfg.AmountWeight+cfg.DateWeight)
	}
}

func TestScoreEmptyDescriptions(t *testing.T) {
	a := tx(-4500, "2025-01-10", "")
	b := tx(-4500, "2025-01-10", "")
	cfg := DefaultConfig()
	if got := Score(a, b, cfg); got != cfg.AmountWeight+cfg.DateWeight {
		t.Errorf("Score(empty descriptions) = %d, want %d", got, cfg.AmountWeight+cfg.DateWeight)
	}
}

func TestDaysApart(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"2025-01-10", "2025-01-10", 0},
		{"2025-01-10", "2025-01-13", 3},
		{"2025-01-13", "2025-01-10", 3},
		{"2025-01-31", "2025-02-01", 1},
	}
	for _, tc := range tests {
		da, err := time.Parse(models.DateFormat, tc.a)
		if err != nil {
			t.Fatalf("parsing %q: %v", tc.a, err)
		}
		db, err := time.Parse(models.DateFormat, tc.b)
		if err != nil {
			t.Fatalf("parsing %q: %v", tc.b, err)
		}
		if got := DaysApart(da, db); got != tc.want {
			t.Errorf("DaysApart(%s, %s) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}
