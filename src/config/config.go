package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	JWTSecret    string
	Port         string
	DatabasePath string
	LogLevel     string

	// Similarity scoring. Weights are expressed in score points and must sum
	// to 100 so the combined score stays in [0,100].
	AmountWeight      int
	DateWeight        int
	DescriptionWeight int

	// Classification thresholds (0-100).
	AutoRejectThreshold int
	ReviewThreshold     int

	// Matching windows, in days either side of the candidate's execution date.
	SimilarityWindowDays  int
	CrossSourceWindowDays int

	// Chunk sizes for the long-running scans (sweep, bulk reconcile).
	SweepChunkSize     int
	ReconcileChunkSize int

	SummaryCacheExpiry time.Duration

	RateLimitInterval time.Duration
	RateLimitBurst    int
}

var Cfg *AppConfig

func LoadConfig() {
	if err := godotenv.Load(); err != nil {
		log.Println("Info: no .env file found, relying on OS environment variables and defaults.")
	}

	jwtSecret := getEnv("JWT_SECRET", "insecure-development-jwt-secret-at-least-32-bytes")
	if jwtSecret == "insecure-development-jwt-secret-at-least-32-bytes" {
		log.Println("WARNING: Using default insecure JWT_SECRET. Set JWT_SECRET for production.")
	}

	Cfg = &AppConfig{
		JWTSecret:    jwtSecret,
		Port:         getEnv("PORT", "8080"),
		DatabasePath: getEnv("DATABASE_PATH", "./ledgerclear.db"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),

		AmountWeight:      getEnvAsInt("SIMILARITY_AMOUNT_WEIGHT", 50),
		DateWeight:        getEnvAsInt("SIMILARITY_DATE_WEIGHT", 30),
		DescriptionWeight: getEnvAsInt("SIMILARITY_DESCRIPTION_WEIGHT", 20),

		AutoRejectThreshold: getEnvAsInt("AUTO_REJECT_THRESHOLD", 95),
		ReviewThreshold:     getEnvAsInt("REVIEW_THRESHOLD", 60),

		SimilarityWindowDays:  getEnvAsInt("SIMILARITY_WINDOW_DAYS", 3),
		CrossSourceWindowDays: getEnvAsInt("CROSS_SOURCE_WINDOW_DAYS", 3),

		SweepChunkSize:     getEnvAsInt("SWEEP_CHUNK_SIZE", 200),
		ReconcileChunkSize: getEnvAsInt("RECONCILE_CHUNK_SIZE", 200),

		SummaryCacheExpiry: getEnvAsDuration("SUMMARY_CACHE_EXPIRY", 15*time.Minute),

		RateLimitInterval: getEnvAsDuration("RATE_LIMIT_INTERVAL", 100*time.Millisecond),
		RateLimitBurst:    getEnvAsInt("RATE_LIMIT_BURST", 30),
	}

	if sum := Cfg.AmountWeight + Cfg.DateWeight + Cfg.DescriptionWeight; sum != 100 {
		log.Fatalf("FATAL: similarity weights must sum to 100, got %d", sum)
	}
	if Cfg.ReviewThreshold >= Cfg.AutoRejectThreshold {
		log.Fatalf("FATAL: REVIEW_THRESHOLD (%d) must be below AUTO_REJECT_THRESHOLD (%d)",
			Cfg.ReviewThreshold, Cfg.AutoRejectThreshold)
	}

	log.Printf("Configuration loaded: Port=%s, LogLevel=%s, DBPath=%s, thresholds=%d/%d",
		Cfg.Port, Cfg.LogLevel, Cfg.DatabasePath, Cfg.ReviewThreshold, Cfg.AutoRejectThreshold)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid integer value for %s ('%s'), using default: %d", key, valueStr, fallback)
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid duration value for %s ('%s'), using default: %s", key, valueStr, fallback.String())
	return fallback
}
