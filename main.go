package main

import (
	"encoding/json"
	stdlog "log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/username/ledgerclear/backend/src/config"
	"github.com/username/ledgerclear/backend/src/database"
	"github.com/username/ledgerclear/backend/src/handlers"
	"github.com/username/ledgerclear/backend/src/logger"
	"github.com/username/ledgerclear/backend/src/matching"
	"github.com/username/ledgerclear/backend/src/security"
	"github.com/username/ledgerclear/backend/src/services"
	"github.com/username/ledgerclear/backend/src/store"
)

var limiter *rate.Limiter

func rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			logger.L.Warn("Rate limit exceeded",
				"method", r.Method,
				"path", r.URL.Path,
				"remoteAddr", r.RemoteAddr)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowedOrigins := map[string]bool{
			"http://localhost:3000": true,
		}

		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, PATCH")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization, X-Requested-With")
		} else if origin == "" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}

		if r.Method == "OPTIONS" {
			logger.L.Debug("Handling OPTIONS preflight request", "path", r.URL.Path, "origin", origin)
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)
	logger.L.Info("Ledgerclear reconciliation server starting...")

	if len(config.Cfg.JWTSecret) < 32 {
		logger.L.Error("JWT_SECRET configuration invalid. Must be at least 32 bytes.")
		os.Exit(1)
	}

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	database.InitDB(config.Cfg.DatabasePath)
	logger.L.Info("Database initialized successfully.")

	logger.L.Info("Initializing summary cache...")
	summaryCache := cache.New(services.DefaultCacheExpiration, services.CacheCleanupInterval)

	logger.L.Info("Initializing services and handlers...")
	authService := security.NewAuthService(config.Cfg.JWTSecret)
	ledgerStore := store.NewStore(database.DB)

	matchCfg := matching.Config{
		AmountWeight:      config.Cfg.AmountWeight,
		DateWeight:        config.Cfg.DateWeight,
		DescriptionWeight: config.Cfg.DescriptionWeight,
		DateWindowDays:    config.Cfg.SimilarityWindowDays,
	}
	classifier := services.NewClassifier(ledgerStore, matchCfg,
		config.Cfg.AutoRejectThreshold, config.Cfg.ReviewThreshold)

	reconcileService := services.NewReconcileService(ledgerStore,
		config.Cfg.CrossSourceWindowDays, config.Cfg.ReconcileChunkSize, summaryCache)
	ingestionService := services.NewIngestionService(ledgerStore, classifier,
		reconcileService, summaryCache, config.Cfg.SummaryCacheExpiry, config.Cfg.SweepChunkSize)

	ingestHandler := handlers.NewIngestHandler(ingestionService)
	reconcileHandler := handlers.NewReconcileHandler(reconcileService)
	pendingHandler := handlers.NewPendingHandler(ingestionService, ledgerStore)
	txHandler := handlers.NewTransactionHandler(ingestionService, ledgerStore)

	logger.L.Info("Configuring routes...")
	rootMux := http.NewServeMux()
	apiRouter := http.NewServeMux()

	authRequired := handlers.AuthMiddleware(authService)
	protect := func(handler http.HandlerFunc) http.Handler {
		return authRequired(handler)
	}

	apiRouter.Handle("POST /api/ingest", protect(ingestHandler.HandleIngest))
	apiRouter.Handle("POST /api/sweep/run", protect(ingestHandler.HandleSweep))
	apiRouter.Handle("POST /api/reconcile/run", protect(reconcileHandler.HandleRunReconciliation))
	apiRouter.Handle("POST /api/reconcile/{id}", protect(reconcileHandler.HandleReconcileTransaction))
	apiRouter.Handle("GET /api/pending", protect(pendingHandler.HandleListPending))
	apiRouter.Handle("POST /api/pending/resolve", protect(pendingHandler.HandleResolvePending))
	apiRouter.Handle("GET /api/transactions", protect(txHandler.HandleListTransactions))
	apiRouter.Handle("GET /api/prevented", protect(txHandler.HandleListPrevented))
	apiRouter.Handle("GET /api/summary", protect(txHandler.HandleGetSummary))

	rootMux.Handle("/api/", apiRouter)

	rootMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" && r.Method == http.MethodGet {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"message": "Ledgerclear backend is running"})
		} else {
			if !strings.HasPrefix(r.URL.Path, "/api/") {
				logger.L.Warn("Root level path not found", "method", r.Method, "path", r.URL.Path)
				http.NotFound(w, r)
			}
		}
	})

	logger.L.Info("Applying global middleware...")
	limiter = rate.NewLimiter(rate.Every(config.Cfg.RateLimitInterval), config.Cfg.RateLimitBurst)
	finalHandler := enableCORS(rateLimitMiddleware(rootMux))

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      finalHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.L.Info("Server starting", "address", serverAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.L.Error("Failed to start server", "error", err)
		stdlog.Fatalf("Failed to start server: %v", err)
	} else if err == http.ErrServerClosed {
		logger.L.Info("Server stopped gracefully.")
	}
}
