// Package main provides the entry point for the stillness session service.
// It initializes all dependencies, sets up HTTP routes with middleware,
// and starts the server with graceful shutdown support.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/cheet0dust/The-Nothing-Club/internal/client/alert"
	"github.com/cheet0dust/The-Nothing-Club/internal/config"
	"github.com/cheet0dust/The-Nothing-Club/internal/handlers"
	"github.com/cheet0dust/The-Nothing-Club/internal/ingest"
	"github.com/cheet0dust/The-Nothing-Club/internal/metrics"
	"github.com/cheet0dust/The-Nothing-Club/internal/middleware"
	"github.com/cheet0dust/The-Nothing-Club/internal/security"
	"github.com/cheet0dust/The-Nothing-Club/internal/store"
	"github.com/cheet0dust/The-Nothing-Club/pkg/logger"
)

func main() {
	// Load .env.local file only in development (when GO_ENV is not set or set to "development")
	goEnv := os.Getenv("GO_ENV")
	if goEnv == "" || goEnv == "development" {
		if err := godotenv.Load(".env.local"); err != nil {
			// Only log if the error is not "file not found"
			if !os.IsNotExist(err) {
				fmt.Fprintf(os.Stderr, "Warning: Error loading .env.local file: %v\n", err)
			}
		}
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	log.Info("Starting Stillness Session Service")
	log.WithFields(logrus.Fields{
		"port":          cfg.Server.Port,
		"host":          cfg.Server.Host,
		"tls":           cfg.IsTLSEnabled(),
		"snapshot_path": cfg.Storage.SnapshotPath,
	}).Info("Service configuration loaded")

	// Initialize metrics
	m := metrics.New()
	m.MustRegister(prometheus.DefaultRegisterer)

	// Initialize the ingestion pipeline
	coordinator, sessions := initializePipeline(cfg, log, m)
	defer closeStore(sessions, log)

	// Set up HTTP server
	server := setupServer(cfg, coordinator, log, m)

	// Start and run server with graceful shutdown
	runServer(server, cfg, log)
}

// initializePipeline wires the event log, rate limiter, alert client,
// detector, session store, and coordinator together.
func initializePipeline(
	cfg *config.Config,
	log *logrus.Logger,
	m *metrics.Metrics,
) (*ingest.Coordinator, *store.SessionStore) {
	events := security.NewEventLog(cfg.Limits.EventRetention, log, m)
	limiter := security.NewRateLimiter(&cfg.Limits, events, m)
	alertClient := alert.NewClient(&cfg.Alerts, log)
	detector := security.NewDetector(&cfg.Limits, events, limiter, alertClient, cfg.Alerts.Cooldown, log, m)
	sessions := store.New(&cfg.Storage, log, m)

	coordinator := ingest.NewCoordinator(&cfg.Limits, limiter, events, detector, sessions, log, m)
	return coordinator, sessions
}

func closeStore(sessions *store.SessionStore, log *logrus.Logger) {
	if err := sessions.Close(); err != nil {
		log.WithError(err).Error("Failed to close session store")
	}
}

func setupServer(
	cfg *config.Config,
	coordinator *ingest.Coordinator,
	log *logrus.Logger,
	m *metrics.Metrics,
) *http.Server {
	// Initialize handlers
	sessionHandler := handlers.NewSessionHandler(coordinator, log)
	statsHandler := handlers.NewStatsHandler(coordinator, log)
	healthHandler := handlers.NewHealthHandler(coordinator, log)

	// Initialize middleware
	middlewareStack := middleware.NewStack(cfg, log, m)

	// Set up routes
	router := mux.NewRouter()

	// API v1 router with /api/v1 prefix
	apiV1Router := router.PathPrefix("/api/v1").Subrouter()

	apiV1Router.HandleFunc("/health", healthHandler.Health).Methods("GET")
	apiV1Router.HandleFunc("/health/live", healthHandler.Liveness).Methods("GET")
	apiV1Router.HandleFunc("/health/ready", healthHandler.Readiness).Methods("GET")
	apiV1Router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	apiV1Router.HandleFunc("/sessions", sessionHandler.Submit).Methods("POST")
	apiV1Router.HandleFunc("/stats", statsHandler.Stats).Methods("GET")

	// Apply middleware to the entire router
	finalHandler := middlewareStack.Chain(
		router,
		middlewareStack.Recovery,
		middlewareStack.RequestLogger,
		middlewareStack.SecurityHeaders,
		middlewareStack.CORS,
		middlewareStack.ContentType,
	)

	// Create HTTP server
	return &http.Server{
		Addr:         cfg.ServerAddr(),
		Handler:      finalHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}

func runServer(server *http.Server, cfg *config.Config, log *logrus.Logger) {
	// Start server in a goroutine
	go startServer(server, cfg, log)

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// Create context with timeout for graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Attempt graceful shutdown
	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
		log.WithError(shutdownErr).Error("Server forced to shutdown")
	} else {
		log.Info("Server exited gracefully")
	}
}

func startServer(server *http.Server, cfg *config.Config, log *logrus.Logger) {
	log.WithFields(logrus.Fields{
		"addr": server.Addr,
		"tls":  cfg.IsTLSEnabled(),
	}).Info("Starting HTTP server")

	var startErr error
	if cfg.IsTLSEnabled() {
		startErr = server.ListenAndServeTLS(cfg.Server.TLSCert, cfg.Server.TLSKey)
	} else {
		startErr = server.ListenAndServe()
	}

	if startErr != nil && startErr != http.ErrServerClosed {
		log.WithError(startErr).Fatal("Failed to start server")
	}
}
