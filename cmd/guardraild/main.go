package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yourusername/guardrail"
	"github.com/yourusername/guardrail/api"
	"github.com/yourusername/guardrail/config"
	"github.com/yourusername/guardrail/logging"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Error().Err(err).Msg("configuration invalid")
		os.Exit(1)
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	engine, err := guardrail.New(cfg)
	if err != nil {
		logging.Error().Err(err).Msg("engine startup failed")
		os.Exit(1)
	}

	handler := api.NewHandler(engine.Events, engine.Blocks)
	metricsHandler := api.NewMetricsHandler(engine.Metrics)

	mux := http.NewServeMux()
	mux.HandleFunc("/events", handler.LogEvent)
	mux.HandleFunc("/events/recent", handler.RecentEvents)
	mux.HandleFunc("/actors/suspicious", handler.SuspiciousActors)
	mux.HandleFunc("/stats", handler.Stats)
	mux.HandleFunc("/block", handler.Block)
	mux.HandleFunc("/unblock", handler.Unblock)
	mux.HandleFunc("/blocked", handler.ListBlocked)
	mux.Handle("/metrics", metricsHandler)
	mux.HandleFunc("/health", healthHandler)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      engine.Middleware()(mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", srv.Addr).Str("backend", cfg.Backend).Msg("guardraild listening")
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logging.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		logging.Error().Err(err).Msg("server stopped")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn().Err(err).Msg("server shutdown incomplete")
	}
	if err := engine.Close(); err != nil {
		logging.Warn().Err(err).Msg("engine close failed")
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "guardrail",
		"version": version,
	})
}
