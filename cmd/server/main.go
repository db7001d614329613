package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lexiqai/pronunciation-gateway/internal/api"
	"github.com/lexiqai/pronunciation-gateway/internal/config"
	"github.com/lexiqai/pronunciation-gateway/internal/observability"
	"github.com/lexiqai/pronunciation-gateway/internal/questions"
	"github.com/lexiqai/pronunciation-gateway/internal/stt"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("stt_provider", cfg.STTProvider).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Pronunciation Gateway starting")

	// The transcriber is built once and shared by every request
	transcriber, err := stt.New(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create transcriber")
	}

	var store *questions.Store
	if cfg.SeedQuestions {
		store = questions.NewStore(questions.DefaultQuestions...)
	} else {
		store = questions.NewStore()
	}

	server := api.New(cfg, store, transcriber, logger)

	// Start server in a goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("backend", transcriber.Name()).
			Int("questions", store.Len()).
			Msg("Server listening")
		if err := server.Listen(); err != nil {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited gracefully")
}
