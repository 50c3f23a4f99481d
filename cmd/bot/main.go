package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/meeting-summary-bot/internal/bot"
	"github.com/meeting-summary-bot/internal/config"
	"github.com/meeting-summary-bot/internal/llm"
	"github.com/meeting-summary-bot/internal/metrics"
	"github.com/meeting-summary-bot/internal/summary"
	"github.com/meeting-summary-bot/internal/transcript"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:          "meeting-summary-bot",
		Short:        "Summarize meetbot transcripts in Matrix rooms with Gemini",
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			run()
		},
	}
	rootCmd.Flags().StringVarP(&cfgFile, "config", "c", os.Getenv("MEETING_SUMMARY_CONFIG"), "path to the YAML config file")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run() {
	// Load configuration
	cfg, err := config.Load(cfgFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Setup logger
	logger := setupLogger(cfg.LogLevel, cfg.Environment)
	logger.Info().
		Str("environment", cfg.Environment).
		Str("homeserver", cfg.Homeserver).
		Str("meetbot_id", cfg.MeetbotID).
		Str("model", cfg.Gemini.Model.String()).
		Bool("archive_enabled", cfg.ArchiveEnabled()).
		Msg("Starting meeting summary bot")

	// Create context that listens for termination signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize metrics
	m := metrics.New()
	var metricsServer *http.Server
	if cfg.MetricsListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		metricsServer = &http.Server{
			Addr:              cfg.MetricsListen,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("Metrics server stopped with error")
			}
		}()
		logger.Info().Str("addr", cfg.MetricsListen).Msg("Metrics server started")
	}

	// Initialize LLM client
	logger.Info().Msg("Initializing Gemini LLM client...")
	llmClient, err := llm.NewClient(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create LLM client")
	}
	defer func() {
		if err := llmClient.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close LLM client")
		}
	}()

	fetcher := transcript.NewFetcher(&http.Client{}, logger)
	archiver := summary.NewArchiver(cfg.MeetingsDirectory, logger)

	// Initialize bot
	logger.Info().Msg("Initializing Matrix bot...")
	matrixBot, err := bot.New(ctx, cfg, fetcher, llmClient, archiver, m, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create bot")
	}

	logger.Info().
		Str("user_id", matrixBot.UserID().String()).
		Strs("ignored_participants", cfg.IgnoredParticipants).
		Msg("Bot initialized successfully")

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	// Start bot in a goroutine
	botDone := make(chan error, 1)
	go func() {
		botDone <- matrixBot.Start(ctx)
	}()

	logger.Info().Msg("Bot is running. Press Ctrl+C to stop.")

	// Wait for termination signal or bot error
	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("Received termination signal")
	case err := <-botDone:
		if err != nil {
			logger.Error().Err(err).Msg("Bot stopped with error")
		}
		close(botDone)
	}

	// Graceful shutdown
	logger.Info().Msg("Initiating graceful shutdown...")
	cancel()

	// Give the bot some time to finish processing
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("Failed to stop metrics server")
		}
	}

	matrixBot.Stop()

	// Start returns once the active handlers have completed
	select {
	case <-shutdownCtx.Done():
		logger.Warn().Msg("Shutdown timeout exceeded, some meeting logs may be lost")
	case err := <-botDone:
		if err != nil {
			logger.Error().Err(err).Msg("Bot stopped with error")
		}
		logger.Info().Msg("Graceful shutdown completed")
	}

	logger.Info().Msg("Bot stopped")
}

// setupLogger configures and returns a zerolog logger
func setupLogger(level, environment string) zerolog.Logger {
	// Parse log level
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(logLevel)

	// Configure output format
	var logger zerolog.Logger
	if environment == "development" {
		// Pretty console output for development
		logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Caller().Logger()
	} else {
		// JSON output for production
		logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	return logger
}
