// Command summarize runs the meeting summary pipeline against a single
// meeting log URL without connecting to Matrix. It prints the reply the bot
// would post and, with --archive, writes the summary to the meetings directory.
// Only the Gemini settings are required.
//
//	go run ./scripts/summarize --config config.yaml https://meetbot.example.org/team/2025-09-25.log.txt
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/meeting-summary-bot/internal/config"
	"github.com/meeting-summary-bot/internal/llm"
	"github.com/meeting-summary-bot/internal/summary"
	"github.com/meeting-summary-bot/internal/transcript"
	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"
)

func main() {
	configPath := flag.StringP("config", "c", "", "path to the YAML config file")
	archive := flag.Bool("archive", false, "write the summary to the meetings directory")
	flag.Parse()

	// Setup logger with pretty console output
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	logger := zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}).With().Timestamp().Caller().Logger()

	if flag.NArg() != 1 {
		logger.Fatal().Msg("Usage: summarize [--config file] [--archive] <meeting log url>")
	}

	if err := run(context.Background(), *configPath, flag.Arg(0), *archive, logger); err != nil {
		logger.Fatal().Err(err).Msg("Dry run failed")
	}
}

// run needs only the Gemini settings; Matrix settings are optional and,
// when set, keep the bot and the meetbot out of the participant list.
func run(ctx context.Context, configPath, url string, archive bool, logger zerolog.Logger) error {
	cfg, err := config.LoadOffline(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	doc, err := transcript.NewFetcher(&http.Client{}, logger).Fetch(ctx, url)
	if err != nil {
		return fmt.Errorf("failed to fetch meeting log: %w", err)
	}

	var ignored []string
	for _, userID := range []string{cfg.UserID, cfg.MeetbotID} {
		if userID != "" {
			ignored = append(ignored, userID)
		}
	}
	ignored = append(ignored, cfg.IgnoredParticipants...)
	participants := transcript.ExtractParticipants(doc.Text, ignored...)
	logger.Info().Strs("participants", participants).Msg("Extracted participants")

	llmClient, err := llm.NewClient(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, logger)
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}
	defer llmClient.Close()

	text, err := llmClient.Summarize(ctx, doc.Text)
	if err != nil {
		return fmt.Errorf("failed to generate summary: %w", err)
	}
	if text == "" {
		logger.Warn().Msg("Model returned no summary")
		return nil
	}

	fmt.Println(summary.Render(participants, text))

	if !archive {
		return nil
	}

	relPath, err := summary.ArchivePath(url)
	if err != nil {
		return fmt.Errorf("failed to derive archive path: %w", err)
	}
	path, err := summary.NewArchiver(cfg.MeetingsDirectory, logger).Save(text, relPath, false)
	if err != nil {
		return fmt.Errorf("failed to archive summary: %w", err)
	}
	if path == "" {
		logger.Warn().Msg("meetings_directory is not set, summary not archived")
		return nil
	}
	logger.Info().Str("path", path).Msg("Summary archived")
	return nil
}
