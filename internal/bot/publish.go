package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/meeting-summary-bot/internal/models"
	"github.com/meeting-summary-bot/internal/summary"
	"github.com/rs/zerolog"
	"maunium.net/go/mautrix/event"
)

// generateSummary asks the summarizer for the meeting summary
func (b *Bot) generateSummary(ctx context.Context, url, text string, participants []string) (*models.MeetingSummary, error) {
	startTime := time.Now()

	summaryText, err := b.summarizer.Summarize(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("summarize meeting log: %w", err)
	}

	return &models.MeetingSummary{
		TranscriptURL:   url,
		Participants:    participants,
		Text:            summaryText,
		ModelUsed:       b.summarizer.Model().String(),
		ExecutionTimeMs: models.Elapsed(startTime),
	}, nil
}

// postSummary sends the summary to the room and adds the validation reactions
func (b *Bot) postSummary(ctx context.Context, logger zerolog.Logger, evt *event.Event, s *models.MeetingSummary) error {
	logger.Info().
		Int("participants", len(s.Participants)).
		Str("model", s.ModelUsed).
		Int("execution_time_ms", s.ExecutionTimeMs).
		Msg("Sending summary")

	eventID, err := b.sendMessage(ctx, evt.RoomID, summary.Render(s.Participants, s.Text), nil)
	if err != nil {
		return err
	}

	for _, reaction := range []string{summary.ReactionAccept, summary.ReactionReject} {
		if _, err := b.matrix.SendReaction(ctx, evt.RoomID, eventID, reaction); err != nil {
			return fmt.Errorf("failed to add %s reaction: %w", reaction, err)
		}
	}

	return nil
}

// archiveSummary stores the unvalidated summary next to its siblings in the meetings directory
func (b *Bot) archiveSummary(s *models.MeetingSummary) error {
	if !b.archiver.Enabled() {
		return nil
	}

	relPath, err := summary.ArchivePath(s.TranscriptURL)
	if err != nil {
		return err
	}

	_, err = b.archiver.Save(s.Text, relPath, false)
	return err
}
