package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/meeting-summary-bot/internal/metrics"
	"github.com/meeting-summary-bot/internal/transcript"
	"github.com/rs/zerolog"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// meetbotPrefix starts the notice the meetbot posts when a meeting ends
const meetbotPrefix = "Text Log: "

const typingTimeout = 30 * time.Second

const summaryFailedMessage = "❌ Failed to generate the meeting summary."

// handleMessage filters room messages down to meeting log announcements
func (b *Bot) handleMessage(ctx context.Context, evt *event.Event) {
	if evt.Sender == b.userID {
		return
	}

	content := evt.Content.AsMessage()
	if content.MsgType != event.MsgNotice {
		b.metrics.RecordEvent(metrics.OutcomeIgnored)
		return
	}

	roomName := b.roomName(ctx, evt.RoomID)

	if evt.Sender.String() != b.config.MeetbotID {
		b.logger.Debug().
			Str("sender", evt.Sender.String()).
			Str("room", roomName).
			Str("meetbot_id", b.config.MeetbotID).
			Msg("Ignoring notice, only listening to the meetbot")
		b.metrics.RecordEvent(metrics.OutcomeIgnored)
		return
	}

	if err := b.matrix.MarkRead(ctx, evt.RoomID, evt.ID); err != nil {
		b.logger.Warn().
			Err(err).
			Str("room", roomName).
			Msg("Failed to mark meetbot message as read")
	}

	if !strings.HasPrefix(content.Body, meetbotPrefix) {
		b.logger.Debug().
			Str("body", content.Body).
			Msg("Ignoring message from meetbot")
		b.metrics.RecordEvent(metrics.OutcomeIgnored)
		return
	}

	url := strings.TrimPrefix(content.Body, meetbotPrefix)

	b.logger.Info().
		Str("room", roomName).
		Str("url", url).
		Msg("Detected Text Log message from meetbot")

	b.handleMeetingLog(ctx, evt, url)
}

// handleMeetingLog runs the summary pipeline for one meeting log
func (b *Bot) handleMeetingLog(ctx context.Context, evt *event.Event, url string) {
	startTime := time.Now()
	logger := b.logger.With().
		Str("run_id", uuid.NewString()).
		Str("room_id", evt.RoomID.String()).
		Str("event_id", evt.ID.String()).
		Logger()

	b.sendTypingAction(ctx, evt.RoomID, typingTimeout)
	defer b.sendTypingAction(ctx, evt.RoomID, 0)

	outcome, err := b.summarizeMeetingLog(ctx, logger, evt, url)
	if err != nil {
		logger.Error().
			Err(err).
			Str("url", url).
			Msg("Meeting summary failed")
	}

	b.metrics.RecordEvent(outcome)
	b.metrics.ObserveDuration(time.Since(startTime).Seconds())

	logger.Info().
		Str("outcome", outcome).
		Dur("duration", time.Since(startTime)).
		Msg("Meeting log handled")
}

// summarizeMeetingLog fetches, summarizes, publishes and archives, returning the outcome
func (b *Bot) summarizeMeetingLog(ctx context.Context, logger zerolog.Logger, evt *event.Event, url string) (string, error) {
	doc, err := b.fetcher.Fetch(ctx, url)
	if err != nil {
		b.metrics.RecordError("fetch")
		var fetchErr *transcript.FetchError
		if !errors.As(err, &fetchErr) {
			return metrics.OutcomeFailed, fmt.Errorf("fetch meeting log: %w", err)
		}
		if _, err := b.sendMessage(ctx, evt.RoomID, fetchErr.Error(), evt); err != nil {
			return metrics.OutcomeFailed, err
		}
		return metrics.OutcomeFetchFailed, nil
	}

	// Extract Matrix usernames from the meeting log
	participants := transcript.ExtractParticipants(doc.Text, b.ignoredParticipants()...)
	logger.Info().
		Int("count", len(participants)).
		Strs("participants", participants).
		Msg("Found unique participants")

	// Ask AI to give a summary of the meeting
	meetingSummary, err := b.generateSummary(ctx, doc.URL, doc.Text, participants)
	if err != nil {
		b.metrics.RecordError("summarize")
		b.sendErrorMessage(ctx, evt, summaryFailedMessage)
		return metrics.OutcomeFailed, err
	}

	if meetingSummary.Empty() {
		logger.Warn().Msg("Could not generate summary for meeting")
		return metrics.OutcomeNoSummary, nil
	}

	if err := b.postSummary(ctx, logger, evt, meetingSummary); err != nil {
		b.metrics.RecordError("publish")
		return metrics.OutcomeFailed, err
	}

	if err := b.archiveSummary(meetingSummary); err != nil {
		b.metrics.RecordError("archive")
		logger.Error().Err(err).Msg("Failed to archive summary")
	}

	return metrics.OutcomePosted, nil
}

// ignoredParticipants lists IDs never mentioned in a summary: the bot, the meetbot and configured ones
func (b *Bot) ignoredParticipants() []string {
	ignored := make([]string, 0, len(b.config.IgnoredParticipants)+2)
	ignored = append(ignored, b.userID.String(), b.config.MeetbotID)
	return append(ignored, b.config.IgnoredParticipants...)
}

// roomName formats a room for logs as "alias (id)", or the bare id without an alias
func (b *Bot) roomName(ctx context.Context, roomID id.RoomID) string {
	alias := b.roomAlias(ctx, roomID)
	if alias == "" {
		return roomID.String()
	}
	return fmt.Sprintf("%s (%s)", alias, roomID)
}

func (b *Bot) roomAlias(ctx context.Context, roomID id.RoomID) id.RoomAlias {
	var content event.CanonicalAliasEventContent
	err := b.matrix.StateEvent(ctx, roomID, event.StateCanonicalAlias, "", &content)
	if errors.Is(err, mautrix.MNotFound) {
		b.logger.Warn().Str("room_id", roomID.String()).Msg("No room alias")
		return ""
	}
	if err != nil {
		b.logger.Warn().Err(err).Str("room_id", roomID.String()).Msg("Failed to get room alias")
		return ""
	}
	return content.Alias
}

// handleMembership joins rooms the bot is invited to
func (b *Bot) handleMembership(ctx context.Context, evt *event.Event) {
	if !b.config.AutoJoin || evt.GetStateKey() != b.userID.String() {
		return
	}
	if evt.Content.AsMember().Membership != event.MembershipInvite {
		return
	}

	if _, err := b.matrix.JoinRoomByID(ctx, evt.RoomID); err != nil {
		b.logger.Error().
			Err(err).
			Str("room_id", evt.RoomID.String()).
			Str("inviter", evt.Sender.String()).
			Msg("Failed to join room")
		return
	}

	b.logger.Info().
		Str("room_id", evt.RoomID.String()).
		Str("inviter", evt.Sender.String()).
		Msg("Joined room")
}
