package bot

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/format"
	"maunium.net/go/mautrix/id"
)

// recoverMiddleware handles panics in event handlers
func (b *Bot) recoverMiddleware(handler func()) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("Panic recovered in handler")
		}
	}()

	handler()
}

// sendErrorMessage replies to the event with an error message
func (b *Bot) sendErrorMessage(ctx context.Context, evt *event.Event, errorMsg string) {
	_, err := b.sendMessage(ctx, evt.RoomID, errorMsg, evt)
	if err != nil {
		b.logger.Error().
			Err(err).
			Str("room_id", evt.RoomID.String()).
			Msg("Failed to send error message")
	}
}

// sendMessage sends a markdown notice to the room, as a reply when inReplyTo is set
func (b *Bot) sendMessage(ctx context.Context, roomID id.RoomID, text string, inReplyTo *event.Event) (id.EventID, error) {
	content := format.RenderMarkdown(text, true, false)
	content.MsgType = event.MsgNotice
	if inReplyTo != nil {
		content.SetReply(inReplyTo)
	}

	resp, err := b.matrix.SendMessageEvent(ctx, roomID, event.EventMessage, &content)
	if err != nil {
		b.logger.Error().
			Err(err).
			Str("room_id", roomID.String()).
			Msg("Failed to send message")
		return "", fmt.Errorf("failed to send message: %w", err)
	}

	return resp.EventID, nil
}

// sendTypingAction sets the typing indicator. A zero timeout clears it.
func (b *Bot) sendTypingAction(ctx context.Context, roomID id.RoomID, timeout time.Duration) {
	_, err := b.matrix.UserTyping(ctx, roomID, timeout > 0, timeout)
	if err != nil {
		b.logger.Debug().
			Err(err).
			Str("room_id", roomID.String()).
			Msg("Failed to update typing indicator")
	}
}
