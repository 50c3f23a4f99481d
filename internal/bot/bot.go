package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/meeting-summary-bot/internal/metrics"
	"github.com/meeting-summary-bot/internal/models"
	"github.com/meeting-summary-bot/internal/summary"
	"github.com/rs/zerolog"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// matrixClient is the subset of *mautrix.Client used while handling events
type matrixClient interface {
	StateEvent(ctx context.Context, roomID id.RoomID, eventType event.Type, stateKey string, outContent interface{}) error
	MarkRead(ctx context.Context, roomID id.RoomID, eventID id.EventID) error
	UserTyping(ctx context.Context, roomID id.RoomID, typing bool, timeout time.Duration) (*mautrix.RespTyping, error)
	SendMessageEvent(ctx context.Context, roomID id.RoomID, eventType event.Type, contentJSON interface{}, extra ...mautrix.ReqSendEvent) (*mautrix.RespSendEvent, error)
	SendReaction(ctx context.Context, roomID id.RoomID, eventID id.EventID, reaction string) (*mautrix.RespSendEvent, error)
	JoinRoomByID(ctx context.Context, roomID id.RoomID) (*mautrix.RespJoinRoom, error)
}

// TranscriptFetcher retrieves the meeting log announced by the meetbot
type TranscriptFetcher interface {
	Fetch(ctx context.Context, url string) (*models.Transcript, error)
}

// Summarizer turns a meeting log into summary text. An empty result means no summary.
type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (string, error)
	Model() models.ModelType
}

// Bot represents the Matrix bot
type Bot struct {
	client     *mautrix.Client
	matrix     matrixClient
	userID     id.UserID
	config     *models.BotConfig
	fetcher    TranscriptFetcher
	summarizer Summarizer
	archiver   *summary.Archiver
	metrics    *metrics.Metrics
	logger     zerolog.Logger
	wg         sync.WaitGroup // Tracks active handlers for graceful shutdown
}

// New creates a new bot instance
func New(
	ctx context.Context,
	config *models.BotConfig,
	fetcher TranscriptFetcher,
	summarizer Summarizer,
	archiver *summary.Archiver,
	m *metrics.Metrics,
	logger zerolog.Logger,
) (*Bot, error) {
	// Create Matrix client
	client, err := mautrix.NewClient(config.Homeserver, id.UserID(config.UserID), config.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create matrix client: %w", err)
	}
	client.Log = logger.With().Str("component", "matrix").Logger()

	whoami, err := client.Whoami(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate matrix client: %w", err)
	}
	if whoami.UserID != client.UserID {
		return nil, fmt.Errorf("access token belongs to %s, expected %s", whoami.UserID, client.UserID)
	}
	client.DeviceID = whoami.DeviceID

	logger.Info().
		Str("user_id", whoami.UserID.String()).
		Str("device_id", whoami.DeviceID.String()).
		Msg("Matrix client authorized")

	b := newBot(config, client.UserID, client, fetcher, summarizer, archiver, m, logger)
	b.client = client
	return b, nil
}

func newBot(
	config *models.BotConfig,
	userID id.UserID,
	matrix matrixClient,
	fetcher TranscriptFetcher,
	summarizer Summarizer,
	archiver *summary.Archiver,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *Bot {
	return &Bot{
		matrix:     matrix,
		userID:     userID,
		config:     config,
		fetcher:    fetcher,
		summarizer: summarizer,
		archiver:   archiver,
		metrics:    m,
		logger:     logger.With().Str("component", "bot").Logger(),
	}
}

// Start runs the sync loop until ctx is cancelled or Stop is called, then
// waits for the handlers it dispatched
func (b *Bot) Start(ctx context.Context) error {
	b.logger.Info().Msg("Starting bot...")

	syncer, ok := b.client.Syncer.(mautrix.ExtensibleSyncer)
	if !ok {
		return fmt.Errorf("matrix syncer %T does not support event handlers", b.client.Syncer)
	}
	syncer.OnSync(b.client.DontProcessOldEvents)
	syncer.OnEventType(event.EventMessage, b.dispatch(b.handleMessage))
	syncer.OnEventType(event.StateMember, b.dispatch(b.handleMembership))

	b.logger.Info().Msg("Bot started, waiting for meeting logs...")

	return b.syncAndWait(ctx, b.client.SyncWithContext)
}

// syncAndWait runs runSync and then waits for the handlers it dispatched.
// No handler is dispatched once runSync has returned.
func (b *Bot) syncAndWait(ctx context.Context, runSync func(context.Context) error) error {
	err := runSync(ctx)

	b.logger.Info().Msg("Waiting for active handlers to complete...")
	b.wg.Wait()
	b.logger.Info().Msg("All handlers completed")

	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("matrix sync failed: %w", err)
	}
	return nil
}

// dispatch runs each event on its own goroutine so that slow pipelines
// (fetch and LLM calls) never hold up the sync loop
func (b *Bot) dispatch(handler func(context.Context, *event.Event)) mautrix.EventHandler {
	return func(ctx context.Context, evt *event.Event) {
		// Handlers outlive the sync loop during graceful shutdown
		ctx = context.WithoutCancel(ctx)

		// Track this handler in WaitGroup
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.recoverMiddleware(func() {
				handler(ctx, evt)
			})
		}()
	}
}

// Stop stops the sync loop. Start returns once the handlers already
// running have completed.
func (b *Bot) Stop() {
	b.logger.Info().Msg("Stopping bot...")
	b.client.StopSync()
}

// UserID returns the bot's Matrix ID
func (b *Bot) UserID() id.UserID {
	return b.userID
}
