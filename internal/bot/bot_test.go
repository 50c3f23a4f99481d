package bot

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/meeting-summary-bot/internal/metrics"
	"github.com/meeting-summary-bot/internal/models"
	"github.com/meeting-summary-bot/internal/summary"
	"github.com/meeting-summary-bot/internal/transcript"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

const (
	botID     = id.UserID("@summary:server.tld")
	meetbotID = "@meetbot:server.tld"
	roomID    = id.RoomID("!meeting:server.tld")
	triggerID = id.EventID("$trigger")

	meetingLog = `2025-09-25 08:25:00 <@meetbot:server.tld> Meeting started
2025-09-25 08:26:00 <@alice:server.tld> hi
2025-09-25 08:27:00 <@bob:server.tld> hello
2025-09-25 08:27:30 <@summary:server.tld> listening
2025-09-25 08:28:00 <@zodbot:server.tld> #action bob writes the notes
2025-09-25 08:29:00 <@alice:server.tld> thanks
`
)

type sentReaction struct {
	roomID  id.RoomID
	eventID id.EventID
	key     string
}

type fakeMatrix struct {
	mu sync.Mutex

	alias       id.RoomAlias
	aliasErr    error
	reactionErr error

	messages  []*event.MessageEventContent
	reactions []sentReaction
	typing    []time.Duration
	marked    []id.EventID
	joined    []id.RoomID
}

func (f *fakeMatrix) StateEvent(_ context.Context, _ id.RoomID, eventType event.Type, _ string, outContent interface{}) error {
	if f.aliasErr != nil {
		return f.aliasErr
	}
	if eventType == event.StateCanonicalAlias {
		outContent.(*event.CanonicalAliasEventContent).Alias = f.alias
	}
	return nil
}

func (f *fakeMatrix) MarkRead(_ context.Context, _ id.RoomID, eventID id.EventID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, eventID)
	return nil
}

func (f *fakeMatrix) UserTyping(_ context.Context, _ id.RoomID, _ bool, timeout time.Duration) (*mautrix.RespTyping, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typing = append(f.typing, timeout)
	return &mautrix.RespTyping{}, nil
}

func (f *fakeMatrix) SendMessageEvent(_ context.Context, _ id.RoomID, _ event.Type, contentJSON interface{}, _ ...mautrix.ReqSendEvent) (*mautrix.RespSendEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content := *contentJSON.(*event.MessageEventContent)
	f.messages = append(f.messages, &content)
	return &mautrix.RespSendEvent{EventID: id.EventID("$summary")}, nil
}

func (f *fakeMatrix) SendReaction(_ context.Context, roomID id.RoomID, eventID id.EventID, reaction string) (*mautrix.RespSendEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.reactionErr != nil {
		return nil, f.reactionErr
	}
	f.reactions = append(f.reactions, sentReaction{roomID: roomID, eventID: eventID, key: reaction})
	return &mautrix.RespSendEvent{EventID: id.EventID("$reaction")}, nil
}

func (f *fakeMatrix) JoinRoomByID(_ context.Context, roomID id.RoomID) (*mautrix.RespJoinRoom, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joined = append(f.joined, roomID)
	return &mautrix.RespJoinRoom{RoomID: roomID}, nil
}

type fakeSummarizer struct {
	text  string
	err   error
	calls atomic.Int32
	input string
}

func (f *fakeSummarizer) Summarize(_ context.Context, transcript string) (string, error) {
	f.calls.Add(1)
	f.input = transcript
	return f.text, f.err
}

func (f *fakeSummarizer) Model() models.ModelType {
	return models.ModelFlash
}

type failingFetcher struct{ err error }

func (f failingFetcher) Fetch(context.Context, string) (*models.Transcript, error) {
	return nil, f.err
}

type testEnv struct {
	bot        *Bot
	matrix     *fakeMatrix
	summarizer *fakeSummarizer
	metrics    *metrics.Metrics
	archiveDir string
	logURL     string
	fetches    *atomic.Int32
	logs       *bytes.Buffer
}

func newTestEnv(t *testing.T, status int) *testEnv {
	t.Helper()

	fetches := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		_, _ = w.Write([]byte(meetingLog))
	}))
	t.Cleanup(server.Close)

	archiveDir := t.TempDir()
	cfg := &models.BotConfig{
		AutoJoin:            true,
		MeetbotID:           meetbotID,
		IgnoredParticipants: []string{"@zodbot:server.tld"},
		MeetingsDirectory:   archiveDir,
		Gemini:              models.GeminiConfig{Model: models.ModelFlash},
	}

	matrix := &fakeMatrix{}
	summarizer := &fakeSummarizer{text: "- point one\n- point two"}
	m := metrics.New()
	logs := &bytes.Buffer{}
	logger := zerolog.New(logs)

	b := newBot(cfg, botID, matrix,
		transcript.NewFetcher(server.Client(), logger),
		summarizer,
		summary.NewArchiver(archiveDir, logger),
		m, logger)

	return &testEnv{
		bot:        b,
		matrix:     matrix,
		summarizer: summarizer,
		metrics:    m,
		archiveDir: archiveDir,
		logURL:     server.URL + "/meetings/2025-09-25.log.txt",
		fetches:    fetches,
		logs:       logs,
	}
}

func (e *testEnv) archivedFile() string {
	return filepath.Join(e.archiveDir, "meetings", "2025-09-25.summary.md")
}

func messageEvent(sender string, msgType event.MessageType, body string) *event.Event {
	return &event.Event{
		Type:   event.EventMessage,
		RoomID: roomID,
		ID:     triggerID,
		Sender: id.UserID(sender),
		Content: event.Content{Parsed: &event.MessageEventContent{
			MsgType: msgType,
			Body:    body,
		}},
	}
}

func (e *testEnv) announce() *event.Event {
	return messageEvent(meetbotID, event.MsgNotice, "Text Log: "+e.logURL)
}

func TestHandleMessage_IgnoresOtherSenders(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)
	evt := env.announce()
	evt.Sender = "@mallory:server.tld"

	env.bot.handleMessage(context.Background(), evt)

	assert.Zero(t, env.fetches.Load())
	assert.Empty(t, env.matrix.messages)
	assert.Empty(t, env.matrix.marked)
	assert.Empty(t, env.matrix.typing)
	assert.NoFileExists(t, env.archivedFile())
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.EventsTotal.WithLabelValues(metrics.OutcomeIgnored)))
}

func TestHandleMessage_IgnoresNonNotice(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)

	env.bot.handleMessage(context.Background(), messageEvent(meetbotID, event.MsgText, "Text Log: "+env.logURL))

	assert.Zero(t, env.fetches.Load())
	assert.Empty(t, env.matrix.messages)
	assert.Empty(t, env.matrix.marked)
}

func TestHandleMessage_IgnoresOwnMessages(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)

	env.bot.handleMessage(context.Background(), messageEvent(botID.String(), event.MsgNotice, "Text Log: "+env.logURL))

	assert.Zero(t, env.fetches.Load())
	assert.Empty(t, env.matrix.messages)
}

func TestHandleMessage_MeetbotWithoutPrefix(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)

	env.bot.handleMessage(context.Background(), messageEvent(meetbotID, event.MsgNotice, "Meeting started"))

	assert.Equal(t, []id.EventID{triggerID}, env.matrix.marked)
	assert.Zero(t, env.fetches.Load())
	assert.Empty(t, env.matrix.messages)
	assert.Empty(t, env.matrix.typing)
}

func TestHandleMessage_PostsAndArchivesSummary(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)

	env.bot.handleMessage(context.Background(), env.announce())

	assert.Equal(t, int32(1), env.fetches.Load())
	assert.Equal(t, meetingLog, env.summarizer.input)
	assert.Equal(t, []id.EventID{triggerID}, env.matrix.marked)

	require.Len(t, env.matrix.messages, 1)
	msg := env.matrix.messages[0]
	assert.Equal(t, event.MsgNotice, msg.MsgType)
	assert.Contains(t, msg.Body, "Hello @alice:server.tld, @bob:server.tld.")
	assert.Contains(t, msg.Body, "point one")
	assert.NotContains(t, msg.Body, "@zodbot:server.tld")
	assert.NotContains(t, msg.Body, "@meetbot:server.tld")
	assert.NotContains(t, msg.Body, botID.String())
	assert.Empty(t, msg.RelatesTo.GetReplyTo())

	assert.Equal(t, []sentReaction{
		{roomID: roomID, eventID: "$summary", key: "✅"},
		{roomID: roomID, eventID: "$summary", key: "❌"},
	}, env.matrix.reactions)

	data, err := os.ReadFile(env.archivedFile())
	require.NoError(t, err)
	assert.Equal(t, "*Note: This summary has not been validated by the attendants.*\n\n- point one\n- point two", string(data))

	assert.Equal(t, []time.Duration{typingTimeout, 0}, env.matrix.typing)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.EventsTotal.WithLabelValues(metrics.OutcomePosted)))
}

func TestHandleMessage_OverwritesArchive(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)

	env.bot.handleMessage(context.Background(), env.announce())
	env.summarizer.text = "- revised point"
	env.bot.handleMessage(context.Background(), env.announce())

	data, err := os.ReadFile(env.archivedFile())
	require.NoError(t, err)
	assert.Equal(t, "*Note: This summary has not been validated by the attendants.*\n\n- revised point", string(data))
}

func TestHandleMessage_FetchFailure(t *testing.T) {
	env := newTestEnv(t, http.StatusNotFound)

	env.bot.handleMessage(context.Background(), env.announce())

	require.Len(t, env.matrix.messages, 1)
	reply := env.matrix.messages[0]
	assert.Contains(t, reply.Body, "❌")
	assert.Contains(t, reply.Body, "Failed to fetch meeting log")
	assert.Equal(t, triggerID, reply.RelatesTo.GetReplyTo())

	assert.Zero(t, env.summarizer.calls.Load())
	assert.Empty(t, env.matrix.reactions)
	assert.NoFileExists(t, env.archivedFile())
	assert.Equal(t, []time.Duration{typingTimeout, 0}, env.matrix.typing)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.EventsTotal.WithLabelValues(metrics.OutcomeFetchFailed)))
}

func TestHandleMessage_UnexpectedFetchError(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)
	env.bot.fetcher = failingFetcher{err: errors.New("boom")}

	env.bot.handleMessage(context.Background(), env.announce())

	assert.Empty(t, env.matrix.messages)
	assert.Zero(t, env.summarizer.calls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.EventsTotal.WithLabelValues(metrics.OutcomeFailed)))
}

func TestHandleMessage_EmptySummary(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)
	env.summarizer.text = ""

	env.bot.handleMessage(context.Background(), env.announce())

	assert.Equal(t, int32(1), env.summarizer.calls.Load())
	assert.Empty(t, env.matrix.messages)
	assert.Empty(t, env.matrix.reactions)
	assert.NoFileExists(t, env.archivedFile())
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.EventsTotal.WithLabelValues(metrics.OutcomeNoSummary)))
	assert.Zero(t, testutil.ToFloat64(env.metrics.ErrorsTotal.WithLabelValues("summarize")))

	// Participants are still extracted and logged
	logs := env.logs.String()
	assert.Contains(t, logs, `"message":"Found unique participants"`)
	assert.Contains(t, logs, `"participants":["@alice:server.tld","@bob:server.tld"]`)
	assert.Contains(t, logs, `"message":"Could not generate summary for meeting"`)
}

func TestHandleMessage_SummarizerError(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)
	env.summarizer.err = errors.New("quota exceeded")

	env.bot.handleMessage(context.Background(), env.announce())

	require.Len(t, env.matrix.messages, 1)
	assert.Contains(t, env.matrix.messages[0].Body, "Failed to generate the meeting summary")
	assert.Equal(t, triggerID, env.matrix.messages[0].RelatesTo.GetReplyTo())
	assert.Empty(t, env.matrix.reactions)
	assert.NoFileExists(t, env.archivedFile())
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.ErrorsTotal.WithLabelValues("summarize")))
}

func TestHandleMessage_ReactionFailure(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)
	env.matrix.reactionErr = errors.New("forbidden")

	env.bot.handleMessage(context.Background(), env.announce())

	require.Len(t, env.matrix.messages, 1)
	assert.NoFileExists(t, env.archivedFile())
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.ErrorsTotal.WithLabelValues("publish")))
	assert.Equal(t, []time.Duration{typingTimeout, 0}, env.matrix.typing)
}

func TestHandleMessage_ArchiveDisabled(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)
	env.bot.archiver = summary.NewArchiver("", zerolog.Nop())

	env.bot.handleMessage(context.Background(), env.announce())

	require.Len(t, env.matrix.messages, 1)
	assert.Len(t, env.matrix.reactions, 2)
	entries, err := os.ReadDir(env.archiveDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRoomName(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)

	env.matrix.alias = "#fedora-meeting:server.tld"
	assert.Equal(t, "#fedora-meeting:server.tld (!meeting:server.tld)", env.bot.roomName(context.Background(), roomID))

	env.matrix.aliasErr = mautrix.MNotFound
	assert.Equal(t, "!meeting:server.tld", env.bot.roomName(context.Background(), roomID))

	env.matrix.aliasErr = nil
	env.matrix.alias = ""
	assert.Equal(t, "!meeting:server.tld", env.bot.roomName(context.Background(), roomID))
}

func memberEvent(target string, membership event.Membership) *event.Event {
	stateKey := target
	return &event.Event{
		Type:     event.StateMember,
		RoomID:   roomID,
		Sender:   "@alice:server.tld",
		StateKey: &stateKey,
		Content:  event.Content{Parsed: &event.MemberEventContent{Membership: membership}},
	}
}

func TestHandleMembership(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)

	env.bot.handleMembership(context.Background(), memberEvent("@alice:server.tld", event.MembershipInvite))
	env.bot.handleMembership(context.Background(), memberEvent(botID.String(), event.MembershipJoin))
	assert.Empty(t, env.matrix.joined)

	env.bot.handleMembership(context.Background(), memberEvent(botID.String(), event.MembershipInvite))
	assert.Equal(t, []id.RoomID{roomID}, env.matrix.joined)
}

func TestHandleMembership_AutoJoinDisabled(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)
	env.bot.config.AutoJoin = false

	env.bot.handleMembership(context.Background(), memberEvent(botID.String(), event.MembershipInvite))
	assert.Empty(t, env.matrix.joined)
}

func TestRecoverMiddleware(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)

	assert.NotPanics(t, func() {
		env.bot.recoverMiddleware(func() { panic("boom") })
	})
}

func TestDispatch_WaitsForHandlers(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)

	ctx, cancel := context.WithCancel(context.Background())
	var handled atomic.Bool
	handler := env.bot.dispatch(func(ctx context.Context, _ *event.Event) {
		time.Sleep(10 * time.Millisecond)
		handled.Store(ctx.Err() == nil)
	})

	handler(ctx, env.announce())
	cancel()
	env.bot.wg.Wait()

	assert.True(t, handled.Load())
}

func TestSyncAndWait_WaitsForDispatchedHandlers(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)

	var handled atomic.Bool
	handler := env.bot.dispatch(func(context.Context, *event.Event) {
		time.Sleep(20 * time.Millisecond)
		handled.Store(true)
	})

	err := env.bot.syncAndWait(context.Background(), func(ctx context.Context) error {
		handler(ctx, env.announce())
		return context.Canceled
	})

	require.NoError(t, err)
	assert.True(t, handled.Load())
}

func TestSyncAndWait_SyncError(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)

	err := env.bot.syncAndWait(context.Background(), func(context.Context) error {
		return errors.New("connection refused")
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "matrix sync failed")
}
