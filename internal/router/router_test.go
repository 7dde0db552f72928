package router

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"

	"triagebot/internal/bus"
	"triagebot/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	botID           = "bot-1"
	requestCh       = "req-1"
	testingCh       = "test-1"
	internalCh      = "int-1"
	modmailCh       = "modmail-1"
	otherCh         = "general"
	dmCh            = "dm-42"
	modmailThread   = "thread-7"
	unrelatedThrd   = "thread-8"
	unrelatedParent = "random-parent"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// recorder records handler invocations in call order.
type recorder struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

func (r *recorder) handler(name string) domain.Handler {
	return domain.HandlerFunc(func(ctx context.Context, msg *domain.Message) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.calls = append(r.calls, name)
		return r.fail[name]
	})
}

func (r *recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type stubFetcher struct {
	mu    sync.Mutex
	calls int
	full  *domain.Message
	err   error
}

func (f *stubFetcher) Fetch(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.full, f.err
}

func testSettings() Settings {
	return Settings{
		BotUserID:              botID,
		RequestChannels:        []string{requestCh},
		TestingRequestChannels: []string{testingCh},
		InternalChannels:       []string{internalCh},
		ModmailEnabled:         true,
		ModmailChannel:         modmailCh,
	}
}

func newTestRouter(t *testing.T, s Settings, rec *recorder, fetcher domain.Fetcher, events *bus.EventBus) *Router {
	t.Helper()
	r, err := New(Config{
		Settings: s,
		Handlers: Handlers{
			Request:        rec.handler("request"),
			TestingRequest: rec.handler("testing_request"),
			Internal:       rec.handler("internal"),
			DirectMessage:  rec.handler("direct_message"),
			ModmailThread:  rec.handler("modmail_thread"),
			Commands:       rec.handler("commands"),
		},
		Fetcher: fetcher,
		Events:  events,
		Logger:  testLogger(),
	})
	require.NoError(t, err)
	return r
}

func textMsg(channelID string) *domain.Message {
	return &domain.Message{
		ID:          "m-1",
		ChannelID:   channelID,
		ChannelKind: domain.ChannelText,
		Kind:        domain.MessageDefault,
		AuthorID:    "user-1",
		Content:     "MC-1234",
	}
}

func TestRoute_Classification(t *testing.T) {
	tests := []struct {
		name  string
		msg   *domain.Message
		calls []string
	}{
		{"request channel", textMsg(requestCh), []string{"request"}},
		{"testing channel falls through", textMsg(testingCh), []string{"testing_request", "commands"}},
		{"internal channel", textMsg(internalCh), []string{"internal"}},
		{"plain channel", textMsg(otherCh), []string{"commands"}},
		{
			"direct message",
			&domain.Message{ID: "m", ChannelID: dmCh, ChannelKind: domain.ChannelDM, Kind: domain.MessageDefault, AuthorID: "user-1"},
			[]string{"direct_message"},
		},
		{
			"modmail thread",
			&domain.Message{ID: "m", ChannelID: modmailThread, ParentID: modmailCh, ChannelKind: domain.ChannelThread, Kind: domain.MessageReply, AuthorID: "mod-1"},
			[]string{"modmail_thread"},
		},
		{
			"unrelated thread",
			&domain.Message{ID: "m", ChannelID: unrelatedThrd, ParentID: unrelatedParent, ChannelKind: domain.ChannelThread, Kind: domain.MessageDefault, AuthorID: "user-1"},
			[]string{"commands"},
		},
		{
			"thread under request channel is not a request",
			&domain.Message{ID: "m", ChannelID: unrelatedThrd, ParentID: requestCh, ChannelKind: domain.ChannelThread, Kind: domain.MessageDefault, AuthorID: "user-1"},
			[]string{"commands"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			r := newTestRouter(t, testSettings(), rec, nil, nil)
			require.NoError(t, r.Route(context.Background(), tt.msg))
			assert.Equal(t, tt.calls, rec.Calls())
		})
	}
}

func TestRoute_Suppression(t *testing.T) {
	channels := []*domain.Message{
		textMsg(requestCh), textMsg(testingCh), textMsg(internalCh), textMsg(otherCh),
		{ID: "m", ChannelID: dmCh, ChannelKind: domain.ChannelDM, Kind: domain.MessageDefault},
		{ID: "m", ChannelID: modmailThread, ParentID: modmailCh, ChannelKind: domain.ChannelThread, Kind: domain.MessageDefault},
	}

	for _, base := range channels {
		self := *base
		self.AuthorID = botID

		webhook := *base
		webhook.AuthorID = "someone"
		webhook.WebhookID = "hook-1"

		system := *base
		system.AuthorID = "someone"
		system.Kind = domain.MessageSystem

		for name, msg := range map[string]*domain.Message{"self": &self, "webhook": &webhook, "system": &system} {
			rec := &recorder{}
			r := newTestRouter(t, testSettings(), rec, nil, nil)
			require.NoError(t, r.Route(context.Background(), msg))
			assert.Empty(t, rec.Calls(), "%s message in %s should not reach any handler", name, base.ChannelID)
		}
	}
}

func TestRoute_ReplyIsHandled(t *testing.T) {
	rec := &recorder{}
	r := newTestRouter(t, testSettings(), rec, nil, nil)

	msg := textMsg(requestCh)
	msg.Kind = domain.MessageReply
	require.NoError(t, r.Route(context.Background(), msg))
	assert.Equal(t, []string{"request"}, rec.Calls())
}

func TestRoute_ModmailDisabled(t *testing.T) {
	s := testSettings()
	s.ModmailEnabled = false

	dm := &domain.Message{ID: "m", ChannelID: dmCh, ChannelKind: domain.ChannelDM, Kind: domain.MessageDefault, AuthorID: "user-1"}
	thread := &domain.Message{ID: "m", ChannelID: modmailThread, ParentID: modmailCh, ChannelKind: domain.ChannelThread, Kind: domain.MessageDefault, AuthorID: "mod-1"}

	for _, msg := range []*domain.Message{dm, thread} {
		rec := &recorder{}
		r := newTestRouter(t, s, rec, nil, nil)
		require.NoError(t, r.Route(context.Background(), msg))
		assert.Equal(t, []string{"commands"}, rec.Calls())
	}
}

func TestRoute_OverlappingConfigUsesPrecedence(t *testing.T) {
	s := testSettings()
	s.InternalChannels = append(s.InternalChannels, requestCh)
	s.TestingRequestChannels = append(s.TestingRequestChannels, internalCh)

	rec := &recorder{}
	r := newTestRouter(t, s, rec, nil, nil)

	require.NoError(t, r.Route(context.Background(), textMsg(requestCh)))
	assert.Equal(t, []string{"request"}, rec.Calls())

	rec2 := &recorder{}
	r2 := newTestRouter(t, s, rec2, nil, nil)
	require.NoError(t, r2.Route(context.Background(), textMsg(internalCh)))
	assert.Equal(t, []string{"testing_request", "commands"}, rec2.Calls())
}

func TestRoute_PartialMessageIsHydratedOnce(t *testing.T) {
	full := &domain.Message{ID: "m-9", ChannelID: dmCh, ChannelKind: domain.ChannelDM, Kind: domain.MessageDefault, AuthorID: "user-1"}
	fetcher := &stubFetcher{full: full}
	rec := &recorder{}
	r := newTestRouter(t, testSettings(), rec, fetcher, nil)

	// The partial copy does not know it lives in a DM channel.
	partial := &domain.Message{ID: "m-9", ChannelID: dmCh, Partial: true}
	require.NoError(t, r.Route(context.Background(), partial))

	assert.Equal(t, 1, fetcher.calls)
	assert.Equal(t, []string{"direct_message"}, rec.Calls())
}

func TestRoute_CompleteMessageIsNotFetched(t *testing.T) {
	fetcher := &stubFetcher{}
	rec := &recorder{}
	r := newTestRouter(t, testSettings(), rec, fetcher, nil)

	require.NoError(t, r.Route(context.Background(), textMsg(otherCh)))
	assert.Zero(t, fetcher.calls)
}

func TestRoute_PartialInTextChannelIsHydrated(t *testing.T) {
	full := textMsg(requestCh)
	fetcher := &stubFetcher{full: full}
	rec := &recorder{}
	r := newTestRouter(t, testSettings(), rec, fetcher, nil)

	require.NoError(t, r.Route(context.Background(), &domain.Message{ID: full.ID, ChannelID: requestCh, Partial: true}))
	assert.Equal(t, 1, fetcher.calls)
	assert.Equal(t, []string{"request"}, rec.Calls())
}

func TestRoute_HydrationFailure(t *testing.T) {
	cause := errors.New("unknown message")
	fetcher := &stubFetcher{err: cause}
	rec := &recorder{}
	r := newTestRouter(t, testSettings(), rec, fetcher, nil)

	err := r.Route(context.Background(), &domain.Message{ID: "m", ChannelID: dmCh, Partial: true})
	require.Error(t, err)

	var herr *HydrateError
	require.ErrorAs(t, err, &herr)
	assert.ErrorIs(t, err, cause)
	assert.Empty(t, rec.Calls())
}

func TestRoute_PartialWithoutFetcher(t *testing.T) {
	rec := &recorder{}
	r := newTestRouter(t, testSettings(), rec, nil, nil)

	err := r.Route(context.Background(), &domain.Message{ID: "m", ChannelID: dmCh, Partial: true})
	var herr *HydrateError
	require.ErrorAs(t, err, &herr)
	assert.Empty(t, rec.Calls())
}

func TestRoute_HandlerFailurePropagates(t *testing.T) {
	cause := errors.New("discord 500")
	rec := &recorder{fail: map[string]error{"request": cause}}
	r := newTestRouter(t, testSettings(), rec, nil, nil)

	err := r.Route(context.Background(), textMsg(requestCh))
	var herr *HandlerError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, CategoryRequest, herr.Category)
	assert.ErrorIs(t, err, cause)
}

func TestRoute_TestingFailureSkipsCommands(t *testing.T) {
	rec := &recorder{fail: map[string]error{"testing_request": errors.New("boom")}}
	r := newTestRouter(t, testSettings(), rec, nil, nil)

	err := r.Route(context.Background(), textMsg(testingCh))
	require.Error(t, err)
	assert.Equal(t, []string{"testing_request"}, rec.Calls())
}

func TestRoute_CommandFailurePropagates(t *testing.T) {
	rec := &recorder{fail: map[string]error{"commands": errors.New("boom")}}
	r := newTestRouter(t, testSettings(), rec, nil, nil)

	err := r.Route(context.Background(), textMsg(otherCh))
	var herr *HandlerError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, CategoryGeneric, herr.Category)
}

func TestRoute_FailureIsIsolatedPerMessage(t *testing.T) {
	rec := &recorder{fail: map[string]error{"request": errors.New("boom")}}
	r := newTestRouter(t, testSettings(), rec, nil, nil)

	require.Error(t, r.Route(context.Background(), textMsg(requestCh)))
	require.NoError(t, r.Route(context.Background(), textMsg(internalCh)))
	assert.Equal(t, []string{"request", "internal"}, rec.Calls())
}

func TestRoute_NilMessage(t *testing.T) {
	rec := &recorder{}
	r := newTestRouter(t, testSettings(), rec, nil, nil)
	assert.NoError(t, r.Route(context.Background(), nil))
	assert.Empty(t, rec.Calls())
}

func TestRoute_Concurrent(t *testing.T) {
	rec := &recorder{}
	r := newTestRouter(t, testSettings(), rec, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.Route(context.Background(), textMsg(internalCh))
		}()
	}
	wg.Wait()
	assert.Len(t, rec.Calls(), 50)
}

func TestClassify_Idempotent(t *testing.T) {
	rec := &recorder{}
	r := newTestRouter(t, testSettings(), rec, nil, nil)

	msg := textMsg(testingCh)
	first := r.Classify(msg)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, r.Classify(msg))
	}
	assert.Equal(t, Decision{Category: CategoryTestingRequest, Fallback: true}, first)
	assert.Empty(t, rec.Calls(), "Classify must not invoke handlers")
}

func TestClassify_SuppressReasons(t *testing.T) {
	r := newTestRouter(t, testSettings(), &recorder{}, nil, nil)

	self := textMsg(otherCh)
	self.AuthorID = botID
	assert.Equal(t, SuppressedSelf, r.Classify(self).Suppressed)

	hook := textMsg(otherCh)
	hook.WebhookID = "w"
	hook.AuthorID = botID
	assert.Equal(t, SuppressedWebhook, r.Classify(hook).Suppressed, "webhook check runs first")

	sys := textMsg(otherCh)
	sys.Kind = domain.MessageSystem
	d := r.Classify(sys)
	assert.Equal(t, SuppressedKind, d.Suppressed)
	assert.Nil(t, d.Handlers())
}

func TestDecision_Handlers(t *testing.T) {
	assert.Equal(t, []Category{CategoryRequest}, Decision{Category: CategoryRequest}.Handlers())
	assert.Equal(t, []Category{CategoryTestingRequest, CategoryGeneric}, Decision{Category: CategoryTestingRequest, Fallback: true}.Handlers())
	assert.Equal(t, []Category{CategoryGeneric}, Decision{Category: CategoryGeneric}.Handlers())
}

func TestRoute_EmitsEvents(t *testing.T) {
	events := bus.NewEventBus(testLogger())
	var got []bus.Event
	events.On("*", func(e bus.Event) { got = append(got, e) })

	rec := &recorder{}
	r := newTestRouter(t, testSettings(), rec, nil, events)

	require.NoError(t, r.Route(context.Background(), textMsg(testingCh)))
	self := textMsg(otherCh)
	self.AuthorID = botID
	require.NoError(t, r.Route(context.Background(), self))

	require.Len(t, got, 2)
	assert.Equal(t, bus.EventMessageRouted, got[0].Type)
	assert.Equal(t, "testing_request", got[0].Payload["category"])
	assert.Equal(t, true, got[0].Payload["fallback"])
	assert.NotEmpty(t, got[0].Payload["route_id"])
	assert.Equal(t, bus.EventMessageSuppressed, got[1].Type)
	assert.Equal(t, "self", got[1].Payload["reason"])
}

func TestNew_RequiresHandlers(t *testing.T) {
	_, err := New(Config{Settings: testSettings(), Logger: testLogger()})
	assert.Error(t, err)
}

func TestNew_RequiresBotUserID(t *testing.T) {
	rec := &recorder{}
	s := testSettings()
	s.BotUserID = ""
	_, err := New(Config{
		Settings: s,
		Handlers: Handlers{
			Request:        rec.handler("request"),
			TestingRequest: rec.handler("testing_request"),
			Internal:       rec.handler("internal"),
			DirectMessage:  rec.handler("direct_message"),
			ModmailThread:  rec.handler("modmail_thread"),
			Commands:       rec.handler("commands"),
		},
	})
	assert.Error(t, err)
}
