// Package handler implements the per-category message collaborators the
// router dispatches to: request intake, testing requests, internal progress
// notes, modmail relaying and the fallback command dispatcher.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"triagebot/internal/domain"
	"triagebot/internal/router"
	"triagebot/internal/store"
)

// Reactions added to messages the bot has processed.
const (
	ReactAccepted = "✅"
	ReactRejected = "❌"
	ReactNoted    = "👀"
	ReactRelayed  = "📨"
)

// Store is the persistence the collaborators need.
type Store interface {
	CreateRequest(ctx context.Context, req store.Request) (store.Request, error)
	CountRequestsSince(ctx context.Context, channelID, authorID string, since time.Time) (int, error)
	RequestByInternalMessage(ctx context.Context, internalMessageID string) (*store.Request, error)
	AddProgressNote(ctx context.Context, note store.ProgressNote) error
	ModmailThreadForUser(ctx context.Context, userID string) (string, error)
	ModmailUserForThread(ctx context.Context, threadID string) (string, error)
	SaveModmailThread(ctx context.Context, userID, threadID string) error
}

// CommandSettings configures the fallback command dispatcher.
type CommandSettings struct {
	Prefix         string
	TicketURL      string // fmt pattern with one %s for the ticket key
	LinkBurst      int
	LinksPerMinute float64
}

// Deps are the shared dependencies of all collaborators.
type Deps struct {
	Sender           domain.Sender
	Store            Store
	InternalChannels map[string]string // request channel -> internal channel
	RequestLimits    map[string]int    // request channel -> requests per user per day
	ModmailChannel   string
	NotePrefix       string
	Commands         CommandSettings
	Logger           *slog.Logger
}

// New builds every collaborator once. The returned set is handed to the router.
func New(d Deps) (router.Handlers, error) {
	if d.Sender == nil {
		return router.Handlers{}, errors.New("handler: sender is required")
	}
	if d.Store == nil {
		return router.Handlers{}, errors.New("handler: store is required")
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	return router.Handlers{
		Request: &RequestHandler{
			sender:   d.Sender,
			store:    d.Store,
			internal: d.InternalChannels,
			limits:   d.RequestLimits,
			authors:  NewKeyedMutex(),
			logger:   d.Logger.With("handler", "request"),
			now:      time.Now,
		},
		TestingRequest: &TestingRequestHandler{
			sender: d.Sender,
		},
		Internal: &InternalProgressHandler{
			sender: d.Sender,
			store:  d.Store,
			logger: d.Logger.With("handler", "internal_progress"),
		},
		DirectMessage: &ModmailHandler{
			sender:  d.Sender,
			store:   d.Store,
			channel: d.ModmailChannel,
			users:   NewKeyedMutex(),
			logger:  d.Logger.With("handler", "modmail"),
		},
		ModmailThread: &ModmailThreadHandler{
			sender:     d.Sender,
			store:      d.Store,
			notePrefix: d.NotePrefix,
			logger:     d.Logger.With("handler", "modmail_thread"),
		},
		Commands: NewCommandDispatcher(d.Sender, d.Commands, d.Logger.With("handler", "commands")),
	}, nil
}
