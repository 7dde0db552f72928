// Package router decides which pipeline handles an inbound chat message.
//
// Every message goes through the same steps: hydrate it if the transport
// delivered a partial copy, drop it if it must never be handled (webhooks, the
// bot's own messages, system messages), then walk an ordered rule list where
// the first matching rule claims the message. Only the testing-request rule
// lets the command dispatcher run afterwards.
package router

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"triagebot/internal/bus"
	"triagebot/internal/domain"

	"github.com/google/uuid"
)

// Settings is the read-only routing configuration.
type Settings struct {
	BotUserID              string
	RequestChannels        []string
	TestingRequestChannels []string
	InternalChannels       []string
	ModmailEnabled         bool
	ModmailChannel         string
}

// Handlers holds one collaborator per category plus the fallback dispatcher.
type Handlers struct {
	Request        domain.Handler
	TestingRequest domain.Handler
	Internal       domain.Handler
	DirectMessage  domain.Handler
	ModmailThread  domain.Handler
	Commands       domain.Handler
}

// Config configures a Router.
type Config struct {
	Settings Settings
	Handlers Handlers
	Fetcher  domain.Fetcher
	Events   *bus.EventBus // optional
	Logger   *slog.Logger
}

type rule struct {
	category Category
	match    func(*domain.Message) bool
	handler  domain.Handler
	fallback bool
}

// Router classifies messages and dispatches them. It is safe for concurrent use.
type Router struct {
	botUserID string
	rules     []rule
	commands  domain.Handler
	fetcher   domain.Fetcher
	events    *bus.EventBus
	logger    *slog.Logger
}

func New(cfg Config) (*Router, error) {
	h := cfg.Handlers
	if h.Request == nil || h.TestingRequest == nil || h.Internal == nil ||
		h.DirectMessage == nil || h.ModmailThread == nil || h.Commands == nil {
		return nil, errors.New("router: all handlers are required")
	}
	if cfg.Settings.BotUserID == "" {
		return nil, errors.New("router: bot user ID is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := cfg.Settings
	requests := toSet(s.RequestChannels)
	testing := toSet(s.TestingRequestChannels)
	internal := toSet(s.InternalChannels)
	modmailEnabled := s.ModmailEnabled
	modmailChannel := s.ModmailChannel

	// Order is precedence: the first matching rule claims the message.
	rules := []rule{
		{
			category: CategoryRequest,
			match:    func(m *domain.Message) bool { return requests[m.ChannelID] },
			handler:  h.Request,
		},
		{
			category: CategoryTestingRequest,
			match:    func(m *domain.Message) bool { return testing[m.ChannelID] },
			handler:  h.TestingRequest,
			// Bare ticket keys in testing channels still get a ticket link.
			fallback: true,
		},
		{
			category: CategoryInternal,
			match:    func(m *domain.Message) bool { return internal[m.ChannelID] },
			handler:  h.Internal,
		},
		{
			category: CategoryDirectMessage,
			match:    func(m *domain.Message) bool { return modmailEnabled && m.IsDM() },
			handler:  h.DirectMessage,
		},
		{
			category: CategoryModmailThread,
			match: func(m *domain.Message) bool {
				return modmailEnabled && m.IsThread() && modmailChannel != "" && m.ParentID == modmailChannel
			},
			handler: h.ModmailThread,
		},
	}

	return &Router{
		botUserID: s.BotUserID,
		rules:     rules,
		commands:  h.Commands,
		fetcher:   cfg.Fetcher,
		events:    cfg.Events,
		logger:    logger,
	}, nil
}

// Classify reports how msg would be routed without invoking any handler.
// msg must already be hydrated.
func (r *Router) Classify(msg *domain.Message) Decision {
	if reason := r.suppressReason(msg); reason != NotSuppressed {
		return Decision{Category: CategoryNone, Suppressed: reason}
	}
	if rl, ok := r.match(msg); ok {
		return Decision{Category: rl.category, Fallback: rl.fallback}
	}
	return Decision{Category: CategoryGeneric}
}

// Route hydrates, filters, classifies and dispatches a single message.
// Errors from hydration or from the invoked handler are returned to the
// caller unchanged apart from being wrapped in HydrateError or HandlerError.
func (r *Router) Route(ctx context.Context, msg *domain.Message) error {
	if msg == nil {
		return nil
	}
	start := time.Now()
	routeID := uuid.NewString()
	logger := r.logger.With("route_id", routeID, "message_id", msg.ID, "channel_id", msg.ChannelID)

	if msg.Partial {
		full, err := r.hydrate(ctx, msg)
		if err != nil {
			logger.Debug("hydration failed", "err", err)
			r.emit(bus.EventMessageRouteFailed, routeID, msg, CategoryNone, false, start, err)
			return err
		}
		msg = full
	}

	if reason := r.suppressReason(msg); reason != NotSuppressed {
		logger.Debug("message suppressed", "reason", string(reason))
		r.emitSuppressed(routeID, msg, reason)
		return nil
	}

	category := CategoryGeneric
	fallback := true
	if rl, ok := r.match(msg); ok {
		category, fallback = rl.category, rl.fallback
		if err := rl.handler.Handle(ctx, msg); err != nil {
			herr := &HandlerError{Category: rl.category, MessageID: msg.ID, Err: err}
			r.emit(bus.EventMessageRouteFailed, routeID, msg, rl.category, rl.fallback, start, herr)
			return herr
		}
	}

	if fallback {
		if err := r.commands.Handle(ctx, msg); err != nil {
			herr := &HandlerError{Category: CategoryGeneric, MessageID: msg.ID, Err: err}
			r.emit(bus.EventMessageRouteFailed, routeID, msg, category, fallback, start, herr)
			return herr
		}
	}

	logger.Debug("message routed", "category", category.String(), "fallback", fallback && category != CategoryGeneric)
	r.emit(bus.EventMessageRouted, routeID, msg, category, fallback && category != CategoryGeneric, start, nil)
	return nil
}

func (r *Router) hydrate(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	if r.fetcher == nil {
		return nil, &HydrateError{MessageID: msg.ID, ChannelID: msg.ChannelID, Err: errors.New("no fetcher configured")}
	}
	full, err := r.fetcher.Fetch(ctx, msg)
	if err != nil {
		return nil, &HydrateError{MessageID: msg.ID, ChannelID: msg.ChannelID, Err: err}
	}
	if full == nil {
		return nil, &HydrateError{MessageID: msg.ID, ChannelID: msg.ChannelID, Err: errors.New("fetch returned no message")}
	}
	return full, nil
}

func (r *Router) suppressReason(msg *domain.Message) SuppressReason {
	switch {
	case msg.FromWebhook():
		return SuppressedWebhook
	case msg.AuthorID == r.botUserID:
		return SuppressedSelf
	case msg.Kind != domain.MessageDefault && msg.Kind != domain.MessageReply:
		return SuppressedKind
	}
	return NotSuppressed
}

func (r *Router) match(msg *domain.Message) (rule, bool) {
	for _, rl := range r.rules {
		if rl.match(msg) {
			return rl, true
		}
	}
	return rule{}, false
}

func (r *Router) emitSuppressed(routeID string, msg *domain.Message, reason SuppressReason) {
	if r.events == nil {
		return
	}
	r.events.Emit(bus.Event{
		Type:   bus.EventMessageSuppressed,
		Source: "router",
		Payload: map[string]any{
			"route_id":   routeID,
			"message_id": msg.ID,
			"channel_id": msg.ChannelID,
			"author_id":  msg.AuthorID,
			"reason":     string(reason),
		},
	})
}

func (r *Router) emit(eventType, routeID string, msg *domain.Message, category Category, fallback bool, start time.Time, err error) {
	if r.events == nil {
		return
	}
	payload := map[string]any{
		"route_id":    routeID,
		"message_id":  msg.ID,
		"channel_id":  msg.ChannelID,
		"author_id":   msg.AuthorID,
		"category":    category.String(),
		"fallback":    fallback,
		"duration_ms": time.Since(start).Milliseconds(),
	}
	if err != nil {
		payload["error"] = err.Error()
	}
	r.events.Emit(bus.Event{Type: eventType, Source: "router", Payload: payload})
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id != "" {
			set[id] = true
		}
	}
	return set
}
