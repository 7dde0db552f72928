package handler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"triagebot/internal/domain"
	"triagebot/internal/store"
)

const requestWindow = 24 * time.Hour

// RequestHandler takes in user requests posted in request channels.
// A request must reference at least one ticket; accepted requests are
// forwarded to the channel's internal channel and recorded.
type RequestHandler struct {
	sender   domain.Sender
	store    Store
	internal map[string]string
	limits   map[string]int
	authors  *KeyedMutex
	logger   *slog.Logger
	now      func() time.Time
}

func (h *RequestHandler) Handle(ctx context.Context, msg *domain.Message) error {
	tickets := FindTickets(msg.Content)
	if len(tickets) == 0 {
		return h.reject(ctx, msg, "Your request must mention at least one ticket key, for example `MC-4`.")
	}

	// Count, forward and record as one step per author so concurrent
	// messages cannot slip past the limit.
	unlock := h.authors.Lock(msg.ChannelID + "/" + msg.AuthorID)
	defer unlock()

	if limit, ok := h.limits[msg.ChannelID]; ok && limit >= 0 {
		n, err := h.store.CountRequestsSince(ctx, msg.ChannelID, msg.AuthorID, h.now().Add(-requestWindow))
		if err != nil {
			return fmt.Errorf("count requests: %w", err)
		}
		if n >= limit {
			h.logger.Info("request limit reached", "author_id", msg.AuthorID, "channel_id", msg.ChannelID, "limit", limit)
			return h.reject(ctx, msg, fmt.Sprintf("You can post at most %d requests per day in this channel.", limit))
		}
	}

	req := store.Request{
		MessageID: msg.ID,
		ChannelID: msg.ChannelID,
		AuthorID:  msg.AuthorID,
		Tickets:   tickets,
		CreatedAt: h.now(),
	}
	if internal, ok := h.internal[msg.ChannelID]; ok {
		forwardedID, err := h.sender.Send(ctx, internal, formatForward(msg, tickets))
		if err != nil {
			return fmt.Errorf("forward request to %s: %w", internal, err)
		}
		req.InternalChannelID = internal
		req.InternalMessageID = forwardedID
	}

	if _, err := h.store.CreateRequest(ctx, req); err != nil {
		return fmt.Errorf("store request: %w", err)
	}
	if err := h.sender.React(ctx, msg.ChannelID, msg.ID, ReactAccepted); err != nil {
		return fmt.Errorf("react to request: %w", err)
	}
	h.logger.Debug("request accepted", "message_id", msg.ID, "tickets", tickets)
	return nil
}

func (h *RequestHandler) reject(ctx context.Context, msg *domain.Message, reason string) error {
	if err := h.sender.React(ctx, msg.ChannelID, msg.ID, ReactRejected); err != nil {
		return fmt.Errorf("react to request: %w", err)
	}
	if _, err := h.sender.Reply(ctx, msg.ChannelID, msg.ID, reason); err != nil {
		return fmt.Errorf("reply to request: %w", err)
	}
	return nil
}

func formatForward(msg *domain.Message, tickets []string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "**Request** from <@%s> in <#%s>\n", msg.AuthorID, msg.ChannelID)
	fmt.Fprintf(&sb, "Tickets: %s\n", strings.Join(tickets, ", "))
	for _, line := range strings.Split(msg.Content, "\n") {
		sb.WriteString("> ")
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
