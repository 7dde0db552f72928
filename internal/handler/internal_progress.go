package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"triagebot/internal/domain"
	"triagebot/internal/store"
)

// InternalProgressHandler turns staff replies to forwarded requests into
// progress notes and relays them to the original request.
type InternalProgressHandler struct {
	sender domain.Sender
	store  Store
	logger *slog.Logger
}

func (h *InternalProgressHandler) Handle(ctx context.Context, msg *domain.Message) error {
	if msg.ReferenceID == "" || msg.Content == "" {
		return nil
	}
	req, err := h.store.RequestByInternalMessage(ctx, msg.ReferenceID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup request: %w", err)
	}

	note := store.ProgressNote{RequestID: req.ID, AuthorID: msg.AuthorID, Content: msg.Content, CreatedAt: msg.Timestamp}
	if err := h.store.AddProgressNote(ctx, note); err != nil {
		return fmt.Errorf("store progress note: %w", err)
	}

	update := fmt.Sprintf("**Update** from <@%s>: %s", msg.AuthorID, msg.Content)
	if _, err := h.sender.Reply(ctx, req.ChannelID, req.MessageID, update); err != nil {
		return fmt.Errorf("relay progress note: %w", err)
	}
	h.logger.Debug("progress note relayed", "request_id", req.ID, "message_id", msg.ID)
	return nil
}
