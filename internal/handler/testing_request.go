package handler

import (
	"context"
	"fmt"

	"triagebot/internal/domain"
)

// TestingRequestHandler acknowledges testing requests that reference a ticket.
// The command dispatcher runs after it, so bare keys still get linked.
type TestingRequestHandler struct {
	sender domain.Sender
}

func (h *TestingRequestHandler) Handle(ctx context.Context, msg *domain.Message) error {
	if len(FindTickets(msg.Content)) == 0 {
		return nil
	}
	if err := h.sender.React(ctx, msg.ChannelID, msg.ID, ReactNoted); err != nil {
		return fmt.Errorf("react to testing request: %w", err)
	}
	return nil
}
