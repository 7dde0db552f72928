package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"triagebot/internal/domain"
	"triagebot/internal/store"
)

// ModmailHandler relays direct messages into a per-user thread of the
// modmail channel, opening the thread on first contact.
type ModmailHandler struct {
	sender  domain.Sender
	store   Store
	channel string
	users   *KeyedMutex
	logger  *slog.Logger
}

func (h *ModmailHandler) Handle(ctx context.Context, msg *domain.Message) error {
	threadID, err := h.threadFor(ctx, msg)
	if err != nil {
		return fmt.Errorf("modmail thread for %s: %w", msg.AuthorID, err)
	}

	if _, err := h.sender.Send(ctx, threadID, fmt.Sprintf("**<@%s>:** %s", msg.AuthorID, msg.Content)); err != nil {
		return fmt.Errorf("relay to modmail thread: %w", err)
	}
	if err := h.sender.React(ctx, msg.ChannelID, msg.ID, ReactRelayed); err != nil {
		return fmt.Errorf("react to direct message: %w", err)
	}
	return nil
}

// threadFor finds the user's thread or opens one. At most one thread is
// opened per user even when several DMs arrive at once.
func (h *ModmailHandler) threadFor(ctx context.Context, msg *domain.Message) (string, error) {
	unlock := h.users.Lock(msg.AuthorID)
	defer unlock()

	threadID, err := h.store.ModmailThreadForUser(ctx, msg.AuthorID)
	if errors.Is(err, store.ErrNotFound) {
		return h.openThread(ctx, msg)
	}
	return threadID, err
}

func (h *ModmailHandler) openThread(ctx context.Context, msg *domain.Message) (string, error) {
	name := msg.AuthorName
	if strings.TrimSpace(name) == "" {
		name = msg.AuthorID
	}
	threadID, err := h.sender.StartThread(ctx, h.channel, "modmail-"+name)
	if err != nil {
		return "", fmt.Errorf("start thread: %w", err)
	}
	if err := h.store.SaveModmailThread(ctx, msg.AuthorID, threadID); err != nil {
		return "", fmt.Errorf("save thread: %w", err)
	}
	h.logger.Info("modmail thread opened", "author_id", msg.AuthorID, "thread_id", threadID)
	return threadID, nil
}

// ModmailThreadHandler relays staff messages in a tracked modmail thread back
// to the user. Messages starting with the note prefix stay internal.
type ModmailThreadHandler struct {
	sender     domain.Sender
	store      Store
	notePrefix string
	logger     *slog.Logger
}

func (h *ModmailThreadHandler) Handle(ctx context.Context, msg *domain.Message) error {
	if msg.Content == "" || (h.notePrefix != "" && strings.HasPrefix(msg.Content, h.notePrefix)) {
		return nil
	}
	userID, err := h.store.ModmailUserForThread(ctx, msg.ChannelID)
	if errors.Is(err, store.ErrNotFound) {
		h.logger.Debug("untracked modmail thread", "thread_id", msg.ChannelID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup modmail user: %w", err)
	}

	dm, err := h.sender.OpenDM(ctx, userID)
	if err != nil {
		return fmt.Errorf("open dm with %s: %w", userID, err)
	}
	if _, err := h.sender.Send(ctx, dm, "**Staff:** "+msg.Content); err != nil {
		return fmt.Errorf("relay to user: %w", err)
	}
	if err := h.sender.React(ctx, msg.ChannelID, msg.ID, ReactRelayed); err != nil {
		return fmt.Errorf("react to thread message: %w", err)
	}
	return nil
}
