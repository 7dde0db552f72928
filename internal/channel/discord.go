// Package channel connects the router to Discord.
package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"triagebot/internal/domain"

	"github.com/bwmarrin/discordgo"
)

const (
	discordMaxMsgLen = 2000

	// modmail threads auto-archive after a week of silence
	threadArchiveMinutes = 10080
)

// MessageRouter receives every inbound message.
type MessageRouter interface {
	Route(ctx context.Context, msg *domain.Message) error
}

// Discord is the Discord transport. It converts gateway events into
// domain.Message values, hydrates partial messages over REST and implements
// domain.Sender for the handlers.
type Discord struct {
	guildID string
	session *discordgo.Session
	logger  *slog.Logger
}

// DiscordConfig configures the Discord transport.
type DiscordConfig struct {
	Token   string
	GuildID string // when set, guild messages from other guilds are ignored
	Logger  *slog.Logger
}

// NewDiscord creates the session without connecting it.
func NewDiscord(cfg DiscordConfig) (*Discord, error) {
	if cfg.Token == "" {
		return nil, errors.New("discord: token is required")
	}
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	// Guilds delivers GUILD_CREATE, which fills the channel cache used to
	// classify messages without a REST round trip.
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Discord{guildID: cfg.GuildID, session: session, logger: logger}, nil
}

// BotUser resolves the bot's own account over REST, so it is available
// before the gateway connection is opened.
func (d *Discord) BotUser(ctx context.Context) (*discordgo.User, error) {
	u, err := d.session.User("@me", discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("discord: resolve bot user: %w", err)
	}
	return u, nil
}

// Start connects to the gateway and routes every MESSAGE_CREATE until ctx
// is cancelled. A failed Route is logged and does not affect other messages.
func (d *Discord) Start(ctx context.Context, r MessageRouter) error {
	remove := d.session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Message == nil {
			return
		}
		if d.guildID != "" && m.GuildID != "" && m.GuildID != d.guildID {
			return
		}
		msg := convertMessage(s.State, m.Message)
		if err := r.Route(ctx, msg); err != nil {
			d.logger.Error("route failed", "message_id", msg.ID, "channel_id", msg.ChannelID, "err", err)
		}
	})
	defer remove()

	if err := d.session.Open(); err != nil {
		return fmt.Errorf("discord connect: %w", err)
	}
	if u := d.session.State.User; u != nil {
		d.logger.Info("discord bot connected", "user", u.Username)
	}

	<-ctx.Done()
	d.logger.Info("discord bot disconnecting")
	return d.session.Close()
}

// Fetch re-reads the channel and message over REST and caches the channel.
func (d *Discord) Fetch(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	ch, err := d.session.Channel(msg.ChannelID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("fetch channel %s: %w", msg.ChannelID, err)
	}
	m, err := d.session.ChannelMessage(msg.ChannelID, msg.ID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("fetch message %s: %w", msg.ID, err)
	}
	d.cacheChannel(ch)
	if m.GuildID == "" {
		m.GuildID = ch.GuildID
	}
	return toDomain(m, ch), nil
}

// Send posts content, split to the message size limit. It returns the ID of
// the first posted message.
func (d *Discord) Send(ctx context.Context, channelID, content string) (string, error) {
	var firstID string
	for _, chunk := range splitMessage(content, discordMaxMsgLen) {
		m, err := d.session.ChannelMessageSend(channelID, chunk, discordgo.WithContext(ctx))
		if err != nil {
			return firstID, fmt.Errorf("discord send to %s: %w", channelID, err)
		}
		if firstID == "" {
			firstID = m.ID
		}
	}
	return firstID, nil
}

func (d *Discord) Reply(ctx context.Context, channelID, messageID, content string) (string, error) {
	chunks := splitMessage(content, discordMaxMsgLen)
	ref := &discordgo.MessageReference{MessageID: messageID, ChannelID: channelID}
	m, err := d.session.ChannelMessageSendReply(channelID, chunks[0], ref, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("discord reply in %s: %w", channelID, err)
	}
	for _, chunk := range chunks[1:] {
		if _, err := d.session.ChannelMessageSend(channelID, chunk, discordgo.WithContext(ctx)); err != nil {
			return m.ID, fmt.Errorf("discord send to %s: %w", channelID, err)
		}
	}
	return m.ID, nil
}

func (d *Discord) React(ctx context.Context, channelID, messageID, emoji string) error {
	if err := d.session.MessageReactionAdd(channelID, messageID, emoji, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord react in %s: %w", channelID, err)
	}
	return nil
}

func (d *Discord) StartThread(ctx context.Context, channelID, name string) (string, error) {
	ch, err := d.session.ThreadStart(channelID, name, discordgo.ChannelTypeGuildPrivateThread, threadArchiveMinutes, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("discord start thread in %s: %w", channelID, err)
	}
	d.cacheChannel(ch)
	return ch.ID, nil
}

func (d *Discord) OpenDM(ctx context.Context, userID string) (string, error) {
	ch, err := d.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("discord open dm with %s: %w", userID, err)
	}
	return ch.ID, nil
}

// cacheChannel stores ch in the state cache. A guild channel whose guild has
// not been seen yet gets a placeholder guild, which GUILD_CREATE later fills.
func (d *Discord) cacheChannel(ch *discordgo.Channel) {
	state := d.session.State
	err := state.ChannelAdd(ch)
	if errors.Is(err, discordgo.ErrStateNotFound) && ch.GuildID != "" {
		if err = state.GuildAdd(&discordgo.Guild{ID: ch.GuildID}); err == nil {
			err = state.ChannelAdd(ch)
		}
	}
	if err != nil {
		d.logger.Warn("channel not cached", "channel_id", ch.ID, "err", err)
	}
}

// convertMessage builds a domain message from a gateway event. When the
// channel is not in the state cache (typical for the first DM from a user)
// the result is marked partial so the router hydrates it.
func convertMessage(state *discordgo.State, m *discordgo.Message) *domain.Message {
	var ch *discordgo.Channel
	if state != nil {
		ch, _ = state.Channel(m.ChannelID)
	}
	return toDomain(m, ch)
}

func toDomain(m *discordgo.Message, ch *discordgo.Channel) *domain.Message {
	msg := &domain.Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		GuildID:   m.GuildID,
		Kind:      messageKind(m.Type),
		WebhookID: m.WebhookID,
		Content:   m.Content,
		Timestamp: m.Timestamp,
	}
	if m.Author != nil {
		msg.AuthorID = m.Author.ID
		msg.AuthorName = m.Author.Username
	} else {
		msg.Partial = true
	}
	if m.MessageReference != nil {
		msg.ReferenceID = m.MessageReference.MessageID
	}

	switch {
	case ch == nil:
		msg.Partial = true
		if m.GuildID == "" {
			msg.ChannelKind = domain.ChannelDM
		} else {
			msg.ChannelKind = domain.ChannelText
		}
	case ch.IsThread():
		msg.ChannelKind = domain.ChannelThread
		msg.ParentID = ch.ParentID
	case ch.Type == discordgo.ChannelTypeDM || ch.Type == discordgo.ChannelTypeGroupDM:
		msg.ChannelKind = domain.ChannelDM
	default:
		msg.ChannelKind = domain.ChannelText
	}
	return msg
}

func messageKind(t discordgo.MessageType) domain.MessageKind {
	switch t {
	case discordgo.MessageTypeDefault:
		return domain.MessageDefault
	case discordgo.MessageTypeReply:
		return domain.MessageReply
	default:
		return domain.MessageSystem
	}
}

// splitMessage splits a message into chunks of at most maxLen characters,
// trying to split on newlines when possible. Cuts never fall inside a
// multi-byte character.
func splitMessage(msg string, maxLen int) []string {
	if utf8.RuneCountInString(msg) <= maxLen {
		return []string{msg}
	}

	var chunks []string
	for len(msg) > 0 {
		if utf8.RuneCountInString(msg) <= maxLen {
			chunks = append(chunks, msg)
			break
		}

		limit := runeOffset(msg, maxLen)

		// Try to split on a newline.
		cut := limit
		if idx := strings.LastIndex(msg[:limit], "\n"); idx > limit/2 {
			cut = idx + 1
		}

		chunks = append(chunks, msg[:cut])
		msg = msg[cut:]
	}
	return chunks
}

// runeOffset returns the byte offset of the n-th character of s.
func runeOffset(s string, n int) int {
	i := 0
	for pos := range s {
		if i == n {
			return pos
		}
		i++
	}
	return len(s)
}
