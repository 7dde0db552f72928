package handler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"triagebot/internal/domain"
)

// maxLinks caps the ticket links in one reply.
const maxLinks = 5

// ChatCommand is a parsed prefix command.
type ChatCommand struct {
	Name string   // first word after the prefix, lowercased
	Args []string // remaining words
	Raw  string   // original full text
}

// ParseCommand parses text as a command for prefix. Returns nil if text is
// not a command.
func ParseCommand(prefix, text string) *ChatCommand {
	text = strings.TrimSpace(text)
	if prefix == "" || !strings.HasPrefix(strings.ToLower(text), strings.ToLower(prefix)) {
		return nil
	}
	rest := text[len(prefix):]
	// "!jiraX" is not "!jira X".
	if rest != "" && rest[0] != ' ' && rest[0] != '\t' && rest[0] != '\n' {
		return nil
	}

	parts := strings.Fields(rest)
	cmd := &ChatCommand{Raw: text}
	if len(parts) > 0 {
		cmd.Name = strings.ToLower(parts[0])
		cmd.Args = parts[1:]
	}
	return cmd
}

// CommandDispatcher handles every message no other pipeline claimed:
// prefix commands and bare ticket keys.
type CommandDispatcher struct {
	sender   domain.Sender
	settings CommandSettings
	links    *KeyedLimiter
	logger   *slog.Logger
}

func NewCommandDispatcher(sender domain.Sender, settings CommandSettings, logger *slog.Logger) *CommandDispatcher {
	return &CommandDispatcher{
		sender:   sender,
		settings: settings,
		links:    NewKeyedLimiter(settings.LinkBurst, settings.LinksPerMinute),
		logger:   logger,
	}
}

func (d *CommandDispatcher) Handle(ctx context.Context, msg *domain.Message) error {
	if cmd := ParseCommand(d.settings.Prefix, msg.Content); cmd != nil {
		return d.reply(ctx, msg, d.runCommand(cmd))
	}

	tickets := FindTickets(msg.Content)
	if len(tickets) == 0 {
		return nil
	}
	if !d.links.Allow(msg.ChannelID) {
		d.logger.Debug("ticket links throttled", "channel_id", msg.ChannelID)
		return nil
	}
	return d.reply(ctx, msg, d.ticketLinks(tickets))
}

func (d *CommandDispatcher) runCommand(cmd *ChatCommand) string {
	switch cmd.Name {
	case "", "help":
		return d.helpText()
	case "ping":
		return "Pong!"
	case "tickets":
		tickets := FindTickets(strings.Join(cmd.Args, " "))
		if len(tickets) == 0 {
			return fmt.Sprintf("Usage: `%s tickets <KEY-123> [...]`", d.settings.Prefix)
		}
		return d.ticketLinks(tickets)
	default:
		words := strings.ToUpper(cmd.Name + " " + strings.Join(cmd.Args, " "))
		if len(FindTickets(strings.ToUpper(cmd.Name))) > 0 {
			return d.ticketLinks(FindTickets(words))
		}
		return fmt.Sprintf("Unknown command `%s`. Try `%s help`.", cmd.Name, d.settings.Prefix)
	}
}

func (d *CommandDispatcher) ticketLinks(tickets []string) string {
	if len(tickets) > maxLinks {
		tickets = tickets[:maxLinks]
	}
	lines := make([]string, len(tickets))
	for i, key := range tickets {
		lines[i] = fmt.Sprintf(d.settings.TicketURL, key)
	}
	return strings.Join(lines, "\n")
}

func (d *CommandDispatcher) helpText() string {
	p := d.settings.Prefix
	return fmt.Sprintf(`**Commands**

%[1]s help: show this message
%[1]s ping: check the bot is alive
%[1]s tickets <KEY-123> [...]: link tickets
%[1]s <KEY-123>: same as tickets

Ticket keys mentioned anywhere are linked automatically.`, p)
}

func (d *CommandDispatcher) reply(ctx context.Context, msg *domain.Message, content string) error {
	if _, err := d.sender.Reply(ctx, msg.ChannelID, msg.ID, content); err != nil {
		return fmt.Errorf("reply: %w", err)
	}
	return nil
}
