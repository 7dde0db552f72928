package domain

import "time"

// ChannelKind is the kind of channel a message was posted in.
type ChannelKind string

const (
	ChannelText   ChannelKind = "text"
	ChannelDM     ChannelKind = "dm"
	ChannelThread ChannelKind = "thread"
)

// MessageKind is the platform message type, collapsed to what routing needs.
type MessageKind string

const (
	MessageDefault MessageKind = "default"
	MessageReply   MessageKind = "reply"
	MessageSystem  MessageKind = "system" // pins, joins, boosts, thread starters...
)

// Message is a single inbound chat message as seen by the router and its handlers.
type Message struct {
	ID          string
	ChannelID   string
	GuildID     string
	ParentID    string // parent channel when ChannelKind is ChannelThread
	ChannelKind ChannelKind
	Kind        MessageKind
	AuthorID    string
	AuthorName  string
	WebhookID   string
	Content     string
	ReferenceID string // message this one replies to, if any
	Partial     bool   // channel or author attributes not yet resolved
	Timestamp   time.Time
}

// FromWebhook reports whether the message was posted by a webhook integration.
func (m *Message) FromWebhook() bool {
	return m.WebhookID != ""
}

// IsThread reports whether the message was posted inside a thread.
func (m *Message) IsThread() bool {
	return m.ChannelKind == ChannelThread
}

// IsDM reports whether the message was posted in a direct-message channel.
func (m *Message) IsDM() bool {
	return m.ChannelKind == ChannelDM
}
