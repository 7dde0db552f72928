package domain

import "context"

// Handler processes one fully hydrated message.
type Handler interface {
	Handle(ctx context.Context, msg *Message) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, msg *Message) error

func (f HandlerFunc) Handle(ctx context.Context, msg *Message) error {
	return f(ctx, msg)
}

// Fetcher resolves a partial message into a complete one.
type Fetcher interface {
	Fetch(ctx context.Context, msg *Message) (*Message, error)
}

// Sender is the outbound side of the chat platform used by handlers.
type Sender interface {
	Send(ctx context.Context, channelID, content string) (messageID string, err error)
	Reply(ctx context.Context, channelID, messageID, content string) (replyID string, err error)
	React(ctx context.Context, channelID, messageID, emoji string) error
	StartThread(ctx context.Context, channelID, name string) (threadID string, err error)
	OpenDM(ctx context.Context, userID string) (channelID string, err error)
}
