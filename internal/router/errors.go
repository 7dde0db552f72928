package router

import "fmt"

// HydrateError is returned when a partial message could not be fetched.
type HydrateError struct {
	MessageID string
	ChannelID string
	Err       error
}

func (e *HydrateError) Error() string {
	return fmt.Sprintf("hydrate message %s in channel %s: %v", e.MessageID, e.ChannelID, e.Err)
}

func (e *HydrateError) Unwrap() error { return e.Err }

// HandlerError is returned when the handler for a category fails.
type HandlerError struct {
	Category  Category
	MessageID string
	Err       error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("%s handler failed for message %s: %v", e.Category, e.MessageID, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }
