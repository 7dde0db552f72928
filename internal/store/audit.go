package store

import (
	"context"
	"log/slog"
	"time"

	"triagebot/internal/bus"
)

const auditWriteTimeout = 5 * time.Second

// RouteRecorder persists routing decisions.
type RouteRecorder interface {
	RecordRoute(ctx context.Context, e RouteEntry) error
}

// AuditRoutes records every router event published on events into rec.
// Writes happen off the routing goroutine; a failed write is logged only.
func AuditRoutes(events *bus.EventBus, rec RouteRecorder, logger *slog.Logger) {
	outcomes := map[string]string{
		bus.EventMessageRouted:      "routed",
		bus.EventMessageSuppressed:  "suppressed",
		bus.EventMessageRouteFailed: "failed",
	}
	for eventType, outcome := range outcomes {
		outcome := outcome
		events.On(eventType, func(e bus.Event) {
			entry := routeEntryFromEvent(e, outcome)
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
				defer cancel()
				if err := rec.RecordRoute(ctx, entry); err != nil {
					logger.Warn("route audit write failed", "message_id", entry.MessageID, "err", err)
				}
			}()
		})
	}
}

func routeEntryFromEvent(e bus.Event, outcome string) RouteEntry {
	str := func(key string) string {
		s, _ := e.Payload[key].(string)
		return s
	}
	entry := RouteEntry{
		ID:        str("route_id"),
		MessageID: str("message_id"),
		ChannelID: str("channel_id"),
		AuthorID:  str("author_id"),
		Outcome:   outcome,
		Category:  str("category"),
		CreatedAt: e.Timestamp,
	}
	switch outcome {
	case "suppressed":
		entry.Detail = str("reason")
	case "failed":
		entry.Detail = str("error")
	}
	if d, ok := e.Payload["duration_ms"].(int64); ok {
		entry.DurationMS = d
	}
	return entry
}
