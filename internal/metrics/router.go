package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"triagebot/internal/bus"
)

var routeLatencyBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}

// RouterMetrics counts routing outcomes published on the event bus.
type RouterMetrics struct {
	c *MetricsCollector
}

// ObserveRouter subscribes to router events and records them in c.
func ObserveRouter(c *MetricsCollector, events *bus.EventBus) *RouterMetrics {
	m := &RouterMetrics{c: c}
	events.On(bus.EventMessageRouted, m.onRouted)
	events.On(bus.EventMessageSuppressed, m.onSuppressed)
	events.On(bus.EventMessageRouteFailed, m.onFailed)
	return m
}

func (m *RouterMetrics) onRouted(e bus.Event) {
	category, _ := e.Payload["category"].(string)
	m.c.Counter(m.c.namespace+"_messages_routed_total", "Messages dispatched to a handler", label("category", category)).Inc()
	if fallback, _ := e.Payload["fallback"].(bool); fallback {
		m.c.Counter(m.c.namespace+"_command_fallbacks_total", "Messages that also reached the command dispatcher", label("category", category)).Inc()
	}
	m.observeLatency(e, category)
	m.c.Gauge(m.c.namespace+"_last_routed_timestamp_seconds", "Unix time of the last routed message", "").Set(e.Timestamp.Unix())
}

func (m *RouterMetrics) onSuppressed(e bus.Event) {
	reason, _ := e.Payload["reason"].(string)
	m.c.Counter(m.c.namespace+"_messages_suppressed_total", "Messages dropped before classification", label("reason", reason)).Inc()
}

func (m *RouterMetrics) onFailed(e bus.Event) {
	category, _ := e.Payload["category"].(string)
	m.c.Counter(m.c.namespace+"_route_failures_total", "Messages whose hydration or handler failed", label("category", category)).Inc()
	m.observeLatency(e, category)
}

func (m *RouterMetrics) observeLatency(e bus.Event, category string) {
	ms, ok := e.Payload["duration_ms"].(int64)
	if !ok {
		return
	}
	m.c.Histogram(m.c.namespace+"_route_duration_seconds", "Time spent routing one message", label("category", category), routeLatencyBuckets).
		Observe(float64(ms) / 1000)
}

func label(name, value string) string {
	if value == "" {
		value = "none"
	}
	return fmt.Sprintf("%s=%q", name, value)
}

// Serve exposes c at /metrics on listen until ctx is cancelled.
func Serve(ctx context.Context, listen string, c *MetricsCollector, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listening", "addr", listen)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
