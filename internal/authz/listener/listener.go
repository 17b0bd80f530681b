// Package listener consumes authorization replies and resolves the waiting
// callers in the pending registry.
package listener

import (
	"context"
	"fmt"
	"log/slog"

	"userprofile/internal/authz/metrics"
	"userprofile/internal/authz/pending"
	"userprofile/internal/events"
	"userprofile/internal/platform/kafka/consumer"
)

// Subscription delivers reply messages to a handler until ctx ends.
type Subscription interface {
	Run(ctx context.Context, h consumer.Handler) error
}

// Listener resolves pending entries from reply messages.
type Listener struct {
	pending *pending.Registry
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Listener.
type Option func(*Listener)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Listener) {
		l.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Listener) {
		l.metrics = m
	}
}

// New constructs a Listener bound to registry.
func New(registry *pending.Registry, opts ...Option) *Listener {
	l := &Listener{
		pending: registry,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run consumes sub until ctx ends or the subscription fails. On every exit
// path the registry is closed so no caller is left waiting.
func (l *Listener) Run(ctx context.Context, sub Subscription) error {
	defer func() {
		if n := l.pending.Close(); n > 0 {
			l.logger.Info("cancelled pending authorization requests on shutdown", "count", n)
		}
		l.setPending()
	}()

	l.logger.Info("authorization response listener started")
	err := sub.Run(ctx, l)
	if ctx.Err() != nil || err == nil {
		l.logger.Info("authorization response listener stopped")
		return nil
	}
	return fmt.Errorf("authorization response listener: %w", err)
}

// Handle decodes one reply. Replies are never retried: a reply nobody is
// waiting for is discarded, and a malformed reply fails its waiter when the
// correlation id can still be read.
func (l *Listener) Handle(ctx context.Context, msg *consumer.Message) error {
	defer l.setPending()

	resp, err := events.DecodeAuthorizationResponse(msg.Value)
	if err != nil {
		if l.metrics != nil {
			l.metrics.IncMalformed()
		}
		id := events.PeekCorrelationID(msg.Value)
		if id != "" && l.pending.Fail(id, err) {
			l.logger.WarnContext(ctx, "malformed authorization reply failed its request",
				"correlation_id", id,
				"error", err,
			)
			return nil
		}
		l.logger.WarnContext(ctx, "discarding malformed authorization reply",
			"key", string(msg.Key),
			"offset", msg.Offset,
			"error", err,
		)
		return nil
	}

	if !l.pending.Resolve(resp) {
		if l.metrics != nil {
			l.metrics.IncUnmatched()
		}
		l.logger.DebugContext(ctx, "no pending request for authorization reply",
			"correlation_id", resp.CorrelationID,
		)
		return nil
	}

	l.logger.DebugContext(ctx, "authorization reply matched",
		"correlation_id", resp.CorrelationID,
		"is_authorized", resp.IsAuthorized,
	)
	return nil
}

func (l *Listener) setPending() {
	if l.metrics != nil {
		l.metrics.SetPending(l.pending.Len())
	}
}
