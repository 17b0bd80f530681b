// Package publisher serializes domain events and hands them to the bus.
//
// Lifecycle events are best effort: the user change they describe is already
// committed, so a bus failure is logged and never reaches the caller.
// Authorization requests are different; without a delivered request there is
// nothing to wait for, so their errors are returned.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"userprofile/internal/events"
	"userprofile/internal/platform/kafka/producer"
	"userprofile/internal/users/models"
)

// Producer is the bus transport.
type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) (producer.Delivery, error)
	PublishAsync(ctx context.Context, topic string, key, value []byte, done func(producer.Delivery, error))
}

// Topics names the destinations.
type Topics struct {
	UserEvents   string
	AuthRequests string
}

// Publisher emits user lifecycle events and authorization requests.
type Publisher struct {
	producer Producer
	topics   Topics
	logger   *slog.Logger
	metrics  *Metrics
	now      func() time.Time
	newID    func() string
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// New constructs a Publisher.
func New(prod Producer, topics Topics, opts ...Option) *Publisher {
	p := &Publisher{
		producer: prod,
		topics:   topics,
		logger:   slog.Default(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PublishUserCreated announces a committed user. It never blocks on the
// broker and never fails.
func (p *Publisher) PublishUserCreated(ctx context.Context, user *models.User) {
	evt := events.UserCreated{
		Envelope:    p.envelope(events.EventUserCreated),
		UserProfile: profileOf(user),
		CreatedAt:   user.CreatedAt.UTC(),
	}
	p.publishLifecycle(ctx, user, evt.EventType, evt)
}

// PublishUserUpdated announces a committed user change. It never blocks on
// the broker and never fails.
func (p *Publisher) PublishUserUpdated(ctx context.Context, user *models.User) {
	evt := events.UserUpdated{
		Envelope:    p.envelope(events.EventUserUpdated),
		UserProfile: profileOf(user),
		UpdatedAt:   user.UpdatedAt.UTC(),
	}
	p.publishLifecycle(ctx, user, evt.EventType, evt)
}

// PublishAuthorizationRequest sends req keyed by its correlation id and
// waits for the broker to acknowledge it.
func (p *Publisher) PublishAuthorizationRequest(ctx context.Context, req events.AuthorizationRequest) error {
	payload, err := json.Marshal(req.Message())
	if err != nil {
		return fmt.Errorf("marshal authorization request: %w", err)
	}
	delivery, err := p.producer.Publish(ctx, p.topics.AuthRequests, []byte(req.CorrelationID), payload)
	if err != nil {
		p.recordFailure(p.topics.AuthRequests)
		return fmt.Errorf("publish authorization request: %w", err)
	}
	p.logger.DebugContext(ctx, "authorization request published",
		"correlation_id", req.CorrelationID,
		"topic", delivery.Topic,
		"partition", delivery.Partition,
		"offset", delivery.Offset,
	)
	return nil
}

func (p *Publisher) publishLifecycle(ctx context.Context, user *models.User, eventType events.EventType, evt any) {
	payload, err := json.Marshal(evt)
	if err != nil {
		p.recordFailure(p.topics.UserEvents)
		p.logger.ErrorContext(ctx, "failed to marshal user event",
			"event_type", eventType,
			"user_id", user.ID,
			"error", err,
		)
		return
	}

	// The request that triggered the change may finish before the broker
	// acknowledges; delivery must not be cancelled with it.
	sendCtx := context.WithoutCancel(ctx)
	p.producer.PublishAsync(sendCtx, p.topics.UserEvents, []byte(user.ExternalID), payload, func(d producer.Delivery, err error) {
		if err != nil {
			p.recordFailure(p.topics.UserEvents)
			p.logger.ErrorContext(sendCtx, "failed to publish user event",
				"event_type", eventType,
				"user_id", user.ID,
				"external_id", user.ExternalID,
				"error", err,
			)
			return
		}
		p.logger.InfoContext(sendCtx, "user event published",
			"event_type", eventType,
			"user_id", user.ID,
			"external_id", user.ExternalID,
			"topic", d.Topic,
			"partition", d.Partition,
			"offset", d.Offset,
		)
	})
}

func (p *Publisher) envelope(t events.EventType) events.Envelope {
	return events.Envelope{
		EventID:   p.newID(),
		EventType: t,
		Timestamp: p.now().UTC(),
		Version:   events.SchemaVersion,
	}
}

func (p *Publisher) recordFailure(topic string) {
	if p.metrics != nil {
		p.metrics.IncPublishFailures(topic)
	}
}

func profileOf(user *models.User) events.UserProfile {
	profile := events.UserProfile{
		UserID:     user.ID.String(),
		ExternalID: user.ExternalID,
		Email:      user.Email,
	}
	if name := user.FullName(); name != "" {
		profile.Name = &name
	}
	if user.PictureURL != "" {
		picture := user.PictureURL
		profile.Picture = &picture
	}
	return profile
}
