// Package replication materializes local user records from lifecycle events
// produced by other services.
//
// Delivery is at least once, so every change is applied idempotently keyed by
// the external identity id. An update for an unknown user is treated as a
// missed create and heals the projection.
package replication

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"userprofile/internal/events"
	"userprofile/internal/platform/kafka/consumer"
	"userprofile/internal/users/models"
	"userprofile/pkg/platform/sentinel"
)

// UserStore is the local user persistence the handler writes to.
type UserStore interface {
	FindByExternalID(ctx context.Context, externalID string) (*models.User, error)
	Insert(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
}

// ProcessedEvents remembers applied event ids.
type ProcessedEvents interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}

type result string

const (
	resultCreated   result = "created"
	resultUpdated   result = "updated"
	resultHealed    result = "healed"
	resultDuplicate result = "duplicate"
	resultUnchanged result = "unchanged"
	resultSkipped   result = "skipped"
	resultFailed    result = "failed"
)

// Handler applies lifecycle events to the user store.
type Handler struct {
	users     UserStore
	processed ProcessedEvents
	logger    *slog.Logger
	metrics   *Metrics
	tracer    trace.Tracer
	now       func() time.Time
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

// WithProcessedEvents enables the event-id fast path.
func WithProcessedEvents(p ProcessedEvents) Option {
	return func(h *Handler) {
		h.processed = p
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHandler constructs a Handler.
func NewHandler(users UserStore, opts ...Option) *Handler {
	h := &Handler{
		users:  users,
		logger: slog.Default(),
		tracer: otel.Tracer("userprofile/replication"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle applies one message. A nil return commits it; decode failures are
// returned as consumer skips; store failures are returned as-is so the
// message is redelivered.
func (h *Handler) Handle(ctx context.Context, msg *consumer.Message) error {
	env, err := events.PeekEnvelope(msg.Value)
	if err != nil {
		h.observe("unknown", resultSkipped)
		h.logger.WarnContext(ctx, "undecodable user event",
			"key", string(msg.Key),
			"offset", msg.Offset,
			"error", err,
		)
		return consumer.Skip(err)
	}

	switch env.EventType {
	case events.EventUserCreated, events.EventUserUpdated:
	default:
		h.observe(string(env.EventType), resultSkipped)
		h.logger.WarnContext(ctx, "ignoring unknown user event type",
			"event_type", env.EventType,
			"event_id", env.EventID,
		)
		return nil
	}

	if h.alreadyProcessed(ctx, env.EventID) {
		h.observe(string(env.EventType), resultDuplicate)
		h.logger.DebugContext(ctx, "user event already processed", "event_id", env.EventID)
		return nil
	}

	ctx, span := h.tracer.Start(ctx, "replication.apply",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("event.id", env.EventID),
			attribute.String("event.type", string(env.EventType)),
		),
	)
	defer span.End()

	var res result
	switch env.EventType {
	case events.EventUserCreated:
		res, err = h.handleCreated(ctx, msg.Value)
	case events.EventUserUpdated:
		res, err = h.handleUpdated(ctx, msg.Value)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "apply failed")
		if errors.Is(err, events.ErrMalformed) {
			h.observe(string(env.EventType), resultSkipped)
			h.logger.WarnContext(ctx, "malformed user event",
				"event_id", env.EventID,
				"event_type", env.EventType,
				"error", err,
			)
			return consumer.Skip(err)
		}
		h.observe(string(env.EventType), resultFailed)
		return fmt.Errorf("apply %s %s: %w", env.EventType, env.EventID, err)
	}

	span.SetAttributes(attribute.String("replication.result", string(res)))
	h.observe(string(env.EventType), res)
	h.markProcessed(ctx, env.EventID)
	return nil
}

func (h *Handler) handleCreated(ctx context.Context, payload []byte) (result, error) {
	evt, err := events.DecodeUserCreated(payload)
	if err != nil {
		return "", err
	}
	return h.applyCreated(ctx, evt)
}

func (h *Handler) handleUpdated(ctx context.Context, payload []byte) (result, error) {
	evt, err := events.DecodeUserUpdated(payload)
	if err != nil {
		return "", err
	}

	user, err := h.users.FindByExternalID(ctx, evt.ExternalID)
	if errors.Is(err, sentinel.ErrNotFound) {
		h.logger.WarnContext(ctx, "update for unknown user, creating it",
			"external_id", evt.ExternalID,
			"event_id", evt.EventID,
		)
		res, err := h.applyCreated(ctx, evt.AsCreated())
		if err != nil || res != resultCreated {
			return res, err
		}
		return resultHealed, nil
	}
	if err != nil {
		return "", fmt.Errorf("find user: %w", err)
	}

	changed := user.Apply(models.ProfileChanges{
		Email:       evt.Email,
		DisplayName: evt.DisplayName(),
		PictureURL:  evt.PictureURL(),
	})
	if !changed {
		return resultUnchanged, nil
	}
	user.UpdatedAt = h.now().UTC()
	if err := h.users.Update(ctx, user); err != nil {
		return "", fmt.Errorf("update user: %w", err)
	}

	h.logger.InfoContext(ctx, "updated user from event",
		"user_id", user.ID,
		"external_id", user.ExternalID,
		"event_id", evt.EventID,
	)
	return resultUpdated, nil
}

func (h *Handler) applyCreated(ctx context.Context, evt events.UserCreated) (result, error) {
	_, err := h.users.FindByExternalID(ctx, evt.ExternalID)
	if err == nil {
		h.logger.InfoContext(ctx, "user already exists", "external_id", evt.ExternalID)
		return resultDuplicate, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return "", fmt.Errorf("find user: %w", err)
	}

	user := h.userFromEvent(evt)
	if err := h.users.Insert(ctx, user); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return resultDuplicate, nil
		}
		return "", fmt.Errorf("insert user: %w", err)
	}

	h.logger.InfoContext(ctx, "created user from event",
		"user_id", user.ID,
		"external_id", user.ExternalID,
		"event_id", evt.EventID,
	)
	return resultCreated, nil
}

func (h *Handler) userFromEvent(evt events.UserCreated) *models.User {
	now := h.now().UTC()
	createdAt := evt.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	name := evt.DisplayName()
	first, last := models.SplitName(name)
	return &models.User{
		ID:          uuid.New(),
		ExternalID:  evt.ExternalID,
		Username:    models.DeriveUsername(name, evt.Email),
		Email:       evt.Email,
		FirstName:   first,
		LastName:    last,
		Role:        models.DefaultRole,
		DisplayName: name,
		PictureURL:  evt.PictureURL(),
		CreatedAt:   createdAt,
		UpdatedAt:   now,
	}
}

func (h *Handler) alreadyProcessed(ctx context.Context, eventID string) bool {
	if h.processed == nil || eventID == "" {
		return false
	}
	seen, err := h.processed.Seen(ctx, eventID)
	if err != nil {
		h.logger.WarnContext(ctx, "processed-event lookup failed", "event_id", eventID, "error", err)
		return false
	}
	return seen
}

func (h *Handler) markProcessed(ctx context.Context, eventID string) {
	if h.processed == nil || eventID == "" {
		return
	}
	if err := h.processed.Mark(ctx, eventID); err != nil {
		h.logger.WarnContext(ctx, "failed to mark event processed", "event_id", eventID, "error", err)
	}
}

func (h *Handler) observe(eventType string, r result) {
	if h.metrics != nil {
		h.metrics.observe(eventType, r)
	}
}
