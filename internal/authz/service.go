// Package authz asks the remote authorization service for decisions over
// the bus and turns its asynchronous replies into a blocking call.
//
// Every failure is a denial: callers only ever see true or false.
package authz

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

	"userprofile/internal/authz/metrics"
	"userprofile/internal/authz/pending"
	"userprofile/internal/events"
	pstrings "userprofile/pkg/platform/strings"
)

// DefaultTimeout bounds how long a caller waits for a reply.
const DefaultTimeout = 10 * time.Second

// Outcome explains a decision.
type Outcome string

const (
	OutcomeGranted       Outcome = "granted"
	OutcomeDenied        Outcome = "denied"
	OutcomeTimeout       Outcome = "timeout"
	OutcomePublishFailed Outcome = "publish_failed"
	OutcomeCancelled     Outcome = "cancelled"
	OutcomeMalformed     Outcome = "malformed"
	OutcomeError         Outcome = "error"
)

// RequestPublisher sends authorization requests to the bus.
type RequestPublisher interface {
	PublishAuthorizationRequest(ctx context.Context, req events.AuthorizationRequest) error
}

// Service is the authorization orchestrator.
type Service struct {
	publisher RequestPublisher
	pending   *pending.Registry
	timeout   time.Duration
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	now       func() time.Time
	newID     func() string
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTimeout overrides DefaultTimeout. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithIDGenerator overrides correlation id generation.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// New constructs a Service. The registry must be the one the response
// listener resolves.
func New(publisher RequestPublisher, registry *pending.Registry, opts ...Option) *Service {
	s := &Service{
		publisher: publisher,
		pending:   registry,
		timeout:   DefaultTimeout,
		logger:    slog.Default(),
		tracer:    otel.Tracer("userprofile/authz"),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IsAuthorized reports whether requesterID may perform operation on
// resourcePath. It never returns an error; anything other than a positive
// reply within the timeout is a denial.
func (s *Service) IsAuthorized(ctx context.Context, requesterID string, roles []string, resourcePath, operation string) bool {
	allowed, _ := s.Decide(ctx, requesterID, roles, resourcePath, operation)
	return allowed
}

// Decide is IsAuthorized with the reason for the decision.
func (s *Service) Decide(ctx context.Context, requesterID string, roles []string, resourcePath, operation string) (bool, Outcome) {
	start := s.now()
	req := events.AuthorizationRequest{
		RequesterID:   requesterID,
		Roles:         pstrings.DedupeAndTrim(roles),
		ResourcePath:  resourcePath,
		Operation:     operation,
		CorrelationID: s.newID(),
		Timestamp:     start.UTC(),
	}

	ctx, span := s.tracer.Start(ctx, "authz.IsAuthorized",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("authz.correlation_id", req.CorrelationID),
			attribute.String("authz.resource_path", resourcePath),
			attribute.String("authz.operation", operation),
		),
	)
	defer span.End()

	allowed, outcome, err := s.exchange(ctx, req)

	span.SetAttributes(attribute.String("authz.outcome", string(outcome)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(outcome))
		s.logger.WarnContext(ctx, "authorization denied",
			"correlation_id", req.CorrelationID,
			"requester_id", requesterID,
			"resource_path", resourcePath,
			"operation", operation,
			"outcome", outcome,
			"error", err,
		)
	} else {
		s.logger.DebugContext(ctx, "authorization decided",
			"correlation_id", req.CorrelationID,
			"requester_id", requesterID,
			"resource_path", resourcePath,
			"operation", operation,
			"outcome", outcome,
		)
	}
	if s.metrics != nil {
		s.metrics.ObserveDecision(string(outcome), s.now().Sub(start))
		s.metrics.SetPending(s.pending.Len())
	}
	return allowed, outcome
}

// exchange registers before publishing so a fast reply always finds its
// entry; a failed publish withdraws the entry. Publish and wait share one
// deadline, so a stalled broker cannot hold the caller past the timeout.
func (s *Service) exchange(parent context.Context, req events.AuthorizationRequest) (bool, Outcome, error) {
	if err := parent.Err(); err != nil {
		return false, OutcomeCancelled, err
	}
	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	waiter, err := s.pending.Register(req.CorrelationID, s.timeout)
	if err != nil {
		if errors.Is(err, pending.ErrClosed) {
			return false, OutcomeCancelled, err
		}
		return false, OutcomeError, err
	}
	if s.metrics != nil {
		s.metrics.SetPending(s.pending.Len())
	}

	if err := s.publisher.PublishAuthorizationRequest(ctx, req); err != nil {
		waiter.Cancel()
		if parent.Err() == nil && ctx.Err() != nil {
			return false, OutcomeTimeout, fmt.Errorf("publish: %w", pending.ErrTimeout)
		}
		return false, OutcomePublishFailed, err
	}

	resp, err := waiter.Wait(ctx)
	switch {
	case err == nil:
		if resp.IsAuthorized {
			return true, OutcomeGranted, nil
		}
		return false, OutcomeDenied, nil
	case errors.Is(err, pending.ErrTimeout):
		return false, OutcomeTimeout, err
	case parent.Err() == nil && errors.Is(err, context.DeadlineExceeded):
		return false, OutcomeTimeout, pending.ErrTimeout
	case errors.Is(err, events.ErrMalformed):
		return false, OutcomeMalformed, err
	case errors.Is(err, pending.ErrCancelled), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false, OutcomeCancelled, err
	default:
		return false, OutcomeError, err
	}
}
