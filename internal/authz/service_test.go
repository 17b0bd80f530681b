package authz_test

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks RequestPublisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"userprofile/internal/authz"
	"userprofile/internal/authz/listener"
	"userprofile/internal/authz/metrics"
	"userprofile/internal/authz/mocks"
	"userprofile/internal/authz/pending"
	"userprofile/internal/events"
	"userprofile/internal/platform/kafka/consumer"
)

// loopbackBus plays the remote authorization service: every published
// request is answered through the response listener by decide.
type loopbackBus struct {
	listener *listener.Listener
	decide   func(req events.AuthorizationRequest) []byte
	mu       sync.Mutex
	requests []events.AuthorizationRequest
}

func (b *loopbackBus) PublishAuthorizationRequest(_ context.Context, req events.AuthorizationRequest) error {
	b.mu.Lock()
	b.requests = append(b.requests, req)
	b.mu.Unlock()
	if b.decide == nil {
		return nil
	}
	payload := b.decide(req)
	if payload == nil {
		return nil
	}
	go func() {
		_ = b.listener.Handle(context.Background(), &consumer.Message{
			Topic: "auth-responses",
			Key:   []byte(req.CorrelationID),
			Value: payload,
		})
	}()
	return nil
}

func reply(id string, allowed bool) []byte {
	raw, _ := json.Marshal(events.AuthMessage{CorrelationID: id, IsAuthorized: allowed, Timestamp: time.Now()})
	return raw
}

type ServiceSuite struct {
	suite.Suite
	registry *pending.Registry
	metrics  *metrics.Metrics
	listener *listener.Listener
	bus      *loopbackBus
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.registry = pending.New()
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.listener = listener.New(s.registry, listener.WithMetrics(s.metrics))
	s.bus = &loopbackBus{listener: s.listener}
}

func (s *ServiceSuite) newService(timeout time.Duration, opts ...authz.Option) *authz.Service {
	opts = append([]authz.Option{authz.WithTimeout(timeout), authz.WithMetrics(s.metrics)}, opts...)
	return authz.New(s.bus, s.registry, opts...)
}

func (s *ServiceSuite) TestMatchingReplyGrants() {
	s.bus.decide = func(req events.AuthorizationRequest) []byte { return reply(req.CorrelationID, true) }
	svc := s.newService(time.Second, authz.WithIDGenerator(func() string { return "C1" }))

	allowed, outcome := svc.Decide(context.Background(), "auth0|1", []string{"user", " user "}, "/api/users/1", events.OperationRead)

	s.True(allowed)
	s.Equal(authz.OutcomeGranted, outcome)
	s.Require().Len(s.bus.requests, 1)
	s.Equal("C1", s.bus.requests[0].CorrelationID)
	s.Equal([]string{"user"}, s.bus.requests[0].Roles)
	s.Zero(s.registry.Len())
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Decisions.WithLabelValues("granted")))
}

func (s *ServiceSuite) TestNegativeReplyDenies() {
	s.bus.decide = func(req events.AuthorizationRequest) []byte { return reply(req.CorrelationID, false) }
	svc := s.newService(time.Second)

	allowed, outcome := svc.Decide(context.Background(), "auth0|1", nil, "/api/users/2", events.OperationDelete)

	s.False(allowed)
	s.Equal(authz.OutcomeDenied, outcome)
}

func (s *ServiceSuite) TestNoReplyTimesOut() {
	svc := s.newService(50*time.Millisecond, authz.WithIDGenerator(func() string { return "C2" }))

	start := time.Now()
	allowed := svc.IsAuthorized(context.Background(), "auth0|1", []string{"user"}, "/api/users/1", events.OperationWrite)

	s.False(allowed)
	s.GreaterOrEqual(time.Since(start), 50*time.Millisecond)
	s.Zero(s.registry.Len())

	// A reply that shows up afterwards is discarded.
	s.NoError(s.listener.Handle(context.Background(), &consumer.Message{Value: reply("C2", true)}))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.LateResponses))
}

func (s *ServiceSuite) TestMalformedReplyDeniesImmediately() {
	s.bus.decide = func(req events.AuthorizationRequest) []byte {
		return []byte(fmt.Sprintf(`{"correlation_id":%q,"is_authorized":"definitely"}`, req.CorrelationID))
	}
	svc := s.newService(5 * time.Second)

	start := time.Now()
	allowed, outcome := svc.Decide(context.Background(), "auth0|1", nil, "/api/users/1", events.OperationRead)

	s.False(allowed)
	s.Equal(authz.OutcomeMalformed, outcome)
	s.Less(time.Since(start), time.Second)
}

func (s *ServiceSuite) TestPublishFailureDenies() {
	ctrl := gomock.NewController(s.T())
	pub := mocks.NewMockRequestPublisher(ctrl)
	pub.EXPECT().PublishAuthorizationRequest(gomock.Any(), gomock.Any()).Return(errors.New("broker down"))
	svc := authz.New(pub, s.registry, authz.WithTimeout(time.Second))

	allowed, outcome := svc.Decide(context.Background(), "auth0|1", nil, "/api/users/1", events.OperationRead)

	s.False(allowed)
	s.Equal(authz.OutcomePublishFailed, outcome)
	s.Zero(s.registry.Len(), "failed publish must withdraw its pending entry")
}

func (s *ServiceSuite) TestStalledPublishIsBoundedByTimeout() {
	ctrl := gomock.NewController(s.T())
	pub := mocks.NewMockRequestPublisher(ctrl)
	pub.EXPECT().PublishAuthorizationRequest(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ events.AuthorizationRequest) error {
			<-ctx.Done()
			return ctx.Err()
		})
	svc := authz.New(pub, s.registry, authz.WithTimeout(100*time.Millisecond))

	start := time.Now()
	allowed, outcome := svc.Decide(context.Background(), "auth0|1", nil, "/api/users/1", events.OperationRead)

	s.False(allowed)
	s.Equal(authz.OutcomeTimeout, outcome)
	s.Less(time.Since(start), 2*time.Second, "a stalled broker must not outlive the timeout")
	s.Zero(s.registry.Len())
}

func (s *ServiceSuite) TestCallerCancellationDenies() {
	svc := s.newService(time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	allowed, outcome := svc.Decide(ctx, "auth0|1", nil, "/api/users/1", events.OperationRead)

	s.False(allowed)
	s.Equal(authz.OutcomeCancelled, outcome)
	s.Zero(s.registry.Len())
}

func (s *ServiceSuite) TestListenerShutdownCancelsWaiters() {
	svc := s.newService(time.Minute)
	ctx, stop := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- s.listener.Run(ctx, subscriptionFunc(func(ctx context.Context, _ consumer.Handler) error {
			<-ctx.Done()
			return ctx.Err()
		}))
	}()

	result := make(chan authz.Outcome, 1)
	go func() {
		_, outcome := svc.Decide(context.Background(), "auth0|1", nil, "/api/users/1", events.OperationRead)
		result <- outcome
	}()

	s.Eventually(func() bool { return s.registry.Len() == 1 }, time.Second, 5*time.Millisecond)
	stop()

	s.Require().NoError(<-done)
	s.Equal(authz.OutcomeCancelled, <-result)

	// Once shut down, new checks fail closed without waiting.
	s.False(svc.IsAuthorized(context.Background(), "auth0|1", nil, "/api/users/1", events.OperationRead))
}

func (s *ServiceSuite) TestConcurrentChecksResolveIndependently() {
	var counter atomic.Int64
	s.bus.decide = func(req events.AuthorizationRequest) []byte {
		// Deny odd requesters, grant even ones; drop every fifth reply.
		n := counter.Add(1)
		if n%5 == 0 {
			return nil
		}
		return reply(req.CorrelationID, req.RequesterID[len(req.RequesterID)-1]%2 == 0)
	}
	svc := s.newService(200 * time.Millisecond)

	const calls = 50
	var wg sync.WaitGroup
	var granted, denied atomic.Int32
	for i := range calls {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if svc.IsAuthorized(context.Background(), fmt.Sprintf("auth0|%d", i%10), nil, "/r", events.OperationRead) {
				granted.Add(1)
			} else {
				denied.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(calls), granted.Load()+denied.Load())
	s.Greater(granted.Load(), int32(0))
	s.Zero(s.registry.Len())
}

func (s *ServiceSuite) TestDefaultTimeout() {
	s.Equal(10*time.Second, authz.DefaultTimeout)
}

type subscriptionFunc func(ctx context.Context, h consumer.Handler) error

func (f subscriptionFunc) Run(ctx context.Context, h consumer.Handler) error { return f(ctx, h) }
