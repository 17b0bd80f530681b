package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"userprofile/internal/authz"
	"userprofile/internal/authz/listener"
	authzmetrics "userprofile/internal/authz/metrics"
	"userprofile/internal/authz/pending"
	"userprofile/internal/events/publisher"
	"userprofile/internal/platform/config"
	"userprofile/internal/platform/httpserver"
	"userprofile/internal/platform/kafka/admin"
	"userprofile/internal/platform/kafka/consumer"
	"userprofile/internal/platform/kafka/producer"
	"userprofile/internal/platform/logger"
	"userprofile/internal/platform/metrics"
	"userprofile/internal/platform/postgres"
	"userprofile/internal/platform/redis"
	"userprofile/internal/replication"
	"userprofile/internal/replication/dedupe"
	httptransport "userprofile/internal/transport/http"
	"userprofile/internal/users/service"
	"userprofile/internal/users/store"
)

// main wires high-level dependencies and keeps the process lifecycle small.
// Business logic lives in the internal packages.
func main() {
	if err := run(); err != nil {
		slog.Error("user-service stopped", "error", err)
		os.Exit(1)
	}
}

// userStore is what both the replication handler and the user service need.
type userStore interface {
	replication.UserStore
	service.Store
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := metrics.NewRegistry()
	checks := map[string]httptransport.HealthCheck{}

	users, closeUsers, err := openUserStore(ctx, cfg, log, checks)
	if err != nil {
		return err
	}
	defer closeUsers()

	processed, closeProcessed, err := openProcessedEvents(ctx, cfg, log, checks)
	if err != nil {
		return err
	}
	defer closeProcessed()

	prod, err := producer.New(producer.Config{Brokers: cfg.Kafka.Brokers, ClientID: cfg.Kafka.ClientID})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := prod.Close(flushCtx); err != nil {
			log.Warn("producer flush incomplete", "error", err)
		}
	}()
	if err := prod.Ping(ctx); err != nil {
		return fmt.Errorf("connect to kafka %v: %w", cfg.Kafka.Brokers, err)
	}
	if err := admin.EnsureTopics(ctx, prod.Client(), admin.TopicSpec{
		Partitions:        cfg.Kafka.TopicPartitions,
		ReplicationFactor: cfg.Kafka.TopicReplication,
	}, cfg.Kafka.Topics()...); err != nil {
		return err
	}
	checks["kafka"] = prod.Ping

	pub := publisher.New(prod, publisher.Topics{
		UserEvents:   cfg.Kafka.UserTopic,
		AuthRequests: cfg.Kafka.AuthRequestTopic,
	}, publisher.WithLogger(log), publisher.WithMetrics(publisher.NewMetrics(reg)))

	// Authorization: replies are read by every instance; each keeps only its own.
	authzMetrics := authzmetrics.New(reg)
	registry := pending.New()
	authorizer := authz.New(pub, registry,
		authz.WithLogger(log),
		authz.WithMetrics(authzMetrics),
		authz.WithTimeout(cfg.AuthzTimeout),
	)
	replies, err := consumer.New(consumer.Config{
		Brokers: cfg.Kafka.Brokers,
		Topics:  []string{cfg.Kafka.AuthResponseTopic},
	}, consumer.WithLogger(log.With("component", "authz-listener")))
	if err != nil {
		return err
	}
	responses := listener.New(registry, listener.WithLogger(log), listener.WithMetrics(authzMetrics))

	// Replication: instances share the group so each event is applied once.
	userEvents, err := consumer.New(consumer.Config{
		Brokers:      cfg.Kafka.Brokers,
		Topics:       []string{cfg.Kafka.UserTopic},
		GroupID:      cfg.Kafka.ConsumerGroup,
		RetryBackoff: cfg.Kafka.RetryBackoff,
	}, consumer.WithLogger(log.With("component", "replication")))
	if err != nil {
		return err
	}
	replicator := replication.NewHandler(users,
		replication.WithLogger(log),
		replication.WithMetrics(replication.NewMetrics(reg)),
		replication.WithProcessedEvents(processed),
	)

	userService := service.New(users, pub,
		service.WithLogger(log),
		service.WithMetrics(metrics.New(reg)),
	)
	router := httptransport.NewRouter(httptransport.RouterConfig{
		Users:    httptransport.NewUserHandler(userService, authorizer, log),
		Gatherer: reg,
		Checks:   checks,
		Logger:   log,
	})
	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return responses.Run(gctx, replies)
	})
	g.Go(func() error {
		if err := userEvents.Run(gctx, replicator); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("replication consumer: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Info("starting user-service", "addr", cfg.Addr)
		return httpserver.Run(gctx, srv)
	})

	err = g.Wait()
	log.Info("user-service shut down")
	return err
}

func openUserStore(ctx context.Context, cfg config.Server, log *slog.Logger, checks map[string]httptransport.HealthCheck) (userStore, func(), error) {
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, using in-memory user store")
		return store.NewInMemory(), func() {}, nil
	}
	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := store.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	checks["postgres"] = db.PingContext
	return store.NewPostgres(db), func() { _ = db.Close() }, nil
}

func openProcessedEvents(ctx context.Context, cfg config.Server, log *slog.Logger, checks map[string]httptransport.HealthCheck) (replication.ProcessedEvents, func(), error) {
	client, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	if client == nil {
		log.Info("REDIS_URL not set, keeping processed-event markers in memory")
		return dedupe.NewMemory(cfg.ProcessedEventTTL), func() {}, nil
	}
	checks["redis"] = client.Health
	return dedupe.NewRedis(client.Client, cfg.ProcessedEventTTL), func() { _ = client.Close() }, nil
}
