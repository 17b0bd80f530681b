//go:build integration

package replication_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"userprofile/internal/events/publisher"
	"userprofile/internal/platform/kafka/admin"
	"userprofile/internal/platform/kafka/consumer"
	"userprofile/internal/platform/kafka/producer"
	"userprofile/internal/replication"
	"userprofile/internal/replication/dedupe"
	"userprofile/internal/users/models"
	"userprofile/internal/users/store"
	"userprofile/pkg/testutil/containers"
)

// A user published by one instance is materialized exactly once by another,
// even when the event is delivered twice.
func TestReplicationOverBus(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	brokers := containers.GetManager().GetRedpanda(t).Brokers
	topic := "user-events-" + uuid.NewString()[:8]

	prod, err := producer.New(producer.Config{Brokers: brokers, ClientID: "replication-test"})
	require.NoError(t, err)
	defer func() { _ = prod.Close(context.Background()) }()
	require.NoError(t, admin.EnsureTopics(ctx, prod.Client(), admin.TopicSpec{Partitions: 3, ReplicationFactor: 1}, topic))

	pub := publisher.New(prod, publisher.Topics{UserEvents: topic}, publisher.WithLogger(logger))
	user := &models.User{
		ID:          uuid.New(),
		ExternalID:  "auth0|" + uuid.NewString(),
		Username:    "ada",
		Email:       "ada@example.com",
		FirstName:   "Ada",
		LastName:    "Lovelace",
		DisplayName: "Ada Lovelace",
		CreatedAt:   time.Now().UTC(),
	}
	pub.PublishUserCreated(ctx, user)
	pub.PublishUserCreated(ctx, user)
	user.PictureURL = "https://img/ada.png"
	pub.PublishUserUpdated(ctx, user)

	users := store.NewInMemory()
	handler := replication.NewHandler(users,
		replication.WithLogger(logger),
		replication.WithProcessedEvents(dedupe.NewMemory(time.Hour)),
	)
	sub, err := consumer.New(consumer.Config{
		Brokers:      brokers,
		Topics:       []string{topic},
		GroupID:      "replication-test-" + uuid.NewString()[:8],
		RetryBackoff: 100 * time.Millisecond,
	}, consumer.WithLogger(logger))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- sub.Run(ctx, handler) }()

	require.Eventually(t, func() bool {
		got, err := users.FindByExternalID(ctx, user.ExternalID)
		return err == nil && got.PictureURL == "https://img/ada.png"
	}, 60*time.Second, 200*time.Millisecond)
	require.Equal(t, 1, users.Count())

	got, err := users.FindByExternalID(ctx, user.ExternalID)
	require.NoError(t, err)
	require.Equal(t, "Ada Lovelace", got.DisplayName)
	require.Equal(t, "adalovelace", got.Username)

	cancel()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("consumer did not stop")
	}
}
