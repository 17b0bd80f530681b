package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{
		"USER_SERVICE_ADDR", "DATABASE_URL", "REDIS_URL", "KAFKA_BOOTSTRAP_SERVERS",
		"KAFKA_CONSUMER_GROUP", "AUTHZ_TIMEOUT", "PROCESSED_EVENT_TTL",
	} {
		t.Setenv(key, "")
	}

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Empty(t, cfg.Redis.URL)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "babbly-user-service", cfg.Kafka.ConsumerGroup)
	assert.Equal(t, []string{"auth-requests", "auth-responses", "user-events"}, cfg.Kafka.Topics())
	assert.Equal(t, 10*time.Second, cfg.AuthzTimeout)
	assert.Equal(t, 24*time.Hour, cfg.ProcessedEventTTL)
	assert.Equal(t, time.Second, cfg.Kafka.RetryBackoff)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("KAFKA_BOOTSTRAP_SERVERS", "kafka-1:9092, kafka-2:9092")
	t.Setenv("KAFKA_USER_TOPIC", "users.v1")
	t.Setenv("AUTHZ_TIMEOUT", "250ms")
	t.Setenv("KAFKA_TOPIC_PARTITIONS", "6")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "users.v1", cfg.Kafka.UserTopic)
	assert.Equal(t, 250*time.Millisecond, cfg.AuthzTimeout)
	assert.Equal(t, int32(6), cfg.Kafka.TopicPartitions)
}

func TestFromEnvRejectsInvalidValues(t *testing.T) {
	tests := map[string][2]string{
		"malformed duration": {"AUTHZ_TIMEOUT", "soon"},
		"zero timeout":       {"AUTHZ_TIMEOUT", "0s"},
		"malformed int":      {"KAFKA_TOPIC_PARTITIONS", "three"},
		"blank brokers":      {"KAFKA_BOOTSTRAP_SERVERS", " , "},
	}
	for name, kv := range tests {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			_, err := FromEnv()
			require.Error(t, err)
		})
	}
}
