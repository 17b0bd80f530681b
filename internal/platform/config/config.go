package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"userprofile/pkg/platform/strings"
)

// Server captures process level configuration.
type Server struct {
	Addr      string
	LogLevel  string
	LogFormat string

	DatabaseURL string
	Redis       RedisConfig
	Kafka       KafkaConfig

	AuthzTimeout      time.Duration
	ProcessedEventTTL time.Duration
}

// RedisConfig configures the optional Redis client. An empty URL disables it.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the message bus.
type KafkaConfig struct {
	Brokers           []string
	ClientID          string
	AuthRequestTopic  string
	AuthResponseTopic string
	UserTopic         string
	ConsumerGroup     string
	TopicPartitions   int32
	TopicReplication  int16
	RetryBackoff      time.Duration
}

// Topics lists every topic the service produces to or consumes from.
func (k KafkaConfig) Topics() []string {
	return []string{k.AuthRequestTopic, k.AuthResponseTopic, k.UserTopic}
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	var err error
	cfg := Server{
		Addr:        envOr("USER_SERVICE_ADDR", ":8080"),
		LogLevel:    envOr("LOG_LEVEL", "info"),
		LogFormat:   envOr("LOG_FORMAT", "json"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Kafka: KafkaConfig{
			Brokers:           strings.SplitList(envOr("KAFKA_BOOTSTRAP_SERVERS", "localhost:9092")),
			ClientID:          envOr("KAFKA_CLIENT_ID", "user-service"),
			AuthRequestTopic:  envOr("KAFKA_AUTH_REQUEST_TOPIC", "auth-requests"),
			AuthResponseTopic: envOr("KAFKA_AUTH_RESPONSE_TOPIC", "auth-responses"),
			UserTopic:         envOr("KAFKA_USER_TOPIC", "user-events"),
			ConsumerGroup:     envOr("KAFKA_CONSUMER_GROUP", "babbly-user-service"),
		},
	}

	p := parser{}
	cfg.Redis.PoolSize = p.int("REDIS_POOL_SIZE", 10)
	cfg.Redis.MinIdleConns = p.int("REDIS_MIN_IDLE_CONNS", 2)
	cfg.Redis.DialTimeout = p.duration("REDIS_DIAL_TIMEOUT", 5*time.Second)
	cfg.Redis.ReadTimeout = p.duration("REDIS_READ_TIMEOUT", 3*time.Second)
	cfg.Redis.WriteTimeout = p.duration("REDIS_WRITE_TIMEOUT", 3*time.Second)
	cfg.Kafka.TopicPartitions = int32(p.int("KAFKA_TOPIC_PARTITIONS", 3))
	cfg.Kafka.TopicReplication = int16(p.int("KAFKA_TOPIC_REPLICATION", 1))
	cfg.Kafka.RetryBackoff = p.duration("KAFKA_RETRY_BACKOFF", time.Second)
	cfg.AuthzTimeout = p.duration("AUTHZ_TIMEOUT", 10*time.Second)
	cfg.ProcessedEventTTL = p.duration("PROCESSED_EVENT_TTL", 24*time.Hour)
	if p.err != nil {
		return Server{}, p.err
	}

	if len(cfg.Kafka.Brokers) == 0 {
		err = fmt.Errorf("KAFKA_BOOTSTRAP_SERVERS must list at least one broker")
	} else if cfg.AuthzTimeout <= 0 {
		err = fmt.Errorf("AUTHZ_TIMEOUT must be positive, got %s", cfg.AuthzTimeout)
	} else if cfg.Kafka.TopicPartitions <= 0 || cfg.Kafka.TopicReplication <= 0 {
		err = fmt.Errorf("topic partitions and replication must be positive")
	}
	return cfg, err
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// parser records the first malformed value it sees.
type parser struct {
	err error
}

func (p *parser) int(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("parse %s: %w", key, err)
	}
	return v
}

func (p *parser) duration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("parse %s: %w", key, err)
	}
	return v
}
