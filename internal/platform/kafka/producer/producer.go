// Package producer publishes keyed records to the bus with franz-go.
package producer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Delivery describes where the broker stored a record.
type Delivery struct {
	Topic     string
	Partition int32
	Offset    int64
}

// Config selects the brokers and client id. DeliveryTimeout bounds how long
// a record may be retried before it fails; zero means DefaultDeliveryTimeout.
type Config struct {
	Brokers         []string
	ClientID        string
	DeliveryTimeout time.Duration
}

// DefaultDeliveryTimeout is used when Config.DeliveryTimeout is unset.
const DefaultDeliveryTimeout = 30 * time.Second

// Producer wraps a kgo client. Records with the same key land on the same
// partition in send order.
type Producer struct {
	client *kgo.Client
}

// New creates an idempotent producer that waits for all in-sync replicas.
func New(cfg Config) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("producer requires at least one broker")
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = DefaultDeliveryTimeout
	}
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.RecordPartitioner(kgo.StickyKeyPartitioner(nil)),
		kgo.ProducerBatchMaxBytes(1 << 20),
		kgo.RecordDeliveryTimeout(cfg.DeliveryTimeout),
		kgo.ProduceRequestTimeout(10 * time.Second),
	}
	if cfg.ClientID != "" {
		opts = append(opts, kgo.ClientID(cfg.ClientID))
	}
	cl, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return &Producer{client: cl}, nil
}

// Publish sends a record and blocks until the broker acknowledges it.
func (p *Producer) Publish(ctx context.Context, topic string, key, value []byte) (Delivery, error) {
	rec := &kgo.Record{Topic: topic, Key: key, Value: value}
	if err := p.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return Delivery{}, fmt.Errorf("produce to %s: %w", topic, err)
	}
	return Delivery{Topic: rec.Topic, Partition: rec.Partition, Offset: rec.Offset}, nil
}

// PublishAsync buffers a record and returns immediately; done runs once the
// broker acknowledges or rejects it.
func (p *Producer) PublishAsync(ctx context.Context, topic string, key, value []byte, done func(Delivery, error)) {
	rec := &kgo.Record{Topic: topic, Key: key, Value: value}
	p.client.Produce(ctx, rec, func(r *kgo.Record, err error) {
		if done == nil {
			return
		}
		if err != nil {
			done(Delivery{Topic: topic}, fmt.Errorf("produce to %s: %w", topic, err))
			return
		}
		done(Delivery{Topic: r.Topic, Partition: r.Partition, Offset: r.Offset}, nil)
	})
}

// Ping checks that at least one broker is reachable.
func (p *Producer) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}

// Client exposes the underlying kgo client for admin operations.
func (p *Producer) Client() *kgo.Client {
	return p.client
}

// Close flushes buffered records and closes the client.
func (p *Producer) Close(ctx context.Context) error {
	err := p.client.Flush(ctx)
	p.client.Close()
	if err != nil {
		return fmt.Errorf("flush kafka producer: %w", err)
	}
	return nil
}
