// Package consumer runs a franz-go poll loop and hands each record to a Handler.
//
// Offsets are committed manually: a record is marked only after its handler
// returns nil, so a crash between fetch and apply leads to redelivery rather
// than loss.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// ErrSkip marks a message the handler can never process (malformed payload,
// unknown event type). Skipped messages are logged and not retried.
var ErrSkip = errors.New("skip message")

// shutdownCommitTimeout bounds the final offset commit after ctx is cancelled.
const shutdownCommitTimeout = 5 * time.Second

// Skip wraps err so the consumer treats the message as unprocessable.
func Skip(err error) error {
	return fmt.Errorf("%w: %w", ErrSkip, err)
}

// Message is a transport-agnostic view of a consumed record.
type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
}

// Handler processes one message. Returning nil commits the message, an
// ErrSkip-wrapped error drops it, any other error schedules redelivery.
type Handler interface {
	Handle(ctx context.Context, msg *Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg *Message) error

func (f HandlerFunc) Handle(ctx context.Context, msg *Message) error { return f(ctx, msg) }

// Config selects brokers, topics and the consumer group. An empty GroupID
// consumes every partition directly from the end of the log without
// committing offsets.
type Config struct {
	Brokers      []string
	Topics       []string
	GroupID      string
	RetryBackoff time.Duration
}

// client is the subset of *kgo.Client the poll loop needs.
type client interface {
	PollFetches(ctx context.Context) kgo.Fetches
	MarkCommitRecords(rs ...*kgo.Record)
	CommitMarkedOffsets(ctx context.Context) error
	SetOffsets(setOffsets map[string]map[int32]kgo.EpochOffset)
	Close()
}

// Consumer owns one bus subscription.
type Consumer struct {
	client       client
	grouped      bool
	retryBackoff time.Duration
	logger       *slog.Logger
}

// Option configures a Consumer.
type Option func(*Consumer)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Consumer) {
		c.logger = logger
	}
}

// New connects a franz-go client for cfg.
func New(cfg Config, opts ...Option) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("consumer requires at least one broker")
	}
	if len(cfg.Topics) == 0 {
		return nil, errors.New("consumer requires at least one topic")
	}

	kopts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumeTopics(cfg.Topics...),
	}
	if cfg.GroupID != "" {
		kopts = append(kopts,
			kgo.ConsumerGroup(cfg.GroupID),
			kgo.DisableAutoCommit(),
			kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		)
	} else {
		kopts = append(kopts, kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()))
	}

	cl, err := kgo.NewClient(kopts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	return newConsumer(cl, cfg.GroupID != "", cfg.RetryBackoff, opts...), nil
}

func newConsumer(cl client, grouped bool, backoff time.Duration, opts ...Option) *Consumer {
	if backoff <= 0 {
		backoff = time.Second
	}
	c := &Consumer{
		client:       cl,
		grouped:      grouped,
		retryBackoff: backoff,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run polls until ctx is cancelled, dispatching every record to h. The
// underlying client is closed on every exit path.
func (c *Consumer) Run(ctx context.Context, h Handler) error {
	defer c.client.Close()

	for {
		fetches := c.client.PollFetches(ctx)
		if ctx.Err() != nil {
			commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownCommitTimeout)
			c.commit(commitCtx)
			cancel()
			return ctx.Err()
		}
		if fetches.IsClientClosed() {
			return errors.New("kafka client closed")
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.Error("fetch error",
				"topic", topic,
				"partition", partition,
				"error", err,
			)
		})

		retry := false
		fetches.EachPartition(func(p kgo.FetchTopicPartition) {
			if c.processPartition(ctx, h, p) {
				retry = true
			}
		})
		c.commit(ctx)

		if retry {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryBackoff):
			}
		}
	}
}

// processPartition handles records in order and reports whether the
// partition was rewound for redelivery. Records after a failed one are left
// unmarked; they are fetched again from the rewound offset.
func (c *Consumer) processPartition(ctx context.Context, h Handler, p kgo.FetchTopicPartition) bool {
	for _, rec := range p.Records {
		msg := toMessage(rec)
		err := c.handle(ctx, h, msg)
		switch {
		case err == nil:
			if c.grouped {
				c.client.MarkCommitRecords(rec)
			}
		case errors.Is(err, ErrSkip):
			c.logger.Warn("skipping unprocessable message",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"key", string(msg.Key),
				"error", err,
			)
		default:
			c.logger.Error("message processing failed, scheduling redelivery",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"key", string(msg.Key),
				"error", err,
			)
			if c.grouped {
				c.client.SetOffsets(map[string]map[int32]kgo.EpochOffset{
					rec.Topic: {rec.Partition: {Epoch: -1, Offset: rec.Offset}},
				})
				return true
			}
		}
	}
	return false
}

// handle runs h and converts a panic into a skip so one bad message cannot
// take the loop down.
func (c *Consumer) handle(ctx context.Context, h Handler, msg *Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = Skip(fmt.Errorf("handler panic: %v", r))
		}
	}()
	return h.Handle(ctx, msg)
}

func (c *Consumer) commit(ctx context.Context) {
	if !c.grouped {
		return
	}
	if err := c.client.CommitMarkedOffsets(ctx); err != nil {
		c.logger.Error("commit offsets failed", "error", err)
	}
}

func toMessage(rec *kgo.Record) *Message {
	msg := &Message{
		Topic:     rec.Topic,
		Partition: rec.Partition,
		Offset:    rec.Offset,
		Key:       rec.Key,
		Value:     rec.Value,
		Timestamp: rec.Timestamp,
	}
	if len(rec.Headers) > 0 {
		msg.Headers = make(map[string]string, len(rec.Headers))
		for _, hdr := range rec.Headers {
			msg.Headers[hdr.Key] = string(hdr.Value)
		}
	}
	return msg
}
