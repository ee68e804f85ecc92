package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/shared"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/pkg/circuitbreaker"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// KAFKA FORWARDER
// Forwards domain events to the topic consumed by the notification service.
// Messages are keyed by aggregate ID so one application's events stay ordered.
// ══════════════════════════════════════════════════════════════════════════════

// MessageWriter is the subset of *kafka.Writer the forwarder uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig configures the producer.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
	BatchTimeout time.Duration
}

// NewKafkaWriter builds a producer for cfg.
func NewKafkaWriter(cfg KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		Compression:            kafka.Gzip,
		RequiredAcks:           kafka.RequireAll,
		MaxAttempts:            1,
		BatchTimeout:           cfg.BatchTimeout,
		WriteTimeout:           cfg.WriteTimeout,
	}
}

// KafkaForwarder publishes events through a circuit breaker with retries.
type KafkaForwarder struct {
	writer  MessageWriter
	breaker *circuitbreaker.CircuitBreaker
	retry   retry.Policy
	timeout time.Duration
	logger  *slog.Logger

	forwarded atomic.Int64
	dropped   atomic.Int64
}

// KafkaForwarderOption configures a KafkaForwarder.
type KafkaForwarderOption func(*KafkaForwarder)

// WithBreaker overrides the circuit breaker.
func WithBreaker(cb *circuitbreaker.CircuitBreaker) KafkaForwarderOption {
	return func(f *KafkaForwarder) { f.breaker = cb }
}

// WithRetryPolicy overrides retry.Broker.
func WithRetryPolicy(p retry.Policy) KafkaForwarderOption {
	return func(f *KafkaForwarder) { f.retry = p }
}

// WithForwardTimeout bounds one Forward call.
func WithForwardTimeout(d time.Duration) KafkaForwarderOption {
	return func(f *KafkaForwarder) { f.timeout = d }
}

// NewKafkaForwarder creates a forwarder writing to writer.
func NewKafkaForwarder(writer MessageWriter, logger *slog.Logger, opts ...KafkaForwarderOption) *KafkaForwarder {
	if logger == nil {
		logger = slog.Default()
	}
	f := &KafkaForwarder{
		writer:  writer,
		retry:   retry.Broker(),
		timeout: 10 * time.Second,
		logger:  logger,
	}
	f.breaker = circuitbreaker.ForBroker(func(name string, from, to circuitbreaker.State) {
		logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
	})
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Handler returns an event handler suitable for EventBus.SubscribeAll.
func (f *KafkaForwarder) Handler() shared.EventHandler {
	return func(event shared.Event) error {
		ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
		defer cancel()
		return f.Forward(ctx, event)
	}
}

// Forward writes one event. Failures are counted and returned; callers on
// the event bus only log them.
func (f *KafkaForwarder) Forward(ctx context.Context, event shared.Event) error {
	msg, err := EncodeMessage(event)
	if err != nil {
		f.dropped.Add(1)
		return err
	}

	err = f.breaker.Execute(ctx, func(ctx context.Context) error {
		return f.retry.Do(ctx, func(ctx context.Context) error {
			if err := f.writer.WriteMessages(ctx, msg); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				return retry.Retryable(err)
			}
			return nil
		})
	})
	if err != nil {
		f.dropped.Add(1)
		return fmt.Errorf("forward %s: %w", event.EventType(), err)
	}

	f.forwarded.Add(1)
	f.logger.Debug("event forwarded", "event_type", event.EventType(), "aggregate_id", event.AggregateID())
	return nil
}

// Stats returns forwarded and dropped counters.
func (f *KafkaForwarder) Stats() (forwarded, dropped int64) {
	return f.forwarded.Load(), f.dropped.Load()
}

// Close flushes and closes the writer.
func (f *KafkaForwarder) Close() error {
	return f.writer.Close()
}

// EncodeMessage converts an event into a Kafka message carrying its envelope.
func EncodeMessage(event shared.Event) (kafka.Message, error) {
	env, err := shared.NewEventEnvelope(uuid.NewString(), event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal payload: %w", err)
	}
	value, err := json.Marshal(env)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal envelope: %w", err)
	}

	return kafka.Message{
		Key:   []byte(event.AggregateID()),
		Value: value,
		Time:  event.OccurredAt(),
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType())},
			{Key: "event_id", Value: []byte(env.ID)},
		},
	}, nil
}

// BrokerCheck returns a check that dials the first reachable broker.
func BrokerCheck(brokers []string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		var dialer kafka.Dialer
		var lastErr error
		for _, addr := range brokers {
			conn, err := dialer.DialContext(ctx, "tcp", addr)
			if err != nil {
				lastErr = err
				continue
			}
			return conn.Close()
		}
		if lastErr == nil {
			lastErr = errors.New("no brokers configured")
		}
		return fmt.Errorf("kafka unreachable: %w", lastErr)
	}
}
