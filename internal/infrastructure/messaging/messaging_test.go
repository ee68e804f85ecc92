package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/shared"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/pkg/circuitbreaker"
	"github.com/Miku-Miku-Beam/heritage-core-sub000/pkg/retry"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func decided() shared.ApplicationDecidedEvent {
	return shared.NewApplicationDecidedEvent("app-1", "artisan-1", "applicant-1", "program-1", "APPROVED")
}

// ─────────────────────────────────────────────────────────────────────────────
// Local bus
// ─────────────────────────────────────────────────────────────────────────────

func TestLocalBusSyncDelivery(t *testing.T) {
	bus := NewLocalBus(quiet, 0)
	defer bus.Close()

	var typed, all []shared.EventType
	require.NoError(t, bus.Subscribe(shared.EventApplicationDecided, func(e shared.Event) error {
		typed = append(typed, e.EventType())
		return nil
	}))
	require.NoError(t, bus.SubscribeAll(func(e shared.Event) error {
		all = append(all, e.EventType())
		return errors.New("ignored")
	}))

	require.NoError(t, bus.Publish(decided()))
	require.NoError(t, bus.Publish(shared.NewReportEvent(shared.EventReportCreated, "app-1", "r-1", "applicant-1", 1)))

	assert.Equal(t, []shared.EventType{shared.EventApplicationDecided}, typed)
	assert.Len(t, all, 2)

	handled, failed := bus.Stats()
	assert.Equal(t, int64(3), handled)
	assert.Equal(t, int64(2), failed)
}

func TestLocalBusCloseWaitsForWorkers(t *testing.T) {
	bus := NewLocalBus(quiet, 2)

	var n atomic.Int32
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		time.Sleep(time.Millisecond)
		n.Add(1)
		return nil
	}))
	for i := 0; i < 10; i++ {
		require.NoError(t, bus.Publish(decided()))
	}
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	assert.Equal(t, int32(10), n.Load())
	assert.ErrorIs(t, bus.Publish(decided()), ErrEventBusClosed)
	assert.ErrorIs(t, bus.Subscribe(shared.EventReportCreated, func(shared.Event) error { return nil }), ErrEventBusClosed)
}

func TestLocalBusRecoversHandlerPanic(t *testing.T) {
	bus := NewLocalBus(quiet, 0)
	defer bus.Close()

	called := false
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { panic("boom") }))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { called = true; return nil }))

	require.NoError(t, bus.Publish(decided()))
	assert.True(t, called)
	_, failed := bus.Stats()
	assert.Equal(t, int64(1), failed)
}

func TestLocalBusRejectsNil(t *testing.T) {
	bus := NewLocalBus(quiet, 0)
	defer bus.Close()

	assert.ErrorIs(t, bus.Subscribe(shared.EventReportCreated, nil), ErrNilHandler)
	assert.ErrorIs(t, bus.Publish(nil), ErrNilEvent)
}

// ─────────────────────────────────────────────────────────────────────────────
// Fan-out with an in-process hub
// ─────────────────────────────────────────────────────────────────────────────

type hub struct {
	mu      sync.Mutex
	subs    []chan PubSubMessage
	failPub bool
}

func (h *hub) Publish(_ context.Context, _ string, message []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failPub {
		return errors.New("redis down")
	}
	for _, ch := range h.subs {
		ch <- PubSubMessage{Payload: message}
	}
	return nil
}

func (h *hub) Subscribe(context.Context, string) (<-chan PubSubMessage, func() error, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan PubSubMessage, 16)
	h.subs = append(h.subs, ch)
	return ch, func() error { return nil }, nil
}

func replica(t *testing.T, h *hub, id string) *FanoutBus {
	t.Helper()
	f, err := NewFanoutBus(NewLocalBus(quiet, 0), h, FanoutOptions{InstanceID: id, Logger: quiet})
	require.NoError(t, err)
	return f
}

func TestFanoutReachesOtherReplicas(t *testing.T) {
	h := &hub{}
	a := replica(t, h, "a")
	b := replica(t, h, "b")

	var aCount atomic.Int32
	received := make(chan shared.Event, 1)
	require.NoError(t, a.SubscribeAll(func(shared.Event) error { aCount.Add(1); return nil }))
	require.NoError(t, b.Subscribe(shared.EventApplicationDecided, func(e shared.Event) error {
		received <- e
		return nil
	}))

	ev := decided()
	ev.BaseEvent = ev.BaseEvent.WithCorrelationID("req-1")
	require.NoError(t, a.Publish(ev))

	select {
	case e := <-received:
		assert.Equal(t, "app-1", e.AggregateID())
		assert.Equal(t, "artisan-1", e.Payload()["artisan_id"])
		assert.Equal(t, "APPROVED", e.Payload()["status"])
	case <-time.After(time.Second):
		t.Fatal("remote instance did not receive the event")
	}

	require.NoError(t, a.Close())
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
	assert.Equal(t, int32(1), aCount.Load(), "own events are not replayed")
}

func TestFanoutDeliversLocallyWhenChannelFails(t *testing.T) {
	h := &hub{failPub: true}
	a := replica(t, h, "a")
	defer a.Close()

	delivered := false
	require.NoError(t, a.SubscribeAll(func(shared.Event) error { delivered = true; return nil }))

	require.NoError(t, a.Publish(decided()))
	assert.True(t, delivered)
}

func TestFanoutRequiresClient(t *testing.T) {
	_, err := NewFanoutBus(NewLocalBus(quiet, 0), nil, FanoutOptions{})
	assert.Error(t, err)
}

func TestDecodeEnvelope(t *testing.T) {
	env, err := shared.NewEventEnvelope("evt-1", decided())
	require.NoError(t, err)

	e, err := DecodeEnvelope(env)
	require.NoError(t, err)
	assert.Equal(t, shared.EventApplicationDecided, e.EventType())
	assert.Equal(t, "program-1", e.Payload()["program_id"])

	_, err = DecodeEnvelope(shared.EventEnvelope{Payload: json.RawMessage(`[`)})
	assert.Error(t, err)
}

// ─────────────────────────────────────────────────────────────────────────────
// Kafka forwarder
// ─────────────────────────────────────────────────────────────────────────────

type fakeWriter struct {
	mu       sync.Mutex
	failures int
	calls    int
	written  []kafka.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.failures > 0 {
		w.failures--
		return errors.New("broker unavailable")
	}
	w.written = append(w.written, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func fastRetry() retry.Policy {
	return retry.Policy{Attempts: 3, Base: time.Millisecond, Cap: time.Millisecond}
}

func TestForwarderRetriesTransientFailures(t *testing.T) {
	w := &fakeWriter{failures: 2}
	f := NewKafkaForwarder(w, quiet, WithRetryPolicy(fastRetry()))

	require.NoError(t, f.Handler()(decided()))

	assert.Equal(t, 3, w.calls)
	require.Len(t, w.written, 1)
	msg := w.written[0]
	assert.Equal(t, "app-1", string(msg.Key))
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, string(shared.EventApplicationDecided), string(msg.Headers[0].Value))

	var env shared.EventEnvelope
	require.NoError(t, json.Unmarshal(msg.Value, &env))
	assert.Equal(t, shared.EventApplicationDecided, env.Type)

	forwarded, dropped := f.Stats()
	assert.Equal(t, int64(1), forwarded)
	assert.Equal(t, int64(0), dropped)
}

func TestForwarderOpensBreaker(t *testing.T) {
	w := &fakeWriter{failures: 100}
	cb := circuitbreaker.New(circuitbreaker.Settings{Name: "test", Threshold: 2, Cooldown: time.Hour})
	f := NewKafkaForwarder(w, quiet, WithRetryPolicy(fastRetry()), WithBreaker(cb))
	ctx := context.Background()

	assert.Error(t, f.Forward(ctx, decided()))
	assert.Error(t, f.Forward(ctx, decided()))
	calls := w.calls

	err := f.Forward(ctx, decided())
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.Equal(t, calls, w.calls, "open breaker must not reach the broker")

	_, dropped := f.Stats()
	assert.Equal(t, int64(3), dropped)
}

func TestNewKafkaWriter(t *testing.T) {
	w := NewKafkaWriter(KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "mentorship.events"})
	defer w.Close()

	assert.Equal(t, "mentorship.events", w.Topic)
	assert.Equal(t, kafka.RequireAll, w.RequiredAcks)
}

func TestBrokerCheckWithoutBrokers(t *testing.T) {
	err := BrokerCheck(nil)(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no brokers configured")
}
