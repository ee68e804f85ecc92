package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/Miku-Miku-Beam/heritage-core-sub000/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CROSS-REPLICA FAN-OUT
// ══════════════════════════════════════════════════════════════════════════════

// PubSubClient is the part of Redis pub/sub the fan-out needs.
type PubSubClient interface {
	Publish(ctx context.Context, channel string, message []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan PubSubMessage, func() error, error)
}

// PubSubMessage is one channel delivery. Err reports a broken subscription.
type PubSubMessage struct {
	Payload []byte
	Err     error
}

// DefaultChannel is used when FanoutOptions.Channel is empty.
const DefaultChannel = "mentorship:events"

// FanoutOptions configures NewFanoutBus.
type FanoutOptions struct {
	Channel string

	// InstanceID tags outgoing events so a replica skips its own.
	// Random when empty.
	InstanceID string

	Logger *slog.Logger
}

// FanoutBus publishes to the local bus and to a channel shared by every
// replica, so dashboard invalidations reach all of them.
type FanoutBus struct {
	*LocalBus

	client   PubSubClient
	channel  string
	instance string
	log      *slog.Logger

	stop        context.CancelFunc
	unsubscribe func() error
	done        sync.WaitGroup
	leave       sync.Once
}

// envelopeFrom is what travels over the channel.
type envelopeFrom struct {
	Instance string               `json:"instance_id"`
	Event    shared.EventEnvelope `json:"event"`
}

// NewFanoutBus subscribes to the channel before returning.
func NewFanoutBus(local *LocalBus, client PubSubClient, opts FanoutOptions) (*FanoutBus, error) {
	if local == nil || client == nil {
		return nil, errors.New("fanout: local bus and pubsub client are required")
	}
	if opts.Channel == "" {
		opts.Channel = DefaultChannel
	}
	if opts.InstanceID == "" {
		opts.InstanceID = uuid.NewString()
	}
	if opts.Logger == nil {
		opts.Logger = local.log
	}

	ctx, stop := context.WithCancel(context.Background())
	incoming, unsubscribe, err := client.Subscribe(ctx, opts.Channel)
	if err != nil {
		stop()
		return nil, fmt.Errorf("fanout: subscribe %s: %w", opts.Channel, err)
	}

	f := &FanoutBus{
		LocalBus:    local,
		client:      client,
		channel:     opts.Channel,
		instance:    opts.InstanceID,
		log:         opts.Logger,
		stop:        stop,
		unsubscribe: unsubscribe,
	}
	f.done.Add(1)
	go f.receive(ctx, incoming)
	return f, nil
}

// Publish delivers locally even when the channel write fails.
func (f *FanoutBus) Publish(event shared.Event) error {
	if event == nil {
		return ErrNilEvent
	}
	env, err := shared.NewEventEnvelope(uuid.NewString(), event)
	if err != nil {
		return fmt.Errorf("fanout: encode %s: %w", event.EventType(), err)
	}
	data, err := json.Marshal(envelopeFrom{Instance: f.instance, Event: env})
	if err != nil {
		return fmt.Errorf("fanout: encode %s: %w", event.EventType(), err)
	}

	if err := f.LocalBus.Publish(event); err != nil {
		return err
	}
	if err := f.client.Publish(context.Background(), f.channel, data); err != nil {
		f.log.Warn("fanout publish failed", "event_type", event.EventType(), "channel", f.channel, "error", err)
	}
	return nil
}

func (f *FanoutBus) receive(ctx context.Context, incoming <-chan PubSubMessage) {
	defer f.done.Done()
	for {
		var (
			msg PubSubMessage
			ok  bool
		)
		select {
		case <-ctx.Done():
			return
		case msg, ok = <-incoming:
		}
		if !ok {
			return
		}
		if msg.Err != nil {
			f.log.Error("fanout subscription error", "channel", f.channel, "error", msg.Err)
			continue
		}

		var in envelopeFrom
		if err := json.Unmarshal(msg.Payload, &in); err != nil {
			f.log.Error("fanout: undecodable message", "error", err)
			continue
		}
		if in.Instance == f.instance {
			continue
		}
		event, err := DecodeEnvelope(in.Event)
		if err != nil {
			f.log.Error("fanout: undecodable event", "event_type", in.Event.Type, "error", err)
			continue
		}
		if err := f.LocalBus.Publish(event); err != nil {
			f.log.Warn("fanout: dropped remote event", "event_type", in.Event.Type, "error", err)
		}
	}
}

// Close leaves the channel, then drains the local bus.
func (f *FanoutBus) Close() error {
	f.leave.Do(func() {
		f.stop()
		if err := f.unsubscribe(); err != nil {
			f.log.Warn("fanout unsubscribe failed", "channel", f.channel, "error", err)
		}
		f.done.Wait()
	})
	return f.LocalBus.Close()
}

// ══════════════════════════════════════════════════════════════════════════════
// ENVELOPE DECODING
// ══════════════════════════════════════════════════════════════════════════════

// remoteEvent carries another replica's event with its payload as decoded JSON.
type remoteEvent struct {
	shared.BaseEvent
	payload map[string]interface{}
}

func (e remoteEvent) Payload() map[string]interface{} { return e.payload }

// DecodeEnvelope rebuilds an event from its transport form.
func DecodeEnvelope(env shared.EventEnvelope) (shared.Event, error) {
	payload := map[string]interface{}{}
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", env.Type, err)
		}
	}
	return remoteEvent{
		BaseEvent: shared.BaseEvent{
			Type:          env.Type,
			AggregateId:   env.AggregateID,
			Timestamp:     env.Timestamp,
			Version:       env.Version,
			CorrelationID: env.CorrelationID,
		},
		payload: payload,
	}, nil
}
