package messaging

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisPubSub adapts a go-redis client to PubSubClient.
type RedisPubSub struct {
	client redis.UniversalClient
}

// NewRedisPubSub creates a new RedisPubSub.
func NewRedisPubSub(client redis.UniversalClient) *RedisPubSub {
	return &RedisPubSub{client: client}
}

// Publish implements PubSubClient.
func (p *RedisPubSub) Publish(ctx context.Context, channel string, message []byte) error {
	return p.client.Publish(ctx, channel, message).Err()
}

// Subscribe implements PubSubClient. The subscription is confirmed before
// returning so no message published afterwards is missed.
func (p *RedisPubSub) Subscribe(ctx context.Context, channel string) (<-chan PubSubMessage, func() error, error) {
	ps := p.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, fmt.Errorf("confirm subscription: %w", err)
	}

	out := make(chan PubSubMessage)
	go func() {
		defer close(out)
		for msg := range ps.Channel() {
			select {
			case out <- PubSubMessage{Payload: []byte(msg.Payload)}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, ps.Close, nil
}
