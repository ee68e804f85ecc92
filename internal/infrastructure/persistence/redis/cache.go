// Package redis keeps derived state for the mentorship service in Redis:
// per-artisan dashboard counts and the token revocation list. The same
// client also carries the cross-replica event channel. Dashboard counts can
// always be rebuilt from the primary store.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss is returned when the key is absent.
	ErrCacheMiss = errors.New("cache: key not found")

	// ErrCacheConnection is returned by Connect when the first ping fails.
	ErrCacheConnection = errors.New("cache: connection failed")

	// ErrCacheSerialization is returned for values that do not decode.
	ErrCacheSerialization = errors.New("cache: serialization failed")
)

// ══════════════════════════════════════════════════════════════════════════════
// KEYS AND TTLs
// ══════════════════════════════════════════════════════════════════════════════

const (
	prefixDashboard = "dashboard:"
	prefixRevoked   = "revoked:"
)

const (
	// TTLDashboardCounts bounds staleness if an invalidation event is lost.
	TTLDashboardCounts = 2 * time.Minute

	// TTLRevokedFallback is used when a revoked token carries no expiry.
	TTLRevokedFallback = 24 * time.Hour
)

// DashboardKey is the key of an artisan's status counts.
func DashboardKey(artisanID string) string { return prefixDashboard + artisanID }

// RevokedKey is the key marking a token id as revoked.
func RevokedKey(tokenID string) string { return prefixRevoked + tokenID }

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Cache wraps the shared go-redis client.
type Cache struct {
	client redis.UniversalClient
}

// Connect opens a client and pings it once within the dial timeout.
func Connect(ctx context.Context, opts *redis.Options) (*Cache, error) {
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrCacheConnection, opts.Addr, err)
	}
	return &Cache{client: client}, nil
}

// NewCacheFromClient wraps an existing client.
func NewCacheFromClient(client redis.UniversalClient) *Cache {
	return &Cache{client: client}
}

// Client returns the client shared with the pub/sub event bus.
func (c *Cache) Client() redis.UniversalClient { return c.client }

func (c *Cache) Close() error { return c.client.Close() }

// Ping serves the optional redis health check.
func (c *Cache) Ping(ctx context.Context) error { return c.client.Ping(ctx).Err() }

func (c *Cache) setJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

func (c *Cache) getJSON(ctx context.Context, key string, dest any) error {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	return nil
}
