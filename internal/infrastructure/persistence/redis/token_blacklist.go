package redis

import (
	"context"
	"time"
)

// TokenBlacklist stores revoked token IDs until the token would expire anyway.
type TokenBlacklist struct {
	cache *Cache
}

// NewTokenBlacklist creates a new TokenBlacklist.
func NewTokenBlacklist(cache *Cache) *TokenBlacklist {
	return &TokenBlacklist{cache: cache}
}

// Revoke marks tokenID as revoked until expiresAt.
func (b *TokenBlacklist) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	return b.cache.client.Set(ctx, RevokedKey(tokenID), 1, revocationTTL(expiresAt, time.Now())).Err()
}

// IsRevoked reports whether tokenID was revoked.
func (b *TokenBlacklist) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if tokenID == "" {
		return false, nil
	}
	n, err := b.cache.client.Exists(ctx, RevokedKey(tokenID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func revocationTTL(expiresAt, now time.Time) time.Duration {
	if expiresAt.IsZero() {
		return TTLRevokedFallback
	}
	ttl := expiresAt.Sub(now)
	if ttl <= 0 {
		// Expired tokens fail validation anyway; keep a short marker.
		return time.Minute
	}
	return ttl
}
