package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	verifiedTokenPrefix = "admin_token:"
	// Cached verifications live at most this long, regardless of token expiry.
	maxVerificationTTL = 5 * time.Minute
)

// VerifiedTokenCache stores claims of already-verified tokens in Redis, keyed
// by the token's SHA-256 so raw tokens never land in the cache.
type VerifiedTokenCache struct {
	Client *redis.Client
}

func NewVerifiedTokenCache(client *redis.Client) *VerifiedTokenCache {
	return &VerifiedTokenCache{Client: client}
}

func cacheKey(rawToken string) string {
	sum := sha256.Sum256([]byte(rawToken))
	return verifiedTokenPrefix + hex.EncodeToString(sum[:])
}

// Get returns the cached claims for a token, or nil on a miss.
func (c *VerifiedTokenCache) Get(ctx context.Context, rawToken string) (*tokenClaims, error) {
	if c.Client == nil {
		return nil, fmt.Errorf("redis client not initialized")
	}

	payload, err := c.Client.Get(ctx, cacheKey(rawToken)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token from Redis: %w", err)
	}

	var claims tokenClaims
	if err := json.Unmarshal([]byte(payload), &claims); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached claims: %w", err)
	}
	return &claims, nil
}

// Set caches the claims of a verified token until the token expires, capped
// at maxVerificationTTL.
func (c *VerifiedTokenCache) Set(ctx context.Context, rawToken string, claims *tokenClaims, expiry time.Time) error {
	if c.Client == nil {
		return fmt.Errorf("redis client not initialized")
	}

	ttl := time.Until(expiry)
	if ttl <= 0 {
		return nil
	}
	if ttl > maxVerificationTTL {
		ttl = maxVerificationTTL
	}

	payload, err := json.Marshal(claims)
	if err != nil {
		return fmt.Errorf("failed to marshal claims: %w", err)
	}
	if err := c.Client.Set(ctx, cacheKey(rawToken), payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store claims in Redis: %w", err)
	}
	return nil
}
