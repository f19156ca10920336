package cache

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// Revocations implements middleware.RevocationStore.
type Revocations struct {
	rdb    *redis.Client
	memory *expirable.LRU[string, time.Time]
}

// NewRevocations stores revoked session IDs in Redis, or in a bounded
// in-process LRU when rdb is nil.
func NewRevocations(rdb *redis.Client, maxTTL time.Duration) *Revocations {
	r := &Revocations{rdb: rdb}
	if rdb == nil {
		r.memory = expirable.NewLRU[string, time.Time](10000, nil, maxTTL)
	}
	return r
}

func (r *Revocations) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if r.rdb != nil {
		return r.rdb.Set(ctx, RevokedSessionKey(jti), "1", ttl).Err()
	}
	r.memory.Add(jti, time.Now().Add(ttl))
	return nil
}

func (r *Revocations) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if r.rdb != nil {
		err := r.rdb.Get(ctx, RevokedSessionKey(jti)).Err()
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return true, nil
	}
	until, ok := r.memory.Get(jti)
	return ok && time.Now().Before(until), nil
}
