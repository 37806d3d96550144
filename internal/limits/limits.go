// Package limits caps concurrent live AI calls per business.
package limits

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"call-assistant/pkg/utils"
)

// CallCap is a per-business concurrency cap backed by Redis.
//
// A slot is acquired when the inbound handler decides to open an AI bridge
// and released when that bridge tears down. The TTL backstops slots for
// calls where the caller hangs up before the media stream ever opens.
type CallCap struct {
	rdb   *redis.Client
	limit int
	ttl   time.Duration
}

// NewCallCap returns a cap, or nil when limit is 0 (cap disabled).
func NewCallCap(rdb *redis.Client, limit int, ttl time.Duration) *CallCap {
	if rdb == nil || limit <= 0 {
		return nil
	}
	if ttl <= 0 {
		// Longer than any plausible phone call.
		ttl = 4 * time.Hour
	}
	return &CallCap{rdb: rdb, limit: limit, ttl: ttl}
}

// Acquire reserves a slot for the business. A nil cap always admits.
func (c *CallCap) Acquire(ctx context.Context, businessID string) (bool, error) {
	if c == nil {
		return true, nil
	}
	return utils.AcquireConcurrencyCap(ctx, c.rdb, key(businessID), c.limit, c.ttl)
}

// Release frees a slot. A nil cap is a no-op.
func (c *CallCap) Release(ctx context.Context, businessID string) error {
	if c == nil {
		return nil
	}
	return utils.ReleaseConcurrencyCap(ctx, c.rdb, key(businessID))
}

func key(businessID string) string {
	return "calls:active:" + businessID
}
