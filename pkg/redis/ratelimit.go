package redis

import (
	"context"
	"time"
)

// FixedWindowAllow counts a hit against scope and reports whether the count is
// still within limit for the current window. EXPIRE NX runs on every hit so a
// crash between INCR and EXPIRE cannot leave a counter without a TTL.
func (c *Client) FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error) {
	if err := c.ready(); err != nil {
		return false, 0, err
	}
	key := RateLimitKey(scope)
	count, err := c.cmd.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, err
	}
	if window > 0 {
		if err := c.cmd.ExpireNX(ctx, key, window).Err(); err != nil {
			return false, count, err
		}
	}
	return count <= limit, count, nil
}
