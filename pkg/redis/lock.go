package redis

import (
	"context"
	"fmt"
	"time"
)

// releaseScript deletes the lock only while it still carries the caller's
// token, so an expired holder cannot drop a lock someone else now owns.
const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// AcquireLock claims the named lock for ttl under owner.
func (c *Client) AcquireLock(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	if err := c.ready(); err != nil {
		return false, err
	}
	ok, err := c.cmd.SetNX(ctx, LockKey(name), owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	return ok, nil
}

// ReleaseLock frees the named lock if owner still holds it. The bool reports
// whether a key was deleted.
func (c *Client) ReleaseLock(ctx context.Context, name, owner string) (bool, error) {
	if err := c.ready(); err != nil {
		return false, err
	}
	n, err := c.cmd.Eval(ctx, releaseScript, []string{LockKey(name)}, owner).Int64()
	if err != nil {
		return false, fmt.Errorf("release lock %s: %w", name, err)
	}
	return n == 1, nil
}
