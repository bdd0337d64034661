package approval

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const leaseKey = "templates:approval:run_lease"

// RunGuard serializes periodic approval runs across instances using a redis
// lease. A run that cannot take the lease is simply skipped; the next tick
// picks the work up.
type RunGuard struct {
	rdb      redis.UniversalClient
	ttl      time.Duration
	instance string
}

func NewRunGuard(rdb redis.UniversalClient, ttl time.Duration) *RunGuard {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RunGuard{
		rdb:      rdb,
		ttl:      ttl,
		instance: uuid.NewString(),
	}
}

// TryAcquire takes the lease if nobody holds it. A nil guard always
// acquires, so single-instance deployments can run without redis.
func (g *RunGuard) TryAcquire(ctx context.Context) (bool, error) {
	if g == nil || g.rdb == nil {
		return true, nil
	}
	return g.rdb.SetNX(ctx, leaseKey, g.instance, g.ttl).Result()
}

// Release gives the lease back early. Only the holder's value is deleted.
func (g *RunGuard) Release(ctx context.Context) {
	if g == nil || g.rdb == nil {
		return
	}
	const script = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`
	_ = g.rdb.Eval(ctx, script, []string{leaseKey}, g.instance).Err()
}
