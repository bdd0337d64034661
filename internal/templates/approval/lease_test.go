package approval

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) redis.UniversalClient {
	t.Helper()
	srv := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: srv.Addr()})
}

func TestRunGuardSerializesInstances(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()

	first := NewRunGuard(rdb, time.Minute)
	second := NewRunGuard(rdb, time.Minute)

	acquired, err := first.TryAcquire(ctx)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if !acquired {
		t.Fatal("first instance should take the lease")
	}

	acquired, err = second.TryAcquire(ctx)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if acquired {
		t.Fatal("second instance should not take a held lease")
	}

	first.Release(ctx)

	acquired, err = second.TryAcquire(ctx)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	if !acquired {
		t.Fatal("lease should be free after release")
	}
}

func TestRunGuardReleaseOnlyDeletesOwnLease(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()

	holder := NewRunGuard(rdb, time.Minute)
	intruder := NewRunGuard(rdb, time.Minute)

	if acquired, err := holder.TryAcquire(ctx); err != nil || !acquired {
		t.Fatalf("holder acquire: acquired=%v err=%v", acquired, err)
	}

	// A non-holder releasing must not free the holder's lease.
	intruder.Release(ctx)

	if acquired, err := intruder.TryAcquire(ctx); err != nil || acquired {
		t.Fatalf("lease should still be held: acquired=%v err=%v", acquired, err)
	}
}

func TestRunGuardNilAlwaysAcquires(t *testing.T) {
	var guard *RunGuard

	acquired, err := guard.TryAcquire(context.Background())
	if err != nil {
		t.Fatalf("nil guard acquire: %v", err)
	}
	if !acquired {
		t.Fatal("nil guard should always acquire")
	}
	guard.Release(context.Background())
}
