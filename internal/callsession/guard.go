package callsession

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"sales-dialer/pkg/utils"
)

// Guard enforces one active attempt per agent beyond a single process,
// e.g. the same agent signed in from two consoles.
type Guard interface {
	Acquire(ctx context.Context, agentID, attemptID string) (bool, error)
	Release(ctx context.Context, agentID, attemptID string) error
}

// NopGuard relies on the in-process phase check alone.
type NopGuard struct{}

func (NopGuard) Acquire(context.Context, string, string) (bool, error) { return true, nil }
func (NopGuard) Release(context.Context, string, string) error         { return nil }

// LeaseGuard holds a Redis lease per agent for the lifetime of an attempt.
// The TTL bounds how long a crashed process can block the agent.
type LeaseGuard struct {
	rdb    redis.Scripter
	ttl    time.Duration
	prefix string
}

func NewLeaseGuard(rdb redis.Scripter, ttl time.Duration) *LeaseGuard {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &LeaseGuard{rdb: rdb, ttl: ttl, prefix: "dialer:active_call:"}
}

func (g *LeaseGuard) Acquire(ctx context.Context, agentID, attemptID string) (bool, error) {
	return utils.AcquireLease(ctx, g.rdb, g.prefix+agentID, attemptID, g.ttl)
}

func (g *LeaseGuard) Release(ctx context.Context, agentID, attemptID string) error {
	return utils.ReleaseLease(ctx, g.rdb, g.prefix+agentID, attemptID)
}
