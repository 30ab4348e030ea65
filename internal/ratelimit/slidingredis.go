package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Decision is the outcome of one limiter check.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter implements a sliding window rate limiter backed by Redis sorted sets.
// Rejected events are not recorded, so callers that keep retrying regain
// access once their accepted events age out of the window.
type Limiter struct {
	Client *redis.Client
	Prefix string
	Now    func() time.Time
}

// Allow registers an event for key and reports whether it fits within max
// events per window.
func (l Limiter) Allow(ctx context.Context, key string, window time.Duration, max int) (Decision, error) {
	now := time.Now()
	if l.Now != nil {
		now = l.Now()
	}
	if l.Client == nil || max <= 0 || window <= 0 {
		return Decision{Allowed: true, Remaining: max, ResetAt: now.Add(window)}, nil
	}

	redisKey := l.Prefix + key
	member := strconv.FormatInt(now.UnixNano(), 10) + ":" + uuid.NewString()
	cutoff := strconv.FormatInt(now.Add(-window).UnixNano(), 10)

	pipe := l.Client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "-inf", "("+cutoff)
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixNano()), Member: member})
	countCmd := pipe.ZCard(ctx, redisKey)
	oldestCmd := pipe.ZRangeWithScores(ctx, redisKey, 0, 0)
	pipe.PExpire(ctx, redisKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{ResetAt: now.Add(window)}, err
	}

	resetAt := now.Add(window)
	if oldest := oldestCmd.Val(); len(oldest) > 0 {
		resetAt = time.Unix(0, int64(oldest[0].Score)).Add(window)
	}
	current := int(countCmd.Val())
	if current > max {
		if err := l.Client.ZRem(ctx, redisKey, member).Err(); err != nil {
			return Decision{ResetAt: resetAt}, err
		}
		return Decision{Allowed: false, Remaining: 0, ResetAt: resetAt}, nil
	}
	return Decision{Allowed: true, Remaining: max - current, ResetAt: resetAt}, nil
}
