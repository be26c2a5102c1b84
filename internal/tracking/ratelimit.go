package tracking

import (
	"context"
	"strconv"
	"time"

	"github.com/AyushMusale/TripSense/internal/auth"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// RateLimiter is a fixed one-second window per key kept in Redis. INCR and
// EXPIRE run in one MULTI so a window key never outlives its TTL.
// Requests pass when Redis is unavailable.
type RateLimiter struct {
	rdb   *redis.Client
	rps   int
	burst int
	now   func() time.Time
}

func NewRateLimiter(rdb *redis.Client, rps, burst int) *RateLimiter {
	return &RateLimiter{rdb: rdb, rps: rps, burst: burst, now: time.Now}
}

func (rl *RateLimiter) Allow(ctx context.Context, key string) bool {
	if rl == nil || rl.rdb == nil || rl.rps <= 0 {
		return true
	}
	window := strconv.FormatInt(rl.now().Unix(), 10)
	k := "rl:track:" + key + ":" + window
	var incr *redis.IntCmd
	_, err := rl.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		pipe.Expire(ctx, k, 2*time.Second)
		return nil
	})
	if err != nil {
		return true
	}
	return int(incr.Val()) <= rl.rps+rl.burst
}

// Middleware limits per authenticated user, falling back to the client IP.
func (rl *RateLimiter) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key, err := auth.UserID(c)
		if err != nil {
			key = c.IP()
		}
		if !rl.Allow(c.UserContext(), key) {
			return fiber.NewError(fiber.StatusTooManyRequests, "rate limit exceeded")
		}
		return c.Next()
	}
}
