package middleware

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimitMiddleware allows limit requests per window per user (or per IP
// before authentication). Counters live in redis so all instances share them;
// with rdb == nil an in-process limiter is used instead.
func RateLimitMiddleware(rdb *redis.Client, limit int, window time.Duration, log *zap.Logger) fiber.Handler {
	if rdb == nil {
		return limiter.New(limiter.Config{
			Max:          limit,
			Expiration:   window,
			KeyGenerator: rateLimitKey,
			LimitReached: func(c *fiber.Ctx) error {
				return abort(c, fiber.StatusTooManyRequests, "rate limit exceeded")
			},
		})
	}

	return func(c *fiber.Ctx) error {
		key := fmt.Sprintf("rl:%s:%s", c.Route().Path, rateLimitKey(c))
		ctx := c.UserContext()

		var incr *redis.IntCmd
		_, err := rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			incr = pipe.Incr(ctx, key)
			pipe.ExpireNX(ctx, key, window)
			return nil
		})
		if err != nil {
			log.Warn("rate limit check failed", zap.Error(err))
			return c.Next() // fail open
		}

		if incr.Val() > int64(limit) {
			c.Set(fiber.HeaderRetryAfter, fmt.Sprint(int(window.Seconds())))
			return abort(c, fiber.StatusTooManyRequests, "rate limit exceeded")
		}

		return c.Next()
	}
}

func rateLimitKey(c *fiber.Ctx) string {
	if tgID := GetTelegramUserID(c); tgID != 0 {
		return fmt.Sprintf("tg:%d", tgID)
	}
	return "ip:" + c.IP()
}
