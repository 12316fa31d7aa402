package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/campus-gate/internal/config"
)

// tokenBucketScript takes one token from the bucket at KEYS[1].  Tokens
// refill continuously at refill/interval per millisecond, so a terminal
// that just ran dry waits only for the next whole token.  Returns
// {allowed, tokens left, ms until the next token}.
var tokenBucketScript = redis.NewScript(`
	local cap = tonumber(ARGV[2])
	local per_ms = tonumber(ARGV[3]) / tonumber(ARGV[4])
	local now = tonumber(ARGV[1])

	local tokens = tonumber(redis.call('HGET', KEYS[1], 't'))
	local seen = tonumber(redis.call('HGET', KEYS[1], 'ts'))
	if tokens == nil or seen == nil then
		tokens, seen = cap, now
	end
	tokens = math.min(cap, tokens + math.max(0, now - seen) * per_ms)

	local allowed, wait = 0, 0
	if tokens >= 1 then
		allowed = 1
		tokens = tokens - 1
	else
		wait = math.ceil((1 - tokens) / per_ms)
	end

	redis.call('HSET', KEYS[1], 't', tostring(tokens), 'ts', now)
	redis.call('EXPIRE', KEYS[1], tonumber(ARGV[5]))
	return { allowed, math.floor(tokens), wait }
`)

// NewTokenBucket limits how fast one terminal can submit ledger
// mutations.  Redis errors fail open: the request is let through.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := buildRateKey(cfg, c)
			args := []interface{}{
				time.Now().UnixMilli(),
				cfg.Capacity,
				cfg.RefillTokens,
				cfg.RefillInterval.Milliseconds(),
				int64(cfg.TTL / time.Second),
			}
			vals, err := tokenBucketScript.Run(c.Request().Context(), rdb, []string{key}, args...).Result()
			if err != nil {
				c.Logger().Debugf("ratelimit: %s: %v", key, err)
				return next(c)
			}
			arr, ok := vals.([]interface{})
			if !ok || len(arr) != 3 {
				return next(c)
			}
			allowed := asInt64(arr[0]) == 1
			remaining := asInt64(arr[1])
			retryMs := asInt64(arr[2])

			c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
			c.Response().Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
			if allowed {
				return next(c)
			}
			secs := int((retryMs + 999) / 1000)
			c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
			if cfg.Debug {
				c.Logger().Infof("ratelimit: blocked %s for %dms", key, retryMs)
			}
			return c.JSON(http.StatusTooManyRequests, echo.Map{
				"error":       "rate limit exceeded",
				"retry_after": secs,
			})
		}
	}
}

func asInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case string:
		n, _ := strconv.ParseInt(t, 10, 64)
		return n
	}
	return 0
}

// buildRateKey joins the identity parts named by cfg.KeyStrategy, an
// underscore separated list of ip, user and route.
func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
	strategy := strings.ToLower(cfg.KeyStrategy)
	if strategy == "" {
		strategy = "ip_user_route"
	}
	parts := []string{cfg.Prefix}
	for _, kind := range strings.Split(strategy, "_") {
		switch kind {
		case "ip":
			ip := c.RealIP()
			if ip == "" {
				ip = "unknown"
			}
			parts = append(parts, "ip", ip)
		case "user":
			parts = append(parts, "user", currentUserID(c))
		case "route":
			parts = append(parts, "route", c.Request().Method+" "+c.Path())
		}
	}
	return strings.Join(parts, ":")
}
