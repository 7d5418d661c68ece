package middleware

import (
	"net/http"
	"strconv"

	"github.com/atmopics/share/common/ratelimit"
	"github.com/labstack/echo/v4"
)

// KeyFunc picks the bucket a request is counted against
type KeyFunc func(c echo.Context) string

// ClientIP keys requests by the client address echo resolved
func ClientIP(c echo.Context) string {
	return "ip:" + c.RealIP()
}

// RateLimitMiddleware rejects requests over the limiter's budget with 429.
// Limiter errors let the request through (fail open for availability).
func RateLimitMiddleware(limiter ratelimit.Limiter, key KeyFunc, logger ratelimit.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			result, err := limiter.Allow(c.Request().Context(), key(c))
			if err != nil {
				logger.Warn("rate limiter unavailable, allowing request", "path", c.Path(), "error", err)
				return next(c)
			}

			if !result.Allowed {
				c.Response().Header().Set("Retry-After", strconv.FormatInt(result.RetryAfterSeconds, 10))
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"error":   "rate_limit_exceeded",
					"message": "Too many preview requests. Please try again later.",
					"details": map[string]interface{}{
						"limit":               result.Limit,
						"retry_after_seconds": result.RetryAfterSeconds,
					},
				})
			}

			return next(c)
		}
	}
}
