package middleware

import (
	"context"

	"github.com/atmopics/share/common/clients"
	"github.com/atmopics/share/common/logger"
	"github.com/labstack/echo/v4"
)

// RequestContext copies the request id assigned by echo's RequestID
// middleware into the request context, for log lines and outbound calls
func RequestContext() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Response().Header().Get(echo.HeaderXRequestID)
			if id == "" {
				id = c.Request().Header.Get(echo.HeaderXRequestID)
			}
			if id != "" {
				ctx := context.WithValue(c.Request().Context(), logger.RequestIDKey, id)
				ctx = clients.WithRequestID(ctx, id)
				c.SetRequest(c.Request().WithContext(ctx))
			}
			return next(c)
		}
	}
}
