package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// RequestID assigns each request a unique ID, stored in the echo context
// under "request_id" and echoed back in the X-Request-ID response header.
// An incoming X-Request-ID header is honored so IDs propagate across
// services.
// requestID reads the ID stored by RequestID. Empty when the middleware
// did not run, which only happens in tests exercising a bare context.
func requestID(c echo.Context) string {
	rid, _ := c.Get("request_id").(string)
	return rid
}

func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rid := c.Request().Header.Get(echo.HeaderXRequestID)
			if rid == "" {
				rid = uuid.NewString()
			}
			c.Set("request_id", rid)
			c.Response().Header().Set(echo.HeaderXRequestID, rid)
			return next(c)
		}
	}
}
