// Package middleware holds the echo middleware for request logging,
// security headers, authentication and authorization.
package middleware

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"lms/internal/logging"
)

// RequestContext stores a logger tagged with the request ID in the request
// context. It must run after echo's RequestID middleware.
func RequestContext(base *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Response().Header().Get(echo.HeaderXRequestID)
			if id == "" {
				id = c.Request().Header.Get(echo.HeaderXRequestID)
			}
			l := base.With("request_id", id)
			req := c.Request()
			c.SetRequest(req.WithContext(logging.WithLogger(req.Context(), l)))
			return next(c)
		}
	}
}

// AccessLog writes one entry per request through the request logger.
func AccessLog() echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogStatus:    true,
		LogMethod:    true,
		LogURIPath:   true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			l := logging.FromContext(c.Request().Context())
			attrs := []any{
				"method", v.Method,
				"path", v.URIPath,
				"status", v.Status,
				"latency_ms", v.Latency.Milliseconds(),
				"remote_ip", v.RemoteIP,
			}
			switch {
			case v.Status >= 500:
				l.Error("request", attrs...)
			case v.Status >= 400:
				l.Warn("request", attrs...)
			default:
				l.Info("request", attrs...)
			}
			return nil
		},
	})
}
