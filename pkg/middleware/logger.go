package middleware

import (
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	requestctx "github.com/azuminxx/simple-redger-sub000/pkg/context"
)

// Logger writes one access log entry per request: warn for 4xx, error for 5xx.
func Logger(logger ectologger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			if err := next(c); err != nil {
				c.Error(err)
			}

			req := c.Request()
			ctx := req.Context()
			status := c.Response().Status
			log := logger.WithContext(ctx).WithFields(map[string]any{
				"request_id": requestctx.GetRequestID(ctx),
				"session_id": requestctx.GetSessionID(ctx),
				"user_id":    requestctx.GetUserID(ctx),
				"method":     req.Method,
				"route":      c.Path(),
				"uri":        req.RequestURI,
				"status":     status,
				"latency_ms": time.Since(start).Milliseconds(),
				"bytes_out":  c.Response().Size,
				"remote_ip":  c.RealIP(),
			})

			switch {
			case status >= http.StatusInternalServerError:
				log.Error("Request failed")
			case status >= http.StatusBadRequest:
				log.Warn("Request rejected")
			default:
				log.Info("Request served")
			}
			return nil
		}
	}
}
