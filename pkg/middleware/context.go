package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	requestctx "github.com/azuminxx/simple-redger-sub000/pkg/context"
)

// HeaderSessionID lets clients name the search session outside the URL
const HeaderSessionID = "X-Session-ID"

// Context assigns every request an ID, echoed back in X-Request-ID, and picks up the
// session header.
func Context() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, requestID)

			ctx := requestctx.SetRequestID(req.Context(), requestID)
			if sessionID := req.Header.Get(HeaderSessionID); sessionID != "" {
				ctx = requestctx.SetSessionID(ctx, sessionID)
			}

			c.SetRequest(req.WithContext(ctx))
			return next(c)
		}
	}
}
