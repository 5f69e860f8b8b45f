package middleware

import (
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	requestctx "github.com/azuminxx/simple-redger-sub000/pkg/context"
	"github.com/azuminxx/simple-redger-sub000/pkg/tracing"
)

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Message   string         `json:"message"`
	RequestID string         `json:"request_id"`
	SessionID string         `json:"session_id,omitempty"`
	TraceID   string         `json:"trace_id"`
	Meta      map[string]any `json:"meta"`
}

// Error renders handler errors as ErrorResponse. Validation failures become 400 with the
// offending fields listed in meta.
func Error(logger ectologger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		ctx := c.Request().Context()
		code, message, meta := classify(err)

		if code >= http.StatusInternalServerError {
			logger.WithContext(ctx).WithError(err).WithField("status", code).Error("API request failed")
		}
		if c.Response().Committed {
			return
		}

		_ = c.JSON(code, ErrorResponse{
			Message:   message,
			RequestID: requestctx.GetRequestID(ctx),
			SessionID: requestctx.GetSessionID(ctx),
			TraceID:   tracing.GetTraceID(ctx),
			Meta:      meta,
		})
	}
}

func classify(err error) (int, string, map[string]any) {
	var invalid validator.ValidationErrors
	var echoErr *echo.HTTPError

	switch {
	case httperror.IsHTTPError(err):
		httpErr := httperror.ToHTTPError(err)
		meta := map[string]any{}
		if httpErr.Meta != nil {
			meta = httpErr.Meta
		}
		return httperror.GetStatusCode(err), httpErr.Error(), meta
	case errors.As(err, &invalid):
		fields := make([]string, 0, len(invalid))
		for _, fe := range invalid {
			fields = append(fields, fe.Field())
		}
		return http.StatusBadRequest, "request failed validation", map[string]any{"fields": fields}
	case errors.As(err, &echoErr):
		message := http.StatusText(echoErr.Code)
		if msg, ok := echoErr.Message.(string); ok {
			message = msg
		}
		return echoErr.Code, message, map[string]any{}
	default:
		return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError), map[string]any{}
	}
}
