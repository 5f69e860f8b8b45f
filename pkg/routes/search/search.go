package search

import (
	"context"
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	requestctx "github.com/azuminxx/simple-redger-sub000/pkg/context"
	"github.com/azuminxx/simple-redger-sub000/pkg/fetcher"
	"github.com/azuminxx/simple-redger-sub000/pkg/search"
)

// Register registers search session routes
func Register(g *echo.Group) {
	g.POST("/sessions/:session/search", RunSearch)
	g.GET("/sessions/:session/records", ListRecords)
	g.DELETE("/sessions/:session", CloseSession)
}

// RecordsResponse is the displayed set of a session
type RecordsResponse struct {
	SessionID string `json:"session_id"`
	Total     int    `json:"total"`
	Records   any    `json:"records"`
}

// RunSearch runs a search on the session, creating the session on first use
func RunSearch(c echo.Context) error {
	sessionID := c.Param("session")
	ctx := requestctx.SetSessionID(c.Request().Context(), sessionID)
	c.SetRequest(c.Request().WithContext(ctx))

	var req search.Request
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx, validate, err := ectoinject.GetContext[*validator.Validate](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}
	if err := validate.Struct(req); err != nil {
		return err
	}

	ctx, registry, err := ectoinject.GetContext[*search.Registry](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}
	session, err := registry.Session(sessionID)
	if err != nil {
		return toHTTPError(err)
	}

	result, err := session.Search(ctx, req)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, result)
}

// ListRecords returns the session's displayed records
func ListRecords(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Param("session")

	_, registry, err := ectoinject.GetContext[*search.Registry](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}
	session, ok := registry.Lookup(sessionID)
	if !ok {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "session %s not found", sessionID)
	}

	records := session.Records()
	return c.JSON(http.StatusOK, RecordsResponse{
		SessionID: sessionID,
		Total:     len(records),
		Records:   records,
	})
}

// CloseSession cancels and forgets a session
func CloseSession(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Param("session")

	ctx, registry, err := ectoinject.GetContext[*search.Registry](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}
	if !registry.Close(sessionID) {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "session %s not found", sessionID)
	}

	ctx, logger, _ := ectoinject.GetContext[ectologger.Logger](ctx)
	if logger != nil {
		logger.WithContext(ctx).WithFields(map[string]any{"session_id": sessionID}).Info("Closed search session")
	}
	return c.NoContent(http.StatusNoContent)
}

func toHTTPError(err error) error {
	var tooLong *fetcher.QueryTooLongError
	var stageErr *search.StageError

	switch {
	case search.IsUsageError(err):
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, search.ErrSuperseded):
		return httperror.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, search.ErrTooManySessions):
		return httperror.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &tooLong):
		return httperror.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, context.Canceled):
		return httperror.NewHTTPError(http.StatusServiceUnavailable, "search cancelled")
	case errors.As(err, &stageErr):
		return httperror.NewHTTPError(http.StatusBadGateway, err.Error())
	default:
		return err
	}
}
