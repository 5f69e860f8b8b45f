package cache

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/azuminxx/simple-redger-sub000/pkg/models"
	"github.com/azuminxx/simple-redger-sub000/pkg/rowcache"
	"github.com/azuminxx/simple-redger-sub000/pkg/search"
)

// Register registers routes over a session's raw-row cache
func Register(g *echo.Group) {
	g.GET("/sessions/:session/cache/:store/:key", GetRow)
	g.POST("/sessions/:session/cache/:store/:key/diff", DiffRow)
}

// DiffRequest carries edited field values
type DiffRequest struct {
	Fields map[string]string `json:"fields"`
}

// DiffResponse lists what a write-back would change
type DiffResponse struct {
	Store    models.Store           `json:"store"`
	Key      string                 `json:"key"`
	RowID    int64                  `json:"row_id"`
	Revision int64                  `json:"revision"`
	Changes  []rowcache.FieldChange `json:"changes"`
}

// GetRow returns the cached row for a store and primary key
func GetRow(c echo.Context) error {
	row, err := lookup(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, row)
}

// DiffRow compares edited values with the cached row
func DiffRow(c echo.Context) error {
	var req DiffRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	row, err := lookup(c)
	if err != nil {
		return err
	}

	changes := rowcache.Diff(*row, req.Fields)
	if changes == nil {
		changes = []rowcache.FieldChange{}
	}
	return c.JSON(http.StatusOK, DiffResponse{
		Store:    row.Store,
		Key:      c.Param("key"),
		RowID:    row.ID,
		Revision: row.Revision,
		Changes:  changes,
	})
}

func lookup(c echo.Context) (*models.RawRow, error) {
	ctx := c.Request().Context()
	store, err := models.ParseStore(c.Param("store"))
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sessionID, key := c.Param("session"), c.Param("key")

	ctx, registry, err := ectoinject.GetContext[*search.Registry](ctx)
	if err != nil {
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}
	session, ok := registry.Lookup(sessionID)
	if !ok {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "session %s not found", sessionID)
	}
	cache := session.Cache()
	if cache == nil {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "session %s keeps no row cache", sessionID)
	}

	row, ok, err := cache.Get(ctx, store, key)
	if err != nil {
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to read cache: %v", err)
	}
	if !ok {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "no cached %s row for %s", store, key)
	}
	return row, nil
}
