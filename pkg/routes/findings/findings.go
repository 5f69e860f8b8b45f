package findings

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/azuminxx/simple-redger-sub000/pkg/keys"
	"github.com/azuminxx/simple-redger-sub000/pkg/models"
)

// Lister reads persisted findings
type Lister interface {
	ListBySearch(ctx context.Context, searchID string) ([]models.Finding, error)
	ListByIntegrationKey(ctx context.Context, integrationKey string, limit int) ([]models.Finding, error)
}

// Register registers finding routes
func Register(g *echo.Group) {
	g.GET("/findings", ListFindings)
}

// ListFindings returns findings by search_id or integration_key
func ListFindings(c echo.Context) error {
	ctx := c.Request().Context()

	ctx, repo, err := ectoinject.GetContext[Lister](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusServiceUnavailable, "findings are not being recorded")
	}

	if searchID := c.QueryParam("search_id"); searchID != "" {
		findings, err := repo.ListBySearch(ctx, searchID)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, findings)
	}

	if key := c.QueryParam("integration_key"); key != "" {
		if _, err := keys.ParseIntegrationKey(key); err != nil {
			return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		limit := 100
		if raw := c.QueryParam("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				return httperror.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
			}
			limit = n
		}
		findings, err := repo.ListByIntegrationKey(ctx, key, limit)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, findings)
	}

	return httperror.NewHTTPError(http.StatusBadRequest, "search_id or integration_key is required")
}
