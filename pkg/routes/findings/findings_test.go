package findings

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azuminxx/simple-redger-sub000/pkg/inject"
	"github.com/azuminxx/simple-redger-sub000/pkg/middleware"
	"github.com/azuminxx/simple-redger-sub000/pkg/models"
)

type fakeLister struct {
	searchID string
	key      string
	limit    int
	err      error
}

func (f *fakeLister) ListBySearch(_ context.Context, searchID string) ([]models.Finding, error) {
	f.searchID = searchID
	return []models.Finding{{SearchID: searchID, Kind: models.FindingInconsistent}}, f.err
}

func (f *fakeLister) ListByIntegrationKey(_ context.Context, key string, limit int) ([]models.Finding, error) {
	f.key = key
	f.limit = limit
	return []models.Finding{}, f.err
}

func serve(t *testing.T, lister Lister, target string) *httptest.ResponseRecorder {
	t.Helper()
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})

	containerID := uuid.NewString()
	container, err := inject.NewContainer(containerID, logger)
	require.NoError(t, err)
	if lister != nil {
		require.NoError(t, inject.Register(container, lister))
	}

	e := echo.New()
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(middleware.Container(containerID))
	Register(e.Group("/api/v1"))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

// seatKey is SeatNo="101", query-escaped.
const seatKey = "SeatNo%3D%22101%22"

func TestListBySearch(t *testing.T) {
	lister := &fakeLister{}
	rec := serve(t, lister, "/api/v1/findings?search_id=abc")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc", lister.searchID)
	assert.Contains(t, rec.Body.String(), `"search_id":"abc"`)
}

func TestListByIntegrationKey(t *testing.T) {
	lister := &fakeLister{}
	rec := serve(t, lister, `/api/v1/findings?integration_key=SeatNo%3D%22101%22&limit=5`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `SeatNo="101"`, lister.key)
	assert.Equal(t, 5, lister.limit)

	rec = serve(t, lister, "/api/v1/findings?integration_key="+seatKey)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 100, lister.limit)
}

func TestListBadRequests(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, serve(t, &fakeLister{}, "/api/v1/findings").Code)
	assert.Equal(t, http.StatusBadRequest, serve(t, &fakeLister{}, "/api/v1/findings?integration_key="+seatKey+"&limit=0").Code)
	assert.Equal(t, http.StatusBadRequest, serve(t, &fakeLister{}, "/api/v1/findings?integration_key="+seatKey+"&limit=ten").Code)
}

func TestListRejectsMalformedKeys(t *testing.T) {
	lister := &fakeLister{}
	for _, key := range []string{"x", "Colour%3D%22red%22", "SeatNo%3D101"} {
		assert.Equal(t, http.StatusBadRequest, serve(t, lister, "/api/v1/findings?integration_key="+key).Code, key)
	}
	assert.Empty(t, lister.key)
}

func TestListWithoutRecording(t *testing.T) {
	assert.Equal(t, http.StatusServiceUnavailable, serve(t, nil, "/api/v1/findings?search_id=abc").Code)
}

func TestListRepositoryError(t *testing.T) {
	lister := &fakeLister{err: httperror.NewHTTPError(http.StatusInternalServerError, "db down")}
	assert.Equal(t, http.StatusInternalServerError, serve(t, lister, "/api/v1/findings?search_id=abc").Code)

	lister = &fakeLister{err: errors.New("plain")}
	assert.Equal(t, http.StatusInternalServerError, serve(t, lister, "/api/v1/findings?search_id=abc").Code)
}
