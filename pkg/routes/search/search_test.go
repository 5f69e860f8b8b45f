package search

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azuminxx/simple-redger-sub000/pkg/catalog"
	"github.com/azuminxx/simple-redger-sub000/pkg/fetcher"
	"github.com/azuminxx/simple-redger-sub000/pkg/inject"
	"github.com/azuminxx/simple-redger-sub000/pkg/merging"
	"github.com/azuminxx/simple-redger-sub000/pkg/middleware"
	"github.com/azuminxx/simple-redger-sub000/pkg/models"
	"github.com/azuminxx/simple-redger-sub000/pkg/recordstore"
	"github.com/azuminxx/simple-redger-sub000/pkg/rowcache"
	"github.com/azuminxx/simple-redger-sub000/pkg/search"
)

// capturedLogs keeps every log entry written during a test.
type capturedLogs struct {
	mu      sync.Mutex
	entries []ectologger.EctoLogMessage
}

func (l *capturedLogs) log(msg ectologger.EctoLogMessage) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, msg)
}

// field returns a field of the last entry logged with message.
func (l *capturedLogs) field(message, key string) any {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].Message == message {
			return l.entries[i].Fields[key]
		}
	}
	return nil
}

func setup(t *testing.T) (*echo.Echo, *capturedLogs) {
	t.Helper()
	logs := &capturedLogs{}
	logger := ectologger.NewEctoLogger(logs.log)

	client := recordstore.NewMemoryClient()
	client.Add(models.StoreSeat, recordstore.Record{ID: 1, Fields: map[string]string{"SeatNo": "101", "PCNo": "PC9"}})
	client.Add(models.StorePC, recordstore.Record{ID: 7, Fields: map[string]string{"PCNo": "PC9", "SeatNo": "101"}})

	cat := catalog.Default()
	fetch := fetcher.New(client, cat, nil, fetcher.DefaultConfig(), logger)
	engine := search.NewEngine(fetch, cat, merging.NewEngine(logger), search.Config{}, logger)
	registry := search.NewRegistry(engine, rowcache.MemoryProvider(), nil, search.RegistryConfig{}, logger)

	containerID := uuid.NewString()
	container, err := inject.NewContainer(containerID, logger)
	require.NoError(t, err)
	require.NoError(t, inject.Register(container, registry))
	require.NoError(t, inject.Register(container, validator.New()))

	e := echo.New()
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(middleware.Context())
	e.Use(middleware.Container(containerID))
	e.Use(middleware.Logger(logger))
	Register(e.Group("/api/v1"))
	return e, logs
}

func do(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestSearchAndRecords(t *testing.T) {
	e, _ := setup(t)

	rec := do(e, http.MethodPost, "/api/v1/sessions/s1/search", `{"filter": {"SeatNo": "101"}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))

	var result search.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 1, result.Total)
	require.Len(t, result.Records, 1)
	assert.Equal(t, `SeatNo="101"|PCNo="PC9"`, result.Records[0].IntegrationKey)

	rec = do(e, http.MethodGet, "/api/v1/sessions/s1/records", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var records struct {
		SessionID string `json:"session_id"`
		Total     int    `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	assert.Equal(t, "s1", records.SessionID)
	assert.Equal(t, 1, records.Total)

	rec = do(e, http.MethodPost, "/api/v1/sessions/s1/search", `{"filter": {"SeatNo": "101"}, "append": true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 1, result.Dropped)
}

func TestSearchBadRequests(t *testing.T) {
	e, _ := setup(t)

	tests := []struct {
		name string
		body string
	}{
		{name: "malformed body", body: `{"filter":`},
		{name: "missing filter", body: `{}`},
		{name: "blank filter", body: `{"filter": {"SeatNo": " "}}`},
		{name: "unknown field", body: `{"filter": {"Colour": "red"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(e, http.MethodPost, "/api/v1/sessions/s1/search", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

			var body middleware.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body.Message)
			assert.NotEmpty(t, body.RequestID)
		})
	}
}

func TestRecordsAndCloseUnknownSession(t *testing.T) {
	e, _ := setup(t)

	assert.Equal(t, http.StatusNotFound, do(e, http.MethodGet, "/api/v1/sessions/nope/records", "").Code)
	assert.Equal(t, http.StatusNotFound, do(e, http.MethodDelete, "/api/v1/sessions/nope", "").Code)

	require.Equal(t, http.StatusOK, do(e, http.MethodPost, "/api/v1/sessions/s1/search", `{"filter": {"SeatNo": "101"}}`).Code)
	assert.Equal(t, http.StatusNoContent, do(e, http.MethodDelete, "/api/v1/sessions/s1", "").Code)
	assert.Equal(t, http.StatusNotFound, do(e, http.MethodGet, "/api/v1/sessions/s1/records", "").Code)
}

func TestSearchAccessLogCarriesSession(t *testing.T) {
	e, logs := setup(t)

	rec := do(e, http.MethodPost, "/api/v1/sessions/desk-4/search", `{"filter": {"SeatNo": "101"}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "desk-4", logs.field("Request served", "session_id"))

	rec = do(e, http.MethodPost, "/api/v1/sessions/desk-5/search", `{}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "desk-5", logs.field("Request rejected", "session_id"))

	var body middleware.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "desk-5", body.SessionID)
}

func TestToHTTPError(t *testing.T) {
	other := errors.New("boom")

	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "empty filter", err: search.ErrEmptyFilter, status: http.StatusBadRequest},
		{name: "unknown field", err: search.ErrUnknownFilterField, status: http.StatusBadRequest},
		{name: "superseded", err: search.ErrSuperseded, status: http.StatusConflict},
		{name: "registry full", err: search.ErrTooManySessions, status: http.StatusServiceUnavailable},
		{name: "query too long", err: &search.StageError{Stage: search.StageRelational, Err: &fetcher.QueryTooLongError{}}, status: http.StatusUnprocessableEntity},
		{name: "cancelled", err: &search.StageError{Stage: search.StageDirect, Err: context.Canceled}, status: http.StatusServiceUnavailable},
		{name: "stage failure", err: &search.StageError{Stage: search.StageDirect, Err: other}, status: http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := toHTTPError(tt.err)
			require.True(t, httperror.IsHTTPError(err))
			assert.Equal(t, tt.status, httperror.GetStatusCode(err))
		})
	}

	assert.Equal(t, other, toHTTPError(other))
}
