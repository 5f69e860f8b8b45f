package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(e *echo.Echo, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	checker := NewChecker("1.2.3")
	checker.AddDependency("redis", PingFunc(func(context.Context) error { return nil }))
	e := echo.New()
	checker.RegisterRoutes(e)

	rec := get(e, "/api/v1/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "1.2.3", status.Version)
	require.Contains(t, status.Checks, "redis")
	assert.Equal(t, "healthy", status.Checks["redis"].Status)
}

func TestHealthUnhealthyDependency(t *testing.T) {
	checker := NewChecker("dev")
	checker.AddDependency("redis", PingFunc(func(context.Context) error { return nil }))
	checker.AddDependency("postgres", PingFunc(func(context.Context) error { return errors.New("connection refused") }))
	e := echo.New()
	checker.RegisterRoutes(e)

	rec := get(e, "/api/v1/health")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "unhealthy", status.Status)
	assert.Equal(t, "connection refused", status.Checks["postgres"].Message)
	assert.Equal(t, "healthy", status.Checks["redis"].Status)
}

func TestLiveAndReady(t *testing.T) {
	checker := NewChecker("dev")
	e := echo.New()
	checker.RegisterRoutes(e)

	assert.Equal(t, http.StatusOK, get(e, "/api/v1/health/live").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(e, "/api/v1/health/ready").Code)

	checker.SetReady(true)
	assert.Equal(t, http.StatusOK, get(e, "/api/v1/health/ready").Code)

	checker.SetReady(false)
	assert.Equal(t, http.StatusServiceUnavailable, get(e, "/api/v1/health/ready").Code)
}
