package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-yaml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/fiberkernel/internal/infrastructure/config"
	"github.com/GriffinCanCode/fiberkernel/internal/kernel"
)

func newTestServer(t *testing.T) (*Server, *kernel.Kernel) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	k, err := kernel.New(nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, k.Shutdown(ctx))
	})
	return New(config.Default().Metrics, k, nil), k
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestRoot(t *testing.T) {
	s, k := newTestServer(t)
	w := get(t, s, "/")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "fiberd", body["service"])
	assert.Equal(t, k.BootID().String(), body["boot_id"])
}

func TestHealthReportsHalt(t *testing.T) {
	s, k := newTestServer(t)
	assert.Equal(t, http.StatusOK, get(t, s, "/health").Code)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, k.Shutdown(ctx))
	assert.Equal(t, http.StatusServiceUnavailable, get(t, s, "/health").Code)
}

func TestTree(t *testing.T) {
	s, k := newTestServer(t)

	w := get(t, s, "/debug/tree")
	require.Equal(t, http.StatusOK, w.Code)
	var snap kernel.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, k.RootJob().Koid(), snap.Root.Koid)

	w = get(t, s, "/debug/tree?format=yaml")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/yaml", w.Header().Get("Content-Type"))
	var fromYAML kernel.Snapshot
	require.NoError(t, yaml.Unmarshal(w.Body.Bytes(), &fromYAML))
	assert.Equal(t, "root", fromYAML.Root.Name)
}

func TestTrace(t *testing.T) {
	s, _ := newTestServer(t)

	w := get(t, s, "/debug/trace?tag=boot")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	get(t, s, "/health")

	w := get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	text := w.Body.String()
	assert.True(t, strings.Contains(text, "fiber_handles_live"))
	assert.True(t, strings.Contains(text, `fiber_debug_http_requests_total{method="GET",path="/health",status="200"} 1`))

	assert.Equal(t, http.StatusOK, get(t, s, "/metrics/json").Code)
	assert.Equal(t, http.StatusNotFound, get(t, s, "/nope").Code)
}

func TestCORS(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/debug/tree", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestTraceCompressed(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/debug/trace", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Vary"), "Accept-Encoding")
}
