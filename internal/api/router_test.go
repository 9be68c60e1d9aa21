package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRouter_HealthEndpoint(t *testing.T) {
	router := NewRouter(RouterConfig{AllowedOrigins: []string{"*"}})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "ok", resp["status"])
}

func TestNewRouter_CustomHealthHandler(t *testing.T) {
	health := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "healthy", "version": "0.1.0"})
	})

	router := NewRouter(RouterConfig{AllowedOrigins: []string{"*"}, HealthHandler: health})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "healthy", resp["status"])
}

func TestNewRouter_HTTPRoutesMatchByRegexAndMethod(t *testing.T) {
	called := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	router := NewRouter(RouterConfig{
		AllowedOrigins: []string{"*"},
		HTTPRoutes: []RouteConfig{
			{Pattern: `^/topics/[\w-]+/stats$`, Method: http.MethodGet, Handler: handler},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/topics/orders-v1/stats", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNewRouter_HTTPRoutesRejectWrongMethod(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	router := NewRouter(RouterConfig{
		AllowedOrigins: []string{"*"},
		HTTPRoutes: []RouteConfig{
			{Pattern: `^/topics/[\w-]+/stats$`, Method: http.MethodGet, Handler: handler},
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/topics/orders-v1/stats", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.NotEqual(t, http.StatusOK, w.Code)
}

func TestNewRouter_WebSocketRouteIsMounted(t *testing.T) {
	called := false
	ws := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusSwitchingProtocols)
	})

	router := NewRouter(RouterConfig{
		AllowedOrigins:   []string{"*"},
		WebSocketPath:    "/ws",
		WebSocketHandler: ws,
	})

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.True(t, called)
}

func TestNewRouter_StaticFileServing(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>home</html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log(1)"), 0o644))

	router := NewRouter(RouterConfig{
		AllowedOrigins: []string{"*"},
		WebDir:         dir,
		IndexFile:      "index.html",
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "home")

	req = httptest.NewRequest(http.MethodGet, "/app.js", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "console.log")
}

func TestNewRouter_CORSPreflight(t *testing.T) {
	router := NewRouter(RouterConfig{AllowedOrigins: []string{"https://busd.example.com"}})

	req := httptest.NewRequest(http.MethodOptions, "/health", nil)
	req.Header.Set("Origin", "https://busd.example.com")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://busd.example.com", w.Header().Get("Access-Control-Allow-Origin"))
}
