package api

import (
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gorilla/mux"

	"github.com/OmarEhab007/busd/internal/api/middleware"
)

// RouteConfig describes one entry of the server wrapper's http_routes
// option: a regex path pattern, an HTTP method, and the handler to run
// when both match.
type RouteConfig struct {
	Pattern string
	Method  string
	Handler http.Handler
}

// RouterConfig configures the HTTP server wrapper described in spec §6:
// static file serving, a caller-supplied list of regex routes, and the
// WebSocket upgrade endpoint.
type RouterConfig struct {
	AllowedOrigins []string

	// WebDir is the root for static file serving; IndexFile is served
	// when a request path ends in "/".
	WebDir    string
	IndexFile string

	// HTTPRoutes is the http_routes config option: additional regex
	// routes layered on top of static file serving.
	HTTPRoutes []RouteConfig

	// WebSocketPath mounts WebSocketHandler for the upgrade endpoint.
	// Empty disables the WebSocket route.
	WebSocketPath    string
	WebSocketHandler http.Handler

	// HealthHandler serves a liveness/readiness probe; defaults to a
	// minimal 200 OK when nil.
	HealthHandler http.Handler
}

// NewRouter builds the HTTP mux: global middleware (recovery, logging,
// CORS, body limit), the health check, the configured http_routes, the
// WebSocket upgrade route, and static file serving as the catch-all.
//
// There is no authentication or tenant middleware: the bus has no
// notion of users or tenants, so nothing downstream needs the request
// context populated with either.
func NewRouter(cfg RouterConfig) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.RecoveryMiddleware)
	router.Use(middleware.LoggingMiddleware)
	router.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))
	router.Use(middleware.BodyLimitMiddleware)

	health := cfg.HealthHandler
	if health == nil {
		health = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			JSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
	}
	// OPTIONS is listed so CORS preflight requests match the route and
	// reach the middleware chain instead of mux's 405 handler.
	router.Handle("/health", health).Methods(http.MethodGet, http.MethodOptions)

	for _, rt := range cfg.HTTPRoutes {
		route := router.NewRoute().Handler(rt.Handler)
		if rt.Pattern != "" {
			route = route.MatcherFunc(regexPathMatcher(rt.Pattern))
		}
		if rt.Method != "" {
			route = route.Methods(rt.Method)
		}
	}

	if cfg.WebSocketPath != "" && cfg.WebSocketHandler != nil {
		router.Handle(cfg.WebSocketPath, cfg.WebSocketHandler)
	}

	if cfg.WebDir != "" {
		router.PathPrefix("/").Handler(staticFileHandler(cfg.WebDir, cfg.IndexFile))
	}

	return router
}

// regexPathMatcher returns a mux.MatcherFunc that matches a request's
// URL path against pattern, implementing the http_routes regex option
// without relying on gorilla/mux's own {var:regex} path syntax.
func regexPathMatcher(pattern string) mux.MatcherFunc {
	re := regexp.MustCompile(pattern)
	return func(r *http.Request, _ *mux.RouteMatch) bool {
		return re.MatchString(r.URL.Path)
	}
}

// staticFileHandler serves files under root, falling back to
// filepath.Join(root, indexFile) for any request path ending in "/".
func staticFileHandler(root, indexFile string) http.Handler {
	if indexFile == "" {
		indexFile = "index.html"
	}
	fileServer := http.FileServer(http.Dir(root))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			name := filepath.Join(root, filepath.Clean(r.URL.Path), indexFile)
			if _, err := os.Stat(name); err == nil {
				http.ServeFile(w, r, name)
				return
			}
		}
		fileServer.ServeHTTP(w, r)
	})
}
