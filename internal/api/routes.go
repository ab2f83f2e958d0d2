package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"

	"staffhub/internal/models"
	"staffhub/internal/sanitize"
	"staffhub/internal/version"
)

// RouteOption configures optional route behavior.
type RouteOption func(*routeConfig)

type routeConfig struct {
	otelService string
	rateLimiter func(http.Handler) http.Handler
	minVersion  *version.Requirement
}

// WithOTelMiddleware adds OpenTelemetry HTTP instrumentation middleware.
func WithOTelMiddleware(serviceName string) RouteOption {
	return func(c *routeConfig) { c.otelService = serviceName }
}

// WithRateLimiter throttles every request before it reaches a handler.
func WithRateLimiter(middleware func(http.Handler) http.Handler) RouteOption {
	return func(c *routeConfig) { c.rateLimiter = middleware }
}

// WithClientRequirement refuses clients reporting a version below req. A nil
// req accepts everyone.
func WithClientRequirement(req *version.Requirement) RouteOption {
	return func(c *routeConfig) { c.minVersion = req }
}

// SetupRoutes builds the API router and wraps it in the middleware every
// response passes through, unmatched routes and rejections included.
func SetupRoutes(handlers *Handlers, config *models.Config, opts ...RouteOption) http.Handler {
	var rc routeConfig
	for _, opt := range opts {
		opt(&rc)
	}

	router := mux.NewRouter()
	if rc.otelService != "" {
		router.Use(otelmux.Middleware(rc.otelService,
			otelmux.WithFilter(func(r *http.Request) bool {
				return r.URL.Path != "/health" &&
					r.URL.Path != "/api/v1/health" &&
					r.URL.Path != "/api/v1/openapi.yaml" &&
					r.URL.Path != "/api/v1/docs"
			}),
		))
	}

	router.HandleFunc("/health", handlers.HealthCheck).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/health", handlers.HealthCheck).Methods("GET")
	api.HandleFunc("/openapi.yaml", handlers.ServeOpenAPISpec).Methods("GET")
	api.HandleFunc("/docs", handlers.ServeSwaggerUI).Methods("GET")

	api.HandleFunc("/auth/register", handlers.Register).Methods("POST")
	api.HandleFunc("/auth/login", handlers.Login).Methods("POST")

	authed := api.PathPrefix("").Subrouter()
	authed.Use(authMiddleware(handlers.service))

	authed.HandleFunc("/auth/me", handlers.Me).Methods("GET")
	authed.HandleFunc("/profile", handlers.GetProfile).Methods("GET")
	authed.HandleFunc("/profile", handlers.UpdateProfile).Methods("PUT")
	authed.HandleFunc("/profiles", handlers.ListProfiles).Methods("GET")

	authed.HandleFunc("/users", handlers.ListUsers).Methods("GET")
	authed.HandleFunc("/users/me", handlers.UpdateMe).Methods("PUT")
	authed.HandleFunc("/admin/users/{id}/admin-status", handlers.SetAdminStatus).Methods("PUT")
	authed.HandleFunc("/admin/users/{id}/special-role", handlers.AssignSpecialRole).Methods("PUT")
	authed.HandleFunc("/admin/users/{id}", handlers.DeleteUser).Methods("DELETE")

	authed.HandleFunc("/announcements", handlers.ListAnnouncements).Methods("GET")
	authed.HandleFunc("/announcements", handlers.CreateAnnouncement).Methods("POST")
	authed.HandleFunc("/announcements/{id}", handlers.DeleteAnnouncement).Methods("DELETE")
	authed.HandleFunc("/announcements/{id}/like", handlers.ToggleLike(models.TargetAnnouncement)).Methods("POST")

	authed.HandleFunc("/posts", handlers.ListPosts).Methods("GET")
	authed.HandleFunc("/posts", handlers.CreatePost).Methods("POST")
	authed.HandleFunc("/posts/{id}", handlers.DeletePost).Methods("DELETE")
	authed.HandleFunc("/posts/{id}/comments", handlers.ListComments).Methods("GET")
	authed.HandleFunc("/posts/{id}/comments", handlers.CreateComment).Methods("POST")
	authed.HandleFunc("/posts/{id}/like", handlers.ToggleLike(models.TargetPost)).Methods("POST")

	authed.HandleFunc("/notifications/unread-count", handlers.UnreadCount).Methods("GET")
	authed.HandleFunc("/notifications", handlers.ListNotifications).Methods("GET")
	authed.HandleFunc("/notifications/{id}/read", handlers.MarkNotificationRead).Methods("PUT")

	router.NotFoundHandler = http.HandlerFunc(notFoundHandler)
	router.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowedHandler)

	maxBytes := int64(config.Security.Content.MaxBytes)
	if maxBytes <= 0 {
		maxBytes = sanitize.DefaultMaxBytes
	}

	// Listed innermost first. The rate limiter sits outside CORS and the
	// client gate so preflights and gate rejections are counted too.
	chain := []func(http.Handler) http.Handler{
		bodyLimitMiddleware(maxBytes),
	}
	if rc.minVersion != nil {
		chain = append(chain, clientVersionMiddleware(rc.minVersion))
	}
	if config.Server.CORS.Enabled {
		chain = append(chain, corsMiddleware(config.Server.CORS))
	}
	if rc.rateLimiter != nil {
		chain = append(chain, rc.rateLimiter)
	}
	chain = append(chain,
		loggingMiddleware,
		recoveryMiddleware,
		processTimeMiddleware,
		secureHeadersMiddleware(SecureOptions()),
	)

	var handler http.Handler = router
	for _, mw := range chain {
		handler = mw(handler)
	}
	return handler
}

func notFoundHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, models.NewErrorResponse("Not found", models.ErrorCodeNotFound))
}

// methodNotAllowedHandler handles requests with invalid HTTP methods
func methodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, models.NewErrorResponse("Method not allowed", models.ErrorCodeInvalidRequest))
}
