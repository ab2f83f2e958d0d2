package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"staffhub/internal/models"
	"staffhub/internal/social"
	"staffhub/internal/version"
)

// HeaderClientVersion carries the calling app's semantic version.
const HeaderClientVersion = "X-Client-Version"

type contextKey int

const userContextKey contextKey = iota

// WithUser returns a copy of ctx carrying the authenticated user.
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext returns the authenticated user, or nil outside an
// authenticated route.
func UserFromContext(ctx context.Context) *models.User {
	user, _ := ctx.Value(userContextKey).(*models.User)
	return user
}

// authMiddleware resolves the bearer token to a user or answers 401.
func authMiddleware(service social.ServiceInterface) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeJSON(w, http.StatusUnauthorized,
					models.NewErrorResponse("Authorization required", models.ErrorCodeUnauthorized))
				return
			}

			const prefix = "Bearer "
			if len(authHeader) < len(prefix) || !strings.EqualFold(authHeader[:len(prefix)], prefix) {
				writeJSON(w, http.StatusUnauthorized,
					models.NewErrorResponse("Invalid authorization format", models.ErrorCodeUnauthorized))
				return
			}

			user, err := service.Authenticate(r.Context(), strings.TrimSpace(authHeader[len(prefix):]))
			if err != nil {
				serviceErr := social.AsServiceError(err)
				writeJSON(w, serviceErr.StatusCode, serviceErr.Response())
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// clientVersionMiddleware refuses clients older than req with 426. Requests
// that don't report a version pass.
func clientVersionMiddleware(req *version.Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientVersion := r.Header.Get(HeaderClientVersion)
			if clientVersion == "" {
				next.ServeHTTP(w, r)
				return
			}

			ok, err := req.Satisfied(clientVersion)
			if err != nil {
				writeJSON(w, http.StatusBadRequest,
					models.NewErrorResponse("Invalid client version", models.ErrorCodeBadRequest).
						WithDetails(map[string]string{"client_version": clientVersion}))
				return
			}
			if !ok {
				slog.Info("Rejected outdated client",
					"client_version", clientVersion,
					"minimum", req.Minimum(),
					"path", r.URL.Path)
				writeJSON(w, http.StatusUpgradeRequired,
					models.NewErrorResponse("Client version is no longer supported. Please update the app.", models.ErrorCodeClientOutdated).
						WithDetails(map[string]string{"min_version": req.Minimum()}))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
