package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"staffhub/internal/models"
	"staffhub/internal/social"
	"staffhub/internal/version"
)

const healthTimeout = 2 * time.Second

// Handlers contains HTTP handlers for the staffhub API
type Handlers struct {
	service social.ServiceInterface
	version version.Info
}

// HandlerOption configures Handlers.
type HandlerOption func(*Handlers)

// WithVersionInfo reports build metadata on the health endpoint.
func WithVersionInfo(info version.Info) HandlerOption {
	return func(h *Handlers) { h.version = info }
}

// NewHandlers creates a new handlers instance
func NewHandlers(service social.ServiceInterface, opts ...HandlerOption) *Handlers {
	h := &Handlers{service: service}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HealthCheck reports service health, including a storage ping.
// GET /health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := models.NewHealthCheckResponse(models.StatusHealthy)
	response.Version = h.version.Version

	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	status := http.StatusOK
	if err := h.service.Ping(ctx); err != nil {
		slog.Error("Health check storage ping failed", "error", err)
		response.Status = models.StatusUnhealthy
		response.AddComponent("storage", models.StatusUnhealthy, "Storage is unreachable")
		status = http.StatusServiceUnavailable
	} else {
		response.AddComponent("storage", models.StatusHealthy, "Storage is operational")
	}
	response.AddComponent("api", models.StatusHealthy, "API is operational")

	h.writeJSONResponse(w, status, response)
}

// decodeJSON reads a JSON body into dst. A body cut off by the size ceiling
// middleware becomes 413, any other decode failure 400.
func (h *Handlers) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil {
		return true
	}

	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		h.writeServiceError(w, r, social.NewPayloadTooLargeError("request body", int(tooLarge.Limit)))
	case errors.Is(err, io.EOF):
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeBadRequest, "Request body is required")
	default:
		h.writeErrorResponse(w, http.StatusBadRequest, models.ErrorCodeBadRequest, "Invalid JSON body")
	}
	return false
}

// writeJSONResponse writes a JSON response
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data any) {
	writeJSON(w, statusCode, data)
}

// writeErrorResponse writes an error response
func (h *Handlers) writeErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) {
	writeJSON(w, statusCode, models.NewErrorResponse(message, errorCode))
}

// writeServiceError maps any service error onto its HTTP status and body.
// Server-side failures are logged here so handlers don't have to.
func (h *Handlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	serviceErr := social.AsServiceError(err)
	if serviceErr.StatusCode >= http.StatusInternalServerError {
		slog.Error("Request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"code", serviceErr.Code,
			"error", err)
	}
	if serviceErr.RetryAfter > 0 {
		w.Header().Set("Retry-After", retryAfterHeader(serviceErr.RetryAfter))
	}
	writeJSON(w, serviceErr.StatusCode, serviceErr.Response())
}

func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are gone; all that is left is to note it.
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

// retryAfterHeader renders d in whole seconds, rounding up.
func retryAfterHeader(d time.Duration) string {
	return strconv.Itoa(int(math.Ceil(d.Seconds())))
}
