package api

import (
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/unrolled/secure"

	"staffhub/internal/models"
	"staffhub/internal/ratelimit"
)

// HeaderProcessTime reports, in seconds, how long the request took to reach
// its response header.
const HeaderProcessTime = "X-Process-Time"

// Fixed security header values.
const (
	contentSecurityPolicy = "default-src 'self'; script-src 'self' 'unsafe-inline'; " +
		"style-src 'self' 'unsafe-inline'; img-src 'self' data: https:; font-src 'self' data:;"
	permissionsPolicy = "geolocation=(), microphone=(), camera=()"
	referrerPolicy    = "strict-origin-when-cross-origin"
	stsSeconds        = 31536000
)

// SecureOptions returns the header set sent on every response. HSTS is
// forced so it is present behind TLS-terminating proxies too.
func SecureOptions() secure.Options {
	return secure.Options{
		ContentTypeNosniff:    true,
		FrameDeny:             true,
		BrowserXssFilter:      true,
		STSSeconds:            stsSeconds,
		STSIncludeSubdomains:  true,
		ForceSTSHeader:        true,
		ContentSecurityPolicy: contentSecurityPolicy,
		ReferrerPolicy:        referrerPolicy,
		PermissionsPolicy:     permissionsPolicy,
	}
}

func secureHeadersMiddleware(opts secure.Options) func(http.Handler) http.Handler {
	return secure.New(opts).Handler
}

// processTimeMiddleware stamps X-Process-Time just before the header is
// written, whichever way the handler triggers that.
func processTimeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		stamped := false
		stamp := func() {
			if stamped {
				return
			}
			stamped = true
			w.Header().Set(HeaderProcessTime, strconv.FormatFloat(time.Since(start).Seconds(), 'f', 6, 64))
		}

		wrapped := httpsnoop.Wrap(w, httpsnoop.Hooks{
			WriteHeader: func(next httpsnoop.WriteHeaderFunc) httpsnoop.WriteHeaderFunc {
				return func(code int) {
					stamp()
					next(code)
				}
			},
			Write: func(next httpsnoop.WriteFunc) httpsnoop.WriteFunc {
				return func(b []byte) (int, error) {
					stamp()
					return next(b)
				}
			},
			ReadFrom: func(next httpsnoop.ReadFromFunc) httpsnoop.ReadFromFunc {
				return func(src io.Reader) (int64, error) {
					stamp()
					return next(src)
				}
			},
		})

		next.ServeHTTP(wrapped, r)
		// Handler wrote nothing; net/http will send an implicit 200.
		stamp()
	})
}

// bodyLimitMiddleware caps request bodies at maxBytes. Declared lengths over
// the cap are refused up front; undeclared ones fail when read past it.
func bodyLimitMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				slog.Warn("Request body too large",
					"path", r.URL.Path,
					"content_length", r.ContentLength,
					"max_bytes", maxBytes,
					"remote_addr", ratelimit.GetClientIP(r))
				writeJSON(w, http.StatusRequestEntityTooLarge,
					models.NewErrorResponse("Request body too large", models.ErrorCodePayloadTooLarge).
						WithDetails(map[string]string{"max_bytes": strconv.FormatInt(maxBytes, 10)}))
				return
			}
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// corsMiddleware handles Cross-Origin Resource Sharing
func corsMiddleware(corsConfig models.CORSConfig) func(http.Handler) http.Handler {
	methods := strings.Join(corsConfig.AllowedMethods, ", ")
	headers := strings.Join(corsConfig.AllowedHeaders, ", ")
	wildcard := slices.Contains(corsConfig.AllowedOrigins, "*")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (wildcard || slices.Contains(corsConfig.AllowedOrigins, origin)) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			if methods != "" {
				w.Header().Set("Access-Control-Allow-Methods", methods)
			}
			if headers != "" {
				w.Header().Set("Access-Control-Allow-Headers", headers)
			}
			if corsConfig.MaxAge > 0 {
				w.Header().Set("Access-Control-Max-Age", strconv.Itoa(corsConfig.MaxAge))
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// loggingMiddleware logs HTTP requests once they complete
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)

		level := slog.LevelInfo
		if m.Code >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		slog.Log(r.Context(), level, "HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", m.Code,
			"bytes", m.Written,
			"duration_ms", m.Duration.Milliseconds(),
			"remote_addr", ratelimit.GetClientIP(r))
	})
}

// recoveryMiddleware handles panics
func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}
				slog.Error("Panic recovered", "error", err, "path", r.URL.Path)
				writeJSON(w, http.StatusInternalServerError,
					models.NewErrorResponse("Internal server error", models.ErrorCodeInternalError))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
