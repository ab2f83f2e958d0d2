// Package models - API response types and error handling.
//
// Every error leaves the service as an ErrorResponse with a machine-readable
// code. Throttling errors additionally carry retry_after_seconds.
package models

import (
	"time"
)

// ErrorResponse provides structured error information.
type ErrorResponse struct {
	Error             string            `json:"error"`                         // Always "error"
	Message           string            `json:"message"`                       // Human-readable description
	Code              string            `json:"code,omitempty"`                // Machine-readable code
	Details           map[string]string `json:"details,omitempty"`             // Field-specific details
	RetryAfterSeconds *int              `json:"retry_after_seconds,omitempty"` // Set for RATE_LIMITED and ACCOUNT_LOCKED
	Timestamp         time.Time         `json:"timestamp"`
	RequestID         string            `json:"request_id,omitempty"`
}

// Standard error codes.
const (
	ErrorCodeNotFound           = "NOT_FOUND"           // 404: resource doesn't exist
	ErrorCodeTargetNotFound     = "TARGET_NOT_FOUND"    // 404: like target doesn't exist
	ErrorCodeBadRequest         = "BAD_REQUEST"         // 400: malformed request
	ErrorCodeInvalidRequest     = "INVALID_REQUEST"     // 400: invalid request data
	ErrorCodeValidation         = "VALIDATION_ERROR"    // 400: input validation failed
	ErrorCodePayloadTooLarge    = "PAYLOAD_TOO_LARGE"   // 413: text over its byte ceiling
	ErrorCodeRateLimited        = "RATE_LIMITED"        // 429: address over its request window
	ErrorCodeAccountLocked      = "ACCOUNT_LOCKED"      // 429: identity locked after failed logins
	ErrorCodeClientOutdated     = "CLIENT_OUTDATED"     // 426: client below minimum version
	ErrorCodeInternalError      = "INTERNAL_ERROR"      // 500: server-side error
	ErrorCodeUnauthorized       = "UNAUTHORIZED"        // 401: authentication required
	ErrorCodeForbidden          = "FORBIDDEN"           // 403: permission denied
	ErrorCodeConflict           = "CONFLICT"            // 409: resource conflict
	ErrorCodeServiceUnavailable = "SERVICE_UNAVAILABLE" // 503: dependency down
)

func NewErrorResponse(message string, code string) *ErrorResponse {
	return &ErrorResponse{
		Error:     "error",
		Message:   message,
		Code:      code,
		Timestamp: time.Now(),
	}
}

// WithRetryAfter sets the retry hint in whole seconds, rounding up.
func (e *ErrorResponse) WithRetryAfter(d time.Duration) *ErrorResponse {
	secs := int(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	e.RetryAfterSeconds = &secs
	return e
}

// WithDetails attaches field-level details.
func (e *ErrorResponse) WithDetails(details map[string]string) *ErrorResponse {
	e.Details = details
	return e
}

// AuthResponse is returned by register and login.
type AuthResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        *User     `json:"user"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type UnreadCountResponse struct {
	UnreadCount int `json:"unread_count"`
}

type ProfileResponse struct {
	UserID    string `json:"user_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Position  string `json:"position"`
	Bio       string `json:"bio"`
}

// ProfileFromUser projects the public profile fields of a user.
func ProfileFromUser(u *User) *ProfileResponse {
	return &ProfileResponse{
		UserID:    u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Position:  u.Position,
		Bio:       u.Bio,
	}
}

// AdminStatusResponse reports a change of admin rights.
type AdminStatusResponse struct {
	Message  string  `json:"message"`
	User     *User   `json:"user"`
	ActionBy string  `json:"action_by"`
	Reason   *string `json:"reason,omitempty"`
}

type HealthCheckResponse struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
}

type ComponentHealth struct {
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Health status values.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusDegraded  = "degraded"
)

func NewHealthCheckResponse(status string) *HealthCheckResponse {
	return &HealthCheckResponse{
		Status:     status,
		Timestamp:  time.Now(),
		Components: make(map[string]ComponentHealth),
	}
}

func (h *HealthCheckResponse) AddComponent(name, status, message string) {
	h.Components[name] = ComponentHealth{
		Status:    status,
		Message:   message,
		Timestamp: time.Now(),
	}
}
