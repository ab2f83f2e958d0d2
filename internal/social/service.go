// Package social implements the business rules of the employee platform:
// accounts, announcements, the social feed and notifications.
//
// Every free-text field is sanitized before it is checked or stored. A field
// that is empty after sanitization is rejected with 400; one over its byte
// ceiling with 413. Errors returned by Service methods are *ServiceError.
package social

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"staffhub/internal/auth"
	"staffhub/internal/engagement"
	"staffhub/internal/guard"
	"staffhub/internal/models"
	"staffhub/internal/notify"
	"staffhub/internal/sanitize"
	"staffhub/internal/storage"
)

// List sizes.
const (
	announcementListLimit = 1000
	notificationListLimit = 50
	userListLimit         = 1000
)

// Login outcomes reported to a LoginRecorder.
const (
	LoginSuccess = "success"
	LoginFailure = "failure"
	LoginLocked  = "locked"
)

// LoginRecorder observes login attempts, typically metrics.
type LoginRecorder interface {
	LoginAttempt(ctx context.Context, outcome string)
}

type noopLoginRecorder struct{}

func (noopLoginRecorder) LoginAttempt(context.Context, string) {}

// Broadcaster delivers an event to every user without blocking the caller.
type Broadcaster interface {
	Broadcast(ctx context.Context, ev notify.Event)
}

// Dependencies are the collaborators a Service is built from. Store, Guard,
// Tokens and Fanout are required; the rest default.
type Dependencies struct {
	Store      storage.Storage
	Guard      *guard.LoginGuard
	Tokens     *auth.Issuer
	Fanout     Broadcaster
	Engagement *engagement.Service
	Sanitizer  *sanitize.Sanitizer
	Hasher     *auth.Hasher
	Content    models.ContentConfig
	Recorder   LoginRecorder
	// BootstrapAdmins are emails made admin when they register.
	BootstrapAdmins []string
}

// Service handles the platform's business logic
type Service struct {
	store      storage.Storage
	guard      *guard.LoginGuard
	tokens     *auth.Issuer
	fanout     Broadcaster
	engagement *engagement.Service
	sanitizer  *sanitize.Sanitizer
	hasher     *auth.Hasher
	limits     models.ContentConfig
	recorder   LoginRecorder
	now        func() time.Time

	bootstrapAdmins map[string]struct{}
}

// NewService creates a new social service from its dependencies
func NewService(deps Dependencies) *Service {
	s := &Service{
		store:      deps.Store,
		guard:      deps.Guard,
		tokens:     deps.Tokens,
		fanout:     deps.Fanout,
		engagement: deps.Engagement,
		sanitizer:  deps.Sanitizer,
		hasher:     deps.Hasher,
		limits:     deps.Content,
		recorder:   deps.Recorder,
		now:        func() time.Time { return time.Now().UTC() },
	}
	if s.engagement == nil {
		s.engagement = engagement.NewService(deps.Store)
	}
	if s.sanitizer == nil {
		s.sanitizer = sanitize.Default()
	}
	if s.hasher == nil {
		s.hasher = auth.NewHasher(0)
	}
	if s.recorder == nil {
		s.recorder = noopLoginRecorder{}
	}
	if s.limits == (models.ContentConfig{}) {
		s.limits = models.NewDefaultConfig().Security.Content
	}
	s.bootstrapAdmins = make(map[string]struct{}, len(deps.BootstrapAdmins))
	for _, email := range deps.BootstrapAdmins {
		s.bootstrapAdmins[models.NormalizeEmail(email)] = struct{}{}
	}
	return s
}

// Register creates an employee account and issues a token for it
func (s *Service) Register(ctx context.Context, req *models.RegisterRequest) (*models.AuthResponse, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, NewValidationError("invalid registration", err)
	}

	firstName, err := s.cleanRequired("first_name", req.FirstName, s.limits.TitleMaxBytes)
	if err != nil {
		return nil, err
	}
	lastName, err := s.cleanRequired("last_name", req.LastName, s.limits.TitleMaxBytes)
	if err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, NewInternalError("failed to register user", err)
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		PasswordHash: hash,
		FirstName:    firstName,
		LastName:     lastName,
		Position:     s.sanitizer.Sanitize(req.Position),
		CreatedAt:    s.now(),
	}
	if _, ok := s.bootstrapAdmins[user.Email]; ok {
		user.IsAdmin = true
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, NewConflictError("email already registered", err)
		}
		return nil, NewInternalError("failed to register user", err)
	}

	slog.Info("User registered", "user_id", user.ID, "position", user.Position)
	if user.IsAdmin {
		slog.Warn("Bootstrap admin registered", "user_id", user.ID)
	}
	return s.issue(user)
}

// Login verifies credentials for an identity that is not locked out. A
// locked identity is rejected before the password is looked at.
func (s *Service) Login(ctx context.Context, req *models.LoginRequest) (*models.AuthResponse, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, NewValidationError("invalid login", err)
	}

	if s.guard.IsBlocked(ctx, req.Email) {
		slog.Warn("Login rejected for locked identity", "identity", req.Email)
		s.recorder.LoginAttempt(ctx, LoginLocked)
		return nil, NewAccountLockedError(s.guard.RetryAfter(ctx, req.Email))
	}

	user, err := s.store.GetUserByEmail(ctx, req.Email)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return nil, s.loginFailed(ctx, req.Email)
	case err != nil:
		return nil, NewInternalError("failed to log in", err)
	}

	if err := s.hasher.Compare(user.PasswordHash, req.Password); err != nil {
		return nil, s.loginFailed(ctx, req.Email)
	}

	s.guard.RecordSuccess(ctx, req.Email)
	s.recorder.LoginAttempt(ctx, LoginSuccess)
	slog.Info("User logged in", "user_id", user.ID)
	return s.issue(user)
}

func (s *Service) loginFailed(ctx context.Context, identity string) error {
	state := s.guard.RecordFailure(ctx, identity)
	slog.Warn("Login failed", "identity", identity, "state", state)
	s.recorder.LoginAttempt(ctx, LoginFailure)
	return NewUnauthorizedError("invalid credentials")
}

func (s *Service) issue(user *models.User) (*models.AuthResponse, error) {
	token, expires, err := s.tokens.Issue(user)
	if err != nil {
		return nil, NewInternalError("failed to issue token", err)
	}
	return &models.AuthResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresAt:   expires,
		User:        user,
	}, nil
}

// Authenticate resolves a bearer token to the user it was issued to
func (s *Service) Authenticate(ctx context.Context, token string) (*models.User, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, NewInvalidTokenError(err)
	}

	user, err := s.store.GetUser(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, NewUnauthorizedError("user not found")
		}
		return nil, NewInternalError("failed to load user", err)
	}
	return user, nil
}

func (s *Service) GetProfile(ctx context.Context, user *models.User) (*models.ProfileResponse, error) {
	current, err := s.store.GetUser(ctx, user.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, NewNotFoundError("user not found")
		}
		return nil, NewInternalError("failed to load profile", err)
	}
	return models.ProfileFromUser(current), nil
}

// UpdateProfile replaces the bio. An empty bio clears it.
func (s *Service) UpdateProfile(ctx context.Context, user *models.User, req *models.UpdateProfileRequest) (*models.ProfileResponse, error) {
	bio, err := s.clean("bio", req.Bio, s.limits.BioMaxBytes)
	if err != nil {
		return nil, err
	}

	if err := s.store.UpdateUserBio(ctx, user.ID, bio); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, NewNotFoundError("user not found")
		}
		return nil, NewInternalError("failed to update profile", err)
	}
	return s.GetProfile(ctx, user)
}

// Ping checks the storage backend
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// clean sanitizes text and enforces its byte ceiling on the result.
func (s *Service) clean(field, text string, limit int) (string, error) {
	cleaned := strings.TrimSpace(s.sanitizer.Sanitize(text))
	if !s.sanitizer.ValidateSizeLimit(cleaned, limit) {
		return "", NewPayloadTooLargeError(field, limit)
	}
	return cleaned, nil
}

// cleanRequired is clean for fields that must not be empty afterwards.
func (s *Service) cleanRequired(field, text string, limit int) (string, error) {
	cleaned, err := s.clean(field, text, limit)
	if err != nil {
		return "", err
	}
	if cleaned == "" {
		return "", NewRequiredFieldError(field)
	}
	return cleaned, nil
}
