// Package engagement implements like toggles on announcements and posts.
//
// A toggle flips the relation between an actor and a target and adjusts the
// target's likes_count in one atomic unit owned by the store. The service
// adds the dual-identifier lookup, per-relation serialization inside the
// process, and a bounded retry when the store reports a lost race.
package engagement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"staffhub/internal/models"
	"staffhub/internal/storage"
)

var (
	// ErrTargetNotFound is returned when the ref matches no target of the
	// requested type under either identifier scheme.
	ErrTargetNotFound = errors.New("target not found")

	// ErrToggleContended is returned when every retry lost to a concurrent
	// writer.
	ErrToggleContended = errors.New("like toggle contended")
)

// Default retry settings.
const (
	DefaultMaxRetries   = 3
	DefaultRetryBackoff = 10 * time.Millisecond
)

// Recorder observes toggle outcomes.
type Recorder interface {
	ToggleRecorded(ctx context.Context, targetType models.TargetType, liked bool)
	ToggleRetried(ctx context.Context, targetType models.TargetType)
}

type noopRecorder struct{}

func (noopRecorder) ToggleRecorded(context.Context, models.TargetType, bool) {}
func (noopRecorder) ToggleRetried(context.Context, models.TargetType)        {}

// Service toggles likes against an EngagementStore.
type Service struct {
	store      storage.EngagementStore
	locks      *keyedMutex
	maxRetries int
	backoff    time.Duration
	recorder   Recorder
}

// Option configures a Service.
type Option func(*Service)

// WithRetries sets how often a conflicting toggle is retried and the base
// delay, which grows linearly per attempt.
func WithRetries(maxRetries int, backoff time.Duration) Option {
	return func(s *Service) {
		if maxRetries >= 0 {
			s.maxRetries = maxRetries
		}
		if backoff >= 0 {
			s.backoff = backoff
		}
	}
}

// WithRecorder installs a toggle observer, typically metrics.
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// NewService creates a toggle service.
func NewService(store storage.EngagementStore, opts ...Option) *Service {
	s := &Service{
		store:      store,
		locks:      newKeyedMutex(),
		maxRetries: DefaultMaxRetries,
		backoff:    DefaultRetryBackoff,
		recorder:   noopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Toggle flips the like relation between actorID and the target addressed by
// ref, which may be either the generated ID or the store-native ID.
func (s *Service) Toggle(ctx context.Context, actorID string, targetType models.TargetType, ref string) (*models.ToggleResult, error) {
	target, err := s.store.ResolveTarget(ctx, targetType, ref)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s %s", ErrTargetNotFound, targetType, ref)
		}
		return nil, fmt.Errorf("failed to resolve %s %s: %w", targetType, ref, err)
	}

	// Keyed by the canonical ref so both identifier schemes share one lock.
	unlock := s.locks.Lock(actorID + "|" + string(targetType) + "|" + target.Ref())
	defer unlock()

	for attempt := 0; ; attempt++ {
		result, err := s.store.ToggleLike(ctx, actorID, target)
		switch {
		case err == nil:
			s.recorder.ToggleRecorded(ctx, targetType, result.Liked)
			return result, nil
		case errors.Is(err, storage.ErrNotFound):
			return nil, fmt.Errorf("%w: %s %s", ErrTargetNotFound, targetType, ref)
		case !errors.Is(err, storage.ErrConflict):
			return nil, fmt.Errorf("failed to toggle like: %w", err)
		}

		if attempt >= s.maxRetries {
			slog.Warn("Like toggle gave up after conflicts",
				"actor_id", actorID,
				"target_type", targetType,
				"target_id", target.Ref(),
				"attempts", attempt+1,
				"error", err)
			return nil, fmt.Errorf("%w: %v", ErrToggleContended, err)
		}
		s.recorder.ToggleRetried(ctx, targetType)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.backoff * time.Duration(attempt+1)):
		}
	}
}
