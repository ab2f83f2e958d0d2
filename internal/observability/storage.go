package observability

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"staffhub/internal/models"
	"staffhub/internal/storage"
)

const storageScope = "staffhub/storage"

// Outcome labels for storage calls. Misses, duplicates and lost toggle races
// are part of normal operation and do not mark the span as failed.
const (
	outcomeOK            = "ok"
	outcomeNotFound      = "not_found"
	outcomeAlreadyExists = "already_exists"
	outcomeConflict      = "conflict"
	outcomeError         = "error"
)

// InstrumentedStorage decorates a storage.Storage with one span, one latency
// sample and, on failure, one error count per call.
type InstrumentedStorage struct {
	inner    storage.Storage
	tracer   trace.Tracer
	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

var _ storage.Storage = (*InstrumentedStorage)(nil)

func NewInstrumentedStorage(inner storage.Storage) (*InstrumentedStorage, error) {
	meter := otel.Meter(storageScope)

	duration, err := meter.Float64Histogram("storage.operation.duration",
		metric.WithDescription("Duration of storage operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	errCounter, err := meter.Int64Counter("storage.operation.errors",
		metric.WithDescription("Storage operations that returned an error, by outcome"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &InstrumentedStorage{
		inner:    inner,
		tracer:   otel.Tracer(storageScope),
		duration: duration,
		errors:   errCounter,
	}, nil
}

// begin opens the span for op. The returned func closes it and records the
// metrics; it must be called exactly once with the call's error.
func (s *InstrumentedStorage) begin(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span, func(error)) {
	ctx, span := s.tracer.Start(ctx, "storage."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
	start := time.Now()

	return ctx, span, func(err error) {
		outcome := classify(err)
		labels := metric.WithAttributes(
			attribute.String("operation", op),
			attribute.String("outcome", outcome),
		)
		s.duration.Record(ctx, time.Since(start).Seconds(), labels)
		span.SetAttributes(attribute.String("storage.outcome", outcome))

		switch outcome {
		case outcomeOK:
			span.SetStatus(codes.Ok, "")
		case outcomeError:
			s.errors.Add(ctx, 1, labels)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		default:
			s.errors.Add(ctx, 1, labels)
		}
		span.End()
	}
}

func classify(err error) string {
	switch {
	case err == nil:
		return outcomeOK
	case errors.Is(err, storage.ErrNotFound):
		return outcomeNotFound
	case errors.Is(err, storage.ErrAlreadyExists):
		return outcomeAlreadyExists
	case errors.Is(err, storage.ErrConflict):
		return outcomeConflict
	default:
		return outcomeError
	}
}

func targetAttrs(targetType models.TargetType, ref string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("target_type", string(targetType)),
		attribute.String("target_ref", ref),
	}
}

func (s *InstrumentedStorage) CreateUser(ctx context.Context, user *models.User) (err error) {
	ctx, _, done := s.begin(ctx, "CreateUser")
	defer func() { done(err) }()
	return s.inner.CreateUser(ctx, user)
}

func (s *InstrumentedStorage) GetUser(ctx context.Context, id string) (_ *models.User, err error) {
	ctx, _, done := s.begin(ctx, "GetUser", attribute.String("user_id", id))
	defer func() { done(err) }()
	return s.inner.GetUser(ctx, id)
}

// GetUserByEmail keeps the address out of span attributes.
func (s *InstrumentedStorage) GetUserByEmail(ctx context.Context, email string) (_ *models.User, err error) {
	ctx, _, done := s.begin(ctx, "GetUserByEmail")
	defer func() { done(err) }()
	return s.inner.GetUserByEmail(ctx, email)
}

func (s *InstrumentedStorage) UpdateUserBio(ctx context.Context, id, bio string) (err error) {
	ctx, _, done := s.begin(ctx, "UpdateUserBio", attribute.String("user_id", id))
	defer func() { done(err) }()
	return s.inner.UpdateUserBio(ctx, id, bio)
}

func (s *InstrumentedStorage) UpdateUser(ctx context.Context, id string, patch *models.UserPatch) (_ *models.User, err error) {
	ctx, _, done := s.begin(ctx, "UpdateUser", attribute.String("user_id", id))
	defer func() { done(err) }()
	return s.inner.UpdateUser(ctx, id, patch)
}

func (s *InstrumentedStorage) ListUsers(ctx context.Context, limit int) (users []*models.User, err error) {
	ctx, span, done := s.begin(ctx, "ListUsers", attribute.Int("limit", limit))
	defer func() {
		span.SetAttributes(attribute.Int("users", len(users)))
		done(err)
	}()
	return s.inner.ListUsers(ctx, limit)
}

func (s *InstrumentedStorage) DeleteUser(ctx context.Context, id string) (err error) {
	ctx, _, done := s.begin(ctx, "DeleteUser", attribute.String("user_id", id))
	defer func() { done(err) }()
	return s.inner.DeleteUser(ctx, id)
}

func (s *InstrumentedStorage) RecipientIDs(ctx context.Context, asOf time.Time) (ids []string, err error) {
	ctx, span, done := s.begin(ctx, "RecipientIDs", attribute.String("as_of", asOf.UTC().Format(time.RFC3339Nano)))
	defer func() {
		span.SetAttributes(attribute.Int("recipients", len(ids)))
		done(err)
	}()
	return s.inner.RecipientIDs(ctx, asOf)
}

func (s *InstrumentedStorage) CreateAnnouncement(ctx context.Context, a *models.Announcement) (err error) {
	ctx, _, done := s.begin(ctx, "CreateAnnouncement", attribute.Bool("urgent", a.IsUrgent))
	defer func() { done(err) }()
	return s.inner.CreateAnnouncement(ctx, a)
}

func (s *InstrumentedStorage) GetAnnouncement(ctx context.Context, ref string) (_ *models.Announcement, err error) {
	ctx, _, done := s.begin(ctx, "GetAnnouncement", targetAttrs(models.TargetAnnouncement, ref)...)
	defer func() { done(err) }()
	return s.inner.GetAnnouncement(ctx, ref)
}

func (s *InstrumentedStorage) ListAnnouncements(ctx context.Context, limit int) (_ []*models.Announcement, err error) {
	ctx, _, done := s.begin(ctx, "ListAnnouncements", attribute.Int("limit", limit))
	defer func() { done(err) }()
	return s.inner.ListAnnouncements(ctx, limit)
}

func (s *InstrumentedStorage) DeleteAnnouncement(ctx context.Context, ref string) (err error) {
	ctx, _, done := s.begin(ctx, "DeleteAnnouncement", targetAttrs(models.TargetAnnouncement, ref)...)
	defer func() { done(err) }()
	return s.inner.DeleteAnnouncement(ctx, ref)
}

func (s *InstrumentedStorage) CreatePost(ctx context.Context, p *models.Post) (err error) {
	ctx, _, done := s.begin(ctx, "CreatePost", attribute.String("author_id", p.AuthorID))
	defer func() { done(err) }()
	return s.inner.CreatePost(ctx, p)
}

func (s *InstrumentedStorage) GetPost(ctx context.Context, ref string) (_ *models.Post, err error) {
	ctx, _, done := s.begin(ctx, "GetPost", targetAttrs(models.TargetPost, ref)...)
	defer func() { done(err) }()
	return s.inner.GetPost(ctx, ref)
}

func (s *InstrumentedStorage) ListPosts(ctx context.Context, limit int) (_ []*models.Post, err error) {
	ctx, _, done := s.begin(ctx, "ListPosts", attribute.Int("limit", limit))
	defer func() { done(err) }()
	return s.inner.ListPosts(ctx, limit)
}

func (s *InstrumentedStorage) DeletePost(ctx context.Context, ref string) (err error) {
	ctx, _, done := s.begin(ctx, "DeletePost", targetAttrs(models.TargetPost, ref)...)
	defer func() { done(err) }()
	return s.inner.DeletePost(ctx, ref)
}

func (s *InstrumentedStorage) CreateComment(ctx context.Context, c *models.Comment) (err error) {
	ctx, _, done := s.begin(ctx, "CreateComment", targetAttrs(models.TargetPost, c.PostID)...)
	defer func() { done(err) }()
	return s.inner.CreateComment(ctx, c)
}

func (s *InstrumentedStorage) ListComments(ctx context.Context, postRef string) (_ []*models.Comment, err error) {
	ctx, _, done := s.begin(ctx, "ListComments", targetAttrs(models.TargetPost, postRef)...)
	defer func() { done(err) }()
	return s.inner.ListComments(ctx, postRef)
}

func (s *InstrumentedStorage) ResolveTarget(ctx context.Context, targetType models.TargetType, ref string) (t *models.Target, err error) {
	ctx, span, done := s.begin(ctx, "ResolveTarget", targetAttrs(targetType, ref)...)
	defer func() {
		// Which scheme matched is the interesting part of a dual-id lookup.
		if t != nil {
			span.SetAttributes(attribute.Bool("matched_native_id", ref != "" && ref == t.NativeID && ref != t.ID))
		}
		done(err)
	}()
	return s.inner.ResolveTarget(ctx, targetType, ref)
}

func (s *InstrumentedStorage) ToggleLike(ctx context.Context, actorID string, target *models.Target) (res *models.ToggleResult, err error) {
	attrs := append(targetAttrs(target.Type, target.Ref()), attribute.String("actor_id", actorID))
	ctx, span, done := s.begin(ctx, "ToggleLike", attrs...)
	defer func() {
		if res != nil {
			span.SetAttributes(
				attribute.Bool("liked", res.Liked),
				attribute.Int("likes_count", res.LikesCount),
			)
		}
		done(err)
	}()
	return s.inner.ToggleLike(ctx, actorID, target)
}

func (s *InstrumentedStorage) CountLikes(ctx context.Context, targetType models.TargetType, targetID string) (_ int, err error) {
	ctx, _, done := s.begin(ctx, "CountLikes", targetAttrs(targetType, targetID)...)
	defer func() { done(err) }()
	return s.inner.CountLikes(ctx, targetType, targetID)
}

func (s *InstrumentedStorage) InsertNotifications(ctx context.Context, notifications []*models.Notification) (err error) {
	ctx, _, done := s.begin(ctx, "InsertNotifications", attribute.Int("batch_size", len(notifications)))
	defer func() { done(err) }()
	return s.inner.InsertNotifications(ctx, notifications)
}

func (s *InstrumentedStorage) ListNotifications(ctx context.Context, recipientID string, limit int) (_ []*models.Notification, err error) {
	ctx, _, done := s.begin(ctx, "ListNotifications",
		attribute.String("recipient_id", recipientID),
		attribute.Int("limit", limit),
	)
	defer func() { done(err) }()
	return s.inner.ListNotifications(ctx, recipientID, limit)
}

func (s *InstrumentedStorage) MarkNotificationRead(ctx context.Context, id, recipientID string) (err error) {
	ctx, _, done := s.begin(ctx, "MarkNotificationRead",
		attribute.String("notification_id", id),
		attribute.String("recipient_id", recipientID),
	)
	defer func() { done(err) }()
	return s.inner.MarkNotificationRead(ctx, id, recipientID)
}

func (s *InstrumentedStorage) CountUnread(ctx context.Context, recipientID string) (_ int, err error) {
	ctx, _, done := s.begin(ctx, "CountUnread", attribute.String("recipient_id", recipientID))
	defer func() { done(err) }()
	return s.inner.CountUnread(ctx, recipientID)
}

func (s *InstrumentedStorage) Ping(ctx context.Context) (err error) {
	ctx, _, done := s.begin(ctx, "Ping")
	defer func() { done(err) }()
	return s.inner.Ping(ctx)
}

func (s *InstrumentedStorage) Close() error {
	return s.inner.Close()
}
