// Package notify fans broadcast events out into per-recipient notification
// records.
//
// Broadcast is fire-and-forget: the caller's request has already committed
// and must not wait for, or fail because of, delivery. Records are built for
// every user that existed when the event happened, inserted in batches with
// bounded parallelism, and never touched again by the fan-out.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"staffhub/internal/models"
)

// Store is the storage the fan-out needs.
type Store interface {
	RecipientIDs(ctx context.Context, asOf time.Time) ([]string, error)
	InsertNotifications(ctx context.Context, notifications []*models.Notification) error
}

// Recorder observes delivery outcomes.
type Recorder interface {
	NotificationsCreated(ctx context.Context, n int)
	NotificationsFailed(ctx context.Context, n int)
}

type noopRecorder struct{}

func (noopRecorder) NotificationsCreated(context.Context, int) {}
func (noopRecorder) NotificationsFailed(context.Context, int)  {}

// Event describes something every user should hear about.
type Event struct {
	Title     string
	Message   string
	Type      string
	RelatedID *string
	SenderID  *string

	// AsOf bounds the recipient set. Zero means the time of Broadcast.
	AsOf time.Time
}

// Fanout delivers events asynchronously.
type Fanout struct {
	store     Store
	batchSize int
	workers   int
	timeout   time.Duration
	limiter   *rate.Limiter
	recorder  Recorder
	now       func() time.Time

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

// Option configures a Fanout.
type Option func(*Fanout)

// WithRecorder installs a delivery observer, typically metrics.
func WithRecorder(r Recorder) Option {
	return func(f *Fanout) {
		if r != nil {
			f.recorder = r
		}
	}
}

// WithClock overrides the time source used for AsOf and created_at.
func WithClock(now func() time.Time) Option {
	return func(f *Fanout) { f.now = now }
}

// New creates a fan-out over store, tuned by cfg. Non-positive settings fall
// back to a single unpaced worker with no deadline.
func New(store Store, cfg models.NotificationConfig, opts ...Option) *Fanout {
	f := &Fanout{
		store:     store,
		batchSize: cfg.BatchSize,
		workers:   cfg.Workers,
		timeout:   cfg.Timeout,
		limiter:   rate.NewLimiter(rate.Inf, 1),
		recorder:  noopRecorder{},
		now:       func() time.Time { return time.Now().UTC() },
	}
	if f.batchSize <= 0 {
		f.batchSize = 500
	}
	if f.workers <= 0 {
		f.workers = 1
	}
	if cfg.BatchesPerSecond > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(cfg.BatchesPerSecond), 1)
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Broadcast captures the event time and delivers in the background. It
// never blocks on storage and never reports failure to the caller.
func (f *Fanout) Broadcast(ctx context.Context, ev Event) {
	if ev.AsOf.IsZero() {
		ev.AsOf = f.now()
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		slog.Warn("Dropping broadcast after shutdown", "type", ev.Type, "related_id", deref(ev.RelatedID))
		return
	}
	f.inflight.Add(1)
	f.mu.Unlock()

	// Keep request-scoped values such as the trace span, drop its cancellation.
	base := context.WithoutCancel(ctx)

	go func() {
		defer f.inflight.Done()

		ctx := base
		if f.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(base, f.timeout)
			defer cancel()
		}

		n, err := f.Deliver(ctx, ev)
		if err != nil {
			slog.Error("Notification fan-out failed",
				"type", ev.Type,
				"related_id", deref(ev.RelatedID),
				"delivered", n,
				"error", err)
			return
		}
		slog.Debug("Notification fan-out complete",
			"type", ev.Type,
			"related_id", deref(ev.RelatedID),
			"recipients", n)
	}()
}

// Deliver synchronously creates one unread record per recipient and returns
// how many were stored. On partial failure the count covers the batches that
// made it.
func (f *Fanout) Deliver(ctx context.Context, ev Event) (int, error) {
	asOf := ev.AsOf
	if asOf.IsZero() {
		asOf = f.now()
	}

	recipients, err := f.store.RecipientIDs(ctx, asOf)
	if err != nil {
		return 0, fmt.Errorf("failed to load recipients: %w", err)
	}
	if len(recipients) == 0 {
		return 0, nil
	}

	createdAt := f.now()
	var delivered atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.workers)

	var waitErr error
	for start := 0; start < len(recipients); start += f.batchSize {
		batch := recipients[start:min(start+f.batchSize, len(recipients))]

		if err := f.limiter.Wait(gctx); err != nil {
			waitErr = err
			f.recorder.NotificationsFailed(ctx, len(recipients)-start)
			break
		}

		g.Go(func() error {
			records := buildRecords(ev, batch, createdAt)
			if err := f.store.InsertNotifications(gctx, records); err != nil {
				f.recorder.NotificationsFailed(ctx, len(records))
				return fmt.Errorf("failed to insert %d notifications: %w", len(records), err)
			}
			delivered.Add(int64(len(records)))
			f.recorder.NotificationsCreated(ctx, len(records))
			return nil
		})
	}

	err = g.Wait()
	if err == nil && waitErr != nil {
		err = fmt.Errorf("fan-out interrupted: %w", waitErr)
	}
	return int(delivered.Load()), err
}

// Wait blocks until every in-flight broadcast has finished.
func (f *Fanout) Wait() {
	f.inflight.Wait()
}

// Close stops accepting broadcasts and drains the in-flight ones, giving up
// when ctx is done.
func (f *Fanout) Close(ctx context.Context) error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()

	done := make(chan struct{})
	go func() {
		f.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("notification fan-out did not drain: %w", ctx.Err())
	}
}

func buildRecords(ev Event, recipients []string, createdAt time.Time) []*models.Notification {
	records := make([]*models.Notification, len(recipients))
	for i, id := range recipients {
		records[i] = &models.Notification{
			RecipientID: id,
			Title:       ev.Title,
			Message:     ev.Message,
			Type:        ev.Type,
			Read:        false,
			CreatedAt:   createdAt,
			RelatedID:   ev.RelatedID,
			SenderID:    ev.SenderID,
		}
	}
	return records
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
