package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"staffhub/internal/models"
)

// DomainMetrics counts security, engagement and notification events. It
// satisfies the recorder interfaces of the engagement, notify and social
// packages.
type DomainMetrics struct {
	rateLimited   metric.Int64Counter
	loginAttempts metric.Int64Counter
	toggles       metric.Int64Counter
	toggleRetries metric.Int64Counter
	notifCreated  metric.Int64Counter
	notifFailed   metric.Int64Counter
}

// NewDomainMetrics registers the instruments on mp. A nil mp uses the global
// provider.
func NewDomainMetrics(mp metric.MeterProvider) (*DomainMetrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter("staffhub/domain")

	var m DomainMetrics
	var err error
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&m.rateLimited, "security.rate_limited", "Requests rejected by the per-address rate limit", "{request}"},
		{&m.loginAttempts, "security.login_attempts", "Login attempts by outcome", "{attempt}"},
		{&m.toggles, "engagement.toggles", "Completed like toggles", "{toggle}"},
		{&m.toggleRetries, "engagement.toggle_retries", "Like toggles retried after a conflict", "{retry}"},
		{&m.notifCreated, "notifications.created", "Notification records stored by fan-out", "{notification}"},
		{&m.notifFailed, "notifications.failed", "Notification records the fan-out could not store", "{notification}"},
	}
	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit(c.unit))
		if err != nil {
			return nil, fmt.Errorf("failed to create %s counter: %w", c.name, err)
		}
	}
	return &m, nil
}

// RateLimited counts one rejected request.
func (m *DomainMetrics) RateLimited(ctx context.Context) {
	m.rateLimited.Add(ctx, 1)
}

// LoginAttempt counts a login by outcome.
func (m *DomainMetrics) LoginAttempt(ctx context.Context, outcome string) {
	m.loginAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *DomainMetrics) ToggleRecorded(ctx context.Context, targetType models.TargetType, liked bool) {
	m.toggles.Add(ctx, 1, metric.WithAttributes(
		attribute.String("target_type", string(targetType)),
		attribute.Bool("liked", liked),
	))
}

func (m *DomainMetrics) ToggleRetried(ctx context.Context, targetType models.TargetType) {
	m.toggleRetries.Add(ctx, 1, metric.WithAttributes(attribute.String("target_type", string(targetType))))
}

func (m *DomainMetrics) NotificationsCreated(ctx context.Context, n int) {
	m.notifCreated.Add(ctx, int64(n))
}

func (m *DomainMetrics) NotificationsFailed(ctx context.Context, n int) {
	m.notifFailed.Add(ctx, int64(n))
}
