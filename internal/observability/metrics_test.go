package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"staffhub/internal/models"
)

func TestMetricsServer_ServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	cfg := models.MetricsConfig{Enabled: true, Path: "/metrics", Port: 0}

	provider, err := Setup(cfg, models.ObservabilityConfig{ServiceName: "staffhub-test"}, testInfo(), WithRegisterer(reg))
	require.NoError(t, err)
	defer provider.Shutdown(context.Background())

	dm, err := NewDomainMetrics(provider.MeterProvider())
	require.NoError(t, err)
	dm.RateLimited(context.Background())

	ms := NewMetricsServer(cfg, provider, reg)
	rec := httptest.NewRecorder()
	ms.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "security_rate_limited")
}

func TestMetricsServer_DisabledExporter(t *testing.T) {
	ms := NewMetricsServer(models.MetricsConfig{Path: "/metrics", Port: 9090}, nil, nil)
	require.NotNil(t, ms)

	rec := httptest.NewRecorder()
	ms.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsServer_StartAndShutdown(t *testing.T) {
	ms := NewMetricsServer(models.MetricsConfig{Path: "/metrics", Port: 0}, nil, nil)

	errCh := make(chan error, 1)
	go func() { errCh <- ms.Start() }()
	time.Sleep(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, ms.Shutdown(ctx))

	assert.Equal(t, http.ErrServerClosed, <-errCh)
}
