package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"staffhub/internal/api"
	"staffhub/internal/auth"
	"staffhub/internal/config"
	"staffhub/internal/engagement"
	"staffhub/internal/guard"
	"staffhub/internal/logger"
	"staffhub/internal/models"
	"staffhub/internal/notify"
	"staffhub/internal/observability"
	"staffhub/internal/ratelimit"
	"staffhub/internal/sanitize"
	"staffhub/internal/social"
	"staffhub/internal/storage"
	"staffhub/internal/version"
)

const (
	shutdownTimeout  = 30 * time.Second
	redisPingTimeout = 3 * time.Second
	rateLimitPrefix  = "staffhub:ratelimit:"
	loginGuardPrefix = "staffhub:login:"
)

var (
	configFile   = flag.String("config", "", "Path to configuration file")
	envFile      = flag.String("env-file", config.DefaultEnvFile, "Path to a dotenv file, empty to skip")
	writeExample = flag.String("write-example", "", "Write an example configuration to this path and exit")
	showVersion  = flag.Bool("version", false, "Print version information and exit")
)

func main() {
	flag.Parse()

	ver := version.GetInfo()
	if *showVersion {
		fmt.Println(ver.String())
		return
	}
	if *writeExample != "" {
		if err := config.SaveExample(*writeExample); err != nil {
			slog.Error("Failed to write example configuration", "error", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load(*configFile, config.WithEnvFile(*envFile))
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	log, closer, err := logger.Setup(cfg.Logging, ver)
	if err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}
	if closer != nil {
		defer closer.Close()
	}
	slog.SetDefault(log)

	otelProvider, err := observability.Setup(cfg.Metrics, cfg.Observability, ver)
	if err != nil {
		slog.Error("Failed to initialize observability", "error", err)
		os.Exit(1)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := otelProvider.Shutdown(ctx); err != nil {
			slog.Error("Failed to shutdown observability", "error", err)
		}
	}()

	a, err := newApp(cfg, ver, otelProvider)
	if err != nil {
		slog.Error("Failed to initialize service", "error", err)
		os.Exit(1)
	}

	var metricsServer *observability.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = observability.NewMetricsServer(cfg.Metrics, otelProvider, nil)
		go func() {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Metrics server failed", "error", err)
			}
		}()
	}

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           a.handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	go func() {
		slog.Info("Starting server", "addr", server.Addr, "tls", cfg.Server.TLSEnabled, "storage", cfg.Storage.Type)

		var err error
		if cfg.Server.TLSEnabled {
			err = server.ListenAndServeTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			slog.Error("Metrics server forced to shutdown", "error", err)
		}
	}

	// Stop taking requests before draining the broadcasts they started.
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	a.close(ctx)

	slog.Info("Server shutdown complete")
}

// app holds everything main has to release on shutdown.
type app struct {
	handler http.Handler
	store   storage.Storage
	fanout  *notify.Fanout
	limiter *ratelimit.RateLimiter
	guard   *guard.LoginGuard
	redis   *redis.Client
}

func newApp(cfg *models.Config, ver version.Info, provider *observability.Provider) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.close(context.Background())
		}
	}()

	baseStore, err := storage.NewFactory().Create(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.store = baseStore

	var store storage.Storage = baseStore
	if cfg.Metrics.Enabled || cfg.Observability.Tracing.Enabled {
		instrumented, err := observability.NewInstrumentedStorage(baseStore)
		if err != nil {
			return nil, fmt.Errorf("failed to instrument storage: %w", err)
		}
		store = instrumented
	}

	metrics, err := observability.NewDomainMetrics(provider.MeterProvider())
	if err != nil {
		return nil, err
	}

	if needsRedis(cfg) {
		a.redis = newRedisClient(cfg.Cache.Redis)
	}

	loginCounter, err := ratelimit.NewCounter(counterBackend(cfg), cfg.Security.Login.MaxAttempts,
		cfg.Security.Login.LockoutWindow, redisCmdable(a.redis), loginGuardPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize login guard: %w", err)
	}
	a.guard = guard.New(loginCounter)

	tokens, err := auth.NewIssuer(cfg.Security.JWT)
	if err != nil {
		return nil, err
	}

	sanitizer, err := sanitize.New(nil, cfg.Security.Content.MaxBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to compile sanitizer patterns: %w", err)
	}

	a.fanout = notify.New(store, cfg.Notifications, notify.WithRecorder(metrics))

	likes := engagement.NewService(store,
		engagement.WithRetries(cfg.Engagement.MaxRetries, cfg.Engagement.RetryBackoff),
		engagement.WithRecorder(metrics),
	)

	svc := social.NewService(social.Dependencies{
		Store:           store,
		Guard:           a.guard,
		Tokens:          tokens,
		Fanout:          a.fanout,
		Engagement:      likes,
		Sanitizer:       sanitizer,
		Hasher:          auth.NewHasher(0),
		Content:         cfg.Security.Content,
		Recorder:        metrics,
		BootstrapAdmins: cfg.Security.BootstrapAdmins,
	})

	routeOpts := []api.RouteOption{}
	if cfg.Observability.Tracing.Enabled {
		routeOpts = append(routeOpts, api.WithOTelMiddleware(cfg.Observability.ServiceName))
	}
	if cfg.Security.MinClientVersion != "" {
		req, err := version.NewRequirement(cfg.Security.MinClientVersion)
		if err != nil {
			return nil, fmt.Errorf("invalid minimum client version: %w", err)
		}
		routeOpts = append(routeOpts, api.WithClientRequirement(req))
	}
	if cfg.Security.RateLimit.Enabled {
		rl := cfg.Security.RateLimit
		counter, err := ratelimit.NewCounter(counterBackend(cfg), rl.MaxRequests, rl.Window, redisCmdable(a.redis), rateLimitPrefix)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize rate limiter: %w", err)
		}
		a.limiter = ratelimit.NewRateLimiter(counter)
		routeOpts = append(routeOpts, api.WithRateLimiter(ratelimit.Middleware(a.limiter,
			ratelimit.WithRejectHook(func(r *http.Request, _ string) {
				metrics.RateLimited(r.Context())
			}),
		)))
	}

	a.handler = api.SetupRoutes(api.NewHandlers(svc, api.WithVersionInfo(ver)), cfg, routeOpts...)
	return a, nil
}

// close drains pending broadcasts before the store they write to goes away.
func (a *app) close(ctx context.Context) {
	if a.fanout != nil {
		if err := a.fanout.Close(ctx); err != nil {
			slog.Error("Notification fan-out did not drain", "error", err)
		}
	}
	if a.limiter != nil {
		a.limiter.Close()
	}
	if a.guard != nil {
		a.guard.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			slog.Error("Failed to close redis client", "error", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			slog.Error("Failed to close storage", "error", err)
		}
	}
}

// The login guard shares the rate limiter's backend so lockouts hold across
// instances whenever request limits do.
func counterBackend(cfg *models.Config) string {
	return cfg.Security.RateLimit.Backend
}

func needsRedis(cfg *models.Config) bool {
	return cfg.Security.RateLimit.Backend == models.CounterBackendRedis
}

// redisCmdable keeps a nil *redis.Client from becoming a non-nil interface.
func redisCmdable(c *redis.Client) redis.Cmdable {
	if c == nil {
		return nil
	}
	return c
}

func newRedisClient(cfg models.RedisConfig) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		slog.Warn("Redis unreachable at startup, counters fail open until it recovers", "addr", cfg.Addr, "error", err)
	}
	return client
}
