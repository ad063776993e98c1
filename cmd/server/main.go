package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	apihttp "librarium/contentservice/internal/api/http"
	"librarium/contentservice/internal/app"
	"librarium/contentservice/internal/breaker"
	"librarium/contentservice/internal/cache"
	"librarium/contentservice/internal/discovery"
	"librarium/contentservice/internal/fallback"
	"librarium/contentservice/internal/fetcher"
	"librarium/contentservice/internal/health"
	"librarium/contentservice/internal/metrics"
	"librarium/contentservice/internal/pagination"
	"librarium/contentservice/internal/search"
	"librarium/contentservice/internal/telemetry"
	"librarium/contentservice/internal/timeout"
	"librarium/contentservice/internal/transform"
	"librarium/contentservice/internal/upstream"
)

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), "content-discovery")
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", "content-discovery"),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.String("upstreamBaseURL", cfg.UpstreamBaseURL),
		slog.Bool("hasFallback", strings.TrimSpace(cfg.FallbackBaseURL) != ""),
		slog.Bool("hasRedis", strings.TrimSpace(cfg.RedisURL) != ""),
		slog.Duration("cacheTTL", cfg.SearchCacheTTL),
		slog.Duration("pageTimeout", cfg.PageTimeout),
		slog.Duration("aggregateTimeout", cfg.AggregateTimeout),
	)

	upstreamClient := upstream.NewClient(upstream.Config{
		BaseURL:   cfg.UpstreamBaseURL,
		UserAgent: cfg.UserAgent,
		Client: &http.Client{
			Timeout:   cfg.PageTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	})
	fallbackClient := &http.Client{
		Timeout:   cfg.PageTimeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	timeouts := timeout.NewManager()
	transformer := transform.New()
	upstreamBreaker := breaker.New("content-api")

	fallbackProvider := fallback.New(fallback.Config{
		BaseURL: cfg.FallbackBaseURL,
		APIKey:  cfg.FallbackAPIKey,
		Client:  fallbackClient,
		Logger:  logger,
	}, transformer)

	contentFetcher := fetcher.New(upstreamClient, transformer, upstreamBreaker, timeouts,
		fetcher.WithLogger(logger),
	)
	discoveryService := discovery.New(upstreamClient, timeouts, logger)

	monitor := health.NewMonitor(upstreamClient,
		health.WithInterval(cfg.ProbeInterval),
		health.WithProbeDeadline(cfg.ProbeTimeout),
		health.WithLogger(logger),
	)

	table := pagination.NewProportionTable(pagination.DefaultCounts())
	pages := pagination.NewService(upstreamClient, transformer, upstreamBreaker, timeouts, fallbackProvider, table, logger)

	redisClient := connectRedis(cfg, logger)

	searchOpts := []search.Option{
		search.WithLogger(logger),
		search.WithCacheTTL(cfg.SearchCacheTTL),
		search.WithCacheDisabled(cfg.CacheDisabled),
	}
	if redisClient != nil {
		searchOpts = append(searchOpts, search.WithRedis(cache.NewRedisBackend(redisClient)))
	}
	orchestrator := search.NewOrchestrator(pages, contentFetcher, discoveryService, fallbackProvider, monitor, timeouts, searchOpts...)

	serverOpts := []apihttp.ServerOption{
		apihttp.WithLogger(logger),
		apihttp.WithDetail(search.NewDetail(upstreamClient, transformer, timeouts)),
	}
	if fallbackProvider.Enabled() {
		serverOpts = append(serverOpts, apihttp.WithFeatured(fallback.NewRotationStore(fallbackProvider, redisClient)))
	}

	handler := apihttp.NewServer(orchestrator, serverOpts...).Handler()
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Deep filtered virtual pages can run close to the aggregate
		// deadline; give writes headroom beyond it.
		WriteTimeout: cfg.AggregateTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	monitor.Start(rootCtx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	logger.Info("content discovery service started",
		slog.String("addr", cfg.HTTPAddr),
	)

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	timeouts.CancelAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", slog.String("error", err.Error()))
	}
	logger.Info("content discovery service stopped")
}

func connectRedis(cfg app.Config, logger *slog.Logger) *redis.Client {
	redisURL := strings.TrimSpace(cfg.RedisURL)
	if redisURL == "" {
		return nil
	}
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn("invalid redis url, using in-memory caches only", slog.String("error", err.Error()))
		return nil
	}
	client := redis.NewClient(redisOpts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not reachable, using in-memory caches only", slog.String("error", err.Error()))
		return nil
	}
	logger.Info("redis connected", slog.String("addr", redisOpts.Addr))
	return client
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
