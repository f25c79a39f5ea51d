package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	v1 "github.com/jaennil/guide_helper/backend/tilestream/internal/infrastructure/http/v1"
	"github.com/jaennil/guide_helper/backend/tilestream/internal/infrastructure/http/v1/handler"
	"github.com/jaennil/guide_helper/backend/tilestream/internal/infrastructure/ws"
	"github.com/jaennil/guide_helper/backend/tilestream/internal/repository/content"
	"github.com/jaennil/guide_helper/backend/tilestream/internal/tileset"
	"github.com/jaennil/guide_helper/backend/tilestream/internal/usecase"
	"github.com/jaennil/guide_helper/backend/tilestream/pkg/config"
	"github.com/jaennil/guide_helper/backend/tilestream/pkg/http_server"
	"github.com/jaennil/guide_helper/backend/tilestream/pkg/logger"
	"github.com/jaennil/guide_helper/backend/tilestream/pkg/metrics"
	"github.com/jaennil/guide_helper/backend/tilestream/pkg/telemetry"
)

func Run(cfg *config.Config) {
	l := logger.NewZapLogger(cfg.Logger.Level)
	defer l.Sync()

	l.Info("starting tilestream service", "tileset", cfg.Tileset.URL, "store", cfg.Content.Store)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctx = logger.WithLogger(ctx, l)

	if cfg.Telemetry.Enabled {
		shutdownTelemetry, err := telemetry.InitTracer(telemetry.Config{
			ServiceName:    cfg.Telemetry.ServiceName,
			ServiceVersion: cfg.Telemetry.ServiceVersion,
			Environment:    cfg.Telemetry.Environment,
			OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		}, l)
		if err != nil {
			l.Fatal("failed to initialize telemetry", "error", err)
		}
		defer func() {
			if err := shutdownTelemetry(context.Background()); err != nil {
				l.Error("failed to shutdown telemetry", "error", err)
			}
		}()
		l.Info("telemetry initialized", "service", cfg.Telemetry.ServiceName)
	}

	// Initialize the content store
	store, err := content.Open(content.Config{
		Backend: content.Backend(cfg.Content.Store),
		Path:    cfg.Content.Path,
		TTL:     cfg.Content.TTL,
		Redis: content.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.TTL,
		},
	}, l)
	if err != nil {
		l.Fatal("failed to open content store", "store", cfg.Content.Store, "error", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			l.Error("failed to close content store", "error", err)
		}
	}()
	if rs, ok := store.(*content.RedisStore); ok {
		go exportRedisPoolStats(ctx, rs)
	}

	contentUseCase := usecase.NewContentUseCase(store, cfg.Content.UpstreamTimeout, cfg.Content.UserAgent, l)

	// Load the tileset
	opts, err := tilesetOptions(cfg.Tileset)
	if err != nil {
		l.Fatal("invalid tileset options", "error", err)
	}
	shared := tileset.NewSharedResources()
	defer shared.Teardown()
	opts.Fetcher = contentUseCase
	opts.Logger = l
	opts.SharedResources = shared

	ts, err := tileset.Load(ctx, cfg.Tileset.URL, opts)
	if err != nil {
		l.Fatal("failed to load tileset", "url", cfg.Tileset.URL, "error", err)
	}
	l.Info("tileset loaded",
		"url", cfg.Tileset.URL,
		"version", ts.Asset().Version,
		"tiles", ts.Statistics().NumberOfTilesTotal,
	)

	flight, err := cameraFlight(cfg.Frame, ts)
	if err != nil {
		l.Fatal("invalid camera path", "error", err)
	}

	// Start the frame loop
	hub := ws.NewHub(l)
	loop := usecase.NewFrameLoop(ts, usecase.FrameConfig{
		Interval: frameInterval(cfg.Frame.Rate),
		Width:    cfg.Frame.Width,
		Height:   cfg.Frame.Height,
		Fovy:     cfg.Frame.Fovy,
	}, flight, hub, l)

	loopDone := make(chan error, 1)
	go func() {
		loopDone <- loop.Run(ctx)
	}()

	// Initialize the HTTP handler
	validate := validator.New()
	h := handler.NewHandler(validate, loop, hub)
	router := v1.NewRouter(h, l, cfg.Telemetry.Enabled)

	httpServer := http_server.NewServer(cfg.HTTP.Server, router, l)

	go func() {
		l.Info("starting http server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatal("http server failed", "error", err)
		}
	}()

	select {
	case <-ctx.Done():
		l.Info("received shutdown signal")
	case err := <-loopDone:
		l.Error("frame loop exited", "error", err)
		loopDone <- err
		stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	hub.Close()

	l.Info("shutting down http server...", "address", httpServer.Addr)
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		l.Error("http server shutdown failed", "error", err)
	} else {
		l.Info("http server shutdown completed")
	}

	select {
	case err := <-loopDone:
		if err != nil {
			l.Error("frame loop stopped with error", "error", err)
		}
	case <-shutdownCtx.Done():
		l.Warn("timeout waiting for frame loop to finish")
	}

	l.Info("application shutdown completed")
}

func frameInterval(rate int) time.Duration {
	if rate <= 0 {
		rate = 30
	}
	return time.Second / time.Duration(rate)
}

// cameraFlight builds the scripted camera path looking at the tileset root.
// It returns nil when no path is configured.
func cameraFlight(cfg config.Frame, ts *tileset.Tileset) (*usecase.CameraFlight, error) {
	waypoints, err := usecase.ParseWaypoints(cfg.CameraPath)
	if err != nil {
		return nil, err
	}
	if len(waypoints) == 0 {
		return nil, nil
	}
	fn, err := easing(cfg.CameraEasing)
	if err != nil {
		return nil, fmt.Errorf("camera easing: %w", err)
	}
	target := ts.Root().BoundingVolume().Center()
	return usecase.NewCameraFlight(waypoints, target, cfg.FlightDuration, fn), nil
}

func exportRedisPoolStats(ctx context.Context, rs *content.RedisStore) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := rs.PoolStats()
			metrics.RedisPoolStats.WithLabelValues("hits").Set(float64(stats.Hits))
			metrics.RedisPoolStats.WithLabelValues("misses").Set(float64(stats.Misses))
			metrics.RedisPoolStats.WithLabelValues("timeouts").Set(float64(stats.Timeouts))
			metrics.RedisPoolStats.WithLabelValues("total_conns").Set(float64(stats.TotalConns))
			metrics.RedisPoolStats.WithLabelValues("idle_conns").Set(float64(stats.IdleConns))
			metrics.RedisPoolStats.WithLabelValues("stale_conns").Set(float64(stats.StaleConns))
		}
	}
}
