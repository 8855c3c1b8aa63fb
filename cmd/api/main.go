package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/nikhilbhutani/pagescribe/internal/api"
	"github.com/nikhilbhutani/pagescribe/internal/api/handlers"
	"github.com/nikhilbhutani/pagescribe/internal/cache"
	"github.com/nikhilbhutani/pagescribe/internal/chat"
	"github.com/nikhilbhutani/pagescribe/internal/config"
	"github.com/nikhilbhutani/pagescribe/internal/database"
	"github.com/nikhilbhutani/pagescribe/internal/llm"
	"github.com/nikhilbhutani/pagescribe/internal/storage"
	"github.com/nikhilbhutani/pagescribe/internal/store"
	"github.com/nikhilbhutani/pagescribe/internal/transcription"
	"github.com/nikhilbhutani/pagescribe/migrations"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to read .env", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.RunMigrations(ctx, db, migrations.FS); err != nil {
		return err
	}

	// Redis only fronts chat threads; the server runs without it.
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	var threadCache chat.ThreadCache
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Warn("redis unavailable, running without cache", "error", err)
	} else {
		threadCache = cache.NewCache(rdb, "pagescribe:")
	}

	objects, closeObjects, err := newStorage(ctx, cfg.Storage, cfg.LLM.GoogleCredentialsFile)
	if err != nil {
		return err
	}
	defer closeObjects()

	gateway := llm.NewGateway(ctx, cfg.LLM)
	defer gateway.Close()
	slog.Info("llm providers", "default", gateway.Default(), "configured", gateway.Configured())

	records := store.New(db, objects, cfg.Storage.Bucket)
	registry := transcription.NewRegistry(cfg.Server.JobIdleTimeout)

	checks := map[string]handlers.Pinger{"database": db}
	if threadCache != nil {
		checks["redis"] = handlers.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}

	router := api.NewRouter(cfg, api.Services{
		Jobs:      registry,
		Driver:    transcription.NewDriver(gateway, records, &cfg.Settings),
		Loader:    transcription.PDFLoader,
		Records:   records,
		Chats:     chat.NewService(records, threadCache, gateway, gateway.Default(), &cfg.Settings),
		Providers: gateway,
		Checks:    checks,
	})

	srv := &http.Server{
		Addr:        cfg.Addr(),
		Handler:     router.Setup(),
		ReadTimeout: 60 * time.Second,
		// Submissions stream progress for as long as the document takes.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("starting API server", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error { return registry.Run(gctx, time.Minute) })
	g.Go(func() error { return router.Limiter.Cleanup(gctx) })
	g.Go(func() error { return router.SubmitLimiter.Cleanup(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newStorage(ctx context.Context, cfg config.StorageConfig, credentialsFile string) (storage.Storage, func(), error) {
	switch cfg.Backend {
	case "gcs":
		gcs, err := storage.NewGCSStorage(ctx, credentialsFile)
		if err != nil {
			return nil, nil, err
		}
		return gcs, func() { _ = gcs.Close() }, nil
	default:
		return storage.NewSupabaseStorage(cfg.SupabaseURL, cfg.SupabaseKey), func() {}, nil
	}
}
