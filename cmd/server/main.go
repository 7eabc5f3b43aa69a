package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"yt_relay/internal/api"
	"yt_relay/internal/cache"
	"yt_relay/internal/config"
	"yt_relay/internal/queue"
	"yt_relay/internal/storage"
	"yt_relay/internal/subscription"
	"yt_relay/internal/telegram"
	"yt_relay/internal/webhook"
	"yt_relay/internal/worker"
	"yt_relay/internal/youtube"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c, err := newCache(ctx, cfg)
	if err != nil {
		log.Error("connect cache", "error", err)
		os.Exit(1)
	}
	defer func() { _ = c.Close() }()

	notifier, err := telegram.New(cfg.TelegramBotToken, log)
	if err != nil {
		log.Error("create telegram notifier", "error", err)
		os.Exit(1)
	}

	resolver := youtube.New(http.DefaultClient, c, cfg.YouTubeAPIKey, log)

	pipeline := worker.New(store, c, resolver, notifier, log, worker.Options{
		Keywords:   cfg.FilterKeywords,
		MinSeconds: cfg.MinDurationSeconds,
		MaxSeconds: cfg.MaxDurationSeconds,
		RequireHD:  cfg.RequireHD,
	})

	jobs := queue.New(store, pipeline.Handle, log, queue.Options{
		Concurrency: cfg.WorkerConcurrency,
	})

	subs := subscription.New(store, http.DefaultClient, cfg.HubURL, cfg.CallbackURL(),
		cfg.RenewalInterval, cfg.RenewalLookahead, log)

	server := api.New(store, subs, resolver, webhook.NewHandler(jobs, log), log)

	log.Info("starting relay", "listen", cfg.ListenAddr, "callback", cfg.CallbackURL())

	go jobs.Run(ctx)
	go subs.Run(ctx)
	go janitor(ctx, store, cfg.Retention, log)

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("http server", "error", err)
		os.Exit(1)
	}

	log.Info("relay stopped")
}

// janitor bounds storage: old video records and parked failed jobs are
// removed once they age past the retention window.
func janitor(ctx context.Context, store storage.Storage, retention time.Duration, log *slog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-retention)
			if n, err := store.PruneVideosBefore(ctx, cutoff); err != nil {
				log.Error("prune videos", "error", err)
			} else if n > 0 {
				log.Info("pruned videos", "count", n)
			}
			if n, err := store.PurgeFailedJobsBefore(ctx, cutoff); err != nil {
				log.Error("purge failed jobs", "error", err)
			} else if n > 0 {
				log.Info("purged failed jobs", "count", n)
			}
		}
	}
}

func newCache(ctx context.Context, cfg *config.Config) (cache.Cache, error) {
	if cfg.RedisURL == "" {
		return cache.NewMemory(), nil
	}
	return cache.NewRedis(ctx, cfg.RedisURL)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
