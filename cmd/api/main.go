package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"storyspool/internal/api"
	"storyspool/internal/auth"
	"storyspool/internal/blob"
	"storyspool/internal/config"
	"storyspool/internal/dispatch"
	"storyspool/internal/extract"
	"storyspool/internal/ratelimit"
	"storyspool/internal/store"
	"storyspool/internal/tts"
	"storyspool/internal/urlcheck"
	"storyspool/internal/worker"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	st, err := store.New(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer st.Close()

	if err := st.RunMigrations(ctx); err != nil {
		logger.Error("migrations", slog.Any("error", err))
		os.Exit(1)
	}

	uploader, err := blob.New(ctx, cfg)
	if err != nil {
		logger.Error("init uploader", slog.Any("error", err))
		os.Exit(1)
	}

	runner := worker.NewRunner(
		st,
		extract.NewClient(cfg.FetchTimeout, cfg.UserAgent, cfg.FetchMaxBytes),
		tts.NewClient(cfg.TTSEndpoint, cfg.TTSAPIKey, cfg.TTSVoice, cfg.TTSMaxChunk, cfg.TTSMaxRetries),
		uploader,
		logger,
	)

	var dispatcher dispatch.Dispatcher
	var limiter api.Limiter
	if cfg.DispatchMode == config.DispatchQueue {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		dispatcher = dispatch.NewQueue(client, cfg.QueueKey)
		limiter = ratelimit.New(client, cfg.RateLimitCapacity, cfg.RateLimitRefill, time.Hour)
	} else {
		dispatcher = dispatch.NewInline(runner, logger)
	}

	server := api.New(cfg, st, urlcheck.New(), dispatcher, runner, auth.StaticTokens(cfg.UserAPIKeys), limiter, logger)
	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: server.Router(),
	}

	logger.Info("api listening",
		slog.String("port", cfg.HTTPPort),
		slog.String("dispatch_mode", cfg.DispatchMode))
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("listen", slog.Any("error", err))
			cancel()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
}

func newLogger(cfg config.Config) *slog.Logger {
	if cfg.Env == "prod" {
		return slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}
