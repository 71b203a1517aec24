package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"storyspool/internal/config"
	"storyspool/internal/dispatch"
	"storyspool/internal/telemetry"
)

// The delivery worker for the durable-queue strategy: drains the ready list
// and issues authenticated webhook callbacks to the API's task endpoint,
// where the pipeline actually runs.
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

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	deliverer := dispatch.NewDeliverer(
		client,
		cfg.QueueKey,
		cfg.BaseURL+"/task/worker",
		cfg.TaskToken,
		cfg.DeliveryRetry,
		logger,
	)

	go func() {
		if err := http.ListenAndServe(cfg.MetricsAddr, telemetry.Handler()); err != nil {
			logger.Warn("metrics server stopped", slog.Any("error", err))
		}
	}()

	logger.Info("delivery worker started",
		slog.String("queue", cfg.QueueKey),
		slog.String("webhook", cfg.BaseURL+"/task/worker"))
	if err := deliverer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("delivery worker stopped", slog.Any("error", err))
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	if cfg.Env == "prod" {
		return slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}
