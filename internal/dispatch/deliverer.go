package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"storyspool/internal/telemetry"
)

// TaskTokenHeader authenticates webhook deliveries to the task endpoint.
const TaskTokenHeader = "X-Task-Token"

// Deliverer drains the ready list and POSTs each job id to the task webhook.
// A delivery that fails at the transport level or with a 5xx is pushed back
// onto the queue after a delay, giving at-least-once semantics. A 4xx means
// the payload or token is wrong and retrying cannot help, so the id is
// dropped and logged.
type Deliverer struct {
	client     *redis.Client
	queueKey   string
	webhookURL string
	taskToken  string
	retryDelay time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

// NewDeliverer builds a delivery loop for the queue strategy.
func NewDeliverer(client *redis.Client, queueKey, webhookURL, taskToken string, retryDelay time.Duration, logger *slog.Logger) *Deliverer {
	if logger == nil {
		logger = slog.Default()
	}
	if retryDelay == 0 {
		retryDelay = 5 * time.Second
	}
	return &Deliverer{
		client:     client,
		queueKey:   queueKey,
		webhookURL: webhookURL,
		taskToken:  taskToken,
		retryDelay: retryDelay,
		httpClient: &http.Client{Timeout: 15 * time.Minute},
		logger:     logger,
	}
}

// Run blocks on the ready list until context cancellation.
func (d *Deliverer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		res, err := d.client.BLPop(ctx, 2*time.Second, d.queueKey).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			d.logger.Error("pop ready queue", slog.Any("error", err))
			time.Sleep(d.retryDelay)
			continue
		}
		if len(res) < 2 {
			continue
		}
		jobID := res[1]

		if err := d.DeliverOnce(ctx, jobID); err != nil {
			var perm *permanentError
			if errors.As(err, &perm) {
				telemetry.WebhookDeliveries.WithLabelValues("dropped").Inc()
				d.logger.Error("dropping undeliverable job", slog.String("job_id", jobID), slog.Any("error", err))
				continue
			}
			telemetry.WebhookDeliveries.WithLabelValues("requeued").Inc()
			d.logger.Warn("delivery failed, re-queueing", slog.String("job_id", jobID), slog.Any("error", err))
			time.Sleep(d.retryDelay)
			if pushErr := d.client.RPush(ctx, d.queueKey, jobID).Err(); pushErr != nil {
				d.logger.Error("re-queue job", slog.String("job_id", jobID), slog.Any("error", pushErr))
			}
			continue
		}
		telemetry.WebhookDeliveries.WithLabelValues("ok").Inc()
	}
}

// DeliverOnce issues a single authenticated webhook call for jobID.
func (d *Deliverer) DeliverOnce(ctx context.Context, jobID string) error {
	payload, err := json.Marshal(map[string]string{"job_id": jobID})
	if err != nil {
		return &permanentError{err: fmt.Errorf("marshal payload: %w", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return &permanentError{err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(TaskTokenHeader, d.taskToken)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("deliver webhook: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode < http.StatusMultipleChoices:
		return nil
	case resp.StatusCode < http.StatusInternalServerError:
		return &permanentError{err: fmt.Errorf("webhook rejected delivery: status %d", resp.StatusCode)}
	default:
		// 500 includes pipeline failures; the job already carries a terminal
		// failure status, so redelivery would just short-circuit or re-fail.
		// Still treated as delivered: retry is an explicit user action.
		return nil
	}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }
