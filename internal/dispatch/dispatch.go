package dispatch

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Dispatcher schedules asynchronous execution of the pipeline for a job id.
// Enqueue returns without waiting for completion. Delivery is at-least-once;
// the executor's done short-circuit is the dedup mechanism, not the
// dispatcher.
type Dispatcher interface {
	Enqueue(ctx context.Context, jobID string) error
}

// Executor is what a dispatcher ultimately invokes.
type Executor interface {
	Run(ctx context.Context, jobID string) (bool, string)
}

// Inline runs the pipeline on a detached goroutine inside the API process.
// It shares the process lifetime: jobs in flight at shutdown are lost until
// redelivered via retry.
type Inline struct {
	executor Executor
	logger   *slog.Logger
}

// NewInline builds the in-process strategy.
func NewInline(exec Executor, logger *slog.Logger) *Inline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Inline{executor: exec, logger: logger}
}

func (d *Inline) Enqueue(_ context.Context, jobID string) error {
	go func() {
		// Deliberately detached from the request context; the pipeline
		// outlives the submitting request.
		ok, msg := d.executor.Run(context.Background(), jobID)
		d.logger.Info("inline dispatch finished",
			slog.String("job_id", jobID),
			slog.Bool("ok", ok),
			slog.String("msg", msg))
	}()
	return nil
}

// Queue publishes job ids to a durable Redis list. A separate delivery worker
// (see Deliverer) pops ids and issues the authenticated webhook callback.
type Queue struct {
	client   *redis.Client
	queueKey string
}

// NewQueue builds the durable-queue strategy.
func NewQueue(client *redis.Client, queueKey string) *Queue {
	return &Queue{client: client, queueKey: queueKey}
}

func (d *Queue) Enqueue(ctx context.Context, jobID string) error {
	return d.client.RPush(ctx, d.queueKey, jobID).Err()
}
