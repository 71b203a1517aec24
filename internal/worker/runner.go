package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"storyspool/internal/blob"
	"storyspool/internal/extract"
	"storyspool/internal/models"
	"storyspool/internal/store"
	"storyspool/internal/telemetry"
)

// User-safe messages written to last_error. Internal causes stay in logs and
// the synchronous caller's message; they are never persisted on the job.
const (
	msgFetchFailed  = "We couldn't process this URL. It might be a paywalled article, a video, or a page without a clear body of text. Please try a different URL."
	msgTTSFailed    = "We couldn't turn this article into audio. Please try again later."
	msgUploadFailed = "We couldn't store the generated audio. Please try again later."
)

// JobStore is the slice of the store the runner needs.
type JobStore interface {
	GetJob(ctx context.Context, id string) (models.Job, error)
	UpdateJob(ctx context.Context, id string, upd store.JobUpdate) error
	SaveArticle(ctx context.Context, a models.Article) error
}

// Extractor fetches a URL and returns article text and metadata.
type Extractor interface {
	Extract(ctx context.Context, url string) (*extract.Article, error)
}

// Synthesizer turns article text into MP3 bytes.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Runner executes the pipeline for one job at a time. It is the error
// boundary: Run never panics outward and converts every stage failure into a
// terminal status plus a message.
type Runner struct {
	store    JobStore
	extract  Extractor
	synth    Synthesizer
	uploader blob.Uploader
	logger   *slog.Logger
}

// NewRunner wires the executor with its stage collaborators.
func NewRunner(st JobStore, ex Extractor, sy Synthesizer, up blob.Uploader, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{store: st, extract: ex, synth: sy, uploader: up, logger: logger}
}

// Run drives a job through fetch/extract, synthesis, and upload/record.
// Duplicate deliveries are expected: a job already done short-circuits.
// Returns (success, message); the message carries raw error detail for the
// caller and logs only.
func (r *Runner) Run(ctx context.Context, jobID string) (ok bool, msg string) {
	defer func() {
		if rec := recover(); rec != nil {
			ok, msg = r.fail(ctx, jobID, fmt.Errorf("panic: %v", rec))
		}
	}()

	job, err := r.store.GetJob(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		return false, "job not found"
	}
	if err != nil {
		return false, err.Error()
	}
	if job.Status == models.StatusDone {
		return true, "already done"
	}

	start := time.Now()
	log := r.logger.With(slog.String("job_id", job.ID), slog.String("url", job.URL))

	// Stage 1: fetch + extract.
	if err := r.setStatus(ctx, job.ID, models.StatusFetching); err != nil {
		return r.fail(ctx, job.ID, err)
	}
	stageStart := time.Now()
	art, err := r.extract.Extract(ctx, job.URL)
	if err != nil {
		return r.fail(ctx, job.ID, err)
	}
	r.observe(log, "fetch_extract", stageStart, models.StatusParsing)
	if err := r.store.UpdateJob(ctx, job.ID, store.JobUpdate{
		Status: statusPtr(models.StatusParsing),
		Title:  &art.Title,
	}); err != nil {
		return r.fail(ctx, job.ID, err)
	}

	// Stage 2: speech synthesis.
	if err := r.setStatus(ctx, job.ID, models.StatusTTSGenerating); err != nil {
		return r.fail(ctx, job.ID, err)
	}
	stageStart = time.Now()
	audio, err := r.synth.Synthesize(ctx, art.Text)
	if err != nil {
		return r.fail(ctx, job.ID, err)
	}
	r.observe(log, "tts", stageStart, models.StatusUploadingAudio)

	// Stage 3: upload + article record.
	if err := r.setStatus(ctx, job.ID, models.StatusUploadingAudio); err != nil {
		return r.fail(ctx, job.ID, err)
	}
	stageStart = time.Now()
	key := blob.AudioKey(job.ID, time.Now().UTC())
	audioURL, err := r.uploader.Upload(ctx, key, audio, "audio/mpeg")
	if err != nil {
		return r.fail(ctx, job.ID, err)
	}
	if err := r.store.SaveArticle(ctx, articleRecord(job, art, audioURL)); err != nil {
		return r.fail(ctx, job.ID, err)
	}
	r.observe(log, "upload", stageStart, models.StatusDone)

	elapsed := time.Since(start).Seconds()
	if err := r.store.UpdateJob(ctx, job.ID, store.JobUpdate{
		Status:      statusPtr(models.StatusDone),
		AudioURL:    &audioURL,
		Title:       &art.Title,
		DurationSec: &elapsed,
	}); err != nil {
		return r.fail(ctx, job.ID, err)
	}

	telemetry.PipelineSuccess.Inc()
	log.Info("pipeline done", slog.Float64("duration_seconds", elapsed))
	return true, "ok"
}

// fail re-reads the persisted status (it reflects the stage that was in
// progress), maps it to the terminal failure status, and writes a sanitized
// last_error. The raw error text goes back to the caller only.
func (r *Runner) fail(ctx context.Context, jobID string, cause error) (bool, string) {
	status := models.StatusQueued
	if job, err := r.store.GetJob(ctx, jobID); err == nil {
		status = job.Status
	}
	failed := models.FailureFor(status)

	safe := safeMessage(failed)
	if err := r.store.UpdateJob(ctx, jobID, store.JobUpdate{
		Status:    &failed,
		LastError: &safe,
	}); err != nil {
		r.logger.Error("persist failure status", slog.String("job_id", jobID), slog.Any("error", err))
	}

	telemetry.PipelineFailures.WithLabelValues(string(failed)).Inc()
	r.logger.Error("pipeline failed",
		slog.String("job_id", jobID),
		slog.String("status", string(failed)),
		slog.Any("error", cause))
	return false, cause.Error()
}

func (r *Runner) setStatus(ctx context.Context, jobID string, s models.Status) error {
	return r.store.UpdateJob(ctx, jobID, store.JobUpdate{Status: &s})
}

func (r *Runner) observe(log *slog.Logger, stage string, start time.Time, next models.Status) {
	elapsed := time.Since(start)
	telemetry.ObserveStage(stage, elapsed)
	log.Info("stage complete",
		slog.String("stage", stage),
		slog.Duration("duration", elapsed),
		slog.String("next_status", string(next)))
}

func safeMessage(failed models.Status) string {
	switch failed {
	case models.StatusFailedTTS:
		return msgTTSFailed
	case models.StatusFailedUpload:
		return msgUploadFailed
	default:
		return msgFetchFailed
	}
}

func articleRecord(job models.Job, art *extract.Article, audioURL string) models.Article {
	return models.Article{
		ID:           job.ID,
		UserID:       job.UserID,
		Title:        art.Title,
		URL:          job.URL,
		CanonicalURL: optional(art.CanonicalURL),
		Site:         art.Site,
		Summary:      optional(art.Summary),
		Author:       optional(art.Author),
		Image:        optional(art.Image),
		Published:    optional(art.Published),
		AudioURL:     audioURL,
		CreatedAt:    time.Now().UTC(),
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func statusPtr(s models.Status) *models.Status { return &s }
