package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"storyspool/internal/auth"
	"storyspool/internal/config"
	"storyspool/internal/dispatch"
	"storyspool/internal/feed"
	"storyspool/internal/models"
	"storyspool/internal/store"
	"storyspool/internal/telemetry"
)

// Store is the slice of persistence the HTTP layer needs.
type Store interface {
	CreateIfAbsent(ctx context.Context, url, userID string) (models.Job, bool, error)
	GetJob(ctx context.Context, id string) (models.Job, error)
	UpdateJob(ctx context.Context, id string, upd store.JobUpdate) error
	ListUserJobs(ctx context.Context, userID string, limit int) ([]models.Job, error)
	ListUserArticles(ctx context.Context, userID string, limit int) ([]models.Article, error)
	Ping(ctx context.Context) error
}

// Validator guards submitted URLs before a job record exists.
type Validator interface {
	Validate(ctx context.Context, url string) (bool, string)
}

// Limiter throttles submissions per user.
type Limiter interface {
	Allow(ctx context.Context, userID string) (bool, float64, error)
}

// Server wires the HTTP surface: submission, status polling, retry, the task
// webhook, article listing, and the podcast feed.
type Server struct {
	cfg        config.Config
	store      Store
	validator  Validator
	dispatcher dispatch.Dispatcher
	executor   dispatch.Executor
	authn      auth.Authenticator
	limiter    Limiter
	logger     *slog.Logger
}

// New constructs the API server. limiter may be nil to disable rate limiting.
func New(cfg config.Config, st Store, v Validator, d dispatch.Dispatcher, exec dispatch.Executor, authn auth.Authenticator, limiter Limiter, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:        cfg,
		store:      st,
		validator:  v,
		dispatcher: d,
		executor:   exec,
		authn:      authn,
		limiter:    limiter,
		logger:     logger,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logging(s.logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/store", s.handleStoreHealth)
	r.Mount("/metrics", telemetry.Handler())

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(s.authn))
		r.Post("/jobs", s.handleSubmit)
		r.Post("/jobs/{id}/retry", s.handleRetry)
		r.Get("/articles", s.handleArticles)
	})

	r.Get("/jobs/{id}", s.handleGetJob)
	r.Post("/task/worker", s.handleTaskWorker)
	r.Get("/u/{uid}/feed.xml", s.handleUserFeed)
	return r
}

type submitRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	url := strings.TrimSpace(req.URL)
	if url == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing url"})
		return
	}

	if ok, reason := s.validator.Validate(r.Context(), url); !ok {
		telemetry.URLRejects.Inc()
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid url: " + reason})
		return
	}

	uid := auth.UserID(r.Context())
	if s.limiter != nil {
		allowed, _, err := s.limiter.Allow(r.Context(), uid)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "rate limit error"})
			return
		}
		if !allowed {
			telemetry.RateLimitRejects.Inc()
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limited"})
			return
		}
	}

	job, created, err := s.store.CreateIfAbsent(r.Context(), url, uid)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "store unavailable"})
		return
	}
	if created {
		telemetry.JobsSubmitted.Inc()
	} else {
		telemetry.JobsDeduped.Inc()
	}

	// Enqueue on duplicates too: delivery is at-least-once and the executor
	// short-circuits jobs that are already done.
	if err := s.dispatcher.Enqueue(r.Context(), job.ID); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "enqueue failed"})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"job_id": job.ID, "status": job.Status})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := s.store.GetJob(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "store unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handleRetry resets any job to queued, clears its error, and re-enqueues it.
// Execution always restarts from the first stage; no resume points exist.
func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	queued := models.StatusQueued
	err := s.store.UpdateJob(r.Context(), id, store.JobUpdate{
		Status:         &queued,
		ClearLastError: true,
	})
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "store unavailable"})
		return
	}
	if err := s.dispatcher.Enqueue(r.Context(), id); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "enqueue failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "re-queued"})
}

type taskRequest struct {
	JobID string `json:"job_id"`
}

type taskResponse struct {
	OK  bool   `json:"ok"`
	Msg string `json:"msg"`
}

// handleTaskWorker is the execution trigger behind the durable-queue
// strategy. It authenticates the delivery, not a human.
func (s *Server) handleTaskWorker(w http.ResponseWriter, r *http.Request) {
	provided := r.Header.Get(dispatch.TaskTokenHeader)
	if s.cfg.TaskToken == "" || provided != s.cfg.TaskToken {
		s.logger.Warn("task token mismatch")
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.JobID == "" {
		writeJSON(w, http.StatusBadRequest, taskResponse{OK: false, Msg: "missing job_id"})
		return
	}

	ok, msg := s.executor.Run(r.Context(), req.JobID)
	code := http.StatusOK
	if !ok {
		code = http.StatusInternalServerError
	}
	writeJSON(w, code, taskResponse{OK: ok, Msg: msg})
}

func (s *Server) handleArticles(w http.ResponseWriter, r *http.Request) {
	uid := auth.UserID(r.Context())
	jobs, err := s.store.ListUserJobs(r.Context(), uid, 50)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "store unavailable"})
		return
	}
	if jobs == nil {
		jobs = []models.Job{}
	}
	writeJSON(w, http.StatusOK, jobs)
}

// handleUserFeed generates the user's podcast feed on demand. Failures return
// a valid empty feed so podcast clients don't choke on broken XML.
func (s *Server) handleUserFeed(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "uid")
	if uid == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user id is required"})
		return
	}

	channel := feed.DefaultChannel(uid, s.cfg.BaseURL+"/articles")
	articles, err := s.store.ListUserArticles(r.Context(), uid, 100)
	if err != nil {
		s.logger.Error("generate feed", slog.String("uid", uid), slog.Any("error", err))
		xmlBody, buildErr := feed.Build(channel, nil, time.Now())
		if buildErr != nil {
			http.Error(w, "feed unavailable", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write(xmlBody)
		return
	}

	xmlBody, err := feed.Build(channel, articles, time.Now())
	if err != nil {
		http.Error(w, "feed unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(xmlBody)
}

func (s *Server) handleStoreHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"status":  "error",
			"message": "store connection failed",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
