package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"storyspool/internal/models"
)

// ErrNotFound is returned when a job or article id has no row.
var ErrNotFound = errors.New("not found")

// Store wraps pgxpool for Postgres persistence of jobs and article records.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a pooled connection to Postgres.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping verifies store connectivity for health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateIfAbsent inserts a queued job for the URL unless one already exists.
// The id is a pure function of the URL, so a second submission of the same
// URL — by any user — resolves to the first job untouched. The returned bool
// is true when a new row was written.
func (s *Store) CreateIfAbsent(ctx context.Context, url, userID string) (models.Job, bool, error) {
	id := models.URLHash(url)
	now := time.Now().UTC()

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO jobs (id, url, user_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (id) DO NOTHING
	`, id, url, userID, models.StatusQueued, now)
	if err != nil {
		return models.Job{}, false, fmt.Errorf("insert job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		existing, err := s.GetJob(ctx, id)
		if err != nil {
			return models.Job{}, false, err
		}
		return existing, false, nil
	}

	return models.Job{
		ID:        id,
		URL:       url,
		UserID:    userID,
		Status:    models.StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, true, nil
}

// GetJob fetches a job by id. Returns ErrNotFound for unknown ids.
func (s *Store) GetJob(ctx context.Context, id string) (models.Job, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, url, user_id, status, title, audio_url, last_error,
		       processing_duration_seconds, created_at, updated_at
		FROM jobs WHERE id = $1
	`, id)
	return scanJob(row)
}

// JobUpdate is a partial merge into a job row; nil fields are left untouched.
// ClearLastError nulls last_error explicitly, which a plain pointer cannot
// express.
type JobUpdate struct {
	Status         *models.Status
	Title          *string
	AudioURL       *string
	LastError      *string
	ClearLastError bool
	DurationSec    *float64
}

// UpdateJob merges the given fields into the job row, always stamping
// updated_at. A status outside the enumerated set is refused before any write.
func (s *Store) UpdateJob(ctx context.Context, id string, upd JobUpdate) error {
	sets := []string{"updated_at = NOW()"}
	args := []any{id}

	add := func(col string, val any) {
		args = append(args, val)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if upd.Status != nil {
		if !upd.Status.Valid() {
			return fmt.Errorf("invalid status %q", *upd.Status)
		}
		add("status", *upd.Status)
	}
	if upd.Title != nil {
		add("title", *upd.Title)
	}
	if upd.AudioURL != nil {
		add("audio_url", *upd.AudioURL)
	}
	if upd.ClearLastError {
		sets = append(sets, "last_error = NULL")
	} else if upd.LastError != nil {
		add("last_error", *upd.LastError)
	}
	if upd.DurationSec != nil {
		add("processing_duration_seconds", *upd.DurationSec)
	}

	query := "UPDATE jobs SET " + strings.Join(sets, ", ") + " WHERE id = $1"
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update job %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListUserJobs returns the user's jobs, newest first.
func (s *Store) ListUserJobs(ctx context.Context, userID string, limit int) ([]models.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, url, user_id, status, title, audio_url, last_error,
		       processing_duration_seconds, created_at, updated_at
		FROM jobs WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// SaveArticle upserts the article record keyed by urlhash.
func (s *Store) SaveArticle(ctx context.Context, a models.Article) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO articles (id, user_id, title, url, canonical_url, site,
		                      summary, author, image, published, audio_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			canonical_url = EXCLUDED.canonical_url,
			summary = EXCLUDED.summary,
			author = EXCLUDED.author,
			image = EXCLUDED.image,
			published = EXCLUDED.published,
			audio_url = EXCLUDED.audio_url
	`, a.ID, a.UserID, a.Title, a.URL, a.CanonicalURL, a.Site,
		a.Summary, a.Author, a.Image, a.Published, a.AudioURL, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("save article: %w", err)
	}
	return nil
}

// ListUserArticles returns the user's article records, newest first.
func (s *Store) ListUserArticles(ctx context.Context, userID string, limit int) ([]models.Article, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, title, url, canonical_url, site, summary, author,
		       image, published, audio_url, created_at
		FROM articles WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	defer rows.Close()

	var articles []models.Article
	for rows.Next() {
		var a models.Article
		var canonical, summary, author, image, published pgtype.Text
		if err := rows.Scan(&a.ID, &a.UserID, &a.Title, &a.URL, &canonical, &a.Site,
			&summary, &author, &image, &published, &a.AudioURL, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		a.CanonicalURL = textPtr(canonical)
		a.Summary = textPtr(summary)
		a.Author = textPtr(author)
		a.Image = textPtr(image)
		a.Published = textPtr(published)
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (models.Job, error) {
	var job models.Job
	var title, audioURL, lastErr pgtype.Text
	var duration pgtype.Float8

	err := row.Scan(&job.ID, &job.URL, &job.UserID, &job.Status, &title,
		&audioURL, &lastErr, &duration, &job.CreatedAt, &job.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Job{}, ErrNotFound
	}
	if err != nil {
		return models.Job{}, fmt.Errorf("scan job: %w", err)
	}

	job.Title = textPtr(title)
	job.AudioURL = textPtr(audioURL)
	job.LastError = textPtr(lastErr)
	if duration.Valid {
		job.DurationSec = &duration.Float64
	}
	return job, nil
}

func textPtr(t pgtype.Text) *string {
	if t.Valid {
		return &t.String
	}
	return nil
}
