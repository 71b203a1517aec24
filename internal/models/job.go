package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Status enumerates job lifecycle states persisted in Postgres.
type Status string

const (
	StatusQueued         Status = "queued"
	StatusFetching       Status = "fetching"
	StatusParsing        Status = "parsing"
	StatusTTSGenerating  Status = "tts_generating"
	StatusUploadingAudio Status = "uploading_audio"
	StatusDone           Status = "done"
	StatusFailedFetch    Status = "failed_fetch"
	StatusFailedParse    Status = "failed_parse"
	StatusFailedTTS      Status = "failed_tts"
	StatusFailedUpload   Status = "failed_upload"
)

// Valid reports whether s is one of the enumerated statuses. Anything else
// must never be written to the store.
func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusFetching, StatusParsing, StatusTTSGenerating,
		StatusUploadingAudio, StatusDone, StatusFailedFetch, StatusFailedParse,
		StatusFailedTTS, StatusFailedUpload:
		return true
	}
	return false
}

// Terminal reports whether automatic progression stops at s. Only an explicit
// retry exits a terminal status.
func (s Status) Terminal() bool {
	switch s {
	case StatusDone, StatusFailedFetch, StatusFailedParse, StatusFailedTTS, StatusFailedUpload:
		return true
	}
	return false
}

// FailureFor maps the in-progress status a job held when a stage failed to
// the terminal failure status recorded for it. Parsing failures are bundled
// into the fetch/extract stage boundary. Unknown or already-terminal statuses
// fall back to FailedFetch.
func FailureFor(s Status) Status {
	switch s {
	case StatusFetching, StatusParsing:
		return StatusFailedFetch
	case StatusTTSGenerating:
		return StatusFailedTTS
	case StatusUploadingAudio:
		return StatusFailedUpload
	default:
		return StatusFailedFetch
	}
}

// Job is one tracked attempt to convert a URL into narrated audio. The row is
// created once per distinct URL and mutated in place; it is never deleted.
type Job struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	UserID      string    `json:"user_id"`
	Status      Status    `json:"status"`
	Title       *string   `json:"title"`
	AudioURL    *string   `json:"audio_url"`
	LastError   *string   `json:"last_error"`
	DurationSec *float64  `json:"processing_duration_seconds"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// URLHash derives the job id (and dedup key) from a submitted URL. The scheme
// is stable and external callers may rely on it: the first 12 hex characters
// of sha256(url).
func URLHash(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])[:12]
}

// Article is the durable record written when a job's audio lands in the blob
// store. It feeds the per-user article list and podcast feed.
type Article struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Title        string    `json:"title"`
	URL          string    `json:"url"`
	CanonicalURL *string   `json:"canonical_url"`
	Site         string    `json:"site"`
	Summary      *string   `json:"summary"`
	Author       *string   `json:"author"`
	Image        *string   `json:"image"`
	Published    *string   `json:"published"`
	AudioURL     string    `json:"audio_url"`
	CreatedAt    time.Time `json:"created_at"`
}
