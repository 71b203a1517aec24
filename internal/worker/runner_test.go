package worker

import (
	"context"
	"errors"
	"testing"

	"storyspool/internal/extract"
	"storyspool/internal/models"
	"storyspool/internal/store"
)

type fakeStore struct {
	jobs     map[string]models.Job
	articles map[string]models.Article
	history  []models.Status
	updates  int
}

func newFakeStore(jobs ...models.Job) *fakeStore {
	fs := &fakeStore{jobs: map[string]models.Job{}, articles: map[string]models.Article{}}
	for _, j := range jobs {
		fs.jobs[j.ID] = j
	}
	return fs
}

func (f *fakeStore) GetJob(_ context.Context, id string) (models.Job, error) {
	job, ok := f.jobs[id]
	if !ok {
		return models.Job{}, store.ErrNotFound
	}
	return job, nil
}

func (f *fakeStore) UpdateJob(_ context.Context, id string, upd store.JobUpdate) error {
	job, ok := f.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	f.updates++
	if upd.Status != nil {
		if !upd.Status.Valid() {
			return errors.New("invalid status")
		}
		job.Status = *upd.Status
		f.history = append(f.history, *upd.Status)
	}
	if upd.Title != nil {
		job.Title = upd.Title
	}
	if upd.AudioURL != nil {
		job.AudioURL = upd.AudioURL
	}
	if upd.ClearLastError {
		job.LastError = nil
	} else if upd.LastError != nil {
		job.LastError = upd.LastError
	}
	if upd.DurationSec != nil {
		job.DurationSec = upd.DurationSec
	}
	f.jobs[id] = job
	return nil
}

func (f *fakeStore) SaveArticle(_ context.Context, a models.Article) error {
	f.articles[a.ID] = a
	return nil
}

type fakeExtractor struct {
	art *extract.Article
	err error
}

func (f *fakeExtractor) Extract(context.Context, string) (*extract.Article, error) {
	return f.art, f.err
}

type fakeSynth struct {
	audio []byte
	err   error
}

func (f *fakeSynth) Synthesize(context.Context, string) ([]byte, error) {
	return f.audio, f.err
}

type fakeUploader struct {
	url string
	err error
}

func (f *fakeUploader) Upload(context.Context, string, []byte, string) (string, error) {
	return f.url, f.err
}

func queuedJob(id string) models.Job {
	return models.Job{ID: id, URL: "https://example.com/a", UserID: "u1", Status: models.StatusQueued}
}

func happyRunner(fs *fakeStore) *Runner {
	return NewRunner(fs,
		&fakeExtractor{art: &extract.Article{Title: "A Title", Text: "Body text.", Site: "example.com"}},
		&fakeSynth{audio: []byte("mp3")},
		&fakeUploader{url: "https://cdn.example.com/audio/abc.mp3"},
		nil)
}

func TestRunHappyPathTransitions(t *testing.T) {
	fs := newFakeStore(queuedJob("abc"))
	ok, msg := happyRunner(fs).Run(context.Background(), "abc")
	if !ok || msg != "ok" {
		t.Fatalf("expected (true, ok), got (%v, %q)", ok, msg)
	}

	want := []models.Status{
		models.StatusFetching,
		models.StatusParsing,
		models.StatusTTSGenerating,
		models.StatusUploadingAudio,
		models.StatusDone,
	}
	if len(fs.history) != len(want) {
		t.Fatalf("status history %v, want %v", fs.history, want)
	}
	for i, s := range want {
		if fs.history[i] != s {
			t.Fatalf("transition %d = %s, want %s (history %v)", i, fs.history[i], s, fs.history)
		}
	}

	job := fs.jobs["abc"]
	if job.Title == nil || *job.Title != "A Title" {
		t.Errorf("title not persisted: %v", job.Title)
	}
	if job.AudioURL == nil || *job.AudioURL == "" {
		t.Errorf("audio url not persisted")
	}
	if job.DurationSec == nil {
		t.Errorf("processing duration not persisted")
	}
	if _, ok := fs.articles["abc"]; !ok {
		t.Errorf("article record not written")
	}
}

func TestRunJobNotFound(t *testing.T) {
	fs := newFakeStore()
	ok, msg := happyRunner(fs).Run(context.Background(), "missing")
	if ok || msg != "job not found" {
		t.Fatalf("expected (false, job not found), got (%v, %q)", ok, msg)
	}
	if fs.updates != 0 {
		t.Fatal("no mutation expected for unknown job")
	}
}

func TestRunAlreadyDoneShortCircuits(t *testing.T) {
	job := queuedJob("abc")
	job.Status = models.StatusDone
	fs := newFakeStore(job)

	ok, msg := happyRunner(fs).Run(context.Background(), "abc")
	if !ok || msg != "already done" {
		t.Fatalf("expected (true, already done), got (%v, %q)", ok, msg)
	}
	if fs.updates != 0 {
		t.Fatal("duplicate delivery must not mutate a done job")
	}
}

func TestRunExtractFailureMapsToFailedFetch(t *testing.T) {
	fs := newFakeStore(queuedJob("abc"))
	r := NewRunner(fs,
		&fakeExtractor{err: errors.New("boom: connection refused")},
		&fakeSynth{audio: []byte("mp3")},
		&fakeUploader{url: "u"},
		nil)

	ok, msg := r.Run(context.Background(), "abc")
	if ok {
		t.Fatal("expected failure")
	}
	if msg != "boom: connection refused" {
		t.Fatalf("caller should see the raw error, got %q", msg)
	}

	job := fs.jobs["abc"]
	if job.Status != models.StatusFailedFetch {
		t.Fatalf("status = %s, want failed_fetch", job.Status)
	}
	if job.LastError == nil || *job.LastError != msgFetchFailed {
		t.Fatalf("last_error must be the sanitized message, got %v", job.LastError)
	}
}

func TestRunSynthFailureMapsToFailedTTS(t *testing.T) {
	fs := newFakeStore(queuedJob("abc"))
	r := NewRunner(fs,
		&fakeExtractor{art: &extract.Article{Title: "T", Text: "body"}},
		&fakeSynth{err: errors.New("engine 500")},
		&fakeUploader{url: "u"},
		nil)

	ok, _ := r.Run(context.Background(), "abc")
	if ok {
		t.Fatal("expected failure")
	}
	job := fs.jobs["abc"]
	if job.Status != models.StatusFailedTTS {
		t.Fatalf("status = %s, want failed_tts", job.Status)
	}
	if job.LastError == nil || *job.LastError != msgTTSFailed {
		t.Fatalf("unexpected last_error: %v", job.LastError)
	}
}

func TestRunUploadFailureMapsToFailedUpload(t *testing.T) {
	fs := newFakeStore(queuedJob("abc"))
	r := NewRunner(fs,
		&fakeExtractor{art: &extract.Article{Title: "T", Text: "body"}},
		&fakeSynth{audio: []byte("mp3")},
		&fakeUploader{err: errors.New("bucket denied")},
		nil)

	ok, msg := r.Run(context.Background(), "abc")
	if ok {
		t.Fatal("expected failure")
	}
	if msg != "bucket denied" {
		t.Fatalf("unexpected caller message %q", msg)
	}
	job := fs.jobs["abc"]
	if job.Status != models.StatusFailedUpload {
		t.Fatalf("status = %s, want failed_upload", job.Status)
	}
	if job.LastError == nil || *job.LastError != msgUploadFailed {
		t.Fatalf("unexpected last_error: %v", job.LastError)
	}
}

func TestRunInternalDetailNeverPersisted(t *testing.T) {
	fs := newFakeStore(queuedJob("abc"))
	r := NewRunner(fs,
		&fakeExtractor{err: errors.New("secret-internal-host unreachable")},
		&fakeSynth{}, &fakeUploader{}, nil)

	_, msg := r.Run(context.Background(), "abc")
	if msg != "secret-internal-host unreachable" {
		t.Fatalf("raw text belongs to the caller, got %q", msg)
	}
	job := fs.jobs["abc"]
	if job.LastError != nil && *job.LastError == msg {
		t.Fatal("raw error text must not be written to last_error")
	}
}
