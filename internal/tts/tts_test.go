package tts

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func TestNormalizeTextExpandsHonorifics(t *testing.T) {
	got := NormalizeText("Mr. Smith met Dr. Jones and Mrs. Doe.")
	want := "Mister Smith met Doctor Jones and Missus Doe."
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestChunkTextSplitsOnParagraphs(t *testing.T) {
	para := strings.Repeat("word ", 20)
	text := para + "\n\n" + para + "\n\n" + para

	chunks := ChunkText(text, 120)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > 220 {
			t.Errorf("chunk %d too large: %d chars", i, len(c))
		}
		if strings.TrimSpace(c) == "" {
			t.Errorf("chunk %d is blank", i)
		}
	}
}

func TestChunkTextShortInputSingleChunk(t *testing.T) {
	chunks := ChunkText("Just one short paragraph.", 0)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
}

func TestSynthesizeConcatenatesChunks(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if got := r.Header.Get("Authorization"); got != "Bearer key123" {
			t.Errorf("missing api key header, got %q", got)
		}
		_, _ = w.Write([]byte("MP3"))
	}))
	defer srv.Close()

	para := strings.Repeat("a", 60)
	c := NewClient(srv.URL, "key123", "en-US-Neutral", 80, 1)
	audio, err := c.Synthesize(context.Background(), para+"\n\n"+para)
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if n := calls.Load(); n != 2 {
		t.Fatalf("expected 2 chunk requests, got %d", n)
	}
	if string(audio) != "MP3MP3" {
		t.Fatalf("audio not concatenated: %q", audio)
	}
}

func TestSynthesizeRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("MP3"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", "v", 0, 3)
	audio, err := c.Synthesize(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if string(audio) != "MP3" {
		t.Fatalf("unexpected audio %q", audio)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected a retry, calls = %d", calls.Load())
	}
}

func TestSynthesizeDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", "v", 0, 3)
	if _, err := c.Synthesize(context.Background(), "hello"); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("4xx must not be retried, calls = %d", calls.Load())
	}
}

func TestSynthesizeWithoutEndpoint(t *testing.T) {
	c := NewClient("", "", "v", 0, 1)
	if _, err := c.Synthesize(context.Background(), "hello"); err != ErrNoEndpoint {
		t.Fatalf("expected ErrNoEndpoint, got %v", err)
	}
}
