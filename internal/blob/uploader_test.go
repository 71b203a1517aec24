package blob

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestAudioKey(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	key := AudioKey("abc123def456", now)
	if key != "audio/abc123def456/20260301/abc123def456.mp3" {
		t.Fatalf("unexpected key %q", key)
	}
}

func TestLocalUploaderWritesFile(t *testing.T) {
	dir := t.TempDir()
	u := &LocalUploader{BaseDir: dir, PublicBase: "https://audio.example.com"}

	url, err := u.Upload(context.Background(), "audio/abc/20260301/abc.mp3", []byte("MP3"), "audio/mpeg")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if url != "https://audio.example.com/audio/abc/20260301/abc.mp3" {
		t.Fatalf("unexpected public url %q", url)
	}

	data, err := os.ReadFile(filepath.Join(dir, "audio", "abc", "20260301", "abc.mp3"))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "MP3" {
		t.Fatalf("unexpected contents %q", data)
	}
}

func TestLocalUploaderSanitizesKey(t *testing.T) {
	dir := t.TempDir()
	u := &LocalUploader{BaseDir: dir}

	path, err := u.Upload(context.Background(), "./audio/x.mp3", []byte("MP3"), "audio/mpeg")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !strings.HasPrefix(path, dir) {
		t.Fatalf("output escaped base dir: %q", path)
	}
}
