package models

import "testing"

func TestURLHashStable(t *testing.T) {
	a := URLHash("https://example.com/a")
	b := URLHash("https://example.com/a")
	if a != b {
		t.Fatalf("hash not stable: %s vs %s", a, b)
	}
	if len(a) != 12 {
		t.Fatalf("expected 12 hex chars, got %d (%s)", len(a), a)
	}
	if URLHash("https://example.com/b") == a {
		t.Fatalf("distinct urls must not collide on the prefix")
	}
}

func TestFailureFor(t *testing.T) {
	cases := []struct {
		in   Status
		want Status
	}{
		{StatusFetching, StatusFailedFetch},
		{StatusParsing, StatusFailedFetch},
		{StatusTTSGenerating, StatusFailedTTS},
		{StatusUploadingAudio, StatusFailedUpload},
		{StatusQueued, StatusFailedFetch},
		{StatusDone, StatusFailedFetch},
		{Status("bogus"), StatusFailedFetch},
	}
	for _, c := range cases {
		if got := FailureFor(c.in); got != c.want {
			t.Errorf("FailureFor(%s) = %s, want %s", c.in, got, c.want)
		}
	}
}

func TestStatusValid(t *testing.T) {
	for _, s := range []Status{
		StatusQueued, StatusFetching, StatusParsing, StatusTTSGenerating,
		StatusUploadingAudio, StatusDone, StatusFailedFetch, StatusFailedParse,
		StatusFailedTTS, StatusFailedUpload,
	} {
		if !s.Valid() {
			t.Errorf("%s should be valid", s)
		}
	}
	if Status("running").Valid() {
		t.Error("unenumerated status must be invalid")
	}
}

func TestStatusTerminal(t *testing.T) {
	terminal := []Status{StatusDone, StatusFailedFetch, StatusFailedParse, StatusFailedTTS, StatusFailedUpload}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []Status{StatusQueued, StatusFetching, StatusParsing, StatusTTSGenerating, StatusUploadingAudio} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
