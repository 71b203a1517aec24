package tts

import (
	"regexp"
	"strings"
)

// DefaultMaxChunk bounds a single synthesis request; most hosted TTS engines
// cap input around 5000 characters.
const DefaultMaxChunk = 4500

var (
	honorifics = []struct {
		re   *regexp.Regexp
		full string
	}{
		{regexp.MustCompile(`\bMr\.`), "Mister"},
		{regexp.MustCompile(`\bMrs\.`), "Missus"},
		{regexp.MustCompile(`\bDr\.`), "Doctor"},
	}
	paragraphSplit = regexp.MustCompile(`(\n\s*\n)`)
)

// NormalizeText expands honorific abbreviations the voice would otherwise
// read letter by letter.
func NormalizeText(text string) string {
	for _, h := range honorifics {
		text = h.re.ReplaceAllString(text, h.full)
	}
	return text
}

// ChunkText splits article text into synthesis-sized pieces on paragraph
// boundaries. A single paragraph longer than maxLen becomes its own chunk;
// the engine is left to deal with it.
func ChunkText(text string, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = DefaultMaxChunk
	}
	text = NormalizeText(text)

	parts := splitKeepingSeparators(text)
	var chunks []string
	var buf strings.Builder
	for _, part := range parts {
		if buf.Len()+len(part) <= maxLen {
			buf.WriteString(part)
			continue
		}
		if s := strings.TrimSpace(buf.String()); s != "" {
			chunks = append(chunks, s)
		}
		buf.Reset()
		buf.WriteString(part)
	}
	if s := strings.TrimSpace(buf.String()); s != "" {
		chunks = append(chunks, s)
	}
	return chunks
}

func splitKeepingSeparators(text string) []string {
	var parts []string
	last := 0
	for _, loc := range paragraphSplit.FindAllStringIndex(text, -1) {
		parts = append(parts, text[last:loc[0]], text[loc[0]:loc[1]])
		last = loc[1]
	}
	if last < len(text) {
		parts = append(parts, text[last:])
	}
	return parts
}
