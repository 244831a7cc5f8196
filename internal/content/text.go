package content

import (
	"fmt"
	"strings"
	"time"
)

// Slug turns a topic into a filename-safe stem: alphanumerics, spaces,
// dashes and underscores survive, spaces become underscores, and the
// result is lowercased and capped at 50 characters.
func Slug(topic string) string {
	var b strings.Builder
	for _, r := range topic {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	s := strings.TrimSpace(b.String())
	s = strings.ToLower(strings.ReplaceAll(s, " ", "_"))
	if len(s) > 50 {
		s = strings.TrimRight(s[:50], "_")
	}
	return s
}

// FileStem builds the per-run file stem from the topic and a timestamp,
// falling back to a generic stem for degenerate topics.
func FileStem(topic string, now time.Time) string {
	ts := now.Format("20060102_150405")
	stem := fmt.Sprintf("%s_%s", Slug(topic), ts)
	if len(stem) > 100 || Slug(topic) == "" {
		stem = fmt.Sprintf("content_%s", ts)
	}
	return stem
}

// CleanASCII strips every non-ASCII character. Downstream stores and
// social targets choke on emoji and smart punctuation, so generated
// text is normalized before publishing.
func CleanASCII(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 128 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Truncate shortens s to at most n bytes, marking the cut.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
