package report

import (
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

const placeholder = "—"

// FormatBytes renders n with binary units, e.g. "1.2 KiB". Zero is "0 B".
func FormatBytes(n int64) string {
	if n <= 0 {
		return "0 B"
	}
	return humanize.IBytes(uint64(n))
}

// truncate shortens s to max runes, marking the cut with an ellipsis.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "…"
}

// formatTimestamp renders an RFC 3339 timestamp as "2006-01-02 15:04".
// Unparseable input is returned unchanged.
func formatTimestamp(ts string) string {
	if ts == "" {
		return placeholder
	}
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ts
	}
	return t.UTC().Format("2006-01-02 15:04")
}

// relative renders ts relative to now, e.g. "3 minutes ago".
func relative(ts string, now time.Time) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ""
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

// humanType turns "user_data" into "user data".
func humanType(s string) string {
	if s == "" {
		s = "user_data"
	}
	return strings.ReplaceAll(s, "_", " ")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
