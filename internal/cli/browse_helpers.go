package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

func kv(k, v string) string {
	return fmt.Sprintf("%s: %s", k, v)
}

// listWindow returns the [start, end) rows to draw so the cursor stays in
// view.
func listWindow(total, cursor, maxRows int) (int, int) {
	if total <= maxRows {
		return 0, total
	}
	start := cursor - maxRows/2
	if start < 0 {
		start = 0
	}
	end := start + maxRows
	if end > total {
		end = total
		start = end - maxRows
	}
	return start, end
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	if limit == 1 {
		return string(r[:1])
	}
	return string(r[:limit-1]) + "…"
}

func wrapOrTrim(s string, width int) string {
	if width <= 0 || lipgloss.Width(s) <= width {
		return s
	}
	return truncateRunes(s, width)
}

func clampInt(v, minV, maxV int) int {
	return max(minV, min(v, maxV))
}

func defaultIfEmpty(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
