package retrieval

import (
	"strings"
	"unicode/utf8"
)

const (
	defaultPreviewBudget = 500
	previewHeadLines     = 3
	gapMarker            = "…"
)

// BuildPreview condenses chunk content into a char-budgeted excerpt. The
// first lines are always kept; beyond that, lines bearing any keyword are
// preferred. Skipped runs collapse to a gap marker so the reader can tell
// content was elided.
func BuildPreview(content string, keywords []string, budget int) string {
	if budget <= 0 {
		budget = defaultPreviewBudget
	}
	if len(content) <= budget {
		return content
	}

	lines := strings.Split(content, "\n")
	keep := make([]bool, len(lines))
	for i := range lines {
		if i < previewHeadLines {
			keep[i] = true
			continue
		}
		lower := strings.ToLower(lines[i])
		for _, kw := range keywords {
			if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
				keep[i] = true
				break
			}
		}
	}

	var b strings.Builder
	inGap := false
	for i, line := range lines {
		if !keep[i] {
			inGap = true
			continue
		}
		if inGap && b.Len() > 0 {
			b.WriteString("\n" + gapMarker)
			inGap = false
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		remaining := budget - b.Len()
		if remaining <= 0 {
			break
		}
		if len(line) > remaining {
			for remaining > 0 && !utf8.RuneStart(line[remaining]) {
				remaining--
			}
			b.WriteString(line[:remaining])
			b.WriteString(gapMarker)
			break
		}
		b.WriteString(line)
	}
	if inGap {
		b.WriteString("\n" + gapMarker)
	}
	return b.String()
}
