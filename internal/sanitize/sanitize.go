// Package sanitize turns raw assistant output into user-facing text:
// citation spans and marker glyphs are removed, and lightweight Markdown
// is flattened. Both passes are best-effort and never fail a turn.
package sanitize

import (
	"regexp"
	"sort"
	"strings"

	"github.com/alyavision/B2B/internal/domain"
)

var (
	// Marker glyphs the backend embeds for file citations, e.g. 【4:0†src】.
	citationMarkerRe = regexp.MustCompile(`【[^】]*】`)

	linkRe      = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	boldRe      = regexp.MustCompile(`(?s)\*\*(.*?)\*\*`)
	italicRe    = regexp.MustCompile(`(?s)\*(.*?)\*`)
	underboldRe = regexp.MustCompile(`(?s)__(.*?)__`)
	underlineRe = regexp.MustCompile(`(?s)_(.*?)_`)
	backtickRe  = regexp.MustCompile("(?s)`{1,3}(.*?)`{1,3}")
)

// Clean removes the annotated citation ranges from text and strips any
// marker glyphs that survive. Ranges are deleted from the highest start
// offset down so earlier deletions cannot shift later offsets. Offsets
// that fall outside the text are ignored rather than rejected.
func Clean(text string, annotations []domain.Annotation) string {
	if text == "" {
		return text
	}
	if len(annotations) > 0 {
		runes := []rune(text)
		spans := make([]domain.Annotation, len(annotations))
		copy(spans, annotations)
		sort.Slice(spans, func(i, j int) bool { return spans[i].Start > spans[j].Start })
		for _, a := range spans {
			start, end := a.Start, a.End
			if start < 0 {
				start = 0
			}
			if end > len(runes) {
				end = len(runes)
			}
			if start >= end {
				continue
			}
			runes = append(runes[:start], runes[end:]...)
		}
		text = string(runes)
	}
	text = citationMarkerRe.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "†", "")
	return text
}

// StripMarkdown flattens emphasis, code and link syntax, leaving only the
// visible text. Markup spanning multiple lines is handled; plain text comes
// back unchanged.
func StripMarkdown(text string) string {
	if text == "" {
		return text
	}
	text = linkRe.ReplaceAllString(text, "$1")
	text = boldRe.ReplaceAllString(text, "$1")
	text = italicRe.ReplaceAllString(text, "$1")
	text = underboldRe.ReplaceAllString(text, "$1")
	text = underlineRe.ReplaceAllString(text, "$1")
	text = backtickRe.ReplaceAllString(text, "$1")
	return text
}
