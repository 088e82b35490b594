// Package lead decides whether an assistant reply is a completed intake
// block and normalizes its formatting. All functions are pure.
package lead

import "strings"

// Header is the literal marker that opens a completed intake block.
const Header = "[Заявка в рабочий чат]"

// Labels is a set of field labels that must all be present, as literal
// case-sensitive substrings in any order, for a text to count as a lead.
type Labels []string

// The two call sites have historically required different field sets: the
// reply path insists on Email, the forwarding path accepts a Telegram
// handle instead. Both sets are kept as-is pending product clarification.
var (
	ForwardLabels = Labels{"Имя:", "Телефон:", "Телеграм:", "Запрос:"}
	ReplyLabels   = Labels{"Имя:", "Телефон:", "Email:", "Запрос:"}
)

// Contains reports whether text carries the header marker and every label
// in the given set.
func Contains(text string, labels Labels) bool {
	if !strings.Contains(text, Header) {
		return false
	}
	for _, label := range labels {
		if !strings.Contains(text, label) {
			return false
		}
	}
	return true
}

// Format normalizes a lead block: surrounding whitespace is trimmed, each
// line is trimmed, and blank lines are dropped. Field content and order
// are untouched. Format is idempotent.
func Format(text string) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	formatted := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		formatted = append(formatted, line)
	}
	return strings.Join(formatted, "\n")
}
