package domain

// Roles as reported by the assistant backend.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Annotation is a backend-supplied citation span. Start and End are rune
// offsets into the turn text; the span covers [Start, End).
type Annotation struct {
	Start int
	End   int
}

// Turn is one conversation message decoded at the assistant gateway
// boundary. Text is the concatenation of all text content parts.
type Turn struct {
	Role        string
	Text        string
	Annotations []Annotation
}
