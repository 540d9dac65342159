package llm

// Content is the body of a CompletionMessage. It is either PlainText or
// StructuredParts; providers only ever receive PlainText.
type Content interface {
	isContent()
}

// PlainText is message content that is already a single string.
type PlainText string

// StructuredParts is the list-of-parts form some callers produce (text and image
// segments, OpenAI "content parts" style).
type StructuredParts []Part

// Part is one segment of structured content.
type Part struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

func (PlainText) isContent()       {}
func (StructuredParts) isContent() {}

// Part type values.
const (
	PartTypeText  = "text"
	PartTypeImage = "image_url"
)

// TextPart builds a text segment.
func TextPart(text string) Part {
	return Part{Type: PartTypeText, Text: text}
}

// Normalize collapses content into PlainText. PlainText is returned unchanged.
// StructuredParts yields the Text of its first element regardless of its type;
// all later parts are discarded. Empty or nil content yields "".
func Normalize(c Content) PlainText {
	switch v := c.(type) {
	case PlainText:
		return v
	case StructuredParts:
		if len(v) == 0 {
			return ""
		}
		return PlainText(v[0].Text)
	default:
		return ""
	}
}

// IsEmptyStructured reports whether c is a StructuredParts value with no parts.
func IsEmptyStructured(c Content) bool {
	parts, ok := c.(StructuredParts)
	return ok && len(parts) == 0
}

// DroppedParts returns how many parts Normalize discards from c.
func DroppedParts(c Content) int {
	parts, ok := c.(StructuredParts)
	if !ok || len(parts) <= 1 {
		return 0
	}
	return len(parts) - 1
}

// NormalizeMessages returns a copy of messages with every content value
// collapsed to PlainText. The input slice is never modified.
func NormalizeMessages(messages []CompletionMessage) []CompletionMessage {
	out := make([]CompletionMessage, len(messages))
	for i, m := range messages {
		out[i] = CompletionMessage{Role: m.Role, Content: Normalize(m.Content)}
	}
	return out
}
