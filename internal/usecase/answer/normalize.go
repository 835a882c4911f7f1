package answer

import (
	"encoding/json"
	"strings"
)

// maxUnwrap bounds how many nested envelopes are peeled off a question.
const maxUnwrap = 4

// NormalizeQuestion trims the question and unwraps {"query": ...} envelopes,
// including a JSON string that holds such an envelope. Text that is not valid
// JSON is returned trimmed and otherwise unchanged.
func NormalizeQuestion(raw string) string {
	q := strings.TrimSpace(raw)

	for range maxUnwrap {
		switch {
		case strings.HasPrefix(q, "{"):
			var env map[string]json.RawMessage
			if err := json.Unmarshal([]byte(q), &env); err != nil {
				return q
			}
			inner, ok := env["query"]
			if !ok {
				return q
			}
			var s string
			if err := json.Unmarshal(inner, &s); err != nil {
				// nested object envelope
				q = strings.TrimSpace(string(inner))
				continue
			}
			q = strings.TrimSpace(s)
		case strings.HasPrefix(q, `"`):
			var s string
			if err := json.Unmarshal([]byte(q), &s); err != nil {
				return q
			}
			s = strings.TrimSpace(s)
			if !strings.HasPrefix(s, "{") {
				return q
			}
			q = s
		default:
			return q
		}
	}
	return q
}
