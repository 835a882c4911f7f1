package answer

import "testing"

func TestNormalizeQuestion(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "What is X?", "What is X?"},
		{"trimmed", "  What is X?\n", "What is X?"},
		{"blank", "   ", ""},
		{"envelope", `{"query": "What is X?"}`, "What is X?"},
		{"envelope with spaces", ` {"query": "  What is X?  "} `, "What is X?"},
		{"string holding envelope", `"{\"query\": \"What is X?\"}"`, "What is X?"},
		{"nested envelope", `{"query": {"query": "deep"}}`, "deep"},
		{"null query", `{"query": null}`, ""},
		{"no query key", `{"question": "x"}`, `{"question": "x"}`},
		{"invalid json", "{not json", "{not json"},
		{"quoted plain text", `"hello"`, `"hello"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeQuestion(tt.in); got != tt.want {
				t.Errorf("NormalizeQuestion(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
