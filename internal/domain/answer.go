package domain

import "context"

// RetrievedChunk is a chunk returned by a Retriever, ranked by similarity.
type RetrievedChunk struct {
	ID      string
	Content string
	Source  string
	Page    *int
	Score   float64
	Extra   map[string]any
}

// Retriever returns the chunks most relevant to a query, best first.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]RetrievedChunk, error)
}

// Source is a citation attached to an answer.
type Source struct {
	Source  string         `json:"source"`
	Page    *int           `json:"page"`
	Content string         `json:"content"`
	Score   float64        `json:"score"`
	Extra   map[string]any `json:"extra"`
}

// Answer is a generated response with the sources it was grounded on.
type Answer struct {
	Response string   `json:"response"`
	Sources  []Source `json:"sources"`
}

// Prompt is the input of a single chat completion.
type Prompt struct {
	System string
	User   string
}

// Generator produces text from a prompt.
type Generator interface {
	Generate(ctx context.Context, p Prompt) (string, error)
	// GenerateStream calls onToken for every text increment, in order.
	GenerateStream(ctx context.Context, p Prompt, onToken func(token string) error) error
}

// FrameType discriminates streamed answer frames.
type FrameType string

// Frame types of a streamed answer: tokens first, sources last, error at most once.
const (
	FrameToken   FrameType = "token"
	FrameSources FrameType = "sources"
	FrameError   FrameType = "error"
)

// Frame is one message of a streamed answer.
type Frame struct {
	Type    FrameType
	Token   string
	Sources []Source
	Error   string
}
