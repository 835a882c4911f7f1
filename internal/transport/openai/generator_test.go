package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdesk/internal/domain"
)

type chatRequest struct {
	Model    string `json:"model"`
	Stream   bool   `json:"stream"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func newTestGenerator(baseURL string) *Generator {
	return NewGenerator(&Config{
		APIKey:      "test-key",
		BaseURL:     baseURL,
		Model:       "llama3-8b-8192",
		Provider:    "groq",
		Temperature: 0.2,
		Logger:      zap.NewNop(),
	})
}

func TestGenerator_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Stream {
			t.Error("expected non-streaming request")
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Role != "user" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}
		if req.Messages[1].Content != "Who built it?" {
			t.Errorf("unexpected question %q", req.Messages[1].Content)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"llama3-8b-8192",` +
			`"choices":[{"index":0,"message":{"role":"assistant","content":"Leo Fender."},"finish_reason":"stop"}],` +
			`"usage":{"prompt_tokens":12,"completion_tokens":3,"total_tokens":15}}`))
	}))
	defer server.Close()

	got, err := newTestGenerator(server.URL).Generate(context.Background(), domain.Prompt{
		System: "You are a guitar historian.",
		User:   "Who built it?",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Leo Fender." {
		t.Errorf("unexpected completion %q", got)
	}
}

func TestGenerator_Generate_NoSystemPrompt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
			t.Errorf("expected a single user message, got %+v", req.Messages)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer server.Close()

	if _, err := newTestGenerator(server.URL).Generate(context.Background(), domain.Prompt{User: "hi"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestGenerator_Generate_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	_, err := newTestGenerator(server.URL).Generate(context.Background(), domain.Prompt{User: "hi"})
	if !errors.Is(err, domain.ErrGenerationProviderError) {
		t.Fatalf("expected ErrGenerationProviderError, got %v", err)
	}
}

func TestGenerator_Generate_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid API Key","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	_, err := newTestGenerator(server.URL).Generate(context.Background(), domain.Prompt{User: "hi"})
	if !errors.Is(err, domain.ErrGenerationProviderError) {
		t.Fatalf("expected ErrGenerationProviderError, got %v", err)
	}
	if !strings.Contains(err.Error(), "Invalid API Key") {
		t.Errorf("expected provider message in error, got %v", err)
	}
}

func streamServer(t *testing.T, deltas ...string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if !req.Stream {
			t.Error("expected streaming request")
		}

		w.Header().Set("Content-Type", "text/event-stream")
		for _, d := range deltas {
			content, _ := json.Marshal(d)
			fmt.Fprintf(w, "data: {\"id\":\"s1\",\"object\":\"chat.completion.chunk\",\"created\":1,"+
				"\"model\":\"llama3-8b-8192\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%s}}]}\n\n", content)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(server.Close)
	return server
}

func TestGenerator_GenerateStream(t *testing.T) {
	server := streamServer(t, "The ", "", "Stratocaster", " shipped in 1954.")

	var got []string
	err := newTestGenerator(server.URL).GenerateStream(context.Background(), domain.Prompt{User: "When?"},
		func(token string) error {
			got = append(got, token)
			return nil
		})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"The ", "Stratocaster", " shipped in 1954."}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("tokens = %q, want %q", got, want)
	}
}

func TestGenerator_GenerateStream_CallbackError(t *testing.T) {
	server := streamServer(t, "a", "b", "c")
	errGone := errors.New("client gone")

	var calls int
	err := newTestGenerator(server.URL).GenerateStream(context.Background(), domain.Prompt{User: "q"},
		func(string) error {
			calls++
			return errGone
		})
	if !errors.Is(err, errGone) {
		t.Fatalf("expected callback error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected stream to stop after first token, got %d calls", calls)
	}
}

func TestGenerator_GenerateStream_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"over capacity","type":"server_error"}}`))
	}))
	defer server.Close()

	err := newTestGenerator(server.URL).GenerateStream(context.Background(), domain.Prompt{User: "q"},
		func(string) error { return nil })
	if !errors.Is(err, domain.ErrGenerationProviderError) {
		t.Fatalf("expected ErrGenerationProviderError, got %v", err)
	}
}
