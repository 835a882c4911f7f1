package chi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func authorize(keys []string, path, header string) *httptest.ResponseRecorder {
	h := BearerAuthMiddleware(keys)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodPost, path, http.NoBody)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestBearerAuthMiddleware(t *testing.T) {
	keys := []string{"alpha-key", " beta-key "}

	tests := []struct {
		name    string
		keys    []string
		path    string
		header  string
		allowed bool
		message string
	}{
		{name: "no keys configured", keys: nil, path: "/ask/", allowed: true},
		{name: "only blank keys", keys: []string{"", "  "}, path: "/ask/", allowed: true},
		{name: "first key", keys: keys, path: "/ask/", header: "Bearer alpha-key", allowed: true},
		{name: "trimmed second key", keys: keys, path: "/upload_pdfs/", header: "Bearer beta-key", allowed: true},
		{name: "lowercase scheme", keys: keys, path: "/ask/", header: "bearer alpha-key", allowed: true},
		{name: "health is public", keys: keys, path: "/health", allowed: true},
		{name: "metrics is public", keys: keys, path: "/metrics", allowed: true},
		{name: "missing header", keys: keys, path: "/ask/", message: "missing authorization header"},
		{name: "basic scheme", keys: keys, path: "/ask/", header: "Basic YWxwaGE6a2V5", message: "authorization header must use Bearer scheme"},
		{name: "scheme without token", keys: keys, path: "/ask/", header: "Bearer ", message: "authorization header must use Bearer scheme"},
		{name: "unknown key", keys: keys, path: "/ask/", header: "Bearer gamma-key", message: "invalid api key"},
		{name: "key prefix", keys: keys, path: "/ask/", header: "Bearer alpha", message: "invalid api key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := authorize(tt.keys, tt.path, tt.header)

			if tt.allowed {
				if rr.Code != http.StatusNoContent {
					t.Fatalf("status = %d, want request to pass", rr.Code)
				}
				return
			}

			if rr.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rr.Code)
			}
			var body ErrorResponse
			if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if body.Code != CodeUnauthorized || body.Message != tt.message {
				t.Errorf("body = %+v, want %s %q", body, CodeUnauthorized, tt.message)
			}
		})
	}
}

func TestKeyringAccepts(t *testing.T) {
	kr := newKeyring([]string{"one", "two"})
	for token, want := range map[string]bool{"one": true, "two": true, "three": false, "": false, "onetwo": false} {
		if got := kr.accepts(token); got != want {
			t.Errorf("accepts(%q) = %v, want %v", token, got, want)
		}
	}
}
