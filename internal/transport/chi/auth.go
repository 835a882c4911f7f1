package chi

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// Health and metrics stay reachable without a key.
var publicPaths = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// keyring holds the accepted API keys.
type keyring [][]byte

func newKeyring(keys []string) keyring {
	var kr keyring
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			kr = append(kr, []byte(k))
		}
	}
	return kr
}

// accepts compares token against every key in constant time.
func (kr keyring) accepts(token string) bool {
	matched := 0
	for _, k := range kr {
		matched |= subtle.ConstantTimeCompare(k, []byte(token))
	}
	return matched == 1
}

// bearerToken extracts the credentials of an "Authorization: Bearer" header.
// The scheme is case-insensitive.
func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// BearerAuthMiddleware rejects requests without a configured API key.
// With no keys configured every request passes.
func BearerAuthMiddleware(apiKeys []string) func(http.Handler) http.Handler {
	kr := newKeyring(apiKeys)

	return func(next http.Handler) http.Handler {
		if len(kr) == 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			if header == "" {
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, "missing authorization header")
				return
			}
			token, ok := bearerToken(header)
			if !ok {
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, "authorization header must use Bearer scheme")
				return
			}
			if !kr.accepts(token) {
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, "invalid api key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
