package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/JonMunkholm/esg/internal/config"
	"github.com/JonMunkholm/esg/internal/logging"
)

// APIKeyHeader carries the client's API key. "Authorization: Api-Key <key>"
// is accepted as well.
const APIKeyHeader = "X-API-Key"

const authScheme = "Api-Key "

// APIKeyAuth guards upload routes when cfg.RequireAPIKey is set. A missing
// key is 401 and an unknown key is 403.
func APIKeyAuth(cfg config.SecurityConfig) func(http.Handler) http.Handler {
	if !cfg.RequireAPIKey {
		return func(next http.Handler) http.Handler { return next }
	}

	keys := make([][]byte, len(cfg.APIKeys))
	for i, k := range cfg.APIKeys {
		keys[i] = []byte(k)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := presentedKey(r)
			if key == "" {
				logging.FromContext(r.Context()).Warn("auth: missing API key", "path", r.URL.Path)
				writeDetail(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
				return
			}
			if !matchesAny([]byte(key), keys) {
				logging.FromContext(r.Context()).Warn("auth: invalid API key", "path", r.URL.Path)
				writeDetail(w, http.StatusForbidden, "Invalid API key.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func presentedKey(r *http.Request) string {
	if k := strings.TrimSpace(r.Header.Get(APIKeyHeader)); k != "" {
		return k
	}
	if h := r.Header.Get("Authorization"); len(h) > len(authScheme) && strings.EqualFold(h[:len(authScheme)], authScheme) {
		return strings.TrimSpace(h[len(authScheme):])
	}
	return ""
}

// matchesAny compares against every key so timing does not reveal which
// one matched.
func matchesAny(key []byte, keys [][]byte) bool {
	found := 0
	for _, k := range keys {
		found |= subtle.ConstantTimeCompare(key, k)
	}
	return found == 1
}
