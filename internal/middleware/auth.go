package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/iyunix/go-designdesk/internal/logger"
)

// TokenValidator resolves a bearer token to an account ID.
type TokenValidator interface {
	ValidateToken(token string) (string, error)
}

// RequireAPIKey rejects requests that do not carry the project API key in the
// apikey header (or query parameter, for websocket upgrades from browsers).
func RequireAPIKey(apiKey string, log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := r.Header.Get("apikey")
			if presented == "" {
				presented = r.URL.Query().Get("apikey")
			}
			if presented == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(apiKey)) != 1 {
				log.Warn("request rejected: bad api key", "path", r.URL.Path)
				WriteError(w, http.StatusUnauthorized, CodeAuthRequired, "missing or invalid api key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Authenticate attaches the account from a valid bearer token. Requests
// without a token pass through anonymously; invalid tokens are rejected.
func Authenticate(validator TokenValidator, log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			accountID, err := validator.ValidateToken(token)
			if err != nil {
				log.Warn("request rejected: invalid token", "path", r.URL.Path, "error", err)
				WriteError(w, http.StatusUnauthorized, CodeAuthRequired, "invalid or expired token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithAccountID(r.Context(), accountID)))
		})
	}
}

// RequireAccount rejects anonymous requests. Use after Authenticate.
func RequireAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := AccountID(r.Context()); !ok {
			WriteError(w, http.StatusUnauthorized, CodeAuthRequired, "sign in required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return strings.TrimSpace(header[len("bearer "):])
	}
	return r.URL.Query().Get("access_token")
}
