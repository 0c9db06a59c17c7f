package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// requireAPIKey checks the bearer key. A missing header is 401, an unset
// server key is 500 and a wrong key is 403.
func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" {
			writeError(w, http.StatusUnauthorized, "authorization header is required")
			return
		}
		if s.apiKey == "" {
			writeError(w, http.StatusInternalServerError, "server API key is not configured")
			return
		}
		key := strings.TrimPrefix(header, "Bearer ")
		if subtle.ConstantTimeCompare([]byte(key), []byte(s.apiKey)) != 1 {
			writeError(w, http.StatusForbidden, "invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}
