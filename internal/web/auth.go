package web

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// authorizeRequest accepts any request when no token is configured,
// otherwise a matching ?token= or "Authorization: Bearer" value.
func (s *Server) authorizeRequest(r *http.Request) bool {
	if s.cfg.Token == "" {
		return true
	}
	for _, candidate := range []string{
		strings.TrimSpace(r.URL.Query().Get("token")),
		bearerToken(r.Header.Get("Authorization")),
	} {
		if candidate != "" && subtle.ConstantTimeCompare([]byte(candidate), []byte(s.cfg.Token)) == 1 {
			return true
		}
	}
	return false
}

func bearerToken(authHeader string) string {
	const bearerPrefix = "Bearer "
	authHeader = strings.TrimSpace(authHeader)
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(authHeader, bearerPrefix))
}
