// Package auth extracts the acting user from requests. Identity
// validation is delegated to the upstream gateway (the BaaS session
// layer or a reverse proxy); this package only extracts and stamps the
// actor, plus an optional shared-secret check for bare deployments.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

const actorHeader = "X-Snack-User"

// ExtractActor stamps the acting user from the gateway-set header,
// falling back to defaultActor. Health and guest share endpoints are
// passed through untouched.
func ExtractActor(defaultActor string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skipActor(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			if r.Header.Get(actorHeader) == "" {
				r.Header.Set(actorHeader, defaultActor)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// BearerAuth additionally requires a static bearer secret on every
// user-facing route, compared in constant time.
func BearerAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skipActor(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="StaticSnack"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// skipActor marks routes that authenticate themselves (share tokens)
// or need no identity at all.
func skipActor(path string) bool {
	return path == "/health" || strings.HasPrefix(path, "/shares/")
}

func ActorFromRequest(r *http.Request) string {
	return r.Header.Get(actorHeader)
}
