package middlewarex

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"safiripay/internal/config"
)

// AdminAuth guards operator endpoints with the static admin bearer token.
func AdminAuth(ops config.OpsCfg) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ops.AdminToken == "" {
				http.Error(w, "admin endpoints disabled", http.StatusForbidden)
				return
			}
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				http.Error(w, "missing bearer", http.StatusUnauthorized)
				return
			}
			token := strings.TrimPrefix(auth, "Bearer ")
			if subtle.ConstantTimeCompare([]byte(token), []byte(ops.AdminToken)) != 1 {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
