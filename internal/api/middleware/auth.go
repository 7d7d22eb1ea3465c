// internal/api/middleware/auth.go
package middleware

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"slices"

	"github.com/newthinker/stonks/internal/api/response"
	"github.com/newthinker/stonks/internal/core"
)

// APIKeyAuth returns middleware that validates the X-API-Key header.
// An empty apiKey disables authentication. Requests for the exempt paths
// and CORS preflights pass through.
func APIKeyAuth(apiKey string, exempt ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" || r.Method == http.MethodOptions || slices.Contains(exempt, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			provided := r.Header.Get("X-API-Key")
			if provided == "" {
				response.Error(w, http.StatusUnauthorized,
					core.WrapError(core.ErrUnauthorized, errors.New("X-API-Key header missing")))
				return
			}
			if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
				response.Error(w, http.StatusUnauthorized, core.ErrUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
