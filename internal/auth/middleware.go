package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/championcart/backend/internal/common"
)

var errNoToken = errors.New("auth: token missing")

// Middleware guards administrative routes.
type Middleware struct {
	Tokens *Tokens
}

// RequireAdmin admits requests bearing a valid token whose role claim is admin
// and stores the token subject on the request context.
func (m Middleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Tokens == nil {
			common.JSONError(w, http.StatusServiceUnavailable, "ADMIN_DISABLED", "administration is not configured", nil)
			return
		}
		claims, err := m.Tokens.Parse(bearerToken(r))
		if err != nil {
			zerolog.Ctx(r.Context()).Debug().Err(err).Msg("admin token rejected")
			common.WriteError(w, err)
			return
		}
		if claims.Role != RoleAdmin {
			common.JSONError(w, http.StatusForbidden, "FORBIDDEN", "admin role required", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(common.WithSubject(r.Context(), claims.Subject)))
	})
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
