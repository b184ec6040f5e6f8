package middleware

import (
	"net/http"
	"strings"

	"github.com/rohanmalik/merakistore-backend/internal/identity"
	"github.com/rohanmalik/merakistore-backend/pkg/config"
	"github.com/rohanmalik/merakistore-backend/pkg/logger"
)

// GuestIdentity resolves the anonymous visitor cookie into an owner key
// and issues a fresh token when the cookie is missing. It runs on every
// request so guest and authenticated traffic share one identity path:
// the auth middleware overrides the owner key for signed-in users, but
// the guest key is kept alongside it for the login-time cart merge.
func GuestIdentity(cfg config.GuestConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ""
			if cookie, err := r.Cookie(cfg.CookieName); err == nil {
				token = strings.TrimSpace(cookie.Value)
			}
			if token == "" {
				token = identity.NewGuestToken()
				http.SetCookie(w, &http.Cookie{
					Name:     cfg.CookieName,
					Value:    token,
					Path:     "/",
					MaxAge:   int(cfg.CookieTTL.Seconds()),
					HttpOnly: true,
					Secure:   cfg.CookieSecure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			guestKey := identity.ForGuest(token)
			ctx := WithGuestKey(r.Context(), guestKey)
			ctx = WithOwnerKey(ctx, guestKey)
			if logg != nil {
				ctx = logg.WithOwnerKey(ctx, guestKey.String())
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
