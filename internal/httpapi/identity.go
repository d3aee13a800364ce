package httpapi

import (
	"context"
	"net/http"

	"github.com/cortexuvula/roomsync/internal/security"
)

// CookieName holds the participant id issued to each browser.
const CookieName = "rs_pid"

const cookieMaxAge = 365 * 24 * 60 * 60

type pidKey struct{}

// ParticipantID returns the id the identity middleware attached to r.
func ParticipantID(r *http.Request) string {
	id, _ := r.Context().Value(pidKey{}).(string)
	return id
}

// identity issues an rs_pid cookie when the request carries none (or a
// malformed one) and exposes the id through ParticipantID.
func identity(secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var id string
			if c, err := r.Cookie(CookieName); err == nil && security.ValidParticipantID(c.Value) {
				id = c.Value
			} else {
				id = security.NewParticipantID()
				http.SetCookie(w, &http.Cookie{
					Name:     CookieName,
					Value:    id,
					Path:     "/",
					MaxAge:   cookieMaxAge,
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), pidKey{}, id)))
		})
	}
}
