// auth/session.go
package auth

import (
	"net/http"

	"github.com/gorilla/sessions"
)

const sessionName = "qb-auth-session"

// NewSessionStore creates the cookie store that carries OAuth state between connect and callback
func NewSessionStore(secret []byte, secure bool) *sessions.CookieStore {
	store := sessions.NewCookieStore(secret)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400,
		HttpOnly: true,
		Secure:   secure,
		// Lax so the cookie survives the top-level redirect back from Intuit
		SameSite: http.SameSiteLaxMode,
	}
	return store
}
