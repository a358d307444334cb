package auth

import (
	"crypto/sha256"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
)

// SessionName is the name of the browser session cookie.
const SessionName = "scout-session"

const sessionKeyToken = "token"

// SessionStore keeps the access token of browser clients in a signed cookie.
type SessionStore struct {
	store *sessions.CookieStore
}

// NewSessionStore creates a cookie-backed store.
//
// The secret can be any passphrase; it is SHA-256 hashed to derive the
// 32-byte signing key, so it must stay the same across restarts or every
// open session is invalidated.
func NewSessionStore(secret string, maxAge time.Duration, settings CookieSettings) (*SessionStore, error) {
	if secret == "" {
		return nil, fmt.Errorf("session secret is required")
	}
	key := sha256.Sum256([]byte(secret))

	store := sessions.NewCookieStore(key[:])
	store.Options = &sessions.Options{
		Path:     "/",
		Domain:   settings.Domain,
		MaxAge:   int(maxAge / time.Second),
		HttpOnly: true,
		Secure:   settings.Secure,
		SameSite: http.SameSiteStrictMode,
	}
	return &SessionStore{store: store}, nil
}

// SetToken stores token in the session cookie.
func (s *SessionStore) SetToken(w http.ResponseWriter, r *http.Request, token string) error {
	session, _ := s.store.Get(r, SessionName) // a tampered cookie yields a fresh session
	session.Values[sessionKeyToken] = token
	return session.Save(r, w)
}

// Token returns the token carried by the request's session cookie, if any.
func (s *SessionStore) Token(r *http.Request) (string, bool) {
	if _, err := r.Cookie(SessionName); err != nil {
		return "", false
	}
	session, err := s.store.Get(r, SessionName)
	if err != nil {
		return "", false
	}
	token, ok := session.Values[sessionKeyToken].(string)
	return token, ok && token != ""
}

// Clear expires the session cookie.
func (s *SessionStore) Clear(w http.ResponseWriter, r *http.Request) error {
	session, _ := s.store.Get(r, SessionName)
	delete(session.Values, sessionKeyToken)
	session.Options.MaxAge = -1
	return session.Save(r, w)
}
