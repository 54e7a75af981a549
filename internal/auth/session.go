package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"legato/internal/cache"
)

// CookieName is the cookie carrying the login token.
const CookieName = "legato_session"

// Login is an authenticated user session.
type Login struct {
	Token     string    `json:"-"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Logins tracks login tokens. Entries expire after the configured duration
// unless refreshed.
type Logins struct {
	logins   *cache.Cache[*Login]
	duration time.Duration
	secure   bool
}

// NewLogins creates a login table whose tokens live for duration.
func NewLogins(duration time.Duration, secureCookies bool) *Logins {
	return &Logins{
		logins:   cache.New[*Login](duration, time.Hour),
		duration: duration,
		secure:   secureCookies,
	}
}

// Create issues a token for username.
func (l *Logins) Create(username string) (*Login, error) {
	token, err := newToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session token: %w", err)
	}
	now := time.Now()
	login := &Login{
		Token:     token,
		Username:  username,
		CreatedAt: now,
		ExpiresAt: now.Add(l.duration),
	}
	l.logins.Set(token, login)
	return login, nil
}

// Get returns the login for token if it has not expired.
func (l *Logins) Get(token string) (*Login, bool) {
	return l.logins.Get(token)
}

// Refresh extends the login's lifetime.
func (l *Logins) Refresh(token string) bool {
	login, ok := l.logins.Get(token)
	if !ok {
		return false
	}
	refreshed := *login
	refreshed.ExpiresAt = time.Now().Add(l.duration)
	l.logins.Set(token, &refreshed)
	return true
}

// Delete drops a token.
func (l *Logins) Delete(token string) {
	l.logins.Delete(token)
}

// Close stops the expiry janitor.
func (l *Logins) Close() {
	l.logins.Close()
}

// SetCookie writes the login cookie.
func (l *Logins) SetCookie(w http.ResponseWriter, login *Login) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    login.Token,
		Expires:  login.ExpiresAt,
		HttpOnly: true,
		Secure:   l.secure,
		SameSite: http.SameSiteStrictMode,
		Path:     "/",
	})
}

// ClearCookie expires the login cookie.
func (l *Logins) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   l.secure,
		SameSite: http.SameSiteStrictMode,
		Path:     "/",
	})
}

// FromRequest returns the login named by the request's cookie.
func (l *Logins) FromRequest(r *http.Request) (*Login, bool) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return nil, false
	}
	return l.Get(cookie.Value)
}

func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
