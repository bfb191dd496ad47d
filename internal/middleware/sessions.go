package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

const SessionCookie = "admin_session"

// SessionManager keeps admin login sessions in memory, keyed by an opaque
// uuid token carried in a cookie.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]time.Time // token -> expiry
	ttl      time.Duration
}

func NewSessionManager(ttl time.Duration) *SessionManager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SessionManager{sessions: make(map[string]time.Time), ttl: ttl}
}

// Issue creates a new session and returns its token.
func (m *SessionManager) Issue() string {
	token := uuid.NewString()
	m.mu.Lock()
	m.sessions[token] = time.Now().Add(m.ttl)
	m.mu.Unlock()
	return token
}

// Valid reports whether token names a live session, pruning it if expired.
func (m *SessionManager) Valid(token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	expiry, ok := m.sessions[token]
	if !ok {
		return false
	}
	if time.Now().After(expiry) {
		delete(m.sessions, token)
		return false
	}
	return true
}

// Revoke forgets a session token.
func (m *SessionManager) Revoke(token string) {
	m.mu.Lock()
	delete(m.sessions, token)
	m.mu.Unlock()
}

// RequireAdmin redirects requests without a valid admin session to the
// login page.
func RequireAdmin(sessions *SessionManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookie)
			if err != nil || !sessions.Valid(cookie.Value) {
				http.Redirect(w, r, "/admin/login", http.StatusSeeOther)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
