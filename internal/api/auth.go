package api

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	// Session cookie name
	SessionCookieName = "pulse_session"

	// Session duration (24 hours)
	SessionDuration = 24 * time.Hour

	// Cookie settings
	CookieSecure   = false // Set to true in production with HTTPS
	CookieHTTPOnly = true
	CookieSameSite = http.SameSiteLaxMode
)

// AdminSession represents an authenticated admin session
type AdminSession struct {
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionManager handles admin session authentication. Access is granted
// by presenting the configured admin token once; afterwards an HMAC-signed
// session cookie authenticates requests.
type SessionManager struct {
	mu sync.RWMutex

	// Active sessions (sessionID -> session)
	sessions map[string]*AdminSession

	// Secret key for signing session cookies
	secretKey []byte

	// SHA-256 of the configured admin token
	tokenDigest [32]byte
}

// NewSessionManager creates a new session manager guarding access with
// the given admin token.
func NewSessionManager(adminToken string) *SessionManager {
	// Generate random secret key for this instance
	secretKey := make([]byte, 32)
	if _, err := rand.Read(secretKey); err != nil {
		log.Printf("⚠️ Failed to generate secret key, using fallback")
		secretKey = []byte("pulse-default-cookie-secret-key!")
	}

	sm := &SessionManager{
		sessions:    make(map[string]*AdminSession),
		secretKey:   secretKey,
		tokenDigest: sha256.Sum256([]byte(adminToken)),
	}

	// Start cleanup goroutine
	go sm.cleanupExpiredSessions()

	return sm
}

// Authenticate checks a presented token against the configured one.
func (sm *SessionManager) Authenticate(token string) bool {
	digest := sha256.Sum256([]byte(token))
	return hmac.Equal(digest[:], sm.tokenDigest[:])
}

// CreateSession creates a new admin session
func (sm *SessionManager) CreateSession() string {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sessionID := generateSessionID()
	sm.sessions[sessionID] = &AdminSession{
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(SessionDuration),
	}

	log.Printf("🔐 Admin session created")
	return sessionID
}

// GetSession retrieves a session by ID
func (sm *SessionManager) GetSession(sessionID string) *AdminSession {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	session, exists := sm.sessions[sessionID]
	if !exists {
		return nil
	}

	// Check if expired
	if time.Now().After(session.ExpiresAt) {
		return nil
	}

	return session
}

// DeleteSession removes a session
func (sm *SessionManager) DeleteSession(sessionID string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.sessions, sessionID)
}

// ValidateSession checks if a request has a valid session
func (sm *SessionManager) ValidateSession(r *http.Request) *AdminSession {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return nil
	}

	// Decode and verify cookie
	sessionID, err := sm.decodeCookie(cookie.Value)
	if err != nil {
		return nil
	}

	return sm.GetSession(sessionID)
}

// SetSessionCookie sets the session cookie on the response
func (sm *SessionManager) SetSessionCookie(w http.ResponseWriter, sessionID string) {
	encodedCookie := sm.encodeCookie(sessionID)

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    encodedCookie,
		Path:     "/",
		MaxAge:   int(SessionDuration.Seconds()),
		HttpOnly: CookieHTTPOnly,
		Secure:   CookieSecure,
		SameSite: CookieSameSite,
	})
}

// ClearSessionCookie removes the session cookie
func (sm *SessionManager) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: CookieHTTPOnly,
		Secure:   CookieSecure,
		SameSite: CookieSameSite,
	})
}

// encodeCookie creates a signed cookie value
func (sm *SessionManager) encodeCookie(sessionID string) string {
	// Create signature
	mac := hmac.New(sha256.New, sm.secretKey)
	mac.Write([]byte(sessionID))
	signature := hex.EncodeToString(mac.Sum(nil))

	// Return sessionID.signature
	return base64.URLEncoding.EncodeToString([]byte(sessionID + "." + signature))
}

// decodeCookie verifies and extracts the session ID from cookie
func (sm *SessionManager) decodeCookie(cookieValue string) (string, error) {
	// Decode base64
	decoded, err := base64.URLEncoding.DecodeString(cookieValue)
	if err != nil {
		return "", fmt.Errorf("invalid cookie encoding")
	}

	// Split sessionID.signature
	parts := strings.SplitN(string(decoded), ".", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid cookie format")
	}

	sessionID := parts[0]
	providedSig := parts[1]

	// Verify signature
	mac := hmac.New(sha256.New, sm.secretKey)
	mac.Write([]byte(sessionID))
	expectedSig := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(providedSig), []byte(expectedSig)) {
		return "", fmt.Errorf("invalid cookie signature")
	}

	return sessionID, nil
}

// cleanupExpiredSessions removes expired sessions periodically
func (sm *SessionManager) cleanupExpiredSessions() {
	ticker := time.NewTicker(10 * time.Minute)
	for range ticker.C {
		sm.mu.Lock()
		now := time.Now()
		for id, session := range sm.sessions {
			if now.After(session.ExpiresAt) {
				delete(sm.sessions, id)
			}
		}
		sm.mu.Unlock()
	}
}

// generateSessionID creates a cryptographically random session ID
func generateSessionID() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// AdminAuthMiddleware creates middleware that requires admin authentication
func (sm *SessionManager) AdminAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session := sm.ValidateSession(r)
		if session == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"error":   "unauthorized",
				"message": "Admin authentication required",
			})
			return
		}

		// Session valid, continue
		next.ServeHTTP(w, r)
	})
}

// HandleLogin exchanges the admin token for a session cookie
func (sm *SessionManager) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if !sm.Authenticate(req.Token) {
		log.Printf("🔐 Admin login rejected from %s", GetClientIP(r))
		writeError(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	sessionID := sm.CreateSession()
	sm.SetSessionCookie(w, sessionID)
	writeJSON(w, map[string]bool{"success": true})
}

// HandleLogout clears the session
func (sm *SessionManager) HandleLogout(w http.ResponseWriter, r *http.Request) {
	// Get current session and delete it
	cookie, err := r.Cookie(SessionCookieName)
	if err == nil {
		sessionID, err := sm.decodeCookie(cookie.Value)
		if err == nil {
			sm.DeleteSession(sessionID)
		}
	}

	// Clear cookie
	sm.ClearSessionCookie(w)
	writeJSON(w, map[string]bool{"success": true})
}

// AuthStatus returns the current authentication status
type AuthStatus struct {
	Authenticated bool  `json:"authenticated"`
	ExpiresAt     int64 `json:"expires_at,omitempty"`
}

// HandleAuthStatus returns current auth status
func (sm *SessionManager) HandleAuthStatus(w http.ResponseWriter, r *http.Request) {
	session := sm.ValidateSession(r)

	status := AuthStatus{
		Authenticated: session != nil,
	}
	if session != nil {
		status.ExpiresAt = session.ExpiresAt.Unix()
	}

	writeJSON(w, status)
}
