package auth

import (
	"crypto/sha256"
	"fmt"
	"net/http"

	"github.com/gorilla/sessions"
)

// FlashSessionName is the name of the cookie that carries flash messages
// across a redirect.
const FlashSessionName = "projections-flash"

// FlashStore keeps one-shot messages in a signed cookie session.
type FlashStore struct {
	store sessions.Store
}

// NewFlashStore creates a cookie-backed flash store.
//
// The secret is SHA-256 hashed to derive a 32-byte signing key, so any
// passphrase works. It must be the same on every instance and across
// restarts or pending flashes are dropped.
func NewFlashStore(secret string, cookie CookieSettings) *FlashStore {
	key := sha256.Sum256([]byte(secret))

	store := sessions.NewCookieStore(key[:])
	store.Options = &sessions.Options{
		Path:     "/",
		Domain:   cookie.Domain,
		MaxAge:   300, // a flash only has to survive one redirect
		HttpOnly: true,
		Secure:   cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &FlashStore{store: store}
}

// AddFlash queues msg for the next request and writes the session cookie.
func (f *FlashStore) AddFlash(w http.ResponseWriter, r *http.Request, msg string) error {
	session, err := f.store.Get(r, FlashSessionName)
	if err != nil && session == nil {
		return fmt.Errorf("failed to load flash session: %w", err)
	}
	session.AddFlash(msg)
	if err := session.Save(r, w); err != nil {
		return fmt.Errorf("failed to save flash session: %w", err)
	}
	return nil
}

// Flashes returns and clears the queued messages.
// A missing or tampered cookie yields no messages.
func (f *FlashStore) Flashes(w http.ResponseWriter, r *http.Request) []string {
	session, err := f.store.Get(r, FlashSessionName)
	if err != nil || session == nil {
		return nil
	}

	raw := session.Flashes()
	if len(raw) == 0 {
		return nil
	}
	_ = session.Save(r, w)

	msgs := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			msgs = append(msgs, s)
		}
	}
	return msgs
}
