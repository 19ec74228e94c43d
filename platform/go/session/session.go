// Package session keeps the signed-in store user between browser requests. The cookie
// carries only an opaque id; values live server side in Redis or memory.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// DefaultCookieName is the session cookie.
const DefaultCookieName = "hubmetrix_session"

// ErrNotFound is returned when a session id is unknown or expired.
var ErrNotFound = errors.New("session not found")

// Data is what a session remembers about the signed-in store user.
type Data struct {
	StoreHash      string `json:"store_hash"`
	StoreUserEmail string `json:"store_user_email"`
	PlatformUserID int64  `json:"platform_user_id"`
	// HostedPageID is the checkout page opened by this browser, resolved on payment success.
	HostedPageID string `json:"hosted_page_id,omitempty"`
}

// Store persists session data by id.
type Store interface {
	Load(ctx context.Context, id string) (Data, error)
	Save(ctx context.Context, id string, data Data, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}

// Options configure the session cookie.
type Options struct {
	CookieName string
	TTL        time.Duration
	Secure     bool
}

// Manager binds sessions to requests through a cookie.
type Manager struct {
	store Store
	opts  Options
}

// NewManager constructs a Manager.
func NewManager(store Store, opts Options) *Manager {
	if store == nil {
		panic("session store is required")
	}
	if opts.CookieName == "" {
		opts.CookieName = DefaultCookieName
	}
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	return &Manager{store: store, opts: opts}
}

// Get loads the session of the request.
func (m *Manager) Get(r *http.Request) (Data, error) {
	cookie, err := r.Cookie(m.opts.CookieName)
	if err != nil || cookie.Value == "" {
		return Data{}, ErrNotFound
	}
	return m.store.Load(r.Context(), cookie.Value)
}

// Put saves data under the request's session id, issuing a new id when there is none.
func (m *Manager) Put(w http.ResponseWriter, r *http.Request, data Data) error {
	id := ""
	if cookie, err := r.Cookie(m.opts.CookieName); err == nil {
		id = cookie.Value
	}
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewString()
	}

	if err := m.store.Save(r.Context(), id, data, m.opts.TTL); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     m.opts.CookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(m.opts.TTL.Seconds()),
		HttpOnly: true,
		Secure:   m.opts.Secure,
		// Embedded in the store admin iframe.
		SameSite: http.SameSiteNoneMode,
	})
	return nil
}

// Update applies mutate to the existing session.
func (m *Manager) Update(w http.ResponseWriter, r *http.Request, mutate func(*Data)) error {
	data, err := m.Get(r)
	if err != nil {
		return err
	}
	mutate(&data)
	return m.Put(w, r, data)
}

// Destroy removes the session and expires the cookie.
func (m *Manager) Destroy(w http.ResponseWriter, r *http.Request) error {
	if cookie, err := r.Cookie(m.opts.CookieName); err == nil && cookie.Value != "" {
		if err := m.store.Delete(r.Context(), cookie.Value); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     m.opts.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.opts.Secure,
		SameSite: http.SameSiteNoneMode,
	})
	return nil
}
