// Package session owns the authentication lifecycle for browser sessions.
// The Manager is the only writer of session state; views read the resolved
// Session and route every mutation of the cached user back through it.
package session

import (
	"context"
	"errors"
	"time"

	"radar/internal/models"
	"radar/internal/observability"
)

// State is the session's tri-state. Unknown means resolution has not
// settled: a token exists but the backend could not be asked whether it is
// still good. Guards must treat Unknown as "wait", never as anonymous.
type State int

const (
	StateUnknown State = iota
	StateAnonymous
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Session is the resolved view of one browser session. Token and User are
// either both set (Authenticated) or both empty (Anonymous).
type Session struct {
	ID    string
	State State
	Token string
	User  *models.User
}

// AuthAPI is the slice of the API client the Manager needs.
type AuthAPI interface {
	Login(ctx context.Context, username, password string) (*models.Token, error)
	CurrentUser(ctx context.Context, token string) (*models.User, error)
}

// Manager orchestrates login, logout, and session restore against a
// durable Store.
type Manager struct {
	api   AuthAPI
	store Store
	ttl   time.Duration
}

// NewManager creates a Manager backed by the given store.
func NewManager(api AuthAPI, store Store, ttl time.Duration) *Manager {
	return &Manager{api: api, store: store, ttl: ttl}
}

// Resolve settles the session for the given ID. It issues at most one
// authenticated request: only when a stored token has no resolved user yet.
// A rejected token is cleared so the next resolve is a cheap Anonymous.
// Transport or server failures leave the token in place and yield Unknown.
func (m *Manager) Resolve(ctx context.Context, sid string) *Session {
	rec, err := m.store.Get(ctx, sid)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return &Session{ID: sid, State: StateAnonymous}
		}
		observability.RecordSessionStoreError("get")
		observability.Logger.ErrorContext(ctx, "session store get failed", "error", err)
		return &Session{ID: sid, State: StateUnknown}
	}

	if rec.Token == "" {
		// A record without a token should not exist; normalize it away.
		m.discard(ctx, sid)
		return &Session{ID: sid, State: StateAnonymous}
	}

	if rec.User != nil {
		return &Session{ID: sid, State: StateAuthenticated, Token: rec.Token, User: rec.User}
	}

	if tokenExpired(rec.Token, time.Now()) {
		m.discard(ctx, sid)
		observability.RecordSessionTransition("token_expired")
		return &Session{ID: sid, State: StateAnonymous}
	}

	user, err := m.api.CurrentUser(ctx, rec.Token)
	if err != nil {
		if models.IsAuthError(err) {
			m.discard(ctx, sid)
			observability.RecordSessionTransition("token_rejected")
			return &Session{ID: sid, State: StateAnonymous}
		}
		// The backend could not be reached or failed; the token may still
		// be good, so nothing is cleared.
		observability.Logger.WarnContext(ctx, "session resolve unsettled", "error", err)
		return &Session{ID: sid, State: StateUnknown, Token: rec.Token}
	}

	rec.User = user
	if err := m.store.Put(ctx, sid, rec, m.ttl); err != nil {
		observability.RecordSessionStoreError("put")
		observability.Logger.ErrorContext(ctx, "session store put failed", "error", err)
	}
	observability.RecordSessionTransition("restored")
	return &Session{ID: sid, State: StateAuthenticated, Token: rec.Token, User: user}
}

// Login authenticates the credentials and persists token and user together.
// On any failure nothing is stored and the session stays Anonymous.
func (m *Manager) Login(ctx context.Context, sid, username, password string) (*Session, error) {
	token, err := m.api.Login(ctx, username, password)
	if err != nil {
		return nil, err
	}

	user, err := m.api.CurrentUser(ctx, token.AccessToken)
	if err != nil {
		// The token is never stored without a resolved user.
		return nil, err
	}

	rec := &Record{Token: token.AccessToken, User: user}
	if err := m.store.Put(ctx, sid, rec, m.ttl); err != nil {
		observability.RecordSessionStoreError("put")
		return nil, models.NewSessionError("could not persist session", err)
	}

	observability.RecordSessionTransition("login")
	return &Session{ID: sid, State: StateAuthenticated, Token: token.AccessToken, User: user}, nil
}

// Logout clears the session. It is idempotent and never fails: store
// errors are logged and swallowed.
func (m *Manager) Logout(ctx context.Context, sid string) {
	m.discard(ctx, sid)
	observability.RecordSessionTransition("logout")
}

// UpdateUser replaces the cached user snapshot. All writers of the user
// entity go through here so the one shared copy never goes stale.
func (m *Manager) UpdateUser(ctx context.Context, sid string, user *models.User) error {
	rec, err := m.store.Get(ctx, sid)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		observability.RecordSessionStoreError("get")
		return err
	}
	rec.User = user
	if err := m.store.Put(ctx, sid, rec, m.ttl); err != nil {
		observability.RecordSessionStoreError("put")
		return err
	}
	return nil
}

// actionLockTTL bounds how long a busy flag can stick if a handler dies
// before releasing it.
const actionLockTTL = 30 * time.Second

// BeginAction acquires the per-session busy flag for the named action.
// It returns false when the same action is already in flight, in which
// case no upstream request may be issued.
func (m *Manager) BeginAction(ctx context.Context, sid, action string) bool {
	ok, err := m.store.TryLock(ctx, sid, action, actionLockTTL)
	if err != nil {
		observability.RecordSessionStoreError("lock")
		// A broken lock store must not wedge the UI.
		return true
	}
	return ok
}

// EndAction releases the busy flag for the named action.
func (m *Manager) EndAction(ctx context.Context, sid, action string) {
	if err := m.store.Unlock(ctx, sid, action); err != nil {
		observability.RecordSessionStoreError("unlock")
	}
}

func (m *Manager) discard(ctx context.Context, sid string) {
	if err := m.store.Delete(ctx, sid); err != nil {
		observability.RecordSessionStoreError("delete")
		observability.Logger.ErrorContext(ctx, "session store delete failed", "error", err)
	}
}
