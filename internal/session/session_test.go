package session

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"radar/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubAuthAPI counts calls so tests can assert which operations hit the
// network at all.
type stubAuthAPI struct {
	loginFn       func(ctx context.Context, username, password string) (*models.Token, error)
	currentUserFn func(ctx context.Context, token string) (*models.User, error)

	loginCalls       int
	currentUserCalls int
}

func (s *stubAuthAPI) Login(ctx context.Context, username, password string) (*models.Token, error) {
	s.loginCalls++
	if s.loginFn == nil {
		return nil, errors.New("unexpected Login call")
	}
	return s.loginFn(ctx, username, password)
}

func (s *stubAuthAPI) CurrentUser(ctx context.Context, token string) (*models.User, error) {
	s.currentUserCalls++
	if s.currentUserFn == nil {
		return nil, errors.New("unexpected CurrentUser call")
	}
	return s.currentUserFn(ctx, token)
}

// brokenStore fails every operation, for exercising store-failure paths.
type brokenStore struct{}

func (brokenStore) Get(context.Context, string) (*Record, error) {
	return nil, errors.New("store down")
}
func (brokenStore) Put(context.Context, string, *Record, time.Duration) error {
	return errors.New("store down")
}
func (brokenStore) Delete(context.Context, string) error { return errors.New("store down") }
func (brokenStore) TryLock(context.Context, string, string, time.Duration) (bool, error) {
	return false, errors.New("store down")
}
func (brokenStore) Unlock(context.Context, string, string) error { return errors.New("store down") }

func testUser() *models.User {
	return &models.User{
		ID:       uint(gofakeit.Number(1, 10000)),
		Username: gofakeit.Username(),
		Email:    gofakeit.Email(),
		IsActive: true,
	}
}

// signedToken builds a real JWT with the given expiry. The signing key is
// irrelevant because expiry is read without verification.
func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "1",
		"exp": exp.Unix(),
	})
	signed, err := tok.SignedString([]byte("test-key"))
	require.NoError(t, err)
	return signed
}

func TestResolve_NoRecordIsAnonymous(t *testing.T) {
	api := &stubAuthAPI{}
	m := NewManager(api, NewMemoryStore(), time.Hour)

	sess := m.Resolve(context.Background(), "sid-1")

	assert.Equal(t, StateAnonymous, sess.State)
	assert.Empty(t, sess.Token)
	assert.Nil(t, sess.User)
	assert.Zero(t, api.currentUserCalls, "anonymous resolve must not hit the network")
}

func TestResolve_CachedUserSkipsNetwork(t *testing.T) {
	api := &stubAuthAPI{}
	store := NewMemoryStore()
	user := testUser()
	require.NoError(t, store.Put(context.Background(), "sid-1",
		&Record{Token: "tok", User: user}, time.Hour))

	m := NewManager(api, store, time.Hour)
	sess := m.Resolve(context.Background(), "sid-1")

	assert.Equal(t, StateAuthenticated, sess.State)
	assert.Equal(t, "tok", sess.Token)
	assert.Equal(t, user.ID, sess.User.ID)
	assert.Zero(t, api.currentUserCalls)
}

func TestResolve_RestoresUserOnce(t *testing.T) {
	user := testUser()
	api := &stubAuthAPI{
		currentUserFn: func(_ context.Context, token string) (*models.User, error) {
			assert.Equal(t, "tok", token)
			return user, nil
		},
	}
	store := NewMemoryStore()
	require.NoError(t, store.Put(context.Background(), "sid-1", &Record{Token: "tok"}, time.Hour))

	m := NewManager(api, store, time.Hour)

	sess := m.Resolve(context.Background(), "sid-1")
	require.Equal(t, StateAuthenticated, sess.State)
	assert.Equal(t, user.ID, sess.User.ID)
	assert.Equal(t, 1, api.currentUserCalls)

	// The snapshot is persisted, so a second resolve is free.
	sess = m.Resolve(context.Background(), "sid-1")
	assert.Equal(t, StateAuthenticated, sess.State)
	assert.Equal(t, 1, api.currentUserCalls)
}

func TestResolve_RejectedTokenIsCleared(t *testing.T) {
	api := &stubAuthAPI{
		currentUserFn: func(context.Context, string) (*models.User, error) {
			return nil, &models.APIError{Status: http.StatusUnauthorized, Detail: "Could not validate credentials"}
		},
	}
	store := NewMemoryStore()
	require.NoError(t, store.Put(context.Background(), "sid-1", &Record{Token: "stale"}, time.Hour))

	m := NewManager(api, store, time.Hour)
	sess := m.Resolve(context.Background(), "sid-1")

	assert.Equal(t, StateAnonymous, sess.State)
	assert.Empty(t, sess.Token)

	_, err := store.Get(context.Background(), "sid-1")
	assert.ErrorIs(t, err, ErrNotFound, "rejected token must be discarded")

	// Next resolve settles without another upstream call.
	sess = m.Resolve(context.Background(), "sid-1")
	assert.Equal(t, StateAnonymous, sess.State)
	assert.Equal(t, 1, api.currentUserCalls)
}

func TestResolve_BackendDownIsUnknownAndKeepsToken(t *testing.T) {
	api := &stubAuthAPI{
		currentUserFn: func(context.Context, string) (*models.User, error) {
			return nil, &models.TransportError{Op: "current_user", Err: errors.New("connection refused")}
		},
	}
	store := NewMemoryStore()
	require.NoError(t, store.Put(context.Background(), "sid-1", &Record{Token: "tok"}, time.Hour))

	m := NewManager(api, store, time.Hour)
	sess := m.Resolve(context.Background(), "sid-1")

	assert.Equal(t, StateUnknown, sess.State)
	assert.Equal(t, "tok", sess.Token)

	rec, err := store.Get(context.Background(), "sid-1")
	require.NoError(t, err, "the token may still be good and must survive")
	assert.Equal(t, "tok", rec.Token)
}

func TestResolve_ServerErrorIsUnknown(t *testing.T) {
	api := &stubAuthAPI{
		currentUserFn: func(context.Context, string) (*models.User, error) {
			return nil, &models.APIError{Status: http.StatusInternalServerError}
		},
	}
	store := NewMemoryStore()
	require.NoError(t, store.Put(context.Background(), "sid-1", &Record{Token: "tok"}, time.Hour))

	m := NewManager(api, store, time.Hour)
	sess := m.Resolve(context.Background(), "sid-1")

	assert.Equal(t, StateUnknown, sess.State)
}

func TestResolve_ExpiredTokenSkipsNetwork(t *testing.T) {
	api := &stubAuthAPI{}
	store := NewMemoryStore()
	expired := signedToken(t, time.Now().Add(-time.Hour))
	require.NoError(t, store.Put(context.Background(), "sid-1", &Record{Token: expired}, time.Hour))

	m := NewManager(api, store, time.Hour)
	sess := m.Resolve(context.Background(), "sid-1")

	assert.Equal(t, StateAnonymous, sess.State)
	assert.Zero(t, api.currentUserCalls, "a locally expired token needs no upstream check")

	_, err := store.Get(context.Background(), "sid-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolve_EmptyTokenRecordNormalized(t *testing.T) {
	api := &stubAuthAPI{}
	store := NewMemoryStore()
	require.NoError(t, store.Put(context.Background(), "sid-1", &Record{}, time.Hour))

	m := NewManager(api, store, time.Hour)
	sess := m.Resolve(context.Background(), "sid-1")

	assert.Equal(t, StateAnonymous, sess.State)
	_, err := store.Get(context.Background(), "sid-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolve_StoreFailureIsUnknown(t *testing.T) {
	api := &stubAuthAPI{}
	m := NewManager(api, brokenStore{}, time.Hour)

	sess := m.Resolve(context.Background(), "sid-1")

	assert.Equal(t, StateUnknown, sess.State)
	assert.Zero(t, api.currentUserCalls)
}

func TestLogin_StoresTokenAndUserTogether(t *testing.T) {
	user := testUser()
	api := &stubAuthAPI{
		loginFn: func(_ context.Context, username, password string) (*models.Token, error) {
			assert.Equal(t, user.Username, username)
			return &models.Token{AccessToken: "fresh", TokenType: "bearer"}, nil
		},
		currentUserFn: func(_ context.Context, token string) (*models.User, error) {
			assert.Equal(t, "fresh", token)
			return user, nil
		},
	}
	store := NewMemoryStore()
	m := NewManager(api, store, time.Hour)

	sess, err := m.Login(context.Background(), "sid-1", user.Username, "pw")
	require.NoError(t, err)
	assert.Equal(t, StateAuthenticated, sess.State)
	assert.Equal(t, "fresh", sess.Token)
	assert.Equal(t, user.ID, sess.User.ID)

	rec, err := store.Get(context.Background(), "sid-1")
	require.NoError(t, err)
	assert.Equal(t, "fresh", rec.Token)
	require.NotNil(t, rec.User)
	assert.Equal(t, user.ID, rec.User.ID)
}

func TestLogin_BadCredentialsStoresNothing(t *testing.T) {
	api := &stubAuthAPI{
		loginFn: func(context.Context, string, string) (*models.Token, error) {
			return nil, &models.APIError{Status: http.StatusUnauthorized, Detail: "Incorrect username or password"}
		},
	}
	store := NewMemoryStore()
	m := NewManager(api, store, time.Hour)

	_, err := m.Login(context.Background(), "sid-1", "user", "bad")
	require.Error(t, err)
	assert.Zero(t, api.currentUserCalls)

	_, err = store.Get(context.Background(), "sid-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLogin_UserFetchFailureStoresNothing(t *testing.T) {
	api := &stubAuthAPI{
		loginFn: func(context.Context, string, string) (*models.Token, error) {
			return &models.Token{AccessToken: "fresh"}, nil
		},
		currentUserFn: func(context.Context, string) (*models.User, error) {
			return nil, &models.TransportError{Op: "current_user", Err: errors.New("timeout")}
		},
	}
	store := NewMemoryStore()
	m := NewManager(api, store, time.Hour)

	_, err := m.Login(context.Background(), "sid-1", "user", "pw")
	require.Error(t, err)

	_, err = store.Get(context.Background(), "sid-1")
	assert.ErrorIs(t, err, ErrNotFound, "a token must never be stored without its user")
}

func TestLogout_Idempotent(t *testing.T) {
	store := NewMemoryStore()
	require.NoError(t, store.Put(context.Background(), "sid-1",
		&Record{Token: "tok", User: testUser()}, time.Hour))

	m := NewManager(&stubAuthAPI{}, store, time.Hour)

	m.Logout(context.Background(), "sid-1")
	_, err := store.Get(context.Background(), "sid-1")
	assert.ErrorIs(t, err, ErrNotFound)

	// A second logout of the same session is a no-op.
	m.Logout(context.Background(), "sid-1")
}

func TestUpdateUser_RefreshesSnapshot(t *testing.T) {
	store := NewMemoryStore()
	stale := testUser()
	require.NoError(t, store.Put(context.Background(), "sid-1",
		&Record{Token: "tok", User: stale}, time.Hour))

	m := NewManager(&stubAuthAPI{}, store, time.Hour)

	fresh := *stale
	fresh.Bio = "updated bio"
	require.NoError(t, m.UpdateUser(context.Background(), "sid-1", &fresh))

	rec, err := store.Get(context.Background(), "sid-1")
	require.NoError(t, err)
	assert.Equal(t, "updated bio", rec.User.Bio)
	assert.Equal(t, "tok", rec.Token)
}

func TestUpdateUser_MissingSessionIsNoop(t *testing.T) {
	m := NewManager(&stubAuthAPI{}, NewMemoryStore(), time.Hour)
	assert.NoError(t, m.UpdateUser(context.Background(), "gone", testUser()))
}

func TestBeginAction(t *testing.T) {
	m := NewManager(&stubAuthAPI{}, NewMemoryStore(), time.Hour)
	ctx := context.Background()

	assert.True(t, m.BeginAction(ctx, "sid-1", "create_post"))
	assert.False(t, m.BeginAction(ctx, "sid-1", "create_post"), "second acquire while busy must fail")

	// A different session or action is unaffected.
	assert.True(t, m.BeginAction(ctx, "sid-2", "create_post"))
	assert.True(t, m.BeginAction(ctx, "sid-1", "delete_post"))

	m.EndAction(ctx, "sid-1", "create_post")
	assert.True(t, m.BeginAction(ctx, "sid-1", "create_post"))
}

func TestBeginAction_FailsOpenOnStoreError(t *testing.T) {
	m := NewManager(&stubAuthAPI{}, brokenStore{}, time.Hour)
	assert.True(t, m.BeginAction(context.Background(), "sid-1", "create_post"))
}

func TestStateString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "unknown", StateUnknown.String())
	assert.Equal(t, "anonymous", StateAnonymous.String())
	assert.Equal(t, "authenticated", StateAuthenticated.String())
}
