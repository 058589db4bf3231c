package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// signedAccessToken returns an HS256 JWT carrying identity claims.
func signedAccessToken(t *testing.T, sub, email, name string) string {
	t.Helper()

	claims := jwt.MapClaims{
		"sub":   sub,
		"email": email,
		"name":  name,
		"exp":   time.Now().Add(time.Hour).Unix(),
	}

	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	return s
}

// failingStore fails every operation.
type failingStore struct{ err error }

func (f failingStore) Load(context.Context) (*Session, error) { return nil, f.err }
func (f failingStore) Save(context.Context, *Session) error   { return f.err }
func (f failingStore) Clear(context.Context) error            { return f.err }

func TestIdentityFromAccessToken(t *testing.T) {
	id, err := IdentityFromAccessToken(signedAccessToken(t, "u-42", "bob@example.com", "Bob"))
	require.NoError(t, err)
	assert.Equal(t, Identity{Subject: "u-42", Email: "bob@example.com", Name: "Bob"}, id)

	_, err = IdentityFromAccessToken("opaque-token")
	assert.Error(t, err)
}

func TestIdentity_MapRoundTrip(t *testing.T) {
	id := Identity{Subject: "u-1", Email: "a@example.com"}
	assert.Equal(t, id, IdentityFromMap(id.Map()))
	assert.Nil(t, Identity{}.Map())
}

func TestManager_CurrentNotLoggedIn(t *testing.T) {
	m := NewManager(NewMemoryStore(), nil)

	_, err := m.Current(context.Background())
	assert.ErrorIs(t, err, ErrNotLoggedIn)

	tok, err := m.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tok)
}

func TestManager_LoadsOnce(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Save(ctx, testSession()))

	m := NewManager(store, nil)
	s, err := m.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "access-1", s.AccessToken())

	// Out-of-band store changes are invisible until Invalidate.
	require.NoError(t, store.Clear(ctx))

	s, err = m.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "access-1", s.AccessToken())

	m.Invalidate()
	_, err = m.Current(ctx)
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestManager_EstablishDerivesIdentityAndRunsHooks(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	m := NewManager(store, nil)

	hooks := 0
	m.OnEstablish(func() { hooks++ })

	access := signedAccessToken(t, "u-7", "carol@example.com", "Carol")
	s, err := m.Establish(ctx, &oauth2.Token{AccessToken: access, RefreshToken: "r-1"})
	require.NoError(t, err)
	assert.Equal(t, "u-7", s.Identity.Subject)
	assert.Equal(t, 1, hooks)

	stored, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "carol@example.com", stored.Identity.Email)
}

func TestManager_ReplaceKeepsRefreshTokenAndIdentity(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryStore(), nil)

	access := signedAccessToken(t, "u-7", "carol@example.com", "Carol")
	first, err := m.Establish(ctx, &oauth2.Token{AccessToken: access, RefreshToken: "r-1"})
	require.NoError(t, err)

	s, err := m.Replace(ctx, first, &oauth2.Token{AccessToken: "opaque-2"})
	require.NoError(t, err)
	assert.Equal(t, "opaque-2", s.AccessToken())
	assert.Equal(t, "r-1", s.RefreshToken())
	assert.Equal(t, "u-7", s.Identity.Subject)

	s, err = m.Replace(ctx, s, &oauth2.Token{AccessToken: "opaque-3", RefreshToken: "r-2"})
	require.NoError(t, err)
	assert.Equal(t, "r-2", s.RefreshToken())
}

func TestManager_ReplaceAfterClearIsRefused(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	m := NewManager(store, nil)

	from, err := m.Establish(ctx, &oauth2.Token{AccessToken: "a-1", RefreshToken: "r-1"})
	require.NoError(t, err)

	require.NoError(t, m.Clear(ctx))

	_, err = m.Replace(ctx, from, &oauth2.Token{AccessToken: "a-2"})
	require.ErrorIs(t, err, ErrSessionEnded)

	stored, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, stored, "a refused renewal saves nothing")

	_, err = m.Current(ctx)
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestManager_ReplaceAfterNewLoginIsRefused(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryStore(), nil)

	stale, err := m.Establish(ctx, &oauth2.Token{AccessToken: "a-1", RefreshToken: "r-1"})
	require.NoError(t, err)

	require.NoError(t, m.Clear(ctx))

	_, err = m.Establish(ctx, &oauth2.Token{AccessToken: "b-1", RefreshToken: "rb-1"})
	require.NoError(t, err)

	_, err = m.Replace(ctx, stale, &oauth2.Token{AccessToken: "a-2"})
	require.ErrorIs(t, err, ErrSessionEnded)

	cur, err := m.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b-1", cur.AccessToken())
}

func TestManager_ReplaceSurvivesInvalidate(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryStore(), nil)

	from, err := m.Establish(ctx, &oauth2.Token{AccessToken: "a-1", RefreshToken: "r-1"})
	require.NoError(t, err)

	m.Invalidate()

	s, err := m.Replace(ctx, from, &oauth2.Token{AccessToken: "a-2"})
	require.NoError(t, err)
	assert.Equal(t, "a-2", s.AccessToken())
	assert.Equal(t, "r-1", s.RefreshToken())
}

func TestManager_RejectsNilToken(t *testing.T) {
	m := NewManager(NewMemoryStore(), nil)

	_, err := m.Establish(context.Background(), nil)
	assert.Error(t, err)

	_, err = m.Replace(context.Background(), nil, nil)
	assert.Error(t, err)
}

func TestManager_ClearDropsCacheEvenOnStoreError(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("disk gone")

	m := NewManager(failingStore{err: boom}, nil)
	m.cached = testSession()
	m.loaded = true

	err := m.Clear(ctx)
	assert.ErrorIs(t, err, boom)

	_, err = m.Current(ctx)
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestManager_LoadError(t *testing.T) {
	boom := errors.New("corrupt")
	m := NewManager(failingStore{err: boom}, nil)

	_, err := m.Current(context.Background())
	assert.ErrorIs(t, err, boom)

	_, err = m.AccessToken(context.Background())
	assert.ErrorIs(t, err, boom)
}
