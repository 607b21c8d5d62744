package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGate(t *testing.T, config Config) *Gate {
	t.Helper()
	db, err := OpenStore("")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gate, err := NewGate(db, config, cmtlog.NewNopLogger())
	require.NoError(t, err)
	return gate
}

func defaultConfig() Config {
	return Config{AdminPassword: "1234", Secret: "test-secret"}
}

func TestGate_LoginWithCorrectPassword(t *testing.T) {
	gate := newTestGate(t, defaultConfig())
	ctx := context.Background()

	token, expires, err := gate.Login(ctx, "1234")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(DefaultTTL), expires, time.Minute)
	assert.True(t, gate.Authenticated(ctx, token))
}

func TestGate_LoginWithWrongPassword(t *testing.T) {
	gate := newTestGate(t, defaultConfig())
	ctx := context.Background()

	token, _, err := gate.Login(ctx, "4321")
	assert.ErrorIs(t, err, ErrInvalidPassword)
	assert.Empty(t, token)
	assert.False(t, gate.Authenticated(ctx, token))

	_, _, err = gate.Login(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidPassword)

	for _, padded := range []string{" 1234", "1234 ", "  1234\t", "1234\n"} {
		token, _, err := gate.Login(ctx, padded)
		assert.ErrorIs(t, err, ErrInvalidPassword, "%q", padded)
		assert.Empty(t, token)
	}
}

func TestGate_Logout(t *testing.T) {
	gate := newTestGate(t, defaultConfig())
	ctx := context.Background()

	token, _, err := gate.Login(ctx, "1234")
	require.NoError(t, err)
	other, _, err := gate.Login(ctx, "1234")
	require.NoError(t, err)

	require.NoError(t, gate.Logout(ctx, token))
	assert.False(t, gate.Authenticated(ctx, token))
	// Other clients keep their sessions.
	assert.True(t, gate.Authenticated(ctx, other))

	assert.NoError(t, gate.Logout(ctx, ""))
	assert.NoError(t, gate.Logout(ctx, "garbage"))
}

func TestGate_SessionExpires(t *testing.T) {
	gate := newTestGate(t, Config{AdminPassword: "1234", Secret: "s", TTL: time.Hour})
	ctx := context.Background()
	now := time.Now()
	gate.SetClock(func() time.Time { return now })

	token, expires, err := gate.Login(ctx, "1234")
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour).Unix(), expires.Unix())
	assert.True(t, gate.Authenticated(ctx, token))

	gate.SetClock(func() time.Time { return now.Add(61 * time.Minute) })
	assert.False(t, gate.Authenticated(ctx, token))
}

func TestGate_RejectsForeignTokens(t *testing.T) {
	gate := newTestGate(t, defaultConfig())
	foreign := newTestGate(t, Config{AdminPassword: "1234", Secret: "other-secret"})
	ctx := context.Background()

	token, _, err := foreign.Login(ctx, "1234")
	require.NoError(t, err)
	assert.False(t, gate.Authenticated(ctx, token))
	assert.False(t, gate.Authenticated(ctx, ""))
	assert.False(t, gate.Authenticated(ctx, "not.a.jwt"))
}

func TestNewGate_RequiresSecrets(t *testing.T) {
	db, err := OpenStore("")
	require.NoError(t, err)
	defer db.Close()

	_, err = NewGate(db, Config{AdminPassword: "1234"}, cmtlog.NewNopLogger())
	assert.Error(t, err)
	_, err = NewGate(db, Config{Secret: "s"}, cmtlog.NewNopLogger())
	assert.Error(t, err)
}

func TestCookies(t *testing.T) {
	expires := time.Now().Add(time.Hour)
	cookie := NewCookie("tok", expires)
	assert.Equal(t, CookieName, cookie.Name)
	assert.True(t, cookie.HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, TokenFromRequest(req))
	req.AddCookie(cookie)
	assert.Equal(t, "tok", TokenFromRequest(req))

	assert.Equal(t, -1, ClearCookie().MaxAge)
}
