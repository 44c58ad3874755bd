package shared

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSessions(t *testing.T) (*SessionManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionManager(client, "sid", "secret", time.Hour, false), mr
}

func TestSessionRoundTripAndRenew(t *testing.T) {
	sessions, mr := newTestSessions(t)
	ctx := context.Background()

	sess, err := sessions.Load(ctx, httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	sess.Set("k", "v")
	res := httptest.NewRecorder()
	require.NoError(t, sessions.Commit(ctx, res, httptest.NewRequest("GET", "/", nil), sess))
	cookies := res.Result().Cookies()
	require.Len(t, cookies, 1)
	oldID := cookies[0].Value

	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(cookies[0])
	loaded, err := sessions.Load(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "v", loaded.Get("k"))

	loaded.Renew()
	loaded.SetUser("9")
	require.NoError(t, sessions.Commit(ctx, httptest.NewRecorder(), req, loaded))
	assert.NotEqual(t, oldID, loaded.ID)
	assert.False(t, mr.Exists("session:"+oldID), "renew drops the old record")
	assert.True(t, mr.Exists("session:"+loaded.ID))
}

func TestDestroyClearsCookie(t *testing.T) {
	sessions, mr := newTestSessions(t)
	ctx := context.Background()

	sess, err := sessions.Load(ctx, httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	require.NoError(t, sessions.Commit(ctx, httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil), sess))
	require.True(t, mr.Exists("session:"+sess.ID))

	sessions.Destroy(sess)
	assert.True(t, sess.Destroyed())
	res := httptest.NewRecorder()
	require.NoError(t, sessions.Commit(ctx, res, httptest.NewRequest("GET", "/", nil), sess))
	assert.False(t, mr.Exists("session:"+sess.ID))
	require.Len(t, res.Result().Cookies(), 1)
	assert.Equal(t, -1, res.Result().Cookies()[0].MaxAge)
}

func TestCSRFTokens(t *testing.T) {
	sessions, _ := newTestSessions(t)
	ctx := context.Background()
	csrf := NewCSRFManager("csrf-secret")

	sess, err := sessions.Load(ctx, httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.ErrorIs(t, csrf.VerifyToken(ctx, sess, "anything"), ErrCSRFTokenMissing)

	token, err := csrf.EnsureToken(ctx, sess)
	require.NoError(t, err)
	again, err := csrf.EnsureToken(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, token, again)
	assert.NoError(t, csrf.VerifyToken(ctx, sess, token))
	assert.ErrorIs(t, csrf.VerifyToken(ctx, sess, "forged"), ErrCSRFTokenMismatch)
	assert.ErrorIs(t, csrf.VerifyToken(ctx, sess, ""), ErrCSRFTokenMissing)

	rotated, err := csrf.RotateToken(ctx, sess)
	require.NoError(t, err)
	assert.NotEqual(t, token, rotated)
	assert.ErrorIs(t, csrf.VerifyToken(ctx, sess, token), ErrCSRFTokenMismatch)
}
