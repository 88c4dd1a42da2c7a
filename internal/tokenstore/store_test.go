package tokenstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, subject string, exp time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestStaticStore(t *testing.T) {
	ctx := context.Background()
	store := NewStaticStore("")

	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, ErrNoToken)

	require.NoError(t, store.Save(ctx, "demo-token"))
	token, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "demo-token", token)

	require.NoError(t, store.Clear(ctx))
	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestStaticStoreRejectsExpiredJWT(t *testing.T) {
	store := NewStaticStore(signedToken(t, "student@example.com", time.Now().Add(-time.Minute)))

	_, err := store.Load(context.Background())
	assert.ErrorIs(t, err, ErrExpired)
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "token")
	store := NewFileStore(path, "s3cret")

	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, ErrNoToken)

	token := signedToken(t, "student@example.com", time.Now().Add(time.Hour))
	require.NoError(t, store.Save(ctx, token))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), token, "token must not be stored in clear text")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, token, loaded)

	require.NoError(t, store.Clear(ctx))
	require.NoError(t, store.Clear(ctx))
	_, err = store.Load(ctx)
	assert.ErrorIs(t, err, ErrNoToken)
}

func TestFileStoreWrongPassword(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "token")

	require.NoError(t, NewFileStore(path, "right").Save(ctx, "opaque"))

	_, err := NewFileStore(path, "wrong").Load(ctx)
	assert.ErrorIs(t, err, ErrCorruptTokenFile)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ctx := context.Background()

	store := NewRedisStore(rdb, "kiosk-7", 24*time.Hour)

	_, err := store.Load(ctx)
	assert.ErrorIs(t, err, ErrNoToken)

	token := signedToken(t, "student@example.com", time.Now().Add(time.Hour))
	require.NoError(t, store.Save(ctx, token))

	ttl := mr.TTL(config.CacheKey.TokenKey("kiosk-7"))
	assert.LessOrEqual(t, ttl, time.Hour)
	assert.Greater(t, ttl, 50*time.Minute)

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, token, loaded)

	require.NoError(t, store.Clear(ctx))
	assert.False(t, mr.Exists(config.CacheKey.TokenKey("kiosk-7")))
}

func TestNewSelectsBackend(t *testing.T) {
	cfg := &config.Config{TokenStore: config.TokenStoreEnv, Token: "abc"}
	store, err := New(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &StaticStore{}, store)

	cfg.TokenStore = config.TokenStoreRedis
	_, err = New(cfg, nil)
	assert.Error(t, err)

	cfg.TokenStore = "vault"
	_, err = New(cfg, nil)
	assert.Error(t, err)
}

func TestIdentify(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	id := Identify(signedToken(t, "student@example.com", exp), "default")

	assert.Equal(t, "student@example.com", id.Subject)
	require.NotNil(t, id.ExpiresAt)
	assert.Equal(t, exp.Unix(), *id.ExpiresAt)

	opaque := Identify("demo-token", "default")
	assert.Empty(t, opaque.Subject)
	assert.Nil(t, opaque.ExpiresAt)
}
