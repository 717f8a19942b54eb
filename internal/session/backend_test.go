// file: internal/session/backend_test.go
package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dkoosis/tableside/internal/config"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func sample() Session {
	return Session{
		Token:         "session-token",
		Role:          RoleAdmin,
		EstablishedAt: time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC),
	}
}

func assertRoundTrip(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := b.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Save(ctx, sample()))
	got, ok, err := b.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sample().Token, got.Token)
	assert.Equal(t, sample().Role, got.Role)
	assert.True(t, sample().EstablishedAt.Equal(got.EstablishedAt))

	require.NoError(t, b.Delete(ctx))
	require.NoError(t, b.Delete(ctx), "Deleting twice should not fail.")
	_, ok, err = b.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryBackend(t *testing.T) {
	assertRoundTrip(t, NewMemoryBackend())
}

func TestFileBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	b, err := NewFileBackend(path, nil)
	require.NoError(t, err)
	assertRoundTrip(t, b)

	require.NoError(t, b.Save(context.Background(), sample()))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileBackend_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	b, err := NewFileBackend(path, nil)
	require.NoError(t, err)

	_, _, err = b.Load(context.Background())
	assert.Error(t, err)

	store := NewStore(b)
	_, ok := store.Current(context.Background())
	assert.False(t, ok, "An unreadable session is treated as not authenticated.")
}

func TestKeyringBackend(t *testing.T) {
	keyring.MockInit()
	b := NewKeyringBackend("", nil)
	assert.True(t, b.IsAvailable())
	assertRoundTrip(t, b)
}

func TestRedisBackend(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	b := NewRedisBackend(rdb, "test", nil)
	assertRoundTrip(t, b)
}

func TestRedisBackend_TTLFollowsExpiry(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	b := NewRedisBackend(rdb, "ttl", nil)
	now := time.Now()
	b.now = func() time.Time { return now }

	s := sample()
	s.ExpiresAt = now.Add(10 * time.Minute)
	require.NoError(t, b.Save(context.Background(), s))
	assert.Equal(t, 10*time.Minute, mr.TTL("ttl:current"))

	mr.FastForward(11 * time.Minute)
	_, ok, err := b.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	s.ExpiresAt = now.Add(-time.Second)
	assert.ErrorIs(t, b.Save(context.Background(), s), ErrInvalidSession)
}

func TestNewBackend(t *testing.T) {
	keyring.MockInit()

	b, err := NewBackend(config.SessionConfig{Backend: config.BackendAuto}, nil)
	require.NoError(t, err)
	assert.Equal(t, config.BackendKeyring, b.Name())

	b, err = NewBackend(config.SessionConfig{Backend: config.BackendFile, TokenPath: filepath.Join(t.TempDir(), "s.json")}, nil)
	require.NoError(t, err)
	assert.Equal(t, config.BackendFile, b.Name())

	b, err = NewBackend(config.SessionConfig{Backend: config.BackendRedis, RedisAddr: "127.0.0.1:0"}, nil)
	require.NoError(t, err)
	assert.Equal(t, config.BackendRedis, b.Name())

	_, err = NewBackend(config.SessionConfig{Backend: "floppy"}, nil)
	assert.Error(t, err)
}

func TestKeyringBackend_Diagnose(t *testing.T) {
	keyring.MockInit()
	k := NewKeyringBackend("", nil)
	require.NoError(t, k.Save(context.Background(), sample()))

	d := k.Diagnose()
	assert.True(t, d.Healthy())
	assert.NoError(t, d.FirstError())
	assert.Equal(t, defaultKeyringService, d.Service)

	_, ok, err := k.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, ok, "The probe never touches the stored session.")

	keyring.MockInitWithError(keyring.ErrSetDataTooBig)
	d = k.Diagnose()
	assert.False(t, d.Healthy())
	assert.ErrorIs(t, d.FirstError(), keyring.ErrSetDataTooBig)
	assert.NotEmpty(t, KeyringAdvice(d.Service))
}
