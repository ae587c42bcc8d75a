package redis

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/droneregistry/extension-oauth/instrumentation"
	"github.com/droneregistry/extension-oauth/security"
	"github.com/droneregistry/extension-oauth/storage"
)

func newTestStore(t *testing.T, enc *security.Encryptor) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	store, err := New(Config{
		Address:   mr.Addr(),
		KeyPrefix: "test:",
		Encryptor: enc,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func newCode(code string, now time.Time, ttl time.Duration) *storage.AuthorizationCode {
	return &storage.AuthorizationCode{
		Code:                code,
		ClientID:            "test-client",
		RedirectURI:         "https://partner.example/callback",
		State:               "abc",
		Scope:               "signature",
		AccessType:          "offline",
		CodeChallenge:       "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM",
		CodeChallengeMethod: "S256",
		CreatedAt:           now,
		ExpiresAt:           now.Add(ttl),
	}
}

func TestNew(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err, "address is required")

	_, err = New(Config{Address: "127.0.0.1:1"})
	assert.Error(t, err, "unreachable server must fail the ping")
}

func TestStore_SaveAndRedeem(t *testing.T) {
	store, mr := newTestStore(t, nil)
	ctx := context.Background()
	now := time.Now()

	code := newCode("redis-code-1", now, 10*time.Minute)
	require.NoError(t, store.SaveAuthorizationCode(ctx, code))

	assert.True(t, mr.Exists("test:code:redis-code-1"))
	ttl := mr.TTL("test:code:redis-code-1")
	assert.True(t, ttl > 9*time.Minute && ttl <= 10*time.Minute+time.Second, "ttl = %v", ttl)

	got, err := store.RedeemAuthorizationCode(ctx, "redis-code-1")
	require.NoError(t, err)
	assert.Equal(t, "test-client", got.ClientID)
	assert.Equal(t, "offline", got.AccessType)
	assert.Equal(t, "S256", got.CodeChallengeMethod)
	assert.True(t, got.ExpiresAt.Equal(code.ExpiresAt))

	assert.False(t, mr.Exists("test:code:redis-code-1"), "redeem must delete the key")

	_, err = store.RedeemAuthorizationCode(ctx, "redis-code-1")
	assert.ErrorIs(t, err, storage.ErrAuthorizationCodeNotFound)
}

func TestStore_ExpiresInBackend(t *testing.T) {
	store, mr := newTestStore(t, nil)
	ctx := context.Background()

	require.NoError(t, store.SaveAuthorizationCode(ctx, newCode("short", time.Now(), 10*time.Minute)))

	mr.FastForward(11 * time.Minute)

	_, err := store.RedeemAuthorizationCode(ctx, "short")
	assert.ErrorIs(t, err, storage.ErrAuthorizationCodeNotFound)
}

func TestStore_SaveRejects(t *testing.T) {
	store, _ := newTestStore(t, nil)
	ctx := context.Background()
	now := time.Now()

	err := store.SaveAuthorizationCode(ctx, newCode("expired", now, -time.Second))
	assert.ErrorIs(t, err, storage.ErrInvalidAuthorizationCode)

	err = store.SaveAuthorizationCode(ctx, &storage.AuthorizationCode{Code: "no-client", ExpiresAt: now.Add(time.Minute)})
	assert.ErrorIs(t, err, storage.ErrInvalidAuthorizationCode)

	require.NoError(t, store.SaveAuthorizationCode(ctx, newCode("dup", now, time.Minute)))
	err = store.SaveAuthorizationCode(ctx, newCode("dup", now, time.Minute))
	assert.ErrorIs(t, err, storage.ErrInvalidAuthorizationCode)
}

func TestStore_Encrypted(t *testing.T) {
	key, err := security.GenerateKey()
	require.NoError(t, err)
	enc, err := security.NewEncryptor(key)
	require.NoError(t, err)

	store, mr := newTestStore(t, enc)
	ctx := context.Background()

	require.NoError(t, store.SaveAuthorizationCode(ctx, newCode("enc", time.Now(), time.Minute)))

	raw, err := mr.Get("test:code:enc")
	require.NoError(t, err)
	assert.NotContains(t, raw, "test-client")

	got, err := store.RedeemAuthorizationCode(ctx, "enc")
	require.NoError(t, err)
	assert.Equal(t, "abc", got.State)
}

func TestStore_CorruptPayload(t *testing.T) {
	store, mr := newTestStore(t, nil)
	require.NoError(t, mr.Set("test:code:bad", "{not json"))

	_, err := store.RedeemAuthorizationCode(context.Background(), "bad")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, storage.ErrAuthorizationCodeNotFound)
	assert.False(t, mr.Exists("test:code:bad"), "corrupt entries are consumed too")
}

func TestStore_ConcurrentRedeem(t *testing.T) {
	store, _ := newTestStore(t, nil)
	ctx := context.Background()
	require.NoError(t, store.SaveAuthorizationCode(ctx, newCode("race", time.Now(), time.Minute)))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.RedeemAuthorizationCode(ctx, "race"); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestStore_WithInstrumentationAndClient(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	store := NewWithClient(client, Config{})
	t.Cleanup(func() { _ = store.Close() })

	inst, err := instrumentation.New(instrumentation.Config{Enabled: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = inst.Shutdown(context.Background()) })
	store.SetInstrumentation(inst)

	ctx := context.Background()
	require.NoError(t, store.SaveAuthorizationCode(ctx, newCode("inst", time.Now(), time.Minute)))
	assert.True(t, mr.Exists(DefaultKeyPrefix+"code:inst"))

	_, err = store.RedeemAuthorizationCode(ctx, "inst")
	require.NoError(t, err)
}
