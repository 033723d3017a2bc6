package captcha

import (
	"context"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mini, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mini.Close)

	client := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	return NewRedisStore(client, time.Minute), mini
}

func TestCaptchaCheckIsCaseInsensitiveAndOneShot(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	code, err := store.Issue(ctx, "session-1")
	require.NoError(t, err)
	require.Len(t, code, 4)

	ok, err := store.Check(ctx, "session-1", strings.ToLower(code))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.Check(ctx, "session-1", code)
	require.NoError(t, err)
	require.False(t, ok, "a captcha must not validate twice")
}

func TestCaptchaRejectsWrongOrExpiredAnswer(t *testing.T) {
	store, mini := newStore(t)
	ctx := context.Background()

	_, err := store.Issue(ctx, "s")
	require.NoError(t, err)
	ok, err := store.Check(ctx, "s", "nope!")
	require.NoError(t, err)
	require.False(t, ok)

	code, err := store.Issue(ctx, "s")
	require.NoError(t, err)
	mini.FastForward(2 * time.Minute)
	ok, err = store.Check(ctx, "s", code)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCaptchaRequiresSession(t *testing.T) {
	store, _ := newStore(t)

	_, err := store.Issue(context.Background(), " ")
	require.Error(t, err)

	ok, err := store.Check(context.Background(), "", "abcd")
	require.NoError(t, err)
	require.False(t, ok)
}
