package libsql

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/raaf/core"
	"github.com/hupe1980/raaf/session"
)

func openTestStore(t *testing.T, optFns ...func(o *Options)) *Store {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "raaf.db")
	store, err := Open(context.Background(), dsn, optFns...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	_, err := store.Get(ctx, "missing")
	require.ErrorIs(t, err, core.ErrSessionNotFound)

	sess, err := store.Create(ctx, "s1")
	require.NoError(t, err)
	require.NoError(t, sess.SetSystemMessage(core.NewSystemMessage("You are terse.")))
	require.NoError(t, sess.AddMessage(core.NewUserMessage("weather?")))
	call := core.NewToolCallMessage("assistant", "", []core.ToolCall{{ID: "c1", Name: "get_weather", Arguments: []byte(`{"location":"Paris"}`)}})
	require.NoError(t, sess.AddMessage(call))
	require.NoError(t, sess.AddMessage(core.NewToolResultMessage("c1", "get_weather", "sunny", nil)))
	sess.SetVar("user_name", "Ada")
	require.NoError(t, store.Save(ctx, sess))

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	msgs := got.GetMessages()
	require.Len(t, msgs, 4)
	assert.Equal(t, core.RoleSystem, msgs[0].Role)
	assert.Equal(t, "c1", msgs[2].ToolCalls[0].ID)
	assert.JSONEq(t, `{"location":"Paris"}`, string(msgs[2].ToolCalls[0].Arguments))
	assert.Equal(t, "c1", msgs[3].ToolCallID)
	v, ok := got.GetVar("user_name")
	require.True(t, ok)
	assert.Equal(t, "Ada", v)

	// invariants survive the round trip
	require.NoError(t, got.AddMessage(core.NewUserMessage("thanks")))
	assert.ErrorIs(t, got.AddMessage(core.NewToolResultMessage("c1", "get_weather", "dup", nil)), core.ErrInvalidMessage)

	require.NoError(t, store.Delete(ctx, "s1"))
	_, err = store.Get(ctx, "s1")
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
}

func TestStore_TTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store := openTestStore(t, func(o *Options) {
		o.TTL = time.Minute
		o.Now = func() time.Time { return now }
	})

	_, err := store.Create(ctx, "a")
	require.NoError(t, err)
	_, err = store.Create(ctx, "b")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = store.Get(ctx, "a")
	require.ErrorIs(t, err, core.ErrSessionNotFound)

	n, err := store.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "a was already evicted by Get")
}

func TestStore_JanitorPurgesUnreadSessions(t *testing.T) {
	var clock atomic.Int64
	clock.Store(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).UnixNano())
	store := openTestStore(t, func(o *Options) {
		o.TTL = time.Minute
		o.Now = func() time.Time { return time.Unix(0, clock.Load()) }
	})

	ctx, cancel := context.WithCancel(context.Background())
	_, err := store.Create(ctx, "a")
	require.NoError(t, err)
	clock.Add(int64(2 * time.Minute))

	done := make(chan struct{})
	go func() {
		defer close(done)
		session.RunJanitor(ctx, store, 5*time.Millisecond, nil)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	assert.Eventually(t, func() bool {
		var n int
		return store.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&n) == nil && n == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMigrateIsIdempotent(t *testing.T) {
	store := openTestStore(t)
	require.NoError(t, Migrate(context.Background(), store.db))
}
