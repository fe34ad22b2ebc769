package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/raaf/core"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestInMemoryStore_CRUD(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	_, err := store.Get(ctx, "s1")
	require.ErrorIs(t, err, core.ErrSessionNotFound)

	sess, err := store.Create(ctx, "s1")
	require.NoError(t, err)
	require.NoError(t, sess.AddMessage(core.NewUserMessage("hello")))
	sess.SetVar("user_name", "Ada")

	// not visible before Save
	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 0, got.Len())

	require.NoError(t, store.Save(ctx, sess))
	got, err = store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Len())
	v, _ := got.GetVar("user_name")
	assert.Equal(t, "Ada", v)

	// returned session is a copy
	require.NoError(t, got.AddMessage(core.NewUserMessage("again")))
	again, _ := store.Get(ctx, "s1")
	assert.Equal(t, 1, again.Len())

	require.NoError(t, store.Delete(ctx, "s1"))
	require.NoError(t, store.Delete(ctx, "s1"))
	_, err = store.Get(ctx, "s1")
	assert.ErrorIs(t, err, core.ErrSessionNotFound)

	_, err = store.Create(ctx, "")
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
}

func TestInMemoryStore_TTL(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := NewInMemoryStore(func(o *Options) {
		o.TTL = time.Minute
		o.Now = clock.Now
	})

	sess, err := store.Create(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(time.Minute), sess.ExpiresAt)

	clock.Advance(50 * time.Second)
	require.NoError(t, store.Save(ctx, sess), "save refreshes the ttl")

	clock.Advance(50 * time.Second)
	_, err = store.Get(ctx, "s")
	require.NoError(t, err)

	clock.Advance(11 * time.Second)
	_, err = store.Get(ctx, "s")
	require.ErrorIs(t, err, core.ErrSessionNotFound)
	assert.Equal(t, 0, store.Len(), "expired session evicted on read")
}

func TestInMemoryStore_PurgeExpired(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(0, 0)}
	store := NewInMemoryStore(func(o *Options) {
		o.TTL = time.Second
		o.Now = clock.Now
	})
	_, _ = store.Create(ctx, "a")
	_, _ = store.Create(ctx, "b")
	clock.Advance(2 * time.Second)
	_, _ = store.Create(ctx, "c")

	n, err := store.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 1, store.Len())
}

func TestRunJanitor_EvictsUnreadSessions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	clock := &fakeClock{now: time.Unix(0, 0)}
	store := NewInMemoryStore(func(o *Options) {
		o.TTL = time.Second
		o.Now = clock.Now
	})
	_, _ = store.Create(ctx, "a")
	_, _ = store.Create(ctx, "b")
	clock.Advance(2 * time.Second)
	_, _ = store.Create(ctx, "c")

	done := make(chan struct{})
	go func() {
		defer close(done)
		RunJanitor(ctx, store, time.Millisecond, nil)
	}()

	assert.Eventually(t, func() bool { return store.Len() == 1 }, time.Second, 5*time.Millisecond)
	_, err := store.Get(ctx, "c")
	assert.NoError(t, err)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop after cancel")
	}
}

func TestLocker(t *testing.T) {
	l := NewLocker()

	unlock, err := l.TryLock("s")
	require.NoError(t, err)
	assert.True(t, l.Locked("s"))

	_, err = l.TryLock("s")
	require.ErrorIs(t, err, core.ErrSessionLocked)

	other, err := l.TryLock("other")
	require.NoError(t, err, "different sessions are independent")
	other()

	unlock()
	unlock()
	assert.False(t, l.Locked("s"))

	unlock2, err := l.TryLock("s")
	require.NoError(t, err)
	unlock2()
}

func TestLocker_SingleWinner(t *testing.T) {
	l := NewLocker()
	var wins int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := l.TryLock("hot"); err == nil {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	close(start)
	wg.Wait()
	assert.Equal(t, int32(1), wins)
}
