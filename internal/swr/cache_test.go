package swr

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wait[T any](t *testing.T, ch <-chan Result[T]) Result[T] {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for revalidation")
		return Result[T]{}
	}
}

func TestCache_RevalidateStoresValue(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var updates []State[int]
	c := New(Options[int]{
		RefreshInterval: 200 * time.Second,
		Now:             func() time.Time { return now },
		OnUpdate:        func(_ string, st State[int]) { updates = append(updates, st) },
	})
	defer c.Close()

	assert.False(t, c.Get("k").HasValue)

	res := wait(t, c.Revalidate("k", func(context.Context) (int, error) { return 7, nil }))
	assert.Equal(t, 7, res.State.Value)
	assert.True(t, res.State.HasValue)
	assert.False(t, res.State.Loading)
	assert.Equal(t, now, res.State.UpdatedAt)
	assert.Equal(t, now.Add(200*time.Second), res.State.NextRefreshAt)

	assert.Equal(t, res.State, c.Get("k"))
	require.Len(t, updates, 1)
}

func TestCache_ErrorKeepsPreviousValue(t *testing.T) {
	c := New(Options[string]{})
	defer c.Close()

	wait(t, c.Revalidate("k", func(context.Context) (string, error) { return "first", nil }))
	res := wait(t, c.Revalidate("k", func(context.Context) (string, error) { return "", errors.New("unreachable") }))

	assert.Equal(t, "first", res.State.Value)
	assert.True(t, res.State.HasValue)
	assert.EqualError(t, res.State.Err, "unreachable")

	res = wait(t, c.Revalidate("k", func(context.Context) (string, error) { return "second", nil }))
	assert.Equal(t, "second", res.State.Value)
	assert.NoError(t, res.State.Err)
}

func TestCache_CoalescesConcurrentTriggers(t *testing.T) {
	c := New(Options[int]{})
	defer c.Close()

	var calls atomic.Int32
	release := make(chan struct{})
	started := make(chan struct{})
	fetch := func(context.Context) (int, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return 1, nil
	}

	first := c.Revalidate("k", fetch)
	<-started

	assert.True(t, c.Get("k").Loading)

	pending := make([]<-chan Result[int], 10)
	for i := range pending {
		pending[i] = c.Revalidate("k", fetch)
	}

	close(release)
	wait(t, first)

	assert.Equal(t, int32(1), calls.Load())
	for _, ch := range pending {
		r := wait(t, ch)
		assert.Equal(t, 1, r.State.Value)
		assert.True(t, r.Shared)
	}
	assert.False(t, c.Get("k").Loading)
}

func TestCache_KeysAreIndependent(t *testing.T) {
	c := New(Options[string]{})
	defer c.Close()

	a := wait(t, c.Revalidate("a", func(context.Context) (string, error) { return "A", nil }))
	b := wait(t, c.Revalidate("b", func(context.Context) (string, error) { return "B", nil }))

	assert.Equal(t, "A", a.State.Value)
	assert.Equal(t, "B", b.State.Value)
	assert.Equal(t, "A", c.Get("a").Value)
}

func TestCache_CloseDropsLateResult(t *testing.T) {
	var updates atomic.Int32
	c := New(Options[int]{OnUpdate: func(string, State[int]) { updates.Add(1) }})

	started := make(chan struct{})
	ch := c.Revalidate("k", func(ctx context.Context) (int, error) {
		close(started)
		<-ctx.Done()
		return 99, nil
	})
	<-started
	c.Close()

	res := wait(t, ch)
	assert.False(t, res.State.HasValue)
	assert.False(t, c.Get("k").HasValue)
	assert.Equal(t, int32(0), updates.Load())

	res = wait(t, c.Revalidate("k", func(context.Context) (int, error) { return 1, nil }))
	assert.False(t, res.State.HasValue)
	assert.True(t, c.Closed())
}

func TestCache_Seed(t *testing.T) {
	c := New(Options[string]{})
	defer c.Close()

	at := time.Unix(1700000000, 0)
	assert.True(t, c.Seed("k", "warm", at))
	assert.False(t, c.Seed("k", "again", at))

	st := c.Get("k")
	assert.Equal(t, "warm", st.Value)
	assert.True(t, st.Stale)
	assert.Equal(t, at, st.UpdatedAt)

	res := wait(t, c.Revalidate("k", func(context.Context) (string, error) { return "fresh", nil }))
	assert.Equal(t, "fresh", res.State.Value)
	assert.False(t, res.State.Stale)
}
