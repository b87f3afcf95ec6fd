package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLoader(c *clock) (*Loader, *Memory) {
	mem := NewMemory()
	mem.now = c.Now
	l := NewLoader(mem, 5*time.Second, 10*time.Second, nil, nil)
	l.now = c.Now
	return l, mem
}

func TestLoaderFreshStaleMiss(t *testing.T) {
	c := &clock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l, mem := newTestLoader(c)
	ctx := context.Background()

	var calls atomic.Int32
	fn := func(context.Context) ([]byte, error) {
		n := calls.Add(1)
		return []byte{byte('0' + n)}, nil
	}

	v, err := l.Get(ctx, "activity", fn)
	if err != nil || string(v) != "1" {
		t.Fatalf("first load: %q %v", v, err)
	}

	c.Advance(3 * time.Second)
	v, _ = l.Get(ctx, "activity", fn)
	if string(v) != "1" || calls.Load() != 1 {
		t.Fatalf("fresh read should not reload: %q calls=%d", v, calls.Load())
	}

	c.Advance(4 * time.Second)
	v, _ = l.Get(ctx, "activity", fn)
	if string(v) != "1" {
		t.Fatalf("stale read should serve old value, got %q", v)
	}

	deadline := time.Now().Add(time.Second)
	for {
		entry, ok, _ := mem.Get(ctx, "activity")
		if ok && string(entry.Value) == "2" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("stale read should trigger a background refresh")
		}
		time.Sleep(5 * time.Millisecond)
	}
	// Let the refresh flight return before the next miss.
	time.Sleep(20 * time.Millisecond)

	c.Advance(20 * time.Second)
	v, _ = l.Get(ctx, "activity", fn)
	if string(v) != "3" {
		t.Fatalf("expired entry should reload inline, got %q", v)
	}
}

func TestLoaderInvalidate(t *testing.T) {
	c := &clock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l, _ := newTestLoader(c)
	ctx := context.Background()

	var calls atomic.Int32
	fn := func(context.Context) ([]byte, error) {
		calls.Add(1)
		return []byte("x"), nil
	}

	_, _ = l.Get(ctx, "leaderboard", fn)
	l.Invalidate(ctx, "leaderboard")
	_, _ = l.Get(ctx, "leaderboard", fn)
	if calls.Load() != 2 {
		t.Fatalf("invalidate should force reload, calls=%d", calls.Load())
	}
}

func TestLoaderLeaderCancelDoesNotFailWaiters(t *testing.T) {
	c := &clock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l, _ := newTestLoader(c)

	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	fn := func(ctx context.Context) ([]byte, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return []byte("feed"), nil
	}

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := l.Get(leaderCtx, "activity", fn)
		leaderErr <- err
	}()
	<-started

	cancel()
	if err := <-leaderErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("leader should stop waiting on its own ctx, got %v", err)
	}

	type result struct {
		v   []byte
		err error
	}
	waiter := make(chan result, 1)
	go func() {
		v, err := l.Get(context.Background(), "activity", fn)
		waiter <- result{v, err}
	}()

	close(release)
	got := <-waiter
	if got.err != nil || string(got.v) != "feed" {
		t.Fatalf("waiter should get the shared load: %q %v", got.v, got.err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected one shared load, got %d", calls.Load())
	}
}

func TestLoaderErrorNotCached(t *testing.T) {
	c := &clock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	l, mem := newTestLoader(c)
	ctx := context.Background()

	_, err := l.Get(ctx, "activity", func(context.Context) ([]byte, error) {
		return nil, errors.New("db down")
	})
	if err == nil {
		t.Fatalf("expected load error")
	}
	if _, ok, _ := mem.Get(ctx, "activity"); ok {
		t.Fatalf("errors must not be cached")
	}
}

func TestMemoryExpiry(t *testing.T) {
	c := &clock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	mem := NewMemory()
	mem.now = c.Now
	ctx := context.Background()

	_ = mem.Set(ctx, "k", Entry{Value: []byte("v")}, time.Second)
	if _, ok, _ := mem.Get(ctx, "k"); !ok {
		t.Fatalf("entry should be present")
	}
	c.Advance(time.Second)
	if _, ok, _ := mem.Get(ctx, "k"); ok {
		t.Fatalf("entry should expire")
	}
}
