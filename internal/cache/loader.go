package cache

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Read states reported to the observer.
const (
	StateFresh = "fresh"
	StateStale = "stale"
	StateMiss  = "miss"
)

// Observer receives read states. metrics.Registry implements it.
type Observer interface {
	RecordCacheRead(key, state string)
}

// LoadFunc produces the value for a key.
type LoadFunc func(ctx context.Context) ([]byte, error)

// Loader serves values from a Store. An entry younger than Fresh is served
// as is. Up to Fresh+Stale it is still served while one background refresh
// runs. Older entries are reloaded inline. Concurrent loads of one key share
// a single call, which is not cancelled when the caller that started it goes
// away.
type Loader struct {
	store    Store
	fresh    time.Duration
	stale    time.Duration
	logger   *zap.Logger
	observer Observer
	now      func() time.Time

	group singleflight.Group
}

// NewLoader creates a Loader. observer may be nil.
func NewLoader(store Store, fresh, stale time.Duration, logger *zap.Logger, observer Observer) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		store:    store,
		fresh:    fresh,
		stale:    stale,
		logger:   logger,
		observer: observer,
		now:      time.Now,
	}
}

// Get returns the value for key, loading it with fn when needed.
func (l *Loader) Get(ctx context.Context, key string, fn LoadFunc) ([]byte, error) {
	entry, ok, err := l.store.Get(ctx, key)
	if err != nil {
		l.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		ok = false
	}
	if ok {
		age := l.now().Sub(entry.StoredAt)
		switch {
		case age < l.fresh:
			l.record(key, StateFresh)
			return entry.Value, nil
		case age < l.fresh+l.stale:
			l.record(key, StateStale)
			go l.refresh(context.WithoutCancel(ctx), key, fn)
			return entry.Value, nil
		}
	}

	l.record(key, StateMiss)
	// The shared load outlives any one caller; each caller stops waiting on
	// its own ctx.
	ch := l.group.DoChan(key, func() (interface{}, error) {
		return l.load(context.WithoutCancel(ctx), key, fn)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

// Invalidate drops keys so the next read reloads them.
func (l *Loader) Invalidate(ctx context.Context, keys ...string) {
	for _, key := range keys {
		l.group.Forget(key)
	}
	if err := l.store.Delete(ctx, keys...); err != nil {
		l.logger.Warn("cache invalidate failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

func (l *Loader) refresh(ctx context.Context, key string, fn LoadFunc) {
	_, err, _ := l.group.Do(key, func() (interface{}, error) {
		return l.load(ctx, key, fn)
	})
	if err != nil {
		l.logger.Warn("cache refresh failed", zap.String("key", key), zap.Error(err))
	}
}

func (l *Loader) load(ctx context.Context, key string, fn LoadFunc) ([]byte, error) {
	value, err := fn(ctx)
	if err != nil {
		return nil, err
	}
	entry := Entry{Value: value, StoredAt: l.now()}
	if err := l.store.Set(ctx, key, entry, l.fresh+l.stale); err != nil {
		l.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
	return value, nil
}

func (l *Loader) record(key, state string) {
	if l.observer != nil {
		l.observer.RecordCacheRead(key, state)
	}
}
