package symbol

import (
	"context"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	// NativeSymbol is returned for the zero address.
	NativeSymbol = "ETH"
	// FallbackSymbol is returned when the symbol cannot be read.
	FallbackSymbol = "TOKEN"
)

// Reader reads a token symbol from the ledger.
type Reader interface {
	TokenSymbol(ctx context.Context, token common.Address) (string, error)
}

// Observer receives resolver outcomes. metrics.Registry implements it.
type Observer interface {
	SymbolHit()
	SymbolMiss()
	SymbolFailure()
}

// Resolver maps token addresses to symbols. Symbols are cached for the
// lifetime of the Resolver and never evicted: tokens are assumed not to change
// their symbol. Concurrent misses for one address share a single read.
//
// A Resolver is meant to be built once at process start and shared.
type Resolver struct {
	reader   Reader
	logger   *zap.Logger
	observer Observer

	mu    sync.RWMutex
	cache map[string]string

	group singleflight.Group
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger used for failed reads.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithObserver sets the outcome observer.
func WithObserver(observer Observer) Option {
	return func(r *Resolver) {
		r.observer = observer
	}
}

// NewResolver creates a Resolver over reader.
func NewResolver(reader Reader, opts ...Option) *Resolver {
	r := &Resolver{
		reader: reader,
		logger: zap.NewNop(),
		cache:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the symbol of the token at address. It never fails: the
// zero address resolves to NativeSymbol and read errors to FallbackSymbol.
// Fallbacks are not cached, so the next call retries the read.
func (r *Resolver) Resolve(ctx context.Context, address string) string {
	key := strings.ToLower(strings.TrimSpace(address))
	if key == "" || key == zeroAddress {
		return NativeSymbol
	}

	if symbol, ok := r.cached(key); ok {
		r.hit()
		return symbol
	}
	if !common.IsHexAddress(key) {
		r.logger.Warn("invalid token address", zap.String("token", address))
		r.failure()
		return FallbackSymbol
	}

	// The flight outlives any single caller, so it must not inherit one
	// caller's cancellation.
	flightCtx := context.WithoutCancel(ctx)
	result := r.group.DoChan(key, func() (interface{}, error) {
		if symbol, ok := r.cached(key); ok {
			return symbol, nil
		}
		r.miss()
		symbol, err := r.reader.TokenSymbol(flightCtx, common.HexToAddress(key))
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.cache[key] = symbol
		r.mu.Unlock()
		return symbol, nil
	})

	select {
	case res := <-result:
		if res.Err != nil {
			r.logger.Warn("resolve token symbol", zap.String("token", key), zap.Error(res.Err))
			r.failure()
			return FallbackSymbol
		}
		return res.Val.(string)
	case <-ctx.Done():
		return FallbackSymbol
	}
}

// Cached returns the cached symbol for address without reading the ledger.
func (r *Resolver) Cached(address string) (string, bool) {
	return r.cached(strings.ToLower(strings.TrimSpace(address)))
}

func (r *Resolver) cached(key string) (string, bool) {
	r.mu.RLock()
	symbol, ok := r.cache[key]
	r.mu.RUnlock()
	return symbol, ok
}

func (r *Resolver) hit() {
	if r.observer != nil {
		r.observer.SymbolHit()
	}
}

func (r *Resolver) miss() {
	if r.observer != nil {
		r.observer.SymbolMiss()
	}
}

func (r *Resolver) failure() {
	if r.observer != nil {
		r.observer.SymbolFailure()
	}
}

var zeroAddress = strings.ToLower(common.Address{}.Hex())
