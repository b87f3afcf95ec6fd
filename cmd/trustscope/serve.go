package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"trustScope/internal/api"
	"trustScope/internal/cache"
	"trustScope/internal/config"
	"trustScope/internal/metrics"
	"trustScope/internal/mirror"
	"trustScope/internal/storage"
	"trustScope/internal/storage/memory"
	"trustScope/internal/storage/postgres"
	"trustScope/internal/symbol"
)

const (
	rateLimiterPruneInterval = time.Minute
	rateLimiterMaxClients    = 10000
	cacheKeyPrefix           = "trustscope:"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the mirror HTTP API",
		RunE:  runServe,
	}

	cmd.Flags().String("listen", ":8080", "HTTP listen address")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN")
	cmd.Flags().Bool("use-memory", false, "use the in-memory store instead of Postgres")
	cmd.Flags().String("redis-url", "", "Redis URL for the response cache (memory when empty)")
	cmd.Flags().Float64("rate-limit", 5, "write requests per second per client (0 disables)")
	cmd.Flags().Int("rate-burst", 10, "write request burst per client")
	cmd.Flags().Duration("cache-fresh", 5*time.Second, "feed cache fresh window")
	cmd.Flags().Duration("cache-stale", 10*time.Second, "feed cache stale window")
	cmd.Flags().Duration("shutdown-timeout", 10*time.Second, "graceful shutdown timeout")
	addChainFlags(cmd, false)

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadServe(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	reg := metrics.New()

	// The resolver lives as long as the process; its cache is never cleared.
	var symbols mirror.SymbolResolver
	if cfg.Chain.RPCURL != "" {
		client, ledger, err := openLedger(ctx, cfg.Chain, ledgerNeeds{}, logger)
		if err != nil {
			return err
		}
		defer client.Close()
		symbols = symbol.NewResolver(ledger, symbol.WithLogger(logger), symbol.WithObserver(reg))
	} else {
		logger.Warn("no rpc configured, reward token symbols default to fallback", zap.String("fallback", symbol.FallbackSymbol))
	}

	cacheStore, closeCache := openCache(ctx, cfg.RedisURL, logger)
	defer closeCache()

	reads := cache.NewLoader(cacheStore, cfg.CacheFresh, cfg.CacheStale, logger, reg)
	limiter := api.NewRateLimiter(cfg.RateLimit, cfg.RateBurst, logger)
	go pruneLimiter(ctx, limiter)

	srv := api.NewServer(api.Config{
		Service: mirror.NewService(store, symbols, logger),
		Reads:   reads,
		Metrics: reg,
		Limiter: limiter,
		Logger:  logger,
	})

	httpServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("mirror api listening",
			zap.String("listen", cfg.Listen),
			zap.Bool("use_memory", cfg.UseMemory),
			zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
			zap.String("redis_url", redactDSN(cfg.RedisURL)),
			zap.Float64("rate_limit", cfg.RateLimit),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func openStore(ctx context.Context, cfg config.ServeConfig, logger *zap.Logger) (storage.Store, error) {
	if cfg.UseMemory {
		logger.Warn("using in-memory store, data is lost on exit")
		return memory.NewStore(), nil
	}
	if cfg.PGDSN == "" {
		return nil, fmt.Errorf("pg dsn is required unless --use-memory is set")
	}

	store, err := postgres.Open(ctx, cfg.PGDSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := postgres.Migrate(ctx, store.Pool()); err != nil {
		store.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return store, nil
}

// openCache prefers Redis and falls back to process memory when it is not
// configured or not reachable.
func openCache(ctx context.Context, redisURL string, logger *zap.Logger) (cache.Store, func()) {
	noop := func() {}
	if redisURL == "" {
		return cache.NewMemory(), noop
	}
	client, err := cache.OpenRedis(ctx, redisURL)
	if err != nil {
		logger.Warn("redis unavailable, using memory cache", zap.String("redis_url", redactDSN(redisURL)), zap.Error(err))
		return cache.NewMemory(), noop
	}
	return cache.NewRedis(client, cacheKeyPrefix), func() { _ = client.Close() }
}

func pruneLimiter(ctx context.Context, limiter *api.RateLimiter) {
	ticker := time.NewTicker(rateLimiterPruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Prune(rateLimiterMaxClients)
		}
	}
}
