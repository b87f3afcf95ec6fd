package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"trustScope/internal/backfill"
	"trustScope/internal/config"
	"trustScope/internal/mirrorclient"
	"trustScope/internal/storage"
	"trustScope/internal/storage/postgres"
)

func newBackfillCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Replay attestation events from chain logs into the mirror",
		RunE:  runBackfill,
	}

	cmd.Flags().Uint64("from", 0, "start block (inclusive), 0 means the deploy block")
	cmd.Flags().Uint64("to", 0, "end block (inclusive), 0 means latest")
	cmd.Flags().Uint64("batch-size", 2000, "blocks per batch")
	cmd.Flags().String("mirror-url", "http://localhost:8080", "mirror API base URL")
	cmd.Flags().String("out", "", "write events to this JSONL file instead of the mirror")
	cmd.Flags().String("checkpoint", "./data/backfill_checkpoint.json", "checkpoint file path (empty disables)")
	cmd.Flags().String("pg-dsn", "", "keep the checkpoint in Postgres indexer_state instead of a file")
	cmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	cmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	addChainFlags(cmd, false)

	return cmd
}

func runBackfill(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadBackfill(cfgFile, cmd.Flags())
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

	client, ledger, err := openLedger(ctx, cfg.Chain, ledgerNeeds{attestation: true}, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	var (
		sink       storage.EventSink
		mirrorSink *backfill.MirrorSink
	)
	if cfg.Out != "" {
		sink = storage.NewJSONLSink(cfg.Out)
	} else {
		if cfg.MirrorURL == "" {
			return fmt.Errorf("mirror url or out path is required")
		}
		mirrorSink = backfill.NewMirrorSink(mirrorclient.New(mirrorclient.Config{BaseURL: cfg.MirrorURL, Logger: logger}), logger)
		sink = mirrorSink
	}

	var checkpoint backfill.Checkpointer
	switch {
	case cfg.PGDSN != "":
		store, err := postgres.Open(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		checkpoint = backfill.NewStateCheckpoint(store, backfill.StateName)
	case cfg.Checkpoint != "":
		checkpoint = backfill.NewFileCheckpoint(cfg.Checkpoint)
	}

	from := cfg.FromBlock
	if from == 0 {
		from = cfg.Chain.DeployBlock
	}

	runner := backfill.NewRunner(backfill.RunConfig{
		FromBlock:    from,
		ToBlock:      cfg.ToBlock,
		BatchSize:    cfg.BatchSize,
		MaxRetries:   cfg.MaxRetries,
		RetryBackoff: cfg.RetryBackoff,
	}, client, ledger, sink, checkpoint, logger)

	logger.Info("backfill start",
		zap.String("rpc", redactDSN(cfg.Chain.RPCURL)),
		zap.Uint64("from", from),
		zap.Uint64("to", cfg.ToBlock),
		zap.Uint64("batch_size", cfg.BatchSize),
		zap.String("out", cfg.Out),
		zap.String("mirror_url", cfg.MirrorURL),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.String("checkpoint", cfg.Checkpoint),
	)

	stats, err := runner.Run(ctx)
	if err != nil {
		return err
	}

	fields := []zap.Field{
		zap.Int("batches", stats.Batches),
		zap.Int("events", stats.Events),
		zap.Uint64("from", stats.FromBlock),
		zap.Uint64("to", stats.ToBlock),
	}
	if mirrorSink != nil {
		recorded, duplicates, revoked := mirrorSink.Counts()
		fields = append(fields,
			zap.Int64("recorded", recorded),
			zap.Int64("duplicates", duplicates),
			zap.Int64("revoked", revoked),
		)
	}
	logger.Info("backfill complete", fields...)
	return nil
}
