// Package backfill replays attestation contract events into a sink over a
// block range. It is the batch form of attestation recovery.
package backfill

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"trustScope/internal/model"
	"trustScope/internal/storage"
)

// RunConfig holds runtime settings for a backfill.
type RunConfig struct {
	FromBlock    uint64
	ToBlock      uint64
	BatchSize    uint64
	MaxRetries   int
	RetryBackoff time.Duration
}

// Head reports the chain head. chain.Client implements it.
type Head interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
}

// Source reads decoded attestation events. contracts.Ledger implements it.
type Source interface {
	AttestationLogs(ctx context.Context, fromBlock, toBlock uint64) ([]model.AttestationEvent, error)
}

// Stats summarizes a run.
type Stats struct {
	Batches   int
	Events    int
	FromBlock uint64
	ToBlock   uint64
	UpToDate  bool
}

// Runner streams attestation events from the chain into a sink.
type Runner struct {
	cfg        RunConfig
	head       Head
	source     Source
	sink       storage.EventSink
	checkpoint Checkpointer
	logger     *zap.Logger
	seen       map[string]struct{}
}

// NewRunner builds a Runner. checkpoint may be nil.
func NewRunner(cfg RunConfig, head Head, source Source, sink storage.EventSink, checkpoint Checkpointer, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:        cfg,
		head:       head,
		source:     source,
		sink:       sink,
		checkpoint: checkpoint,
		logger:     logger,
		seen:       make(map[string]struct{}),
	}
}

// Run replays every batch in order, saving the checkpoint after each one.
func (r *Runner) Run(ctx context.Context) (Stats, error) {
	var stats Stats
	if r.source == nil {
		return stats, fmt.Errorf("event source is nil")
	}
	if r.sink == nil {
		return stats, fmt.Errorf("sink is nil")
	}
	if r.cfg.BatchSize == 0 {
		return stats, fmt.Errorf("batch size must be greater than zero")
	}

	from := r.cfg.FromBlock
	to := r.cfg.ToBlock
	if to == 0 {
		if r.head == nil {
			return stats, fmt.Errorf("to block is required without a chain head")
		}
		err := withRetry(ctx, r.logger, "latest block", r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
			var err error
			to, err = r.head.LatestBlockNumber(ctx)
			return err
		})
		if err != nil {
			return stats, fmt.Errorf("get latest block: %w", err)
		}
	}

	if r.checkpoint != nil {
		last, ok, err := r.checkpoint.Load(ctx)
		if err != nil {
			return stats, err
		}
		if ok && last >= from {
			from = last + 1
			r.logger.Info("resume from checkpoint", zap.Uint64("last_processed", last), zap.Uint64("from", from))
		}
	}

	stats.FromBlock, stats.ToBlock = from, to
	if from > to {
		r.logger.Info("nothing to sync", zap.Uint64("from", from), zap.Uint64("to", to))
		stats.UpToDate = true
		return stats, nil
	}

	ranges, err := SplitRange(from, to, r.cfg.BatchSize)
	if err != nil {
		return stats, err
	}

	for _, blockRange := range ranges {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		var events []model.AttestationEvent
		err := withRetry(ctx, r.logger, "attestation logs", r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
			var err error
			events, err = r.source.AttestationLogs(ctx, blockRange.From, blockRange.To)
			return err
		})
		if err != nil {
			return stats, fmt.Errorf("attestation logs %d-%d: %w", blockRange.From, blockRange.To, err)
		}

		batch := r.dedupe(events)
		if err := r.sink.PutEvents(ctx, batch); err != nil {
			return stats, fmt.Errorf("replay events %d-%d: %w", blockRange.From, blockRange.To, err)
		}

		if r.checkpoint != nil {
			if err := r.checkpoint.Save(ctx, blockRange.To); err != nil {
				return stats, err
			}
		}

		stats.Batches++
		stats.Events += len(batch)
		r.logger.Info("batch complete",
			zap.Int("events", len(batch)),
			zap.Uint64("from", blockRange.From),
			zap.Uint64("to", blockRange.To),
		)
	}

	stats.UpToDate = true
	return stats, nil
}

// dedupe drops events already replayed in this run and orders the rest by
// chain position, so a revoke is replayed after the attestation it removes.
func (r *Runner) dedupe(events []model.AttestationEvent) []model.AttestationEvent {
	batch := make([]model.AttestationEvent, 0, len(events))
	for _, e := range events {
		id := fmt.Sprintf("%d:%s:%d", e.BlockNumber, e.TxHash, e.LogIndex)
		if _, ok := r.seen[id]; ok {
			continue
		}
		r.seen[id] = struct{}{}
		batch = append(batch, e)
	}
	sort.SliceStable(batch, func(i, j int) bool {
		if batch[i].BlockNumber != batch[j].BlockNumber {
			return batch[i].BlockNumber < batch[j].BlockNumber
		}
		return batch[i].LogIndex < batch[j].LogIndex
	})
	return batch
}
