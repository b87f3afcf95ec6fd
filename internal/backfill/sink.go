package backfill

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"trustScope/internal/mirror"
	"trustScope/internal/mirrorclient"
	"trustScope/internal/model"
)

// BackfillComment tags attestations replayed from chain logs.
const BackfillComment = "Synced from chain"

// MirrorWriter is the subset of mirrorclient.Client the sink needs.
type MirrorWriter interface {
	RecordAttestation(ctx context.Context, req mirror.RecordAttestationRequest) (model.Attestation, error)
	RevokeAttestation(ctx context.Context, req mirror.RevokeAttestationRequest) error
}

// MirrorSink replays events through the mirror API. Attestations the mirror
// already holds are counted as duplicates, not failures.
type MirrorSink struct {
	mirror MirrorWriter
	logger *zap.Logger

	recorded   atomic.Int64
	duplicates atomic.Int64
	revoked    atomic.Int64
}

func NewMirrorSink(m MirrorWriter, logger *zap.Logger) *MirrorSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MirrorSink{mirror: m, logger: logger}
}

// PutEvents replays events in order.
func (s *MirrorSink) PutEvents(ctx context.Context, events []model.AttestationEvent) error {
	for _, e := range events {
		switch e.Kind {
		case model.AttestationCreated:
			comment := BackfillComment
			_, err := s.mirror.RecordAttestation(ctx, mirror.RecordAttestationRequest{
				From:    e.From,
				To:      e.To,
				Score:   e.Score,
				Comment: &comment,
				TxHash:  e.TxHash,
			})
			if mirrorclient.IsConflict(err) {
				s.duplicates.Add(1)
				s.logger.Debug("attestation already mirrored", zap.String("tx_hash", e.TxHash))
				continue
			}
			if err != nil {
				return fmt.Errorf("record attestation %s: %w", e.TxHash, err)
			}
			s.recorded.Add(1)
		case model.AttestationRevoked:
			err := s.mirror.RevokeAttestation(ctx, mirror.RevokeAttestationRequest{
				From:   e.From,
				To:     e.To,
				TxHash: e.TxHash,
			})
			if err != nil {
				return fmt.Errorf("revoke attestation %s: %w", e.TxHash, err)
			}
			s.revoked.Add(1)
		default:
			s.logger.Warn("skip unknown event kind", zap.String("kind", string(e.Kind)), zap.String("tx_hash", e.TxHash))
		}
	}
	return nil
}

// Counts returns the number of recorded, duplicate and revoked events.
func (s *MirrorSink) Counts() (recorded, duplicates, revoked int64) {
	return s.recorded.Load(), s.duplicates.Load(), s.revoked.Load()
}
