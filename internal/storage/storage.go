package storage

import (
	"context"
	"time"

	"trustScope/internal/model"
)

// AttestationStore persists mirrored attestations. Implementations recompute
// the reputation of both wallets in the same write.
type AttestationStore interface {
	// InsertAttestation stores a new attestation and fills in ID and CreatedAt.
	// Returns ErrDuplicateKey when tx_hash is already recorded.
	InsertAttestation(ctx context.Context, a *model.Attestation) error
	// RevokeAttestations sets revoked_at on every active from -> to row and
	// returns how many rows changed.
	RevokeAttestations(ctx context.Context, from, to string, at time.Time) (int64, error)
	// ReceivedAttestations returns all attestations to wallet, revoked ones
	// included, newest first.
	ReceivedAttestations(ctx context.Context, wallet string) ([]model.Attestation, error)
}

// StakeStore persists mirrored stakes.
type StakeStore interface {
	InsertStake(ctx context.Context, s *model.Stake) error
}

// ActivityStore persists the denormalized activity feed.
type ActivityStore interface {
	InsertActivity(ctx context.Context, l *model.ActivityLog) error
	// RecentActivity returns up to limit logs, newest first, joined with the
	// acting wallet's user row when one exists.
	RecentActivity(ctx context.Context, limit int) ([]model.ActivityRecord, error)
}

// UserStore persists wallet metadata.
type UserStore interface {
	// UpsertUser creates or updates a user. Nil fields of u leave stored
	// values unchanged. last_seen is always set to seen.
	UpsertUser(ctx context.Context, u model.UserUpdate, seen time.Time) (model.User, error)
	// GetUser returns ErrNotFound for unknown wallets.
	GetUser(ctx context.Context, wallet string) (model.User, error)
	// SearchUsers matches prefix against wallet or x_username, case-insensitively.
	SearchUsers(ctx context.Context, prefix string, limit int) ([]model.User, error)
}

// ReputationStore reads aggregate reputation.
type ReputationStore interface {
	// GetReputation returns ErrNotFound when the wallet has no aggregate row.
	GetReputation(ctx context.Context, wallet string) (model.ReputationScore, error)
	Leaderboard(ctx context.Context, limit int) ([]model.LeaderboardEntry, error)
}

// ProjectStore persists mirrored project state.
type ProjectStore interface {
	// UpsertProject inserts a project or refreshes its registration fields.
	// Sync state (approved, rewards_deposited, total_staked) survives a refresh.
	UpsertProject(ctx context.Context, p *model.Project) error
	GetProject(ctx context.Context, id int64) (model.Project, error)
	ListProjects(ctx context.Context, approvedOnly bool) ([]model.Project, error)
	ProjectsByOwner(ctx context.Context, owner string) ([]model.Project, error)
	// PatchProject returns ErrNotFound for unknown ids.
	PatchProject(ctx context.Context, id int64, patch model.ProjectPatch) (model.Project, error)
}

// StateStore keeps named block checkpoints.
type StateStore interface {
	LoadState(ctx context.Context, name string) (uint64, bool, error)
	SaveState(ctx context.Context, name string, block uint64) error
}

// Store is the full mirror persistence surface.
type Store interface {
	AttestationStore
	StakeStore
	ActivityStore
	UserStore
	ReputationStore
	ProjectStore
	StateStore
	Ping(ctx context.Context) error
	Close()
}

// EventSink receives decoded chain events.
type EventSink interface {
	PutEvents(ctx context.Context, events []model.AttestationEvent) error
}
