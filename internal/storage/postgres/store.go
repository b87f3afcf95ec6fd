package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"trustScope/internal/model"
	"trustScope/internal/storage"
)

// Store provides Postgres persistence for the mirror.
type Store struct {
	pool *Pool
}

// Compile-time interface check.
var _ storage.Store = (*Store)(nil)

func NewStore(pool *Pool) *Store {
	return &Store{pool: pool}
}

// Open connects to dsn and returns a Store that owns the pool.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := NewPool(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return NewStore(pool), nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Pool exposes the underlying pool for migrations.
func (s *Store) Pool() *Pool {
	return s.pool
}

const recomputeReputationSQL = `
	INSERT INTO reputation_scores (wallet, score, attestations_received, attestations_given, updated_at)
	SELECT
		$1::text,
		COALESCE((SELECT AVG(score) FROM attestations WHERE to_wallet = $1 AND revoked_at IS NULL), 0)::double precision,
		(SELECT COUNT(*) FROM attestations WHERE to_wallet = $1 AND revoked_at IS NULL),
		(SELECT COUNT(*) FROM attestations WHERE from_wallet = $1 AND revoked_at IS NULL),
		now()
	ON CONFLICT (wallet) DO UPDATE SET
		score = EXCLUDED.score,
		attestations_received = EXCLUDED.attestations_received,
		attestations_given = EXCLUDED.attestations_given,
		updated_at = now()
`

func recomputeReputation(ctx context.Context, tx pgx.Tx, wallets ...string) error {
	for _, wallet := range wallets {
		if _, err := tx.Exec(ctx, recomputeReputationSQL, wallet); err != nil {
			return fmt.Errorf("recompute reputation %s: %w", wallet, err)
		}
	}
	return nil
}

// InsertAttestation stores a new attestation. Returns ErrDuplicateKey if
// tx_hash exists.
func (s *Store) InsertAttestation(ctx context.Context, a *model.Attestation) error {
	if a == nil || a.TxHash == "" {
		return storage.ErrInvalidInput
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO attestations (from_wallet, to_wallet, score, comment, tx_hash)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, created_at
		`, a.FromWallet, a.ToWallet, a.Score, a.Comment, a.TxHash)
		if err := row.Scan(&a.ID, &a.CreatedAt); err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert attestation: %w", err)
		}
		return recomputeReputation(ctx, tx, a.FromWallet, a.ToWallet)
	})
}

// RevokeAttestations soft-deletes every active from -> to attestation.
func (s *Store) RevokeAttestations(ctx context.Context, from, to string, at time.Time) (int64, error) {
	var n int64
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE attestations SET revoked_at = $3
			WHERE from_wallet = $1 AND to_wallet = $2 AND revoked_at IS NULL
		`, from, to, at)
		if err != nil {
			return fmt.Errorf("revoke attestations: %w", err)
		}
		n = tag.RowsAffected()
		if n == 0 {
			return nil
		}
		return recomputeReputation(ctx, tx, from, to)
	})
	return n, err
}

// ReceivedAttestations returns attestations to wallet, newest first.
func (s *Store) ReceivedAttestations(ctx context.Context, wallet string) ([]model.Attestation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, from_wallet, to_wallet, score, comment, tx_hash, created_at, revoked_at
		FROM attestations
		WHERE to_wallet = $1
		ORDER BY created_at DESC, id DESC
	`, wallet)
	if err != nil {
		return nil, fmt.Errorf("query received attestations: %w", err)
	}
	defer rows.Close()

	result := make([]model.Attestation, 0)
	for rows.Next() {
		var a model.Attestation
		if err := rows.Scan(&a.ID, &a.FromWallet, &a.ToWallet, &a.Score, &a.Comment, &a.TxHash, &a.CreatedAt, &a.RevokedAt); err != nil {
			return nil, fmt.Errorf("scan attestation: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

// InsertStake stores a stake row.
func (s *Store) InsertStake(ctx context.Context, st *model.Stake) error {
	if st == nil {
		return storage.ErrInvalidInput
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO stakes (project_id, user_wallet, amount, tx_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING id, is_active, created_at
	`, st.ProjectID, st.UserWallet, st.Amount, st.TxHash)
	if err := row.Scan(&st.ID, &st.IsActive, &st.CreatedAt); err != nil {
		return fmt.Errorf("insert stake: %w", err)
	}
	return nil
}

// InsertActivity appends an activity log.
func (s *Store) InsertActivity(ctx context.Context, l *model.ActivityLog) error {
	if l == nil {
		return storage.ErrInvalidInput
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO activity_logs (type, wallet, target, amount, metadata, tx_hash)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, string(l.Type), l.Wallet, l.Target, l.Amount, l.Metadata, l.TxHash)
	if err := row.Scan(&l.ID, &l.CreatedAt); err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

// RecentActivity returns up to limit logs, newest first.
func (s *Store) RecentActivity(ctx context.Context, limit int) ([]model.ActivityRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT l.id, l.type, l.wallet, l.target, l.amount, l.metadata, COALESCE(l.tx_hash, ''), l.created_at,
			u.wallet, u.x_username, u.display_name, u.pfp_url, u.created_at, u.last_seen
		FROM activity_logs l
		LEFT JOIN users u ON u.wallet = l.wallet
		ORDER BY l.created_at DESC, l.id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query activity: %w", err)
	}
	defer rows.Close()

	result := make([]model.ActivityRecord, 0, limit)
	for rows.Next() {
		var (
			rec        model.ActivityRecord
			kind       string
			userWallet *string
			user       model.User
			createdAt  *time.Time
			lastSeen   *time.Time
		)
		if err := rows.Scan(
			&rec.Log.ID, &kind, &rec.Log.Wallet, &rec.Log.Target, &rec.Log.Amount, &rec.Log.Metadata, &rec.Log.TxHash, &rec.Log.CreatedAt,
			&userWallet, &user.XUsername, &user.DisplayName, &user.PfpURL, &createdAt, &lastSeen,
		); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		rec.Log.Type = model.ActivityKind(kind)
		if userWallet != nil {
			user.Wallet = *userWallet
			user.CreatedAt = derefTime(createdAt)
			user.LastSeen = derefTime(lastSeen)
			rec.User = &user
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// UpsertUser creates or updates a user.
func (s *Store) UpsertUser(ctx context.Context, u model.UserUpdate, seen time.Time) (model.User, error) {
	if u.Wallet == "" {
		return model.User{}, storage.ErrInvalidInput
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO users (wallet, x_username, display_name, pfp_url, created_at, last_seen)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (wallet) DO UPDATE SET
			x_username = CASE WHEN $6 THEN EXCLUDED.x_username ELSE users.x_username END,
			display_name = CASE WHEN $7 THEN EXCLUDED.display_name ELSE users.display_name END,
			pfp_url = CASE WHEN $8 THEN EXCLUDED.pfp_url ELSE users.pfp_url END,
			last_seen = EXCLUDED.last_seen
		RETURNING wallet, x_username, display_name, pfp_url, created_at, last_seen
	`, u.Wallet, u.XUsername, u.DisplayName, u.PfpURL, seen,
		u.XUsername != nil, u.DisplayName != nil, u.PfpURL != nil)

	var user model.User
	if err := scanUser(row, &user); err != nil {
		return model.User{}, fmt.Errorf("upsert user: %w", err)
	}
	return user, nil
}

// GetUser returns ErrNotFound for unknown wallets.
func (s *Store) GetUser(ctx context.Context, wallet string) (model.User, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT wallet, x_username, display_name, pfp_url, created_at, last_seen
		FROM users WHERE wallet = $1
	`, wallet)

	var user model.User
	if err := scanUser(row, &user); err != nil {
		if isNotFoundError(err) {
			return model.User{}, storage.ErrNotFound
		}
		return model.User{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// SearchUsers matches prefix against wallet or x_username.
func (s *Store) SearchUsers(ctx context.Context, prefix string, limit int) ([]model.User, error) {
	pattern := escapeLike(strings.ToLower(prefix)) + "%"
	rows, err := s.pool.Query(ctx, `
		SELECT wallet, x_username, display_name, pfp_url, created_at, last_seen
		FROM users
		WHERE wallet LIKE $1 OR lower(x_username) LIKE $1
		ORDER BY wallet
		LIMIT $2
	`, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	defer rows.Close()

	result := make([]model.User, 0)
	for rows.Next() {
		var user model.User
		if err := scanUser(rows, &user); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		result = append(result, user)
	}
	return result, rows.Err()
}

// GetReputation returns ErrNotFound when no aggregate exists.
func (s *Store) GetReputation(ctx context.Context, wallet string) (model.ReputationScore, error) {
	var rep model.ReputationScore
	row := s.pool.QueryRow(ctx, `
		SELECT wallet, score, attestations_received, attestations_given, updated_at
		FROM reputation_scores WHERE wallet = $1
	`, wallet)
	if err := row.Scan(&rep.Wallet, &rep.Score, &rep.AttestationsReceived, &rep.AttestationsGiven, &rep.UpdatedAt); err != nil {
		if isNotFoundError(err) {
			return model.ReputationScore{}, storage.ErrNotFound
		}
		return model.ReputationScore{}, fmt.Errorf("get reputation: %w", err)
	}
	return rep, nil
}

// Leaderboard returns the top wallets by descending score.
func (s *Store) Leaderboard(ctx context.Context, limit int) ([]model.LeaderboardEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT r.wallet, r.score, r.attestations_received, r.attestations_given,
			u.x_username, u.display_name, u.pfp_url
		FROM reputation_scores r
		LEFT JOIN users u ON u.wallet = r.wallet
		ORDER BY r.score DESC, r.wallet ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}
	defer rows.Close()

	result := make([]model.LeaderboardEntry, 0, limit)
	for rows.Next() {
		var e model.LeaderboardEntry
		if err := rows.Scan(&e.Wallet, &e.Score, &e.Received, &e.Given, &e.XUsername, &e.DisplayName, &e.PfpURL); err != nil {
			return nil, fmt.Errorf("scan leaderboard: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

const projectColumns = `project_id, owner, name, description, reward_token, reward_token_symbol, reward_amount,
	duration_days, tx_hash, approved, rewards_deposited, total_staked, created_at`

// UpsertProject inserts or refreshes a project.
func (s *Store) UpsertProject(ctx context.Context, p *model.Project) error {
	if p == nil {
		return storage.ErrInvalidInput
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO projects (
			project_id, owner, name, description, reward_token, reward_token_symbol, reward_amount, duration_days, tx_hash
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (project_id) DO UPDATE SET
			owner = EXCLUDED.owner,
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			reward_token = EXCLUDED.reward_token,
			reward_token_symbol = EXCLUDED.reward_token_symbol,
			reward_amount = EXCLUDED.reward_amount,
			duration_days = EXCLUDED.duration_days,
			tx_hash = EXCLUDED.tx_hash
		RETURNING `+projectColumns,
		p.ProjectID, p.Owner, p.Name, p.Description, p.RewardToken, p.RewardTokenSymbol, p.RewardAmount, p.DurationDays, p.TxHash,
	)
	if err := scanProject(row, p); err != nil {
		return fmt.Errorf("upsert project: %w", err)
	}
	return nil
}

// GetProject returns ErrNotFound for unknown ids.
func (s *Store) GetProject(ctx context.Context, id int64) (model.Project, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE project_id = $1`, id)
	var p model.Project
	if err := scanProject(row, &p); err != nil {
		if isNotFoundError(err) {
			return model.Project{}, storage.ErrNotFound
		}
		return model.Project{}, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

// ListProjects returns projects newest first.
func (s *Store) ListProjects(ctx context.Context, approvedOnly bool) ([]model.Project, error) {
	return s.queryProjects(ctx, `
		SELECT `+projectColumns+` FROM projects
		WHERE NOT $1 OR approved
		ORDER BY created_at DESC, project_id DESC
	`, approvedOnly)
}

// ProjectsByOwner returns the projects owned by owner, newest first.
func (s *Store) ProjectsByOwner(ctx context.Context, owner string) ([]model.Project, error) {
	return s.queryProjects(ctx, `
		SELECT `+projectColumns+` FROM projects
		WHERE owner = $1
		ORDER BY created_at DESC, project_id DESC
	`, owner)
}

func (s *Store) queryProjects(ctx context.Context, query string, args ...any) ([]model.Project, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()

	result := make([]model.Project, 0)
	for rows.Next() {
		var p model.Project
		if err := scanProject(rows, &p); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// PatchProject applies a partial update.
func (s *Store) PatchProject(ctx context.Context, id int64, patch model.ProjectPatch) (model.Project, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE projects SET
			approved = COALESCE($2, approved),
			rewards_deposited = COALESCE($3, rewards_deposited),
			total_staked = COALESCE($4, total_staked)
		WHERE project_id = $1
		RETURNING `+projectColumns,
		id, patch.Approved, patch.RewardsDeposited, patch.TotalStaked,
	)
	var p model.Project
	if err := scanProject(row, &p); err != nil {
		if isNotFoundError(err) {
			return model.Project{}, storage.ErrNotFound
		}
		return model.Project{}, fmt.Errorf("patch project: %w", err)
	}
	return p, nil
}

// LoadState returns last_processed_block for a name.
func (s *Store) LoadState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("state name required")
	}
	var block int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_block FROM indexer_state WHERE name=$1`, name)
	if err := row.Scan(&block); err != nil {
		if isNotFoundError(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(block), true, nil
}

// SaveState upserts last_processed_block for a name.
func (s *Store) SaveState(ctx context.Context, name string, block uint64) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO indexer_state (name, last_processed_block, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_block = EXCLUDED.last_processed_block, updated_at = now()
	`, name, int64(block))
	return err
}

func scanUser(row pgx.Row, u *model.User) error {
	return row.Scan(&u.Wallet, &u.XUsername, &u.DisplayName, &u.PfpURL, &u.CreatedAt, &u.LastSeen)
}

func scanProject(row pgx.Row, p *model.Project) error {
	return row.Scan(
		&p.ProjectID, &p.Owner, &p.Name, &p.Description, &p.RewardToken, &p.RewardTokenSymbol, &p.RewardAmount,
		&p.DurationDays, &p.TxHash, &p.Approved, &p.RewardsDeposited, &p.TotalStaked, &p.CreatedAt,
	)
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
