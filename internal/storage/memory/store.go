package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"trustScope/internal/model"
	"trustScope/internal/storage"
)

// Store is an in-memory implementation of storage.Store with the same
// semantics as the Postgres store. Reads return copies.
type Store struct {
	mu  sync.RWMutex
	now func() time.Time

	attestations []model.Attestation
	txHashes     map[string]struct{}
	stakes       []model.Stake
	activity     []model.ActivityLog
	users        map[string]model.User
	reputation   map[string]model.ReputationScore
	projects     map[int64]model.Project
	state        map[string]uint64

	nextAttestationID int64
	nextStakeID       int64
	nextActivityID    int64
}

// Compile-time interface check.
var _ storage.Store = (*Store)(nil)

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		now:        time.Now,
		txHashes:   make(map[string]struct{}),
		users:      make(map[string]model.User),
		reputation: make(map[string]model.ReputationScore),
		projects:   make(map[int64]model.Project),
		state:      make(map[string]uint64),
	}
}

// SetClock replaces the time source. Used by tests.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() {}

// InsertAttestation stores a new attestation. Returns ErrDuplicateKey if
// tx_hash exists.
func (s *Store) InsertAttestation(_ context.Context, a *model.Attestation) error {
	if a == nil || a.TxHash == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.txHashes[a.TxHash]; exists {
		return storage.ErrDuplicateKey
	}

	s.nextAttestationID++
	a.ID = s.nextAttestationID
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now().UTC()
	}
	s.attestations = append(s.attestations, copyAttestation(*a))
	s.txHashes[a.TxHash] = struct{}{}

	s.recomputeLocked(a.FromWallet)
	s.recomputeLocked(a.ToWallet)
	return nil
}

// RevokeAttestations soft-deletes every active from -> to attestation.
func (s *Store) RevokeAttestations(_ context.Context, from, to string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for i := range s.attestations {
		a := &s.attestations[i]
		if a.FromWallet != from || a.ToWallet != to || !a.Active() {
			continue
		}
		revokedAt := at.UTC()
		a.RevokedAt = &revokedAt
		n++
	}
	if n > 0 {
		s.recomputeLocked(from)
		s.recomputeLocked(to)
	}
	return n, nil
}

// ReceivedAttestations returns attestations to wallet, newest first.
func (s *Store) ReceivedAttestations(_ context.Context, wallet string) ([]model.Attestation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Attestation, 0)
	for _, a := range s.attestations {
		if a.ToWallet == wallet {
			result = append(result, copyAttestation(a))
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return newerThan(result[i].CreatedAt, result[i].ID, result[j].CreatedAt, result[j].ID)
	})
	return result, nil
}

// recomputeLocked refreshes the aggregate row of wallet. Caller holds mu.
func (s *Store) recomputeLocked(wallet string) {
	var sum, received, given int
	for _, a := range s.attestations {
		if !a.Active() {
			continue
		}
		if a.ToWallet == wallet {
			sum += a.Score
			received++
		}
		if a.FromWallet == wallet {
			given++
		}
	}

	score := 0.0
	if received > 0 {
		score = float64(sum) / float64(received)
	}
	s.reputation[wallet] = model.ReputationScore{
		Wallet:               wallet,
		Score:                score,
		AttestationsReceived: received,
		AttestationsGiven:    given,
		UpdatedAt:            s.now().UTC(),
	}
}

// InsertStake stores a stake row.
func (s *Store) InsertStake(_ context.Context, st *model.Stake) error {
	if st == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextStakeID++
	st.ID = s.nextStakeID
	st.IsActive = true
	if st.CreatedAt.IsZero() {
		st.CreatedAt = s.now().UTC()
	}
	s.stakes = append(s.stakes, *st)
	return nil
}

// InsertActivity appends an activity log.
func (s *Store) InsertActivity(_ context.Context, l *model.ActivityLog) error {
	if l == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextActivityID++
	l.ID = s.nextActivityID
	if l.CreatedAt.IsZero() {
		l.CreatedAt = s.now().UTC()
	}
	s.activity = append(s.activity, copyActivity(*l))
	return nil
}

// RecentActivity returns up to limit logs, newest first.
func (s *Store) RecentActivity(_ context.Context, limit int) ([]model.ActivityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := make([]model.ActivityLog, len(s.activity))
	copy(logs, s.activity)
	sort.SliceStable(logs, func(i, j int) bool {
		return newerThan(logs[i].CreatedAt, logs[i].ID, logs[j].CreatedAt, logs[j].ID)
	})
	if limit >= 0 && len(logs) > limit {
		logs = logs[:limit]
	}

	result := make([]model.ActivityRecord, 0, len(logs))
	for _, l := range logs {
		record := model.ActivityRecord{Log: copyActivity(l)}
		if u, ok := s.users[l.Wallet]; ok {
			userCopy := u
			record.User = &userCopy
		}
		result = append(result, record)
	}
	return result, nil
}

// UpsertUser creates or updates a user.
func (s *Store) UpsertUser(_ context.Context, u model.UserUpdate, seen time.Time) (model.User, error) {
	if u.Wallet == "" {
		return model.User{}, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, exists := s.users[u.Wallet]
	if !exists {
		user = model.User{Wallet: u.Wallet, CreatedAt: seen.UTC()}
	}
	if u.XUsername != nil {
		user.XUsername = copyString(u.XUsername)
	}
	if u.DisplayName != nil {
		user.DisplayName = copyString(u.DisplayName)
	}
	if u.PfpURL != nil {
		user.PfpURL = copyString(u.PfpURL)
	}
	user.LastSeen = seen.UTC()
	s.users[u.Wallet] = user
	return user, nil
}

// GetUser returns ErrNotFound for unknown wallets.
func (s *Store) GetUser(_ context.Context, wallet string) (model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[wallet]
	if !ok {
		return model.User{}, storage.ErrNotFound
	}
	return user, nil
}

// SearchUsers matches prefix against wallet or x_username.
func (s *Store) SearchUsers(_ context.Context, prefix string, limit int) ([]model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefix = strings.ToLower(prefix)
	result := make([]model.User, 0)
	for _, u := range s.users {
		if strings.HasPrefix(u.Wallet, prefix) ||
			(u.XUsername != nil && strings.HasPrefix(strings.ToLower(*u.XUsername), prefix)) {
			result = append(result, u)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Wallet < result[j].Wallet
	})
	if limit >= 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// GetReputation returns ErrNotFound when no aggregate exists.
func (s *Store) GetReputation(_ context.Context, wallet string) (model.ReputationScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rep, ok := s.reputation[wallet]
	if !ok {
		return model.ReputationScore{}, storage.ErrNotFound
	}
	return rep, nil
}

// Leaderboard returns the top wallets by descending score.
func (s *Store) Leaderboard(_ context.Context, limit int) ([]model.LeaderboardEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	scores := make([]model.ReputationScore, 0, len(s.reputation))
	for _, rep := range s.reputation {
		scores = append(scores, rep)
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].Wallet < scores[j].Wallet
	})
	if limit >= 0 && len(scores) > limit {
		scores = scores[:limit]
	}

	result := make([]model.LeaderboardEntry, 0, len(scores))
	for _, rep := range scores {
		entry := model.LeaderboardEntry{
			Wallet:   rep.Wallet,
			Score:    rep.Score,
			Received: rep.AttestationsReceived,
			Given:    rep.AttestationsGiven,
		}
		if u, ok := s.users[rep.Wallet]; ok {
			entry.XUsername = copyString(u.XUsername)
			entry.DisplayName = copyString(u.DisplayName)
			entry.PfpURL = copyString(u.PfpURL)
		}
		result = append(result, entry)
	}
	return result, nil
}

// UpsertProject inserts or refreshes a project.
func (s *Store) UpsertProject(_ context.Context, p *model.Project) error {
	if p == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.projects[p.ProjectID]; ok {
		p.Approved = existing.Approved
		p.RewardsDeposited = existing.RewardsDeposited
		p.TotalStaked = existing.TotalStaked
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now().UTC()
	}
	stored := *p
	stored.Description = copyString(p.Description)
	s.projects[p.ProjectID] = stored
	return nil
}

// GetProject returns ErrNotFound for unknown ids.
func (s *Store) GetProject(_ context.Context, id int64) (model.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.projects[id]
	if !ok {
		return model.Project{}, storage.ErrNotFound
	}
	return p, nil
}

// ListProjects returns projects newest first.
func (s *Store) ListProjects(_ context.Context, approvedOnly bool) ([]model.Project, error) {
	return s.filterProjects(func(p model.Project) bool {
		return !approvedOnly || p.Approved
	}), nil
}

// ProjectsByOwner returns the projects owned by owner, newest first.
func (s *Store) ProjectsByOwner(_ context.Context, owner string) ([]model.Project, error) {
	return s.filterProjects(func(p model.Project) bool {
		return p.Owner == owner
	}), nil
}

func (s *Store) filterProjects(keep func(model.Project) bool) []model.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Project, 0)
	for _, p := range s.projects {
		if keep(p) {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return newerThan(result[i].CreatedAt, result[i].ProjectID, result[j].CreatedAt, result[j].ProjectID)
	})
	return result
}

// PatchProject applies a partial update.
func (s *Store) PatchProject(_ context.Context, id int64, patch model.ProjectPatch) (model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[id]
	if !ok {
		return model.Project{}, storage.ErrNotFound
	}
	if patch.Approved != nil {
		p.Approved = *patch.Approved
	}
	if patch.RewardsDeposited != nil {
		p.RewardsDeposited = *patch.RewardsDeposited
	}
	if patch.TotalStaked != nil {
		p.TotalStaked = *patch.TotalStaked
	}
	s.projects[id] = p
	return p, nil
}

// LoadState returns the checkpoint stored under name.
func (s *Store) LoadState(_ context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, storage.ErrInvalidInput
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	block, ok := s.state[name]
	return block, ok, nil
}

// SaveState stores a checkpoint under name.
func (s *Store) SaveState(_ context.Context, name string, block uint64) error {
	if name == "" {
		return storage.ErrInvalidInput
	}
	s.mu.Lock()
	s.state[name] = block
	s.mu.Unlock()
	return nil
}

func newerThan(at time.Time, id int64, otherAt time.Time, otherID int64) bool {
	if !at.Equal(otherAt) {
		return at.After(otherAt)
	}
	return id > otherID
}

func copyString(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyAttestation(a model.Attestation) model.Attestation {
	a.Comment = copyString(a.Comment)
	if a.RevokedAt != nil {
		t := *a.RevokedAt
		a.RevokedAt = &t
	}
	return a
}

func copyActivity(l model.ActivityLog) model.ActivityLog {
	if l.Metadata != nil {
		meta := make(map[string]any, len(l.Metadata))
		for k, v := range l.Metadata {
			meta[k] = v
		}
		l.Metadata = meta
	}
	return l
}
