package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"trustScope/internal/model"
	"trustScope/internal/storage"
)

const (
	alice = "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"
	bob   = "0x70997970c51812dc3a010c7d01b50e0d17dc79c8"
	carol = "0x3c44cdddb6a900fa2b585dd299e03d12fa4293bc"
)

func hash(n byte) string {
	b := make([]byte, 64)
	for i := range b {
		b[i] = '0'
	}
	b[63] = '0' + n
	return "0x" + string(b)
}

func fixedClock(start time.Time) func() time.Time {
	now := start
	return func() time.Time {
		now = now.Add(time.Second)
		return now
	}
}

func TestStore_InsertAttestationDuplicateHash(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	a := &model.Attestation{FromWallet: alice, ToWallet: bob, Score: 10, TxHash: hash(1)}
	if err := store.InsertAttestation(ctx, a); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if a.ID == 0 || a.CreatedAt.IsZero() {
		t.Fatalf("insert should fill id and created_at: %+v", a)
	}

	dup := &model.Attestation{FromWallet: carol, ToWallet: bob, Score: 1, TxHash: hash(1)}
	if err := store.InsertAttestation(ctx, dup); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}

	rows, err := store.ReceivedAttestations(ctx, bob)
	if err != nil {
		t.Fatalf("received: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
}

func TestStore_RevokeIsSoft(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	if err := store.InsertAttestation(ctx, &model.Attestation{FromWallet: alice, ToWallet: bob, Score: 10, TxHash: hash(1)}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	n, err := store.RevokeAttestations(ctx, alice, bob, at)
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 revoked row, got %d", n)
	}

	rows, _ := store.ReceivedAttestations(ctx, bob)
	if len(rows) != 1 {
		t.Fatalf("revoked row must remain, got %d rows", len(rows))
	}
	if rows[0].RevokedAt == nil || !rows[0].RevokedAt.Equal(at) {
		t.Fatalf("revoked_at mismatch: %v", rows[0].RevokedAt)
	}

	// Nothing left to revoke.
	n, err = store.RevokeAttestations(ctx, alice, bob, at.Add(time.Hour))
	if err != nil || n != 0 {
		t.Fatalf("second revoke: n=%d err=%v", n, err)
	}
	rows, _ = store.ReceivedAttestations(ctx, bob)
	if !rows[0].RevokedAt.Equal(at) {
		t.Fatalf("second revoke must not move revoked_at")
	}
}

func TestStore_ReputationRecompute(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	_ = store.InsertAttestation(ctx, &model.Attestation{FromWallet: alice, ToWallet: bob, Score: 10, TxHash: hash(1)})
	_ = store.InsertAttestation(ctx, &model.Attestation{FromWallet: carol, ToWallet: bob, Score: -4, TxHash: hash(2)})

	rep, err := store.GetReputation(ctx, bob)
	if err != nil {
		t.Fatalf("reputation: %v", err)
	}
	if rep.Score != 3 || rep.AttestationsReceived != 2 || rep.AttestationsGiven != 0 {
		t.Fatalf("bob reputation mismatch: %+v", rep)
	}

	given, _ := store.GetReputation(ctx, alice)
	if given.AttestationsGiven != 1 || given.AttestationsReceived != 0 {
		t.Fatalf("alice reputation mismatch: %+v", given)
	}

	if _, err := store.RevokeAttestations(ctx, carol, bob, time.Now()); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	rep, _ = store.GetReputation(ctx, bob)
	if rep.Score != 10 || rep.AttestationsReceived != 1 {
		t.Fatalf("reputation after revoke: %+v", rep)
	}

	if _, err := store.GetReputation(ctx, "0x0000000000000000000000000000000000000001"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_RecentActivityOrderAndLimit(t *testing.T) {
	store := NewStore()
	store.SetClock(fixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
	ctx := context.Background()

	name := "Alice"
	if _, err := store.UpsertUser(ctx, model.UserUpdate{Wallet: alice, DisplayName: &name}, time.Now()); err != nil {
		t.Fatalf("upsert user: %v", err)
	}

	for i := 0; i < 60; i++ {
		wallet := alice
		if i%2 == 1 {
			wallet = bob
		}
		if err := store.InsertActivity(ctx, &model.ActivityLog{Type: model.ActivityStake, Wallet: wallet, Target: "Project #1"}); err != nil {
			t.Fatalf("insert activity: %v", err)
		}
	}

	records, err := store.RecentActivity(ctx, 50)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(records) != 50 {
		t.Fatalf("expected 50 records, got %d", len(records))
	}
	for i := 1; i < len(records); i++ {
		if records[i].Log.CreatedAt.After(records[i-1].Log.CreatedAt) {
			t.Fatalf("records out of order at %d", i)
		}
	}
	if records[0].Log.ID != 60 {
		t.Fatalf("newest record should come first, got id %d", records[0].Log.ID)
	}
	for _, r := range records {
		if r.Log.Wallet == alice && (r.User == nil || *r.User.DisplayName != "Alice") {
			t.Fatalf("alice record missing user join")
		}
		if r.Log.Wallet == bob && r.User != nil {
			t.Fatalf("bob has no user row")
		}
	}
}

func TestStore_UpsertUserKeepsUnsetFields(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	handle := "alice_eth"
	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := store.UpsertUser(ctx, model.UserUpdate{Wallet: alice, XUsername: &handle}, first); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	name := "Alice"
	later := first.Add(time.Hour)
	user, err := store.UpsertUser(ctx, model.UserUpdate{Wallet: alice, DisplayName: &name}, later)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if user.XUsername == nil || *user.XUsername != handle {
		t.Fatalf("x_username should survive: %+v", user)
	}
	if !user.CreatedAt.Equal(first) || !user.LastSeen.Equal(later) {
		t.Fatalf("timestamps mismatch: created=%v last_seen=%v", user.CreatedAt, user.LastSeen)
	}

	found, err := store.SearchUsers(ctx, "ALICE_", 10)
	if err != nil || len(found) != 1 {
		t.Fatalf("search by handle: %v %d", err, len(found))
	}
	found, _ = store.SearchUsers(ctx, "0xf39", 10)
	if len(found) != 1 {
		t.Fatalf("search by wallet prefix: %d", len(found))
	}
}

func TestStore_LeaderboardOrder(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	_ = store.InsertAttestation(ctx, &model.Attestation{FromWallet: alice, ToWallet: bob, Score: 50, TxHash: hash(1)})
	_ = store.InsertAttestation(ctx, &model.Attestation{FromWallet: alice, ToWallet: carol, Score: 80, TxHash: hash(2)})

	board, err := store.Leaderboard(ctx, 2)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(board) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(board))
	}
	if board[0].Wallet != carol || board[1].Wallet != bob {
		t.Fatalf("order mismatch: %+v", board)
	}
}

func TestStore_ProjectUpsertAndPatch(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	p := &model.Project{ProjectID: 0, Owner: alice, Name: "Project #0", RewardToken: carol, RewardAmount: "100", DurationDays: 30, TxHash: hash(3)}
	if err := store.UpsertProject(ctx, p); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	approved := true
	staked := 1.5
	patched, err := store.PatchProject(ctx, 0, model.ProjectPatch{Approved: &approved, TotalStaked: &staked})
	if err != nil {
		t.Fatalf("patch: %v", err)
	}
	if !patched.Approved || patched.TotalStaked != 1.5 || patched.RewardsDeposited {
		t.Fatalf("patch mismatch: %+v", patched)
	}

	// Re-registering keeps sync state.
	again := &model.Project{ProjectID: 0, Owner: alice, Name: "Renamed", RewardToken: carol, RewardAmount: "100", DurationDays: 30, TxHash: hash(3)}
	if err := store.UpsertProject(ctx, again); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	got, _ := store.GetProject(ctx, 0)
	if got.Name != "Renamed" || !got.Approved {
		t.Fatalf("re-upsert mismatch: %+v", got)
	}

	approvedOnly, _ := store.ListProjects(ctx, true)
	if len(approvedOnly) != 1 {
		t.Fatalf("expected 1 approved project")
	}
	owned, _ := store.ProjectsByOwner(ctx, alice)
	if len(owned) != 1 {
		t.Fatalf("expected 1 owned project")
	}

	if _, err := store.PatchProject(ctx, 99, model.ProjectPatch{Approved: &approved}); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_State(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	if _, ok, err := store.LoadState(ctx, "backfill"); err != nil || ok {
		t.Fatalf("empty state: ok=%v err=%v", ok, err)
	}
	if err := store.SaveState(ctx, "backfill", 1234); err != nil {
		t.Fatalf("save: %v", err)
	}
	block, ok, err := store.LoadState(ctx, "backfill")
	if err != nil || !ok || block != 1234 {
		t.Fatalf("load: block=%d ok=%v err=%v", block, ok, err)
	}
	if err := store.SaveState(ctx, "", 1); !errors.Is(err, storage.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
