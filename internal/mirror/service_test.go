package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trustScope/internal/model"
	"trustScope/internal/storage"
	"trustScope/internal/storage/memory"
)

const (
	alice = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	bob   = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	token = "0x9f8F72aA9304c8B593d555F12eF6589cC3A579A2"
)

func hashN(n int) string {
	s := strings.Repeat("a", 62)
	return "0x" + s + string(rune('0'+n/10)) + string(rune('0'+n%10))
}

func ptr[T any](v T) *T { return &v }

func newService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	return NewService(store, nil, nil), store
}

func TestRecordAttestation(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	handle := "bob_x"
	_, err := store.UpsertUser(ctx, model.UserUpdate{Wallet: strings.ToLower(bob), XUsername: &handle}, time.Now())
	require.NoError(t, err)

	a, err := svc.RecordAttestation(ctx, RecordAttestationRequest{
		From:    alice,
		To:      bob,
		Score:   float64(42),
		Comment: ptr("great builder"),
		TxHash:  hashN(1),
	})
	require.NoError(t, err)
	assert.Equal(t, strings.ToLower(alice), a.FromWallet)
	assert.Equal(t, strings.ToLower(bob), a.ToWallet)
	assert.Equal(t, 42, a.Score)

	feed, err := svc.ActivityFeed(ctx)
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Equal(t, "attestation", feed[0].Type)
	assert.Equal(t, "@bob_x", feed[0].Target)
	assert.Equal(t, "42 Trust", feed[0].Details)
	assert.True(t, strings.HasPrefix(feed[0].ID, "log-"))

	// The label is fixed at write time.
	newHandle := "bobby"
	_, err = store.UpsertUser(ctx, model.UserUpdate{Wallet: strings.ToLower(bob), XUsername: &newHandle}, time.Now())
	require.NoError(t, err)
	feed, err = svc.ActivityFeed(ctx)
	require.NoError(t, err)
	assert.Equal(t, "@bob_x", feed[0].Target)
}

func TestRecordAttestationTargetLabelFallbacks(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	_, err := svc.RecordAttestation(ctx, RecordAttestationRequest{From: alice, To: bob, Score: float64(1), TxHash: hashN(1)})
	require.NoError(t, err)

	name := "Alice"
	_, err = store.UpsertUser(ctx, model.UserUpdate{Wallet: strings.ToLower(alice), DisplayName: &name}, time.Now())
	require.NoError(t, err)
	_, err = svc.RecordAttestation(ctx, RecordAttestationRequest{From: bob, To: alice, Score: float64(-1), TxHash: hashN(2)})
	require.NoError(t, err)

	feed, err := svc.ActivityFeed(ctx)
	require.NoError(t, err)
	require.Len(t, feed, 2)
	assert.Equal(t, "Alice", feed[0].Target)
	assert.Equal(t, "-1 Trust", feed[0].Details)
	assert.Equal(t, strings.ToLower(bob), feed[1].Target)
}

func TestRecordAttestationDuplicateHash(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	req := RecordAttestationRequest{From: alice, To: bob, Score: float64(5), TxHash: hashN(7)}
	_, err := svc.RecordAttestation(ctx, req)
	require.NoError(t, err)

	_, err = svc.RecordAttestation(ctx, req)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, http.StatusConflict, StatusCode(err))

	rows, err := store.ReceivedAttestations(ctx, strings.ToLower(bob))
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestRecordAttestationHashCaseInsensitive(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	hash := "0x" + strings.Repeat("ab", 32)
	a, err := svc.RecordAttestation(ctx, RecordAttestationRequest{From: alice, To: bob, Score: float64(2), TxHash: "0x" + strings.ToUpper(hash[2:])})
	require.NoError(t, err)
	assert.Equal(t, hash, a.TxHash)

	_, err = svc.RecordAttestation(ctx, RecordAttestationRequest{From: alice, To: bob, Score: float64(2), TxHash: hash})
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)

	rows, err := store.ReceivedAttestations(ctx, strings.ToLower(bob))
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestRecordAttestationValidation(t *testing.T) {
	cases := []struct {
		name string
		req  RecordAttestationRequest
	}{
		{"score 128", RecordAttestationRequest{From: alice, To: bob, Score: float64(128), TxHash: hashN(1)}},
		{"score -128", RecordAttestationRequest{From: alice, To: bob, Score: float64(-128), TxHash: hashN(1)}},
		{"fractional score", RecordAttestationRequest{From: alice, To: bob, Score: 1.5, TxHash: hashN(1)}},
		{"string score", RecordAttestationRequest{From: alice, To: bob, Score: "5", TxHash: hashN(1)}},
		{"bool score", RecordAttestationRequest{From: alice, To: bob, Score: true, TxHash: hashN(1)}},
		{"missing score", RecordAttestationRequest{From: alice, To: bob, TxHash: hashN(1)}},
		{"short hash", RecordAttestationRequest{From: alice, To: bob, Score: float64(1), TxHash: "0x1234"}},
		{"hash without prefix", RecordAttestationRequest{From: alice, To: bob, Score: float64(1), TxHash: strings.Repeat("a", 64)}},
		{"non-hex hash", RecordAttestationRequest{From: alice, To: bob, Score: float64(1), TxHash: "0x" + strings.Repeat("g", 64)}},
		{"bad from", RecordAttestationRequest{From: "0x123", To: bob, Score: float64(1), TxHash: hashN(1)}},
		{"missing to", RecordAttestationRequest{From: alice, Score: float64(1), TxHash: hashN(1)}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, store := newService(t)
			ctx := context.Background()

			_, err := svc.RecordAttestation(ctx, tc.req)
			var validation *ValidationError
			require.ErrorAs(t, err, &validation)
			assert.Equal(t, http.StatusBadRequest, StatusCode(err))

			rows, err := store.ReceivedAttestations(ctx, strings.ToLower(bob))
			require.NoError(t, err)
			assert.Empty(t, rows)
		})
	}
}

func TestRecordAttestationScoreBounds(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.RecordAttestation(ctx, RecordAttestationRequest{From: alice, To: bob, Score: json.Number("127"), TxHash: hashN(1)})
	require.NoError(t, err)
	_, err = svc.RecordAttestation(ctx, RecordAttestationRequest{From: bob, To: alice, Score: json.Number("-127"), TxHash: hashN(2)})
	require.NoError(t, err)
}

func TestRevokeAttestationIsSoft(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.RecordAttestation(ctx, RecordAttestationRequest{From: alice, To: bob, Score: float64(9), TxHash: hashN(3)})
	require.NoError(t, err)

	n, err := svc.RevokeAttestation(ctx, RevokeAttestationRequest{From: alice, To: bob})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	profile, err := svc.Profile(ctx, bob)
	require.NoError(t, err)
	require.Len(t, profile.Attestations, 1)
	assert.NotNil(t, profile.Attestations[0].RevokedAt)
	assert.Equal(t, 0, profile.Reputation.ReceivedCount)

	feed, err := svc.ActivityFeed(ctx)
	require.NoError(t, err)
	assert.Len(t, feed, 1, "feed keeps the attestation entry")

	// Nothing active left: no-op.
	n, err = svc.RevokeAttestation(ctx, RevokeAttestationRequest{From: alice, To: bob})
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = svc.RevokeAttestation(ctx, RevokeAttestationRequest{From: alice})
	assert.Equal(t, http.StatusBadRequest, StatusCode(err))
}

func TestRecordStake(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	st, err := svc.RecordStake(ctx, RecordStakeRequest{ProjectID: ptr(int64(0)), UserWallet: alice, Amount: "0.5", TxHash: hashN(4)})
	require.NoError(t, err)
	assert.Equal(t, strings.ToLower(alice), st.UserWallet)
	assert.True(t, st.IsActive)

	_, err = svc.RecordStake(ctx, RecordStakeRequest{ProjectID: ptr(int64(3)), UserWallet: alice, Amount: json.Number("1.25"), TxHash: hashN(5)})
	require.NoError(t, err)

	feed, err := svc.ActivityFeed(ctx)
	require.NoError(t, err)
	require.Len(t, feed, 2)
	assert.Equal(t, "stake", feed[0].Type)
	assert.Equal(t, "Project #3", feed[0].Target)
	assert.Equal(t, "1.25 ETH", feed[0].Details)
	assert.Equal(t, "Project #0", feed[1].Target)

	_, err = svc.RecordStake(ctx, RecordStakeRequest{UserWallet: alice, Amount: "1", TxHash: hashN(6)})
	assert.Equal(t, http.StatusBadRequest, StatusCode(err))
	_, err = svc.RecordStake(ctx, RecordStakeRequest{ProjectID: ptr(int64(1)), UserWallet: alice, TxHash: hashN(6)})
	assert.Equal(t, http.StatusBadRequest, StatusCode(err))
}

func TestActivityFeedLimitAndOrder(t *testing.T) {
	svc, store := newService(t)
	store.SetClock(func() func() time.Time {
		now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		return func() time.Time {
			now = now.Add(time.Millisecond)
			return now
		}
	}())
	ctx := context.Background()

	for i := 0; i < 75; i++ {
		_, err := svc.RecordStake(ctx, RecordStakeRequest{ProjectID: ptr(int64(i)), UserWallet: alice, Amount: "1", TxHash: hashN(i % 100)})
		require.NoError(t, err)
	}

	feed, err := svc.ActivityFeed(ctx)
	require.NoError(t, err)
	require.Len(t, feed, FeedLimit)
	for i := 1; i < len(feed); i++ {
		assert.False(t, feed[i].CreatedAt.After(feed[i-1].CreatedAt), "entry %d newer than entry %d", i, i-1)
	}
	assert.Equal(t, "Project #74", feed[0].Target)
}

func TestLeaderboard(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.RecordAttestation(ctx, RecordAttestationRequest{From: alice, To: bob, Score: float64(100), TxHash: hashN(1)})
	require.NoError(t, err)
	_, err = svc.RecordAttestation(ctx, RecordAttestationRequest{From: bob, To: alice, Score: float64(-20), TxHash: hashN(2)})
	require.NoError(t, err)

	board, err := svc.Leaderboard(ctx)
	require.NoError(t, err)
	require.Len(t, board, 2)
	assert.Equal(t, strings.ToLower(bob), board[0].Wallet)
	assert.Equal(t, 100.0, board[0].Score)
	assert.Equal(t, 1, board[0].Received)
	assert.Equal(t, 1, board[0].Given)
}

func TestRegisterAndSearchUsers(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.RegisterUser(ctx, RegisterUserRequest{Wallet: alice, XUsername: ptr("alice_eth")})
	require.NoError(t, err)
	user, err := svc.RegisterUser(ctx, RegisterUserRequest{Wallet: alice, DisplayName: ptr("Alice")})
	require.NoError(t, err)
	assert.Equal(t, "alice_eth", *user.XUsername)

	_, err = svc.RegisterUser(ctx, RegisterUserRequest{Wallet: "nope"})
	assert.Equal(t, http.StatusBadRequest, StatusCode(err))

	users, err := svc.SearchUsers(ctx, "al")
	require.NoError(t, err)
	assert.Empty(t, users, "short queries return nothing")

	users, err = svc.SearchUsers(ctx, "ALI")
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestProfileUnknownWallet(t *testing.T) {
	svc, _ := newService(t)

	profile, err := svc.Profile(context.Background(), bob)
	require.NoError(t, err)
	assert.Equal(t, strings.ToLower(bob), profile.Wallet)
	assert.Nil(t, profile.JoinedAt)
	assert.Zero(t, profile.Reputation.Score)
	assert.Empty(t, profile.Attestations)
	assert.Empty(t, profile.Projects)

	_, err = svc.Profile(context.Background(), "0xzz")
	assert.Equal(t, http.StatusBadRequest, StatusCode(err))
}

type stubSymbols struct{ calls int }

func (s *stubSymbols) Resolve(context.Context, string) string {
	s.calls++
	return "MKR"
}

func TestProjects(t *testing.T) {
	store := memory.NewStore()
	symbols := &stubSymbols{}
	svc := NewService(store, symbols, nil)
	ctx := context.Background()

	p, err := svc.CreateProject(ctx, CreateProjectRequest{
		ProjectID:    ptr(int64(0)),
		Owner:        alice,
		RewardToken:  token,
		RewardAmount: "1000",
		Duration:     ptr(int64(30)),
		TxHash:       hashN(8),
	})
	require.NoError(t, err)
	assert.Equal(t, "Project #0", p.Name)
	assert.Equal(t, "MKR", p.RewardTokenSymbol)
	assert.Equal(t, 1, symbols.calls)

	_, err = svc.CreateProject(ctx, CreateProjectRequest{
		ProjectID: ptr(int64(1)), Owner: alice, RewardToken: token, RewardTokenSymbol: "DAI",
		RewardAmount: json.Number("5.5"), Duration: ptr(int64(7)), TxHash: hashN(9),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, symbols.calls, "explicit symbols skip resolution")

	for name, req := range map[string]CreateProjectRequest{
		"negative id":     {ProjectID: ptr(int64(-1)), Owner: alice, RewardToken: token, RewardAmount: "1", Duration: ptr(int64(1)), TxHash: hashN(1)},
		"bad owner":       {ProjectID: ptr(int64(2)), Owner: "x", RewardToken: token, RewardAmount: "1", Duration: ptr(int64(1)), TxHash: hashN(1)},
		"negative amount": {ProjectID: ptr(int64(2)), Owner: alice, RewardToken: token, RewardAmount: "-1", Duration: ptr(int64(1)), TxHash: hashN(1)},
		"text amount":     {ProjectID: ptr(int64(2)), Owner: alice, RewardToken: token, RewardAmount: "lots", Duration: ptr(int64(1)), TxHash: hashN(1)},
		"zero duration":   {ProjectID: ptr(int64(2)), Owner: alice, RewardToken: token, RewardAmount: "1", Duration: ptr(int64(0)), TxHash: hashN(1)},
		"bad hash":        {ProjectID: ptr(int64(2)), Owner: alice, RewardToken: token, RewardAmount: "1", Duration: ptr(int64(1)), TxHash: "0x1"},
	} {
		_, err := svc.CreateProject(ctx, req)
		assert.Equal(t, http.StatusBadRequest, StatusCode(err), name)
	}

	patched, err := svc.PatchProject(ctx, 0, model.ProjectPatch{Approved: ptr(true), TotalStaked: ptr(3.5)})
	require.NoError(t, err)
	assert.True(t, patched.Approved)
	assert.Equal(t, 3.5, patched.TotalStaked)

	approved, err := svc.ListProjects(ctx, true)
	require.NoError(t, err)
	assert.Len(t, approved, 1)

	all, err := svc.ListProjects(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = svc.PatchProject(ctx, 0, model.ProjectPatch{TotalStaked: ptr(-1.0)})
	assert.Equal(t, http.StatusBadRequest, StatusCode(err))

	_, err = svc.PatchProject(ctx, 99, model.ProjectPatch{Approved: ptr(true)})
	assert.Equal(t, http.StatusNotFound, StatusCode(err))

	_, err = svc.GetProject(ctx, 99)
	assert.Equal(t, http.StatusNotFound, StatusCode(err))

	profile, err := svc.Profile(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, profile.Projects, 2)
}

// failingStore fails selected operations.
type failingStore struct {
	*memory.Store
	failActivity bool
	failInsert   bool
}

func (f *failingStore) InsertActivity(ctx context.Context, l *model.ActivityLog) error {
	if f.failActivity {
		return errors.New("activity table locked")
	}
	return f.Store.InsertActivity(ctx, l)
}

func (f *failingStore) InsertAttestation(ctx context.Context, a *model.Attestation) error {
	if f.failInsert {
		return errors.New("connection reset")
	}
	return f.Store.InsertAttestation(ctx, a)
}

var _ storage.Store = (*failingStore)(nil)

func TestActivityFailureDoesNotFailRecord(t *testing.T) {
	store := &failingStore{Store: memory.NewStore(), failActivity: true}
	svc := NewService(store, nil, nil)

	_, err := svc.RecordAttestation(context.Background(), RecordAttestationRequest{From: alice, To: bob, Score: float64(3), TxHash: hashN(1)})
	require.NoError(t, err)
}

func TestStoreFailure(t *testing.T) {
	store := &failingStore{Store: memory.NewStore(), failInsert: true}
	svc := NewService(store, nil, nil)

	_, err := svc.RecordAttestation(context.Background(), RecordAttestationRequest{From: alice, To: bob, Score: float64(3), TxHash: hashN(1)})
	var storeErr *StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, http.StatusInternalServerError, StatusCode(err))
	assert.Equal(t, "failed to record attestation", PublicMessage(err))
}
