package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trustScope/internal/cache"
	"trustScope/internal/metrics"
	"trustScope/internal/mirror"
	"trustScope/internal/storage/memory"
)

const (
	alice = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	bob   = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
)

func txHash(c string) string {
	return "0x" + strings.Repeat(c, 64)
}

type testServer struct {
	handler http.Handler
	store   *memory.Store
	metrics *metrics.Registry
}

func newTestServer(t *testing.T, limiter *RateLimiter) testServer {
	t.Helper()
	store := memory.NewStore()
	reg := metrics.New()
	srv := NewServer(Config{
		Service: mirror.NewService(store, nil, nil),
		Reads:   cache.NewLoader(cache.NewMemory(), 5*time.Second, 10*time.Second, nil, reg),
		Metrics: reg,
		Limiter: limiter,
	})
	return testServer{handler: srv.Router(), store: store, metrics: reg}
}

func (ts testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func attestBody(from, to string, score any, hash string) string {
	b, _ := json.Marshal(map[string]any{"from": from, "to": to, "score": score, "txHash": hash})
	return string(b)
}

func TestRecordAttestationEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/attestations", attestBody(alice, bob, 5, txHash("a")))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[mirror.AttestationResponse](t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, strings.ToLower(bob), resp.Attestation.ToWallet)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	rec = ts.do(t, http.MethodPost, "/attestations", attestBody(alice, bob, 5, txHash("a")))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "Attestation already recorded", decode[mirror.ErrorResponse](t, rec).Error)
}

func TestRecordAttestationValidation(t *testing.T) {
	ts := newTestServer(t, nil)

	cases := []struct {
		name string
		body string
		msg  string
	}{
		{"empty body", "", "Request body required"},
		{"malformed", "{", "Invalid request body"},
		{"missing fields", `{"from":"` + alice + `"}`, "Missing required fields"},
		{"bad address", attestBody("0x123", bob, 1, txHash("b")), "Invalid wallet address"},
		{"score too high", attestBody(alice, bob, 128, txHash("b")), "Score must be an integer between -127 and 127"},
		{"fractional score", attestBody(alice, bob, 1.5, txHash("b")), "Score must be an integer between -127 and 127"},
		{"string score", attestBody(alice, bob, "5", txHash("b")), "Score must be an integer between -127 and 127"},
		{"bad hash", attestBody(alice, bob, 1, "0x1234"), "Invalid transaction hash format"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/attestations", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tc.msg, decode[mirror.ErrorResponse](t, rec).Error)
		})
	}
}

func TestActivityInvalidatedByWrites(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/activity", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, activityCacheControl, rec.Header().Get("Cache-Control"))
	assert.Empty(t, decode[mirror.ActivityResponse](t, rec).Activity)

	rec = ts.do(t, http.MethodPost, "/attestations", attestBody(alice, bob, -2, txHash("c")))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(t, http.MethodPost, "/stakes", `{"projectId":3,"userWallet":"`+alice+`","amount":"0.5","txHash":"`+txHash("d")+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	stake := decode[mirror.StakeResponse](t, rec)
	assert.Equal(t, "0.5", stake.Stake.Amount)

	rec = ts.do(t, http.MethodGet, "/activity", "")
	feed := decode[mirror.ActivityResponse](t, rec).Activity
	require.Len(t, feed, 2)
	assert.Equal(t, "stake", feed[0].Type)
	assert.Equal(t, "Project #3", feed[0].Target)
	assert.Equal(t, "0.5 ETH", feed[0].Details)
	assert.Equal(t, "attestation", feed[1].Type)
	assert.Equal(t, "-2 Trust", feed[1].Details)

	rec = ts.do(t, http.MethodGet, "/leaderboard", "")
	board := decode[mirror.LeaderboardResponse](t, rec).Leaderboard
	require.Len(t, board, 2)
	assert.Equal(t, strings.ToLower(alice), board[0].Wallet)
	assert.Equal(t, 1, board[0].Given)
	assert.Equal(t, strings.ToLower(bob), board[1].Wallet)
	assert.Equal(t, -2.0, board[1].Score)
}

func TestRevokeEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/attestations", attestBody(alice, bob, 9, txHash("e")))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(t, http.MethodPost, "/attestations/revoke", `{"from":"`+alice+`","to":"`+bob+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[mirror.SuccessResponse](t, rec).Success)

	rec = ts.do(t, http.MethodGet, "/users/"+bob, "")
	require.Equal(t, http.StatusOK, rec.Code)
	profile := decode[mirror.ProfileResponse](t, rec).Profile
	require.Len(t, profile.Attestations, 1)
	assert.NotNil(t, profile.Attestations[0].RevokedAt)
	assert.Equal(t, 0, profile.Reputation.ReceivedCount)

	rec = ts.do(t, http.MethodPost, "/attestations/revoke", `{"from":"`+alice+`"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUsersEndpoints(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/users", `{"wallet":"`+alice+`","x_username":"alice_eth"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, strings.ToLower(alice), decode[mirror.UserResponse](t, rec).User.Wallet)

	rec = ts.do(t, http.MethodGet, "/users?q=ali", "")
	users := decode[mirror.UsersResponse](t, rec).Users
	require.Len(t, users, 1)

	rec = ts.do(t, http.MethodGet, "/users?q=al", "")
	assert.Empty(t, decode[mirror.UsersResponse](t, rec).Users)

	rec = ts.do(t, http.MethodPost, "/users", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProjectEndpoints(t *testing.T) {
	ts := newTestServer(t, nil)

	body := `{"projectId":7,"owner":"` + alice + `","rewardToken":"` + bob + `","rewardAmount":"100","duration":30,"txHash":"` + txHash("f") + `"}`
	rec := ts.do(t, http.MethodPost, "/projects", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	p := decode[mirror.ProjectResponse](t, rec).Project
	assert.Equal(t, "Project #7", p.Name)
	assert.Equal(t, "TOKEN", p.RewardTokenSymbol)

	rec = ts.do(t, http.MethodGet, "/projects?approved=true", "")
	assert.Equal(t, projectsCacheControl, rec.Header().Get("Cache-Control"))
	assert.Empty(t, decode[mirror.ProjectsResponse](t, rec).Projects)

	rec = ts.do(t, http.MethodPatch, "/projects/7", `{"approved":true,"total_staked":1.25}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	p = decode[mirror.ProjectResponse](t, rec).Project
	assert.True(t, p.Approved)
	assert.Equal(t, 1.25, p.TotalStaked)

	rec = ts.do(t, http.MethodGet, "/projects?approved=true", "")
	assert.Len(t, decode[mirror.ProjectsResponse](t, rec).Projects, 1)

	rec = ts.do(t, http.MethodGet, "/projects/8", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Project not found", decode[mirror.ErrorResponse](t, rec).Error)

	rec = ts.do(t, http.MethodGet, "/projects/abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid project ID", decode[mirror.ErrorResponse](t, rec).Error)

	rec = ts.do(t, http.MethodPatch, "/projects/9", `{"approved":true}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWriteRateLimit(t *testing.T) {
	ts := newTestServer(t, NewRateLimiter(0.001, 1, nil))

	rec := ts.do(t, http.MethodPost, "/attestations", attestBody(alice, bob, 1, txHash("1")))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(t, http.MethodPost, "/attestations", attestBody(alice, bob, 1, txHash("2")))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Reads are not limited.
	rec = ts.do(t, http.MethodGet, "/activity", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	ts.do(t, http.MethodGet, "/projects/1", "")
	rec = ts.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `path="/projects/{id}"`)

	rec = ts.do(t, http.MethodDelete, "/activity", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRequestIDPropagated(t *testing.T) {
	ts := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}
