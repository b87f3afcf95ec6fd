package mirror

import (
	"encoding/json"

	"trustScope/internal/model"
)

// RecordAttestationRequest is the body of POST /attestations. Score is left
// untyped so that strings, booleans and fractions are rejected by validation
// rather than silently coerced.
type RecordAttestationRequest struct {
	From    string  `json:"from"`
	To      string  `json:"to"`
	Score   any     `json:"score"`
	Comment *string `json:"comment,omitempty"`
	TxHash  string  `json:"txHash"`
}

// RevokeAttestationRequest is the body of POST /attestations/revoke.
type RevokeAttestationRequest struct {
	From   string `json:"from"`
	To     string `json:"to"`
	TxHash string `json:"txHash,omitempty"`
}

// RecordStakeRequest is the body of POST /stakes. Amount may be a JSON string
// or number and is stored verbatim.
type RecordStakeRequest struct {
	ProjectID  *int64 `json:"projectId"`
	UserWallet string `json:"userWallet"`
	Amount     any    `json:"amount"`
	TxHash     string `json:"txHash"`
}

// RegisterUserRequest is the body of POST /users.
type RegisterUserRequest struct {
	Wallet      string  `json:"wallet"`
	XUsername   *string `json:"x_username,omitempty"`
	DisplayName *string `json:"display_name,omitempty"`
	PfpURL      *string `json:"pfp_url,omitempty"`
}

// CreateProjectRequest is the body of POST /projects.
type CreateProjectRequest struct {
	ProjectID         *int64  `json:"projectId"`
	Owner             string  `json:"owner"`
	Name              string  `json:"name,omitempty"`
	Description       *string `json:"description,omitempty"`
	RewardToken       string  `json:"rewardToken"`
	RewardTokenSymbol string  `json:"rewardTokenSymbol,omitempty"`
	RewardAmount      any     `json:"rewardAmount"`
	Duration          *int64  `json:"duration"`
	TxHash            string  `json:"txHash"`
}

// PatchProjectRequest is the body of PATCH /projects/{id}.
type PatchProjectRequest = model.ProjectPatch

// AttestationResponse is the body of a successful POST /attestations.
type AttestationResponse struct {
	Success     bool              `json:"success"`
	Attestation model.Attestation `json:"attestation"`
}

// StakeResponse is the body of a successful POST /stakes.
type StakeResponse struct {
	Success bool        `json:"success"`
	Stake   model.Stake `json:"stake"`
}

// SuccessResponse is the body of a successful POST /attestations/revoke.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// ProfileResponse is the body of GET /users/{wallet}.
type ProfileResponse struct {
	Profile model.Profile `json:"profile"`
}

// ProjectResponse is the body of project reads and writes.
type ProjectResponse struct {
	Success bool          `json:"success,omitempty"`
	Project model.Project `json:"project"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// numberText renders a decoded JSON scalar as text. ok is false for values
// that are neither strings nor numbers.
func numberText(v any) (string, bool) {
	switch n := v.(type) {
	case string:
		return n, true
	case json.Number:
		return n.String(), true
	case float64:
		b, _ := json.Marshal(n)
		return string(b), true
	default:
		return "", false
	}
}

// ActivityResponse is the body of GET /activity.
type ActivityResponse struct {
	Activity []model.FeedItem `json:"activity"`
}

// LeaderboardResponse is the body of GET /leaderboard.
type LeaderboardResponse struct {
	Leaderboard []model.LeaderboardEntry `json:"leaderboard"`
}

// UserResponse is the body of a successful POST /users.
type UserResponse struct {
	Success bool       `json:"success"`
	User    model.User `json:"user"`
}

// UsersResponse is the body of GET /users.
type UsersResponse struct {
	Users []model.User `json:"users"`
}

// ProjectsResponse is the body of GET /projects.
type ProjectsResponse struct {
	Projects []model.Project `json:"projects"`
}
