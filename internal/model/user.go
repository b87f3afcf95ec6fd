package model

import "time"

// User holds off-chain profile metadata for a wallet.
type User struct {
	Wallet      string    `json:"wallet"`
	XUsername   *string   `json:"x_username"`
	DisplayName *string   `json:"display_name"`
	PfpURL      *string   `json:"pfp_url"`
	CreatedAt   time.Time `json:"created_at"`
	LastSeen    time.Time `json:"last_seen"`
}

// UserUpdate carries the fields of a user upsert. Nil fields are left untouched.
type UserUpdate struct {
	Wallet      string
	XUsername   *string
	DisplayName *string
	PfpURL      *string
}

// ReputationScore is the aggregate reputation of a wallet.
type ReputationScore struct {
	Wallet               string    `json:"wallet"`
	Score                float64   `json:"score"`
	AttestationsReceived int       `json:"attestations_received"`
	AttestationsGiven    int       `json:"attestations_given"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// LeaderboardEntry is one row of GET /leaderboard.
type LeaderboardEntry struct {
	Wallet      string  `json:"wallet"`
	Score       float64 `json:"score"`
	Received    int     `json:"received"`
	Given       int     `json:"given"`
	XUsername   *string `json:"x_username"`
	DisplayName *string `json:"display_name"`
	PfpURL      *string `json:"pfp_url"`
}
