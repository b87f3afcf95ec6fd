package model

import "time"

// ActivityKind is the stored activity log type.
type ActivityKind string

const (
	ActivityAttest ActivityKind = "ATTEST"
	ActivityStake  ActivityKind = "STAKE"
)

// ActivityLog is a denormalized feed row written at record time.
// Target is the display label resolved when the row was written.
type ActivityLog struct {
	ID        int64          `json:"id"`
	Type      ActivityKind   `json:"type"`
	Wallet    string         `json:"wallet"`
	Target    string         `json:"target"`
	Amount    string         `json:"amount"`
	Metadata  map[string]any `json:"metadata"`
	TxHash    string         `json:"tx_hash"`
	CreatedAt time.Time      `json:"created_at"`
}

// ActivityRecord is an activity log joined with the acting wallet's user row.
type ActivityRecord struct {
	Log  ActivityLog
	User *User
}

// FeedUser is the acting wallet's display metadata in the feed.
type FeedUser struct {
	Wallet      string  `json:"wallet"`
	DisplayName *string `json:"displayName"`
	Username    *string `json:"username"`
	PfpURL      *string `json:"pfpUrl"`
}

// FeedItem is one entry of GET /activity.
type FeedItem struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"createdAt"`
	User      FeedUser  `json:"user"`
	Target    string    `json:"target"`
	Details   string    `json:"details"`
}
