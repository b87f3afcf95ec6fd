package model

import "time"

// Attestation is a mirrored on-chain attestation. Rows are never deleted;
// revocation sets RevokedAt.
type Attestation struct {
	ID         int64      `json:"id"`
	FromWallet string     `json:"from_wallet"`
	ToWallet   string     `json:"to_wallet"`
	Score      int        `json:"score"`
	Comment    *string    `json:"comment"`
	TxHash     string     `json:"tx_hash"`
	CreatedAt  time.Time  `json:"created_at"`
	RevokedAt  *time.Time `json:"revoked_at"`
}

// Active reports whether the attestation has not been revoked.
func (a Attestation) Active() bool {
	return a.RevokedAt == nil
}

// Stake is a mirrored stake transaction. Amount is kept as the caller sent it.
type Stake struct {
	ID         int64     `json:"id"`
	ProjectID  int64     `json:"project_id"`
	UserWallet string    `json:"user_wallet"`
	Amount     string    `json:"amount"`
	IsActive   bool      `json:"is_active"`
	TxHash     string    `json:"tx_hash"`
	CreatedAt  time.Time `json:"created_at"`
}
