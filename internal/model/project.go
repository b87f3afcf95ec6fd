package model

import "time"

// Project is the mirrored state of a registered staking project.
type Project struct {
	ProjectID         int64     `json:"project_id"`
	Owner             string    `json:"owner"`
	Name              string    `json:"name"`
	Description       *string   `json:"description"`
	RewardToken       string    `json:"reward_token"`
	RewardTokenSymbol string    `json:"reward_token_symbol"`
	RewardAmount      string    `json:"reward_amount"`
	DurationDays      int64     `json:"duration_days"`
	TxHash            string    `json:"tx_hash"`
	Approved          bool      `json:"approved"`
	RewardsDeposited  bool      `json:"rewards_deposited"`
	TotalStaked       float64   `json:"total_staked"`
	CreatedAt         time.Time `json:"created_at"`
}

// ProjectPatch is a partial project update. Nil fields are left untouched.
type ProjectPatch struct {
	Approved         *bool    `json:"approved,omitempty"`
	RewardsDeposited *bool    `json:"rewards_deposited,omitempty"`
	TotalStaked      *float64 `json:"total_staked,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p ProjectPatch) Empty() bool {
	return p.Approved == nil && p.RewardsDeposited == nil && p.TotalStaked == nil
}
