package model

// AttestationEventKind distinguishes attestation contract events.
type AttestationEventKind string

const (
	AttestationCreated AttestationEventKind = "created"
	AttestationRevoked AttestationEventKind = "revoked"
)

// AttestationEvent is a decoded attestation contract log.
type AttestationEvent struct {
	Kind        AttestationEventKind `json:"kind"`
	From        string               `json:"from"`
	To          string               `json:"to"`
	Score       int                  `json:"score"`
	Timestamp   uint64               `json:"timestamp"`
	BlockNumber uint64               `json:"block_number"`
	LogIndex    uint64               `json:"log_index"`
	TxHash      string               `json:"tx_hash"`
}

// Receipt is the outcome of a mined transaction.
type Receipt struct {
	Status      uint64 `json:"status"`
	TxHash      string `json:"tx_hash"`
	BlockNumber uint64 `json:"block_number"`
}

// Succeeded reports whether the transaction executed without reverting.
func (r Receipt) Succeeded() bool {
	return r.Status == 1
}

// RewardPool is the on-chain reward pool state of a project. Amounts are wei.
type RewardPool struct {
	RewardToken  string `json:"reward_token"`
	TotalRewards string `json:"total_rewards"`
	StartTime    uint64 `json:"start_time"`
	EndTime      uint64 `json:"end_time"`
	TotalStaked  string `json:"total_staked"`
	TotalClaimed string `json:"total_claimed"`
}
