package reconcile

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"trustScope/internal/mirror"
	"trustScope/internal/mirrorclient"
	"trustScope/internal/model"
)

// RecoveredComment tags attestations rebuilt from ledger state.
const RecoveredComment = "Synced from chain (recovered)"

const weiDecimals = 18

// Ledger is the subset of contracts.Ledger the flow needs.
type Ledger interface {
	Sender() common.Address
	HasAttestation(ctx context.Context, from, to common.Address) (bool, error)
	AttestationScore(ctx context.Context, from, to common.Address) (int, error)
	AttestationEvents(ctx context.Context, from, to common.Address) ([]model.AttestationEvent, error)
	EstimateAttest(ctx context.Context, to common.Address, score int) (uint64, error)
	SubmitAttest(ctx context.Context, to common.Address, score int, gasLimit uint64) (*types.Transaction, error)
	SubmitRevoke(ctx context.Context, to common.Address) (*types.Transaction, error)
	AwaitReceipt(ctx context.Context, tx *types.Transaction) (model.Receipt, error)
	ProjectApproved(ctx context.Context, projectID int64) (bool, error)
	RewardPool(ctx context.Context, projectID int64) (model.RewardPool, error)
}

// Mirror is the subset of mirrorclient.Client the flow needs.
type Mirror interface {
	Profile(ctx context.Context, wallet string) (model.Profile, error)
	RecordAttestation(ctx context.Context, req mirror.RecordAttestationRequest) (model.Attestation, error)
	RevokeAttestation(ctx context.Context, req mirror.RevokeAttestationRequest) error
	GetProject(ctx context.Context, id int64) (model.Project, error)
	PatchProject(ctx context.Context, id int64, patch model.ProjectPatch) (model.Project, error)
}

// Recorder counts decisions. metrics.Registry implements it.
type Recorder interface {
	RecordDecision(decision string)
}

// Result describes a finished attest or revoke attempt.
type Result struct {
	Decision    Decision
	TxHash      string
	Score       int
	Attestation *model.Attestation
}

// Flow reconciles ledger state with the mirror around attest and revoke.
type Flow struct {
	ledger   Ledger
	mirror   Mirror
	logger   *zap.Logger
	recorder Recorder
	now      func() time.Time
}

// NewFlow creates a Flow. recorder may be nil.
func NewFlow(ledger Ledger, m Mirror, logger *zap.Logger, recorder Recorder) *Flow {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Flow{
		ledger:   ledger,
		mirror:   m,
		logger:   logger,
		recorder: recorder,
		now:      time.Now,
	}
}

// Attest runs one attest attempt from the ledger's signer to target.
// Steps run strictly in order: self check, mirror lookup, ledger lookup,
// then either submission or recovery.
func (f *Flow) Attest(ctx context.Context, target string, score int, comment *string) (Result, error) {
	if !common.IsHexAddress(target) {
		return Result{}, ErrInvalidAddress
	}
	if score < mirror.MinScore || score > mirror.MaxScore {
		return Result{}, ErrInvalidScore
	}
	fromAddr := f.ledger.Sender()
	toAddr := common.HexToAddress(target)
	from := strings.ToLower(fromAddr.Hex())
	to := strings.ToLower(toAddr.Hex())
	logger := f.logger.With(zap.String("from", from), zap.String("to", to))

	obs := Observation{Self: from == to}
	if obs.Self {
		return f.finish(Result{Decision: Decide(obs)}, ErrSelfAttestation)
	}

	profile, err := f.mirror.Profile(ctx, to)
	mirrorKnown := err == nil
	if err != nil {
		logger.Warn("mirror lookup failed, checking ledger", zap.Error(err))
	} else if _, ok := profile.ActiveAttestationFrom(from); ok {
		obs.MirrorActive = true
	}
	if d := Decide(obs); d == Blocked {
		return f.finish(Result{Decision: d}, ErrAlreadyAttested)
	}

	exists, err := f.ledger.HasAttestation(ctx, fromAddr, toAddr)
	if err != nil {
		return Result{}, classify("check attestation", err)
	}
	obs.Ledger = &exists

	switch Decide(obs) {
	case Proceed:
		return f.submit(ctx, logger, from, to, toAddr, score, comment)
	default:
		return f.recover(ctx, logger, obs, mirrorKnown, from, to, fromAddr, toAddr, comment)
	}
}

func (f *Flow) submit(ctx context.Context, logger *zap.Logger, from, to string, toAddr common.Address, score int, comment *string) (Result, error) {
	res := Result{Decision: Proceed, Score: score}

	gas, err := f.ledger.EstimateAttest(ctx, toAddr, score)
	if err != nil {
		return f.finish(res, classify("estimate gas", err))
	}
	tx, err := f.ledger.SubmitAttest(ctx, toAddr, score, gas)
	if err != nil {
		return f.finish(res, classify("submit attestation", err))
	}
	receipt, err := f.ledger.AwaitReceipt(ctx, tx)
	if err != nil {
		return f.finish(res, classify("await receipt", err))
	}
	res.TxHash = receipt.TxHash
	if !receipt.Succeeded() {
		return f.finish(res, classify("attestation", fmt.Errorf("transaction %s reverted", receipt.TxHash)))
	}
	logger.Info("attestation confirmed", zap.String("tx_hash", receipt.TxHash), zap.Uint64("block", receipt.BlockNumber))

	a, err := f.mirror.RecordAttestation(ctx, mirror.RecordAttestationRequest{
		From:    from,
		To:      to,
		Score:   score,
		Comment: comment,
		TxHash:  receipt.TxHash,
	})
	if err != nil {
		logger.Error("record attestation in mirror", zap.String("tx_hash", receipt.TxHash), zap.Error(err))
		return f.finish(res, fmt.Errorf("%w: %w", ErrMirrorSync, err))
	}
	res.Attestation = &a
	return f.finish(res, nil)
}

// recover records a ledger attestation the mirror is missing. Without a
// located event the hash is synthetic and the mirror cannot dedupe it, so that
// path requires a successful mirror lookup.
func (f *Flow) recover(ctx context.Context, logger *zap.Logger, obs Observation, mirrorKnown bool, from, to string, fromAddr, toAddr common.Address, comment *string) (Result, error) {
	res := Result{Decision: Recoverable}

	event, found, err := f.latestEvent(ctx, fromAddr, toAddr)
	if err != nil {
		logger.Warn("attestation event lookup failed, reading score", zap.Error(err))
	}
	if found {
		res.TxHash = event.TxHash
		res.Score = event.Score
	} else {
		if !mirrorKnown {
			return f.finish(res, ErrMirrorUnavailable)
		}
		score, err := f.ledger.AttestationScore(ctx, fromAddr, toAddr)
		if err != nil {
			return f.finish(res, classify("read attestation score", err))
		}
		res.Score = score
		res.TxHash = SyntheticTxHash(from, to, f.now())
	}

	if comment == nil || strings.TrimSpace(*comment) == "" {
		c := RecoveredComment
		comment = &c
	}
	a, err := f.mirror.RecordAttestation(ctx, mirror.RecordAttestationRequest{
		From:    from,
		To:      to,
		Score:   res.Score,
		Comment: comment,
		TxHash:  res.TxHash,
	})
	if mirrorclient.IsConflict(err) {
		obs.Recorded = true
		res.Decision = Decide(obs)
		logger.Info("recovered attestation already mirrored", zap.String("tx_hash", res.TxHash))
		return f.finish(res, nil)
	}
	if err != nil {
		logger.Error("record recovered attestation", zap.String("tx_hash", res.TxHash), zap.Error(err))
		return f.finish(res, fmt.Errorf("record recovered attestation: %w", err))
	}
	logger.Info("attestation recovered from chain",
		zap.String("tx_hash", res.TxHash),
		zap.Int("score", res.Score),
		zap.Bool("from_event", found),
	)
	res.Attestation = &a
	return f.finish(res, nil)
}

// latestEvent returns the newest AttestationCreated event for the pair.
func (f *Flow) latestEvent(ctx context.Context, from, to common.Address) (model.AttestationEvent, bool, error) {
	events, err := f.ledger.AttestationEvents(ctx, from, to)
	if err != nil {
		return model.AttestationEvent{}, false, err
	}
	var latest model.AttestationEvent
	found := false
	for _, e := range events {
		if e.Kind != model.AttestationCreated {
			continue
		}
		if !found || e.BlockNumber > latest.BlockNumber ||
			(e.BlockNumber == latest.BlockNumber && e.LogIndex > latest.LogIndex) {
			latest = e
			found = true
		}
	}
	return latest, found, nil
}

// SyntheticTxHash builds a placeholder hash for a recovered attestation whose
// transaction could not be found. It is unique per pair and timestamp and
// matches the mirror's hash format.
func SyntheticTxHash(from, to string, at time.Time) string {
	seed := fmt.Sprintf("recovered:%s:%s:%d", from, to, at.UnixNano())
	return crypto.Keccak256Hash([]byte(seed)).Hex()
}

// Revoke revokes the signer's attestation to target on chain, then in the mirror.
func (f *Flow) Revoke(ctx context.Context, target string) (Result, error) {
	if !common.IsHexAddress(target) {
		return Result{}, ErrInvalidAddress
	}
	toAddr := common.HexToAddress(target)
	from := strings.ToLower(f.ledger.Sender().Hex())
	to := strings.ToLower(toAddr.Hex())

	var res Result
	tx, err := f.ledger.SubmitRevoke(ctx, toAddr)
	if err != nil {
		return res, classify("submit revoke", err)
	}
	receipt, err := f.ledger.AwaitReceipt(ctx, tx)
	if err != nil {
		return res, classify("await receipt", err)
	}
	res.TxHash = receipt.TxHash
	if !receipt.Succeeded() {
		return res, classify("revoke", fmt.Errorf("transaction %s reverted", receipt.TxHash))
	}

	err = f.mirror.RevokeAttestation(ctx, mirror.RevokeAttestationRequest{From: from, To: to, TxHash: receipt.TxHash})
	if err != nil {
		f.logger.Error("revoke attestation in mirror", zap.String("tx_hash", receipt.TxHash), zap.Error(err))
		return res, fmt.Errorf("%w: %w", ErrMirrorSync, err)
	}
	f.logger.Info("attestation revoked", zap.String("from", from), zap.String("to", to), zap.String("tx_hash", receipt.TxHash))
	return res, nil
}

// ApplyOptimisticRevoke marks from's active attestation in profile revoked and
// decrements the received count. The score is left as is: the result is a
// display hint until the profile is fetched again. Reports whether anything
// changed.
func ApplyOptimisticRevoke(profile *model.Profile, from string, at time.Time) bool {
	if profile == nil {
		return false
	}
	from = strings.ToLower(from)
	changed := false
	for i := range profile.Attestations {
		a := &profile.Attestations[i]
		if a.FromWallet != from || !a.Active() {
			continue
		}
		revokedAt := at
		a.RevokedAt = &revokedAt
		changed = true
	}
	if changed && profile.Reputation.ReceivedCount > 0 {
		profile.Reputation.ReceivedCount--
	}
	return changed
}

// SyncProject copies on-chain approval, reward deposit and total stake of a
// project into the mirror. It returns the mirrored project and whether a
// patch was sent.
func (f *Flow) SyncProject(ctx context.Context, projectID int64) (model.Project, bool, error) {
	approved, err := f.ledger.ProjectApproved(ctx, projectID)
	if err != nil {
		return model.Project{}, false, classify("read project approval", err)
	}
	pool, err := f.ledger.RewardPool(ctx, projectID)
	if err != nil {
		return model.Project{}, false, classify("read reward pool", err)
	}
	totalStaked, err := weiToEther(pool.TotalStaked)
	if err != nil {
		return model.Project{}, false, fmt.Errorf("total staked: %w", err)
	}
	deposited, err := positiveAmount(pool.TotalRewards)
	if err != nil {
		return model.Project{}, false, fmt.Errorf("total rewards: %w", err)
	}

	current, err := f.mirror.GetProject(ctx, projectID)
	if err != nil {
		return model.Project{}, false, fmt.Errorf("read mirrored project: %w", err)
	}

	var patch model.ProjectPatch
	if current.Approved != approved {
		patch.Approved = &approved
	}
	if current.RewardsDeposited != deposited {
		patch.RewardsDeposited = &deposited
	}
	if current.TotalStaked != totalStaked {
		patch.TotalStaked = &totalStaked
	}
	if patch.Empty() {
		return current, false, nil
	}

	updated, err := f.mirror.PatchProject(ctx, projectID, patch)
	if err != nil {
		return model.Project{}, false, fmt.Errorf("%w: %w", ErrMirrorSync, err)
	}
	f.logger.Info("project synced",
		zap.Int64("project_id", projectID),
		zap.Bool("approved", updated.Approved),
		zap.Bool("rewards_deposited", updated.RewardsDeposited),
		zap.Float64("total_staked", updated.TotalStaked),
	)
	return updated, true, nil
}

func (f *Flow) finish(res Result, err error) (Result, error) {
	if f.recorder != nil && res.Decision != "" {
		f.recorder.RecordDecision(string(res.Decision))
	}
	return res, err
}

// weiToEther converts a decimal wei amount to ether.
func weiToEther(wei string) (float64, error) {
	value, ok := new(big.Int).SetString(wei, 10)
	if !ok {
		return 0, fmt.Errorf("invalid integer %q", wei)
	}
	denom := new(big.Int).Exp(big.NewInt(10), big.NewInt(weiDecimals), nil)
	text := new(big.Rat).SetFrac(value, denom).FloatString(weiDecimals)
	return strconv.ParseFloat(text, 64)
}

func positiveAmount(amount string) (bool, error) {
	value, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return false, fmt.Errorf("invalid integer %q", amount)
	}
	return value.Sign() > 0, nil
}
