package contracts

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"trustScope/internal/model"
)

// Backend is the subset of chain.Client the ledger needs. Writes go through
// go-ethereum bindings, so it carries their caller, transactor and receipt
// interfaces.
type Backend interface {
	bind.ContractCaller
	bind.ContractTransactor
	bind.DeployBackend
	FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
}

// Addresses holds the deployed contract addresses.
type Addresses struct {
	Attestation     common.Address
	ProjectRegistry common.Address
	ProjectRewards  common.Address
}

// LedgerConfig configures a Ledger.
type LedgerConfig struct {
	Addresses Addresses
	// DeployBlock bounds event queries from below.
	DeployBlock uint64
	// Signer is required for write calls only.
	Signer *bind.TransactOpts
}

// Ledger exposes the read and write calls made against the external contracts.
type Ledger struct {
	backend Backend
	cfg     LedgerConfig
	logger  *zap.Logger
}

// NewLedger builds a Ledger over a chain backend.
func NewLedger(backend Backend, cfg LedgerConfig, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{backend: backend, cfg: cfg, logger: logger}
}

// Sender returns the signing account, or the zero address for a read-only ledger.
func (l *Ledger) Sender() common.Address {
	if l.cfg.Signer == nil {
		return common.Address{}
	}
	return l.cfg.Signer.From
}

// TokenSymbol reads an ERC-20 symbol, accepting both string and bytes32 encodings.
func (l *Ledger) TokenSymbol(ctx context.Context, token common.Address) (string, error) {
	stringABI, err := erc20StringABI.get()
	if err != nil {
		return "", fmt.Errorf("parse erc20 string abi: %w", err)
	}
	values, err := l.call(ctx, token, stringABI, "symbol")
	if err == nil {
		if symbol, ok := values[0].(string); ok {
			return symbol, nil
		}
	}
	l.logger.Debug("string symbol call failed", zap.String("token", token.Hex()), zap.Error(err))

	bytes32ABI, err := erc20Bytes32ABI.get()
	if err != nil {
		return "", fmt.Errorf("parse erc20 bytes32 abi: %w", err)
	}
	values, err = l.call(ctx, token, bytes32ABI, "symbol")
	if err != nil {
		return "", err
	}
	symbol, ok := bytes32ToString(values[0])
	if !ok {
		return "", fmt.Errorf("symbol: unsupported type %T", values[0])
	}
	return symbol, nil
}

// HasAttestation reports whether an active attestation from -> to exists on chain.
func (l *Ledger) HasAttestation(ctx context.Context, from, to common.Address) (bool, error) {
	parsed, err := attestationABI.get()
	if err != nil {
		return false, fmt.Errorf("parse attestation abi: %w", err)
	}
	values, err := l.call(ctx, l.cfg.Addresses.Attestation, parsed, "hasAttestation", from, to)
	if err != nil {
		return false, err
	}
	return asBool(values[0])
}

// AttestationScore reads the current score of from -> to from contract state.
func (l *Ledger) AttestationScore(ctx context.Context, from, to common.Address) (int, error) {
	parsed, err := attestationABI.get()
	if err != nil {
		return 0, fmt.Errorf("parse attestation abi: %w", err)
	}
	values, err := l.call(ctx, l.cfg.Addresses.Attestation, parsed, "getAttestation", from, to)
	if err != nil {
		return 0, err
	}
	return asScore(values[0])
}

// AttestationEvents returns AttestationCreated events for from -> to, oldest first.
func (l *Ledger) AttestationEvents(ctx context.Context, from, to common.Address) ([]model.AttestationEvent, error) {
	parsed, err := attestationABI.get()
	if err != nil {
		return nil, fmt.Errorf("parse attestation abi: %w", err)
	}
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(l.cfg.DeployBlock),
		Addresses: []common.Address{l.cfg.Addresses.Attestation},
		Topics: [][]common.Hash{
			{parsed.Events["AttestationCreated"].ID},
			{common.BytesToHash(from.Bytes())},
			{common.BytesToHash(to.Bytes())},
		},
	}
	logs, err := l.backend.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("filter attestation logs: %w", err)
	}
	return l.decodeLogs(ctx, parsed, logs, false)
}

// AttestationLogs returns created and revoked events in the inclusive block range.
func (l *Ledger) AttestationLogs(ctx context.Context, fromBlock, toBlock uint64) ([]model.AttestationEvent, error) {
	parsed, err := attestationABI.get()
	if err != nil {
		return nil, fmt.Errorf("parse attestation abi: %w", err)
	}
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{l.cfg.Addresses.Attestation},
		Topics: [][]common.Hash{{
			parsed.Events["AttestationCreated"].ID,
			parsed.Events["AttestationRevoked"].ID,
		}},
	}
	logs, err := l.backend.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("filter attestation logs: %w", err)
	}
	return l.decodeLogs(ctx, parsed, logs, true)
}

func (l *Ledger) decodeLogs(ctx context.Context, parsed abi.ABI, logs []types.Log, withTimestamp bool) ([]model.AttestationEvent, error) {
	events := make([]model.AttestationEvent, 0, len(logs))
	for _, log := range logs {
		if log.Removed {
			continue
		}
		event, err := decodeAttestationLog(parsed, log)
		if err != nil {
			return nil, err
		}
		if withTimestamp && event.Timestamp == 0 {
			ts, err := l.backend.BlockTimestamp(ctx, log.BlockNumber)
			if err != nil {
				return nil, fmt.Errorf("block timestamp %d: %w", log.BlockNumber, err)
			}
			event.Timestamp = ts
		}
		events = append(events, event)
	}
	return events, nil
}

func decodeAttestationLog(parsed abi.ABI, log types.Log) (model.AttestationEvent, error) {
	if len(log.Topics) < 3 {
		return model.AttestationEvent{}, fmt.Errorf("attestation log %s: expected 3 topics, got %d", log.TxHash.Hex(), len(log.Topics))
	}

	event := model.AttestationEvent{
		From:        strings.ToLower(common.BytesToAddress(log.Topics[1].Bytes()).Hex()),
		To:          strings.ToLower(common.BytesToAddress(log.Topics[2].Bytes()).Hex()),
		BlockNumber: log.BlockNumber,
		LogIndex:    uint64(log.Index),
		TxHash:      log.TxHash.Hex(),
	}

	switch log.Topics[0] {
	case parsed.Events["AttestationCreated"].ID:
		values, err := parsed.Events["AttestationCreated"].Inputs.NonIndexed().Unpack(log.Data)
		if err != nil {
			return model.AttestationEvent{}, fmt.Errorf("unpack AttestationCreated: %w", err)
		}
		score, err := asScore(values[0])
		if err != nil {
			return model.AttestationEvent{}, fmt.Errorf("score: %w", err)
		}
		ts, err := asBigInt(values[1])
		if err != nil {
			return model.AttestationEvent{}, fmt.Errorf("timestamp: %w", err)
		}
		event.Kind = model.AttestationCreated
		event.Score = score
		event.Timestamp = ts.Uint64()
	case parsed.Events["AttestationRevoked"].ID:
		values, err := parsed.Events["AttestationRevoked"].Inputs.NonIndexed().Unpack(log.Data)
		if err != nil {
			return model.AttestationEvent{}, fmt.Errorf("unpack AttestationRevoked: %w", err)
		}
		ts, err := asBigInt(values[0])
		if err != nil {
			return model.AttestationEvent{}, fmt.Errorf("timestamp: %w", err)
		}
		event.Kind = model.AttestationRevoked
		event.Timestamp = ts.Uint64()
	default:
		return model.AttestationEvent{}, fmt.Errorf("unknown attestation topic0 %s", log.Topics[0].Hex())
	}

	return event, nil
}

// ProjectApproved reads the registry approval flag.
func (l *Ledger) ProjectApproved(ctx context.Context, projectID int64) (bool, error) {
	parsed, err := projectRegistryABI.get()
	if err != nil {
		return false, fmt.Errorf("parse registry abi: %w", err)
	}
	values, err := l.call(ctx, l.cfg.Addresses.ProjectRegistry, parsed, "isProjectApproved", big.NewInt(projectID))
	if err != nil {
		return false, err
	}
	return asBool(values[0])
}

// RewardPool reads the reward pool of a project.
func (l *Ledger) RewardPool(ctx context.Context, projectID int64) (model.RewardPool, error) {
	parsed, err := projectRewardsABI.get()
	if err != nil {
		return model.RewardPool{}, fmt.Errorf("parse rewards abi: %w", err)
	}
	values, err := l.call(ctx, l.cfg.Addresses.ProjectRewards, parsed, "getRewardPool", big.NewInt(projectID))
	if err != nil {
		return model.RewardPool{}, err
	}
	if len(values) != 6 {
		return model.RewardPool{}, fmt.Errorf("getRewardPool: expected 6 values, got %d", len(values))
	}

	token, err := asAddress(values[0])
	if err != nil {
		return model.RewardPool{}, fmt.Errorf("reward token: %w", err)
	}
	amounts := make([]*big.Int, 0, 5)
	for i, v := range values[1:] {
		n, err := asBigInt(v)
		if err != nil {
			return model.RewardPool{}, fmt.Errorf("reward pool field %d: %w", i+1, err)
		}
		amounts = append(amounts, n)
	}

	return model.RewardPool{
		RewardToken:  token.Hex(),
		TotalRewards: amounts[0].String(),
		StartTime:    amounts[1].Uint64(),
		EndTime:      amounts[2].Uint64(),
		TotalStaked:  amounts[3].String(),
		TotalClaimed: amounts[4].String(),
	}, nil
}

func (l *Ledger) call(ctx context.Context, to common.Address, parsed abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &to, Data: data}
	resp, err := l.backend.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("unpack %s: no values", method)
	}
	return values, nil
}
