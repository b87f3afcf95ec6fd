package contracts

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"trustScope/internal/model"
)

// ErrNoSigner is returned by write calls on a read-only ledger.
var ErrNoSigner = errors.New("ledger has no signer")

// EstimateAttest estimates gas for attest(to, score). A revert is returned as an
// error, wrapped with ErrAttestationExists when the contract says so.
func (l *Ledger) EstimateAttest(ctx context.Context, to common.Address, score int) (uint64, error) {
	if l.cfg.Signer == nil {
		return 0, ErrNoSigner
	}
	parsed, err := attestationABI.get()
	if err != nil {
		return 0, fmt.Errorf("parse attestation abi: %w", err)
	}
	data, err := parsed.Pack("attest", to, int8(score))
	if err != nil {
		return 0, fmt.Errorf("pack attest: %w", err)
	}
	msg := ethereum.CallMsg{From: l.cfg.Signer.From, To: &l.cfg.Addresses.Attestation, Data: data}
	gas, err := l.backend.EstimateGas(ctx, msg)
	if err != nil {
		return 0, classifyRevert(fmt.Errorf("estimate gas: %w", err))
	}
	return gas, nil
}

// SubmitAttest signs and broadcasts attest(to, score). A zero gasLimit is
// estimated by the binding.
func (l *Ledger) SubmitAttest(ctx context.Context, to common.Address, score int, gasLimit uint64) (*types.Transaction, error) {
	return l.transact(ctx, gasLimit, "attest", to, int8(score))
}

// SubmitRevoke signs and broadcasts revokeAttestation(to).
func (l *Ledger) SubmitRevoke(ctx context.Context, to common.Address) (*types.Transaction, error) {
	return l.transact(ctx, 0, "revokeAttestation", to)
}

// AwaitReceipt waits for tx to be mined.
func (l *Ledger) AwaitReceipt(ctx context.Context, tx *types.Transaction) (model.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, l.backend, tx)
	if err != nil {
		return model.Receipt{}, fmt.Errorf("wait mined %s: %w", tx.Hash().Hex(), err)
	}
	var block uint64
	if receipt.BlockNumber != nil {
		block = receipt.BlockNumber.Uint64()
	}
	return model.Receipt{
		Status:      receipt.Status,
		TxHash:      receipt.TxHash.Hex(),
		BlockNumber: block,
	}, nil
}

// transact sends a call to the attestation contract. Fee fields are left to
// the binding, which picks a dynamic-fee transaction once the chain reports a
// base fee.
func (l *Ledger) transact(ctx context.Context, gasLimit uint64, method string, args ...interface{}) (*types.Transaction, error) {
	if l.cfg.Signer == nil {
		return nil, ErrNoSigner
	}
	parsed, err := attestationABI.get()
	if err != nil {
		return nil, fmt.Errorf("parse attestation abi: %w", err)
	}

	opts := *l.cfg.Signer
	opts.Context = ctx
	opts.GasLimit = gasLimit

	// Logs are read through FilterLogs directly, so no filterer is bound.
	contract := bind.NewBoundContract(l.cfg.Addresses.Attestation, parsed, l.backend, l.backend, nil)
	tx, err := contract.Transact(&opts, method, args...)
	if err != nil {
		return nil, classifyRevert(fmt.Errorf("%s: %w", method, err))
	}

	l.logger.Info("transaction sent",
		zap.String("method", method),
		zap.String("tx_hash", tx.Hash().Hex()),
		zap.Uint64("nonce", tx.Nonce()),
		zap.Uint64("gas", tx.Gas()),
	)
	return tx, nil
}
