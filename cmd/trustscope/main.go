package main

import (
	"context"
	"fmt"
	"math/big"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"trustScope/internal/chain"
	"trustScope/internal/config"
	"trustScope/internal/contracts"
)

func main() {
	root := &cobra.Command{
		Use:          "trustscope",
		Short:        "Attestation mirror and reconciliation toolkit",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newAttestCmd(),
		newRevokeCmd(),
		newSyncProjectCmd(),
		newSymbolCmd(),
		newBackfillCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addChainFlags(cmd *cobra.Command, withSigner bool) {
	cmd.Flags().String("rpc", "", "Ethereum RPC URL")
	cmd.Flags().String("attestation-address", "", "Attestation contract address")
	cmd.Flags().String("project-registry-address", "", "ProjectRegistry contract address")
	cmd.Flags().String("project-rewards-address", "", "ProjectRewards contract address")
	cmd.Flags().Uint64("deploy-block", 0, "block the contracts were deployed at")
	if withSigner {
		cmd.Flags().String("private-key", "", "hex private key used to sign transactions")
	}
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

// redactDSN keeps the scheme and host of a connection URL and drops the rest.
func redactDSN(dsn string) string {
	if dsn == "" {
		return dsn
	}
	u, err := url.Parse(dsn)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Scheme + "://***@" + u.Host
}

func parseAddress(name, value string, required bool) (common.Address, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		if required {
			return common.Address{}, fmt.Errorf("%s is required", name)
		}
		return common.Address{}, nil
	}
	if !common.IsHexAddress(value) {
		return common.Address{}, fmt.Errorf("invalid %s: %s", name, value)
	}
	return common.HexToAddress(value), nil
}

type ledgerNeeds struct {
	attestation bool
	projects    bool
	signer      bool
}

// openLedger dials the RPC endpoint and builds a Ledger with the contracts
// and signer the command needs. The caller closes the client.
func openLedger(ctx context.Context, cfg config.ChainConfig, needs ledgerNeeds, logger *zap.Logger) (*chain.Client, *contracts.Ledger, error) {
	if cfg.RPCURL == "" {
		return nil, nil, fmt.Errorf("rpc url is required")
	}

	attestation, err := parseAddress("attestation address", cfg.AttestationAddress, needs.attestation)
	if err != nil {
		return nil, nil, err
	}
	registry, err := parseAddress("project registry address", cfg.ProjectRegistryAddress, needs.projects)
	if err != nil {
		return nil, nil, err
	}
	rewards, err := parseAddress("project rewards address", cfg.ProjectRewardsAddress, needs.projects)
	if err != nil {
		return nil, nil, err
	}

	client, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect rpc: %w", err)
	}

	ledgerCfg := contracts.LedgerConfig{
		Addresses: contracts.Addresses{
			Attestation:     attestation,
			ProjectRegistry: registry,
			ProjectRewards:  rewards,
		},
		DeployBlock: cfg.DeployBlock,
	}

	if needs.signer {
		chainID, err := client.GetChainID(ctx)
		if err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("get chain id: %w", err)
		}
		signer, err := contracts.NewSigner(cfg.PrivateKey, new(big.Int).Set(chainID))
		if err != nil {
			client.Close()
			return nil, nil, err
		}
		ledgerCfg.Signer = signer
		logger.Info("signer loaded", zap.String("address", signer.From.Hex()), zap.String("chain_id", chainID.String()))
	}

	return client, contracts.NewLedger(client, ledgerCfg, logger), nil
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
