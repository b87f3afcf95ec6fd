package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"trustScope/internal/chain"
	"trustScope/internal/config"
	"trustScope/internal/mirrorclient"
	"trustScope/internal/reconcile"
)

func addClientFlags(cmd *cobra.Command) {
	cmd.Flags().String("mirror-url", "http://localhost:8080", "mirror API base URL")
	cmd.Flags().Duration("timeout", 0, "overall command timeout (0 uses the configured default)")
	addChainFlags(cmd, true)
}

func newAttestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attest",
		Short: "Attest to a wallet, reconciling the mirror with the ledger first",
		RunE:  runAttest,
	}
	cmd.Flags().String("to", "", "wallet to attest to")
	cmd.Flags().Int("score", 0, "trust score in [-127, 127]")
	cmd.Flags().String("comment", "", "optional comment")
	addClientFlags(cmd)
	return cmd
}

func newRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke an attestation on chain and in the mirror",
		RunE:  runRevoke,
	}
	cmd.Flags().String("to", "", "wallet whose attestation is revoked")
	addClientFlags(cmd)
	return cmd
}

func newSyncProjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync-project",
		Short: "Copy on-chain project approval and stake totals into the mirror",
		RunE:  runSyncProject,
	}
	cmd.Flags().Int64("project-id", -1, "project id")
	addClientFlags(cmd)
	return cmd
}

type clientEnv struct {
	cfg    config.ClientConfig
	logger *zap.Logger
	chain  *chain.Client
	flow   *reconcile.Flow
}

func (e *clientEnv) close() {
	if e.chain != nil {
		e.chain.Close()
	}
	_ = e.logger.Sync()
}

func newClientEnv(ctx context.Context, cmd *cobra.Command, needs ledgerNeeds) (*clientEnv, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadClient(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	if cfg.MirrorURL == "" {
		return nil, fmt.Errorf("mirror url is required")
	}

	client, ledger, err := openLedger(ctx, cfg.Chain, needs, logger)
	if err != nil {
		return nil, err
	}

	m := mirrorclient.New(mirrorclient.Config{BaseURL: cfg.MirrorURL, Logger: logger})
	return &clientEnv{
		cfg:    cfg,
		logger: logger,
		chain:  client,
		flow:   reconcile.NewFlow(ledger, m, logger, nil),
	}, nil
}

func runAttest(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := newClientEnv(ctx, cmd, ledgerNeeds{attestation: true, signer: true})
	if err != nil {
		return err
	}
	defer env.close()

	to, _ := cmd.Flags().GetString("to")
	score, _ := cmd.Flags().GetInt("score")
	var comment *string
	if cmd.Flags().Changed("comment") {
		c, _ := cmd.Flags().GetString("comment")
		comment = &c
	}

	ctx, cancel := withTimeout(ctx, env.cfg.Timeout)
	defer cancel()

	res, err := env.flow.Attest(ctx, to, score, comment)
	if err != nil {
		env.logger.Error("attest failed", zap.String("decision", string(res.Decision)), zap.Error(err))
		return errors.New(reconcile.UserMessage(err))
	}
	return printJSON(cmd, res)
}

func runRevoke(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := newClientEnv(ctx, cmd, ledgerNeeds{attestation: true, signer: true})
	if err != nil {
		return err
	}
	defer env.close()

	to, _ := cmd.Flags().GetString("to")

	ctx, cancel := withTimeout(ctx, env.cfg.Timeout)
	defer cancel()

	res, err := env.flow.Revoke(ctx, to)
	if err != nil {
		env.logger.Error("revoke failed", zap.String("tx_hash", res.TxHash), zap.Error(err))
		return errors.New(reconcile.UserMessage(err))
	}
	return printJSON(cmd, res)
}

func runSyncProject(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	projectID, _ := cmd.Flags().GetInt64("project-id")
	if projectID < 0 {
		return fmt.Errorf("project id is required")
	}

	env, err := newClientEnv(ctx, cmd, ledgerNeeds{projects: true})
	if err != nil {
		return err
	}
	defer env.close()

	ctx, cancel := withTimeout(ctx, env.cfg.Timeout)
	defer cancel()

	project, changed, err := env.flow.SyncProject(ctx, projectID)
	if err != nil {
		return err
	}
	env.logger.Info("sync project done", zap.Int64("project_id", projectID), zap.Bool("changed", changed))
	return printJSON(cmd, project)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
