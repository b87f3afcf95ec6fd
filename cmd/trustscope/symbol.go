package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"trustScope/internal/config"
	"trustScope/internal/symbol"
)

func newSymbolCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "symbol <token-address>...",
		Short: "Resolve ERC-20 token symbols",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runSymbol,
	}
	cmd.Flags().String("rpc", "", "Ethereum RPC URL")
	return cmd
}

func runSymbol(cmd *cobra.Command, args []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	chainCfg, level, err := config.LoadChain(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(level)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, ledger, err := openLedger(ctx, chainCfg, ledgerNeeds{}, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	resolver := symbol.NewResolver(ledger, symbol.WithLogger(logger))
	for _, address := range args {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", address, resolver.Resolve(ctx, address))
	}
	return nil
}
