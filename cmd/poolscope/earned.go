package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

func runEarned(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	chainName, _ := cmd.Flags().GetString("chain")
	gauge, _ := cmd.Flags().GetString("gauge")
	account, _ := cmd.Flags().GetString("account")
	if !common.IsHexAddress(gauge) || !common.IsHexAddress(account) {
		return fmt.Errorf("--gauge and --account must be hex addresses")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	reader, err := a.reader(chainName)
	if err != nil {
		return err
	}
	amount, err := reader.Earned(ctx, common.HexToAddress(gauge), common.HexToAddress(account))
	if err != nil {
		return err
	}
	return printJSON(map[string]string{
		"chain":   chainName,
		"gauge":   common.HexToAddress(gauge).Hex(),
		"account": common.HexToAddress(account).Hex(),
		"earned":  amount.String(),
	})
}
