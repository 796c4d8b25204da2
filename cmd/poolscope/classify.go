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

type classifyOutput struct {
	Pool   string           `json:"pool"`
	Chain  string           `json:"chain"`
	Type   string           `json:"pool_type"`
	Tokens []common.Address `json:"tokens,omitempty"`
	Gauge  *common.Address  `json:"gauge,omitempty"`
	Asset  *common.Address  `json:"asset,omitempty"`
	Stable bool             `json:"stable,omitempty"`
}

func runClassify(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ref, err := poolRefFromFlags(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	classifier, ok := a.classifiers[ref.Chain]
	if !ok {
		return fmt.Errorf("chain %q is not configured", ref.Chain)
	}
	pool := common.HexToAddress(ref.Address)
	info, err := classifier.Classify(ctx, pool, "", common.Address{})
	if err != nil {
		return err
	}

	out := classifyOutput{
		Pool:   pool.Hex(),
		Chain:  ref.Chain,
		Type:   string(info.Type),
		Tokens: info.Tokens,
		Stable: info.Stable,
	}
	if info.HasGauge() {
		out.Gauge = &info.Gauge
	}
	if info.Asset != (common.Address{}) {
		out.Asset = &info.Asset
	}
	return printJSON(out)
}
