package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"poolScope/internal/model"
	"poolScope/internal/storage"
	"poolScope/internal/storage/postgres"
)

func runInspect(cmd *cobra.Command, _ []string) error {
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

	qctx, cancel := context.WithTimeout(ctx, cfg.QueryTimeout)
	defer cancel()
	record, err := a.aggregator.Aggregate(qctx, ref)
	if err != nil {
		return err
	}

	var sinks storage.Multi
	if cfg.Out != "" {
		sinks = append(sinks, storage.NewJsonlStorage(cfg.Out))
	}
	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		sinks = append(sinks, store)
	}
	if err := sinks.PutRecords(ctx, []model.PoolRecord{record}); err != nil {
		return err
	}

	logger.Info("pool inspected",
		zap.String("pool", record.PoolID),
		zap.String("status", string(record.Status)),
		zap.String("risk", string(record.Risk.Level)),
	)
	return printJSON(record)
}

func poolRefFromFlags(cmd *cobra.Command) (model.PoolRef, error) {
	chainName, _ := cmd.Flags().GetString("chain")
	address, _ := cmd.Flags().GetString("address")
	if chainName == "" {
		return model.PoolRef{}, fmt.Errorf("--chain is required")
	}
	if !common.IsHexAddress(address) {
		return model.PoolRef{}, fmt.Errorf("--address must be a hex address")
	}
	ref := model.PoolRef{Chain: chainName, Address: address}

	if cmd.Flags().Lookup("protocol") != nil {
		ref.Protocol, _ = cmd.Flags().GetString("protocol")
	}
	if cmd.Flags().Lookup("gauge") != nil {
		ref.Gauge, _ = cmd.Flags().GetString("gauge")
	}
	if cmd.Flags().Lookup("type") != nil {
		raw, _ := cmd.Flags().GetString("type")
		hint, ok := model.ParsePoolType(raw)
		if !ok {
			return model.PoolRef{}, fmt.Errorf("unknown pool type %q", raw)
		}
		ref.TypeHint = hint
	}
	return ref, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
