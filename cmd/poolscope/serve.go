package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"poolScope/internal/api"
	"poolScope/internal/config"
	"poolScope/internal/storage"
	"poolScope/internal/storage/postgres"
	"poolScope/internal/watch"
)

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	pools, err := config.ParseWatchlist(cfg.Watch.Pools)
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

	var sinks storage.Multi
	var state watch.StateStore
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
		state = &watch.DBStateStore{Store: store, Name: "refresher"}
	}
	if cfg.StateFile != "" {
		state = &watch.FileStateStore{Path: cfg.StateFile}
	}

	refresher, err := watch.NewRefresher(watch.Config{
		Schedule:    cfg.Watch.Schedule,
		Concurrency: cfg.Watch.Concurrency,
		Pools:       pools,
	}, a.aggregator, sinks, state, logger)
	if err != nil {
		return err
	}

	server := api.NewServer(a.aggregator, refresher, cfg.QueryTimeout, logger)

	logger.Info("serve start",
		zap.String("listen", cfg.Listen),
		zap.Int("watch_pools", len(pools)),
		zap.String("schedule", cfg.Watch.Schedule),
		zap.Bool("postgres", cfg.PGDSN != ""),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if len(pools) == 0 {
			return nil
		}
		if err := refresher.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		refresher.Stop()
		return nil
	})
	g.Go(func() error {
		return server.Run(gctx, cfg.Listen)
	})
	return g.Wait()
}
