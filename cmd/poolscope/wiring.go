package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"poolScope/internal/aggregate"
	"poolScope/internal/apy"
	"poolScope/internal/cache"
	"poolScope/internal/chain"
	"poolScope/internal/classify"
	"poolScope/internal/config"
	"poolScope/internal/dex"
	"poolScope/internal/model"
	"poolScope/internal/multicall"
	"poolScope/internal/onchain"
	"poolScope/internal/price"
	"poolScope/internal/risk"
	"poolScope/internal/source"
)

// app holds everything built from config for one process.
type app struct {
	cfg         config.Config
	logger      *zap.Logger
	redis       *redis.Client
	clients     []*chain.Client
	classifiers map[string]*classify.Classifier
	readers     map[string]*onchain.Reader
	aggregator  *aggregate.Aggregator
}

// setup loads config and the logger for a command.
func setup(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	if len(cfg.Chains) == 0 {
		return config.Config{}, nil, fmt.Errorf("no chains configured, set chains in the config file or --rpc")
	}
	return cfg, logger, nil
}

func buildApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	a := &app{
		cfg:         cfg,
		logger:      logger,
		classifiers: make(map[string]*classify.Classifier),
		readers:     make(map[string]*onchain.Reader),
	}

	if cfg.Cache.Backend == "redis" {
		client, err := cache.NewRedisClient(ctx, cache.RedisOptions{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		})
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.redis = client
	}

	external, vaults, err := a.buildIndexers()
	if err != nil {
		a.Close()
		return nil, err
	}
	prices := a.buildPrices()
	engine := apy.NewEngine()

	var sources []aggregate.Source
	for _, ch := range cfg.Chains {
		client, err := chain.NewClient(ctx, ch.Name, ch.RPC)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect rpc %s: %w", ch.Name, err)
		}
		a.clients = append(a.clients, client)

		exec := multicall.NewExecutor(client, hexAddress(ch.Multicall), logger.With(zap.String("chain", ch.Name)))
		classifier := classify.New(ch.Name, exec, hexAddress(ch.Voter), classify.NewInfoCache(), logger)
		reader := onchain.NewReader(onchain.Config{
			Chain:              ch.Name,
			BlocksPerYear:      ch.BlocksPerYear,
			Comptroller:        hexAddress(ch.Comptroller),
			LendingRewardToken: hexAddress(ch.LendingRewardToken),
			Vaults:             vaults,
		}, exec, classifier, dex.NewTokenMetaCache(), prices, engine, logger)
		a.classifiers[ch.Name] = classifier
		a.readers[ch.Name] = reader

		sources = append(sources, aggregate.Source{
			Provider: source.NewOnchainProvider(reader, cfg.MaxRetries, cfg.RetryBackoff, logger),
			Cache:    snapshotCache(a, "onchain_"+ch.Name, cfg.Cache.OnchainTTL, ch.Timeout),
			Timeout:  ch.Timeout,
		})
		if ch.Index != "" {
			sources = append(sources, aggregate.Source{
				Provider: source.NewIndexProvider(ch.Name, exec, hexAddress(ch.Index), cfg.MaxRetries, cfg.RetryBackoff),
				Cache:    snapshotCache(a, "index_"+ch.Name, cfg.Cache.IndexTTL, ch.Timeout),
				Timeout:  ch.Timeout,
			})
		}
	}
	sources = append(sources, external...)

	meta, err := cfg.RiskMetadata()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.aggregator = aggregate.NewAggregator(aggregate.Config{Threshold: cfg.Threshold}, sources, engine, risk.NewEngine(meta), logger)

	logger.Info("pipeline ready",
		zap.Int("chains", len(cfg.Chains)),
		zap.Int("sources", len(sources)),
		zap.String("cache", cfg.Cache.Backend),
	)
	return a, nil
}

func (a *app) buildIndexers() ([]aggregate.Source, apy.VaultYieldSource, error) {
	var out []aggregate.Source
	var vaults apy.VaultYieldSource
	for _, idx := range a.cfg.Indexers {
		httpCfg := source.HTTPConfig{
			Name:       idx.Name,
			BaseURL:    idx.BaseURL,
			Timeout:    idx.Timeout,
			RPS:        idx.RPS,
			Burst:      idx.Burst,
			MaxRetries: a.cfg.MaxRetries,
			RetryDelay: a.cfg.RetryBackoff,
			Chains:     idx.Chains,
		}

		var provider source.Provider
		switch idx.Kind {
		case config.IndexerDefiLlama:
			listing := cache.New[[]source.LlamaPool]("listing_"+idx.Name, newStore[[]source.LlamaPool](a), a.cfg.Cache.ExternalTTL, cache.WithLogger(a.logger))
			llama := source.NewLlamaProvider(httpCfg, listing, idx.ChainNames, a.logger)
			if vaults == nil {
				vaults = llama
			}
			provider = llama
		case config.IndexerJSON:
			p, err := source.NewIndexerProvider(httpCfg, a.logger)
			if err != nil {
				return nil, nil, err
			}
			provider = p
		default:
			return nil, nil, fmt.Errorf("indexer %s: unknown kind %q", idx.Name, idx.Kind)
		}

		out = append(out, aggregate.Source{
			Provider: provider,
			Cache:    snapshotCache(a, "external_"+idx.Name, a.cfg.Cache.ExternalTTL, idx.Timeout),
			Timeout:  idx.Timeout,
		})
	}
	return out, vaults, nil
}

func (a *app) buildPrices() price.Oracle {
	var oracles price.Chain
	if len(a.cfg.Prices.Static) > 0 {
		oracles = append(oracles, price.NewStatic(a.cfg.Prices.Static))
	}
	if a.cfg.Prices.Llama {
		priceCache := cache.New[decimal.Decimal]("prices", newStore[decimal.Decimal](a), a.cfg.Cache.PriceTTL, cache.WithLogger(a.logger))
		oracles = append(oracles, price.NewLlama(price.LlamaConfig{
			BaseURL:    a.cfg.Prices.LlamaURL,
			RPS:        a.cfg.Prices.RPS,
			ChainNames: a.cfg.Prices.ChainNames,
		}, priceCache, a.logger))
	}
	if len(oracles) == 0 {
		a.logger.Warn("no price oracle configured, TVL and APY will be unknown for most pools")
		return nil
	}
	return oracles
}

func (a *app) Close() {
	for _, client := range a.clients {
		client.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}

func (a *app) reader(chainName string) (*onchain.Reader, error) {
	reader, ok := a.readers[chainName]
	if !ok {
		return nil, fmt.Errorf("chain %q is not configured", chainName)
	}
	return reader, nil
}

// newStore returns a Redis store when configured. nil selects the in-memory default.
func newStore[V any](a *app) cache.Store[V] {
	if a.redis == nil {
		return nil
	}
	return cache.NewRedisStore[V](a.redis, "poolscope:")
}

// snapshotCache bounds shared fetches by the source timeout; zero keeps the cache default.
func snapshotCache(a *app, name string, ttl, timeout time.Duration) *cache.Cache[model.SourceSnapshot] {
	return cache.New[model.SourceSnapshot]("snapshot_"+name, newStore[model.SourceSnapshot](a), ttl,
		cache.WithLogger(a.logger), cache.WithFetchTimeout(timeout))
}

func hexAddress(value string) common.Address {
	if value == "" || !common.IsHexAddress(value) {
		return common.Address{}
	}
	return common.HexToAddress(value)
}
