package onchain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"poolScope/internal/apy"
	"poolScope/internal/classify"
	"poolScope/internal/dex"
	"poolScope/internal/model"
	"poolScope/internal/multicall"
	"poolScope/internal/price"
)

// Config holds per-chain settings for the reader.
type Config struct {
	Chain         string
	BlocksPerYear int64
	// Comptroller and LendingRewardToken enable lending reward rates when both are set.
	Comptroller        common.Address
	LendingRewardToken common.Address
	Vaults             apy.VaultYieldSource
	Now                func() time.Time
}

// Reading is one on-chain view of a pool with its computed APY.
type Reading struct {
	Pool               model.Pool
	APY                model.APYResult
	YearlyEmissionsUSD float64
}

// Reader turns a pool reference into a priced Pool and APY using batched reads.
type Reader struct {
	cfg        Config
	batcher    multicall.Batcher
	classifier *classify.Classifier
	tokens     *dex.TokenMetaCache
	prices     price.Oracle
	engine     *apy.Engine
	logger     *zap.Logger
}

func NewReader(cfg Config, batcher multicall.Batcher, classifier *classify.Classifier, tokens *dex.TokenMetaCache, prices price.Oracle, engine *apy.Engine, logger *zap.Logger) *Reader {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if tokens == nil {
		tokens = dex.NewTokenMetaCache()
	}
	if engine == nil {
		engine = apy.NewEngine()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{
		cfg:        cfg,
		batcher:    batcher,
		classifier: classifier,
		tokens:     tokens,
		prices:     prices,
		engine:     engine,
		logger:     logger,
	}
}

// Chain returns the chain this reader serves.
func (r *Reader) Chain() string {
	return r.cfg.Chain
}

// Read classifies the pool, reads its state, prices it and computes the APY.
func (r *Reader) Read(ctx context.Context, ref model.PoolRef) (Reading, error) {
	if !common.IsHexAddress(ref.Address) {
		return Reading{}, fmt.Errorf("invalid pool address %q", ref.Address)
	}
	addr := common.HexToAddress(ref.Address)
	var gaugeOverride common.Address
	if ref.Gauge != "" {
		if !common.IsHexAddress(ref.Gauge) {
			return Reading{}, fmt.Errorf("invalid gauge address %q", ref.Gauge)
		}
		gaugeOverride = common.HexToAddress(ref.Gauge)
	}

	info, err := r.classifier.Classify(ctx, addr, ref.TypeHint, gaugeOverride)
	if err != nil {
		return Reading{}, err
	}

	pool := model.Pool{
		ID:             model.PoolID(r.cfg.Chain, addr.Hex()),
		Chain:          r.cfg.Chain,
		Address:        addr.Hex(),
		Type:           info.Type,
		LastVerifiedAt: r.cfg.Now().UTC(),
	}
	if info.HasGauge() {
		pool.Gauge = info.Gauge.Hex()
	}

	var in apy.Inputs
	switch info.Type {
	case model.PoolTypeConstantProduct:
		in, err = r.readConstantProduct(ctx, addr, info, &pool)
	case model.PoolTypeConcentrated:
		in, err = r.readConcentrated(ctx, addr, info, &pool)
	case model.PoolTypeLending:
		in, err = r.readLending(ctx, addr, info, &pool)
	case model.PoolTypeVault:
		in, err = r.readVault(ctx, addr, info, &pool)
	default:
		in, err = r.readUnknown(ctx, addr, &pool)
	}
	if err != nil {
		return Reading{}, fmt.Errorf("read %s: %w", pool.ID, err)
	}

	in.PoolID = pool.ID
	pool.TVLUSD = round(in.TVLUSD, 2)
	pool.StakedRatio = model.ClampRatio(in.StakedRatio.InexactFloat64())
	res := r.engine.Compute(info.Type, in)

	r.logger.Debug("pool read",
		zap.String("pool", pool.ID),
		zap.String("type", string(pool.Type)),
		zap.Float64("tvl_usd", pool.TVLUSD),
		zap.String("apy", apy.Describe(res)),
	)

	return Reading{
		Pool:               pool,
		APY:                res,
		YearlyEmissionsUSD: round(in.YearlyEmissionsUSD, 2),
	}, nil
}

// Earned returns the pending gauge rewards of account, in reward token base units.
func (r *Reader) Earned(ctx context.Context, gauge, account common.Address) (*big.Int, error) {
	gaugeABI, err := dex.GaugeABI()
	if err != nil {
		return nil, fmt.Errorf("parse gauge abi: %w", err)
	}
	call, err := multicall.NewCall(gauge, gaugeABI, "earned", false, account)
	if err != nil {
		return nil, err
	}
	results, err := r.batcher.Execute(ctx, []multicall.CallSpec{call})
	if err != nil {
		return nil, err
	}
	return multicall.AsBigInt(results[0].Value)
}

// market holds token metadata and USD prices for one read.
type market struct {
	metas  map[common.Address]model.TokenMeta
	prices map[common.Address]decimal.Decimal
}

func (r *Reader) loadMarket(ctx context.Context, tokens ...common.Address) (market, error) {
	metas, err := dex.FetchTokenMetas(ctx, r.batcher, tokens, r.tokens, r.logger)
	if err != nil {
		return market{}, err
	}
	m := market{metas: metas, prices: map[common.Address]decimal.Decimal{}}
	if r.prices == nil {
		return m, nil
	}
	wanted := make([]common.Address, 0, len(tokens))
	for _, token := range tokens {
		if token != (common.Address{}) {
			wanted = append(wanted, token)
		}
	}
	prices, err := r.prices.Prices(ctx, r.cfg.Chain, wanted)
	if err != nil {
		r.logger.Warn("price lookup failed", zap.String("chain", r.cfg.Chain), zap.Error(err))
		return m, nil
	}
	m.prices = prices
	return m, nil
}

// value converts a raw amount of token into USD. ok is false when decimals or price are unknown.
func (m market) value(token common.Address, raw *big.Int) (decimal.Decimal, bool) {
	meta, ok := m.metas[token]
	if !ok {
		return decimal.Zero, false
	}
	p, ok := m.prices[token]
	if !ok {
		return decimal.Zero, false
	}
	return apy.TokenAmount(raw, meta.Decimals).Mul(p), true
}

func (m market) tokenList(tokens ...common.Address) []model.TokenMeta {
	out := make([]model.TokenMeta, 0, len(tokens))
	for _, token := range tokens {
		if meta, ok := m.metas[token]; ok {
			out = append(out, meta)
		}
	}
	return out
}

// emission values a gauge reward stream and records it on pool.
func (r *Reader) emission(m market, pool *model.Pool, rewardToken common.Address, rate *big.Int, periodFinish int64) (decimal.Decimal, string) {
	if rewardToken == (common.Address{}) || rate == nil {
		return decimal.Zero, "gauge reward token"
	}
	meta, ok := m.metas[rewardToken]
	if !ok {
		return decimal.Zero, "decimals for reward token " + rewardToken.Hex()
	}
	p, ok := m.prices[rewardToken]
	if !ok {
		return decimal.Zero, "price for reward token " + rewardToken.Hex()
	}
	yearly := apy.YearlyEmissionsUSD(rate, meta.Decimals, p, periodFinish, r.cfg.Now())
	pool.Emission = &model.Emission{
		RewardToken:   rewardToken.Hex(),
		RatePerSecond: rate.String(),
		PeriodFinish:  periodFinish,
		YearlyUSD:     round(yearly, 2),
	}
	return yearly, ""
}

func bigAt(results []multicall.Result, i int) (*big.Int, bool) {
	if i < 0 || i >= len(results) || !results[i].Success {
		return nil, false
	}
	n, err := multicall.AsBigInt(results[i].Value)
	if err != nil {
		return nil, false
	}
	return n, true
}

func addressAt(results []multicall.Result, i int) (common.Address, bool) {
	if i < 0 || i >= len(results) || !results[i].Success {
		return common.Address{}, false
	}
	addr, err := multicall.AsAddress(results[i].Value)
	if err != nil {
		return common.Address{}, false
	}
	return addr, true
}

func ratio(numerator, denominator *big.Int) decimal.Decimal {
	if numerator == nil || denominator == nil || denominator.Sign() == 0 {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(numerator, 0).DivRound(decimal.NewFromBigInt(denominator, 0), 18)
}

func round(d decimal.Decimal, places int32) float64 {
	return d.Round(places).InexactFloat64()
}
