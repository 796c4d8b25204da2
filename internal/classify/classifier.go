package classify

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"poolScope/internal/dex"
	"poolScope/internal/model"
	"poolScope/internal/multicall"
)

// Info holds the immutable facts learned while classifying a pool.
type Info struct {
	Type   model.PoolType   `json:"pool_type"`
	// Tokens are the pool's token0/token1 when present.
	Tokens []common.Address `json:"tokens,omitempty"`
	Gauge  common.Address   `json:"gauge"`
	// Asset is the ERC-4626 asset or the lending market underlying.
	Asset  common.Address   `json:"asset"`
	Stable bool             `json:"stable,omitempty"`
}

// HasGauge reports whether a reward gauge was found.
func (i Info) HasGauge() bool {
	return i.Gauge != (common.Address{})
}

// InfoCache caches classification results by pool id. Entries never expire.
type InfoCache struct {
	mu   sync.RWMutex
	data map[string]Info
}

func NewInfoCache() *InfoCache {
	return &InfoCache{data: make(map[string]Info)}
}

func (c *InfoCache) Get(id string) (Info, bool) {
	c.mu.RLock()
	info, ok := c.data[id]
	c.mu.RUnlock()
	return info, ok
}

func (c *InfoCache) Set(id string, info Info) {
	c.mu.Lock()
	c.data[id] = info
	c.mu.Unlock()
}

// Classifier determines a pool's type with a single probe batch.
type Classifier struct {
	chain   string
	batcher multicall.Batcher
	voter   common.Address
	cache   *InfoCache
	logger  *zap.Logger
}

// New creates a classifier for one chain. voter may be the zero address.
func New(chain string, batcher multicall.Batcher, voter common.Address, cache *InfoCache, logger *zap.Logger) *Classifier {
	if cache == nil {
		cache = NewInfoCache()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{chain: chain, batcher: batcher, voter: voter, cache: cache, logger: logger}
}

// probe positions inside the batch
const (
	pLiquidity = iota
	pSlot0
	pStakedLiquidity
	pGauge
	pReserves
	pToken0
	pToken1
	pStable
	pSupplyRate
	pBorrowRate
	pUnderlying
	pTotalAssets
	pConvertToAssets
	pAsset
	pVoterGauge
)

var oneShare = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Classify returns the pool's type and immutable facts. A non-empty hint other than
// unknown fixes the type; the remaining facts are still probed. gauge overrides
// gauge discovery when non-zero.
func (c *Classifier) Classify(ctx context.Context, pool common.Address, hint model.PoolType, gauge common.Address) (Info, error) {
	id := model.PoolID(c.chain, pool.Hex())
	if info, ok := c.cache.Get(id); ok {
		return applyOverrides(info, hint, gauge), nil
	}

	calls, err := c.probeCalls(pool)
	if err != nil {
		return Info{}, err
	}
	results, err := c.batcher.Execute(ctx, calls)
	if err != nil {
		return Info{}, fmt.Errorf("classify %s: %w", id, err)
	}

	info := interpret(results)
	if !info.HasGauge() && len(results) > pVoterGauge {
		info.Gauge = nonZeroAddress(results[pVoterGauge])
	}
	// unknown may mean not deployed yet or a temporary revert; probe again next time
	if info.Type != model.PoolTypeUnknown {
		c.cache.Set(id, info)
	}

	c.logger.Debug("pool classified",
		zap.String("pool", id),
		zap.String("type", string(info.Type)),
		zap.String("gauge", info.Gauge.Hex()),
	)
	return applyOverrides(info, hint, gauge), nil
}

func applyOverrides(info Info, hint model.PoolType, gauge common.Address) Info {
	if hint != "" && hint != model.PoolTypeUnknown {
		info.Type = hint
	}
	if gauge != (common.Address{}) {
		info.Gauge = gauge
	}
	return info
}

func (c *Classifier) probeCalls(pool common.Address) ([]multicall.CallSpec, error) {
	poolABI, err := dex.PoolABI()
	if err != nil {
		return nil, fmt.Errorf("parse pool abi: %w", err)
	}
	lendingABI, err := dex.LendingABI()
	if err != nil {
		return nil, fmt.Errorf("parse lending abi: %w", err)
	}
	vaultABI, err := dex.VaultABI()
	if err != nil {
		return nil, fmt.Errorf("parse vault abi: %w", err)
	}

	type probe struct {
		abiName string
		method  string
		args    []interface{}
	}
	probes := []probe{
		pLiquidity:       {"pool", "liquidity", nil},
		pSlot0:           {"pool", "slot0", nil},
		pStakedLiquidity: {"pool", "stakedLiquidity", nil},
		pGauge:           {"pool", "gauge", nil},
		pReserves:        {"pool", "getReserves", nil},
		pToken0:          {"pool", "token0", nil},
		pToken1:          {"pool", "token1", nil},
		pStable:          {"pool", "stable", nil},
		pSupplyRate:      {"lending", "supplyRatePerBlock", nil},
		pBorrowRate:      {"lending", "borrowRatePerBlock", nil},
		pUnderlying:      {"lending", "underlying", nil},
		pTotalAssets:     {"vault", "totalAssets", nil},
		pConvertToAssets: {"vault", "convertToAssets", []interface{}{oneShare}},
		pAsset:           {"vault", "asset", nil},
	}

	calls := make([]multicall.CallSpec, 0, len(probes)+1)
	for _, p := range probes {
		parsed := poolABI
		switch p.abiName {
		case "lending":
			parsed = lendingABI
		case "vault":
			parsed = vaultABI
		}
		call, err := multicall.NewCall(pool, parsed, p.method, true, p.args...)
		if err != nil {
			return nil, err
		}
		calls = append(calls, call)
	}

	if c.voter != (common.Address{}) {
		voterABI, err := dex.VoterABI()
		if err != nil {
			return nil, fmt.Errorf("parse voter abi: %w", err)
		}
		call, err := multicall.NewCall(c.voter, voterABI, "gauges", true, pool)
		if err != nil {
			return nil, err
		}
		calls = append(calls, call)
	}
	return calls, nil
}

func interpret(results []multicall.Result) Info {
	ok := func(i int) bool { return i < len(results) && results[i].Success }

	info := Info{Type: model.PoolTypeUnknown}
	switch {
	case ok(pLiquidity) && ok(pSlot0):
		info.Type = model.PoolTypeConcentrated
	case ok(pReserves) && ok(pToken0) && ok(pToken1):
		info.Type = model.PoolTypeConstantProduct
	case ok(pSupplyRate) && ok(pBorrowRate):
		info.Type = model.PoolTypeLending
	case ok(pTotalAssets) && ok(pConvertToAssets):
		info.Type = model.PoolTypeVault
	}

	for _, i := range []int{pToken0, pToken1} {
		if token := nonZeroAddress(results[i]); token != (common.Address{}) {
			info.Tokens = append(info.Tokens, token)
		}
	}
	if ok(pStable) {
		info.Stable, _ = results[pStable].Value.(bool)
	}
	info.Asset = nonZeroAddress(results[pUnderlying])
	if info.Asset == (common.Address{}) {
		info.Asset = nonZeroAddress(results[pAsset])
	}

	info.Gauge = nonZeroAddress(results[pGauge])
	return info
}

func nonZeroAddress(res multicall.Result) common.Address {
	if !res.Success {
		return common.Address{}
	}
	addr, err := multicall.AsAddress(res.Value)
	if err != nil {
		return common.Address{}
	}
	return addr
}
