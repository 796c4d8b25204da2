package source

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"poolScope/internal/cache"
	"poolScope/internal/model"
)

const DefaultLlamaYieldsURL = "https://yields.llama.fi"

// LlamaPool is one entry of the DefiLlama yields /pools response.
type LlamaPool struct {
	Chain            string   `json:"chain"`
	Project          string   `json:"project"`
	Symbol           string   `json:"symbol"`
	PoolID           string   `json:"pool"`
	TVLUSD           float64  `json:"tvlUsd"`
	APY              *float64 `json:"apy"`
	APYBase          *float64 `json:"apyBase"`
	APYReward        *float64 `json:"apyReward"`
	PoolMeta         string   `json:"poolMeta"`
	UnderlyingTokens []string `json:"underlyingTokens"`
}

type llamaPoolsResponse struct {
	Status string      `json:"status"`
	Data   []LlamaPool `json:"data"`
}

// LlamaProvider matches pools against the DefiLlama yields listing.
// The full listing is fetched once per cache TTL and shared by all lookups.
type LlamaProvider struct {
	getter     *httpGetter
	baseURL    string
	listing    *cache.Cache[[]LlamaPool]
	chainNames map[string]string
	now        func() time.Time
}

func NewLlamaProvider(cfg HTTPConfig, listing *cache.Cache[[]LlamaPool], chainNames map[string]string, logger *zap.Logger) *LlamaProvider {
	if cfg.Name == "" {
		cfg.Name = "defillama"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultLlamaYieldsURL
	}
	cfg = cfg.withDefaults()
	if listing == nil {
		listing = cache.New[[]LlamaPool]("llama_listing", nil, 10*time.Minute)
	}
	return &LlamaProvider{
		getter:     newHTTPGetter(cfg, logger),
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		listing:    listing,
		chainNames: chainNames,
		now:        time.Now,
	}
}

func (p *LlamaProvider) Name() string { return p.getter.cfg.Name }

func (p *LlamaProvider) Priority() int { return PriorityExternal }

func (p *LlamaProvider) Supports(chain string) bool { return p.getter.cfg.supports(chain) }

func (p *LlamaProvider) Fetch(ctx context.Context, ref model.PoolRef) (model.SourceSnapshot, error) {
	entry, err := p.listing.Get(ctx, "pools", func(ctx context.Context) ([]LlamaPool, error) {
		var resp llamaPoolsResponse
		if err := p.getter.getJSON(ctx, p.baseURL+"/pools", &resp); err != nil {
			return nil, err
		}
		return resp.Data, nil
	})
	if err != nil {
		return model.SourceSnapshot{}, err
	}

	match, ok := p.match(entry.Value, ref)
	if !ok {
		return model.SourceSnapshot{}, ErrNotFound
	}

	snap := model.SourceSnapshot{
		Source:    p.Name(),
		Priority:  p.Priority(),
		Symbol:    match.Symbol,
		TVLUSD:    match.TVLUSD,
		APYStatus: model.APYUnknown,
		APYReason: "apy not reported",
		FetchedAt: nowUTC(p.now),
	}
	if value, ok := llamaAPY(match); ok {
		snap.APYPercent = value
		snap.APYStatus = model.APYEstimated
		snap.APYReason = "reported by " + p.Name()
	}
	return snap, nil
}

// VaultAPY looks a share vault up in the listing, so the on-chain reader can price vault yields.
func (p *LlamaProvider) VaultAPY(ctx context.Context, chain string, vault common.Address) (float64, bool, error) {
	snap, err := p.Fetch(ctx, model.PoolRef{Chain: chain, Address: vault.Hex()})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	if !snap.UsableAPY() {
		return 0, false, nil
	}
	return snap.APYPercent, true, nil
}

func llamaAPY(pool LlamaPool) (float64, bool) {
	if pool.APY != nil {
		return *pool.APY, true
	}
	if pool.APYBase == nil && pool.APYReward == nil {
		return 0, false
	}
	total := 0.0
	if pool.APYBase != nil {
		total += *pool.APYBase
	}
	if pool.APYReward != nil {
		total += *pool.APYReward
	}
	return total, true
}

// match picks the largest pool on the chain whose id or metadata carries the address.
// Pools listing the address among their underlying tokens are used only when
// nothing matches directly. A protocol on ref narrows the candidates when it
// matches any of them.
func (p *LlamaProvider) match(pools []LlamaPool, ref model.PoolRef) (LlamaPool, bool) {
	chainName := ref.Chain
	if mapped, ok := p.chainNames[ref.Chain]; ok && mapped != "" {
		chainName = mapped
	}
	addr := strings.ToLower(ref.Address)

	var candidates, underlying []LlamaPool
	for _, pool := range pools {
		if !strings.EqualFold(pool.Chain, chainName) {
			continue
		}
		switch {
		case strings.Contains(strings.ToLower(pool.PoolID), addr), strings.Contains(strings.ToLower(pool.PoolMeta), addr):
			candidates = append(candidates, pool)
		case hasUnderlying(pool, addr):
			underlying = append(underlying, pool)
		}
	}
	if len(candidates) == 0 {
		candidates = underlying
	}
	if len(candidates) == 0 {
		return LlamaPool{}, false
	}

	if ref.Protocol != "" {
		var narrowed []LlamaPool
		for _, pool := range candidates {
			if strings.EqualFold(pool.Project, ref.Protocol) {
				narrowed = append(narrowed, pool)
			}
		}
		if len(narrowed) > 0 {
			candidates = narrowed
		}
	}

	best := candidates[0]
	for _, pool := range candidates[1:] {
		if pool.TVLUSD > best.TVLUSD {
			best = pool
		}
	}
	return best, true
}

func hasUnderlying(pool LlamaPool, addr string) bool {
	for _, token := range pool.UnderlyingTokens {
		if strings.EqualFold(token, addr) {
			return true
		}
	}
	return false
}
