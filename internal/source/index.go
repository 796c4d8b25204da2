package source

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"poolScope/internal/chain"
	"poolScope/internal/dex"
	"poolScope/internal/model"
	"poolScope/internal/multicall"
)

// IndexProvider reads precomputed pool figures from an on-chain index contract.
// USD values are 1e18 fixed point, APY is in basis points.
type IndexProvider struct {
	chain      string
	batcher    multicall.Batcher
	address    common.Address
	maxRetries int
	backoff    time.Duration
	now        func() time.Time
}

func NewIndexProvider(chain string, batcher multicall.Batcher, address common.Address, maxRetries int, backoff time.Duration) *IndexProvider {
	return &IndexProvider{
		chain:      chain,
		batcher:    batcher,
		address:    address,
		maxRetries: maxRetries,
		backoff:    backoff,
		now:        time.Now,
	}
}

func (p *IndexProvider) Name() string { return "index" }

func (p *IndexProvider) Priority() int { return PriorityIndex }

func (p *IndexProvider) Supports(chain string) bool { return chain == p.chain }

func (p *IndexProvider) Fetch(ctx context.Context, ref model.PoolRef) (model.SourceSnapshot, error) {
	if !common.IsHexAddress(ref.Address) {
		return model.SourceSnapshot{}, fmt.Errorf("invalid pool address %q", ref.Address)
	}
	indexABI, err := dex.IndexABI()
	if err != nil {
		return model.SourceSnapshot{}, fmt.Errorf("parse index abi: %w", err)
	}
	call, err := multicall.NewCall(p.address, indexABI, "poolData", true, common.HexToAddress(ref.Address))
	if err != nil {
		return model.SourceSnapshot{}, err
	}
	var results []multicall.Result
	err = chain.WithRetryIf(ctx, p.maxRetries, p.backoff, multicall.IsTransport, func(ctx context.Context) error {
		var err error
		results, err = p.batcher.Execute(ctx, []multicall.CallSpec{call})
		return err
	})
	if err != nil {
		return model.SourceSnapshot{}, err
	}
	if !results[0].Success {
		return model.SourceSnapshot{}, ErrNotFound
	}

	values := make([]decimal.Decimal, 3)
	for i := range values {
		item, err := multicall.Tuple(results[0].Value, i)
		if err != nil {
			return model.SourceSnapshot{}, err
		}
		n, err := multicall.AsBigInt(item)
		if err != nil {
			return model.SourceSnapshot{}, err
		}
		values[i] = decimal.NewFromBigInt(n, 0)
	}
	tvl := values[0].Shift(-18)
	apyPercent := values[1].Div(decimal.NewFromInt(100))
	staked := values[2].Shift(-18)
	if tvl.IsZero() && apyPercent.IsZero() {
		return model.SourceSnapshot{}, ErrNotFound
	}

	snap := model.SourceSnapshot{
		Source:     p.Name(),
		Priority:   p.Priority(),
		APYPercent: apyPercent.Round(6).InexactFloat64(),
		APYStatus:  model.APYVerified,
		TVLUSD:     tvl.Round(2).InexactFloat64(),
		FetchedAt:  nowUTC(p.now),
	}
	if staked.IsPositive() {
		snap.StakedTVLUSD = floatPtr(staked.Round(2).InexactFloat64())
	}
	return snap, nil
}
