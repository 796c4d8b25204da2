package onchain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"poolScope/internal/apy"
	"poolScope/internal/classify"
	"poolScope/internal/dex"
	"poolScope/internal/model"
	"poolScope/internal/multicall"
)

var two = decimal.NewFromInt(2)

// gaugeCalls appends the reward stream reads for gauge and returns the index of the first one.
func gaugeCalls(calls []multicall.CallSpec, gauge common.Address, withSupply bool) ([]multicall.CallSpec, int, error) {
	gaugeABI, err := dex.GaugeABI()
	if err != nil {
		return nil, -1, fmt.Errorf("parse gauge abi: %w", err)
	}
	start := len(calls)
	methods := []string{"rewardRate", "periodFinish", "rewardToken"}
	if withSupply {
		methods = append(methods, "totalSupply")
	}
	for _, method := range methods {
		call, err := multicall.NewCall(gauge, gaugeABI, method, true)
		if err != nil {
			return nil, -1, err
		}
		calls = append(calls, call)
	}
	return calls, start, nil
}

type gaugeState struct {
	rate         *big.Int
	periodFinish int64
	rewardToken  common.Address
	totalSupply  *big.Int
}

func readGaugeState(results []multicall.Result, start int) gaugeState {
	var g gaugeState
	if start < 0 {
		return g
	}
	g.rate, _ = bigAt(results, start)
	if finish, ok := bigAt(results, start+1); ok && finish.IsInt64() {
		g.periodFinish = finish.Int64()
	}
	g.rewardToken, _ = addressAt(results, start+2)
	g.totalSupply, _ = bigAt(results, start+3)
	return g
}

func (r *Reader) readConstantProduct(ctx context.Context, addr common.Address, info classify.Info, pool *model.Pool) (apy.Inputs, error) {
	if len(info.Tokens) != 2 {
		return apy.Inputs{}, fmt.Errorf("constant-product pool without token pair")
	}
	poolABI, err := dex.PoolABI()
	if err != nil {
		return apy.Inputs{}, fmt.Errorf("parse pool abi: %w", err)
	}

	reservesCall, err := multicall.NewCall(addr, poolABI, "getReserves", true)
	if err != nil {
		return apy.Inputs{}, err
	}
	supplyCall, err := multicall.NewCall(addr, poolABI, "totalSupply", true)
	if err != nil {
		return apy.Inputs{}, err
	}
	calls := []multicall.CallSpec{reservesCall, supplyCall}
	gaugeStart := -1
	if info.HasGauge() {
		if calls, gaugeStart, err = gaugeCalls(calls, info.Gauge, true); err != nil {
			return apy.Inputs{}, err
		}
	}

	results, err := r.batcher.Execute(ctx, calls)
	if err != nil {
		return apy.Inputs{}, err
	}
	if !results[0].Success {
		return apy.Inputs{}, fmt.Errorf("getReserves unavailable")
	}
	reserve0Value, err := multicall.Tuple(results[0].Value, 0)
	if err != nil {
		return apy.Inputs{}, err
	}
	reserve1Value, err := multicall.Tuple(results[0].Value, 1)
	if err != nil {
		return apy.Inputs{}, err
	}
	reserve0, err := multicall.AsBigInt(reserve0Value)
	if err != nil {
		return apy.Inputs{}, err
	}
	reserve1, err := multicall.AsBigInt(reserve1Value)
	if err != nil {
		return apy.Inputs{}, err
	}
	pool.RawBalances = []string{reserve0.String(), reserve1.String()}
	g := readGaugeState(results, gaugeStart)

	token0, token1 := info.Tokens[0], info.Tokens[1]
	m, err := r.loadMarket(ctx, token0, token1, g.rewardToken)
	if err != nil {
		return apy.Inputs{}, err
	}
	pool.Tokens = m.tokenList(token0, token1)

	in := apy.Inputs{HasGauge: info.HasGauge()}
	v0, ok0 := m.value(token0, reserve0)
	v1, ok1 := m.value(token1, reserve1)
	switch {
	case ok0 && ok1:
		in.TVLUSD = v0.Add(v1)
	case ok0:
		// both sides of a constant-product pool hold equal value
		in.TVLUSD = v0.Mul(two)
	case ok1:
		in.TVLUSD = v1.Mul(two)
	default:
		in.MissingInput = "prices for " + token0.Hex() + " and " + token1.Hex()
	}

	if supply, ok := bigAt(results, 1); ok && g.totalSupply != nil {
		in.StakedRatio = decimal.Min(ratio(g.totalSupply, supply), decimal.NewFromInt(1))
	}

	if info.HasGauge() {
		yearly, missing := r.emission(m, pool, g.rewardToken, g.rate, g.periodFinish)
		in.YearlyEmissionsUSD = yearly
		if missing != "" && in.MissingInput == "" {
			in.MissingInput = missing
		}
	}
	return in, nil
}

func (r *Reader) readConcentrated(ctx context.Context, addr common.Address, info classify.Info, pool *model.Pool) (apy.Inputs, error) {
	if len(info.Tokens) != 2 {
		return apy.Inputs{}, fmt.Errorf("concentrated-liquidity pool without token pair")
	}
	poolABI, err := dex.PoolABI()
	if err != nil {
		return apy.Inputs{}, fmt.Errorf("parse pool abi: %w", err)
	}
	erc20, err := dex.ERC20ABI()
	if err != nil {
		return apy.Inputs{}, fmt.Errorf("parse erc20 abi: %w", err)
	}

	token0, token1 := info.Tokens[0], info.Tokens[1]
	specs := []struct {
		target common.Address
		abi    string
		method string
		args   []interface{}
	}{
		{addr, "pool", "liquidity", nil},
		{addr, "pool", "stakedLiquidity", nil},
		{token0, "erc20", "balanceOf", []interface{}{addr}},
		{token1, "erc20", "balanceOf", []interface{}{addr}},
	}
	calls := make([]multicall.CallSpec, 0, len(specs)+3)
	for _, s := range specs {
		parsed := poolABI
		if s.abi == "erc20" {
			parsed = erc20
		}
		call, err := multicall.NewCall(s.target, parsed, s.method, true, s.args...)
		if err != nil {
			return apy.Inputs{}, err
		}
		calls = append(calls, call)
	}
	gaugeStart := -1
	if info.HasGauge() {
		if calls, gaugeStart, err = gaugeCalls(calls, info.Gauge, false); err != nil {
			return apy.Inputs{}, err
		}
	}

	results, err := r.batcher.Execute(ctx, calls)
	if err != nil {
		return apy.Inputs{}, err
	}
	liquidity, okLiq := bigAt(results, 0)
	staked, okStaked := bigAt(results, 1)
	bal0, ok0 := bigAt(results, 2)
	bal1, ok1 := bigAt(results, 3)
	if !ok0 || !ok1 {
		return apy.Inputs{}, fmt.Errorf("token balances unavailable")
	}
	pool.RawBalances = []string{bal0.String(), bal1.String()}
	g := readGaugeState(results, gaugeStart)

	m, err := r.loadMarket(ctx, token0, token1, g.rewardToken)
	if err != nil {
		return apy.Inputs{}, err
	}
	pool.Tokens = m.tokenList(token0, token1)

	in := apy.Inputs{HasGauge: info.HasGauge()}
	v0, priced0 := m.value(token0, bal0)
	v1, priced1 := m.value(token1, bal1)
	if priced0 && priced1 {
		in.TVLUSD = v0.Add(v1)
	} else {
		in.MissingInput = "prices for pool tokens"
	}

	switch {
	case !okLiq:
		in.MissingInput = "pool liquidity"
	case okStaked:
		in.StakedRatio = decimal.Min(ratio(staked, liquidity), decimal.NewFromInt(1))
	case info.HasGauge() && in.MissingInput == "":
		in.MissingInput = "pool stakedLiquidity"
	}

	if info.HasGauge() {
		yearly, missing := r.emission(m, pool, g.rewardToken, g.rate, g.periodFinish)
		in.YearlyEmissionsUSD = yearly
		if missing != "" && in.MissingInput == "" {
			in.MissingInput = missing
		}
	}
	return in, nil
}
