package onchain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"poolScope/internal/apy"
	"poolScope/internal/classify"
	"poolScope/internal/dex"
	"poolScope/internal/model"
	"poolScope/internal/multicall"
)

func (r *Reader) readLending(ctx context.Context, addr common.Address, info classify.Info, pool *model.Pool) (apy.Inputs, error) {
	lendingABI, err := dex.LendingABI()
	if err != nil {
		return apy.Inputs{}, fmt.Errorf("parse lending abi: %w", err)
	}

	calls := make([]multicall.CallSpec, 0, 5)
	for _, method := range []string{"supplyRatePerBlock", "getCash", "totalBorrows", "totalReserves"} {
		call, err := multicall.NewCall(addr, lendingABI, method, true)
		if err != nil {
			return apy.Inputs{}, err
		}
		calls = append(calls, call)
	}
	withRewards := r.cfg.Comptroller != (common.Address{}) && r.cfg.LendingRewardToken != (common.Address{})
	if withRewards {
		comptrollerABI, err := dex.ComptrollerABI()
		if err != nil {
			return apy.Inputs{}, fmt.Errorf("parse comptroller abi: %w", err)
		}
		call, err := multicall.NewCall(r.cfg.Comptroller, comptrollerABI, "compSupplySpeeds", true, addr)
		if err != nil {
			return apy.Inputs{}, err
		}
		calls = append(calls, call)
	}

	results, err := r.batcher.Execute(ctx, calls)
	if err != nil {
		return apy.Inputs{}, err
	}
	supplyRate, ok := bigAt(results, 0)
	if !ok {
		return apy.Inputs{}, fmt.Errorf("supplyRatePerBlock unavailable")
	}
	cash, okCash := bigAt(results, 1)
	borrows, okBorrows := bigAt(results, 2)
	reserves, _ := bigAt(results, 3)

	in := apy.Inputs{StakedRatio: decimal.NewFromInt(1)}
	if r.cfg.BlocksPerYear <= 0 {
		in.MissingInput = "blocks_per_year for chain " + r.cfg.Chain
		return in, nil
	}
	in.BaseSupplyRate = apy.LendingRate(supplyRate, r.cfg.BlocksPerYear)

	underlying := info.Asset
	rewardToken := common.Address{}
	if withRewards {
		rewardToken = r.cfg.LendingRewardToken
	}
	m, err := r.loadMarket(ctx, underlying, rewardToken)
	if err != nil {
		return apy.Inputs{}, err
	}
	pool.Tokens = m.tokenList(underlying)

	if okCash && okBorrows {
		supplied := cash.Add(cash, borrows)
		if reserves != nil {
			supplied.Sub(supplied, reserves)
		}
		pool.RawBalances = []string{supplied.String()}
		if v, ok := m.value(underlying, supplied); ok {
			in.TVLUSD = v
		}
	}

	if withRewards {
		speed, ok := bigAt(results, len(calls)-1)
		rewardsPerYear := decimal.Zero
		if ok && speed.Sign() > 0 {
			perBlock, priced := m.value(rewardToken, speed)
			if priced {
				rewardsPerYear = perBlock.Mul(decimal.NewFromInt(r.cfg.BlocksPerYear))
			} else {
				in.MissingInput = "price for reward token " + rewardToken.Hex()
			}
		}
		if in.TVLUSD.IsPositive() {
			in.RewardRate = rewardsPerYear.DivRound(in.TVLUSD, 18).Mul(decimal.NewFromInt(100))
		}
		in.YearlyEmissionsUSD = rewardsPerYear
	}
	return in, nil
}
