package onchain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"poolScope/internal/apy"
	"poolScope/internal/classify"
	"poolScope/internal/dex"
	"poolScope/internal/model"
	"poolScope/internal/multicall"
)

var oneShare = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

func (r *Reader) readVault(ctx context.Context, addr common.Address, info classify.Info, pool *model.Pool) (apy.Inputs, error) {
	vaultABI, err := dex.VaultABI()
	if err != nil {
		return apy.Inputs{}, fmt.Errorf("parse vault abi: %w", err)
	}
	totalAssetsCall, err := multicall.NewCall(addr, vaultABI, "totalAssets", true)
	if err != nil {
		return apy.Inputs{}, err
	}
	sharePriceCall, err := multicall.NewCall(addr, vaultABI, "convertToAssets", true, oneShare)
	if err != nil {
		return apy.Inputs{}, err
	}

	results, err := r.batcher.Execute(ctx, []multicall.CallSpec{totalAssetsCall, sharePriceCall})
	if err != nil {
		return apy.Inputs{}, err
	}
	totalAssets, ok := bigAt(results, 0)
	if !ok {
		return apy.Inputs{}, fmt.Errorf("totalAssets unavailable")
	}
	pool.RawBalances = []string{totalAssets.String()}
	if sharePrice, ok := bigAt(results, 1); ok {
		pool.RawBalances = append(pool.RawBalances, sharePrice.String())
	}

	in := apy.Inputs{StakedRatio: decimal.NewFromInt(1)}
	if info.Asset != (common.Address{}) {
		m, err := r.loadMarket(ctx, info.Asset)
		if err != nil {
			return apy.Inputs{}, err
		}
		pool.Tokens = m.tokenList(info.Asset)
		if v, ok := m.value(info.Asset, totalAssets); ok {
			in.TVLUSD = v
		}
	}

	if r.cfg.Vaults != nil {
		value, ok, err := r.cfg.Vaults.VaultAPY(ctx, r.cfg.Chain, addr)
		switch {
		case err != nil:
			r.logger.Warn("vault yield lookup failed", zap.String("pool", pool.ID), zap.Error(err))
		case ok:
			d := decimal.NewFromFloat(value)
			in.VaultAPY = &d
		}
	}
	return in, nil
}

func (r *Reader) readUnknown(ctx context.Context, addr common.Address, pool *model.Pool) (apy.Inputs, error) {
	erc20, err := dex.ERC20ABI()
	if err != nil {
		return apy.Inputs{}, fmt.Errorf("parse erc20 abi: %w", err)
	}
	call, err := multicall.NewCall(addr, erc20, "totalSupply", true)
	if err != nil {
		return apy.Inputs{}, err
	}
	results, err := r.batcher.Execute(ctx, []multicall.CallSpec{call})
	if err != nil {
		return apy.Inputs{}, err
	}
	if supply, ok := bigAt(results, 0); ok {
		pool.RawBalances = []string{supply.String()}
	}
	return apy.Inputs{}, nil
}
