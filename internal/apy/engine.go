package apy

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"poolScope/internal/model"
)

// SecondsPerYear is the 365 day year used for every annualization.
const SecondsPerYear = 31_536_000

const (
	reasonActiveTick = "staked ratio uses active-tick liquidity only; out-of-range positions are not counted"
	reasonZeroStaked = "staked value is zero"
	reasonNoGauge    = "pool has no reward gauge"
)

var hundred = decimal.NewFromInt(100)

// VaultYieldSource supplies share-vault yields, which cannot be derived from one read.
type VaultYieldSource interface {
	VaultAPY(ctx context.Context, chain string, vault common.Address) (float64, bool, error)
}

// Inputs carries everything a formula may need. Zero values mean "not available".
type Inputs struct {
	PoolID string
	Source string

	TVLUSD      decimal.Decimal
	StakedRatio decimal.Decimal
	// StakedTVLUSD is an authoritative staked value from an external source.
	StakedTVLUSD       *decimal.Decimal
	YearlyEmissionsUSD decimal.Decimal
	HasGauge           bool

	// BaseSupplyRate and RewardRate are annual percentages for lending markets.
	BaseSupplyRate decimal.Decimal
	RewardRate     decimal.Decimal

	VaultAPY *decimal.Decimal

	// MissingInput names a required input that could not be read or priced.
	MissingInput string
}

// Formula computes the APY for one pool type.
type Formula func(in Inputs) model.APYResult

// Engine dispatches APY computation through a formula table keyed by pool type.
type Engine struct {
	formulas map[model.PoolType]Formula
}

// NewEngine returns an engine with the built-in formulas registered.
func NewEngine() *Engine {
	return &Engine{formulas: map[model.PoolType]Formula{
		model.PoolTypeConstantProduct: ConstantProduct,
		model.PoolTypeConcentrated:    ConcentratedLiquidity,
		model.PoolTypeLending:         Lending,
		model.PoolTypeVault:           Vault,
		model.PoolTypeUnknown:         Unclassified,
	}}
}

// Register adds or replaces the formula for a pool type.
func (e *Engine) Register(poolType model.PoolType, f Formula) {
	e.formulas[poolType] = f
}

// Compute applies the formula registered for poolType.
func (e *Engine) Compute(poolType model.PoolType, in Inputs) model.APYResult {
	if in.Source == "" {
		in.Source = "onchain"
	}
	f, ok := e.formulas[poolType]
	if !ok {
		f = Unclassified
	}
	res := f(in)
	res.PoolID = in.PoolID
	res.Source = in.Source
	return res
}

// ConstantProduct: yearly emissions over the USD value staked in the gauge.
func ConstantProduct(in Inputs) model.APYResult {
	if in.MissingInput != "" {
		return unknown("missing " + in.MissingInput)
	}
	if !in.HasGauge {
		return unknown(reasonNoGauge)
	}
	staked := in.TVLUSD.Mul(in.StakedRatio)
	if !staked.IsPositive() {
		return unknown(reasonZeroStaked)
	}
	return model.APYResult{
		APYPercent: percent(in.YearlyEmissionsUSD, staked),
		Status:     model.APYVerified,
	}
}

// ConcentratedLiquidity is never verified from pool reads alone, because
// stakedLiquidity/liquidity only describes the active tick. An external staked TVL
// figure replaces the estimate.
func ConcentratedLiquidity(in Inputs) model.APYResult {
	if in.StakedTVLUSD != nil && in.StakedTVLUSD.IsPositive() {
		return model.APYResult{
			APYPercent: percent(in.YearlyEmissionsUSD, *in.StakedTVLUSD),
			Status:     model.APYVerified,
			Reason:     "staked TVL supplied by external source",
		}
	}
	if in.MissingInput != "" {
		return unknown("missing " + in.MissingInput)
	}
	if !in.HasGauge {
		return unknown(reasonNoGauge)
	}
	staked := in.TVLUSD.Mul(in.StakedRatio)
	if !staked.IsPositive() {
		return unknown(reasonZeroStaked)
	}
	return model.APYResult{
		APYPercent: percent(in.YearlyEmissionsUSD, staked),
		Status:     model.APYEstimated,
		Reason:     reasonActiveTick,
	}
}

// Lending: base supply rate plus reward token rate, both already annualized.
func Lending(in Inputs) model.APYResult {
	if in.MissingInput != "" {
		return unknown("missing " + in.MissingInput)
	}
	total := in.BaseSupplyRate.Add(in.RewardRate)
	return model.APYResult{
		APYPercent: total.Round(6).InexactFloat64(),
		Status:     model.APYVerified,
	}
}

// Vault relies on an external VaultYieldSource. The figure is not read from
// contract state, so it is estimated.
func Vault(in Inputs) model.APYResult {
	if in.VaultAPY == nil {
		return unknown("vault yield source unavailable")
	}
	return model.APYResult{
		APYPercent: in.VaultAPY.Round(6).InexactFloat64(),
		Status:     model.APYEstimated,
		Reason:     "reported by vault yield source",
	}
}

// Unclassified is used for unknown pool types.
func Unclassified(Inputs) model.APYResult {
	return unknown("unclassified pool")
}

func unknown(reason string) model.APYResult {
	return model.APYResult{APYPercent: 0, Status: model.APYUnknown, Reason: reason}
}

func percent(numerator, denominator decimal.Decimal) float64 {
	if denominator.IsZero() {
		return 0
	}
	return numerator.DivRound(denominator, 18).Mul(hundred).Round(6).InexactFloat64()
}

// YearlyEmissionsUSD annualizes a per-second reward rate in token base units.
// A reward period that has finished emits nothing.
func YearlyEmissionsUSD(ratePerSecond *big.Int, decimals uint8, priceUSD decimal.Decimal, periodFinish int64, now time.Time) decimal.Decimal {
	if ratePerSecond == nil || ratePerSecond.Sign() <= 0 {
		return decimal.Zero
	}
	if periodFinish > 0 && !now.Before(time.Unix(periodFinish, 0)) {
		return decimal.Zero
	}
	tokensPerSecond := TokenAmount(ratePerSecond, decimals)
	return tokensPerSecond.Mul(decimal.NewFromInt(SecondsPerYear)).Mul(priceUSD)
}

// LendingRate annualizes a per-block 1e18 scaled rate into a percentage.
func LendingRate(ratePerBlock *big.Int, blocksPerYear int64) decimal.Decimal {
	if ratePerBlock == nil || blocksPerYear <= 0 {
		return decimal.Zero
	}
	return TokenAmount(ratePerBlock, 18).Mul(decimal.NewFromInt(blocksPerYear)).Mul(hundred)
}

// TokenAmount scales a raw integer amount by 10^decimals.
func TokenAmount(raw *big.Int, decimals uint8) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(decimals))
}

// Describe renders an APY result for logs.
func Describe(res model.APYResult) string {
	if res.Reason == "" {
		return fmt.Sprintf("%.4f%% (%s)", res.APYPercent, res.Status)
	}
	return fmt.Sprintf("%.4f%% (%s: %s)", res.APYPercent, res.Status, res.Reason)
}
