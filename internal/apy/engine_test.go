package apy

import (
	"math/big"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"poolScope/internal/model"
)

func dec(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func TestConstantProductVerified(t *testing.T) {
	res := NewEngine().Compute(model.PoolTypeConstantProduct, Inputs{
		PoolID:             "base:0xpool",
		TVLUSD:             dec(10_000_000),
		StakedRatio:        dec(1),
		YearlyEmissionsUSD: dec(500_000),
		HasGauge:           true,
	})

	assert.Equal(t, model.APYVerified, res.Status)
	assert.InDelta(t, 5.0, res.APYPercent, 1e-9)
	assert.Equal(t, "onchain", res.Source)
	assert.Equal(t, "base:0xpool", res.PoolID)
}

func TestConcentratedLiquidityEstimated(t *testing.T) {
	res := NewEngine().Compute(model.PoolTypeConcentrated, Inputs{
		TVLUSD:             dec(9_740_000),
		StakedRatio:        dec(0.9999),
		YearlyEmissionsUSD: dec(567_000),
		HasGauge:           true,
	})

	assert.Equal(t, model.APYEstimated, res.Status)
	assert.InDelta(t, 5.82, res.APYPercent, 0.01)
	assert.Contains(t, res.Reason, "active-tick")
}

func TestConcentratedLiquidityExternalStakedTVL(t *testing.T) {
	staked := dec(64_000)
	res := NewEngine().Compute(model.PoolTypeConcentrated, Inputs{
		TVLUSD:             dec(9_740_000),
		StakedRatio:        dec(0.9999),
		StakedTVLUSD:       &staked,
		YearlyEmissionsUSD: dec(567_000),
		HasGauge:           true,
	})

	assert.Equal(t, model.APYVerified, res.Status)
	assert.InDelta(t, 885.9375, res.APYPercent, 1e-6)
}

func TestZeroStakedValueIsUnknown(t *testing.T) {
	for _, poolType := range []model.PoolType{model.PoolTypeConstantProduct, model.PoolTypeConcentrated} {
		res := NewEngine().Compute(poolType, Inputs{
			TVLUSD:             dec(1_000_000),
			StakedRatio:        decimal.Zero,
			YearlyEmissionsUSD: dec(1_000),
			HasGauge:           true,
		})
		assert.Equal(t, model.APYUnknown, res.Status, poolType)
		assert.Zero(t, res.APYPercent, poolType)
	}
}

func TestMissingInputsAreUnknown(t *testing.T) {
	res := NewEngine().Compute(model.PoolTypeConstantProduct, Inputs{
		TVLUSD:       dec(1),
		StakedRatio:  dec(1),
		HasGauge:     true,
		MissingInput: "price for 0xabc",
	})
	assert.Equal(t, model.APYUnknown, res.Status)
	assert.Contains(t, res.Reason, "price for 0xabc")

	res = NewEngine().Compute(model.PoolTypeConstantProduct, Inputs{TVLUSD: dec(1), StakedRatio: dec(1)})
	assert.Equal(t, model.APYUnknown, res.Status)
}

func TestLendingAndVault(t *testing.T) {
	e := NewEngine()
	res := e.Compute(model.PoolTypeLending, Inputs{BaseSupplyRate: dec(3.25), RewardRate: dec(1.5)})
	assert.Equal(t, model.APYVerified, res.Status)
	assert.InDelta(t, 4.75, res.APYPercent, 1e-9)

	res = e.Compute(model.PoolTypeVault, Inputs{})
	assert.Equal(t, model.APYUnknown, res.Status)

	v := dec(7.1)
	res = e.Compute(model.PoolTypeVault, Inputs{VaultAPY: &v})
	assert.Equal(t, model.APYEstimated, res.Status, "external vault yield matches the indexer's own status")
	assert.InDelta(t, 7.1, res.APYPercent, 1e-9)

	res = e.Compute("weird", Inputs{})
	assert.Equal(t, model.APYUnknown, res.Status)
	assert.Equal(t, "unclassified pool", res.Reason)
}

func TestRegisterOverridesFormula(t *testing.T) {
	e := NewEngine()
	e.Register(model.PoolTypeVault, func(Inputs) model.APYResult {
		return model.APYResult{APYPercent: 1, Status: model.APYEstimated}
	})
	res := e.Compute(model.PoolTypeVault, Inputs{})
	assert.Equal(t, model.APYEstimated, res.Status)
}

func TestYearlyEmissionsUSD(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	// 1 token per second at $2
	rate := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

	got := YearlyEmissionsUSD(rate, 18, dec(2), now.Add(time.Hour).Unix(), now)
	assert.True(t, got.Equal(decimal.NewFromInt(2*SecondsPerYear)), got.String())

	finished := YearlyEmissionsUSD(rate, 18, dec(2), now.Unix(), now)
	assert.True(t, finished.IsZero())
}

func TestLendingRate(t *testing.T) {
	// 1e9 per block over 2,628,000 blocks per year
	got := LendingRate(big.NewInt(1_000_000_000), 2_628_000)
	assert.InDelta(t, 0.2628, got.InexactFloat64(), 1e-9)
}
