package onchain

import (
	"context"
	"math"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"poolScope/internal/apy"
	"poolScope/internal/classify"
	"poolScope/internal/dex"
	"poolScope/internal/model"
	"poolScope/internal/multicall"
	"poolScope/internal/multicall/multicalltest"
	"poolScope/internal/price"
)

var (
	pool  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	gauge = common.HexToAddress("0x9999999999999999999999999999999999999999")
	usdc  = common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
	weth  = common.HexToAddress("0x4200000000000000000000000000000000000006")
	aero  = common.HexToAddress("0x940181a94A35A4569E4529A3CDfB74e38FD98631")

	testNow = time.Unix(1_700_000_000, 0)
)

func mustABI(t *testing.T, get func() (abi.ABI, error)) abi.ABI {
	t.Helper()
	parsed, err := get()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	return parsed
}

func units(amount int64, decimals int64) *big.Int {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(decimals), nil)
	return new(big.Int).Mul(big.NewInt(amount), scale)
}

// perSecond converts a yearly token amount (18 decimals) to a per-second rate.
func perSecond(yearly int64) *big.Int {
	return new(big.Int).Div(units(yearly, 18), big.NewInt(apy.SecondsPerYear))
}

func registerTokens(t *testing.T, fake *multicalltest.Caller) {
	erc20 := mustABI(t, dex.ERC20ABI)
	fake.Return(usdc, erc20, "decimals", uint8(6))
	fake.Return(usdc, erc20, "symbol", "USDC")
	fake.Return(weth, erc20, "decimals", uint8(18))
	fake.Return(weth, erc20, "symbol", "WETH")
	fake.Return(aero, erc20, "decimals", uint8(18))
	fake.Return(aero, erc20, "symbol", "AERO")
}

func registerGauge(t *testing.T, fake *multicalltest.Caller, yearlyTokens int64, periodFinish int64, staked *big.Int) {
	gaugeABI := mustABI(t, dex.GaugeABI)
	fake.Return(gauge, gaugeABI, "rewardRate", perSecond(yearlyTokens))
	fake.Return(gauge, gaugeABI, "periodFinish", big.NewInt(periodFinish))
	fake.Return(gauge, gaugeABI, "rewardToken", aero)
	if staked != nil {
		fake.Return(gauge, gaugeABI, "totalSupply", staked)
	}
}

func newTestReader(fake *multicalltest.Caller, cfg Config) *Reader {
	exec := multicall.NewExecutor(fake, common.Address{}, nil)
	cfg.Chain = "base"
	cfg.Now = func() time.Time { return testNow }
	prices := price.NewStatic(map[string]float64{
		price.Key("base", usdc): 1,
		price.Key("base", weth): 2500,
		price.Key("base", aero): 1,
	})
	classifier := classify.New("base", exec, common.Address{}, classify.NewInfoCache(), nil)
	return NewReader(cfg, exec, classifier, dex.NewTokenMetaCache(), prices, apy.NewEngine(), nil)
}

func TestReadConstantProduct(t *testing.T) {
	poolABI := mustABI(t, dex.PoolABI)
	fake := multicalltest.New()
	fake.Return(pool, poolABI, "getReserves", units(5_000_000, 6), units(2_000, 18), big.NewInt(testNow.Unix()))
	fake.Return(pool, poolABI, "token0", usdc)
	fake.Return(pool, poolABI, "token1", weth)
	fake.Return(pool, poolABI, "gauge", gauge)
	fake.Return(pool, poolABI, "totalSupply", units(1_000, 18))
	registerTokens(t, fake)
	registerGauge(t, fake, 500_000, testNow.Add(24*time.Hour).Unix(), units(1_000, 18))

	reading, err := newTestReader(fake, Config{}).Read(context.Background(), model.PoolRef{Chain: "base", Address: pool.Hex()})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if reading.Pool.Type != model.PoolTypeConstantProduct {
		t.Fatalf("type mismatch: %s", reading.Pool.Type)
	}
	if math.Abs(reading.Pool.TVLUSD-10_000_000) > 0.01 {
		t.Fatalf("tvl mismatch: %f", reading.Pool.TVLUSD)
	}
	if reading.Pool.StakedRatio != 1 {
		t.Fatalf("staked ratio mismatch: %f", reading.Pool.StakedRatio)
	}
	if reading.APY.Status != model.APYVerified {
		t.Fatalf("status mismatch: %s (%s)", reading.APY.Status, reading.APY.Reason)
	}
	if math.Abs(reading.APY.APYPercent-5.0) > 1e-4 {
		t.Fatalf("apy mismatch: %f", reading.APY.APYPercent)
	}
	if len(reading.Pool.Tokens) != 2 || reading.Pool.Tokens[1].Symbol != "WETH" {
		t.Fatalf("tokens mismatch: %+v", reading.Pool.Tokens)
	}
	// probe, state, token metadata
	if fake.RoundTrips() != 3 {
		t.Fatalf("round trips mismatch: %d", fake.RoundTrips())
	}
}

func TestReadConcentratedLiquidityEstimated(t *testing.T) {
	poolABI := mustABI(t, dex.PoolABI)
	erc20 := mustABI(t, dex.ERC20ABI)
	fake := multicalltest.New()
	fake.Return(pool, poolABI, "liquidity", big.NewInt(1_000_000))
	fake.Return(pool, poolABI, "stakedLiquidity", big.NewInt(999_900))
	fake.Return(pool, poolABI, "slot0", big.NewInt(1), big.NewInt(0))
	fake.Return(pool, poolABI, "token0", usdc)
	fake.Return(pool, poolABI, "token1", weth)
	fake.Return(pool, poolABI, "gauge", gauge)
	registerTokens(t, fake)
	fake.Handle(usdc, erc20, "balanceOf", func([]interface{}) ([]interface{}, error) {
		return []interface{}{units(4_870_000, 6)}, nil
	})
	fake.Handle(weth, erc20, "balanceOf", func([]interface{}) ([]interface{}, error) {
		return []interface{}{units(1_948, 18)}, nil
	})
	registerGauge(t, fake, 567_000, testNow.Add(time.Hour).Unix(), nil)

	reading, err := newTestReader(fake, Config{}).Read(context.Background(), model.PoolRef{Chain: "base", Address: pool.Hex()})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if reading.APY.Status != model.APYEstimated {
		t.Fatalf("concentrated liquidity must not be verified: %s", reading.APY.Status)
	}
	if !strings.Contains(reading.APY.Reason, "active-tick") {
		t.Fatalf("reason should name the active tick limitation: %q", reading.APY.Reason)
	}
	if math.Abs(reading.APY.APYPercent-5.82) > 0.01 {
		t.Fatalf("apy mismatch: %f", reading.APY.APYPercent)
	}
	if math.Abs(reading.YearlyEmissionsUSD-567_000) > 0.01 {
		t.Fatalf("emissions mismatch: %f", reading.YearlyEmissionsUSD)
	}
}

func TestReadFinishedRewardPeriod(t *testing.T) {
	poolABI := mustABI(t, dex.PoolABI)
	fake := multicalltest.New()
	fake.Return(pool, poolABI, "getReserves", units(5_000_000, 6), units(2_000, 18), big.NewInt(0))
	fake.Return(pool, poolABI, "token0", usdc)
	fake.Return(pool, poolABI, "token1", weth)
	fake.Return(pool, poolABI, "gauge", gauge)
	fake.Return(pool, poolABI, "totalSupply", units(1_000, 18))
	registerTokens(t, fake)
	registerGauge(t, fake, 500_000, testNow.Add(-time.Hour).Unix(), units(500, 18))

	reading, err := newTestReader(fake, Config{}).Read(context.Background(), model.PoolRef{Chain: "base", Address: pool.Hex()})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if reading.APY.APYPercent != 0 || reading.APY.Status != model.APYVerified {
		t.Fatalf("finished rewards should yield 0 verified, got %+v", reading.APY)
	}
	if reading.Pool.StakedRatio != 0.5 {
		t.Fatalf("staked ratio mismatch: %f", reading.Pool.StakedRatio)
	}
}

func TestReadLending(t *testing.T) {
	lendingABI := mustABI(t, dex.LendingABI)
	fake := multicalltest.New()
	fake.Return(pool, lendingABI, "supplyRatePerBlock", big.NewInt(1_000_000_000))
	fake.Return(pool, lendingABI, "borrowRatePerBlock", big.NewInt(2_000_000_000))
	fake.Return(pool, lendingABI, "underlying", usdc)
	fake.Return(pool, lendingABI, "getCash", units(1_000_000, 6))
	fake.Return(pool, lendingABI, "totalBorrows", units(500_000, 6))
	fake.Return(pool, lendingABI, "totalReserves", big.NewInt(0))
	registerTokens(t, fake)

	reading, err := newTestReader(fake, Config{BlocksPerYear: 2_628_000}).Read(context.Background(), model.PoolRef{Chain: "base", Address: pool.Hex()})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if reading.Pool.Type != model.PoolTypeLending {
		t.Fatalf("type mismatch: %s", reading.Pool.Type)
	}
	if math.Abs(reading.Pool.TVLUSD-1_500_000) > 0.01 {
		t.Fatalf("tvl mismatch: %f", reading.Pool.TVLUSD)
	}
	if reading.APY.Status != model.APYVerified || math.Abs(reading.APY.APYPercent-0.2628) > 1e-6 {
		t.Fatalf("apy mismatch: %+v", reading.APY)
	}
}

func TestReadUnknownPool(t *testing.T) {
	erc20 := mustABI(t, dex.ERC20ABI)
	fake := multicalltest.New()
	fake.Return(pool, erc20, "totalSupply", big.NewInt(12345))

	reading, err := newTestReader(fake, Config{}).Read(context.Background(), model.PoolRef{Chain: "base", Address: pool.Hex()})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if reading.APY.Status != model.APYUnknown {
		t.Fatalf("unknown pool must have unknown apy: %+v", reading.APY)
	}
	if len(reading.Pool.RawBalances) != 1 || reading.Pool.RawBalances[0] != "12345" {
		t.Fatalf("raw balances mismatch: %v", reading.Pool.RawBalances)
	}
}

func TestReadInvalidAddress(t *testing.T) {
	fake := multicalltest.New()
	if _, err := newTestReader(fake, Config{}).Read(context.Background(), model.PoolRef{Chain: "base", Address: "nope"}); err == nil {
		t.Fatalf("expected error for invalid address")
	}
	if fake.RoundTrips() != 0 {
		t.Fatalf("invalid input must not reach the network")
	}
}

func TestEarned(t *testing.T) {
	gaugeABI := mustABI(t, dex.GaugeABI)
	account := common.HexToAddress("0x2222222222222222222222222222222222222222")
	fake := multicalltest.New()
	fake.Handle(gauge, gaugeABI, "earned", func(args []interface{}) ([]interface{}, error) {
		if args[0].(common.Address) != account {
			return []interface{}{big.NewInt(0)}, nil
		}
		return []interface{}{big.NewInt(777)}, nil
	})

	got, err := newTestReader(fake, Config{}).Earned(context.Background(), gauge, account)
	if err != nil {
		t.Fatalf("earned: %v", err)
	}
	if got.Int64() != 777 {
		t.Fatalf("earned mismatch: %s", got)
	}
}
