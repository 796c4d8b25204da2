package classify

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"poolScope/internal/dex"
	"poolScope/internal/model"
	"poolScope/internal/multicall"
	"poolScope/internal/multicall/multicalltest"
)

var (
	pool   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	token0 = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	token1 = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	gauge  = common.HexToAddress("0x9999999999999999999999999999999999999999")
	voter  = common.HexToAddress("0x7777777777777777777777777777777777777777")
)

func mustABI(t *testing.T, get func() (abi.ABI, error)) abi.ABI {
	t.Helper()
	parsed, err := get()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	return parsed
}

func newClassifier(fake *multicalltest.Caller, voterAddr common.Address) *Classifier {
	return New("base", multicall.NewExecutor(fake, common.Address{}, nil), voterAddr, NewInfoCache(), nil)
}

func TestClassifyConcentratedLiquidity(t *testing.T) {
	poolABI := mustABI(t, dex.PoolABI)
	fake := multicalltest.New()
	fake.Return(pool, poolABI, "liquidity", big.NewInt(1_000_000))
	fake.Return(pool, poolABI, "slot0", big.NewInt(79228162514264337), big.NewInt(-200))
	fake.Return(pool, poolABI, "stakedLiquidity", big.NewInt(999_900))
	fake.Return(pool, poolABI, "gauge", gauge)
	fake.Return(pool, poolABI, "token0", token0)
	fake.Return(pool, poolABI, "token1", token1)

	info, err := newClassifier(fake, common.Address{}).Classify(context.Background(), pool, "", common.Address{})
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if info.Type != model.PoolTypeConcentrated {
		t.Fatalf("type mismatch: %s", info.Type)
	}
	if info.Gauge != gauge {
		t.Fatalf("gauge mismatch: %s", info.Gauge.Hex())
	}
	if len(info.Tokens) != 2 || info.Tokens[0] != token0 || info.Tokens[1] != token1 {
		t.Fatalf("tokens mismatch: %v", info.Tokens)
	}
	if fake.RoundTrips() != 1 {
		t.Fatalf("expected one probe batch, got %d", fake.RoundTrips())
	}
}

func TestClassifyConstantProductWithVoterGauge(t *testing.T) {
	poolABI := mustABI(t, dex.PoolABI)
	voterABI := mustABI(t, dex.VoterABI)
	fake := multicalltest.New()
	fake.Return(pool, poolABI, "getReserves", big.NewInt(10), big.NewInt(20), big.NewInt(1700000000))
	fake.Return(pool, poolABI, "token0", token0)
	fake.Return(pool, poolABI, "token1", token1)
	fake.Return(pool, poolABI, "stable", true)
	fake.Return(voter, voterABI, "gauges", gauge)

	info, err := newClassifier(fake, voter).Classify(context.Background(), pool, "", common.Address{})
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if info.Type != model.PoolTypeConstantProduct {
		t.Fatalf("type mismatch: %s", info.Type)
	}
	if info.Gauge != gauge {
		t.Fatalf("voter gauge not used: %s", info.Gauge.Hex())
	}
	if !info.Stable {
		t.Fatalf("stable flag not read")
	}
	if fake.LastBatchSize() != 15 {
		t.Fatalf("voter probe should ride in the same batch, batch size %d", fake.LastBatchSize())
	}
}

func TestClassifyLendingAndVault(t *testing.T) {
	lendingABI := mustABI(t, dex.LendingABI)
	vaultABI := mustABI(t, dex.VaultABI)

	fake := multicalltest.New()
	fake.Return(pool, lendingABI, "supplyRatePerBlock", big.NewInt(1_000_000_000))
	fake.Return(pool, lendingABI, "borrowRatePerBlock", big.NewInt(2_000_000_000))
	fake.Return(pool, lendingABI, "underlying", token0)

	info, err := newClassifier(fake, common.Address{}).Classify(context.Background(), pool, "", common.Address{})
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if info.Type != model.PoolTypeLending || info.Asset != token0 {
		t.Fatalf("lending mismatch: %+v", info)
	}

	fake = multicalltest.New()
	fake.Return(pool, vaultABI, "totalAssets", big.NewInt(5e18))
	fake.Handle(pool, vaultABI, "convertToAssets", func(args []interface{}) ([]interface{}, error) {
		shares := args[0].(*big.Int)
		return []interface{}{new(big.Int).Div(new(big.Int).Mul(shares, big.NewInt(105)), big.NewInt(100))}, nil
	})
	fake.Return(pool, vaultABI, "asset", token1)

	info, err = newClassifier(fake, common.Address{}).Classify(context.Background(), pool, "", common.Address{})
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if info.Type != model.PoolTypeVault || info.Asset != token1 {
		t.Fatalf("vault mismatch: %+v", info)
	}
}

func TestClassifyUnknownIsNotAnError(t *testing.T) {
	fake := multicalltest.New()
	info, err := newClassifier(fake, common.Address{}).Classify(context.Background(), pool, "", common.Address{})
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if info.Type != model.PoolTypeUnknown {
		t.Fatalf("expected unknown, got %s", info.Type)
	}
}

func TestClassifyUnknownIsRetried(t *testing.T) {
	poolABI := mustABI(t, dex.PoolABI)
	fake := multicalltest.New()
	c := newClassifier(fake, common.Address{})

	info, err := c.Classify(context.Background(), pool, "", common.Address{})
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if info.Type != model.PoolTypeUnknown {
		t.Fatalf("expected unknown, got %s", info.Type)
	}

	fake.Return(pool, poolABI, "liquidity", big.NewInt(1))
	fake.Return(pool, poolABI, "slot0", big.NewInt(1), big.NewInt(0))
	info, err = c.Classify(context.Background(), pool, "", common.Address{})
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if info.Type != model.PoolTypeConcentrated {
		t.Fatalf("expected concentrated after deployment, got %s", info.Type)
	}
	if fake.RoundTrips() != 2 {
		t.Fatalf("unknown classification must not be cached, got %d round trips", fake.RoundTrips())
	}
}

func TestClassifyCachedPermanently(t *testing.T) {
	poolABI := mustABI(t, dex.PoolABI)
	fake := multicalltest.New()
	fake.Return(pool, poolABI, "liquidity", big.NewInt(1))
	fake.Return(pool, poolABI, "slot0", big.NewInt(1), big.NewInt(0))

	c := newClassifier(fake, common.Address{})
	for i := 0; i < 3; i++ {
		if _, err := c.Classify(context.Background(), pool, "", common.Address{}); err != nil {
			t.Fatalf("classify: %v", err)
		}
	}
	if fake.RoundTrips() != 1 {
		t.Fatalf("classification should be cached, got %d round trips", fake.RoundTrips())
	}

	info, err := c.Classify(context.Background(), pool, model.PoolTypeConstantProduct, gauge)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if info.Type != model.PoolTypeConstantProduct || info.Gauge != gauge {
		t.Fatalf("hint and gauge override not applied: %+v", info)
	}
}

func TestClassifyTransportErrorNotCached(t *testing.T) {
	fake := multicalltest.New()
	fake.Err = context.DeadlineExceeded
	c := newClassifier(fake, common.Address{})
	if _, err := c.Classify(context.Background(), pool, "", common.Address{}); !multicall.IsTransport(err) {
		t.Fatalf("expected transport error, got %v", err)
	}

	fake.Err = nil
	if _, err := c.Classify(context.Background(), pool, "", common.Address{}); err != nil {
		t.Fatalf("classify after recovery: %v", err)
	}
	if fake.RoundTrips() != 2 {
		t.Fatalf("failed classification must not be cached")
	}
}
