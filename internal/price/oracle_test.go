package price

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	usdc = common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
	aero = common.HexToAddress("0x940181a94A35A4569E4529A3CDfB74e38FD98631")
)

func TestStaticOracle(t *testing.T) {
	o := NewStatic(map[string]float64{"base:" + strings.ToLower(usdc.Hex()): 1})
	prices, err := o.Prices(context.Background(), "base", []common.Address{usdc, aero})
	require.NoError(t, err)
	assert.True(t, prices[usdc].Equal(decimal.NewFromInt(1)))
	_, ok := prices[aero]
	assert.False(t, ok)
}

type failingOracle struct{}

func (failingOracle) Prices(context.Context, string, []common.Address) (map[common.Address]decimal.Decimal, error) {
	return nil, errors.New("down")
}

func TestLlamaOracleAndChain(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.True(t, strings.HasPrefix(r.URL.Path, "/prices/current/"))
		assert.NotContains(t, strings.ToLower(r.URL.Path), strings.ToLower(usdc.Hex()), "static price should not be requested")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"coins":{"base:` + strings.ToLower(aero.Hex()) + `":{"price":1.25,"symbol":"AERO","confidence":0.99}}}`))
	}))
	defer srv.Close()

	llama := NewLlama(LlamaConfig{BaseURL: srv.URL, RPS: 100, Burst: 10}, nil, nil)
	oracle := Chain{
		NewStatic(map[string]float64{"base:" + strings.ToLower(usdc.Hex()): 1}),
		failingOracle{},
		llama,
	}

	prices, err := oracle.Prices(context.Background(), "base", []common.Address{usdc, aero})
	require.NoError(t, err)
	assert.True(t, prices[usdc].Equal(decimal.NewFromInt(1)))
	assert.True(t, prices[aero].Equal(decimal.NewFromFloat(1.25)))

	// second lookup is served from cache
	_, err = llama.Prices(context.Background(), "base", []common.Address{aero})
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestLlamaConcurrentMissesShareOneRequest(t *testing.T) {
	var hits int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		<-release
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"coins":{"base:` + strings.ToLower(aero.Hex()) + `":{"price":1.25,"confidence":0.99}}}`))
	}))
	defer srv.Close()

	llama := NewLlama(LlamaConfig{BaseURL: srv.URL, RPS: 100, Burst: 10}, nil, nil)

	const callers = 8
	var wg sync.WaitGroup
	got := make([]decimal.Decimal, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			prices, err := llama.Prices(context.Background(), "base", []common.Address{aero})
			if err == nil {
				got[i] = prices[aero]
			}
		}(i)
	}

	// let every caller join the in-flight request
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	for _, p := range got {
		assert.True(t, p.Equal(decimal.NewFromFloat(1.25)))
	}
}
