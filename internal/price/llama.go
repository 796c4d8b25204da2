package price

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"poolScope/internal/cache"
)

const DefaultLlamaURL = "https://coins.llama.fi"

// minimum confidence for a DefiLlama price to be used
const minConfidence = 0.9

type coinsResponse struct {
	Coins map[string]struct {
		Price      float64 `json:"price"`
		Symbol     string  `json:"symbol"`
		Timestamp  int64   `json:"timestamp"`
		Confidence float64 `json:"confidence"`
	} `json:"coins"`
}

// Llama fetches current prices from the DefiLlama coins API.
type Llama struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      *cache.Cache[decimal.Decimal]
	chainNames map[string]string
	logger     *zap.Logger
	// in-flight coins requests keyed by their sorted id list
	flight singleflight.Group
}

// LlamaConfig configures the DefiLlama price oracle.
type LlamaConfig struct {
	BaseURL string
	RPS     float64
	Burst   int
	Timeout time.Duration
	// ChainNames maps local chain names to DefiLlama chain slugs when they differ.
	ChainNames map[string]string
}

func NewLlama(cfg LlamaConfig, prices *cache.Cache[decimal.Decimal], logger *zap.Logger) *Llama {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultLlamaURL
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if prices == nil {
		prices = cache.New[decimal.Decimal]("prices", nil, time.Minute)
	}
	return &Llama{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		cache:      prices,
		chainNames: cfg.ChainNames,
		logger:     logger,
	}
}

func (l *Llama) Prices(ctx context.Context, chain string, tokens []common.Address) (map[common.Address]decimal.Decimal, error) {
	out := make(map[common.Address]decimal.Decimal, len(tokens))
	var missing []common.Address
	for _, token := range tokens {
		if entry, ok := l.cache.Lookup(ctx, Key(chain, token)); ok {
			out[token] = entry.Value
			continue
		}
		missing = append(missing, token)
	}
	if len(missing) == 0 {
		return out, nil
	}

	slug := chain
	if mapped, ok := l.chainNames[chain]; ok && mapped != "" {
		slug = mapped
	}
	ids := make([]string, len(missing))
	byID := make(map[string]common.Address, len(missing))
	for i, token := range missing {
		id := strings.ToLower(slug + ":" + token.Hex())
		ids[i] = id
		byID[id] = token
	}
	sort.Strings(ids)

	ch := l.flight.DoChan(strings.Join(ids, ","), func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.httpClient.Timeout)
		defer cancel()
		return l.fetch(fctx, ids)
	})
	var fetched map[string]decimal.Decimal
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		fetched = res.Val.(map[string]decimal.Decimal)
	}

	for id, p := range fetched {
		token := byID[id]
		l.cache.Put(ctx, Key(chain, token), p)
		out[token] = p
	}
	return out, nil
}

// fetch requests current prices for ids and returns the usable ones by lowercase id.
func (l *Llama) fetch(ctx context.Context, ids []string) (map[string]decimal.Decimal, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/prices/current/%s", l.baseURL, strings.Join(ids, ","))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llama prices: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("llama prices: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var decoded coinsResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode llama prices: %w", err)
	}
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	out := make(map[string]decimal.Decimal, len(decoded.Coins))
	for id, coin := range decoded.Coins {
		id = strings.ToLower(id)
		if !wanted[id] || coin.Price <= 0 {
			continue
		}
		if coin.Confidence > 0 && coin.Confidence < minConfidence {
			l.logger.Debug("low confidence price ignored", zap.String("coin", id), zap.Float64("confidence", coin.Confidence))
			continue
		}
		out[id] = decimal.NewFromFloat(coin.Price)
	}
	return out, nil
}
