package price

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Oracle returns USD prices for tokens on a chain. Tokens without a price are
// absent from the result; that is not an error.
type Oracle interface {
	Prices(ctx context.Context, chain string, tokens []common.Address) (map[common.Address]decimal.Decimal, error)
}

// Key builds the "chain:address" lookup key used by static tables and caches.
func Key(chain string, token common.Address) string {
	return strings.ToLower(chain) + ":" + strings.ToLower(token.Hex())
}

// Static serves fixed prices, typically stablecoins pinned in config.
type Static struct {
	prices map[string]decimal.Decimal
}

// NewStatic builds a static oracle from "chain:address" -> USD entries.
func NewStatic(entries map[string]float64) *Static {
	prices := make(map[string]decimal.Decimal, len(entries))
	for key, usd := range entries {
		prices[strings.ToLower(strings.TrimSpace(key))] = decimal.NewFromFloat(usd)
	}
	return &Static{prices: prices}
}

func (s *Static) Prices(_ context.Context, chain string, tokens []common.Address) (map[common.Address]decimal.Decimal, error) {
	out := make(map[common.Address]decimal.Decimal, len(tokens))
	for _, token := range tokens {
		if p, ok := s.prices[Key(chain, token)]; ok {
			out[token] = p
		}
	}
	return out, nil
}

// Chain asks each oracle in turn for the tokens still missing.
type Chain []Oracle

func (c Chain) Prices(ctx context.Context, chain string, tokens []common.Address) (map[common.Address]decimal.Decimal, error) {
	out := make(map[common.Address]decimal.Decimal, len(tokens))
	missing := tokens
	var firstErr error
	for _, oracle := range c {
		if len(missing) == 0 {
			break
		}
		prices, err := oracle.Prices(ctx, chain, missing)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		next := missing[:0:0]
		for _, token := range missing {
			if p, ok := prices[token]; ok {
				out[token] = p
			} else {
				next = append(next, token)
			}
		}
		missing = next
	}
	if len(out) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}
