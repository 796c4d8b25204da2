package dex

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"poolScope/internal/model"
	"poolScope/internal/multicall"
)

// TokenMetaCache caches token metadata by address. Token metadata never changes.
type TokenMetaCache struct {
	mu   sync.RWMutex
	data map[common.Address]model.TokenMeta
}

func NewTokenMetaCache() *TokenMetaCache {
	return &TokenMetaCache{data: make(map[common.Address]model.TokenMeta)}
}

func (c *TokenMetaCache) Get(address common.Address) (model.TokenMeta, bool) {
	c.mu.RLock()
	meta, ok := c.data[address]
	c.mu.RUnlock()
	return meta, ok
}

func (c *TokenMetaCache) Set(address common.Address, meta model.TokenMeta) {
	c.mu.Lock()
	c.data[address] = meta
	c.mu.Unlock()
}

// FetchTokenMetas resolves decimals and symbols for tokens, batching every uncached
// token into one multicall. Tokens whose decimals cannot be read are left out.
func FetchTokenMetas(ctx context.Context, batcher multicall.Batcher, tokens []common.Address, cache *TokenMetaCache, logger *zap.Logger) (map[common.Address]model.TokenMeta, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	out := make(map[common.Address]model.TokenMeta, len(tokens))
	missing := make([]common.Address, 0, len(tokens))
	seen := make(map[common.Address]struct{}, len(tokens))
	for _, token := range tokens {
		if token == (common.Address{}) {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		if cache != nil {
			if meta, ok := cache.Get(token); ok {
				out[token] = meta
				continue
			}
		}
		missing = append(missing, token)
	}
	if len(missing) == 0 {
		return out, nil
	}

	erc20, err := ERC20ABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}

	calls := make([]multicall.CallSpec, 0, len(missing)*2)
	for _, token := range missing {
		decimalsCall, err := multicall.NewCall(token, erc20, "decimals", true)
		if err != nil {
			return nil, err
		}
		symbolCall, err := multicall.NewCall(token, erc20, "symbol", true)
		if err != nil {
			return nil, err
		}
		calls = append(calls, decimalsCall, symbolCall)
	}

	results, err := batcher.Execute(ctx, calls)
	if err != nil {
		return nil, fmt.Errorf("token metadata batch: %w", err)
	}

	var fallback []common.Address
	for i, token := range missing {
		decRes, symRes := results[2*i], results[2*i+1]
		if !decRes.Success {
			logger.Warn("token decimals unavailable", zap.String("token", token.Hex()))
			continue
		}
		decimals, err := multicall.AsUint8(decRes.Value)
		if err != nil {
			logger.Warn("token decimals decode failed", zap.String("token", token.Hex()), zap.Error(err))
			continue
		}
		meta := model.TokenMeta{Address: token.Hex(), Decimals: decimals}
		if symRes.Success {
			meta.Symbol, _ = multicall.AsString(symRes.Value)
		} else {
			fallback = append(fallback, token)
		}
		out[token] = meta
	}

	if len(fallback) > 0 {
		resolveBytes32Symbols(ctx, batcher, fallback, out, logger)
	}

	if cache != nil {
		for _, token := range missing {
			if meta, ok := out[token]; ok {
				cache.Set(token, meta)
			}
		}
	}
	return out, nil
}

func resolveBytes32Symbols(ctx context.Context, batcher multicall.Batcher, tokens []common.Address, out map[common.Address]model.TokenMeta, logger *zap.Logger) {
	legacy, err := ERC20Bytes32ABI()
	if err != nil {
		return
	}
	calls := make([]multicall.CallSpec, 0, len(tokens))
	for _, token := range tokens {
		call, err := multicall.NewCall(token, legacy, "symbol", true)
		if err != nil {
			return
		}
		calls = append(calls, call)
	}
	results, err := batcher.Execute(ctx, calls)
	if err != nil {
		logger.Debug("bytes32 symbol batch failed", zap.Error(err))
		return
	}
	for i, token := range tokens {
		if !results[i].Success {
			continue
		}
		if symbol, ok := multicall.AsString(results[i].Value); ok {
			meta := out[token]
			meta.Symbol = symbol
			out[token] = meta
		}
	}
}
