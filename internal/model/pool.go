package model

import (
	"strings"
	"time"
)

// PoolType identifies the accounting rules a pool follows.
type PoolType string

const (
	PoolTypeConstantProduct PoolType = "constant-product"
	PoolTypeConcentrated    PoolType = "concentrated-liquidity"
	PoolTypeLending         PoolType = "lending"
	PoolTypeVault           PoolType = "vault"
	PoolTypeUnknown         PoolType = "unknown"
)

// ParsePoolType maps user input to a PoolType. Empty input is not an error.
func ParsePoolType(input string) (PoolType, bool) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "":
		return "", true
	case "constant-product", "cp", "v2", "amm":
		return PoolTypeConstantProduct, true
	case "concentrated-liquidity", "cl", "v3":
		return PoolTypeConcentrated, true
	case "lending":
		return PoolTypeLending, true
	case "vault", "erc4626":
		return PoolTypeVault, true
	case "unknown":
		return PoolTypeUnknown, true
	default:
		return "", false
	}
}

// PoolRef identifies a pool and carries optional caller hints.
type PoolRef struct {
	Chain    string   `json:"chain"`
	Address  string   `json:"address"`
	Protocol string   `json:"protocol,omitempty"`
	TypeHint PoolType `json:"type_hint,omitempty"`
	Gauge    string   `json:"gauge,omitempty"`
}

// ID returns the stable pool identifier "chain:address".
func (r PoolRef) ID() string {
	return PoolID(r.Chain, r.Address)
}

// PoolID builds the canonical identifier used for cache keys and records.
func PoolID(chain, address string) string {
	return strings.ToLower(chain) + ":" + strings.ToLower(address)
}

// Emission describes a gauge reward stream.
type Emission struct {
	RewardToken   string  `json:"reward_token"`
	RatePerSecond string  `json:"rate_per_second"`
	PeriodFinish  int64   `json:"period_finish,omitempty"`
	YearlyUSD     float64 `json:"yearly_usd"`
}

// Pool is the normalized on-chain view of a liquidity pool.
type Pool struct {
	ID             string      `json:"id"`
	Chain          string      `json:"chain"`
	Address        string      `json:"address"`
	Type           PoolType    `json:"pool_type"`
	Tokens         []TokenMeta `json:"tokens,omitempty"`
	Gauge          string      `json:"gauge,omitempty"`
	TVLUSD         float64     `json:"tvl_usd"`
	StakedRatio    float64     `json:"staked_ratio"`
	Emission       *Emission   `json:"emission,omitempty"`
	RawBalances    []string    `json:"raw_balances,omitempty"`
	LastVerifiedAt time.Time   `json:"last_verified_at"`
}

// ClampRatio keeps a staked ratio inside [0, 1].
func ClampRatio(ratio float64) float64 {
	if ratio < 0 {
		return 0
	}
	if ratio > 1 {
		return 1
	}
	return ratio
}
