package model

import "time"

// SourceSnapshot is one provider's view of a pool at FetchedAt.
type SourceSnapshot struct {
	Source             string    `json:"source"`
	Priority           int       `json:"priority"`
	PoolType           PoolType  `json:"pool_type,omitempty"`
	Symbol             string    `json:"symbol,omitempty"`
	APYPercent         float64   `json:"apy_percent"`
	APYStatus          APYStatus `json:"apy_status"`
	APYReason          string    `json:"apy_reason,omitempty"`
	TVLUSD             float64   `json:"tvl_usd"`
	StakedTVLUSD       *float64  `json:"staked_tvl_usd,omitempty"`
	YearlyEmissionsUSD float64   `json:"yearly_emissions_usd,omitempty"`
	FetchedAt          time.Time `json:"fetched_at"`
	Pool               *Pool     `json:"pool,omitempty"`
}

// UsableAPY reports whether the snapshot's APY takes part in reconciliation.
func (s SourceSnapshot) UsableAPY() bool {
	return s.APYStatus != "" && s.APYStatus != APYUnknown
}
