package model

import "time"

// RecordStatus summarizes agreement between sources.
type RecordStatus string

const (
	StatusConsistent   RecordStatus = "consistent"
	StatusDivergent    RecordStatus = "divergent"
	StatusSingleSource RecordStatus = "single-source"
)

// SourceView is the per-source entry of a PoolRecord.
type SourceView struct {
	Name         string    `json:"name"`
	Priority     int       `json:"priority"`
	APYPercent   float64   `json:"apy_percent"`
	APYStatus    APYStatus `json:"apy_status"`
	TVLUSD       float64   `json:"tvl_usd"`
	StakedTVLUSD *float64  `json:"staked_tvl_usd,omitempty"`
	FetchedAt    time.Time `json:"fetched_at"`
	Deviation    *float64  `json:"deviation,omitempty"`
}

// PoolRecord is the reconciled, risk-scored output for one pool.
type PoolRecord struct {
	PoolID      string       `json:"pool_id"`
	Chain       string       `json:"chain"`
	Address     string       `json:"address"`
	Protocol    string       `json:"protocol,omitempty"`
	PoolType    PoolType     `json:"pool_type"`
	Symbol      string       `json:"symbol,omitempty"`
	TVLUSD      float64      `json:"tvl_usd"`
	APYPercent  float64      `json:"apy_percent"`
	APYStatus   APYStatus    `json:"apy_status"`
	APYSource   string       `json:"apy_source"`
	APYReason   string       `json:"apy_reason,omitempty"`
	StakedRatio *float64     `json:"staked_ratio,omitempty"`
	Risk        RiskScore    `json:"risk_score"`
	Sources     []SourceView `json:"sources"`
	Divergent   bool         `json:"divergent"`
	Status      RecordStatus `json:"status"`
	AsOf        time.Time    `json:"as_of"`
}
