package model

// RiskLevel buckets an overall risk score.
type RiskLevel string

const (
	RiskLow      RiskLevel = "Low"
	RiskMedium   RiskLevel = "Medium"
	RiskHigh     RiskLevel = "High"
	RiskCritical RiskLevel = "Critical"
)

// RiskFactor is a single weighted component of a risk score.
type RiskFactor struct {
	Score  float64 `json:"score"`
	Weight float64 `json:"weight"`
	Reason string  `json:"reason"`
}

// RiskScore is the weighted 0-100 score attached to a pool record. Higher is safer.
type RiskScore struct {
	PoolID   string                `json:"pool_id"`
	Overall  float64               `json:"overall"`
	Level    RiskLevel             `json:"level"`
	Factors  map[string]RiskFactor `json:"factors,omitempty"`
	Warnings []string              `json:"warnings"`
}
