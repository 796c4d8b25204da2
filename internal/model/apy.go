package model

// APYStatus tells consumers how far an APY figure can be trusted.
type APYStatus string

const (
	APYVerified  APYStatus = "verified"
	APYEstimated APYStatus = "estimated"
	APYUnknown   APYStatus = "unknown"
)

// APYResult is the computed yield for a pool.
type APYResult struct {
	PoolID     string    `json:"pool_id"`
	APYPercent float64   `json:"apy_percent"`
	Status     APYStatus `json:"status"`
	Source     string    `json:"source"`
	Reason     string    `json:"reason,omitempty"`
}
