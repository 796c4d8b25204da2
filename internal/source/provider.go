package source

import (
	"context"
	"errors"
	"time"

	"poolScope/internal/model"
)

// Priorities order sources when picking the authoritative value. Lower wins.
const (
	PriorityOnchain  = 0
	PriorityIndex    = 1
	PriorityExternal = 2
)

// ErrNotFound means the source has no data for the pool.
var ErrNotFound = errors.New("pool not found in source")

// Provider is one source of pool data.
type Provider interface {
	Name() string
	Priority() int
	// Supports reports whether the provider can answer for chain.
	Supports(chain string) bool
	Fetch(ctx context.Context, ref model.PoolRef) (model.SourceSnapshot, error)
}

func floatPtr(v float64) *float64 {
	return &v
}

func nowUTC(now func() time.Time) time.Time {
	if now == nil {
		return time.Now().UTC()
	}
	return now().UTC()
}
