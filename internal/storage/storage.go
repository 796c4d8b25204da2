package storage

import (
	"context"

	"poolScope/internal/model"
)

// Sink persists aggregated pool records.
type Sink interface {
	PutRecords(ctx context.Context, records []model.PoolRecord) error
}

// Multi fans records out to every sink and stops at the first failure.
type Multi []Sink

func (m Multi) PutRecords(ctx context.Context, records []model.PoolRecord) error {
	for _, sink := range m {
		if err := sink.PutRecords(ctx, records); err != nil {
			return err
		}
	}
	return nil
}
