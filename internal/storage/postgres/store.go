package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"poolScope/internal/model"
)

// Schema creates the tables used by Store. Snapshot history is append-only.
const Schema = `
CREATE TABLE IF NOT EXISTS pools (
	pool_id        TEXT PRIMARY KEY,
	chain          TEXT NOT NULL,
	pool_address   TEXT NOT NULL,
	protocol       TEXT,
	pool_type      TEXT NOT NULL,
	symbol         TEXT,
	first_seen_at  TIMESTAMPTZ NOT NULL,
	last_as_of     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS pool_snapshots (
	id             BIGSERIAL PRIMARY KEY,
	pool_id        TEXT NOT NULL REFERENCES pools(pool_id),
	as_of          TIMESTAMPTZ NOT NULL,
	tvl_usd        DOUBLE PRECISION NOT NULL,
	apy_percent    DOUBLE PRECISION NOT NULL,
	apy_status     TEXT NOT NULL,
	apy_source     TEXT NOT NULL,
	staked_ratio   DOUBLE PRECISION,
	risk_overall   DOUBLE PRECISION NOT NULL,
	risk_level     TEXT NOT NULL,
	status         TEXT NOT NULL,
	record         JSONB NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (pool_id, as_of)
);

CREATE INDEX IF NOT EXISTS pool_snapshots_pool_as_of ON pool_snapshots (pool_id, as_of DESC);

CREATE TABLE IF NOT EXISTS refresher_state (
	name           TEXT PRIMARY KEY,
	last_run_at    TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Store provides Postgres persistence for pool records.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate applies Schema.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// PutRecords upserts pool identity rows and appends one snapshot per record.
// A record already stored for the same as_of is skipped.
func (s *Store) PutRecords(ctx context.Context, records []model.PoolRecord) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, rec := range records {
		body, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal record %s: %w", rec.PoolID, err)
		}
		batch.Queue(`
			INSERT INTO pools (
				pool_id, chain, pool_address, protocol, pool_type, symbol, first_seen_at, last_as_of, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $7, now())
			ON CONFLICT (pool_id)
			DO UPDATE SET
				protocol = COALESCE(NULLIF(EXCLUDED.protocol, ''), pools.protocol),
				pool_type = EXCLUDED.pool_type,
				symbol = COALESCE(NULLIF(EXCLUDED.symbol, ''), pools.symbol),
				first_seen_at = LEAST(pools.first_seen_at, EXCLUDED.first_seen_at),
				last_as_of = GREATEST(pools.last_as_of, EXCLUDED.last_as_of),
				updated_at = now()
		`,
			rec.PoolID,
			rec.Chain,
			rec.Address,
			rec.Protocol,
			string(rec.PoolType),
			rec.Symbol,
			rec.AsOf,
		)
		batch.Queue(`
			INSERT INTO pool_snapshots (
				pool_id, as_of, tvl_usd, apy_percent, apy_status, apy_source, staked_ratio,
				risk_overall, risk_level, status, record
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
			ON CONFLICT (pool_id, as_of) DO NOTHING
		`,
			rec.PoolID,
			rec.AsOf,
			rec.TVLUSD,
			rec.APYPercent,
			string(rec.APYStatus),
			rec.APYSource,
			rec.StakedRatio,
			rec.Risk.Overall,
			string(rec.Risk.Level),
			string(rec.Status),
			body,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// History returns up to limit snapshots of a pool, newest first.
func (s *Store) History(ctx context.Context, poolID string, limit int) ([]model.PoolRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT record FROM pool_snapshots WHERE pool_id = $1 ORDER BY as_of DESC LIMIT $2
	`, poolID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.PoolRecord
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var rec model.PoolRecord
		if err := json.Unmarshal(body, &rec); err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// LoadState returns the last refresher run time for a name.
func (s *Store) LoadState(ctx context.Context, name string) (time.Time, bool, error) {
	if name == "" {
		return time.Time{}, false, fmt.Errorf("state name required")
	}
	var ts time.Time
	row := s.pool.QueryRow(ctx, `SELECT last_run_at FROM refresher_state WHERE name=$1`, name)
	if err := row.Scan(&ts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	return ts.UTC(), true, nil
}

// SaveState upserts the last refresher run time for a name.
func (s *Store) SaveState(ctx context.Context, name string, ts time.Time) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO refresher_state (name, last_run_at, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_run_at = EXCLUDED.last_run_at, updated_at = now()
	`, name, ts)
	return err
}
