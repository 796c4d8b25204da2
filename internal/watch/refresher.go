// Package watch keeps a watchlist of pools fresh on a cron schedule.
package watch

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"poolScope/internal/metrics"
	"poolScope/internal/model"
	"poolScope/internal/storage"
)

const DefaultSchedule = "@every 5m"

// Aggregator produces one pool record.
type Aggregator interface {
	Aggregate(ctx context.Context, ref model.PoolRef) (model.PoolRecord, error)
}

// Config controls the refresher.
type Config struct {
	// Schedule is a standard cron spec or descriptor such as "@every 5m".
	Schedule    string
	Concurrency int
	Pools       []model.PoolRef
}

// Filter narrows Records. Zero fields match everything.
type Filter struct {
	Chain  string
	MinTVL float64
	MinAPY float64
}

func (f Filter) match(rec model.PoolRecord) bool {
	if f.Chain != "" && !strings.EqualFold(f.Chain, rec.Chain) {
		return false
	}
	if rec.TVLUSD < f.MinTVL {
		return false
	}
	if f.MinAPY > 0 && (rec.APYStatus == model.APYUnknown || rec.APYPercent < f.MinAPY) {
		return false
	}
	return true
}

// Refresher re-aggregates the watchlist and keeps the latest record per pool.
type Refresher struct {
	cfg      Config
	agg      Aggregator
	sink     storage.Sink
	state    StateStore
	schedule cron.Schedule
	cron     *cron.Cron
	logger   *zap.Logger
	now      func() time.Time

	mu      sync.RWMutex
	records map[string]model.PoolRecord
	lastRun time.Time
}

// NewRefresher validates the schedule. sink and state may be nil.
func NewRefresher(cfg Config, agg Aggregator, sink storage.Sink, state StateStore, logger *zap.Logger) (*Refresher, error) {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	schedule, err := cron.ParseStandard(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", cfg.Schedule, err)
	}
	cronLogger := cron.PrintfLogger(zap.NewStdLog(logger.Named("cron")))
	return &Refresher{
		cfg:      cfg,
		agg:      agg,
		sink:     sink,
		state:    state,
		schedule: schedule,
		cron:     cron.New(cron.WithLogger(cronLogger), cron.WithChain(cron.SkipIfStillRunning(cronLogger))),
		logger:   logger,
		now:      time.Now,
		records:  make(map[string]model.PoolRecord),
	}, nil
}

// Start schedules refreshes until ctx is done or Stop is called. When the last
// persisted run is already due, one refresh starts immediately.
func (r *Refresher) Start(ctx context.Context) error {
	r.cron.Schedule(r.schedule, cron.FuncJob(func() {
		if err := r.RunOnce(ctx); err != nil {
			r.logger.Error("scheduled refresh failed", zap.Error(err))
		}
	}))

	due := true
	if r.state != nil {
		last, ok, err := r.state.Load(ctx)
		if err != nil {
			r.logger.Warn("load refresher state", zap.Error(err))
		} else if ok {
			due = !r.schedule.Next(last).After(r.now())
		}
	}

	r.cron.Start()
	r.logger.Info("refresher started",
		zap.String("schedule", r.cfg.Schedule),
		zap.Int("pools", len(r.cfg.Pools)),
		zap.Bool("run_now", due),
	)
	if due {
		go func() {
			if err := r.RunOnce(ctx); err != nil {
				r.logger.Error("initial refresh failed", zap.Error(err))
			}
		}()
	}
	go func() {
		<-ctx.Done()
		r.Stop()
	}()
	return nil
}

// Stop halts the schedule and waits for a running refresh to finish.
func (r *Refresher) Stop() {
	<-r.cron.Stop().Done()
}

// RunOnce refreshes every watched pool. Pool failures are logged and skipped.
// It fails only when every pool failed or the sink rejected the batch.
func (r *Refresher) RunOnce(ctx context.Context) error {
	started := r.now()
	results := make([]*model.PoolRecord, len(r.cfg.Pools))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for i, ref := range r.cfg.Pools {
		i, ref := i, ref
		g.Go(func() error {
			rec, err := r.agg.Aggregate(gctx, ref)
			if err != nil {
				r.logger.Warn("refresh pool failed", zap.String("pool", ref.ID()), zap.Error(err))
				return nil
			}
			results[i] = &rec
			return nil
		})
	}
	_ = g.Wait()

	batch := make([]model.PoolRecord, 0, len(results))
	for _, rec := range results {
		if rec != nil {
			batch = append(batch, *rec)
		}
	}

	r.mu.Lock()
	for _, rec := range batch {
		r.records[rec.PoolID] = rec
	}
	r.lastRun = started
	r.mu.Unlock()

	if len(r.cfg.Pools) > 0 && len(batch) == 0 {
		metrics.RefreshRuns.WithLabelValues("error").Inc()
		return fmt.Errorf("refresh: all %d pools failed", len(r.cfg.Pools))
	}

	if r.sink != nil {
		if err := r.sink.PutRecords(ctx, batch); err != nil {
			metrics.RefreshRuns.WithLabelValues("error").Inc()
			return fmt.Errorf("persist records: %w", err)
		}
	}
	if r.state != nil {
		if err := r.state.Save(ctx, started); err != nil {
			r.logger.Warn("save refresher state", zap.Error(err))
		}
	}

	status := "ok"
	if len(batch) < len(r.cfg.Pools) {
		status = "partial"
	}
	metrics.RefreshRuns.WithLabelValues(status).Inc()
	r.logger.Info("refresh complete",
		zap.Int("pools", len(r.cfg.Pools)),
		zap.Int("refreshed", len(batch)),
		zap.Duration("elapsed", r.now().Sub(started)),
	)
	return nil
}

// Record returns the latest record for a pool id.
func (r *Refresher) Record(poolID string) (model.PoolRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[strings.ToLower(poolID)]
	return rec, ok
}

// Records returns the latest records matching f, ordered by pool id.
func (r *Refresher) Records(f Filter) []model.PoolRecord {
	r.mu.RLock()
	out := make([]model.PoolRecord, 0, len(r.records))
	for _, rec := range r.records {
		if f.match(rec) {
			out = append(out, rec)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].PoolID < out[j].PoolID })
	return out
}

// LastRun returns the start time of the latest refresh, zero before the first one.
func (r *Refresher) LastRun() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastRun
}
