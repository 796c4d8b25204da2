package aggregate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"poolScope/internal/apy"
	"poolScope/internal/cache"
	"poolScope/internal/metrics"
	"poolScope/internal/model"
	"poolScope/internal/risk"
	"poolScope/internal/source"
)

var (
	// ErrNoData means every source failed for the pool.
	ErrNoData = errors.New("no data")
	// ErrInvalidRequest means the pool reference cannot be queried.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrUnsupportedChain means no source serves the requested chain.
	ErrUnsupportedChain = errors.New("unsupported chain")
)

const defaultSourceTimeout = 10 * time.Second

// Source is a provider with its snapshot cache and per-fetch timeout.
type Source struct {
	Provider source.Provider
	// Cache may be nil, in which case every request hits the provider.
	Cache   *cache.Cache[model.SourceSnapshot]
	Timeout time.Duration
}

// Config controls reconciliation.
type Config struct {
	Threshold float64
}

// Aggregator fans a pool request out to every source for its chain and merges the answers.
type Aggregator struct {
	cfg     Config
	sources []Source
	engine  *apy.Engine
	risk    *risk.Engine
	logger  *zap.Logger
}

func NewAggregator(cfg Config, sources []Source, engine *apy.Engine, riskEngine *risk.Engine, logger *zap.Logger) *Aggregator {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if engine == nil {
		engine = apy.NewEngine()
	}
	if riskEngine == nil {
		riskEngine = risk.NewEngine(risk.Metadata{})
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		cfg:     cfg,
		sources: sources,
		engine:  engine,
		risk:    riskEngine,
		logger:  logger,
	}
}

// SnapshotKey is the cache key of one source's view of a pool.
func SnapshotKey(sourceName, chain, address string) string {
	return fmt.Sprintf("snapshot:%s:%s:%s", sourceName, strings.ToLower(chain), strings.ToLower(address))
}

// Aggregate returns the reconciled, risk-scored record for ref.
// Individual source failures are logged and dropped. ErrNoData is returned only
// when no source answered.
func (a *Aggregator) Aggregate(ctx context.Context, ref model.PoolRef) (model.PoolRecord, error) {
	if ref.Chain == "" {
		return model.PoolRecord{}, fmt.Errorf("%w: chain is required", ErrInvalidRequest)
	}
	if !common.IsHexAddress(ref.Address) {
		return model.PoolRecord{}, fmt.Errorf("%w: bad pool address %q", ErrInvalidRequest, ref.Address)
	}
	if ref.Gauge != "" && !common.IsHexAddress(ref.Gauge) {
		return model.PoolRecord{}, fmt.Errorf("%w: bad gauge address %q", ErrInvalidRequest, ref.Gauge)
	}
	ref.Address = common.HexToAddress(ref.Address).Hex()

	var active []Source
	for _, src := range a.sources {
		if src.Provider.Supports(ref.Chain) {
			active = append(active, src)
		}
	}
	if len(active) == 0 {
		return model.PoolRecord{}, fmt.Errorf("%w: %s", ErrUnsupportedChain, ref.Chain)
	}

	snaps, errs := a.fetchAll(ctx, ref, active)
	if len(snaps) == 0 {
		return model.PoolRecord{}, fmt.Errorf("%w for %s: %w", ErrNoData, ref.ID(), errors.Join(errs...))
	}
	return a.merge(ref, snaps), nil
}

func (a *Aggregator) fetchAll(ctx context.Context, ref model.PoolRef, active []Source) ([]model.SourceSnapshot, []error) {
	results := make([]model.SourceSnapshot, len(active))
	errs := make([]error, len(active))

	var g errgroup.Group
	for i, src := range active {
		i, src := i, src
		g.Go(func() error {
			results[i], errs[i] = a.fetchOne(ctx, ref, src)
			return nil
		})
	}
	_ = g.Wait()

	var snaps []model.SourceSnapshot
	var failed []error
	for i := range active {
		if errs[i] != nil {
			failed = append(failed, errs[i])
			continue
		}
		snaps = append(snaps, results[i])
	}
	sort.SliceStable(snaps, func(i, j int) bool {
		if snaps[i].Priority != snaps[j].Priority {
			return snaps[i].Priority < snaps[j].Priority
		}
		return snaps[i].Source < snaps[j].Source
	})
	return snaps, failed
}

func (a *Aggregator) fetchOne(ctx context.Context, ref model.PoolRef, src Source) (model.SourceSnapshot, error) {
	name := src.Provider.Name()
	timeout := src.Timeout
	if timeout <= 0 {
		timeout = defaultSourceTimeout
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	fetch := func(ctx context.Context) (model.SourceSnapshot, error) {
		return src.Provider.Fetch(ctx, ref)
	}

	var snap model.SourceSnapshot
	var err error
	if src.Cache != nil {
		var entry cache.Entry[model.SourceSnapshot]
		entry, err = src.Cache.Get(tctx, SnapshotKey(name, ref.Chain, ref.Address), fetch)
		snap = entry.Value
		snap.FetchedAt = entry.FetchedAt.UTC()
	} else {
		snap, err = fetch(tctx)
	}
	metrics.SourceLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())

	if err != nil {
		status := "error"
		if errors.Is(err, source.ErrNotFound) {
			status = "not_found"
		}
		metrics.SourceFetches.WithLabelValues(name, status).Inc()
		a.logger.Warn("source fetch failed",
			zap.String("source", name),
			zap.String("pool", ref.ID()),
			zap.Error(err),
		)
		return model.SourceSnapshot{}, fmt.Errorf("%s: %w", name, err)
	}
	metrics.SourceFetches.WithLabelValues(name, "ok").Inc()
	snap.Source = name
	snap.Priority = src.Provider.Priority()
	return snap, nil
}

// merge builds the record from snapshots sorted by priority.
func (a *Aggregator) merge(ref model.PoolRef, snaps []model.SourceSnapshot) model.PoolRecord {
	rec := Reconcile(snaps, a.cfg.Threshold)

	record := model.PoolRecord{
		PoolID:    model.PoolID(ref.Chain, ref.Address),
		Chain:     ref.Chain,
		Address:   ref.Address,
		Protocol:  ref.Protocol,
		PoolType:  model.PoolTypeUnknown,
		Divergent: rec.Divergent,
		Status:    model.StatusConsistent,
	}
	switch {
	case len(snaps) == 1:
		record.Status = model.StatusSingleSource
	case rec.Divergent:
		record.Status = model.StatusDivergent
	}

	var onchain *model.SourceSnapshot
	for i := range snaps {
		if snaps[i].Pool != nil {
			onchain = &snaps[i]
			break
		}
	}
	record.PoolType = poolType(ref, snaps)
	if onchain != nil {
		ratio := onchain.Pool.StakedRatio
		record.StakedRatio = &ratio
	}

	for _, snap := range snaps {
		if record.Symbol == "" {
			record.Symbol = snap.Symbol
		}
		if record.TVLUSD == 0 && snap.TVLUSD > 0 {
			record.TVLUSD = snap.TVLUSD
		}
	}

	apySnap := snaps[0]
	for _, snap := range snaps {
		if snap.UsableAPY() {
			apySnap = snap
			break
		}
	}
	record.APYPercent = apySnap.APYPercent
	record.APYStatus = apySnap.APYStatus
	record.APYReason = apySnap.APYReason
	record.APYSource = apySnap.Source
	if record.APYStatus == "" {
		record.APYStatus = model.APYUnknown
	}
	if promoted, ok := a.promote(record.PoolID, apySnap, snaps); ok {
		record.APYPercent = promoted.APYPercent
		record.APYStatus = promoted.Status
		record.APYReason = promoted.Reason
		record.APYSource = promoted.Source
	}

	var tvls []float64
	for _, snap := range snaps {
		view := model.SourceView{
			Name:         snap.Source,
			Priority:     snap.Priority,
			APYPercent:   snap.APYPercent,
			APYStatus:    snap.APYStatus,
			TVLUSD:       snap.TVLUSD,
			StakedTVLUSD: snap.StakedTVLUSD,
			FetchedAt:    snap.FetchedAt,
		}
		if dev, ok := rec.Deviations[snap.Source]; ok {
			view.Deviation = &dev
		}
		record.Sources = append(record.Sources, view)
		tvls = append(tvls, snap.TVLUSD)
	}

	record.AsOf = asOf(onchain, snaps)
	record.Risk = a.risk.Score(risk.Input{
		PoolID:      record.PoolID,
		Protocol:    ref.Protocol,
		PoolType:    record.PoolType,
		TVLUSD:      record.TVLUSD,
		SourceTVLs:  tvls,
		APYPercent:  record.APYPercent,
		APYStatus:   record.APYStatus,
		StakedRatio: record.StakedRatio,
		AsOf:        record.AsOf,
	})

	if rec.Divergent {
		metrics.DivergentPools.Inc()
		a.logger.Warn("sources diverge",
			zap.String("pool", record.PoolID),
			zap.Float64("median_apy", rec.Median),
			zap.Int("sources", len(snaps)),
		)
	}
	a.logger.Debug("pool aggregated",
		zap.String("pool", record.PoolID),
		zap.String("status", string(record.Status)),
		zap.Float64("apy", record.APYPercent),
		zap.String("apy_source", record.APYSource),
	)
	return record
}

// promote recomputes an estimated concentrated-liquidity APY with a staked TVL
// reported by a lower priority source.
func (a *Aggregator) promote(poolID string, auth model.SourceSnapshot, snaps []model.SourceSnapshot) (model.APYResult, bool) {
	if auth.Pool == nil || auth.PoolType != model.PoolTypeConcentrated || auth.APYStatus != model.APYEstimated {
		return model.APYResult{}, false
	}
	for _, snap := range snaps {
		if snap.Priority <= auth.Priority || snap.StakedTVLUSD == nil || *snap.StakedTVLUSD <= 0 {
			continue
		}
		staked := decimal.NewFromFloat(*snap.StakedTVLUSD)
		res := a.engine.Compute(model.PoolTypeConcentrated, apy.Inputs{
			PoolID:             poolID,
			Source:             auth.Source + "+" + snap.Source,
			TVLUSD:             decimal.NewFromFloat(auth.TVLUSD),
			StakedRatio:        decimal.NewFromFloat(auth.Pool.StakedRatio),
			StakedTVLUSD:       &staked,
			YearlyEmissionsUSD: decimal.NewFromFloat(auth.YearlyEmissionsUSD),
			HasGauge:           auth.Pool.Gauge != "",
		})
		if res.Status != model.APYVerified {
			return model.APYResult{}, false
		}
		res.APYPercent = round(res.APYPercent, 6)
		return res, true
	}
	return model.APYResult{}, false
}

func poolType(ref model.PoolRef, snaps []model.SourceSnapshot) model.PoolType {
	for _, snap := range snaps {
		if snap.PoolType != "" {
			return snap.PoolType
		}
	}
	if ref.TypeHint != "" {
		return ref.TypeHint
	}
	return model.PoolTypeUnknown
}

// asOf prefers the on-chain read time so scores stay stable within one cache window.
func asOf(onchain *model.SourceSnapshot, snaps []model.SourceSnapshot) time.Time {
	if onchain != nil {
		return onchain.FetchedAt
	}
	var newest time.Time
	for _, snap := range snaps {
		if snap.FetchedAt.After(newest) {
			newest = snap.FetchedAt
		}
	}
	return newest
}
