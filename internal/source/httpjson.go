package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"poolScope/internal/model"
)

type indexerPool struct {
	TVLUSD       *float64 `json:"tvl_usd"`
	APYPercent   *float64 `json:"apy_percent"`
	Symbol       string   `json:"symbol"`
	StakedTVLUSD *float64 `json:"staked_tvl_usd"`
}

// IndexerProvider reads a generic JSON indexer exposing GET {base}/pools/{chain}/{address}.
// Missing optional fields are tolerated.
type IndexerProvider struct {
	getter  *httpGetter
	baseURL string
	now     func() time.Time
}

func NewIndexerProvider(cfg HTTPConfig, logger *zap.Logger) (*IndexerProvider, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("indexer name is required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("indexer %s: base url is required", cfg.Name)
	}
	cfg = cfg.withDefaults()
	return &IndexerProvider{
		getter:  newHTTPGetter(cfg, logger),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		now:     time.Now,
	}, nil
}

func (p *IndexerProvider) Name() string { return p.getter.cfg.Name }

func (p *IndexerProvider) Priority() int { return PriorityExternal }

func (p *IndexerProvider) Supports(chain string) bool { return p.getter.cfg.supports(chain) }

func (p *IndexerProvider) Fetch(ctx context.Context, ref model.PoolRef) (model.SourceSnapshot, error) {
	endpoint := fmt.Sprintf("%s/pools/%s/%s", p.baseURL, url.PathEscape(ref.Chain), url.PathEscape(strings.ToLower(ref.Address)))

	var body indexerPool
	if err := p.getter.getJSON(ctx, endpoint, &body); err != nil {
		var se *statusError
		if errors.As(err, &se) && se.code == http.StatusNotFound {
			return model.SourceSnapshot{}, ErrNotFound
		}
		return model.SourceSnapshot{}, err
	}
	if body.TVLUSD == nil && body.APYPercent == nil {
		return model.SourceSnapshot{}, ErrNotFound
	}

	snap := model.SourceSnapshot{
		Source:       p.Name(),
		Priority:     p.Priority(),
		Symbol:       body.Symbol,
		APYStatus:    model.APYUnknown,
		APYReason:    "apy not reported",
		StakedTVLUSD: body.StakedTVLUSD,
		FetchedAt:    nowUTC(p.now),
	}
	if body.TVLUSD != nil {
		snap.TVLUSD = *body.TVLUSD
	}
	if body.APYPercent != nil {
		snap.APYPercent = *body.APYPercent
		snap.APYStatus = model.APYEstimated
		snap.APYReason = "reported by " + p.Name()
	}
	return snap, nil
}
