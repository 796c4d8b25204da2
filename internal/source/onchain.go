package source

import (
	"context"
	"time"

	"go.uber.org/zap"

	"poolScope/internal/chain"
	"poolScope/internal/model"
	"poolScope/internal/multicall"
	"poolScope/internal/onchain"
)

// OnchainProvider reads pools directly from contracts on one chain.
type OnchainProvider struct {
	reader     *onchain.Reader
	maxRetries int
	backoff    time.Duration
	now        func() time.Time
	logger     *zap.Logger
}

func NewOnchainProvider(reader *onchain.Reader, maxRetries int, backoff time.Duration, logger *zap.Logger) *OnchainProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OnchainProvider{reader: reader, maxRetries: maxRetries, backoff: backoff, now: time.Now, logger: logger}
}

func (p *OnchainProvider) Name() string { return "onchain" }

func (p *OnchainProvider) Priority() int { return PriorityOnchain }

func (p *OnchainProvider) Supports(chain string) bool { return chain == p.reader.Chain() }

// Fetch retries transport failures with exponential backoff. Other errors are returned at once.
func (p *OnchainProvider) Fetch(ctx context.Context, ref model.PoolRef) (model.SourceSnapshot, error) {
	var reading onchain.Reading
	attempt := 0
	err := chain.WithRetryIf(ctx, p.maxRetries, p.backoff, multicall.IsTransport, func(ctx context.Context) error {
		attempt++
		var err error
		reading, err = p.reader.Read(ctx, ref)
		if err != nil && multicall.IsTransport(err) {
			p.logger.Warn("onchain read failed",
				zap.String("pool", ref.ID()),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		}
		return err
	})
	if err != nil {
		return model.SourceSnapshot{}, err
	}

	pool := reading.Pool
	symbol := ""
	for i, token := range pool.Tokens {
		if i > 0 {
			symbol += "-"
		}
		symbol += token.Symbol
	}
	return model.SourceSnapshot{
		Source:             p.Name(),
		Priority:           p.Priority(),
		PoolType:           pool.Type,
		Symbol:             symbol,
		APYPercent:         reading.APY.APYPercent,
		APYStatus:          reading.APY.Status,
		APYReason:          reading.APY.Reason,
		TVLUSD:             pool.TVLUSD,
		YearlyEmissionsUSD: reading.YearlyEmissionsUSD,
		FetchedAt:          nowUTC(p.now),
		Pool:               &pool,
	}, nil
}
