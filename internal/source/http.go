package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// HTTPConfig configures an HTTP backed provider.
type HTTPConfig struct {
	Name       string
	BaseURL    string
	Timeout    time.Duration
	RPS        float64
	Burst      int
	MaxRetries int
	RetryDelay time.Duration
	// Chains limits the provider to these chains. Empty means every chain.
	Chains []string
}

func (c HTTPConfig) withDefaults() HTTPConfig {
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.RPS <= 0 {
		c.RPS = 2
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Second
	}
	return c
}

func (c HTTPConfig) supports(chain string) bool {
	if len(c.Chains) == 0 {
		return true
	}
	for _, name := range c.Chains {
		if name == chain {
			return true
		}
	}
	return false
}

// httpGetter performs rate limited GET requests with retries. 4xx responses are not retried.
type httpGetter struct {
	client  *http.Client
	limiter *rate.Limiter
	cfg     HTTPConfig
	logger  *zap.Logger
}

func newHTTPGetter(cfg HTTPConfig, logger *zap.Logger) *httpGetter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &httpGetter{
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		cfg:     cfg,
		logger:  logger,
	}
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status code %d: %s", e.code, e.body)
}

func (g *httpGetter) getJSON(ctx context.Context, url string, out interface{}) error {
	var lastErr error
	for attempt := 0; attempt < g.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			g.logger.Debug("retrying request",
				zap.String("source", g.cfg.Name),
				zap.String("url", url),
				zap.Int("attempt", attempt+1),
			)
			timer := time.NewTimer(g.cfg.RetryDelay * time.Duration(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}
		err := g.do(ctx, url, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if se, ok := err.(*statusError); ok && se.code >= 400 && se.code < 500 {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("request failed after %d attempts: %w", g.cfg.MaxRetries, lastErr)
}

func (g *httpGetter) do(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{code: resp.StatusCode, body: string(body)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}
