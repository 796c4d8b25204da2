// Package api serves pool records over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"poolScope/internal/model"
	"poolScope/internal/watch"
)

// Aggregator answers single pool queries.
type Aggregator interface {
	Aggregate(ctx context.Context, ref model.PoolRef) (model.PoolRecord, error)
}

// Watchlist serves the records kept by the refresher.
type Watchlist interface {
	Records(f watch.Filter) []model.PoolRecord
	LastRun() time.Time
}

// Server wires the HTTP routes.
type Server struct {
	agg          Aggregator
	watchlist    Watchlist
	logger       *zap.Logger
	queryTimeout time.Duration
	engine       *gin.Engine
}

// NewServer builds the router. watchlist may be nil.
func NewServer(agg Aggregator, watchlist Watchlist, queryTimeout time.Duration, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if queryTimeout <= 0 {
		queryTimeout = 30 * time.Second
	}
	s := &Server{agg: agg, watchlist: watchlist, logger: logger, queryTimeout: queryTimeout}

	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), Metrics(), ErrorHandler(logger))
	r.GET("/healthz", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	v1.GET("/pools", s.listPools)
	v1.GET("/pools/:chain/:address", s.getPool)

	s.engine = r
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("http server stopped")
	return nil
}

func (s *Server) health(c *gin.Context) {
	body := gin.H{"status": "ok"}
	if s.watchlist != nil {
		if last := s.watchlist.LastRun(); !last.IsZero() {
			body["last_refresh"] = last.UTC()
		}
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) getPool(c *gin.Context) {
	ref := model.PoolRef{
		Chain:    c.Param("chain"),
		Address:  c.Param("address"),
		Protocol: c.Query("protocol"),
		Gauge:    c.Query("gauge"),
	}
	if raw := c.Query("type"); raw != "" {
		hint, ok := model.ParsePoolType(raw)
		if !ok {
			c.Error(invalidRequest("unknown pool type " + strconv.Quote(raw)))
			return
		}
		ref.TypeHint = hint
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.queryTimeout)
	defer cancel()

	record, err := s.agg.Aggregate(ctx, ref)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (s *Server) listPools(c *gin.Context) {
	filter := watch.Filter{Chain: c.Query("chain")}
	var err error
	if filter.MinTVL, err = floatQuery(c, "min_tvl"); err != nil {
		c.Error(err)
		return
	}
	if filter.MinAPY, err = floatQuery(c, "min_apy"); err != nil {
		c.Error(err)
		return
	}

	records := []model.PoolRecord{}
	if s.watchlist != nil {
		records = s.watchlist.Records(filter)
	}
	c.JSON(http.StatusOK, gin.H{"pools": records, "count": len(records)})
}

func floatQuery(c *gin.Context, name string) (float64, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		return 0, invalidRequest(name + " must be a non-negative number")
	}
	return v, nil
}
