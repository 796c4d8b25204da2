package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poolScope/internal/aggregate"
	"poolScope/internal/model"
	"poolScope/internal/watch"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubAggregator struct {
	last model.PoolRef
	err  error
}

func (s *stubAggregator) Aggregate(ctx context.Context, ref model.PoolRef) (model.PoolRecord, error) {
	s.last = ref
	if s.err != nil {
		return model.PoolRecord{}, s.err
	}
	return model.PoolRecord{
		PoolID:     ref.ID(),
		Chain:      ref.Chain,
		Address:    ref.Address,
		APYPercent: 5,
		APYStatus:  model.APYVerified,
		Status:     model.StatusSingleSource,
	}, nil
}

type stubWatchlist struct {
	filter  watch.Filter
	records []model.PoolRecord
}

func (s *stubWatchlist) Records(f watch.Filter) []model.PoolRecord {
	s.filter = f
	return s.records
}

func (s *stubWatchlist) LastRun() time.Time {
	return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
}

func do(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGetPool(t *testing.T) {
	agg := &stubAggregator{}
	srv := NewServer(agg, nil, time.Second, nil)

	rec := do(t, srv.Handler(), "/v1/pools/base/0xAbC?protocol=aerodrome&type=cl")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(headerRequestID))

	var body model.PoolRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "base:0xabc", body.PoolID)
	assert.Equal(t, "aerodrome", agg.last.Protocol)
	assert.Equal(t, model.PoolTypeConcentrated, agg.last.TypeHint)
}

func TestGetPoolErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target string
		status int
		code   ErrorCode
	}{
		{"bad type", nil, "/v1/pools/base/0xabc?type=weird", http.StatusBadRequest, ErrInvalidRequest},
		{"no data", fmt.Errorf("%w for base:0xabc", aggregate.ErrNoData), "/v1/pools/base/0xabc", http.StatusNotFound, ErrNoData},
		{"invalid", fmt.Errorf("%w: bad pool address", aggregate.ErrInvalidRequest), "/v1/pools/base/0xzz", http.StatusBadRequest, ErrInvalidRequest},
		{"unsupported chain", fmt.Errorf("%w: solana", aggregate.ErrUnsupportedChain), "/v1/pools/solana/0xabc", http.StatusBadRequest, ErrInvalidRequest},
		{"timeout", context.DeadlineExceeded, "/v1/pools/base/0xabc", http.StatusBadGateway, ErrUpstream},
		{"internal", errors.New("boom"), "/v1/pools/base/0xabc", http.StatusInternalServerError, ErrInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer(&stubAggregator{err: tt.err}, nil, time.Second, nil)
			rec := do(t, srv.Handler(), tt.target)
			assert.Equal(t, tt.status, rec.Code)

			var body AppError
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.Code)
			assert.NotEmpty(t, body.Message)
		})
	}
}

func TestListPools(t *testing.T) {
	wl := &stubWatchlist{records: []model.PoolRecord{{PoolID: "base:0xa"}}}
	srv := NewServer(&stubAggregator{}, wl, time.Second, nil)

	rec := do(t, srv.Handler(), "/v1/pools?chain=base&min_tvl=1000000&min_apy=2.5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, watch.Filter{Chain: "base", MinTVL: 1_000_000, MinAPY: 2.5}, wl.filter)

	var body struct {
		Pools []model.PoolRecord `json:"pools"`
		Count int                `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)

	rec = do(t, srv.Handler(), "/v1/pools?min_tvl=lots")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListPoolsWithoutWatchlist(t *testing.T) {
	srv := NewServer(&stubAggregator{}, nil, time.Second, nil)
	rec := do(t, srv.Handler(), "/v1/pools")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"pools":[],"count":0}`, rec.Body.String())
}

func TestHealthAndMetrics(t *testing.T) {
	srv := NewServer(&stubAggregator{}, &stubWatchlist{}, time.Second, nil)

	rec := do(t, srv.Handler(), "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Contains(t, rec.Body.String(), "last_refresh")

	do(t, srv.Handler(), "/v1/pools")
	rec = do(t, srv.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "poolscope_")
}

func TestRequestIDIsPropagated(t *testing.T) {
	srv := NewServer(&stubAggregator{}, nil, time.Second, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(headerRequestID, "abc-123")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(headerRequestID))
}
