package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TemamAb/ainex-sub000/internal/domain"
)

type fakeParamSource struct {
	snap    domain.ParamSnapshot
	history []domain.ParamSnapshot
	err     error
}

func (f *fakeParamSource) Params() domain.ParamSnapshot { return f.snap }

func (f *fakeParamSource) History(_ context.Context, limit int) ([]domain.ParamSnapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.history) {
		return f.history[:limit], nil
	}
	return f.history, nil
}

func TestParamHandler_GetParams(t *testing.T) {
	src := &fakeParamSource{snap: domain.ParamSnapshot{
		Version:            4,
		StrategyWeights:    map[string]float64{"cross_pool": 0.6, "liquidity_sweep": 0.4},
		SpreadThresholdBps: 12,
		SlippageCeilingBps: 45,
		MaxPositionSize:    900,
		MinNetProfit:       0.05,
		GeneratedAt:        time.Date(2025, 8, 25, 9, 0, 0, 0, time.UTC),
	}}
	h := NewParamHandler(src, testLogger())

	rec := httptest.NewRecorder()
	h.GetParams(rec, httptest.NewRequest("GET", "/api/params", nil))

	require.Equal(t, 200, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, 4.0, resp["version"])
	assert.Equal(t, 12.0, resp["spread_threshold_bps"])
	assert.Equal(t, 0.05, resp["min_net_profit"])
	weights := resp["strategy_weights"].(map[string]any)
	assert.Equal(t, 0.6, weights["cross_pool"])
}

func TestParamHandler_GetHistory(t *testing.T) {
	src := &fakeParamSource{history: []domain.ParamSnapshot{
		{Version: 3}, {Version: 2}, {Version: 1},
	}}
	h := NewParamHandler(src, testLogger())

	rec := httptest.NewRecorder()
	h.GetHistory(rec, httptest.NewRequest("GET", "/api/params/history?limit=2", nil))

	require.Equal(t, 200, rec.Code)
	var resp struct {
		History []paramSnapshotView `json:"history"`
		Count   int                 `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, int64(3), resp.History[0].Version, "newest version first")
}

func TestParamHandler_GetHistoryError(t *testing.T) {
	h := NewParamHandler(&fakeParamSource{err: errors.New("pg down")}, testLogger())

	rec := httptest.NewRecorder()
	h.GetHistory(rec, httptest.NewRequest("GET", "/api/params/history", nil))
	assert.Equal(t, 500, rec.Code)
}
