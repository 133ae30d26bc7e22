package apihttp

import (
	"bytes"
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"maveretta/internal/config"
	"maveretta/internal/consensus"
	"maveretta/internal/experiment"
	"maveretta/internal/reputation"
	"maveretta/internal/shadow"
	"maveretta/internal/store"
)

// recordingStore captures shadow-deviation writes; every other Store
// method is a no-op.
type recordingStore struct {
	mu         sync.Mutex
	deviations []store.ShadowDeviationRecord
}

func (s *recordingStore) SaveDecision(context.Context, store.DecisionRecord) error { return nil }

func (s *recordingStore) RecentDecisions(context.Context, int) ([]store.DecisionRecord, error) {
	return nil, nil
}

func (s *recordingStore) DecisionsBetween(context.Context, string, time.Time, time.Time) ([]store.DecisionRecord, error) {
	return nil, nil
}

func (s *recordingStore) SaveExperience(context.Context, store.ExperienceRecord) error { return nil }

func (s *recordingStore) ExperiencesByPattern(context.Context, string, int) ([]store.ExperienceRecord, error) {
	return nil, nil
}

func (s *recordingStore) SaveExperimentResult(context.Context, store.ExperimentResultRecord) error {
	return nil
}

func (s *recordingStore) ExperimentResults(context.Context, string) ([]store.ExperimentResultRecord, error) {
	return nil, nil
}

func (s *recordingStore) SaveShadowDeviation(_ context.Context, rec store.ShadowDeviationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deviations = append(s.deviations, rec)
	return nil
}

func (s *recordingStore) ShadowDeviationsBetween(context.Context, string, time.Time, time.Time) ([]store.ShadowDeviationRecord, error) {
	return nil, nil
}

func (s *recordingStore) Close() error { return nil }

func (s *recordingStore) deviationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.deviations)
}

type testEnv struct {
	srv    *Server
	shadow *shadow.Evaluator
	logs   *recordingStore
}

func newTestEnv(t *testing.T, expCfg config.ExperimentConfig) *testEnv {
	t.Helper()
	eval := shadow.NewEvaluator()
	logs := &recordingStore{}
	router := NewRouter(RouterConfig{
		Resolver:    consensus.NewResolver(),
		MTF:         consensus.NewMultiTimeframeResolver(),
		Ledger:      reputation.NewLedger(),
		Experiments: experiment.NewManager(rand.New(rand.NewSource(1))),
		Shadow:      eval,
		Logs:        logs,
		Experiment:  expCfg,
	})
	srv, err := NewServer(":0", router)
	require.NoError(t, err)
	return &testEnv{srv: srv, shadow: eval, logs: logs}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return newTestEnv(t, config.ExperimentConfig{}).srv
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestResolveEndpoint(t *testing.T) {
	srv := newTestServer(t)

	signals := make([]map[string]any, 0, 6)
	for _, id := range []string{"a1", "a2", "a3", "a4", "a5", "a6"} {
		signals = append(signals, map[string]any{
			"agent_id": id, "action": "buy", "confidence": 0.9, "rationale": "RSI oversold",
		})
	}
	rec := doJSON(t, srv, http.MethodPost, "/api/consensus/resolve", map[string]any{
		"group_id": "default", "signals": signals,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.Equal(t, "BUY", body["action"])
	assert.Equal(t, "6/6 agents voted BUY: RSI oversold", body["reason"])

	// The decision lands in history and statistics.
	rec = doJSON(t, srv, http.MethodGet, "/api/consensus/decisions?limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode(t, rec)["count"])

	rec = doJSON(t, srv, http.MethodGet, "/api/consensus/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestResolveRejectsMissingSignals(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/api/consensus/resolve", map[string]any{"group_id": "default"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReputationEndpoints(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/reputation/experience", map[string]any{
		"agent_id": "a1", "pattern": "breakout_bullish", "success": true, "pnl": 50.0,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.InDelta(t, 0.65, decode(t, rec)["reputation"].(float64), 1e-9)

	rec = doJSON(t, srv, http.MethodGet, "/api/reputation/wisdom/breakout_bullish", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/reputation/leaderboard?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	board := decode(t, rec)["leaderboard"].([]any)
	assert.Len(t, board, 1)
}

func TestExperimentLifecycle(t *testing.T) {
	srv := newTestServer(t)

	// Schema rejects a single-variant payload before the manager runs.
	rec := doJSON(t, srv, http.MethodPost, "/api/experiments", map[string]any{
		"name": "bad",
		"variants": []map[string]any{
			{"variant_id": "only", "allocation_pct": 100, "is_control": true},
		},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/experiments", map[string]any{
		"name":        "threshold tuning",
		"min_samples": 5,
		"variants": []map[string]any{
			{"variant_id": "control", "allocation_pct": 50, "is_control": true},
			{"variant_id": "challenger", "allocation_pct": 50},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	testID := decode(t, rec)["test_id"].(string)
	require.NotEmpty(t, testID)

	rec = doJSON(t, srv, http.MethodPost, "/api/experiments/"+testID+"/results", map[string]any{
		"variant_id": "control", "symbol": "BTCUSDT", "pnl": 1.5,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, srv, http.MethodGet, "/api/experiments/"+testID+"/report", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode(t, rec)["total_samples"])

	rec = doJSON(t, srv, http.MethodGet, "/api/experiments", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/experiments/"+testID+"/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/api/experiments/"+testID+"/results", map[string]any{
		"variant_id": "control", "pnl": 1.0,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "stopped test rejects results")

	rec = doJSON(t, srv, http.MethodGet, "/api/experiments/missing/report", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestShadowStatisticsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/api/shadow/statistics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decode(t, rec)["total_shadow_trades"])
}

func TestShadowCompareEndpoint(t *testing.T) {
	env := newTestEnv(t, config.ExperimentConfig{})

	tradeID := env.shadow.Open("BTCUSDT", consensus.ActionBuy, decimal.NewFromInt(50000))
	require.NotEmpty(t, tradeID)
	_, closed := env.shadow.Close(tradeID, decimal.NewFromInt(51000))
	require.True(t, closed)

	rec := doJSON(t, env.srv, http.MethodPost, "/api/shadow/compare", map[string]any{
		"trade_id": tradeID, "real_entry": 50050.0, "real_exit": 51000.0,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.Equal(t, tradeID, body["trade_id"])
	assert.Equal(t, "50", body["slippage"])

	// The comparison lands in the deviation statistics and the audit trail.
	rec = doJSON(t, env.srv, http.MethodGet, "/api/shadow/statistics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(50), decode(t, rec)["avg_slippage"])

	require.Eventually(t, func() bool { return env.logs.deviationCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	saved := env.logs.deviations[0]
	assert.Equal(t, "BTCUSDT", saved.Symbol)
	assert.InDelta(t, 50.0, saved.Slippage, 1e-9)
}

func TestShadowCompareRequiresClosedTrade(t *testing.T) {
	env := newTestEnv(t, config.ExperimentConfig{})

	tradeID := env.shadow.Open("ETHUSDT", consensus.ActionSell, decimal.NewFromInt(2000))
	require.NotEmpty(t, tradeID)

	rec := doJSON(t, env.srv, http.MethodPost, "/api/shadow/compare", map[string]any{
		"trade_id": tradeID, "real_entry": 2001.0, "real_exit": 1990.0,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, env.srv, http.MethodPost, "/api/shadow/compare", map[string]any{
		"trade_id": "missing", "real_entry": 1.0, "real_exit": 2.0,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, env.srv, http.MethodPost, "/api/shadow/compare", map[string]any{
		"real_entry": 1.0, "real_exit": 2.0,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "trade_id is required")
}

func TestCreateExperimentUsesConfiguredDefaults(t *testing.T) {
	env := newTestEnv(t, config.ExperimentConfig{MinSamples: 7, DurationHours: 168})

	rec := doJSON(t, env.srv, http.MethodPost, "/api/experiments", map[string]any{
		"name": "configured defaults",
		"variants": []map[string]any{
			{"variant_id": "control", "allocation_pct": 50, "is_control": true},
			{"variant_id": "challenger", "allocation_pct": 50},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	testID := decode(t, rec)["test_id"].(string)

	rec = doJSON(t, env.srv, http.MethodGet, "/api/experiments/"+testID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(7), body["min_samples"])
	assert.Equal(t, float64(168*time.Hour), body["duration"])

	// An explicit min_samples in the payload still wins over the default.
	rec = doJSON(t, env.srv, http.MethodPost, "/api/experiments", map[string]any{
		"name":        "explicit",
		"min_samples": 3,
		"variants": []map[string]any{
			{"variant_id": "control", "allocation_pct": 50, "is_control": true},
			{"variant_id": "challenger", "allocation_pct": 50},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	testID = decode(t, rec)["test_id"].(string)
	rec = doJSON(t, env.srv, http.MethodGet, "/api/experiments/"+testID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(3), decode(t, rec)["min_samples"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
