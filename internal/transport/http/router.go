package apihttp

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/shopspring/decimal"

	"maveretta/internal/config"
	"maveretta/internal/consensus"
	"maveretta/internal/experiment"
	"maveretta/internal/logger"
	"maveretta/internal/reputation"
	"maveretta/internal/shadow"
	"maveretta/internal/store"
)

// Router exposes the decision core over /api.
type Router struct {
	resolver    *consensus.Resolver
	mtf         *consensus.MultiTimeframeResolver
	ledger      *reputation.Ledger
	experiments *experiment.Manager
	shadowEval  *shadow.Evaluator
	logs        store.Store

	groupWeights  map[string]map[string]float64
	defaultWeight float64
	expDefaults   config.ExperimentConfig
}

type RouterConfig struct {
	Resolver    *consensus.Resolver
	MTF         *consensus.MultiTimeframeResolver
	Ledger      *reputation.Ledger
	Experiments *experiment.Manager
	Shadow      *shadow.Evaluator
	// Logs is optional; history queries fall back to in-memory state.
	Logs store.Store

	GroupWeights  map[string]map[string]float64
	DefaultWeight float64
	// Experiment supplies the fallbacks for create requests that omit
	// duration_hours or min_samples.
	Experiment config.ExperimentConfig
}

func NewRouter(cfg RouterConfig) *Router {
	if cfg.DefaultWeight <= 0 {
		cfg.DefaultWeight = consensus.DefaultAgentWeight
	}
	if cfg.Experiment.DurationHours <= 0 {
		cfg.Experiment.DurationHours = 24
	}
	if cfg.Experiment.MinSamples <= 0 {
		cfg.Experiment.MinSamples = 30
	}
	return &Router{
		resolver:      cfg.Resolver,
		mtf:           cfg.MTF,
		ledger:        cfg.Ledger,
		experiments:   cfg.Experiments,
		shadowEval:    cfg.Shadow,
		logs:          cfg.Logs,
		groupWeights:  cfg.GroupWeights,
		defaultWeight: cfg.DefaultWeight,
		expDefaults:   cfg.Experiment,
	}
}

func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/consensus/decisions", r.handleDecisions)
	group.GET("/consensus/stats", r.handleStats)
	group.POST("/consensus/resolve", r.handleResolve)

	group.GET("/reputation/leaderboard", r.handleLeaderboard)
	group.GET("/reputation/wisdom/:pattern", r.handleWisdom)
	group.POST("/reputation/experience", r.handleExperience)

	group.POST("/experiments", r.handleCreateExperiment)
	group.GET("/experiments", r.handleListExperiments)
	group.GET("/experiments/:id", r.handleGetExperiment)
	group.GET("/experiments/:id/report", r.handleExperimentReport)
	group.POST("/experiments/:id/results", r.handleExperimentResult)
	group.POST("/experiments/:id/stop", r.handleStopExperiment)

	group.GET("/shadow/statistics", r.handleShadowStatistics)
	group.POST("/shadow/compare", r.handleShadowCompare)
}

func (r *Router) handleDecisions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	from, okFrom := parseTimeParam(c.Query("from"))
	to, okTo := parseTimeParam(c.Query("to"))
	if okFrom && okTo && r.logs != nil {
		recs, err := r.logs.DecisionsBetween(c.Request.Context(), c.Query("symbol"), from, to)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"decisions": recs, "count": len(recs)})
		return
	}
	decisions := r.resolver.History(limit)
	c.JSON(http.StatusOK, gin.H{"decisions": decisions, "count": len(decisions)})
}

func (r *Router) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, r.resolver.Statistics())
}

type resolveRequest struct {
	GroupID string                  `json:"group_id"`
	Signals []consensus.AgentSignal `json:"signals" binding:"required"`
}

func (r *Router) handleResolve(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	for i := range req.Signals {
		req.Signals[i].Action = consensus.NormalizeAction(string(req.Signals[i].Action))
		if req.Signals[i].Timestamp.IsZero() {
			req.Signals[i].Timestamp = time.Now()
		}
	}
	weights := r.groupWeights[req.GroupID]
	decision := r.resolver.ResolveSignals(req.Signals, weights, r.defaultWeight)
	c.JSON(http.StatusOK, decision)
}

func (r *Router) handleLeaderboard(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if limit <= 0 {
		limit = 10
	}
	c.JSON(http.StatusOK, gin.H{"leaderboard": r.ledger.Leaderboard(limit)})
}

func (r *Router) handleWisdom(c *gin.Context) {
	pattern := strings.TrimSpace(c.Param("pattern"))
	if pattern == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "pattern is required"})
		return
	}
	c.JSON(http.StatusOK, r.ledger.CollectiveWisdom(pattern))
}

type experienceRequest struct {
	AgentID string         `json:"agent_id" binding:"required"`
	Pattern string         `json:"pattern" binding:"required"`
	Success bool           `json:"success"`
	PnL     float64        `json:"pnl"`
	Context map[string]any `json:"context"`
}

func (r *Router) handleExperience(c *gin.Context) {
	var req experienceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	exp := r.ledger.ShareExperience(req.AgentID, req.Pattern, req.Success, req.Context, req.PnL)
	if r.logs != nil {
		go r.persistExperience(exp)
	}
	c.JSON(http.StatusOK, gin.H{
		"experience": exp,
		"reputation": r.ledger.AgentScore(req.AgentID),
	})
}

func (r *Router) persistExperience(exp reputation.Experience) {
	rec := store.ExperienceRecord{
		AgentID:   exp.AgentID,
		Pattern:   exp.Pattern,
		Success:   exp.Success,
		PnL:       exp.PnL,
		Weight:    exp.ReputationWeight,
		Context:   exp.Context,
		Timestamp: exp.Timestamp,
	}
	ctx, cancel := persistContext()
	defer cancel()
	if err := r.logs.SaveExperience(ctx, rec); err != nil {
		logger.Warnf("persist experience: %v", err)
	}
}

// createExperimentSchema validates the experiment payload before any
// typed decoding happens.
const createExperimentSchema = `{
  "type": "object",
  "required": ["name", "variants"],
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "duration_hours": {"type": "number", "exclusiveMinimum": 0},
    "min_samples": {"type": "integer", "minimum": 2},
    "variants": {
      "type": "array",
      "minItems": 2,
      "items": {
        "type": "object",
        "required": ["variant_id", "allocation_pct"],
        "properties": {
          "variant_id": {"type": "string", "minLength": 1},
          "name": {"type": "string"},
          "params": {"type": "object"},
          "allocation_pct": {"type": "number", "minimum": 0, "maximum": 100},
          "is_control": {"type": "boolean"}
        }
      }
    }
  }
}`

var experimentSchema = jsonschema.MustCompileString("create_experiment.json", createExperimentSchema)

type createExperimentRequest struct {
	Name          string                       `json:"name"`
	DurationHours float64                      `json:"duration_hours"`
	MinSamples    int                          `json:"min_samples"`
	Variants      []experiment.StrategyVariant `json:"variants"`
}

func (r *Router) handleCreateExperiment(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json: " + err.Error()})
		return
	}
	if err := experimentSchema.Validate(payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var req createExperimentRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.DurationHours <= 0 {
		req.DurationHours = float64(r.expDefaults.DurationHours)
	}
	if req.MinSamples <= 0 {
		req.MinSamples = r.expDefaults.MinSamples
	}
	duration := time.Duration(req.DurationHours * float64(time.Hour))
	testID, err := r.experiments.CreateTest(req.Name, req.Variants, duration, req.MinSamples)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"test_id": testID})
}

func (r *Router) handleListExperiments(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"experiments": r.experiments.ListTests()})
}

func (r *Router) handleGetExperiment(c *gin.Context) {
	test, err := r.experiments.GetTest(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, test)
}

func (r *Router) handleExperimentReport(c *gin.Context) {
	report, err := r.experiments.AnalyzeTest(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

type experimentResultRequest struct {
	VariantID string         `json:"variant_id" binding:"required"`
	Symbol    string         `json:"symbol"`
	PnL       float64        `json:"pnl"`
	Metadata  map[string]any `json:"metadata"`
}

func (r *Router) handleExperimentResult(c *gin.Context) {
	var req experimentResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	testID := c.Param("id")
	if err := r.experiments.RecordResult(testID, req.VariantID, req.Symbol, req.PnL, req.Metadata); err != nil {
		status := http.StatusBadRequest
		if err == experiment.ErrTestNotFound {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	if r.logs != nil {
		go r.persistExperimentResult(testID, req)
	}
	c.JSON(http.StatusOK, gin.H{"status": "recorded"})
}

func (r *Router) persistExperimentResult(testID string, req experimentResultRequest) {
	ctx, cancel := persistContext()
	defer cancel()
	err := r.logs.SaveExperimentResult(ctx, store.ExperimentResultRecord{
		TestID:    testID,
		VariantID: req.VariantID,
		Symbol:    req.Symbol,
		PnL:       req.PnL,
		Metadata:  req.Metadata,
		Timestamp: time.Now(),
	})
	if err != nil {
		logger.Warnf("persist experiment result: %v", err)
	}
}

func (r *Router) handleStopExperiment(c *gin.Context) {
	if err := r.experiments.StopTest(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

func (r *Router) handleShadowStatistics(c *gin.Context) {
	c.JSON(http.StatusOK, r.shadowEval.Statistics())
}

type shadowCompareRequest struct {
	TradeID   string  `json:"trade_id" binding:"required"`
	RealEntry float64 `json:"real_entry" binding:"required"`
	RealExit  float64 `json:"real_exit" binding:"required"`
}

// handleShadowCompare reports the executed fills for a closed shadow trade
// and returns the measured deviation.
func (r *Router) handleShadowCompare(c *gin.Context) {
	var req shadowCompareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	real := shadow.RealTrade{
		EntryPrice: decimal.NewFromFloat(req.RealEntry),
		ExitPrice:  decimal.NewFromFloat(req.RealExit),
	}
	dev, ok := r.shadowEval.CompareWithReal(req.TradeID, real)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "shadow trade not found or still open"})
		return
	}
	if r.logs != nil {
		go r.persistShadowDeviation(dev)
	}
	c.JSON(http.StatusOK, dev)
}

func (r *Router) persistShadowDeviation(dev shadow.Deviation) {
	ctx, cancel := persistContext()
	defer cancel()
	err := r.logs.SaveShadowDeviation(ctx, store.ShadowDeviationRecord{
		TradeID:   dev.TradeID,
		Symbol:    dev.Symbol,
		ShadowPnL: dev.ShadowPnL.InexactFloat64(),
		RealPnL:   dev.RealPnL.InexactFloat64(),
		Slippage:  dev.Slippage.InexactFloat64(),
		Timestamp: dev.Timestamp,
	})
	if err != nil {
		logger.Warnf("persist shadow deviation: %v", err)
	}
}

func parseTimeParam(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	if ts, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(ts), true
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, true
	}
	return time.Time{}, false
}
