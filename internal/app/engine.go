package app

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"maveretta/internal/agents"
	"maveretta/internal/config"
	"maveretta/internal/consensus"
	"maveretta/internal/logger"
	"maveretta/internal/market"
	"maveretta/internal/metrics"
	"maveretta/internal/scheduler"
	"maveretta/internal/shadow"
	"maveretta/internal/store"
)

// Engine drives the scheduled decision cycle: fetch market snapshots,
// fan out to agents, resolve consensus, mirror actionable decisions as
// shadow trades and persist the audit trail.
type Engine struct {
	cfg       *config.Config
	collector *agents.Collector
	resolver  *consensus.Resolver
	mtf       *consensus.MultiTimeframeResolver
	shadow    *shadow.Evaluator
	quotes    market.QuoteSource
	logs      store.Store
	recorder  *metrics.Recorder

	mu         sync.Mutex
	openTrades map[string]openShadow
}

type openShadow struct {
	tradeID string
	side    consensus.Action
}

func NewEngine(
	cfg *config.Config,
	collector *agents.Collector,
	resolver *consensus.Resolver,
	mtf *consensus.MultiTimeframeResolver,
	shadowEval *shadow.Evaluator,
	quotes market.QuoteSource,
	logs store.Store,
	recorder *metrics.Recorder,
) *Engine {
	return &Engine{
		cfg:        cfg,
		collector:  collector,
		resolver:   resolver,
		mtf:        mtf,
		shadow:     shadowEval,
		quotes:     quotes,
		logs:       logs,
		recorder:   recorder,
		openTrades: make(map[string]openShadow),
	}
}

// Run blocks, executing one cycle per candle close until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	interval, ok := scheduler.ParseIntervalDuration(e.cfg.Consensus.CycleInterval)
	if !ok {
		interval = time.Minute
	}
	sched := scheduler.NewAlignedScheduler(ctx, interval, 5*time.Second)
	sched.RunImmediately = true
	sched.Start(func() { e.RunCycle(ctx) })
	return ctx.Err()
}

// RunCycle evaluates every configured symbol once.
func (e *Engine) RunCycle(ctx context.Context) {
	start := time.Now()
	cycleID := uuid.NewString()
	for _, symbol := range e.cfg.Consensus.Symbols {
		e.runSymbol(ctx, cycleID, symbol)
	}
	if e.recorder != nil {
		e.recorder.RecordCycleDuration(time.Since(start).Seconds())
	}
}

func (e *Engine) runSymbol(ctx context.Context, cycleID, symbol string) {
	snapshots, lastPrice, err := e.fetchSnapshots(ctx, symbol)
	if err != nil {
		logger.Warnf("cycle %s: snapshots for %s failed: %v", cycleID, symbol, err)
		return
	}

	produced := e.collector.Collect(ctx, snapshots)
	weights := e.cfg.Consensus.GroupWeights[e.cfg.Consensus.DefaultGroup]
	decision := e.resolver.ResolveSignals(agents.Signals(produced), weights, e.cfg.Consensus.DefaultWeight)

	mtfAction, mtfConfidence, details := e.mtf.Resolve(agents.TimeframeSignals(produced), symbol)
	size := consensus.DynamicPositionSize(e.cfg.Consensus.BasePositionSize, details.AlignmentScore, mtfConfidence)

	logger.Infof("cycle %s %s: action=%s conf=%.2f mtf=%s/%.2f alignment=%.2f size=%.2f agents=%d",
		cycleID, symbol, decision.Action, decision.Confidence,
		mtfAction, mtfConfidence, details.AlignmentScore, size, decision.NumAgents)

	if e.recorder != nil {
		e.recorder.RecordDecision(symbol, string(decision.Action), decision.Confidence)
	}
	e.updateShadow(symbol, mtfAction, lastPrice)
	if e.logs != nil {
		go e.persistDecision(cycleID, symbol, decision, mtfAction, mtfConfidence, details)
	}
}

func (e *Engine) fetchSnapshots(ctx context.Context, symbol string) (map[consensus.Timeframe]market.Snapshot, decimal.Decimal, error) {
	limit := e.cfg.Market.CandleLimit
	if limit <= 0 {
		limit = 100
	}
	needed := make(map[consensus.Timeframe]struct{})
	for _, agent := range e.collector.Agents() {
		needed[agent.Timeframe()] = struct{}{}
	}

	snapshots := make(map[consensus.Timeframe]market.Snapshot, len(needed))
	lastPrice, err := e.quotes.LastPrice(ctx, symbol)
	if err != nil {
		return nil, decimal.Zero, err
	}
	for tf := range needed {
		candles, err := e.quotes.Candles(ctx, symbol, string(tf), limit)
		if err != nil {
			logger.Warnf("candles %s %s: %v", symbol, tf, err)
			continue
		}
		snapshots[tf] = market.Snapshot{
			Symbol:    symbol,
			Interval:  string(tf),
			Candles:   candles,
			LastPrice: lastPrice.InexactFloat64(),
			FetchedAt: time.Now(),
		}
	}
	return snapshots, lastPrice, nil
}

// updateShadow mirrors directional decisions as shadow trades: a flip
// closes the previous trade at the current mark, HOLD leaves it running.
func (e *Engine) updateShadow(symbol string, action consensus.Action, price decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()

	open, hasOpen := e.openTrades[symbol]
	if hasOpen && action != consensus.ActionHold && action != open.side {
		if res, ok := e.shadow.Close(open.tradeID, price); ok {
			logger.Infof("shadow trade %s closed on flip: pnl=%s", open.tradeID, res.PnL)
		}
		delete(e.openTrades, symbol)
		hasOpen = false
	}
	if !hasOpen && action != consensus.ActionHold {
		if tradeID := e.shadow.Open(symbol, action, price); tradeID != "" {
			e.openTrades[symbol] = openShadow{tradeID: tradeID, side: action}
		}
	}
	if e.recorder != nil {
		e.recorder.SetOpenShadowTrades(e.shadow.Statistics().OpenShadowTrades)
	}
}

func (e *Engine) persistDecision(cycleID, symbol string, decision consensus.ConsensusDecision, mtfAction consensus.Action, mtfConfidence float64, details consensus.MTFDetails) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rec := store.DecisionRecord{
		CycleID:    cycleID,
		Symbol:     symbol,
		Action:     string(decision.Action),
		Confidence: decision.Confidence,
		Approved:   decision.Action != consensus.ActionHold,
		Reason:     decision.Reason,
		NumAgents:  decision.NumAgents,
		Details: map[string]any{
			"mtf_action":          string(mtfAction),
			"mtf_confidence":      mtfConfidence,
			"alignment_score":     details.AlignmentScore,
			"buy_score":           details.BuyScore,
			"sell_score":          details.SellScore,
			"timeframes_analyzed": details.TimeframesAnalyzed,
			"total_signals":       details.TotalSignals,
		},
		Timestamp: decision.Timestamp,
	}
	if err := e.logs.SaveDecision(ctx, rec); err != nil {
		logger.Warnf("persist decision %s/%s: %v", cycleID, symbol, err)
	}
}
