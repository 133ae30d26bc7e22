package shadow

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"maveretta/internal/consensus"
	"maveretta/internal/logger"
)

// DefaultDeviationWarn is the shadow-vs-real PnL gap above which a
// deviation is logged as significant.
const DefaultDeviationWarn = 0.02

type TradeStatus string

const (
	TradeOpen   TradeStatus = "open"
	TradeClosed TradeStatus = "closed"
)

// ShadowTrade is a simulated, non-executed mirror of a live decision.
type ShadowTrade struct {
	TradeID    string           `json:"trade_id"`
	Symbol     string           `json:"symbol"`
	Side       consensus.Action `json:"side"`
	EntryPrice decimal.Decimal  `json:"entry_price"`
	ExitPrice  decimal.Decimal  `json:"exit_price,omitempty"`
	PnL        decimal.Decimal  `json:"pnl"`
	Status     TradeStatus      `json:"status"`
	OpenedAt   time.Time        `json:"opened_at"`
	ClosedAt   time.Time        `json:"closed_at,omitempty"`
}

// RealTrade carries the executed fills a shadow trade is compared against.
type RealTrade struct {
	EntryPrice decimal.Decimal `json:"entry_price"`
	ExitPrice  decimal.Decimal `json:"exit_price"`
}

// CloseResult reports the realized shadow outcome.
type CloseResult struct {
	PnL   decimal.Decimal `json:"pnl"`
	Entry decimal.Decimal `json:"entry"`
	Exit  decimal.Decimal `json:"exit"`
}

// Deviation is one shadow-vs-real comparison record.
type Deviation struct {
	Symbol    string          `json:"symbol"`
	TradeID   string          `json:"trade_id"`
	ShadowPnL decimal.Decimal `json:"shadow_pnl"`
	RealPnL   decimal.Decimal `json:"real_pnl"`
	Slippage  decimal.Decimal `json:"slippage"`
	Timestamp time.Time       `json:"timestamp"`
}

// Statistics summarizes execution deviation over all comparisons so far.
type Statistics struct {
	AvgSlippage       float64 `json:"avg_slippage"`
	AvgPnLDeviation   float64 `json:"avg_pnl_deviation"`
	TotalShadowTrades int     `json:"total_shadow_trades"`
	OpenShadowTrades  int     `json:"open_shadow_trades"`
}

// Evaluator mirrors live decisions as shadow trades and measures how far
// real execution drifts from the ideal fill.
type Evaluator struct {
	mu         sync.Mutex
	trades     map[string]*ShadowTrade
	deviations []Deviation
	warnGap    decimal.Decimal

	now func() time.Time
}

type Option func(*Evaluator)

// WithDeviationWarn overrides the PnL gap that triggers a warning.
func WithDeviationWarn(gap float64) Option {
	return func(e *Evaluator) {
		if gap > 0 {
			e.warnGap = decimal.NewFromFloat(gap)
		}
	}
}

func withClock(now func() time.Time) Option {
	return func(e *Evaluator) { e.now = now }
}

func NewEvaluator(opts ...Option) *Evaluator {
	e := &Evaluator{
		trades:  make(map[string]*ShadowTrade),
		warnGap: decimal.NewFromFloat(DefaultDeviationWarn),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Open mirrors a live decision as an open shadow trade without placing any
// order. HOLD decisions have nothing to mirror and return an empty id.
func (e *Evaluator) Open(symbol string, side consensus.Action, price decimal.Decimal) string {
	if side != consensus.ActionBuy && side != consensus.ActionSell {
		return ""
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	trade := &ShadowTrade{
		TradeID:    uuid.NewString(),
		Symbol:     symbol,
		Side:       side,
		EntryPrice: price,
		Status:     TradeOpen,
		OpenedAt:   e.now(),
	}
	e.trades[trade.TradeID] = trade
	logger.Debugf("shadow trade opened: %s %s %s @ %s", trade.TradeID, side, symbol, price)
	return trade.TradeID
}

// Close marks a shadow trade closed at the given price and returns its
// realized PnL. Closing an unknown or already-closed trade is a no-op.
func (e *Evaluator) Close(tradeID string, price decimal.Decimal) (CloseResult, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	trade, ok := e.trades[tradeID]
	if !ok || trade.Status == TradeClosed {
		return CloseResult{}, false
	}
	trade.ExitPrice = price
	trade.PnL = tradePnL(trade.Side, trade.EntryPrice, price)
	trade.Status = TradeClosed
	trade.ClosedAt = e.now()
	return CloseResult{PnL: trade.PnL, Entry: trade.EntryPrice, Exit: trade.ExitPrice}, true
}

// CompareWithReal records the deviation between a closed shadow trade and
// its real counterpart. A PnL gap above the configured threshold is logged
// as a significant deviation but never fails the call.
func (e *Evaluator) CompareWithReal(tradeID string, real RealTrade) (Deviation, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	trade, ok := e.trades[tradeID]
	if !ok || trade.Status != TradeClosed {
		return Deviation{}, false
	}

	realPnL := tradePnL(trade.Side, real.EntryPrice, real.ExitPrice)
	dev := Deviation{
		Symbol:    trade.Symbol,
		TradeID:   trade.TradeID,
		ShadowPnL: trade.PnL,
		RealPnL:   realPnL,
		Slippage:  trade.EntryPrice.Sub(real.EntryPrice).Abs(),
		Timestamp: e.now(),
	}
	e.deviations = append(e.deviations, dev)

	if gap := trade.PnL.Sub(realPnL).Abs(); gap.GreaterThan(e.warnGap) {
		logger.Warnf("significant shadow deviation on %s: shadow pnl %s vs real pnl %s (gap %s)",
			trade.Symbol, trade.PnL, realPnL, gap)
	}
	return dev, true
}

// Trade returns a snapshot of one shadow trade.
func (e *Evaluator) Trade(tradeID string) (ShadowTrade, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	trade, ok := e.trades[tradeID]
	if !ok {
		return ShadowTrade{}, false
	}
	return *trade, true
}

// Deviations returns all recorded comparisons, oldest first.
func (e *Evaluator) Deviations() []Deviation {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Deviation, len(e.deviations))
	copy(out, e.deviations)
	return out
}

func (e *Evaluator) Statistics() Statistics {
	e.mu.Lock()
	defer e.mu.Unlock()

	stats := Statistics{TotalShadowTrades: len(e.trades)}
	for _, trade := range e.trades {
		if trade.Status == TradeOpen {
			stats.OpenShadowTrades++
		}
	}
	if len(e.deviations) == 0 {
		return stats
	}

	slippage := decimal.Zero
	gap := decimal.Zero
	for _, dev := range e.deviations {
		slippage = slippage.Add(dev.Slippage)
		gap = gap.Add(dev.ShadowPnL.Sub(dev.RealPnL).Abs())
	}
	n := decimal.NewFromInt(int64(len(e.deviations)))
	stats.AvgSlippage = slippage.Div(n).InexactFloat64()
	stats.AvgPnLDeviation = gap.Div(n).InexactFloat64()
	return stats
}

// tradePnL is the fractional return of the fill pair, sign-adjusted for
// the side. A zero entry yields zero rather than a division error.
func tradePnL(side consensus.Action, entry, exit decimal.Decimal) decimal.Decimal {
	if entry.IsZero() {
		return decimal.Zero
	}
	if side == consensus.ActionSell {
		return entry.Sub(exit).Div(entry)
	}
	return exit.Sub(entry).Div(entry)
}
