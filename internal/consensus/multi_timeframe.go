package consensus

import (
	"math"
	"sync"
	"time"
)

// actionGate is the minimum normalized directional score to act on a
// multi-timeframe blend.
const actionGate = 0.6

// MTFDetails is the per-score breakdown returned alongside a
// multi-timeframe decision.
type MTFDetails struct {
	BuyScore           float64     `json:"buy_score"`
	SellScore          float64     `json:"sell_score"`
	AlignmentScore     float64     `json:"alignment_score"`
	TimeframesAnalyzed []Timeframe `json:"timeframes_analyzed"`
	TotalSignals       int         `json:"total_signals"`
}

// MTFRecord is one entry of the multi-timeframe consensus log, kept
// separate from the single-cycle decision history.
type MTFRecord struct {
	Timestamp  time.Time  `json:"timestamp"`
	Symbol     string     `json:"symbol"`
	Action     Action     `json:"action"`
	Confidence float64    `json:"confidence"`
	Details    MTFDetails `json:"details"`
}

// MultiTimeframeResolver blends per-timeframe sub-votes into one action,
// scaled by how well the timeframes agree with each other.
type MultiTimeframeResolver struct {
	historySize int

	mu      sync.Mutex
	history []MTFRecord

	now func() time.Time
}

// NewMultiTimeframeResolver builds a resolver with a bounded consensus log.
func NewMultiTimeframeResolver() *MultiTimeframeResolver {
	return &MultiTimeframeResolver{
		historySize: DefaultHistorySize,
		now:         time.Now,
	}
}

// Resolve aggregates signals across timeframes for one symbol.
// No signals, or zero observed weight, resolves to a safe HOLD with zero
// confidence, treated as a runtime data gap rather than an error.
func (m *MultiTimeframeResolver) Resolve(signals []TimeframeSignal, symbol string) (Action, float64, MTFDetails) {
	if len(signals) == 0 {
		return ActionHold, 0.0, MTFDetails{}
	}

	byTimeframe := make(map[Timeframe][]TimeframeSignal)
	for _, sig := range signals {
		if _, known := timeframeWeights[sig.Timeframe]; !known {
			continue
		}
		byTimeframe[sig.Timeframe] = append(byTimeframe[sig.Timeframe], sig)
	}

	buyScore := 0.0
	sellScore := 0.0
	totalWeight := 0.0
	analyzed := make([]Timeframe, 0, len(byTimeframe))
	for _, tf := range timeframeOrder {
		group, ok := byTimeframe[tf]
		if !ok {
			continue
		}
		analyzed = append(analyzed, tf)
		weight := timeframeWeights[tf]
		buys, sells := 0, 0
		for _, sig := range group {
			switch sig.Action {
			case ActionBuy:
				buys++
			case ActionSell:
				sells++
			}
		}
		total := float64(len(group))
		buyScore += float64(buys) / total * weight
		sellScore += float64(sells) / total * weight
		totalWeight += weight
	}
	if totalWeight == 0 {
		return ActionHold, 0.0, MTFDetails{TotalSignals: len(signals)}
	}
	buyScore /= totalWeight
	sellScore /= totalWeight

	var action Action
	var confidence float64
	switch {
	case buyScore > sellScore && buyScore > actionGate:
		action = ActionBuy
		confidence = buyScore
	case sellScore > buyScore && sellScore > actionGate:
		action = ActionSell
		confidence = sellScore
	default:
		action = ActionHold
		confidence = 1.0 - math.Abs(buyScore-sellScore)
	}

	alignment := alignmentScore(byTimeframe)
	confidence *= alignment

	details := MTFDetails{
		BuyScore:           buyScore,
		SellScore:          sellScore,
		AlignmentScore:     alignment,
		TimeframesAnalyzed: analyzed,
		TotalSignals:       len(signals),
	}
	m.append(MTFRecord{
		Timestamp:  m.now().UTC(),
		Symbol:     symbol,
		Action:     action,
		Confidence: confidence,
		Details:    details,
	})
	return action, confidence, details
}

// History returns up to limit most recent consensus records, newest last.
func (m *MultiTimeframeResolver) History(limit int) []MTFRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > len(m.history) {
		limit = len(m.history)
	}
	out := make([]MTFRecord, limit)
	copy(out, m.history[len(m.history)-limit:])
	return out
}

func (m *MultiTimeframeResolver) append(rec MTFRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, rec)
	if len(m.history) > m.historySize {
		m.history = m.history[len(m.history)-m.historySize:]
	}
}

// alignmentScore is the fraction of timeframes whose majority vote agrees
// with the most common majority. Fewer than two observed timeframes give
// the neutral default 0.5.
func alignmentScore(byTimeframe map[Timeframe][]TimeframeSignal) float64 {
	if len(byTimeframe) == 0 {
		return 0.0
	}
	majorities := make(map[Action]int)
	observed := 0
	for _, group := range byTimeframe {
		if len(group) == 0 {
			continue
		}
		observed++
		majorities[timeframeMajority(group)]++
	}
	if observed < 2 {
		return 0.5
	}
	maxAgreement := 0
	for _, action := range actionOrder {
		if majorities[action] > maxAgreement {
			maxAgreement = majorities[action]
		}
	}
	return float64(maxAgreement) / float64(observed)
}

// timeframeMajority picks the action with the most raw votes inside one
// timeframe, ties resolving in the fixed action order.
func timeframeMajority(group []TimeframeSignal) Action {
	counts := make(map[Action]int)
	for _, sig := range group {
		counts[sig.Action]++
	}
	majority := ActionHold
	best := -1
	for _, action := range actionOrder {
		if counts[action] > best {
			majority = action
			best = counts[action]
		}
	}
	return majority
}

// DynamicPositionSize scales a base position by the blend of alignment and
// confidence, clamped to [0.3, 1.5] times the base.
func DynamicPositionSize(baseSize, alignment, confidence float64) float64 {
	size := baseSize * (0.5*alignment + 0.5*confidence)
	return clip(size, 0.3*baseSize, 1.5*baseSize)
}
