package agents

import (
	"context"
	"fmt"

	"maveretta/internal/consensus"
	"maveretta/internal/market"
)

// minCandles is the shortest history any strategy will analyze.
const minCandles = 30

type Strategy string

const (
	StrategyScalping      Strategy = "scalping"
	StrategyTrend         Strategy = "trend_following"
	StrategyMeanReversion Strategy = "mean_reversion"
	StrategyMomentum      Strategy = "momentum"
	StrategyBreakout      Strategy = "breakout"
)

// Agent produces one signal per decision cycle. Implementations must be
// safe for concurrent Analyze calls.
type Agent interface {
	ID() string
	Strategy() Strategy
	Timeframe() consensus.Timeframe
	Analyze(ctx context.Context, snap market.Snapshot) (consensus.AgentSignal, error)
}

// New builds a strategy agent. The timeframe tags the agent's signals for
// multi-timeframe blending; it does not change the strategy parameters.
func New(id string, strategy Strategy, timeframe consensus.Timeframe) (Agent, error) {
	base := baseAgent{id: id, timeframe: timeframe}
	switch strategy {
	case StrategyScalping:
		return &scalpingAgent{baseAgent: base}, nil
	case StrategyTrend:
		return &trendAgent{baseAgent: base}, nil
	case StrategyMeanReversion:
		return &meanReversionAgent{baseAgent: base}, nil
	case StrategyMomentum:
		return &momentumAgent{baseAgent: base}, nil
	case StrategyBreakout:
		return &breakoutAgent{baseAgent: base}, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", strategy)
	}
}

type baseAgent struct {
	id        string
	timeframe consensus.Timeframe
}

func (b baseAgent) ID() string                     { return b.id }
func (b baseAgent) Timeframe() consensus.Timeframe { return b.timeframe }
