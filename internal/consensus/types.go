package consensus

import (
	"strings"
	"time"
)

// Action is a trading vote outcome.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// actionOrder fixes the enumeration order everywhere votes are compared.
// Ties on equal weighted score resolve to the earlier action (BUY > SELL > HOLD).
var actionOrder = []Action{ActionBuy, ActionSell, ActionHold}

// NormalizeAction maps free-form action text onto the three vote outcomes.
// Unknown input normalizes to empty.
func NormalizeAction(raw string) Action {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "BUY", "LONG", "OPEN_LONG":
		return ActionBuy
	case "SELL", "SHORT", "OPEN_SHORT":
		return ActionSell
	case "HOLD", "WAIT":
		return ActionHold
	}
	return ""
}

// AgentSignal is one agent's vote for a decision cycle. Ephemeral: the core
// never persists raw signals, only the resolved decision.
type AgentSignal struct {
	AgentID    string    `json:"agent_id"`
	Action     Action    `json:"action"`
	Confidence float64   `json:"confidence"`
	Rationale  string    `json:"rationale,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// ActionVotes is one action's bucket in a tally.
type ActionVotes struct {
	Count         int     `json:"count"`
	WeightedScore float64 `json:"weighted_score"`
	ConfidenceSum float64 `json:"confidence_sum"`
	AvgConfidence float64 `json:"avg_confidence"`
}

// VoteTally holds the per-action buckets of one cycle. Recomputed each cycle.
type VoteTally map[Action]ActionVotes

// ConsensusDecision is the resolved output of one voting cycle.
type ConsensusDecision struct {
	Timestamp  time.Time `json:"timestamp"`
	Action     Action    `json:"action"`
	Confidence float64   `json:"confidence"`
	Reason     string    `json:"reason"`
	Votes      VoteTally `json:"votes"`
	NumAgents  int       `json:"num_agents"`
}

// Timeframe identifies one slot of the fixed multi-timeframe set.
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
	Timeframe1d  Timeframe = "1d"
)

var timeframeOrder = []Timeframe{
	Timeframe1m, Timeframe5m, Timeframe15m, Timeframe1h, Timeframe4h, Timeframe1d,
}

// timeframeWeights are fixed and sum to 1.0 across the six slots.
var timeframeWeights = map[Timeframe]float64{
	Timeframe1m:  0.10,
	Timeframe5m:  0.15,
	Timeframe15m: 0.20,
	Timeframe1h:  0.25,
	Timeframe4h:  0.20,
	Timeframe1d:  0.10,
}

// TimeframeSignal is one agent's vote on one timeframe.
type TimeframeSignal struct {
	Timeframe  Timeframe `json:"timeframe"`
	Action     Action    `json:"action"`
	Confidence float64   `json:"confidence"`
	AgentID    string    `json:"agent_id"`
	Timestamp  time.Time `json:"timestamp"`
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
