package store

import (
	"context"
	"time"
)

// DecisionRecord is the persisted form of one consensus decision.
type DecisionRecord struct {
	CycleID    string         `json:"cycle_id"`
	Symbol     string         `json:"symbol"`
	Action     string         `json:"action"`
	Confidence float64        `json:"confidence"`
	Approved   bool           `json:"approved"`
	Reason     string         `json:"reason"`
	NumAgents  int            `json:"num_agents"`
	Details    map[string]any `json:"details,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

type ExperienceRecord struct {
	AgentID   string         `json:"agent_id"`
	Pattern   string         `json:"pattern"`
	Success   bool           `json:"success"`
	PnL       float64        `json:"pnl"`
	Weight    float64        `json:"weight"`
	Context   map[string]any `json:"context,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

type ExperimentResultRecord struct {
	TestID    string         `json:"test_id"`
	VariantID string         `json:"variant_id"`
	Symbol    string         `json:"symbol"`
	PnL       float64        `json:"pnl"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

type ShadowDeviationRecord struct {
	TradeID   string    `json:"trade_id"`
	Symbol    string    `json:"symbol"`
	ShadowPnL float64   `json:"shadow_pnl"`
	RealPnL   float64   `json:"real_pnl"`
	Slippage  float64   `json:"slippage"`
	Timestamp time.Time `json:"timestamp"`
}

// Store is the append-only audit trail behind the decision core. Writers
// never block the decision path on it.
type Store interface {
	SaveDecision(ctx context.Context, rec DecisionRecord) error
	RecentDecisions(ctx context.Context, limit int) ([]DecisionRecord, error)
	DecisionsBetween(ctx context.Context, symbol string, from, to time.Time) ([]DecisionRecord, error)

	SaveExperience(ctx context.Context, rec ExperienceRecord) error
	ExperiencesByPattern(ctx context.Context, pattern string, limit int) ([]ExperienceRecord, error)

	SaveExperimentResult(ctx context.Context, rec ExperimentResultRecord) error
	ExperimentResults(ctx context.Context, testID string) ([]ExperimentResultRecord, error)

	SaveShadowDeviation(ctx context.Context, rec ShadowDeviationRecord) error
	ShadowDeviationsBetween(ctx context.Context, symbol string, from, to time.Time) ([]ShadowDeviationRecord, error)

	Close() error
}
