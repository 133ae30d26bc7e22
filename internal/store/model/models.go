package model

import "gorm.io/datatypes"

type DecisionModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	CycleID       string         `gorm:"column:cycle_id;index"`
	Symbol        string         `gorm:"column:symbol;index"`
	Action        string         `gorm:"column:action"`
	Confidence    float64        `gorm:"column:confidence"`
	Approved      int            `gorm:"column:approved"`
	Reason        string         `gorm:"column:reason"`
	NumAgents     int            `gorm:"column:num_agents"`
	DetailsJSON   datatypes.JSON `gorm:"column:details_json;type:TEXT"`
	TimestampUnix int64          `gorm:"column:timestamp;index"`
	CreatedAtUnix int64          `gorm:"column:created_at"`
}

func (DecisionModel) TableName() string { return "decisions" }

type ExperienceModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	AgentID       string         `gorm:"column:agent_id;index"`
	Pattern       string         `gorm:"column:pattern;index"`
	Success       int            `gorm:"column:success"`
	PnL           float64        `gorm:"column:pnl"`
	Weight        float64        `gorm:"column:weight"`
	ContextJSON   datatypes.JSON `gorm:"column:context_json;type:TEXT"`
	TimestampUnix int64          `gorm:"column:timestamp;index"`
	CreatedAtUnix int64          `gorm:"column:created_at"`
}

func (ExperienceModel) TableName() string { return "agent_experiences" }

type ExperimentResultModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	TestID        string         `gorm:"column:test_id;index"`
	VariantID     string         `gorm:"column:variant_id;index"`
	Symbol        string         `gorm:"column:symbol"`
	PnL           float64        `gorm:"column:pnl"`
	MetadataJSON  datatypes.JSON `gorm:"column:metadata_json;type:TEXT"`
	TimestampUnix int64          `gorm:"column:timestamp;index"`
	CreatedAtUnix int64          `gorm:"column:created_at"`
}

func (ExperimentResultModel) TableName() string { return "experiment_results" }

type ShadowDeviationModel struct {
	ID            int64   `gorm:"column:id;primaryKey"`
	TradeID       string  `gorm:"column:trade_id;index"`
	Symbol        string  `gorm:"column:symbol;index"`
	ShadowPnL     float64 `gorm:"column:shadow_pnl"`
	RealPnL       float64 `gorm:"column:real_pnl"`
	Slippage      float64 `gorm:"column:slippage"`
	TimestampUnix int64   `gorm:"column:timestamp;index"`
	CreatedAtUnix int64   `gorm:"column:created_at"`
}

func (ShadowDeviationModel) TableName() string { return "shadow_deviations" }
