package config

// Config is the top-level configuration carrier.
type Config struct {
	App        AppConfig        `yaml:"app"`
	Consensus  ConsensusConfig  `yaml:"consensus"`
	Agents     AgentsConfig     `yaml:"agents"`
	Experiment ExperimentConfig `yaml:"experiment"`
	Market     MarketConfig     `yaml:"market"`
	Store      StoreConfig      `yaml:"store"`
	Shadow     ShadowConfig     `yaml:"shadow"`
}

type AppConfig struct {
	Env      string `yaml:"env"`
	LogLevel string `yaml:"log_level"`
	HTTPAddr string `yaml:"http_addr"`
	LogPath  string `yaml:"log_path"`
}

// ConsensusConfig controls vote resolution and the decision cycle.
type ConsensusConfig struct {
	// Threshold is the minimum blended confidence required to act.
	Threshold float64 `yaml:"threshold"`
	// HistorySize bounds the in-memory decision history.
	HistorySize int `yaml:"history_size"`
	// DefaultWeight is used for agents missing from the group matrix.
	DefaultWeight float64 `yaml:"default_weight"`
	// GroupWeights maps group id -> agent id -> voting weight.
	GroupWeights map[string]map[string]float64 `yaml:"group_weights"`
	// DefaultGroup selects the weight matrix for the scheduled cycle.
	DefaultGroup  string   `yaml:"default_group"`
	Symbols       []string `yaml:"symbols"`
	CycleInterval string   `yaml:"cycle_interval"`
	// BasePositionSize feeds the dynamic sizing of multi-timeframe decisions.
	BasePositionSize float64 `yaml:"base_position_size"`
}

type AgentsConfig struct {
	TimeoutSeconds         int         `yaml:"timeout_seconds"`
	BreakerThreshold       int         `yaml:"breaker_threshold"`
	BreakerCooldownSeconds int         `yaml:"breaker_cooldown_seconds"`
	Producers              []AgentSpec `yaml:"producers"`
}

// AgentSpec declares one signal producer.
type AgentSpec struct {
	ID        string `yaml:"id"`
	Strategy  string `yaml:"strategy"`
	Timeframe string `yaml:"timeframe"`
}

type ExperimentConfig struct {
	MinSamples    int `yaml:"min_samples"`
	DurationHours int `yaml:"duration_hours"`
}

type MarketConfig struct {
	RESTBase    string `yaml:"rest_base"`
	CandleLimit int    `yaml:"candle_limit"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type ShadowConfig struct {
	// DeviationWarn is the shadow-vs-real PnL gap that triggers a warning.
	DeviationWarn float64 `yaml:"deviation_warn"`
}
