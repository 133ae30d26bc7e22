package config

const (
	defaultAppEnv          = "dev"
	defaultAppLogLevel     = "info"
	defaultAppHTTPAddr     = ":9992"
	defaultThreshold       = 0.70
	defaultHistorySize     = 100
	defaultAgentWeight     = 0.1
	defaultGroup           = "G1"
	defaultCycleInterval   = "1m"
	defaultBasePosition    = 100.0
	defaultAgentTimeout    = 10
	defaultBreakerTrips    = 5
	defaultBreakerCooldown = 300
	defaultMinSamples      = 30
	defaultDurationHours   = 24
	defaultMarketREST      = "https://fapi.binance.com"
	defaultCandleLimit     = 120
	defaultStorePath       = "data/consensus.db"
	defaultDeviationWarn   = 0.02
)

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = defaultAppEnv
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = defaultAppLogLevel
	}
	if c.App.HTTPAddr == "" {
		c.App.HTTPAddr = defaultAppHTTPAddr
	}
	if c.Consensus.Threshold <= 0 {
		c.Consensus.Threshold = defaultThreshold
	}
	if c.Consensus.HistorySize <= 0 {
		c.Consensus.HistorySize = defaultHistorySize
	}
	if c.Consensus.DefaultWeight <= 0 {
		c.Consensus.DefaultWeight = defaultAgentWeight
	}
	if c.Consensus.DefaultGroup == "" {
		c.Consensus.DefaultGroup = defaultGroup
	}
	if c.Consensus.CycleInterval == "" {
		c.Consensus.CycleInterval = defaultCycleInterval
	}
	if c.Consensus.BasePositionSize <= 0 {
		c.Consensus.BasePositionSize = defaultBasePosition
	}
	if c.Agents.TimeoutSeconds <= 0 {
		c.Agents.TimeoutSeconds = defaultAgentTimeout
	}
	if c.Agents.BreakerThreshold <= 0 {
		c.Agents.BreakerThreshold = defaultBreakerTrips
	}
	if c.Agents.BreakerCooldownSeconds <= 0 {
		c.Agents.BreakerCooldownSeconds = defaultBreakerCooldown
	}
	if c.Experiment.MinSamples <= 0 {
		c.Experiment.MinSamples = defaultMinSamples
	}
	if c.Experiment.DurationHours <= 0 {
		c.Experiment.DurationHours = defaultDurationHours
	}
	if c.Market.RESTBase == "" {
		c.Market.RESTBase = defaultMarketREST
	}
	if c.Market.CandleLimit <= 0 {
		c.Market.CandleLimit = defaultCandleLimit
	}
	if c.Store.Path == "" {
		c.Store.Path = defaultStorePath
	}
	if c.Shadow.DeviationWarn <= 0 {
		c.Shadow.DeviationWarn = defaultDeviationWarn
	}
}
