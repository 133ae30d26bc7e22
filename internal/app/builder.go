package app

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"maveretta/internal/agents"
	"maveretta/internal/config"
	"maveretta/internal/consensus"
	"maveretta/internal/experiment"
	"maveretta/internal/logger"
	"maveretta/internal/market"
	"maveretta/internal/metrics"
	"maveretta/internal/reputation"
	"maveretta/internal/shadow"
	"maveretta/internal/store"
	"maveretta/internal/store/gormstore"
	apihttp "maveretta/internal/transport/http"
)

// AppBuilder assembles the decision core from configuration. Overrides
// exist so tests can swap the market source and the audit store.
type AppBuilder struct {
	cfg *config.Config

	quoteSourceFn func(*config.Config) market.QuoteSource
	storeFn       func(*config.Config) (store.Store, error)
}

type AppBuilderOption func(*AppBuilder)

func WithQuoteSource(src market.QuoteSource) AppBuilderOption {
	return func(b *AppBuilder) {
		b.quoteSourceFn = func(*config.Config) market.QuoteSource { return src }
	}
}

func WithStore(s store.Store) AppBuilderOption {
	return func(b *AppBuilder) {
		b.storeFn = func(*config.Config) (store.Store, error) { return s, nil }
	}
}

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:           cfg,
		quoteSourceFn: buildQuoteSource,
		storeFn:       buildStore,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func buildQuoteSource(cfg *config.Config) market.QuoteSource {
	return market.NewBinanceSource(cfg.Market.RESTBase)
}

func buildStore(cfg *config.Config) (store.Store, error) {
	if cfg.Store.Path == "" {
		return nil, nil
	}
	return gormstore.NewGormStore(cfg.Store.Path)
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	producers, err := buildAgents(cfg)
	if err != nil {
		return nil, err
	}
	logger.Infof("loaded %d agents for %d symbols", len(producers), len(cfg.Consensus.Symbols))

	recorder := metrics.New(nil)
	collector := agents.NewCollector(
		producers,
		time.Duration(cfg.Agents.TimeoutSeconds)*time.Second,
		cfg.Agents.BreakerThreshold,
		time.Duration(cfg.Agents.BreakerCooldownSeconds)*time.Second,
		agents.WithFailureHook(recorder.RecordAgentError),
	)

	resolver := consensus.NewResolver(
		consensus.WithThreshold(cfg.Consensus.Threshold),
		consensus.WithHistorySize(cfg.Consensus.HistorySize),
	)
	mtf := consensus.NewMultiTimeframeResolver()
	ledger := reputation.NewLedger()
	experiments := experiment.NewManager(rand.New(rand.NewSource(time.Now().UnixNano())))
	shadowEval := shadow.NewEvaluator(shadow.WithDeviationWarn(cfg.Shadow.DeviationWarn))

	logs, err := b.storeFn(cfg)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	quotes := b.quoteSourceFn(cfg)

	engine := NewEngine(cfg, collector, resolver, mtf, shadowEval, quotes, logs, recorder)

	router := apihttp.NewRouter(apihttp.RouterConfig{
		Resolver:      resolver,
		MTF:           mtf,
		Ledger:        ledger,
		Experiments:   experiments,
		Shadow:        shadowEval,
		Logs:          logs,
		GroupWeights:  cfg.Consensus.GroupWeights,
		DefaultWeight: cfg.Consensus.DefaultWeight,
		Experiment:    cfg.Experiment,
	})
	server, err := apihttp.NewServer(cfg.App.HTTPAddr, router)
	if err != nil {
		return nil, fmt.Errorf("init http server: %w", err)
	}

	return &App{
		cfg:    cfg,
		engine: engine,
		server: server,
		logs:   logs,
	}, nil
}

func buildAgents(cfg *config.Config) ([]agents.Agent, error) {
	out := make([]agents.Agent, 0, len(cfg.Agents.Producers))
	for _, spec := range cfg.Agents.Producers {
		agent, err := agents.New(spec.ID, agents.Strategy(spec.Strategy), consensus.Timeframe(spec.Timeframe))
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", spec.ID, err)
		}
		out = append(out, agent)
	}
	return out, nil
}
