package agents

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"maveretta/internal/consensus"
	"maveretta/internal/logger"
	"maveretta/internal/market"
	"maveretta/internal/pkg/circuit"
)

// Produced is one agent's contribution to a cycle, tagged with the
// timeframe it analyzed.
type Produced struct {
	Signal    consensus.AgentSignal
	Timeframe consensus.Timeframe
}

// Collector fans one decision cycle out to every agent. A failing or
// timed-out agent abstains from that cycle; repeated failures trip its
// breaker and skip it until the cooldown passes.
type Collector struct {
	agents   []Agent
	timeout  time.Duration
	breakers map[string]*circuit.Breaker

	onFailure func(agentID string)
}

type CollectorOption func(*Collector)

// WithFailureHook is called once per agent failure, after breaker
// bookkeeping. Used to feed the error counter.
func WithFailureHook(hook func(agentID string)) CollectorOption {
	return func(c *Collector) { c.onFailure = hook }
}

func NewCollector(agents []Agent, timeout time.Duration, breakerThreshold int, breakerCooldown time.Duration, opts ...CollectorOption) *Collector {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if breakerThreshold <= 0 {
		breakerThreshold = 5
	}
	if breakerCooldown <= 0 {
		breakerCooldown = time.Minute
	}
	c := &Collector{
		agents:   agents,
		timeout:  timeout,
		breakers: make(map[string]*circuit.Breaker, len(agents)),
	}
	for _, a := range agents {
		c.breakers[a.ID()] = circuit.NewBreaker(a.ID(), breakerThreshold, breakerCooldown)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Collector) Agents() []Agent { return c.agents }

type analyzeOutcome struct {
	signal consensus.AgentSignal
	err    error
}

// Collect runs every agent against the snapshot for its timeframe and
// returns whatever signals arrived in time. snapshots is keyed by
// timeframe; agents without one are skipped.
func (c *Collector) Collect(ctx context.Context, snapshots map[consensus.Timeframe]market.Snapshot) []Produced {
	if len(c.agents) == 0 {
		return nil
	}
	results := make([]Produced, len(c.agents))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, agent := range c.agents {
		i, agent := i, agent
		snap, ok := snapshots[agent.Timeframe()]
		if !ok {
			logger.Debugf("agent %s skipped: no %s snapshot", agent.ID(), agent.Timeframe())
			continue
		}
		breaker := c.breakers[agent.ID()]
		if !breaker.Allow() {
			logger.Debugf("agent %s skipped: breaker open", agent.ID())
			continue
		}
		eg.Go(func() error {
			agentCtx, cancel := context.WithTimeout(egCtx, c.timeout)
			defer cancel()

			start := time.Now()
			// Analyze runs in its own goroutine so an agent that never
			// checks ctx is abandoned at the deadline instead of holding
			// up the whole cycle.
			done := make(chan analyzeOutcome, 1)
			go func() {
				signal, err := agent.Analyze(agentCtx, snap)
				done <- analyzeOutcome{signal: signal, err: err}
			}()

			var res analyzeOutcome
			select {
			case res = <-done:
			case <-agentCtx.Done():
				res.err = agentCtx.Err()
			}
			if res.err != nil {
				breaker.RecordFailure()
				if c.onFailure != nil {
					c.onFailure(agent.ID())
				}
				logger.Warnf("agent %s failed after %s: %v", agent.ID(), time.Since(start).Truncate(time.Millisecond), res.err)
				return nil
			}
			breaker.RecordSuccess()
			results[i] = Produced{Signal: res.signal, Timeframe: agent.Timeframe()}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		logger.Debugf("agent collection: %v", err)
	}
	out := make([]Produced, 0, len(results))
	for _, p := range results {
		if p.Signal.AgentID == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Signals flattens produced results for the single-group resolver.
func Signals(produced []Produced) []consensus.AgentSignal {
	out := make([]consensus.AgentSignal, 0, len(produced))
	for _, p := range produced {
		out = append(out, p.Signal)
	}
	return out
}

// TimeframeSignals reshapes produced results for the multi-timeframe
// resolver.
func TimeframeSignals(produced []Produced) []consensus.TimeframeSignal {
	out := make([]consensus.TimeframeSignal, 0, len(produced))
	for _, p := range produced {
		out = append(out, consensus.TimeframeSignal{
			Timeframe:  p.Timeframe,
			Action:     p.Signal.Action,
			Confidence: p.Signal.Confidence,
			AgentID:    p.Signal.AgentID,
			Timestamp:  p.Signal.Timestamp,
		})
	}
	return out
}
