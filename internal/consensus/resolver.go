package consensus

import (
	"fmt"
	"sync"
	"time"
)

// DefaultThreshold is the minimum blended confidence required to act.
const DefaultThreshold = 0.70

// DefaultHistorySize bounds the decision history (FIFO eviction).
const DefaultHistorySize = 100

// Resolver turns a vote tally into a final action with calibrated
// confidence and keeps a bounded history of its decisions. Decision
// cycles for different symbols may run concurrently, so history access
// is serialized.
type Resolver struct {
	threshold   float64
	historySize int

	mu      sync.Mutex
	history []ConsensusDecision

	now func() time.Time
}

// ResolverOption customizes a Resolver.
type ResolverOption func(*Resolver)

// WithThreshold overrides the approval threshold.
func WithThreshold(t float64) ResolverOption {
	return func(r *Resolver) {
		if t > 0 && t <= 1 {
			r.threshold = t
		}
	}
}

// WithHistorySize overrides the bounded history capacity.
func WithHistorySize(n int) ResolverOption {
	return func(r *Resolver) {
		if n > 0 {
			r.historySize = n
		}
	}
}

func withClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) { r.now = now }
}

// NewResolver builds a resolver. One instance per process; tests build
// their own isolated instances.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		threshold:   DefaultThreshold,
		historySize: DefaultHistorySize,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Threshold reports the configured approval threshold.
func (r *Resolver) Threshold() float64 { return r.threshold }

// Resolve applies the consensus rule to a tally. signals are the raw votes
// of the same cycle; they only contribute the illustrative rationale in the
// reason text and may be nil. Zero agents short-circuits to a safe HOLD
// without touching the history.
func (r *Resolver) Resolve(tally VoteTally, numAgents int, signals []AgentSignal) ConsensusDecision {
	if numAgents == 0 || totalVotes(tally) == 0 {
		return ConsensusDecision{
			Timestamp:  r.now().UTC(),
			Action:     ActionHold,
			Confidence: 0.0,
			Reason:     "no agents/no valid signals",
			Votes:      tally,
			NumAgents:  numAgents,
		}
	}

	winner, bucket := winningAction(tally)
	voteProportion := float64(bucket.Count) / float64(numAgents)
	confidence := clip(0.4*voteProportion+0.4*bucket.WeightedScore+0.2*bucket.AvgConfidence, 0, 1)

	action := winner
	var reason string
	if confidence < r.threshold {
		action = ActionHold
		reason = fmt.Sprintf("consensus below threshold: %.2f%% < %.2f%%", confidence*100, r.threshold*100)
	} else {
		reason = fmt.Sprintf("%d/%d agents voted %s", bucket.Count, numAgents, winner)
		if rationale := firstRationale(signals, winner); rationale != "" {
			reason += ": " + rationale
		}
	}

	decision := ConsensusDecision{
		Timestamp:  r.now().UTC(),
		Action:     action,
		Confidence: confidence,
		Reason:     reason,
		Votes:      tally,
		NumAgents:  numAgents,
	}
	r.append(decision)
	return decision
}

// ResolveSignals tallies and resolves in one step. This is the per-cycle
// entry point used by the decision loop and the HTTP surface.
func (r *Resolver) ResolveSignals(signals []AgentSignal, weights map[string]float64, defaultWeight float64) ConsensusDecision {
	tally := Tally(signals, weights, defaultWeight)
	return r.Resolve(tally, len(signals), signals)
}

// History returns up to limit most recent decisions, newest last.
func (r *Resolver) History(limit int) []ConsensusDecision {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit <= 0 || limit > len(r.history) {
		limit = len(r.history)
	}
	out := make([]ConsensusDecision, limit)
	copy(out, r.history[len(r.history)-limit:])
	return out
}

// Stats summarizes the bounded history.
type Stats struct {
	TotalDecisions int                `json:"total_decisions"`
	ActionCounts   map[Action]int     `json:"action_counts"`
	AvgConfidence  float64            `json:"avg_confidence"`
	LastDecision   *ConsensusDecision `json:"last_decision,omitempty"`
}

// Statistics reports aggregate counts over the retained decisions.
func (r *Resolver) Statistics() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := Stats{
		ActionCounts: map[Action]int{ActionBuy: 0, ActionSell: 0, ActionHold: 0},
	}
	if len(r.history) == 0 {
		return stats
	}
	total := 0.0
	for _, d := range r.history {
		stats.ActionCounts[d.Action]++
		total += d.Confidence
	}
	stats.TotalDecisions = len(r.history)
	stats.AvgConfidence = total / float64(len(r.history))
	last := r.history[len(r.history)-1]
	stats.LastDecision = &last
	return stats
}

func (r *Resolver) append(d ConsensusDecision) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, d)
	if len(r.history) > r.historySize {
		r.history = r.history[len(r.history)-r.historySize:]
	}
}

// winningAction scans buckets in the fixed action order and requires a
// strictly greater weighted score to displace the current winner, so an
// exact tie resolves to the earlier action.
func winningAction(tally VoteTally) (Action, ActionVotes) {
	winner := ActionHold
	var best ActionVotes
	first := true
	for _, action := range actionOrder {
		bucket := tally[action]
		if first || bucket.WeightedScore > best.WeightedScore {
			winner = action
			best = bucket
			first = false
		}
	}
	return winner, best
}

func totalVotes(tally VoteTally) int {
	total := 0
	for _, bucket := range tally {
		total += bucket.Count
	}
	return total
}

// firstRationale picks the first non-empty rationale among supporters of
// the winning action, used purely as an illustrative example.
func firstRationale(signals []AgentSignal, action Action) string {
	for _, sig := range signals {
		if sig.Action == action && sig.Rationale != "" {
			return sig.Rationale
		}
	}
	return ""
}
