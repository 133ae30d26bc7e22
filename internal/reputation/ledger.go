package reputation

import (
	"sort"
	"sync"
	"time"
)

const (
	// DefaultScore is assumed for agents with no recorded outcome.
	DefaultScore = 0.5
	// learningRate scales each reputation update.
	learningRate = 0.1
	// maxExperiencesPerPattern bounds each pattern's experience list.
	maxExperiencesPerPattern = 1000
)

// Experience is one recorded outcome, grouped under a pattern key.
// ReputationWeight captures the agent's score at share time; wisdom
// queries use the captured weight, not the current score.
type Experience struct {
	AgentID          string         `json:"agent_id"`
	Pattern          string         `json:"pattern"`
	Success          bool           `json:"success"`
	Context          map[string]any `json:"context,omitempty"`
	PnL              float64        `json:"pnl"`
	ReputationWeight float64        `json:"reputation_weight"`
	Timestamp        time.Time      `json:"timestamp"`
}

// Wisdom is the aggregate answer for one pattern.
type Wisdom struct {
	Pattern    string  `json:"pattern"`
	Consensus  string  `json:"consensus"` // bullish | bearish | neutral | unknown
	Confidence float64 `json:"confidence"`
	SampleSize int     `json:"sample_size"`
}

// LeaderboardEntry ranks one agent by current reputation.
type LeaderboardEntry struct {
	AgentID    string  `json:"agent_id"`
	Reputation float64 `json:"reputation"`
	Rank       int     `json:"rank"`
}

// AgentPatternStats summarizes one agent's record for a pattern.
type AgentPatternStats struct {
	AgentID string  `json:"agent_id"`
	Wins    int     `json:"wins"`
	Total   int     `json:"total"`
	PnL     float64 `json:"pnl"`
}

// TransferSummary reports what a learning transfer between two agents
// would draw on. Reporting only: no reputation is moved; whether the
// target should receive a boost is an open product question.
type TransferSummary struct {
	Pattern                string  `json:"pattern"`
	SourceAgent            string  `json:"source_agent"`
	TargetAgent            string  `json:"target_agent"`
	TransferredExperiences int     `json:"transferred_experiences"`
	ExpectedImprovement    float64 `json:"expected_improvement"`
}

// Ledger records agent outcomes per pattern and maintains a bounded
// [0,1] reputation score per agent. Decision cycles for different symbols
// share one ledger, so every read-modify-write runs under the lock.
type Ledger struct {
	mu          sync.Mutex
	experiences map[string][]Experience
	scores      map[string]float64

	now func() time.Time
}

// NewLedger builds an empty ledger. One per process; tests build their own.
func NewLedger() *Ledger {
	return &Ledger{
		experiences: make(map[string][]Experience),
		scores:      make(map[string]float64),
		now:         time.Now,
	}
}

// ShareExperience records an outcome and updates the agent's reputation.
// The experience captures the agent's reputation before this update.
func (l *Ledger) ShareExperience(agentID, pattern string, success bool, context map[string]any, pnl float64) Experience {
	l.mu.Lock()
	defer l.mu.Unlock()

	current, ok := l.scores[agentID]
	if !ok {
		current = DefaultScore
	}
	exp := Experience{
		AgentID:          agentID,
		Pattern:          pattern,
		Success:          success,
		Context:          context,
		PnL:              pnl,
		ReputationWeight: current,
		Timestamp:        l.now().UTC(),
	}
	list := append(l.experiences[pattern], exp)
	if len(list) > maxExperiencesPerPattern {
		list = list[len(list)-maxExperiencesPerPattern:]
	}
	l.experiences[pattern] = list

	delta := learningRate * (1 + abs(pnl)/100)
	if !success {
		delta = -delta
	}
	l.scores[agentID] = clamp01(current + delta)
	return exp
}

// CollectiveWisdom answers what the recorded experiences say about a
// pattern, weighted by each experience's captured reputation.
func (l *Ledger) CollectiveWisdom(pattern string) Wisdom {
	l.mu.Lock()
	defer l.mu.Unlock()

	experiences := l.experiences[pattern]
	if len(experiences) == 0 {
		return Wisdom{Pattern: pattern, Consensus: "unknown"}
	}
	weightedSuccess := 0.0
	totalWeight := 0.0
	for _, exp := range experiences {
		if exp.Success {
			weightedSuccess += exp.ReputationWeight
		}
		totalWeight += exp.ReputationWeight
	}
	confidence := DefaultScore
	if totalWeight > 0 {
		confidence = weightedSuccess / totalWeight
	}
	consensus := "neutral"
	switch {
	case confidence > 0.6:
		consensus = "bullish"
	case confidence < 0.4:
		consensus = "bearish"
	}
	return Wisdom{
		Pattern:    pattern,
		Consensus:  consensus,
		Confidence: confidence,
		SampleSize: len(experiences),
	}
}

// TopAgentsForPattern ranks agents with experiences for the pattern by
// win rate, then cumulative PnL, descending.
func (l *Ledger) TopAgentsForPattern(pattern string, limit int) []AgentPatternStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	if limit <= 0 {
		limit = 3
	}
	byAgent := make(map[string]*AgentPatternStats)
	order := make([]string, 0)
	for _, exp := range l.experiences[pattern] {
		stats, ok := byAgent[exp.AgentID]
		if !ok {
			stats = &AgentPatternStats{AgentID: exp.AgentID}
			byAgent[exp.AgentID] = stats
			order = append(order, exp.AgentID)
		}
		stats.Total++
		if exp.Success {
			stats.Wins++
		}
		stats.PnL += exp.PnL
	}
	out := make([]AgentPatternStats, 0, len(order))
	for _, id := range order {
		out = append(out, *byAgent[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		wi := winRate(out[i])
		wj := winRate(out[j])
		if wi != wj {
			return wi > wj
		}
		if out[i].PnL != out[j].PnL {
			return out[i].PnL > out[j].PnL
		}
		return out[i].AgentID < out[j].AgentID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// AgentScore returns an agent's current reputation, 0.5 when unseen.
func (l *Ledger) AgentScore(agentID string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if score, ok := l.scores[agentID]; ok {
		return score
	}
	return DefaultScore
}

// Leaderboard returns all scored agents sorted by reputation descending.
func (l *Ledger) Leaderboard(limit int) []LeaderboardEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	if limit <= 0 {
		limit = 10
	}
	entries := make([]LeaderboardEntry, 0, len(l.scores))
	for id, score := range l.scores {
		entries = append(entries, LeaderboardEntry{AgentID: id, Reputation: score})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Reputation != entries[j].Reputation {
			return entries[i].Reputation > entries[j].Reputation
		}
		return entries[i].AgentID < entries[j].AgentID
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

// TransferLearning summarizes the source agent's successful experiences
// for a pattern. It returns nil when the source has none. See
// TransferSummary: this mutates nothing.
func (l *Ledger) TransferLearning(fromAgent, toAgent, pattern string) *TransferSummary {
	l.mu.Lock()
	defer l.mu.Unlock()

	count := 0
	totalPnL := 0.0
	for _, exp := range l.experiences[pattern] {
		if exp.AgentID == fromAgent && exp.Success {
			count++
			totalPnL += exp.PnL
		}
	}
	if count == 0 {
		return nil
	}
	return &TransferSummary{
		Pattern:                pattern,
		SourceAgent:            fromAgent,
		TargetAgent:            toAgent,
		TransferredExperiences: count,
		ExpectedImprovement:    totalPnL / float64(count),
	}
}

// PatternSize reports how many experiences a pattern currently retains.
func (l *Ledger) PatternSize(pattern string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.experiences[pattern])
}

func winRate(s AgentPatternStats) float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.Total)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
