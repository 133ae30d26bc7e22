package consensus

// DefaultAgentWeight applies to agents missing from the group weight matrix.
const DefaultAgentWeight = 0.1

// Tally counts weighted votes for one decision cycle. Pure: no state is
// touched and partial input is fine: agents that failed or timed out
// upstream are simply absent from signals. An empty input yields an
// all-zero tally; mapping that to a HOLD decision is the resolver's job.
func Tally(signals []AgentSignal, weights map[string]float64, defaultWeight float64) VoteTally {
	if defaultWeight < 0 {
		defaultWeight = DefaultAgentWeight
	}
	tally := VoteTally{
		ActionBuy:  {},
		ActionSell: {},
		ActionHold: {},
	}
	for _, sig := range signals {
		bucket, ok := tally[sig.Action]
		if !ok {
			continue
		}
		weight, found := weights[sig.AgentID]
		if !found {
			weight = defaultWeight
		}
		bucket.Count++
		bucket.WeightedScore += weight * sig.Confidence
		bucket.ConfidenceSum += sig.Confidence
		tally[sig.Action] = bucket
	}
	for action, bucket := range tally {
		if bucket.Count > 0 {
			bucket.AvgConfidence = bucket.ConfidenceSum / float64(bucket.Count)
		}
		tally[action] = bucket
	}
	return tally
}
