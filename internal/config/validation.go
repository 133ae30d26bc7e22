package config

import (
	"fmt"
	"strings"
)

func validate(c *Config) error {
	if c.Consensus.Threshold <= 0 || c.Consensus.Threshold > 1 {
		return fmt.Errorf("consensus.threshold must be in (0,1], got %v", c.Consensus.Threshold)
	}
	if c.Consensus.DefaultWeight < 0 {
		return fmt.Errorf("consensus.default_weight must be >= 0")
	}
	for group, weights := range c.Consensus.GroupWeights {
		for agent, w := range weights {
			if w < 0 {
				return fmt.Errorf("consensus.group_weights.%s.%s must be >= 0", group, agent)
			}
		}
	}
	seen := make(map[string]bool, len(c.Agents.Producers))
	for _, spec := range c.Agents.Producers {
		id := strings.TrimSpace(spec.ID)
		if id == "" {
			return fmt.Errorf("agents.producers contains entry without id")
		}
		if seen[id] {
			return fmt.Errorf("agents.producers duplicate id %s", id)
		}
		seen[id] = true
		if strings.TrimSpace(spec.Strategy) == "" {
			return fmt.Errorf("agents.producers.%s missing strategy", id)
		}
	}
	if c.Experiment.MinSamples < 2 {
		return fmt.Errorf("experiment.min_samples must be >= 2")
	}
	return nil
}
