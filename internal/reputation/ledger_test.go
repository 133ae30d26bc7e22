package reputation

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShareExperienceUpdatesReputation(t *testing.T) {
	l := NewLedger()
	assert.InDelta(t, 0.5, l.AgentScore("G1"), 1e-9)

	exp := l.ShareExperience("G1", "double_bottom", true, nil, 50)
	// Captured weight is the score before the update.
	assert.InDelta(t, 0.5, exp.ReputationWeight, 1e-9)
	// delta = 0.1 * (1 + 50/100) = 0.15
	assert.InDelta(t, 0.65, l.AgentScore("G1"), 1e-9)

	l.ShareExperience("G1", "double_bottom", false, nil, -200)
	// delta = -0.1 * (1 + 200/100) = -0.30
	assert.InDelta(t, 0.35, l.AgentScore("G1"), 1e-9)
}

func TestReputationStaysBounded(t *testing.T) {
	l := NewLedger()
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		success := rng.Float64() < 0.5
		pnl := (rng.Float64() - 0.5) * 1000
		l.ShareExperience("G1", "random_walk", success, nil, pnl)
		score := l.AgentScore("G1")
		require.GreaterOrEqual(t, score, 0.0)
		require.LessOrEqual(t, score, 1.0)
	}
}

func TestExperienceListCapped(t *testing.T) {
	l := NewLedger()
	for i := 0; i < 1001; i++ {
		l.ShareExperience("G1", "breakout", true, map[string]any{"seq": i}, 1)
	}
	require.Equal(t, 1000, l.PatternSize("breakout"))

	l.mu.Lock()
	first := l.experiences["breakout"][0]
	l.mu.Unlock()
	// The oldest entry (seq 0) was evicted.
	assert.Equal(t, 1, first.Context["seq"])
}

func TestCollectiveWisdom(t *testing.T) {
	l := NewLedger()
	assert.Equal(t, Wisdom{Pattern: "unseen", Consensus: "unknown"}, l.CollectiveWisdom("unseen"))

	for i := 0; i < 8; i++ {
		l.ShareExperience("G1", "flag", true, nil, 10)
	}
	l.ShareExperience("G2", "flag", false, nil, -10)

	wisdom := l.CollectiveWisdom("flag")
	assert.Equal(t, "bullish", wisdom.Consensus)
	assert.Greater(t, wisdom.Confidence, 0.6)
	assert.Equal(t, 9, wisdom.SampleSize)

	for i := 0; i < 20; i++ {
		l.ShareExperience("G2", "bear_flag", false, nil, -5)
	}
	assert.Equal(t, "bearish", l.CollectiveWisdom("bear_flag").Consensus)
}

func TestWisdomUsesCapturedWeight(t *testing.T) {
	l := NewLedger()
	// First success captured at weight 0.5; later failures drag the live
	// score down but must not rewrite past experiences.
	l.ShareExperience("G1", "wedge", true, nil, 0)
	for i := 0; i < 10; i++ {
		l.ShareExperience("G1", "other", false, nil, -100)
	}
	require.Equal(t, 0.0, l.AgentScore("G1"))

	wisdom := l.CollectiveWisdom("wedge")
	assert.InDelta(t, 1.0, wisdom.Confidence, 1e-9)
}

func TestTopAgentsForPattern(t *testing.T) {
	l := NewLedger()
	l.ShareExperience("winner", "cup", true, nil, 100)
	l.ShareExperience("winner", "cup", true, nil, 50)
	l.ShareExperience("mixed", "cup", true, nil, 10)
	l.ShareExperience("mixed", "cup", false, nil, -20)
	l.ShareExperience("loser", "cup", false, nil, -100)

	top := l.TopAgentsForPattern("cup", 2)
	require.Len(t, top, 2)
	assert.Equal(t, "winner", top[0].AgentID)
	assert.Equal(t, "mixed", top[1].AgentID)
	assert.Equal(t, 2, top[0].Wins)
	assert.InDelta(t, 150.0, top[0].PnL, 1e-9)
}

func TestLeaderboard(t *testing.T) {
	l := NewLedger()
	for i := 0; i < 12; i++ {
		id := fmt.Sprintf("agent-%02d", i)
		for j := 0; j <= i; j++ {
			l.ShareExperience(id, "p", true, nil, 0)
		}
	}
	board := l.Leaderboard(10)
	require.Len(t, board, 10)
	assert.Equal(t, 1, board[0].Rank)
	assert.Equal(t, 10, board[9].Rank)
	for i := 1; i < len(board); i++ {
		assert.GreaterOrEqual(t, board[i-1].Reputation, board[i].Reputation)
	}
}

func TestTransferLearningReportsOnly(t *testing.T) {
	l := NewLedger()
	assert.Nil(t, l.TransferLearning("G1", "G2", "none"))

	l.ShareExperience("G1", "channel", true, nil, 30)
	l.ShareExperience("G1", "channel", true, nil, 10)
	l.ShareExperience("G1", "channel", false, nil, -50)

	before := l.AgentScore("G2")
	summary := l.TransferLearning("G1", "G2", "channel")
	require.NotNil(t, summary)
	assert.Equal(t, 2, summary.TransferredExperiences)
	assert.InDelta(t, 20.0, summary.ExpectedImprovement, 1e-9)
	// The target's reputation must be untouched.
	assert.Equal(t, before, l.AgentScore("G2"))
}
