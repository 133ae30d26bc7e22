package experiment

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoVariants(controlPct, challengerPct float64) []StrategyVariant {
	return []StrategyVariant{
		{VariantID: "control", Name: "baseline", AllocationPct: controlPct, IsControl: true},
		{VariantID: "challenger", Name: "tuned", AllocationPct: challengerPct},
	}
}

func newSeededManager() *Manager {
	return NewManager(rand.New(rand.NewSource(42)))
}

func TestCreateTestValidation(t *testing.T) {
	m := newSeededManager()

	cases := []struct {
		name       string
		variants   []StrategyVariant
		minSamples int
	}{
		{
			name:       "single variant",
			variants:   []StrategyVariant{{VariantID: "only", AllocationPct: 100, IsControl: true}},
			minSamples: 10,
		},
		{
			name: "duplicate variant id",
			variants: []StrategyVariant{
				{VariantID: "a", AllocationPct: 50, IsControl: true},
				{VariantID: "a", AllocationPct: 50},
			},
			minSamples: 10,
		},
		{
			name:       "allocation not 100",
			variants:   twoVariants(60, 50),
			minSamples: 10,
		},
		{
			name: "no control",
			variants: []StrategyVariant{
				{VariantID: "a", AllocationPct: 50},
				{VariantID: "b", AllocationPct: 50},
			},
			minSamples: 10,
		},
		{
			name: "two controls",
			variants: []StrategyVariant{
				{VariantID: "a", AllocationPct: 50, IsControl: true},
				{VariantID: "b", AllocationPct: 50, IsControl: true},
			},
			minSamples: 10,
		},
		{
			name:       "min samples too small",
			variants:   twoVariants(50, 50),
			minSamples: 1,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := m.CreateTest(tc.name, tc.variants, 24*time.Hour, tc.minSamples)
			assert.ErrorIs(t, err, ErrInvalidTest)
		})
	}
}

func TestCreateTestAcceptsRoundingSlack(t *testing.T) {
	m := newSeededManager()

	variants := []StrategyVariant{
		{VariantID: "control", AllocationPct: 33.33, IsControl: true},
		{VariantID: "b", AllocationPct: 33.33},
		{VariantID: "c", AllocationPct: 33.34},
	}
	testID, err := m.CreateTest("three way", variants, 24*time.Hour, 30)
	require.NoError(t, err)

	test, err := m.GetTest(testID)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, test.Status)
	assert.Len(t, test.Variants, 3)
	assert.Equal(t, 30, test.MinSamples)
}

func TestAssignVariantHonorsAllocation(t *testing.T) {
	m := newSeededManager()

	// A zero-allocation challenger must never be drawn.
	testID, err := m.CreateTest("all control", twoVariants(100, 0), 24*time.Hour, 10)
	require.NoError(t, err)

	for i := 0; i < 200; i++ {
		variantID, err := m.AssignVariant(testID, "BTCUSDT")
		require.NoError(t, err)
		assert.Equal(t, "control", variantID)
	}
}

func TestAssignVariantCoversSplit(t *testing.T) {
	m := newSeededManager()

	testID, err := m.CreateTest("even split", twoVariants(50, 50), 24*time.Hour, 10)
	require.NoError(t, err)

	counts := map[string]int{}
	for i := 0; i < 1000; i++ {
		variantID, err := m.AssignVariant(testID, "ETHUSDT")
		require.NoError(t, err)
		counts[variantID]++
	}
	assert.Greater(t, counts["control"], 400)
	assert.Greater(t, counts["challenger"], 400)
}

func TestRecordResultErrors(t *testing.T) {
	m := newSeededManager()

	err := m.RecordResult("missing", "control", "BTCUSDT", 1.0, nil)
	assert.ErrorIs(t, err, ErrTestNotFound)

	testID, err := m.CreateTest("record errors", twoVariants(50, 50), 24*time.Hour, 10)
	require.NoError(t, err)

	err = m.RecordResult(testID, "nope", "BTCUSDT", 1.0, nil)
	assert.ErrorIs(t, err, ErrUnknownVariant)

	require.NoError(t, m.StopTest(testID))
	err = m.RecordResult(testID, "control", "BTCUSDT", 1.0, nil)
	assert.ErrorIs(t, err, ErrTestStopped)

	_, err = m.AssignVariant(testID, "BTCUSDT")
	assert.ErrorIs(t, err, ErrTestStopped)
}

func TestAnalyzeContinueTestingBelowMinSamples(t *testing.T) {
	m := newSeededManager()

	testID, err := m.CreateTest("underpowered", twoVariants(50, 50), 24*time.Hour, 30)
	require.NoError(t, err)

	for i := 0; i < 30; i++ {
		require.NoError(t, m.RecordResult(testID, "control", "BTCUSDT", 1.0, nil))
	}
	// Challenger far below min_samples, even with a huge apparent lift.
	for i := 0; i < 5; i++ {
		require.NoError(t, m.RecordResult(testID, "challenger", "BTCUSDT", 50.0, nil))
	}

	report, err := m.AnalyzeTest(testID)
	require.NoError(t, err)
	assert.Equal(t, RecContinueTesting, report.Comparisons["challenger"].Recommendation)
	assert.Empty(t, report.Winner)
	assert.Equal(t, 35, report.TotalSamples)
}

func TestAnalyzeNoSignificantDifference(t *testing.T) {
	m := newSeededManager()

	testID, err := m.CreateTest("indistinguishable", twoVariants(50, 50), 24*time.Hour, 10)
	require.NoError(t, err)

	// Identical winners-and-losers mix on both sides: t=0, p=1.
	pnls := []float64{1, 1, 1, 1, 1, -1, -1, 1, 1, -1}
	for _, p := range pnls {
		require.NoError(t, m.RecordResult(testID, "control", "BTCUSDT", p, nil))
		require.NoError(t, m.RecordResult(testID, "challenger", "BTCUSDT", p, nil))
	}

	report, err := m.AnalyzeTest(testID)
	require.NoError(t, err)

	cmp := report.Comparisons["challenger"]
	assert.False(t, cmp.IsSignificant)
	assert.Greater(t, cmp.PValue, 0.05)
	assert.Equal(t, RecNoSignificantChange, cmp.Recommendation)
	assert.Empty(t, report.Winner)

	controlStats := report.VariantsData["control"]
	assert.Equal(t, 10, controlStats.Count)
	assert.InDelta(t, 0.4, controlStats.MeanPnL, 1e-9)
	assert.InDelta(t, 0.7, controlStats.WinRate, 1e-9)
}

func TestAnalyzePromotesClearImprovement(t *testing.T) {
	m := newSeededManager()

	testID, err := m.CreateTest("clear winner", twoVariants(50, 50), 24*time.Hour, 10)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		control := 1.0
		challenger := 2.0
		if i%2 == 0 {
			control = 1.2
			challenger = 2.2
		}
		require.NoError(t, m.RecordResult(testID, "control", "BTCUSDT", control, nil))
		require.NoError(t, m.RecordResult(testID, "challenger", "BTCUSDT", challenger, nil))
	}

	report, err := m.AnalyzeTest(testID)
	require.NoError(t, err)

	cmp := report.Comparisons["challenger"]
	assert.True(t, cmp.IsSignificant)
	assert.Less(t, cmp.PValue, 0.05)
	assert.InDelta(t, 90.9, cmp.LiftPct, 0.5)
	assert.Equal(t, RecPromote, cmp.Recommendation)
	assert.Equal(t, "challenger", report.Winner)
}

func TestAnalyzeRejectsClearRegression(t *testing.T) {
	m := newSeededManager()

	testID, err := m.CreateTest("regression", twoVariants(50, 50), 24*time.Hour, 10)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		control := 2.0
		challenger := 1.0
		if i%2 == 0 {
			control = 2.2
			challenger = 1.2
		}
		require.NoError(t, m.RecordResult(testID, "control", "BTCUSDT", control, nil))
		require.NoError(t, m.RecordResult(testID, "challenger", "BTCUSDT", challenger, nil))
	}

	report, err := m.AnalyzeTest(testID)
	require.NoError(t, err)

	cmp := report.Comparisons["challenger"]
	assert.True(t, cmp.IsSignificant)
	assert.Equal(t, RecReject, cmp.Recommendation)
	assert.Empty(t, report.Winner, "a losing challenger never wins")
}

func TestAnalyzeUnknownTest(t *testing.T) {
	m := newSeededManager()
	_, err := m.AnalyzeTest("missing")
	assert.ErrorIs(t, err, ErrTestNotFound)
}

func TestListTestsOrdered(t *testing.T) {
	m := newSeededManager()

	first, err := m.CreateTest("first", twoVariants(50, 50), 24*time.Hour, 10)
	require.NoError(t, err)
	second, err := m.CreateTest("second", twoVariants(50, 50), 24*time.Hour, 10)
	require.NoError(t, err)

	tests := m.ListTests()
	require.Len(t, tests, 2)
	ids := []string{tests[0].TestID, tests[1].TestID}
	assert.Contains(t, ids, first)
	assert.Contains(t, ids, second)
	assert.False(t, tests[1].StartTime.Before(tests[0].StartTime))
}
