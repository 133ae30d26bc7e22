package experiment

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// significanceLevel gates promotion and rejection.
const significanceLevel = 0.05

// liftGate is the lift magnitude (in percent) separating a promotable or
// rejectable difference from a marginal one.
const liftGate = 10.0

// Recommendation is the per-variant outcome of an analysis.
type Recommendation string

const (
	RecContinueTesting     Recommendation = "continue_testing"
	RecPromote             Recommendation = "promote_to_production"
	RecReject              Recommendation = "reject_variant"
	RecMarginal            Recommendation = "marginal_improvement"
	RecNoSignificantChange Recommendation = "no_significant_difference"
)

// VariantStats are descriptive statistics over one variant's PnL sample.
type VariantStats struct {
	Count    int     `json:"count"`
	MeanPnL  float64 `json:"mean_pnl"`
	StdPnL   float64 `json:"std_pnl"`
	TotalPnL float64 `json:"total_pnl"`
	WinRate  float64 `json:"win_rate"`
}

// Comparison is the significance test of one challenger against the control.
type Comparison struct {
	TStatistic     float64        `json:"t_statistic"`
	PValue         float64        `json:"p_value"`
	IsSignificant  bool           `json:"is_significant"`
	LiftPct        float64        `json:"lift_pct"`
	Recommendation Recommendation `json:"recommendation"`
}

// Report is the full analysis of one test.
type Report struct {
	TestID       string                  `json:"test_id"`
	TestName     string                  `json:"test_name"`
	Status       Status                  `json:"status"`
	VariantsData map[string]VariantStats `json:"variants_data"`
	Comparisons  map[string]Comparison   `json:"statistical_tests"`
	// Winner is empty while the test is still inconclusive.
	Winner       string `json:"winner,omitempty"`
	TotalSamples int    `json:"total_samples"`
}

// AnalyzeTest computes per-variant statistics, challenger-vs-control
// significance tests and the promotion recommendation for each challenger.
func (m *Manager) AnalyzeTest(testID string) (Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	test, ok := m.tests[testID]
	if !ok {
		return Report{}, ErrTestNotFound
	}
	results := m.results[testID]

	report := Report{
		TestID:       testID,
		TestName:     test.Name,
		Status:       test.Status,
		VariantsData: make(map[string]VariantStats),
		Comparisons:  make(map[string]Comparison),
		TotalSamples: len(results),
	}

	samples := make(map[string][]float64)
	for _, r := range results {
		samples[r.VariantID] = append(samples[r.VariantID], r.PnL)
	}
	for variantID, pnls := range samples {
		report.VariantsData[variantID] = describe(pnls)
	}

	controlID := ""
	for id, v := range test.Variants {
		if v.IsControl {
			controlID = id
		}
	}
	controlPnls, hasControl := samples[controlID]
	if !hasControl {
		return report, nil
	}
	controlStats := report.VariantsData[controlID]

	for variantID, pnls := range samples {
		if variantID == controlID {
			continue
		}
		variantStats := report.VariantsData[variantID]
		tStat, pValue := twoSampleTTest(pnls, controlPnls)
		lift := liftPct(variantStats.MeanPnL, controlStats.MeanPnL)
		report.Comparisons[variantID] = Comparison{
			TStatistic:     tStat,
			PValue:         pValue,
			IsSignificant:  pValue < significanceLevel,
			LiftPct:        lift,
			Recommendation: recommend(pValue, lift, variantStats.Count, controlStats.Count, test.MinSamples),
		}
	}

	report.Winner = determineWinner(report.VariantsData, report.Comparisons, test.MinSamples, len(test.Variants))
	return report, nil
}

func describe(pnls []float64) VariantStats {
	stats := VariantStats{Count: len(pnls)}
	if len(pnls) == 0 {
		return stats
	}
	wins := 0
	for _, p := range pnls {
		stats.TotalPnL += p
		if p > 0 {
			wins++
		}
	}
	stats.MeanPnL = stat.Mean(pnls, nil)
	if len(pnls) > 1 {
		stats.StdPnL = math.Sqrt(stat.Variance(pnls, nil))
	}
	stats.WinRate = float64(wins) / float64(len(pnls))
	return stats
}

// recommend applies the promotion policy. Either sample below min_samples
// means the comparison is statistically insufficient: continue_testing,
// never an error.
func recommend(pValue, lift float64, variantCount, controlCount, minSamples int) Recommendation {
	if variantCount < minSamples || controlCount < minSamples {
		return RecContinueTesting
	}
	if pValue < significanceLevel {
		switch {
		case lift > liftGate:
			return RecPromote
		case lift < -liftGate:
			return RecReject
		default:
			return RecMarginal
		}
	}
	return RecNoSignificantChange
}

// determineWinner picks the challenger with the highest statistically
// significant positive lift, but only once every variant (control
// included) has reached min_samples.
func determineWinner(variants map[string]VariantStats, comparisons map[string]Comparison, minSamples, variantTotal int) string {
	if len(variants) < variantTotal {
		return ""
	}
	for _, stats := range variants {
		if stats.Count < minSamples {
			return ""
		}
	}
	winner := ""
	bestLift := 0.0
	for variantID, cmp := range comparisons {
		if !cmp.IsSignificant {
			continue
		}
		if cmp.LiftPct > bestLift || (cmp.LiftPct == bestLift && cmp.LiftPct > 0 && (winner == "" || variantID < winner)) {
			bestLift = cmp.LiftPct
			winner = variantID
		}
	}
	return winner
}

// liftPct is the challenger's mean improvement over the control, with a
// zero control mean treated as 0% lift rather than a division blowup.
func liftPct(variantMean, controlMean float64) float64 {
	if controlMean == 0 {
		return 0
	}
	return (variantMean - controlMean) / math.Abs(controlMean) * 100
}

// twoSampleTTest runs an equal-variance (pooled) two-sample t-test and
// returns the t statistic and two-sided p-value. Degenerate samples
// (fewer than two points on either side, or zero pooled variance with
// equal means) report p=1.
func twoSampleTTest(a, b []float64) (tStat, pValue float64) {
	n1, n2 := float64(len(a)), float64(len(b))
	if len(a) < 2 || len(b) < 2 {
		return 0, 1
	}
	mean1 := stat.Mean(a, nil)
	mean2 := stat.Mean(b, nil)
	var1 := stat.Variance(a, nil)
	var2 := stat.Variance(b, nil)

	df := n1 + n2 - 2
	pooled := ((n1-1)*var1 + (n2-1)*var2) / df
	denom := math.Sqrt(pooled * (1/n1 + 1/n2))
	if denom == 0 {
		if mean1 == mean2 {
			return 0, 1
		}
		return math.Inf(sign(mean1 - mean2)), 0
	}
	tStat = (mean1 - mean2) / denom
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	pValue = 2 * dist.Survival(math.Abs(tStat))
	return tStat, pValue
}

func sign(v float64) int {
	if v < 0 {
		return -1
	}
	return 1
}
