package agents

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/markcheno/go-talib"

	"maveretta/internal/consensus"
	"maveretta/internal/market"
)

// scalpingAgent trades fast RSI extremes confirmed by a short EMA cross
// and a volume surge.
type scalpingAgent struct {
	baseAgent
}

func (a *scalpingAgent) Strategy() Strategy { return StrategyScalping }

func (a *scalpingAgent) Analyze(_ context.Context, snap market.Snapshot) (consensus.AgentSignal, error) {
	if len(snap.Candles) < minCandles {
		return a.hold("insufficient market data"), nil
	}
	closes := snap.Closes()

	rsi := lastValid(talib.Rsi(closes, 14))
	emaFast := lastValid(talib.Ema(closes, 5))
	emaSlow := lastValid(talib.Ema(closes, 13))
	volRatio := volumeRatio(snap.Volumes(), 20)

	switch {
	case rsi < 30 && emaFast > emaSlow && volRatio > 1.2:
		conf := math.Min(0.85, 0.65+(30-rsi)/100)
		return a.signal(consensus.ActionBuy, conf,
			fmt.Sprintf("RSI oversold (%.1f) + EMA bullish + volume surge", rsi)), nil
	case rsi > 70 && emaFast < emaSlow:
		conf := math.Min(0.85, 0.65+(rsi-70)/100)
		return a.signal(consensus.ActionSell, conf,
			fmt.Sprintf("RSI overbought (%.1f) + EMA bearish", rsi)), nil
	case rsi > 40 && rsi < 60:
		return a.signal(consensus.ActionHold, 0.45,
			fmt.Sprintf("neutral market (RSI %.1f)", rsi)), nil
	default:
		return a.signal(consensus.ActionHold, 0.5, "waiting for setup"), nil
	}
}

// trendAgent follows EMA 12/26 direction confirmed by the MACD line.
type trendAgent struct {
	baseAgent
}

func (a *trendAgent) Strategy() Strategy { return StrategyTrend }

func (a *trendAgent) Analyze(_ context.Context, snap market.Snapshot) (consensus.AgentSignal, error) {
	if len(snap.Candles) < minCandles {
		return a.hold("insufficient market data"), nil
	}
	closes := snap.Closes()

	emaFast := lastValid(talib.Ema(closes, 12))
	emaSlow := lastValid(talib.Ema(closes, 26))
	macdLine, macdSignal, _ := talib.Macd(closes, 12, 26, 9)
	macd := lastValid(macdLine)
	sig := lastValid(macdSignal)

	if emaSlow == 0 {
		return a.hold("insufficient market data"), nil
	}
	emaDiffPct := (emaFast - emaSlow) / emaSlow * 100
	trendStrength := math.Min(math.Abs(emaDiffPct)/2, 1.0)
	conf := math.Min(0.88, 0.70+trendStrength*0.18)

	switch {
	case emaFast > emaSlow && macd > sig:
		return a.signal(consensus.ActionBuy, conf,
			fmt.Sprintf("uptrend confirmed (EMA diff %.2f%%)", emaDiffPct)), nil
	case emaFast < emaSlow && macd < sig:
		return a.signal(consensus.ActionSell, conf,
			fmt.Sprintf("downtrend confirmed (EMA diff %.2f%%)", emaDiffPct)), nil
	default:
		return a.signal(consensus.ActionHold, 0.40, "no clear trend or conflicting signals"), nil
	}
}

// meanReversionAgent fades Bollinger band extremes backed by RSI.
type meanReversionAgent struct {
	baseAgent
}

func (a *meanReversionAgent) Strategy() Strategy { return StrategyMeanReversion }

func (a *meanReversionAgent) Analyze(_ context.Context, snap market.Snapshot) (consensus.AgentSignal, error) {
	if len(snap.Candles) < minCandles {
		return a.hold("insufficient market data"), nil
	}
	closes := snap.Closes()

	upper, _, lower := talib.BBands(closes, 20, 2.0, 2.0, talib.SMA)
	upperBand := lastValid(upper)
	lowerBand := lastValid(lower)
	rsi := lastValid(talib.Rsi(closes, 14))
	price := closes[len(closes)-1]

	switch {
	case price <= lowerBand && rsi < 35:
		return a.signal(consensus.ActionBuy, 0.75,
			fmt.Sprintf("mean reversion: price at lower band + RSI %.1f", rsi)), nil
	case price >= upperBand && rsi > 65:
		return a.signal(consensus.ActionSell, 0.75,
			fmt.Sprintf("mean reversion: price at upper band + RSI %.1f", rsi)), nil
	default:
		return a.signal(consensus.ActionHold, 0.35, "price inside normal bands"), nil
	}
}

// momentumAgent rides confirmed momentum: mid-range RSI, MACD histogram
// direction and a volume push.
type momentumAgent struct {
	baseAgent
}

func (a *momentumAgent) Strategy() Strategy { return StrategyMomentum }

func (a *momentumAgent) Analyze(_ context.Context, snap market.Snapshot) (consensus.AgentSignal, error) {
	if len(snap.Candles) < minCandles {
		return a.hold("insufficient market data"), nil
	}
	closes := snap.Closes()

	rsi := lastValid(talib.Rsi(closes, 14))
	_, _, histSeries := talib.Macd(closes, 12, 26, 9)
	hist := lastValid(histSeries)
	volRatio := volumeRatio(snap.Volumes(), 20)

	switch {
	case rsi > 55 && rsi < 75 && hist > 0 && volRatio > 1.3:
		return a.signal(consensus.ActionBuy, 0.78,
			fmt.Sprintf("positive momentum: RSI %.1f + MACD bullish + volume", rsi)), nil
	case rsi > 25 && rsi < 45 && hist < 0 && volRatio > 1.3:
		return a.signal(consensus.ActionSell, 0.78,
			fmt.Sprintf("negative momentum: RSI %.1f + MACD bearish + volume", rsi)), nil
	default:
		return a.signal(consensus.ActionHold, 0.42, "weak or undefined momentum"), nil
	}
}

// breakoutAgent watches the last 20 completed candles for range breaks
// with volume confirmation.
type breakoutAgent struct {
	baseAgent
}

func (a *breakoutAgent) Strategy() Strategy { return StrategyBreakout }

func (a *breakoutAgent) Analyze(_ context.Context, snap market.Snapshot) (consensus.AgentSignal, error) {
	if len(snap.Candles) < minCandles {
		return a.hold("insufficient market data"), nil
	}
	const lookback = 20

	highs := snap.Highs()
	lows := snap.Lows()
	closes := snap.Closes()

	// The range excludes the live candle, otherwise its own high/low would
	// mask the break.
	prior := len(closes) - 1
	resistance := maxOf(highs[prior-lookback : prior])
	support := minOf(lows[prior-lookback : prior])
	price := closes[len(closes)-1]
	volRatio := volumeRatio(snap.Volumes(), 20)

	switch {
	case price > resistance*1.002 && volRatio > 1.5:
		return a.signal(consensus.ActionBuy, 0.82,
			fmt.Sprintf("resistance breakout (%.2f) with volume", resistance)), nil
	case price < support*0.998 && volRatio > 1.5:
		return a.signal(consensus.ActionSell, 0.82,
			fmt.Sprintf("support breakdown (%.2f) with volume", support)), nil
	default:
		return a.signal(consensus.ActionHold, 0.38,
			fmt.Sprintf("price in range (S:%.2f - R:%.2f)", support, resistance)), nil
	}
}

func (b baseAgent) signal(action consensus.Action, confidence float64, rationale string) consensus.AgentSignal {
	return consensus.AgentSignal{
		AgentID:    b.id,
		Action:     action,
		Confidence: confidence,
		Rationale:  rationale,
		Timestamp:  time.Now(),
	}
}

func (b baseAgent) hold(rationale string) consensus.AgentSignal {
	return b.signal(consensus.ActionHold, 0, rationale)
}

func lastValid(series []float64) float64 {
	for i := len(series) - 1; i >= 0; i-- {
		if !math.IsNaN(series[i]) && !math.IsInf(series[i], 0) {
			return series[i]
		}
	}
	return 0
}

// volumeRatio compares the latest volume to its recent average.
func volumeRatio(volumes []float64, period int) float64 {
	if len(volumes) < period {
		return 1.0
	}
	sum := 0.0
	for _, v := range volumes[len(volumes)-period:] {
		sum += v
	}
	avg := sum / float64(period)
	if avg <= 0 {
		return 1.0
	}
	return volumes[len(volumes)-1] / avg
}

func maxOf(vals []float64) float64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func minOf(vals []float64) float64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
