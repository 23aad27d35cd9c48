package backtest

import (
	"math"
	"time"

	"github.com/yourusername/quantcapital-engine/pkg/entity"
)

const tradingDaysPerYear = 252

// volEpsilon treats float residue from constant return series as zero
// volatility.
const volEpsilon = 1e-12

// computeStatistics fills the performance and trade metrics of a result
// from its equity curve and the closed trades.
func computeStatistics(result *Result, trades []*entity.Trade) {
	result.TotalPnL = result.FinalEquity - result.InitialCapital
	if result.InitialCapital > 0 {
		result.TotalReturn = result.TotalPnL / result.InitialCapital
	}

	curve := result.EquityCurve
	if len(curve) > 0 {
		returns := make([]float64, len(curve))
		for i := range curve {
			returns[i] = curve[i].Return
		}

		avg := mean(returns)
		result.DailyVolatility = stdDev(returns)
		if result.DailyVolatility <= volEpsilon {
			// Constant returns leave only float residue.
			result.DailyVolatility = 0
		}
		result.AnnualizedReturn = result.TotalReturn * tradingDaysPerYear / float64(len(curve))

		if result.DailyVolatility > 0 {
			result.SharpeRatio = avg / result.DailyVolatility * math.Sqrt(tradingDaysPerYear)
		}

		var downside []float64
		for _, r := range returns {
			if r < 0 {
				downside = append(downside, r)
			}
		}
		if sd := stdDev(downside); sd > volEpsilon {
			result.SortinoRatio = avg / sd * math.Sqrt(tradingDaysPerYear)
		}

		result.MaxDrawdown, result.MaxDrawdownDuration = maxDrawdown(curve)
		if result.MaxDrawdown > 0 {
			result.CalmarRatio = result.AnnualizedReturn / result.MaxDrawdown
		}
	}

	computeTradeStats(result, trades)
}

// computeTradeStats aggregates the closed trades.
func computeTradeStats(result *Result, trades []*entity.Trade) {
	var totalWin, totalLoss float64
	for _, trade := range trades {
		if !trade.IsClosed() {
			continue
		}
		result.TotalTrades++
		result.TotalFees += trade.TotalFee
		if trade.IsWin() {
			result.WinTrades++
			totalWin += trade.RealizedPnL
		} else {
			result.LossTrades++
			totalLoss += -trade.RealizedPnL
		}
	}

	if result.TotalTrades > 0 {
		result.WinRate = float64(result.WinTrades) / float64(result.TotalTrades)
	}
	if result.WinTrades > 0 {
		result.AvgWin = totalWin / float64(result.WinTrades)
	}
	if result.LossTrades > 0 {
		result.AvgLoss = totalLoss / float64(result.LossTrades)
	}
	if totalLoss > 0 {
		result.ProfitFactor = totalWin / totalLoss
	}
}

// maxDrawdown walks the equity curve and returns the deepest peak to
// trough decline and how long it lasted.
func maxDrawdown(curve []EquityPoint) (float64, time.Duration) {
	var deepest float64
	var duration time.Duration

	peak := curve[0].Equity
	peakTime := curve[0].Date
	for _, point := range curve {
		if point.Equity > peak {
			peak = point.Equity
			peakTime = point.Date
			continue
		}
		if peak <= 0 {
			continue
		}
		dd := (peak - point.Equity) / peak
		if dd > deepest {
			deepest = dd
			duration = point.Date.Sub(peakTime)
		}
	}
	return deepest, duration
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := mean(values)
	sumSquares := 0.0
	for _, v := range values {
		diff := v - m
		sumSquares += diff * diff
	}
	return math.Sqrt(sumSquares / float64(len(values)))
}
