// Package analyzer turns a trade ledger and equity curve into summary
// performance metrics. It holds no engine state and is independently testable
// from literal fixtures.
package analyzer

import (
	"math"

	"github.com/google/uuid"
	"github.com/montanaflynn/stats"

	"paperback/internal/domain"
)

// tradingDaysPerYear is the annualization convention used for the Sharpe
// ratio and the annualized return: bars are treated as daily samples and a
// year as 252 trading days, so per-bar return statistics scale by sqrt(252).
const tradingDaysPerYear = 252

// GenerateResults computes the full BacktestResult for a finished run.
//
// Conventions pinned here as literal contracts:
//   - profitFactor is 0, not NaN or +Inf, when there are no losing trades;
//   - maxDrawdown is recomputed peak-to-trough from the equity curve with the
//     peak seeded at initialCapital, independent of the engine's running value
//     (the two must agree);
//   - sharpeRatio is mean/stddev of per-bar equity returns times sqrt(252),
//     with a risk-free rate of zero, and 0 when fewer than two returns exist
//     or their variance is zero.
func GenerateResults(
	strategyName, symbol string,
	trades []domain.TradeRecord,
	equityCurve []domain.EquityPoint,
	initialCapital float64,
	startDate, endDate string,
	params map[string]float64,
) *domain.BacktestResult {
	perf := domain.PerformanceMetrics{}

	var wins, losses []float64
	for _, tr := range trades {
		perf.TotalCommission += tr.Commission
		perf.TotalSlippage += tr.Slippage
		if tr.PNL == nil {
			continue
		}
		pnl := *tr.PNL
		perf.TotalPL += pnl
		perf.TotalTrades++
		if pnl > 0 {
			wins = append(wins, pnl)
		} else {
			losses = append(losses, pnl)
		}
	}
	perf.WinningTrades = len(wins)
	perf.LosingTrades = len(losses)

	if perf.TotalTrades > 0 {
		perf.HitRate = float64(perf.WinningTrades) / float64(perf.TotalTrades) * 100
	}

	grossWin := sum(wins)
	grossLoss := math.Abs(sum(losses))
	if grossLoss > 0 {
		perf.ProfitFactor = grossWin / grossLoss
	}

	if len(wins) > 0 {
		perf.AvgWin, _ = stats.Mean(wins)
		perf.LargestWin, _ = stats.Max(wins)
	}
	if len(losses) > 0 {
		perf.AvgLoss, _ = stats.Mean(losses)
		perf.LargestLoss, _ = stats.Min(losses)
	}

	perf.MaxDrawdown = maxDrawdown(initialCapital, equityCurve)
	perf.SharpeRatio = sharpeRatio(equityCurve)

	finalValue := initialCapital
	if len(equityCurve) > 0 {
		finalValue = equityCurve[len(equityCurve)-1].Value
	}
	if initialCapital > 0 {
		perf.TotalReturn = (finalValue - initialCapital) / initialCapital * 100
	}
	perf.AnnualizedReturn = annualizedReturn(initialCapital, finalValue, len(equityCurve), perf.TotalReturn)

	return &domain.BacktestResult{
		ID:             uuid.NewString(),
		Strategy:       strategyName,
		Symbol:         symbol,
		StartDate:      startDate,
		EndDate:        endDate,
		InitialCapital: initialCapital,
		FinalValue:     finalValue,
		Trades:         trades,
		EquityCurve:    equityCurve,
		Performance:    perf,
		Params:         params,
	}
}

// maxDrawdown is the largest peak-to-trough decline of the equity curve,
// expressed as a fraction of the peak. The peak is seeded with the initial
// capital so a dip below it on the very first sample already counts, matching
// the engine's running high-water mark.
func maxDrawdown(initialCapital float64, curve []domain.EquityPoint) float64 {
	peak := initialCapital
	var maxDD float64
	for _, p := range curve {
		if p.Value > peak {
			peak = p.Value
		}
		if peak > 0 {
			dd := (peak - p.Value) / peak
			if dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// sharpeRatio computes the annualized Sharpe ratio from per-bar equity
// returns, assuming a zero risk-free rate.
func sharpeRatio(curve []domain.EquityPoint) float64 {
	returns := barReturns(curve)
	if len(returns) < 2 {
		return 0
	}
	mean, err := stats.Mean(returns)
	if err != nil {
		return 0
	}
	sd, err := stats.StandardDeviationSample(returns)
	if err != nil || sd == 0 {
		return 0
	}
	return mean / sd * math.Sqrt(tradingDaysPerYear)
}

// barReturns converts the equity curve into simple per-bar returns. Samples
// following a non-positive value are skipped to avoid dividing by zero.
func barReturns(curve []domain.EquityPoint) []float64 {
	var returns []float64
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Value
		if prev <= 0 {
			continue
		}
		returns = append(returns, (curve[i].Value-prev)/prev)
	}
	return returns
}

// annualizedReturn compounds the total return over the run length measured
// in 252-trading-day years. Runs too short or degenerate to annualize fall
// back to the plain total return.
func annualizedReturn(initial, final float64, numBars int, totalReturn float64) float64 {
	years := float64(numBars) / tradingDaysPerYear
	if years <= 0 || initial <= 0 || final <= 0 {
		return totalReturn
	}
	return (math.Pow(final/initial, 1/years) - 1) * 100
}

func sum(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		s += x
	}
	return s
}
