package main

import (
	"context"
	"math"

	"github.com/alphaforge/alphaforge/pkg/core"
	"github.com/alphaforge/alphaforge/pkg/errors"
)

// backtestEvaluator scores a strategy by executing its pipeline over the
// loaded market data and applying the resulting position series to
// close-to-close returns. It is a deliberately naive stand-in for a real
// backtest engine: no costs, no slippage, full fills.
type backtestEvaluator struct {
	data          core.DataTable
	signalColumns []string
}

func (e *backtestEvaluator) Evaluate(ctx context.Context, s *core.Strategy) (*core.MultiObjectiveMetrics, error) {
	if err := errors.CheckContext(ctx, "evaluate strategy"); err != nil {
		return nil, err
	}

	out, err := s.RunPipeline(e.data)
	if err != nil {
		return nil, err
	}

	positions := e.positions(out)
	closes := e.data["close"]
	if positions == nil || len(closes) < 2 {
		return nil, errors.New(errors.EvaluationFailed, "no position series produced")
	}

	returns := make([]float64, 0, len(closes)-1)
	equity := 1.0
	peak := 1.0
	maxDrawdown := 0.0
	wins, trades := 0, 0

	for i := 1; i < len(closes) && i < len(positions); i++ {
		r := positions[i-1] * (closes[i] - closes[i-1]) / closes[i-1]
		returns = append(returns, r)
		equity *= 1 + r
		if equity > peak {
			peak = equity
		}
		if dd := (equity - peak) / peak; dd < maxDrawdown {
			maxDrawdown = dd
		}
		if positions[i-1] != 0 {
			trades++
			if r > 0 {
				wins++
			}
		}
	}

	mean, std := meanStd(returns)
	sharpe := 0.0
	if std > 0 {
		sharpe = mean / std * math.Sqrt(252)
	}
	totalReturn := equity - 1
	calmar := 0.0
	if maxDrawdown < 0 {
		calmar = totalReturn / -maxDrawdown
	}
	winRate := 0.0
	if trades > 0 {
		winRate = float64(wins) / float64(trades)
	}

	return &core.MultiObjectiveMetrics{
		SharpeRatio: sharpe,
		CalmarRatio: calmar,
		TotalReturn: totalReturn,
		WinRate:     winRate,
		MaxDrawdown: maxDrawdown,
	}, nil
}

// positions picks the first configured signal column present in the
// pipeline output, preferring sized positions over raw signals.
func (e *backtestEvaluator) positions(out core.DataTable) []float64 {
	for _, name := range e.signalColumns {
		if col, ok := out[name]; ok {
			return col
		}
	}
	return nil
}

func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values))
	return mean, math.Sqrt(variance)
}
