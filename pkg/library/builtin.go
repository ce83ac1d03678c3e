package library

import (
	"math"

	"github.com/alphaforge/alphaforge/pkg/core"
	"github.com/alphaforge/alphaforge/pkg/errors"
)

// Builtin returns a library populated with the stock factor set: at least
// one prototype per category, enough to seed and evolve strategies without
// any user-supplied factors.
func Builtin() *FactorLibrary {
	l := New()

	register := func(f *core.Factor) {
		if err := l.Register(f); err != nil {
			panic(err) // duplicate ids in the builtin set are a programming error
		}
	}

	register(core.NewFactor("momentum_sma", "sma_momentum", core.CategoryMomentum,
		[]string{"close"}, []string{"momentum_score"},
		map[string]float64{"window": 20},
		map[string]core.ParamSpec{"window": {Min: 2, Max: 200, Integer: true}},
		core.LogicFunc(smaMomentum),
	))

	register(core.NewFactor("momentum_roc", "rate_of_change", core.CategoryMomentum,
		[]string{"close"}, []string{"momentum_score"},
		map[string]float64{"window": 10},
		map[string]core.ParamSpec{"window": {Min: 1, Max: 100, Integer: true}},
		core.LogicFunc(rateOfChange),
	))

	register(core.NewFactor("value_zscore", "value_zscore", core.CategoryValue,
		[]string{"close"}, []string{"value_score"},
		map[string]float64{"window": 60},
		map[string]core.ParamSpec{"window": {Min: 10, Max: 500, Integer: true}},
		core.LogicFunc(valueZScore),
	))

	register(core.NewFactor("quality_stability", "return_stability", core.CategoryQuality,
		[]string{"close"}, []string{"quality_score"},
		map[string]float64{"window": 30},
		map[string]core.ParamSpec{"window": {Min: 5, Max: 250, Integer: true}},
		core.LogicFunc(returnStability),
	))

	register(core.NewFactor("risk_volatility", "rolling_volatility", core.CategoryRisk,
		[]string{"close"}, []string{"risk_score"},
		map[string]float64{"window": 20},
		map[string]core.ParamSpec{"window": {Min: 5, Max: 250, Integer: true}},
		core.LogicFunc(rollingVolatility),
	))

	register(core.NewFactor("entry_threshold", "threshold_entry", core.CategoryEntry,
		[]string{"momentum_score"}, []string{"entry_flag"},
		map[string]float64{"threshold": 0.02},
		map[string]core.ParamSpec{"threshold": {Min: 0.001, Max: 0.5}},
		core.LogicFunc(thresholdEntry),
	))

	register(core.NewFactor("exit_stop_loss", "stop_loss_exit", core.CategoryExit,
		[]string{"close", "entry_flag"}, []string{"exit_flag"},
		map[string]float64{"stop_loss_pct": 0.10},
		map[string]core.ParamSpec{"stop_loss_pct": {Min: 0.01, Max: 0.20}},
		core.LogicFunc(stopLossExit),
	))

	register(core.NewFactor("exit_trailing", "trailing_stop_exit", core.CategoryExit,
		[]string{"close", "entry_flag"}, []string{"exit_flag"},
		map[string]float64{
			"trailing_stop_offset":     0.02,
			"trailing_stop_percentage": 0.05,
		},
		map[string]core.ParamSpec{
			"trailing_stop_offset":     {Min: 0.001, Max: 0.10},
			"trailing_stop_percentage": {Min: 0.01, Max: 0.30},
		},
		core.LogicFunc(trailingStopExit),
	))

	register(core.NewFactor("signal_entry_exit", "entry_exit_signal", core.CategorySignal,
		[]string{"entry_flag", "exit_flag"}, []string{"signal"},
		nil, nil,
		core.LogicFunc(entryExitSignal),
	))

	register(core.NewFactor("signal_momentum", "momentum_sign_signal", core.CategorySignal,
		[]string{"momentum_score"}, []string{"signal"},
		nil, nil,
		core.LogicFunc(momentumSignSignal),
	))

	register(core.NewFactor("position_sizer", "vol_scaled_position", core.CategorySignal,
		[]string{"signal", "risk_score"}, []string{"position"},
		map[string]float64{"target_vol": 0.15},
		map[string]core.ParamSpec{"target_vol": {Min: 0.01, Max: 1.0}},
		core.LogicFunc(volScaledPosition),
	))

	return l
}

func column(inputs map[string][]float64, name string) ([]float64, error) {
	col, ok := inputs[name]
	if !ok {
		return nil, errors.WithFields(
			errors.New(errors.UnsatisfiedInput, "logic input missing"),
			errors.Fields{"column": name},
		)
	}
	return col, nil
}

func window(params map[string]float64, n int) int {
	w := int(params["window"])
	if w < 1 {
		w = 1
	}
	if w > n {
		w = n
	}
	return w
}

func smaMomentum(inputs map[string][]float64, params map[string]float64) (map[string][]float64, error) {
	close, err := column(inputs, "close")
	if err != nil {
		return nil, err
	}
	w := window(params, len(close))

	out := make([]float64, len(close))
	sum := 0.0
	for i, v := range close {
		sum += v
		if i >= w {
			sum -= close[i-w]
		}
		n := math.Min(float64(i+1), float64(w))
		mean := sum / n
		if mean != 0 {
			out[i] = (v - mean) / mean
		}
	}
	return map[string][]float64{"momentum_score": out}, nil
}

func rateOfChange(inputs map[string][]float64, params map[string]float64) (map[string][]float64, error) {
	close, err := column(inputs, "close")
	if err != nil {
		return nil, err
	}
	w := window(params, len(close))

	out := make([]float64, len(close))
	for i := range close {
		if i >= w && close[i-w] != 0 {
			out[i] = (close[i] - close[i-w]) / close[i-w]
		}
	}
	return map[string][]float64{"momentum_score": out}, nil
}

func valueZScore(inputs map[string][]float64, params map[string]float64) (map[string][]float64, error) {
	close, err := column(inputs, "close")
	if err != nil {
		return nil, err
	}
	w := window(params, len(close))

	out := make([]float64, len(close))
	for i := range close {
		lo := i - w + 1
		if lo < 0 {
			lo = 0
		}
		mean, std := meanStd(close[lo : i+1])
		if std > 0 {
			// Negative z-score: cheap relative to recent history scores high.
			out[i] = -(close[i] - mean) / std
		}
	}
	return map[string][]float64{"value_score": out}, nil
}

func returnStability(inputs map[string][]float64, params map[string]float64) (map[string][]float64, error) {
	close, err := column(inputs, "close")
	if err != nil {
		return nil, err
	}
	w := window(params, len(close))

	returns := toReturns(close)
	out := make([]float64, len(close))
	for i := range returns {
		lo := i - w + 1
		if lo < 0 {
			lo = 0
		}
		_, std := meanStd(returns[lo : i+1])
		out[i] = 1.0 / (1.0 + std*math.Sqrt(252))
	}
	return map[string][]float64{"quality_score": out}, nil
}

func rollingVolatility(inputs map[string][]float64, params map[string]float64) (map[string][]float64, error) {
	close, err := column(inputs, "close")
	if err != nil {
		return nil, err
	}
	w := window(params, len(close))

	returns := toReturns(close)
	out := make([]float64, len(close))
	for i := range returns {
		lo := i - w + 1
		if lo < 0 {
			lo = 0
		}
		_, std := meanStd(returns[lo : i+1])
		out[i] = std * math.Sqrt(252)
	}
	return map[string][]float64{"risk_score": out}, nil
}

func thresholdEntry(inputs map[string][]float64, params map[string]float64) (map[string][]float64, error) {
	score, err := column(inputs, "momentum_score")
	if err != nil {
		return nil, err
	}
	threshold := params["threshold"]

	out := make([]float64, len(score))
	for i, v := range score {
		if v > threshold {
			out[i] = 1
		}
	}
	return map[string][]float64{"entry_flag": out}, nil
}

func stopLossExit(inputs map[string][]float64, params map[string]float64) (map[string][]float64, error) {
	close, err := column(inputs, "close")
	if err != nil {
		return nil, err
	}
	entry, err := column(inputs, "entry_flag")
	if err != nil {
		return nil, err
	}
	stop := params["stop_loss_pct"]

	out := make([]float64, len(close))
	entryPrice := 0.0
	for i := range close {
		if entry[i] > 0 && entryPrice == 0 {
			entryPrice = close[i]
		}
		if entryPrice > 0 && close[i] < entryPrice*(1-stop) {
			out[i] = 1
			entryPrice = 0
		}
	}
	return map[string][]float64{"exit_flag": out}, nil
}

func trailingStopExit(inputs map[string][]float64, params map[string]float64) (map[string][]float64, error) {
	close, err := column(inputs, "close")
	if err != nil {
		return nil, err
	}
	entry, err := column(inputs, "entry_flag")
	if err != nil {
		return nil, err
	}
	offset := params["trailing_stop_offset"]
	pct := params["trailing_stop_percentage"]

	out := make([]float64, len(close))
	peak := 0.0
	active := false
	for i := range close {
		if entry[i] > 0 {
			active = true
		}
		if !active {
			continue
		}
		if close[i] > peak {
			peak = close[i]
		}
		if peak > 0 && close[i] < peak*(1-pct)-offset {
			out[i] = 1
			active = false
			peak = 0
		}
	}
	return map[string][]float64{"exit_flag": out}, nil
}

func entryExitSignal(inputs map[string][]float64, _ map[string]float64) (map[string][]float64, error) {
	entry, err := column(inputs, "entry_flag")
	if err != nil {
		return nil, err
	}
	exit, err := column(inputs, "exit_flag")
	if err != nil {
		return nil, err
	}

	out := make([]float64, len(entry))
	holding := 0.0
	for i := range entry {
		if entry[i] > 0 {
			holding = 1
		}
		if exit[i] > 0 {
			holding = 0
		}
		out[i] = holding
	}
	return map[string][]float64{"signal": out}, nil
}

func momentumSignSignal(inputs map[string][]float64, _ map[string]float64) (map[string][]float64, error) {
	score, err := column(inputs, "momentum_score")
	if err != nil {
		return nil, err
	}

	out := make([]float64, len(score))
	for i, v := range score {
		switch {
		case v > 0:
			out[i] = 1
		case v < 0:
			out[i] = -1
		}
	}
	return map[string][]float64{"signal": out}, nil
}

func volScaledPosition(inputs map[string][]float64, params map[string]float64) (map[string][]float64, error) {
	signal, err := column(inputs, "signal")
	if err != nil {
		return nil, err
	}
	risk, err := column(inputs, "risk_score")
	if err != nil {
		return nil, err
	}
	target := params["target_vol"]

	out := make([]float64, len(signal))
	for i := range signal {
		scale := 1.0
		if risk[i] > 0 {
			scale = math.Min(1.0, target/risk[i])
		}
		out[i] = signal[i] * scale
	}
	return map[string][]float64{"position": out}, nil
}

func toReturns(close []float64) []float64 {
	out := make([]float64, len(close))
	for i := 1; i < len(close); i++ {
		if close[i-1] != 0 {
			out[i] = close[i]/close[i-1] - 1
		}
	}
	return out
}

func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	variance := 0.0
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(values))
	return mean, math.Sqrt(variance)
}
