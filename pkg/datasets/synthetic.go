package datasets

import (
	"math"
	"math/rand"

	"github.com/alphaforge/alphaforge/pkg/core"
)

// Synthetic generates a geometric-random-walk OHLCV table. It backs the
// bundled CLI's demo mode and keeps tests independent of data files.
func Synthetic(rng *rand.Rand, rows int) core.DataTable {
	open := make([]float64, rows)
	high := make([]float64, rows)
	low := make([]float64, rows)
	closePx := make([]float64, rows)
	volume := make([]float64, rows)

	price := 100.0
	for i := 0; i < rows; i++ {
		drift := rng.NormFloat64() * 0.01
		open[i] = price
		price *= math.Exp(drift)
		closePx[i] = price

		span := math.Abs(rng.NormFloat64()) * 0.005 * price
		high[i] = math.Max(open[i], closePx[i]) + span
		low[i] = math.Min(open[i], closePx[i]) - span
		volume[i] = 1000 + rng.Float64()*9000
	}

	return core.DataTable{
		"open":   open,
		"high":   high,
		"low":    low,
		"close":  closePx,
		"volume": volume,
	}
}
