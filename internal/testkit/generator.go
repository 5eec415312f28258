package testkit

import (
	"math"
	"math/rand"
	"time"

	"github.com/thibautjombart/epichange/domain/timeseries"
)

// SeriesGenerator produces synthetic daily count series with a fixed seed,
// for tests and the simulate command. Identical seeds give identical series.
type SeriesGenerator struct {
	rng *rand.Rand
	cal timeseries.Calendar
}

// NewSeriesGenerator creates a generator with a deterministic seed.
func NewSeriesGenerator(seed int64) *SeriesGenerator {
	return &SeriesGenerator{
		rng: rand.New(rand.NewSource(seed)),
		cal: timeseries.DefaultCalendar(),
	}
}

// ConstantPoisson generates n days of Poisson(lambda) counts with no change
// point, starting at start.
func (g *SeriesGenerator) ConstantPoisson(n int, lambda float64, start time.Time) timeseries.TimeSeries {
	dates := make([]time.Time, n)
	counts := make([]int, n)
	for i := 0; i < n; i++ {
		dates[i] = start.AddDate(0, 0, i)
		counts[i] = g.poisson(lambda)
	}
	ts, _ := timeseries.FromDates(dates, counts, g.cal)
	return ts
}

// ChangePoint generates nFlat days at Poisson(lambda), then nShift days whose
// rate grows exponentially: lambda * exp(rate * t) for t = 1..nShift.
// Negative rates give a declining regime.
func (g *SeriesGenerator) ChangePoint(nFlat, nShift int, lambda, rate float64, start time.Time) timeseries.TimeSeries {
	n := nFlat + nShift
	dates := make([]time.Time, n)
	counts := make([]int, n)
	for i := 0; i < n; i++ {
		dates[i] = start.AddDate(0, 0, i)
		l := lambda
		if i >= nFlat {
			l = lambda * math.Exp(rate*float64(i-nFlat+1))
		}
		counts[i] = g.poisson(l)
	}
	ts, _ := timeseries.FromDates(dates, counts, g.cal)
	return ts
}

// poisson draws one Poisson variate. Knuth's product method, chunked so the
// uniform product never underflows for large rates.
func (g *SeriesGenerator) poisson(lambda float64) int {
	k := 0
	for lambda > 0 {
		chunk := math.Min(lambda, 100)
		threshold := math.Exp(-chunk)
		p := 1.0
		for {
			p *= g.rng.Float64()
			if p <= threshold {
				break
			}
			k++
		}
		lambda -= chunk
	}
	return k
}
