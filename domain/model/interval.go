package model

import (
	"math"

	"gonum.org/v1/gonum/mathext"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/thibautjombart/epichange/domain/timeseries"
)

// PredictionInterval returns the [lower, upper] count bounds expected to
// contain a new observation with probability 1-alpha under the fitted
// distribution at that row's mean. Works for rows outside the fitting
// window. Shrinking alpha can only widen the interval.
func (f *glmFit) PredictionInterval(o timeseries.Observation, alpha float64) (lower, upper float64) {
	mu := f.Predict(o)
	pLo, pHi := alpha/2, 1-alpha/2

	switch f.family {
	case FamilyNegBinomial:
		return float64(negBinomialQuantile(mu, f.theta, pLo)), float64(negBinomialQuantile(mu, f.theta, pHi))
	case FamilyQuasiPoisson:
		if f.dispersion <= 1+1e-6 {
			return float64(poissonQuantile(mu, pLo)), float64(poissonQuantile(mu, pHi))
		}
		// Map the excess dispersion onto the variance-matched negative
		// binomial: theta = mu/(phi-1) gives variance phi*mu.
		theta := mu / (f.dispersion - 1)
		return float64(negBinomialQuantile(mu, theta, pLo)), float64(negBinomialQuantile(mu, theta, pHi))
	default:
		return float64(poissonQuantile(mu, pLo)), float64(poissonQuantile(mu, pHi))
	}
}

// poissonQuantile is the smallest integer k with P(X <= k) >= p for
// X ~ Poisson(lambda). The CDF comes from gonum; the integer inversion walks
// from the mean, which for count data is a handful of steps.
func poissonQuantile(lambda, p float64) int {
	if lambda <= 0 {
		return 0
	}
	dist := distuv.Poisson{Lambda: lambda}
	return quantileScan(p, int(lambda), func(k int) float64 { return dist.CDF(float64(k)) })
}

// negBinomialQuantile is the integer quantile of NB2 with mean mu and
// dispersion theta. gonum has no negative binomial in distuv; the CDF is the
// regularized incomplete beta I_q(theta, k+1) with q = theta/(theta+mu).
func negBinomialQuantile(mu, theta, p float64) int {
	if mu <= 0 {
		return 0
	}
	q := theta / (theta + mu)
	cdf := func(k int) float64 {
		return mathext.RegIncBeta(theta, float64(k)+1, q)
	}
	return quantileScan(p, int(mu), cdf)
}

// quantileScan inverts a discrete CDF around a starting guess that must be
// within a bounded walk of the answer (the mean always is).
func quantileScan(p float64, start int, cdf func(k int) float64) int {
	k := start
	if k < 0 {
		k = 0
	}
	if cdf(k) >= p {
		for k > 0 && cdf(k-1) >= p {
			k--
		}
		return k
	}
	for cdf(k) < p {
		k++
		if k > start+100000000 {
			return k
		}
	}
	return k
}

// BinomialTailP is the one-sided p-value P(X >= observed) for
// X ~ Binomial(n, rate).
func BinomialTailP(observed, n int, rate float64) float64 {
	if observed <= 0 {
		return 1
	}
	if observed > n {
		return 0
	}
	dist := distuv.Binomial{N: float64(n), P: rate}
	p := 1 - dist.CDF(float64(observed-1))
	return math.Max(0, math.Min(1, p))
}
