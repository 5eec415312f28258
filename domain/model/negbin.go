package model

import (
	"math"

	"github.com/thibautjombart/epichange/domain/core"
	"github.com/thibautjombart/epichange/domain/timeseries"
)

const (
	nbOuterMaxIter = 15
	nbOuterTol     = 1e-8
	// Dispersion is profiled on the log scale inside these bounds; theta
	// above exp(12) is indistinguishable from Poisson.
	nbLogThetaMin = -5.0
	nbLogThetaMax = 12.0
)

// fitNegBinomial fits an NB2 model by alternating the IRLS mean fit with a
// profile search on the dispersion parameter theta, until the log-likelihood
// stops moving.
func fitNegBinomial(c glmCandidate, ts timeseries.TimeSeries) (Fitted, error) {
	y := ts.Counts()
	X := buildDesign(c.trend, ts.Obs)
	_, p := X.Dims()

	theta := momentTheta(y)
	var coef, mu []float64
	var err error

	llOld := math.Inf(-1)
	for iter := 0; iter < nbOuterMaxIter; iter++ {
		t := theta
		coef, mu, err = irls(c.Name(), y, X, func(m float64) float64 { return m / (1 + m/t) })
		if err != nil {
			return nil, err
		}

		theta = profileTheta(y, mu)
		ll := negBinomialLogLik(y, mu, theta)
		if !isFinite(ll) {
			return nil, core.NewFitError(c.Name(), "log-likelihood diverged")
		}
		if math.Abs(ll-llOld) < nbOuterTol*(math.Abs(ll)+0.1) {
			break
		}
		llOld = ll
	}

	return &glmFit{
		name:       c.Name(),
		trend:      c.trend,
		family:     c.family,
		coef:       coef,
		mu:         mu,
		logLik:     negBinomialLogLik(y, mu, theta),
		nobs:       len(y),
		npar:       p,
		theta:      theta,
		dispersion: 1,
	}, nil
}

// momentTheta gives a method-of-moments starting value for theta from the
// marginal mean and variance.
func momentTheta(y []float64) float64 {
	m := mean(y)
	v := 0.0
	for _, x := range y {
		v += (x - m) * (x - m)
	}
	v /= math.Max(float64(len(y)-1), 1)
	if v <= m || m <= 0 {
		// Under-dispersed sample: start near the Poisson limit.
		return math.Exp(nbLogThetaMax)
	}
	return clamp(m*m/(v-m), math.Exp(nbLogThetaMin), math.Exp(nbLogThetaMax))
}

// profileTheta maximizes the NB2 log-likelihood over theta with the means
// held fixed, by golden-section search on log theta.
func profileTheta(y, mu []float64) float64 {
	obj := func(logTheta float64) float64 {
		return negBinomialLogLik(y, mu, math.Exp(logTheta))
	}

	const phi = 0.6180339887498949
	a, b := nbLogThetaMin, nbLogThetaMax
	c := b - phi*(b-a)
	d := a + phi*(b-a)
	fc, fd := obj(c), obj(d)
	for i := 0; i < 80 && b-a > 1e-7; i++ {
		if fc > fd {
			b, d, fd = d, c, fc
			c = b - phi*(b-a)
			fc = obj(c)
		} else {
			a, c, fc = c, d, fd
			d = a + phi*(b-a)
			fd = obj(d)
		}
	}
	return math.Exp((a + b) / 2)
}

// negBinomialLogLik is the NB2 log-likelihood with dispersion theta
// (variance mu + mu^2/theta).
func negBinomialLogLik(y, mu []float64, theta float64) float64 {
	ll := 0.0
	for i := range y {
		m := math.Max(mu[i], 1e-10)
		lgNum, _ := math.Lgamma(y[i] + theta)
		lgTheta, _ := math.Lgamma(theta)
		lgFact, _ := math.Lgamma(y[i] + 1)
		ll += lgNum - lgTheta - lgFact +
			theta*math.Log(theta/(theta+m)) +
			y[i]*math.Log(m/(theta+m))
	}
	return ll
}
