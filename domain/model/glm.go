package model

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/thibautjombart/epichange/domain/core"
	"github.com/thibautjombart/epichange/domain/timeseries"
)

const (
	irlsMaxIter   = 50
	irlsTolerance = 1e-9
	// etaBound keeps the linear predictor away from overflow; exp(30) is far
	// beyond any plausible daily count.
	etaBound = 30.0
)

// glmFit is the fitted state shared by all families: log-link GLM
// coefficients plus family-specific dispersion.
type glmFit struct {
	name   string
	trend  Trend
	family Family
	coef   []float64
	mu     []float64 // fitted means on the training rows
	logLik float64
	nobs   int
	npar   int

	theta      float64 // negative binomial dispersion
	dispersion float64 // quasi-Poisson Pearson dispersion
}

func (f *glmFit) Name() string { return f.name }

// Predict returns the mean response for an arbitrary row.
func (f *glmFit) Predict(o timeseries.Observation) float64 {
	row := designRow(f.trend, o)
	eta := 0.0
	for j, x := range row {
		eta += x * f.coef[j]
	}
	return math.Exp(clamp(eta, -etaBound, etaBound))
}

// AIC returns the information criterion for model comparison. Quasi-Poisson
// has no true likelihood; the quasi-AIC divides the Poisson log-likelihood
// by the estimated dispersion and charges one extra parameter for it, as the
// negative binomial does for theta.
func (f *glmFit) AIC() float64 {
	switch f.family {
	case FamilyQuasiPoisson:
		return -2*f.logLik/f.dispersion + 2*float64(f.npar+1)
	case FamilyNegBinomial:
		return -2*f.logLik + 2*float64(f.npar+1)
	default:
		return -2*f.logLik + 2*float64(f.npar)
	}
}

// designRow builds the design matrix row for one observation.
func designRow(trend Trend, o timeseries.Observation) []float64 {
	switch trend {
	case TrendLinearDay:
		return []float64{1, float64(o.Day)}
	case TrendLinearDayWeekday:
		monday, weekend := 0.0, 0.0
		if o.Weekday == timeseries.Monday {
			monday = 1
		}
		if o.Weekday == timeseries.Weekend {
			weekend = 1
		}
		return []float64{1, float64(o.Day), monday, weekend}
	default:
		return []float64{1}
	}
}

func buildDesign(trend Trend, obs []timeseries.Observation) *mat.Dense {
	first := designRow(trend, obs[0])
	X := mat.NewDense(len(obs), len(first), nil)
	for i, o := range obs {
		X.SetRow(i, designRow(trend, o))
	}
	return X
}

// irls runs iteratively reweighted least squares for a log-link GLM. The
// working weight function is the only family-specific part: mu for Poisson,
// mu/(1+mu/theta) for the negative binomial.
func irls(name string, y []float64, X *mat.Dense, weight func(mu float64) float64) (coef, mu []float64, err error) {
	n, p := X.Dims()
	if n < p {
		return nil, nil, core.NewFitError(name, "fewer rows than parameters")
	}

	coef = make([]float64, p)
	coef[0] = math.Log(mean(y) + 0.1)
	mu = make([]float64, n)
	eta := make([]float64, n)

	devOld := math.Inf(1)
	for iter := 0; iter < irlsMaxIter; iter++ {
		for i := 0; i < n; i++ {
			e := 0.0
			for j := 0; j < p; j++ {
				e += X.At(i, j) * coef[j]
			}
			eta[i] = clamp(e, -etaBound, etaBound)
			mu[i] = math.Exp(eta[i])
		}

		// Weighted least squares on the working response.
		xtwx := mat.NewSymDense(p, nil)
		xtwz := mat.NewVecDense(p, nil)
		for i := 0; i < n; i++ {
			w := weight(mu[i])
			if !isFinite(w) || w < 1e-10 {
				w = 1e-10
			}
			z := eta[i] + (y[i]-mu[i])/mu[i]
			for j := 0; j < p; j++ {
				xij := X.At(i, j)
				for k := j; k < p; k++ {
					xtwx.SetSym(j, k, xtwx.At(j, k)+w*xij*X.At(i, k))
				}
				xtwz.SetVec(j, xtwz.AtVec(j)+w*xij*z)
			}
		}

		var chol mat.Cholesky
		if ok := chol.Factorize(xtwx); !ok {
			return nil, nil, core.NewFitError(name, "singular design matrix")
		}
		var next mat.VecDense
		if err := chol.SolveVecTo(&next, xtwz); err != nil {
			return nil, nil, core.NewFitError(name, "weighted least squares solve failed")
		}
		for j := 0; j < p; j++ {
			coef[j] = next.AtVec(j)
			if !isFinite(coef[j]) {
				return nil, nil, core.NewFitError(name, "coefficients diverged")
			}
		}

		dev := poissonDeviance(y, mu)
		if math.Abs(dev-devOld) < irlsTolerance*(math.Abs(dev)+0.1) {
			break
		}
		devOld = dev
	}

	// Final means at the converged coefficients.
	for i := 0; i < n; i++ {
		e := 0.0
		for j := 0; j < p; j++ {
			e += X.At(i, j) * coef[j]
		}
		mu[i] = math.Exp(clamp(e, -etaBound, etaBound))
	}
	return coef, mu, nil
}

// fitPoissonFamily fits Poisson and quasi-Poisson candidates. Both share the
// mean fit; quasi-Poisson adds the Pearson dispersion estimate.
func fitPoissonFamily(c glmCandidate, ts timeseries.TimeSeries) (Fitted, error) {
	y := ts.Counts()
	X := buildDesign(c.trend, ts.Obs)
	_, p := X.Dims()

	coef, mu, err := irls(c.Name(), y, X, func(m float64) float64 { return m })
	if err != nil {
		return nil, err
	}

	fit := &glmFit{
		name:       c.Name(),
		trend:      c.trend,
		family:     c.family,
		coef:       coef,
		mu:         mu,
		logLik:     poissonLogLik(y, mu),
		nobs:       len(y),
		npar:       p,
		dispersion: 1,
	}

	if c.family == FamilyQuasiPoisson {
		if len(y) <= p {
			return nil, core.NewFitError(c.Name(), "no residual degrees of freedom for dispersion")
		}
		fit.dispersion = pearsonDispersion(y, mu, p)
	}
	return fit, nil
}

// poissonLogLik is the Poisson log-likelihood at the fitted means.
func poissonLogLik(y, mu []float64) float64 {
	ll := 0.0
	for i := range y {
		m := math.Max(mu[i], 1e-10)
		lg, _ := math.Lgamma(y[i] + 1)
		ll += y[i]*math.Log(m) - m - lg
	}
	return ll
}

// poissonDeviance is the Poisson residual deviance; the y=0 term collapses
// to 2*mu.
func poissonDeviance(y, mu []float64) float64 {
	dev := 0.0
	for i := range y {
		m := math.Max(mu[i], 1e-10)
		if y[i] > 0 {
			dev += 2 * (y[i]*math.Log(y[i]/m) - (y[i] - m))
		} else {
			dev += 2 * m
		}
	}
	return dev
}

// pearsonDispersion estimates the quasi-Poisson over-dispersion scalar.
func pearsonDispersion(y, mu []float64, p int) float64 {
	x2 := 0.0
	for i := range y {
		m := math.Max(mu[i], 1e-10)
		r := y[i] - m
		x2 += r * r / m
	}
	phi := x2 / float64(len(y)-p)
	if phi < 1e-8 {
		phi = 1e-8
	}
	return phi
}

func mean(v []float64) float64 {
	s := 0.0
	for _, x := range v {
		s += x
	}
	return s / float64(len(v))
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
