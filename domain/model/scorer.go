package model

import (
	"context"
	"math"
	"sync"

	"github.com/montanaflynn/stats"
	"golang.org/x/sync/errgroup"

	"github.com/thibautjombart/epichange/domain/core"
	"github.com/thibautjombart/epichange/domain/timeseries"
)

// Method selects the cross-validation scoring strategy. Lower scores are
// better under both.
type Method string

const (
	// MethodJackknifeRMSE is the leave-one-out strategy: refit without each
	// row, score the held-out absolute residual, take the median across
	// folds. The per-fold statistic is the square root of the single squared
	// residual, exactly as the reference analysis computes it; do not
	// replace it with a classic pooled RMSE.
	MethodJackknifeRMSE Method = "jackknife_rmse"

	// MethodAIC fits once on the full training set and reads off the
	// information criterion. Cheaper, less accurate.
	MethodAIC Method = "aic"
)

// ParseMethod validates a method name from configuration.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case MethodJackknifeRMSE, MethodAIC:
		return Method(s), nil
	case "":
		return MethodJackknifeRMSE, nil
	default:
		return "", core.NewValidationError("method", "unknown scoring method "+s)
	}
}

// Scorer scores one candidate against a training set. It never picks a
// winner; ranking is the selector's job.
type Scorer struct {
	Method Method
}

// Score returns the candidate's cross-validation score on train.
func (s Scorer) Score(ctx context.Context, c Candidate, train timeseries.TimeSeries) (float64, error) {
	switch s.Method {
	case MethodAIC:
		fitted, err := c.Fit(train)
		if err != nil {
			return 0, err
		}
		return fitted.AIC(), nil
	default:
		return s.jackknife(ctx, c, train)
	}
}

// jackknife refits the candidate n times, once per held-out row. Folds are
// independent and run concurrently; a fold whose refit fails numerically is
// dropped from the median rather than failing the candidate. A validation
// failure is different: it would hit every fold alike, so it surfaces
// immediately.
func (s Scorer) jackknife(ctx context.Context, c Candidate, train timeseries.TimeSeries) (float64, error) {
	n := train.Len()
	if n < 2 {
		return 0, core.NewFitError(c.Name(), "too few rows for leave-one-out scoring")
	}

	residuals := make([]float64, 0, n)
	var mu sync.Mutex

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelFolds)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			fitted, err := c.Fit(train.Without(i))
			if err != nil {
				if core.IsDataValidation(err) {
					return err // caller error, not a losing fold
				}
				return nil // failed fold, excluded from the median
			}
			held := train.Obs[i]
			d := float64(held.Count) - fitted.Predict(held)
			r := math.Sqrt(d * d)
			if !isFinite(r) {
				return nil
			}
			mu.Lock()
			residuals = append(residuals, r)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	if len(residuals) == 0 {
		return 0, core.NewFitError(c.Name(), "every leave-one-out refit failed")
	}
	med, err := stats.Median(residuals)
	if err != nil {
		return 0, core.NewFitError(c.Name(), "median of fold residuals: "+err.Error())
	}
	return med, nil
}

const maxParallelFolds = 8
