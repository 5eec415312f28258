package detect

import (
	"context"
	"fmt"

	"github.com/thibautjombart/epichange/domain/core"
	"github.com/thibautjombart/epichange/domain/model"
	"github.com/thibautjombart/epichange/domain/timeseries"
)

// outlierBaseRate is the chance of a single row falling outside a 95%
// predictive interval by noise alone. The significance statistic is always
// computed against this rate, independent of the classification alpha.
const outlierBaseRate = 0.05

// Options configures a detection run. Zero values fall back to the defaults
// from the configuration surface: max_k 7, alpha 0.05, jackknife scoring and
// the default candidate registry.
type Options struct {
	MaxK   int
	Alpha  float64
	Method model.Method
	Models []model.Candidate
}

// DefaultOptions returns the documented defaults.
func DefaultOptions() Options {
	return Options{
		MaxK:   7,
		Alpha:  0.05,
		Method: model.MethodJackknifeRMSE,
		Models: model.DefaultRegistry(),
	}
}

func (o Options) normalized() Options {
	d := DefaultOptions()
	if o.MaxK > 0 {
		d.MaxK = o.MaxK
	}
	if o.Alpha > 0 && o.Alpha < 1 {
		d.Alpha = o.Alpha
	}
	if o.Method != "" {
		d.Method = o.Method
	}
	if len(o.Models) > 0 {
		d.Models = o.Models
	}
	return d
}

// Result is the outcome of one fixed-window run. Constructed once, immutable
// thereafter; the optimizer only ranks Results, it never rewrites them.
type Result struct {
	RunID      core.RunID            `json:"run_id"`
	Group      string                `json:"group,omitempty"`
	K          int                   `json:"k"`
	Alpha      float64               `json:"alpha"`
	Method     model.Method          `json:"method"`
	Comparison model.ComparisonTable `json:"comparison"`
	BestModel  string                `json:"best_model"`
	Fitted     model.Fitted          `json:"-"`
	NOutliers  int                   `json:"n_outliers"`
	PValue     float64               `json:"p_value"`
	Rows       []DiagnosticRow       `json:"rows"`
}

// FixedWindow runs selection, fitting and classification for one held-out
// window size k: train on the first n-k rows, classify all n rows with the
// single winning model, and attach the one-sided binomial p-value for the
// observed outlier count.
func FixedWindow(ctx context.Context, ts timeseries.TimeSeries, k int, opts Options) (*Result, error) {
	opts = opts.normalized()
	if err := ts.Validate(); err != nil {
		return nil, err
	}

	n := ts.Len()
	if k < 1 {
		return nil, core.NewValidationError("k", "window size must be at least 1")
	}
	if n-k < 1 {
		return nil, core.NewInsufficientDataError(n, k+1)
	}

	train, _ := ts.Split(k)
	sel, err := model.Select(ctx, opts.Models, train, opts.Method)
	if err != nil {
		return nil, err
	}

	rows := Classify(sel.Fitted, ts, n-k, opts.Alpha)
	nOutliers := 0
	for _, r := range rows {
		if r.Outlier {
			nOutliers++
		}
	}

	return &Result{
		RunID:      core.RunID(core.NewID()),
		Group:      ts.Group,
		K:          k,
		Alpha:      opts.Alpha,
		Method:     opts.Method,
		Comparison: sel.Table,
		BestModel:  sel.Best.Name(),
		Fitted:     sel.Fitted,
		NOutliers:  nOutliers,
		PValue:     model.BinomialTailP(nOutliers, n, outlierBaseRate),
		Rows:       rows,
	}, nil
}

// TrainTestSizes reports the split a window size k would produce; mostly a
// convenience for callers sanity-checking their inputs.
func TrainTestSizes(n, k int) (train, test int, err error) {
	if k < 1 || k >= n {
		return 0, 0, fmt.Errorf("%w: window %d out of range for %d rows", core.ErrDataValidation, k, n)
	}
	return n - k, k, nil
}
