package model

import (
	"github.com/thibautjombart/epichange/domain/core"
	"github.com/thibautjombart/epichange/domain/timeseries"
)

// Trend is the linear predictor of a model candidate.
type Trend int

const (
	// TrendConstant fits an intercept only: a flat expected count.
	TrendConstant Trend = iota
	// TrendLinearDay adds a linear day term on the log scale, i.e. an
	// exponential trend on the count scale.
	TrendLinearDay
	// TrendLinearDayWeekday adds the 3-level weekday category on top of the
	// day term.
	TrendLinearDayWeekday
)

func (t Trend) String() string {
	switch t {
	case TrendConstant:
		return "constant"
	case TrendLinearDay:
		return "day"
	case TrendLinearDayWeekday:
		return "day_weekday"
	default:
		return "unknown"
	}
}

// Family is the distributional family of a model candidate.
type Family int

const (
	// FamilyPoisson has the fixed Poisson mean-variance relationship.
	FamilyPoisson Family = iota
	// FamilyQuasiPoisson keeps the Poisson mean structure but estimates a
	// separate over-dispersion scalar from the Pearson residuals.
	FamilyQuasiPoisson
	// FamilyNegBinomial estimates a dispersion parameter jointly with the
	// mean, handling over-dispersed counts.
	FamilyNegBinomial
)

func (f Family) String() string {
	switch f {
	case FamilyPoisson:
		return "poisson"
	case FamilyQuasiPoisson:
		return "quasipoisson"
	case FamilyNegBinomial:
		return "negbin"
	default:
		return "unknown"
	}
}

// Candidate is one fittable model variant. Candidates are pure: Fit never
// mutates its input, and a candidate value holds no state, so a registry is
// safe to share across concurrent fits.
type Candidate interface {
	Name() string
	RequiredColumns() []timeseries.Column
	Fit(ts timeseries.TimeSeries) (Fitted, error)
}

// Fitted is an opaque fitted model. Prediction and intervals work for
// arbitrary rows, including rows that were not part of the fit.
type Fitted interface {
	Name() string
	AIC() float64
	Predict(o timeseries.Observation) float64
	PredictionInterval(o timeseries.Observation, alpha float64) (lower, upper float64)
}

// glmCandidate is the closed variant enumeration: trend x family.
type glmCandidate struct {
	family Family
	trend  Trend
}

// NewCandidate builds the candidate for a family/trend pair.
func NewCandidate(family Family, trend Trend) Candidate {
	return glmCandidate{family: family, trend: trend}
}

func (c glmCandidate) Name() string {
	return c.family.String() + "_" + c.trend.String()
}

func (c glmCandidate) RequiredColumns() []timeseries.Column {
	switch c.trend {
	case TrendLinearDay:
		return []timeseries.Column{timeseries.ColumnCount, timeseries.ColumnDay}
	case TrendLinearDayWeekday:
		return []timeseries.Column{timeseries.ColumnCount, timeseries.ColumnDay, timeseries.ColumnWeekday}
	default:
		return []timeseries.Column{timeseries.ColumnCount}
	}
}

// Fit validates the input and runs the family-specific fit. Validation
// failures surface before any numerical work.
func (c glmCandidate) Fit(ts timeseries.TimeSeries) (Fitted, error) {
	if ts.Len() == 0 {
		return nil, core.NewValidationError(c.Name(), "cannot fit on empty series")
	}
	for _, col := range c.RequiredColumns() {
		if !ts.HasColumn(col) {
			return nil, core.NewMissingColumnError(c.Name(), string(col))
		}
	}
	for _, o := range ts.Obs {
		if o.Count < 0 {
			return nil, core.NewValidationError(c.Name(), "counts must be non-negative")
		}
	}

	switch c.family {
	case FamilyNegBinomial:
		return fitNegBinomial(c, ts)
	default:
		return fitPoissonFamily(c, ts)
	}
}

// DefaultRegistry is the candidate set used when the caller does not choose
// one: a flat Poisson, a Poisson day trend and a negative binomial day trend.
func DefaultRegistry() []Candidate {
	return []Candidate{
		NewCandidate(FamilyPoisson, TrendConstant),
		NewCandidate(FamilyPoisson, TrendLinearDay),
		NewCandidate(FamilyNegBinomial, TrendLinearDay),
	}
}

// FullRegistry is every family/trend combination, in a fixed order.
func FullRegistry() []Candidate {
	families := []Family{FamilyPoisson, FamilyQuasiPoisson, FamilyNegBinomial}
	trends := []Trend{TrendConstant, TrendLinearDay, TrendLinearDayWeekday}
	out := make([]Candidate, 0, len(families)*len(trends))
	for _, f := range families {
		for _, t := range trends {
			out = append(out, NewCandidate(f, t))
		}
	}
	return out
}

// RegistryByName resolves candidate names (as produced by Name()) into a
// registry, preserving order.
func RegistryByName(names []string) ([]Candidate, error) {
	all := FullRegistry()
	out := make([]Candidate, 0, len(names))
	for _, name := range names {
		found := false
		for _, c := range all {
			if c.Name() == name {
				out = append(out, c)
				found = true
				break
			}
		}
		if !found {
			return nil, core.NewValidationError("models", "unknown model candidate "+name)
		}
	}
	return out, nil
}
