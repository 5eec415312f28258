package model

import (
	"math"
	"testing"

	"github.com/thibautjombart/epichange/domain/core"
	"github.com/thibautjombart/epichange/domain/timeseries"
)

func flatSeries(n, count int) timeseries.TimeSeries {
	obs := make([]timeseries.Observation, n)
	for i := range obs {
		obs[i] = timeseries.Observation{Day: i, Count: count}
	}
	return timeseries.New(obs, timeseries.ColumnDay)
}

func TestPoissonConstant_RecoversMean(t *testing.T) {
	// Deterministic counts with mean 20.
	counts := []int{18, 22, 19, 21, 20, 20, 18, 22, 19, 21}
	obs := make([]timeseries.Observation, len(counts))
	for i, c := range counts {
		obs[i] = timeseries.Observation{Day: i, Count: c}
	}
	ts := timeseries.New(obs, timeseries.ColumnDay)

	fitted, err := NewCandidate(FamilyPoisson, TrendConstant).Fit(ts)
	if err != nil {
		t.Fatalf("fit failed: %v", err)
	}

	pred := fitted.Predict(timeseries.Observation{Day: 100})
	if math.Abs(pred-20) > 0.01 {
		t.Errorf("constant model should predict the mean (20), got %f", pred)
	}
}

func TestPoissonLinearDay_RecoversTrend(t *testing.T) {
	// Exact exponential growth: count = round(10 * exp(0.1*day)).
	obs := make([]timeseries.Observation, 20)
	for i := range obs {
		obs[i] = timeseries.Observation{Day: i, Count: int(math.Round(10 * math.Exp(0.1*float64(i))))}
	}
	ts := timeseries.New(obs, timeseries.ColumnDay)

	fitted, err := NewCandidate(FamilyPoisson, TrendLinearDay).Fit(ts)
	if err != nil {
		t.Fatalf("fit failed: %v", err)
	}

	// The fitted mean at day 10 should be close to 10*exp(1).
	want := 10 * math.Exp(1)
	got := fitted.Predict(timeseries.Observation{Day: 10})
	if math.Abs(got-want)/want > 0.05 {
		t.Errorf("day-trend model predicts %f at day 10, want about %f", got, want)
	}

	// Extrapolation beyond the fitting window must follow the trend.
	at25 := fitted.Predict(timeseries.Observation{Day: 25})
	at20 := fitted.Predict(timeseries.Observation{Day: 20})
	if at25 <= at20 {
		t.Error("exponential trend should keep increasing beyond the fitting window")
	}
}

func TestFit_EmptySeries(t *testing.T) {
	_, err := NewCandidate(FamilyPoisson, TrendConstant).Fit(timeseries.New(nil))
	if !core.IsDataValidation(err) {
		t.Fatalf("expected validation error for empty series, got %v", err)
	}
}

func TestFit_MissingRequiredColumn(t *testing.T) {
	// A series with only a count column cannot feed a day-trend formula.
	obs := []timeseries.Observation{{Day: 0, Count: 3}, {Day: 1, Count: 4}, {Day: 2, Count: 5}}
	ts := timeseries.New(obs) // no day column declared

	_, err := NewCandidate(FamilyPoisson, TrendLinearDay).Fit(ts)
	if !core.IsDataValidation(err) {
		t.Fatalf("expected validation error for missing day column, got %v", err)
	}

	// The weekday formula additionally needs the weekday column.
	withDay := timeseries.New(obs, timeseries.ColumnDay)
	_, err = NewCandidate(FamilyPoisson, TrendLinearDayWeekday).Fit(withDay)
	if !core.IsDataValidation(err) {
		t.Fatalf("expected validation error for missing weekday column, got %v", err)
	}
}

func TestFit_TooFewRowsForParameters(t *testing.T) {
	obs := []timeseries.Observation{{Day: 0, Count: 5}}
	ts := timeseries.New(obs, timeseries.ColumnDay)

	_, err := NewCandidate(FamilyPoisson, TrendLinearDay).Fit(ts)
	if !core.IsFitFailure(err) {
		t.Fatalf("expected fit failure for 1 row and 2 parameters, got %v", err)
	}
}

func TestAIC_PenalizesUselessParameters(t *testing.T) {
	// Flat data: the day term buys nothing, so the constant model should
	// carry the lower AIC.
	ts := flatSeries(30, 20)

	constant, err := NewCandidate(FamilyPoisson, TrendConstant).Fit(ts)
	if err != nil {
		t.Fatalf("constant fit failed: %v", err)
	}
	linear, err := NewCandidate(FamilyPoisson, TrendLinearDay).Fit(ts)
	if err != nil {
		t.Fatalf("linear fit failed: %v", err)
	}

	if constant.AIC() >= linear.AIC() {
		t.Errorf("constant AIC %f should beat linear AIC %f on flat data", constant.AIC(), linear.AIC())
	}
}

func TestQuasiPoisson_DispersionAboveOneForOverdispersedData(t *testing.T) {
	// Counts far more variable than Poisson(mean) allows.
	counts := []int{2, 40, 5, 55, 1, 60, 3, 48, 6, 52, 2, 45, 4, 58, 3, 50}
	obs := make([]timeseries.Observation, len(counts))
	for i, c := range counts {
		obs[i] = timeseries.Observation{Day: i, Count: c}
	}
	ts := timeseries.New(obs, timeseries.ColumnDay)

	fitted, err := NewCandidate(FamilyQuasiPoisson, TrendConstant).Fit(ts)
	if err != nil {
		t.Fatalf("quasi-Poisson fit failed: %v", err)
	}

	qp := fitted.(*glmFit)
	if qp.dispersion <= 1 {
		t.Errorf("expected dispersion > 1 for overdispersed data, got %f", qp.dispersion)
	}

	// Mean structure is shared with plain Poisson.
	plain, err := NewCandidate(FamilyPoisson, TrendConstant).Fit(ts)
	if err != nil {
		t.Fatalf("poisson fit failed: %v", err)
	}
	o := timeseries.Observation{Day: 3}
	if math.Abs(fitted.Predict(o)-plain.Predict(o)) > 1e-6 {
		t.Error("quasi-Poisson mean fit should match the Poisson mean fit")
	}
}

func TestNegBinomial_FitsOverdispersedData(t *testing.T) {
	counts := []int{2, 40, 5, 55, 1, 60, 3, 48, 6, 52, 2, 45, 4, 58, 3, 50}
	obs := make([]timeseries.Observation, len(counts))
	for i, c := range counts {
		obs[i] = timeseries.Observation{Day: i, Count: c}
	}
	ts := timeseries.New(obs, timeseries.ColumnDay)

	fitted, err := NewCandidate(FamilyNegBinomial, TrendConstant).Fit(ts)
	if err != nil {
		t.Fatalf("negative binomial fit failed: %v", err)
	}

	nb := fitted.(*glmFit)
	if nb.theta <= 0 {
		t.Fatalf("theta must be positive, got %f", nb.theta)
	}
	// Strong over-dispersion should push theta well below the Poisson limit.
	if nb.theta > 100 {
		t.Errorf("expected small theta for overdispersed data, got %f", nb.theta)
	}

	// Its interval must be wider than the Poisson one at the same mean.
	o := timeseries.Observation{Day: 5}
	plain, _ := NewCandidate(FamilyPoisson, TrendConstant).Fit(ts)
	nbLo, nbHi := fitted.PredictionInterval(o, 0.05)
	pLo, pHi := plain.PredictionInterval(o, 0.05)
	if nbHi-nbLo <= pHi-pLo {
		t.Errorf("NB interval [%f,%f] should be wider than Poisson [%f,%f]", nbLo, nbHi, pLo, pHi)
	}
}

func TestFit_DoesNotMutateInput(t *testing.T) {
	obs := []timeseries.Observation{{Day: 0, Count: 3}, {Day: 1, Count: 4}, {Day: 2, Count: 5}, {Day: 3, Count: 6}}
	ts := timeseries.New(obs, timeseries.ColumnDay)
	before := make([]timeseries.Observation, len(ts.Obs))
	copy(before, ts.Obs)

	if _, err := NewCandidate(FamilyPoisson, TrendLinearDay).Fit(ts); err != nil {
		t.Fatalf("fit failed: %v", err)
	}
	for i := range before {
		if ts.Obs[i] != before[i] {
			t.Fatalf("fit mutated input row %d", i)
		}
	}
}
