package model

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/thibautjombart/epichange/domain/core"
	"github.com/thibautjombart/epichange/domain/timeseries"
)

func TestJackknife_MedianOfHeldOutResiduals(t *testing.T) {
	// Constant data: leave-one-out means shift by a known amount, so the
	// score is small but positive; mainly this pins the strategy down as
	// median-of-absolute-residuals, not a pooled RMSE.
	counts := []int{20, 20, 20, 20, 20, 20, 20, 20, 20, 30}
	obs := make([]timeseries.Observation, len(counts))
	for i, c := range counts {
		obs[i] = timeseries.Observation{Day: i, Count: c}
	}
	ts := timeseries.New(obs, timeseries.ColumnDay)

	scorer := Scorer{Method: MethodJackknifeRMSE}
	score, err := scorer.Score(context.Background(), NewCandidate(FamilyPoisson, TrendConstant), ts)
	if err != nil {
		t.Fatalf("score failed: %v", err)
	}

	// Folds holding out a 20 predict mean(rest) = (8*20+30)/9 = 21.11,
	// residual 1.11; the single fold holding out the 30 predicts 20 with
	// residual 10. The median of {1.11 x9, 10} is 1.11, far from the
	// mean-dominated pooled value.
	if math.Abs(score-10.0/9.0) > 0.02 {
		t.Errorf("expected median residual about 1.11, got %f", score)
	}
}

func TestScorer_AICUsesOneFit(t *testing.T) {
	ts := flatSeries(12, 15)
	scorer := Scorer{Method: MethodAIC}

	score, err := scorer.Score(context.Background(), NewCandidate(FamilyPoisson, TrendConstant), ts)
	if err != nil {
		t.Fatalf("score failed: %v", err)
	}
	fitted, _ := NewCandidate(FamilyPoisson, TrendConstant).Fit(ts)
	if math.Abs(score-fitted.AIC()) > 1e-9 {
		t.Errorf("AIC score %f should equal the single-fit AIC %f", score, fitted.AIC())
	}
}

func TestSelect_PrefersConstantOnFlatData(t *testing.T) {
	ts := flatSeries(25, 20)

	sel, err := Select(context.Background(), DefaultRegistry(), ts, MethodAIC)
	if err != nil {
		t.Fatalf("selection failed: %v", err)
	}
	if sel.Best.Name() != "poisson_constant" {
		t.Errorf("flat data should select the constant model, got %s", sel.Best.Name())
	}
	if len(sel.Table) == 0 {
		t.Fatal("comparison table is empty")
	}
	for i := 1; i < len(sel.Table); i++ {
		if sel.Table[i].Score < sel.Table[i-1].Score {
			t.Error("comparison table must be sorted ascending by score")
		}
	}
}

func TestSelect_SingleFailureDoesNotAbort(t *testing.T) {
	// Two training rows: the richer day model cannot run leave-one-out
	// (each fold has one row and two parameters) but the constant model can
	// still win.
	obs := []timeseries.Observation{{Day: 0, Count: 10}, {Day: 1, Count: 12}, {Day: 2, Count: 11}}
	ts := timeseries.New(obs, timeseries.ColumnDay)

	registry := []Candidate{
		NewCandidate(FamilyNegBinomial, TrendLinearDay), // folds of 2 rows, 2 params: can fail
		NewCandidate(FamilyPoisson, TrendConstant),
	}
	sel, err := Select(context.Background(), registry, ts, MethodJackknifeRMSE)
	if err != nil {
		t.Fatalf("selection failed: %v", err)
	}
	if sel.Fitted == nil || sel.Best == nil {
		t.Fatal("selection returned no fitted winner")
	}
}

func TestSelect_MissingColumnIsFatal(t *testing.T) {
	// A registry demanding a column the provider never supplied is a caller
	// error, not a losing candidate.
	obs := []timeseries.Observation{{Day: 0, Count: 10}, {Day: 1, Count: 12}, {Day: 2, Count: 11}}
	ts := timeseries.New(obs) // count only

	registry := []Candidate{NewCandidate(FamilyPoisson, TrendLinearDay)}
	_, err := Select(context.Background(), registry, ts, MethodAIC)
	if !core.IsDataValidation(err) {
		t.Fatalf("expected data validation error, got %v", err)
	}
}

func TestSelect_MissingColumnIsFatalUnderJackknife(t *testing.T) {
	// Same caller error through the default scoring path: the day-trend
	// candidate must not quietly lose to the constant model by walkover when
	// the series never carried a day column.
	obs := []timeseries.Observation{
		{Day: 0, Count: 10}, {Day: 1, Count: 12}, {Day: 2, Count: 11}, {Day: 3, Count: 13},
	}
	ts := timeseries.New(obs) // count only

	registry := []Candidate{
		NewCandidate(FamilyPoisson, TrendLinearDay),
		NewCandidate(FamilyPoisson, TrendConstant),
	}
	sel, err := Select(context.Background(), registry, ts, MethodJackknifeRMSE)
	if !core.IsDataValidation(err) {
		t.Fatalf("expected data validation error, got %v", err)
	}
	if sel != nil {
		t.Errorf("no selection should survive a validation failure, got winner %s", sel.Best.Name())
	}
}

func TestSelect_AllCandidatesFailed(t *testing.T) {
	// One row, all candidates need at least an intercept plus residual
	// degrees of freedom under leave-one-out.
	ts := timeseries.New([]timeseries.Observation{{Day: 0, Count: 5}}, timeseries.ColumnDay)

	_, err := Select(context.Background(), []Candidate{NewCandidate(FamilyPoisson, TrendConstant)}, ts, MethodJackknifeRMSE)
	if !errors.Is(err, core.ErrAllCandidatesFailed) && !core.IsFitFailure(err) {
		t.Fatalf("expected all-candidates failure, got %v", err)
	}
}

func TestRegistryByName(t *testing.T) {
	reg, err := RegistryByName([]string{"poisson_constant", "negbin_day"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reg) != 2 || reg[0].Name() != "poisson_constant" || reg[1].Name() != "negbin_day" {
		t.Errorf("registry order not preserved: %+v", reg)
	}

	if _, err := RegistryByName([]string{"no_such_model"}); !core.IsDataValidation(err) {
		t.Errorf("expected validation error for unknown model, got %v", err)
	}
}
