package model

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/thibautjombart/epichange/domain/core"
	"github.com/thibautjombart/epichange/domain/timeseries"
)

// ComparisonEntry is one candidate's cross-validation score.
type ComparisonEntry struct {
	Model string  `json:"model"`
	Score float64 `json:"score"`
}

// ComparisonTable maps candidates to scores, ascending (lower is better).
// Candidates that failed to fit are absent.
type ComparisonTable []ComparisonEntry

// Selection is the outcome of model selection on one training window.
type Selection struct {
	Best   Candidate
	Fitted Fitted
	Table  ComparisonTable
}

// Select scores every registry candidate on the training set and returns the
// one with the minimum score, ties broken by registry order. A single
// candidate failing is not fatal; it simply loses. Only when every candidate
// fails does selection error out.
func Select(ctx context.Context, registry []Candidate, train timeseries.TimeSeries, method Method) (*Selection, error) {
	if len(registry) == 0 {
		return nil, core.NewValidationError("models", "empty candidate registry")
	}
	if err := train.Validate(); err != nil {
		return nil, err
	}

	scorer := Scorer{Method: method}
	scores := make([]float64, len(registry))
	failed := make([]bool, len(registry))

	g, gctx := errgroup.WithContext(ctx)
	for i, c := range registry {
		g.Go(func() error {
			score, err := scorer.Score(gctx, c, train)
			if err != nil {
				if core.IsDataValidation(err) {
					return err // caller-fixable, surface immediately
				}
				failed[i] = true
				return nil
			}
			scores[i] = score
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	table := make(ComparisonTable, 0, len(registry))
	for i, c := range registry {
		if !failed[i] {
			table = append(table, ComparisonEntry{Model: c.Name(), Score: scores[i]})
		}
	}
	if len(table) == 0 {
		return nil, core.ErrAllCandidatesFailed
	}
	sort.SliceStable(table, func(i, j int) bool { return table[i].Score < table[j].Score })

	// Winners are tried best-first: the jackknife can succeed on folds while
	// the full-window refit still fails, in which case the runner-up takes
	// over.
	order := make([]int, 0, len(registry))
	for i := range registry {
		if !failed[i] {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] < scores[order[b]] })

	for _, i := range order {
		fitted, err := registry[i].Fit(train)
		if err != nil {
			continue
		}
		return &Selection{Best: registry[i], Fitted: fitted, Table: table}, nil
	}
	return nil, core.ErrAllCandidatesFailed
}
