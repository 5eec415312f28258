package detect

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/thibautjombart/epichange/domain/core"
	"github.com/thibautjombart/epichange/domain/timeseries"
)

// WindowScore is the two-term score for one candidate window size:
// Score1 rewards history the model explains (train rows classified normal),
// Score2 rewards a window that isolates a trend break (test rows flagged).
// When two windows explain history equally well the tie goes to the one that
// flags the recent departure more decisively; the goal is early detection,
// not conservatism.
type WindowScore struct {
	K      int `json:"k"`
	Score1 int `json:"score1"`
	Score2 int `json:"score2"`
	Score  int `json:"score"`
}

// Detection is the optimizer's full answer: the winning window's result,
// untouched, plus the ranking that picked it.
type Detection struct {
	Best    *Result       `json:"best"`
	Ranking []WindowScore `json:"ranking"`
}

// Optimize runs the fixed-window detector for every k in 1..MaxK, scores
// each run and returns the winner. The k runs are independent and fan out
// concurrently. A window where every candidate fails is excluded from the
// ranking; only when no window survives does the whole series fail.
func Optimize(ctx context.Context, ts timeseries.TimeSeries, opts Options) (*Detection, error) {
	opts = opts.normalized()
	if err := ts.Validate(); err != nil {
		return nil, err
	}
	n := ts.Len()
	if n < opts.MaxK+2 {
		return nil, core.NewInsufficientDataError(n, opts.MaxK+2)
	}

	results := make([]*Result, opts.MaxK+1)
	skipped := make([]error, opts.MaxK+1)

	g, gctx := errgroup.WithContext(ctx)
	for k := 1; k <= opts.MaxK; k++ {
		g.Go(func() error {
			res, err := FixedWindow(gctx, ts, k, opts)
			if err != nil {
				if errors.Is(err, core.ErrAllCandidatesFailed) || core.IsFitFailure(err) {
					skipped[k] = err // this window is out of the ranking
					return nil
				}
				return err // validation problems hit every window alike
			}
			results[k] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ranking := make([]WindowScore, 0, opts.MaxK)
	for k := 1; k <= opts.MaxK; k++ {
		if results[k] == nil {
			continue
		}
		ranking = append(ranking, scoreWindow(results[k]))
	}
	if len(ranking) == 0 {
		var cause error
		for k := 1; k <= opts.MaxK; k++ {
			if skipped[k] != nil {
				cause = skipped[k]
				break
			}
		}
		return nil, fmt.Errorf("%w: no window size in 1..%d produced a usable fit (first failure: %v)", core.ErrAllCandidatesFailed, opts.MaxK, cause)
	}

	// Score descending, Score2 breaking ties; the stable sort over the
	// ascending k sweep makes the smaller window the deterministic last
	// resort.
	sort.SliceStable(ranking, func(i, j int) bool {
		if ranking[i].Score != ranking[j].Score {
			return ranking[i].Score > ranking[j].Score
		}
		return ranking[i].Score2 > ranking[j].Score2
	})

	return &Detection{Best: results[ranking[0].K], Ranking: ranking}, nil
}

// scoreWindow computes the two-term score from an already-classified run.
func scoreWindow(res *Result) WindowScore {
	ws := WindowScore{K: res.K}
	for _, row := range res.Rows {
		switch {
		case row.Segment == SegmentTrain && !row.Outlier:
			ws.Score1++
		case row.Segment == SegmentTest && row.Outlier:
			ws.Score2++
		}
	}
	ws.Score = ws.Score1 + ws.Score2
	return ws
}
