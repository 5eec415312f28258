package timeseries

import (
	"sort"
	"time"

	"github.com/thibautjombart/epichange/domain/core"
)

// Column identifies a logical column of the tabular daily-count input.
// Model candidates declare which columns their formula needs; validation
// happens against the columns the provider actually supplied.
type Column string

const (
	ColumnCount   Column = "count"
	ColumnDay     Column = "day"
	ColumnWeekday Column = "weekday"
)

// Observation is one row of a daily count series: a 0-based day index
// (derivable as date - min(date)), the non-negative count for that day and
// optional categorical covariates.
type Observation struct {
	Day     int             `json:"day"`
	Date    time.Time       `json:"date,omitempty"`
	Count   int             `json:"count"`
	Weekday WeekdayCategory `json:"weekday,omitempty"`
}

// TimeSeries is an ordered sequence of observations sharing a schema.
// Rows are sorted by day ascending with one row per day; gaps are allowed
// and are never interpolated here.
type TimeSeries struct {
	Group   string
	Obs     []Observation
	columns []Column
}

// New builds a series over the given observations, recording which columns
// the provider supplied. Rows are sorted by day; the count column is always
// implied.
func New(obs []Observation, cols ...Column) TimeSeries {
	sorted := make([]Observation, len(obs))
	copy(sorted, obs)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Day < sorted[j].Day })

	columns := []Column{ColumnCount}
	for _, c := range cols {
		if c != ColumnCount {
			columns = append(columns, c)
		}
	}
	return TimeSeries{Obs: sorted, columns: columns}
}

// FromDates builds a series from dated counts, deriving the day index from
// the earliest date and the weekday category from cal. Day and weekday
// columns are marked present.
func FromDates(dates []time.Time, counts []int, cal Calendar) (TimeSeries, error) {
	if len(dates) != len(counts) {
		return TimeSeries{}, core.NewValidationError("dates", "dates and counts length mismatch")
	}
	if len(dates) == 0 {
		return TimeSeries{}, core.NewValidationError("dates", "empty input")
	}

	min := dates[0]
	for _, d := range dates[1:] {
		if d.Before(min) {
			min = d
		}
	}

	obs := make([]Observation, len(dates))
	for i, d := range dates {
		if counts[i] < 0 {
			return TimeSeries{}, core.NewValidationError("count", "counts must be non-negative")
		}
		obs[i] = Observation{
			Day:     int(d.Sub(min).Hours() / 24),
			Date:    d,
			Count:   counts[i],
			Weekday: cal.Categorize(d),
		}
	}
	return New(obs, ColumnDay, ColumnWeekday), nil
}

// Len returns the number of rows.
func (ts TimeSeries) Len() int { return len(ts.Obs) }

// HasColumn reports whether the provider supplied the given column.
func (ts TimeSeries) HasColumn(c Column) bool {
	for _, col := range ts.columns {
		if col == c {
			return true
		}
	}
	return false
}

// Columns returns the supplied column set.
func (ts TimeSeries) Columns() []Column {
	out := make([]Column, len(ts.columns))
	copy(out, ts.columns)
	return out
}

// Counts returns the count column as floats, in day order.
func (ts TimeSeries) Counts() []float64 {
	out := make([]float64, len(ts.Obs))
	for i, o := range ts.Obs {
		out[i] = float64(o.Count)
	}
	return out
}

// Split partitions the series into the first n-k rows (train) and the last
// k rows (test), both in day order. The caller is responsible for k bounds.
func (ts TimeSeries) Split(k int) (train, test TimeSeries) {
	n := len(ts.Obs)
	cut := n - k
	train = TimeSeries{Group: ts.Group, Obs: ts.Obs[:cut], columns: ts.columns}
	test = TimeSeries{Group: ts.Group, Obs: ts.Obs[cut:], columns: ts.columns}
	return train, test
}

// Without returns a copy of the series with row i removed. Used by
// leave-one-out scoring; the receiver is never mutated.
func (ts TimeSeries) Without(i int) TimeSeries {
	obs := make([]Observation, 0, len(ts.Obs)-1)
	obs = append(obs, ts.Obs[:i]...)
	obs = append(obs, ts.Obs[i+1:]...)
	return TimeSeries{Group: ts.Group, Obs: obs, columns: ts.columns}
}

// Validate checks the structural invariants: non-empty, non-negative counts,
// one row per day, days ascending.
func (ts TimeSeries) Validate() error {
	if len(ts.Obs) == 0 {
		return core.NewValidationError("series", "empty input")
	}
	for i, o := range ts.Obs {
		if o.Count < 0 {
			return core.NewValidationError("count", "counts must be non-negative")
		}
		if i > 0 && o.Day <= ts.Obs[i-1].Day {
			return core.NewValidationError("day", "days must be strictly ascending with one row per day")
		}
	}
	return nil
}
