package timeseries

import (
	"testing"
	"time"

	"github.com/thibautjombart/epichange/domain/core"
)

func TestFromDates_DerivesDayIndex(t *testing.T) {
	start := time.Date(2020, 3, 2, 0, 0, 0, 0, time.UTC) // a Monday
	dates := []time.Time{start, start.AddDate(0, 0, 1), start.AddDate(0, 0, 2)}
	counts := []int{10, 12, 9}

	ts, err := FromDates(dates, counts, DefaultCalendar())
	if err != nil {
		t.Fatalf("FromDates returned error: %v", err)
	}
	if ts.Len() != 3 {
		t.Fatalf("expected 3 rows, got %d", ts.Len())
	}
	for i, o := range ts.Obs {
		if o.Day != i {
			t.Errorf("row %d: expected day %d, got %d", i, i, o.Day)
		}
	}
	if ts.Obs[0].Weekday != Monday {
		t.Errorf("expected first row to be monday, got %s", ts.Obs[0].Weekday)
	}
	if !ts.HasColumn(ColumnDay) || !ts.HasColumn(ColumnWeekday) || !ts.HasColumn(ColumnCount) {
		t.Error("FromDates should mark day, weekday and count columns present")
	}
}

func TestFromDates_RejectsNegativeCounts(t *testing.T) {
	start := time.Date(2020, 3, 2, 0, 0, 0, 0, time.UTC)
	_, err := FromDates([]time.Time{start}, []int{-1}, DefaultCalendar())
	if !core.IsDataValidation(err) {
		t.Fatalf("expected data validation error, got %v", err)
	}
}

func TestSplit_Arithmetic(t *testing.T) {
	obs := make([]Observation, 20)
	for i := range obs {
		obs[i] = Observation{Day: i, Count: 5}
	}
	ts := New(obs, ColumnDay)

	for k := 1; k < ts.Len(); k++ {
		train, test := ts.Split(k)
		if train.Len()+test.Len() != ts.Len() {
			t.Errorf("k=%d: train+test = %d, want %d", k, train.Len()+test.Len(), ts.Len())
		}
		if test.Len() != k {
			t.Errorf("k=%d: test has %d rows", k, test.Len())
		}
		if train.Len() > 0 && test.Len() > 0 && train.Obs[train.Len()-1].Day >= test.Obs[0].Day {
			t.Errorf("k=%d: train overlaps test", k)
		}
	}
}

func TestWithout_DoesNotMutate(t *testing.T) {
	obs := []Observation{{Day: 0, Count: 1}, {Day: 1, Count: 2}, {Day: 2, Count: 3}}
	ts := New(obs, ColumnDay)

	reduced := ts.Without(1)
	if reduced.Len() != 2 {
		t.Fatalf("expected 2 rows after Without, got %d", reduced.Len())
	}
	if reduced.Obs[0].Day != 0 || reduced.Obs[1].Day != 2 {
		t.Errorf("Without(1) kept wrong rows: %+v", reduced.Obs)
	}
	if ts.Len() != 3 {
		t.Error("Without mutated the receiver")
	}
	if !reduced.HasColumn(ColumnDay) {
		t.Error("Without dropped the column set")
	}
}

func TestValidate_DuplicateDays(t *testing.T) {
	ts := New([]Observation{{Day: 0, Count: 1}, {Day: 0, Count: 2}})
	if err := ts.Validate(); !core.IsDataValidation(err) {
		t.Fatalf("expected validation error for duplicate days, got %v", err)
	}
}

func TestValidate_EmptySeries(t *testing.T) {
	ts := New(nil)
	if err := ts.Validate(); !core.IsDataValidation(err) {
		t.Fatalf("expected validation error for empty series, got %v", err)
	}
}

func TestCategorize_IsPureAndExplicit(t *testing.T) {
	cal := DefaultCalendar()
	cases := []struct {
		date time.Time
		want WeekdayCategory
	}{
		{time.Date(2020, 3, 2, 0, 0, 0, 0, time.UTC), Monday},     // Mon
		{time.Date(2020, 3, 3, 0, 0, 0, 0, time.UTC), RestOfWeek}, // Tue
		{time.Date(2020, 3, 6, 0, 0, 0, 0, time.UTC), RestOfWeek}, // Fri
		{time.Date(2020, 3, 7, 0, 0, 0, 0, time.UTC), Weekend},    // Sat
		{time.Date(2020, 3, 8, 0, 0, 0, 0, time.UTC), Weekend},    // Sun
	}
	for _, c := range cases {
		if got := cal.Categorize(c.date); got != c.want {
			t.Errorf("%s: expected %s, got %s", c.date.Weekday(), c.want, got)
		}
	}

	// A Friday/Saturday weekend must reclassify Friday without touching Monday.
	friSat := Calendar{WeekendDays: []time.Weekday{time.Friday, time.Saturday}}
	if got := friSat.Categorize(time.Date(2020, 3, 6, 0, 0, 0, 0, time.UTC)); got != Weekend {
		t.Errorf("custom calendar: expected friday to be weekend, got %s", got)
	}
	if got := friSat.Categorize(time.Date(2020, 3, 2, 0, 0, 0, 0, time.UTC)); got != Monday {
		t.Errorf("custom calendar: expected monday to stay monday, got %s", got)
	}
}
