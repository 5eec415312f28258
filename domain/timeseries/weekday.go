package timeseries

import "time"

// WeekdayCategory is the 3-level weekday covariate used by the richer model
// formulas: mondays behave differently after weekend reporting lags, weekend
// counts differ from the working week, and the rest of the week is the
// reference level.
type WeekdayCategory string

const (
	RestOfWeek WeekdayCategory = "rest_of_week"
	Monday     WeekdayCategory = "monday"
	Weekend    WeekdayCategory = "weekend"
)

// Calendar makes the weekday mapping explicit instead of relying on ambient
// locale. WeekendDays defaults to Saturday/Sunday; regions with a Friday
// weekend can override it.
type Calendar struct {
	WeekendDays []time.Weekday
}

// DefaultCalendar is the Saturday/Sunday weekend used by the UK NHS pathways
// data the engine was built around.
func DefaultCalendar() Calendar {
	return Calendar{WeekendDays: []time.Weekday{time.Saturday, time.Sunday}}
}

// Categorize maps a date to its weekday category. Pure function of the date
// and the calendar.
func (c Calendar) Categorize(t time.Time) WeekdayCategory {
	wd := t.Weekday()
	for _, w := range c.WeekendDays {
		if wd == w {
			return Weekend
		}
	}
	if wd == time.Monday {
		return Monday
	}
	return RestOfWeek
}

// Order gives the fixed factor ordering (monday < rest_of_week < weekend is
// not used; the reference level sorts first for stable design matrices).
func (w WeekdayCategory) Order() int {
	switch w {
	case RestOfWeek:
		return 0
	case Monday:
		return 1
	case Weekend:
		return 2
	default:
		return 3
	}
}
