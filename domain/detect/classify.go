package detect

import (
	"github.com/thibautjombart/epichange/domain/model"
	"github.com/thibautjombart/epichange/domain/timeseries"
)

// Classification tags a row against the fitted trend. The ordering
// increase < normal < decrease is fixed so downstream renderers get a stable
// legend.
type Classification string

const (
	Increase Classification = "increase"
	Normal   Classification = "normal"
	Decrease Classification = "decrease"
)

// Order returns the fixed factor position of the classification.
func (c Classification) Order() int {
	switch c {
	case Increase:
		return 0
	case Normal:
		return 1
	case Decrease:
		return 2
	default:
		return 3
	}
}

// Segment marks whether a row was inside the fitting window.
type Segment string

const (
	SegmentTrain Segment = "train"
	SegmentTest  Segment = "test"
)

// DiagnosticRow is one classified observation: the original fields, the
// predictive bounds, the verdict and which side of the split the row sat on.
type DiagnosticRow struct {
	timeseries.Observation
	Lower          float64        `json:"lower"`
	Upper          float64        `json:"upper"`
	Outlier        bool           `json:"outlier"`
	Classification Classification `json:"classification"`
	Segment        Segment        `json:"segment"`
}

// Classify tags every row of the series against one fitted model at level
// 1-alpha. Train and held-out rows go through the same decision boundary so
// the classification is consistent across the split. Each row's decision is
// independent of every other row.
func Classify(fitted model.Fitted, ts timeseries.TimeSeries, trainLen int, alpha float64) []DiagnosticRow {
	rows := make([]DiagnosticRow, len(ts.Obs))
	for i, o := range ts.Obs {
		lower, upper := fitted.PredictionInterval(o, alpha)

		class := Normal
		switch {
		case float64(o.Count) < lower:
			class = Decrease
		case float64(o.Count) > upper:
			class = Increase
		}

		seg := SegmentTrain
		if i >= trainLen {
			seg = SegmentTest
		}

		rows[i] = DiagnosticRow{
			Observation:    o,
			Lower:          lower,
			Upper:          upper,
			Outlier:        class != Normal,
			Classification: class,
			Segment:        seg,
		}
	}
	return rows
}
