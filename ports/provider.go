package ports

import (
	"context"

	"github.com/thibautjombart/epichange/domain/timeseries"
)

// DatasetProvider supplies one daily count series per group. The provider
// owns the tidy-data guarantees: one row per day per group, day derivable
// from date, gaps filled or deliberately left (the core never interpolates
// missing days).
type DatasetProvider interface {
	// Load returns the series keyed by group. Ungrouped data comes back
	// under a single empty-string key.
	Load(ctx context.Context) (map[string]timeseries.TimeSeries, error)
}
