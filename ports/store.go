package ports

import (
	"context"

	"github.com/thibautjombart/epichange/domain/core"
	"github.com/thibautjombart/epichange/domain/detect"
)

// ResultStore persists finished detections for later inspection.
type ResultStore interface {
	// Save stores one group's detection under a batch identifier.
	Save(ctx context.Context, batchID core.ID, det *detect.Detection) error

	// ListByBatch returns the stored results for one batch, any order.
	ListByBatch(ctx context.Context, batchID core.ID) ([]*detect.Result, error)
}
