package ports

import (
	"context"

	"github.com/thibautjombart/epichange/domain/detect"
)

// ResultSink receives one finished detection per series/group. The core's
// only obligation toward renderers is that detect.Detection stays a stable,
// serializable structure; sinks decide the format.
type ResultSink interface {
	Write(ctx context.Context, det *detect.Detection) error
}
