package app

import (
	"context"
	"log"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/thibautjombart/epichange/domain/core"
	"github.com/thibautjombart/epichange/domain/detect"
	"github.com/thibautjombart/epichange/domain/timeseries"
	"github.com/thibautjombart/epichange/ports"
)

// DetectionService runs the window-size optimizer over a batch of grouped
// series. Groups are fully independent: they fan out concurrently, no
// ordering is guaranteed between them, and one group's failure never aborts
// the batch.
type DetectionService struct {
	store ports.ResultStore // optional
	sinks []ports.ResultSink
	// maxConcurrent bounds the per-group fan-out; the per-window and
	// per-fold parallelism below it is bounded separately.
	maxConcurrent int64
}

// NewDetectionService creates a detection service. Store may be nil; sinks
// may be empty.
func NewDetectionService(store ports.ResultStore, sinks ...ports.ResultSink) *DetectionService {
	return &DetectionService{
		store:         store,
		sinks:         sinks,
		maxConcurrent: int64(runtime.NumCPU()),
	}
}

// GroupFailure records why one group produced no result.
type GroupFailure struct {
	Group string `json:"group"`
	Err   error  `json:"-"`
	Cause string `json:"cause"`
}

// BatchResult is the partial-results contract: every group appears either in
// Detections or in Failures, never both, never neither.
type BatchResult struct {
	BatchID    core.ID                      `json:"batch_id"`
	Detections map[string]*detect.Detection `json:"detections"`
	Failures   []GroupFailure               `json:"failures,omitempty"`
}

// RunBatch runs the optimizer once per group and aggregates the outcomes.
// Cancelling ctx stops between groups; finished groups keep their results.
func (s *DetectionService) RunBatch(ctx context.Context, series map[string]timeseries.TimeSeries, opts detect.Options) (*BatchResult, error) {
	batch := &BatchResult{
		BatchID:    core.NewID(),
		Detections: make(map[string]*detect.Detection, len(series)),
	}

	sem := semaphore.NewWeighted(s.maxConcurrent)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for group, ts := range series {
		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			batch.Failures = append(batch.Failures, GroupFailure{Group: group, Err: err, Cause: err.Error()})
			mu.Unlock()
			continue
		}
		wg.Add(1)
		go func(group string, ts timeseries.TimeSeries) {
			defer wg.Done()
			defer sem.Release(1)

			det, err := detect.Optimize(ctx, ts, opts)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Printf("[detection] group %q failed: %v", group, err)
				batch.Failures = append(batch.Failures, GroupFailure{Group: group, Err: err, Cause: err.Error()})
				return
			}
			batch.Detections[group] = det
		}(group, ts)
	}
	wg.Wait()

	sort.Slice(batch.Failures, func(i, j int) bool { return batch.Failures[i].Group < batch.Failures[j].Group })

	s.deliver(ctx, batch)
	return batch, ctx.Err()
}

// Run handles the single-series case.
func (s *DetectionService) Run(ctx context.Context, ts timeseries.TimeSeries, opts detect.Options) (*detect.Detection, error) {
	det, err := detect.Optimize(ctx, ts, opts)
	if err != nil {
		return nil, err
	}
	if s.store != nil {
		if serr := s.store.Save(ctx, core.NewID(), det); serr != nil {
			log.Printf("[detection] result store save failed: %v", serr)
		}
	}
	for _, sink := range s.sinks {
		if werr := sink.Write(ctx, det); werr != nil {
			log.Printf("[detection] sink write failed: %v", werr)
		}
	}
	return det, nil
}

// deliver pushes every successful detection to the store and sinks. Delivery
// problems are logged, not fatal: the caller still gets the batch.
func (s *DetectionService) deliver(ctx context.Context, batch *BatchResult) {
	for group, det := range batch.Detections {
		if s.store != nil {
			if err := s.store.Save(ctx, batch.BatchID, det); err != nil {
				log.Printf("[detection] store save for group %q failed: %v", group, err)
			}
		}
		for _, sink := range s.sinks {
			if err := sink.Write(ctx, det); err != nil {
				log.Printf("[detection] sink write for group %q failed: %v", group, err)
			}
		}
	}
}
