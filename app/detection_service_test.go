package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thibautjombart/epichange/domain/core"
	"github.com/thibautjombart/epichange/domain/detect"
	"github.com/thibautjombart/epichange/domain/timeseries"
	"github.com/thibautjombart/epichange/internal/testkit"
)

type recordingSink struct {
	writes int
	fail   bool
}

func (r *recordingSink) Write(ctx context.Context, det *detect.Detection) error {
	r.writes++
	if r.fail {
		return errors.New("sink unavailable")
	}
	return nil
}

type recordingStore struct {
	saved []*detect.Detection
}

func (r *recordingStore) Save(ctx context.Context, batchID core.ID, det *detect.Detection) error {
	r.saved = append(r.saved, det)
	return nil
}

func (r *recordingStore) ListByBatch(ctx context.Context, batchID core.ID) ([]*detect.Result, error) {
	out := make([]*detect.Result, 0, len(r.saved))
	for _, det := range r.saved {
		out = append(out, det.Best)
	}
	return out, nil
}

func TestRunBatch_PartialResults(t *testing.T) {
	start := time.Date(2020, 3, 2, 0, 0, 0, 0, time.UTC)
	gen := testkit.NewSeriesGenerator(21)

	healthy := gen.ConstantPoisson(30, 45, start)
	healthy.Group = "north"
	short := gen.ConstantPoisson(3, 45, start)
	short.Group = "south"

	store := &recordingStore{}
	sink := &recordingSink{}
	svc := NewDetectionService(store, sink)

	batch, err := svc.RunBatch(context.Background(), map[string]timeseries.TimeSeries{
		"north": healthy,
		"south": short,
	}, detect.DefaultOptions())
	require.NoError(t, err)

	// Every group lands on exactly one side of the partial-results contract.
	require.Len(t, batch.Detections, 1)
	require.Len(t, batch.Failures, 1)
	assert.Contains(t, batch.Detections, "north")
	assert.Equal(t, "south", batch.Failures[0].Group)
	assert.True(t, core.IsInsufficientData(batch.Failures[0].Err))
	assert.NotEmpty(t, batch.Failures[0].Cause)

	// Only successful detections are delivered.
	assert.Len(t, store.saved, 1)
	assert.Equal(t, 1, sink.writes)
}

func TestRunBatch_SinkFailureIsNotFatal(t *testing.T) {
	start := time.Date(2020, 3, 2, 0, 0, 0, 0, time.UTC)
	ts := testkit.NewSeriesGenerator(23).ConstantPoisson(30, 40, start)
	ts.Group = "east"

	svc := NewDetectionService(nil, &recordingSink{fail: true})
	batch, err := svc.RunBatch(context.Background(), map[string]timeseries.TimeSeries{"east": ts}, detect.DefaultOptions())
	require.NoError(t, err)
	assert.Len(t, batch.Detections, 1)
	assert.Empty(t, batch.Failures)
}

func TestRun_SingleSeries(t *testing.T) {
	start := time.Date(2020, 3, 2, 0, 0, 0, 0, time.UTC)
	ts := testkit.NewSeriesGenerator(25).ChangePoint(22, 6, 40, 0.3, start)

	store := &recordingStore{}
	svc := NewDetectionService(store)

	det, err := svc.Run(context.Background(), ts, detect.DefaultOptions())
	require.NoError(t, err)
	require.NotNil(t, det.Best)
	assert.Len(t, store.saved, 1)
}

func TestRunBatch_EmptyInput(t *testing.T) {
	svc := NewDetectionService(nil)
	batch, err := svc.RunBatch(context.Background(), nil, detect.DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, batch.Detections)
	assert.Empty(t, batch.Failures)
	assert.NotEmpty(t, batch.BatchID)
}
