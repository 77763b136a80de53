package garden

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gardend/gardend/internal/csvlog"
	"github.com/gardend/gardend/internal/hardware"
	"github.com/gardend/gardend/internal/logger"
	"github.com/gardend/gardend/internal/program"
)

// fakeFlow replays flow samples in order, repeating the last one.
type fakeFlow struct {
	samples []hardware.FlowSample
	idx     int
}

func (f *fakeFlow) ReadTotal(ctx context.Context) *hardware.FlowSample {
	if len(f.samples) == 0 {
		return nil
	}
	s := f.samples[f.idx]
	if f.idx < len(f.samples)-1 {
		f.idx++
	}
	return &s
}

func newTestRunLog(t *testing.T) *csvlog.Log {
	t.Helper()
	l, err := csvlog.Open(filepath.Join(t.TempDir(), "garden.csv"))
	require.NoError(t, err)
	return l
}

func TestRunLitersFromBaseline(t *testing.T) {
	log, err := logger.New(logger.Config{Level: "error", Output: "stderr"})
	require.NoError(t, err)

	// 10.000 m3 at start, 10.005 m3 at the end: 5 liters.
	flow := &fakeFlow{samples: []hardware.FlowSample{
		{TotalCubicMeters: 10.000, FlowLitersPerMinute: 0},
		{TotalCubicMeters: 10.005, FlowLitersPerMinute: 0},
	}}
	req := Request{Name: "morning", Steps: []program.ZoneStep{{Zones: []int{0}, Minutes: 10}}}
	tracker := newRunTracker(log, flow, newTestRunLog(t), req)

	start := time.Date(2024, 1, 2, 6, 0, 0, 0, time.UTC)
	tracker.start(context.Background(), start)
	summary := tracker.stop(context.Background(), start.Add(10*time.Minute))

	assert.InDelta(t, 5.0, summary.Liters, 0.001)
	assert.Equal(t, 10, summary.Minutes)
	require.Len(t, summary.Results, 1)
	assert.Equal(t, 5, summary.Results[0].QuantityL)
	assert.Equal(t, 10, summary.Results[0].Minutes)
}

func TestRunWithoutFlowMeter(t *testing.T) {
	log, err := logger.New(logger.Config{Level: "error", Output: "stderr"})
	require.NoError(t, err)

	req := Request{Name: "morning", Steps: []program.ZoneStep{{Zones: []int{1}, Minutes: 5}}}
	tracker := newRunTracker(log, nil, newTestRunLog(t), req)

	start := time.Date(2024, 1, 2, 6, 0, 0, 0, time.UTC)
	tracker.start(context.Background(), start)
	summary := tracker.stop(context.Background(), start.Add(5*time.Minute))

	assert.Zero(t, summary.Liters)
	assert.Equal(t, 5, summary.Minutes)
	require.Len(t, summary.Results, 1)
	assert.Zero(t, summary.Results[0].QuantityL)
}

func TestPerStepResults(t *testing.T) {
	log, err := logger.New(logger.Config{Level: "error", Output: "stderr"})
	require.NoError(t, err)

	flow := &fakeFlow{samples: []hardware.FlowSample{
		{TotalCubicMeters: 20.000},
		{TotalCubicMeters: 20.040, FlowLitersPerMinute: 4},
		{TotalCubicMeters: 20.060},
	}}
	req := Request{Name: "full", Steps: []program.ZoneStep{
		{Zones: []int{0, 1}, Minutes: 10},
		{Zones: []int{2}, Minutes: 5},
	}}
	tracker := newRunTracker(log, flow, newTestRunLog(t), req)

	start := time.Date(2024, 1, 2, 6, 0, 0, 0, time.UTC)
	tracker.start(context.Background(), start)

	// First step exhausted, second running: the flowing sample folds step 1.
	tracker.step(context.Background(), start.Add(10*time.Minute), &hardware.State{
		Remaining: []hardware.ZoneProgram{
			{ZoneMask: 0x03, Minutes: 0},
			{ZoneMask: 0x04, Minutes: 5},
		},
	})
	summary := tracker.stop(context.Background(), start.Add(15*time.Minute))

	require.Len(t, summary.Results, 2)
	assert.Equal(t, []int{0, 1}, summary.Results[0].Zones)
	assert.Equal(t, 10, summary.Results[0].Minutes)
	assert.Equal(t, 40, summary.Results[0].QuantityL)
	assert.Equal(t, []int{2}, summary.Results[1].Zones)
	assert.Equal(t, 5, summary.Results[1].Minutes)
	assert.Equal(t, 20, summary.Results[1].QuantityL)
	assert.InDelta(t, 60.0, summary.Liters, 0.001)
}

func TestRunLogRows(t *testing.T) {
	log, err := logger.New(logger.Config{Level: "error", Output: "stderr"})
	require.NoError(t, err)

	runLog := newTestRunLog(t)
	flow := &fakeFlow{samples: []hardware.FlowSample{
		{TotalCubicMeters: 5.000},
		{TotalCubicMeters: 5.010, FlowLitersPerMinute: 10},
		{TotalCubicMeters: 5.020},
	}}
	req := Request{Name: "morning", Steps: []program.ZoneStep{{Zones: []int{0, 2}, Minutes: 2}}}
	tracker := newRunTracker(log, flow, runLog, req)

	start := time.Date(2024, 1, 2, 6, 0, 0, 0, time.UTC)
	tracker.start(context.Background(), start)
	tracker.step(context.Background(), start.Add(time.Minute), &hardware.State{
		Remaining: []hardware.ZoneProgram{{ZoneMask: 0x05, Minutes: 1}},
	})
	tracker.stop(context.Background(), start.Add(2*time.Minute))

	rows, err := runLog.ReadDay(start)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, csvlog.StateStarted, rows[0].State)
	assert.Equal(t, "0x05=2", rows[0].Zones)
	assert.Equal(t, csvlog.StateFlowing, rows[1].State)
	assert.Equal(t, "0x05=1", rows[1].Zones)
	assert.InDelta(t, 10.0, rows[1].QtyL, 0.001)
	assert.InDelta(t, 10.0, rows[1].FlowLMin, 0.001)
	assert.Equal(t, csvlog.StateStopped, rows[2].State)
	assert.InDelta(t, 20.0, rows[2].QtyL, 0.001)
	assert.InDelta(t, 5.020, rows[2].TotalQtyMc, 0.0001)
}

func TestProgrammedZonesSkipsEmptySteps(t *testing.T) {
	steps := []program.ZoneStep{
		{Zones: []int{0}, Minutes: 3},
		{Zones: []int{1}, Minutes: 0},
		{Zones: []int{2, 3}, Minutes: 7},
	}
	assert.Equal(t, "0x01=3;0x0C=7", programmedZones(steps))
}
