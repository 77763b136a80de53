package garden

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/gardend/gardend/internal/csvlog"
	"github.com/gardend/gardend/internal/hardware"
	"github.com/gardend/gardend/internal/logger"
	"github.com/gardend/gardend/internal/program"
)

// trackerState is the run tracker lifecycle. Transitions are driven only by
// the orchestrator loop.
type trackerState int

const (
	trackerNotOwned trackerState = iota
	trackerStarted
	trackerFlowing
	trackerFinalized
)

// RunSummary is the finalized accounting of one run.
type RunSummary struct {
	Name    string
	Liters  float64
	Minutes int
	Results []program.ZoneResult
}

// runTracker owns the bookkeeping of exactly one in-progress run: flow meter
// baseline, CSV rows and per-step results.
type runTracker struct {
	logger *logger.Logger
	flow   hardware.FlowMeter
	runLog *csvlog.Log
	req    Request

	state       trackerState
	startedAt   time.Time
	baseline    float64
	hasBaseline bool
	data        csvlog.Record

	// per-step accounting
	partialQty  float64
	partialTime time.Time
	results     []*program.ZoneResult
}

func newRunTracker(log *logger.Logger, flow hardware.FlowMeter, runLog *csvlog.Log, req Request) *runTracker {
	return &runTracker{logger: log, flow: flow, runLog: runLog, req: req}
}

// start captures the flow baseline and writes the Started row.
func (t *runTracker) start(ctx context.Context, now time.Time) {
	t.logger.Info("cycle start", logger.Field{Key: "name", Value: t.req.Name})

	t.state = trackerStarted
	t.startedAt = now
	t.partialTime = now
	t.data = csvlog.Record{
		Timestamp: now,
		Cycle:     t.req.Name,
		Zones:     programmedZones(t.req.Steps),
		State:     csvlog.StateStarted,
	}

	if t.flow != nil {
		if sample := t.flow.ReadTotal(ctx); sample != nil {
			t.baseline = sample.TotalCubicMeters
			t.hasBaseline = true
			t.data.TotalQtyMc = sample.TotalCubicMeters
		}
	}

	if err := t.runLog.Append(t.data); err != nil {
		t.logger.Error("failed to append run log row", err)
	}
}

// step records periodic usage while water flows and folds finished steps
// into the per-step results.
func (t *runTracker) step(ctx context.Context, now time.Time, state *hardware.State) {
	t.state = trackerFlowing

	// Leading exhausted steps tell which step is currently operating; it can
	// be one past the end when everything ran out.
	current := len(state.Remaining)
	for i, rem := range state.Remaining {
		if rem.Minutes > 0 {
			current = i
			break
		}
	}

	currentQty := -1.0
	if t.hasBaseline && t.flow != nil {
		if sample := t.flow.ReadTotal(ctx); sample != nil {
			currentQty = (sample.TotalCubicMeters - t.baseline) * 1000.0
			t.data.Timestamp = now
			t.data.State = csvlog.StateFlowing
			t.data.QtyL = currentQty
			t.data.TotalQtyMc = sample.TotalCubicMeters
			t.data.FlowLMin = sample.FlowLitersPerMinute
			t.data.Zones = remainingZones(state.Remaining)
			if err := t.runLog.Append(t.data); err != nil {
				t.logger.Error("failed to append run log row", err)
			}
		}
	}

	t.foldResults(now, current, currentQty)
}

// stop finalizes the accounting: a last usage reading, the Stopped row and
// the summary for the notification coalescer.
func (t *runTracker) stop(ctx context.Context, now time.Time) RunSummary {
	t.logger.Info("cycle end", logger.Field{Key: "name", Value: t.req.Name})

	currentQty := -1.0
	if t.hasBaseline && t.flow != nil {
		if sample := t.flow.ReadTotal(ctx); sample != nil {
			currentQty = (sample.TotalCubicMeters - t.baseline) * 1000.0
			t.data.QtyL = currentQty
			t.data.TotalQtyMc = sample.TotalCubicMeters
			t.data.FlowLMin = sample.FlowLitersPerMinute
		}
	}

	t.data.Timestamp = now
	t.data.State = csvlog.StateStopped
	if err := t.runLog.Append(t.data); err != nil {
		t.logger.Error("failed to append run log row", err)
	}

	// Steps the device finished right before going idle never saw a flowing
	// poll; fold them now.
	t.foldResults(now, len(t.req.Steps), currentQty)
	t.state = trackerFinalized

	summary := RunSummary{
		Name:    t.req.Name,
		Liters:  math.Max(t.data.QtyL, 0),
		Minutes: int(now.Sub(t.startedAt).Minutes()),
	}
	for _, r := range t.results {
		if r != nil {
			summary.Results = append(summary.Results, *r)
		}
	}
	return summary
}

// foldResults appends results for every step that finished since the last
// call. currentQty is the cumulative run quantity, or negative when unknown.
func (t *runTracker) foldResults(now time.Time, current int, currentQty float64) {
	qty := currentQty
	if qty > 0 {
		qty -= t.partialQty
	}

	for current > len(t.results) && len(t.results) < len(t.req.Steps) {
		step := t.req.Steps[len(t.results)]
		if step.Minutes > 0 {
			t.results = append(t.results, &program.ZoneResult{
				Zones:     step.Zones,
				Minutes:   int(now.Sub(t.partialTime).Minutes()),
				QuantityL: int(math.Round(math.Max(qty, 0))),
			})
		} else {
			// Step was not programmed
			t.results = append(t.results, nil)
		}
		if currentQty > 0 {
			t.partialQty = currentQty
		}
		t.partialTime = now
		// Only the first folded step gets the quantity delta.
		qty = 0
	}
}

// programmedZones renders the programmed steps as "0xMM=minutes" entries.
func programmedZones(steps []program.ZoneStep) string {
	var parts []string
	for _, s := range steps {
		if s.Minutes > 0 {
			parts = append(parts, zoneDetails(program.ZoneMask(s.Zones), s.Minutes))
		}
	}
	return strings.Join(parts, ";")
}

// remainingZones renders a hardware state's per-step remaining times.
func remainingZones(remaining []hardware.ZoneProgram) string {
	parts := make([]string, len(remaining))
	for i, r := range remaining {
		parts[i] = zoneDetails(r.ZoneMask, r.Minutes)
	}
	return strings.Join(parts, ";")
}

func zoneDetails(mask byte, minutes int) string {
	return fmt.Sprintf("0x%02X=%d", mask, minutes)
}
