// Package sim provides an in-process simulated irrigation sink and flow
// meter, used for development runs and tests. Programmed steps count down in
// wall-clock time (scaled by Minute) and the flow counter integrates a fixed
// flow rate while any zone is open.
package sim

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/gardend/gardend/internal/hardware"
)

// Device simulates both the sink and the flow meter of one irrigation line.
type Device struct {
	mu sync.Mutex

	// Minute is the simulated length of one programmed minute. Tests shrink
	// it to fast-forward cycles.
	minute   time.Duration
	flowLMin float64

	steps     []hardware.ZoneProgram
	startedAt time.Time
	totalMin  float64 // completed watering minutes folded into the counter
	err       error
}

// New creates an idle device watering at the given flow rate.
func New(flowLitersPerMinute float64) *Device {
	return &Device{minute: time.Minute, flowLMin: flowLitersPerMinute}
}

// NewScaled creates a device whose programmed minutes last the given
// duration instead of a real minute.
func NewScaled(flowLitersPerMinute float64, minute time.Duration) *Device {
	return &Device{minute: minute, flowLMin: flowLitersPerMinute}
}

// SetError makes every ReadState call fail with err until cleared with nil.
func (d *Device) SetError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

// ReadState implements hardware.Sink.
func (d *Device) ReadState(ctx context.Context) (*hardware.State, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.err != nil {
		return nil, d.err
	}

	d.settleLocked(time.Now())
	if d.steps == nil {
		return &hardware.State{Available: true}, nil
	}

	elapsed := time.Since(d.startedAt)
	remaining := make([]hardware.ZoneProgram, len(d.steps))
	for i, step := range d.steps {
		stepDur := time.Duration(step.Minutes) * d.minute
		rem := stepDur - elapsed
		if rem < 0 {
			rem = 0
		}
		elapsed -= stepDur - rem
		remaining[i] = hardware.ZoneProgram{
			ZoneMask: step.ZoneMask,
			Minutes:  int(math.Ceil(float64(rem) / float64(d.minute))),
		}
	}
	return &hardware.State{Available: false, Remaining: remaining}, nil
}

// ProgramZones implements hardware.Sink.
func (d *Device) ProgramZones(ctx context.Context, steps []hardware.ZoneProgram) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.err != nil {
		return d.err
	}

	d.settleLocked(time.Now())
	d.steps = steps
	d.startedAt = time.Now()
	return nil
}

// Reset implements hardware.Sink.
func (d *Device) Reset(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	activeMin, _ := d.activeMinutesLocked(time.Now())
	d.totalMin += activeMin
	d.steps = nil
}

// ReadTotal implements hardware.FlowMeter.
func (d *Device) ReadTotal(ctx context.Context) *hardware.FlowSample {
	d.mu.Lock()
	defer d.mu.Unlock()

	activeMin, flowing := d.activeMinutesLocked(time.Now())
	// The real meter reports a pulse train; simulate its frequency and run
	// it through the same conversion the driver would.
	freq := 0.0
	if flowing {
		freq = d.flowLMin * hardware.FlowTicksPerLMin
	}
	return &hardware.FlowSample{
		TotalCubicMeters:    (d.totalMin + activeMin) * d.flowLMin / 1000.0,
		FlowLitersPerMinute: hardware.FlowFromFrequency(freq),
	}
}

// settleLocked folds finished or aborted watering time into the counter.
func (d *Device) settleLocked(now time.Time) {
	activeMin, flowing := d.activeMinutesLocked(now)
	if d.steps != nil && !flowing {
		d.totalMin += activeMin
		d.steps = nil
	}
}

// activeMinutesLocked returns the simulated minutes watered by the current
// program so far and whether water still flows.
func (d *Device) activeMinutesLocked(now time.Time) (float64, bool) {
	if d.steps == nil {
		return 0, false
	}
	var programmed time.Duration
	for _, step := range d.steps {
		programmed += time.Duration(step.Minutes) * d.minute
	}
	elapsed := now.Sub(d.startedAt)
	if elapsed >= programmed {
		return float64(programmed) / float64(d.minute), false
	}
	return float64(elapsed) / float64(d.minute), true
}
