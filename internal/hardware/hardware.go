// Package hardware defines the collaborator contracts the orchestrator polls:
// the irrigation sink (the zone valve programmer) and the water flow meter.
// The wire protocol behind an implementation is out of scope here.
package hardware

import "context"

// ZoneProgram is one programming step: a zone bitmask opened for a number of
// minutes. In a state read it carries remaining minutes instead.
type ZoneProgram struct {
	ZoneMask byte
	Minutes  int
}

// State is a sink status sample.
type State struct {
	// Available reports an idle device, ready for a new program.
	Available bool
	// Remaining holds the per-step remaining times while a program runs.
	Remaining []ZoneProgram
}

// FlowSample is one flow meter reading.
type FlowSample struct {
	// TotalCubicMeters is the lifetime water counter.
	TotalCubicMeters float64
	// FlowLitersPerMinute is the instantaneous flow.
	FlowLitersPerMinute float64
}

// Sink is the irrigation line programmer.
type Sink interface {
	// ReadState polls the device. An error means the device could not be
	// contacted; the caller retries on the next poll tick.
	ReadState(ctx context.Context) (*State, error)
	// ProgramZones loads a step list and starts the cycle.
	ProgramZones(ctx context.Context, steps []ZoneProgram) error
	// Reset aborts whatever the device is doing.
	Reset(ctx context.Context)
}

// FlowMeter reads the shared water counter. A nil sample means the meter is
// unavailable; runs then skip usage accounting.
type FlowMeter interface {
	ReadTotal(ctx context.Context) *FlowSample
}

// FlowTicksPerLMin is the flow meter's pulse rate: 5.5 ticks per second for
// each liter per minute of flow.
const FlowTicksPerLMin = 5.5

// FlowFromFrequency converts a pulse frequency in Hz to liters per minute.
func FlowFromFrequency(hz float64) float64 {
	return hz / FlowTicksPerLMin
}
