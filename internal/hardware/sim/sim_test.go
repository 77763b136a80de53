package sim

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gardend/gardend/internal/hardware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdleDevice(t *testing.T) {
	d := New(20)
	ctx := context.Background()

	state, err := d.ReadState(ctx)
	require.NoError(t, err)
	assert.True(t, state.Available)

	sample := d.ReadTotal(ctx)
	require.NotNil(t, sample)
	assert.Zero(t, sample.TotalCubicMeters)
	assert.Zero(t, sample.FlowLitersPerMinute)
}

func TestProgramRunsAndCompletes(t *testing.T) {
	d := NewScaled(20, 20*time.Millisecond)
	ctx := context.Background()

	err := d.ProgramZones(ctx, []hardware.ZoneProgram{
		{ZoneMask: 0x01, Minutes: 2},
		{ZoneMask: 0x02, Minutes: 1},
	})
	require.NoError(t, err)

	state, err := d.ReadState(ctx)
	require.NoError(t, err)
	assert.False(t, state.Available)
	require.Len(t, state.Remaining, 2)
	assert.Equal(t, byte(0x01), state.Remaining[0].ZoneMask)
	assert.Positive(t, state.Remaining[0].Minutes)

	sample := d.ReadTotal(ctx)
	assert.Equal(t, 20.0, sample.FlowLitersPerMinute)

	// 3 scaled minutes programmed
	time.Sleep(100 * time.Millisecond)

	state, err = d.ReadState(ctx)
	require.NoError(t, err)
	assert.True(t, state.Available)

	sample = d.ReadTotal(ctx)
	assert.Zero(t, sample.FlowLitersPerMinute)
	// 3 minutes at 20 L/min = 60 L = 0.060 m3
	assert.InDelta(t, 0.060, sample.TotalCubicMeters, 0.001)
}

func TestResetAborts(t *testing.T) {
	d := NewScaled(10, 50*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, d.ProgramZones(ctx, []hardware.ZoneProgram{{ZoneMask: 0x01, Minutes: 10}}))
	d.Reset(ctx)

	state, err := d.ReadState(ctx)
	require.NoError(t, err)
	assert.True(t, state.Available)
}

func TestSetError(t *testing.T) {
	d := New(20)
	ctx := context.Background()

	boom := errors.New("link down")
	d.SetError(boom)

	_, err := d.ReadState(ctx)
	assert.ErrorIs(t, err, boom)

	d.SetError(nil)
	_, err = d.ReadState(ctx)
	assert.NoError(t, err)
}
