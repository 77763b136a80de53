package schedule

import (
	"testing"
	"time"

	"github.com/gardend/gardend/internal/program"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.Local)
}

func TestNextTick_WeeklyNextWeek(t *testing.T) {
	c := program.Cycle{
		Name:      "lawn",
		WeekDays:  []time.Weekday{time.Monday},
		StartTime: program.DayTime(6 * time.Hour),
	}
	// 2024-01-02 is a Tuesday
	now := date(2024, time.January, 2, 10, 0)

	got := NextTick(c, now)
	assert.Equal(t, date(2024, time.January, 8, 6, 0), got)
	assert.Equal(t, time.Monday, got.Weekday())
}

func TestNextTick_WeeklySameDay(t *testing.T) {
	c := program.Cycle{
		WeekDays:  []time.Weekday{time.Monday},
		StartTime: program.DayTime(6 * time.Hour),
	}
	// Monday, before the start time: fires today
	now := date(2024, time.January, 1, 5, 0)
	assert.Equal(t, date(2024, time.January, 1, 6, 0), NextTick(c, now))

	// Monday, exactly at the start time: moves to next Monday
	now = date(2024, time.January, 1, 6, 0)
	assert.Equal(t, date(2024, time.January, 8, 6, 0), NextTick(c, now))
}

func TestNextTick_Periodic(t *testing.T) {
	start := date(2024, time.January, 1, 0, 0)
	c := program.Cycle{
		DayPeriod: 3,
		Start:     &start,
		StartTime: program.DayTime(7 * time.Hour),
	}
	now := date(2024, time.January, 1, 8, 0)

	assert.Equal(t, date(2024, time.January, 4, 7, 0), NextTick(c, now))
}

func TestNextTick_PeriodicBeforeStart(t *testing.T) {
	start := date(2024, time.June, 10, 0, 0)
	c := program.Cycle{
		DayPeriod: 2,
		Start:     &start,
		StartTime: program.DayTime(7 * time.Hour),
	}
	// Clamped to the start date: the first grid point is the start day itself.
	now := date(2024, time.June, 1, 12, 0)
	assert.Equal(t, date(2024, time.June, 10, 7, 0), NextTick(c, now))
}

func TestNextTick_PeriodicAnchorTimePastStartTime(t *testing.T) {
	// The anchor day starts after the cycle's time of day, so day zero moves
	// to the next day.
	start := date(2024, time.January, 1, 9, 30)
	c := program.Cycle{
		DayPeriod: 2,
		Start:     &start,
		StartTime: program.DayTime(7 * time.Hour),
	}
	assert.Equal(t, date(2024, time.January, 2, 7, 0), NextTick(c, start))
}

func TestNextTick_WeeklyStartDateClamp(t *testing.T) {
	start := date(2024, time.March, 1, 0, 0)
	c := program.Cycle{
		WeekDays:  []time.Weekday{time.Sunday},
		Start:     &start,
		StartTime: program.DayTime(6 * time.Hour),
	}
	now := date(2024, time.January, 1, 0, 0)
	got := NextTick(c, now)
	assert.Equal(t, date(2024, time.March, 3, 6, 0), got)
	assert.Equal(t, time.Sunday, got.Weekday())
}

func TestNextTick_PeriodicAcrossDSTShift(t *testing.T) {
	rome, err := time.LoadLocation("Europe/Rome")
	require.NoError(t, err)

	// Europe/Rome springs forward on 2024-03-31. Walking the grid with the
	// strict +1s advance must keep moving and keep the 07:00 wall time.
	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, rome)
	c := program.Cycle{
		DayPeriod: 3,
		Start:     &start,
		StartTime: program.DayTime(7 * time.Hour),
	}

	at := NextTick(c, start)
	for i := 0; i < 40; i++ {
		next := NextTick(c, at.Add(time.Second))
		require.True(t, next.After(at), "step %d: %v did not advance past %v", i, next, at)
		assert.Equal(t, 7, next.Hour(), "step %d: %v", i, next)
		assert.Zero(t, next.Minute())
		at = next
	}
	// The walk crossed the transition.
	assert.True(t, at.After(time.Date(2024, time.April, 2, 0, 0, 0, 0, rome)))
}

func TestNextCycles_MergeOrdering(t *testing.T) {
	early := program.Cycle{
		Name:      "early",
		WeekDays:  []time.Weekday{time.Monday},
		StartTime: program.DayTime(6 * time.Hour),
	}
	late := program.Cycle{
		Name:      "late",
		WeekDays:  []time.Weekday{time.Monday},
		StartTime: program.DayTime(8 * time.Hour),
	}
	p := program.Program{Cycles: []program.Cycle{late, early}}

	now := date(2024, time.January, 1, 0, 0) // Monday midnight

	type pair struct {
		name string
		at   time.Time
	}
	var got []pair
	for c, at := range NextCycles(p, now) {
		got = append(got, pair{c.Name, at})
		if len(got) == 4 {
			break
		}
	}

	require.Len(t, got, 4)
	assert.Equal(t, pair{"early", date(2024, time.January, 1, 6, 0)}, got[0])
	assert.Equal(t, pair{"late", date(2024, time.January, 1, 8, 0)}, got[1])
	// The early cycle re-enters only at its next instant, one week later.
	assert.Equal(t, pair{"early", date(2024, time.January, 8, 6, 0)}, got[2])
	assert.Equal(t, pair{"late", date(2024, time.January, 8, 8, 0)}, got[3])
}

func TestNextCycles_TieBreakDeclarationOrder(t *testing.T) {
	a := program.Cycle{Name: "a", WeekDays: []time.Weekday{time.Monday}, StartTime: program.DayTime(6 * time.Hour)}
	b := program.Cycle{Name: "b", WeekDays: []time.Weekday{time.Monday}, StartTime: program.DayTime(6 * time.Hour)}
	p := program.Program{Cycles: []program.Cycle{a, b}}

	now := date(2024, time.January, 1, 0, 0)

	var names []string
	for c := range NextCycles(p, now) {
		names = append(names, c.Name)
		if len(names) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"a", "b"}, names)
}

func TestNextCycles_SkipsDisabled(t *testing.T) {
	p := program.Program{Cycles: []program.Cycle{
		{Name: "off", Disabled: true, WeekDays: []time.Weekday{time.Monday}, StartTime: program.DayTime(6 * time.Hour)},
	}}
	count := 0
	for range NextCycles(p, date(2024, time.January, 1, 0, 0)) {
		count++
	}
	assert.Zero(t, count)
}

func TestNextCycles_EmptyProgram(t *testing.T) {
	count := 0
	for range NextCycles(program.Program{}, time.Now()) {
		count++
	}
	assert.Zero(t, count)
}
