// Package schedule implements the watering cycle scheduler: a pure
// recurrence engine computing the next trigger instant of each cycle, plus a
// timer layer that fires triggers at wall-clock time. Long horizons are
// covered by re-arming short-lived timers once per 6-hour refresh window, so
// daylight-saving shifts are absorbed within at most one window.
package schedule

import (
	"iter"
	"math"
	"slices"
	"time"

	"github.com/gardend/gardend/internal/program"
)

// NextTick returns the next trigger instant of a single cycle at or after
// now. The cycle must have passed program validation.
func NextTick(c program.Cycle, now time.Time) time.Time {
	if c.Start != nil && now.Before(*c.Start) {
		now = *c.Start
	}

	if c.WeekDays != nil {
		nextDate := dayStart(now)
		if timeOfDay(now) >= c.StartTime.Duration() {
			nextDate = nextDate.AddDate(0, 0, 1)
		}
		return atTime(nextWeekday(c.WeekDays, nextDate), c.StartTime.Duration())
	}

	return nextPeriodicDay(c.DayPeriod, now, *c.Start, c.StartTime.Duration())
}

// nextPeriodicDay projects now onto the periodic grid anchored at the start
// date plus start time, and returns the first grid point not in the past.
// Elapsed days are counted in calendar days, so a DST shift never moves a
// grid point off its wall-clock day.
func nextPeriodicDay(dayPeriod int, now, start time.Time, startTime time.Duration) time.Time {
	anchorDay := dayStart(start)
	if timeOfDay(start) > startTime {
		anchorDay = anchorDay.AddDate(0, 0, 1)
	}

	candidate := dayStart(now)
	if timeOfDay(now) >= startTime {
		candidate = candidate.AddDate(0, 0, 1)
	}

	elapsed := calendarDays(anchorDay, candidate)
	missing := (dayPeriod - elapsed%dayPeriod) % dayPeriod
	return atTime(candidate.AddDate(0, 0, missing), startTime)
}

// calendarDays counts the wall-clock days from day-start a to day-start b.
// Rounding absorbs the one-hour offsets DST transitions introduce.
func calendarDays(a, b time.Time) int {
	return int(math.Round(b.Sub(a).Hours() / 24))
}

// nextWeekday advances date forward until its weekday is in the set, at most
// 6 days.
func nextWeekday(weekDays []time.Weekday, date time.Time) time.Time {
	for i := 0; i < 7; i++ {
		if slices.Contains(weekDays, date.Weekday()) {
			break
		}
		date = date.AddDate(0, 0, 1)
	}
	return date
}

// NextCycles returns the lazy merged trigger sequence of all active cycles of
// the program, ordered by non-decreasing instant. Ties go to the cycle
// declared first. The sequence is infinite while active cycles exist and can
// be restarted by calling NextCycles again.
func NextCycles(p program.Program, now time.Time) iter.Seq2[program.Cycle, time.Time] {
	return func(yield func(program.Cycle, time.Time) bool) {
		var active []program.Cycle
		for _, c := range p.Cycles {
			if !c.Disabled {
				active = append(active, c)
			}
		}
		if len(active) == 0 {
			return
		}

		cursors := make([]time.Time, len(active))
		for i, c := range active {
			cursors[i] = NextTick(c, now)
		}

		for {
			closest := 0
			for i := 1; i < len(cursors); i++ {
				if cursors[i].Before(cursors[closest]) {
					closest = i
				}
			}
			if !yield(active[closest], cursors[closest]) {
				return
			}
			// Strict advance so the same instant never re-fires. A cycle
			// whose cursor fails to advance would spin the merge forever, so
			// it is dropped from the stream instead.
			next := NextTick(active[closest], cursors[closest].Add(time.Second))
			if !next.After(cursors[closest]) {
				active = slices.Delete(active, closest, closest+1)
				cursors = slices.Delete(cursors, closest, closest+1)
				if len(active) == 0 {
					return
				}
				continue
			}
			cursors[closest] = next
		}
	}
}

func dayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// atTime places a wall-clock time of day onto the given day. Composing via
// time.Date keeps the hour stable across DST transitions, where adding an
// absolute duration to midnight would drift by the shift.
func atTime(day time.Time, tod time.Duration) time.Time {
	y, m, d := day.Date()
	h := int(tod / time.Hour)
	min := int(tod % time.Hour / time.Minute)
	sec := int(tod % time.Minute / time.Second)
	return time.Date(y, m, d, h, min, sec, 0, day.Location())
}

// timeOfDay reads the wall clock, not the duration since midnight, so the
// comparison against a cycle's start time holds on DST transition days too.
func timeOfDay(t time.Time) time.Duration {
	h, min, sec := t.Clock()
	return time.Duration(h)*time.Hour + time.Duration(min)*time.Minute + time.Duration(sec)*time.Second
}
