package program

import (
	"fmt"
	"time"
)

// Validate checks every cycle of the program. On any violation the whole
// program is rejected so the previously active one stays in force.
// Empty week day lists are normalized to nil.
func (p *Program) Validate() error {
	for i := range p.Cycles {
		c := &p.Cycles[i]
		if c.WeekDays != nil && len(c.WeekDays) == 0 {
			c.WeekDays = nil
		}
		if c.DayPeriod > 0 && c.WeekDays != nil {
			return fmt.Errorf("cycle %d: both day period and week days specified", i)
		}
		if c.DayPeriod <= 0 && c.WeekDays == nil {
			return fmt.Errorf("cycle %d: no day period nor week days specified", i)
		}
		if c.DayPeriod > 0 && c.Start == nil {
			return fmt.Errorf("cycle %d: no start date for periodic cycle", i)
		}
		if c.StartTime < 0 || c.StartTime.Duration() > 24*time.Hour {
			return fmt.Errorf("cycle %d: invalid start time", i)
		}
		for _, d := range c.WeekDays {
			if d < time.Sunday || d > time.Saturday {
				return fmt.Errorf("cycle %d: invalid week day %d", i, d)
			}
		}
	}
	return nil
}
