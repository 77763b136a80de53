// Package program models the irrigation program document: the list of
// recurring watering cycles, the zone display names and the JSON wire shape
// used by the persisted configuration file.
package program

import (
	"encoding/json"
	"fmt"
	"time"
)

// DayTime is a time of day within [0, 24h], serialized as "HH:MM:SS".
type DayTime time.Duration

// Day is one full day.
const Day = DayTime(24 * time.Hour)

// Duration converts the time of day to a time.Duration.
func (d DayTime) Duration() time.Duration {
	return time.Duration(d)
}

func (d DayTime) String() string {
	v := time.Duration(d)
	return fmt.Sprintf("%02d:%02d:%02d", int(v.Hours()), int(v.Minutes())%60, int(v.Seconds())%60)
}

// MarshalJSON implements json.Marshaler.
func (d DayTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON implements json.Unmarshaler. Both "HH:MM" and "HH:MM:SS"
// forms are accepted.
func (d *DayTime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDayTime(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseDayTime parses "HH:MM" or "HH:MM:SS" into a DayTime.
func ParseDayTime(s string) (DayTime, error) {
	var h, m, sec int
	if _, err := fmt.Sscanf(s, "%d:%d:%d", &h, &m, &sec); err != nil {
		sec = 0
		if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
			return 0, fmt.Errorf("invalid time of day %q", s)
		}
	}
	if h < 0 || m < 0 || m > 59 || sec < 0 || sec > 59 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	return DayTime(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec)*time.Second), nil
}

// Cycle is one named recurring watering rule. Exactly one of DayPeriod > 0 or
// WeekDays non-empty must be set; a periodic cycle also needs a start date.
type Cycle struct {
	Name string `json:"name"`

	// Disabled cycles never run nor appear in the upcoming list.
	Disabled bool `json:"disabled,omitempty"`

	// Suspended cycles keep firing on schedule, but the effect is a
	// reminder notification instead of an actual run.
	Suspended bool `json:"suspended,omitempty"`

	// Start anchors periodic cycles and delays the first trigger.
	Start *time.Time `json:"start,omitempty"`

	// DayPeriod, when > 0, repeats the cycle every N days from Start.
	DayPeriod int `json:"dayPeriod,omitempty"`

	// WeekDays, when non-empty, lists the days of activity (0 = Sunday).
	WeekDays []time.Weekday `json:"weekDays,omitempty"`

	// StartTime is the time of day the cycle triggers.
	StartTime DayTime `json:"startTime"`

	Zones   []int `json:"zones"`
	Minutes int   `json:"minutes"`
}

// ZoneStep is one hardware programming step: a set of zones opened together
// for a number of minutes.
type ZoneStep struct {
	Zones   []int `json:"zones"`
	Minutes int   `json:"minutes"`
}

// Steps returns the hardware step list for the cycle. A scheduled cycle maps
// to a single step.
func (c Cycle) Steps() []ZoneStep {
	return []ZoneStep{{Zones: c.Zones, Minutes: c.Minutes}}
}

// ZoneMask packs zone indexes into the hardware bitmask.
func ZoneMask(zones []int) byte {
	var mask byte
	for _, zone := range zones {
		mask |= 1 << zone
	}
	return mask
}

// Program is the ordered list of cycles. Order is display identity only.
type Program struct {
	Cycles []Cycle `json:"cycles"`
}

// ZoneResult is the per-step outcome of a finished run: how long the zones
// actually ran and how much water they took.
type ZoneResult struct {
	Zones     []int
	Minutes   int
	QuantityL int
}
