package maintenance

import (
	"fmt"
	"time"
	_ "time/tzdata" // container images often ship without zoneinfo
)

// =============================================================================
// CLOCK - Wall time in the operator's zone
// =============================================================================

// DefaultTimezone is where the field teams work.
const DefaultTimezone = "America/Sao_Paulo"

// StampLayout renders the last-update marker (dd/mm/yyyy hh:mm:ss).
const StampLayout = "02/01/2006 15:04:05"

// Clock yields the current time in a fixed location. Tests pin it with
// FixedClock.
type Clock struct {
	loc *time.Location
	now func() time.Time
}

// NewClock loads the named zone. An empty name means DefaultTimezone.
func NewClock(zone string) (Clock, error) {
	if zone == "" {
		zone = DefaultTimezone
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return Clock{}, fmt.Errorf("load timezone %q: %w", zone, err)
	}
	return Clock{loc: loc, now: time.Now}, nil
}

// SystemClock is system time in UTC.
func SystemClock() Clock {
	return Clock{loc: time.UTC, now: time.Now}
}

// FixedClock always returns t, in t's location.
func FixedClock(t time.Time) Clock {
	return Clock{loc: t.Location(), now: func() time.Time { return t }}
}

// Now returns the current time in the clock's zone.
func (c Clock) Now() time.Time {
	now := c.now
	if now == nil {
		now = time.Now
	}
	return now().In(c.Location())
}

// Today returns midnight of the current day in the clock's zone.
func (c Clock) Today() time.Time {
	n := c.Now()
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, n.Location())
}

// Location falls back to UTC on a zero Clock.
func (c Clock) Location() *time.Location {
	if c.loc == nil {
		return time.UTC
	}
	return c.loc
}

// Stamp builds the marker for the current instant.
func (c Clock) Stamp() LastUpdateMarker {
	return LastUpdateMarker{
		Timestamp: c.Now().Format(StampLayout),
		Timezone:  c.Location().String(),
	}
}
