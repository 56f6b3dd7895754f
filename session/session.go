// session/session.go
package session

import (
	"fmt"
	"time"

	"github.com/sergeysmolkin-grodt/SilverBullet/logs"
)

// Clock is a session-local time of day.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses "HH:MM".
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return Clock{}, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return Clock{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// Spec is a configured daily session: a fixed local-time trading window.
type Spec struct {
	Start Clock
	End   Clock
}

// Window is a session window materialized for a concrete date.
type Window struct {
	Ordinal int // 1..3
	Start   time.Time
	End     time.Time
}

// Oracle owns every UTC-to-session-local conversion in the system. Detection
// code only ever sees session-local timestamps; keeping the conversion here
// is what guarantees backtest/live parity across host time zones.
type Oracle struct {
	loc     *time.Location
	specs   []Spec
	buffer  time.Duration
	date    time.Time // midnight of the current session-local date
	windows []Window
}

// NewOracle builds an oracle for the named IANA time zone. When the zone
// database cannot resolve the name the oracle degrades to treating feed time
// as local, which is non-fatal but logged loudly.
func NewOracle(tzName string, specs []Spec, buffer time.Duration) *Oracle {
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		logs.Warnf("[Session] Time zone %q unavailable (%v); treating feed time as session-local.", tzName, err)
		loc = time.UTC
	}
	return &Oracle{loc: loc, specs: specs, buffer: buffer}
}

// Local converts a feed timestamp into session-local time.
func (o *Oracle) Local(t time.Time) time.Time {
	return t.In(o.loc)
}

// Roll recomputes the day's session windows on the first event of a new
// session-local calendar date. It returns true exactly once per date; the
// caller is responsible for resetting all daily state when it does.
func (o *Oracle) Roll(localNow time.Time) bool {
	y, m, d := localNow.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, o.loc)
	if midnight.Equal(o.date) {
		return false
	}
	o.date = midnight
	o.windows = o.windows[:0]
	for i, sp := range o.specs {
		start := midnight.Add(time.Duration(sp.Start.Hour)*time.Hour + time.Duration(sp.Start.Minute)*time.Minute)
		end := midnight.Add(time.Duration(sp.End.Hour)*time.Hour + time.Duration(sp.End.Minute)*time.Minute)
		if !end.After(start) {
			logs.Warnf("[Session] Window %d end %s is not after start %s, skipping it for %s.",
				i+1, end.Format("15:04"), start.Format("15:04"), midnight.Format("2006-01-02"))
			continue
		}
		o.windows = append(o.windows, Window{Ordinal: i + 1, Start: start, End: end})
	}
	return true
}

// Date returns midnight of the current session-local date.
func (o *Oracle) Date() time.Time { return o.date }

// Windows returns the current date's session windows in ordinal order.
func (o *Oracle) Windows() []Window { return o.windows }

// Active returns the first window (by ordinal) whose buffered span
// [start-buffer, end) contains now. Servicing windows in ordinal order is
// what keeps two sessions' liquidity from ever being processed concurrently
// when buffers overlap.
func (o *Oracle) Active(localNow time.Time) (Window, bool) {
	for _, w := range o.windows {
		if !localNow.Before(w.Start.Add(-o.buffer)) && localNow.Before(w.End) {
			return w, true
		}
	}
	return Window{}, false
}
