package planner

import (
	"fmt"
	"time"

	"github.com/smukkama/energy-kpi/internal/measurement"
)

// Interval is a fixed reporting period requested by the caller
type Interval string

const (
	IntervalNone    Interval = ""
	IntervalDaily   Interval = "Daily"
	IntervalWeekly  Interval = "Weekly"
	IntervalMonthly Interval = "Monthly"
	IntervalYearly  Interval = "Yearly"
)

// ParseInterval validates an interval name; empty means none
func ParseInterval(s string) (Interval, error) {
	switch Interval(s) {
	case IntervalNone, IntervalDaily, IntervalWeekly, IntervalMonthly, IntervalYearly:
		return Interval(s), nil
	default:
		return IntervalNone, fmt.Errorf("unknown interval: %s", s)
	}
}

var intervalStates = map[Interval]measurement.StateType{
	IntervalDaily:   measurement.StateTotalDay,
	IntervalWeekly:  measurement.StateTotalWeek,
	IntervalMonthly: measurement.StateTotalMonth,
	IntervalYearly:  measurement.StateTotalYear,
}

var intervalResolutions = map[Interval]measurement.Resolution{
	IntervalDaily:   measurement.Daily,
	IntervalWeekly:  measurement.Weekly,
	IntervalMonthly: measurement.Daily,
	IntervalYearly:  measurement.Monthly,
}

// StateType returns the cumulative state type an interval reads
func (i Interval) StateType() measurement.StateType {
	return intervalStates[i]
}

// Segment is one contiguous piece of a query window
type Segment struct {
	Start      time.Time
	End        time.Time
	Resolution measurement.Resolution
	StateType  measurement.StateType
	Preferred  bool
}

const day = 24 * time.Hour

// Planner decomposes query windows into segments. Day boundaries are
// evaluated in loc.
type Planner struct {
	loc *time.Location
}

// New creates a planner for the given location; nil means UTC
func New(loc *time.Location) *Planner {
	if loc == nil {
		loc = time.UTC
	}
	return &Planner{loc: loc}
}

// Location returns the planner's calendar location
func (p *Planner) Location() *time.Location {
	return p.loc
}

// Plan returns ordered, non-overlapping segments covering [start, end) exactly once
func (p *Planner) Plan(start, end time.Time, interval Interval, now time.Time) []Segment {
	start, end = start.In(p.loc), end.In(p.loc)

	if interval != IntervalNone {
		return []Segment{{
			Start:      start,
			End:        end,
			Resolution: intervalResolution(interval, end, now),
			StateType:  interval.StateType(),
			Preferred:  true,
		}}
	}

	var segments []Segment
	startAligned := isMidnight(start)
	endAligned := isMidnight(end)
	duration := end.Sub(start)

	switch {
	case startAligned && endAligned && duration >= day*9/10 && duration < day*11/10:
		segments = []Segment{daySegment(start, end, now)}
	case startAligned && endAligned:
		segments = completeDays(start, end, now)
	default:
		segments = mixed(start, end, now)
	}

	if len(segments) == 0 {
		return []Segment{{
			Start:      start,
			End:        end,
			Resolution: measurement.Hourly,
			StateType:  measurement.StateTotalDay,
		}}
	}
	return segments
}

// intervalResolution picks a tier by data age, then by interval size
func intervalResolution(interval Interval, end, now time.Time) measurement.Resolution {
	age := now.Sub(end)
	switch {
	case age > 7*day:
		return measurement.Daily
	case age > time.Hour:
		return measurement.Hourly
	default:
		return intervalResolutions[interval]
	}
}

// dayResolution: daily aggregates exist once the day is at least a day old
func dayResolution(dayEnd, now time.Time) measurement.Resolution {
	if now.Sub(dayEnd) >= day {
		return measurement.Daily
	}
	return measurement.Hourly
}

func daySegment(start, end, now time.Time) Segment {
	return Segment{
		Start:      start,
		End:        end,
		Resolution: dayResolution(end, now),
		StateType:  measurement.StateTotalDay,
		Preferred:  true,
	}
}

func nextMidnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location())
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func isMidnight(t time.Time) bool {
	return midnight(t).Equal(t)
}

// completeDays emits one segment per calendar day in [start, end)
func completeDays(start, end, now time.Time) []Segment {
	var segments []Segment
	for cur := start; cur.Before(end); {
		next := nextMidnight(cur)
		if next.After(end) {
			next = end
		}
		segments = append(segments, daySegment(cur, next, now))
		cur = next
	}
	return segments
}

// mixed splits a non-aligned window into a partial start day, the interior
// complete days and a partial end day
func mixed(start, end, now time.Time) []Segment {
	partial := func(s, e time.Time) Segment {
		return Segment{Start: s, End: e, Resolution: measurement.Hourly, StateType: measurement.StateTotalDay}
	}

	if !end.After(start) {
		return nil
	}
	if midnight(start).Equal(midnight(end)) {
		return []Segment{partial(start, end)}
	}

	var segments []Segment
	interiorStart := start
	if !isMidnight(start) {
		interiorStart = nextMidnight(start)
		segments = append(segments, partial(start, interiorStart))
	}
	interiorEnd := midnight(end)
	if interiorEnd.After(interiorStart) {
		segments = append(segments, completeDays(interiorStart, interiorEnd, now)...)
	}
	if !isMidnight(end) {
		segments = append(segments, partial(interiorEnd, end))
	}
	return segments
}

// PowerResolution picks the tier for instantaneous power queries.
// 15-minute data is only retained for the last hour.
func PowerResolution(start, end, now time.Time) measurement.Resolution {
	switch {
	case now.Sub(end) > 7*day || end.Sub(start) > 90*day:
		return measurement.Daily
	case now.Sub(start) <= time.Hour:
		return measurement.FifteenMin
	default:
		return measurement.Hourly
	}
}
