// Package reconcile recovers true consumption over a window from
// cumulative counters that reset at calendar period boundaries.
package reconcile

import (
	"math"
	"sort"
	"time"

	"github.com/smukkama/energy-kpi/internal/measurement"
)

// Case identifies which reconciliation rule produced a result
type Case int

const (
	CaseEmpty Case = iota
	CaseSummation
	CaseSingleFullSingleSensor
	CaseSingleFullMultiSensor
	CaseSinglePartialSingleSensor
	CaseSinglePartialMultiSensor
	CaseMultiOnePerPeriod
	CaseMultiGrouped
	CaseMultiWeekEdge
	CaseFallback
)

func (c Case) String() string {
	switch c {
	case CaseSummation:
		return "summation"
	case CaseSingleFullSingleSensor:
		return "single_full_single_sensor"
	case CaseSingleFullMultiSensor:
		return "single_full_multi_sensor"
	case CaseSinglePartialSingleSensor:
		return "single_partial_single_sensor"
	case CaseSinglePartialMultiSensor:
		return "single_partial_multi_sensor"
	case CaseMultiOnePerPeriod:
		return "multi_one_per_period"
	case CaseMultiGrouped:
		return "multi_grouped"
	case CaseMultiWeekEdge:
		return "multi_week_edge"
	case CaseFallback:
		return "fallback"
	default:
		return "empty"
	}
}

// Window is the queried interval [Start, End) and the tier its samples came from
type Window struct {
	Start      time.Time
	End        time.Time
	Resolution measurement.Resolution
}

func (w Window) valid() bool {
	return !w.Start.IsZero() && !w.End.IsZero() && w.End.After(w.Start)
}

// Result is the reconciled consumption for one (measurementType, stateType) bucket.
// Average is Consumption divided by Periods.
type Result struct {
	Consumption float64
	Base        float64
	Average     float64
	Periods     int
	Samples     int
	Case        Case
}

// Reconcile computes net consumption for samples tagged with state over w.
// Samples may be unordered; samples before w.Start are only used as
// start anchors for partial periods, samples at or after w.End are ignored.
func Reconcile(samples []measurement.Sample, state measurement.StateType, w Window) Result {
	sorted := measurement.SortSamples(samples)
	sem := state.Semantics()

	if sem.Kind != measurement.Cumulative {
		if w.valid() {
			sorted, _ = split(sorted, w)
		}
		return summation(sorted)
	}

	p := sem.Period
	if !w.valid() {
		return fallback(sorted, p)
	}

	inWindow, anchors := split(sorted, w)
	if len(inWindow) == 0 {
		return Result{Case: CaseEmpty}
	}

	multi := len(bySensor(inWindow)) > 1
	single := p.Start(w.Start).Equal(p.Start(w.End.Add(-time.Nanosecond)))

	if single {
		full := p.IsBoundary(w.Start) && w.End.Equal(p.Next(w.Start))
		switch {
		case full && !multi:
			return singleFull(inWindow)
		case full:
			return singleFullMulti(inWindow)
		default:
			return singlePartial(inWindow, anchors, w.Start, p, multi)
		}
	}

	if r, ok := p.Resolution(); ok && w.Resolution == r {
		return onePerPeriod(inWindow, p)
	}

	if p == measurement.PeriodWeek && p.IsBoundary(w.Start) != p.IsBoundary(w.End) {
		if res, ok := weekEdge(inWindow, anchors, w, p); ok {
			return res
		}
	}

	return grouped(inWindow, p)
}

// split separates in-window samples from those preceding the window
func split(sorted []measurement.Sample, w Window) (inWindow, before []measurement.Sample) {
	for _, s := range sorted {
		switch {
		case s.Timestamp.Before(w.Start):
			before = append(before, s)
		case s.Timestamp.Before(w.End):
			inWindow = append(inWindow, s)
		}
	}
	return inWindow, before
}

// bySensor groups samples by sensor id, preserving timestamp order
func bySensor(samples []measurement.Sample) map[string][]measurement.Sample {
	groups := make(map[string][]measurement.Sample)
	for _, s := range samples {
		groups[s.SensorID] = append(groups[s.SensorID], s)
	}
	return groups
}

// sensors returns the group keys in sorted order so sums are deterministic
func sensors(groups map[string][]measurement.Sample) []string {
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func maxValue(samples []measurement.Sample) float64 {
	m := math.Inf(-1)
	for _, s := range samples {
		m = math.Max(m, s.Value)
	}
	if math.IsInf(m, -1) {
		return 0
	}
	return m
}

func minValue(samples []measurement.Sample) float64 {
	m := math.Inf(1)
	for _, s := range samples {
		m = math.Min(m, s.Value)
	}
	if math.IsInf(m, 1) {
		return 0
	}
	return m
}

func minOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := values[0]
	for _, v := range values[1:] {
		m = math.Min(m, v)
	}
	return m
}

func sum(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total
}

func withAverage(r Result) Result {
	if r.Periods > 0 {
		r.Average = r.Consumption / float64(r.Periods)
	}
	return r
}

func summation(samples []measurement.Sample) Result {
	if len(samples) == 0 {
		return Result{Case: CaseSummation}
	}
	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = s.Value
	}
	return withAverage(Result{
		Consumption: sum(values),
		Base:        minOf(values),
		Periods:     len(values),
		Samples:     len(values),
		Case:        CaseSummation,
	})
}

// singleFull: the counter's largest reading is the period total
func singleFull(samples []measurement.Sample) Result {
	return withAverage(Result{
		Consumption: maxValue(samples),
		Base:        minValue(samples),
		Periods:     1,
		Samples:     len(samples),
		Case:        CaseSingleFullSingleSensor,
	})
}

func sensorMaxima(samples []measurement.Sample) []float64 {
	groups := bySensor(samples)
	maxima := make([]float64, 0, len(groups))
	for _, sensor := range sensors(groups) {
		maxima = append(maxima, maxValue(groups[sensor]))
	}
	return maxima
}

func singleFullMulti(samples []measurement.Sample) Result {
	maxima := sensorMaxima(samples)
	return withAverage(Result{
		Consumption: sum(maxima),
		Base:        minOf(maxima),
		Periods:     1,
		Samples:     len(samples),
		Case:        CaseSingleFullMultiSensor,
	})
}

// delta subtracts the start anchor from the last in-window reading of one
// sensor. A window starting on a period boundary anchors at zero since the
// counter has just reset. Anchors from an earlier period are ignored.
func delta(group, anchors []measurement.Sample, start time.Time, p measurement.Period) (float64, bool) {
	if len(group) == 0 {
		return 0, false
	}
	end := group[len(group)-1].Value

	startValue := 0.0
	if !p.IsBoundary(start) {
		if len(anchors) == 0 {
			return 0, false
		}
		a := anchors[len(anchors)-1]
		if a.Timestamp.Before(p.Start(start)) {
			return 0, false
		}
		startValue = a.Value
	}

	d := end - startValue
	if d < 0 {
		return 0, false
	}
	return d, true
}

func singlePartial(inWindow, anchors []measurement.Sample, start time.Time, p measurement.Period, multi bool) Result {
	groups := bySensor(inWindow)
	anchorGroups := bySensor(anchors)

	totals := make([]float64, 0, len(groups))
	for _, sensor := range sensors(groups) {
		g := groups[sensor]
		d, ok := delta(g, anchorGroups[sensor], start, p)
		if !ok {
			d = maxValue(g)
		}
		totals = append(totals, d)
	}

	c := CaseSinglePartialSingleSensor
	if multi {
		c = CaseSinglePartialMultiSensor
	}
	return withAverage(Result{
		Consumption: sum(totals),
		Base:        minOf(totals),
		Periods:     1,
		Samples:     len(inWindow),
		Case:        c,
	})
}

type periodGroup struct {
	start   time.Time
	samples []measurement.Sample
}

// byPeriod groups sorted samples into consecutive calendar periods
func byPeriod(sorted []measurement.Sample, p measurement.Period) []periodGroup {
	var groups []periodGroup
	for _, s := range sorted {
		start := p.Start(s.Timestamp)
		if n := len(groups); n > 0 && groups[n-1].start.Equal(start) {
			groups[n-1].samples = append(groups[n-1].samples, s)
			continue
		}
		groups = append(groups, periodGroup{start: start, samples: []measurement.Sample{s}})
	}
	return groups
}

func periodTotal(samples []measurement.Sample) float64 {
	groups := bySensor(samples)
	if len(groups) == 1 {
		return maxValue(samples)
	}
	return sum(sensorMaxima(samples))
}

// onePerPeriod: every sample already is one sensor's period total
func onePerPeriod(inWindow []measurement.Sample, p measurement.Period) Result {
	groups := byPeriod(inWindow, p)
	totals := make([]float64, len(groups))
	for i, g := range groups {
		for _, s := range g.samples {
			totals[i] += s.Value
		}
	}
	return withAverage(Result{
		Consumption: sum(totals),
		Base:        minOf(totals),
		Periods:     len(groups),
		Samples:     len(inWindow),
		Case:        CaseMultiOnePerPeriod,
	})
}

func grouped(inWindow []measurement.Sample, p measurement.Period) Result {
	groups := byPeriod(inWindow, p)
	totals := make([]float64, len(groups))
	for i, g := range groups {
		totals[i] = periodTotal(g.samples)
	}
	return withAverage(Result{
		Consumption: sum(totals),
		Base:        minOf(totals),
		Periods:     len(groups),
		Samples:     len(inWindow),
		Case:        CaseMultiGrouped,
	})
}

// weekEdge handles multi-week windows with exactly one Monday-aligned edge.
// A partial first week is anchored by subtraction; a partial last week starts
// on a boundary so its maximum already is the partial total.
func weekEdge(inWindow, anchors []measurement.Sample, w Window, p measurement.Period) (Result, bool) {
	groups := byPeriod(inWindow, p)
	if len(groups) == 0 {
		return Result{}, false
	}

	anchorGroups := bySensor(anchors)
	totals := make([]float64, len(groups))
	for i, g := range groups {
		if i == 0 && !p.IsBoundary(w.Start) && g.start.Equal(p.Start(w.Start)) {
			first := 0.0
			sg := bySensor(g.samples)
			for _, sensor := range sensors(sg) {
				d, ok := delta(sg[sensor], anchorGroups[sensor], w.Start, p)
				if !ok {
					return Result{}, false
				}
				first += d
			}
			totals[i] = first
			continue
		}
		totals[i] = periodTotal(g.samples)
	}

	return withAverage(Result{
		Consumption: sum(totals),
		Base:        minOf(totals),
		Periods:     len(groups),
		Samples:     len(inWindow),
		Case:        CaseMultiWeekEdge,
	}), true
}

// fallback applies when no window is known: one period by maximum,
// several by plain summation
func fallback(sorted []measurement.Sample, p measurement.Period) Result {
	if len(sorted) == 0 {
		return Result{Case: CaseEmpty}
	}
	first := p.Start(sorted[0].Timestamp)
	last := p.Start(sorted[len(sorted)-1].Timestamp)
	if first.Equal(last) {
		return withAverage(Result{
			Consumption: maxValue(sorted),
			Base:        minValue(sorted),
			Periods:     1,
			Samples:     len(sorted),
			Case:        CaseFallback,
		})
	}
	res := summation(sorted)
	res.Case = CaseFallback
	return res
}
