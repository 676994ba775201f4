package kpi

import (
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/smukkama/energy-kpi/internal/measurement"
	"github.com/smukkama/energy-kpi/internal/planner"
	"github.com/smukkama/energy-kpi/internal/reconcile"
	"github.com/smukkama/energy-kpi/internal/units"
)

const (
	typeEnergy = "Energy"
	typePower  = "Power"
)

// periodTotalTypes are the measurement types whose counters are reconciled
var periodTotalTypes = map[string]bool{
	typeEnergy: true,
	"Water":    true,
	"Heating":  true,
	"Gas":      true,
}

// Batch is a set of rows queried for one window
type Batch struct {
	Window reconcile.Window
	Rows   []measurement.Row
}

// Aggregator turns grouped store rows into an EntityKPI
type Aggregator struct {
	logger         *zap.Logger
	qualityWarning float64
}

// NewAggregator creates an aggregator warning below the given average quality
func NewAggregator(logger *zap.Logger, qualityWarning float64) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{logger: logger, qualityWarning: qualityWarning}
}

// CalculateKPIs aggregates rows queried for the options' window. The
// resolution used for reconciliation is opts.Resolution, or the coarsest
// row resolution when unset.
func (a *Aggregator) CalculateKPIs(rows []measurement.Row, opts Options) EntityKPI {
	var res measurement.Resolution
	if opts.Resolution != nil {
		res = *opts.Resolution
	} else {
		for _, r := range rows {
			if r.Resolution > res {
				res = r.Resolution
			}
		}
	}
	return a.Calculate([]Batch{{
		Window: reconcile.Window{Start: opts.Start, End: opts.End, Resolution: res},
		Rows:   rows,
	}}, opts)
}

// Calculate aggregates batches that together cover the options' window.
// Period-total types are reconciled per batch and summed across batches.
func (a *Aggregator) Calculate(batches []Batch, opts Options) EntityKPI {
	normalized := make([]Batch, 0, len(batches))
	for _, b := range batches {
		rows := a.normalize(b.Rows)
		if len(rows) == 0 {
			continue
		}
		normalized = append(normalized, Batch{Window: b.Window, Rows: rows})
	}
	if len(normalized) == 0 {
		return ZeroKPI()
	}

	out := ZeroKPI()
	out.Quality = a.quality(normalized)

	energy := a.reconcileFamily(normalized, typeEnergy, false)
	out.Energy.TotalConsumption = energy.consumption
	out.Energy.Base = energy.base
	out.Energy.Average = energy.average()
	out.Energy.Export = a.reconcileFamily(normalized, typeEnergy, true).consumption

	powerValues := valuesOf(normalized, isPowerRow)
	if len(powerValues) > 0 {
		out.Power.Peak = maxOf(powerValues)
		out.Power.Average = sumOf(powerValues) / float64(len(powerValues))
	}

	if !hasType(normalized, typeEnergy) && len(powerValues) > 0 && opts.Interval == planner.IntervalNone {
		derived := derivedEnergy(normalized)
		out.Energy.TotalConsumption = derived.consumption
		out.Energy.Base = derived.base
		out.Energy.Average = derived.average()
		out.Energy.DerivedFromPower = true
	}

	out.Breakdown = a.breakdown(normalized)
	return rounded(out)
}

// normalize converts rows to base units and drops negative counter values,
// then merges rows that collapse onto the same key
func (a *Aggregator) normalize(rows []measurement.Row) []measurement.Row {
	out := make([]measurement.Row, 0, len(rows))
	for _, row := range rows {
		n := row
		if row.Unit != "" && !units.Recognized(row.Unit) {
			a.logger.Debug("Unit not recognized, values kept as reported",
				zap.String("measurement_type", row.MeasurementType),
				zap.String("unit", row.Unit),
			)
		}
		n.Unit = units.NormalizeUnit(row.Unit)
		if n.Unit == "" {
			n.Unit = units.BaseUnit(row.MeasurementType)
		}
		counter := periodTotalTypes[row.MeasurementType] && isConsumption(row.StateType)

		n.Values = make([]float64, 0, len(row.Values))
		dropped := 0
		for _, v := range row.Values {
			v = units.Normalize(v, row.Unit)
			if counter && v < 0 {
				dropped++
				continue
			}
			n.Values = append(n.Values, v)
		}
		n.Pairs = make([]measurement.Sample, 0, len(row.Pairs))
		for _, p := range row.Pairs {
			p.Value = units.Normalize(p.Value, row.Unit)
			if counter && p.Value < 0 {
				continue
			}
			n.Pairs = append(n.Pairs, p)
		}
		if dropped > 0 {
			a.logger.Debug("Dropped negative counter values as meter resets",
				zap.String("measurement_type", row.MeasurementType),
				zap.String("state_type", string(row.StateType)),
				zap.Int("dropped", dropped),
			)
		}
		out = append(out, n)
	}
	return measurement.MergeRows(nil, out)
}

func (a *Aggregator) quality(batches []Batch) QualityKPI {
	weighted, count := 0.0, 0
	plain, rows := 0.0, 0
	for _, b := range batches {
		for _, r := range b.Rows {
			weighted += r.AvgQuality * float64(r.Count)
			count += r.Count
			plain += r.AvgQuality
			rows++
		}
	}

	avg := 100.0
	switch {
	case count > 0:
		avg = weighted / float64(count)
	case rows > 0:
		avg = plain / float64(rows)
	}

	q := QualityKPI{Average: avg, Warning: avg < a.qualityWarning}
	if q.Warning {
		a.logger.Warn("Measurement quality below threshold",
			zap.Float64("average_quality", avg),
			zap.Float64("threshold", a.qualityWarning),
		)
	}
	return q
}

// isConsumption reports whether st counts consumption rather than an
// instantaneous reading or an export counter
func isConsumption(st measurement.StateType) bool {
	sem := st.Semantics()
	switch sem.Kind {
	case measurement.Instantaneous:
		return false
	case measurement.Cumulative:
		return !sem.Negative
	default:
		return true
	}
}

func isExport(st measurement.StateType) bool {
	sem := st.Semantics()
	return sem.Kind == measurement.Cumulative && sem.Negative
}

func isPowerRow(r measurement.Row) bool {
	if r.MeasurementType != typePower {
		return false
	}
	kind := r.StateType.Semantics().Kind
	return kind == measurement.Instantaneous || kind == measurement.Unknown
}

// familyTotal is a reconciled period-total family summed over batches
type familyTotal struct {
	consumption float64
	base        float64
	periods     int
	samples     int
	min         float64
	max         float64
}

func (f familyTotal) average() float64 {
	if f.periods == 0 {
		return 0
	}
	return f.consumption / float64(f.periods)
}

// reconcileFamily reconciles the consumption (or export) counters of one
// measurement type in every batch and sums the results
func (a *Aggregator) reconcileFamily(batches []Batch, measurementType string, export bool) familyTotal {
	var total familyTotal
	first := true

	for _, b := range batches {
		buckets := make(map[measurement.StateType][]measurement.Sample)
		for _, r := range b.Rows {
			if r.MeasurementType != measurementType {
				continue
			}
			if export && !isExport(r.StateType) || !export && !isConsumption(r.StateType) {
				continue
			}
			buckets[r.StateType] = append(buckets[r.StateType], samplesOf(r, b.Window.Start)...)
		}
		if len(buckets) == 0 {
			continue
		}

		state := dominantState(buckets)
		if len(buckets) > 1 {
			a.logger.Warn("Mixed state types for one measurement type in a single window",
				zap.String("measurement_type", measurementType),
				zap.String("using", string(state)),
				zap.Int("state_types", len(buckets)),
			)
		}

		samples := buckets[state]
		res := reconcile.Reconcile(samples, state, b.Window)
		if res.Samples == 0 && res.Consumption == 0 {
			continue
		}
		lo, hi := inWindowRange(samples, b.Window)

		total.consumption += res.Consumption
		total.periods += res.Periods
		total.samples += res.Samples
		if first {
			total.base, total.min, total.max = res.Base, lo, hi
			first = false
		} else {
			total.base = math.Min(total.base, res.Base)
			total.min = math.Min(total.min, lo)
			total.max = math.Max(total.max, hi)
		}
	}
	return total
}

// dominantState picks the state type with the most samples, ties broken by name
func dominantState(buckets map[measurement.StateType][]measurement.Sample) measurement.StateType {
	var best measurement.StateType
	bestCount := -1
	for st, samples := range buckets {
		if len(samples) > bestCount || len(samples) == bestCount && st < best {
			best, bestCount = st, len(samples)
		}
	}
	return best
}

// samplesOf returns the row's pairs, or its bare values stamped at ts
func samplesOf(r measurement.Row, ts time.Time) []measurement.Sample {
	if len(r.Pairs) > 0 {
		return r.Pairs
	}
	samples := make([]measurement.Sample, len(r.Values))
	for i, v := range r.Values {
		samples[i] = measurement.Sample{Timestamp: ts, Value: v}
	}
	return samples
}

func inWindowRange(samples []measurement.Sample, w reconcile.Window) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, s := range samples {
		if !w.Start.IsZero() && s.Timestamp.Before(w.Start) {
			continue
		}
		if !w.End.IsZero() && !s.Timestamp.Before(w.End) {
			continue
		}
		lo, hi = math.Min(lo, s.Value), math.Max(hi, s.Value)
	}
	if math.IsInf(lo, 1) {
		return 0, 0
	}
	return lo, hi
}

// derivedEnergy integrates average power over each bucket's duration and
// groups the energy by calendar day. Raw samples are integrated over the gap
// to the next sample of the same sensor.
func derivedEnergy(batches []Batch) familyTotal {
	daily := make(map[time.Time]float64)
	add := func(ts time.Time, kwh float64) {
		daily[measurement.PeriodDay.Start(ts)] += kwh
	}

	for _, b := range batches {
		loc := b.Window.Start.Location()
		for _, r := range b.Rows {
			if !isPowerRow(r) {
				continue
			}
			if r.Resolution == measurement.Raw {
				groups := make(map[string][]measurement.Sample)
				for _, p := range r.Pairs {
					groups[p.SensorID] = append(groups[p.SensorID], p)
				}
				for _, g := range groups {
					sorted := measurement.SortSamples(g)
					for i := 0; i+1 < len(sorted); i++ {
						hours := sorted[i+1].Timestamp.Sub(sorted[i].Timestamp).Hours()
						add(sorted[i].Timestamp.In(loc), sorted[i].Value*hours)
					}
				}
				continue
			}
			hours := r.Resolution.Hours()
			for _, s := range samplesOf(r, b.Window.Start) {
				add(s.Timestamp.In(loc), s.Value*hours)
			}
		}
	}

	var total familyTotal
	first := true
	for _, kwh := range daily {
		total.consumption += kwh
		total.periods++
		if first || kwh < total.base {
			total.base = kwh
			first = false
		}
	}
	return total
}

func valuesOf(batches []Batch, match func(measurement.Row) bool) []float64 {
	var values []float64
	for _, b := range batches {
		for _, r := range b.Rows {
			if match(r) {
				values = append(values, r.Values...)
			}
		}
	}
	return values
}

func hasType(batches []Batch, measurementType string) bool {
	for _, b := range batches {
		for _, r := range b.Rows {
			if r.MeasurementType == measurementType {
				return true
			}
		}
	}
	return false
}

// breakdown emits one stat per observed measurement type, sorted by type.
// Period-total types use the same reconciliation as the energy total.
func (a *Aggregator) breakdown(batches []Batch) []TypeStat {
	unitOf := make(map[string]string)
	hasCounter := make(map[string]bool)
	for _, b := range batches {
		for _, r := range b.Rows {
			if _, ok := unitOf[r.MeasurementType]; !ok || unitOf[r.MeasurementType] == "" {
				unitOf[r.MeasurementType] = r.Unit
			}
			if periodTotalTypes[r.MeasurementType] && isConsumption(r.StateType) {
				hasCounter[r.MeasurementType] = true
			}
		}
	}

	types := make([]string, 0, len(unitOf))
	for mt := range unitOf {
		types = append(types, mt)
	}
	sort.Strings(types)

	stats := make([]TypeStat, 0, len(types))
	for _, mt := range types {
		unit := units.BaseUnit(mt)
		if unit == "" {
			unit = unitOf[mt]
		}

		if hasCounter[mt] {
			f := a.reconcileFamily(batches, mt, false)
			stats = append(stats, TypeStat{
				MeasurementType: mt,
				Total:           f.consumption,
				Average:         f.average(),
				Min:             f.min,
				Max:             f.max,
				Count:           f.samples,
				Unit:            unit,
			})
			continue
		}

		values := valuesOf(batches, func(r measurement.Row) bool { return r.MeasurementType == mt })
		stat := TypeStat{MeasurementType: mt, Count: len(values), Unit: unit}
		if len(values) > 0 {
			stat.Total = sumOf(values)
			stat.Average = stat.Total / float64(len(values))
			stat.Min = minOf(values)
			stat.Max = maxOf(values)
		}
		stats = append(stats, stat)
	}
	return stats
}

func sumOf(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total
}

func minOf(values []float64) float64 {
	m := math.Inf(1)
	for _, v := range values {
		m = math.Min(m, v)
	}
	return m
}

func maxOf(values []float64) float64 {
	m := math.Inf(-1)
	for _, v := range values {
		m = math.Max(m, v)
	}
	return m
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func rounded(k EntityKPI) EntityKPI {
	k.Energy.TotalConsumption = round3(k.Energy.TotalConsumption)
	k.Energy.Average = round3(k.Energy.Average)
	k.Energy.Base = round3(k.Energy.Base)
	k.Energy.Export = round3(k.Energy.Export)
	k.Power.Peak = round3(k.Power.Peak)
	k.Power.Average = round3(k.Power.Average)
	k.Quality.Average = round3(k.Quality.Average)
	for i := range k.Breakdown {
		s := &k.Breakdown[i]
		s.Total = round3(s.Total)
		s.Average = round3(s.Average)
		s.Min = round3(s.Min)
		s.Max = round3(s.Max)
	}
	return k
}
