package analytics

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/smukkama/energy-kpi/internal/hierarchy"
	"github.com/smukkama/energy-kpi/internal/kpi"
	"github.com/smukkama/energy-kpi/internal/measurement"
	"github.com/smukkama/energy-kpi/internal/planner"
	"github.com/smukkama/energy-kpi/internal/units"
)

const daysPerYear = 365

var errNoArea = errors.New("building area unknown")

// Deps are the collaborators the default generators read from
type Deps struct {
	Reader     Reader
	Metadata   MetadataProvider
	Thresholds ThresholdProvider
	Rollup     *hierarchy.Rollup
	Location   *time.Location
	Now        func() time.Time
}

// DefaultGenerators returns the standard building report sections
func DefaultGenerators(d Deps) []Generator {
	if d.Location == nil {
		d.Location = time.UTC
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return []Generator{
		euiGenerator{},
		perCapitaGenerator{},
		benchmarkGenerator{metadata: d.Metadata},
		anomalyGenerator{reader: d.Reader, thresholds: d.Thresholds, now: d.Now},
		usageSplitGenerator{reader: d.Reader, loc: d.Location},
		comparisonGenerator{rollup: d.Rollup, metadata: d.Metadata},
		temperatureGenerator{reader: d.Reader, now: d.Now},
	}
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// eui returns kWh/m² for the window and annualized
func eui(k kpi.EntityKPI, area, windowDays float64) (float64, float64, error) {
	if area <= 0 {
		return 0, 0, errNoArea
	}
	value := k.Energy.TotalConsumption / area
	annual := 0.0
	if windowDays > 0 {
		annual = value * daysPerYear / windowDays
	}
	return value, annual, nil
}

type euiGenerator struct{}

func (euiGenerator) Name() string { return "eui" }
func (euiGenerator) Cost() Cost   { return CostInline }

func (euiGenerator) Generate(_ context.Context, in Input) (any, error) {
	value, annual, err := eui(in.KPIs, in.Metadata.Area, in.WindowDays())
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"eui":            round3(value),
		"annualized_eui": round3(annual),
		"area":           in.Metadata.Area,
		"unit":           "kWh/m²",
	}, nil
}

type perCapitaGenerator struct{}

func (perCapitaGenerator) Name() string { return "per_capita" }
func (perCapitaGenerator) Cost() Cost   { return CostInline }

func (perCapitaGenerator) Generate(_ context.Context, in Input) (any, error) {
	if in.Metadata.Occupants <= 0 {
		return nil, errors.New("occupant count unknown")
	}
	return map[string]any{
		"consumption_per_capita": round3(in.KPIs.Energy.TotalConsumption / float64(in.Metadata.Occupants)),
		"occupants":              in.Metadata.Occupants,
		"unit":                   "kWh/person",
	}, nil
}

type benchmarkGenerator struct {
	metadata MetadataProvider
}

func (benchmarkGenerator) Name() string { return "benchmark" }
func (benchmarkGenerator) Cost() Cost   { return CostLight }

func (g benchmarkGenerator) Generate(ctx context.Context, in Input) (any, error) {
	_, annual, err := eui(in.KPIs, in.Metadata.Area, in.WindowDays())
	if err != nil {
		return nil, err
	}
	target, ok, err := g.metadata.TargetEUI(ctx, in.Metadata.TypeOfUse)
	if err != nil {
		return nil, fmt.Errorf("failed to get benchmark: %w", err)
	}
	if !ok || target <= 0 {
		return nil, fmt.Errorf("no benchmark for type of use %q", in.Metadata.TypeOfUse)
	}

	ratio := annual / target
	return map[string]any{
		"annualized_eui": round3(annual),
		"target_eui":     target,
		"ratio":          round3(ratio),
		"rating":         rating(ratio),
		"type_of_use":    in.Metadata.TypeOfUse,
	}, nil
}

func rating(ratio float64) string {
	switch {
	case ratio <= 0.8:
		return "excellent"
	case ratio <= 1.0:
		return "good"
	case ratio <= 1.2:
		return "fair"
	default:
		return "poor"
	}
}

type anomalyGenerator struct {
	reader     Reader
	thresholds ThresholdProvider
	now        func() time.Time
}

func (anomalyGenerator) Name() string { return "anomalies" }
func (anomalyGenerator) Cost() Cost   { return CostHeavy }

func (g anomalyGenerator) Generate(ctx context.Context, in Input) (any, error) {
	thresholds, err := g.thresholds.AnomalyThresholds(ctx, in.BuildingID)
	if err != nil {
		return nil, fmt.Errorf("failed to get thresholds: %w", err)
	}

	res := planner.PowerResolution(in.Options.Start, in.Options.End, g.now())
	counts := make(map[string]int)
	total := 0
	for _, th := range thresholds {
		rows, err := g.reader.Query(ctx, measurement.Filter{
			SensorIDs:       in.Sensors,
			MeasurementType: th.MeasurementType,
			Resolution:      res,
			Start:           in.Options.Start,
			End:             in.Options.End,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to query %s: %w", th.MeasurementType, err)
		}
		key := fmt.Sprintf("%s %s %g", th.MeasurementType, th.Operator, th.Value)
		if _, ok := counts[key]; !ok {
			counts[key] = 0
		}
		for _, r := range rows {
			for _, v := range r.Values {
				if evaluateCondition(units.Normalize(v, r.Unit), th.Operator, th.Value) {
					counts[key]++
					total++
				}
			}
		}
	}

	return map[string]any{
		"total":      total,
		"by_rule":    counts,
		"thresholds": len(thresholds),
	}, nil
}

func evaluateCondition(value float64, operator string, threshold float64) bool {
	switch operator {
	case ">":
		return value > threshold
	case "<":
		return value < threshold
	case ">=":
		return value >= threshold
	case "<=":
		return value <= threshold
	default:
		return false
	}
}

type usageSplitGenerator struct {
	reader Reader
	loc    *time.Location
}

func (usageSplitGenerator) Name() string { return "usage_split" }
func (usageSplitGenerator) Cost() Cost   { return CostHeavy }

// Generate integrates hourly power into day (06:00-22:00) and night energy
// and into weekday and weekend energy
func (g usageSplitGenerator) Generate(ctx context.Context, in Input) (any, error) {
	rows, err := g.reader.Query(ctx, measurement.Filter{
		SensorIDs:       in.Sensors,
		MeasurementType: "Power",
		StatePrefix:     measurement.ActualPrefix,
		Resolution:      measurement.Hourly,
		Start:           in.Options.Start,
		End:             in.Options.End,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query power: %w", err)
	}

	var dayKWh, nightKWh, weekdayKWh, weekendKWh float64
	for _, r := range rows {
		hours := r.Resolution.Hours()
		if hours == 0 {
			hours = measurement.Hourly.Hours()
		}
		for _, p := range r.Pairs {
			kwh := units.Normalize(p.Value, r.Unit) * hours
			ts := p.Timestamp.In(g.loc)
			if h := ts.Hour(); h >= 6 && h < 22 {
				dayKWh += kwh
			} else {
				nightKWh += kwh
			}
			if wd := ts.Weekday(); wd == time.Saturday || wd == time.Sunday {
				weekendKWh += kwh
			} else {
				weekdayKWh += kwh
			}
		}
	}

	total := dayKWh + nightKWh
	if total == 0 {
		return nil, errors.New("no hourly power data")
	}
	return map[string]any{
		"day":           round3(dayKWh),
		"night":         round3(nightKWh),
		"weekday":       round3(weekdayKWh),
		"weekend":       round3(weekendKWh),
		"day_share":     round3(dayKWh / total),
		"weekend_share": round3(weekendKWh / total),
		"unit":          units.KWh,
	}, nil
}

type comparisonGenerator struct {
	rollup   *hierarchy.Rollup
	metadata MetadataProvider
}

func (comparisonGenerator) Name() string { return "comparison" }
func (comparisonGenerator) Cost() Cost   { return CostHeavy }

type ranked struct {
	BuildingID string  `json:"building_id"`
	EUI        float64 `json:"eui"`
}

// Generate ranks the building among its site siblings by EUI, lowest first
func (g comparisonGenerator) Generate(ctx context.Context, in Input) (any, error) {
	if in.Metadata.Area <= 0 {
		return nil, errNoArea
	}
	dir := g.rollup.Directory()
	site, err := dir.SiteOfBuilding(ctx, in.BuildingID)
	if err != nil {
		return nil, fmt.Errorf("failed to get site: %w", err)
	}
	siblings, err := dir.BuildingIDsForSite(ctx, site)
	if err != nil {
		return nil, fmt.Errorf("failed to get site buildings: %w", err)
	}

	kpis, err := g.rollup.EntitiesKPIs(ctx, hierarchy.KindBuilding, siblings, in.Options)
	if err != nil {
		return nil, fmt.Errorf("failed to compute sibling KPIs: %w", err)
	}

	var list []ranked
	for _, id := range siblings {
		area := in.Metadata.Area
		if id != in.BuildingID {
			meta, err := g.metadata.BuildingMetadata(ctx, id)
			if err != nil || meta.Area <= 0 {
				continue
			}
			area = meta.Area
		}
		value, _, _ := eui(kpis[id], area, in.WindowDays())
		list = append(list, ranked{BuildingID: id, EUI: round3(value)})
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].EUI != list[j].EUI {
			return list[i].EUI < list[j].EUI
		}
		return list[i].BuildingID < list[j].BuildingID
	})

	rank := 0
	for i, r := range list {
		if r.BuildingID == in.BuildingID {
			rank = i + 1
		}
	}
	return map[string]any{
		"site_id":   site,
		"rank":      rank,
		"of":        len(list),
		"buildings": list,
	}, nil
}

type temperatureGenerator struct {
	reader Reader
	now    func() time.Time
}

func (temperatureGenerator) Name() string { return "temperature" }
func (temperatureGenerator) Cost() Cost   { return CostLight }

func (g temperatureGenerator) Generate(ctx context.Context, in Input) (any, error) {
	rows, err := g.reader.Query(ctx, measurement.Filter{
		SensorIDs:       in.Sensors,
		MeasurementType: "Temperature",
		Resolution:      planner.PowerResolution(in.Options.Start, in.Options.End, g.now()),
		Start:           in.Options.Start,
		End:             in.Options.End,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query temperature: %w", err)
	}

	lo, hi, sum, n := math.Inf(1), math.Inf(-1), 0.0, 0
	for _, r := range rows {
		for _, v := range r.Values {
			c := units.Normalize(v, r.Unit)
			lo, hi = math.Min(lo, c), math.Max(hi, c)
			sum += c
			n++
		}
	}
	if n == 0 {
		return nil, errors.New("no temperature data")
	}
	return map[string]any{
		"min":     round3(lo),
		"average": round3(sum / float64(n)),
		"max":     round3(hi),
		"count":   n,
		"unit":    units.Celsius,
	}, nil
}
