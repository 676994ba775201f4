package kpi

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/smukkama/energy-kpi/internal/apperr"
	"github.com/smukkama/energy-kpi/internal/measurement"
	"github.com/smukkama/energy-kpi/internal/metrics"
	"github.com/smukkama/energy-kpi/internal/planner"
	"github.com/smukkama/energy-kpi/internal/reconcile"
)

// minLookback is how far before a partial segment the start anchor is searched
const minLookback = 15 * time.Minute

// counterTypes are excluded from the "other types" query
var counterTypes = []string{typeEnergy, typePower, "Water", "Heating", "Gas"}

// consumptionTypes get their own counter queries so each falls back to the
// tier it is stored at
var consumptionTypes = []string{typeEnergy, "Gas", "Heating", "Water"}

// Engine plans, fetches and aggregates KPIs for a set of sensors
type Engine struct {
	store      measurement.Store
	planner    *planner.Planner
	fallback   *FallbackResolver
	aggregator *Aggregator
	logger     *zap.Logger
	now        func() time.Time
}

// NewEngine creates an engine. A nil store makes every computation fail as
// unavailable.
func NewEngine(store measurement.Store, p *planner.Planner, agg *Aggregator, m *metrics.Metrics, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if p == nil {
		p = planner.New(time.UTC)
	}
	return &Engine{
		store:      store,
		planner:    p,
		fallback:   NewFallbackResolver(store, m, logger),
		aggregator: agg,
		logger:     logger,
		now:        time.Now,
	}
}

// SetClock replaces the engine's time source
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// Compute returns the KPIs of the given sensors over opts' window.
// An empty sensor set yields the zero KPI.
func (e *Engine) Compute(ctx context.Context, sensorIDs []string, opts Options) (EntityKPI, error) {
	if err := e.check(opts); err != nil {
		return EntityKPI{}, err
	}
	if len(sensorIDs) == 0 {
		return ZeroKPI(), nil
	}

	batches, err := e.fetch(ctx, sensorIDs, opts)
	if err != nil {
		return EntityKPI{}, err
	}
	return e.aggregator.Calculate(batches, opts), nil
}

// ComputeBatch computes KPIs for several entities with a single fetch over
// the union of their sensors. owners maps each sensor to its entity.
// Entities owning no sensors get the zero KPI.
func (e *Engine) ComputeBatch(ctx context.Context, entityIDs []string, owners map[string]string, opts Options) (map[string]EntityKPI, error) {
	if err := e.check(opts); err != nil {
		return nil, err
	}

	out := make(map[string]EntityKPI, len(entityIDs))
	for _, id := range entityIDs {
		out[id] = ZeroKPI()
	}
	if len(owners) == 0 {
		return out, nil
	}

	sensorIDs := make([]string, 0, len(owners))
	for id := range owners {
		sensorIDs = append(sensorIDs, id)
	}
	sort.Strings(sensorIDs)

	batches, err := e.fetch(ctx, sensorIDs, opts)
	if err != nil {
		return nil, err
	}

	perEntity := make(map[string][]Batch)
	for _, b := range batches {
		for entity, rows := range measurement.Partition(b.Rows, owners) {
			perEntity[entity] = append(perEntity[entity], Batch{Window: b.Window, Rows: rows})
		}
	}
	for entity, entityBatches := range perEntity {
		if _, ok := out[entity]; !ok {
			continue
		}
		out[entity] = e.aggregator.Calculate(entityBatches, opts)
	}
	return out, nil
}

func (e *Engine) check(opts Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	if e.store == nil {
		return apperr.Unavailable("measurement store", nil)
	}
	return nil
}

// query is one store request and the window its rows reconcile against
type query struct {
	filter measurement.Filter
	window reconcile.Window
}

// fetch issues the planned queries concurrently. Each result lands in its
// own slot so batch order follows plan order.
func (e *Engine) fetch(ctx context.Context, sensorIDs []string, opts Options) ([]Batch, error) {
	queries := e.plan(sensorIDs, opts)
	e.logger.Debug("Planned KPI queries",
		zap.Int("sensors", len(sensorIDs)),
		zap.Int("queries", len(queries)),
	)

	slots := make([]Batch, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		i, q := i, q
		g.Go(func() error {
			rows, err := e.fallback.Query(gctx, q.filter)
			if err != nil {
				return err
			}
			w := q.window
			if len(rows) > 0 {
				// one resolver call reads a single tier
				w.Resolution = rows[0].Resolution
			}
			slots[i] = Batch{Window: w, Rows: rows}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	batches := make([]Batch, 0, len(slots))
	for _, b := range slots {
		if len(b.Rows) > 0 {
			batches = append(batches, b)
		}
	}
	return batches, nil
}

// plan turns the options into store queries: one consumption query per
// segment and counter type, one power query and one query for the
// remaining types over the whole window
func (e *Engine) plan(sensorIDs []string, opts Options) []query {
	now := e.now()
	loc := e.planner.Location()
	start, end := opts.Start.In(loc), opts.End.In(loc)

	powerRes := planner.PowerResolution(start, end, now)
	if opts.Resolution != nil {
		powerRes = *opts.Resolution
	}
	whole := func(f measurement.Filter) query {
		f.SensorIDs = sensorIDs
		f.Resolution = powerRes
		f.Start, f.End = start, end
		return query{filter: f, window: reconcile.Window{Start: start, End: end, Resolution: powerRes}}
	}
	power := whole(measurement.Filter{MeasurementType: typePower, StatePrefix: measurement.ActualPrefix})

	switch mt := opts.MeasurementType; {
	case mt == typePower:
		if opts.StateType != "" {
			power.filter.StatePrefix = ""
			power.filter.StateType = opts.StateType
		}
		return []query{power}
	case mt != "" && !periodTotalTypes[mt]:
		return []query{whole(measurement.Filter{MeasurementType: mt, StateType: opts.StateType})}
	case mt != "":
		return e.consumption(sensorIDs, mt, opts, now)
	}

	var queries []query
	for _, ct := range consumptionTypes {
		queries = append(queries, e.consumption(sensorIDs, ct, opts, now)...)
	}
	queries = append(queries, power)
	queries = append(queries, whole(measurement.Filter{ExcludeTypes: counterTypes}))
	return queries
}

// consumption plans one counter query per segment. Segments starting inside
// a counter period look back one bucket for the start anchor.
func (e *Engine) consumption(sensorIDs []string, measurementType string, opts Options, now time.Time) []query {
	segments := e.planner.Plan(opts.Start, opts.End, opts.Interval, now)

	queries := make([]query, 0, len(segments))
	for _, seg := range segments {
		if opts.Resolution != nil {
			seg.Resolution = *opts.Resolution
		}
		if opts.StateType != "" {
			seg.StateType = opts.StateType
		}

		queryStart := seg.Start
		if p := seg.StateType.Semantics().Period; p != measurement.PeriodNone && !p.IsBoundary(seg.Start) {
			lookback := seg.Resolution.Duration()
			if lookback < minLookback {
				lookback = minLookback
			}
			queryStart = seg.Start.Add(-lookback)
		}

		queries = append(queries, query{
			filter: measurement.Filter{
				SensorIDs:       sensorIDs,
				MeasurementType: measurementType,
				StateType:       seg.StateType,
				Resolution:      seg.Resolution,
				Start:           queryStart,
				End:             seg.End,
			},
			window: reconcile.Window{Start: seg.Start, End: seg.End, Resolution: seg.Resolution},
		})
	}
	return queries
}
