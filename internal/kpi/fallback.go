package kpi

import (
	"context"

	"go.uber.org/zap"

	"github.com/smukkama/energy-kpi/internal/measurement"
	"github.com/smukkama/energy-kpi/internal/metrics"
)

// fallbackOrder is the retry priority when the preferred tier is empty
var fallbackOrder = []measurement.Resolution{
	measurement.Monthly,
	measurement.Weekly,
	measurement.Daily,
	measurement.Hourly,
	measurement.FifteenMin,
}

// FallbackResolver queries a preferred resolution and falls back to tiers
// the store reports as holding data
type FallbackResolver struct {
	store   measurement.Store
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewFallbackResolver creates a resolver over store
func NewFallbackResolver(store measurement.Store, m *metrics.Metrics, logger *zap.Logger) *FallbackResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FallbackResolver{store: store, metrics: m, logger: logger}
}

// Query returns the rows for f at f.Resolution. When that tier is empty it
// probes availability and retries the confirmed tiers in priority order,
// returning the first non-empty result. Rows are stamped with the tier they
// were read from.
func (r *FallbackResolver) Query(ctx context.Context, f measurement.Filter) ([]measurement.Row, error) {
	rows, err := r.aggregate(ctx, f)
	if err != nil || len(rows) > 0 {
		return rows, err
	}

	available, err := r.store.Availability(ctx, f)
	if err != nil {
		r.metrics.StoreError()
		return nil, err
	}
	present := make(map[measurement.Resolution]bool)
	for _, a := range available {
		if a.Count == 0 || !f.MatchesState(a.StateType) {
			continue
		}
		if f.MeasurementType != "" && a.MeasurementType != f.MeasurementType {
			continue
		}
		present[a.Resolution] = true
	}

	for _, res := range fallbackOrder {
		if res == f.Resolution || !present[res] {
			continue
		}
		retry := f
		retry.Resolution = res
		r.metrics.FallbackHop(res.String())

		rows, err := r.aggregate(ctx, retry)
		if err != nil {
			return nil, err
		}
		if len(rows) > 0 {
			r.logger.Debug("Fell back to coarser resolution",
				zap.String("preferred", f.Resolution.String()),
				zap.String("used", res.String()),
				zap.String("state_type", string(f.StateType)),
			)
			return rows, nil
		}
	}
	return []measurement.Row{}, nil
}

func (r *FallbackResolver) aggregate(ctx context.Context, f measurement.Filter) ([]measurement.Row, error) {
	r.metrics.StoreQuery(f.Resolution.String())
	rows, err := r.store.Aggregate(ctx, f)
	if err != nil {
		r.metrics.StoreError()
		return nil, err
	}
	for i := range rows {
		rows[i].Resolution = f.Resolution
	}
	return rows, nil
}
