package hierarchy

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/smukkama/energy-kpi/internal/apperr"
	"github.com/smukkama/energy-kpi/internal/kpi"
)

// Rollup computes KPIs for hierarchy entities from their sensors
type Rollup struct {
	dir    Directory
	engine *kpi.Engine
	logger *zap.Logger
}

// NewRollup creates a rollup over dir
func NewRollup(dir Directory, engine *kpi.Engine, logger *zap.Logger) *Rollup {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Rollup{dir: dir, engine: engine, logger: logger}
}

// Directory returns the directory the rollup resolves entities with
func (r *Rollup) Directory() Directory {
	return r.dir
}

// SensorIDs returns the sensors owned by an entity. A sensor owns itself.
func (r *Rollup) SensorIDs(ctx context.Context, kind Kind, id string) ([]string, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperr.Validation("malformed %s id %q", kind, id)
	}

	switch kind {
	case KindSite:
		return r.dir.SensorIDsForSite(ctx, id)
	case KindBuilding:
		return r.dir.SensorIDsForBuilding(ctx, id)
	case KindFloor:
		return r.dir.SensorIDsForFloor(ctx, id)
	case KindRoom:
		return r.dir.SensorIDsForRoom(ctx, id)
	case KindSensor:
		return []string{id}, nil
	default:
		return nil, apperr.Validation("unknown entity kind %q", kind)
	}
}

// EntityKPIs computes the KPIs of one entity
func (r *Rollup) EntityKPIs(ctx context.Context, kind Kind, id string, opts kpi.Options) (kpi.EntityKPI, error) {
	if err := opts.Validate(); err != nil {
		return kpi.EntityKPI{}, err
	}
	sensors, err := r.SensorIDs(ctx, kind, id)
	if err != nil {
		return kpi.EntityKPI{}, err
	}
	return r.engine.Compute(ctx, sensors, opts)
}

// EntitiesKPIs computes KPIs for sibling entities with one batched store
// fetch. A sensor reported under two entities is kept with the first one in
// id order.
func (r *Rollup) EntitiesKPIs(ctx context.Context, kind Kind, ids []string, opts kpi.Options) (map[string]kpi.EntityKPI, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	ordered := append([]string(nil), ids...)
	sort.Strings(ordered)

	owners := make(map[string]string)
	for _, id := range ordered {
		sensors, err := r.SensorIDs(ctx, kind, id)
		if err != nil {
			return nil, err
		}
		for _, sensor := range sensors {
			if prev, ok := owners[sensor]; ok && prev != id {
				r.logger.Warn("Sensor owned by more than one entity",
					zap.String("sensor_id", sensor),
					zap.String("kind", string(kind)),
					zap.String("kept", prev),
					zap.String("ignored", id),
				)
				continue
			}
			owners[sensor] = id
		}
	}

	return r.engine.ComputeBatch(ctx, ordered, owners, opts)
}
