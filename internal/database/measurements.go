package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/smukkama/energy-kpi/internal/apperr"
	"github.com/smukkama/energy-kpi/internal/measurement"
)

// MeasurementStore reads the raw and pre-aggregated measurement tables
type MeasurementStore struct {
	db *DB
}

// NewMeasurementStore creates a store over db
func NewMeasurementStore(db *DB) *MeasurementStore {
	return &MeasurementStore{db: db}
}

// whereClause renders the filter conditions shared by both queries.
// Arguments are numbered from the length of args.
func whereClause(f measurement.Filter, args []any) (string, []any) {
	var conds []string
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if len(f.SensorIDs) > 0 {
		add("sensor_id = ANY($%d)", pq.Array(f.SensorIDs))
	}
	if f.MeasurementType != "" {
		add("measurement_type = $%d", f.MeasurementType)
	}
	if len(f.ExcludeTypes) > 0 {
		add("NOT (measurement_type = ANY($%d))", pq.Array(f.ExcludeTypes))
	}
	if f.StateType != "" {
		add("state_type = $%d", string(f.StateType))
	}
	if f.StatePrefix != "" {
		add("state_type LIKE $%d", f.StatePrefix+"%")
	}
	if !f.Start.IsZero() {
		add("ts >= $%d", f.Start)
	}
	if !f.End.IsZero() {
		add("ts < $%d", f.End)
	}

	if len(conds) == 0 {
		return "TRUE", args
	}
	return strings.Join(conds, " AND "), args
}

// buildAggregateQuery selects the samples for f from the tier's table
func buildAggregateQuery(f measurement.Filter) (string, []any) {
	if f.Resolution == measurement.Raw {
		where, args := whereClause(f, nil)
		return fmt.Sprintf(`
		SELECT sensor_id, measurement_type, state_type, unit, ts, value, quality
		FROM %s
		WHERE %s
		ORDER BY measurement_type, state_type, unit, ts`, tableRaw, where), args
	}

	where, args := whereClause(f, []any{int(f.Resolution)})
	return fmt.Sprintf(`
		SELECT sensor_id, measurement_type, state_type, unit, ts, value, avg_quality
		FROM %s
		WHERE resolution_minutes = $1 AND %s
		ORDER BY measurement_type, state_type, unit, ts`, tableAgg, where), args
}

// buildAvailabilityQuery counts samples per type, state type and tier
func buildAvailabilityQuery(f measurement.Filter) (string, []any) {
	where, args := whereClause(f, nil)
	return fmt.Sprintf(`
		SELECT measurement_type, state_type, resolution, COUNT(*)
		FROM (
			SELECT sensor_id, measurement_type, state_type, ts, 0 AS resolution FROM %s
			UNION ALL
			SELECT sensor_id, measurement_type, state_type, ts, resolution_minutes AS resolution FROM %s
		) samples
		WHERE %s
		GROUP BY measurement_type, state_type, resolution
		ORDER BY resolution`, tableRaw, tableAgg, where), args
}

// Aggregate returns grouped rows for f at f.Resolution
func (s *MeasurementStore) Aggregate(ctx context.Context, f measurement.Filter) ([]measurement.Row, error) {
	if s == nil || s.db == nil {
		return nil, apperr.Unavailable("measurement store", nil)
	}

	query, args := buildAggregateQuery(f)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("query measurements", err)
	}
	defer rows.Close()

	var records []measurementRecord
	for rows.Next() {
		var r measurementRecord
		if err := rows.Scan(&r.SensorID, &r.MeasurementType, &r.StateType, &r.Unit, &r.Timestamp, &r.Value, &r.Quality); err != nil {
			return nil, classify("scan measurement", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("read measurements", err)
	}

	return groupRecords(records, f.Resolution), nil
}

// groupRecords folds samples into one row per (type, state type, unit)
func groupRecords(records []measurementRecord, res measurement.Resolution) []measurement.Row {
	index := make(map[measurement.Key]int)
	var out []measurement.Row
	var quality []float64

	for _, r := range records {
		key := measurement.Key{
			MeasurementType: r.MeasurementType,
			StateType:       measurement.StateType(r.StateType),
			Unit:            r.Unit,
		}
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, measurement.Row{
				MeasurementType: key.MeasurementType,
				StateType:       key.StateType,
				Unit:            key.Unit,
				Resolution:      res,
			})
			quality = append(quality, 0)
		}
		row := &out[i]
		row.Values = append(row.Values, r.Value)
		row.Pairs = append(row.Pairs, measurement.Sample{Timestamp: r.Timestamp, Value: r.Value, SensorID: r.SensorID})
		row.Count++
		quality[i] += r.Quality
	}

	for i := range out {
		out[i].AvgQuality = quality[i] / float64(out[i].Count)
	}
	measurement.SortRows(out)
	return out
}

// Availability reports which tiers hold data for f, ignoring f.Resolution
func (s *MeasurementStore) Availability(ctx context.Context, f measurement.Filter) ([]measurement.Availability, error) {
	if s == nil || s.db == nil {
		return nil, apperr.Unavailable("measurement store", nil)
	}

	query, args := buildAvailabilityQuery(f)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("probe measurement availability", err)
	}
	defer rows.Close()

	var out []measurement.Availability
	for rows.Next() {
		var (
			a   measurement.Availability
			st  string
			res int
		)
		if err := rows.Scan(&a.MeasurementType, &st, &res, &a.Count); err != nil {
			return nil, classify("scan availability", err)
		}
		a.StateType = measurement.StateType(st)
		a.Resolution = measurement.Resolution(res)
		out = append(out, a)
	}
	return out, classify("read availability", rows.Err())
}
