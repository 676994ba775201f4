package database

import (
	"context"
	"database/sql"

	"github.com/smukkama/energy-kpi/internal/analytics"
	"github.com/smukkama/energy-kpi/internal/apperr"
)

// Metadata serves building attributes, benchmarks and anomaly thresholds
type Metadata struct {
	db *DB
}

// NewMetadata creates a metadata provider over db
func NewMetadata(db *DB) *Metadata {
	return &Metadata{db: db}
}

// GetBuilding retrieves a building by id
func (m *Metadata) GetBuilding(ctx context.Context, id string) (*Building, error) {
	query := `
		SELECT id, site_id, name, area_m2, occupants, type_of_use, created_at, updated_at
		FROM buildings
		WHERE id = $1
	`

	var b Building
	err := m.db.QueryRowContext(ctx, query, id).Scan(
		&b.ID,
		&b.SiteID,
		&b.Name,
		&b.AreaM2,
		&b.Occupants,
		&b.TypeOfUse,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("building", id)
	}
	if err != nil {
		return nil, classify("get building", err)
	}
	return &b, nil
}

// BuildingMetadata implements analytics.MetadataProvider
func (m *Metadata) BuildingMetadata(ctx context.Context, id string) (analytics.Metadata, error) {
	b, err := m.GetBuilding(ctx, id)
	if err != nil {
		return analytics.Metadata{}, err
	}

	meta := analytics.Metadata{
		BuildingID: b.ID,
		SiteID:     b.SiteID,
		Name:       b.Name,
		TypeOfUse:  b.TypeOfUse,
	}
	if b.AreaM2 != nil {
		meta.Area = *b.AreaM2
	}
	if b.Occupants != nil {
		meta.Occupants = *b.Occupants
	}
	return meta, nil
}

// TargetEUI returns the benchmark for a type of use
func (m *Metadata) TargetEUI(ctx context.Context, typeOfUse string) (float64, bool, error) {
	var target float64
	err := m.db.QueryRowContext(ctx, `SELECT target_eui FROM benchmarks WHERE type_of_use = $1`, typeOfUse).Scan(&target)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, classify("get benchmark", err)
	}
	return target, true, nil
}

// GetActiveAnomalyThresholds retrieves all active thresholds for a building
func (m *Metadata) GetActiveAnomalyThresholds(ctx context.Context, buildingID string) ([]*AnomalyThreshold, error) {
	query := `
		SELECT id, building_id, measurement_type, operator, threshold_value,
		       is_active, created_at, updated_at
		FROM anomaly_thresholds
		WHERE building_id = $1 AND is_active = true
		ORDER BY measurement_type
	`

	rows, err := m.db.QueryContext(ctx, query, buildingID)
	if err != nil {
		return nil, classify("get anomaly thresholds", err)
	}
	defer rows.Close()

	var thresholds []*AnomalyThreshold
	for rows.Next() {
		var t AnomalyThreshold
		if err := rows.Scan(
			&t.ID,
			&t.BuildingID,
			&t.MeasurementType,
			&t.Operator,
			&t.ThresholdValue,
			&t.IsActive,
			&t.CreatedAt,
			&t.UpdatedAt,
		); err != nil {
			return nil, classify("scan anomaly threshold", err)
		}
		thresholds = append(thresholds, &t)
	}

	return thresholds, classify("read anomaly thresholds", rows.Err())
}

// AnomalyThresholds implements analytics.ThresholdProvider
func (m *Metadata) AnomalyThresholds(ctx context.Context, buildingID string) ([]analytics.Threshold, error) {
	rows, err := m.GetActiveAnomalyThresholds(ctx, buildingID)
	if err != nil {
		return nil, err
	}
	out := make([]analytics.Threshold, 0, len(rows))
	for _, t := range rows {
		out = append(out, analytics.Threshold{
			MeasurementType: t.MeasurementType,
			Operator:        t.Operator,
			Value:           t.ThresholdValue,
		})
	}
	return out, nil
}
