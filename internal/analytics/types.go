package analytics

import (
	"context"
	"time"

	"github.com/smukkama/energy-kpi/internal/kpi"
	"github.com/smukkama/energy-kpi/internal/measurement"
)

// Metadata describes a building for derived analytics
type Metadata struct {
	BuildingID string  `json:"building_id"`
	SiteID     string  `json:"site_id"`
	Name       string  `json:"name"`
	Area       float64 `json:"area"`
	Occupants  int     `json:"occupants"`
	TypeOfUse  string  `json:"type_of_use"`
}

// Threshold flags samples of a measurement type as anomalous
type Threshold struct {
	MeasurementType string  `json:"measurement_type"`
	Operator        string  `json:"operator"`
	Value           float64 `json:"threshold_value"`
}

// MetadataProvider is the read-only building metadata and benchmark source
type MetadataProvider interface {
	BuildingMetadata(ctx context.Context, buildingID string) (Metadata, error)
	// TargetEUI returns the target kWh/m²/year for a type of use
	TargetEUI(ctx context.Context, typeOfUse string) (float64, bool, error)
}

// ThresholdProvider returns the active anomaly thresholds of a building
type ThresholdProvider interface {
	AnomalyThresholds(ctx context.Context, buildingID string) ([]Threshold, error)
}

// Reader fetches rows for auxiliary analytics queries
type Reader interface {
	Query(ctx context.Context, f measurement.Filter) ([]measurement.Row, error)
}

// Cost decides how a generator is scheduled
type Cost int

const (
	// CostInline generators only need the KPIs and run sequentially
	CostInline Cost = iota
	CostLight
	CostHeavy
)

// Input is what every generator receives
type Input struct {
	BuildingID string
	Options    kpi.Options
	KPIs       kpi.EntityKPI
	Metadata   Metadata
	Sensors    []string
}

// WindowDays is the length of the input window in days
func (in Input) WindowDays() float64 {
	return in.Options.End.Sub(in.Options.Start).Hours() / 24
}

// Generator computes one derived-analytics section of a building report
type Generator interface {
	Name() string
	Cost() Cost
	Generate(ctx context.Context, in Input) (any, error)
}

// Result is one generator's slot in a report
type Result struct {
	Available bool   `json:"available"`
	Message   string `json:"message,omitempty"`
	Timeout   bool   `json:"timeout,omitempty"`
	Data      any    `json:"data,omitempty"`
}

// BuildingAnalytics is the full building report
type BuildingAnalytics struct {
	BuildingID  string            `json:"building_id"`
	Start       time.Time         `json:"start"`
	End         time.Time         `json:"end"`
	KPIs        kpi.EntityKPI     `json:"kpis"`
	Analytics   map[string]Result `json:"analytics"`
	GeneratedAt time.Time         `json:"generated_at"`
}
