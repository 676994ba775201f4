package database

import (
	"time"
)

// Building is a building record with the attributes analytics need
type Building struct {
	ID        string
	SiteID    string
	Name      string
	AreaM2    *float64
	Occupants *int
	TypeOfUse string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AnomalyThreshold flags measurements of a building as anomalous
type AnomalyThreshold struct {
	ID              int
	BuildingID      string
	MeasurementType string
	Operator        string
	ThresholdValue  float64
	IsActive        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// measurementRecord is one sample as stored in a measurement table
type measurementRecord struct {
	SensorID        string
	MeasurementType string
	StateType       string
	Unit            string
	Timestamp       time.Time
	Value           float64
	Quality         float64
}

const (
	tableRaw = "measurements_raw"
	tableAgg = "measurements_agg"
)
