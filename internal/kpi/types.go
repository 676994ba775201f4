package kpi

import (
	"fmt"
	"time"

	"github.com/smukkama/energy-kpi/internal/apperr"
	"github.com/smukkama/energy-kpi/internal/measurement"
	"github.com/smukkama/energy-kpi/internal/planner"
	"github.com/smukkama/energy-kpi/internal/units"
)

// Options controls one KPI computation
type Options struct {
	Start           time.Time
	End             time.Time
	Interval        planner.Interval
	Resolution      *measurement.Resolution
	MeasurementType string
	StateType       measurement.StateType
}

// Validate rejects empty or inverted windows
func (o Options) Validate() error {
	if o.Start.IsZero() || o.End.IsZero() {
		return apperr.Validation("start and end are required")
	}
	if !o.Start.Before(o.End) {
		return apperr.Validation("start %s must be before end %s", o.Start.Format(time.RFC3339), o.End.Format(time.RFC3339))
	}
	return nil
}

// CacheKey is the full query signature of the options for an entity
func (o Options) CacheKey(kind, entityID string) string {
	res := "auto"
	if o.Resolution != nil {
		res = fmt.Sprintf("%d", int(*o.Resolution))
	}
	return fmt.Sprintf("%s:%s:%d:%d:%s:%s:%s:%s",
		kind, entityID, o.Start.UnixMilli(), o.End.UnixMilli(), res,
		o.Interval, o.MeasurementType, o.StateType)
}

type EnergyKPI struct {
	TotalConsumption float64 `json:"total_consumption"`
	Average          float64 `json:"average"`
	Base             float64 `json:"base"`
	Export           float64 `json:"export"`
	Unit             string  `json:"unit"`
	DerivedFromPower bool    `json:"derived_from_power"`
}

type PowerKPI struct {
	Peak    float64 `json:"peak"`
	Average float64 `json:"average"`
	Unit    string  `json:"unit"`
}

type QualityKPI struct {
	Average float64 `json:"average"`
	Warning bool    `json:"warning"`
}

// TypeStat summarizes one measurement type in its base unit
type TypeStat struct {
	MeasurementType string  `json:"measurement_type"`
	Total           float64 `json:"total"`
	Average         float64 `json:"average"`
	Min             float64 `json:"min"`
	Max             float64 `json:"max"`
	Count           int     `json:"count"`
	Unit            string  `json:"unit"`
}

// EntityKPI is the KPI record for one entity over one window
type EntityKPI struct {
	Energy    EnergyKPI  `json:"energy"`
	Power     PowerKPI   `json:"power"`
	Quality   QualityKPI `json:"quality"`
	Breakdown []TypeStat `json:"breakdown"`
}

// ZeroKPI is the result for an entity without data
func ZeroKPI() EntityKPI {
	return EntityKPI{
		Energy:    EnergyKPI{Unit: units.KWh},
		Power:     PowerKPI{Unit: units.KW},
		Quality:   QualityKPI{Average: 100},
		Breakdown: []TypeStat{},
	}
}
