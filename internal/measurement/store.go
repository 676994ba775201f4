package measurement

import (
	"context"
	"strings"
	"time"
)

// Filter selects rows from the store. StateType matches exactly;
// StatePrefix matches a state type prefix. ExcludeTypes drops
// measurement types from an otherwise unrestricted query.
type Filter struct {
	SensorIDs       []string
	MeasurementType string
	ExcludeTypes    []string
	StateType       StateType
	StatePrefix     string
	Resolution      Resolution
	Start           time.Time
	End             time.Time
}

// MatchesState reports whether st satisfies the filter's state constraint
func (f Filter) MatchesState(st StateType) bool {
	if f.StateType != "" && st != f.StateType {
		return false
	}
	if f.StatePrefix != "" && !strings.HasPrefix(string(st), f.StatePrefix) {
		return false
	}
	return true
}

// Availability is one (stateType, resolution) bucket reported by the
// diagnostic probe
type Availability struct {
	MeasurementType string
	StateType       StateType
	Resolution      Resolution
	Count           int
}

// Store is the time-series collaborator the KPI core reads from
type Store interface {
	// Aggregate returns grouped rows for the filter at f.Resolution
	Aggregate(ctx context.Context, f Filter) ([]Row, error)
	// Availability reports which resolutions hold data for the filter,
	// ignoring f.Resolution
	Availability(ctx context.Context, f Filter) ([]Availability, error)
}
