package measurement

import (
	"fmt"
	"strings"
	"time"
)

// Resolution is a storage tier expressed in minutes
type Resolution int

const (
	Raw        Resolution = 0
	FifteenMin Resolution = 15
	Hourly     Resolution = 60
	Daily      Resolution = 1440
	Weekly     Resolution = 10080
	Monthly    Resolution = 43200
)

// Resolutions lists every tier from finest to coarsest
var Resolutions = []Resolution{Raw, FifteenMin, Hourly, Daily, Weekly, Monthly}

// ParseResolution validates a minutes value against the known tiers
func ParseResolution(minutes int) (Resolution, error) {
	for _, r := range Resolutions {
		if int(r) == minutes {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown resolution: %d minutes", minutes)
}

// Duration returns the bucket width; Raw has none
func (r Resolution) Duration() time.Duration {
	return time.Duration(r) * time.Minute
}

// Hours returns the bucket width in hours
func (r Resolution) Hours() float64 {
	return float64(r) / 60
}

func (r Resolution) String() string {
	switch r {
	case Raw:
		return "raw"
	case FifteenMin:
		return "15min"
	case Hourly:
		return "hourly"
	case Daily:
		return "daily"
	case Weekly:
		return "weekly"
	case Monthly:
		return "monthly"
	default:
		return fmt.Sprintf("%dmin", int(r))
	}
}

// StateType tags the counter semantics of a sample
type StateType string

const (
	StateActual        StateType = "actual"
	StateTotal         StateType = "total"
	StateTotalDay      StateType = "totalDay"
	StateTotalWeek     StateType = "totalWeek"
	StateTotalMonth    StateType = "totalMonth"
	StateTotalYear     StateType = "totalYear"
	StateTotalNegDay   StateType = "totalNegDay"
	StateTotalNegWeek  StateType = "totalNegWeek"
	StateTotalNegMonth StateType = "totalNegMonth"
	StateTotalNegYear  StateType = "totalNegYear"
)

// ActualPrefix matches every instantaneous state type
const ActualPrefix = "actual"

// SemanticsKind is the closed set of counter behaviours
type SemanticsKind int

const (
	Unknown SemanticsKind = iota
	Instantaneous
	Total
	Cumulative
)

// Semantics is the tagged union StateType resolves to. Period is only
// meaningful for Cumulative; Negative marks export counters.
type Semantics struct {
	Kind     SemanticsKind
	Period   Period
	Negative bool
}

var cumulativePeriods = map[string]Period{
	"Day":   PeriodDay,
	"Week":  PeriodWeek,
	"Month": PeriodMonth,
	"Year":  PeriodYear,
}

// Semantics classifies the state type
func (s StateType) Semantics() Semantics {
	str := string(s)
	switch {
	case strings.HasPrefix(str, ActualPrefix):
		return Semantics{Kind: Instantaneous}
	case str == string(StateTotal):
		return Semantics{Kind: Total}
	case strings.HasPrefix(str, "totalNeg"):
		if p, ok := cumulativePeriods[strings.TrimPrefix(str, "totalNeg")]; ok {
			return Semantics{Kind: Cumulative, Period: p, Negative: true}
		}
	case strings.HasPrefix(str, "total"):
		if p, ok := cumulativePeriods[strings.TrimPrefix(str, "total")]; ok {
			return Semantics{Kind: Cumulative, Period: p}
		}
	}
	return Semantics{Kind: Unknown}
}

// Sample is one timestamped reading
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	SensorID  string    `json:"sensorId,omitempty"`
}

// Row is one grouped aggregate returned by the store for a
// (measurementType, stateType, unit) key
type Row struct {
	MeasurementType string     `json:"measurementType"`
	StateType       StateType  `json:"stateType"`
	Unit            string     `json:"unit"`
	Resolution      Resolution `json:"resolution"`
	Values          []float64  `json:"values"`
	Pairs           []Sample   `json:"timestampValuePairs"`
	AvgQuality      float64    `json:"avgQuality"`
	Count           int        `json:"count"`
}

// Key is the merge identity of a row
type Key struct {
	MeasurementType string
	StateType       StateType
	Unit            string
}

// Key returns the row's merge identity
func (r Row) Key() Key {
	return Key{MeasurementType: r.MeasurementType, StateType: r.StateType, Unit: r.Unit}
}
