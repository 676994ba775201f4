package measurement

import (
	"context"
	"sync"
)

// Record is one stored sample with its series metadata
type Record struct {
	Sample
	MeasurementType string
	StateType       StateType
	Unit            string
	Resolution      Resolution
	Quality         float64
}

// MemoryStore is an in-process Store. It counts calls so callers can
// verify how many round-trips a computation made.
type MemoryStore struct {
	mu      sync.Mutex
	records []Record
	calls   int
	queried []Resolution
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Add stores samples for one series at full quality
func (s *MemoryStore) Add(res Resolution, measurementType string, st StateType, unit string, samples ...Sample) {
	for _, sample := range samples {
		s.Insert(Record{
			Sample:          sample,
			MeasurementType: measurementType,
			StateType:       st,
			Unit:            unit,
			Resolution:      res,
			Quality:         100,
		})
	}
}

// Insert stores records as given
func (s *MemoryStore) Insert(records ...Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, records...)
}

// Aggregate groups the matching records by series key
func (s *MemoryStore) Aggregate(ctx context.Context, f Filter) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.queried = append(s.queried, f.Resolution)

	byKey := make(map[Key]*Row)
	quality := make(map[Key]float64)
	for _, r := range s.records {
		if r.Resolution != f.Resolution || !s.matches(r, f) {
			continue
		}
		key := Key{MeasurementType: r.MeasurementType, StateType: r.StateType, Unit: r.Unit}
		row, ok := byKey[key]
		if !ok {
			row = &Row{MeasurementType: r.MeasurementType, StateType: r.StateType, Unit: r.Unit, Resolution: r.Resolution}
			byKey[key] = row
		}
		row.Values = append(row.Values, r.Value)
		row.Pairs = append(row.Pairs, r.Sample)
		row.Count++
		quality[key] += r.Quality
	}

	rows := make([]Row, 0, len(byKey))
	for key, row := range byKey {
		row.AvgQuality = quality[key] / float64(row.Count)
		rows = append(rows, *row)
	}
	SortRows(rows)
	return rows, nil
}

// Availability reports record counts per (measurementType, stateType, resolution)
func (s *MemoryStore) Availability(ctx context.Context, f Filter) ([]Availability, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	type bucket struct {
		mt  string
		st  StateType
		res Resolution
	}
	counts := make(map[bucket]int)
	var order []bucket
	for _, r := range s.records {
		if !s.matches(r, f) {
			continue
		}
		b := bucket{r.MeasurementType, r.StateType, r.Resolution}
		if counts[b] == 0 {
			order = append(order, b)
		}
		counts[b]++
	}

	out := make([]Availability, 0, len(order))
	for _, b := range order {
		out = append(out, Availability{MeasurementType: b.mt, StateType: b.st, Resolution: b.res, Count: counts[b]})
	}
	return out, nil
}

// Calls returns the number of store round-trips so far
func (s *MemoryStore) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Queried returns the resolutions passed to Aggregate, in call order
func (s *MemoryStore) Queried() []Resolution {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Resolution(nil), s.queried...)
}

func (s *MemoryStore) matches(r Record, f Filter) bool {
	if len(f.SensorIDs) > 0 && !contains(f.SensorIDs, r.SensorID) {
		return false
	}
	if f.MeasurementType != "" && r.MeasurementType != f.MeasurementType {
		return false
	}
	if contains(f.ExcludeTypes, r.MeasurementType) || !f.MatchesState(r.StateType) {
		return false
	}
	if !f.Start.IsZero() && r.Timestamp.Before(f.Start) {
		return false
	}
	if !f.End.IsZero() && !r.Timestamp.Before(f.End) {
		return false
	}
	return true
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
