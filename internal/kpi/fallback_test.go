package kpi

import (
	"context"
	"reflect"
	"testing"

	"go.uber.org/zap"

	"github.com/smukkama/energy-kpi/internal/measurement"
)

func energyFilter(res measurement.Resolution) measurement.Filter {
	return measurement.Filter{
		SensorIDs:       []string{"S1"},
		MeasurementType: typeEnergy,
		StateType:       measurement.StateTotalDay,
		Resolution:      res,
		Start:           day,
		End:             day.AddDate(0, 1, 0),
	}
}

func TestFallbackReturnsCoarserRows(t *testing.T) {
	store := measurement.NewMemoryStore()
	store.Add(measurement.Monthly, typeEnergy, measurement.StateTotalDay, "kWh", pair(day, 900, "S1"))
	store.Add(measurement.Hourly, typeEnergy, measurement.StateTotalDay, "kWh", pair(hour(3), 5, "S1"))

	r := NewFallbackResolver(store, nil, zap.NewNop())
	rows, err := r.Query(context.Background(), energyFilter(measurement.Daily))
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(rows) != 1 || rows[0].Resolution != measurement.Monthly || rows[0].Values[0] != 900 {
		t.Fatalf("Expected the monthly row, got %+v", rows)
	}

	want := []measurement.Resolution{measurement.Daily, measurement.Monthly}
	if got := store.Queried(); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected queried tiers %v, got %v", want, got)
	}
}

func TestFallbackOnlyQueriesAvailableTiers(t *testing.T) {
	store := measurement.NewMemoryStore()
	store.Add(measurement.Hourly, typeEnergy, measurement.StateTotalDay, "kWh", pair(hour(3), 5, "S1"))
	store.Add(measurement.Weekly, typeEnergy, measurement.StateTotalWeek, "kWh", pair(day, 70, "S1"))
	store.Add(measurement.Monthly, "Water", measurement.StateTotalDay, "m³", pair(day, 2, "S1"))

	r := NewFallbackResolver(store, nil, zap.NewNop())
	rows, err := r.Query(context.Background(), energyFilter(measurement.Daily))
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(rows) != 1 || rows[0].Resolution != measurement.Hourly {
		t.Fatalf("Expected the hourly row, got %+v", rows)
	}

	want := []measurement.Resolution{measurement.Daily, measurement.Hourly}
	if got := store.Queried(); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected queried tiers %v, got %v", want, got)
	}
}

func TestFallbackNothingAvailable(t *testing.T) {
	store := measurement.NewMemoryStore()
	r := NewFallbackResolver(store, nil, zap.NewNop())

	rows, err := r.Query(context.Background(), energyFilter(measurement.Daily))
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if rows == nil || len(rows) != 0 {
		t.Errorf("Expected an empty result, got %+v", rows)
	}
	if got := store.Queried(); !reflect.DeepEqual(got, []measurement.Resolution{measurement.Daily}) {
		t.Errorf("Expected only the preferred tier to be queried, got %v", got)
	}
}

func TestFallbackPreferredTierHit(t *testing.T) {
	store := measurement.NewMemoryStore()
	store.Add(measurement.Daily, typeEnergy, measurement.StateTotalDay, "kWh", pair(day, 12, "S1"))
	store.Add(measurement.Monthly, typeEnergy, measurement.StateTotalDay, "kWh", pair(day, 900, "S1"))

	r := NewFallbackResolver(store, nil, zap.NewNop())
	rows, err := r.Query(context.Background(), energyFilter(measurement.Daily))
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(rows) != 1 || rows[0].Values[0] != 12 {
		t.Fatalf("Expected the daily row, got %+v", rows)
	}
	if store.Calls() != 1 {
		t.Errorf("Expected a single store call, got %d", store.Calls())
	}
}
