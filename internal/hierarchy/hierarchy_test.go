package hierarchy

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/smukkama/energy-kpi/internal/apperr"
	"github.com/smukkama/energy-kpi/internal/kpi"
	"github.com/smukkama/energy-kpi/internal/measurement"
	"github.com/smukkama/energy-kpi/internal/planner"
)

var day = time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)

func testTree() *Static {
	return &Static{
		Sites:     map[string][]string{"site-1": {"b1", "b2", "b3"}},
		Buildings: map[string][]string{"b1": {"f1"}, "b2": {"f2"}, "b3": {}},
		Floors:    map[string][]string{"f1": {"r1", "r2"}, "f2": {"r3"}},
		Rooms: map[string][]string{
			"r1": {"s1", "s2"},
			"r2": {"s2", "s3"},
			"r3": {"s4"},
		},
	}
}

func newTestRollup(store measurement.Store, dir Directory) *Rollup {
	engine := kpi.NewEngine(store, planner.New(time.UTC), kpi.NewAggregator(zap.NewNop(), 90), nil, zap.NewNop())
	engine.SetClock(func() time.Time { return day.AddDate(0, 1, 0) })
	return NewRollup(dir, engine, zap.NewNop())
}

func dayOptions() kpi.Options {
	return kpi.Options{Start: day, End: day.AddDate(0, 0, 1)}
}

func TestStaticDirectoryTraversal(t *testing.T) {
	dir := testTree()
	ctx := context.Background()

	site, err := dir.SensorIDsForSite(ctx, "site-1")
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"s1", "s2", "s3", "s4"}; !reflect.DeepEqual(site, want) {
		t.Errorf("Expected %v, got %v", want, site)
	}

	empty, err := dir.SensorIDsForBuilding(ctx, "b3")
	if err != nil || len(empty) != 0 {
		t.Errorf("Expected empty sensor set for b3, got %v %v", empty, err)
	}

	if _, err := dir.SensorIDsForFloor(ctx, "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Expected not found, got %v", err)
	}

	if s, err := dir.SiteOfBuilding(ctx, "b2"); err != nil || s != "site-1" {
		t.Errorf("Expected site-1, got %q %v", s, err)
	}
}

type countingDirectory struct {
	Directory
	calls int
}

func (c *countingDirectory) SensorIDsForRoom(ctx context.Context, id string) ([]string, error) {
	c.calls++
	return c.Directory.SensorIDsForRoom(ctx, id)
}

func TestCachedDirectoryExpires(t *testing.T) {
	inner := &countingDirectory{Directory: testTree()}
	c := NewCachedDirectory(inner, time.Minute)
	now := day
	c.now = func() time.Time { return now }

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := c.SensorIDsForRoom(ctx, "r1"); err != nil {
			t.Fatal(err)
		}
	}
	if inner.calls != 1 {
		t.Errorf("Expected 1 directory call within validity, got %d", inner.calls)
	}

	now = now.Add(2 * time.Minute)
	if _, err := c.SensorIDsForRoom(ctx, "r1"); err != nil {
		t.Fatal(err)
	}
	if inner.calls != 2 {
		t.Errorf("Expected reload after expiry, got %d calls", inner.calls)
	}

	if _, err := c.SensorIDsForRoom(ctx, "nope"); err == nil {
		t.Fatal("Expected error for unknown room")
	}
	if _, err := c.SensorIDsForRoom(ctx, "nope"); err == nil {
		t.Fatal("Expected error for unknown room")
	}
	if inner.calls != 4 {
		t.Errorf("Errors must not be cached, got %d calls", inner.calls)
	}
}

func TestCachedDirectoryEvictsExpired(t *testing.T) {
	c := NewCachedDirectory(testTree(), time.Minute)
	now := day
	c.now = func() time.Time { return now }

	ctx := context.Background()
	for _, id := range []string{"r1", "r2", "r3"} {
		if _, err := c.SensorIDsForRoom(ctx, id); err != nil {
			t.Fatal(err)
		}
	}
	if c.Len() != 3 {
		t.Fatalf("Expected 3 cached lookups, got %d", c.Len())
	}

	now = now.Add(2 * time.Minute)
	if _, err := c.SensorIDsForRoom(ctx, "r1"); err != nil {
		t.Fatal(err)
	}
	if c.Len() != 1 {
		t.Errorf("Expected expired lookups to be evicted, %d left", c.Len())
	}
}

func TestCachedDirectoryReturnsCopies(t *testing.T) {
	c := NewCachedDirectory(testTree(), time.Minute)
	ctx := context.Background()

	first, err := c.SensorIDsForRoom(ctx, "r1")
	if err != nil {
		t.Fatal(err)
	}
	first[0] = "mutated"

	second, err := c.SensorIDsForRoom(ctx, "r1")
	if err != nil {
		t.Fatal(err)
	}
	if second[0] != "s1" {
		t.Errorf("Cached ids were modified through a returned slice: %v", second)
	}
}

func TestRollupEntityKPIs(t *testing.T) {
	store := measurement.NewMemoryStore()
	store.Add(measurement.Daily, "Energy", measurement.StateTotalDay, "kWh",
		measurement.Sample{Timestamp: day, Value: 40, SensorID: "s1"},
		measurement.Sample{Timestamp: day, Value: 15, SensorID: "s4"})

	r := newTestRollup(store, testTree())
	ctx := context.Background()

	k, err := r.EntityKPIs(ctx, KindSite, "site-1", dayOptions())
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(k.Energy.TotalConsumption-55) > 1e-9 || k.Energy.Base != 15 {
		t.Errorf("Expected 55 with base 15, got %+v", k.Energy)
	}

	zero, err := r.EntityKPIs(ctx, KindBuilding, "b3", dayOptions())
	if err != nil {
		t.Fatal(err)
	}
	if zero.Energy.TotalConsumption != 0 || zero.Quality.Average != 100 || len(zero.Breakdown) != 0 {
		t.Errorf("Expected zero KPI for building without sensors, got %+v", zero)
	}

	if _, err := r.EntityKPIs(ctx, KindRoom, "ghost", dayOptions()); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Expected not found, got %v", err)
	}
	if _, err := r.EntityKPIs(ctx, KindRoom, " ", dayOptions()); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("Expected validation error, got %v", err)
	}
}

func TestRollupEntitiesKPIsSharedSensor(t *testing.T) {
	store := measurement.NewMemoryStore()
	store.Add(measurement.Daily, "Energy", measurement.StateTotalDay, "kWh",
		measurement.Sample{Timestamp: day, Value: 10, SensorID: "s1"},
		measurement.Sample{Timestamp: day, Value: 20, SensorID: "s2"},
		measurement.Sample{Timestamp: day, Value: 30, SensorID: "s3"})

	r := newTestRollup(store, testTree())
	out, err := r.EntitiesKPIs(context.Background(), KindRoom, []string{"r2", "r1"}, dayOptions())
	if err != nil {
		t.Fatal(err)
	}

	if got := out["r1"].Energy.TotalConsumption; got != 30 {
		t.Errorf("Expected r1 to keep shared sensor s2 (30), got %v", got)
	}
	if got := out["r2"].Energy.TotalConsumption; got != 30 {
		t.Errorf("Expected r2 to own only s3 (30), got %v", got)
	}
}

func TestParseKind(t *testing.T) {
	for in, want := range map[string]Kind{"buildings": KindBuilding, "Site": KindSite, "sensors": KindSensor} {
		if got, err := ParseKind(in); err != nil || got != want {
			t.Errorf("ParseKind(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseKind("planet"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("Expected validation error, got %v", err)
	}
}
