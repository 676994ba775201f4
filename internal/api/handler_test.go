package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/smukkama/energy-kpi/internal/analytics"
	"github.com/smukkama/energy-kpi/internal/apperr"
	"github.com/smukkama/energy-kpi/internal/hierarchy"
	"github.com/smukkama/energy-kpi/internal/kpi"
	"github.com/smukkama/energy-kpi/internal/kpicache"
	"github.com/smukkama/energy-kpi/internal/measurement"
	"github.com/smukkama/energy-kpi/internal/planner"
)

var day = time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)

const window = "start=2024-03-05T00:00:00Z&end=2024-03-06T00:00:00Z"

type fakeService struct {
	err      error
	lastKind hierarchy.Kind
	lastOpts kpi.Options
}

func (f *fakeService) GetEntityKPIs(_ context.Context, kind hierarchy.Kind, _ string, opts kpi.Options) (kpi.EntityKPI, error) {
	f.lastKind, f.lastOpts = kind, opts
	return kpi.ZeroKPI(), f.err
}

func (f *fakeService) GetEntitiesKPIs(_ context.Context, kind hierarchy.Kind, ids []string, opts kpi.Options) (map[string]kpi.EntityKPI, error) {
	f.lastKind, f.lastOpts = kind, opts
	out := make(map[string]kpi.EntityKPI, len(ids))
	for _, id := range ids {
		out[id] = kpi.ZeroKPI()
	}
	return out, f.err
}

func (f *fakeService) GetBuildingAnalytics(_ context.Context, id string, opts kpi.Options) (*analytics.BuildingAnalytics, error) {
	f.lastOpts = opts
	if f.err != nil {
		return nil, f.err
	}
	return &analytics.BuildingAnalytics{
		BuildingID: id,
		Start:      opts.Start,
		End:        opts.End,
		KPIs:       kpi.ZeroKPI(),
		Analytics:  map[string]analytics.Result{"eui": {Available: true, Data: map[string]any{"eui": 2.0}}},
	}, nil
}

func serve(t *testing.T, svc Service, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	NewHandler(svc, nil, zap.NewNop()).Router().ServeHTTP(rec, req)
	return rec
}

func TestEntityKPIs(t *testing.T) {
	store := measurement.NewMemoryStore()
	store.Add(measurement.Daily, "Energy", measurement.StateTotalDay, "kWh",
		measurement.Sample{Timestamp: day, Value: 200, SensorID: "e1"},
		measurement.Sample{Timestamp: day, Value: 50, SensorID: "e2"},
	)
	dir := &hierarchy.Static{
		Buildings: map[string][]string{"b1": {"f1"}},
		Floors:    map[string][]string{"f1": {"r1", "r2"}},
		Rooms:     map[string][]string{"r1": {"e1"}, "r2": {"e2"}},
	}
	engine := kpi.NewEngine(store, planner.New(time.UTC), kpi.NewAggregator(zap.NewNop(), 90), nil, zap.NewNop())
	engine.SetClock(func() time.Time { return day.AddDate(0, 1, 0) })
	rollup := hierarchy.NewRollup(dir, engine, zap.NewNop())
	orch := analytics.NewOrchestrator(rollup, kpicache.NewMemory(time.Minute), nil, nil, analytics.DefaultTimeouts, nil, zap.NewNop())

	rec := serve(t, orch, http.MethodGet, "/api/v1/buildings/b1/kpis?"+window, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var got kpi.EntityKPI
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Energy.TotalConsumption != 250 {
		t.Errorf("Expected 250 kWh, got %v", got.Energy.TotalConsumption)
	}

	rec = serve(t, orch, http.MethodPost, "/api/v1/rooms/kpis?"+window, `{"ids":["r1","r2"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var batch map[string]kpi.EntityKPI
	if err := json.NewDecoder(rec.Body).Decode(&batch); err != nil {
		t.Fatal(err)
	}
	if batch["r1"].Energy.TotalConsumption != 200 || batch["r2"].Energy.TotalConsumption != 50 {
		t.Errorf("Unexpected batch result: %+v", batch)
	}
}

func TestQueryOptions(t *testing.T) {
	svc := &fakeService{}
	rec := serve(t, svc, http.MethodGet, "/api/v1/floors/f1/kpis?"+window+"&interval=Daily&resolution=60&measurementType=Energy&stateType=totalDay", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.lastKind != hierarchy.KindFloor {
		t.Errorf("Expected floor, got %s", svc.lastKind)
	}
	o := svc.lastOpts
	if o.Interval != planner.IntervalDaily || o.Resolution == nil || *o.Resolution != measurement.Hourly ||
		o.MeasurementType != "Energy" || o.StateType != measurement.StateTotalDay {
		t.Errorf("Unexpected options: %+v", o)
	}
}

func TestBuildingAnalytics(t *testing.T) {
	rec := serve(t, &fakeService{}, http.MethodGet, "/api/v1/buildings/b1/analytics?"+window, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var got analytics.BuildingAnalytics
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.BuildingID != "b1" || !got.Analytics["eui"].Available {
		t.Errorf("Unexpected report: %+v", got)
	}
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target string
		want   int
	}{
		{"missing start", nil, "/api/v1/buildings/b1/kpis?end=2024-03-06T00:00:00Z", http.StatusBadRequest},
		{"bad time", nil, "/api/v1/buildings/b1/kpis?start=yesterday&end=2024-03-06T00:00:00Z", http.StatusBadRequest},
		{"inverted", nil, "/api/v1/buildings/b1/kpis?start=2024-03-06T00:00:00Z&end=2024-03-05T00:00:00Z", http.StatusBadRequest},
		{"bad resolution", nil, "/api/v1/buildings/b1/kpis?" + window + "&resolution=7", http.StatusBadRequest},
		{"unknown kind", nil, "/api/v1/planets/p1/kpis?" + window, http.StatusBadRequest},
		{"not found", apperr.NotFound("building", "b9"), "/api/v1/buildings/b9/kpis?" + window, http.StatusNotFound},
		{"unavailable", apperr.Unavailable("database", errors.New("refused")), "/api/v1/buildings/b1/kpis?" + window, http.StatusServiceUnavailable},
		{"forbidden", &apperr.Error{Kind: apperr.KindAuthorization, Msg: "denied"}, "/api/v1/buildings/b1/analytics?" + window, http.StatusForbidden},
		{"timeout", apperr.Timeout("report"), "/api/v1/buildings/b1/analytics?" + window, http.StatusGatewayTimeout},
		{"internal", errors.New("boom"), "/api/v1/buildings/b1/kpis?" + window, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, &fakeService{err: tt.err}, http.MethodGet, tt.target, "")
			if rec.Code != tt.want {
				t.Errorf("Expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestBatchValidation(t *testing.T) {
	for _, body := range []string{`{"ids":[]}`, `not json`} {
		rec := serve(t, &fakeService{}, http.MethodPost, "/api/v1/rooms/kpis?"+window, body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Body %q: expected 400, got %d", body, rec.Code)
		}
	}
}

func TestRequestID(t *testing.T) {
	rec := serve(t, &fakeService{}, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("Expected a generated request id")
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc")
	rec = httptest.NewRecorder()
	NewHandler(&fakeService{}, nil, nil).Router().ServeHTTP(rec, req)
	if rec.Header().Get(RequestIDHeader) != "abc" {
		t.Errorf("Expected request id to be echoed, got %q", rec.Header().Get(RequestIDHeader))
	}
}
