package reconcile

import (
	"math"
	"testing"
	"time"

	"github.com/smukkama/energy-kpi/internal/measurement"
)

func at(day, hour int) time.Time {
	return time.Date(2024, 3, day, hour, 0, 0, 0, time.UTC)
}

func sample(ts time.Time, v float64, sensor string) measurement.Sample {
	return measurement.Sample{Timestamp: ts, Value: v, SensorID: sensor}
}

func dayWindow(day int, res measurement.Resolution) Window {
	return Window{Start: at(day, 0), End: at(day+1, 0), Resolution: res}
}

func assertResult(t *testing.T, got Result, consumption, base, average float64, c Case) {
	t.Helper()
	if math.Abs(got.Consumption-consumption) > 1e-9 {
		t.Errorf("Expected consumption %v, got %v", consumption, got.Consumption)
	}
	if math.Abs(got.Base-base) > 1e-9 {
		t.Errorf("Expected base %v, got %v", base, got.Base)
	}
	if math.Abs(got.Average-average) > 1e-9 {
		t.Errorf("Expected average %v, got %v", average, got.Average)
	}
	if got.Case != c {
		t.Errorf("Expected case %v, got %v", c, got.Case)
	}
}

func TestSingleFullPeriodSingleSensor(t *testing.T) {
	samples := []measurement.Sample{
		sample(at(14, 1), 10, "s1"),
		sample(at(14, 6), 10, "s1"),
		sample(at(14, 12), 25, "s1"),
		sample(at(14, 20), 40, "s1"),
	}

	got := Reconcile(samples, measurement.StateTotalDay, dayWindow(14, measurement.Hourly))
	assertResult(t, got, 40, 10, 40, CaseSingleFullSingleSensor)
}

func TestSingleFullPeriodUnorderedInput(t *testing.T) {
	samples := []measurement.Sample{
		sample(at(14, 20), 40, "s1"),
		sample(at(14, 1), 10, "s1"),
		sample(at(14, 12), 25, "s1"),
	}

	got := Reconcile(samples, measurement.StateTotalDay, dayWindow(14, measurement.Hourly))
	if got.Consumption != 40 {
		t.Errorf("Expected 40, got %v", got.Consumption)
	}
}

func TestSingleFullPeriodMultiSensor(t *testing.T) {
	samples := []measurement.Sample{
		sample(at(14, 2), 5, "s1"),
		sample(at(14, 22), 40, "s1"),
		sample(at(14, 3), 2, "s2"),
		sample(at(14, 21), 15, "s2"),
	}

	got := Reconcile(samples, measurement.StateTotalDay, dayWindow(14, measurement.Hourly))
	assertResult(t, got, 55, 15, 55, CaseSingleFullMultiSensor)
}

func TestSingleFullMonth(t *testing.T) {
	samples := []measurement.Sample{
		sample(at(5, 0), 100, "s1"),
		sample(at(28, 0), 250, "s1"),
	}
	w := Window{Start: at(1, 0), End: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), Resolution: measurement.Daily}

	got := Reconcile(samples, measurement.StateTotalMonth, w)
	assertResult(t, got, 250, 100, 250, CaseSingleFullSingleSensor)
}

func TestSinglePartialPeriodSingleSensor(t *testing.T) {
	samples := []measurement.Sample{
		sample(at(14, 17), 40, "s1"),
		sample(at(14, 7), 10, "s1"),
		sample(at(14, 9), 25, "s1"),
	}
	w := Window{Start: at(14, 8), End: at(14, 18), Resolution: measurement.Hourly}

	got := Reconcile(samples, measurement.StateTotalDay, w)
	assertResult(t, got, 30, 30, 30, CaseSinglePartialSingleSensor)
}

func TestSinglePartialMissingAnchorFallsBackToMax(t *testing.T) {
	samples := []measurement.Sample{
		sample(at(14, 9), 25, "s1"),
		sample(at(14, 17), 40, "s1"),
	}
	w := Window{Start: at(14, 8), End: at(14, 18), Resolution: measurement.Hourly}

	got := Reconcile(samples, measurement.StateTotalDay, w)
	if got.Consumption != 40 {
		t.Errorf("Expected fallback to max 40, got %v", got.Consumption)
	}
}

func TestSinglePartialNegativeDeltaFallsBackToMax(t *testing.T) {
	samples := []measurement.Sample{
		sample(at(14, 7), 50, "s1"),
		sample(at(14, 17), 40, "s1"),
	}
	w := Window{Start: at(14, 8), End: at(14, 18), Resolution: measurement.Hourly}

	got := Reconcile(samples, measurement.StateTotalDay, w)
	if got.Consumption != 40 {
		t.Errorf("Expected fallback to max 40, got %v", got.Consumption)
	}
}

func TestSinglePartialAnchorFromPreviousPeriodIgnored(t *testing.T) {
	samples := []measurement.Sample{
		sample(at(13, 23), 300, "s1"),
		sample(at(14, 9), 25, "s1"),
		sample(at(14, 17), 40, "s1"),
	}
	w := Window{Start: at(14, 8), End: at(14, 18), Resolution: measurement.Hourly}

	got := Reconcile(samples, measurement.StateTotalDay, w)
	if got.Consumption != 40 {
		t.Errorf("Expected 40 when the only anchor precedes the reset, got %v", got.Consumption)
	}
}

func TestSinglePartialStartingAtBoundary(t *testing.T) {
	samples := []measurement.Sample{
		sample(at(13, 23), 300, "s1"),
		sample(at(14, 3), 5, "s1"),
		sample(at(14, 11), 22, "s1"),
	}
	w := Window{Start: at(14, 0), End: at(14, 12), Resolution: measurement.Hourly}

	got := Reconcile(samples, measurement.StateTotalDay, w)
	assertResult(t, got, 22, 22, 22, CaseSinglePartialSingleSensor)
}

func TestSinglePartialMultiSensor(t *testing.T) {
	samples := []measurement.Sample{
		sample(at(14, 7), 10, "s1"),
		sample(at(14, 17), 40, "s1"),
		sample(at(14, 7), 5, "s2"),
		sample(at(14, 16), 20, "s2"),
	}
	w := Window{Start: at(14, 8), End: at(14, 18), Resolution: measurement.Hourly}

	got := Reconcile(samples, measurement.StateTotalDay, w)
	assertResult(t, got, 45, 15, 45, CaseSinglePartialMultiSensor)
}

func TestMultiPeriodOneSamplePerPeriod(t *testing.T) {
	samples := []measurement.Sample{
		sample(at(10, 0), 12, "s1"),
		sample(at(11, 0), 15, "s1"),
		sample(at(12, 0), 9, "s1"),
	}
	w := Window{Start: at(10, 0), End: at(13, 0), Resolution: measurement.Daily}

	got := Reconcile(samples, measurement.StateTotalDay, w)
	assertResult(t, got, 36, 9, 12, CaseMultiOnePerPeriod)
	if got.Periods != 3 {
		t.Errorf("Expected 3 periods, got %d", got.Periods)
	}
}

func TestMultiPeriodFinerResolution(t *testing.T) {
	samples := []measurement.Sample{
		sample(at(10, 1), 5, "s1"),
		sample(at(10, 12), 20, "s1"),
		sample(at(10, 23), 30, "s1"),
		sample(at(11, 2), 10, "s1"),
		sample(at(11, 22), 45, "s1"),
	}
	w := Window{Start: at(10, 0), End: at(12, 0), Resolution: measurement.Hourly}

	got := Reconcile(samples, measurement.StateTotalDay, w)
	assertResult(t, got, 75, 30, 37.5, CaseMultiGrouped)
}

func TestMultiPeriodFinerResolutionMultiSensor(t *testing.T) {
	samples := []measurement.Sample{
		sample(at(10, 23), 30, "s1"),
		sample(at(10, 23), 10, "s2"),
		sample(at(11, 22), 45, "s1"),
		sample(at(11, 22), 5, "s2"),
	}
	w := Window{Start: at(10, 0), End: at(12, 0), Resolution: measurement.Hourly}

	got := Reconcile(samples, measurement.StateTotalDay, w)
	assertResult(t, got, 90, 40, 45, CaseMultiGrouped)
}

func TestMultiWeekMondayAnchoredEnd(t *testing.T) {
	// Wednesday 13th to Monday 25th: partial first week, full second week
	samples := []measurement.Sample{
		sample(at(12, 23), 100, "s1"),
		sample(at(13, 10), 120, "s1"),
		sample(at(17, 20), 160, "s1"),
		sample(at(18, 5), 50, "s1"),
		sample(at(24, 20), 200, "s1"),
	}
	w := Window{Start: at(13, 0), End: at(25, 0), Resolution: measurement.Hourly}

	got := Reconcile(samples, measurement.StateTotalWeek, w)
	assertResult(t, got, 260, 60, 130, CaseMultiWeekEdge)
}

func TestMultiWeekWithoutAnchorUsesGrouping(t *testing.T) {
	samples := []measurement.Sample{
		sample(at(13, 10), 120, "s1"),
		sample(at(17, 20), 160, "s1"),
		sample(at(24, 20), 200, "s1"),
	}
	w := Window{Start: at(13, 0), End: at(25, 0), Resolution: measurement.Hourly}

	got := Reconcile(samples, measurement.StateTotalWeek, w)
	assertResult(t, got, 360, 160, 180, CaseMultiGrouped)
}

func TestMultiWeekUnalignedUsesGrouping(t *testing.T) {
	// Wednesday to Tuesday: neither edge on a Monday
	samples := []measurement.Sample{
		sample(at(12, 23), 100, "s1"),
		sample(at(17, 20), 160, "s1"),
		sample(at(19, 20), 30, "s1"),
	}
	w := Window{Start: at(13, 0), End: at(20, 0), Resolution: measurement.Hourly}

	got := Reconcile(samples, measurement.StateTotalWeek, w)
	if got.Case != CaseMultiGrouped || got.Consumption != 190 {
		t.Errorf("Expected grouped 190, got %v (%v)", got.Consumption, got.Case)
	}
}

func TestNonPeriodStateSums(t *testing.T) {
	samples := []measurement.Sample{
		sample(at(14, 1), 1, "s1"),
		sample(at(14, 2), 2, "s1"),
		sample(at(14, 3), 3, "s1"),
		sample(at(15, 3), 99, "s1"),
	}

	got := Reconcile(samples, measurement.StateTotal, dayWindow(14, measurement.Hourly))
	assertResult(t, got, 6, 1, 2, CaseSummation)

	got = Reconcile(samples[:2], "mysteryState", Window{})
	assertResult(t, got, 3, 1, 1.5, CaseSummation)
}

func TestFallbackWithoutWindow(t *testing.T) {
	sameDay := []measurement.Sample{sample(at(14, 1), 3, "s1"), sample(at(14, 5), 7, "s1")}
	got := Reconcile(sameDay, measurement.StateTotalDay, Window{})
	assertResult(t, got, 7, 3, 7, CaseFallback)

	twoDays := []measurement.Sample{sample(at(14, 1), 3, "s1"), sample(at(15, 5), 7, "s1")}
	got = Reconcile(twoDays, measurement.StateTotalDay, Window{})
	assertResult(t, got, 10, 3, 5, CaseFallback)
}

func TestEmptyWindow(t *testing.T) {
	samples := []measurement.Sample{sample(at(13, 1), 3, "s1")}
	got := Reconcile(samples, measurement.StateTotalDay, dayWindow(14, measurement.Hourly))
	if got.Case != CaseEmpty || got.Consumption != 0 {
		t.Errorf("Expected empty result, got %+v", got)
	}
}
