package units

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		value float64
		unit  string
		want  float64
	}{
		{1500, "Wh", 1.5},
		{2, "kWh", 2},
		{0.25, "MWh", 250},
		{3200, "W", 3.2},
		{4, "kW", 4},
		{1.5, "MW", 1500},
		{500, "L", 0.5},
		{500, "l", 0.5},
		{7, "m³", 7},
		{7, "m^3", 7},
		{212, "°F", 100},
		{21.5, "°C", 21.5},
		{1500, "wh", 1.5},
		{2, "KWH", 2},
		{42, "furlongs", 42},
		{42, "", 42},
	}

	for _, tt := range tests {
		if got := Normalize(tt.value, tt.unit); !almostEqual(got, tt.want) {
			t.Errorf("Normalize(%v, %q) = %v, want %v", tt.value, tt.unit, got, tt.want)
		}
	}
}

func TestNormalizeExactMatchPriority(t *testing.T) {
	// "mw" folds to "MW"; exact "W" must not be mistaken for anything else
	if got := Normalize(1000, "W"); !almostEqual(got, 1) {
		t.Errorf("Expected W to convert to 1 kW, got %v", got)
	}
	if got := Normalize(1, "mw"); !almostEqual(got, 1000) {
		t.Errorf("Expected mw to fold to MW, got %v", got)
	}
}

func TestNormalizeLinearAndRoundTrip(t *testing.T) {
	linear := []string{"Wh", "kWh", "MWh", "W", "kW", "MW", "L", "m³"}
	for _, unit := range linear {
		a, b := 3.7, 11.2
		if !almostEqual(Normalize(a+b, unit), Normalize(a, unit)+Normalize(b, unit)) {
			t.Errorf("Normalize not additive for %s", unit)
		}
		if !almostEqual(Normalize(2*a, unit), 2*Normalize(a, unit)) {
			t.Errorf("Normalize not homogeneous for %s", unit)
		}
	}

	for _, v := range []float64{0, 0.001, 12.345, 98765.4321} {
		wh := v * 1000
		if got := Normalize(wh, "Wh"); !almostEqual(got, v) {
			t.Errorf("kWh->Wh->kWh round trip lost precision: %v -> %v", v, got)
		}
		mwh := v / 1000
		if got := Normalize(mwh, "MWh"); !almostEqual(got, v) {
			t.Errorf("kWh->MWh->kWh round trip lost precision: %v -> %v", v, got)
		}
	}
}

func TestNormalizeUnit(t *testing.T) {
	if NormalizeUnit("Wh") != KWh || NormalizeUnit("MW") != KW || NormalizeUnit("l") != M3 || NormalizeUnit("°F") != Celsius {
		t.Error("Unexpected base unit mapping")
	}
	if NormalizeUnit("lux") != "lux" {
		t.Error("Unknown unit should pass through")
	}
	if !Recognized("kwh") || Recognized("lux") {
		t.Error("Unexpected Recognized result")
	}
}

func TestBaseUnit(t *testing.T) {
	cases := map[string]string{
		"Energy":      KWh,
		"Power":       KW,
		"Temperature": Celsius,
		"Water":       M3,
		"Heating":     M3,
		"Gas":         M3,
		"Humidity":    "",
	}
	for mt, want := range cases {
		if got := BaseUnit(mt); got != want {
			t.Errorf("BaseUnit(%s) = %q, want %q", mt, got, want)
		}
	}
}
