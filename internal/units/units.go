package units

import "strings"

// Base units per measurement family
const (
	KWh     = "kWh"
	KW      = "kW"
	M3      = "m³"
	Celsius = "°C"
)

type conversion struct {
	base    string
	convert func(float64) float64
}

func scale(factor float64) func(float64) float64 {
	return func(v float64) float64 { return v * factor }
}

var conversions = map[string]conversion{
	"Wh":  {KWh, scale(1.0 / 1000)},
	"kWh": {KWh, scale(1)},
	"MWh": {KWh, scale(1000)},
	"W":   {KW, scale(1.0 / 1000)},
	"kW":  {KW, scale(1)},
	"MW":  {KW, scale(1000)},
	"L":   {M3, scale(1.0 / 1000)},
	"l":   {M3, scale(1.0 / 1000)},
	"m³":  {M3, scale(1)},
	"m^3": {M3, scale(1)},
	"°F":  {Celsius, func(v float64) float64 { return (v - 32) * 5 / 9 }},
	"°C":  {Celsius, scale(1)},
}

// lookup finds the conversion for unit: exact match first, then the first
// case-insensitive match in foldOrder.
func lookup(unit string) (conversion, bool) {
	if c, ok := conversions[unit]; ok {
		return c, true
	}
	for _, key := range foldOrder {
		if strings.EqualFold(key, unit) {
			return conversions[key], true
		}
	}
	return conversion{}, false
}

var foldOrder = []string{"Wh", "kWh", "MWh", "W", "kW", "MW", "L", "m³", "m^3", "°F", "°C"}

// Normalize converts value expressed in unit to its family's base unit.
// Unknown or empty units return value unchanged.
func Normalize(value float64, unit string) float64 {
	c, ok := lookup(strings.TrimSpace(unit))
	if !ok {
		return value
	}
	return c.convert(value)
}

// NormalizeUnit returns the base unit a value in unit normalizes to,
// or unit itself when it is not recognized.
func NormalizeUnit(unit string) string {
	c, ok := lookup(strings.TrimSpace(unit))
	if !ok {
		return unit
	}
	return c.base
}

// Recognized reports whether unit has a known conversion
func Recognized(unit string) bool {
	_, ok := lookup(strings.TrimSpace(unit))
	return ok
}

// BaseUnit returns the canonical unit for a measurement type, or "" if none
func BaseUnit(measurementType string) string {
	switch measurementType {
	case "Energy":
		return KWh
	case "Power":
		return KW
	case "Temperature":
		return Celsius
	case "Water", "Heating", "Gas":
		return M3
	default:
		return ""
	}
}
