package units

import (
	"math"
	"testing"
)

func TestConvertDistance(t *testing.T) {
	tests := []struct {
		name       string
		distanceCM float64
		units      string
		expected   float64
	}{
		{"100 cm to m", 100.0, M, 1.0},
		{"100 cm to in", 100.0, IN, 39.3701},
		{"100 cm to ft", 100.0, FT, 3.28084},
		{"100 cm to cm", 100.0, CM, 100.0},
		{"unknown units default to cm", 100.0, "unknown", 100.0},
		{"zero distance", 0.0, M, 0.0},
		{"gate threshold 100 cm to ft", 100.0, FT, 3.28084},
		{"far wall 350 cm to m", 350.0, M, 3.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ConvertDistance(tt.distanceCM, tt.units)
			if math.Abs(result-tt.expected) > 0.01 { // Allow small floating point differences
				t.Errorf("ConvertDistance(%f, %s) = %f, want %f", tt.distanceCM, tt.units, result, tt.expected)
			}
		})
	}
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		name     string
		unit     string
		expected bool
	}{
		{"cm is valid", CM, true},
		{"m is valid", M, true},
		{"in is valid", IN, true},
		{"ft is valid", FT, true},
		{"empty is invalid", "", false},
		{"mm is invalid", "mm", false},
		{"uppercase is invalid", "CM", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValid(tt.unit); got != tt.expected {
				t.Errorf("IsValid(%q) = %v, want %v", tt.unit, got, tt.expected)
			}
		})
	}
}

func TestGetValidUnitsString(t *testing.T) {
	if got := GetValidUnitsString(); got != "cm, m, in, ft" {
		t.Errorf("GetValidUnitsString() = %q", got)
	}
}
