package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatFloat(t *testing.T) {
	tests := []struct {
		name      string
		value     float64
		precision int
		want      string
	}{
		{"three digits", 1.23456, 3, "1.235"},
		{"zero digits", 2.7, 0, "3"},
		{"negative value", -0.5, 2, "-0.50"},
		{"negative precision falls back to default", 1.5, -1, "1.500"},
		{"zero", 0, 3, "0.000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatFloat(tt.value, tt.precision))
		})
	}
}

func TestKnotsConversion(t *testing.T) {
	// 100 kias must come out as 51.444 m/s at precision 3.
	assert.Equal(t, "51.444", formatFloat(100*knotsToMetersPerSec, 3))
}

func TestFormatFloatArray(t *testing.T) {
	tests := []struct {
		name       string
		vals       []float64
		conversion float64
		fixedCount int
		precision  int
		want       string
	}{
		{"trims trailing zeros without fixed count", []float64{2, 0, 0}, noConversion, 0, 3, "2.000"},
		{"fixed count keeps trailing zeros", []float64{2, 0, 0}, noConversion, 3, 3, "2.000~0.000~0.000"},
		{"fixed count truncates extras", []float64{1, 2, 3, 4}, noConversion, 2, 3, "1.000~2.000"},
		{"all zeros keeps one element", []float64{0, 0, 0}, noConversion, 0, 3, "0.000"},
		{"interior zero survives trimming", []float64{1, 0, 2}, noConversion, 0, 3, "1.000~0.000~2.000"},
		{"conversion applied per element", []float64{1, 2}, radPerSecToRPM, 2, 2, "9.55~19.10"},
		{"empty input", nil, noConversion, 0, 3, ""},
		{"fixed count larger than input", []float64{5}, noConversion, 3, 1, "5.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatFloatArray(tt.vals, tt.conversion, tt.fixedCount, tt.precision)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatBool(t *testing.T) {
	assert.Equal(t, "1", formatBool(true))
	assert.Equal(t, "0", formatBool(false))
}
