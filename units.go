package main

import (
	"strconv"
	"strings"
)

// Conversion factors applied before formatting telemetry values. The
// controller expects airspeeds in m/s, engine speeds in rpm and body
// accelerations in g.
const (
	knotsToMetersPerSec = 0.51444
	radPerSecToRPM      = 9.5493
	feetPerSec2ToG      = 0.031081
	noConversion        = 1.0
)

// defaultPrecision is the decimal-digit count used when a subscription or
// field does not ask for one.
const defaultPrecision = 3

// formatFloat renders v as fixed-point decimal text with the given number
// of digits after the point.
func formatFloat(v float64, precision int) string {
	if precision < 0 {
		precision = defaultPrecision
	}
	return strconv.FormatFloat(v, 'f', precision, 64)
}

// formatFloatArray joins array elements with '~' after applying the
// conversion factor. With fixedCount > 0 exactly that many elements are
// kept, including trailing zeros (idle engine RPM is still meaningful).
// Without a fixed count, trailing zero-valued elements are trimmed so the
// payload length tracks the installed hardware; at least one element is
// always kept.
func formatFloatArray(vals []float64, conversion float64, fixedCount, precision int) string {
	if len(vals) == 0 {
		return ""
	}

	if fixedCount > 0 {
		if fixedCount < len(vals) {
			vals = vals[:fixedCount]
		}
	} else {
		end := len(vals)
		for end > 1 && vals[end-1] == 0 {
			end--
		}
		vals = vals[:end]
	}

	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = formatFloat(v*conversion, precision)
	}
	return strings.Join(parts, "~")
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
