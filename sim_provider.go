package main

// DataRef is an opaque handle to one named simulation variable. The zero
// value means "not found"; every getter treats it as a valid input and
// returns a zero value, so a failed lookup degrades to missing telemetry
// instead of a fault.
type DataRef int

func (r DataRef) Valid() bool { return r != 0 }

// DataRefKind tags the native type of a subscribed variable.
type DataRefKind int

const (
	KindInt DataRefKind = iota
	KindFloat
	KindDouble
)

// ParseDataRefKind maps the wire-level type names used by SUBSCRIBE
// commands to a kind tag.
func ParseDataRefKind(s string) (DataRefKind, bool) {
	switch s {
	case "int":
		return KindInt, true
	case "float":
		return KindFloat, true
	case "double":
		return KindDouble, true
	}
	return 0, false
}

func (k DataRefKind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindDouble:
		return "double"
	}
	return "unknown"
}

// SimDataProvider abstracts a simulator connection (SimConnect, X-Plane
// UDP, in-memory) behind typed reads and writes of named variables.
type SimDataProvider interface {
	Connect() error
	Disconnect() error
	Name() string

	// FindDataRef resolves a provider-specific variable name. The zero
	// DataRef signals that the variable does not exist.
	FindDataRef(name string) DataRef

	GetInt(ref DataRef) int
	GetFloat(ref DataRef) float64
	GetDouble(ref DataRef) float64
	// GetFloatArray returns at most max elements of an array variable.
	GetFloatArray(ref DataRef, max int) []float64
	SetInt(ref DataRef, v int)
	SetFloat(ref DataRef, v float64)

	// AircraftName is the user-visible aircraft description; may be
	// blank, in which case AircraftModelFile is the fallback.
	AircraftName() string
	AircraftModelFile() string
	// ElapsedTime is the simulator's running time in seconds.
	ElapsedTime() float64
}
