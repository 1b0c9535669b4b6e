package main

import (
	"log/slog"
	"math"
	"sync"
	"time"
)

// MemoryProvider is an in-memory SimDataProvider. Local mode runs the
// bridge against it so the wire protocol can be exercised without a
// simulator; tests use it to script variable values and observe writes.
type MemoryProvider struct {
	mu        sync.Mutex
	names     []string // handle id-1 → name
	handles   map[string]DataRef
	scalars   map[DataRef]float64
	arrays    map[DataRef][]float64
	writes    map[string]float64
	started   time.Time
	aircraft  string
	modelFile string
	demo      bool
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		handles:   map[string]DataRef{},
		scalars:   map[DataRef]float64{},
		arrays:    map[DataRef][]float64{},
		writes:    map[string]float64{},
		aircraft:  "Local Test Aircraft",
		modelFile: "local.acf",
	}
}

// NewDemoProvider returns a memory provider pre-loaded with every
// well-known variable and gently moving values, for local mode.
func NewDemoProvider() *MemoryProvider {
	p := NewMemoryProvider()
	p.demo = true
	for _, name := range demoDatarefs {
		p.Declare(name, 0)
	}
	p.SetVariable("sim/aircraft/engine/acf_num_engines", 1)
	p.SetArray("sim/aircraft/parts/acf_gear_xnodef", []float64{0.4, -1.1, 1.1})
	p.SetArray("sim/aircraft/parts/acf_gear_ynodef", []float64{-1.2, -1.2, -1.2})
	p.SetArray("sim/aircraft/parts/acf_gear_znodef", []float64{-2.0, 0.8, 0.8})
	p.SetArray("sim/flightmodel/engine/ENGN_tacrad", []float64{240})
	p.SetVariable("sim/flightmodel/position/true_airspeed", 60)
	p.SetVariable("sim/flightmodel/position/indicated_airspeed", 110)
	p.SetVariable("sim/weather/rho", 1.225)
	return p
}

func (m *MemoryProvider) Connect() error {
	m.started = time.Now()
	slog.Info("memory provider ready", "demo", m.demo)
	return nil
}

func (m *MemoryProvider) Disconnect() error { return nil }
func (m *MemoryProvider) Name() string      { return "Memory" }

// Declare creates a scalar variable so a later FindDataRef succeeds.
func (m *MemoryProvider) Declare(name string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.declareLocked(name, value)
}

func (m *MemoryProvider) declareLocked(name string, value float64) DataRef {
	if ref, ok := m.handles[name]; ok {
		m.scalars[ref] = value
		return ref
	}
	m.names = append(m.names, name)
	ref := DataRef(len(m.names))
	m.handles[name] = ref
	m.scalars[ref] = value
	return ref
}

// SetVariable declares name if needed and sets its scalar value.
func (m *MemoryProvider) SetVariable(name string, value float64) {
	m.Declare(name, value)
}

// SetArray declares name as an array variable.
func (m *MemoryProvider) SetArray(name string, values []float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ref := m.declareLocked(name, 0)
	m.arrays[ref] = append([]float64(nil), values...)
}

// SetAircraft changes the reported aircraft identity.
func (m *MemoryProvider) SetAircraft(name, modelFile string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aircraft = name
	m.modelFile = modelFile
}

// WrittenValue reports the last value written to name, if any.
func (m *MemoryProvider) WrittenValue(name string) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.writes[name]
	return v, ok
}

func (m *MemoryProvider) FindDataRef(name string) DataRef {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ref, ok := m.handles[name]; ok {
		return ref
	}
	if m.demo {
		// Demo mode accepts any name so SUBSCRIBE commands work.
		return m.declareLocked(name, 0)
	}
	return 0
}

func (m *MemoryProvider) nameFor(ref DataRef) string {
	idx := int(ref) - 1
	if idx < 0 || idx >= len(m.names) {
		return ""
	}
	return m.names[idx]
}

func (m *MemoryProvider) GetInt(ref DataRef) int       { return int(m.GetDouble(ref)) }
func (m *MemoryProvider) GetFloat(ref DataRef) float64 { return m.GetDouble(ref) }

func (m *MemoryProvider) GetDouble(ref DataRef) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := m.scalars[ref]
	if m.demo && m.nameFor(ref) == "sim/flightmodel/forces/g_nrml" {
		// A slow oscillation so the controller sees motion.
		v = 1 + 0.1*math.Sin(time.Since(m.started).Seconds())
	}
	return v
}

func (m *MemoryProvider) GetFloatArray(ref DataRef, max int) []float64 {
	if max <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	vals := m.arrays[ref]
	if len(vals) > max {
		vals = vals[:max]
	}
	return append([]float64(nil), vals...)
}

func (m *MemoryProvider) SetInt(ref DataRef, v int) { m.SetFloat(ref, float64(v)) }

func (m *MemoryProvider) SetFloat(ref DataRef, v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name := m.nameFor(ref)
	if name == "" {
		return
	}
	m.scalars[ref] = v
	m.writes[name] = v
}

func (m *MemoryProvider) AircraftName() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.aircraft
}

func (m *MemoryProvider) AircraftModelFile() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.modelFile
}

func (m *MemoryProvider) ElapsedTime() float64 {
	if m.started.IsZero() {
		return 0
	}
	return time.Since(m.started).Seconds()
}

// demoDatarefs seeds the demo provider with the fixed field set plus the
// writable control refs, so every lookup in the builder succeeds.
var demoDatarefs = []string{
	"sim/time/paused",
	"sim/flightmodel/failures/onground_all",
	"sim/aircraft/gear/acf_gear_retract",
	"sim/cockpit2/controls/flap_system_deploy_ratio",
	"sim/flightmodel2/gear/deploy_ratio",
	"sim/flightmodel/forces/g_axil",
	"sim/flightmodel/forces/g_nrml",
	"sim/flightmodel/forces/g_side",
	"sim/flightmodel/position/local_ax",
	"sim/flightmodel/position/local_ay",
	"sim/flightmodel/position/local_az",
	"sim/flightmodel/forces/vx_acf_axis",
	"sim/flightmodel/forces/vy_acf_axis",
	"sim/flightmodel/forces/vz_acf_axis",
	"sim/flightmodel/position/true_airspeed",
	"sim/flightmodel/position/indicated_airspeed",
	"sim/weather/rho",
	"sim/flightmodel/misc/Qstatic",
	"sim/flightmodel/position/alpha",
	"sim/aircraft/overflow/acf_stall_warn_alpha",
	"sim/flightmodel/position/beta",
	"sim/flightmodel2/gear/tire_vertical_deflection_mtr",
	"sim/aircraft/engine/acf_num_engines",
	"sim/flightmodel/engine/ENGN_tacrad",
	"sim/flightmodel/engine/ENGN_N1_",
	"sim/flightmodel2/engines/afterburner_ratio",
	"sim/flightmodel/engine/POINT_tacrad",
	"sim/flightmodel/engine/POINT_thrust",
	"sim/flightmodel/controls/ldruddef",
	"sim/flightmodel/controls/rdruddef",
	"sim/aircraft/view/acf_Vne",
	"sim/aircraft/view/acf_Vso",
	"sim/aircraft/view/acf_Vfe",
	"sim/aircraft/overflow/acf_Vle",
	"sim/cockpit/autopilot/autopilot_mode",
	"sim/cockpit2/autopilot/servos_on",
	"sim/joystick/servo_heading_ratio",
	"sim/joystick/servo_pitch_ratio",
	"sim/joystick/servo_roll_ratio",
	"sim/flightmodel2/controls/elevator_trim",
	"sim/flightmodel2/controls/aileron_trim",
	"sim/flightmodel2/controls/rudder_trim",
	"sim/flightmodel/controls/canopy_ratio",
	"sim/flightmodel2/controls/speedbrake_ratio",
	"sim/aircraft/parts/acf_gear_xnodef",
	"sim/aircraft/parts/acf_gear_ynodef",
	"sim/aircraft/parts/acf_gear_znodef",
	"sim/flightmodel/misc/act_frc_ptch_lb",
	"sim/flightmodel/misc/act_frc_roll_lb",
	"sim/flightmodel/misc/act_frc_hdgn_lb",
	"sim/operation/override/override_joystick_roll",
	"sim/operation/override/override_joystick_pitch",
	"sim/operation/override/override_joystick_heading",
	"sim/operation/override/override_prop_pitch",
	"sim/joystick/yoke_roll_ratio",
	"sim/joystick/yoke_pitch_ratio",
	"sim/joystick/yoke_heading_ratio",
	"sim/cockpit2/engine/actuators/prop_ratio_all",
}
