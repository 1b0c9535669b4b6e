package main

import "sync"

// OverrideState is the shared record of which control-axis groups the FFB
// controller currently owns, plus the last axis positions it sent. The
// frame loop reads it while pushing values into the simulator; status
// accessors may be called from other goroutines, so every access takes
// the lock and each command applies as one critical section.
type OverrideState struct {
	mu         sync.Mutex
	joystick   bool
	pedals     bool
	collective bool
	axis       map[string]float64
}

func NewOverrideState() *OverrideState {
	return &OverrideState{
		axis: map[string]float64{"jx": 0, "jy": 0, "px": 0, "cy": 0},
	}
}

// SetAxes applies all pairs from one AXIS command atomically, creating
// keys that were not preset.
func (o *OverrideState) SetAxes(values []AxisValue) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, v := range values {
		o.axis[v.Key] = v.Value
	}
}

// SetFlag toggles a single override flag; the other flags are untouched.
func (o *OverrideState) SetFlag(target OverrideTarget, enabled bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch target {
	case OverrideJoystick:
		o.joystick = enabled
	case OverridePedals:
		o.pedals = enabled
	case OverrideCollective:
		o.collective = enabled
	}
}

// Flags returns the three override flags as one consistent read.
func (o *OverrideState) Flags() (joystick, pedals, collective bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.joystick, o.pedals, o.collective
}

// Axis returns the last received value for one axis key.
func (o *OverrideState) Axis(key string) float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.axis[key]
}

// snapshotAxes copies the values the frame loop needs while holding the
// lock once, so a concurrent AXIS command cannot be observed half-applied.
func (o *OverrideState) snapshotAxes() (joystick, pedals, collective bool, jx, jy, px, cy float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.joystick, o.pedals, o.collective,
		o.axis["jx"], o.axis["jy"], o.axis["px"], o.axis["cy"]
}

// flightControls holds the writable control datarefs the bridge pushes
// override state into: the per-axis override enables and the yoke /
// pedal / collective position ratios.
type flightControls struct {
	provider SimDataProvider

	rollOverride       DataRef
	pitchOverride      DataRef
	yawOverride        DataRef
	collectiveOverride DataRef

	rollRatio       DataRef
	pitchRatio      DataRef
	yawRatio        DataRef
	collectiveRatio DataRef
}

func newFlightControls(provider SimDataProvider) *flightControls {
	return &flightControls{
		provider:           provider,
		rollOverride:       provider.FindDataRef("sim/operation/override/override_joystick_roll"),
		pitchOverride:      provider.FindDataRef("sim/operation/override/override_joystick_pitch"),
		yawOverride:        provider.FindDataRef("sim/operation/override/override_joystick_heading"),
		collectiveOverride: provider.FindDataRef("sim/operation/override/override_prop_pitch"),
		rollRatio:          provider.FindDataRef("sim/joystick/yoke_roll_ratio"),
		pitchRatio:         provider.FindDataRef("sim/joystick/yoke_pitch_ratio"),
		yawRatio:           provider.FindDataRef("sim/joystick/yoke_heading_ratio"),
		collectiveRatio:    provider.FindDataRef("sim/cockpit2/engine/actuators/prop_ratio_all"),
	}
}

// setOverride flips the simulator-side override enables for one target.
// "joystick" owns both roll and pitch.
func (c *flightControls) setOverride(target OverrideTarget, enabled bool) {
	v := 0
	if enabled {
		v = 1
	}
	switch target {
	case OverrideJoystick:
		c.provider.SetInt(c.rollOverride, v)
		c.provider.SetInt(c.pitchOverride, v)
	case OverridePedals:
		c.provider.SetInt(c.yawOverride, v)
	case OverrideCollective:
		c.provider.SetInt(c.collectiveOverride, v)
	}
}

// pushAxes writes the received axis positions into the simulator for
// every active override group.
func (c *flightControls) pushAxes(state *OverrideState) {
	joystick, pedals, collective, jx, jy, px, cy := state.snapshotAxes()
	if joystick {
		c.provider.SetFloat(c.rollRatio, jx)
		c.provider.SetFloat(c.pitchRatio, jy)
	}
	if pedals {
		c.provider.SetFloat(c.yawRatio, px)
	}
	if collective {
		c.provider.SetFloat(c.collectiveRatio, cy)
	}
}
