package main

import (
	"log/slog"
	"strconv"
	"strings"
)

// maxGearNodes bounds the gear node geometry arrays read while counting
// landing gear.
const maxGearNodes = 10

// wellKnownRefs are the fixed flight-model datarefs sampled every frame,
// resolved once at builder construction.
type wellKnownRefs struct {
	paused      DataRef
	onGround    DataRef
	retractable DataRef
	flaps       DataRef
	gear        DataRef

	gsAxil DataRef
	gsNrml DataRef
	gsSide DataRef
	accX   DataRef
	accY   DataRef
	accZ   DataRef
	velX   DataRef
	velY   DataRef
	velZ   DataRef

	tas         DataRef
	ias         DataRef
	airDensity  DataRef
	dynPressure DataRef
	aoa         DataRef
	warnAlpha   DataRef
	sideSlip    DataRef

	wow         DataRef
	numEngines  DataRef
	engRPM      DataRef
	engPCT      DataRef
	afterburner DataRef
	propRPM     DataRef
	propThrust  DataRef

	rudDeflLeft  DataRef
	rudDeflRight DataRef

	vne DataRef
	vso DataRef
	vfe DataRef
	vle DataRef

	apMode     DataRef
	apServos   DataRef
	yawServo   DataRef
	pitchServo DataRef
	rollServo  DataRef

	elevTrim    DataRef
	aileronTrim DataRef
	rudderTrim  DataRef

	canopyPos     DataRef
	speedbrakePos DataRef

	gearXNode DataRef
	gearYNode DataRef
	gearZNode DataRef

	stickForcePitch DataRef
	stickForceRoll  DataRef
	stickForceYaw   DataRef
}

func resolveWellKnownRefs(p SimDataProvider) wellKnownRefs {
	return wellKnownRefs{
		paused:      p.FindDataRef("sim/time/paused"),
		onGround:    p.FindDataRef("sim/flightmodel/failures/onground_all"),
		retractable: p.FindDataRef("sim/aircraft/gear/acf_gear_retract"),
		flaps:       p.FindDataRef("sim/cockpit2/controls/flap_system_deploy_ratio"),
		gear:        p.FindDataRef("sim/flightmodel2/gear/deploy_ratio"),

		gsAxil: p.FindDataRef("sim/flightmodel/forces/g_axil"),
		gsNrml: p.FindDataRef("sim/flightmodel/forces/g_nrml"),
		gsSide: p.FindDataRef("sim/flightmodel/forces/g_side"),
		accX:   p.FindDataRef("sim/flightmodel/position/local_ax"),
		accY:   p.FindDataRef("sim/flightmodel/position/local_ay"),
		accZ:   p.FindDataRef("sim/flightmodel/position/local_az"),
		velX:   p.FindDataRef("sim/flightmodel/forces/vx_acf_axis"),
		velY:   p.FindDataRef("sim/flightmodel/forces/vy_acf_axis"),
		velZ:   p.FindDataRef("sim/flightmodel/forces/vz_acf_axis"),

		tas:         p.FindDataRef("sim/flightmodel/position/true_airspeed"),
		ias:         p.FindDataRef("sim/flightmodel/position/indicated_airspeed"),
		airDensity:  p.FindDataRef("sim/weather/rho"),
		dynPressure: p.FindDataRef("sim/flightmodel/misc/Qstatic"),
		aoa:         p.FindDataRef("sim/flightmodel/position/alpha"),
		warnAlpha:   p.FindDataRef("sim/aircraft/overflow/acf_stall_warn_alpha"),
		sideSlip:    p.FindDataRef("sim/flightmodel/position/beta"),

		wow:         p.FindDataRef("sim/flightmodel2/gear/tire_vertical_deflection_mtr"),
		numEngines:  p.FindDataRef("sim/aircraft/engine/acf_num_engines"),
		engRPM:      p.FindDataRef("sim/flightmodel/engine/ENGN_tacrad"),
		engPCT:      p.FindDataRef("sim/flightmodel/engine/ENGN_N1_"),
		afterburner: p.FindDataRef("sim/flightmodel2/engines/afterburner_ratio"),
		propRPM:     p.FindDataRef("sim/flightmodel/engine/POINT_tacrad"),
		propThrust:  p.FindDataRef("sim/flightmodel/engine/POINT_thrust"),

		rudDeflLeft:  p.FindDataRef("sim/flightmodel/controls/ldruddef"),
		rudDeflRight: p.FindDataRef("sim/flightmodel/controls/rdruddef"),

		vne: p.FindDataRef("sim/aircraft/view/acf_Vne"),
		vso: p.FindDataRef("sim/aircraft/view/acf_Vso"),
		vfe: p.FindDataRef("sim/aircraft/view/acf_Vfe"),
		vle: p.FindDataRef("sim/aircraft/overflow/acf_Vle"),

		apMode:     p.FindDataRef("sim/cockpit/autopilot/autopilot_mode"),
		apServos:   p.FindDataRef("sim/cockpit2/autopilot/servos_on"),
		yawServo:   p.FindDataRef("sim/joystick/servo_heading_ratio"),
		pitchServo: p.FindDataRef("sim/joystick/servo_pitch_ratio"),
		rollServo:  p.FindDataRef("sim/joystick/servo_roll_ratio"),

		elevTrim:    p.FindDataRef("sim/flightmodel2/controls/elevator_trim"),
		aileronTrim: p.FindDataRef("sim/flightmodel2/controls/aileron_trim"),
		rudderTrim:  p.FindDataRef("sim/flightmodel2/controls/rudder_trim"),

		canopyPos:     p.FindDataRef("sim/flightmodel/controls/canopy_ratio"),
		speedbrakePos: p.FindDataRef("sim/flightmodel2/controls/speedbrake_ratio"),

		gearXNode: p.FindDataRef("sim/aircraft/parts/acf_gear_xnodef"),
		gearYNode: p.FindDataRef("sim/aircraft/parts/acf_gear_ynodef"),
		gearZNode: p.FindDataRef("sim/aircraft/parts/acf_gear_znodef"),

		stickForcePitch: p.FindDataRef("sim/flightmodel/misc/act_frc_ptch_lb"),
		stickForceRoll:  p.FindDataRef("sim/flightmodel/misc/act_frc_roll_lb"),
		stickForceYaw:   p.FindDataRef("sim/flightmodel/misc/act_frc_hdgn_lb"),
	}
}

// simValue is the tagged working representation of one sampled variable
// before it is formatted for the wire.
type simValue struct {
	kind  DataRefKind
	array bool
	i     int
	f     float64
	arr   []float64
}

func (v simValue) format(precision int, conversion float64) string {
	if v.array {
		return formatFloatArray(v.arr, conversion, 0, precision)
	}
	switch v.kind {
	case KindInt:
		return strconv.Itoa(v.i)
	default:
		return formatFloat(v.f*conversion, precision)
	}
}

// SnapshotBuilder samples the well-known field set plus every registered
// subscription into the per-frame telemetry snapshot. It is touched only
// by the frame loop and needs no locking of its own; the registry hands
// it a copied subscription slice.
type SnapshotBuilder struct {
	provider  SimDataProvider
	registry  *DataPointRegistry
	overrides *OverrideState
	refs      wellKnownRefs
	source    string

	aircraftName     string
	prevAircraftName string

	// Once-per-aircraft facts, recomputed only when the name changes.
	numEngines    int
	numGear       int
	aircraftFacts map[string]string

	paused bool
}

func NewSnapshotBuilder(provider SimDataProvider, registry *DataPointRegistry, overrides *OverrideState) *SnapshotBuilder {
	return &SnapshotBuilder{
		provider:      provider,
		registry:      registry,
		overrides:     overrides,
		refs:          resolveWellKnownRefs(provider),
		source:        sourceTag(provider.Name()),
		numGear:       3,
		aircraftFacts: map[string]string{},
	}
}

// sourceTag normalizes a provider name to the uppercase source token the
// controller keys on ("X-Plane" → "XPLANE").
func sourceTag(name string) string {
	return strings.ToUpper(strings.ReplaceAll(name, "-", ""))
}

// Paused reports whether the simulator was paused as of the last Build.
func (b *SnapshotBuilder) Paused() bool { return b.paused }

// AircraftName returns the name recorded by the last Build.
func (b *SnapshotBuilder) AircraftName() string { return b.aircraftName }

// Build samples everything and returns the formatted snapshot for this
// frame. It never fails; missing variables read as zero.
func (b *SnapshotBuilder) Build() map[string]string {
	p := b.provider
	refs := b.refs

	b.aircraftName = p.AircraftName()
	if b.aircraftName == "" {
		b.aircraftName = p.AircraftModelFile()
	}
	if b.aircraftName != b.prevAircraftName {
		b.refreshAircraftFacts()
		b.prevAircraftName = b.aircraftName
	}

	snap := make(map[string]string, 48+len(b.aircraftFacts)+b.registry.Len())
	for key, value := range b.aircraftFacts {
		snap[key] = value
	}

	for _, sub := range b.registry.Subscriptions() {
		value, ok := b.readSubscription(sub)
		if !ok {
			continue
		}
		snap[sub.Key] = value.format(sub.Precision, sub.Conversion)
	}

	b.paused = p.GetInt(refs.paused) == 1

	snap["src"] = b.source
	snap["N"] = b.aircraftName
	snap["STOP"] = strconv.Itoa(p.GetInt(refs.paused))
	snap["SimPaused"] = formatBool(b.paused)
	snap["SimOnGround"] = strconv.Itoa(p.GetInt(refs.onGround))

	snap["T"] = formatFloat(p.ElapsedTime(), 3)
	snap["G"] = formatFloat(p.GetFloat(refs.gsNrml), 3)
	snap["Gaxil"] = formatFloat(p.GetFloat(refs.gsAxil), 3)
	snap["Gside"] = formatFloat(p.GetFloat(refs.gsSide), 3)

	snap["TAS"] = formatFloat(p.GetFloat(refs.tas), 3)
	// Indicated airspeed arrives in knots; convert so it is comparable
	// with TAS, which is already m/s.
	snap["IAS"] = formatFloat(p.GetFloat(refs.ias)*knotsToMetersPerSec, 3)
	snap["AirDensity"] = formatFloat(p.GetFloat(refs.airDensity), 3)
	snap["DynPressure"] = formatFloat(p.GetFloat(refs.dynPressure), 3)
	snap["AoA"] = formatFloat(p.GetFloat(refs.aoa), 3)
	snap["SideSlip"] = formatFloat(p.GetFloat(refs.sideSlip), 3)

	snap["WeightOnWheels"] = formatFloatArray(p.GetFloatArray(refs.wow, maxGearNodes), noConversion, 3, 3)
	snap["EngRPM"] = formatFloatArray(p.GetFloatArray(refs.engRPM, b.numEngines), radPerSecToRPM, b.numEngines, 2)
	snap["EngPCT"] = formatFloatArray(p.GetFloatArray(refs.engPCT, b.numEngines), noConversion, b.numEngines, 3)
	snap["PropRPM"] = formatFloatArray(p.GetFloatArray(refs.propRPM, b.numEngines), radPerSecToRPM, b.numEngines, 2)
	snap["PropThrust"] = formatFloatArray(p.GetFloatArray(refs.propThrust, b.numEngines), noConversion, b.numEngines, 2)
	snap["Afterburner"] = formatFloatArray(p.GetFloatArray(refs.afterburner, b.numEngines), noConversion, b.numEngines, 2)

	snap["RudderDefl"] = formatFloat(p.GetFloat(refs.rudDeflLeft), 3)
	snap["RudderDefl_l"] = formatFloat(p.GetFloat(refs.rudDeflLeft), 3)
	snap["RudderDefl_r"] = formatFloat(p.GetFloat(refs.rudDeflRight), 3)

	snap["StickForcePitch"] = formatFloat(p.GetFloat(refs.stickForcePitch), 3)
	snap["StickForceRoll"] = formatFloat(p.GetFloat(refs.stickForceRoll), 3)
	snap["StickForceYaw"] = formatFloat(p.GetFloat(refs.stickForceYaw), 3)

	snap["AccBody"] = formatFloat(p.GetFloat(refs.accX)*feetPerSec2ToG, 3) + "~" +
		formatFloat(p.GetFloat(refs.accY)*feetPerSec2ToG, 3) + "~" +
		formatFloat(p.GetFloat(refs.accZ)*feetPerSec2ToG, 3)
	// Z is sign-flipped to match the controller's axis convention.
	snap["VelAcf"] = formatFloat(p.GetFloat(refs.velX), 3) + "~" +
		formatFloat(p.GetFloat(refs.velY), 3) + "~" +
		formatFloat(-p.GetFloat(refs.velZ), 3)

	snap["Flaps"] = formatFloat(p.GetFloat(refs.flaps), 3)
	snap["Gear"] = formatFloatArray(p.GetFloatArray(refs.gear, maxGearNodes), noConversion, 3, 3)

	snap["APMode"] = strconv.Itoa(p.GetInt(refs.apMode))
	snap["APServos"] = strconv.Itoa(p.GetInt(refs.apServos))
	snap["APYawServo"] = formatFloat(p.GetFloat(refs.yawServo), 3)
	snap["APPitchServo"] = formatFloat(p.GetFloat(refs.pitchServo), 3)
	snap["APRollServo"] = formatFloat(p.GetFloat(refs.rollServo), 3)

	snap["ElevTrimPct"] = formatFloat(p.GetFloat(refs.elevTrim), 3)
	snap["AileronTrimPct"] = formatFloat(p.GetFloat(refs.aileronTrim), 3)
	snap["RudderTrimPct"] = formatFloat(p.GetFloat(refs.rudderTrim), 3)

	snap["CanopyPos"] = formatFloat(p.GetFloat(refs.canopyPos), 3)
	snap["SpeedbrakePos"] = formatFloat(p.GetFloat(refs.speedbrakePos), 3)

	joystick, pedals, collective := b.overrides.Flags()
	snap["jOvrd"] = formatBool(joystick)
	snap["pOvrd"] = formatBool(pedals)
	snap["cOvrd"] = formatBool(collective)

	return snap
}

func (b *SnapshotBuilder) readSubscription(sub DataPointSubscription) (simValue, bool) {
	switch sub.Kind {
	case KindInt:
		return simValue{kind: KindInt, i: b.provider.GetInt(sub.Ref)}, true
	case KindFloat:
		return simValue{kind: KindFloat, f: b.provider.GetFloat(sub.Ref)}, true
	case KindDouble:
		return simValue{kind: KindDouble, f: b.provider.GetDouble(sub.Ref)}, true
	}
	slog.Warn("unsupported subscription kind, skipping", "key", sub.Key, "kind", int(sub.Kind))
	return simValue{}, false
}

// refreshAircraftFacts recomputes the expensive, rarely-changing values
// when a different aircraft is loaded.
func (b *SnapshotBuilder) refreshAircraftFacts() {
	p := b.provider
	refs := b.refs

	slog.Info("aircraft changed, refreshing aircraft details", "aircraft", b.aircraftName)

	b.numEngines = p.GetInt(refs.numEngines)
	b.numGear = b.countGear()

	facts := map[string]string{
		"RetractableGear": strconv.Itoa(p.GetInt(refs.retractable)),
		"NumberEngines":   strconv.Itoa(b.numEngines),
		"NumberGear":      strconv.Itoa(b.numGear),
		"WarnAlpha":       formatFloat(p.GetFloat(refs.warnAlpha), 3),
		"Vne":             formatFloat(p.GetFloat(refs.vne)*knotsToMetersPerSec, 3),
		"Vso":             formatFloat(p.GetFloat(refs.vso)*knotsToMetersPerSec, 3),
		"Vfe":             formatFloat(p.GetFloat(refs.vfe)*knotsToMetersPerSec, 3),
		"Vle":             formatFloat(p.GetFloat(refs.vle)*knotsToMetersPerSec, 3),

		"GearXNode": formatFloatArray(p.GetFloatArray(refs.gearXNode, maxGearNodes), noConversion, b.numGear, 3),
		"GearYNode": formatFloatArray(p.GetFloatArray(refs.gearYNode, maxGearNodes), noConversion, b.numGear, 3),
		"GearZNode": formatFloatArray(p.GetFloatArray(refs.gearZNode, maxGearNodes), noConversion, b.numGear, 3),
	}
	b.aircraftFacts = facts
}

// countGear derives the landing-gear count from the gear node geometry:
// a gear position exists when any of its node coordinates is non-zero.
func (b *SnapshotBuilder) countGear() int {
	xs := b.provider.GetFloatArray(b.refs.gearXNode, maxGearNodes)
	ys := b.provider.GetFloatArray(b.refs.gearYNode, maxGearNodes)
	zs := b.provider.GetFloatArray(b.refs.gearZNode, maxGearNodes)

	at := func(vals []float64, i int) float64 {
		if i < len(vals) {
			return vals[i]
		}
		return 0
	}

	count := 0
	for i := 0; i < maxGearNodes; i++ {
		if at(xs, i) != 0 || at(ys, i) != 0 || at(zs, i) != 0 {
			count++
		}
	}
	return count
}
