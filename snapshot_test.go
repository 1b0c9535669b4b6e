package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBuilder(t *testing.T) (*SnapshotBuilder, *MemoryProvider, *DataPointRegistry, *OverrideState) {
	t.Helper()
	provider := NewDemoProvider()
	require.NoError(t, provider.Connect())

	registry := NewDataPointRegistry(provider)
	overrides := NewOverrideState()
	return NewSnapshotBuilder(provider, registry, overrides), provider, registry, overrides
}

func TestBuildPopulatesFixedFields(t *testing.T) {
	builder, _, _, _ := newTestBuilder(t)

	snap := builder.Build()

	for _, key := range []string{
		"src", "N", "T", "STOP", "SimPaused", "SimOnGround",
		"G", "Gaxil", "Gside", "TAS", "IAS", "AirDensity", "DynPressure",
		"AoA", "SideSlip", "WeightOnWheels", "EngRPM", "EngPCT", "PropRPM",
		"PropThrust", "Afterburner", "RudderDefl", "RudderDefl_l",
		"RudderDefl_r", "StickForcePitch", "StickForceRoll", "StickForceYaw",
		"AccBody", "VelAcf", "Flaps", "Gear", "APMode", "APServos",
		"APYawServo", "APPitchServo", "APRollServo", "ElevTrimPct",
		"AileronTrimPct", "RudderTrimPct", "CanopyPos", "SpeedbrakePos",
		"jOvrd", "pOvrd", "cOvrd",
		"RetractableGear", "NumberEngines", "NumberGear", "WarnAlpha",
		"Vne", "Vso", "Vfe", "Vle", "GearXNode", "GearYNode", "GearZNode",
	} {
		assert.Contains(t, snap, key)
	}

	assert.Equal(t, "MEMORY", snap["src"])
	assert.Equal(t, "Local Test Aircraft", snap["N"])
}

func TestBuildConvertsIndicatedAirspeed(t *testing.T) {
	builder, provider, _, _ := newTestBuilder(t)
	provider.SetVariable("sim/flightmodel/position/indicated_airspeed", 100)

	snap := builder.Build()

	assert.Equal(t, "51.444", snap["IAS"])
}

func TestBuildFlipsVelocityZSign(t *testing.T) {
	builder, provider, _, _ := newTestBuilder(t)
	provider.SetVariable("sim/flightmodel/forces/vx_acf_axis", 1)
	provider.SetVariable("sim/flightmodel/forces/vy_acf_axis", 2)
	provider.SetVariable("sim/flightmodel/forces/vz_acf_axis", 3)

	snap := builder.Build()

	assert.Equal(t, "1.000~2.000~-3.000", snap["VelAcf"])
}

func TestBuildConvertsBodyAccelerationToG(t *testing.T) {
	builder, provider, _, _ := newTestBuilder(t)
	provider.SetVariable("sim/flightmodel/position/local_ax", 100)
	provider.SetVariable("sim/flightmodel/position/local_ay", 0)
	provider.SetVariable("sim/flightmodel/position/local_az", 0)

	snap := builder.Build()

	assert.Equal(t, "3.108~0.000~0.000", snap["AccBody"])
}

func TestBuildEngineArraysUseEngineCount(t *testing.T) {
	builder, provider, _, _ := newTestBuilder(t)
	provider.SetVariable("sim/aircraft/engine/acf_num_engines", 2)
	provider.SetArray("sim/flightmodel/engine/ENGN_tacrad", []float64{240, 0, 0, 0})

	snap := builder.Build()

	// Two engines: the idle second engine stays on the wire.
	assert.Equal(t, "2291.83~0.00", snap["EngRPM"])
}

func TestBuildIncludesSubscriptions(t *testing.T) {
	builder, provider, registry, _ := newTestBuilder(t)
	provider.SetVariable("sim/flightmodel/position/latitude", 47.4502)

	ok := registry.Register("sim/flightmodel/position/latitude", "Latitude", KindFloat, 6, noConversion)
	require.True(t, ok)

	snap := builder.Build()

	assert.Equal(t, "47.450200", snap["Latitude"])
}

func TestBuildSubscriptionKinds(t *testing.T) {
	builder, provider, registry, _ := newTestBuilder(t)
	provider.SetVariable("sim/test/int", 7.9)
	provider.SetVariable("sim/test/double", 2.5)

	registry.Register("sim/test/int", "AnInt", KindInt, 3, noConversion)
	registry.Register("sim/test/double", "ADouble", KindDouble, 1, noConversion)

	snap := builder.Build()

	assert.Equal(t, "7", snap["AnInt"], "int subscriptions truncate and ignore precision")
	assert.Equal(t, "2.5", snap["ADouble"])
}

func TestBuildReportsOverrideFlags(t *testing.T) {
	builder, _, _, overrides := newTestBuilder(t)
	overrides.SetFlag(OverrideCollective, true)

	snap := builder.Build()

	assert.Equal(t, "0", snap["jOvrd"])
	assert.Equal(t, "0", snap["pOvrd"])
	assert.Equal(t, "1", snap["cOvrd"])
}

func TestBuildTracksPauseFlag(t *testing.T) {
	builder, provider, _, _ := newTestBuilder(t)

	builder.Build()
	assert.False(t, builder.Paused())

	provider.SetVariable("sim/time/paused", 1)
	snap := builder.Build()
	assert.True(t, builder.Paused())
	assert.Equal(t, "1", snap["SimPaused"])
	assert.Equal(t, "1", snap["STOP"])
}

func TestAircraftFactsRecomputedOnlyOnNameChange(t *testing.T) {
	builder, provider, _, _ := newTestBuilder(t)
	provider.SetVariable("sim/aircraft/engine/acf_num_engines", 1)

	snap := builder.Build()
	assert.Equal(t, "1", snap["NumberEngines"])

	// Same aircraft: a changed engine count must not be picked up.
	provider.SetVariable("sim/aircraft/engine/acf_num_engines", 4)
	snap = builder.Build()
	assert.Equal(t, "1", snap["NumberEngines"], "facts must stay cached while the aircraft is unchanged")

	// New aircraft: the facts refresh exactly once at the transition.
	provider.SetAircraft("Another Aircraft", "another.acf")
	snap = builder.Build()
	assert.Equal(t, "4", snap["NumberEngines"])
	assert.Equal(t, "Another Aircraft", snap["N"])
}

func TestAircraftNameFallsBackToModelFile(t *testing.T) {
	builder, provider, _, _ := newTestBuilder(t)
	provider.SetAircraft("", "fallback.acf")

	snap := builder.Build()

	assert.Equal(t, "fallback.acf", snap["N"])
}

func TestCountGearFromNodeGeometry(t *testing.T) {
	builder, provider, _, _ := newTestBuilder(t)
	provider.SetArray("sim/aircraft/parts/acf_gear_xnodef", []float64{0, 1.1, -1.1})
	provider.SetArray("sim/aircraft/parts/acf_gear_ynodef", []float64{-1.2, 0, 0})
	provider.SetArray("sim/aircraft/parts/acf_gear_znodef", []float64{-2.0, 0.8, 0.8})
	provider.SetAircraft("Trike", "trike.acf")

	snap := builder.Build()

	assert.Equal(t, "3", snap["NumberGear"])
}
