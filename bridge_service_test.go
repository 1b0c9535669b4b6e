package main

import (
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestBridge starts a bridge on ephemeral loopback ports and returns
// it together with a socket listening where telemetry is sent.
func newTestBridge(t *testing.T) (*BridgeService, *MemoryProvider, *net.UDPConn) {
	t.Helper()

	provider := NewDemoProvider()
	require.NoError(t, provider.Connect())

	sink, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { sink.Close() })

	bridge := NewBridgeService(provider, nil, sink.LocalAddr().String(), "127.0.0.1:0")
	require.NoError(t, bridge.Start())
	t.Cleanup(bridge.Stop)

	return bridge, provider, sink
}

func readDatagram(t *testing.T, sink *net.UDPConn, timeout time.Duration) (string, bool) {
	t.Helper()
	buf := make([]byte, 65536)
	sink.SetReadDeadline(time.Now().Add(timeout))
	n, err := sink.Read(buf)
	if err != nil {
		return "", false
	}
	return string(buf[:n]), true
}

func sendCommand(t *testing.T, bridge *BridgeService, datagram string) {
	t.Helper()
	addr := bridge.CommandAddr()
	require.NotNil(t, addr)

	conn, err := net.Dial("udp4", addr.String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte(datagram))
	require.NoError(t, err)
}

func TestOnFrameSendsTelemetry(t *testing.T) {
	bridge, _, sink := newTestBridge(t)

	bridge.OnFrame()

	payload, ok := readDatagram(t, sink, time.Second)
	require.True(t, ok, "expected a telemetry datagram")
	assert.True(t, strings.HasSuffix(payload, ";"))
	assert.Contains(t, payload, "src=MEMORY;")
	assert.Contains(t, payload, "TAS=")
}

func TestPausedFrameSuppressesTelemetry(t *testing.T) {
	bridge, provider, sink := newTestBridge(t)
	provider.SetVariable("sim/time/paused", 1)

	bridge.OnFrame()

	_, ok := readDatagram(t, sink, 200*time.Millisecond)
	assert.False(t, ok, "no datagram may be sent while the simulator is paused")

	// Unpausing resumes the stream on the next frame.
	provider.SetVariable("sim/time/paused", 0)
	bridge.OnFrame()
	_, ok = readDatagram(t, sink, time.Second)
	assert.True(t, ok)
}

func TestOverrideCommandFlowsThrough(t *testing.T) {
	bridge, provider, _ := newTestBridge(t)

	sendCommand(t, bridge, "OVERRIDE:pedals=true")

	require.Eventually(t, func() bool {
		bridge.OnFrame()
		_, pedals, _ := bridge.Overrides().Flags()
		return pedals
	}, 2*time.Second, 10*time.Millisecond)

	joystick, _, collective := bridge.Overrides().Flags()
	assert.False(t, joystick)
	assert.False(t, collective)

	enable, ok := provider.WrittenValue("sim/operation/override/override_joystick_heading")
	require.True(t, ok, "override enable must reach the provider")
	assert.Equal(t, 1.0, enable)
}

func TestAxisCommandDrivesActiveOverride(t *testing.T) {
	bridge, provider, _ := newTestBridge(t)

	sendCommand(t, bridge, "OVERRIDE:joystick=true")
	sendCommand(t, bridge, "AXIS:jx=0.125,jy=-0.4")

	require.Eventually(t, func() bool {
		bridge.OnFrame()
		v, ok := provider.WrittenValue("sim/joystick/yoke_roll_ratio")
		return ok && v == 0.125
	}, 2*time.Second, 10*time.Millisecond)

	pitch, ok := provider.WrittenValue("sim/joystick/yoke_pitch_ratio")
	require.True(t, ok)
	assert.Equal(t, -0.4, pitch)
}

func TestSubscribeCommandExtendsSnapshot(t *testing.T) {
	bridge, provider, sink := newTestBridge(t)
	provider.SetVariable("sim/flightmodel/position/latitude", 47.45)

	sendCommand(t, bridge, "SUBSCRIBE:dataref=sim/flightmodel/position/latitude,type=float,tag=Latitude,precision=2")

	require.Eventually(t, func() bool {
		bridge.OnFrame()
		payload, ok := readDatagram(t, sink, 200*time.Millisecond)
		return ok && strings.Contains(payload, "Latitude=47.45;")
	}, 5*time.Second, 10*time.Millisecond)
}

func TestUnknownCommandDoesNotDisturbState(t *testing.T) {
	bridge, _, _ := newTestBridge(t)

	sendCommand(t, bridge, "FOO:bar")
	// The loop must survive and keep processing later datagrams.
	sendCommand(t, bridge, "OVERRIDE:collective=true")

	require.Eventually(t, func() bool {
		bridge.OnFrame()
		_, _, collective := bridge.Overrides().Flags()
		return collective
	}, 2*time.Second, 10*time.Millisecond)

	joystick, pedals, _ := bridge.Overrides().Flags()
	assert.False(t, joystick, "unknown datagram must not alter shared state")
	assert.False(t, pedals)
}

func TestMalformedAxisDatagramIsDiscarded(t *testing.T) {
	bridge, provider, _ := newTestBridge(t)

	sendCommand(t, bridge, "OVERRIDE:joystick=true")
	sendCommand(t, bridge, "AXIS:jx=not-a-number,jy=0.5")

	require.Eventually(t, func() bool {
		bridge.OnFrame()
		v, ok := provider.WrittenValue("sim/joystick/yoke_pitch_ratio")
		return ok && v == 0.5
	}, 2*time.Second, 10*time.Millisecond)

	// The unparsable pair was skipped, leaving jx at its default.
	roll, ok := provider.WrittenValue("sim/joystick/yoke_roll_ratio")
	require.True(t, ok)
	assert.Equal(t, 0.0, roll)
}

func TestTransientReadErrorKeepsReceiveLoopAlive(t *testing.T) {
	bridge, _, _ := newTestBridge(t)

	bridge.mu.Lock()
	rxConn := bridge.rxConn
	bridge.mu.Unlock()
	require.NotNil(t, rxConn)

	// An expired deadline makes every read fail with a timeout; the loop
	// must ride the errors out instead of exiting.
	require.NoError(t, rxConn.SetReadDeadline(time.Now()))
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, rxConn.SetReadDeadline(time.Time{}))

	sendCommand(t, bridge, "OVERRIDE:pedals=true")
	require.Eventually(t, func() bool {
		bridge.OnFrame()
		_, pedals, _ := bridge.Overrides().Flags()
		return pedals
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStartFailsOnBusyCommandPort(t *testing.T) {
	occupied, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer occupied.Close()

	provider := NewDemoProvider()
	require.NoError(t, provider.Connect())

	bridge := NewBridgeService(provider, nil, "127.0.0.1:34390", occupied.LocalAddr().String())
	assert.Error(t, bridge.Start())
}

func TestStopUnblocksReceiveLoop(t *testing.T) {
	provider := NewDemoProvider()
	require.NoError(t, provider.Connect())

	bridge := NewBridgeService(provider, nil, "127.0.0.1:34390", "127.0.0.1:0")
	require.NoError(t, bridge.Start())

	done := make(chan struct{})
	go func() {
		bridge.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not unblock the receive loop")
	}

	// A second Stop is a no-op.
	bridge.Stop()
}
