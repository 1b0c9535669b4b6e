package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
)

// commandQueueSize bounds the parsed commands waiting for the next frame.
// An FFB controller sends a handful of datagrams per frame at most.
const commandQueueSize = 64

// BridgeService runs the telemetry bridge: once per frame it applies
// pending controller commands, pushes override axes into the simulator,
// builds the snapshot and broadcasts it; a background loop receives and
// decodes command datagrams.
//
// Commands travel from the receive loop to the frame loop over a buffered
// channel drained at the start of each frame, so no lock is held while
// writing into the simulator.
type BridgeService struct {
	provider  SimDataProvider
	registry  *DataPointRegistry
	overrides *OverrideState
	controls  *flightControls
	builder   *SnapshotBuilder
	recorder  *RecorderService

	telemetryAddr string
	commandAddr   string

	commands chan Command

	mu      sync.Mutex
	txConn  *net.UDPConn
	txAddr  *net.UDPAddr
	rxConn  *net.UDPConn
	stopped chan struct{}
}

// NewBridgeService wires the bridge against a provider. recorder may be
// nil when telemetry recording is disabled.
func NewBridgeService(provider SimDataProvider, recorder *RecorderService, telemetryAddr, commandAddr string) *BridgeService {
	registry := NewDataPointRegistry(provider)
	overrides := NewOverrideState()
	return &BridgeService{
		provider:      provider,
		registry:      registry,
		overrides:     overrides,
		controls:      newFlightControls(provider),
		builder:       NewSnapshotBuilder(provider, registry, overrides),
		recorder:      recorder,
		telemetryAddr: telemetryAddr,
		commandAddr:   commandAddr,
		commands:      make(chan Command, commandQueueSize),
	}
}

// Registry exposes the data point registry, e.g. for preset
// subscriptions loaded at startup.
func (b *BridgeService) Registry() *DataPointRegistry { return b.registry }

// Overrides exposes the override state for status reporting.
func (b *BridgeService) Overrides() *OverrideState { return b.overrides }

// CommandAddr returns the bound command-socket address, or nil before
// Start. The command port may be configured as zero to pick a free one.
func (b *BridgeService) CommandAddr() net.Addr {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rxConn == nil {
		return nil
	}
	return b.rxConn.LocalAddr()
}

// Start opens both sockets and launches the receive loop. A socket
// failure here is fatal to startup and reported to the caller.
func (b *BridgeService) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.rxConn != nil {
		return fmt.Errorf("bridge already started")
	}

	txAddr, err := net.ResolveUDPAddr("udp4", b.telemetryAddr)
	if err != nil {
		return fmt.Errorf("resolve telemetry addr: %w", err)
	}
	txConn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return fmt.Errorf("open telemetry socket: %w", err)
	}

	rxAddr, err := net.ResolveUDPAddr("udp4", b.commandAddr)
	if err != nil {
		txConn.Close()
		return fmt.Errorf("resolve command addr: %w", err)
	}
	rxConn, err := net.ListenUDP("udp4", rxAddr)
	if err != nil {
		txConn.Close()
		return fmt.Errorf("bind command socket: %w", err)
	}

	b.txConn = txConn
	b.txAddr = txAddr
	b.rxConn = rxConn
	b.stopped = make(chan struct{})
	go b.receiveLoop(rxConn, b.stopped)

	slog.Info("bridge started",
		"telemetry", txAddr.String(), "commands", rxAddr.String(),
		"provider", b.provider.Name())
	return nil
}

// Stop closes the command socket out from under the blocking receive and
// waits for the loop to exit, then closes the telemetry socket.
func (b *BridgeService) Stop() {
	b.mu.Lock()
	if b.rxConn == nil {
		b.mu.Unlock()
		return
	}
	rxConn, txConn, stopped := b.rxConn, b.txConn, b.stopped
	b.rxConn, b.txConn = nil, nil
	b.mu.Unlock()

	rxConn.Close()
	<-stopped
	txConn.Close()
	slog.Info("bridge stopped")
}

// OnFrame is the per-frame entry point invoked by the frame trigger. It
// must return quickly: nothing in here blocks.
func (b *BridgeService) OnFrame() {
	b.drainCommands()
	b.controls.pushAxes(b.overrides)

	snapshot := b.builder.Build()
	if b.recorder != nil {
		b.recorder.Observe(snapshot)
	}

	if b.builder.Paused() {
		return
	}
	b.send(EncodeTelemetry(snapshot))
}

func (b *BridgeService) drainCommands() {
	for {
		select {
		case cmd := <-b.commands:
			b.apply(cmd)
		default:
			return
		}
	}
}

func (b *BridgeService) apply(cmd Command) {
	switch c := cmd.(type) {
	case AxisCommand:
		b.overrides.SetAxes(c.Values)
	case OverrideCommand:
		b.overrides.SetFlag(c.Target, c.Enabled)
		b.controls.setOverride(c.Target, c.Enabled)
		slog.Info("override toggled", "target", c.Target.String(), "enabled", c.Enabled)
	case SubscribeCommand:
		b.registry.Register(c.DataRef, c.Tag, c.Kind, c.Precision, c.Conversion)
	}
}

// send is fire-and-forget: a failure is logged and the next frame
// retries naturally by sending a fresh snapshot.
func (b *BridgeService) send(payload []byte) {
	b.mu.Lock()
	txConn, txAddr := b.txConn, b.txAddr
	b.mu.Unlock()
	if txConn == nil {
		return
	}
	if _, err := txConn.WriteToUDP(payload, txAddr); err != nil {
		slog.Warn("telemetry send failed", "error", err)
	}
}

func (b *BridgeService) receiveLoop(conn *net.UDPConn, stopped chan struct{}) {
	defer close(stopped)
	buf := make([]byte, 1024)

	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			// Only the shutdown close is terminal; a transient socket
			// error must not end command processing for good.
			if errors.Is(err, net.ErrClosed) {
				return
			}
			slog.Warn("command socket read failed", "error", err)
			continue
		}

		cmd, err := DecodeCommand(buf[:n])
		if err != nil {
			slog.Warn("discarding bad command datagram", "error", err)
			continue
		}

		select {
		case b.commands <- cmd:
		default:
			slog.Warn("command queue full, dropping", "type", cmd.commandType())
		}
	}
}
