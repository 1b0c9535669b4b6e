package main

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"net"
	"sync"
	"time"
)

// rrefFrequency is how many times per second X-Plane streams each
// subscribed dataref back to us.
const rrefFrequency = 30

// XPlaneProvider implements SimDataProvider over X-Plane's UDP interface:
// RREF subscriptions for reads and DREF packets for writes. Reads are
// served from a value table kept current by a background listen loop.
//
// RREF carries only numeric refs, so the aircraft description string is
// not available over this transport; AircraftName returns blank and the
// model-file fallback is a fixed tag. Arrays are streamed one element at
// a time using X-Plane's "path[i]" subscription syntax.
type XPlaneProvider struct {
	host string
	port int

	mu        sync.Mutex
	conn      *net.UDPConn
	stop      chan struct{}
	names     []string // handle id-1 → dataref path
	handles   map[string]DataRef
	indexes   map[string]int // subscribed path (incl "path[i]") → RREF index
	values    map[int]float64
	nextIndex int
	timeRef   DataRef
	connected time.Time
}

func NewXPlaneProvider(host string, port int) *XPlaneProvider {
	return &XPlaneProvider{
		host:    host,
		port:    port,
		handles: map[string]DataRef{},
		indexes: map[string]int{},
		values:  map[int]float64{},
	}
}

func (x *XPlaneProvider) Name() string { return "X-Plane" }

func (x *XPlaneProvider) Connect() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", x.host, x.port))
	if err != nil {
		return fmt.Errorf("resolve addr: %w", err)
	}

	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return fmt.Errorf("dial udp: %w", err)
	}

	x.conn = conn
	x.stop = make(chan struct{})
	x.connected = time.Now()
	// X-Plane answers RREF subscriptions back to the sending port, so the
	// dialed socket doubles as the response listener.
	go x.listenLoop(conn, x.stop)

	// Re-issue any subscriptions made before (re)connecting.
	for path, index := range x.indexes {
		x.sendRREF(index, rrefFrequency, path)
	}
	x.timeRef = x.findLocked("sim/time/total_running_time_sec")

	slog.Info("X-Plane UDP connected", "addr", addr.String())
	return nil
}

func (x *XPlaneProvider) Disconnect() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.stop != nil {
		close(x.stop)
		x.stop = nil
	}
	if x.conn != nil {
		// Unsubscribe by re-sending with frequency 0.
		for path, index := range x.indexes {
			x.sendRREF(index, 0, path)
		}
		x.conn.Close()
		x.conn = nil
	}
	return nil
}

// FindDataRef subscribes the path and returns a handle. X-Plane does not
// answer RREF subscriptions for unknown paths, so resolution is
// optimistic: an unknown ref simply never updates and reads as zero.
func (x *XPlaneProvider) FindDataRef(name string) DataRef {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.findLocked(name)
}

func (x *XPlaneProvider) findLocked(name string) DataRef {
	if ref, ok := x.handles[name]; ok {
		return ref
	}
	x.names = append(x.names, name)
	ref := DataRef(len(x.names))
	x.handles[name] = ref
	x.subscribeLocked(name)
	return ref
}

func (x *XPlaneProvider) subscribeLocked(path string) int {
	if index, ok := x.indexes[path]; ok {
		return index
	}
	index := x.nextIndex
	x.nextIndex++
	x.indexes[path] = index
	if x.conn != nil {
		x.sendRREF(index, rrefFrequency, path)
	}
	return index
}

// sendRREF emits an RREF subscription packet: "RREF\0" + freq(4) +
// index(4) + dataref path null-padded to 400 bytes.
func (x *XPlaneProvider) sendRREF(index, freq int, path string) {
	buf := make([]byte, 413)
	copy(buf[0:4], "RREF")
	binary.LittleEndian.PutUint32(buf[5:9], uint32(freq))
	binary.LittleEndian.PutUint32(buf[9:13], uint32(index))
	copy(buf[13:], path)

	if _, err := x.conn.Write(buf); err != nil {
		slog.Warn("rref subscribe failed", "path", path, "error", err)
	}
}

// sendDREF writes one float value to a named dataref: "DREF\0" +
// value(4) + dataref path null-padded to 500 bytes.
func (x *XPlaneProvider) sendDREF(path string, value float64) {
	buf := make([]byte, 509)
	copy(buf[0:4], "DREF")
	binary.LittleEndian.PutUint32(buf[5:9], math.Float32bits(float32(value)))
	copy(buf[9:], path)

	if _, err := x.conn.Write(buf); err != nil {
		slog.Warn("dref write failed", "path", path, "error", err)
	}
}

func (x *XPlaneProvider) listenLoop(conn *net.UDPConn, stop chan struct{}) {
	buf := make([]byte, 4096)

	for {
		select {
		case <-stop:
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(time.Second))
		n, err := conn.Read(buf)
		if err != nil {
			continue
		}
		if n < 5 || string(buf[0:4]) != "RREF" {
			continue
		}

		// Response: header(5) + repeated (index:4 + float32:4) entries.
		offset := 5
		x.mu.Lock()
		for offset+8 <= n {
			idx := int(binary.LittleEndian.Uint32(buf[offset : offset+4]))
			val := math.Float32frombits(binary.LittleEndian.Uint32(buf[offset+4 : offset+8]))
			x.values[idx] = float64(val)
			offset += 8
		}
		x.mu.Unlock()
	}
}

func (x *XPlaneProvider) valueFor(path string) float64 {
	index, ok := x.indexes[path]
	if !ok {
		return 0
	}
	return x.values[index]
}

func (x *XPlaneProvider) pathFor(ref DataRef) string {
	idx := int(ref) - 1
	if idx < 0 || idx >= len(x.names) {
		return ""
	}
	return x.names[idx]
}

func (x *XPlaneProvider) GetInt(ref DataRef) int {
	return int(math.Round(x.GetDouble(ref)))
}

func (x *XPlaneProvider) GetFloat(ref DataRef) float64 { return x.GetDouble(ref) }

func (x *XPlaneProvider) GetDouble(ref DataRef) float64 {
	x.mu.Lock()
	defer x.mu.Unlock()
	path := x.pathFor(ref)
	if path == "" {
		return 0
	}
	return x.valueFor(path)
}

func (x *XPlaneProvider) GetFloatArray(ref DataRef, max int) []float64 {
	x.mu.Lock()
	defer x.mu.Unlock()
	path := x.pathFor(ref)
	if path == "" || max <= 0 {
		return nil
	}

	out := make([]float64, max)
	for i := range out {
		element := fmt.Sprintf("%s[%d]", path, i)
		x.subscribeLocked(element)
		out[i] = x.valueFor(element)
	}
	return out
}

func (x *XPlaneProvider) SetInt(ref DataRef, v int) { x.SetFloat(ref, float64(v)) }

func (x *XPlaneProvider) SetFloat(ref DataRef, v float64) {
	x.mu.Lock()
	defer x.mu.Unlock()
	path := x.pathFor(ref)
	if path == "" || x.conn == nil {
		return
	}
	x.sendDREF(path, v)
}

func (x *XPlaneProvider) AircraftName() string { return "" }

func (x *XPlaneProvider) AircraftModelFile() string { return "X-Plane" }

func (x *XPlaneProvider) ElapsedTime() float64 {
	if t := x.GetDouble(x.timeRef); t != 0 {
		return t
	}
	if x.connected.IsZero() {
		return 0
	}
	return time.Since(x.connected).Seconds()
}
