package main

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	sim "github.com/lian/msfs2020-go/simconnect"
)

// SimConnectProvider backs the bridge with MSFS via SimConnect. The
// variable namespace is the same X-Plane-style paths the rest of the
// bridge uses; a translation table maps the supported subset onto
// SimConnect simvars. Paths outside the table fail resolution, which the
// registry handles by dropping the subscription.
//
// SimConnect offers no per-axis input override, so writes are refused
// with a warning; the OVERRIDE/AXIS channel is X-Plane only.
type SimConnectProvider struct {
	mu      sync.RWMutex
	sc      *sim.SimConnect
	report  *simvarReport
	latest  *simvarReport
	stopCh  chan struct{}
	stopped chan struct{}

	names       []string
	handles     map[string]DataRef
	writeWarned bool
	connected   time.Time
}

// simvarReport is the polled variable block. Field order matters to the
// wire layout; the title array must stay last (it misaligns following
// float64s otherwise).
type simvarReport struct {
	sim.RecvSimobjectDataByType

	SimTime    float64 `name:"ABSOLUTE TIME" unit:"seconds"`
	OnGround   float64 `name:"SIM ON GROUND" unit:"Bool"`
	Paused     float64 `name:"SIM PAUSED" unit:"Bool"`
	GForce     float64 `name:"G FORCE" unit:"GForce"`
	TASKnots   float64 `name:"AIRSPEED TRUE" unit:"knots"`
	IASKnots   float64 `name:"AIRSPEED INDICATED" unit:"knots"`
	AoA        float64 `name:"INCIDENCE ALPHA" unit:"degrees"`
	SideSlip   float64 `name:"INCIDENCE BETA" unit:"degrees"`
	AirDensity float64 `name:"AMBIENT DENSITY" unit:"Slugs per cubic feet"`
	DynPress   float64 `name:"DYNAMIC PRESSURE" unit:"pounds per square foot"`
	Flaps      float64 `name:"FLAPS HANDLE PERCENT" unit:"Percent Over 100"`
	GearRatio  float64 `name:"GEAR TOTAL PCT EXTENDED" unit:"percent over 100"`
	Rudder     float64 `name:"RUDDER POSITION" unit:"Position"`
	ElevTrim   float64 `name:"ELEVATOR TRIM PCT" unit:"Percent Over 100"`
	AilerTrim  float64 `name:"AILERON TRIM PCT" unit:"Percent Over 100"`
	RudderTrim float64 `name:"RUDDER TRIM PCT" unit:"Percent Over 100"`
	APMaster   float64 `name:"AUTOPILOT MASTER" unit:"Bool"`
	NumEngines float64 `name:"NUMBER OF ENGINES" unit:"number"`
	Eng1RPM    float64 `name:"GENERAL ENG RPM:1" unit:"rpm"`
	Eng2RPM    float64 `name:"GENERAL ENG RPM:2" unit:"rpm"`
	Eng3RPM    float64 `name:"GENERAL ENG RPM:3" unit:"rpm"`
	Eng4RPM    float64 `name:"GENERAL ENG RPM:4" unit:"rpm"`
	Spoilers   float64 `name:"SPOILERS HANDLE POSITION" unit:"Percent Over 100"`

	AircraftTitle [256]byte `name:"TITLE" unit:""`
}

// simvarPaths maps the bridge's variable namespace onto report fields.
// A handle's table index selects which report value it reads.
var simvarPaths = []struct {
	path string
	read func(*simvarReport) float64
}{
	{"sim/time/paused", func(r *simvarReport) float64 { return r.Paused }},
	{"sim/flightmodel/failures/onground_all", func(r *simvarReport) float64 { return r.OnGround }},
	{"sim/flightmodel/forces/g_nrml", func(r *simvarReport) float64 { return r.GForce }},
	{"sim/flightmodel/position/true_airspeed", func(r *simvarReport) float64 { return r.TASKnots * knotsToMetersPerSec }},
	{"sim/flightmodel/position/indicated_airspeed", func(r *simvarReport) float64 { return r.IASKnots }},
	{"sim/flightmodel/position/alpha", func(r *simvarReport) float64 { return r.AoA }},
	{"sim/flightmodel/position/beta", func(r *simvarReport) float64 { return r.SideSlip }},
	{"sim/weather/rho", func(r *simvarReport) float64 { return r.AirDensity }},
	{"sim/flightmodel/misc/Qstatic", func(r *simvarReport) float64 { return r.DynPress }},
	{"sim/cockpit2/controls/flap_system_deploy_ratio", func(r *simvarReport) float64 { return r.Flaps }},
	{"sim/flightmodel2/gear/deploy_ratio", func(r *simvarReport) float64 { return r.GearRatio }},
	{"sim/flightmodel/controls/ldruddef", func(r *simvarReport) float64 { return r.Rudder }},
	{"sim/flightmodel/controls/rdruddef", func(r *simvarReport) float64 { return r.Rudder }},
	{"sim/flightmodel2/controls/elevator_trim", func(r *simvarReport) float64 { return r.ElevTrim }},
	{"sim/flightmodel2/controls/aileron_trim", func(r *simvarReport) float64 { return r.AilerTrim }},
	{"sim/flightmodel2/controls/rudder_trim", func(r *simvarReport) float64 { return r.RudderTrim }},
	{"sim/cockpit/autopilot/autopilot_mode", func(r *simvarReport) float64 { return r.APMaster }},
	{"sim/aircraft/engine/acf_num_engines", func(r *simvarReport) float64 { return r.NumEngines }},
	{"sim/flightmodel2/controls/speedbrake_ratio", func(r *simvarReport) float64 { return r.Spoilers }},
	{"sim/flightmodel/engine/ENGN_tacrad", func(r *simvarReport) float64 { return r.Eng1RPM / radPerSecToRPM }},
}

func NewSimConnectProvider() SimDataProvider {
	p := &SimConnectProvider{handles: map[string]DataRef{}}
	for _, entry := range simvarPaths {
		p.names = append(p.names, entry.path)
		p.handles[entry.path] = DataRef(len(p.names))
	}
	return p
}

func (s *SimConnectProvider) Name() string { return "SimConnect" }

func (s *SimConnectProvider) Connect() error {
	s.stopCh = make(chan struct{})
	s.stopped = make(chan struct{})
	errCh := make(chan error, 1)

	go s.run(errCh)

	if err := <-errCh; err != nil {
		return err
	}
	s.connected = time.Now()
	return nil
}

func (s *SimConnectProvider) Disconnect() error {
	s.mu.RLock()
	sc := s.sc
	s.mu.RUnlock()

	if sc != nil {
		close(s.stopCh)
		<-s.stopped
	}
	return nil
}

// run performs all SimConnect operations on a single locked OS thread.
func (s *SimConnectProvider) run(errCh chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(s.stopped)

	sc, err := sim.New("FFB Bridge")
	if err != nil {
		errCh <- fmt.Errorf("simconnect open: %w", err)
		return
	}

	report := &simvarReport{}
	if err := sc.RegisterDataDefinition(report); err != nil {
		sc.Close()
		errCh <- fmt.Errorf("register data definition: %w", err)
		return
	}

	s.mu.Lock()
	s.sc = sc
	s.report = report
	s.mu.Unlock()

	slog.Info("SimConnect connected")
	errCh <- nil

	defineID := sc.GetDefineID(report)

	requestTicker := time.NewTicker(100 * time.Millisecond)
	defer requestTicker.Stop()

	sc.RequestDataOnSimObjectType(0, defineID, 0, sim.SIMOBJECT_TYPE_USER)

	defer func() {
		sc.Close()
		s.mu.Lock()
		s.sc = nil
		s.latest = nil
		s.mu.Unlock()
	}()

	for {
		select {
		case <-s.stopCh:
			return
		case <-requestTicker.C:
			sc.RequestDataOnSimObjectType(0, defineID, 0, sim.SIMOBJECT_TYPE_USER)
		default:
			ppData, r1, _ := sc.GetNextDispatch()
			if r1 < 0 {
				time.Sleep(5 * time.Millisecond)
				continue
			}

			recvInfo := *(*sim.Recv)(ppData)
			switch recvInfo.ID {
			case sim.RECV_ID_SIMOBJECT_DATA_BYTYPE:
				r := *(*simvarReport)(ppData)
				s.mu.Lock()
				s.latest = &r
				s.mu.Unlock()
			case sim.RECV_ID_EXCEPTION:
				slog.Warn("SimConnect exception received")
			}
		}
	}
}

func (s *SimConnectProvider) FindDataRef(name string) DataRef {
	return s.handles[name]
}

func (s *SimConnectProvider) read(ref DataRef) float64 {
	idx := int(ref) - 1
	if idx < 0 || idx >= len(simvarPaths) {
		return 0
	}

	s.mu.RLock()
	latest := s.latest
	s.mu.RUnlock()
	if latest == nil {
		return 0
	}
	return simvarPaths[idx].read(latest)
}

func (s *SimConnectProvider) GetInt(ref DataRef) int        { return int(s.read(ref)) }
func (s *SimConnectProvider) GetFloat(ref DataRef) float64  { return s.read(ref) }
func (s *SimConnectProvider) GetDouble(ref DataRef) float64 { return s.read(ref) }

func (s *SimConnectProvider) GetFloatArray(ref DataRef, max int) []float64 {
	idx := int(ref) - 1
	if idx < 0 || idx >= len(s.names) || max <= 0 {
		return nil
	}

	s.mu.RLock()
	latest := s.latest
	s.mu.RUnlock()
	if latest == nil {
		return nil
	}

	// Per-engine RPM is the only array simvar carried; everything else
	// reads as a single-element array.
	if s.names[idx] == "sim/flightmodel/engine/ENGN_tacrad" {
		rpms := []float64{latest.Eng1RPM, latest.Eng2RPM, latest.Eng3RPM, latest.Eng4RPM}
		n := int(latest.NumEngines)
		if n > len(rpms) {
			n = len(rpms)
		}
		if n > max {
			n = max
		}
		out := make([]float64, n)
		for i := range out {
			out[i] = rpms[i] / radPerSecToRPM // builder re-applies the rpm factor
		}
		return out
	}
	return []float64{simvarPaths[idx].read(latest)}
}

func (s *SimConnectProvider) SetInt(ref DataRef, v int) { s.SetFloat(ref, float64(v)) }

func (s *SimConnectProvider) SetFloat(ref DataRef, v float64) {
	if !s.writeWarned {
		s.writeWarned = true
		slog.Warn("axis override writes are not supported over SimConnect")
	}
}

func (s *SimConnectProvider) AircraftName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return ""
	}
	return trimNullBytes(s.latest.AircraftTitle[:])
}

func (s *SimConnectProvider) AircraftModelFile() string { return "MSFS" }

func (s *SimConnectProvider) ElapsedTime() float64 {
	if s.connected.IsZero() {
		return 0
	}
	return time.Since(s.connected).Seconds()
}

// trimNullBytes returns a string from a null-padded byte slice.
func trimNullBytes(b []byte) string {
	for i, v := range b {
		if v == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
