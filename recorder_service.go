package main

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"
)

// recorderQueueSize bounds rows waiting for the write loop. At 1 Hz
// sampling this only fills when the database stalls badly.
const recorderQueueSize = 16

// telemetryRow is one sampled frame queued for insertion.
type telemetryRow struct {
	aircraft string
	simTime  float64
	tas      float64
	ias      float64
	g        float64
	aoa      float64
	sideSlip float64
	onGround int
}

// RecorderService keeps a 1 Hz history of the live telemetry stream in
// sqlite, for post-flight review and CSV export. Observe runs on the
// frame path and must not block: it samples the snapshot and hands the
// row to a dedicated write goroutine over a buffered channel. Failures
// are logged and skipped; recording never disturbs the frame loop.
type RecorderService struct {
	db *sql.DB

	rows    chan telemetryRow
	stopped chan struct{}

	mu         sync.Mutex
	lastSample time.Time
	dataCount  int
	closed     bool
}

func NewRecorderService(db *sql.DB) *RecorderService {
	r := &RecorderService{
		db:      db,
		rows:    make(chan telemetryRow, recorderQueueSize),
		stopped: make(chan struct{}),
	}
	go r.writeLoop()
	return r
}

// Observe samples the current snapshot; at most one row per second is
// queued. The insert itself happens on the write loop.
func (r *RecorderService) Observe(snapshot map[string]string) {
	r.mu.Lock()
	if r.closed || time.Since(r.lastSample) < time.Second {
		r.mu.Unlock()
		return
	}
	r.lastSample = time.Now()
	r.mu.Unlock()

	num := func(key string) float64 {
		v, _ := strconv.ParseFloat(snapshot[key], 64)
		return v
	}

	row := telemetryRow{
		aircraft: snapshot["N"],
		simTime:  num("T"),
		tas:      num("TAS"),
		ias:      num("IAS"),
		g:        num("G"),
		aoa:      num("AoA"),
		sideSlip: num("SideSlip"),
		onGround: int(num("SimOnGround")),
	}

	select {
	case r.rows <- row:
	default:
		slog.Warn("recorder queue full, dropping sample")
	}
}

// Stop drains the queue and waits for the write loop to exit. Observe
// calls after Stop are no-ops.
func (r *RecorderService) Stop() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	close(r.rows)
	<-r.stopped
}

func (r *RecorderService) writeLoop() {
	defer close(r.stopped)

	for row := range r.rows {
		_, err := r.db.Exec(
			`INSERT INTO telemetry_frames (aircraft, sim_time, tas, ias, g_load, aoa, side_slip, on_ground) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			row.aircraft, row.simTime, row.tas, row.ias, row.g,
			row.aoa, row.sideSlip, row.onGround,
		)
		if err != nil {
			slog.Error("failed to insert telemetry frame", "error", err)
			continue
		}

		r.mu.Lock()
		r.dataCount++
		r.mu.Unlock()
	}
}

// Count reports rows written since startup or the last export.
func (r *RecorderService) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dataCount
}

// ExportCSV writes the recorded history to filePath and purges the table.
func (r *RecorderService) ExportCSV(filePath string) error {
	rows, err := r.db.Query(`SELECT timestamp, aircraft, sim_time, tas, ias, g_load, aoa, side_slip, on_ground FROM telemetry_frames ORDER BY id`)
	if err != nil {
		return fmt.Errorf("query data: %w", err)
	}
	defer rows.Close()

	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	defer w.Flush()

	w.Write([]string{"timestamp", "aircraft", "sim_time", "tas", "ias", "g_load", "aoa", "side_slip", "on_ground"})

	for rows.Next() {
		var ts, aircraft string
		var simTime, tas, ias, g, aoa, slip float64
		var onGround int
		if err := rows.Scan(&ts, &aircraft, &simTime, &tas, &ias, &g, &aoa, &slip, &onGround); err != nil {
			return fmt.Errorf("scan row: %w", err)
		}
		w.Write([]string{
			ts,
			aircraft,
			strconv.FormatFloat(simTime, 'f', 3, 64),
			strconv.FormatFloat(tas, 'f', 3, 64),
			strconv.FormatFloat(ias, 'f', 3, 64),
			strconv.FormatFloat(g, 'f', 3, 64),
			strconv.FormatFloat(aoa, 'f', 3, 64),
			strconv.FormatFloat(slip, 'f', 3, 64),
			strconv.Itoa(onGround),
		})
	}

	// Purge after export
	if _, err := r.db.Exec(`DELETE FROM telemetry_frames`); err != nil {
		return fmt.Errorf("purge db: %w", err)
	}

	r.mu.Lock()
	r.dataCount = 0
	r.mu.Unlock()

	return nil
}
