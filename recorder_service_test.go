package main

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRecorder(t *testing.T) *RecorderService {
	t.Helper()
	db, err := openDB(filepath.Join(t.TempDir(), "telemetry.db"))
	require.NoError(t, err)
	recorder := NewRecorderService(db)
	t.Cleanup(func() {
		recorder.Stop()
		db.Close()
	})
	return recorder
}

func sampleSnapshot() map[string]string {
	return map[string]string{
		"N":           "Cessna 172",
		"T":           "12.500",
		"TAS":         "51.444",
		"IAS":         "48.201",
		"G":           "1.020",
		"AoA":         "4.200",
		"SideSlip":    "-0.300",
		"SimOnGround": "0",
	}
}

func waitForCount(t *testing.T, recorder *RecorderService, want int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return recorder.Count() == want
	}, 2*time.Second, 10*time.Millisecond)
}

func TestObserveInsertsRow(t *testing.T) {
	recorder := newTestRecorder(t)

	recorder.Observe(sampleSnapshot())

	waitForCount(t, recorder, 1)
}

func TestObserveThrottlesToOneHz(t *testing.T) {
	recorder := newTestRecorder(t)

	for i := 0; i < 10; i++ {
		recorder.Observe(sampleSnapshot())
	}

	waitForCount(t, recorder, 1)
	assert.Equal(t, 1, recorder.Count(), "back-to-back frames must collapse into one row")
}

func TestObserveResumesAfterInterval(t *testing.T) {
	recorder := newTestRecorder(t)

	recorder.Observe(sampleSnapshot())
	recorder.mu.Lock()
	recorder.lastSample = time.Now().Add(-2 * time.Second)
	recorder.mu.Unlock()
	recorder.Observe(sampleSnapshot())

	waitForCount(t, recorder, 2)
}

func TestObserveNeverBlocksCaller(t *testing.T) {
	// A recorder whose write loop never drains: every queued row stays
	// put, so a blocking send would hang the frame path forever.
	recorder := &RecorderService{
		rows:    make(chan telemetryRow, 1),
		stopped: make(chan struct{}),
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < recorderQueueSize+8; i++ {
			recorder.mu.Lock()
			recorder.lastSample = time.Time{}
			recorder.mu.Unlock()
			recorder.Observe(sampleSnapshot())
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Observe blocked with a stalled write loop")
	}
}

func TestObserveAfterStopIsNoOp(t *testing.T) {
	recorder := newTestRecorder(t)
	recorder.Stop()

	recorder.Observe(sampleSnapshot())
	assert.Equal(t, 0, recorder.Count())

	// A second Stop must not panic or hang.
	recorder.Stop()
}

func TestExportCSVWritesAndPurges(t *testing.T) {
	recorder := newTestRecorder(t)
	recorder.Observe(sampleSnapshot())
	waitForCount(t, recorder, 1)

	csvPath := filepath.Join(t.TempDir(), "export.csv")
	require.NoError(t, recorder.ExportCSV(csvPath))

	file, err := os.Open(csvPath)
	require.NoError(t, err)
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2, "header plus one data row")
	assert.Equal(t, []string{"timestamp", "aircraft", "sim_time", "tas", "ias", "g_load", "aoa", "side_slip", "on_ground"}, rows[0])
	assert.Equal(t, "Cessna 172", rows[1][1])
	assert.Equal(t, "51.444", rows[1][3])

	// The table was purged with the export.
	assert.Equal(t, 0, recorder.Count())

	recorder.mu.Lock()
	recorder.lastSample = time.Time{}
	recorder.mu.Unlock()
	recorder.Observe(sampleSnapshot())
	waitForCount(t, recorder, 1)
}
