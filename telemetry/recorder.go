// Package telemetry records sampled per-tick agent rows to CSV for offline
// tuning of perception and director parameters.
package telemetry

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gocarina/gocsv"

	"github.com/kasuganosora/stalker/config"
	"github.com/kasuganosora/stalker/game/world"
)

// TickRow is one sampled tick of one agent.
type TickRow struct {
	ClockMs    int64   `csv:"clock_ms"`
	Tick       uint64  `csv:"tick"`
	AgentID    string  `csv:"agent_id"`
	Mode       string  `csv:"mode"`
	Threat     int     `csv:"threat"`
	FrontStage bool    `csv:"front_stage"`
	Visible    bool    `csv:"visible"`
	Moving     bool    `csv:"moving"`
	Sprinting  bool    `csv:"sprinting"`
	X          float64 `csv:"x"`
	Y          float64 `csv:"y"`
	Z          float64 `csv:"z"`
	TargetX    float64 `csv:"target_x"`
	TargetZ    float64 `csv:"target_z"`
}

// Recorder buffers rows from any number of sessions and appends them to
// tick.csv on Flush.
type Recorder struct {
	dir         string
	sampleEvery uint64

	mu            sync.Mutex
	file          *os.File
	rows          []TickRow
	headerWritten bool
}

// NewRecorder creates dir and opens tick.csv in it. It returns nil when dir
// is empty; a nil Recorder ignores every call.
func NewRecorder(dir string, sampleEvery int) (*Recorder, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating telemetry directory: %w", err)
	}
	f, err := os.Create(filepath.Join(dir, "tick.csv"))
	if err != nil {
		return nil, fmt.Errorf("creating tick.csv: %w", err)
	}
	if sampleEvery < 1 {
		sampleEvery = 1
	}
	return &Recorder{dir: dir, sampleEvery: uint64(sampleEvery), file: f}, nil
}

// ObserveTick implements world.Observer.
func (r *Recorder) ObserveTick(s world.Snapshot) {
	if r == nil || s.State == nil || s.Tick%r.sampleEvery != 0 {
		return
	}
	st := s.State
	row := TickRow{
		ClockMs:    st.Clock.Milliseconds(),
		Tick:       s.Tick,
		AgentID:    s.AgentID,
		Mode:       st.Mode.String(),
		Threat:     st.Threat,
		FrontStage: st.FrontStageIntent,
		Visible:    st.Sight.Visible,
		Moving:     s.Intent.Moving,
		Sprinting:  s.Intent.Sprinting,
		X:          st.Pose.Position.X,
		Y:          st.Pose.Position.Y,
		Z:          st.Pose.Position.Z,
		TargetX:    s.Target.X,
		TargetZ:    s.Target.Z,
	}
	r.mu.Lock()
	r.rows = append(r.rows, row)
	r.mu.Unlock()
}

// Pending returns the number of buffered rows.
func (r *Recorder) Pending() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

// Flush writes buffered rows. The header is written with the first batch.
func (r *Recorder) Flush() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.rows) == 0 {
		return nil
	}
	var err error
	if !r.headerWritten {
		err = gocsv.Marshal(r.rows, r.file)
	} else {
		err = gocsv.MarshalWithoutHeaders(r.rows, r.file)
	}
	if err != nil {
		return fmt.Errorf("writing telemetry: %w", err)
	}
	r.headerWritten = true
	r.rows = r.rows[:0]
	return r.file.Sync()
}

// WriteConfig saves the run configuration next to the CSV.
func (r *Recorder) WriteConfig(cfg *config.Config) error {
	if r == nil {
		return nil
	}
	return cfg.WriteYAML(filepath.Join(r.dir, "config.yaml"))
}

// Close flushes and closes the file.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	if err := r.Flush(); err != nil {
		return err
	}
	return r.file.Close()
}
