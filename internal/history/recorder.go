// Package history records per-step run data: issued commands and tank
// levels keyed by run id. The control core only depends on the Recorder
// interface; storage backends live alongside.
package history

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound reports an unknown run id.
var ErrNotFound = errors.New("history: run not found")

// StepRecord captures the outcome of one orchestrated step.
type StepRecord struct {
	RunID         string             `json:"run_id"`
	Step          int                `json:"step"`
	SimTime       float64            `json:"sim_time"`
	PumpCommands  map[string]string  `json:"pump_commands"`
	ValveCommands map[string]string  `json:"valve_commands"`
	TankLevels    map[string]float64 `json:"tank_levels"`
	RecordedAt    time.Time          `json:"recorded_at"`
}

// Recorder persists step records.
type Recorder interface {
	Record(ctx context.Context, record StepRecord) error
}

// Reader loads the records of a finished run in step order.
type Reader interface {
	ListByRun(ctx context.Context, runID string) ([]StepRecord, error)
}
