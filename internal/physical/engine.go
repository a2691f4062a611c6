// Package physical defines the contract the control core consumes from
// the hydraulic engine, plus a deterministic toy implementation for
// closed-loop runs and tests. Realistic hydraulics are explicitly out of
// scope.
package physical

import "errors"

// Canonical pump and valve states.
const (
	PumpOn      = "ON"
	PumpOff     = "OFF"
	ValveOpen   = "OPEN"
	ValveClosed = "CLOSED"
)

// ErrNotInitialized reports Step or ApplyCommands before Reset. The
// contract requires initialization first; this is fatal to the run.
var ErrNotInitialized = errors.New("physical: engine not initialized, call Reset first")

// Snapshot is the read-only physical state handed to the control core
// once per step.
type Snapshot struct {
	Time      float64            `json:"time"`
	Tanks     map[string]float64 `json:"tanks"`
	Pumps     map[string]string  `json:"pumps"`
	Valves    map[string]string  `json:"valves"`
	Pressures map[string]float64 `json:"pressures"`
}

// Clone deep-copies the snapshot so agents can read it concurrently
// while the engine prepares the next one.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Time:      s.Time,
		Tanks:     make(map[string]float64, len(s.Tanks)),
		Pumps:     make(map[string]string, len(s.Pumps)),
		Valves:    make(map[string]string, len(s.Valves)),
		Pressures: make(map[string]float64, len(s.Pressures)),
	}
	for k, v := range s.Tanks {
		out.Tanks[k] = v
	}
	for k, v := range s.Pumps {
		out.Pumps[k] = v
	}
	for k, v := range s.Valves {
		out.Valves[k] = v
	}
	for k, v := range s.Pressures {
		out.Pressures[k] = v
	}
	return out
}

// Engine is the physical-solver contract consumed by the orchestrator.
// Reset must be called before Step or ApplyCommands; Step returns nil
// when the run is finished.
type Engine interface {
	Reset() (Snapshot, error)
	Step() (*Snapshot, error)
	ApplyCommands(pumps map[string]string, valves map[string]string) error
	Close() error
}
