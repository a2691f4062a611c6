package physical

import (
	"errors"
	"fmt"
)

// TankSpec configures one tank in the table engine.
type TankSpec struct {
	ID            string  `yaml:"id"`
	InitLevel     float64 `yaml:"init_level"`
	MinLevel      float64 `yaml:"min_level"`
	MaxLevel      float64 `yaml:"max_level"`
	DemandPerStep float64 `yaml:"demand_per_step"`
}

// PumpSpec configures one pump feeding a tank.
type PumpSpec struct {
	ID          string  `yaml:"id"`
	TankID      string  `yaml:"tank_id"`
	FillPerStep float64 `yaml:"fill_per_step"`
	InitState   string  `yaml:"init_state"`
}

// ValveSpec configures one valve draining a tank.
type ValveSpec struct {
	ID           string  `yaml:"id"`
	TankID       string  `yaml:"tank_id"`
	DrainPerStep float64 `yaml:"drain_per_step"`
	InitState    string  `yaml:"init_state"`
}

// TableConfig configures a TableEngine run.
type TableConfig struct {
	StepSeconds     float64     `yaml:"step_seconds"`
	DurationSeconds float64     `yaml:"duration_seconds"`
	Tanks           []TankSpec  `yaml:"tanks"`
	Pumps           []PumpSpec  `yaml:"pumps"`
	Valves          []ValveSpec `yaml:"valves"`
}

// TableEngine is a deterministic mass-balance toy: each step a tank
// gains FillPerStep per running pump, loses DrainPerStep per open valve
// and its own demand, clamped to [MinLevel, MaxLevel]. Commands applied
// between steps gate the flows, which is enough physics to close the
// control loop in tests and demos.
type TableEngine struct {
	cfg         TableConfig
	initialized bool
	closed      bool

	time   float64
	levels map[string]float64
	pumps  map[string]string
	valves map[string]string
}

// NewTableEngine validates the configuration and returns an engine in
// the uninitialized state.
func NewTableEngine(cfg TableConfig) (*TableEngine, error) {
	if cfg.StepSeconds <= 0 {
		return nil, errors.New("physical: step_seconds must be positive")
	}
	if cfg.DurationSeconds < cfg.StepSeconds {
		return nil, errors.New("physical: duration_seconds shorter than one step")
	}
	tanks := make(map[string]struct{}, len(cfg.Tanks))
	for _, tank := range cfg.Tanks {
		if tank.ID == "" {
			return nil, errors.New("physical: tank id required")
		}
		if tank.MaxLevel < tank.MinLevel {
			return nil, fmt.Errorf("physical: tank %s max below min", tank.ID)
		}
		tanks[tank.ID] = struct{}{}
	}
	for _, pump := range cfg.Pumps {
		if _, ok := tanks[pump.TankID]; !ok {
			return nil, fmt.Errorf("physical: pump %s feeds unknown tank %s", pump.ID, pump.TankID)
		}
	}
	for _, valve := range cfg.Valves {
		if _, ok := tanks[valve.TankID]; !ok {
			return nil, fmt.Errorf("physical: valve %s drains unknown tank %s", valve.ID, valve.TankID)
		}
	}
	return &TableEngine{cfg: cfg}, nil
}

// Reset initializes the run and returns the initial snapshot.
func (e *TableEngine) Reset() (Snapshot, error) {
	if e.closed {
		return Snapshot{}, errors.New("physical: engine closed")
	}
	e.time = 0
	e.levels = make(map[string]float64, len(e.cfg.Tanks))
	e.pumps = make(map[string]string, len(e.cfg.Pumps))
	e.valves = make(map[string]string, len(e.cfg.Valves))
	for _, tank := range e.cfg.Tanks {
		e.levels[tank.ID] = tank.InitLevel
	}
	for _, pump := range e.cfg.Pumps {
		state := pump.InitState
		if state == "" {
			state = PumpOn
		}
		e.pumps[pump.ID] = state
	}
	for _, valve := range e.cfg.Valves {
		state := valve.InitState
		if state == "" {
			state = ValveOpen
		}
		e.valves[valve.ID] = state
	}
	e.initialized = true
	return e.snapshot(), nil
}

// Step advances one hydraulic step and returns the new snapshot, or nil
// when the configured duration is exhausted.
func (e *TableEngine) Step() (*Snapshot, error) {
	if !e.initialized {
		return nil, ErrNotInitialized
	}
	if e.closed {
		return nil, errors.New("physical: engine closed")
	}
	if e.time+e.cfg.StepSeconds > e.cfg.DurationSeconds {
		return nil, nil
	}
	e.time += e.cfg.StepSeconds

	for _, tank := range e.cfg.Tanks {
		level := e.levels[tank.ID] - tank.DemandPerStep
		for _, pump := range e.cfg.Pumps {
			if pump.TankID == tank.ID && e.pumps[pump.ID] == PumpOn {
				level += pump.FillPerStep
			}
		}
		for _, valve := range e.cfg.Valves {
			if valve.TankID == tank.ID && e.valves[valve.ID] == ValveOpen {
				level -= valve.DrainPerStep
			}
		}
		if level < tank.MinLevel {
			level = tank.MinLevel
		}
		if level > tank.MaxLevel {
			level = tank.MaxLevel
		}
		e.levels[tank.ID] = level
	}

	snap := e.snapshot()
	return &snap, nil
}

// ApplyCommands sets pump and valve states for the next step. Unknown
// element ids and unrecognized states are ignored, matching the lenient
// actuator contract.
func (e *TableEngine) ApplyCommands(pumps map[string]string, valves map[string]string) error {
	if !e.initialized {
		return ErrNotInitialized
	}
	for id, state := range pumps {
		if _, ok := e.pumps[id]; !ok {
			continue
		}
		switch normalizeState(state, PumpOn, PumpOff) {
		case PumpOn:
			e.pumps[id] = PumpOn
		case PumpOff:
			e.pumps[id] = PumpOff
		}
	}
	for id, state := range valves {
		if _, ok := e.valves[id]; !ok {
			continue
		}
		switch normalizeState(state, ValveOpen, ValveClosed) {
		case ValveOpen:
			e.valves[id] = ValveOpen
		case ValveClosed:
			e.valves[id] = ValveClosed
		}
	}
	return nil
}

// Close releases the engine; further calls fail.
func (e *TableEngine) Close() error {
	e.closed = true
	return nil
}

func (e *TableEngine) snapshot() Snapshot {
	snap := Snapshot{
		Time:      e.time,
		Tanks:     make(map[string]float64, len(e.levels)),
		Pumps:     make(map[string]string, len(e.pumps)),
		Valves:    make(map[string]string, len(e.valves)),
		Pressures: map[string]float64{},
	}
	for k, v := range e.levels {
		snap.Tanks[k] = v
	}
	for k, v := range e.pumps {
		snap.Pumps[k] = v
	}
	for k, v := range e.valves {
		snap.Valves[k] = v
	}
	return snap
}

// normalizeState maps the accepted aliases of the active/inactive pair
// onto the canonical states for the element kind.
func normalizeState(state, active, inactive string) string {
	switch state {
	case "ON", "OPEN", "1", "true", "TRUE", active:
		return active
	case "OFF", "CLOSED", "0", "false", "FALSE", inactive:
		return inactive
	default:
		return ""
	}
}
