// Package sim drives the closed loop: advance the physical engine one
// hydraulic step, let every agent talk to the coordinator, merge the
// actuator effects and push the commands back into the engine before
// the next step.
package sim

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"waterscada/internal/attack"
	"waterscada/internal/history"
	"waterscada/internal/observability/metrics"
	"waterscada/internal/physical"
	"waterscada/internal/plc"
	"waterscada/internal/protocol"
)

// Coordinator is the control endpoint the orchestrator talks to.
// *scada.Coordinator satisfies it.
type Coordinator interface {
	Reset()
	HandleRequest(req protocol.ObservationRequest) protocol.CoordinatorReply
}

// Orchestrator owns one simulation run.
type Orchestrator struct {
	engine      physical.Engine
	coordinator Coordinator
	agents      []*plc.Agent

	interceptor attack.Interceptor
	recorder    history.Recorder
	logger      *log.Logger
	runID       string
}

// Option customizes the orchestrator.
type Option func(*Orchestrator)

// WithInterceptor routes every encoded request and reply through the
// interceptor, modelling a machine-in-the-middle on the fieldbus.
func WithInterceptor(interceptor attack.Interceptor) Option {
	return func(o *Orchestrator) {
		o.interceptor = interceptor
	}
}

// WithRecorder persists a step record after every completed step.
func WithRecorder(recorder history.Recorder) Option {
	return func(o *Orchestrator) {
		o.recorder = recorder
	}
}

// WithLogger assigns a logger for per-step diagnostics.
func WithLogger(logger *log.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithRunID pins the run id instead of generating one.
func WithRunID(runID string) Option {
	return func(o *Orchestrator) {
		o.runID = runID
	}
}

// NewOrchestrator wires an engine, a coordinator and the agent fleet.
func NewOrchestrator(engine physical.Engine, coordinator Coordinator, agents []*plc.Agent, opts ...Option) (*Orchestrator, error) {
	if engine == nil {
		return nil, errors.New("sim: nil engine")
	}
	if coordinator == nil {
		return nil, errors.New("sim: nil coordinator")
	}
	o := &Orchestrator{
		engine:      engine,
		coordinator: coordinator,
		agents:      agents,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.runID == "" {
		o.runID = uuid.NewString()
	}
	return o, nil
}

// RunID returns the run id records are keyed by.
func (o *Orchestrator) RunID() string { return o.runID }

// Run executes the full simulation: reset engine and coordinator, then
// step until the engine reports the end of the hydraulic horizon or the
// context is cancelled. It returns the number of completed steps.
func (o *Orchestrator) Run(ctx context.Context) (int, error) {
	snap, err := o.engine.Reset()
	if err != nil {
		return 0, err
	}
	o.coordinator.Reset()

	steps := 0
	for {
		select {
		case <-ctx.Done():
			return steps, ctx.Err()
		default:
		}

		started := time.Now()
		pumps, valves := o.processStep(snap)
		if err := o.engine.ApplyCommands(pumps, valves); err != nil {
			return steps, err
		}
		if o.recorder != nil {
			record := history.StepRecord{
				RunID:         o.runID,
				Step:          steps,
				SimTime:       snap.Time,
				PumpCommands:  pumps,
				ValveCommands: valves,
				TankLevels:    snap.Tanks,
			}
			if err := o.recorder.Record(ctx, record); err != nil {
				return steps, err
			}
		}
		metrics.IncCommandsIssued("pump", len(pumps))
		metrics.IncCommandsIssued("valve", len(valves))
		metrics.ObserveStep(time.Since(started))
		steps++

		next, err := o.engine.Step()
		if err != nil {
			return steps, err
		}
		if next == nil {
			return steps, nil
		}
		snap = *next
	}
}

// processStep runs one observation/command cycle over the snapshot.
// Agents build and exchange their requests concurrently; the
// coordinator serializes them internally. Effects are merged
// first-writer-wins in configuration order, so merging waits for every
// exchange to finish.
func (o *Orchestrator) processStep(snap physical.Snapshot) (pumps, valves map[string]string) {
	var wg sync.WaitGroup
	for _, agent := range o.agents {
		wg.Add(1)
		go func(agent *plc.Agent) {
			defer wg.Done()
			agent.UpdateFromReply(o.exchange(agent.BuildRequest(snap)))
		}(agent)
	}
	wg.Wait()

	pumps = make(map[string]string)
	valves = make(map[string]string)
	for _, agent := range o.agents {
		target := valves
		if agent.ElementType() == "pump" {
			target = pumps
		}
		for element, command := range agent.ActuatorEffect() {
			if _, taken := target[element]; !taken {
				target[element] = command
			}
		}
	}
	return pumps, valves
}

// exchange performs one request/reply cycle. Without an interceptor the
// coordinator is called directly; with one, both directions pass
// through the wire codec so the interceptor sees real payloads. A
// payload mangled beyond decoding is treated as dropped and the agent
// keeps its previous reply semantics via an empty response.
func (o *Orchestrator) exchange(req protocol.ObservationRequest) protocol.CoordinatorReply {
	if o.interceptor == nil {
		return o.coordinator.HandleRequest(req)
	}

	dropped := protocol.CoordinatorReply{PlcID: req.PlcID, Responses: map[string]any{}}

	payload, err := protocol.EncodeRequest(req)
	if err != nil {
		if o.logger != nil {
			o.logger.Printf("sim: encode request for %s: %v", req.PlcID, err)
		}
		return dropped
	}
	forwarded, err := protocol.DecodeRequest(o.interceptor.InterceptRequest(payload))
	if err != nil {
		if o.logger != nil {
			o.logger.Printf("sim: request from %s dropped in transit: %v", req.PlcID, err)
		}
		return dropped
	}

	reply := o.coordinator.HandleRequest(forwarded)
	payload, err = protocol.EncodeReply(reply)
	if err != nil {
		if o.logger != nil {
			o.logger.Printf("sim: encode reply for %s: %v", req.PlcID, err)
		}
		return dropped
	}
	delivered, err := protocol.DecodeReply(o.interceptor.InterceptReply(payload))
	if err != nil {
		if o.logger != nil {
			o.logger.Printf("sim: reply to %s dropped in transit: %v", req.PlcID, err)
		}
		return dropped
	}
	return delivered
}
