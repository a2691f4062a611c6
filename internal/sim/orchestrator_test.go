package sim

import (
	"context"
	"log"
	"math"
	"testing"

	"waterscada/internal/attack"
	"waterscada/internal/controls"
	"waterscada/internal/history"
	"waterscada/internal/physical"
	"waterscada/internal/plc"
	"waterscada/internal/protocol"
	"waterscada/internal/runtimecfg"
	"waterscada/internal/scada"
)

func approx(got, want float64) bool {
	return math.Abs(got-want) < 1e-9
}

// loopConfig pairs one pump actuator with one tank sensor: the pump
// starts below 2.9 and stops above 3.2.
func loopConfig() *runtimecfg.RuntimeConfig {
	return &runtimecfg.RuntimeConfig{
		Agents: []runtimecfg.AgentConfig{
			{
				ID:          "PLC_PUMP_1",
				ElementID:   "P1",
				Address:     "10.0.0.250",
				Role:        runtimecfg.RoleActuator,
				ElementType: "pump",
				Logic: runtimecfg.Logic{
					Mode:   runtimecfg.ModeRuleList,
					NodeID: "T1",
					Rules: []controls.ControlRule{
						{LinkID: "P1", NodeID: "T1", Comparator: controls.ComparatorBelow, Action: controls.ActionOpen, Threshold: 2.9, Priority: 1, RuleIndex: 0},
						{LinkID: "P1", NodeID: "T1", Comparator: controls.ComparatorAbove, Action: controls.ActionClosed, Threshold: 3.2, Priority: 1, RuleIndex: 1},
					},
				},
			},
			{
				ID:          "PLC_SENSOR_T1",
				ElementID:   "T1",
				Address:     "10.0.1.10",
				Role:        runtimecfg.RoleSensor,
				ElementType: "tank",
				Logic:       runtimecfg.Logic{Mode: runtimecfg.ModeReportLevel, NodeID: "T1"},
			},
		},
	}
}

func loopEngine(t *testing.T) *physical.TableEngine {
	t.Helper()
	engine, err := physical.NewTableEngine(physical.TableConfig{
		StepSeconds:     600,
		DurationSeconds: 3000,
		Tanks: []physical.TankSpec{
			{ID: "T1", InitLevel: 3.0, MinLevel: 0, MaxLevel: 6.5, DemandPerStep: 0.2},
		},
		Pumps: []physical.PumpSpec{
			{ID: "P1", TankID: "T1", FillPerStep: 0.5, InitState: physical.PumpOff},
		},
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine
}

func loopAgents(cfg *runtimecfg.RuntimeConfig) []*plc.Agent {
	agents := make([]*plc.Agent, 0, len(cfg.Agents))
	for _, agentCfg := range cfg.Agents {
		agents = append(agents, plc.NewAgent(agentCfg))
	}
	return agents
}

func runClosedLoop(t *testing.T, opts ...Option) []history.StepRecord {
	t.Helper()
	cfg := loopConfig()
	coordinator, err := scada.NewCoordinator(cfg)
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	recorder := history.NewMemoryRecorder()
	opts = append(opts, WithRecorder(recorder), WithRunID("run-test"))
	orchestrator, err := NewOrchestrator(loopEngine(t), coordinator, loopAgents(cfg), opts...)
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}

	steps, err := orchestrator.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if steps != 6 {
		t.Fatalf("expected 6 steps for 3000s at 600s, got %d", steps)
	}

	records, err := recorder.ListByRun(context.Background(), "run-test")
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	if len(records) != 6 {
		t.Fatalf("expected 6 records, got %d", len(records))
	}
	return records
}

func TestClosedLoopHoldsTankInBand(t *testing.T) {
	records := runClosedLoop(t)

	// The rules cycle the pump: fill on a low tank, coast in the band,
	// cut off above the ceiling, then hold the last command.
	wantPump := []string{"OFF", "ON", "ON", "OFF", "OFF", "OFF"}
	wantLevel := []float64{3.0, 2.8, 3.1, 3.4, 3.2, 3.0}
	for i, record := range records {
		if record.PumpCommands["P1"] != wantPump[i] {
			t.Fatalf("step %d: expected pump %s, got %q", i, wantPump[i], record.PumpCommands["P1"])
		}
		if !approx(record.TankLevels["T1"], wantLevel[i]) {
			t.Fatalf("step %d: expected level %v, got %v", i, wantLevel[i], record.TankLevels["T1"])
		}
		if !approx(record.SimTime, float64(i)*600) {
			t.Fatalf("step %d: expected sim time %v, got %v", i, float64(i)*600, record.SimTime)
		}
	}
}

func TestPassthroughInterceptorPreservesLoop(t *testing.T) {
	direct := runClosedLoop(t)
	intercepted := runClosedLoop(t, WithInterceptor(attack.Passthrough{}))

	for i := range direct {
		if direct[i].PumpCommands["P1"] != intercepted[i].PumpCommands["P1"] {
			t.Fatalf("step %d: passthrough changed command %q to %q",
				i, direct[i].PumpCommands["P1"], intercepted[i].PumpCommands["P1"])
		}
		if !approx(direct[i].TankLevels["T1"], intercepted[i].TankLevels["T1"]) {
			t.Fatalf("step %d: passthrough changed level %v to %v",
				i, direct[i].TankLevels["T1"], intercepted[i].TankLevels["T1"])
		}
	}
}

// blackhole swallows every request, leaving agents without replies.
type blackhole struct{}

func (blackhole) InterceptRequest(payload []byte) []byte { return nil }
func (blackhole) InterceptReply(payload []byte) []byte   { return payload }

func TestDroppedTrafficIssuesNoCommands(t *testing.T) {
	records := runClosedLoop(t,
		WithInterceptor(blackhole{}),
		WithLogger(log.New(testWriter{t}, "", 0)),
	)
	for i, record := range records {
		if len(record.PumpCommands) != 0 || len(record.ValveCommands) != 0 {
			t.Fatalf("step %d: expected no commands over a dead link, got %+v", i, record)
		}
	}
	// Without control the tank only drains.
	if !approx(records[5].TankLevels["T1"], 2.0) {
		t.Fatalf("expected uncontrolled drain to 2.0, got %v", records[5].TankLevels["T1"])
	}
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Logf("%s", p)
	return len(p), nil
}

// scriptedCoordinator replies from a fixed table, for merge tests.
type scriptedCoordinator struct {
	replies map[string]protocol.CoordinatorReply
}

func (s *scriptedCoordinator) Reset() {}

func (s *scriptedCoordinator) HandleRequest(req protocol.ObservationRequest) protocol.CoordinatorReply {
	if reply, ok := s.replies[req.PlcID]; ok {
		return reply
	}
	return protocol.CoordinatorReply{PlcID: req.PlcID, Responses: map[string]any{}}
}

func TestMergeKeepsFirstCommandPerElement(t *testing.T) {
	first := runtimecfg.AgentConfig{
		ID: "PLC_A", ElementID: "P1", Role: runtimecfg.RoleActuator, ElementType: "pump",
	}
	second := runtimecfg.AgentConfig{
		ID: "PLC_B", ElementID: "P1", Role: runtimecfg.RoleActuator, ElementType: "pump",
	}
	coordinator := &scriptedCoordinator{replies: map[string]protocol.CoordinatorReply{
		"PLC_A": {PlcID: "PLC_A", Responses: map[string]any{protocol.KeyPumpCommand: "ON"}},
		"PLC_B": {PlcID: "PLC_B", Responses: map[string]any{protocol.KeyPumpCommand: "OFF"}},
	}}

	orchestrator, err := NewOrchestrator(loopEngine(t), coordinator,
		[]*plc.Agent{plc.NewAgent(first), plc.NewAgent(second)})
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}

	pumps, valves := orchestrator.processStep(physical.Snapshot{
		Tanks:  map[string]float64{"T1": 3.0},
		Pumps:  map[string]string{"P1": physical.PumpOff},
		Valves: map[string]string{},
	})
	if pumps["P1"] != "ON" {
		t.Fatalf("first configured agent must win the merge, got %q", pumps["P1"])
	}
	if len(valves) != 0 {
		t.Fatalf("no valve commands expected, got %+v", valves)
	}
}

func TestRunHonorsContextCancellation(t *testing.T) {
	cfg := loopConfig()
	coordinator, err := scada.NewCoordinator(cfg)
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	orchestrator, err := NewOrchestrator(loopEngine(t), coordinator, loopAgents(cfg))
	if err != nil {
		t.Fatalf("new orchestrator: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := orchestrator.Run(ctx); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
