package plc

import (
	"testing"

	"waterscada/internal/controls"
	"waterscada/internal/physical"
	"waterscada/internal/protocol"
	"waterscada/internal/runtimecfg"
	"waterscada/internal/waternet"
)

func sensorConfig() runtimecfg.AgentConfig {
	return runtimecfg.AgentConfig{
		ID:          "PLC_SENSOR_T1",
		ElementID:   "T1",
		Address:     "10.0.1.10",
		Role:        runtimecfg.RoleSensor,
		ElementType: waternet.TypeTank,
		Logic:       runtimecfg.Logic{Mode: runtimecfg.ModeReportLevel, NodeID: "T1"},
	}
}

func pumpConfig() runtimecfg.AgentConfig {
	return runtimecfg.AgentConfig{
		ID:          "PLC_PUMP_1",
		ElementID:   "P1",
		Address:     "10.0.0.11",
		Role:        runtimecfg.RoleActuator,
		ElementType: waternet.TypePump,
		Logic: runtimecfg.Logic{
			Mode:   runtimecfg.ModeRuleList,
			NodeID: "T1",
			Rules: []controls.ControlRule{
				{LinkID: "P1", NodeID: "T1", Comparator: controls.ComparatorBelow, Action: controls.ActionOpen, Threshold: 4.0},
			},
		},
	}
}

func demoSnapshot() physical.Snapshot {
	return physical.Snapshot{
		Time:      1200,
		Tanks:     map[string]float64{"T1": 3.4},
		Pumps:     map[string]string{"P1": "ON"},
		Valves:    map[string]string{"V1": "OPEN"},
		Pressures: map[string]float64{"J1": 41.2},
	}
}

func TestSensorBuildRequest(t *testing.T) {
	agent := NewAgent(sensorConfig())
	req := agent.BuildRequest(demoSnapshot())

	if req.PlcID != "PLC_SENSOR_T1" || req.Role != "sensor" || req.Time != 1200 {
		t.Fatalf("unexpected request header: %+v", req)
	}
	level, ok := protocol.Number(req.Observations[protocol.KeyLevel])
	if !ok || level != 3.4 {
		t.Fatalf("expected level 3.4, got %+v", req.Observations)
	}
}

func TestSensorMissingNodeOmitsLevel(t *testing.T) {
	cfg := sensorConfig()
	cfg.Logic.NodeID = "GHOST"
	agent := NewAgent(cfg)
	req := agent.BuildRequest(demoSnapshot())
	if _, ok := req.Observations[protocol.KeyLevel]; ok {
		t.Fatalf("missing node must not report a level: %+v", req.Observations)
	}
}

func TestActuatorBuildRequest(t *testing.T) {
	agent := NewAgent(pumpConfig())
	req := agent.BuildRequest(demoSnapshot())

	level, ok := protocol.Number(req.Observations[protocol.KeyLevel])
	if !ok || level != 3.4 {
		t.Fatalf("expected conditioning level in request: %+v", req.Observations)
	}
	if req.Observations[protocol.KeyCurrentStatus] != "ON" {
		t.Fatalf("expected verbatim pump status: %+v", req.Observations)
	}
}

func TestJunctionLevelFallsBackToPressure(t *testing.T) {
	cfg := pumpConfig()
	cfg.Logic.NodeID = "J1"
	agent := NewAgent(cfg)
	req := agent.BuildRequest(demoSnapshot())
	level, ok := protocol.Number(req.Observations[protocol.KeyLevel])
	if !ok || level != 41.2 {
		t.Fatalf("expected pressure fallback for junction node: %+v", req.Observations)
	}
}

func TestActuatorEffectPumpCommand(t *testing.T) {
	agent := NewAgent(pumpConfig())
	agent.UpdateFromReply(protocol.CoordinatorReply{
		PlcID:     "PLC_PUMP_1",
		Responses: map[string]any{protocol.KeyPumpCommand: "OFF"},
	})
	effect := agent.ActuatorEffect()
	if effect["P1"] != "OFF" {
		t.Fatalf("expected P1 OFF, got %+v", effect)
	}
}

func TestOverrideBeatsCommand(t *testing.T) {
	agent := NewAgent(pumpConfig())
	agent.UpdateFromReply(protocol.CoordinatorReply{
		PlcID: "PLC_PUMP_1",
		Responses: map[string]any{
			protocol.KeyPumpCommand:    "ON",
			protocol.KeyOverrideAction: "OFF",
		},
	})
	effect := agent.ActuatorEffect()
	if effect["P1"] != "OFF" {
		t.Fatalf("override_action must win: %+v", effect)
	}
}

func TestNoCommandMeansNoEffect(t *testing.T) {
	agent := NewAgent(pumpConfig())
	agent.UpdateFromReply(protocol.CoordinatorReply{PlcID: "PLC_PUMP_1", Responses: map[string]any{}})
	if effect := agent.ActuatorEffect(); len(effect) != 0 {
		t.Fatalf("empty responses must yield no effect: %+v", effect)
	}
}

func TestSensorHasNoEffect(t *testing.T) {
	agent := NewAgent(sensorConfig())
	agent.UpdateFromReply(protocol.CoordinatorReply{
		PlcID:     "PLC_SENSOR_T1",
		Responses: map[string]any{protocol.KeyPumpCommand: "ON"},
	})
	if effect := agent.ActuatorEffect(); len(effect) != 0 {
		t.Fatalf("sensors never produce effects: %+v", effect)
	}
}

func TestReplyOverwritten(t *testing.T) {
	agent := NewAgent(pumpConfig())
	agent.UpdateFromReply(protocol.CoordinatorReply{Responses: map[string]any{protocol.KeyPumpCommand: "ON"}})
	agent.UpdateFromReply(protocol.CoordinatorReply{Responses: map[string]any{protocol.KeyPumpCommand: "OFF"}})
	if effect := agent.ActuatorEffect(); effect["P1"] != "OFF" {
		t.Fatalf("later reply must win unconditionally: %+v", effect)
	}
}

func TestValveEffectUsesValveSetting(t *testing.T) {
	cfg := pumpConfig()
	cfg.ID = "PLC_V1"
	cfg.ElementID = "V1"
	cfg.ElementType = waternet.TypeValve
	agent := NewAgent(cfg)
	agent.UpdateFromReply(protocol.CoordinatorReply{
		Responses: map[string]any{protocol.KeyValveSetting: "CLOSED"},
	})
	if effect := agent.ActuatorEffect(); effect["V1"] != "CLOSED" {
		t.Fatalf("expected CLOSED valve command, got %+v", effect)
	}
}
