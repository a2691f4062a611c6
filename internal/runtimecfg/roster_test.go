package runtimecfg

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleRoster = `
scada:
  ip: 10.0.0.1
plcs:
  - id: PLC_PUMP_1
    element_id: P1
    ip: 10.0.0.250
  - id: PLC_SENSOR_T1
    element_id: T1
    ip: 10.0.1.10
    role: sensor
`

func writeRoster(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plcs.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write roster: %v", err)
	}
	return path
}

func TestLoadRoster(t *testing.T) {
	roster, err := LoadRoster(writeRoster(t, sampleRoster))
	if err != nil {
		t.Fatalf("load roster: %v", err)
	}
	if len(roster.PLCs) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(roster.PLCs))
	}
	if roster.PLCs[0].ID != "PLC_PUMP_1" || roster.PLCs[0].Address != "10.0.0.250" {
		t.Fatalf("unexpected first entry %+v", roster.PLCs[0])
	}
	if roster.PLCs[1].Role != RoleSensor {
		t.Fatalf("expected sensor role, got %q", roster.PLCs[1].Role)
	}
	if roster.Scada["ip"] != "10.0.0.1" {
		t.Fatalf("scada block lost: %+v", roster.Scada)
	}
}

func TestLoadRosterRejectsMissingFields(t *testing.T) {
	_, err := LoadRoster(writeRoster(t, "plcs:\n  - id: PLC_PUMP_1\n"))
	if err == nil {
		t.Fatal("expected validation error for missing element_id")
	}
}

func TestLoadRosterRejectsUnknownRole(t *testing.T) {
	_, err := LoadRoster(writeRoster(t, "plcs:\n  - id: PLC_X\n    element_id: P1\n    role: watcher\n"))
	if err == nil {
		t.Fatal("expected validation error for unknown role")
	}
}

func TestLoadRosterMissingFile(t *testing.T) {
	if _, err := LoadRoster(filepath.Join(t.TempDir(), "ghost.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
