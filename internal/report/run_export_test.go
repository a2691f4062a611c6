package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"waterscada/internal/history"
)

func sampleRecords() []history.StepRecord {
	recordedAt := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	return []history.StepRecord{
		{
			RunID: "run-1", Step: 0, SimTime: 0,
			PumpCommands: map[string]string{"P1": "OFF"},
			TankLevels:   map[string]float64{"T1": 3.0},
			RecordedAt:   recordedAt,
		},
		{
			RunID: "run-1", Step: 1, SimTime: 600,
			PumpCommands:  map[string]string{"P1": "ON"},
			ValveCommands: map[string]string{"V1": "CLOSED"},
			TankLevels:    map[string]float64{"T1": 2.8},
			RecordedAt:    recordedAt,
		},
	}
}

func TestBuildRunXLSX(t *testing.T) {
	out, err := BuildRunXLSX("run-1", sampleRecords())
	if err != nil {
		t.Fatalf("build xlsx: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("reopen workbook: %v", err)
	}
	defer f.Close()

	runCell, err := f.GetCellValue("summary", "B3")
	if err != nil || runCell != "run-1" {
		t.Fatalf("summary run cell: %q %v", runCell, err)
	}
	header, err := f.GetCellValue("steps", "C1")
	if err != nil || header != "Level T1" {
		t.Fatalf("steps header: %q %v", header, err)
	}
	command, err := f.GetCellValue("steps", "D3")
	if err != nil || command != "ON" {
		t.Fatalf("step 1 pump command: %q %v", command, err)
	}
}

func TestBuildRunPDF(t *testing.T) {
	out, err := BuildRunPDF("run-1", sampleRecords())
	if err != nil {
		t.Fatalf("build pdf: %v", err)
	}
	if !bytes.HasPrefix(out, []byte("%PDF")) {
		t.Fatalf("output is not a PDF, starts with %q", out[:min(8, len(out))])
	}
}

func TestEmptyRunRejected(t *testing.T) {
	if _, err := BuildRunXLSX("run-1", nil); err == nil {
		t.Fatal("expected error for empty xlsx run")
	}
	if _, err := BuildRunPDF("run-1", nil); err == nil {
		t.Fatal("expected error for empty pdf run")
	}
}

func TestCommandSummaryOrderingAndFallback(t *testing.T) {
	record := history.StepRecord{
		PumpCommands:  map[string]string{"P2": "OFF", "P1": "ON"},
		ValveCommands: map[string]string{"V1": "OPEN"},
	}
	got := commandSummary(record)
	if !strings.HasPrefix(got, "P1=ON P2=OFF") || !strings.Contains(got, "V1=OPEN") {
		t.Fatalf("unexpected summary %q", got)
	}
	if commandSummary(history.StepRecord{}) != "-" {
		t.Fatal("idle step must render as -")
	}
}
