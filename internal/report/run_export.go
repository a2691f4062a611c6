// Package report renders a finished run's step history as downloadable
// documents for operators.
package report

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"waterscada/internal/history"
)

// columnKeys collects the sorted union of element ids across records so
// every row renders the same columns.
func columnKeys(records []history.StepRecord, pick func(history.StepRecord) []string) []string {
	seen := make(map[string]struct{})
	for _, record := range records {
		for _, key := range pick(record) {
			seen[key] = struct{}{}
		}
	}
	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func tankColumns(records []history.StepRecord) []string {
	return columnKeys(records, func(r history.StepRecord) []string {
		keys := make([]string, 0, len(r.TankLevels))
		for k := range r.TankLevels {
			keys = append(keys, k)
		}
		return keys
	})
}

func commandColumns(records []history.StepRecord, pick func(history.StepRecord) map[string]string) []string {
	return columnKeys(records, func(r history.StepRecord) []string {
		keys := make([]string, 0, len(pick(r)))
		for k := range pick(r) {
			keys = append(keys, k)
		}
		return keys
	})
}

// BuildRunXLSX renders a run as a workbook: a summary sheet plus one
// steps sheet with a column per tank and actuator.
func BuildRunXLSX(runID string, records []history.StepRecord) ([]byte, error) {
	if len(records) == 0 {
		return nil, errors.New("report: empty run")
	}

	f := excelize.NewFile()
	summarySheet := "summary"
	stepsSheet := "steps"
	f.SetSheetName("Sheet1", summarySheet)
	f.NewSheet(stepsSheet)

	_ = f.SetCellValue(summarySheet, "A1", "Simulation Run Report")
	_ = f.SetCellValue(summarySheet, "A3", "Run")
	_ = f.SetCellValue(summarySheet, "B3", runID)
	_ = f.SetCellValue(summarySheet, "A4", "Steps")
	_ = f.SetCellValue(summarySheet, "B4", len(records))
	_ = f.SetCellValue(summarySheet, "A5", "Sim Duration (s)")
	_ = f.SetCellValue(summarySheet, "B5", records[len(records)-1].SimTime)
	_ = f.SetCellValue(summarySheet, "A6", "Recorded")
	_ = f.SetCellValue(summarySheet, "B6", records[len(records)-1].RecordedAt.Format(time.RFC3339))

	tanks := tankColumns(records)
	pumps := commandColumns(records, func(r history.StepRecord) map[string]string { return r.PumpCommands })
	valves := commandColumns(records, func(r history.StepRecord) map[string]string { return r.ValveCommands })

	_ = f.SetCellValue(stepsSheet, "A1", "Step")
	_ = f.SetCellValue(stepsSheet, "B1", "Sim Time (s)")
	col := 3
	for _, tank := range tanks {
		cell, _ := excelize.CoordinatesToCellName(col, 1)
		_ = f.SetCellValue(stepsSheet, cell, "Level "+tank)
		col++
	}
	for _, pump := range pumps {
		cell, _ := excelize.CoordinatesToCellName(col, 1)
		_ = f.SetCellValue(stepsSheet, cell, "Pump "+pump)
		col++
	}
	for _, valve := range valves {
		cell, _ := excelize.CoordinatesToCellName(col, 1)
		_ = f.SetCellValue(stepsSheet, cell, "Valve "+valve)
		col++
	}

	for i, record := range records {
		row := i + 2
		_ = f.SetCellValue(stepsSheet, fmt.Sprintf("A%d", row), record.Step)
		_ = f.SetCellValue(stepsSheet, fmt.Sprintf("B%d", row), record.SimTime)
		col = 3
		for _, tank := range tanks {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			if level, ok := record.TankLevels[tank]; ok {
				_ = f.SetCellValue(stepsSheet, cell, level)
			}
			col++
		}
		for _, pump := range pumps {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(stepsSheet, cell, record.PumpCommands[pump])
			col++
		}
		for _, valve := range valves {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(stepsSheet, cell, record.ValveCommands[valve])
			col++
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildRunPDF renders a run as a minimal PDF: a header block plus a
// per-step table of tank levels and issued commands.
func BuildRunPDF(runID string, records []history.StepRecord) ([]byte, error) {
	if len(records) == 0 {
		return nil, errors.New("report: empty run")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Simulation Run Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Run: %s", runID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Steps: %d", len(records)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Sim Duration (s): %.0f", records[len(records)-1].SimTime))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Recorded: %s", records[len(records)-1].RecordedAt.Format(time.RFC3339)))
	pdf.Ln(8)

	tanks := tankColumns(records)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(20, 6, "Step", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Time (s)", "1", 0, "C", false, 0, "")
	for _, tank := range tanks {
		pdf.CellFormat(30, 6, tank, "1", 0, "C", false, 0, "")
	}
	pdf.CellFormat(60, 6, "Commands", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, record := range records {
		pdf.CellFormat(20, 6, fmt.Sprintf("%d", record.Step), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%.0f", record.SimTime), "1", 0, "R", false, 0, "")
		for _, tank := range tanks {
			pdf.CellFormat(30, 6, fmt.Sprintf("%.3f", record.TankLevels[tank]), "1", 0, "R", false, 0, "")
		}
		pdf.CellFormat(60, 6, commandSummary(record), "1", 0, "L", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// commandSummary flattens a step's commands into one cell.
func commandSummary(record history.StepRecord) string {
	parts := make([]string, 0, len(record.PumpCommands)+len(record.ValveCommands))
	for _, id := range commandColumns([]history.StepRecord{record}, func(r history.StepRecord) map[string]string { return r.PumpCommands }) {
		parts = append(parts, id+"="+record.PumpCommands[id])
	}
	for _, id := range commandColumns([]history.StepRecord{record}, func(r history.StepRecord) map[string]string { return r.ValveCommands }) {
		parts = append(parts, id+"="+record.ValveCommands[id])
	}
	if len(parts) == 0 {
		return "-"
	}
	out := parts[0]
	for _, part := range parts[1:] {
		out += " " + part
	}
	return out
}
