package history

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRecorder keeps step records in process memory.
type MemoryRecorder struct {
	mu   sync.RWMutex
	runs map[string][]StepRecord
}

// NewMemoryRecorder constructs an empty recorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{runs: make(map[string][]StepRecord)}
}

// Record appends a step record to its run.
func (r *MemoryRecorder) Record(ctx context.Context, record StepRecord) error {
	_ = ctx
	record = cloneRecord(record)
	if record.RecordedAt.IsZero() {
		record.RecordedAt = time.Now().UTC()
	}
	r.mu.Lock()
	r.runs[record.RunID] = append(r.runs[record.RunID], record)
	r.mu.Unlock()
	return nil
}

// ListByRun returns a run's records sorted by step.
func (r *MemoryRecorder) ListByRun(ctx context.Context, runID string) ([]StepRecord, error) {
	_ = ctx
	r.mu.RLock()
	records, ok := r.runs[runID]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]StepRecord, len(records))
	for i, record := range records {
		out[i] = cloneRecord(record)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Step < out[j].Step })
	return out, nil
}

func cloneRecord(record StepRecord) StepRecord {
	out := record
	out.PumpCommands = cloneStringMap(record.PumpCommands)
	out.ValveCommands = cloneStringMap(record.ValveCommands)
	out.TankLevels = make(map[string]float64, len(record.TankLevels))
	for k, v := range record.TankLevels {
		out.TankLevels[k] = v
	}
	return out
}

func cloneStringMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
