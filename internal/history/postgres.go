package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// PostgresRecorder persists step records to Postgres through
// database/sql (pgx stdlib driver). Schema:
//
//	CREATE TABLE step_records (
//	    run_id         TEXT        NOT NULL,
//	    step           INT         NOT NULL,
//	    sim_time       DOUBLE PRECISION NOT NULL,
//	    pump_commands  JSONB       NOT NULL,
//	    valve_commands JSONB       NOT NULL,
//	    tank_levels    JSONB       NOT NULL,
//	    recorded_at    TIMESTAMPTZ NOT NULL,
//	    PRIMARY KEY (run_id, step)
//	);
type PostgresRecorder struct {
	db *sql.DB
}

// NewPostgresRecorder constructs a recorder over an open database.
func NewPostgresRecorder(db *sql.DB) *PostgresRecorder {
	return &PostgresRecorder{db: db}
}

// Record inserts one step record; re-recording a step overwrites it.
func (r *PostgresRecorder) Record(ctx context.Context, record StepRecord) error {
	if r == nil || r.db == nil {
		return errors.New("history: nil db")
	}
	if record.RunID == "" {
		return errors.New("history: run id required")
	}
	pumps, err := json.Marshal(record.PumpCommands)
	if err != nil {
		return err
	}
	valves, err := json.Marshal(record.ValveCommands)
	if err != nil {
		return err
	}
	levels, err := json.Marshal(record.TankLevels)
	if err != nil {
		return err
	}
	recordedAt := record.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO step_records (run_id, step, sim_time, pump_commands, valve_commands, tank_levels, recorded_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (run_id, step) DO UPDATE SET
	sim_time = EXCLUDED.sim_time,
	pump_commands = EXCLUDED.pump_commands,
	valve_commands = EXCLUDED.valve_commands,
	tank_levels = EXCLUDED.tank_levels,
	recorded_at = EXCLUDED.recorded_at`,
		record.RunID, record.Step, record.SimTime, pumps, valves, levels, recordedAt)
	return err
}

// ListByRun loads a run's records ordered by step.
func (r *PostgresRecorder) ListByRun(ctx context.Context, runID string) ([]StepRecord, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("history: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT run_id, step, sim_time, pump_commands, valve_commands, tank_levels, recorded_at
FROM step_records
WHERE run_id = $1
ORDER BY step`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []StepRecord
	for rows.Next() {
		var record StepRecord
		var pumps, valves, levels []byte
		if err := rows.Scan(&record.RunID, &record.Step, &record.SimTime, &pumps, &valves, &levels, &record.RecordedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(pumps, &record.PumpCommands); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(valves, &record.ValveCommands); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(levels, &record.TankLevels); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records, nil
}
