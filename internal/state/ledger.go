package state

import (
	"database/sql"
	"fmt"

	"github.com/ghostpirates/crew/pkg/models"
)

// RecordExecution appends one tool execution record. The table is
// append-only; records are never updated or deleted.
func (db *DB) RecordExecution(rec *models.ToolExecutionRecord) error {
	_, err := db.Exec(`
		INSERT INTO tool_executions (id, task_id, tool_id, input, output, error,
			cost_units, tokens, latency_ms, cache_hit, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.TaskID, rec.ToolID, rec.Input, rec.Output, rec.Error,
		rec.CostUnits, rec.Tokens, rec.LatencyMS, boolToInt(rec.CacheHit),
		formatTime(rec.CreatedAt))
	if err != nil {
		return fmt.Errorf("record execution: %w", err)
	}
	return nil
}

// ListExecutionsByTask returns a task's tool execution records in order.
func (db *DB) ListExecutionsByTask(taskID string) ([]models.ToolExecutionRecord, error) {
	rows, err := db.Query(`
		SELECT id, task_id, tool_id, COALESCE(input, ''), COALESCE(output, ''),
			COALESCE(error, ''), cost_units, tokens, latency_ms, cache_hit, created_at
		FROM tool_executions WHERE task_id = ? ORDER BY created_at
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var recs []models.ToolExecutionRecord
	for rows.Next() {
		var r models.ToolExecutionRecord
		var cacheHit int
		var createdAt string
		if err := rows.Scan(&r.ID, &r.TaskID, &r.ToolID, &r.Input, &r.Output,
			&r.Error, &r.CostUnits, &r.Tokens, &r.LatencyMS, &cacheHit, &createdAt); err != nil {
			return nil, err
		}
		r.CacheHit = cacheHit != 0
		r.CreatedAt, _ = parseTime(createdAt)
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// ToolStats returns the historical error rate and average cost for a tool,
// used by the selector to break ties. Cache hits are excluded; they carry
// neither provider cost nor failure signal.
func (db *DB) ToolStats(toolID string) (errorRate, avgCost float64, err error) {
	row := db.QueryRow(`
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN error != '' THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(cost_units), 0)
		FROM tool_executions WHERE tool_id = ? AND cache_hit = 0
	`, toolID)

	var total, failures int
	if err := row.Scan(&total, &failures, &avgCost); err != nil {
		return 0, 0, fmt.Errorf("tool stats: %w", err)
	}
	if total > 0 {
		errorRate = float64(failures) / float64(total)
	}
	return errorRate, avgCost, nil
}

// AppendCost appends an immutable cost entry for a team. When the team has a
// budget ceiling, the append is conditional: the running total plus the new
// amount must stay at or below the ceiling, checked and written in one
// transaction so concurrent dispatches cannot jointly overspend.
func (db *DB) AppendCost(e *models.CostEntry) error {
	return db.Transaction(func(tx *sql.Tx) error {
		var ceiling float64
		row := tx.QueryRow(`SELECT budget_ceiling FROM teams WHERE id = ?`, e.TeamID)
		if err := row.Scan(&ceiling); err != nil {
			return fmt.Errorf("team %s: %w", e.TeamID, ErrNotFound)
		}

		if ceiling > 0 {
			var spent float64
			row := tx.QueryRow(`SELECT COALESCE(SUM(amount), 0) FROM cost_entries WHERE team_id = ?`, e.TeamID)
			if err := row.Scan(&spent); err != nil {
				return err
			}
			if spent+e.Amount > ceiling {
				return fmt.Errorf("team %s: %.2f + %.2f exceeds ceiling %.2f: %w",
					e.TeamID, spent, e.Amount, ceiling, ErrBudgetExhausted)
			}
		}

		_, err := tx.Exec(`
			INSERT INTO cost_entries (id, team_id, task_id, amount, description, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, e.ID, e.TeamID, nullable(e.TaskID), e.Amount, e.Description, formatTime(e.CreatedAt))
		if err != nil {
			return fmt.Errorf("append cost: %w", err)
		}
		return nil
	})
}

// TeamSpend returns the cumulative cost charged to a team.
func (db *DB) TeamSpend(teamID string) (float64, error) {
	var total float64
	row := db.QueryRow(`SELECT COALESCE(SUM(amount), 0) FROM cost_entries WHERE team_id = ?`, teamID)
	if err := row.Scan(&total); err != nil {
		return 0, fmt.Errorf("team spend: %w", err)
	}
	return total, nil
}

// TaskSpend returns the cumulative cost charged to a task.
func (db *DB) TaskSpend(taskID string) (float64, error) {
	var total float64
	row := db.QueryRow(`SELECT COALESCE(SUM(amount), 0) FROM cost_entries WHERE task_id = ?`, taskID)
	if err := row.Scan(&total); err != nil {
		return 0, fmt.Errorf("task spend: %w", err)
	}
	return total, nil
}
