package state

import (
	"fmt"

	"github.com/ghostpirates/crew/pkg/models"
)

// SaveFailureAnalysis appends one immutable failure analysis.
func (db *DB) SaveFailureAnalysis(fa *models.FailureAnalysis) error {
	_, err := db.Exec(`
		INSERT INTO failure_analyses (id, task_id, category, root_cause, confidence,
			recommended_action, priority, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, fa.ID, fa.TaskID, string(fa.Category), fa.RootCause, fa.Confidence,
		string(fa.RecommendedAction), string(fa.Priority), formatTime(fa.CreatedAt))
	if err != nil {
		return fmt.Errorf("save failure analysis: %w", err)
	}
	return nil
}

// ListFailuresByTask returns a task's failure analyses in order.
func (db *DB) ListFailuresByTask(taskID string) ([]models.FailureAnalysis, error) {
	rows, err := db.Query(`
		SELECT id, task_id, category, COALESCE(root_cause, ''), confidence,
			recommended_action, priority, created_at
		FROM failure_analyses WHERE task_id = ? ORDER BY created_at
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list failures: %w", err)
	}
	defer rows.Close()

	var out []models.FailureAnalysis
	for rows.Next() {
		var fa models.FailureAnalysis
		var category, action, priority, createdAt string
		if err := rows.Scan(&fa.ID, &fa.TaskID, &category, &fa.RootCause,
			&fa.Confidence, &action, &priority, &createdAt); err != nil {
			return nil, err
		}
		fa.Category = models.FailureCategory(category)
		fa.RecommendedAction = models.RecoveryAction(action)
		fa.Priority = models.EscalationPriority(priority)
		fa.CreatedAt, _ = parseTime(createdAt)
		out = append(out, fa)
	}
	return out, rows.Err()
}
