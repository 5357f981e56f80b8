package state

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ghostpirates/crew/pkg/models"
)

// SaveCheckpoint appends a step snapshot for a task. The step number must be
// exactly one past the task's highest existing step; the insert and the
// task's sunk-cost update commit in one transaction, so a checkpoint is only
// visible once its owning task mutation has committed. Returns the
// checkpoint ID.
func (db *DB) SaveCheckpoint(cp *models.Checkpoint) (string, error) {
	err := db.Transaction(func(tx *sql.Tx) error {
		var status string
		row := tx.QueryRow(`SELECT status FROM tasks WHERE id = ?`, cp.TaskID)
		if err := row.Scan(&status); errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("task %s: %w", cp.TaskID, ErrNotFound)
		} else if err != nil {
			return err
		}
		if models.TaskStatus(status).Terminal() {
			return fmt.Errorf("task %s is terminal: %w", cp.TaskID, ErrInvalidTransition)
		}

		var last int
		row = tx.QueryRow(`SELECT COALESCE(MAX(step), 0) FROM checkpoints WHERE task_id = ?`, cp.TaskID)
		if err := row.Scan(&last); err != nil {
			return err
		}
		if cp.Step != last+1 {
			return fmt.Errorf("task %s: step %d after %d: %w", cp.TaskID, cp.Step, last, ErrStepGap)
		}

		_, err := tx.Exec(`
			INSERT INTO checkpoints (id, task_id, step, snapshot, cumulative_cost, invalidated, created_at)
			VALUES (?, ?, ?, ?, ?, 0, ?)
		`, cp.ID, cp.TaskID, cp.Step, cp.Snapshot, cp.CumulativeCost, formatTime(cp.CreatedAt))
		if err != nil {
			return fmt.Errorf("insert checkpoint: %w", err)
		}

		_, err = tx.Exec(`UPDATE tasks SET sunk_cost = ? WHERE id = ?`, cp.CumulativeCost, cp.TaskID)
		if err != nil {
			return fmt.Errorf("update task sunk cost: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return cp.ID, nil
}

// LatestCheckpoint returns the most recent valid checkpoint for a task,
// or nil if none exists.
func (db *DB) LatestCheckpoint(taskID string) (*models.Checkpoint, error) {
	cp, err := db.latestValid(taskID)
	if errors.Is(err, ErrNoCheckpoint) {
		return nil, nil
	}
	return cp, err
}

// ResumeFrom returns the most recent valid checkpoint for a task, failing
// with ErrNoCheckpoint if none exists.
func (db *DB) ResumeFrom(taskID string) (*models.Checkpoint, error) {
	return db.latestValid(taskID)
}

// ResumeAt returns the checkpoint at the given step and invalidates (without
// deleting) every later checkpoint for the task.
func (db *DB) ResumeAt(taskID string, step int) (*models.Checkpoint, error) {
	var cp *models.Checkpoint
	err := db.Transaction(func(tx *sql.Tx) error {
		row := tx.QueryRow(`
			SELECT id, task_id, step, snapshot, cumulative_cost, invalidated, created_at
			FROM checkpoints WHERE task_id = ? AND step = ? AND invalidated = 0
		`, taskID, step)
		c, err := scanCheckpoint(row.Scan)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("task %s step %d: %w", taskID, step, ErrNoCheckpoint)
		}
		if err != nil {
			return err
		}

		_, err = tx.Exec(`
			UPDATE checkpoints SET invalidated = 1 WHERE task_id = ? AND step > ?
		`, taskID, step)
		if err != nil {
			return fmt.Errorf("invalidate later checkpoints: %w", err)
		}

		cp = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cp, nil
}

// PruneCheckpoints keeps the most recent `keep` checkpoints for a task and
// deletes the rest. Returns the number deleted.
func (db *DB) PruneCheckpoints(taskID string, keep int) (int64, error) {
	if keep < 1 {
		keep = 1
	}
	res, err := db.Exec(`
		DELETE FROM checkpoints WHERE task_id = ? AND step NOT IN (
			SELECT step FROM checkpoints WHERE task_id = ? ORDER BY step DESC LIMIT ?
		)
	`, taskID, taskID, keep)
	if err != nil {
		return 0, fmt.Errorf("prune checkpoints: %w", err)
	}
	return res.RowsAffected()
}

// PurgeTerminalCheckpoints deletes checkpoints of tasks that reached a
// terminal status more than olderThan ago. Checkpoints of in-progress tasks
// are never touched, so the sole remaining checkpoint of live work survives.
func (db *DB) PurgeTerminalCheckpoints(olderThan time.Duration) (int64, error) {
	cutoff := formatTime(time.Now().Add(-olderThan))
	res, err := db.Exec(`
		DELETE FROM checkpoints WHERE task_id IN (
			SELECT id FROM tasks
			WHERE status IN ('approved', 'aborted') AND completed_at < ?
		)
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge terminal checkpoints: %w", err)
	}
	return res.RowsAffected()
}

func (db *DB) latestValid(taskID string) (*models.Checkpoint, error) {
	row := db.QueryRow(`
		SELECT id, task_id, step, snapshot, cumulative_cost, invalidated, created_at
		FROM checkpoints WHERE task_id = ? AND invalidated = 0
		ORDER BY step DESC LIMIT 1
	`, taskID)
	cp, err := scanCheckpoint(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", taskID, ErrNoCheckpoint)
	}
	return cp, err
}

func scanCheckpoint(scan func(...any) error) (*models.Checkpoint, error) {
	var cp models.Checkpoint
	var invalidated int
	var createdAt string
	err := scan(&cp.ID, &cp.TaskID, &cp.Step, &cp.Snapshot, &cp.CumulativeCost, &invalidated, &createdAt)
	if err != nil {
		return nil, err
	}
	cp.Invalidated = invalidated != 0
	cp.CreatedAt, _ = parseTime(createdAt)
	return &cp, nil
}
