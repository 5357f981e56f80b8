package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ghostpirates/crew/pkg/models"
)

const taskColumns = `id, team_id, COALESCE(parent_id, ''), title, COALESCE(description, ''),
	COALESCE(acceptance_criteria, ''), COALESCE(required_skills, '{}'), COALESCE(required_tags, ''),
	COALESCE(assigned_to, ''), status, revision_count, quality_score, acceptance_threshold,
	COALESCE(output, ''), COALESCE(abort_reason, ''), sunk_cost, created_at, completed_at`

// CreateTask inserts a new task row.
func (db *DB) CreateTask(t *models.Task) error {
	skills, err := json.Marshal(t.RequiredSkills)
	if err != nil {
		return fmt.Errorf("marshal required skills: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO tasks (id, team_id, parent_id, title, description, acceptance_criteria,
			required_skills, required_tags, assigned_to, status, revision_count,
			quality_score, acceptance_threshold, output, abort_reason, sunk_cost, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.TeamID, nullable(t.ParentID), t.Title, t.Description, t.AcceptanceCriteria,
		string(skills), strings.Join(t.RequiredTags, ","), t.AssignedTo, string(t.Status),
		t.RevisionCount, t.QualityScore, t.AcceptanceThreshold, t.Output, t.AbortReason,
		t.SunkCost, formatTime(t.CreatedAt))
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// GetTask retrieves a task by ID.
func (db *DB) GetTask(id string) (*models.Task, error) {
	row := db.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return t, err
}

// ListTasksByTeam returns all tasks belonging to a team.
func (db *DB) ListTasksByTeam(teamID string) ([]models.Task, error) {
	return db.listTasks(`SELECT `+taskColumns+` FROM tasks WHERE team_id = ? ORDER BY created_at`, teamID)
}

// ListTasksByParent returns the child tasks of a parent task.
func (db *DB) ListTasksByParent(parentID string) ([]models.Task, error) {
	return db.listTasks(`SELECT `+taskColumns+` FROM tasks WHERE parent_id = ? ORDER BY created_at`, parentID)
}

func (db *DB) listTasks(query string, args ...any) ([]models.Task, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// TransitionTask moves a task from one status to another atomically.
// The transition is validated against the state machine and applied as a
// compare-and-swap on the current status, so two concurrent transitions
// cannot both succeed. The optional mutate callback adjusts other task
// fields (quality score, output, revision count) as part of the same write.
// Returns the updated task.
func (db *DB) TransitionTask(id string, from, to models.TaskStatus, mutate func(*models.Task)) (*models.Task, error) {
	if !from.CanTransitionTo(to) {
		return nil, fmt.Errorf("task %s: %s -> %s: %w", id, from, to, ErrInvalidTransition)
	}

	var updated *models.Task
	err := db.Transaction(func(tx *sql.Tx) error {
		row := tx.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
		t, err := scanTask(row.Scan)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("task %s: %w", id, ErrNotFound)
		}
		if err != nil {
			return err
		}
		if t.Status != from {
			return fmt.Errorf("task %s in %s, expected %s: %w", id, t.Status, from, ErrConflict)
		}

		t.Status = to
		if mutate != nil {
			mutate(t)
			// The callback may not override the transition itself.
			t.Status = to
		}
		if to.Terminal() && t.CompletedAt == nil {
			now := time.Now()
			t.CompletedAt = &now
		}

		skills, err := json.Marshal(t.RequiredSkills)
		if err != nil {
			return fmt.Errorf("marshal required skills: %w", err)
		}

		var completedAt any
		if t.CompletedAt != nil {
			completedAt = formatTime(*t.CompletedAt)
		}

		res, err := tx.Exec(`
			UPDATE tasks SET status = ?, assigned_to = ?, revision_count = ?,
				quality_score = ?, acceptance_threshold = ?, output = ?, abort_reason = ?,
				sunk_cost = ?, required_skills = ?, completed_at = ?
			WHERE id = ? AND status = ?
		`, string(to), t.AssignedTo, t.RevisionCount, t.QualityScore, t.AcceptanceThreshold,
			t.Output, t.AbortReason, t.SunkCost, string(skills), completedAt, id, string(from))
		if err != nil {
			return fmt.Errorf("transition task: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return fmt.Errorf("task %s left %s concurrently: %w", id, from, ErrConflict)
		}

		updated = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// AppendRevision records the quality movement and cost of one revision.
func (db *DB) AppendRevision(r *models.RevisionRecord) error {
	_, err := db.Exec(`
		INSERT INTO revisions (task_id, revision, quality_before, quality_after, cost, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.TaskID, r.Revision, r.QualityBefore, r.QualityAfter, r.Cost, formatTime(r.CreatedAt))
	if err != nil {
		return fmt.Errorf("append revision: %w", err)
	}
	return nil
}

// ListRevisions returns a task's revision history in revision order.
func (db *DB) ListRevisions(taskID string) ([]models.RevisionRecord, error) {
	rows, err := db.Query(`
		SELECT task_id, revision, quality_before, quality_after, cost, created_at
		FROM revisions WHERE task_id = ? ORDER BY revision
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list revisions: %w", err)
	}
	defer rows.Close()

	var recs []models.RevisionRecord
	for rows.Next() {
		var r models.RevisionRecord
		var createdAt string
		if err := rows.Scan(&r.TaskID, &r.Revision, &r.QualityBefore, &r.QualityAfter, &r.Cost, &createdAt); err != nil {
			return nil, err
		}
		r.CreatedAt, _ = parseTime(createdAt)
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

func scanTask(scan func(...any) error) (*models.Task, error) {
	var t models.Task
	var skills, tags, status, createdAt string
	var completedAt sql.NullString
	err := scan(&t.ID, &t.TeamID, &t.ParentID, &t.Title, &t.Description,
		&t.AcceptanceCriteria, &skills, &tags, &t.AssignedTo, &status,
		&t.RevisionCount, &t.QualityScore, &t.AcceptanceThreshold,
		&t.Output, &t.AbortReason, &t.SunkCost, &createdAt, &completedAt)
	if err != nil {
		return nil, err
	}

	t.Status = models.TaskStatus(status)
	if err := json.Unmarshal([]byte(skills), &t.RequiredSkills); err != nil {
		return nil, fmt.Errorf("unmarshal required skills: %w", err)
	}
	if tags != "" {
		t.RequiredTags = strings.Split(tags, ",")
	}
	t.CreatedAt, _ = parseTime(createdAt)
	t.CompletedAt = parseNullableTime(completedAt)
	return &t, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
