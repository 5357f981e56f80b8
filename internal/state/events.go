package state

import (
	"fmt"

	"github.com/ghostpirates/crew/pkg/models"
)

// AppendEvent appends one immutable audit event.
func (db *DB) AppendEvent(e *models.Event) error {
	_, err := db.Exec(`
		INSERT INTO events (id, type, team_id, task_id, agent_id, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.ID, string(e.Type), nullable(e.TeamID), nullable(e.TaskID),
		nullable(e.AgentID), e.Payload, formatTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// ListEventsByTask returns a task's audit events in order.
func (db *DB) ListEventsByTask(taskID string) ([]models.Event, error) {
	return db.listEvents(`
		SELECT id, type, COALESCE(team_id, ''), COALESCE(task_id, ''),
			COALESCE(agent_id, ''), COALESCE(payload, ''), created_at
		FROM events WHERE task_id = ? ORDER BY created_at, id
	`, taskID)
}

// ListEventsByTeam returns a team's audit events in order.
func (db *DB) ListEventsByTeam(teamID string) ([]models.Event, error) {
	return db.listEvents(`
		SELECT id, type, COALESCE(team_id, ''), COALESCE(task_id, ''),
			COALESCE(agent_id, ''), COALESCE(payload, ''), created_at
		FROM events WHERE team_id = ? ORDER BY created_at, id
	`, teamID)
}

func (db *DB) listEvents(query string, args ...any) ([]models.Event, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var e models.Event
		var typ, createdAt string
		if err := rows.Scan(&e.ID, &typ, &e.TeamID, &e.TaskID, &e.AgentID, &e.Payload, &createdAt); err != nil {
			return nil, err
		}
		e.Type = models.EventType(typ)
		e.CreatedAt, _ = parseTime(createdAt)
		events = append(events, e)
	}
	return events, rows.Err()
}
