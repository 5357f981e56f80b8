package state

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ghostpirates/crew/pkg/models"
)

// CreateTeam inserts a new team row.
func (db *DB) CreateTeam(t *models.Team) error {
	_, err := db.Exec(`
		INSERT INTO teams (id, goal, status, manager_id, budget_ceiling, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, t.ID, t.Goal, string(t.Status), t.ManagerID, t.BudgetCeiling, formatTime(t.CreatedAt))
	if err != nil {
		return fmt.Errorf("create team: %w", err)
	}
	return nil
}

// GetTeam retrieves a team by ID.
func (db *DB) GetTeam(id string) (*models.Team, error) {
	row := db.QueryRow(`
		SELECT id, goal, status, COALESCE(manager_id, ''), budget_ceiling, created_at, completed_at
		FROM teams WHERE id = ?
	`, id)

	var t models.Team
	var status, createdAt string
	var completedAt sql.NullString
	err := row.Scan(&t.ID, &t.Goal, &status, &t.ManagerID, &t.BudgetCeiling, &createdAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("team %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get team: %w", err)
	}

	t.Status = models.TeamStatus(status)
	t.CreatedAt, _ = parseTime(createdAt)
	t.CompletedAt = parseNullableTime(completedAt)
	return &t, nil
}

// UpdateTeamStatus transitions a team via compare-and-swap on the current
// status. Terminal transitions stamp completed_at.
func (db *DB) UpdateTeamStatus(id string, from, to models.TeamStatus) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("team %s: %s -> %s: %w", id, from, to, ErrInvalidTransition)
	}

	var completedAt any
	if to == models.TeamStatusCompleted || to == models.TeamStatusAborted {
		completedAt = formatTime(time.Now())
	}

	res, err := db.Exec(`
		UPDATE teams SET status = ?, completed_at = COALESCE(?, completed_at)
		WHERE id = ? AND status = ?
	`, string(to), completedAt, id, string(from))
	if err != nil {
		return fmt.Errorf("update team status: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("team %s not in %s: %w", id, from, ErrConflict)
	}
	return nil
}

// ListTeams returns teams ordered newest first, up to limit.
func (db *DB) ListTeams(limit int) ([]models.Team, error) {
	rows, err := db.Query(`
		SELECT id, goal, status, COALESCE(manager_id, ''), budget_ceiling, created_at, completed_at
		FROM teams ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	defer rows.Close()

	var teams []models.Team
	for rows.Next() {
		var t models.Team
		var status, createdAt string
		var completedAt sql.NullString
		if err := rows.Scan(&t.ID, &t.Goal, &status, &t.ManagerID, &t.BudgetCeiling, &createdAt, &completedAt); err != nil {
			return nil, fmt.Errorf("scan team: %w", err)
		}
		t.Status = models.TeamStatus(status)
		t.CreatedAt, _ = parseTime(createdAt)
		t.CompletedAt = parseNullableTime(completedAt)
		teams = append(teams, t)
	}
	return teams, rows.Err()
}

// SetTeamManager records the coordinating manager agent for a team.
func (db *DB) SetTeamManager(id, managerID string) error {
	res, err := db.Exec(`UPDATE teams SET manager_id = ? WHERE id = ?`, managerID, id)
	if err != nil {
		return fmt.Errorf("set team manager: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("team %s: %w", id, ErrNotFound)
	}
	return nil
}
