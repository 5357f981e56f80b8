package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ghostpirates/crew/pkg/models"
)

// CreateAgent inserts a new agent row.
func (db *DB) CreateAgent(a *models.Agent) error {
	skills, err := json.Marshal(a.Skills)
	if err != nil {
		return fmt.Errorf("marshal skills: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO agents (id, team_id, role, specialization, skills, permitted_tools,
			capacity, active_tasks, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.TeamID, string(a.Role), string(a.Specialization), string(skills),
		strings.Join(a.PermittedTools, ","), a.Capacity, a.ActiveTasks,
		boolToInt(a.Active), formatTime(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("create agent: %w", err)
	}
	return nil
}

// GetAgent retrieves an agent by ID.
func (db *DB) GetAgent(id string) (*models.Agent, error) {
	row := db.QueryRow(`
		SELECT id, team_id, role, COALESCE(specialization, ''), COALESCE(skills, '{}'),
			COALESCE(permitted_tools, ''), capacity, active_tasks, active, created_at
		FROM agents WHERE id = ?
	`, id)

	a, err := scanAgent(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("agent %s: %w", id, ErrNotFound)
	}
	return a, err
}

// ListAgentsByTeam returns all agents belonging to a team.
func (db *DB) ListAgentsByTeam(teamID string) ([]models.Agent, error) {
	rows, err := db.Query(`
		SELECT id, team_id, role, COALESCE(specialization, ''), COALESCE(skills, '{}'),
			COALESCE(permitted_tools, ''), capacity, active_tasks, active, created_at
		FROM agents WHERE team_id = ? ORDER BY created_at
	`, teamID)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var agents []models.Agent
	for rows.Next() {
		a, err := scanAgent(rows.Scan)
		if err != nil {
			return nil, err
		}
		agents = append(agents, *a)
	}
	return agents, rows.Err()
}

// UpdateAgentSkills replaces an agent's skill proficiencies.
func (db *DB) UpdateAgentSkills(id string, skills map[string]float64) error {
	data, err := json.Marshal(skills)
	if err != nil {
		return fmt.Errorf("marshal skills: %w", err)
	}

	res, err := db.Exec(`UPDATE agents SET skills = ? WHERE id = ?`, string(data), id)
	if err != nil {
		return fmt.Errorf("update agent skills: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("agent %s: %w", id, ErrNotFound)
	}
	return nil
}

// AdjustAgentLoad changes the agent's active task count by delta. The count
// never goes below zero or above capacity.
func (db *DB) AdjustAgentLoad(id string, delta int) error {
	res, err := db.Exec(`
		UPDATE agents SET active_tasks = active_tasks + ?
		WHERE id = ? AND active_tasks + ? >= 0 AND active_tasks + ? <= capacity
	`, delta, id, delta, delta)
	if err != nil {
		return fmt.Errorf("adjust agent load: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("agent %s load %+d: %w", id, delta, ErrConflict)
	}
	return nil
}

// DeactivateAgent marks an agent inactive. Agents are never deleted.
func (db *DB) DeactivateAgent(id string) error {
	res, err := db.Exec(`UPDATE agents SET active = 0 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deactivate agent: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("agent %s: %w", id, ErrNotFound)
	}
	return nil
}

func scanAgent(scan func(...any) error) (*models.Agent, error) {
	var a models.Agent
	var role, spec, skills, tools, createdAt string
	var active int
	err := scan(&a.ID, &a.TeamID, &role, &spec, &skills, &tools,
		&a.Capacity, &a.ActiveTasks, &active, &createdAt)
	if err != nil {
		return nil, err
	}

	a.Role = models.AgentRole(role)
	a.Specialization = models.Specialization(spec)
	a.Active = active != 0
	if err := json.Unmarshal([]byte(skills), &a.Skills); err != nil {
		return nil, fmt.Errorf("unmarshal skills: %w", err)
	}
	if tools != "" {
		a.PermittedTools = strings.Split(tools, ",")
	}
	a.CreatedAt, _ = parseTime(createdAt)
	return &a, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
