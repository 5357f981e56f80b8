package models

import "time"

// AgentRole distinguishes coordinating agents from executing agents.
type AgentRole string

const (
	// RoleManager coordinates: decomposition, assignment, review.
	RoleManager AgentRole = "manager"
	// RoleWorker executes assigned tasks through tool calls.
	RoleWorker AgentRole = "worker"
)

// Specialization identifies a worker's area of expertise.
type Specialization string

const (
	SpecResearcher Specialization = "researcher"
	SpecCoder      Specialization = "coder"
	SpecReviewer   Specialization = "reviewer"
	SpecTester     Specialization = "tester"
	SpecWriter     Specialization = "writer"
)

// Valid returns true if the specialization is a known value.
func (s Specialization) Valid() bool {
	switch s {
	case SpecResearcher, SpecCoder, SpecReviewer, SpecTester, SpecWriter:
		return true
	default:
		return false
	}
}

// Agent represents a manager or worker belonging to a team.
// Agents are never deleted, only deactivated.
type Agent struct {
	// ID is the unique identifier for this agent.
	ID string `json:"id"`
	// TeamID is the team this agent belongs to.
	TeamID string `json:"team_id"`
	// Role is manager or worker.
	Role AgentRole `json:"role"`
	// Specialization is the worker's expertise area. Empty for managers.
	Specialization Specialization `json:"specialization,omitempty"`
	// Skills maps skill names to proficiency in [0,1].
	Skills map[string]float64 `json:"skills,omitempty"`
	// PermittedTools lists tool names this agent may invoke.
	PermittedTools []string `json:"permitted_tools,omitempty"`
	// Capacity is the maximum number of concurrent tasks.
	Capacity int `json:"capacity"`
	// ActiveTasks counts tasks currently occupying capacity slots.
	ActiveTasks int `json:"active_tasks"`
	// Active is false once the agent has been deactivated.
	Active bool `json:"active"`
	// CreatedAt is when the agent was created.
	CreatedAt time.Time `json:"created_at"`
}

// HasCapacity returns true if the agent can take another task.
func (a *Agent) HasCapacity() bool {
	return a.Active && a.ActiveTasks < a.Capacity
}

// Proficiency returns the agent's proficiency for a skill, 0 if absent.
func (a *Agent) Proficiency(skill string) float64 {
	return a.Skills[skill]
}

// MayUse returns true if the agent is permitted to invoke the named tool.
func (a *Agent) MayUse(tool string) bool {
	for _, t := range a.PermittedTools {
		if t == tool {
			return true
		}
	}
	return false
}

// WorkerSpec is a template for creating a specialized worker at team
// formation time.
type WorkerSpec struct {
	// Specialization is the worker's expertise area.
	Specialization Specialization `json:"specialization" yaml:"specialization"`
	// Skills maps skill names to starting proficiency.
	Skills map[string]float64 `json:"skills" yaml:"skills"`
	// Responsibilities describes what the worker owns.
	Responsibilities []string `json:"responsibilities,omitempty" yaml:"responsibilities,omitempty"`
	// RequiredTools lists tool names the worker needs access to.
	RequiredTools []string `json:"required_tools,omitempty" yaml:"required_tools,omitempty"`
	// Capacity is the number of concurrent tasks the worker can hold.
	Capacity int `json:"capacity,omitempty" yaml:"capacity,omitempty"`
}
