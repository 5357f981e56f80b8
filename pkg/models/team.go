package models

import "time"

// TeamStatus represents the lifecycle state of a team.
type TeamStatus string

const (
	// TeamStatusForming indicates workers are being created for the team.
	TeamStatusForming TeamStatus = "forming"
	// TeamStatusActive indicates the team is executing tasks.
	TeamStatusActive TeamStatus = "active"
	// TeamStatusPaused indicates execution is temporarily suspended.
	TeamStatusPaused TeamStatus = "paused"
	// TeamStatusCompleted indicates the goal was achieved. Terminal.
	TeamStatusCompleted TeamStatus = "completed"
	// TeamStatusAborted indicates the team stopped before completion. Terminal.
	TeamStatusAborted TeamStatus = "aborted"
)

// Valid returns true if the status is a known value.
func (s TeamStatus) Valid() bool {
	switch s {
	case TeamStatusForming, TeamStatusActive, TeamStatusPaused,
		TeamStatusCompleted, TeamStatusAborted:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether a transition from s to next is legal.
func (s TeamStatus) CanTransitionTo(next TeamStatus) bool {
	switch s {
	case TeamStatusForming:
		return next == TeamStatusActive || next == TeamStatusAborted
	case TeamStatusActive:
		return next == TeamStatusPaused || next == TeamStatusCompleted || next == TeamStatusAborted
	case TeamStatusPaused:
		return next == TeamStatusActive || next == TeamStatusAborted
	default:
		return false
	}
}

// Team is a bounded unit of work pursuing one goal under one budget.
type Team struct {
	// ID is the unique identifier for this team.
	ID string `json:"id"`
	// Goal is the high-level objective the team was formed for.
	Goal string `json:"goal"`
	// Status is the current lifecycle state.
	Status TeamStatus `json:"status"`
	// ManagerID is the ID of the coordinating manager agent.
	ManagerID string `json:"manager_id,omitempty"`
	// BudgetCeiling is the maximum cumulative cost allowed, 0 for unlimited.
	BudgetCeiling float64 `json:"budget_ceiling,omitempty"`
	// CreatedAt is when the team was created.
	CreatedAt time.Time `json:"created_at"`
	// CompletedAt is when the team reached a terminal status, if it has.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// GoalAnalysis is the manager's breakdown of a goal before decomposition.
type GoalAnalysis struct {
	// CoreObjective is the distilled statement of what the goal requires.
	CoreObjective string `json:"core_objective"`
	// Subtasks are the high-level pieces of work identified.
	Subtasks []string `json:"subtasks"`
	// RequiredSpecializations names the worker specializations needed.
	RequiredSpecializations []string `json:"required_specializations"`
	// EstimatedHours is the rough timeline estimate.
	EstimatedHours float64 `json:"estimated_timeline_hours"`
	// PotentialBlockers lists risks called out during analysis.
	PotentialBlockers []string `json:"potential_blockers,omitempty"`
	// SuccessCriteria lists how goal completion is judged.
	SuccessCriteria []string `json:"success_criteria,omitempty"`
}
