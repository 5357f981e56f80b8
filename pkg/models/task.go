package models

import "time"

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has not been assigned.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusAssigned indicates the task has an agent but work has not started.
	TaskStatusAssigned TaskStatus = "assigned"
	// TaskStatusInProgress indicates the task is being worked on.
	TaskStatusInProgress TaskStatus = "in_progress"
	// TaskStatusReview indicates the task output is awaiting review.
	TaskStatusReview TaskStatus = "review"
	// TaskStatusInRevision indicates the review requested another revision.
	TaskStatusInRevision TaskStatus = "in_revision"
	// TaskStatusApproved indicates the task passed review. Terminal.
	TaskStatusApproved TaskStatus = "approved"
	// TaskStatusAborted indicates the task was abandoned. Terminal.
	TaskStatusAborted TaskStatus = "aborted"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusAssigned, TaskStatusInProgress,
		TaskStatusReview, TaskStatusInRevision, TaskStatusApproved, TaskStatusAborted:
		return true
	default:
		return false
	}
}

// Terminal returns true if no further transitions are allowed from this status.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusApproved || s == TaskStatusAborted
}

// CanTransitionTo reports whether a transition from s to next is legal.
// Any non-terminal status may transition to aborted; everything else
// follows the review loop:
//
//	pending -> assigned -> in_progress -> review -> {approved, in_revision, aborted}
//	in_revision -> in_progress
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	if next == TaskStatusAborted {
		return !s.Terminal()
	}
	switch s {
	case TaskStatusPending:
		return next == TaskStatusAssigned
	case TaskStatusAssigned:
		return next == TaskStatusInProgress
	case TaskStatusInProgress:
		return next == TaskStatusReview
	case TaskStatusReview:
		return next == TaskStatusApproved || next == TaskStatusInRevision
	case TaskStatusInRevision:
		return next == TaskStatusInProgress
	default:
		return false
	}
}

// Task represents a node in a goal decomposition tree.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// TeamID is the team this task belongs to.
	TeamID string `json:"team_id"`
	// ParentID is the ID of the parent task, if any.
	ParentID string `json:"parent_id,omitempty"`
	// Title is the short description of the task.
	Title string `json:"title"`
	// Description provides detailed information about the task.
	Description string `json:"description,omitempty"`
	// AcceptanceCriteria defines the criteria for task completion.
	AcceptanceCriteria string `json:"acceptance_criteria,omitempty"`
	// RequiredSkills maps skill names to the minimum proficiency needed.
	RequiredSkills map[string]float64 `json:"required_skills,omitempty"`
	// RequiredTags are capability tags used to select tools for this task.
	RequiredTags []string `json:"required_tags,omitempty"`
	// AssignedTo is the ID of the agent working on this task.
	AssignedTo string `json:"assigned_to,omitempty"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// RevisionCount is the number of review-requested revisions so far.
	RevisionCount int `json:"revision_count,omitempty"`
	// QualityScore is the most recent review score in [0,1].
	QualityScore float64 `json:"quality_score,omitempty"`
	// AcceptanceThreshold is the quality score required for approval.
	AcceptanceThreshold float64 `json:"acceptance_threshold,omitempty"`
	// Output is the latest worker-reported output payload.
	Output string `json:"output,omitempty"`
	// AbortReason is the human-readable reason when the task was aborted.
	AbortReason string `json:"abort_reason,omitempty"`
	// SunkCost is the cumulative cost charged to this task.
	SunkCost float64 `json:"sunk_cost,omitempty"`
	// CreatedAt is when the task was created.
	CreatedAt time.Time `json:"created_at"`
	// CompletedAt is when the task reached a terminal status, if it has.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// RevisionRecord captures the quality movement and cost of one revision.
// The ordered list of records per task is the input to marginal-return
// analysis.
type RevisionRecord struct {
	// TaskID is the task this revision belongs to.
	TaskID string `json:"task_id"`
	// Revision is the 1-indexed revision number.
	Revision int `json:"revision"`
	// QualityBefore is the quality score before the revision.
	QualityBefore float64 `json:"quality_before"`
	// QualityAfter is the quality score after the revision.
	QualityAfter float64 `json:"quality_after"`
	// Cost is the cost spent on the revision.
	Cost float64 `json:"cost"`
	// CreatedAt is when the revision completed.
	CreatedAt time.Time `json:"created_at"`
}

// ROI returns the quality gained per unit cost for this revision.
// Returns 0 when the revision had no cost.
func (r RevisionRecord) ROI() float64 {
	if r.Cost <= 0 {
		return 0
	}
	return (r.QualityAfter - r.QualityBefore) / r.Cost
}
