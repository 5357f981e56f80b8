package models

import "time"

// FailureCategory classifies a failed execution. Exactly one category is
// assigned per failure event.
type FailureCategory string

const (
	FailureAmbiguity           FailureCategory = "ambiguity"
	FailureCapabilityGap       FailureCategory = "capability_gap"
	FailureCoordination        FailureCategory = "coordination_failure"
	FailureToolFailure         FailureCategory = "tool_failure"
	FailureContextLimitation   FailureCategory = "context_limitation"
	FailureBoundaryViolation   FailureCategory = "boundary_violation"
	FailureLogicalImpossible   FailureCategory = "logical_impossibility"
	FailureResourceExhaustion  FailureCategory = "resource_exhaustion"
	FailureTemporaryOutage     FailureCategory = "temporary_outage"
)

// Valid returns true if the category is a known value.
func (c FailureCategory) Valid() bool {
	switch c {
	case FailureAmbiguity, FailureCapabilityGap, FailureCoordination,
		FailureToolFailure, FailureContextLimitation, FailureBoundaryViolation,
		FailureLogicalImpossible, FailureResourceExhaustion, FailureTemporaryOutage:
		return true
	default:
		return false
	}
}

// ForcesAbort returns true for categories that abort the task regardless
// of remaining budget.
func (c FailureCategory) ForcesAbort() bool {
	return c == FailureLogicalImpossible || c == FailureBoundaryViolation
}

// RecoveryAction is the deterministic action recommended for a category.
type RecoveryAction string

const (
	ActionRetryWithBackoff       RecoveryAction = "retry_with_backoff"
	ActionReplaceToolIntegration RecoveryAction = "replace_tool_integration"
	ActionReassign               RecoveryAction = "reassign"
	ActionDecompose              RecoveryAction = "decompose"
	ActionCompressContext        RecoveryAction = "compress_context"
	ActionRequestClarification   RecoveryAction = "request_clarification"
	ActionAbort                  RecoveryAction = "abort"
)

// EscalationPriority ranks how urgently a human must look at a failure.
type EscalationPriority string

const (
	PriorityCritical     EscalationPriority = "critical"
	PriorityHigh         EscalationPriority = "high"
	PriorityMedium       EscalationPriority = "medium"
	PriorityLow          EscalationPriority = "low"
	PriorityNoEscalation EscalationPriority = "no_escalation"
)

// InterventionType names the kind of human help a surfaced failure needs.
type InterventionType string

const (
	InterventionClarification      InterventionType = "clarification"
	InterventionSkillGapResolution InterventionType = "skill_gap_resolution"
	InterventionToolIntegrationFix InterventionType = "tool_integration_fix"
	InterventionPolicyDecision     InterventionType = "policy_decision"
)

// FailureAnalysis is the classification of one failed execution.
// One per failure event; immutable.
type FailureAnalysis struct {
	// ID is the unique identifier for this analysis.
	ID string `json:"id"`
	// TaskID is the task whose execution failed.
	TaskID string `json:"task_id"`
	// Category is the assigned failure category.
	Category FailureCategory `json:"category"`
	// RootCause is a human-readable explanation of the failure.
	RootCause string `json:"root_cause"`
	// Confidence is the classifier's confidence in [0,1].
	Confidence float64 `json:"confidence"`
	// RecommendedAction is the category-determined recovery action.
	RecommendedAction RecoveryAction `json:"recommended_action"`
	// Priority is the escalation priority for the failure.
	Priority EscalationPriority `json:"priority"`
	// CreatedAt is when the analysis was produced.
	CreatedAt time.Time `json:"created_at"`
}
