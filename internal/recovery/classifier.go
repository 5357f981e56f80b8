// Package recovery classifies failed executions and picks recovery actions.
// Categories map deterministically to actions and escalation priorities;
// auto-recoverable categories retry under bounded exponential backoff.
package recovery

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ghostpirates/crew/internal/executor"
	"github.com/ghostpirates/crew/internal/llm"
	"github.com/ghostpirates/crew/internal/state"
	"github.com/ghostpirates/crew/pkg/models"
)

// ErrNoEligibleAgent indicates assignment found no worker matching the
// required skills within current load limits.
var ErrNoEligibleAgent = errors.New("no eligible agent")

// ExecutionContext carries the evidence the classifier inspects alongside
// the error itself.
type ExecutionContext struct {
	// ToolsUsed lists the tool IDs invoked before the failure.
	ToolsUsed []string
	// RequiredSkills are the task's skill requirements.
	RequiredSkills map[string]float64
	// HeldSkills are the assigned agent's proficiencies.
	HeldSkills map[string]float64
	// TokensUsed is the token consumption at failure time.
	TokensUsed int64
	// BudgetRemaining is the team budget headroom at failure time.
	BudgetRemaining float64
	// MessageGap is the silence before the failure was observed.
	MessageGap time.Duration
	// AlternativeAgentExists is true when another eligible agent could
	// take the task over.
	AlternativeAgentExists bool
}

// actionFor is the fixed category -> recommended action mapping.
var actionFor = map[models.FailureCategory]models.RecoveryAction{
	models.FailureAmbiguity:          models.ActionRequestClarification,
	models.FailureCapabilityGap:      models.ActionReassign,
	models.FailureCoordination:       models.ActionDecompose,
	models.FailureToolFailure:        models.ActionReplaceToolIntegration,
	models.FailureContextLimitation:  models.ActionCompressContext,
	models.FailureBoundaryViolation:  models.ActionAbort,
	models.FailureLogicalImpossible:  models.ActionAbort,
	models.FailureResourceExhaustion: models.ActionAbort,
	models.FailureTemporaryOutage:    models.ActionRetryWithBackoff,
}

// priorityFor is the fixed category -> escalation priority mapping.
var priorityFor = map[models.FailureCategory]models.EscalationPriority{
	models.FailureAmbiguity:          models.PriorityHigh,
	models.FailureCapabilityGap:      models.PriorityMedium,
	models.FailureCoordination:       models.PriorityMedium,
	models.FailureToolFailure:        models.PriorityHigh,
	models.FailureContextLimitation:  models.PriorityLow,
	models.FailureBoundaryViolation:  models.PriorityCritical,
	models.FailureLogicalImpossible:  models.PriorityCritical,
	models.FailureResourceExhaustion: models.PriorityHigh,
	models.FailureTemporaryOutage:    models.PriorityNoEscalation,
}

// interventionFor is the fixed category -> human intervention mapping for
// surfaced failures.
var interventionFor = map[models.FailureCategory]models.InterventionType{
	models.FailureAmbiguity:          models.InterventionClarification,
	models.FailureCapabilityGap:      models.InterventionSkillGapResolution,
	models.FailureCoordination:       models.InterventionClarification,
	models.FailureToolFailure:        models.InterventionToolIntegrationFix,
	models.FailureContextLimitation:  models.InterventionToolIntegrationFix,
	models.FailureBoundaryViolation:  models.InterventionPolicyDecision,
	models.FailureLogicalImpossible:  models.InterventionPolicyDecision,
	models.FailureResourceExhaustion: models.InterventionPolicyDecision,
	models.FailureTemporaryOutage:    models.InterventionClarification,
}

// InterventionFor returns the human intervention type implied by a category.
func InterventionFor(c models.FailureCategory) models.InterventionType {
	return interventionFor[c]
}

// Classifier assigns exactly one failure category per failure event.
type Classifier struct {
	// now is replaceable for tests.
	now func() time.Time
}

// NewClassifier creates a Classifier.
func NewClassifier() *Classifier {
	return &Classifier{now: time.Now}
}

// Classify inspects a failed execution and produces an immutable analysis.
// The category decides the recommended action and escalation priority via
// fixed mappings; nothing downstream depends on the error's wording beyond
// the category assignment itself.
func (c *Classifier) Classify(taskID string, err error, ectx ExecutionContext) *models.FailureAnalysis {
	category, confidence, cause := categorize(err, ectx)

	return &models.FailureAnalysis{
		ID:                uuid.New().String(),
		TaskID:            taskID,
		Category:          category,
		RootCause:         cause,
		Confidence:        confidence,
		RecommendedAction: actionFor[category],
		Priority:          priorityFor[category],
		CreatedAt:         c.now(),
	}
}

// categorize applies the classification rules in priority order.
func categorize(err error, ectx ExecutionContext) (models.FailureCategory, float64, string) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	lower := strings.ToLower(msg)

	switch {
	case errors.Is(err, llm.ErrRateLimited), errors.Is(err, llm.ErrOverloaded),
		errors.Is(err, llm.ErrTimeout), containsAny(lower, "rate limit", "temporarily unavailable", "connection reset"):
		return models.FailureTemporaryOutage, 0.9, msg

	case errors.Is(err, state.ErrBudgetExhausted), ectx.BudgetRemaining < 0,
		containsAny(lower, "budget exhausted", "token limit", "out of tokens"):
		return models.FailureResourceExhaustion, 0.9, msg

	case errors.Is(err, ErrNoEligibleAgent), missingRequiredSkill(ectx):
		return models.FailureCapabilityGap, 0.8, msg

	case containsAny(lower, "impossible", "contradict", "no solution", "unsatisfiable"):
		return models.FailureLogicalImpossible, 0.7, msg

	case containsAny(lower, "permission denied", "forbidden", "policy violation", "outside scope", "unauthorized"):
		return models.FailureBoundaryViolation, 0.8, msg

	case containsAny(lower, "context length", "context window", "truncated", "too large to process"):
		return models.FailureContextLimitation, 0.8, msg

	case containsAny(lower, "ambiguous", "unclear", "clarif", "underspecified"):
		return models.FailureAmbiguity, 0.7, msg

	case ectx.MessageGap > 5*time.Minute, containsAny(lower, "deadlock", "waiting on", "dependency cycle"):
		return models.FailureCoordination, 0.6, msg

	case errors.Is(err, executor.ErrToolUnavailable), errors.Is(err, executor.ErrNoProvider):
		return models.FailureToolFailure, 0.9, msg

	default:
		// Unrecognized errors from a tool call path default to tool failure
		// with reduced confidence.
		return models.FailureToolFailure, 0.4, msg
	}
}

// missingRequiredSkill reports whether the agent lacks any required skill.
func missingRequiredSkill(ectx ExecutionContext) bool {
	if len(ectx.RequiredSkills) == 0 {
		return false
	}
	for skill, min := range ectx.RequiredSkills {
		if ectx.HeldSkills[skill] < min {
			return true
		}
	}
	return false
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
