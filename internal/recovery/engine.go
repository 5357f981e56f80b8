package recovery

import (
	"fmt"
	"time"

	"github.com/ghostpirates/crew/internal/config"
	"github.com/ghostpirates/crew/internal/state"
	"github.com/ghostpirates/crew/pkg/models"
)

// Outcome is the engine's resolution for a classified failure.
type Outcome string

const (
	// OutcomeRetry re-runs the failed step on the same agent after a delay.
	OutcomeRetry Outcome = "retry"
	// OutcomeReassign hands the task to a different eligible agent.
	OutcomeReassign Outcome = "reassign"
	// OutcomeDecompose splits the task into smaller subtasks.
	OutcomeDecompose Outcome = "decompose"
	// OutcomeEscalate surfaces the failure for human intervention.
	OutcomeEscalate Outcome = "escalate"
	// OutcomeAbort terminates the task.
	OutcomeAbort Outcome = "abort"
)

// Decision is what the engine resolved a failure to.
type Decision struct {
	Outcome Outcome
	// Delay applies to retry and decompose outcomes.
	Delay time.Duration
	// Intervention is set when Outcome is OutcomeEscalate.
	Intervention models.InterventionType
	// Reason summarizes why this outcome was chosen.
	Reason string
}

// Engine resolves classified failures into recovery decisions. Same inputs
// always yield the same outcome kind; only the jittered delay varies.
type Engine struct {
	classifier  *Classifier
	backoff     *Backoff
	maxAttempts int
	failures    state.FailureStore
}

// NewEngine creates an Engine from retry configuration.
func NewEngine(cfg config.RetryConfig, failures state.FailureStore) *Engine {
	return &Engine{
		classifier:  NewClassifier(),
		backoff:     NewBackoff(cfg.BaseDelay, cfg.Multiplier, cfg.Jitter),
		maxAttempts: cfg.MaxAttempts,
		failures:    failures,
	}
}

// Analyze classifies a failure, persists the analysis, and resolves it.
// attempt counts how many recovery attempts this task has already consumed
// for its current failure streak, starting at 1 for the first failure.
func (e *Engine) Analyze(taskID string, err error, ectx ExecutionContext, attempt int) (*models.FailureAnalysis, Decision, error) {
	analysis := e.classifier.Classify(taskID, err, ectx)
	if e.failures != nil {
		if serr := e.failures.SaveFailureAnalysis(analysis); serr != nil {
			return nil, Decision{}, fmt.Errorf("save failure analysis: %w", serr)
		}
	}
	return analysis, e.Decide(analysis, ectx, attempt), nil
}

// Decide maps an analysis to a recovery decision. Auto-recoverable
// categories retry their action up to the attempt cap and escalate past it;
// everything else escalates or aborts immediately.
func (e *Engine) Decide(analysis *models.FailureAnalysis, ectx ExecutionContext, attempt int) Decision {
	if analysis.Category.ForcesAbort() {
		return Decision{
			Outcome: OutcomeAbort,
			Reason:  fmt.Sprintf("%s forces abort", analysis.Category),
		}
	}

	escalate := func() Decision {
		return Decision{
			Outcome:      OutcomeEscalate,
			Intervention: InterventionFor(analysis.Category),
			Reason:       fmt.Sprintf("%s requires intervention", analysis.Category),
		}
	}

	switch analysis.RecommendedAction {
	case models.ActionRetryWithBackoff:
		if attempt > e.maxAttempts {
			return escalate()
		}
		return Decision{
			Outcome: OutcomeRetry,
			Delay:   e.backoff.Delay(attempt),
			Reason:  fmt.Sprintf("retry %d/%d", attempt, e.maxAttempts),
		}

	case models.ActionReassign:
		if attempt > e.maxAttempts || !ectx.AlternativeAgentExists {
			return escalate()
		}
		return Decision{
			Outcome: OutcomeReassign,
			Reason:  fmt.Sprintf("reassign %d/%d", attempt, e.maxAttempts),
		}

	case models.ActionDecompose:
		if attempt > e.maxAttempts {
			return escalate()
		}
		return Decision{
			Outcome: OutcomeDecompose,
			Delay:   e.backoff.Delay(attempt),
			Reason:  fmt.Sprintf("decompose %d/%d", attempt, e.maxAttempts),
		}

	case models.ActionAbort:
		return Decision{
			Outcome: OutcomeAbort,
			Reason:  string(analysis.Category),
		}

	default:
		// Tool fixes, context compression, and clarification all need a human.
		return escalate()
	}
}
