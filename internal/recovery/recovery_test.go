package recovery

import (
	"errors"
	"testing"
	"time"

	"github.com/ghostpirates/crew/internal/config"
	"github.com/ghostpirates/crew/internal/llm"
	"github.com/ghostpirates/crew/internal/state"
	"github.com/ghostpirates/crew/pkg/models"
)

func TestClassifyCategories(t *testing.T) {
	c := NewClassifier()

	tests := []struct {
		name string
		err  error
		ectx ExecutionContext
		want models.FailureCategory
	}{
		{"rate limited", llm.ErrRateLimited, ExecutionContext{}, models.FailureTemporaryOutage},
		{"overloaded", llm.ErrOverloaded, ExecutionContext{}, models.FailureTemporaryOutage},
		{"timeout", llm.ErrTimeout, ExecutionContext{}, models.FailureTemporaryOutage},
		{"budget exhausted", state.ErrBudgetExhausted, ExecutionContext{}, models.FailureResourceExhaustion},
		{"negative headroom", errors.New("step failed"), ExecutionContext{BudgetRemaining: -1}, models.FailureResourceExhaustion},
		{"no eligible agent", ErrNoEligibleAgent, ExecutionContext{}, models.FailureCapabilityGap},
		{
			"missing skill",
			errors.New("step failed"),
			ExecutionContext{
				RequiredSkills: map[string]float64{"sql": 0.8},
				HeldSkills:     map[string]float64{"sql": 0.2},
			},
			models.FailureCapabilityGap,
		},
		{"impossible", errors.New("requirements contradict each other"), ExecutionContext{}, models.FailureLogicalImpossible},
		{"forbidden", errors.New("permission denied: write outside workspace"), ExecutionContext{}, models.FailureBoundaryViolation},
		{"context window", errors.New("context length exceeded"), ExecutionContext{}, models.FailureContextLimitation},
		{"ambiguous", errors.New("goal is ambiguous"), ExecutionContext{}, models.FailureAmbiguity},
		{"silent agent", errors.New("step failed"), ExecutionContext{MessageGap: 10 * time.Minute}, models.FailureCoordination},
		{"unknown", errors.New("exit status 1"), ExecutionContext{}, models.FailureToolFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fa := c.Classify("task-1", tt.err, tt.ectx)
			if fa.Category != tt.want {
				t.Errorf("category = %s, want %s", fa.Category, tt.want)
			}
			if fa.RecommendedAction != actionFor[tt.want] {
				t.Errorf("action = %s, want %s", fa.RecommendedAction, actionFor[tt.want])
			}
			if fa.Priority != priorityFor[tt.want] {
				t.Errorf("priority = %s, want %s", fa.Priority, priorityFor[tt.want])
			}
			if fa.Confidence <= 0 || fa.Confidence > 1 {
				t.Errorf("confidence %f out of range", fa.Confidence)
			}
		})
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	c := NewClassifier()
	ectx := ExecutionContext{MessageGap: 10 * time.Minute}
	err := errors.New("deadlock between agents")
	first := c.Classify("t", err, ectx)
	for i := 0; i < 5; i++ {
		again := c.Classify("t", err, ectx)
		if again.Category != first.Category || again.RecommendedAction != first.RecommendedAction ||
			again.Priority != first.Priority {
			t.Fatalf("classification varied across identical inputs")
		}
	}
}

func TestMappingsCoverAllCategories(t *testing.T) {
	categories := []models.FailureCategory{
		models.FailureAmbiguity, models.FailureCapabilityGap, models.FailureCoordination,
		models.FailureToolFailure, models.FailureContextLimitation, models.FailureBoundaryViolation,
		models.FailureLogicalImpossible, models.FailureResourceExhaustion, models.FailureTemporaryOutage,
	}
	for _, c := range categories {
		if _, ok := actionFor[c]; !ok {
			t.Errorf("no action for %s", c)
		}
		if _, ok := priorityFor[c]; !ok {
			t.Errorf("no priority for %s", c)
		}
		if _, ok := interventionFor[c]; !ok {
			t.Errorf("no intervention for %s", c)
		}
	}
}

func TestBackoffGrowsExponentially(t *testing.T) {
	b := NewBackoff(time.Second, 2.0, 0)
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	for i, w := range want {
		if got := b.Delay(i + 1); got != w {
			t.Errorf("Delay(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestBackoffJitterBounds(t *testing.T) {
	b := NewBackoff(time.Second, 2.0, 0.2)
	b.rnd = func() float64 { return 0 } // lower jitter bound
	if got := b.Delay(1); got != 800*time.Millisecond {
		t.Errorf("lower bound = %v, want 800ms", got)
	}
	b.rnd = func() float64 { return 0.999999 } // near the upper bound
	if got := b.Delay(1); got < 1100*time.Millisecond || got > 1200*time.Millisecond {
		t.Errorf("upper bound = %v, want just under 1.2s", got)
	}
}

func newTestEngine() *Engine {
	return NewEngine(config.RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Multiplier:  2.0,
		Jitter:      0,
	}, nil)
}

func TestDecideRetriesThenEscalates(t *testing.T) {
	e := newTestEngine()
	fa := e.classifier.Classify("t", llm.ErrRateLimited, ExecutionContext{})

	for attempt := 1; attempt <= 3; attempt++ {
		d := e.Decide(fa, ExecutionContext{}, attempt)
		if d.Outcome != OutcomeRetry {
			t.Fatalf("attempt %d: outcome = %s, want retry", attempt, d.Outcome)
		}
		if d.Delay <= 0 {
			t.Fatalf("attempt %d: no delay", attempt)
		}
	}

	d := e.Decide(fa, ExecutionContext{}, 4)
	if d.Outcome != OutcomeEscalate {
		t.Errorf("attempt 4: outcome = %s, want escalate", d.Outcome)
	}
}

func TestDecideAbortCategories(t *testing.T) {
	e := newTestEngine()
	for _, err := range []error{
		errors.New("requirements contradict each other"),
		errors.New("policy violation"),
	} {
		fa := e.classifier.Classify("t", err, ExecutionContext{})
		if d := e.Decide(fa, ExecutionContext{}, 1); d.Outcome != OutcomeAbort {
			t.Errorf("%v: outcome = %s, want abort", err, d.Outcome)
		}
	}

	// Resource exhaustion aborts by action, not by forced category.
	fa := e.classifier.Classify("t", state.ErrBudgetExhausted, ExecutionContext{})
	if fa.Category.ForcesAbort() {
		t.Error("resource exhaustion should not be a forced-abort category")
	}
	if d := e.Decide(fa, ExecutionContext{}, 1); d.Outcome != OutcomeAbort {
		t.Errorf("outcome = %s, want abort", d.Outcome)
	}
}

func TestDecideReassignNeedsAlternative(t *testing.T) {
	e := newTestEngine()
	fa := e.classifier.Classify("t", ErrNoEligibleAgent, ExecutionContext{})

	d := e.Decide(fa, ExecutionContext{AlternativeAgentExists: true}, 1)
	if d.Outcome != OutcomeReassign {
		t.Errorf("with alternative: outcome = %s, want reassign", d.Outcome)
	}

	d = e.Decide(fa, ExecutionContext{AlternativeAgentExists: false}, 1)
	if d.Outcome != OutcomeEscalate {
		t.Errorf("without alternative: outcome = %s, want escalate", d.Outcome)
	}
	if d.Intervention != models.InterventionSkillGapResolution {
		t.Errorf("intervention = %s, want skill gap resolution", d.Intervention)
	}
}

func TestDecideEscalatesToolFixes(t *testing.T) {
	e := newTestEngine()
	fa := e.classifier.Classify("t", errors.New("exit status 1"), ExecutionContext{})
	d := e.Decide(fa, ExecutionContext{}, 1)
	if d.Outcome != OutcomeEscalate {
		t.Fatalf("outcome = %s, want escalate", d.Outcome)
	}
	if d.Intervention != models.InterventionToolIntegrationFix {
		t.Errorf("intervention = %s, want tool integration fix", d.Intervention)
	}
}

func TestDecideDecomposeWithinAttempts(t *testing.T) {
	e := newTestEngine()
	fa := e.classifier.Classify("t", errors.New("dependency cycle detected"), ExecutionContext{})
	if fa.Category != models.FailureCoordination {
		t.Fatalf("category = %s, want coordination", fa.Category)
	}
	if d := e.Decide(fa, ExecutionContext{}, 1); d.Outcome != OutcomeDecompose {
		t.Errorf("outcome = %s, want decompose", d.Outcome)
	}
	if d := e.Decide(fa, ExecutionContext{}, 4); d.Outcome != OutcomeEscalate {
		t.Errorf("exhausted: outcome = %s, want escalate", d.Outcome)
	}
}
