package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ghostpirates/crew/internal/analyzer"
	"github.com/ghostpirates/crew/internal/llm"
	"github.com/ghostpirates/crew/internal/state"
	"github.com/ghostpirates/crew/pkg/models"
)

// ReviewDecision is the outcome of one review pass.
type ReviewDecision string

const (
	// ReviewApproved ends the task successfully.
	ReviewApproved ReviewDecision = "approved"
	// ReviewRevisionRequested sends the task back for another revision.
	ReviewRevisionRequested ReviewDecision = "revision_requested"
	// ReviewRejected aborts the task.
	ReviewRejected ReviewDecision = "rejected"
)

// Reviewer drives the review state machine: score against the acceptance
// threshold, consult the marginal-return analyzer, and enforce the
// revision cap and budget before allowing another revision.
type Reviewer struct {
	provider llm.Provider
	analyzer *analyzer.Analyzer
	budget   *BudgetGuard
	tasks    state.TaskStore
	emitter  *EventEmitter
	logger   *DebugLogger
	// maxRevisions is the hard cap per task.
	maxRevisions int
	maxTokens    int64
}

// NewReviewer creates a Reviewer.
func NewReviewer(provider llm.Provider, an *analyzer.Analyzer, budget *BudgetGuard, tasks state.TaskStore, emitter *EventEmitter, logger *DebugLogger, maxRevisions int) *Reviewer {
	return &Reviewer{
		provider:     provider,
		analyzer:     an,
		budget:       budget,
		tasks:        tasks,
		emitter:      emitter,
		logger:       logger,
		maxRevisions: maxRevisions,
		maxTokens:    1024,
	}
}

const reviewPrompt = `Score this task output against its acceptance criteria.

Task: %s
Acceptance criteria: %s

Output:
%s

Return ONLY a JSON object (no other text):
{"score": 0.0, "feedback": "one sentence on the biggest gap"}

score is in [0, 1]: 1.0 means every criterion is fully met.`

// reviewVerdict is the JSON the scoring model returns.
type reviewVerdict struct {
	Score    float64 `json:"score"`
	Feedback string  `json:"feedback"`
}

// ScoreOutput asks the review model to score an output against the task's
// acceptance criteria. The score is clamped to [0, 1]; nothing downstream
// trusts the model beyond that bounded number and a feedback string.
func (r *Reviewer) ScoreOutput(ctx context.Context, task *models.Task, output string) (float64, string, error) {
	resp, err := r.provider.Complete(ctx, llm.Request{
		RoleContext: "You are a strict reviewer scoring task output.",
		History: []llm.Message{{
			Role:    "user",
			Content: fmt.Sprintf(reviewPrompt, task.Title, task.AcceptanceCriteria, output),
		}},
		MaxTokens: r.maxTokens,
	})
	if err != nil {
		return 0, "", fmt.Errorf("score output: %w", err)
	}
	if r.budget != nil {
		if err := r.budget.Charge(task.TeamID, task.ID, resp.Cost(), "review scoring"); err != nil {
			return 0, "", fmt.Errorf("charge review scoring for %s: %w", task.ID, err)
		}
	}

	text := resp.Text
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start == -1 || end <= start {
		return 0, "", fmt.Errorf("no verdict JSON in review response")
	}
	var v reviewVerdict
	if err := json.Unmarshal([]byte(text[start:end+1]), &v); err != nil {
		return 0, "", fmt.Errorf("unmarshal verdict: %w", err)
	}
	if v.Score < 0 {
		v.Score = 0
	}
	if v.Score > 1 {
		v.Score = 1
	}
	return v.Score, v.Feedback, nil
}

// Review resolves a task sitting in review. The quality score must already
// be recorded on the task. Approval needs only the threshold; another
// revision needs the analyzer's blessing, a free revision slot, and budget
// headroom.
func (r *Reviewer) Review(team *models.Team, task *models.Task) (ReviewDecision, error) {
	if task.Status != models.TaskStatusReview {
		return "", fmt.Errorf("task %s is %s, not in review", task.ID, task.Status)
	}

	if task.QualityScore >= task.AcceptanceThreshold {
		if _, err := r.tasks.TransitionTask(task.ID, models.TaskStatusReview, models.TaskStatusApproved, nil); err != nil {
			return "", fmt.Errorf("approve task %s: %w", task.ID, err)
		}
		task.Status = models.TaskStatusApproved
		r.emit(task, models.EventTaskCompleted, fmt.Sprintf("approved at %.2f", task.QualityScore))
		return ReviewApproved, nil
	}

	if task.RevisionCount >= r.maxRevisions {
		return r.reject(task, fmt.Sprintf("revision cap (%d) reached at quality %.2f", r.maxRevisions, task.QualityScore))
	}

	rec, err := r.analyzer.Analyze(task.ID)
	if err != nil {
		return "", fmt.Errorf("analyze task %s: %w", task.ID, err)
	}
	if rec.Decision == analyzer.DecisionAbandon || rec.Decision == analyzer.DecisionStronglyAbort {
		return r.reject(task, rec.Reason)
	}

	history, err := r.tasks.ListRevisions(task.ID)
	if err != nil {
		return "", fmt.Errorf("load revisions for %s: %w", task.ID, err)
	}
	if err := r.budget.AuthorizeRevision(team, task, history); err != nil {
		if errors.Is(err, ErrInsufficientBudget) {
			return r.reject(task, ErrInsufficientBudget.Error())
		}
		return "", err
	}

	if _, err := r.tasks.TransitionTask(task.ID, models.TaskStatusReview, models.TaskStatusInRevision, func(t *models.Task) {
		t.RevisionCount++
	}); err != nil {
		return "", fmt.Errorf("request revision on %s: %w", task.ID, err)
	}
	task.Status = models.TaskStatusInRevision
	task.RevisionCount++
	r.logger.Log("task %s revision %d requested (quality %.2f, trend %s)",
		task.ID, task.RevisionCount, task.QualityScore, rec.Trend)
	r.emit(task, models.EventTaskTransitioned, fmt.Sprintf("revision %d requested", task.RevisionCount))
	return ReviewRevisionRequested, nil
}

// reject aborts a task out of review with a human-readable reason and its
// sunk cost attached.
func (r *Reviewer) reject(task *models.Task, reason string) (ReviewDecision, error) {
	updated, err := r.tasks.TransitionTask(task.ID, models.TaskStatusReview, models.TaskStatusAborted, func(t *models.Task) {
		t.AbortReason = reason
	})
	if err != nil {
		return "", fmt.Errorf("abort task %s: %w", task.ID, err)
	}
	*task = *updated
	r.logger.Log("task %s aborted in review: %s (sunk cost %.2f)", task.ID, reason, task.SunkCost)
	r.emit(task, models.EventTaskCompleted, fmt.Sprintf("aborted: %s (sunk cost %.2f)", reason, task.SunkCost))
	return ReviewRejected, nil
}

func (r *Reviewer) emit(task *models.Task, typ models.EventType, payload string) {
	if r.emitter == nil {
		return
	}
	r.emitter.Emit(models.Event{
		Type:    typ,
		TeamID:  task.TeamID,
		TaskID:  task.ID,
		AgentID: task.AssignedTo,
		Payload: payload,
	})
}
