// Package decompose turns a goal into an analyzed, validated task tree.
package decompose

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ghostpirates/crew/internal/llm"
	"github.com/ghostpirates/crew/pkg/models"
)

// decomposedTask is the JSON structure the model returns for a single task.
type decomposedTask struct {
	Title               string             `json:"title"`
	Description         string             `json:"description"`
	Parent              string             `json:"parent"`
	RequiredSkills      map[string]float64 `json:"required_skills"`
	RequiredTags        []string           `json:"required_tags"`
	AcceptanceCriteria  string             `json:"acceptance_criteria"`
	AcceptanceThreshold float64            `json:"acceptance_threshold"`
}

// Decomposer produces goal analyses and task trees from a completion
// provider.
type Decomposer struct {
	provider  llm.Provider
	maxTokens int64
	// minConfidence gates auto-approval of a decomposition.
	minConfidence float64
}

// New creates a Decomposer backed by the given provider.
func New(provider llm.Provider) *Decomposer {
	return &Decomposer{provider: provider, maxTokens: 4096, minConfidence: 0.7}
}

// AnalyzeGoal asks the manager model to distill a goal before decomposing it.
func (d *Decomposer) AnalyzeGoal(ctx context.Context, goal string) (*models.GoalAnalysis, error) {
	resp, err := d.provider.Complete(ctx, llm.Request{
		RoleContext: "You are a team manager analyzing an incoming goal.",
		History:     []llm.Message{{Role: "user", Content: fmt.Sprintf(goalAnalysisPrompt, goal)}},
		MaxTokens:   d.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("analyze goal: %w", err)
	}
	return ParseGoalAnalysis(resp.Text)
}

// Decompose turns an analyzed goal into a validated task tree for a team.
// All tasks start pending with no assignee.
func (d *Decomposer) Decompose(ctx context.Context, teamID, goal string, analysis *models.GoalAnalysis) ([]*models.Task, error) {
	objective := goal
	if analysis != nil && analysis.CoreObjective != "" {
		objective = analysis.CoreObjective
	}
	resp, err := d.provider.Complete(ctx, llm.Request{
		RoleContext: "You are a team manager decomposing a goal into tasks.",
		History:     []llm.Message{{Role: "user", Content: fmt.Sprintf(decompositionPrompt, goal, objective)}},
		MaxTokens:   d.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("decompose goal: %w", err)
	}

	tasks, err := ParseTasks(resp.Text, teamID)
	if err != nil {
		return nil, fmt.Errorf("parse decomposition: %w", err)
	}
	if err := ValidateTree(tasks); err != nil {
		return nil, fmt.Errorf("validate task tree: %w", err)
	}

	quality := Score(tasks)
	if quality.Confidence < d.minConfidence {
		return nil, fmt.Errorf("decomposition confidence %.2f below %.2f: %s",
			quality.Confidence, d.minConfidence, strings.Join(quality.Warnings, "; "))
	}
	return tasks, nil
}

// ParseGoalAnalysis extracts the JSON analysis object from model output.
func ParseGoalAnalysis(response string) (*models.GoalAnalysis, error) {
	raw, err := extractJSON(response, '{', '}')
	if err != nil {
		return nil, err
	}
	var ga models.GoalAnalysis
	if err := json.Unmarshal([]byte(raw), &ga); err != nil {
		return nil, fmt.Errorf("unmarshal goal analysis: %w", err)
	}
	if ga.CoreObjective == "" {
		return nil, fmt.Errorf("goal analysis missing core objective")
	}
	if len(ga.Subtasks) == 0 {
		return nil, fmt.Errorf("goal analysis lists no subtasks")
	}
	for _, spec := range ga.RequiredSpecializations {
		if !models.Specialization(spec).Valid() {
			return nil, fmt.Errorf("unknown specialization %q", spec)
		}
	}
	return &ga, nil
}

// ParseTasks extracts the JSON task array from model output and resolves
// parent titles into IDs.
func ParseTasks(response, teamID string) ([]*models.Task, error) {
	raw, err := extractJSON(response, '[', ']')
	if err != nil {
		return nil, err
	}

	var decomposed []decomposedTask
	if err := json.Unmarshal([]byte(raw), &decomposed); err != nil {
		return nil, fmt.Errorf("unmarshal tasks: %w", err)
	}
	if len(decomposed) == 0 {
		return nil, fmt.Errorf("empty task list returned")
	}

	titleToID := make(map[string]string, len(decomposed))
	tasks := make([]*models.Task, len(decomposed))
	now := time.Now()

	for i, dt := range decomposed {
		if dt.Title == "" {
			return nil, fmt.Errorf("task %d has no title", i)
		}
		if _, dup := titleToID[dt.Title]; dup {
			return nil, fmt.Errorf("duplicate task title %q", dt.Title)
		}
		id := uuid.New().String()
		titleToID[dt.Title] = id

		threshold := dt.AcceptanceThreshold
		if threshold <= 0 || threshold > 1 {
			threshold = 0.75
		}
		tasks[i] = &models.Task{
			ID:                  id,
			TeamID:              teamID,
			Title:               dt.Title,
			Description:         dt.Description,
			AcceptanceCriteria:  dt.AcceptanceCriteria,
			RequiredSkills:      dt.RequiredSkills,
			RequiredTags:        dt.RequiredTags,
			AcceptanceThreshold: threshold,
			Status:              models.TaskStatusPending,
			CreatedAt:           now,
		}
	}

	for i, dt := range decomposed {
		if dt.Parent == "" {
			continue
		}
		parentID, ok := titleToID[dt.Parent]
		if !ok {
			return nil, fmt.Errorf("unknown parent %q for task %q", dt.Parent, dt.Title)
		}
		tasks[i].ParentID = parentID
	}
	return tasks, nil
}

// ValidateTree checks structural soundness: parent links form a forest with
// no cycles, skill minimums are in (0, 1], and at least one root exists.
func ValidateTree(tasks []*models.Task) error {
	byID := make(map[string]*models.Task, len(tasks))
	roots := 0
	for _, t := range tasks {
		byID[t.ID] = t
		if t.ParentID == "" {
			roots++
		}
		for skill, min := range t.RequiredSkills {
			if min <= 0 || min > 1 {
				return fmt.Errorf("task %q: skill %q minimum %.2f outside (0, 1]", t.Title, skill, min)
			}
		}
	}
	if roots == 0 {
		return fmt.Errorf("task tree has no root")
	}

	for _, t := range tasks {
		seen := map[string]bool{t.ID: true}
		for cur := t; cur.ParentID != ""; {
			parent, ok := byID[cur.ParentID]
			if !ok {
				return fmt.Errorf("task %q: parent %s not in tree", cur.Title, cur.ParentID)
			}
			if seen[parent.ID] {
				return fmt.Errorf("parent cycle through task %q", parent.Title)
			}
			seen[parent.ID] = true
			cur = parent
		}
	}
	return nil
}

// extractJSON pulls the outermost open..close span out of model output,
// tolerating prose or code fences around it.
func extractJSON(response string, open, shut byte) (string, error) {
	start := strings.IndexByte(response, open)
	end := strings.LastIndexByte(response, shut)
	if start == -1 || end <= start {
		preview := response
		if len(preview) > 300 {
			preview = preview[:300] + "... (truncated)"
		}
		return "", fmt.Errorf("no JSON %c...%c found in response: %q", open, shut, preview)
	}
	return response[start : end+1], nil
}
