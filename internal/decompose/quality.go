package decompose

import (
	"fmt"

	"github.com/ghostpirates/crew/pkg/models"
)

// Quality is the confidence assessment of a decomposition.
type Quality struct {
	// Confidence is the overall score in [0, 1].
	Confidence float64
	// Warnings are human-readable problems found while scoring.
	Warnings []string
	// RootTasks counts tasks with no parent.
	RootTasks int
	// MaxDepth is the deepest parent chain in the tree.
	MaxDepth int
}

// Score assesses a task tree without calling the model. Penalties are
// additive per defect so a decomposition with several weak tasks scores
// progressively lower.
func Score(tasks []*models.Task) Quality {
	q := Quality{Confidence: 1.0}
	if len(tasks) == 0 {
		q.Confidence = 0
		q.Warnings = append(q.Warnings, "no tasks")
		return q
	}

	byID := make(map[string]*models.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}

	for _, t := range tasks {
		if t.ParentID == "" {
			q.RootTasks++
		}
		if d := depth(t, byID); d > q.MaxDepth {
			q.MaxDepth = d
		}
		if t.AcceptanceCriteria == "" {
			q.Confidence -= 0.1
			q.Warnings = append(q.Warnings, fmt.Sprintf("task %q has no acceptance criteria", t.Title))
		}
		if len(t.RequiredSkills) == 0 {
			q.Confidence -= 0.1
			q.Warnings = append(q.Warnings, fmt.Sprintf("task %q declares no required skills", t.Title))
		}
	}

	if len(tasks) > 12 {
		q.Confidence -= 0.05 * float64(len(tasks)-12)
		q.Warnings = append(q.Warnings, fmt.Sprintf("large decomposition (%d tasks)", len(tasks)))
	}
	if q.MaxDepth > 3 {
		q.Confidence -= 0.1 * float64(q.MaxDepth-3)
		q.Warnings = append(q.Warnings, fmt.Sprintf("deep tree (depth %d)", q.MaxDepth))
	}

	if q.Confidence < 0 {
		q.Confidence = 0
	}
	return q
}

// depth returns the length of the parent chain from t to its root.
func depth(t *models.Task, byID map[string]*models.Task) int {
	d := 1
	seen := map[string]bool{t.ID: true}
	for t.ParentID != "" {
		parent, ok := byID[t.ParentID]
		if !ok || seen[parent.ID] {
			break
		}
		seen[parent.ID] = true
		t = parent
		d++
	}
	return d
}
