package decompose

import (
	"context"
	"strings"
	"testing"

	"github.com/ghostpirates/crew/internal/llm"
	"github.com/ghostpirates/crew/pkg/models"
)

// fakeProvider returns a canned response per call.
type fakeProvider struct {
	responses []string
	calls     int
	err       error
}

func (f *fakeProvider) Complete(_ context.Context, _ llm.Request) (*llm.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	text := f.responses[f.calls%len(f.responses)]
	f.calls++
	return &llm.Response{Text: text, InputTokens: 100, OutputTokens: 200}, nil
}

const analysisJSON = `{
  "core_objective": "Produce a market research report",
  "subtasks": ["gather sources", "draft report"],
  "required_specializations": ["researcher", "writer"],
  "estimated_timeline_hours": 6,
  "success_criteria": ["report covers all three competitors"]
}`

const treeJSON = `[
  {
    "title": "Research report",
    "description": "Top-level deliverable",
    "parent": "",
    "required_skills": {"research": 0.5},
    "required_tags": ["search"],
    "acceptance_criteria": "Report is complete and sourced",
    "acceptance_threshold": 0.8
  },
  {
    "title": "Gather sources",
    "description": "Collect primary sources",
    "parent": "Research report",
    "required_skills": {"research": 0.7},
    "required_tags": ["search"],
    "acceptance_criteria": "At least five credible sources",
    "acceptance_threshold": 0.75
  },
  {
    "title": "Draft report",
    "description": "Write the report body",
    "parent": "Research report",
    "required_skills": {"writing": 0.6},
    "required_tags": ["summarize"],
    "acceptance_criteria": "Draft covers all subtopics",
    "acceptance_threshold": 0
  }
]`

func TestAnalyzeGoal(t *testing.T) {
	d := New(&fakeProvider{responses: []string{"Here is the analysis:\n" + analysisJSON}})
	ga, err := d.AnalyzeGoal(context.Background(), "research the market")
	if err != nil {
		t.Fatalf("AnalyzeGoal: %v", err)
	}
	if ga.CoreObjective != "Produce a market research report" {
		t.Errorf("core objective = %q", ga.CoreObjective)
	}
	if len(ga.Subtasks) != 2 {
		t.Errorf("subtasks = %d, want 2", len(ga.Subtasks))
	}
	if len(ga.RequiredSpecializations) != 2 {
		t.Errorf("specializations = %d, want 2", len(ga.RequiredSpecializations))
	}
}

func TestParseGoalAnalysisRejectsUnknownSpecialization(t *testing.T) {
	bad := strings.Replace(analysisJSON, "researcher", "astronaut", 1)
	if _, err := ParseGoalAnalysis(bad); err == nil {
		t.Fatal("expected error for unknown specialization")
	}
}

func TestDecomposeBuildsTree(t *testing.T) {
	d := New(&fakeProvider{responses: []string{"```json\n" + treeJSON + "\n```"}})
	tasks, err := d.Decompose(context.Background(), "team-1", "research the market", nil)
	if err != nil {
		t.Fatalf("Decompose: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("tasks = %d, want 3", len(tasks))
	}

	root := tasks[0]
	if root.ParentID != "" {
		t.Errorf("root has parent %s", root.ParentID)
	}
	for _, child := range tasks[1:] {
		if child.ParentID != root.ID {
			t.Errorf("task %q parent = %s, want root %s", child.Title, child.ParentID, root.ID)
		}
	}
	for _, task := range tasks {
		if task.TeamID != "team-1" {
			t.Errorf("task %q team = %s", task.Title, task.TeamID)
		}
		if task.Status != models.TaskStatusPending {
			t.Errorf("task %q status = %s, want pending", task.Title, task.Status)
		}
	}
	// Out-of-range threshold falls back to the default.
	if tasks[2].AcceptanceThreshold != 0.75 {
		t.Errorf("threshold = %f, want default 0.75", tasks[2].AcceptanceThreshold)
	}
}

func TestParseTasksRejectsUnknownParent(t *testing.T) {
	bad := strings.Replace(treeJSON, `"parent": "Research report"`, `"parent": "Missing"`, 1)
	if _, err := ParseTasks(bad, "team-1"); err == nil {
		t.Fatal("expected error for unknown parent")
	}
}

func TestParseTasksRejectsDuplicateTitles(t *testing.T) {
	bad := strings.Replace(treeJSON, `"title": "Draft report"`, `"title": "Gather sources"`, 1)
	if _, err := ParseTasks(bad, "team-1"); err == nil {
		t.Fatal("expected error for duplicate titles")
	}
}

func TestParseTasksRejectsProseOnly(t *testing.T) {
	if _, err := ParseTasks("I could not decompose that goal.", "team-1"); err == nil {
		t.Fatal("expected error when no JSON array present")
	}
}

func TestValidateTreeRejectsCycle(t *testing.T) {
	a := &models.Task{ID: "a", Title: "a"}
	b := &models.Task{ID: "b", Title: "b", ParentID: "a"}
	root := &models.Task{ID: "r", Title: "root"}
	a.ParentID = "b"
	if err := ValidateTree([]*models.Task{root, a, b}); err == nil {
		t.Fatal("expected cycle to be rejected")
	}
}

func TestValidateTreeRejectsBadSkillRange(t *testing.T) {
	tasks := []*models.Task{{
		ID: "a", Title: "a",
		RequiredSkills: map[string]float64{"research": 1.5},
	}}
	if err := ValidateTree(tasks); err == nil {
		t.Fatal("expected out-of-range skill minimum to be rejected")
	}
}

func TestDecomposeRejectsLowConfidence(t *testing.T) {
	// No acceptance criteria and no skills on any task drives the score
	// well under the auto-approval floor.
	thin := `[
	  {"title": "One", "parent": ""},
	  {"title": "Two", "parent": "One"},
	  {"title": "Three", "parent": "One"},
	  {"title": "Four", "parent": "One"}
	]`
	d := New(&fakeProvider{responses: []string{thin}})
	if _, err := d.Decompose(context.Background(), "team-1", "goal", nil); err == nil {
		t.Fatal("expected low-confidence decomposition to be rejected")
	}
}

func TestScore(t *testing.T) {
	tasks, err := ParseTasks(treeJSON, "team-1")
	if err != nil {
		t.Fatalf("ParseTasks: %v", err)
	}
	q := Score(tasks)
	if q.Confidence < 0.9 {
		t.Errorf("confidence = %f, want near 1.0 for a clean tree", q.Confidence)
	}
	if q.RootTasks != 1 {
		t.Errorf("roots = %d, want 1", q.RootTasks)
	}
	if q.MaxDepth != 2 {
		t.Errorf("depth = %d, want 2", q.MaxDepth)
	}
}
