package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ghostpirates/crew/internal/analyzer"
	"github.com/ghostpirates/crew/internal/config"
	"github.com/ghostpirates/crew/internal/llm"
	"github.com/ghostpirates/crew/internal/state"
	"github.com/ghostpirates/crew/pkg/models"
)

// staticProvider returns one canned completion.
type staticProvider struct {
	text string
	err  error
}

func (p *staticProvider) Complete(_ context.Context, _ llm.Request) (*llm.Response, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &llm.Response{Text: p.text, InputTokens: 50, OutputTokens: 20}, nil
}

func newReviewHarness(t *testing.T, ceiling float64) (*memStore, *models.Team, *Reviewer) {
	t.Helper()
	store := newMemStore()
	team := &models.Team{ID: "team", Status: models.TeamStatusActive, BudgetCeiling: ceiling}
	store.addTeam(team)

	budget := NewBudgetGuard(store)
	an := analyzer.New(config.Default().Analyzer, store)
	r := NewReviewer(nil, an, budget, store, NewEventEmitter(store, 16, NopLogger()), NopLogger(), 3)
	return store, team, r
}

func reviewTask(store *memStore, quality float64, revisions int) *models.Task {
	task := &models.Task{
		ID:                  "t1",
		TeamID:              "team",
		Title:               "write summary",
		Status:              models.TaskStatusReview,
		QualityScore:        quality,
		AcceptanceThreshold: 0.75,
		RevisionCount:       revisions,
	}
	store.CreateTask(task)
	return task
}

func TestReviewApprovesAtThreshold(t *testing.T) {
	store, team, r := newReviewHarness(t, 0)
	task := reviewTask(store, 0.75, 0)

	decision, err := r.Review(team, task)
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if decision != ReviewApproved {
		t.Errorf("decision = %s, want approved", decision)
	}
	stored, _ := store.GetTask("t1")
	if stored.Status != models.TaskStatusApproved {
		t.Errorf("status = %s, want approved", stored.Status)
	}
	if stored.CompletedAt == nil {
		t.Error("completed_at not stamped")
	}
}

func TestReviewRequestsRevisionBelowThreshold(t *testing.T) {
	store, team, r := newReviewHarness(t, 0)
	task := reviewTask(store, 0.6, 0)

	decision, err := r.Review(team, task)
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if decision != ReviewRevisionRequested {
		t.Errorf("decision = %s, want revision requested", decision)
	}
	stored, _ := store.GetTask("t1")
	if stored.Status != models.TaskStatusInRevision {
		t.Errorf("status = %s, want in_revision", stored.Status)
	}
	if stored.RevisionCount != 1 {
		t.Errorf("revision count = %d, want 1", stored.RevisionCount)
	}
}

func TestReviewRejectsAtRevisionCap(t *testing.T) {
	store, team, r := newReviewHarness(t, 0)
	task := reviewTask(store, 0.6, 3)

	decision, err := r.Review(team, task)
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if decision != ReviewRejected {
		t.Errorf("decision = %s, want rejected", decision)
	}
	stored, _ := store.GetTask("t1")
	if stored.Status != models.TaskStatusAborted {
		t.Errorf("status = %s, want aborted", stored.Status)
	}
	if !strings.Contains(stored.AbortReason, "revision cap") {
		t.Errorf("abort reason = %q", stored.AbortReason)
	}
}

func TestReviewRejectsOnCollapsedReturns(t *testing.T) {
	store, team, r := newReviewHarness(t, 0)
	task := reviewTask(store, 0.6, 2)

	// ROI falls 1.0 -> 0.2: collapsed, the analyzer abandons.
	store.AppendRevision(&models.RevisionRecord{TaskID: "t1", Revision: 1, QualityBefore: 0.4, QualityAfter: 0.5, Cost: 0.1})
	store.AppendRevision(&models.RevisionRecord{TaskID: "t1", Revision: 2, QualityBefore: 0.5, QualityAfter: 0.52, Cost: 0.1})

	decision, err := r.Review(team, task)
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if decision != ReviewRejected {
		t.Errorf("decision = %s, want rejected", decision)
	}
}

func TestReviewRejectsWhenBudgetCannotCoverRevision(t *testing.T) {
	store, team, r := newReviewHarness(t, 100)
	store.spend["team"] = 99.8
	task := reviewTask(store, 0.70, 2)

	// Steady returns the analyzer tolerates, but the projected cost of
	// one more revision exceeds the remaining budget.
	store.AppendRevision(&models.RevisionRecord{TaskID: "t1", Revision: 1, QualityBefore: 0.60, QualityAfter: 0.65, Cost: 0.5})
	store.AppendRevision(&models.RevisionRecord{TaskID: "t1", Revision: 2, QualityBefore: 0.65, QualityAfter: 0.70, Cost: 0.5})

	decision, err := r.Review(team, task)
	if err != nil {
		t.Fatalf("Review: %v", err)
	}
	if decision != ReviewRejected {
		t.Errorf("decision = %s, want rejected despite favorable trend", decision)
	}
	stored, _ := store.GetTask("t1")
	if !strings.Contains(stored.AbortReason, "insufficient remaining budget") {
		t.Errorf("abort reason = %q, want insufficient remaining budget", stored.AbortReason)
	}
}

func TestScoreOutputParsesAndClamps(t *testing.T) {
	store, team, r := newReviewHarness(t, 0)
	_ = team
	r.provider = &staticProvider{text: `Verdict: {"score": 1.4, "feedback": "thorough"}`}

	task := &models.Task{ID: "t1", TeamID: "team", Title: "x", AcceptanceCriteria: "y"}
	store.CreateTask(task)

	score, feedback, err := r.ScoreOutput(context.Background(), task, "output")
	if err != nil {
		t.Fatalf("ScoreOutput: %v", err)
	}
	if score != 1.0 {
		t.Errorf("score = %f, want clamped to 1.0", score)
	}
	if feedback != "thorough" {
		t.Errorf("feedback = %q", feedback)
	}
}

func TestScoreOutputSurfacesExhaustedBudget(t *testing.T) {
	store, _, r := newReviewHarness(t, 100)
	store.spend["team"] = 100 // ledger ceiling already reached
	r.provider = &staticProvider{text: `{"score": 0.8, "feedback": "fine"}`}

	task := &models.Task{ID: "t1", TeamID: "team", Title: "x", AcceptanceCriteria: "y"}
	store.CreateTask(task)

	_, _, err := r.ScoreOutput(context.Background(), task, "output")
	if !errors.Is(err, state.ErrBudgetExhausted) {
		t.Fatalf("err = %v, want ErrBudgetExhausted", err)
	}
}

func TestScoreOutputRejectsProse(t *testing.T) {
	_, _, r := newReviewHarness(t, 0)
	r.provider = &staticProvider{text: "looks good to me"}

	task := &models.Task{ID: "t1", TeamID: "team"}
	if _, _, err := r.ScoreOutput(context.Background(), task, "output"); err == nil {
		t.Fatal("expected error when no verdict JSON present")
	}
}
